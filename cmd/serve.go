package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/bootstrap"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the monitor service and its HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := newCommandDeps("stdout")
			if err != nil {
				return err
			}
			defer deps.close()

			return bootstrap.Serve(cmd.Context(), deps.Config, deps.Logger)
		},
	}
}
