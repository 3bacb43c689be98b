package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/monitor"
)

func newSourcesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Inspect scraper sources",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List sources with their run state and health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMonitor(cmd, func(_ context.Context, m *monitor.Monitor) error {
				renderSources(cmd.OutOrStdout(), m.View())
				return nil
			})
		},
	})
	return cmd
}
