package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/monitor"
)

func newJobsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect live and recently finished jobs",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List live and recent jobs",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMonitor(cmd, func(_ context.Context, m *monitor.Monitor) error {
					renderJobs(cmd.OutOrStdout(), m.Jobs())
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "logs <job-id>",
			Short: "Show the log lines recorded for a job",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMonitor(cmd, func(_ context.Context, m *monitor.Monitor) error {
					logs, err := m.Logs(args[0])
					if err != nil {
						return err
					}
					renderLogs(cmd.OutOrStdout(), logs)
					return nil
				})
			},
		},
	)
	return cmd
}

// withMonitor runs fn against a synced one-shot monitor.
func withMonitor(cmd *cobra.Command, fn func(context.Context, *monitor.Monitor) error) error {
	deps, err := newCommandDeps()
	if err != nil {
		return err
	}
	defer deps.close()

	return bootstrap.WithMonitor(cmd.Context(), deps.Config, deps.Logger, fn)
}
