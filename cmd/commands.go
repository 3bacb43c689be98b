package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/monitor"
)

func newExecuteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "execute <source>",
		Short: "Trigger an on-demand run of a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMonitor(cmd, func(ctx context.Context, m *monitor.Monitor) error {
				jobID, err := m.Execute(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Execution dispatched for %s: job %s\n", args[0], jobID)
				return nil
			})
		},
	}
}

func newCancelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMonitor(cmd, func(ctx context.Context, m *monitor.Monitor) error {
				if err := m.Cancel(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s cancelled\n", args[0])
				return nil
			})
		},
	}
}

func newToggleCommand() *cobra.Command {
	var active bool
	cmd := &cobra.Command{
		Use:   "toggle <source> --active=<bool>",
		Short: "Activate or deactivate a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMonitor(cmd, func(ctx context.Context, m *monitor.Monitor) error {
				outcome, err := m.Toggle(ctx, args[0], active)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Source %s is now %s\n", outcome.Entry.Name, activeLabel(outcome.Entry.IsActive))
				if outcome.Unsynced {
					fmt.Fprintf(out, "Warning: %s\n", outcome.Warning)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&active, "active", true, "desired state")
	_ = cmd.MarkFlagRequired("active")
	return cmd
}

func newScheduleCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "schedule <source> <cron-expr>",
		Short:   "Set a source's cron schedule",
		Example: `  fleet-monitor schedule jumbo "0 6 * * *"`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMonitor(cmd, func(ctx context.Context, m *monitor.Monitor) error {
				next, err := m.Schedule(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Schedule for %s set to %q; next run %s\n",
					args[0], args[1], formatTime(&next))
				return nil
			})
		},
	}
}

func activeLabel(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}
