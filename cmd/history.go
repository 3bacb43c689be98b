package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/domain"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/monitor"
)

type historyFlags struct {
	page     int
	pageSize int
	source   string
	status   string
	from     string
	to       string
}

func (f historyFlags) query() (domain.HistoryQuery, error) {
	q := domain.HistoryQuery{Page: f.page, PageSize: f.pageSize, TargetName: f.source}
	if f.status != "" {
		status, ok := domain.ParseJobStatus(f.status)
		if !ok {
			return q, fmt.Errorf("unknown status %q", f.status)
		}
		q.Status = status
	}

	var err error
	if q.From, err = domain.ParseHistoryDate(f.from); err != nil {
		return q, fmt.Errorf("--from: %w", err)
	}
	if q.To, err = domain.ParseHistoryDate(f.to); err != nil {
		return q, fmt.Errorf("--to: %w", err)
	}
	if err := q.Validate(); err != nil {
		return q, err
	}
	return q.Normalize(), nil
}

func newHistoryCommand() *cobra.Command {
	var flags historyFlags
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Page through finished runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := flags.query()
			if err != nil {
				return err
			}
			return withMonitor(cmd, func(ctx context.Context, m *monitor.Monitor) error {
				page, err := m.History(ctx, q)
				if err != nil {
					return err
				}
				renderHistory(cmd.OutOrStdout(), page)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&flags.page, "page", 1, "page number")
	cmd.Flags().IntVar(&flags.pageSize, "page-size", domain.DefaultHistoryPageSize, "records per page")
	cmd.Flags().StringVar(&flags.source, "source", "", "only runs of this source")
	cmd.Flags().StringVar(&flags.status, "status", "", "only runs with this status")
	cmd.Flags().StringVar(&flags.from, "from", "", "start date (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().StringVar(&flags.to, "to", "", "end date (YYYY-MM-DD or RFC 3339)")
	return cmd
}
