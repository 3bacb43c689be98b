package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	infralogger "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/monitor"
)

const clearScreen = "\033[H\033[2J"

func newWatchCommand() *cobra.Command {
	var noClear bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the fleet live until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := newCommandDeps()
			if err != nil {
				return err
			}
			defer deps.close()

			views := make(chan monitor.View, 1)
			mon := bootstrap.NewMonitor(deps.Config, deps.Logger, nil, nil,
				monitor.WithOnView(func(v monitor.View) { offerLatest(views, v) }))
			if err := mon.Start(cmd.Context()); err != nil {
				return err
			}
			defer func() {
				if stopErr := mon.Stop(); stopErr != nil && !errors.Is(stopErr, monitor.ErrNotStarted) {
					deps.Logger.Warn("Monitor stop failed", infralogger.Error(stopErr))
				}
			}()

			offerLatest(views, mon.View())
			return watchLoop(cmd.Context(), cmd.OutOrStdout(), views, !noClear)
		},
	}
	cmd.Flags().BoolVar(&noClear, "no-clear", false, "append frames instead of redrawing")
	return cmd
}

// watchLoop redraws the fleet table for each view until ctx is cancelled.
func watchLoop(ctx context.Context, w io.Writer, views <-chan monitor.View, clear bool) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case v := <-views:
			if clear {
				fmt.Fprint(w, clearScreen)
			}
			renderWatch(w, v)
		}
	}
}

// offerLatest replaces any undrawn view with v.
func offerLatest(ch chan monitor.View, v monitor.View) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
