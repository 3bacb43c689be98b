// Package bootstrap wires the fleet monitor's components for the serve
// command and for one-shot CLI commands.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	infralogger "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/profiling"
	"github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/sse"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/config"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/monitor"
)

// Serve runs the monitor and its HTTP API until ctx is cancelled.
func Serve(ctx context.Context, cfg *config.Config, log infralogger.Logger) error {
	// Phase 0: profiling (if enabled)
	if _, err := profiling.Start(ctx, cfg.Profiling, log); err != nil {
		log.Warn("pprof server not started", infralogger.Error(err))
	}

	// Phase 1: metrics registry and audit stream (optional)
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	publisher, closeAudit := SetupAudit(ctx, cfg, log)
	defer closeAudit()

	// Phase 2: SSE broker and monitor
	broker := sse.NewBroker(log)
	if err := broker.Start(ctx); err != nil {
		return fmt.Errorf("start event broker: %w", err)
	}
	defer func() {
		if stopErr := broker.Stop(); stopErr != nil {
			log.Error("Failed to stop event broker", infralogger.Error(stopErr))
		}
	}()

	mon := NewMonitor(cfg, log, reg, publisher, monitor.WithEvents(broker))
	if err := mon.Start(ctx); err != nil {
		return fmt.Errorf("start monitor: %w", err)
	}
	defer func() {
		if stopErr := mon.Stop(); stopErr != nil && !errors.Is(stopErr, monitor.ErrNotStarted) {
			log.Error("Failed to stop monitor", infralogger.Error(stopErr))
		}
	}()

	// Phase 3: HTTP server
	server := SetupHTTPServer(cfg, mon, broker, reg, log)
	if err := server.Run(ctx); err != nil {
		log.Error("Server error", infralogger.Error(err))
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("Server exited")
	return nil
}

// WithMonitor starts a short-lived monitor in polling mode, syncs sources and
// jobs once, then runs fn. Command outcomes still reach the audit stream.
func WithMonitor(ctx context.Context, cfg *config.Config, log infralogger.Logger, fn func(context.Context, *monitor.Monitor) error, opts ...monitor.Option) error {
	publisher, closeAudit := SetupAudit(ctx, cfg, log)
	defer closeAudit()

	oneShot := *cfg
	oneShot.Scraper.PushURL = ""
	mon := NewMonitor(&oneShot, log, nil, publisher, opts...)
	if err := mon.Start(ctx); err != nil {
		return fmt.Errorf("start monitor: %w", err)
	}
	defer func() { _ = mon.Stop() }()

	if err := mon.Sync(ctx); err != nil {
		return err
	}
	return fn(ctx, mon)
}
