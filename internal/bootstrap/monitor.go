package bootstrap

import (
	"github.com/prometheus/client_golang/prometheus"

	infralogger "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/audit"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/config"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/metrics"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/monitor"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/scraper"
)

// NewMonitor builds the scraper client and the monitor. reg and publisher
// may be nil.
func NewMonitor(
	cfg *config.Config,
	log infralogger.Logger,
	reg prometheus.Registerer,
	publisher *audit.Publisher,
	opts ...monitor.Option,
) *monitor.Monitor {
	clientOpts := append(cfg.ScraperOptions(), scraper.WithLogger(log))

	var all []monitor.Option
	if reg != nil {
		mt := metrics.New(reg)
		clientOpts = append(clientOpts, scraper.WithOnSkipped(mt.ObserveRejected))
		all = append(all, monitor.WithMetrics(mt))
	}
	if publisher != nil {
		all = append(all, monitor.WithAudit(publisher))
	}
	all = append(all, opts...)

	client := scraper.NewClient(clientOpts...)
	return monitor.New(cfg.MonitorConfig(), client, log.With(infralogger.Component("monitor")), all...)
}
