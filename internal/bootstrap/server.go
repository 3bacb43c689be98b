package bootstrap

import (
	"github.com/prometheus/client_golang/prometheus"

	infragin "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/gin"
	infralogger "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/logger"
	inframetrics "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/metrics"
	"github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/sse"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/api"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/config"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/metrics"
)

// SetupHTTPServer creates and configures the HTTP server.
func SetupHTTPServer(
	cfg *config.Config,
	svc api.Service,
	broker sse.Broker,
	reg *prometheus.Registry,
	log infralogger.Logger,
) *infragin.Server {
	serverCfg := cfg.ServerConfig()
	deps := api.Deps{
		Service:        svc,
		Broker:         broker,
		ServiceName:    cfg.Service.Name,
		ServiceVersion: cfg.Service.Version,
		AuthSecret:     cfg.Auth.JWTSecret,
		Logger:         log,
	}
	if reg != nil {
		deps.Gatherer = reg
		deps.HTTPMetrics = inframetrics.NewHTTPMetrics(reg, metrics.Namespace)
	}
	return infragin.NewServer(&serverCfg, log, api.Routes(deps))
}
