package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	infragin "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/gin"
	infrajwt "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/jwt"
	infralogger "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/logger"
	inframetrics "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/metrics"
	"github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/sse"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/transport"
)

// HealthCheckTransport is the name of the live transport health check.
const HealthCheckTransport = "scraper_transport"

// Deps are the collaborators of the HTTP surface. Broker, Gatherer and
// HTTPMetrics are optional; an empty AuthSecret leaves /api/v1 open.
type Deps struct {
	Service        Service
	Broker         sse.Broker
	Gatherer       prometheus.Gatherer
	HTTPMetrics    *inframetrics.HTTPMetrics
	ServiceName    string
	ServiceVersion string
	AuthSecret     string
	Logger         infralogger.Logger
}

// Routes returns the route setup passed to infragin.NewServer.
func Routes(deps Deps) func(*gin.Engine) {
	return func(router *gin.Engine) {
		if deps.HTTPMetrics != nil {
			router.Use(deps.HTTPMetrics.Middleware())
		}

		infragin.RegisterHealthRoutes(router, infragin.HealthOptions{
			ServiceName:    deps.ServiceName,
			ServiceVersion: deps.ServiceVersion,
			Checks: map[string]infragin.HealthChecker{
				HealthCheckTransport: transportCheck(deps.Service),
			},
		})

		if deps.Gatherer != nil {
			router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
		}

		v1 := router.Group("/api/v1", infrajwt.Middleware(deps.AuthSecret))
		NewHandler(deps.Service, deps.Logger).Register(v1)

		if deps.Broker != nil {
			v1.GET("/events", sse.Handler(deps.Broker, deps.Logger, sse.HandlerOptions{
				Initial: func() sse.Event {
					return sse.Event{Type: sse.EventTypeMonitorUpdate, Data: deps.Service.View()}
				},
			}))
		}
	}
}

// transportCheck reports degraded while the transport is degraded or
// stopped. Polling alone is healthy.
func transportCheck(svc Service) infragin.HealthChecker {
	return func() infragin.CheckResult {
		s := svc.Connection()
		switch {
		case s.Degraded:
			return infragin.CheckResult{
				Status:  infragin.HealthStatusDegraded,
				Message: fmt.Sprintf("%d consecutive failures: %s", s.ConsecutiveFailures, s.LastError),
			}
		case s.Mode == transport.ModeStopped:
			return infragin.CheckResult{Status: infragin.HealthStatusDegraded, Message: "transport stopped"}
		default:
			return infragin.CheckResult{Status: infragin.HealthStatusHealthy, Message: string(s.Mode)}
		}
	}
}
