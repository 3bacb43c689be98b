package gin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthStatus represents the status of a health check.
type HealthStatus string

const (
	// HealthStatusHealthy indicates the service is healthy.
	HealthStatusHealthy HealthStatus = "healthy"
	// HealthStatusDegraded indicates the service is degraded but functional.
	HealthStatusDegraded HealthStatus = "degraded"
	// HealthStatusUnhealthy indicates the service is unhealthy.
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthResponse is the health endpoint body.
type HealthResponse struct {
	Status  HealthStatus           `json:"status"`
	Service string                 `json:"service"`
	Version string                 `json:"version"`
	Uptime  string                 `json:"uptime"`
	Checks  map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult represents the result of an individual health check.
type CheckResult struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// HealthChecker performs a health check.
type HealthChecker func() CheckResult

// HealthOptions configures the health endpoints.
type HealthOptions struct {
	ServiceName    string
	ServiceVersion string
	// StartTime is used for uptime; zero means registration time.
	StartTime time.Time
	Checks    map[string]HealthChecker
}

// RegisterHealthRoutes adds GET and HEAD /health. A degraded check degrades the
// overall status; an unhealthy check turns the response into a 503.
func RegisterHealthRoutes(router gin.IRoutes, opts HealthOptions) {
	if opts.StartTime.IsZero() {
		opts.StartTime = time.Now()
	}

	router.GET("/health", func(c *gin.Context) {
		response := HealthResponse{
			Status:  HealthStatusHealthy,
			Service: opts.ServiceName,
			Version: opts.ServiceVersion,
			Uptime:  time.Since(opts.StartTime).Round(time.Second).String(),
		}

		if len(opts.Checks) > 0 {
			response.Checks = make(map[string]CheckResult, len(opts.Checks))
			for name, check := range opts.Checks {
				result := check()
				response.Checks[name] = result
				response.Status = worst(response.Status, result.Status)
			}
		}

		status := http.StatusOK
		if response.Status == HealthStatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, response)
	})

	router.HEAD("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
}

func worst(a, b HealthStatus) HealthStatus {
	rank := map[HealthStatus]int{HealthStatusHealthy: 0, HealthStatusDegraded: 1, HealthStatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
