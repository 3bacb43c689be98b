package domain

import "time"

// Source is a configured scraping target.
type Source struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Category    string `json:"category"`
	Engine      string `json:"engine"`
	IsActive    bool   `json:"is_active"`
	// HealthScore is the backend's 0-100 quality signal.
	HealthScore int `json:"health_score"`
	// SuccessRate is the fraction (0.0-1.0) of historically successful runs.
	SuccessRate float64 `json:"success_rate"`
	// ProductsCount is reported by the backend as-is; whether it is the last
	// run's count or a cumulative total depends on the backend version.
	ProductsCount int        `json:"products_count"`
	LastRun       *time.Time `json:"last_run"`
	Schedule      string     `json:"schedule,omitempty"`
}

// Key returns the canonical name used to correlate the source with its jobs.
func (s Source) Key() string {
	return CanonicalName(s.Name)
}

// HealthBand buckets a health score for display.
type HealthBand string

const (
	HealthHealthy  HealthBand = "healthy"
	HealthWarning  HealthBand = "warning"
	HealthCritical HealthBand = "critical"
)

// Health score thresholds.
const (
	healthyThreshold = 80
	warningThreshold = 50
)

// BandForScore returns the display band for a 0-100 health score.
func BandForScore(score int) HealthBand {
	switch {
	case score >= healthyThreshold:
		return HealthHealthy
	case score >= warningThreshold:
		return HealthWarning
	default:
		return HealthCritical
	}
}
