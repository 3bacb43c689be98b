package scraper

import (
	"context"
	"net/http"

	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/domain"
)

//go:generate mockgen -source=api.go -destination=../../testutils/mocks/scraper/mock_api.go -package=scraper

// API is the subset of the scraper service used by the monitor.
type API interface {
	ListSources(ctx context.Context) ([]domain.Source, error)
	ListJobs(ctx context.Context) ([]domain.Job, error)
	ExecuteSource(ctx context.Context, name string) (string, error)
	UpdateSourceActive(ctx context.Context, name string, active bool) (*domain.Source, error)
	UpdateSourceSchedule(ctx context.Context, name, schedule string) (*domain.Source, error)
	CancelJob(ctx context.Context, jobID string) error
	ListHistory(ctx context.Context, query domain.HistoryQuery) (domain.HistoryPage, error)
	PushHeaders() (http.Header, error)
}

var _ API = (*Client)(nil)
