package domain

import (
	"errors"
	"fmt"
	"time"
)

// HistoryRecord is one finished run as reported by the history endpoint.
type HistoryRecord struct {
	JobID         string        `json:"job_id"`
	SourceName    string        `json:"source_name"`
	Status        JobStatus     `json:"status"`
	StartedAt     time.Time     `json:"started_at"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
	ProductsFound int           `json:"products_found"`
	ErrorsCount   int           `json:"errors_count"`
	Duration      time.Duration `json:"duration"`
}

// HistoryPage is one page of history records.
type HistoryPage struct {
	Items    []HistoryRecord `json:"items"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

// HistoryQuery filters the history endpoint. Zero values are omitted.
type HistoryQuery struct {
	Page       int
	PageSize   int
	TargetName string
	Status     JobStatus
	From       time.Time
	To         time.Time
}

// Default history paging.
const (
	DefaultHistoryPageSize = 20
	MaxHistoryPageSize     = 200
)

// Normalize clamps paging to sane bounds.
func (q HistoryQuery) Normalize() HistoryQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultHistoryPageSize
	}
	if q.PageSize > MaxHistoryPageSize {
		q.PageSize = MaxHistoryPageSize
	}
	return q
}

// ErrInvalidRange is returned when To is before From.
var ErrInvalidRange = errors.New("to date before from date")

// Validate checks the date range.
func (q HistoryQuery) Validate() error {
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return ErrInvalidRange
	}
	return nil
}

// ParseHistoryDate accepts an RFC 3339 timestamp or a plain date and returns
// it in UTC. An empty string is the zero time.
func ParseHistoryDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("want RFC 3339 or YYYY-MM-DD, got %q", raw)
}
