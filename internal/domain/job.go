package domain

import "time"

// Job is one execution attempt of a Source.
type Job struct {
	ID         string    `json:"job_id"`
	SourceName string    `json:"source_name"`
	Status     JobStatus `json:"status"`
	// Progress is 0-100 and only meaningful while running.
	Progress      int        `json:"progress"`
	ProductsFound int        `json:"products_found"`
	ErrorsCount   int        `json:"errors_count"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	// EstimatedDuration is zero when the backend gives no estimate.
	EstimatedDuration time.Duration `json:"estimated_duration,omitempty"`
	// Tentative marks a job injected locally by an execute command that the
	// backend has not reported yet.
	Tentative bool `json:"tentative,omitempty"`
	// Unlisted marks a job that left the active listing without a final
	// status. Status is the last one observed.
	Unlisted  bool      `json:"unlisted,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SourceKey returns the canonical name of the job's source.
func (j Job) SourceKey() string {
	return CanonicalName(j.SourceName)
}

// EventKind identifies a push-channel message.
type EventKind string

const (
	EventJobProgress  EventKind = "job_progress"
	EventJobCompleted EventKind = "job_completed"
	EventJobStarted   EventKind = "job_started"
	EventJobFailed    EventKind = "job_failed"
	EventJobCancelled EventKind = "job_cancelled"
	// EventJobsSnapshot carries a full job listing in Jobs.
	EventJobsSnapshot EventKind = "jobs_snapshot"
)

// Event is a normalized job event, from the push channel or produced locally.
// Pointer fields are nil when the message did not carry them.
type Event struct {
	Kind          EventKind
	JobID         string
	SourceName    string
	Progress      *int
	ProductsFound *int
	ErrorsCount   *int
	Jobs          []Job
	ReceivedAt    time.Time
}
