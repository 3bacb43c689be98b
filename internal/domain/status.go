package domain

import (
	"fmt"
	"slices"
	"strings"
)

// JobStatus is the client-observed state of a scraper job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// validTransitions lists the single-step moves of the job lifecycle.
// Terminal states have no outgoing edges.
var validTransitions = map[JobStatus][]JobStatus{
	StatusPending: {
		StatusRunning,   // Picked up by a worker
		StatusCancelled, // Cancelled before starting
	},
	StatusRunning: {
		StatusCompleted,
		StatusFailed,
		StatusCancelled, // Operator cancel during execution
	},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

var statusAliases = map[string]JobStatus{
	"pending":     StatusPending,
	"queued":      StatusPending,
	"scheduled":   StatusPending,
	"waiting":     StatusPending,
	"running":     StatusRunning,
	"processing":  StatusRunning,
	"in_progress": StatusRunning,
	"active":      StatusRunning,
	"completed":   StatusCompleted,
	"complete":    StatusCompleted,
	"success":     StatusCompleted,
	"succeeded":   StatusCompleted,
	"done":        StatusCompleted,
	"failed":      StatusFailed,
	"error":       StatusFailed,
	"errored":     StatusFailed,
	"cancelled":   StatusCancelled,
	"canceled":    StatusCancelled,
}

// ParseJobStatus maps a backend status string (any of the known aliases,
// case-insensitive) to a JobStatus.
func ParseJobStatus(s string) (JobStatus, bool) {
	status, ok := statusAliases[strings.ToLower(strings.TrimSpace(s))]
	return status, ok
}

// IsTerminal reports whether no further transitions are possible.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// IsActive reports whether a job in this state makes its source "running".
func (s JobStatus) IsActive() bool {
	return s == StatusPending || s == StatusRunning
}

// ValidateTransition checks a single-step transition.
func ValidateTransition(from, to JobStatus) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("unknown job status: %s", from)
	}
	if slices.Contains(allowed, to) {
		return nil
	}
	return fmt.Errorf("invalid job status transition from %s to %s", from, to)
}

// Reachable reports whether to can follow from through zero or more valid
// transitions. Polling can skip intermediate states (a pending job observed
// next as completed passed through running unseen), so observations are
// checked for reachability rather than adjacency.
func Reachable(from, to JobStatus) bool {
	if from == to {
		return true
	}
	seen := map[JobStatus]bool{from: true}
	queue := []JobStatus{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range validTransitions[cur] {
			if next == to {
				return true
			}
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}
