package reconciler

import (
	"strings"

	"github.com/google/uuid"

	infralogger "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/domain"
)

// Inject adds a pending job for sourceName ahead of the backend's answer to
// an execute request, and returns its tentative id.
func (r *Reconciler) Inject(sourceName string) (string, error) {
	now := r.now()
	id := TentativePrefix + uuid.NewString()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", ErrClosed
	}
	r.live[id] = &entry{
		job: domain.Job{
			ID:         id,
			SourceName: sourceName,
			Status:     domain.StatusPending,
			StartedAt:  now,
			Tentative:  true,
			UpdatedAt:  now,
		},
		injectedAt: now,
	}
	r.record(id, domain.LogInfo, now, "Execution requested for source %q", sourceName)
	r.mu.Unlock()

	r.emit(effects{changed: true})
	return id, nil
}

// Promote re-keys a tentative job under the id the backend assigned. The job
// stays tentative until a listing or event reports it. If the backend job is
// already known the tentative copy is dropped.
func (r *Reconciler) Promote(tentativeID, jobID string) bool {
	now := r.now()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	e, ok := r.live[tentativeID]
	if !ok || !e.job.Tentative {
		r.mu.Unlock()
		return false
	}
	delete(r.live, tentativeID)

	_, known := r.live[jobID]
	_, done := r.finished[jobID]
	if known || done {
		delete(r.logs, tentativeID)
	} else {
		if buf, hasLogs := r.logs[tentativeID]; hasLogs {
			delete(r.logs, tentativeID)
			r.logs[jobID] = buf
		}
		e.job.ID = jobID
		e.injectedAt = now
		r.live[jobID] = e
		r.record(jobID, domain.LogInfo, now, "Backend accepted execution as job %s", jobID)
	}
	r.mu.Unlock()

	r.logger.Debug("Promoted tentative job",
		infralogger.String("tentative_id", tentativeID),
		infralogger.JobID(jobID),
	)
	r.emit(effects{changed: true})
	return true
}

// Rollback removes a tentative job whose execute request failed.
func (r *Reconciler) Rollback(tentativeID string) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	e, ok := r.live[tentativeID]
	if !ok || !e.job.Tentative || !IsTentativeID(tentativeID) {
		r.mu.Unlock()
		return false
	}
	delete(r.live, tentativeID)
	delete(r.logs, tentativeID)
	r.mu.Unlock()

	r.emit(effects{changed: true})
	return true
}

// IsTentativeID reports whether id was minted by Inject.
func IsTentativeID(id string) bool {
	return strings.HasPrefix(id, TentativePrefix)
}
