package reconciler

import (
	"slices"
	"time"

	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/domain"
)

// observation is one report about a job. Nil pointers and zero values mean
// the report did not carry that field.
type observation struct {
	ID                string
	SourceName        string
	Status            domain.JobStatus
	Progress          *int
	ProductsFound     *int
	ErrorsCount       *int
	StartedAt         time.Time
	CompletedAt       *time.Time
	EstimatedDuration time.Duration
	At                time.Time
}

// listed converts a job from a full listing, which carries every field.
func listed(job domain.Job, at time.Time) observation {
	return observation{
		ID:                job.ID,
		SourceName:        job.SourceName,
		Status:            job.Status,
		Progress:          &job.Progress,
		ProductsFound:     &job.ProductsFound,
		ErrorsCount:       &job.ErrorsCount,
		StartedAt:         job.StartedAt,
		CompletedAt:       job.CompletedAt,
		EstimatedDuration: job.EstimatedDuration,
		At:                at,
	}
}

// observe merges obs into the table. Callers hold the lock and, for resync,
// have already moved any previous entry for obs.ID into r.live.
func (r *Reconciler) observe(obs observation, origin string, fx *effects) {
	if r.unlisted[obs.ID] {
		r.relist(obs, origin, fx)
		return
	}
	if status, done := r.finished[obs.ID]; done {
		if obs.Status != status {
			r.anomaly(Anomaly{JobID: obs.ID, From: status, To: obs.Status, Origin: origin}, fx)
		}
		return
	}

	e, ok := r.live[obs.ID]
	if !ok {
		r.discover(obs, fx)
		return
	}

	prev := e.job
	if !domain.Reachable(prev.Status, obs.Status) {
		r.anomaly(Anomaly{JobID: obs.ID, From: prev.Status, To: obs.Status, Origin: origin}, fx)
		return
	}

	next := merged(prev, obs)
	if next.Status != prev.Status {
		r.record(next.ID, levelFor(next.Status), obs.At, "Status changed from %s to %s", prev.Status, next.Status)
	}
	if next.Progress != prev.Progress && !next.Status.IsTerminal() {
		r.record(next.ID, domain.LogInfo, obs.At, "Progress %d%%, %d products found", next.Progress, next.ProductsFound)
	}
	if prev.Tentative {
		r.record(next.ID, domain.LogInfo, obs.At, "Backend reported the job")
	}

	if !sameJob(prev, next) {
		fx.changed = true
	}

	if next.Status.IsTerminal() {
		r.finish(next, fx)
		return
	}
	e.job = next
	e.injectedAt = time.Time{}
}

// relist applies a late observation to a job that left the listing. A final
// status settles it and a live one brings it back. Callers hold the lock.
func (r *Reconciler) relist(obs observation, origin string, fx *effects) {
	delete(r.unlisted, obs.ID)
	i := slices.IndexFunc(r.recent, func(j domain.Job) bool { return j.ID == obs.ID })
	if i < 0 {
		r.discover(obs, fx)
		return
	}

	prev := r.recent[i]
	if !domain.Reachable(prev.Status, obs.Status) {
		r.unlisted[obs.ID] = true
		r.anomaly(Anomaly{JobID: obs.ID, From: prev.Status, To: obs.Status, Origin: origin}, fx)
		return
	}

	r.recent = slices.Delete(r.recent, i, i+1)
	next := merged(prev, obs)
	next.Unlisted = false
	fx.changed = true

	if next.Status.IsTerminal() {
		r.record(next.ID, levelFor(next.Status), obs.At, "Job %s after leaving the listing", next.Status)
		r.finish(next, fx)
		return
	}
	r.record(next.ID, domain.LogInfo, obs.At, "Job listed again with status %s", next.Status)
	r.live[next.ID] = &entry{job: next}
}

func (r *Reconciler) discover(obs observation, fx *effects) {
	job := merged(domain.Job{
		ID:        obs.ID,
		Status:    obs.Status,
		StartedAt: obs.StartedAt,
	}, obs)
	if job.StartedAt.IsZero() {
		job.StartedAt = obs.At
	}

	r.record(job.ID, domain.LogInfo, obs.At, "Job discovered for source %q with status %s", job.SourceName, job.Status)
	fx.changed = true

	if job.Status.IsTerminal() {
		r.record(job.ID, levelFor(job.Status), obs.At, "Job %s", job.Status)
		r.finish(job, fx)
		return
	}
	r.live[job.ID] = &entry{job: job}
}

// merged applies obs to prev. Progress never decreases while the job is live
// and completion forces 100.
func merged(prev domain.Job, obs observation) domain.Job {
	next := prev
	next.Status = obs.Status
	next.Tentative = false
	next.UpdatedAt = obs.At

	if obs.SourceName != "" {
		next.SourceName = obs.SourceName
	}
	if obs.Progress != nil {
		next.Progress = max(prev.Progress, min(max(*obs.Progress, 0), 100))
	}
	if obs.ProductsFound != nil {
		next.ProductsFound = max(*obs.ProductsFound, 0)
	}
	if obs.ErrorsCount != nil {
		next.ErrorsCount = max(*obs.ErrorsCount, 0)
	}
	if prev.Tentative && !obs.StartedAt.IsZero() {
		next.StartedAt = obs.StartedAt
	}
	if obs.EstimatedDuration > 0 {
		next.EstimatedDuration = obs.EstimatedDuration
	}

	if next.Status == domain.StatusCompleted {
		next.Progress = 100
	}
	if next.Status.IsTerminal() && next.CompletedAt == nil {
		completed := obs.At
		if obs.CompletedAt != nil {
			completed = *obs.CompletedAt
		}
		next.CompletedAt = &completed
	}
	return next
}

// sameJob compares everything an operator can see, ignoring UpdatedAt.
func sameJob(a, b domain.Job) bool {
	sameCompletion := (a.CompletedAt == nil) == (b.CompletedAt == nil) &&
		(a.CompletedAt == nil || a.CompletedAt.Equal(*b.CompletedAt))
	return a.ID == b.ID &&
		a.SourceName == b.SourceName &&
		a.Status == b.Status &&
		a.Progress == b.Progress &&
		a.ProductsFound == b.ProductsFound &&
		a.ErrorsCount == b.ErrorsCount &&
		a.StartedAt.Equal(b.StartedAt) &&
		sameCompletion &&
		a.EstimatedDuration == b.EstimatedDuration &&
		a.Tentative == b.Tentative &&
		a.Unlisted == b.Unlisted
}

func levelFor(status domain.JobStatus) domain.LogLevel {
	switch status {
	case domain.StatusCompleted:
		return domain.LogSuccess
	case domain.StatusFailed:
		return domain.LogError
	case domain.StatusCancelled:
		return domain.LogWarning
	default:
		return domain.LogInfo
	}
}
