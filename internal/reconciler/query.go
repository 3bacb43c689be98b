package reconciler

import (
	"slices"
	"strings"

	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/domain"
)

// Snapshot is an immutable copy of the job table.
type Snapshot struct {
	Live    []domain.Job
	Recent  []domain.Job
	Running map[string]bool
}

// Snapshot returns a copy of the live and recent jobs plus the derived running map.
func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	live := r.liveJobs()
	return Snapshot{
		Live:    live,
		Recent:  slices.Clone(r.recent),
		Running: runningMap(live),
	}
}

// Live returns the live jobs ordered by start time.
func (r *Reconciler) Live() []domain.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.liveJobs()
}

// Recent returns finished jobs, newest first.
func (r *Reconciler) Recent() []domain.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.recent)
}

// Running derives canonical source name -> has a pending or running job.
func (r *Reconciler) Running() map[string]bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return runningMap(r.liveJobs())
}

// IsRunning reports whether the named source has a pending or running job.
func (r *Reconciler) IsRunning(sourceName string) bool {
	_, ok := r.ActiveJob(sourceName)
	return ok
}

// ActiveJob returns the most recently started live job of the named source.
func (r *Reconciler) ActiveJob(sourceName string) (domain.Job, bool) {
	key := domain.CanonicalName(sourceName)
	if key == "" {
		return domain.Job{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var found domain.Job
	ok := false
	for _, e := range r.live {
		if !e.job.Status.IsActive() || e.job.SourceKey() != key {
			continue
		}
		if !ok || e.job.StartedAt.After(found.StartedAt) {
			found, ok = e.job, true
		}
	}
	return found, ok
}

// Job returns a live or recently finished job by id.
func (r *Reconciler) Job(id string) (domain.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.live[id]; ok {
		return e.job, true
	}
	for _, j := range r.recent {
		if j.ID == id {
			return j, true
		}
	}
	return domain.Job{}, false
}

// Logs returns the job's log entries, oldest first.
func (r *Reconciler) Logs(jobID string) []domain.LogEntry {
	r.mu.Lock()
	buf, ok := r.logs[jobID]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return buf.Entries()
}

// liveJobs copies the live set. Callers hold the lock.
func (r *Reconciler) liveJobs() []domain.Job {
	jobs := make([]domain.Job, 0, len(r.live))
	for _, e := range r.live {
		jobs = append(jobs, e.job)
	}
	slices.SortFunc(jobs, func(a, b domain.Job) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return jobs
}

func runningMap(jobs []domain.Job) map[string]bool {
	running := make(map[string]bool)
	for _, j := range jobs {
		if key := j.SourceKey(); key != "" && j.Status.IsActive() {
			running[key] = true
		}
	}
	return running
}
