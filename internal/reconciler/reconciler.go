// Package reconciler folds job observations from polling, the push channel and
// local commands into the single authoritative live job table.
package reconciler

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	infralogger "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/domain"
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("reconciler closed")

const (
	// DefaultRecentCapacity bounds the recent (finished) jobs list.
	DefaultRecentCapacity = 20
	// DefaultTentativeTTL is how long an unconfirmed execute survives resyncs.
	DefaultTentativeTTL = time.Minute

	// finishedMemory bounds how many terminal job ids are remembered so late
	// observations for them can be recognised.
	finishedMemory = 1000

	// TentativePrefix marks locally injected job ids.
	TentativePrefix = "tentative:"
)

// Config configures a Reconciler. Zero values select defaults.
type Config struct {
	LogCapacity    int
	RecentCapacity int
	TentativeTTL   time.Duration
}

func (c *Config) setDefaults() {
	if c.LogCapacity <= 0 {
		c.LogCapacity = domain.DefaultLogCapacity
	}
	if c.RecentCapacity <= 0 {
		c.RecentCapacity = DefaultRecentCapacity
	}
	if c.TentativeTTL <= 0 {
		c.TentativeTTL = DefaultTentativeTTL
	}
}

// Anomaly describes an observation that was ignored because it contradicts
// the job lifecycle, such as a completed job reported running again.
type Anomaly struct {
	JobID  string
	From   domain.JobStatus
	To     domain.JobStatus
	Origin string
}

// Reconciler is the only writer of job state. All reads return copies.
type Reconciler struct {
	mu     sync.Mutex
	cfg    Config
	hooks  Hooks
	logger infralogger.Logger
	now    func() time.Time

	live          map[string]*entry
	recent        []domain.Job // newest first
	finished      map[string]domain.JobStatus
	finishedOrder []string
	// unlisted holds recent jobs awaiting Settle or Abandon.
	unlisted      map[string]bool
	logs          map[string]*domain.LogBuffer
	closed        bool
}

type entry struct {
	job domain.Job
	// injectedAt is set while the job is tentative.
	injectedAt time.Time
}

// effects collects notifications raised under the lock.
type effects struct {
	changed   bool
	finished  []domain.Job
	unlisted  []domain.Job
	anomalies []Anomaly
}

// New creates a Reconciler.
func New(cfg Config, log infralogger.Logger, opts ...Option) *Reconciler {
	cfg.setDefaults()
	r := &Reconciler{
		cfg:      cfg,
		logger:   infralogger.OrNop(log).With(infralogger.Component("reconciler")),
		now:      func() time.Time { return time.Now().UTC() },
		live:     make(map[string]*entry),
		finished: make(map[string]domain.JobStatus),
		unlisted: make(map[string]bool),
		logs:     make(map[string]*domain.LogBuffer),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ApplyEvent folds one event into the job table and reports whether anything
// changed. job_started asks for a full resync; unknown kinds are ignored.
func (r *Reconciler) ApplyEvent(ev domain.Event) bool {
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = r.now()
	}

	var status domain.JobStatus
	switch ev.Kind {
	case domain.EventJobStarted:
		if r.isClosed() {
			return false
		}
		if r.hooks.OnResyncRequested != nil {
			r.hooks.OnResyncRequested(ev)
		}
		return false
	case domain.EventJobsSnapshot:
		return r.resync(ev.Jobs, ev.ReceivedAt)
	case domain.EventJobProgress:
		status = domain.StatusRunning
	case domain.EventJobCompleted:
		status = domain.StatusCompleted
	case domain.EventJobFailed:
		status = domain.StatusFailed
	case domain.EventJobCancelled:
		status = domain.StatusCancelled
	default:
		r.logger.Debug("Ignoring unknown event kind", infralogger.String("kind", string(ev.Kind)))
		return false
	}

	if ev.JobID == "" {
		return false
	}

	obs := observation{
		ID:            ev.JobID,
		SourceName:    ev.SourceName,
		Status:        status,
		Progress:      ev.Progress,
		ProductsFound: ev.ProductsFound,
		ErrorsCount:   ev.ErrorsCount,
		At:            ev.ReceivedAt,
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	var fx effects
	r.observe(obs, "event:"+string(ev.Kind), &fx)
	r.expireTentative(ev.ReceivedAt, &fx)
	r.mu.Unlock()

	r.emit(fx)
	return fx.changed
}

// Resync replaces the live set with jobs, a complete listing received now.
// Applying the same listing twice leaves the state unchanged. Live jobs the
// listing omits move to the recent list as unlisted, except tentative ones
// within their TTL.
func (r *Reconciler) Resync(jobs []domain.Job) bool {
	return r.resync(jobs, r.now())
}

func (r *Reconciler) resync(jobs []domain.Job, at time.Time) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}

	var fx effects
	previous := r.live
	r.live = make(map[string]*entry, len(jobs))

	for _, job := range jobs {
		if job.ID == "" {
			continue
		}
		if e, ok := previous[job.ID]; ok {
			r.live[job.ID] = e
			delete(previous, job.ID)
		}
		r.observe(listed(job, at), "resync", &fx)
	}

	for id, e := range previous {
		if e.job.Tentative {
			r.live[id] = e
			continue
		}
		r.retire(e.job, at, &fx)
	}

	r.expireTentative(at, &fx)
	r.mu.Unlock()

	r.emit(fx)
	return fx.changed
}

// Settle records the final outcome of an unlisted job, typically from the
// history endpoint. It reports whether the job was awaiting one.
func (r *Reconciler) Settle(job domain.Job) bool {
	if !job.Status.IsTerminal() {
		return false
	}

	r.mu.Lock()
	if r.closed || !r.unlisted[job.ID] {
		r.mu.Unlock()
		return false
	}
	var fx effects
	r.relist(listed(job, r.now()), "settle", &fx)
	r.mu.Unlock()

	r.emit(fx)
	return fx.changed
}

// Abandon gives up on the outcome of an unlisted job. It stays in the recent
// list flagged unlisted and later reports about it are ignored.
func (r *Reconciler) Abandon(jobID string) bool {
	r.mu.Lock()
	if r.closed || !r.unlisted[jobID] {
		r.mu.Unlock()
		return false
	}
	delete(r.unlisted, jobID)

	var fx effects
	i := slices.IndexFunc(r.recent, func(j domain.Job) bool { return j.ID == jobID })
	if i >= 0 {
		job := r.recent[i]
		r.record(jobID, domain.LogWarning, r.now(), "Final status unknown")
		r.remember(job, &fx)
	}
	r.mu.Unlock()

	r.emit(fx)
	return i >= 0
}

// Close marks the reconciler as torn down. Every later write is discarded.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

// Closed reports whether Close has been called.
func (r *Reconciler) Closed() bool {
	return r.isClosed()
}

func (r *Reconciler) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// finish moves a terminal job to the recent list. Callers hold the lock.
func (r *Reconciler) finish(job domain.Job, fx *effects) {
	delete(r.live, job.ID)
	r.pushRecent(job)
	r.remember(job, fx)
}

// retire moves a live job the listing dropped to the recent list. Its last
// observed status stands until Settle or Abandon. Callers hold the lock.
func (r *Reconciler) retire(job domain.Job, at time.Time, fx *effects) {
	job.Unlisted = true
	job.UpdatedAt = at
	r.logger.Debug("Job no longer listed",
		infralogger.JobID(job.ID),
		infralogger.String("status", string(job.Status)),
	)
	r.record(job.ID, domain.LogWarning, at, "Job left the active listing as %s", job.Status)

	r.unlisted[job.ID] = true
	r.pushRecent(job)
	fx.changed = true
	fx.unlisted = append(fx.unlisted, job)
}

// pushRecent prepends job to the bounded recent list. Callers hold the lock.
func (r *Reconciler) pushRecent(job domain.Job) {
	r.recent = slices.Insert(r.recent, 0, job)
	if len(r.recent) <= r.cfg.RecentCapacity {
		return
	}
	for _, evicted := range r.recent[r.cfg.RecentCapacity:] {
		if r.unlisted[evicted.ID] {
			delete(r.unlisted, evicted.ID)
			delete(r.logs, evicted.ID)
		}
	}
	r.recent = r.recent[:r.cfg.RecentCapacity]
}

// remember marks job as done so later observations are checked against its
// status. Callers hold the lock.
func (r *Reconciler) remember(job domain.Job, fx *effects) {
	r.finished[job.ID] = job.Status
	r.finishedOrder = append(r.finishedOrder, job.ID)
	if len(r.finishedOrder) > finishedMemory {
		evicted := r.finishedOrder[0]
		r.finishedOrder = r.finishedOrder[1:]
		delete(r.finished, evicted)
		delete(r.logs, evicted)
	}

	fx.changed = true
	fx.finished = append(fx.finished, job)
}

func (r *Reconciler) anomaly(a Anomaly, fx *effects) {
	r.logger.Warn("Ignoring job observation that contradicts its lifecycle",
		infralogger.JobID(a.JobID),
		infralogger.String("from", string(a.From)),
		infralogger.String("to", string(a.To)),
		infralogger.String("origin", a.Origin),
	)
	fx.anomalies = append(fx.anomalies, a)
}

// expireTentative drops tentative jobs older than the TTL. Callers hold the lock.
func (r *Reconciler) expireTentative(now time.Time, fx *effects) {
	for id, e := range r.live {
		if !e.job.Tentative || now.Sub(e.injectedAt) <= r.cfg.TentativeTTL {
			continue
		}
		r.logger.Warn("Tentative job expired before the backend reported it",
			infralogger.JobID(id),
			infralogger.Source(e.job.SourceName),
		)
		delete(r.live, id)
		delete(r.logs, id)
		fx.changed = true
	}
}

// record appends a job log entry. Callers hold the lock.
func (r *Reconciler) record(jobID string, level domain.LogLevel, at time.Time, format string, args ...any) {
	buf, ok := r.logs[jobID]
	if !ok {
		buf = domain.NewLogBuffer(r.cfg.LogCapacity)
		r.logs[jobID] = buf
	}
	buf.Append(domain.LogEntry{
		Timestamp: at,
		Level:     level,
		Message:   fmt.Sprintf(format, args...),
		JobID:     jobID,
	})
}

func (r *Reconciler) emit(fx effects) {
	for _, a := range fx.anomalies {
		if r.hooks.OnAnomaly != nil {
			r.hooks.OnAnomaly(a)
		}
	}
	for _, job := range fx.finished {
		if r.hooks.OnFinished != nil {
			r.hooks.OnFinished(job)
		}
	}
	for _, job := range fx.unlisted {
		if r.hooks.OnUnlisted != nil {
			r.hooks.OnUnlisted(job)
		}
	}
	if fx.changed && r.hooks.OnChange != nil {
		r.hooks.OnChange()
	}
}
