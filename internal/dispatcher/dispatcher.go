// Package dispatcher turns operator commands into scraper service requests,
// with per-target in-flight tracking and timeouts.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	infralogger "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/domain"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/normalize"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/reconciler"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/registry"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/scraper"
)

// DefaultTimeout bounds each command request.
const DefaultTimeout = 12 * time.Second

// Jobs is the reconciler write path used by commands.
type Jobs interface {
	IsRunning(sourceName string) bool
	Inject(sourceName string) (string, error)
	Promote(tentativeID, jobID string) bool
	Rollback(tentativeID string) bool
	ApplyEvent(ev domain.Event) bool
	Closed() bool
}

// Sources is the registry view used by commands.
type Sources interface {
	Get(name string) (registry.Entry, bool)
	Toggle(ctx context.Context, name string, desired bool) (registry.ToggleOutcome, error)
	SetSchedule(name, schedule string) bool
}

// Outcome is one settled command, as reported to recorders.
type Outcome struct {
	Action   Action
	Target   string
	JobID    string
	Category Category
	Err      error
	Duration time.Duration
	At       time.Time
}

// Recorder observes settled commands, e.g. for metrics or an audit trail.
type Recorder interface {
	Record(ctx context.Context, o Outcome)
}

// Pending describes an in-flight command.
type Pending struct {
	Action Action    `json:"action"`
	Target string    `json:"target"`
	Since  time.Time `json:"since"`
}

type flightKey struct {
	action Action
	target string
}

// Dispatcher executes operator commands.
type Dispatcher struct {
	api       scraper.API
	jobs      Jobs
	sources   Sources
	logger    infralogger.Logger
	timeout   time.Duration
	recorders []Recorder
	onChange  func()
	now       func() time.Time

	mu       sync.Mutex
	inFlight map[flightKey]time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout sets the per-command request timeout.
func WithTimeout(d time.Duration) Option {
	return func(x *Dispatcher) {
		if d > 0 {
			x.timeout = d
		}
	}
}

// WithRecorder adds a recorder notified of every settled command.
func WithRecorder(r Recorder) Option {
	return func(x *Dispatcher) {
		if r != nil {
			x.recorders = append(x.recorders, r)
		}
	}
}

// WithOnChange registers a callback fired when the in-flight set changes.
func WithOnChange(fn func()) Option {
	return func(x *Dispatcher) {
		x.onChange = fn
	}
}

// New creates a Dispatcher.
func New(api scraper.API, jobs Jobs, sources Sources, log infralogger.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		api:      api,
		jobs:     jobs,
		sources:  sources,
		logger:   infralogger.OrNop(log).With(infralogger.Component("dispatcher")),
		timeout:  DefaultTimeout,
		now:      time.Now,
		inFlight: make(map[flightKey]time.Time),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Execute triggers an on-demand run and returns the job id. A pending job is
// visible in the reconciler before the request is sent.
func (d *Dispatcher) Execute(ctx context.Context, name string) (string, error) {
	entry, ok := d.sources.Get(name)
	if !ok {
		return "", refuse(ActionExecute, name, fmt.Errorf("%w: %s", ErrUnknownSource, name))
	}
	if !entry.IsActive {
		return "", refuse(ActionExecute, entry.Name, ErrSourceInactive)
	}

	release, err := d.acquire(ActionExecute, entry.Key())
	if err != nil {
		return "", err
	}
	defer release()

	if d.jobs.IsRunning(entry.Name) {
		return "", refuse(ActionExecute, entry.Name, ErrAlreadyRunning)
	}

	tentativeID, err := d.jobs.Inject(entry.Name)
	if err != nil {
		return "", ErrDiscarded
	}

	start := d.now()
	cmdCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	jobID, err := d.api.ExecuteSource(cmdCtx, entry.Name)
	if d.jobs.Closed() {
		return "", ErrDiscarded
	}

	switch {
	case err == nil:
		d.jobs.Promote(tentativeID, jobID)
	case errors.Is(err, normalize.ErrSchema):
		// Accepted, but the response named no job; the next listing reports it.
		d.logger.Warn("Execute acknowledged without a job id",
			infralogger.Source(entry.Name),
			infralogger.Error(err),
		)
		jobID, err = tentativeID, nil
	default:
		d.jobs.Rollback(tentativeID)
		ce := classify(ActionExecute, entry.Name, err)
		d.settle(ctx, Outcome{Action: ActionExecute, Target: entry.Name, Category: ce.Category, Err: ce, Duration: d.now().Sub(start)})
		return "", ce
	}

	d.logger.Info("Execution dispatched", infralogger.Source(entry.Name), infralogger.JobID(jobID))
	d.settle(ctx, Outcome{Action: ActionExecute, Target: entry.Name, JobID: jobID, Duration: d.now().Sub(start)})
	return jobID, nil
}

// Cancel cancels a job and marks it cancelled locally once the backend agrees.
func (d *Dispatcher) Cancel(ctx context.Context, jobID string) error {
	if reconciler.IsTentativeID(jobID) {
		return refuse(ActionCancel, jobID, ErrNotAccepted)
	}

	release, err := d.acquire(ActionCancel, jobID)
	if err != nil {
		return err
	}
	defer release()

	start := d.now()
	cmdCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	err = d.api.CancelJob(cmdCtx, jobID)
	if d.jobs.Closed() {
		return ErrDiscarded
	}
	if err != nil {
		ce := classify(ActionCancel, jobID, err)
		d.settle(ctx, Outcome{Action: ActionCancel, Target: jobID, JobID: jobID, Category: ce.Category, Err: ce, Duration: d.now().Sub(start)})
		return ce
	}

	d.jobs.ApplyEvent(domain.Event{Kind: domain.EventJobCancelled, JobID: jobID, ReceivedAt: d.now().UTC()})
	d.logger.Info("Job cancelled", infralogger.JobID(jobID))
	d.settle(ctx, Outcome{Action: ActionCancel, Target: jobID, JobID: jobID, Duration: d.now().Sub(start)})
	return nil
}

// Toggle enables or disables a source through the registry.
func (d *Dispatcher) Toggle(ctx context.Context, name string, desired bool) (registry.ToggleOutcome, error) {
	entry, ok := d.sources.Get(name)
	if !ok {
		return registry.ToggleOutcome{}, refuse(ActionToggle, name, fmt.Errorf("%w: %s", ErrUnknownSource, name))
	}

	release, err := d.acquire(ActionToggle, entry.Key())
	if err != nil {
		return registry.ToggleOutcome{}, err
	}
	defer release()

	start := d.now()
	cmdCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	outcome, err := d.sources.Toggle(cmdCtx, entry.Name, desired)
	if d.jobs.Closed() {
		return registry.ToggleOutcome{}, ErrDiscarded
	}
	if err != nil {
		ce := classify(ActionToggle, entry.Name, err)
		if errors.Is(err, ErrUnknownSource) {
			ce = refuse(ActionToggle, entry.Name, err)
		}
		d.settle(ctx, Outcome{Action: ActionToggle, Target: entry.Name, Category: ce.Category, Err: ce, Duration: d.now().Sub(start)})
		return registry.ToggleOutcome{}, ce
	}

	if outcome.Warning != "" {
		d.logger.Warn("Source toggled locally only", infralogger.Source(entry.Name), infralogger.Bool("active", desired))
	}
	d.settle(ctx, Outcome{Action: ActionToggle, Target: entry.Name, Duration: d.now().Sub(start)})
	return outcome, nil
}

// ValidateSchedule checks a cron expression for name without dispatching
// anything. An empty expression is valid and clears the schedule.
func ValidateSchedule(name, expr string) error {
	_, err := parseSchedule(name, expr)
	return err
}

func parseSchedule(name, expr string) (cron.Schedule, error) {
	if expr = strings.TrimSpace(expr); expr == "" {
		return nil, nil
	}
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, refuse(ActionSchedule, name, fmt.Errorf("%w: %w", ErrInvalidSchedule, err))
	}
	return sched, nil
}

// Schedule sets a source's cron schedule and returns its next fire time.
// An empty expression clears the schedule and returns the zero time.
func (d *Dispatcher) Schedule(ctx context.Context, name, expr string) (time.Time, error) {
	expr = strings.TrimSpace(expr)

	sched, err := parseSchedule(name, expr)
	if err != nil {
		return time.Time{}, err
	}

	entry, ok := d.sources.Get(name)
	if !ok {
		return time.Time{}, refuse(ActionSchedule, name, fmt.Errorf("%w: %s", ErrUnknownSource, name))
	}

	release, err := d.acquire(ActionSchedule, entry.Key())
	if err != nil {
		return time.Time{}, err
	}
	defer release()

	start := d.now()
	cmdCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	_, err = d.api.UpdateSourceSchedule(cmdCtx, entry.Name, expr)
	if d.jobs.Closed() {
		return time.Time{}, ErrDiscarded
	}
	if err != nil {
		ce := classify(ActionSchedule, entry.Name, err)
		d.settle(ctx, Outcome{Action: ActionSchedule, Target: entry.Name, Category: ce.Category, Err: ce, Duration: d.now().Sub(start)})
		return time.Time{}, ce
	}

	d.sources.SetSchedule(entry.Name, expr)
	d.settle(ctx, Outcome{Action: ActionSchedule, Target: entry.Name, Duration: d.now().Sub(start)})

	if sched == nil {
		return time.Time{}, nil
	}
	return sched.Next(d.now()), nil
}

// InFlight reports whether action is in flight for target. Source targets are
// compared by canonical name.
func (d *Dispatcher) InFlight(action Action, target string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.inFlight[flightKey{action: action, target: targetKey(action, target)}]
	return ok
}

// Pending lists in-flight commands, oldest first.
func (d *Dispatcher) Pending() []Pending {
	d.mu.Lock()
	out := make([]Pending, 0, len(d.inFlight))
	for k, since := range d.inFlight {
		out = append(out, Pending{Action: k.action, Target: k.target, Since: since})
	}
	d.mu.Unlock()

	slices.SortFunc(out, func(a, b Pending) int {
		if c := a.Since.Compare(b.Since); c != 0 {
			return c
		}
		return strings.Compare(string(a.Action)+a.Target, string(b.Action)+b.Target)
	})
	return out
}

// acquire marks (action, target) in flight. The returned release clears it
// when the request settles.
func (d *Dispatcher) acquire(action Action, target string) (func(), error) {
	key := flightKey{action: action, target: targetKey(action, target)}

	d.mu.Lock()
	if _, busy := d.inFlight[key]; busy {
		d.mu.Unlock()
		return nil, inFlight(action, target)
	}
	d.inFlight[key] = d.now()
	d.mu.Unlock()
	d.notify()

	return func() {
		d.mu.Lock()
		delete(d.inFlight, key)
		d.mu.Unlock()
		d.notify()
	}, nil
}

func (d *Dispatcher) settle(ctx context.Context, o Outcome) {
	o.At = d.now().UTC()
	if o.Err != nil {
		d.logger.Warn("Command failed",
			infralogger.String("action", string(o.Action)),
			infralogger.String("target", o.Target),
			infralogger.String("category", string(o.Category)),
			infralogger.Error(o.Err),
		)
	}
	for _, r := range d.recorders {
		r.Record(context.WithoutCancel(ctx), o)
	}
}

func (d *Dispatcher) notify() {
	if d.onChange != nil {
		d.onChange()
	}
}

// targetKey canonicalizes source targets. Job ids are kept verbatim.
func targetKey(action Action, target string) string {
	if action == ActionCancel {
		return target
	}
	return domain.CanonicalName(target)
}
