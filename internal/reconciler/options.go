package reconciler

import (
	"time"

	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/domain"
)

// Option is a functional option for configuring the Reconciler.
type Option func(*Reconciler)

// WithClock overrides the time source used for receipt timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		r.now = now
	}
}

// WithHooks registers change callbacks. Hooks run on the writer's goroutine
// after the write lock is released.
func WithHooks(h Hooks) Option {
	return func(r *Reconciler) {
		r.hooks = h
	}
}

// Hooks are notified after writes.
type Hooks struct {
	// OnChange fires after any write that changed the live or recent set.
	OnChange func()
	// OnResyncRequested fires for job_started events. It must not block.
	OnResyncRequested func(ev domain.Event)
	// OnAnomaly fires for observations that contradict the job lifecycle.
	OnAnomaly func(a Anomaly)
	// OnFinished fires once per job entering a terminal status, and once for
	// an unlisted job given up by Abandon.
	OnFinished func(job domain.Job)
	// OnUnlisted fires when a live job leaves the listing without a terminal
	// status. Settle or Abandon closes it. It must not block.
	OnUnlisted func(job domain.Job)
}
