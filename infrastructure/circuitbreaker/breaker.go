// Package circuitbreaker guards a repeated backend call, such as a listing
// poll, so that a failing backend is skipped for a cooldown instead of being
// hit on every tick.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen matches every rejection made while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// OpenError is returned instead of running the call.
type OpenError struct {
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	if e.RetryAfter <= 0 {
		return ErrCircuitOpen.Error() + ": trial call in flight"
	}
	return fmt.Sprintf("%s: retry after %v", ErrCircuitOpen, e.RetryAfter)
}

func (e *OpenError) Is(target error) bool { return target == ErrCircuitOpen }

// State is the breaker position.
type State int

const (
	StateClosed State = iota
	StateOpen
	// StateHalfOpen admits one trial call after the cooldown.
	StateHalfOpen
)

var stateNames = map[State]string{
	StateClosed:   "closed",
	StateOpen:     "open",
	StateHalfOpen: "half-open",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

const (
	defaultThreshold = 5
	defaultCooldown  = time.Minute
)

// Config configures a Breaker. Zero values take defaults.
type Config struct {
	// Threshold is the run of consecutive failures that opens the breaker.
	Threshold int
	// Cooldown is how long an open breaker rejects calls.
	Cooldown time.Duration
	// OnStateChange runs after the breaker lock is released.
	OnStateChange func(from, to State)
	Now           func() time.Time
}

// Breaker counts consecutive failures of a guarded call.
type Breaker struct {
	cfg Config

	mu        sync.Mutex
	state     State
	failures  int
	openUntil time.Time
	trial     bool
	changes   []transition
}

// New returns a closed breaker.
func New(cfg Config) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaultThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{cfg: cfg}
}

// Execute runs fn unless the breaker is open. A failure caused by ctx ending
// leaves the counters untouched.
func (b *Breaker) Execute(ctx context.Context, fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}

	err := fn()
	if err != nil && ctx.Err() != nil {
		b.settle(func() { b.trial = false })
		return err
	}

	b.settle(func() { b.record(err) })
	return err
}

func (b *Breaker) admit() error {
	var rejected error
	b.settle(func() {
		switch b.state {
		case StateClosed:
		case StateOpen:
			if wait := b.openUntil.Sub(b.cfg.Now()); wait > 0 {
				rejected = &OpenError{RetryAfter: wait}
				return
			}
			b.moveTo(StateHalfOpen)
			b.trial = true
		case StateHalfOpen:
			if b.trial {
				rejected = &OpenError{}
				return
			}
			b.trial = true
		}
	})
	return rejected
}

func (b *Breaker) record(err error) {
	b.trial = false
	if err == nil {
		b.failures = 0
		b.moveTo(StateClosed)
		return
	}

	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.cfg.Threshold {
		b.openUntil = b.cfg.Now().Add(b.cfg.Cooldown)
		b.moveTo(StateOpen)
	}
}

type transition struct{ from, to State }

func (b *Breaker) moveTo(to State) {
	if b.state == to {
		return
	}
	b.changes = append(b.changes, transition{from: b.state, to: to})
	b.state = to
}

// settle runs fn under the lock, then reports transitions without it.
func (b *Breaker) settle(fn func()) {
	b.mu.Lock()
	fn()
	changes := b.changes
	b.changes = nil
	b.mu.Unlock()

	if b.cfg.OnStateChange == nil {
		return
	}
	for _, c := range changes {
		b.cfg.OnStateChange(c.from, c.to)
	}
}

// State returns the current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the current run of consecutive failures.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}
