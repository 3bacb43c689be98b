// Package registry holds the operator's view of configured scraper sources.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	infralogger "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/retry"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/domain"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/scraper"
)

// ErrUnknownSource is returned for names that match no loaded source.
var ErrUnknownSource = errors.New("unknown source")

// UnsyncedWarning is reported when a toggle could only be applied locally.
const UnsyncedWarning = "backend does not support toggling sources; change applied locally only"

// API is the part of the scraper service the registry talks to.
type API interface {
	ListSources(ctx context.Context) ([]domain.Source, error)
	UpdateSourceActive(ctx context.Context, name string, active bool) (*domain.Source, error)
}

// Entry is a source plus local bookkeeping.
type Entry struct {
	domain.Source
	// Unsynced marks a local is_active change the backend has not confirmed.
	Unsynced bool `json:"unsynced"`
}

// ToggleOutcome describes how a toggle was applied.
type ToggleOutcome struct {
	Entry    Entry  `json:"entry"`
	Unsynced bool   `json:"unsynced"`
	Warning  string `json:"warning,omitempty"`
}

// Registry is the loaded source list. Safe for concurrent use.
type Registry struct {
	api    API
	logger infralogger.Logger

	mu       sync.RWMutex
	entries  []Entry
	index    map[string]int
	loadedAt time.Time
	onChange func()
}

// Option configures a Registry.
type Option func(*Registry)

// WithOnChange registers a callback fired after the list changes.
func WithOnChange(fn func()) Option {
	return func(r *Registry) {
		r.onChange = fn
	}
}

// New creates an empty Registry.
func New(api API, log infralogger.Logger, opts ...Option) *Registry {
	r := &Registry{
		api:    api,
		logger: infralogger.OrNop(log).With(infralogger.Component("registry")),
		index:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load fetches the source list and replaces the loaded list wholesale. On
// failure the last known list is kept. Entries with an unsynced local change
// keep the local value until the backend reports the same one.
func (r *Registry) Load(ctx context.Context) ([]Entry, error) {
	sources, err := r.api.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}

	r.mu.Lock()
	pending := make(map[string]bool)
	for _, e := range r.entries {
		if e.Unsynced {
			pending[e.Key()] = e.IsActive
		}
	}

	entries := make([]Entry, 0, len(sources))
	index := make(map[string]int, len(sources))
	for _, src := range sources {
		key := src.Key()
		if _, dup := index[key]; dup || key == "" {
			r.logger.Warn("Skipping source with duplicate or empty name", infralogger.Source(src.Name))
			continue
		}

		entry := Entry{Source: src}
		if local, ok := pending[key]; ok {
			if local == src.IsActive {
				r.logger.Info("Backend caught up with local toggle", infralogger.Source(src.Name))
			} else {
				entry.IsActive = local
				entry.Unsynced = true
			}
		}

		index[key] = len(entries)
		entries = append(entries, entry)
	}

	r.entries = entries
	r.index = index
	r.loadedAt = time.Now()
	out := cloneEntries(entries)
	r.mu.Unlock()

	r.logger.Debug("Loaded sources", infralogger.Int("count", len(out)))
	r.notify()
	return out, nil
}

// LoadWithRetry is Load with exponential backoff on transport failures.
func (r *Registry) LoadWithRetry(ctx context.Context, cfg retry.Config) ([]Entry, error) {
	if cfg.IsRetryable == nil {
		cfg.IsRetryable = scraper.IsTransport
	}

	var entries []Entry
	err := retry.Retry(ctx, cfg, func() error {
		var loadErr error
		entries, loadErr = r.Load(ctx)
		if loadErr != nil {
			r.logger.Warn("Source load failed", infralogger.Error(loadErr))
		}
		return loadErr
	})
	return entries, err
}

// Toggle sets a source's activation. The displayed state changes only once
// the backend acknowledges. A backend without the endpoint (404/405) gets a
// local-only change marked unsynced and a warning instead of an error.
func (r *Registry) Toggle(ctx context.Context, name string, desired bool) (ToggleOutcome, error) {
	entry, ok := r.Get(name)
	if !ok {
		return ToggleOutcome{}, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}

	updated, err := r.api.UpdateSourceActive(ctx, entry.Name, desired)
	switch {
	case err == nil:
	case scraper.IsUnimplemented(err):
		r.logger.Warn("Toggle endpoint not available, applying locally",
			infralogger.Source(entry.Name),
			infralogger.Bool("desired", desired),
		)
		applied, applyErr := r.apply(entry.Key(), func(e *Entry) {
			e.IsActive = desired
			e.Unsynced = true
		})
		if applyErr != nil {
			return ToggleOutcome{}, applyErr
		}
		return ToggleOutcome{Entry: applied, Unsynced: true, Warning: UnsyncedWarning}, nil
	default:
		return ToggleOutcome{}, fmt.Errorf("toggle source %s: %w", entry.Name, err)
	}

	applied, err := r.apply(entry.Key(), func(e *Entry) {
		if updated != nil && updated.Key() == e.Key() {
			e.Source = mergeAck(e.Source, *updated)
		} else {
			e.IsActive = desired
		}
		e.Unsynced = false
	})
	if err != nil {
		return ToggleOutcome{}, err
	}
	return ToggleOutcome{Entry: applied}, nil
}

// SetSchedule records a schedule the backend has acknowledged.
func (r *Registry) SetSchedule(name, schedule string) bool {
	_, err := r.apply(domain.CanonicalName(name), func(e *Entry) {
		e.Schedule = schedule
	})
	return err == nil
}

// Entries returns a copy of the loaded list in backend order.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneEntries(r.entries)
}

// Get looks a source up by any spelling of its name.
func (r *Registry) Get(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[domain.CanonicalName(name)]
	if !ok {
		return Entry{}, false
	}
	return cloneEntry(r.entries[i]), true
}

// LoadedAt returns when the list was last replaced; zero before the first load.
func (r *Registry) LoadedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loadedAt
}

func (r *Registry) apply(key string, fn func(*Entry)) (Entry, error) {
	r.mu.Lock()
	i, ok := r.index[key]
	if !ok {
		r.mu.Unlock()
		return Entry{}, fmt.Errorf("%w: %s", ErrUnknownSource, key)
	}
	fn(&r.entries[i])
	out := cloneEntry(r.entries[i])
	r.mu.Unlock()

	r.notify()
	return out, nil
}

func (r *Registry) notify() {
	if r.onChange != nil {
		r.onChange()
	}
}

// mergeAck overlays an acknowledged source on the current one. Backends often
// echo a partial record, so empty fields keep their loaded values. The API
// fills IsActive with the requested value when the ack omits it.
func mergeAck(cur, ack domain.Source) domain.Source {
	next := cur
	next.IsActive = ack.IsActive
	if ack.DisplayName != "" && ack.DisplayName != ack.Name {
		next.DisplayName = ack.DisplayName
	}
	if ack.Category != "" {
		next.Category = ack.Category
	}
	if ack.Engine != "" {
		next.Engine = ack.Engine
	}
	if ack.HealthScore != 0 {
		next.HealthScore = ack.HealthScore
	}
	if ack.SuccessRate != 0 {
		next.SuccessRate = ack.SuccessRate
	}
	if ack.ProductsCount != 0 {
		next.ProductsCount = ack.ProductsCount
	}
	if ack.LastRun != nil {
		next.LastRun = ack.LastRun
	}
	if ack.Schedule != "" {
		next.Schedule = ack.Schedule
	}
	return next
}

func cloneEntry(e Entry) Entry {
	if e.LastRun != nil {
		t := *e.LastRun
		e.LastRun = &t
	}
	return e
}

func cloneEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = cloneEntry(e)
	}
	return out
}
