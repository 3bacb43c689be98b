package monitor

import (
	"time"

	"github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/sse"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/audit"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/metrics"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/transport"
)

// Option configures a Monitor.
type Option func(*Monitor)

// WithEvents publishes view, connection and command events to p.
func WithEvents(p sse.Publisher) Option {
	return func(m *Monitor) {
		m.events = p
	}
}

// WithMetrics records commands, jobs and transport state.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Monitor) {
		m.metrics = mt
	}
}

// WithAudit appends command outcomes and finished jobs to the audit stream.
// A nil publisher disables auditing.
func WithAudit(p *audit.Publisher) Option {
	return func(m *Monitor) {
		m.audit = p
	}
}

// WithDialer overrides the push channel dialer.
func WithDialer(d transport.Dialer) Option {
	return func(m *Monitor) {
		m.dialer = d
	}
}

// WithOnView registers a callback receiving every new view, e.g. for a
// terminal renderer.
func WithOnView(fn func(View)) Option {
	return func(m *Monitor) {
		m.onView = fn
	}
}

// WithClock overrides the view timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}
