package metrics_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/dispatcher"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/domain"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/metrics"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/reconciler"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/transport"
)

// value sums a gathered metric family, optionally filtered by one label.
func value(t *testing.T, reg *prometheus.Registry, name, label, want string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	var total float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			if label != "" && !hasLabel(m.GetLabel(), label, want) {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				total += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				total += m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				total += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return total
}

func hasLabel[L interface {
	GetName() string
	GetValue() string
}](labels []L, name, want string) bool {
	for _, l := range labels {
		if l.GetName() == name && l.GetValue() == want {
			return true
		}
	}
	return false
}

func TestRecord_CountsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.Record(context.Background(), dispatcher.Outcome{Action: dispatcher.ActionExecute, Duration: time.Second})
	m.Record(context.Background(), dispatcher.Outcome{
		Action:   dispatcher.ActionExecute,
		Category: dispatcher.CategoryUnavailable,
		Err:      errors.New("down"),
	})

	assert.InDelta(t, 1, value(t, reg, "fleet_monitor_commands_total", "outcome", "ok"), 0)
	assert.InDelta(t, 1, value(t, reg, "fleet_monitor_commands_total", "outcome", "unavailable"), 0)
	assert.InDelta(t, 2, value(t, reg, "fleet_monitor_commands_duration_seconds", "action", "execute"), 0)
}

func TestJobCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.ObserveAnomaly(reconciler.Anomaly{JobID: "j1", From: domain.StatusCompleted, To: domain.StatusRunning, Origin: "poll"})
	m.ObserveFinished(domain.Job{ID: "j1", Status: domain.StatusFailed})
	m.ObserveFinished(domain.Job{ID: "j2", Status: domain.StatusRunning, Unlisted: true})
	m.ObserveRejected("source", 2)
	m.ObserveRejected("job", 0)

	assert.InDelta(t, 1, value(t, reg, "fleet_monitor_jobs_anomalies_total", "origin", "poll"), 0)
	assert.InDelta(t, 1, value(t, reg, "fleet_monitor_jobs_finished_total", "status", "failed"), 0)
	assert.InDelta(t, 1, value(t, reg, "fleet_monitor_jobs_finished_total", "status", "unknown"), 0)
	assert.InDelta(t, 2, value(t, reg, "fleet_monitor_payloads_rejected_total", "", ""), 0)
}

func TestSetTransport_OneHotMode(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.SetTransport(transport.State{Mode: transport.ModePolling, Degraded: true, ConsecutiveFailures: 3})

	assert.InDelta(t, 1, value(t, reg, "fleet_monitor_transport_mode", "mode", "polling"), 0)
	assert.InDelta(t, 0, value(t, reg, "fleet_monitor_transport_mode", "mode", "push"), 0)
	assert.InDelta(t, 1, value(t, reg, "fleet_monitor_transport_degraded", "", ""), 0)
	assert.InDelta(t, 3, value(t, reg, "fleet_monitor_transport_consecutive_failures", "", ""), 0)
}

func TestSetFleet(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.SetFleet(5, 3, 1, 2)

	assert.InDelta(t, 5, value(t, reg, "fleet_monitor_sources_total", "", ""), 0)
	assert.InDelta(t, 3, value(t, reg, "fleet_monitor_sources_active", "", ""), 0)
	assert.InDelta(t, 1, value(t, reg, "fleet_monitor_sources_unsynced", "", ""), 0)
	assert.InDelta(t, 2, value(t, reg, "fleet_monitor_jobs_live", "", ""), 0)
}
