// Package metrics holds the fleet monitor's Prometheus instrumentation.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/dispatcher"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/domain"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/reconciler"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/transport"
)

const (
	// Namespace prefixes every fleet monitor metric.
	Namespace = "fleet_monitor"

	outcomeOK = "ok"
)

var modes = []transport.Mode{
	transport.ModeConnecting,
	transport.ModePush,
	transport.ModePolling,
	transport.ModeStopped,
}

// Metrics holds all fleet monitor metrics.
type Metrics struct {
	// Command metrics
	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec

	// Job metrics
	JobsLive         prometheus.Gauge
	JobsFinished     *prometheus.CounterVec
	JobAnomalies     *prometheus.CounterVec
	PayloadsRejected *prometheus.CounterVec

	// Fleet metrics
	Sources         prometheus.Gauge
	SourcesActive   prometheus.Gauge
	SourcesUnsynced prometheus.Gauge

	// Transport metrics
	TransportMode     *prometheus.GaugeVec
	TransportDegraded prometheus.Gauge
	TransportFailures prometheus.Gauge
}

// New creates and registers the metrics on reg (the default registerer when nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	m := &Metrics{}

	m.initCommandMetrics(factory)
	m.initJobMetrics(factory)
	m.initFleetMetrics(factory)
	m.initTransportMetrics(factory)

	return m
}

func (m *Metrics) initCommandMetrics(factory promauto.Factory) {
	m.CommandsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "commands",
			Name:      "total",
			Help:      "Operator commands by action and outcome category",
		},
		[]string{"action", "outcome"},
	)

	m.CommandDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "commands",
			Name:      "duration_seconds",
			Help:      "Time from dispatch to backend response",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"action"},
	)
}

const unknownStatus = "unknown"

func (m *Metrics) initJobMetrics(factory promauto.Factory) {
	m.JobsLive = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "jobs",
		Name:      "live",
		Help:      "Jobs currently pending or running",
	})

	m.JobsFinished = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "jobs",
			Name:      "finished_total",
			Help:      "Jobs observed reaching a terminal status",
		},
		[]string{"status"},
	)

	m.JobAnomalies = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "jobs",
			Name:      "anomalies_total",
			Help:      "Ignored status transitions by origin",
		},
		[]string{"origin"},
	)

	m.PayloadsRejected = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "payloads",
			Name:      "rejected_total",
			Help:      "Backend records dropped by the payload adapter",
		},
		[]string{"entity"},
	)
}

func (m *Metrics) initFleetMetrics(factory promauto.Factory) {
	m.Sources = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "sources",
		Name:      "total",
		Help:      "Sources in the registry",
	})
	m.SourcesActive = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "sources",
		Name:      "active",
		Help:      "Sources flagged active",
	})
	m.SourcesUnsynced = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "sources",
		Name:      "unsynced",
		Help:      "Sources with a local change the backend has not confirmed",
	})
}

func (m *Metrics) initTransportMetrics(factory promauto.Factory) {
	m.TransportMode = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "transport",
			Name:      "mode",
			Help:      "1 for the current delivery mode, 0 otherwise",
		},
		[]string{"mode"},
	)
	m.TransportDegraded = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "transport",
		Name:      "degraded",
		Help:      "1 while the live transport is degraded",
	})
	m.TransportFailures = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "transport",
		Name:      "consecutive_failures",
		Help:      "Consecutive failed polls or unparseable frames",
	})
}

var _ dispatcher.Recorder = (*Metrics)(nil)

// Record implements dispatcher.Recorder.
func (m *Metrics) Record(_ context.Context, o dispatcher.Outcome) {
	outcome := outcomeOK
	if o.Err != nil {
		outcome = string(o.Category)
	}
	m.CommandsTotal.WithLabelValues(string(o.Action), outcome).Inc()
	m.CommandDuration.WithLabelValues(string(o.Action)).Observe(o.Duration.Seconds())
}

// ObserveAnomaly counts an ignored transition.
func (m *Metrics) ObserveAnomaly(a reconciler.Anomaly) {
	m.JobAnomalies.WithLabelValues(a.Origin).Inc()
}

// ObserveFinished counts a job reaching a terminal status. Jobs whose final
// status was never learned count as unknown.
func (m *Metrics) ObserveFinished(job domain.Job) {
	status := string(job.Status)
	if job.Unlisted {
		status = unknownStatus
	}
	m.JobsFinished.WithLabelValues(status).Inc()
}

// ObserveRejected counts backend records dropped by the payload adapter.
func (m *Metrics) ObserveRejected(entity string, n int) {
	if n > 0 {
		m.PayloadsRejected.WithLabelValues(entity).Add(float64(n))
	}
}

// SetFleet updates the fleet gauges.
func (m *Metrics) SetFleet(sources, active, unsynced, liveJobs int) {
	m.Sources.Set(float64(sources))
	m.SourcesActive.Set(float64(active))
	m.SourcesUnsynced.Set(float64(unsynced))
	m.JobsLive.Set(float64(liveJobs))
}

// SetTransport updates the transport gauges from a connection badge.
func (m *Metrics) SetTransport(s transport.State) {
	for _, mode := range modes {
		v := 0.0
		if mode == s.Mode {
			v = 1
		}
		m.TransportMode.WithLabelValues(string(mode)).Set(v)
	}
	m.TransportDegraded.Set(boolToFloat(s.Degraded))
	m.TransportFailures.Set(float64(s.ConsecutiveFailures))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
