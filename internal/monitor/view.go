package monitor

import (
	"slices"
	"time"

	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/dispatcher"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/domain"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/reconciler"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/registry"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/transport"
)

// SourceRow joins a registry entry with its live job state.
type SourceRow struct {
	registry.Entry
	Key        string            `json:"key"`
	Running    bool              `json:"running"`
	ActiveJob  *domain.Job       `json:"active_job,omitempty"`
	CanExecute bool              `json:"can_execute"`
	Health     domain.HealthBand `json:"health"`
	// Pending lists commands in flight for this source.
	Pending []dispatcher.Action `json:"pending,omitempty"`
}

// View is an immutable snapshot of everything the operator sees.
type View struct {
	Sources         []SourceRow          `json:"sources"`
	Jobs            []domain.Job         `json:"jobs"`
	Recent          []domain.Job         `json:"recent"`
	Connection      transport.State      `json:"connection"`
	InFlight        []dispatcher.Pending `json:"in_flight"`
	SourcesLoadedAt time.Time            `json:"sources_loaded_at,omitzero"`
	GeneratedAt     time.Time            `json:"generated_at"`
}

// FleetCounts summarizes a view for gauges and table footers.
type FleetCounts struct {
	Sources  int
	Active   int
	Unsynced int
	Running  int
	LiveJobs int
}

// Counts returns the view's fleet totals.
func (v View) Counts() FleetCounts {
	c := FleetCounts{Sources: len(v.Sources), LiveJobs: len(v.Jobs)}
	for _, row := range v.Sources {
		if row.IsActive {
			c.Active++
		}
		if row.Unsynced {
			c.Unsynced++
		}
		if row.Running {
			c.Running++
		}
	}
	return c
}

// buildView joins the registry with the job snapshot. Sources keep registry order.
func buildView(entries []registry.Entry, jobs reconciler.Snapshot, pending []dispatcher.Pending, conn transport.State, loadedAt, now time.Time) View {
	active := make(map[string]domain.Job, len(jobs.Live))
	for _, j := range jobs.Live {
		key := j.SourceKey()
		if cur, ok := active[key]; !ok || j.StartedAt.After(cur.StartedAt) {
			active[key] = j
		}
	}

	pendingBySource := make(map[string][]dispatcher.Action)
	for _, p := range pending {
		if p.Action == dispatcher.ActionCancel {
			continue
		}
		pendingBySource[p.Target] = append(pendingBySource[p.Target], p.Action)
	}

	rows := make([]SourceRow, 0, len(entries))
	for _, e := range entries {
		key := e.Key()
		row := SourceRow{
			Entry:   e,
			Key:     key,
			Running: jobs.Running[key],
			Health:  domain.BandForScore(e.HealthScore),
			Pending: pendingBySource[key],
		}
		if j, ok := active[key]; ok {
			row.ActiveJob = &j
		}
		row.CanExecute = e.IsActive && !row.Running && !slices.Contains(row.Pending, dispatcher.ActionExecute)
		rows = append(rows, row)
	}

	return View{
		Sources:         rows,
		Jobs:            nonNil(jobs.Live),
		Recent:          nonNil(jobs.Recent),
		Connection:      conn,
		InFlight:        nonNil(pending),
		SourcesLoadedAt: loadedAt,
		GeneratedAt:     now.UTC(),
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
