package normalize

import (
	"time"

	"github.com/tidwall/gjson"

	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/domain"
)

// Frame types that are translated into canonical kinds.
const (
	frameJobUpdate   = "job_update"
	frameInitialJobs = "initial_jobs"
)

// Event normalizes a push-channel frame. The frame must be a JSON object with
// a string "type". Unknown types are returned with no error so the caller can
// ignore them.
func Event(raw []byte, receivedAt time.Time) (domain.Event, error) {
	if !gjson.ValidBytes(raw) {
		return domain.Event{}, schemaErr("event", "invalid JSON")
	}

	r := gjson.ParseBytes(raw)
	if !r.IsObject() {
		return domain.Event{}, schemaErr("event", "frame is not an object")
	}

	typ := r.Get("type")
	if typ.Type != gjson.String || typ.Str == "" {
		return domain.Event{}, schemaErr("event", "missing type")
	}

	ev := domain.Event{Kind: domain.EventKind(typ.Str), ReceivedAt: receivedAt}
	payload := unwrap(r, "job", "data", "payload")

	switch typ.Str {
	case string(domain.EventJobsSnapshot), frameInitialJobs:
		return snapshotEvent(r, ev)
	case frameJobUpdate:
		ev.Kind = kindForStatus(str(payload, jobStatusKeys))
	}

	switch ev.Kind {
	case domain.EventJobProgress, domain.EventJobCompleted, domain.EventJobStarted,
		domain.EventJobFailed, domain.EventJobCancelled:
	default:
		return ev, nil
	}

	ev.JobID = str(payload, jobIDKeys)
	ev.SourceName = str(payload, jobSourceKeys)
	ev.Progress = optionalInt(payload, jobProgressKeys)
	if ev.Progress != nil {
		*ev.Progress = clamp(*ev.Progress, 0, 100)
	}
	ev.ProductsFound = optionalInt(payload, jobProductsKeys)
	ev.ErrorsCount = optionalInt(payload, jobErrorsKeys)

	if ev.JobID == "" && ev.Kind != domain.EventJobStarted {
		return domain.Event{}, schemaErr("event", string(ev.Kind)+" without job id")
	}
	return ev, nil
}

func snapshotEvent(r gjson.Result, ev domain.Event) (domain.Event, error) {
	items, ok := list(r, []string{"jobs", "data", "items"})
	if !ok {
		return domain.Event{}, schemaErr("event", "snapshot without job list")
	}
	jobs, _, err := jobsFrom(items, ev.ReceivedAt)
	if err != nil {
		return domain.Event{}, err
	}
	ev.Kind = domain.EventJobsSnapshot
	ev.Jobs = jobs
	return ev, nil
}

// kindForStatus maps the status carried by a generic job_update frame to the
// event kind describing that change.
func kindForStatus(raw string) domain.EventKind {
	status, ok := domain.ParseJobStatus(raw)
	if !ok {
		return domain.EventKind(frameJobUpdate)
	}
	switch status {
	case domain.StatusPending:
		return domain.EventJobStarted
	case domain.StatusRunning:
		return domain.EventJobProgress
	case domain.StatusCompleted:
		return domain.EventJobCompleted
	case domain.StatusFailed:
		return domain.EventJobFailed
	default:
		return domain.EventJobCancelled
	}
}
