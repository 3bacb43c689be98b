package normalize

import (
	"time"

	"github.com/tidwall/gjson"

	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/domain"
)

var jobEnvelopes = []string{"jobs", "active_jobs", "data", "items", "results", "data.jobs", "data.items"}

// Job normalizes one job record received at receivedAt.
func Job(raw []byte, receivedAt time.Time) (domain.Job, error) {
	if !gjson.ValidBytes(raw) {
		return domain.Job{}, schemaErr("job", "invalid JSON")
	}
	return jobFrom(unwrap(gjson.ParseBytes(raw), "job", "data"), receivedAt)
}

// Jobs normalizes a job listing, skipping malformed records.
func Jobs(raw []byte, receivedAt time.Time) (jobs []domain.Job, skipped []error, err error) {
	if !gjson.ValidBytes(raw) {
		return nil, nil, schemaErr("jobs", "invalid JSON")
	}

	items, ok := list(gjson.ParseBytes(raw), jobEnvelopes)
	if !ok {
		return nil, nil, schemaErr("jobs", "payload is not a list")
	}
	return jobsFrom(items, receivedAt)
}

func jobsFrom(items gjson.Result, receivedAt time.Time) (jobs []domain.Job, skipped []error, err error) {
	all := items.Array()
	jobs = make([]domain.Job, 0, len(all))
	for i, item := range all {
		j, itemErr := jobFrom(item, receivedAt)
		if itemErr != nil {
			skipped = append(skipped, withIndex(itemErr, i))
			continue
		}
		jobs = append(jobs, j)
	}

	if len(all) > 0 && len(jobs) == 0 {
		return nil, skipped, schemaErr("jobs", "no record carries a job id")
	}
	return jobs, skipped, nil
}

func jobFrom(r gjson.Result, receivedAt time.Time) (domain.Job, error) {
	if !r.IsObject() {
		return domain.Job{}, schemaErr("job", "record is not an object")
	}

	id := str(r, jobIDKeys)
	if id == "" {
		return domain.Job{}, schemaErr("job", "missing job id")
	}

	status := domain.StatusPending
	if raw := str(r, jobStatusKeys); raw != "" {
		parsed, ok := domain.ParseJobStatus(raw)
		if !ok {
			return domain.Job{}, schemaErr("job", "unknown status "+raw)
		}
		status = parsed
	}

	startedAt, ok := timestamp(r, jobStartedKeys)
	if !ok {
		startedAt = receivedAt
	}

	return domain.Job{
		ID:                id,
		SourceName:        str(r, jobSourceKeys),
		Status:            status,
		Progress:          clamp(integer(r, jobProgressKeys), 0, 100),
		ProductsFound:     max(integer(r, jobProductsKeys), 0),
		ErrorsCount:       count(r, jobErrorsKeys),
		StartedAt:         startedAt,
		CompletedAt:       optionalTime(r, jobCompletedKeys),
		EstimatedDuration: seconds(r, jobEstimateKeys),
		UpdatedAt:         receivedAt,
	}, nil
}
