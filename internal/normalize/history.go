package normalize

import (
	"time"

	"github.com/tidwall/gjson"

	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/domain"
)

var historyEnvelopes = []string{"items", "history", "data", "results", "records", "data.items"}

// HistoryPage normalizes a history listing. Paging metadata missing from the
// payload is taken from query.
func HistoryPage(raw []byte, query domain.HistoryQuery, receivedAt time.Time) (domain.HistoryPage, []error, error) {
	if !gjson.ValidBytes(raw) {
		return domain.HistoryPage{}, nil, schemaErr("history", "invalid JSON")
	}

	r := gjson.ParseBytes(raw)
	items, ok := list(r, historyEnvelopes)
	if !ok {
		return domain.HistoryPage{}, nil, schemaErr("history", "payload is not a list")
	}

	query = query.Normalize()
	page := domain.HistoryPage{
		Page:     query.Page,
		PageSize: query.PageSize,
	}

	var skipped []error
	for i, item := range items.Array() {
		rec, err := historyRecordFrom(item, receivedAt)
		if err != nil {
			skipped = append(skipped, withIndex(err, i))
			continue
		}
		page.Items = append(page.Items, rec)
	}

	page.Total = len(page.Items)
	if total := first(r, []string{"total", "total_count", "count", "pagination.total"}); total.Exists() {
		page.Total = int(total.Int())
	}
	if p := first(r, []string{"page", "pagination.page"}); p.Int() > 0 {
		page.Page = int(p.Int())
	}
	if ps := first(r, []string{"page_size", "pageSize", "per_page", "pagination.page_size"}); ps.Int() > 0 {
		page.PageSize = int(ps.Int())
	}

	return page, skipped, nil
}

func historyRecordFrom(r gjson.Result, receivedAt time.Time) (domain.HistoryRecord, error) {
	j, err := jobFrom(r, receivedAt)
	if err != nil {
		return domain.HistoryRecord{}, err
	}

	rec := domain.HistoryRecord{
		JobID:         j.ID,
		SourceName:    j.SourceName,
		Status:        j.Status,
		StartedAt:     j.StartedAt,
		CompletedAt:   j.CompletedAt,
		ProductsFound: j.ProductsFound,
		ErrorsCount:   j.ErrorsCount,
		Duration:      seconds(r, jobDurationKeys),
	}
	if rec.Duration == 0 && rec.CompletedAt != nil {
		rec.Duration = rec.CompletedAt.Sub(rec.StartedAt)
	}
	return rec, nil
}

// ExecuteResult extracts the job id from an execute response.
func ExecuteResult(raw []byte) (string, error) {
	if !gjson.ValidBytes(raw) {
		return "", schemaErr("execute", "invalid JSON")
	}
	r := unwrap(gjson.ParseBytes(raw), "job", "data")
	id := str(r, jobIDKeys)
	if id == "" {
		return "", schemaErr("execute", "missing job id")
	}
	return id, nil
}
