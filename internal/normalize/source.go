package normalize

import (
	"github.com/tidwall/gjson"

	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/domain"
)

var sourceEnvelopes = []string{"sources", "data", "items", "results", "data.sources", "data.items"}

// Source normalizes one source record.
func Source(raw []byte) (domain.Source, error) {
	if !gjson.ValidBytes(raw) {
		return domain.Source{}, schemaErr("source", "invalid JSON")
	}
	r := unwrap(gjson.ParseBytes(raw), "source", "data")
	return sourceFrom(r)
}

// ReportsActive reports whether a source record carries an activation flag.
// Partial update acks often omit it.
func ReportsActive(raw []byte) bool {
	if !gjson.ValidBytes(raw) {
		return false
	}
	r := unwrap(gjson.ParseBytes(raw), "source", "data")
	return first(r, sourceActiveKeys).Exists()
}

// Sources normalizes a source listing. Malformed records are skipped and
// reported in skipped; err is set only when the payload as a whole is unusable.
func Sources(raw []byte) (sources []domain.Source, skipped []error, err error) {
	if !gjson.ValidBytes(raw) {
		return nil, nil, schemaErr("sources", "invalid JSON")
	}

	items, ok := list(gjson.ParseBytes(raw), sourceEnvelopes)
	if !ok {
		return nil, nil, schemaErr("sources", "payload is not a list")
	}

	all := items.Array()
	sources = make([]domain.Source, 0, len(all))
	for i, item := range all {
		s, itemErr := sourceFrom(item)
		if itemErr != nil {
			skipped = append(skipped, withIndex(itemErr, i))
			continue
		}
		sources = append(sources, s)
	}

	if len(all) > 0 && len(sources) == 0 {
		return nil, skipped, schemaErr("sources", "no record carries an id or name")
	}
	return sources, skipped, nil
}

func sourceFrom(r gjson.Result) (domain.Source, error) {
	if !r.IsObject() {
		return domain.Source{}, schemaErr("source", "record is not an object")
	}

	id := str(r, sourceIDKeys)
	name := str(r, sourceNameKeys)
	switch {
	case id == "" && name == "":
		return domain.Source{}, schemaErr("source", "missing both id and name")
	case name == "":
		name = id
	case id == "":
		id = name
	}

	display := str(r, sourceDisplayKeys)
	if display == "" {
		display = name
	}

	return domain.Source{
		ID:            id,
		Name:          name,
		DisplayName:   display,
		Category:      str(r, sourceCategoryKeys),
		Engine:        str(r, sourceEngineKeys),
		IsActive:      boolean(r, sourceActiveKeys),
		HealthScore:   clamp(integer(r, sourceHealthKeys), 0, 100),
		SuccessRate:   rate(r, sourceSuccessKeys),
		ProductsCount: integer(r, sourceProductKeys),
		LastRun:       optionalTime(r, sourceLastRunKeys),
		Schedule:      str(r, sourceScheduleKeys),
	}, nil
}
