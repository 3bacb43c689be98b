package normalize

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Field alias families, in lookup priority order.
var (
	sourceIDKeys       = []string{"id", "_id", "uuid"}
	sourceNameKeys     = []string{"name", "source_id", "key", "slug"}
	sourceDisplayKeys  = []string{"display_name", "displayName", "title", "label"}
	sourceCategoryKeys = []string{"category", "type"}
	sourceEngineKeys   = []string{"engine", "scraper_type", "technology"}
	sourceActiveKeys   = []string{"is_active", "isActive", "enabled", "active"}
	sourceHealthKeys   = []string{"health_score", "healthScore", "health"}
	sourceSuccessKeys  = []string{"success_rate", "successRate"}
	sourceProductKeys  = []string{"products_count", "productsCount", "total_products"}
	sourceLastRunKeys  = []string{"last_run", "lastRun", "last_run_at", "last_execution"}
	sourceScheduleKeys = []string{"schedule", "cron", "schedule_expression"}

	jobIDKeys        = []string{"job_id", "id", "_id"}
	jobSourceKeys    = []string{"target_name", "source_id", "source", "source_name", "source.name"}
	jobStatusKeys    = []string{"status", "state"}
	jobProgressKeys  = []string{"progress", "percent", "progress_percent"}
	jobProductsKeys  = []string{"products_found", "products_scraped", "items_found"}
	jobErrorsKeys    = []string{"errors_count", "error_count", "errors"}
	jobStartedKeys   = []string{"started_at", "startedAt", "created_at", "start_time"}
	jobCompletedKeys = []string{"completed_at", "completedAt", "finished_at", "end_time"}
	jobEstimateKeys  = []string{"estimated_duration", "eta_seconds"}
	jobDurationKeys  = []string{"duration", "duration_seconds"}
)

// first returns the first alias present with a non-null value.
func first(r gjson.Result, keys []string) gjson.Result {
	for _, k := range keys {
		if v := r.Get(k); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

// str returns the first alias holding a scalar, so an object-valued alias
// (e.g. "source": {...}) falls through to a dotted one ("source.name").
func str(r gjson.Result, keys []string) string {
	for _, k := range keys {
		v := r.Get(k)
		if !v.Exists() || v.Type == gjson.Null || v.IsObject() || v.IsArray() {
			continue
		}
		if s := strings.TrimSpace(v.String()); s != "" {
			return s
		}
	}
	return ""
}

func boolean(r gjson.Result, keys []string) bool {
	v := first(r, keys)
	if v.Type == gjson.String {
		b, err := strconv.ParseBool(strings.TrimSpace(v.Str))
		return err == nil && b
	}
	return v.Bool()
}

func integer(r gjson.Result, keys []string) int {
	v := first(r, keys)
	if v.Type == gjson.JSON {
		return 0
	}
	return int(math.Round(v.Float()))
}

// count accepts either a number or a list, whose length is the count.
func count(r gjson.Result, keys []string) int {
	v := first(r, keys)
	if v.IsArray() {
		return len(v.Array())
	}
	return max(integer(r, keys), 0)
}

func optionalInt(r gjson.Result, keys []string) *int {
	v := first(r, keys)
	if !v.Exists() || v.IsObject() {
		return nil
	}
	n := integer(r, keys)
	if v.IsArray() {
		n = len(v.Array())
	}
	return &n
}

func clamp(n, lo, hi int) int {
	return min(max(n, lo), hi)
}

// rate normalizes a success rate to a 0.0-1.0 fraction; values in (1, 100]
// are read as percentages.
func rate(r gjson.Result, keys []string) float64 {
	f := first(r, keys).Float()
	if f > 1 && f <= 100 {
		f /= 100
	}
	return math.Min(math.Max(f, 0), 1)
}

// unixMillisThreshold separates second from millisecond epoch values.
const unixMillisThreshold = 1e12

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
}

// timestamp parses RFC3339-style strings (zone-less values are UTC) or epoch
// seconds/milliseconds. ok is false when the field is absent or unparseable.
func timestamp(r gjson.Result, keys []string) (time.Time, bool) {
	v := first(r, keys)
	switch v.Type {
	case gjson.Number:
		f := v.Float()
		if f <= 0 {
			return time.Time{}, false
		}
		if f >= unixMillisThreshold {
			return time.UnixMilli(int64(f)).UTC(), true
		}
		return time.Unix(int64(f), 0).UTC(), true
	case gjson.String:
		s := strings.TrimSpace(v.Str)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

func optionalTime(r gjson.Result, keys []string) *time.Time {
	if t, ok := timestamp(r, keys); ok {
		return &t
	}
	return nil
}

func seconds(r gjson.Result, keys []string) time.Duration {
	f := first(r, keys).Float()
	if f <= 0 {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}

// list returns the array at the top level or under the first matching envelope key.
func list(r gjson.Result, envelopes []string) (gjson.Result, bool) {
	if r.IsArray() {
		return r, true
	}
	if !r.IsObject() {
		return gjson.Result{}, false
	}
	for _, k := range envelopes {
		if v := r.Get(k); v.IsArray() {
			return v, true
		}
	}
	return gjson.Result{}, false
}

// unwrap returns the object nested under one of keys, or r itself.
func unwrap(r gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if v := r.Get(k); v.IsObject() {
			return v
		}
	}
	return r
}
