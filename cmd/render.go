package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/domain"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/monitor"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/reconciler"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/transport"
)

const (
	timeLayout = "2006-01-02 15:04:05"
	none       = "-"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

// renderSources prints one row per source.
func renderSources(w io.Writer, v monitor.View) {
	if len(v.Sources) == 0 {
		fmt.Fprintln(w, "No sources loaded")
		return
	}

	t := newTable(w)
	t.AppendHeader(table.Row{"Name", "Category", "Engine", "Active", "Health", "State", "Progress", "Last Run", "Schedule"})
	for _, row := range v.Sources {
		t.AppendRow(table.Row{
			displayName(row),
			orNone(row.Category),
			orNone(row.Engine),
			activeCell(row),
			fmt.Sprintf("%d (%s)", row.HealthScore, row.Health),
			stateCell(row),
			progressCell(row.ActiveJob),
			formatTime(row.LastRun),
			orNone(row.Schedule),
		})
	}
	c := v.Counts()
	t.AppendFooter(table.Row{fmt.Sprintf("%d sources", c.Sources), "", "", fmt.Sprintf("%d active", c.Active), "", fmt.Sprintf("%d running", c.Running)})
	t.Render()
}

// renderJobs prints live jobs first, then the recently finished ones.
func renderJobs(w io.Writer, s reconciler.Snapshot) {
	if len(s.Live) == 0 && len(s.Recent) == 0 {
		fmt.Fprintln(w, "No jobs")
		return
	}

	t := newTable(w)
	t.AppendHeader(table.Row{"Job", "Source", "Status", "Progress", "Products", "Errors", "Started", "Completed"})
	for _, j := range s.Live {
		t.AppendRow(jobRow(j))
	}
	if len(s.Live) > 0 && len(s.Recent) > 0 {
		t.AppendSeparator()
	}
	for _, j := range s.Recent {
		t.AppendRow(jobRow(j))
	}
	t.Render()
}

func jobRow(j domain.Job) table.Row {
	id := j.ID
	if j.Tentative {
		id += " (pending)"
	}
	status := statusCell(j.Status)
	if j.Unlisted {
		status = text.FgHiBlack.Sprintf("%s (unlisted)", j.Status)
	}
	return table.Row{
		id,
		j.SourceName,
		status,
		fmt.Sprintf("%d%%", j.Progress),
		j.ProductsFound,
		j.ErrorsCount,
		formatTime(&j.StartedAt),
		formatTime(j.CompletedAt),
	}
}

// renderLogs prints a job's log lines, oldest first.
func renderLogs(w io.Writer, logs []domain.LogEntry) {
	if len(logs) == 0 {
		fmt.Fprintln(w, "No log entries")
		return
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"Time", "Level", "Message"})
	for _, e := range logs {
		t.AppendRow(table.Row{e.Timestamp.Local().Format(timeLayout), strings.ToUpper(string(e.Level)), e.Message})
	}
	t.Render()
}

// renderHistory prints one history page with a paging footer.
func renderHistory(w io.Writer, page domain.HistoryPage) {
	if len(page.Items) == 0 {
		fmt.Fprintln(w, "No runs found")
		return
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"Job", "Source", "Status", "Products", "Errors", "Started", "Duration"})
	for _, r := range page.Items {
		t.AppendRow(table.Row{
			r.JobID,
			r.SourceName,
			statusCell(r.Status),
			r.ProductsFound,
			r.ErrorsCount,
			formatTime(&r.StartedAt),
			formatDuration(r.Duration),
		})
	}
	t.AppendFooter(table.Row{fmt.Sprintf("page %d", page.Page), fmt.Sprintf("%d total", page.Total)})
	t.Render()
}

// renderWatch prints the connection badge, the fleet table and any commands in flight.
func renderWatch(w io.Writer, v monitor.View) {
	fmt.Fprintf(w, "%s  updated %s\n\n", connectionBadge(v.Connection), v.GeneratedAt.Local().Format(timeLayout))
	renderSources(w, v)
	for _, p := range v.InFlight {
		fmt.Fprintf(w, "  %s %s in flight since %s\n", p.Action, p.Target, p.Since.Local().Format(time.TimeOnly))
	}
}

func connectionBadge(s transport.State) string {
	badge := strings.ToUpper(string(s.Mode))
	switch {
	case s.Degraded:
		return text.FgRed.Sprintf("%s DEGRADED (%d failures: %s)", badge, s.ConsecutiveFailures, s.LastError)
	case s.Mode == transport.ModePush:
		return text.FgGreen.Sprint(badge)
	default:
		return text.FgYellow.Sprint(badge)
	}
}

func displayName(row monitor.SourceRow) string {
	if row.DisplayName != "" && row.DisplayName != row.Name {
		return fmt.Sprintf("%s (%s)", row.DisplayName, row.Name)
	}
	return row.Name
}

func activeCell(row monitor.SourceRow) string {
	label := "no"
	if row.IsActive {
		label = "yes"
	}
	if row.Unsynced {
		label += " (unsynced)"
	}
	return label
}

func stateCell(row monitor.SourceRow) string {
	switch {
	case len(row.Pending) > 0:
		return fmt.Sprintf("%s...", row.Pending[0])
	case row.Running && row.ActiveJob != nil:
		return string(row.ActiveJob.Status)
	case row.Running:
		return "running"
	default:
		return "idle"
	}
}

func progressCell(job *domain.Job) string {
	if job == nil {
		return none
	}
	return fmt.Sprintf("%d%%", job.Progress)
}

func statusCell(s domain.JobStatus) string {
	switch s {
	case domain.StatusCompleted:
		return text.FgGreen.Sprint(s)
	case domain.StatusFailed:
		return text.FgRed.Sprint(s)
	case domain.StatusCancelled:
		return text.FgYellow.Sprint(s)
	default:
		return string(s)
	}
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return none
	}
	return t.Local().Format(timeLayout)
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return none
	}
	return d.Round(time.Second).String()
}

func orNone(s string) string {
	if s == "" {
		return none
	}
	return s
}
