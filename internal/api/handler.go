// Package api exposes the fleet monitor over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	infralogger "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/dispatcher"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/domain"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/monitor"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/reconciler"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/registry"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/transport"
)

// Service is the monitor surface the handlers need.
type Service interface {
	View() monitor.View
	Sources() []registry.Entry
	Jobs() reconciler.Snapshot
	Connection() transport.State
	RefreshSources(ctx context.Context) ([]registry.Entry, error)
	History(ctx context.Context, q domain.HistoryQuery) (domain.HistoryPage, error)
	Logs(jobID string) ([]domain.LogEntry, error)
	Execute(ctx context.Context, name string) (string, error)
	Cancel(ctx context.Context, jobID string) error
	Toggle(ctx context.Context, name string, active bool) (registry.ToggleOutcome, error)
	Schedule(ctx context.Context, name, expr string) (time.Time, error)
}

var _ Service = (*monitor.Monitor)(nil)

// Handler serves the /api/v1 routes.
type Handler struct {
	svc    Service
	logger infralogger.Logger
}

// NewHandler creates a Handler.
func NewHandler(svc Service, log infralogger.Logger) *Handler {
	return &Handler{svc: svc, logger: infralogger.OrNop(log)}
}

// Register mounts the routes on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/view", h.View)
	r.GET("/connection", h.Connection)

	sources := r.Group("/sources")
	sources.GET("", h.ListSources)
	sources.POST("/refresh", h.RefreshSources)
	sources.POST("/:name/execute", h.Execute)
	sources.PATCH("/:name", h.UpdateSource)

	jobs := r.Group("/jobs")
	jobs.GET("", h.ListJobs)
	jobs.GET("/:id/logs", h.JobLogs)
	jobs.DELETE("/:id", h.CancelJob)

	r.GET("/history", h.History)
}

// View returns the full monitor view.
func (h *Handler) View(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.View())
}

// Connection returns the live transport badge.
func (h *Handler) Connection(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Connection())
}

// ListSources returns the registry entries.
func (h *Handler) ListSources(c *gin.Context) {
	sources := h.svc.Sources()
	c.JSON(http.StatusOK, gin.H{
		"sources": sources,
		"count":   len(sources),
	})
}

// RefreshSources reloads the registry from the backend.
func (h *Handler) RefreshSources(c *gin.Context) {
	sources, err := h.svc.RefreshSources(c.Request.Context())
	if err != nil {
		h.logger.Warn("Source refresh failed", infralogger.Error(err))
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sources": sources,
		"count":   len(sources),
	})
}

// Execute triggers an on-demand run.
func (h *Handler) Execute(c *gin.Context) {
	name := c.Param("name")
	jobID, err := h.svc.Execute(c.Request.Context(), name)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "source": name})
}

// UpdateSourceRequest is the PATCH /sources/:name body. At least one field is required.
type UpdateSourceRequest struct {
	IsActive *bool   `json:"is_active"`
	Schedule *string `json:"schedule"`
}

// UpdateSourceResponse reports how an update was applied. ScheduleError is
// set, with status 207, when the toggle was applied but the schedule was not.
type UpdateSourceResponse struct {
	Source        *registry.Entry `json:"source,omitempty"`
	Unsynced      bool            `json:"unsynced"`
	Warning       string          `json:"warning,omitempty"`
	NextRun       *time.Time      `json:"next_run,omitempty"`
	ScheduleError *ErrorResponse  `json:"schedule_error,omitempty"`
}

// UpdateSource toggles a source and/or sets its schedule.
func (h *Handler) UpdateSource(c *gin.Context) {
	var req UpdateSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	if req.IsActive == nil && req.Schedule == nil {
		badRequest(c, "Nothing to update: set is_active or schedule", nil)
		return
	}

	ctx := c.Request.Context()
	name := c.Param("name")
	if req.Schedule != nil {
		if err := dispatcher.ValidateSchedule(name, *req.Schedule); err != nil {
			abortWithError(c, err)
			return
		}
	}
	var resp UpdateSourceResponse

	if req.IsActive != nil {
		outcome, err := h.svc.Toggle(ctx, name, *req.IsActive)
		if err != nil {
			abortWithError(c, err)
			return
		}
		resp.Source = &outcome.Entry
		resp.Unsynced = outcome.Unsynced
		resp.Warning = outcome.Warning
	}

	if req.Schedule != nil {
		next, err := h.svc.Schedule(ctx, name, *req.Schedule)
		if err != nil && resp.Source != nil {
			body := errorBody(err)
			resp.ScheduleError = &body
			c.JSON(http.StatusMultiStatus, resp)
			return
		}
		if err != nil {
			abortWithError(c, err)
			return
		}
		if !next.IsZero() {
			resp.NextRun = &next
		}
	}

	c.JSON(http.StatusOK, resp)
}

// ListJobs returns live and recent jobs.
func (h *Handler) ListJobs(c *gin.Context) {
	snap := h.svc.Jobs()
	c.JSON(http.StatusOK, gin.H{
		"live":    snap.Live,
		"recent":  snap.Recent,
		"running": snap.Running,
	})
}

// JobLogs returns a job's log buffer.
func (h *Handler) JobLogs(c *gin.Context) {
	id := c.Param("id")
	logs, err := h.svc.Logs(id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": id, "logs": logs})
}

// CancelJob cancels a job.
func (h *Handler) CancelJob(c *gin.Context) {
	id := c.Param("id")
	if err := h.svc.Cancel(c.Request.Context(), id); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": id, "status": domain.StatusCancelled})
}

// History proxies the backend run history.
func (h *Handler) History(c *gin.Context) {
	q, err := parseHistoryQuery(c)
	if err != nil {
		badRequest(c, "Invalid history query", err)
		return
	}

	page, err := h.svc.History(c.Request.Context(), q)
	if err != nil {
		h.logger.Warn("History request failed", infralogger.Error(err))
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func parseHistoryQuery(c *gin.Context) (domain.HistoryQuery, error) {
	var q domain.HistoryQuery
	var err error

	if q.Page, err = intParam(c, "page"); err != nil {
		return q, err
	}
	if q.PageSize, err = intParam(c, "page_size"); err != nil {
		return q, err
	}
	q.TargetName = c.Query("target_name")

	if raw := c.Query("status"); raw != "" {
		status, ok := domain.ParseJobStatus(raw)
		if !ok {
			return q, fmt.Errorf("unknown status %q", raw)
		}
		q.Status = status
	}
	if q.From, err = dateParam(c, "from_date"); err != nil {
		return q, err
	}
	if q.To, err = dateParam(c, "to_date"); err != nil {
		return q, err
	}
	if err := q.Validate(); err != nil {
		return q, err
	}
	return q.Normalize(), nil
}

func intParam(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func dateParam(c *gin.Context, key string) (time.Time, error) {
	t, err := domain.ParseHistoryDate(c.Query(key))
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", key, err)
	}
	return t, nil
}
