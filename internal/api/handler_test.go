package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	infraerrors "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/errors"
	infragin "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/gin"
	infrajwt "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/jwt"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/api"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/dispatcher"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/domain"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/monitor"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/reconciler"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/registry"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/scraper"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/transport"
)

// MockService is a testify mock of api.Service.
type MockService struct {
	mock.Mock
}

func (m *MockService) View() monitor.View {
	return m.Called().Get(0).(monitor.View)
}

func (m *MockService) Sources() []registry.Entry {
	return m.Called().Get(0).([]registry.Entry)
}

func (m *MockService) Jobs() reconciler.Snapshot {
	return m.Called().Get(0).(reconciler.Snapshot)
}

func (m *MockService) Connection() transport.State {
	return m.Called().Get(0).(transport.State)
}

func (m *MockService) RefreshSources(ctx context.Context) ([]registry.Entry, error) {
	args := m.Called(ctx)
	entries, _ := args.Get(0).([]registry.Entry)
	return entries, args.Error(1)
}

func (m *MockService) History(ctx context.Context, q domain.HistoryQuery) (domain.HistoryPage, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(domain.HistoryPage), args.Error(1)
}

func (m *MockService) Logs(jobID string) ([]domain.LogEntry, error) {
	args := m.Called(jobID)
	entries, _ := args.Get(0).([]domain.LogEntry)
	return entries, args.Error(1)
}

func (m *MockService) Execute(ctx context.Context, name string) (string, error) {
	args := m.Called(ctx, name)
	return args.String(0), args.Error(1)
}

func (m *MockService) Cancel(ctx context.Context, jobID string) error {
	return m.Called(ctx, jobID).Error(0)
}

func (m *MockService) Toggle(ctx context.Context, name string, active bool) (registry.ToggleOutcome, error) {
	args := m.Called(ctx, name, active)
	return args.Get(0).(registry.ToggleOutcome), args.Error(1)
}

func (m *MockService) Schedule(ctx context.Context, name, expr string) (time.Time, error) {
	args := m.Called(ctx, name, expr)
	return args.Get(0).(time.Time), args.Error(1)
}

func newRouter(t *testing.T, svc *MockService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	api.Routes(api.Deps{Service: svc, Gatherer: prometheus.NewRegistry(), ServiceName: "fleet-monitor"})(router)
	t.Cleanup(func() { svc.AssertExpectations(t) })
	return router
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestView(t *testing.T) {
	svc := &MockService{}
	svc.On("View").Return(monitor.View{
		Sources: []monitor.SourceRow{{Key: "jumbo", CanExecute: true}},
		Jobs:    []domain.Job{},
		Recent:  []domain.Job{},
	})

	w := do(newRouter(t, svc), http.MethodGet, "/api/v1/view", "")

	require.Equal(t, http.StatusOK, w.Code)
	v := decode[monitor.View](t, w)
	require.Len(t, v.Sources, 1)
	assert.True(t, v.Sources[0].CanExecute)
}

func TestExecute_Accepted(t *testing.T) {
	svc := &MockService{}
	svc.On("Execute", mock.Anything, "jumbo").Return("j1", nil)

	w := do(newRouter(t, svc), http.MethodPost, "/api/v1/sources/jumbo/execute", "")

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "j1", decode[map[string]string](t, w)["job_id"])
}

func TestExecute_ErrorStatuses(t *testing.T) {
	cmdErr := func(category dispatcher.Category, err error) error {
		return &dispatcher.CommandError{Action: dispatcher.ActionExecute, Target: "jumbo", Category: category, Message: "msg", Err: err}
	}

	tests := []struct {
		name     string
		err      error
		status   int
		category dispatcher.Category
	}{
		{"precondition", cmdErr(dispatcher.CategoryPrecondition, dispatcher.ErrAlreadyRunning), http.StatusConflict, dispatcher.CategoryPrecondition},
		{"in flight", cmdErr(dispatcher.CategoryInFlight, dispatcher.ErrInFlight), http.StatusConflict, dispatcher.CategoryInFlight},
		{"unknown source", cmdErr(dispatcher.CategoryPrecondition, fmt.Errorf("%w: ghost", registry.ErrUnknownSource)), http.StatusNotFound, dispatcher.CategoryPrecondition},
		{"permission", cmdErr(dispatcher.CategoryPermission, nil), http.StatusForbidden, dispatcher.CategoryPermission},
		{"not configured", cmdErr(dispatcher.CategoryNotConfigured, nil), http.StatusNotImplemented, dispatcher.CategoryNotConfigured},
		{"unavailable", cmdErr(dispatcher.CategoryUnavailable, nil), http.StatusServiceUnavailable, dispatcher.CategoryUnavailable},
		{"failed", cmdErr(dispatcher.CategoryFailed, nil), http.StatusBadGateway, dispatcher.CategoryFailed},
		{"discarded", dispatcher.ErrDiscarded, http.StatusServiceUnavailable, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockService{}
			svc.On("Execute", mock.Anything, "jumbo").Return("", tt.err)

			w := do(newRouter(t, svc), http.MethodPost, "/api/v1/sources/jumbo/execute", "")

			assert.Equal(t, tt.status, w.Code)
			body := decode[api.ErrorResponse](t, w)
			assert.Equal(t, tt.category, body.Category)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestUpdateSource_ToggleUnsynced(t *testing.T) {
	svc := &MockService{}
	entry := registry.Entry{Source: domain.Source{Name: "lider", IsActive: true}, Unsynced: true}
	svc.On("Toggle", mock.Anything, "lider", true).
		Return(registry.ToggleOutcome{Entry: entry, Unsynced: true, Warning: registry.UnsyncedWarning}, nil)

	w := do(newRouter(t, svc), http.MethodPatch, "/api/v1/sources/lider", `{"is_active":true}`)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[api.UpdateSourceResponse](t, w)
	assert.True(t, resp.Unsynced)
	assert.Equal(t, registry.UnsyncedWarning, resp.Warning)
	require.NotNil(t, resp.Source)
	assert.True(t, resp.Source.IsActive)
	assert.Nil(t, resp.NextRun)
}

func TestUpdateSource_Schedule(t *testing.T) {
	svc := &MockService{}
	next := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	svc.On("Schedule", mock.Anything, "jumbo", "0 6 * * *").Return(next, nil)

	w := do(newRouter(t, svc), http.MethodPatch, "/api/v1/sources/jumbo", `{"schedule":"0 6 * * *"}`)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[api.UpdateSourceResponse](t, w)
	require.NotNil(t, resp.NextRun)
	assert.True(t, next.Equal(*resp.NextRun))
}

func TestUpdateSource_InvalidScheduleLeavesToggleUnapplied(t *testing.T) {
	svc := &MockService{}

	w := do(newRouter(t, svc), http.MethodPatch, "/api/v1/sources/jumbo", `{"is_active":true,"schedule":"every day"}`)

	require.Equal(t, http.StatusConflict, w.Code)
	body := decode[api.ErrorResponse](t, w)
	assert.Equal(t, dispatcher.CategoryPrecondition, body.Category)
	svc.AssertNotCalled(t, "Toggle", mock.Anything, mock.Anything, mock.Anything)
	svc.AssertNotCalled(t, "Schedule", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateSource_ScheduleFailsAfterToggle(t *testing.T) {
	svc := &MockService{}
	entry := registry.Entry{Source: domain.Source{Name: "jumbo", IsActive: true}}
	svc.On("Toggle", mock.Anything, "jumbo", true).Return(registry.ToggleOutcome{Entry: entry}, nil)
	svc.On("Schedule", mock.Anything, "jumbo", "0 6 * * *").Return(time.Time{}, &dispatcher.CommandError{
		Action: dispatcher.ActionSchedule, Target: "jumbo", Category: dispatcher.CategoryUnavailable, Message: "backend unavailable, retry later",
	})

	w := do(newRouter(t, svc), http.MethodPatch, "/api/v1/sources/jumbo", `{"is_active":true,"schedule":"0 6 * * *"}`)

	require.Equal(t, http.StatusMultiStatus, w.Code)
	resp := decode[api.UpdateSourceResponse](t, w)
	require.NotNil(t, resp.Source)
	assert.True(t, resp.Source.IsActive)
	assert.Nil(t, resp.NextRun)
	require.NotNil(t, resp.ScheduleError)
	assert.Equal(t, dispatcher.CategoryUnavailable, resp.ScheduleError.Category)
	svc.AssertExpectations(t)
}

func TestUpdateSource_BadRequests(t *testing.T) {
	svc := &MockService{}
	router := newRouter(t, svc)

	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodPatch, "/api/v1/sources/jumbo", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodPatch, "/api/v1/sources/jumbo", `{"is_active":`).Code)
}

func TestCancelJob(t *testing.T) {
	svc := &MockService{}
	svc.On("Cancel", mock.Anything, "j1").Return(nil)
	svc.On("Cancel", mock.Anything, "j2").Return(&dispatcher.CommandError{
		Action: dispatcher.ActionCancel, Target: "j2", Category: dispatcher.CategoryNotConfigured, Message: "not configured on backend",
	})
	router := newRouter(t, svc)

	assert.Equal(t, http.StatusOK, do(router, http.MethodDelete, "/api/v1/jobs/j1", "").Code)

	w := do(router, http.MethodDelete, "/api/v1/jobs/j2", "")
	assert.Equal(t, http.StatusNotImplemented, w.Code)
	assert.Equal(t, "not configured on backend", decode[api.ErrorResponse](t, w).Error)
}

func TestJobLogs(t *testing.T) {
	svc := &MockService{}
	svc.On("Logs", "j1").Return([]domain.LogEntry{{Message: "Job created"}}, nil)
	svc.On("Logs", "nope").Return(nil, fmt.Errorf("%w: nope", monitor.ErrUnknownJob))
	router := newRouter(t, svc)

	w := do(router, http.MethodGet, "/api/v1/jobs/j1/logs", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Job created")

	assert.Equal(t, http.StatusNotFound, do(router, http.MethodGet, "/api/v1/jobs/nope/logs", "").Code)
}

func TestHistory_ParsesQuery(t *testing.T) {
	svc := &MockService{}
	want := domain.HistoryQuery{
		Page:       2,
		PageSize:   50,
		TargetName: "jumbo",
		Status:     domain.StatusFailed,
		From:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		To:         time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
	}
	svc.On("History", mock.Anything, want).Return(domain.HistoryPage{Total: 1, Page: 2, PageSize: 50}, nil)

	w := do(newRouter(t, svc), http.MethodGet,
		"/api/v1/history?page=2&page_size=50&target_name=jumbo&status=error&from_date=2026-03-01&to_date=2026-03-02T12:00:00Z", "")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestHistory_InvalidQuery(t *testing.T) {
	svc := &MockService{}
	router := newRouter(t, svc)

	for _, q := range []string{"page=two", "status=sleeping", "from_date=yesterday", "from_date=2026-03-02&to_date=2026-03-01"} {
		assert.Equal(t, http.StatusBadRequest, do(router, http.MethodGet, "/api/v1/history?"+q, "").Code, q)
	}
}

func TestHistory_BackendErrors(t *testing.T) {
	svc := &MockService{}
	svc.On("History", mock.Anything, mock.Anything).
		Return(domain.HistoryPage{}, &scraper.TransportError{Op: "list history", Err: errors.New("connection refused")}).Once()
	svc.On("History", mock.Anything, mock.Anything).
		Return(domain.HistoryPage{}, &infraerrors.HTTPError{StatusCode: http.StatusInternalServerError, Parsed: true, Message: "db down"}).Once()
	router := newRouter(t, svc)

	assert.Equal(t, http.StatusServiceUnavailable, do(router, http.MethodGet, "/api/v1/history", "").Code)
	assert.Equal(t, http.StatusBadGateway, do(router, http.MethodGet, "/api/v1/history", "").Code)
}

func TestHealth_DegradedTransport(t *testing.T) {
	svc := &MockService{}
	svc.On("Connection").Return(transport.State{Mode: transport.ModePolling, Degraded: true, ConsecutiveFailures: 3, LastError: "timeout"})

	w := do(newRouter(t, svc), http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[infragin.HealthResponse](t, w)
	assert.Equal(t, infragin.HealthStatusDegraded, resp.Status)
	assert.Equal(t, infragin.HealthStatusDegraded, resp.Checks[api.HealthCheckTransport].Status)
}

func TestMetricsEndpoint(t *testing.T) {
	w := do(newRouter(t, &MockService{}), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuth_ProtectsAPIButNotHealth(t *testing.T) {
	svc := &MockService{}
	svc.On("Connection").Return(transport.State{Mode: transport.ModePush})
	svc.On("View").Return(monitor.View{}).Once()

	gin.SetMode(gin.TestMode)
	router := gin.New()
	api.Routes(api.Deps{Service: svc, AuthSecret: "s3cret"})(router)
	t.Cleanup(func() { svc.AssertExpectations(t) })

	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(router, http.MethodGet, "/api/v1/view", "").Code)

	token, err := infrajwt.Sign("s3cret", "operator", time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/view", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
