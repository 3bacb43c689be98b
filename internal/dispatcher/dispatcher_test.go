package dispatcher_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	infraerrors "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/errors"
	infralogger "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/dispatcher"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/domain"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/normalize"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/reconciler"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/registry"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/scraper"
	scraperMock "github.com/jonesrussell/north-cloud/fleet-monitor/testutils/mocks/scraper"
)

type recorder struct {
	mu       sync.Mutex
	outcomes []dispatcher.Outcome
}

func (r *recorder) Record(_ context.Context, o dispatcher.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func (r *recorder) all() []dispatcher.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]dispatcher.Outcome(nil), r.outcomes...)
}

type fixture struct {
	api  *scraperMock.MockAPI
	jobs *reconciler.Reconciler
	reg  *registry.Registry
	rec  *recorder
	d    *dispatcher.Dispatcher
}

func newFixture(t *testing.T, opts ...dispatcher.Option) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	api := scraperMock.NewMockAPI(ctrl)

	api.EXPECT().ListSources(gomock.Any()).Return([]domain.Source{
		{ID: "1", Name: "jumbo", IsActive: true},
		{ID: "2", Name: "lider", IsActive: false},
	}, nil)

	log := infralogger.NewNop()
	jobs := reconciler.New(reconciler.Config{}, log)
	reg := registry.New(api, log)
	_, err := reg.Load(context.Background())
	require.NoError(t, err)

	rec := &recorder{}
	opts = append([]dispatcher.Option{dispatcher.WithRecorder(rec)}, opts...)
	return &fixture{
		api:  api,
		jobs: jobs,
		reg:  reg,
		rec:  rec,
		d:    dispatcher.New(api, jobs, reg, log, opts...),
	}
}

func httpErr(status int, msg string) error {
	return &infraerrors.HTTPError{StatusCode: status, Status: http.StatusText(status), Message: msg, Parsed: msg != ""}
}

// Scenario A and B: an active idle source can execute, and the pending job is
// visible before the backend answers.
func TestExecute_InjectsPendingJobBeforeResponse(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.jobs.IsRunning("jumbo"))

	f.api.EXPECT().ExecuteSource(gomock.Any(), "jumbo").DoAndReturn(
		func(context.Context, string) (string, error) {
			assert.True(t, f.jobs.IsRunning("jumbo"), "running before response")
			job, ok := f.jobs.ActiveJob("jumbo")
			assert.True(t, ok)
			assert.Equal(t, domain.StatusPending, job.Status)
			assert.True(t, f.d.InFlight(dispatcher.ActionExecute, "Jumbo"))
			return "j1", nil
		})

	jobID, err := f.d.Execute(context.Background(), "Jumbo")
	require.NoError(t, err)
	assert.Equal(t, "j1", jobID)

	job, ok := f.jobs.Job("j1")
	require.True(t, ok)
	assert.Equal(t, domain.StatusPending, job.Status)
	assert.False(t, f.d.InFlight(dispatcher.ActionExecute, "jumbo"))

	outcomes := f.rec.all()
	require.Len(t, outcomes, 1)
	assert.Equal(t, "j1", outcomes[0].JobID)
	assert.NoError(t, outcomes[0].Err)
}

func TestExecute_Preconditions(t *testing.T) {
	f := newFixture(t)

	_, err := f.d.Execute(context.Background(), "lider")
	assert.ErrorIs(t, err, dispatcher.ErrSourceInactive)

	_, err = f.d.Execute(context.Background(), "ghost")
	assert.ErrorIs(t, err, dispatcher.ErrUnknownSource)

	f.jobs.ApplyEvent(domain.Event{Kind: domain.EventJobProgress, JobID: "j0", SourceName: "JUMBO"})
	_, err = f.d.Execute(context.Background(), "jumbo")
	assert.ErrorIs(t, err, dispatcher.ErrAlreadyRunning)

	category, ok := dispatcher.CategoryOf(err)
	require.True(t, ok)
	assert.Equal(t, dispatcher.CategoryPrecondition, category)
}

func TestExecute_RejectsDuplicateInFlight(t *testing.T) {
	f := newFixture(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.api.EXPECT().ExecuteSource(gomock.Any(), "jumbo").DoAndReturn(
		func(context.Context, string) (string, error) {
			close(entered)
			<-release
			return "j1", nil
		})

	done := make(chan error, 1)
	go func() {
		_, err := f.d.Execute(context.Background(), "jumbo")
		done <- err
	}()
	<-entered

	_, err := f.d.Execute(context.Background(), "jumbo")
	require.ErrorIs(t, err, dispatcher.ErrInFlight)
	category, _ := dispatcher.CategoryOf(err)
	assert.Equal(t, dispatcher.CategoryInFlight, category)

	pending := f.d.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, dispatcher.ActionExecute, pending[0].Action)

	close(release)
	require.NoError(t, <-done)
	assert.Empty(t, f.d.Pending())
}

func TestExecute_FailureCategories(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		category dispatcher.Category
		message  string
	}{
		{name: "not found", err: &scraper.TransportError{Op: "execute source", Err: httpErr(http.StatusNotFound, "")}, category: dispatcher.CategoryNotConfigured, message: "not configured on backend"},
		{name: "method not allowed", err: httpErr(http.StatusMethodNotAllowed, "nope"), category: dispatcher.CategoryNotConfigured},
		{name: "unauthorized", err: httpErr(http.StatusUnauthorized, "token expired"), category: dispatcher.CategoryPermission},
		{name: "forbidden", err: httpErr(http.StatusForbidden, ""), category: dispatcher.CategoryPermission},
		{name: "bad gateway", err: httpErr(http.StatusBadGateway, ""), category: dispatcher.CategoryUnavailable, message: "backend unavailable, retry later"},
		{name: "network", err: &scraper.TransportError{Op: "execute source", Err: errors.New("connection refused")}, category: dispatcher.CategoryUnavailable},
		{name: "conflict with message", err: httpErr(http.StatusConflict, "source locked by scheduler"), category: dispatcher.CategoryFailed, message: "source locked by scheduler"},
		{name: "conflict without message", err: httpErr(http.StatusConflict, ""), category: dispatcher.CategoryFailed, message: "command failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.api.EXPECT().ExecuteSource(gomock.Any(), "jumbo").Return("", tt.err)

			_, err := f.d.Execute(context.Background(), "jumbo")

			var ce *dispatcher.CommandError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.category, ce.Category)
			assert.Equal(t, dispatcher.ActionExecute, ce.Action)
			if tt.message != "" {
				assert.Equal(t, tt.message, ce.Message)
			}
			assert.False(t, f.jobs.IsRunning("jumbo"), "tentative job rolled back")
			assert.False(t, f.d.InFlight(dispatcher.ActionExecute, "jumbo"))

			outcomes := f.rec.all()
			require.Len(t, outcomes, 1)
			assert.Equal(t, tt.category, outcomes[0].Category)
		})
	}
}

func TestExecute_TimeoutIsUnavailable(t *testing.T) {
	f := newFixture(t, dispatcher.WithTimeout(20*time.Millisecond))
	f.api.EXPECT().ExecuteSource(gomock.Any(), "jumbo").DoAndReturn(
		func(ctx context.Context, _ string) (string, error) {
			<-ctx.Done()
			return "", &scraper.TransportError{Op: "execute source", Err: ctx.Err()}
		})

	_, err := f.d.Execute(context.Background(), "jumbo")
	category, ok := dispatcher.CategoryOf(err)
	require.True(t, ok)
	assert.Equal(t, dispatcher.CategoryUnavailable, category)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, f.d.InFlight(dispatcher.ActionExecute, "jumbo"))
}

func TestExecute_AckWithoutJobIDKeepsTentative(t *testing.T) {
	f := newFixture(t)
	f.api.EXPECT().ExecuteSource(gomock.Any(), "jumbo").
		Return("", &normalize.SchemaError{Entity: "execute", Index: -1, Reason: "missing job id"})

	jobID, err := f.d.Execute(context.Background(), "jumbo")
	require.NoError(t, err)
	assert.True(t, reconciler.IsTentativeID(jobID))
	assert.True(t, f.jobs.IsRunning("jumbo"))
}

func TestExecute_DiscardsLateResult(t *testing.T) {
	f := newFixture(t)
	f.api.EXPECT().ExecuteSource(gomock.Any(), "jumbo").DoAndReturn(
		func(context.Context, string) (string, error) {
			f.jobs.Close()
			return "j1", nil
		})

	_, err := f.d.Execute(context.Background(), "jumbo")
	require.ErrorIs(t, err, dispatcher.ErrDiscarded)
	_, ok := f.jobs.Job("j1")
	assert.False(t, ok)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	f.jobs.ApplyEvent(domain.Event{Kind: domain.EventJobProgress, JobID: "j1", SourceName: "jumbo"})

	f.api.EXPECT().CancelJob(gomock.Any(), "j1").Return(nil)
	require.NoError(t, f.d.Cancel(context.Background(), "j1"))

	job, ok := f.jobs.Job("j1")
	require.True(t, ok)
	assert.Equal(t, domain.StatusCancelled, job.Status)
	assert.False(t, f.jobs.IsRunning("jumbo"))
}

func TestCancel_UnimplementedLeavesJobRunning(t *testing.T) {
	f := newFixture(t)
	f.jobs.ApplyEvent(domain.Event{Kind: domain.EventJobProgress, JobID: "j1", SourceName: "jumbo"})

	f.api.EXPECT().CancelJob(gomock.Any(), "j1").Return(httpErr(http.StatusMethodNotAllowed, ""))
	err := f.d.Cancel(context.Background(), "j1")

	category, _ := dispatcher.CategoryOf(err)
	assert.Equal(t, dispatcher.CategoryNotConfigured, category)
	assert.True(t, f.jobs.IsRunning("jumbo"))
}

func TestCancel_TentativeJobIsRefused(t *testing.T) {
	f := newFixture(t)
	id, err := f.jobs.Inject("jumbo")
	require.NoError(t, err)

	err = f.d.Cancel(context.Background(), id)
	assert.ErrorIs(t, err, dispatcher.ErrNotAccepted)
}

func TestToggle_UnimplementedAppliesLocally(t *testing.T) {
	f := newFixture(t)
	f.api.EXPECT().UpdateSourceActive(gomock.Any(), "lider", true).
		Return(nil, &scraper.TransportError{Op: "update source", Err: httpErr(http.StatusNotFound, "")})

	out, err := f.d.Toggle(context.Background(), "Lider", true)
	require.NoError(t, err)
	assert.True(t, out.Unsynced)
	assert.NotEmpty(t, out.Warning)

	e, _ := f.reg.Get("lider")
	assert.True(t, e.IsActive)
}

func TestToggle_FailureIsCategorized(t *testing.T) {
	f := newFixture(t)
	f.api.EXPECT().UpdateSourceActive(gomock.Any(), "jumbo", false).Return(nil, httpErr(http.StatusForbidden, "read-only tenant"))

	_, err := f.d.Toggle(context.Background(), "jumbo", false)
	category, _ := dispatcher.CategoryOf(err)
	assert.Equal(t, dispatcher.CategoryPermission, category)

	e, _ := f.reg.Get("jumbo")
	assert.True(t, e.IsActive)
}

func TestSchedule(t *testing.T) {
	f := newFixture(t)

	_, err := f.d.Schedule(context.Background(), "jumbo", "every tuesday")
	require.ErrorIs(t, err, dispatcher.ErrInvalidSchedule)

	f.api.EXPECT().UpdateSourceSchedule(gomock.Any(), "jumbo", "0 6 * * *").Return(nil, nil)
	next, err := f.d.Schedule(context.Background(), "jumbo", "0 6 * * *")
	require.NoError(t, err)
	assert.True(t, next.After(time.Now()))
	assert.Equal(t, 6, next.Hour())

	e, _ := f.reg.Get("jumbo")
	assert.Equal(t, "0 6 * * *", e.Schedule)
}

func TestValidateSchedule(t *testing.T) {
	require.NoError(t, dispatcher.ValidateSchedule("jumbo", "0 6 * * *"))
	require.NoError(t, dispatcher.ValidateSchedule("jumbo", "  "))

	err := dispatcher.ValidateSchedule("jumbo", "every day")
	require.ErrorIs(t, err, dispatcher.ErrInvalidSchedule)
	category, ok := dispatcher.CategoryOf(err)
	require.True(t, ok)
	assert.Equal(t, dispatcher.CategoryPrecondition, category)
}
