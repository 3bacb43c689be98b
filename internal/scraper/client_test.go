package scraper_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infraerrors "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/errors"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/domain"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/normalize"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/scraper"
)

func newServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *scraper.Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, scraper.NewClient(scraper.WithBaseURL(srv.URL + "/api/v1/"))
}

func TestClient_ListSources(t *testing.T) {
	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/sources", r.URL.Path)
		_, _ = io.WriteString(w, `{"sources":[{"name":"jumbo","is_active":true},{"title":"broken"}]}`)
	})

	sources, err := client.ListSources(context.Background())
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "jumbo", sources[0].Name)
	assert.True(t, sources[0].IsActive)
}

func TestClient_ReportsSkippedRecords(t *testing.T) {
	var entity string
	var dropped int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"sources":[{"name":"jumbo"},{"title":"broken"},{}]}`)
	}))
	t.Cleanup(srv.Close)
	client := scraper.NewClient(
		scraper.WithBaseURL(srv.URL),
		scraper.WithOnSkipped(func(e string, n int) { entity, dropped = e, n }),
	)

	_, err := client.ListSources(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "source", entity)
	assert.Equal(t, 2, dropped)
}

func TestClient_ListSources_SchemaError(t *testing.T) {
	_, client := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	})

	_, err := client.ListSources(context.Background())
	require.ErrorIs(t, err, normalize.ErrSchema)
	assert.False(t, scraper.IsTransport(err))
}

func TestClient_ListJobs(t *testing.T) {
	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/jobs", r.URL.Path)
		_, _ = io.WriteString(w, `[{"job_id":"j1","source_id":"Jumbo","status":"running","progress":40}]`)
	})

	jobs, err := client.ListJobs(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "jumbo", jobs[0].SourceKey())
	assert.Equal(t, domain.StatusRunning, jobs[0].Status)
	assert.Equal(t, 40, jobs[0].Progress)
}

func TestClient_ExecuteSource_EscapesName(t *testing.T) {
	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/sources/santa%20isabel/execute", r.URL.EscapedPath())
		w.WriteHeader(http.StatusAccepted)
		_, _ = io.WriteString(w, `{"job_id":"j42","status":"pending"}`)
	})

	jobID, err := client.ExecuteSource(context.Background(), "santa isabel")
	require.NoError(t, err)
	assert.Equal(t, "j42", jobID)
}

func TestClient_UpdateSourceActive(t *testing.T) {
	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"is_active": false}, body)

		_, _ = io.WriteString(w, `{"source":{"name":"jumbo","is_active":false}}`)
	})

	src, err := client.UpdateSourceActive(context.Background(), "jumbo", false)
	require.NoError(t, err)
	require.NotNil(t, src)
	assert.False(t, src.IsActive)
}

func TestClient_UpdateSourceActive_EmptyAck(t *testing.T) {
	_, client := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	src, err := client.UpdateSourceActive(context.Background(), "jumbo", true)
	require.NoError(t, err)
	assert.Nil(t, src)
}

func TestClient_UpdateSourceActive_PartialAck(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{name: "flag omitted", body: `{"name":"jumbo","message":"source updated"}`, want: true},
		{name: "flag null", body: `{"name":"jumbo","is_active":null}`, want: true},
		{name: "flag reported", body: `{"data":{"name":"jumbo","enabled":false}}`, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, client := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, tt.body)
			})

			src, err := client.UpdateSourceActive(context.Background(), "jumbo", true)
			require.NoError(t, err)
			require.NotNil(t, src)
			assert.Equal(t, tt.want, src.IsActive)
		})
	}
}

func TestClient_ErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		unimplemented bool
		transport     bool
	}{
		{name: "not found", status: http.StatusNotFound, body: `404 page not found`, unimplemented: true, transport: true},
		{name: "method not allowed", status: http.StatusMethodNotAllowed, body: `{"error":"method not allowed"}`, unimplemented: true},
		{name: "forbidden", status: http.StatusForbidden, body: `{"message":"tenant mismatch"}`},
		{name: "server error without body", status: http.StatusBadGateway, transport: true},
		{name: "validation", status: http.StatusUnprocessableEntity, body: `{"detail":"source is disabled"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, client := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := client.UpdateSourceActive(context.Background(), "jumbo", true)
			require.Error(t, err)

			code, ok := scraper.StatusCode(err)
			require.True(t, ok)
			assert.Equal(t, tt.status, code)
			assert.Equal(t, tt.unimplemented, scraper.IsUnimplemented(err))
			assert.Equal(t, tt.transport, scraper.IsTransport(err))

			var httpErr *infraerrors.HTTPError
			require.True(t, errors.As(err, &httpErr))
		})
	}
}

func TestClient_NetworkErrorIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client := scraper.NewClient(scraper.WithBaseURL(srv.URL))
	_, err := client.ListJobs(context.Background())

	require.Error(t, err)
	assert.True(t, scraper.IsTransport(err))
	assert.False(t, scraper.IsUnimplemented(err))
}

func TestClient_TimeoutIsTransport(t *testing.T) {
	release := make(chan struct{})
	_, client := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		<-release
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.ListSources(ctx)
	require.Error(t, err)
	assert.True(t, scraper.IsTransport(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_ServiceJWTAndTenant(t *testing.T) {
	const secret = "test-secret"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		assert.True(t, strings.HasPrefix(auth, "Bearer "))

		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(strings.TrimPrefix(auth, "Bearer "), claims,
			func(*jwt.Token) (any, error) { return []byte(secret), nil })
		if assert.NoError(t, err) {
			assert.True(t, token.Valid)
		}
		assert.Equal(t, "fleet-monitor", claims.Subject)

		assert.Equal(t, "acme", r.Header.Get("X-Org"))
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	client := scraper.NewClient(
		scraper.WithBaseURL(srv.URL),
		scraper.WithJWTSecret(secret),
		scraper.WithTenant("acme", "X-Org"),
	)

	jobs, err := client.ListJobs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestClient_StaticTokenWins(t *testing.T) {
	client := scraper.NewClient(
		scraper.WithToken("static"),
		scraper.WithJWTSecret("ignored"),
		scraper.WithTenant("acme", ""),
	)

	h, err := client.PushHeaders()
	require.NoError(t, err)
	assert.Equal(t, "Bearer static", h.Get("Authorization"))
	assert.Equal(t, "acme", h.Get(scraper.DefaultTenantHeader))
}

func TestClient_ListHistory_Query(t *testing.T) {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/api/v1/history", r.URL.Path)
		assert.Equal(t, "2", q.Get("page"))
		assert.Equal(t, "20", q.Get("page_size"))
		assert.Equal(t, "jumbo", q.Get("target_name"))
		assert.Equal(t, "failed", q.Get("status"))
		assert.Equal(t, "2026-03-01T00:00:00Z", q.Get("from_date"))
		assert.Empty(t, q.Get("to_date"))
		_, _ = io.WriteString(w, `{"items":[{"job_id":"h1","status":"failed"}],"total":7}`)
	})

	page, err := client.ListHistory(context.Background(), domain.HistoryQuery{
		Page:       2,
		TargetName: "jumbo",
		Status:     domain.StatusFailed,
		From:       from,
	})
	require.NoError(t, err)
	assert.Equal(t, 7, page.Total)
	assert.Equal(t, 2, page.Page)
	require.Len(t, page.Items, 1)
}

func TestClient_CancelJob(t *testing.T) {
	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/v1/jobs/j1", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.CancelJob(context.Background(), "j1"))
}
