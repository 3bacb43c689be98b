package gin_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	ginpkg "github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infragin "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/gin"
	infralogger "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/logger"
)

func newServer(t *testing.T, cors infragin.CORSConfig, routes func(*ginpkg.Engine)) *infragin.Server {
	t.Helper()
	return infragin.NewServer(&infragin.Config{ServiceName: "fleet-monitor", CORS: cors}, infralogger.NewNop(), routes)
}

func TestRequestID_GeneratedAndPreserved(t *testing.T) {
	srv := newServer(t, infragin.CORSConfig{}, func(r *ginpkg.Engine) {
		r.GET("/ping", func(c *ginpkg.Context) { c.String(http.StatusOK, c.GetString("request_id")) })
	})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", http.NoBody))
	assert.Len(t, rec.Header().Get(infragin.RequestIDHeader), 32)
	assert.Equal(t, rec.Header().Get(infragin.RequestIDHeader), rec.Body.String())

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", http.NoBody)
	req.Header.Set(infragin.RequestIDHeader, "upstream-1")
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, "upstream-1", rec.Body.String())
}

func TestRecovery(t *testing.T) {
	srv := newServer(t, infragin.CORSConfig{}, func(r *ginpkg.Engine) {
		r.GET("/boom", func(*ginpkg.Context) { panic("boom") })
	})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", http.NoBody))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCORS(t *testing.T) {
	srv := newServer(t, infragin.CORSConfig{AllowedOrigins: []string{"http://dash.local"}}, func(r *ginpkg.Engine) {
		r.GET("/x", func(c *ginpkg.Context) { c.Status(http.StatusOK) })
	})

	req := httptest.NewRequest(http.MethodOptions, "/x", http.NoBody)
	req.Header.Set("Origin", "http://dash.local")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://dash.local", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", http.NoBody)
	req.Header.Set("Origin", "http://evil.local")
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealth_DegradedCheck(t *testing.T) {
	srv := newServer(t, infragin.CORSConfig{}, func(r *ginpkg.Engine) {
		infragin.RegisterHealthRoutes(r, infragin.HealthOptions{
			ServiceName: "fleet-monitor",
			Checks: map[string]infragin.HealthChecker{
				"scraper_transport": func() infragin.CheckResult {
					return infragin.CheckResult{Status: infragin.HealthStatusDegraded, Message: "polling"}
				},
			},
		})
	})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	var body infragin.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, infragin.HealthStatusDegraded, body.Status)
	assert.Equal(t, "polling", body.Checks["scraper_transport"].Message)
}
