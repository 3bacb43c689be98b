package transport_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infralogger "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/domain"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/transport"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type fakeLister struct {
	calls atomic.Int32
	mu    sync.Mutex
	err   error
	jobs  []domain.Job
}

func (f *fakeLister) ListJobs(context.Context) ([]domain.Job, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs, f.err
}

func (f *fakeLister) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type recordingSink struct {
	mu      sync.Mutex
	events  []domain.Event
	resyncs int
}

func (s *recordingSink) ApplyEvent(ev domain.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return true
}

func (s *recordingSink) Resync([]domain.Job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resyncs++
	return true
}

func (s *recordingSink) kinds() []domain.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EventKind, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Kind
	}
	return out
}

func (s *recordingSink) resyncCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resyncs
}

// hangingDialer never completes a handshake on its own.
type hangingDialer struct{}

func (hangingDialer) DialContext(ctx context.Context, _ string, _ http.Header) (*websocket.Conn, *http.Response, error) {
	<-ctx.Done()
	return nil, nil, ctx.Err()
}

func TestAdapter_PollsWithoutPushURL(t *testing.T) {
	lister := &fakeLister{jobs: []domain.Job{{ID: "j1", Status: domain.StatusRunning}}}
	sink := &recordingSink{}
	a := transport.New(transport.Config{PollInterval: 10 * time.Millisecond}, lister, sink, infralogger.NewNop())

	require.NoError(t, a.Start(context.Background()))
	defer a.Stop()

	assert.Eventually(t, func() bool { return sink.resyncCount() >= 3 }, waitFor, tick)
	state := a.State()
	assert.Equal(t, transport.ModePolling, state.Mode)
	assert.False(t, state.PushConfigured)
	assert.False(t, state.Degraded)
	assert.False(t, state.LastSync.IsZero())

	require.ErrorIs(t, a.Start(context.Background()), transport.ErrAlreadyStarted)
}

func TestAdapter_StopHaltsPolling(t *testing.T) {
	lister := &fakeLister{}
	a := transport.New(transport.Config{PollInterval: 5 * time.Millisecond}, lister, &recordingSink{}, infralogger.NewNop())

	require.NoError(t, a.Start(context.Background()))
	assert.Eventually(t, func() bool { return lister.calls.Load() > 0 }, waitFor, tick)
	a.Stop()

	calls := lister.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, lister.calls.Load())
	assert.Equal(t, transport.ModeStopped, a.State().Mode)
}

func TestAdapter_DegradedAfterThreeFailedPolls(t *testing.T) {
	lister := &fakeLister{err: errors.New("connection refused")}
	var states []transport.State
	var mu sync.Mutex
	a := transport.New(transport.Config{PollInterval: 100 * time.Millisecond}, lister, &recordingSink{}, infralogger.NewNop(),
		transport.WithOnStateChange(func(s transport.State) {
			mu.Lock()
			defer mu.Unlock()
			states = append(states, s)
		}))
	ctx := context.Background()

	require.Error(t, a.PollNow(ctx))
	require.Error(t, a.PollNow(ctx))
	assert.False(t, a.State().Degraded)

	require.Error(t, a.PollNow(ctx))
	state := a.State()
	assert.True(t, state.Degraded)
	assert.Equal(t, 3, state.ConsecutiveFailures)
	assert.Equal(t, "connection refused", state.LastError)
	assert.Equal(t, "open", state.Breaker)

	// While the breaker is open the backend is not called.
	calls := lister.calls.Load()
	require.Error(t, a.PollNow(ctx))
	assert.Equal(t, calls, lister.calls.Load())
	assert.Equal(t, 3, a.State().ConsecutiveFailures)

	lister.fail(nil)
	time.Sleep(150 * time.Millisecond)
	require.NoError(t, a.PollNow(ctx))
	assert.False(t, a.State().Degraded)
	assert.Zero(t, a.State().ConsecutiveFailures)

	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, states)
}

// Scenario E: a push channel that never answers falls back to polling within
// one connect timeout.
func TestAdapter_FallsBackToPollingOnConnectTimeout(t *testing.T) {
	lister := &fakeLister{}
	sink := &recordingSink{}
	a := transport.New(transport.Config{
		PushURL:        "ws://scraper.invalid/ws",
		PollInterval:   10 * time.Millisecond,
		ConnectTimeout: 50 * time.Millisecond,
		ReconnectDelay: time.Hour,
	}, lister, sink, infralogger.NewNop(), transport.WithDialer(hangingDialer{}))

	start := time.Now()
	require.NoError(t, a.Start(context.Background()))
	defer a.Stop()

	assert.Eventually(t, func() bool { return a.State().Mode == transport.ModePolling }, waitFor, tick)
	assert.Less(t, time.Since(start), time.Second)
	assert.Eventually(t, func() bool { return sink.resyncCount() > 0 }, waitFor, tick)
	assert.Contains(t, a.State().LastError, "dial push channel")
}

func newPushServer(t *testing.T, frames []string, gotAuth chan<- string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case gotAuth <- r.Header.Get("Authorization"):
		default:
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// Hold the connection until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestAdapter_PushDeliversFrames(t *testing.T) {
	gotAuth := make(chan string, 1)
	srv := newPushServer(t, []string{
		`{"type":"job_progress","job_id":"j1","source_id":"jumbo","progress":20}`,
		`not json`,
		`{"type":"job_completed","job_id":"j1"}`,
	}, gotAuth)

	lister := &fakeLister{}
	sink := &recordingSink{}
	a := transport.New(transport.Config{PushURL: wsURL(srv), ReconnectDelay: time.Hour}, lister, sink, infralogger.NewNop(),
		transport.WithHeaders(func() (http.Header, error) {
			return http.Header{"Authorization": []string{"Bearer t0ken"}}, nil
		}))

	require.NoError(t, a.Start(context.Background()))
	defer a.Stop()

	assert.Equal(t, "Bearer t0ken", <-gotAuth)
	assert.Eventually(t, func() bool { return len(sink.kinds()) == 2 }, waitFor, tick)
	assert.Equal(t, []domain.EventKind{domain.EventJobProgress, domain.EventJobCompleted}, sink.kinds())

	state := a.State()
	assert.Equal(t, transport.ModePush, state.Mode)
	assert.False(t, state.Degraded)
	assert.Equal(t, 1, sink.resyncCount(), "one baseline poll on connect")
}

func TestAdapter_UnparseableFramesDegrade(t *testing.T) {
	srv := newPushServer(t, []string{`{}`, `[1]`, `{"type":7}`}, make(chan string, 1))

	a := transport.New(transport.Config{PushURL: wsURL(srv), ReconnectDelay: time.Hour}, &fakeLister{}, &recordingSink{}, infralogger.NewNop())
	require.NoError(t, a.Start(context.Background()))
	defer a.Stop()

	assert.Eventually(t, func() bool { return a.State().Degraded }, waitFor, tick)
	assert.Equal(t, transport.ModePush, a.State().Mode)
}

func TestAdapter_DisconnectFallsBackToPolling(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.Close()
	}))
	defer srv.Close()

	sink := &recordingSink{}
	a := transport.New(transport.Config{
		PushURL:        wsURL(srv),
		PollInterval:   10 * time.Millisecond,
		ReconnectDelay: time.Hour,
	}, &fakeLister{}, sink, infralogger.NewNop())

	require.NoError(t, a.Start(context.Background()))
	defer a.Stop()

	assert.Eventually(t, func() bool { return a.State().Mode == transport.ModePolling }, waitFor, tick)
	assert.Eventually(t, func() bool { return sink.resyncCount() >= 3 }, waitFor, tick)
}

// silentPushServer upgrades and then reads without answering pings, like a
// peer behind a dropped connection.
func silentPushServer(t *testing.T, pings *atomic.Int32, reply bool) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetPingHandler(func(data string) error {
			pings.Add(1)
			if !reply {
				return nil
			}
			return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAdapter_UnansweredPingsFallBackToPolling(t *testing.T) {
	var pings atomic.Int32
	srv := silentPushServer(t, &pings, false)

	sink := &recordingSink{}
	a := transport.New(transport.Config{
		PushURL:        wsURL(srv),
		PollInterval:   10 * time.Millisecond,
		ReconnectDelay: time.Hour,
		PongWait:       80 * time.Millisecond,
		PingInterval:   20 * time.Millisecond,
	}, &fakeLister{}, sink, infralogger.NewNop())

	require.NoError(t, a.Start(context.Background()))
	defer a.Stop()

	assert.Eventually(t, func() bool { return a.State().Mode == transport.ModePush }, waitFor, tick)
	assert.Eventually(t, func() bool { return a.State().Mode == transport.ModePolling }, waitFor, tick)
	assert.Positive(t, pings.Load())
	assert.NotEmpty(t, a.State().LastError)
	assert.Eventually(t, func() bool { return sink.resyncCount() >= 3 }, waitFor, tick)
}

func TestAdapter_AnsweredPingsKeepPushMode(t *testing.T) {
	var pings atomic.Int32
	srv := silentPushServer(t, &pings, true)

	a := transport.New(transport.Config{
		PushURL:        wsURL(srv),
		ReconnectDelay: time.Hour,
		PongWait:       80 * time.Millisecond,
		PingInterval:   20 * time.Millisecond,
	}, &fakeLister{}, &recordingSink{}, infralogger.NewNop())

	require.NoError(t, a.Start(context.Background()))
	defer a.Stop()

	assert.Eventually(t, func() bool { return a.State().Mode == transport.ModePush }, waitFor, tick)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, transport.ModePush, a.State().Mode)
	assert.GreaterOrEqual(t, pings.Load(), int32(5))
}
