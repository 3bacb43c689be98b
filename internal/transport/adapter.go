// Package transport delivers job events to the reconciler, over the push
// channel when it is reachable and by polling the jobs listing otherwise.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lthibault/jitterbug/v2"

	"github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/circuitbreaker"
	infralogger "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/retry"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/domain"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/normalize"
)

// ErrAlreadyStarted is returned by a second Start.
var ErrAlreadyStarted = errors.New("transport already started")

// Defaults.
const (
	DefaultPollInterval      = 2500 * time.Millisecond
	DefaultPollTimeout       = 5 * time.Second
	DefaultConnectTimeout    = 5 * time.Second
	DefaultReconnectDelay    = 4 * time.Second
	DefaultReconnectMax      = 30 * time.Second
	DefaultDegradedThreshold = 3
	DefaultPongWait          = 30 * time.Second

	maxFrameBytes = 1 << 20
)

// Config configures an Adapter. Zero values select defaults.
type Config struct {
	// PushURL is the WebSocket endpoint; empty means poll only.
	PushURL           string
	PollInterval      time.Duration
	PollJitter        time.Duration
	PollTimeout       time.Duration
	ConnectTimeout    time.Duration
	ReconnectDelay    time.Duration
	ReconnectMax      time.Duration
	DegradedThreshold int
	// PongWait bounds the silence on the push channel before it is treated as
	// dead. PingInterval must be shorter.
	PongWait     time.Duration
	PingInterval time.Duration
}

func (c *Config) setDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.PollJitter <= 0 {
		c.PollJitter = c.PollInterval / 10
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.ReconnectMax < c.ReconnectDelay {
		c.ReconnectMax = max(DefaultReconnectMax, c.ReconnectDelay)
	}
	if c.DegradedThreshold <= 0 {
		c.DegradedThreshold = DefaultDegradedThreshold
	}
	if c.PongWait <= 0 {
		c.PongWait = DefaultPongWait
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		c.PingInterval = c.PongWait * 9 / 10
	}
}

// JobLister fetches the complete active jobs listing.
type JobLister interface {
	ListJobs(ctx context.Context) ([]domain.Job, error)
}

// Sink receives normalized events and listings.
type Sink interface {
	ApplyEvent(ev domain.Event) bool
	Resync(jobs []domain.Job) bool
}

// Adapter owns the push connection and the polling ticker.
type Adapter struct {
	cfg     Config
	lister  JobLister
	sink    Sink
	logger  infralogger.Logger
	dialer  Dialer
	headers func() (http.Header, error)
	onState func(State)
	now     func() time.Time
	breaker *circuitbreaker.Breaker
	backoff retry.Config

	mu            sync.Mutex
	state         State
	pollFailures  int
	parseFailures int
	cancel        context.CancelFunc
	stopPolling   func()
	wg            sync.WaitGroup
}

// New creates an Adapter. Call Start to begin delivery.
func New(cfg Config, lister JobLister, sink Sink, log infralogger.Logger, opts ...Option) *Adapter {
	cfg.setDefaults()
	a := &Adapter{
		cfg:    cfg,
		lister: lister,
		sink:   sink,
		logger: infralogger.OrNop(log).With(infralogger.Component("transport")),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.ConnectTimeout,
		},
		now: time.Now,
		backoff: retry.Config{
			InitialDelay: cfg.ReconnectDelay,
			MaxDelay:     cfg.ReconnectMax,
			Multiplier:   2,
		},
	}
	for _, opt := range opts {
		opt(a)
	}

	a.breaker = circuitbreaker.New(circuitbreaker.Config{
		Threshold: cfg.DegradedThreshold,
		Cooldown:  cfg.PollInterval,
	})
	a.state = State{
		Mode:           ModeStopped,
		Since:          a.now(),
		PushConfigured: cfg.PushURL != "",
		Breaker:        circuitbreaker.StateClosed.String(),
	}
	return a
}

// Start begins delivery in the background. The adapter runs until ctx is
// done or Stop is called.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.cancel != nil {
		a.mu.Unlock()
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.mu.Unlock()

	a.wg.Add(1)
	go a.run(runCtx)
	return nil
}

// Stop closes the push connection, stops the ticker and waits for the
// background goroutines.
func (a *Adapter) Stop() {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	a.wg.Wait()
	a.setMode(ModeStopped)
}

// State returns the current badge.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// PollNow fetches the jobs listing once and feeds it to the sink.
func (a *Adapter) PollNow(ctx context.Context) error {
	return a.poll(ctx)
}

func (a *Adapter) run(ctx context.Context) {
	defer a.wg.Done()
	defer a.haltPolling()

	if a.cfg.PushURL == "" {
		a.setMode(ModePolling)
		a.startPolling(ctx)
		<-ctx.Done()
		return
	}

	a.setMode(ModeConnecting)
	attempt := 0
	for {
		conn, err := a.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			attempt++
			a.logger.Warn("Push channel unavailable, polling",
				infralogger.Error(err),
				infralogger.Int("attempt", attempt),
			)
			a.fallBack(ctx, err)
			if !a.sleep(ctx, a.backoff.Backoff(attempt)) {
				return
			}
			continue
		}

		attempt = 0
		a.haltPolling()
		a.setMode(ModePush)
		a.logger.Info("Push channel connected", infralogger.String("url", a.cfg.PushURL))
		if pollErr := a.poll(ctx); pollErr != nil {
			a.logger.Warn("Baseline poll failed", infralogger.Error(pollErr))
		}

		readErr := a.readLoop(ctx, conn)
		if ctx.Err() != nil {
			return
		}
		a.logger.Warn("Push channel disconnected, polling", infralogger.Error(readErr))
		a.fallBack(ctx, readErr)
		if !a.sleep(ctx, a.cfg.ReconnectDelay) {
			return
		}
	}
}

func (a *Adapter) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if a.headers != nil {
		h, err := a.headers()
		if err != nil {
			return nil, fmt.Errorf("build push headers: %w", err)
		}
		header = h
	}

	dialCtx, cancel := context.WithTimeout(ctx, a.cfg.ConnectTimeout)
	defer cancel()

	conn, resp, err := a.dialer.DialContext(dialCtx, a.cfg.PushURL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial push channel: %w", err)
	}
	conn.SetReadLimit(maxFrameBytes)
	return conn, nil
}

// readLoop dispatches frames until the connection fails or ctx is done. Any
// frame or pong extends the read deadline, so a half-open connection fails
// after PongWait.
func (a *Adapter) readLoop(ctx context.Context, conn *websocket.Conn) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	extend := func() error {
		return conn.SetReadDeadline(time.Now().Add(a.cfg.PongWait))
	}
	if err := extend(); err != nil {
		return fmt.Errorf("set read deadline: %w", err)
	}
	conn.SetPongHandler(func(string) error { return extend() })

	done := make(chan struct{})
	defer close(done)
	a.wg.Add(1)
	go a.pingLoop(conn, done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := extend(); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}
		a.handleFrame(data)
	}
}

// pingLoop keeps the push channel alive until done is closed. A failed ping
// is left to the read deadline.
func (a *Adapter) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(a.cfg.ConnectTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				a.logger.Debug("Push ping failed", infralogger.Error(err))
			}
		}
	}
}

func (a *Adapter) handleFrame(data []byte) {
	ev, err := normalize.Event(data, a.now().UTC())
	if err != nil {
		a.logger.Warn("Dropping unparseable push frame", infralogger.Error(err))
		a.mu.Lock()
		a.parseFailures++
		a.state.LastError = err.Error()
		a.refreshLocked()
		a.mu.Unlock()
		a.publish()
		return
	}

	a.sink.ApplyEvent(ev)

	a.mu.Lock()
	a.parseFailures = 0
	a.state.LastSync = a.now()
	a.refreshLocked()
	a.mu.Unlock()
	a.publish()
}

// fallBack switches to polling after a push failure.
func (a *Adapter) fallBack(ctx context.Context, cause error) {
	a.mu.Lock()
	if cause != nil {
		a.state.LastError = cause.Error()
	}
	a.mu.Unlock()
	a.setMode(ModePolling)
	a.startPolling(ctx)
}

func (a *Adapter) startPolling(ctx context.Context) {
	a.mu.Lock()
	if a.stopPolling != nil {
		a.mu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	a.stopPolling = func() {
		cancel()
		<-done
	}
	a.mu.Unlock()

	go func() {
		defer close(done)
		a.pollLoop(pollCtx)
	}()
}

func (a *Adapter) haltPolling() {
	a.mu.Lock()
	stop := a.stopPolling
	a.stopPolling = nil
	a.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (a *Adapter) pollLoop(ctx context.Context) {
	if err := a.poll(ctx); err != nil && ctx.Err() == nil {
		a.logger.Warn("Poll failed", infralogger.Error(err))
	}

	ticker := jitterbug.New(a.cfg.PollInterval, &jitterbug.Norm{Stdev: a.cfg.PollJitter})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.poll(ctx); err != nil && ctx.Err() == nil {
				a.logger.Warn("Poll failed", infralogger.Error(err))
			}
		}
	}
}

// poll runs one listing through the circuit breaker. An open breaker skips
// the request without counting another failure.
func (a *Adapter) poll(ctx context.Context) error {
	err := a.breaker.Execute(ctx, func() error {
		pollCtx, cancel := context.WithTimeout(ctx, a.cfg.PollTimeout)
		defer cancel()

		jobs, err := a.lister.ListJobs(pollCtx)
		if err != nil {
			return err
		}
		a.sink.Resync(jobs)
		return nil
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}

	a.mu.Lock()
	switch {
	case err == nil:
		a.pollFailures = 0
		a.state.LastSync = a.now()
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
	default:
		a.pollFailures++
		a.state.LastError = err.Error()
	}
	a.refreshLocked()
	a.mu.Unlock()
	a.publish()
	return err
}

func (a *Adapter) setMode(mode Mode) {
	a.mu.Lock()
	if a.state.Mode == mode {
		a.mu.Unlock()
		return
	}
	a.state.Mode = mode
	a.state.Since = a.now()
	if mode == ModePush {
		a.pollFailures = 0
	}
	a.refreshLocked()
	a.mu.Unlock()

	a.logger.Debug("Transport mode changed", infralogger.String("mode", string(mode)))
	a.publish()
}

// refreshLocked recomputes derived badge fields. Callers hold a.mu.
func (a *Adapter) refreshLocked() {
	failures := max(a.pollFailures, a.parseFailures)
	a.state.ConsecutiveFailures = failures
	a.state.Degraded = failures >= a.cfg.DegradedThreshold
	a.state.Breaker = a.breaker.State().String()
}

func (a *Adapter) publish() {
	if a.onState != nil {
		a.onState(a.State())
	}
}

func (a *Adapter) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
