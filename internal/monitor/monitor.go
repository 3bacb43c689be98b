// Package monitor assembles the fleet monitor: the source registry, the job
// reconciler, the live transport and the command dispatcher, plus the fan-out
// of every change to SSE subscribers and metrics.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	infralogger "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/retry"
	"github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/sse"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/audit"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/dispatcher"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/domain"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/metrics"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/reconciler"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/registry"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/scraper"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/transport"
)

// ErrUnknownJob is returned for job ids neither live nor recent.
var ErrUnknownJob = errors.New("unknown job")

// ErrNotStarted is returned by Stop before Start.
var ErrNotStarted = errors.New("monitor not started")

const (
	// outcomeQueue bounds unlisted jobs awaiting a history lookup.
	outcomeQueue    = 32
	outcomeTimeout  = 10 * time.Second
	outcomePageSize = domain.DefaultHistoryPageSize
)

// Config configures a Monitor. Zero values select each component's defaults.
type Config struct {
	Reconciler     reconciler.Config
	Transport      transport.Config
	CommandTimeout time.Duration
	// LoadRetry governs the initial source load.
	LoadRetry retry.Config
}

// Monitor owns every component for one scraper fleet.
type Monitor struct {
	cfg    Config
	api    scraper.API
	logger infralogger.Logger
	now    func() time.Time

	jobs      *reconciler.Reconciler
	sources   *registry.Registry
	transport *transport.Adapter
	commands  *dispatcher.Dispatcher

	events  sse.Publisher
	metrics *metrics.Metrics
	audit   *audit.Publisher
	dialer  transport.Dialer
	onView  func(View)

	reload   chan struct{}
	outcomes chan domain.Job

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
	wg      sync.WaitGroup
}

// New wires the components. Nothing talks to the backend until Start.
func New(cfg Config, api scraper.API, log infralogger.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		cfg:    cfg,
		api:    api,
		logger: infralogger.OrNop(log).With(infralogger.Component("monitor")),
		now:    time.Now,
		reload:   make(chan struct{}, 1),
		outcomes: make(chan domain.Job, outcomeQueue),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.jobs = reconciler.New(cfg.Reconciler, log, reconciler.WithHooks(reconciler.Hooks{
		OnChange:          m.changed,
		OnResyncRequested: m.resyncRequested,
		OnAnomaly:         m.anomaly,
		OnFinished:        m.finished,
		OnUnlisted:        m.unlisted,
	}))

	m.sources = registry.New(api, log, registry.WithOnChange(m.changed))

	transportOpts := []transport.Option{
		transport.WithHeaders(api.PushHeaders),
		transport.WithOnStateChange(m.connectionChanged),
	}
	if m.dialer != nil {
		transportOpts = append(transportOpts, transport.WithDialer(m.dialer))
	}
	m.transport = transport.New(cfg.Transport, api, m.jobs, log, transportOpts...)

	cmdOpts := []dispatcher.Option{
		dispatcher.WithTimeout(cfg.CommandTimeout),
		dispatcher.WithOnChange(m.changed),
		dispatcher.WithRecorder(recorderFunc(m.commandSettled)),
	}
	if m.metrics != nil {
		cmdOpts = append(cmdOpts, dispatcher.WithRecorder(m.metrics))
	}
	if m.audit != nil {
		cmdOpts = append(cmdOpts, dispatcher.WithRecorder(m.audit))
	}
	m.commands = dispatcher.New(api, m.jobs, m.sources, log, cmdOpts...)

	return m
}

// Start loads the source list and starts live delivery. A failed initial load
// is logged, not returned; the registry stays empty until a refresh succeeds.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.cancel != nil || m.stopped {
		m.mu.Unlock()
		return transport.ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	if _, err := m.sources.LoadWithRetry(runCtx, m.cfg.LoadRetry); err != nil {
		m.logger.Warn("Initial source load failed", infralogger.Error(err))
	}

	if err := m.transport.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("start transport: %w", err)
	}

	m.wg.Add(2)
	go m.reloadLoop(runCtx)
	go m.outcomeLoop(runCtx)

	m.logger.Info("Fleet monitor started",
		infralogger.Int("sources", len(m.sources.Entries())),
		infralogger.Bool("push_configured", m.cfg.Transport.PushURL != ""),
	)
	return nil
}

// Stop tears down delivery and closes the reconciler, so results of commands
// still in flight are discarded.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	cancel := m.cancel
	if cancel == nil || m.stopped {
		m.mu.Unlock()
		return ErrNotStarted
	}
	m.stopped = true
	m.mu.Unlock()

	cancel()
	m.transport.Stop()
	m.wg.Wait()
	m.jobs.Close()
	m.audit.Wait()

	m.logger.Info("Fleet monitor stopped")
	return nil
}

// View returns the current snapshot.
func (m *Monitor) View() View {
	return buildView(
		m.sources.Entries(),
		m.jobs.Snapshot(),
		m.commands.Pending(),
		m.transport.State(),
		m.sources.LoadedAt(),
		m.now(),
	)
}

// Sources returns the registry entries.
func (m *Monitor) Sources() []registry.Entry {
	return m.sources.Entries()
}

// Connection returns the transport badge.
func (m *Monitor) Connection() transport.State {
	return m.transport.State()
}

// Jobs returns the live and recent jobs.
func (m *Monitor) Jobs() reconciler.Snapshot {
	return m.jobs.Snapshot()
}

// RefreshSources reloads the source list.
func (m *Monitor) RefreshSources(ctx context.Context) ([]registry.Entry, error) {
	return m.sources.Load(ctx)
}

// Sync reloads the source list and polls the jobs listing once, in that order.
func (m *Monitor) Sync(ctx context.Context) error {
	if _, err := m.sources.Load(ctx); err != nil {
		return fmt.Errorf("sync sources: %w", err)
	}
	if err := m.transport.PollNow(ctx); err != nil {
		return fmt.Errorf("sync jobs: %w", err)
	}
	return nil
}

// History fetches one page of past runs.
func (m *Monitor) History(ctx context.Context, q domain.HistoryQuery) (domain.HistoryPage, error) {
	page, err := m.api.ListHistory(ctx, q.Normalize())
	if err != nil {
		return domain.HistoryPage{}, fmt.Errorf("history: %w", err)
	}
	return page, nil
}

// Logs returns a job's log buffer, oldest first.
func (m *Monitor) Logs(jobID string) ([]domain.LogEntry, error) {
	if _, ok := m.jobs.Job(jobID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}
	return m.jobs.Logs(jobID), nil
}

// Execute triggers an on-demand run of a source.
func (m *Monitor) Execute(ctx context.Context, name string) (string, error) {
	return m.commands.Execute(ctx, name)
}

// Cancel cancels a job.
func (m *Monitor) Cancel(ctx context.Context, jobID string) error {
	return m.commands.Cancel(ctx, jobID)
}

// Toggle enables or disables a source.
func (m *Monitor) Toggle(ctx context.Context, name string, active bool) (registry.ToggleOutcome, error) {
	return m.commands.Toggle(ctx, name, active)
}

// Schedule sets a source's cron schedule.
func (m *Monitor) Schedule(ctx context.Context, name, expr string) (time.Time, error) {
	return m.commands.Schedule(ctx, name, expr)
}

// reloadLoop serves coalesced job_started reloads: the source list first, so
// a new job can be correlated, then the jobs listing.
func (m *Monitor) reloadLoop(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.reload:
		}

		if _, err := m.sources.Load(ctx); err != nil && ctx.Err() == nil {
			m.logger.Warn("Source reload after job start failed", infralogger.Error(err))
		}
		if err := m.transport.PollNow(ctx); err != nil && ctx.Err() == nil {
			m.logger.Warn("Job poll after job start failed", infralogger.Error(err))
		}
	}
}

// outcomeLoop looks up jobs that left the listing in the history endpoint and
// gives up on those it cannot find.
func (m *Monitor) outcomeLoop(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-m.outcomes:
			m.settle(ctx, job)
		}
	}
}

func (m *Monitor) settle(ctx context.Context, job domain.Job) {
	lookupCtx, cancel := context.WithTimeout(ctx, outcomeTimeout)
	defer cancel()

	page, err := m.api.ListHistory(lookupCtx, domain.HistoryQuery{
		TargetName: job.SourceName,
		PageSize:   outcomePageSize,
	}.Normalize())
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.logger.Warn("History lookup for unlisted job failed",
			infralogger.JobID(job.ID),
			infralogger.Source(job.SourceName),
			infralogger.Error(err),
		)
		m.jobs.Abandon(job.ID)
		return
	}

	for _, rec := range page.Items {
		if rec.JobID != job.ID || !rec.Status.IsTerminal() {
			continue
		}
		m.jobs.Settle(domain.Job{
			ID:            rec.JobID,
			SourceName:    rec.SourceName,
			Status:        rec.Status,
			ProductsFound: rec.ProductsFound,
			ErrorsCount:   rec.ErrorsCount,
			StartedAt:     rec.StartedAt,
			CompletedAt:   rec.CompletedAt,
		})
		return
	}

	m.logger.Debug("Unlisted job not found in history", infralogger.JobID(job.ID), infralogger.Source(job.SourceName))
	m.jobs.Abandon(job.ID)
}

func (m *Monitor) unlisted(job domain.Job) {
	select {
	case m.outcomes <- job:
	default:
		m.jobs.Abandon(job.ID)
	}
}

func (m *Monitor) resyncRequested(ev domain.Event) {
	m.logger.Debug("Job started, scheduling resync", infralogger.JobID(ev.JobID), infralogger.Source(ev.SourceName))
	select {
	case m.reload <- struct{}{}:
	default:
	}
}

func (m *Monitor) changed() {
	// Nil until New returns.
	if m.commands == nil || m.transport == nil {
		return
	}
	view := m.View()

	if m.metrics != nil {
		c := view.Counts()
		m.metrics.SetFleet(c.Sources, c.Active, c.Unsynced, c.LiveJobs)
	}
	if m.onView != nil {
		m.onView(view)
	}
	m.publish(sse.Event{Type: sse.EventTypeMonitorUpdate, Data: view})
}

func (m *Monitor) connectionChanged(s transport.State) {
	if m.metrics != nil {
		m.metrics.SetTransport(s)
	}
	m.publish(sse.Event{Type: sse.EventTypeConnectionState, Data: s})
	if s.Degraded {
		m.logger.Warn("Live transport degraded",
			infralogger.String("mode", string(s.Mode)),
			infralogger.Int("consecutive_failures", s.ConsecutiveFailures),
			infralogger.String("last_error", s.LastError),
		)
	}
	m.changed()
}

func (m *Monitor) anomaly(a reconciler.Anomaly) {
	if m.metrics != nil {
		m.metrics.ObserveAnomaly(a)
	}
}

func (m *Monitor) finished(job domain.Job) {
	if m.metrics != nil {
		m.metrics.ObserveFinished(job)
	}
	m.audit.RecordJob(job)
}

// CommandResult is the payload of command:result events.
type CommandResult struct {
	Action   dispatcher.Action   `json:"action"`
	Target   string              `json:"target"`
	JobID    string              `json:"job_id,omitempty"`
	Success  bool                `json:"success"`
	Category dispatcher.Category `json:"category,omitempty"`
	Message  string              `json:"message,omitempty"`
	At       time.Time           `json:"at"`
}

func (m *Monitor) commandSettled(_ context.Context, o dispatcher.Outcome) {
	result := CommandResult{
		Action:   o.Action,
		Target:   o.Target,
		JobID:    o.JobID,
		Success:  o.Err == nil,
		Category: o.Category,
		At:       o.At,
	}
	var ce *dispatcher.CommandError
	if errors.As(o.Err, &ce) {
		result.Message = ce.Message
	}
	m.publish(sse.Event{Type: sse.EventTypeCommandResult, Data: result})
}

func (m *Monitor) publish(event sse.Event) {
	if m.events == nil {
		return
	}
	if err := m.events.Publish(context.Background(), event); err != nil {
		m.logger.Debug("SSE publish skipped", infralogger.String("event_type", event.Type), infralogger.Error(err))
	}
}

type recorderFunc func(ctx context.Context, o dispatcher.Outcome)

func (f recorderFunc) Record(ctx context.Context, o dispatcher.Outcome) { f(ctx, o) }
