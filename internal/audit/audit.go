// Package audit appends operator command outcomes and finished jobs to a
// Redis stream.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	infralogger "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/dispatcher"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/domain"
)

// DefaultStream is the Redis stream written when no name is configured.
const DefaultStream = "fleet-monitor:audit"

// asyncPublishTimeout bounds each background append.
const asyncPublishTimeout = 5 * time.Second

// defaultMaxLen caps the stream length (approximate trimming).
const defaultMaxLen = 10000

// EventType identifies an audit record.
type EventType string

const (
	// CommandSettled records a finished operator command.
	CommandSettled EventType = "COMMAND_SETTLED"
	// JobFinished records a job reaching a terminal status.
	JobFinished EventType = "JOB_FINISHED"
)

// Event is the envelope stored under the "event" field of each stream entry.
type Event struct {
	EventID   uuid.UUID `json:"event_id"`
	EventType EventType `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// CommandPayload describes a settled command.
type CommandPayload struct {
	Action     string `json:"action"`
	Target     string `json:"target"`
	JobID      string `json:"job_id,omitempty"`
	Success    bool   `json:"success"`
	Category   string `json:"category,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// JobPayload describes a finished job.
type JobPayload struct {
	JobID         string           `json:"job_id"`
	SourceName    string           `json:"source_name"`
	Status        domain.JobStatus `json:"status"`
	ProductsFound int              `json:"products_found"`
	ErrorsCount   int              `json:"errors_count"`
	StartedAt     time.Time        `json:"started_at"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
	// Unlisted is set when the final status is unknown; Status is the last
	// one observed.
	Unlisted bool `json:"unlisted,omitempty"`
}

// Publisher writes audit events. A nil *Publisher is a valid no-op.
type Publisher struct {
	client *redis.Client
	stream string
	maxLen int64
	log    infralogger.Logger
	now    func() time.Time

	wg sync.WaitGroup
}

// NewPublisher creates a publisher on stream. Returns nil if client is nil.
func NewPublisher(client *redis.Client, stream string, log infralogger.Logger) *Publisher {
	if client == nil {
		return nil
	}
	if stream == "" {
		stream = DefaultStream
	}
	return &Publisher{
		client: client,
		stream: stream,
		maxLen: defaultMaxLen,
		log:    infralogger.OrNop(log).With(infralogger.Component("audit")),
		now:    time.Now,
	}
}

var _ dispatcher.Recorder = (*Publisher)(nil)

// Publish appends an event to the stream.
func (p *Publisher) Publish(ctx context.Context, event Event) error {
	if p == nil || p.client == nil {
		return nil
	}

	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	result := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"type":  string(event.EventType),
			"event": string(payload),
		},
	})
	if err := result.Err(); err != nil {
		return fmt.Errorf("publish to stream %s: %w", p.stream, err)
	}

	p.log.Debug("Published audit event",
		infralogger.String("event_type", string(event.EventType)),
		infralogger.String("stream_id", result.Val()),
	)
	return nil
}

// PublishAsync publishes in the background. Errors are logged, not returned.
func (p *Publisher) PublishAsync(event Event) {
	if p == nil {
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), asyncPublishTimeout)
		defer cancel()

		if err := p.Publish(ctx, event); err != nil {
			p.log.Error("Async audit publish failed",
				infralogger.String("event_type", string(event.EventType)),
				infralogger.Error(err),
			)
		}
	}()
}

// Record implements dispatcher.Recorder.
func (p *Publisher) Record(_ context.Context, o dispatcher.Outcome) {
	if p == nil {
		return
	}
	payload := CommandPayload{
		Action:     string(o.Action),
		Target:     o.Target,
		JobID:      o.JobID,
		Success:    o.Err == nil,
		Category:   string(o.Category),
		DurationMS: o.Duration.Milliseconds(),
	}
	if o.Err != nil {
		payload.Error = o.Err.Error()
	}
	p.PublishAsync(Event{EventType: CommandSettled, Timestamp: o.At, Payload: payload})
}

// RecordJob records a job that reached a terminal status.
func (p *Publisher) RecordJob(job domain.Job) {
	if p == nil {
		return
	}
	p.PublishAsync(Event{
		EventType: JobFinished,
		Payload: JobPayload{
			JobID:         job.ID,
			SourceName:    job.SourceName,
			Status:        job.Status,
			ProductsFound: job.ProductsFound,
			ErrorsCount:   job.ErrorsCount,
			StartedAt:     job.StartedAt,
			CompletedAt:   job.CompletedAt,
			Unlisted:      job.Unlisted,
		},
	})
}

// Wait blocks until background publishes have finished.
func (p *Publisher) Wait() {
	if p == nil {
		return
	}
	p.wg.Wait()
}
