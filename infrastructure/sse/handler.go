package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	infralogger "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/logger"
)

const sseContentType = "text/event-stream"

// HandlerOptions configures Handler.
type HandlerOptions struct {
	// Initial, when set, produces the first event sent after the connected
	// event, so a fresh client starts from the current state.
	Initial func() Event
	// Heartbeat overrides DefaultHeartbeatInterval.
	Heartbeat time.Duration
	// Client options applied to the subscription.
	Client []ClientOption
}

// Handler streams broker events to the requesting client until it disconnects.
func Handler(broker Broker, logger infralogger.Logger, opts HandlerOptions) gin.HandlerFunc {
	logger = infralogger.OrNop(logger)
	heartbeat := opts.Heartbeat
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeatInterval
	}

	return func(c *gin.Context) {
		events, cleanup := broker.Subscribe(c.Request.Context(), opts.Client...)
		defer cleanup()

		setHeaders(c.Writer)
		c.Status(http.StatusOK)

		connected := Event{
			Type: eventTypeConnected,
			Data: map[string]any{"timestamp": time.Now().UTC().Format(time.RFC3339)},
		}
		if err := writeEvent(c.Writer, connected); err != nil {
			logger.Debug("Failed to write connection event", infralogger.Error(err))
			return
		}
		if opts.Initial != nil {
			if err := writeEvent(c.Writer, opts.Initial()); err != nil {
				return
			}
		}

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		for {
			select {
			case event, ok := <-events:
				if !ok {
					return
				}
				if err := writeEvent(c.Writer, event); err != nil {
					logger.Debug("SSE write failed (client likely disconnected)",
						infralogger.Error(err),
						infralogger.String("event_type", event.Type),
					)
					return
				}
			case <-ticker.C:
				if _, err := fmt.Fprintf(c.Writer, ": heartbeat %s\n\n", time.Now().UTC().Format(time.RFC3339)); err != nil {
					return
				}
				c.Writer.Flush()
			case <-c.Request.Context().Done():
				return
			}
		}
	}
}

func setHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", sseContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// Encode writes event in SSE wire format.
func Encode(w io.Writer, event Event) error {
	if event.Type != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
			return fmt.Errorf("write event type: %w", err)
		}
	}
	if event.ID != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", event.ID); err != nil {
			return fmt.Errorf("write event id: %w", err)
		}
	}
	if event.Retry > 0 {
		if _, err := fmt.Fprintf(w, "retry: %d\n", event.Retry); err != nil {
			return fmt.Errorf("write retry: %w", err)
		}
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write event data: %w", err)
	}
	return nil
}

func writeEvent(w gin.ResponseWriter, event Event) error {
	if err := Encode(w, event); err != nil {
		return err
	}
	w.Flush()
	return nil
}
