// Package sse fans fleet monitor updates out to Server-Sent Events clients.
package sse

import (
	"context"
	"strings"
	"time"
)

// Event represents a Server-Sent Event.
// Wire format: event: <Type>\nid: <ID>\ndata: <JSON payload>\n\n
type Event struct {
	// Type is the event type (e.g. "monitor:update").
	Type string `json:"type"`
	// Data is the JSON-serializable payload.
	Data any `json:"data"`
	// ID is an optional event ID for client-side tracking.
	ID string `json:"id,omitempty"`
	// Retry tells the client how long to wait before reconnecting (milliseconds).
	Retry int `json:"retry,omitempty"`
}

// Event types published by the fleet monitor.
const (
	// EventTypeMonitorUpdate carries a full monitor view.
	EventTypeMonitorUpdate = "monitor:update"
	// EventTypeConnectionState carries the live transport badge.
	EventTypeConnectionState = "connection:state"
	// EventTypeCommandResult carries the outcome of an operator command.
	EventTypeCommandResult = "command:result"
)

const (
	eventTypeConnected = "connected"

	// DefaultEventBufferSize is the broker's publish queue length.
	DefaultEventBufferSize = 256
	// DefaultClientBufferSize is the per-client queue length.
	DefaultClientBufferSize = 32
	// DefaultHeartbeatInterval keeps idle connections open through proxies.
	DefaultHeartbeatInterval = 15 * time.Second
	// DefaultShutdownTimeout bounds Stop.
	DefaultShutdownTimeout = 5 * time.Second
	// DefaultMaxClients bounds concurrent subscribers.
	DefaultMaxClients = 100
)

// Publisher sends events to the broker.
type Publisher interface {
	// Publish queues an event for every connected client. It never blocks;
	// a full queue drops the event and returns an error.
	Publish(ctx context.Context, event Event) error
}

// Subscriber receives events from the broker.
type Subscriber interface {
	// Subscribe returns a channel that is closed when the subscription ends.
	Subscribe(ctx context.Context, opts ...ClientOption) (<-chan Event, func())
}

// Broker manages SSE connections and event distribution.
type Broker interface {
	Publisher
	Subscriber
	// Start begins processing events (non-blocking).
	Start(ctx context.Context) error
	// Stop gracefully shuts down the broker.
	Stop() error
	// ClientCount returns the number of connected clients.
	ClientCount() int
}

// EventFilter reports whether an event should be delivered to a client.
type EventFilter func(event Event) bool

// TypePrefixFilter delivers only events whose type starts with one of prefixes.
func TypePrefixFilter(prefixes ...string) EventFilter {
	return func(event Event) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(event.Type, p) {
				return true
			}
		}
		return false
	}
}
