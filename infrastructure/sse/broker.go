package sse

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	infralogger "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/logger"
)

// ErrBrokerNotRunning is returned by Publish before Start or after Stop.
var ErrBrokerNotRunning = errors.New("sse broker not running")

var clientIDCounter atomic.Int64

type client struct {
	id     string
	events chan Event
	filter EventFilter
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

func newClient(ctx context.Context, bufferSize int, filter EventFilter) *client {
	clientCtx, cancel := context.WithCancel(ctx)
	return &client{
		id:     fmt.Sprintf("sse-client-%d", clientIDCounter.Add(1)),
		events: make(chan Event, bufferSize),
		filter: filter,
		ctx:    clientCtx,
		cancel: cancel,
	}
}

// send returns false when the client's queue is full.
func (c *client) send(event Event) bool {
	if c.filter != nil && !c.filter(event) {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.events <- event:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	close(c.events)
}

type broker struct {
	logger  infralogger.Logger
	clients map[string]*client
	mu      sync.RWMutex

	publish chan Event
	running atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	eventBufferSize  int
	clientBufferSize int
	shutdownTimeout  time.Duration
	maxClients       int
}

// NewBroker creates a new SSE broker.
func NewBroker(logger infralogger.Logger, opts ...BrokerOption) Broker {
	b := &broker{
		logger:           infralogger.OrNop(logger).With(infralogger.Component("sse")),
		clients:          make(map[string]*client),
		eventBufferSize:  DefaultEventBufferSize,
		clientBufferSize: DefaultClientBufferSize,
		shutdownTimeout:  DefaultShutdownTimeout,
		maxClients:       DefaultMaxClients,
	}

	for _, opt := range opts {
		opt(b)
	}

	b.publish = make(chan Event, b.eventBufferSize)
	return b
}

// Start begins the broadcast loop.
func (b *broker) Start(ctx context.Context) error {
	if !b.running.CompareAndSwap(false, true) {
		return nil
	}

	b.ctx, b.cancel = context.WithCancel(ctx)

	b.wg.Add(1)
	go b.broadcastLoop()

	b.logger.Info("SSE broker started",
		infralogger.Int("event_buffer_size", b.eventBufferSize),
		infralogger.Int("client_buffer_size", b.clientBufferSize),
		infralogger.Int("max_clients", b.maxClients),
	)
	return nil
}

// Stop gracefully shuts down the broker and disconnects every client.
func (b *broker) Stop() error {
	if !b.running.CompareAndSwap(true, false) {
		return nil
	}
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("SSE broker stopped")
	case <-time.After(b.shutdownTimeout):
		b.logger.Warn("SSE broker shutdown timeout exceeded")
	}
	return nil
}

// Publish queues an event without blocking.
func (b *broker) Publish(ctx context.Context, event Event) error {
	if !b.running.Load() {
		return ErrBrokerNotRunning
	}

	select {
	case b.publish <- event:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish cancelled: %w", ctx.Err())
	default:
		return fmt.Errorf("publish buffer full (dropped event: %s)", event.Type)
	}
}

// Subscribe registers a client. When the client limit is reached the returned
// channel is already closed.
func (b *broker) Subscribe(ctx context.Context, opts ...ClientOption) (events <-chan Event, cleanup func()) {
	clientOpts := ClientOptions{BufferSize: b.clientBufferSize}
	for _, opt := range opts {
		opt(&clientOpts)
	}

	c := newClient(ctx, clientOpts.BufferSize, clientOpts.Filter)

	b.mu.Lock()
	if b.maxClients > 0 && len(b.clients) >= b.maxClients {
		total := len(b.clients)
		b.mu.Unlock()
		b.logger.Warn("Max SSE clients reached, rejecting new connection",
			infralogger.Int("max_clients", b.maxClients),
			infralogger.Int("current_clients", total),
		)
		c.close()
		return c.events, func() {}
	}
	b.clients[c.id] = c
	total := len(b.clients)
	b.mu.Unlock()

	b.logger.Debug("Client subscribed",
		infralogger.String("client_id", c.id),
		infralogger.Int("total_clients", total),
	)

	go func() {
		<-c.ctx.Done()
		b.removeClient(c.id)
	}()

	return c.events, func() { b.removeClient(c.id) }
}

// ClientCount returns the number of connected clients.
func (b *broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *broker) broadcastLoop() {
	defer b.wg.Done()

	for {
		select {
		case event := <-b.publish:
			b.broadcast(event)
		case <-b.ctx.Done():
			b.disconnectAllClients()
			return
		}
	}
}

func (b *broker) broadcast(event Event) {
	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		if c.send(event) {
			continue
		}
		b.logger.Warn("Client buffer full, closing slow connection",
			infralogger.String("client_id", c.id),
			infralogger.String("event_type", event.Type),
		)
		b.removeClient(c.id)
	}
}

func (b *broker) removeClient(clientID string) {
	b.mu.Lock()
	c, exists := b.clients[clientID]
	delete(b.clients, clientID)
	b.mu.Unlock()

	if exists {
		c.close()
		b.logger.Debug("Client disconnected", infralogger.String("client_id", clientID))
	}
}

func (b *broker) disconnectAllClients() {
	b.mu.Lock()
	clients := b.clients
	b.clients = make(map[string]*client)
	b.mu.Unlock()

	for _, c := range clients {
		c.close()
	}

	b.logger.Info("All SSE clients disconnected", infralogger.Int("count", len(clients)))
}
