package sse

import "time"

// BrokerOption configures a broker.
type BrokerOption func(*broker)

// WithEventBufferSize sets the publish queue length.
func WithEventBufferSize(size int) BrokerOption {
	return func(b *broker) {
		if size > 0 {
			b.eventBufferSize = size
		}
	}
}

// WithClientBufferSize sets the default per-client queue length.
func WithClientBufferSize(size int) BrokerOption {
	return func(b *broker) {
		if size > 0 {
			b.clientBufferSize = size
		}
	}
}

// WithShutdownTimeout bounds how long Stop waits for the broadcast loop.
func WithShutdownTimeout(timeout time.Duration) BrokerOption {
	return func(b *broker) {
		if timeout > 0 {
			b.shutdownTimeout = timeout
		}
	}
}

// WithMaxClients bounds concurrent subscribers. Zero means unlimited.
func WithMaxClients(maxClients int) BrokerOption {
	return func(b *broker) {
		if maxClients >= 0 {
			b.maxClients = maxClients
		}
	}
}

// ClientOptions configures a single subscription.
type ClientOptions struct {
	Filter     EventFilter
	BufferSize int
}

// ClientOption configures a subscription.
type ClientOption func(*ClientOptions)

// WithFilter restricts a subscription to events accepted by filter.
func WithFilter(filter EventFilter) ClientOption {
	return func(opts *ClientOptions) {
		opts.Filter = filter
	}
}

// WithBufferSize overrides the subscription queue length.
func WithBufferSize(size int) ClientOption {
	return func(opts *ClientOptions) {
		if size > 0 {
			opts.BufferSize = size
		}
	}
}
