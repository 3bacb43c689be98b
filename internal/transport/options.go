package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Dialer opens the push channel. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithDialer replaces the WebSocket dialer.
func WithDialer(d Dialer) Option {
	return func(a *Adapter) {
		a.dialer = d
	}
}

// WithHeaders supplies the push handshake headers, typically auth and tenant.
func WithHeaders(fn func() (http.Header, error)) Option {
	return func(a *Adapter) {
		a.headers = fn
	}
}

// WithOnStateChange registers a callback fired whenever the badge changes.
func WithOnStateChange(fn func(State)) Option {
	return func(a *Adapter) {
		a.onState = fn
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) {
		a.now = now
	}
}
