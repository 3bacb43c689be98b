// Package http builds the outbound HTTP clients used to reach the scraper service.
package http

import (
	"crypto/tls"
	"net/http"
	"time"
)

const (
	// DefaultTimeout is the default timeout for HTTP requests.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxIdleConnsPerHost bounds idle keep-alive connections per host.
	DefaultMaxIdleConnsPerHost = 10
	// DefaultIdleConnTimeout is the default idle connection timeout.
	DefaultIdleConnTimeout = 90 * time.Second
	// DefaultTLSHandshakeTimeout is the default TLS handshake timeout.
	DefaultTLSHandshakeTimeout = 10 * time.Second
)

// ClientConfig configures an HTTP client.
type ClientConfig struct {
	// Timeout limits the whole request. Zero selects DefaultTimeout.
	Timeout time.Duration
	// TLSConfig replaces the default TLS configuration when set.
	TLSConfig *tls.Config
	// MaxIdleConnsPerHost bounds idle keep-alive connections per host.
	MaxIdleConnsPerHost int
	// IdleConnTimeout is how long an idle connection is kept.
	IdleConnTimeout time.Duration
	// TLSHandshakeTimeout bounds the TLS handshake.
	TLSHandshakeTimeout time.Duration
}

// NewClient creates an HTTP client with pooled keep-alive connections.
// A nil cfg selects all defaults.
func NewClient(cfg *ClientConfig) *http.Client {
	if cfg == nil {
		cfg = &ClientConfig{}
	}

	timeout := orDefault(cfg.Timeout, DefaultTimeout)

	perHost := cfg.MaxIdleConnsPerHost
	if perHost == 0 {
		perHost = DefaultMaxIdleConnsPerHost
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConnsPerHost:   perHost,
		IdleConnTimeout:       orDefault(cfg.IdleConnTimeout, DefaultIdleConnTimeout),
		TLSHandshakeTimeout:   orDefault(cfg.TLSHandshakeTimeout, DefaultTLSHandshakeTimeout),
		ResponseHeaderTimeout: timeout,
		TLSClientConfig:       cfg.TLSConfig,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d == 0 {
		return def
	}
	return d
}
