// Package gin provides the HTTP server, middleware and health endpoints of the
// fleet monitor API.
package gin

import (
	"net/http"
	"time"
)

// Default timeout values for HTTP server configuration.
const (
	DefaultReadTimeout     = 15 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultCORSMaxAge      = 12 * time.Hour
)

// Config holds the HTTP server configuration.
type Config struct {
	// Address is the listen address, e.g. ":8095".
	Address string
	// Debug enables Gin debug mode.
	Debug bool
	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration
	// WriteTimeout bounds response writes. Zero leaves streaming responses unbounded.
	WriteTimeout time.Duration
	// IdleTimeout is the maximum amount of time to wait for the next request.
	IdleTimeout time.Duration
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration
	// CORS holds the CORS configuration.
	CORS CORSConfig
	// ServiceName is reported by the health endpoint.
	ServiceName string
	// ServiceVersion is reported by the health endpoint.
	ServiceVersion string
}

// CORSConfig holds the CORS middleware configuration.
type CORSConfig struct {
	// AllowedOrigins lists permitted origins; "*" allows all. Empty disables CORS.
	AllowedOrigins []string
	// AllowedMethods is a list of methods the client is allowed to use.
	AllowedMethods []string
	// AllowedHeaders is a list of non-simple headers the client may send.
	AllowedHeaders []string
	// MaxAge indicates how long preflight results can be cached.
	MaxAge time.Duration
}

// SetDefaults applies default values where unset.
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8095"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "dev"
	}
	c.CORS.SetDefaults()
}

// SetDefaults applies default values to the CORS config where unset.
func (c *CORSConfig) SetDefaults() {
	if len(c.AllowedMethods) == 0 {
		c.AllowedMethods = []string{
			http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions,
		}
	}
	if len(c.AllowedHeaders) == 0 {
		c.AllowedHeaders = []string{
			"Origin", "Content-Type", "Accept", "Authorization", "Cache-Control", "X-Request-ID", "Last-Event-ID",
		}
	}
	if c.MaxAge == 0 {
		c.MaxAge = DefaultCORSMaxAge
	}
}
