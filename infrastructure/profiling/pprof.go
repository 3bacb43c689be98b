// Package profiling serves the net/http/pprof endpoints on a private listener.
package profiling

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	infralogger "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/logger"
)

// DefaultAddress binds to loopback only.
const DefaultAddress = "localhost:6060"

const shutdownTimeout = 2 * time.Second

// Config enables the pprof listener.
type Config struct {
	Enabled bool   `env:"ENABLE_PROFILING" yaml:"enabled"`
	Address string `env:"PPROF_ADDRESS"    yaml:"address"`
}

// SetDefaults applies the loopback address.
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = DefaultAddress
	}
}

// Handler returns a mux exposing /debug/pprof/.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

// Start serves pprof until ctx is cancelled. It is a no-op when disabled and
// returns the bound address otherwise.
func Start(ctx context.Context, cfg Config, log infralogger.Logger) (string, error) {
	if !cfg.Enabled {
		return "", nil
	}
	cfg.SetDefaults()
	log = infralogger.OrNop(log)

	ln, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return "", err
	}
	srv := &http.Server{Handler: Handler(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if serveErr := srv.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			log.Error("pprof server error", infralogger.Error(serveErr))
		}
	}()
	go func() {
		<-ctx.Done()
		//nolint:contextcheck // the parent context is already cancelled
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	addr := ln.Addr().String()
	log.Info("Starting pprof server", infralogger.String("address", addr))
	return addr, nil
}
