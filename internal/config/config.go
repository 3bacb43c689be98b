// Package config defines the fleet monitor's configuration file and its
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"time"

	infraconfig "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/config"
	infragin "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/gin"
	infralogger "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/profiling"
	"github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/retry"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/dispatcher"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/domain"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/monitor"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/reconciler"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/scraper"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/transport"
)

const (
	defaultServerPort   = 8095
	defaultServiceName  = "fleet-monitor"
	defaultAuditStream  = "fleet-monitor:audit"
	minPollInterval     = 500 * time.Millisecond
	maxPollInterval     = time.Minute
	minCommandTimeout   = time.Second
	maxCommandTimeout   = 2 * time.Minute
	defaultLoadAttempts = 5
)

// Config is the root configuration.
type Config struct {
	Service   ServiceConfig             `yaml:"service"`
	Server    infraconfig.ServerConfig  `yaml:"server"`
	Scraper   ScraperConfig             `yaml:"scraper"`
	Monitor   MonitorConfig             `yaml:"monitor"`
	Redis     RedisConfig               `yaml:"redis"`
	Auth      AuthConfig                `yaml:"auth"`
	Logging   infraconfig.LoggingConfig `yaml:"logging"`
	Profiling profiling.Config          `yaml:"profiling"`
}

// ServiceConfig identifies the running instance.
type ServiceConfig struct {
	Name    string `env:"SERVICE_NAME"    yaml:"name"`
	Version string `env:"SERVICE_VERSION" yaml:"version"`
	Debug   bool   `env:"APP_DEBUG"       yaml:"debug"`
}

// ScraperConfig points at the scraper service.
type ScraperConfig struct {
	BaseURL string `env:"SCRAPER_BASE_URL" yaml:"base_url"`
	// PushURL is the WebSocket endpoint; empty means polling only.
	PushURL        string        `env:"SCRAPER_PUSH_URL"        yaml:"push_url"`
	Token          string        `env:"SCRAPER_TOKEN"           yaml:"token"`
	JWTSecret      string        `env:"SCRAPER_JWT_SECRET"      yaml:"jwt_secret"`
	TenantID       string        `env:"SCRAPER_TENANT_ID"       yaml:"tenant_id"`
	TenantHeader   string        `env:"SCRAPER_TENANT_HEADER"   yaml:"tenant_header"`
	RequestTimeout time.Duration `env:"SCRAPER_REQUEST_TIMEOUT" yaml:"request_timeout"`
}

// MonitorConfig tunes delivery, commands and job retention.
type MonitorConfig struct {
	PollInterval      time.Duration `env:"MONITOR_POLL_INTERVAL"      yaml:"poll_interval"`
	PollTimeout       time.Duration `env:"MONITOR_POLL_TIMEOUT"       yaml:"poll_timeout"`
	ConnectTimeout    time.Duration `env:"MONITOR_CONNECT_TIMEOUT"    yaml:"connect_timeout"`
	ReconnectDelay    time.Duration `env:"MONITOR_RECONNECT_DELAY"    yaml:"reconnect_delay"`
	ReconnectMax      time.Duration `env:"MONITOR_RECONNECT_MAX"      yaml:"reconnect_max"`
	PongWait          time.Duration `env:"MONITOR_PONG_WAIT"          yaml:"pong_wait"`
	DegradedThreshold int           `env:"MONITOR_DEGRADED_THRESHOLD" yaml:"degraded_threshold"`
	CommandTimeout    time.Duration `env:"MONITOR_COMMAND_TIMEOUT"    yaml:"command_timeout"`
	LogCapacity       int           `env:"MONITOR_LOG_CAPACITY"       yaml:"log_capacity"`
	RecentCapacity    int           `env:"MONITOR_RECENT_CAPACITY"    yaml:"recent_capacity"`
	TentativeTTL      time.Duration `env:"MONITOR_TENTATIVE_TTL"      yaml:"tentative_ttl"`
	LoadAttempts      int           `env:"MONITOR_LOAD_ATTEMPTS"      yaml:"load_attempts"`
}

// AuthConfig protects the HTTP API. An empty secret disables authentication.
type AuthConfig struct {
	JWTSecret string `env:"AUTH_JWT_SECRET" yaml:"jwt_secret"`
}

// RedisConfig enables the optional command audit stream.
type RedisConfig struct {
	infraconfig.RedisConfig `yaml:",inline"`
	AuditStream             string `env:"REDIS_AUDIT_STREAM" yaml:"audit_stream"`
}

// Load reads path (a missing file is allowed), applies defaults and
// environment overrides, then validates.
func Load(path string) (*Config, error) {
	cfg, err := infraconfig.LoadWithDefaults(path, setDefaults)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Service.Name == "" {
		cfg.Service.Name = defaultServiceName
	}
	if cfg.Service.Version == "" {
		cfg.Service.Version = "dev"
	}

	cfg.Server.SetDefaults(defaultServerPort)
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}

	if cfg.Scraper.BaseURL == "" {
		cfg.Scraper.BaseURL = scraper.DefaultBaseURL
	}
	if cfg.Scraper.TenantHeader == "" {
		cfg.Scraper.TenantHeader = scraper.DefaultTenantHeader
	}
	if cfg.Scraper.RequestTimeout == 0 {
		cfg.Scraper.RequestTimeout = scraper.DefaultTimeout
	}

	m := &cfg.Monitor
	if m.PollInterval == 0 {
		m.PollInterval = transport.DefaultPollInterval
	}
	if m.PollTimeout == 0 {
		m.PollTimeout = transport.DefaultPollTimeout
	}
	if m.ConnectTimeout == 0 {
		m.ConnectTimeout = transport.DefaultConnectTimeout
	}
	if m.ReconnectDelay == 0 {
		m.ReconnectDelay = transport.DefaultReconnectDelay
	}
	if m.ReconnectMax == 0 {
		m.ReconnectMax = transport.DefaultReconnectMax
	}
	if m.PongWait == 0 {
		m.PongWait = transport.DefaultPongWait
	}
	if m.DegradedThreshold == 0 {
		m.DegradedThreshold = transport.DefaultDegradedThreshold
	}
	if m.CommandTimeout == 0 {
		m.CommandTimeout = dispatcher.DefaultTimeout
	}
	if m.LogCapacity == 0 {
		m.LogCapacity = domain.DefaultLogCapacity
	}
	if m.RecentCapacity == 0 {
		m.RecentCapacity = reconciler.DefaultRecentCapacity
	}
	if m.TentativeTTL == 0 {
		m.TentativeTTL = reconciler.DefaultTentativeTTL
	}
	if m.LoadAttempts == 0 {
		m.LoadAttempts = defaultLoadAttempts
	}

	cfg.Redis.RedisConfig.SetDefaults()
	if cfg.Redis.AuditStream == "" {
		cfg.Redis.AuditStream = defaultAuditStream
	}

	cfg.Logging.SetDefaults()
	cfg.Profiling.SetDefaults()
}

// Validate checks every section.
func (c *Config) Validate() error {
	return infraconfig.ValidateAll(
		&c.Server,
		&c.Scraper,
		&c.Monitor,
		&c.Logging,
	)
}

// Validate checks the scraper endpoints.
func (c *ScraperConfig) Validate() error {
	if err := infraconfig.ValidateRequired("scraper.base_url", c.BaseURL); err != nil {
		return err
	}
	return errors.Join(
		infraconfig.ValidateURL("scraper.base_url", c.BaseURL, "http", "https"),
		infraconfig.ValidateURL("scraper.push_url", c.PushURL, "ws", "wss"),
	)
}

// Validate checks the monitor timings and capacities.
func (c *MonitorConfig) Validate() error {
	return errors.Join(
		infraconfig.ValidateDurationRange("monitor.poll_interval", c.PollInterval, minPollInterval, maxPollInterval),
		infraconfig.ValidateDurationRange("monitor.command_timeout", c.CommandTimeout, minCommandTimeout, maxCommandTimeout),
		infraconfig.ValidatePositive("monitor.degraded_threshold", c.DegradedThreshold),
		infraconfig.ValidatePositive("monitor.log_capacity", c.LogCapacity),
		infraconfig.ValidatePositive("monitor.recent_capacity", c.RecentCapacity),
		infraconfig.ValidatePositive("monitor.load_attempts", c.LoadAttempts),
	)
}

// ScraperOptions returns the scraper client options for this config.
func (c *Config) ScraperOptions() []scraper.Option {
	opts := []scraper.Option{
		scraper.WithBaseURL(c.Scraper.BaseURL),
		scraper.WithTimeout(c.Scraper.RequestTimeout),
		scraper.WithTenant(c.Scraper.TenantID, c.Scraper.TenantHeader),
	}
	if c.Scraper.Token != "" {
		opts = append(opts, scraper.WithToken(c.Scraper.Token))
	}
	if c.Scraper.JWTSecret != "" {
		opts = append(opts, scraper.WithJWTSecret(c.Scraper.JWTSecret))
	}
	return opts
}

// ReconcilerConfig returns the job retention settings.
func (c *Config) ReconcilerConfig() reconciler.Config {
	return reconciler.Config{
		LogCapacity:    c.Monitor.LogCapacity,
		RecentCapacity: c.Monitor.RecentCapacity,
		TentativeTTL:   c.Monitor.TentativeTTL,
	}
}

// TransportConfig returns the live transport settings.
func (c *Config) TransportConfig() transport.Config {
	return transport.Config{
		PushURL:           c.Scraper.PushURL,
		PollInterval:      c.Monitor.PollInterval,
		PollTimeout:       c.Monitor.PollTimeout,
		ConnectTimeout:    c.Monitor.ConnectTimeout,
		ReconnectDelay:    c.Monitor.ReconnectDelay,
		ReconnectMax:      c.Monitor.ReconnectMax,
		DegradedThreshold: c.Monitor.DegradedThreshold,
		PongWait:          c.Monitor.PongWait,
	}
}

// MonitorConfig assembles the monitor settings.
func (c *Config) MonitorConfig() monitor.Config {
	loadRetry := retry.DefaultConfig()
	loadRetry.MaxAttempts = c.Monitor.LoadAttempts
	return monitor.Config{
		Reconciler:     c.ReconcilerConfig(),
		Transport:      c.TransportConfig(),
		CommandTimeout: c.Monitor.CommandTimeout,
		LoadRetry:      loadRetry,
	}
}

// ServerConfig returns the HTTP server settings.
func (c *Config) ServerConfig() infragin.Config {
	return infragin.Config{
		Address:         c.Server.Address(),
		Debug:           c.Service.Debug,
		ReadTimeout:     c.Server.ReadTimeout,
		WriteTimeout:    c.Server.WriteTimeout,
		ShutdownTimeout: c.Server.ShutdownTimeout,
		CORS:            infragin.CORSConfig{AllowedOrigins: c.Server.CORSOrigins},
		ServiceName:     c.Service.Name,
		ServiceVersion:  c.Service.Version,
	}
}

// LoggerConfig returns the logger settings.
func (c *Config) LoggerConfig() infralogger.Config {
	return infralogger.Config{
		Level:       c.Logging.Level,
		Development: c.Logging.Development,
		Service:     c.Service.Name,
	}
}
