package config

import (
	"strconv"
	"time"
)

// ServerConfig holds HTTP listener configuration.
type ServerConfig struct {
	Host            string        `env:"SERVER_HOST"             yaml:"host"`
	Port            int           `env:"SERVER_PORT"             yaml:"port"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT"     yaml:"read_timeout"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT"    yaml:"write_timeout"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" yaml:"shutdown_timeout"`
	CORSOrigins     []string      `env:"SERVER_CORS_ORIGINS"     yaml:"cors_origins"`
}

// Address returns host:port.
func (c *ServerConfig) Address() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// SetDefaults applies default values for ServerConfig.
func (c *ServerConfig) SetDefaults(defaultPort int) {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 15 * time.Second
	}
	// SSE streams stay open, so writes are bounded by the heartbeat instead.
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// Validate checks the listener port.
func (c *ServerConfig) Validate() error {
	return ValidatePort("server.port", c.Port)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Enabled  bool   `env:"REDIS_ENABLED"  yaml:"enabled"`
	Address  string `env:"REDIS_ADDRESS"  yaml:"address"`
	Password string `env:"REDIS_PASSWORD" yaml:"password"`
	DB       int    `env:"REDIS_DB"       yaml:"db"`
}

// SetDefaults applies default values for RedisConfig.
func (c *RedisConfig) SetDefaults() {
	if c.Address == "" {
		c.Address = "localhost:6379"
	}
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level       string `env:"LOG_LEVEL"       yaml:"level"`
	Development bool   `env:"LOG_DEVELOPMENT" yaml:"development"`
}

// SetDefaults applies default values for LoggingConfig.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}

// Validate checks the level name.
func (c *LoggingConfig) Validate() error {
	return ValidateLogLevel(c.Level)
}
