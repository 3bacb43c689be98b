package bootstrap

import (
	"fmt"

	infraconfig "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/config"
	infralogger "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/config"
)

// DefaultConfigPath is used when neither --config nor CONFIG_PATH is set.
const DefaultConfigPath = "config.yml"

// LoadConfig loads configuration from path, falling back to CONFIG_PATH.
func LoadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = infraconfig.GetConfigPath(DefaultConfigPath)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// CreateLogger creates a logger from configuration. A non-empty level
// overrides the configured one; outputs default to stdout.
func CreateLogger(cfg *config.Config, level string, outputs ...string) (infralogger.Logger, error) {
	logCfg := cfg.LoggerConfig()
	logCfg.OutputPaths = outputs
	if level != "" {
		if err := infraconfig.ValidateLogLevel(level); err != nil {
			return nil, err
		}
		logCfg.Level = level
	}
	log, err := infralogger.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log.With(infralogger.String("version", cfg.Service.Version)), nil
}
