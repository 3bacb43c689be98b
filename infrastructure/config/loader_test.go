package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infraconfig "github.com/jonesrussell/north-cloud/fleet-monitor/infrastructure/config"
)

type sampleConfig struct {
	Name     string        `env:"SAMPLE_NAME"     yaml:"name"`
	Interval time.Duration `env:"SAMPLE_INTERVAL" yaml:"interval"`
	Origins  []string      `env:"SAMPLE_ORIGINS"  yaml:"origins"`
	Nested   struct {
		Enabled bool `env:"SAMPLE_ENABLED" yaml:"enabled"`
	} `yaml:"nested"`
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_YAMLWithEnvOverrides(t *testing.T) {
	path := writeFile(t, "name: file\ninterval: 2s\nnested:\n  enabled: false\n")
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("SAMPLE_INTERVAL", "3s")
	t.Setenv("SAMPLE_ORIGINS", "http://a, http://b")
	t.Setenv("SAMPLE_ENABLED", "yes")

	cfg, err := infraconfig.Load[sampleConfig](path)
	require.NoError(t, err)

	assert.Equal(t, "file", cfg.Name)
	assert.Equal(t, 3*time.Second, cfg.Interval)
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.Origins)
	assert.True(t, cfg.Nested.Enabled)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	_, err := infraconfig.Load[sampleConfig](filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)

	cfg, err := infraconfig.LoadOptional[sampleConfig](filepath.Join(t.TempDir(), "nope.yml"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Name)
}

func TestLoadWithDefaults_EnvWins(t *testing.T) {
	path := writeFile(t, "name: file\n")
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("SAMPLE_INTERVAL", "5s")

	cfg, err := infraconfig.LoadWithDefaults(path, func(c *sampleConfig) {
		if c.Interval == 0 {
			c.Interval = time.Second
		}
		c.Name = "defaulted"
	})
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Interval)
	assert.Equal(t, "defaulted", cfg.Name)
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv(infraconfig.ConfigPathEnv, "")
	assert.Equal(t, "config.yml", infraconfig.GetConfigPath("config.yml"))

	t.Setenv(infraconfig.ConfigPathEnv, "/etc/fleet.yml")
	assert.Equal(t, "/etc/fleet.yml", infraconfig.GetConfigPath("config.yml"))
}

func TestValidators(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"port ok", infraconfig.ValidatePort("p", 8080), false},
		{"port zero", infraconfig.ValidatePort("p", 0), true},
		{"url ok", infraconfig.ValidateURL("u", "ws://host/ws", "ws", "wss"), false},
		{"url empty", infraconfig.ValidateURL("u", "", "http"), false},
		{"url scheme", infraconfig.ValidateURL("u", "ftp://host", "http"), true},
		{"url relative", infraconfig.ValidateURL("u", "/path", "http"), true},
		{"range ok", infraconfig.ValidateDurationRange("d", 3*time.Second, 2*time.Second, 5*time.Second), false},
		{"range low", infraconfig.ValidateDurationRange("d", time.Second, 2*time.Second, 5*time.Second), true},
		{"level", infraconfig.ValidateLogLevel("verbose"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.wantErr {
				assert.NoError(t, tt.err)
				return
			}
			var vErr *infraconfig.ValidationError
			assert.True(t, errors.As(tt.err, &vErr))
		})
	}
}
