package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
name: market-pulse
host: 127.0.0.1
port: 9090
`

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvHost, EnvPort, EnvLogLevel, EnvDBType, EnvDBPath, EnvDBConnStr, EnvNatsURL} {
		t.Setenv(k, "")
	}
}

func TestParseAppliesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "sqlite", cfg.Storage.DBType)
	assert.Equal(t, "market_pulse.db", cfg.Storage.DBPath)
	assert.Equal(t, DefaultRoster, cfg.Scheduler.Roster)
	assert.Equal(t, KnownStrategies, cfg.Scheduler.Strategies)
	assert.Equal(t, 256, cfg.WebSocket.SendBuffer)
	assert.Equal(t, "marketpulse", cfg.Bus.SubjectPrefix)

	assert.Equal(t, 5*time.Second, cfg.PriceInterval())
	assert.Equal(t, 30*time.Second, cfg.MoversInterval())
	assert.Equal(t, 30*time.Second, cfg.SignalInterval())
	assert.Equal(t, 60*time.Second, cfg.TrendingInterval())
}

func TestParseShippedDefaultFile(t *testing.T) {
	clearEnv(t)

	data, err := os.ReadFile(filepath.Join("..", "..", "config", "default.yaml"))
	require.NoError(t, err)

	cfg, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Len(t, cfg.Scheduler.Roster, 7)
	assert.Len(t, cfg.AllowedOrigins, 2)
}

func TestParseRejectsBadYAML(t *testing.T) {
	clearEnv(t)

	_, err := Parse([]byte("name: [unterminated"))
	assert.Error(t, err)
}

func TestParseEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPort, "9191")
	t.Setenv(EnvDBType, "memory")
	t.Setenv(EnvNatsURL, "nats://bus:4222")

	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Port)
	assert.Equal(t, "memory", cfg.Storage.DBType)
	assert.True(t, cfg.Bus.Enabled)
	assert.Equal(t, "nats://bus:4222", cfg.Bus.URL)
}

func TestApplyEnvRejectsBadPort(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(func(k string) string {
		if k == EnvPort {
			return "eighty"
		}
		return ""
	})
	assert.ErrorContains(t, err, EnvPort)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"default is valid", func(c *Config) {}, ""},
		{"empty name", func(c *Config) { c.Name = "" }, "application name"},
		{"privileged port", func(c *Config) { c.Port = 80 }, "invalid server port"},
		{"unknown db", func(c *Config) { c.Storage.DBType = "mongo" }, "unknown database type"},
		{"postgres without dsn", func(c *Config) { c.Storage.DBType = "postgres" }, "connection string"},
		{"zero interval", func(c *Config) { c.Scheduler.SignalIntervalSeconds = 0 }, "intervals"},
		{"empty roster", func(c *Config) { c.Scheduler.Roster = nil }, "roster"},
		{"blank symbol", func(c *Config) { c.Scheduler.Roster = []string{"AAPL", " "} }, "roster symbol 1"},
		{"unknown strategy", func(c *Config) { c.Scheduler.Strategies = []string{"astrology"} }, "unknown strategy"},
		{"bus without url", func(c *Config) { c.Bus.Enabled = true; c.Bus.URL = "" }, "bus url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)

	cfg := Default()
	cfg.Port = 9300
	cfg.Scheduler.Roster = []string{"IBM", "ORCL"}

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := NewConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9300, loaded.Port)
	assert.Equal(t, []string{"IBM", "ORCL"}, loaded.Scheduler.Roster)
}

func TestNewConfigMissingFile(t *testing.T) {
	_, err := NewConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}
