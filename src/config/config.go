package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"market-pulse/src/analysis"
	"market-pulse/src/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variable names that override the YAML file
const (
	EnvHost      = "MARKETPULSE_HOST"
	EnvPort      = "MARKETPULSE_PORT"
	EnvLogLevel  = "MARKETPULSE_LOG_LEVEL"
	EnvDBType    = "MARKETPULSE_DB_TYPE"
	EnvDBPath    = "MARKETPULSE_DB_PATH"
	EnvDBConnStr = "MARKETPULSE_DB_DSN"
	EnvNatsURL   = "MARKETPULSE_NATS_URL"
)

// DefaultRoster is the fixed set of popular symbols the price cadence polls
var DefaultRoster = []string{"AAPL", "GOOGL", "MSFT", "AMZN", "TSLA", "NVDA", "META"}

// KnownStrategies are the strategy identifiers the signal cadence rotates through
var KnownStrategies = analysis.StrategyNames()

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new Config instance from a YAML file. A .env file next
// to the process, when present, is loaded first so that its values take part
// in the environment overrides.
func NewConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	return Parse(data)
}

// -----------------------------------------------------------------------------

// Parse builds a validated Config from raw YAML
func Parse(data []byte) (*Config, error) {
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.ApplyDefaults()

	if err := config.ApplyEnv(os.Getenv); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// Default returns a validated configuration with every default applied
func Default() *Config {
	c := &Config{MConfig: &models.MConfig{Name: "market-pulse", Host: "0.0.0.0", Port: 8080}}
	c.ApplyDefaults()
	return c
}

// -----------------------------------------------------------------------------

// ApplyDefaults fills every zero value with its default
func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}

	st := &c.Storage
	if st.DBType == "" {
		st.DBType = "sqlite"
	}
	if st.DBType == "sqlite" && st.DBPath == "" {
		st.DBPath = "market_pulse.db"
	}
	if st.RetentionDays == 0 {
		st.RetentionDays = 30
	}
	if st.WriteBuffer == 0 {
		st.WriteBuffer = 256
	}

	nw := &c.Network
	if nw.BaseURL == "" {
		nw.BaseURL = "https://query1.finance.yahoo.com"
	}
	if nw.RequestTimeout == 0 {
		nw.RequestTimeout = 10
	}
	if nw.RetryBaseDelayMs == 0 {
		nw.RetryBaseDelayMs = 250
	}
	if nw.BreakerMaxRequests == 0 {
		nw.BreakerMaxRequests = 5
	}
	if nw.BreakerIntervalSeconds == 0 {
		nw.BreakerIntervalSeconds = 60
	}
	if nw.BreakerTimeoutSeconds == 0 {
		nw.BreakerTimeoutSeconds = 30
	}

	sc := &c.Scheduler
	if sc.PriceIntervalSeconds == 0 {
		sc.PriceIntervalSeconds = 5
	}
	if sc.MoversIntervalSeconds == 0 {
		sc.MoversIntervalSeconds = 30
	}
	if sc.SignalIntervalSeconds == 0 {
		sc.SignalIntervalSeconds = 30
	}
	if sc.TrendingIntervalSeconds == 0 {
		sc.TrendingIntervalSeconds = 60
	}
	if sc.UpstreamTimeoutSeconds == 0 {
		sc.UpstreamTimeoutSeconds = 8
	}
	if len(sc.Roster) == 0 {
		sc.Roster = append([]string(nil), DefaultRoster...)
	}
	if len(sc.Strategies) == 0 {
		sc.Strategies = append([]string(nil), KnownStrategies...)
	}
	if sc.MoversCount == 0 {
		sc.MoversCount = 10
	}
	if sc.TrendingCount == 0 {
		sc.TrendingCount = 10
	}
	if sc.SignalHistoryDays == 0 {
		sc.SignalHistoryDays = 90
	}

	ws := &c.WebSocket
	if ws.SendBuffer == 0 {
		ws.SendBuffer = 256
	}
	if ws.WriteWaitSeconds == 0 {
		ws.WriteWaitSeconds = 10
	}
	if ws.PongWaitSeconds == 0 {
		ws.PongWaitSeconds = 60
	}
	if ws.MaxMessageSize == 0 {
		ws.MaxMessageSize = 64 * 1024
	}

	if c.Bus.SubjectPrefix == "" {
		c.Bus.SubjectPrefix = "marketpulse"
	}
}

// -----------------------------------------------------------------------------

// ApplyEnv overrides selected fields from the environment lookup
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvHost); v != "" {
		c.Host = v
	}
	if v := getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPort, err)
		}
		c.Port = port
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := getenv(EnvDBType); v != "" {
		c.Storage.DBType = v
	}
	if v := getenv(EnvDBPath); v != "" {
		c.Storage.DBPath = v
	}
	if v := getenv(EnvDBConnStr); v != "" {
		c.Storage.DBConnectionString = v
	}
	if v := getenv(EnvNatsURL); v != "" {
		c.Bus.URL = v
		c.Bus.Enabled = true
	}
	return nil
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}
	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}

	switch c.Storage.DBType {
	case "sqlite":
		if c.Storage.DBPath == "" {
			return fmt.Errorf("database path cannot be empty for sqlite")
		}
	case "postgres":
		if c.Storage.DBConnectionString == "" {
			return fmt.Errorf("connection string cannot be empty for postgres")
		}
	case "memory", "none":
	default:
		return fmt.Errorf("unknown database type: %q", c.Storage.DBType)
	}
	if c.Storage.RetentionDays < 0 {
		return fmt.Errorf("retention days cannot be negative")
	}

	if c.Network.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be greater than 0")
	}
	if c.Network.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}

	sc := c.Scheduler
	if sc.PriceIntervalSeconds <= 0 || sc.MoversIntervalSeconds <= 0 ||
		sc.SignalIntervalSeconds <= 0 || sc.TrendingIntervalSeconds <= 0 {
		return fmt.Errorf("scheduler intervals must be greater than 0")
	}
	if sc.UpstreamTimeoutSeconds <= 0 {
		return fmt.Errorf("upstream timeout must be greater than 0")
	}
	if len(sc.Roster) == 0 {
		return fmt.Errorf("scheduler roster must contain at least one symbol")
	}
	for i, sym := range sc.Roster {
		if strings.TrimSpace(sym) == "" {
			return fmt.Errorf("roster symbol %d cannot be empty", i)
		}
	}
	for _, name := range sc.Strategies {
		if !analysis.IsKnownStrategy(name) {
			return fmt.Errorf("unknown strategy: %q", name)
		}
	}

	if c.Bus.Enabled && c.Bus.URL == "" {
		return fmt.Errorf("bus url cannot be empty when the bus is enabled")
	}

	return nil
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}

// -----------------------------------------------------------------------------
// Duration helpers
// -----------------------------------------------------------------------------

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (c *Config) RequestTimeout() time.Duration { return seconds(c.Network.RequestTimeout) }

func (c *Config) UpstreamTimeout() time.Duration { return seconds(c.Scheduler.UpstreamTimeoutSeconds) }

func (c *Config) PriceInterval() time.Duration { return seconds(c.Scheduler.PriceIntervalSeconds) }

func (c *Config) MoversInterval() time.Duration { return seconds(c.Scheduler.MoversIntervalSeconds) }

func (c *Config) SignalInterval() time.Duration { return seconds(c.Scheduler.SignalIntervalSeconds) }

func (c *Config) TrendingInterval() time.Duration { return seconds(c.Scheduler.TrendingIntervalSeconds) }
