package models

// MConfig Structure
type MConfig struct {
	Name           string           `yaml:"name"`
	Host           string           `yaml:"host"`
	Port           int              `yaml:"port"`
	LogLevel       string           `yaml:"log_level"`
	LogFormat      string           `yaml:"log_format"`
	AllowedOrigins []string         `yaml:"allowed_origins"`
	Storage        MStorageConfig   `yaml:"storage"`
	Network        MNetworkConfig   `yaml:"network"`
	Scheduler      MSchedulerConfig `yaml:"scheduler"`
	WebSocket      MWebSocketConfig `yaml:"websocket"`
	Bus            MBusConfig       `yaml:"bus"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"` // sqlite, postgres, memory, none
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
	RetentionDays      int    `yaml:"retention_days"`
	WriteBuffer        int    `yaml:"write_buffer"`
}

type MNetworkConfig struct {
	Enabled                bool     `yaml:"enabled"` // proxy rotation
	Proxies                []string `yaml:"proxies"`
	BaseURL                string   `yaml:"base_url"`
	RequestTimeout         int      `yaml:"timeout"`
	MaxRetries             int      `yaml:"retries"`
	RetryBaseDelayMs       int      `yaml:"retry_base_delay_ms"`
	UserAgent              string   `yaml:"user_agent"`
	BreakerMaxRequests     uint32   `yaml:"breaker_max_requests"`
	BreakerIntervalSeconds int      `yaml:"breaker_interval_seconds"`
	BreakerTimeoutSeconds  int      `yaml:"breaker_timeout_seconds"`
}

type MSchedulerConfig struct {
	PriceIntervalSeconds    int      `yaml:"price_interval_seconds"`
	MoversIntervalSeconds   int      `yaml:"movers_interval_seconds"`
	SignalIntervalSeconds   int      `yaml:"signal_interval_seconds"`
	TrendingIntervalSeconds int      `yaml:"trending_interval_seconds"`
	UpstreamTimeoutSeconds  int      `yaml:"upstream_timeout_seconds"`
	Roster                  []string `yaml:"roster"`
	Strategies              []string `yaml:"strategies"`
	MoversCount             int      `yaml:"movers_count"`
	TrendingCount           int      `yaml:"trending_count"`
	SignalHistoryDays       int      `yaml:"signal_history_days"`
	RespectMarketHours      bool     `yaml:"respect_market_hours"`
}

type MWebSocketConfig struct {
	SendBuffer       int   `yaml:"send_buffer"`
	WriteWaitSeconds int   `yaml:"write_wait_seconds"`
	PongWaitSeconds  int   `yaml:"pong_wait_seconds"`
	MaxMessageSize   int64 `yaml:"max_message_size"`
}

type MBusConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}
