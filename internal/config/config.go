package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration. It is constructed once at
// startup and passed by reference into each component constructor.
type Config struct {
	// Brokerage API
	BrokerKeyID     string
	BrokerSecretKey string
	BrokerBaseURL   string
	BrokerDataURL   string
	BrokerStreamURL string

	// Risk Management
	RiskMaxPositionSizePct float64
	RiskMaxOrderValue      float64
	RiskDailyLossLimitPct  float64

	// Execution
	MaxRetries       int
	RetryDelays      []time.Duration
	OrderPollLimit   int
	OrderPollDelay   time.Duration
	RecoveryInterval time.Duration

	// Live data
	UsePrimaryStream      bool
	PrimaryReconnectDelay time.Duration
	FallbackReconnect     time.Duration
	RedisAddr             string
	RedisChannel          string

	// Persistence
	DatabasePath string

	// Performance
	CacheTTL    time.Duration
	HTTPTimeout time.Duration

	// Metrics
	MetricsAddr string
}

// Load reads configuration from the environment (with optional .env file).
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not found)
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("BROKER_BASE_URL", "https://paper-api.alpaca.markets")
	v.SetDefault("BROKER_DATA_URL", "https://data.alpaca.markets")
	v.SetDefault("BROKER_STREAM_URL", "wss://stream.data.alpaca.markets/v2/iex")

	v.SetDefault("RISK_MAX_POSITION_SIZE_PCT", 0.05)
	v.SetDefault("RISK_MAX_ORDER_VALUE", 10000.0)
	v.SetDefault("RISK_DAILY_LOSS_LIMIT_PCT", 0.02)

	v.SetDefault("MAX_RETRIES", 3)
	v.SetDefault("ORDER_POLL_LIMIT", 10)
	v.SetDefault("ORDER_POLL_DELAY_MS", 5000)
	v.SetDefault("RECOVERY_INTERVAL_S", 300)

	v.SetDefault("USE_PRIMARY_STREAM", true)
	v.SetDefault("PRIMARY_RECONNECT_DELAY_S", 15)
	v.SetDefault("FALLBACK_RECONNECT_DELAY_S", 10)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_CHANNEL", "live_bars")

	v.SetDefault("DATABASE_PATH", "data/live_trading.db")

	v.SetDefault("CACHE_TTL_MS", 5000)
	v.SetDefault("HTTP_TIMEOUT_MS", 3000)

	v.SetDefault("METRICS_ADDR", "")

	cfg := &Config{
		BrokerKeyID:     v.GetString("BROKER_KEY_ID"),
		BrokerSecretKey: v.GetString("BROKER_SECRET_KEY"),
		BrokerBaseURL:   v.GetString("BROKER_BASE_URL"),
		BrokerDataURL:   v.GetString("BROKER_DATA_URL"),
		BrokerStreamURL: v.GetString("BROKER_STREAM_URL"),

		RiskMaxPositionSizePct: v.GetFloat64("RISK_MAX_POSITION_SIZE_PCT"),
		RiskMaxOrderValue:      v.GetFloat64("RISK_MAX_ORDER_VALUE"),
		RiskDailyLossLimitPct:  v.GetFloat64("RISK_DAILY_LOSS_LIMIT_PCT"),

		MaxRetries:       v.GetInt("MAX_RETRIES"),
		RetryDelays:      []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second},
		OrderPollLimit:   v.GetInt("ORDER_POLL_LIMIT"),
		OrderPollDelay:   time.Duration(v.GetInt64("ORDER_POLL_DELAY_MS")) * time.Millisecond,
		RecoveryInterval: time.Duration(v.GetInt64("RECOVERY_INTERVAL_S")) * time.Second,

		UsePrimaryStream:      v.GetBool("USE_PRIMARY_STREAM"),
		PrimaryReconnectDelay: time.Duration(v.GetInt64("PRIMARY_RECONNECT_DELAY_S")) * time.Second,
		FallbackReconnect:     time.Duration(v.GetInt64("FALLBACK_RECONNECT_DELAY_S")) * time.Second,
		RedisAddr:             v.GetString("REDIS_ADDR"),
		RedisChannel:          v.GetString("REDIS_CHANNEL"),

		DatabasePath: v.GetString("DATABASE_PATH"),

		CacheTTL:    time.Duration(v.GetInt64("CACHE_TTL_MS")) * time.Millisecond,
		HTTPTimeout: time.Duration(v.GetInt64("HTTP_TIMEOUT_MS")) * time.Millisecond,

		MetricsAddr: v.GetString("METRICS_ADDR"),
	}

	// Validate required fields
	if cfg.BrokerKeyID == "" || cfg.BrokerSecretKey == "" {
		return nil, fmt.Errorf("BROKER_KEY_ID and BROKER_SECRET_KEY must be set")
	}
	if cfg.MaxRetries > len(cfg.RetryDelays) {
		cfg.MaxRetries = len(cfg.RetryDelays)
	}

	return cfg, nil
}
