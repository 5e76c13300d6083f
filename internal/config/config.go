// Package config loads the engine's configuration from a YAML file plus
// environment overrides, grounded on the teacher's config.Load
// (godotenv + yaml.v3, env overrides, then defaults).
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the engine's full runtime configuration (spec §6 "Configuration").
type Config struct {
	TradingMode string        `yaml:"trading_mode"` // PAPER | LIVE
	Risk        RiskConfig    `yaml:"risk"`
	RateLimit   RateLimit     `yaml:"rate_limit"`
	Broker      BrokerConfig  `yaml:"broker"`
	Storage     StorageConfig `yaml:"storage"`
	Queue       QueueConfig   `yaml:"queue"`
	Log         LogConfig     `yaml:"log"`
	MarketData  MarketDataConfig `yaml:"market_data"`
	Users       []UserConfig  `yaml:"users"`
}

// MarketDataConfig selects and configures the tick source. In PAPER mode the
// simulator is always used regardless of these fields; they govern LIVE
// mode's websocket subscriber.
type MarketDataConfig struct {
	WebSocketURL   string   `yaml:"websocket_url"`
	Symbols        []string `yaml:"symbols"`
	TickIntervalMS int      `yaml:"tick_interval_ms"` // paper-mode simulator cadence
}

// UserConfig seeds one user's MTM starting capital and the strategy
// instances the engine loads at boot. The HTTP front-end that would
// otherwise let an operator create these (spec.md §6) is out of scope here;
// this config file is the CLI-only equivalent (spec §6 "cmd/engine exposes
// the equivalent operations").
type UserConfig struct {
	UserID     string           `yaml:"user_id"`
	Capital    float64          `yaml:"capital"`
	Strategies []StrategyConfig `yaml:"strategies"`
}

// StrategyConfig mirrors domain.StrategyConfig for YAML loading.
type StrategyConfig struct {
	ID                string         `yaml:"id"`
	StrategyType      string         `yaml:"strategy_type"`
	Symbol            string         `yaml:"symbol"`
	Quantity          int            `yaml:"quantity"`
	Parameters        map[string]any `yaml:"parameters"`
	StopLossPercent   float64        `yaml:"stop_loss_percent"`
	TakeProfitPercent float64        `yaml:"take_profit_percent"`
	MaxTradesPerDay   int            `yaml:"max_trades_per_day"`
}

// RiskConfig mirrors risk.Limits; kept as a separate YAML-tagged struct so
// the risk package itself stays free of serialization concerns.
type RiskConfig struct {
	MaxDailyLoss         float64 `yaml:"max_daily_loss"`
	MaxTradeSize         float64 `yaml:"max_trade_size"`
	MaxOpenPositions     int     `yaml:"max_open_positions"`
	MaxRiskPerTrade      float64 `yaml:"max_risk_per_trade"`
	MaxTradesPerDay      int     `yaml:"max_trades_per_day"`
	ConsecutiveLossLimit int     `yaml:"consecutive_loss_limit"`
	LiveSafeMode         bool    `yaml:"live_safe_mode"`
}

// RateLimit bounds outbound broker requests.
type RateLimit struct {
	WindowMS     int `yaml:"window_ms"`
	MaxRequests  int `yaml:"max_requests"`
}

// BrokerConfig holds the live-broker vendor credentials. Secrets are only
// ever populated from the environment, never committed to the YAML file.
type BrokerConfig struct {
	APIKey        string `yaml:"-"`
	ClientID      string `yaml:"-"`
	Password      string `yaml:"-"`
	TOTPSecret    string `yaml:"-"`
	Exchange      string `yaml:"exchange"`
	BaseURL       string `yaml:"base_url"`
}

// StorageConfig controls where durable state is persisted.
type StorageConfig struct {
	DSN string `yaml:"dsn"`
}

// QueueConfig controls the per-user order queue's ephemeral dedup state
// (spec §4.4). When RedisURL is empty the queue falls back to an in-memory
// dedup set, which is fine for a single engine process but does not survive
// a restart or share state across instances.
type QueueConfig struct {
	RedisURL string `yaml:"redis_url"`
}

// LogConfig controls slog's level and handler format.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML config at path, applies a .env file if present (via
// godotenv), then lets environment variables win for the keys spec §6 names
// explicitly (secrets and the risk-limit overrides ops commonly tune
// per-deployment).
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRADING_MODE"); v != "" {
		cfg.TradingMode = v
	}
	if v, ok := floatEnv("MAX_DAILY_LOSS"); ok {
		cfg.Risk.MaxDailyLoss = v
	}
	if v, ok := floatEnv("MAX_TRADE_SIZE"); ok {
		cfg.Risk.MaxTradeSize = v
	}
	if v, ok := intEnv("MAX_OPEN_POSITIONS"); ok {
		cfg.Risk.MaxOpenPositions = v
	}
	if v, ok := floatEnv("MAX_RISK_PER_TRADE"); ok {
		cfg.Risk.MaxRiskPerTrade = v
	}
	if v, ok := intEnv("MAX_TRADES_PER_DAY"); ok {
		cfg.Risk.MaxTradesPerDay = v
	}
	if v, ok := intEnv("CONSECUTIVE_LOSS_LIMIT"); ok {
		cfg.Risk.ConsecutiveLossLimit = v
	}
	if v := os.Getenv("LIVE_SAFE_MODE"); v != "" {
		cfg.Risk.LiveSafeMode = v == "true" || v == "1"
	}
	if v, ok := intEnv("RATE_LIMIT_WINDOW_MS"); ok {
		cfg.RateLimit.WindowMS = v
	}
	if v, ok := intEnv("RATE_LIMIT_MAX_REQUESTS"); ok {
		cfg.RateLimit.MaxRequests = v
	}

	if v := os.Getenv("QUEUE_REDIS_URL"); v != "" {
		cfg.Queue.RedisURL = v
	}

	cfg.Broker.APIKey = os.Getenv("ANGEL_API_KEY")
	cfg.Broker.ClientID = os.Getenv("ANGEL_CLIENT_ID")
	cfg.Broker.Password = firstNonEmpty(os.Getenv("ANGEL_PASSWORD"), os.Getenv("ANGEL_MPIN"))
	cfg.Broker.TOTPSecret = os.Getenv("ANGEL_TOTP_SECRET")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func setDefaults(cfg *Config) {
	if cfg.TradingMode == "" {
		cfg.TradingMode = "PAPER"
	}
	if cfg.Risk.MaxOpenPositions <= 0 {
		cfg.Risk.MaxOpenPositions = 5
	}
	if cfg.Risk.MaxTradesPerDay <= 0 {
		cfg.Risk.MaxTradesPerDay = 20
	}
	if cfg.Risk.ConsecutiveLossLimit <= 0 {
		cfg.Risk.ConsecutiveLossLimit = 3
	}
	if cfg.RateLimit.WindowMS <= 0 {
		cfg.RateLimit.WindowMS = 1000
	}
	if cfg.RateLimit.MaxRequests <= 0 {
		cfg.RateLimit.MaxRequests = 9
	}
	if cfg.Broker.Exchange == "" {
		cfg.Broker.Exchange = "NSE"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "tradecore.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.MarketData.TickIntervalMS <= 0 {
		cfg.MarketData.TickIntervalMS = 1000
	}
}

func floatEnv(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func intEnv(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
