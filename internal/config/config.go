package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log        LoggingConfig    `yaml:"log"`
	Gamma      RESTConfig       `yaml:"gamma"`
	Clob       RESTConfig       `yaml:"clob"`
	WS         WSConfig         `yaml:"ws"`
	State      StateConfig      `yaml:"state"`
	Permission PermissionConfig `yaml:"permission"`
	Trading    TradingConfig    `yaml:"trading"`
	Strategy   StrategyConfig   `yaml:"strategy"`
	Safety     SafetyConfig     `yaml:"safety"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Timescale  TimescaleConfig  `yaml:"timescale"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type RESTConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type WSConfig struct {
	URL            string        `yaml:"url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type PermissionConfig struct {
	DailyLimitUSD float64       `yaml:"daily_limit_usd"`
	WindowDays    int           `yaml:"window_days"`
	Token         string        `yaml:"token"`
	PollInterval  time.Duration `yaml:"poll_interval"`
}

type TradingConfig struct {
	Pairs            []string      `yaml:"pairs"`
	TradeSizeUSD     float64       `yaml:"trade_size_usd"`
	Epsilon          float64       `yaml:"epsilon"`
	TakerFeeRate     float64       `yaml:"taker_fee_rate"`
	SlippageCoeff    float64       `yaml:"slippage_coeff"`
	SlippageExponent float64       `yaml:"slippage_exponent"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	FetchTimeout     time.Duration `yaml:"fetch_timeout"`
	SubmitTimeout    time.Duration `yaml:"submit_timeout"`
	LatencyMeanMS    int           `yaml:"latency_mean_ms"`
	AdverseMoveStd   float64       `yaml:"adverse_move_std"`
}

type StrategyConfig struct {
	ConservativeThreshold float64       `yaml:"conservative_threshold"`
	AggressiveThreshold   float64       `yaml:"aggressive_threshold"`
	ConservativeMinEdge   float64       `yaml:"conservative_min_edge"`
	NormalMinEdge         float64       `yaml:"normal_min_edge"`
	AggressiveMinEdge     float64       `yaml:"aggressive_min_edge"`
	ProfitTargetSpread    float64       `yaml:"profit_target_spread"`
	StopLossSpread        float64       `yaml:"stop_loss_spread"`
	MaxHoldTime           time.Duration `yaml:"max_hold_time"`
}

type SafetyConfig struct {
	MaxDataDelay           time.Duration `yaml:"max_data_delay"`
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures"`
	SafeModeCooldown       time.Duration `yaml:"safe_mode_cooldown"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Gamma.BaseURL == "" {
		cfg.Gamma.BaseURL = "https://gamma-api.polymarket.com"
	}
	if cfg.Gamma.Timeout == 0 {
		cfg.Gamma.Timeout = 10 * time.Second
	}
	if cfg.Clob.BaseURL == "" {
		cfg.Clob.BaseURL = "https://clob.polymarket.com"
	}
	if cfg.Clob.Timeout == 0 {
		cfg.Clob.Timeout = 10 * time.Second
	}
	if cfg.WS.URL == "" {
		cfg.WS.URL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	}
	if cfg.WS.ReconnectDelay == 0 {
		cfg.WS.ReconnectDelay = 3 * time.Second
	}
	if cfg.WS.PingInterval == 0 {
		cfg.WS.PingInterval = 10 * time.Second
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/polyshark.db"
	}
	if cfg.Permission.WindowDays == 0 {
		cfg.Permission.WindowDays = 1
	}
	if cfg.Permission.PollInterval == 0 {
		cfg.Permission.PollInterval = 30 * time.Second
	}
	if cfg.Trading.TradeSizeUSD == 0 {
		cfg.Trading.TradeSizeUSD = 10
	}
	if cfg.Trading.Epsilon == 0 {
		cfg.Trading.Epsilon = 0.001
	}
	if cfg.Trading.TakerFeeRate == 0 {
		cfg.Trading.TakerFeeRate = 0.002
	}
	if cfg.Trading.SlippageCoeff == 0 {
		cfg.Trading.SlippageCoeff = 0.1
	}
	if cfg.Trading.SlippageExponent == 0 {
		cfg.Trading.SlippageExponent = 1.5
	}
	if cfg.Trading.PollInterval == 0 {
		cfg.Trading.PollInterval = 5 * time.Second
	}
	if cfg.Trading.FetchTimeout == 0 {
		cfg.Trading.FetchTimeout = 10 * time.Second
	}
	if cfg.Trading.SubmitTimeout == 0 {
		cfg.Trading.SubmitTimeout = 10 * time.Second
	}
	if cfg.Trading.LatencyMeanMS == 0 {
		cfg.Trading.LatencyMeanMS = 150
	}
	if cfg.Strategy.ConservativeThreshold == 0 {
		cfg.Strategy.ConservativeThreshold = 0.30
	}
	if cfg.Strategy.AggressiveThreshold == 0 {
		cfg.Strategy.AggressiveThreshold = 0.70
	}
	if cfg.Strategy.ConservativeMinEdge == 0 {
		cfg.Strategy.ConservativeMinEdge = 0.05
	}
	if cfg.Strategy.NormalMinEdge == 0 {
		cfg.Strategy.NormalMinEdge = 0.02
	}
	if cfg.Strategy.AggressiveMinEdge == 0 {
		cfg.Strategy.AggressiveMinEdge = 0.01
	}
	if cfg.Strategy.ProfitTargetSpread == 0 {
		cfg.Strategy.ProfitTargetSpread = 0.005
	}
	if cfg.Strategy.StopLossSpread == 0 {
		cfg.Strategy.StopLossSpread = 0.05
	}
	if cfg.Strategy.MaxHoldTime == 0 {
		cfg.Strategy.MaxHoldTime = time.Hour
	}
	if cfg.Safety.MaxDataDelay == 0 {
		cfg.Safety.MaxDataDelay = 5 * time.Second
	}
	if cfg.Safety.MaxConsecutiveFailures == 0 {
		cfg.Safety.MaxConsecutiveFailures = 3
	}
	if cfg.Safety.SafeModeCooldown == 0 {
		cfg.Safety.SafeModeCooldown = 300 * time.Second
	}
	if cfg.Timescale.Schema == "" {
		cfg.Timescale.Schema = "public"
	}
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = ":9090"
	}
}

func validate(cfg *Config) error {
	if len(cfg.Trading.Pairs) == 0 {
		return errors.New("trading.pairs is required")
	}
	if cfg.Trading.TradeSizeUSD <= 0 {
		return errors.New("trading.trade_size_usd must be > 0")
	}
	if cfg.Permission.DailyLimitUSD <= 0 {
		return errors.New("permission.daily_limit_usd must be > 0")
	}
	if cfg.Trading.SlippageExponent <= 1 {
		return errors.New("trading.slippage_exponent must be > 1")
	}
	if cfg.Strategy.ConservativeThreshold >= cfg.Strategy.AggressiveThreshold {
		return errors.New("strategy.conservative_threshold must be below strategy.aggressive_threshold")
	}
	return nil
}
