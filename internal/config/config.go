package config

import (
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Filter     FilterConfig     `yaml:"filter" mapstructure:"filter"`
	Chat       ChatConfig       `yaml:"chat" mapstructure:"chat"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures batch persistence.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	MaxUploadMB int      `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
}

// AnthropicConfig configures the chat model.
type AnthropicConfig struct {
	Key              string `yaml:"key" mapstructure:"key"`
	BaseURL          string `yaml:"base_url" mapstructure:"base_url"`
	Model            string `yaml:"model" mapstructure:"model"`
	MaxTokens        int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	BreakerThreshold int    `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int    `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// FetchConfig configures remote source downloads.
type FetchConfig struct {
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Concurrency int     `yaml:"concurrency" mapstructure:"concurrency"`
}

// Timeout returns TimeoutSecs as a duration.
func (c FetchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// FilterConfig configures the relevance filter.
type FilterConfig struct {
	MaxRecords int `yaml:"max_records" mapstructure:"max_records"`
}

// ChatConfig configures the chat assistant.
type ChatConfig struct {
	HistoryLimit int  `yaml:"history_limit" mapstructure:"history_limit"`
	Offline      bool `yaml:"offline" mapstructure:"offline"`
}

// MonitoringConfig configures the background portfolio risk watch. The
// watch runs only when WebhookURL is set.
type MonitoringConfig struct {
	WebhookURL          string `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs   int    `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours int    `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	// HighRiskShareThreshold is the fraction of clients in the High
	// category above which a batch is flagged.
	HighRiskShareThreshold float64 `yaml:"high_risk_share_threshold" mapstructure:"high_risk_share_threshold"`
	// Overdue90ThresholdUSD flags batches whose 90+ day AR exceeds it.
	// Zero disables the check.
	Overdue90ThresholdUSD float64 `yaml:"overdue_90_threshold_usd" mapstructure:"overdue_90_threshold_usd"`
	AverageScoreThreshold int     `yaml:"average_score_threshold" mapstructure:"average_score_threshold"`
}

// Enabled reports whether alerts have somewhere to go.
func (c MonitoringConfig) Enabled() bool { return c.WebhookURL != "" }

// Load reads config.yaml from the working directory if present, then
// RISK_* environment variables. ANTHROPIC_API_KEY is also accepted for
// the model key.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("RISK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("anthropic.key", "RISK_ANTHROPIC_KEY", "ANTHROPIC_API_KEY"); err != nil {
		return nil, eris.Wrap(err, "config: bind env")
	}

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "risk.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.max_upload_mb", 32)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.breaker_threshold", 5)
	v.SetDefault("anthropic.breaker_reset_secs", 30)
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.user_agent", "risk-cli/1.0")
	v.SetDefault("fetch.rate_per_sec", 5)
	v.SetDefault("fetch.concurrency", 4)
	v.SetDefault("filter.max_records", 200)
	v.SetDefault("chat.history_limit", 20)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.high_risk_share_threshold", 0.25)
	v.SetDefault("monitoring.average_score_threshold", 60)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Store.Driver) {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: store.driver must be sqlite or postgres, got %q", c.Store.Driver)
	}
	if c.Store.DatabaseURL == "" {
		return eris.New("config: store.database_url is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return eris.Errorf("config: server.port out of range: %d", c.Server.Port)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return eris.Errorf("config: log.format must be json or console, got %q", c.Log.Format)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return eris.Wrapf(err, "config: log.level %q", c.Log.Level)
	}
	if c.Anthropic.MaxTokens <= 0 {
		return eris.New("config: anthropic.max_tokens must be positive")
	}
	if c.Filter.MaxRecords <= 0 {
		return eris.New("config: filter.max_records must be positive")
	}
	if c.Fetch.MaxRetries < 0 {
		return eris.New("config: fetch.max_retries must not be negative")
	}
	if s := c.Monitoring.HighRiskShareThreshold; s < 0 || s > 1 {
		return eris.Errorf("config: monitoring.high_risk_share_threshold must be within [0, 1], got %v", s)
	}
	return nil
}

// InitLogger builds the global zap logger: JSON production output, or a
// development console encoder when Format is "console".
func InitLogger(cfg LogConfig) error {
	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)
	return nil
}
