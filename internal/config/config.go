// Package config loads application configuration from file and environment.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Anthropic   AnthropicConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	Search      SearchConfig      `yaml:"search" mapstructure:"search"`
	Translate   TranslateConfig   `yaml:"translate" mapstructure:"translate"`
	Attribution AttributionConfig `yaml:"attribution" mapstructure:"attribution"`
	Data        DataConfig        `yaml:"data" mapstructure:"data"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds the reason-classifier API settings.
type AnthropicConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	Model             string  `yaml:"model" mapstructure:"model"`
	MaxTokens         int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	MaxDecodeRetries  int     `yaml:"max_decode_retries" mapstructure:"max_decode_retries"`
}

// SearchConfig holds the web-search fallback settings.
type SearchConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Market  string `yaml:"market" mapstructure:"market"`
	Limit   int    `yaml:"limit" mapstructure:"limit"`
}

// TranslateConfig holds the Baidu translation settings used when reason
// tokens contain Latin text.
type TranslateConfig struct {
	AppID   string `yaml:"app_id" mapstructure:"app_id"`
	Secret  string `yaml:"secret" mapstructure:"secret"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AttributionConfig holds the pipeline thresholds.
type AttributionConfig struct {
	EffectThreshold   int      `yaml:"effect_threshold" mapstructure:"effect_threshold"`
	StrongThreshold   int      `yaml:"strong_threshold" mapstructure:"strong_threshold"`
	MinSupport        int      `yaml:"min_support" mapstructure:"min_support"`
	TimeWindowSeconds int      `yaml:"time_window_seconds" mapstructure:"time_window_seconds"`
	LookbackDays      int      `yaml:"lookback_days" mapstructure:"lookback_days"`
	HolidayExceptions []string `yaml:"holiday_exceptions" mapstructure:"holiday_exceptions"`
	AuditPath         string   `yaml:"audit_path" mapstructure:"audit_path"`
}

// DataConfig points at the local data files the pipeline loads on startup.
type DataConfig struct {
	HierarchyPath  string   `yaml:"hierarchy_path" mapstructure:"hierarchy_path"`
	CustomDictPath string   `yaml:"custom_dict_path" mapstructure:"custom_dict_path"`
	UserDicts      []string `yaml:"user_dicts" mapstructure:"user_dicts"`
}

// ServerConfig configures the read-only HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LIMITUP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.requests_per_second", 2)
	v.SetDefault("anthropic.max_decode_retries", 3)
	v.SetDefault("search.base_url", "https://api.bing.microsoft.com")
	v.SetDefault("search.market", "zh-CN")
	v.SetDefault("search.limit", 3)
	v.SetDefault("translate.base_url", "https://fanyi-api.baidu.com")
	v.SetDefault("attribution.effect_threshold", 3)
	v.SetDefault("attribution.strong_threshold", 5)
	v.SetDefault("attribution.min_support", 2)
	v.SetDefault("attribution.time_window_seconds", 1800)
	v.SetDefault("attribution.lookback_days", 5)
	v.SetDefault("attribution.holiday_exceptions", []string{"20240208", "20240930", "20241008"})
	v.SetDefault("attribution.audit_path", "attribution_review.xlsx")
	v.SetDefault("data.hierarchy_path", "concept_hierarchy.json")
	v.SetDefault("data.custom_dict_path", "custom_concepts.json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
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
