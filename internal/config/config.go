package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Provider ProviderConfig `mapstructure:"provider"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Host               string `mapstructure:"host"`
	Port               string `mapstructure:"port"`
	RateLimitPerMinute int    `mapstructure:"rate_limit_per_minute"`
}

// ProviderConfig holds the completion provider configuration.
type ProviderConfig struct {
	BaseURL        string             `mapstructure:"base_url"`
	APIKey         string             `mapstructure:"api_key"`
	Model          string             `mapstructure:"model"`
	Temperature    float32            `mapstructure:"temperature"`
	MaxTokens      int                `mapstructure:"max_tokens"`
	TimeoutSeconds int                `mapstructure:"timeout_seconds"`
	MaxAttempts    int                `mapstructure:"max_attempts"`
	BackoffSeconds int                `mapstructure:"backoff_seconds"`
	RatesPer1K     map[string]float64 `mapstructure:"rates_per_1k"`
}

// Timeout returns the per-attempt timeout.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// Backoff returns the pause between retry attempts.
func (p ProviderConfig) Backoff() time.Duration {
	return time.Duration(p.BackoffSeconds) * time.Second
}

// ChatConfig holds the turn pipeline configuration.
type ChatConfig struct {
	HistoryWindow    int `mapstructure:"history_window"`
	MaxMessageLength int `mapstructure:"max_message_length"`
	TitleLength      int `mapstructure:"title_length"`
}

// AuthConfig holds the authentication configuration.
type AuthConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Secret       string `mapstructure:"secret"`
	TokenTTLDays int    `mapstructure:"token_ttl_days"`
}

// TokenTTL returns the lifetime of issued auth tokens.
func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenTTLDays) * 24 * time.Hour
}

// DatabaseConfig holds the storage configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.rate_limit_per_minute", 15)

	viper.SetDefault("provider.base_url", "https://openrouter.ai/api/v1")
	viper.SetDefault("provider.model", "mistralai/mistral-7b-instruct")
	viper.SetDefault("provider.temperature", 0.35)
	viper.SetDefault("provider.max_tokens", 400)
	viper.SetDefault("provider.timeout_seconds", 60)
	viper.SetDefault("provider.max_attempts", 3)
	viper.SetDefault("provider.backoff_seconds", 1)

	viper.SetDefault("chat.history_window", 12)
	viper.SetDefault("chat.max_message_length", 1200)
	viper.SetDefault("chat.title_length", 40)

	viper.SetDefault("auth.enabled", true)
	viper.SetDefault("auth.token_ttl_days", 30)

	viper.SetDefault("database.path", "orion_chat.db")
	viper.SetDefault("log.level", "info")
}

// Load reads configuration from config.yaml (or CONFIG_PATH) with ORION_*
// environment overrides. A missing config file is not an error; defaults apply.
func Load() (*Config, error) {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	setDefaults()
	viper.SetEnvPrefix("ORION")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	// The provider key historically comes from OPENROUTER_API_KEY in .env.
	_ = viper.BindEnv("provider.api_key", "OPENROUTER_API_KEY", "ORION_PROVIDER_API_KEY")
	_ = viper.BindEnv("auth.secret", "SECRET_KEY", "ORION_AUTH_SECRET")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
