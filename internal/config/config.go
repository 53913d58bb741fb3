// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the full configuration surface of the service.
type Config struct {
	Port           string `mapstructure:"PORT"`
	Env            string `mapstructure:"ENV"`
	GatewayBaseURL string `mapstructure:"GATEWAY_BASE_URL"`
	Provider       string `mapstructure:"PROVIDER"`
	MaxAttempts    int    `mapstructure:"MAX_ATTEMPTS"`
	PollIntervalMs int    `mapstructure:"POLL_INTERVAL_MS"`
	CheckTimeoutMs int    `mapstructure:"CHECK_TIMEOUT_MS"`
	ReturnURL      string `mapstructure:"RETURN_URL"`
	CancelURL      string `mapstructure:"CANCEL_URL"`
}

// PollInterval returns the poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// CheckTimeout returns the per-check deadline as a duration.
func (c *Config) CheckTimeout() time.Duration {
	return time.Duration(c.CheckTimeoutMs) * time.Millisecond
}

// Load reads configuration from the environment and an optional .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults: 60 attempts at 5s gives the five-minute polling budget.
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("GATEWAY_BASE_URL", "http://localhost:9000")
	v.SetDefault("PROVIDER", "click")
	v.SetDefault("MAX_ATTEMPTS", 60)
	v.SetDefault("POLL_INTERVAL_MS", 5000)
	v.SetDefault("CHECK_TIMEOUT_MS", 10000)
	v.SetDefault("RETURN_URL", "")
	v.SetDefault("CANCEL_URL", "")

	// Bind env vars explicitly so Unmarshal picks them up.
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("GATEWAY_BASE_URL")
	v.BindEnv("PROVIDER")
	v.BindEnv("MAX_ATTEMPTS")
	v.BindEnv("POLL_INTERVAL_MS")
	v.BindEnv("CHECK_TIMEOUT_MS")
	v.BindEnv("RETURN_URL")
	v.BindEnv("CANCEL_URL")

	// Try reading .env, but don't fail if missing.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.MaxAttempts <= 0 {
		return nil, fmt.Errorf("MAX_ATTEMPTS must be positive, got %d", cfg.MaxAttempts)
	}
	if cfg.PollIntervalMs <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL_MS must be positive, got %d", cfg.PollIntervalMs)
	}
	return cfg, nil
}
