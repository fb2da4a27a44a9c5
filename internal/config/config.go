// Package config loads server configuration from the environment, with
// optional .env convenience loading for local development.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// DefaultAuthSecret is the development sentinel. Startup aborts when it
// survives into a production environment.
const DefaultAuthSecret = "dev-secret-change-me"

// Config holds all server configuration.
// Tags:
//
//	env: Environment variable name
//	envDefault: Default value if not set
type Config struct {
	// Server basics
	Port        int    `env:"PORT" envDefault:"3000"`
	WSPath      string `env:"WS_PATH" envDefault:"/ws"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// Channel authorization
	AuthSecret string `env:"AUTH_SECRET" envDefault:"dev-secret-change-me"`

	// Origin allow-list: comma-separated list, or "*" for any
	AllowedOrigins string `env:"ALLOWED_ORIGINS" envDefault:"*"`

	// Admission control
	ConnectionLimitPerIP      int `env:"CONNECTION_LIMIT_PER_IP" envDefault:"10"`
	ChannelLimitPerConnection int `env:"CHANNEL_LIMIT_PER_CONNECTION" envDefault:"50"`
	MessageRateLimit          int `env:"MESSAGE_RATE_LIMIT" envDefault:"100"`
	MessageRateWindowMS       int `env:"MESSAGE_RATE_WINDOW_MS" envDefault:"60000"`

	// Connect-attempt rate limiting (token bucket, off by default)
	ConnectRateLimitEnabled     bool    `env:"CONNECT_RATE_LIMIT_ENABLED" envDefault:"false"`
	ConnectRateLimitIPBurst     int     `env:"CONNECT_RATE_LIMIT_IP_BURST" envDefault:"10"`
	ConnectRateLimitIPRate      float64 `env:"CONNECT_RATE_LIMIT_IP_RATE" envDefault:"1.0"`
	ConnectRateLimitGlobalBurst int     `env:"CONNECT_RATE_LIMIT_GLOBAL_BURST" envDefault:"300"`
	ConnectRateLimitGlobalRate  float64 `env:"CONNECT_RATE_LIMIT_GLOBAL_RATE" envDefault:"50.0"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads configuration from a .env file (if present) and the
// environment. Priority: ENV vars > .env file > defaults.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err == nil && logger != nil {
		logger.Info().Msg("Loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration for errors. The only fatal startup
// condition in the system lives here: a production deployment still
// running on the development auth secret.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be 1-65535, got %d", c.Port)
	}
	if !strings.HasPrefix(c.WSPath, "/") {
		return fmt.Errorf("WS_PATH must start with '/', got %q", c.WSPath)
	}
	if c.Environment == "production" && c.AuthSecret == DefaultAuthSecret {
		return fmt.Errorf("AUTH_SECRET must be set in production")
	}
	if c.AuthSecret == "" {
		return fmt.Errorf("AUTH_SECRET must not be empty")
	}
	if c.ConnectionLimitPerIP < 1 {
		return fmt.Errorf("CONNECTION_LIMIT_PER_IP must be > 0, got %d", c.ConnectionLimitPerIP)
	}
	if c.ChannelLimitPerConnection < 1 {
		return fmt.Errorf("CHANNEL_LIMIT_PER_CONNECTION must be > 0, got %d", c.ChannelLimitPerConnection)
	}
	if c.MessageRateLimit < 1 {
		return fmt.Errorf("MESSAGE_RATE_LIMIT must be > 0, got %d", c.MessageRateLimit)
	}
	if c.MessageRateWindowMS < 1 {
		return fmt.Errorf("MESSAGE_RATE_WINDOW_MS must be > 0, got %d", c.MessageRateWindowMS)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel)
	}
	validLogFormats := map[string]bool{"json": true, "pretty": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, pretty (got: %s)", c.LogFormat)
	}
	return nil
}

// MessageRateWindow returns the fixed-window length as a duration.
func (c *Config) MessageRateWindow() time.Duration {
	return time.Duration(c.MessageRateWindowMS) * time.Millisecond
}

// Origins returns the parsed allow-list. A nil slice means any origin.
func (c *Config) Origins() []string {
	if c.AllowedOrigins == "" || c.AllowedOrigins == "*" {
		return nil
	}
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(o); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Addr returns the listen address for the configured port.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// LogConfig logs the effective configuration as one structured event.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("environment", c.Environment).
		Int("port", c.Port).
		Str("ws_path", c.WSPath).
		Str("allowed_origins", c.AllowedOrigins).
		Int("connection_limit_per_ip", c.ConnectionLimitPerIP).
		Int("channel_limit_per_connection", c.ChannelLimitPerConnection).
		Int("message_rate_limit", c.MessageRateLimit).
		Int("message_rate_window_ms", c.MessageRateWindowMS).
		Bool("connect_rate_limit_enabled", c.ConnectRateLimitEnabled).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("Server configuration loaded")
}
