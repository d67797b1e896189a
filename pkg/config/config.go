package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the root runtime configuration, resolved from the process
// environment (optionally seeded from a local .env file).
type Config struct {
	Env     string `env:"ENV" envDefault:"development"`
	BotName string `env:"BOT_NAME"`

	Backend  BackendConfig
	Telegram TelegramConfig
	Webhook  WebhookConfig
	Relay    RelayConfig
	Logging  LoggingConfig
}

// BackendConfig configures the split-bot backend client.
//
// BaseURL is intentionally not validated at load time; the client reports
// it missing on first use.
type BackendConfig struct {
	BaseURL               string `env:"SPLIT_BOT_URL"`
	RequestTimeoutSeconds int    `env:"SPLIT_BOT_TIMEOUT_SECONDS" envDefault:"120"`
}

// TelegramConfig configures the Telegram transport.
type TelegramConfig struct {
	Token string `env:"TELEGRAM_BOT_TOKEN"`
}

// WebhookConfig configures webhook delivery, used only in production mode.
type WebhookConfig struct {
	BaseURL string `env:"BOT_WEBHOOK"`
	Port    int    `env:"PORT"`
}

// RelayConfig configures the optional status server.
type RelayConfig struct {
	StatusHost string `env:"SPLITRELAY_STATUS_HOST" envDefault:"0.0.0.0"`
	StatusPort int    `env:"SPLITRELAY_STATUS_PORT"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `env:"SPLITRELAY_LOG_FORMAT"`
	Level     string `env:"SPLITRELAY_LOG_LEVEL"`
	AddSource bool   `env:"SPLITRELAY_LOG_ADD_SOURCE"`
}

// Load reads .env if present, parses the environment into a Config, and
// validates everything that must be known before the delivery loop starts.
func Load() (*Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.BotName) == "" {
		return errors.New("BOT_NAME is required")
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}

	if c.IsProd() {
		if strings.TrimSpace(c.Webhook.BaseURL) == "" {
			return errors.New("BOT_WEBHOOK is required in production mode")
		}
		if c.Webhook.Port <= 0 {
			return fmt.Errorf("PORT is required in production mode, got %d", c.Webhook.Port)
		}
	}

	return nil
}

// IsProd reports whether webhook delivery mode is selected.
func (c *Config) IsProd() bool {
	switch strings.ToLower(strings.TrimSpace(c.Env)) {
	case "prod", "production":
		return true
	default:
		return false
	}
}

// IsDev reports whether the process runs in development mode.
func (c *Config) IsDev() bool {
	switch strings.ToLower(strings.TrimSpace(c.Env)) {
	case "dev", "development":
		return true
	default:
		return false
	}
}

// MentionToken returns the literal token whose presence in message text
// activates processing.
func (c *Config) MentionToken() string {
	return "@" + strings.TrimSpace(c.BotName)
}
