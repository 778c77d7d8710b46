// Package config manages application configuration from environment variables,
// config files, and default values.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrConfiguration indicates a configuration loading or validation failure.
var ErrConfiguration = errors.New("configuration error")

// Config defines the application configuration. Values can be set via
// environment variables prefixed with GROUPFLOW_ (e.g., GROUPFLOW_SERVER_BASE_URL)
// or through config.yaml.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Server    ServerConfig    `mapstructure:"server"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Recovery  RecoveryConfig  `mapstructure:"recovery"`
	Backfill  BackfillConfig  `mapstructure:"backfill"`
	Health    HealthConfig    `mapstructure:"health"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// DatabaseConfig holds SQLite connection settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// ServerConfig holds HTTP server settings. BaseURL is the externally
// reachable origin used to compute the expected webhook callback URLs.
type ServerConfig struct {
	Addr       string `mapstructure:"addr"        validate:"required"`
	BaseURL    string `mapstructure:"base_url"    validate:"required,url"`
	CronSecret string `mapstructure:"cron_secret" validate:"required"`
}

// BotCredentials holds the token and webhook secret for one bot identity.
// WebhookSecret may be empty, in which case the shared default secret applies.
type BotCredentials struct {
	Token         string `mapstructure:"token"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// TelegramConfig holds per-bot credentials and webhook registration settings.
// Bots is keyed by bot identity: "main", "notifications", "registration".
// Only the main bot is mandatory; identities without a token are not served.
type TelegramConfig struct {
	Bots                 map[string]BotCredentials `mapstructure:"bots"`
	DefaultWebhookSecret string                    `mapstructure:"default_webhook_secret" validate:"required"`
	MaxConnections       int                       `mapstructure:"max_connections"        validate:"min=1,max=100"`
	DropPendingUpdates   bool                      `mapstructure:"drop_pending_updates"`
	MonitoringChatID     int64                     `mapstructure:"monitoring_chat_id"`

	// APIBaseURL overrides the Telegram Bot API origin; used in tests.
	APIBaseURL string `mapstructure:"api_base_url"`
}

// RecoveryConfig bounds how often webhook re-registration may be attempted.
type RecoveryConfig struct {
	Cooldown        time.Duration `mapstructure:"cooldown"          validate:"required,min=1s"`
	MaxAttemptsHour int           `mapstructure:"max_attempts_hour" validate:"required,min=1"`
}

// BackfillConfig controls the group metrics backfill job.
type BackfillConfig struct {
	Days int `mapstructure:"days" validate:"required,min=1,max=365"`
}

// HealthConfig controls the group health check job.
type HealthConfig struct {
	BatchSize int           `mapstructure:"batch_size" validate:"required,min=1"`
	CallDelay time.Duration `mapstructure:"call_delay" validate:"min=0"`
	Deadline  time.Duration `mapstructure:"deadline"   validate:"required,min=1s"`
}

// TaskConfig enables a scheduled task and sets its cron schedule.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// SchedulerConfig maps task names to their schedules.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// Validate checks the configuration for completeness and consistency.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	main, ok := c.Telegram.Bots["main"]
	if !ok || main.Token == "" {
		return fmt.Errorf("telegram.bots.main.token is required")
	}

	for name := range c.Telegram.Bots {
		switch name {
		case "main", "notifications", "registration":
		default:
			return fmt.Errorf("unknown bot identity %q in telegram.bots", name)
		}
	}

	return nil
}

// WebhookSecret returns the secret expected on inbound webhook requests for
// the named bot, falling back to the shared default secret.
func (c *TelegramConfig) WebhookSecret(botName string) string {
	if creds, ok := c.Bots[botName]; ok && creds.WebhookSecret != "" {
		return creds.WebhookSecret
	}
	return c.DefaultWebhookSecret
}
