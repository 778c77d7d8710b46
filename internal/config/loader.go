package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig loads and validates configuration from:
// 1. Default values
// 2. The YAML file at configPath
// 3. GROUPFLOW_* environment variables
//
// Each call works on its own viper instance so repeated loads never see
// state from a previous call.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if err := readConfig(v, configPath); err != nil {
		return nil, fmt.Errorf("%w: failed to load config file: %v", ErrConfiguration, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	return cfg, nil
}

// readConfig initializes and loads the configuration using viper.
func readConfig(v *viper.Viper, configPath string) error {
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("GROUPFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Allow missing config file; defaults plus environment must suffice then.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return fmt.Errorf("failed to read config file: %v", err)
		}
	}

	return nil
}

// setDefaults sets default values for optional configuration parameters.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.json", DefaultLogJSON)

	v.SetDefault("database.path", DefaultDBPath)

	v.SetDefault("server.addr", DefaultServerAddr)

	v.SetDefault("server.base_url", "")
	v.SetDefault("server.cron_secret", "")

	// Credential keys need explicit defaults so environment-only deployments
	// can set them without a config file.
	v.SetDefault("telegram.bots.main.token", "")
	v.SetDefault("telegram.bots.main.webhook_secret", "")
	v.SetDefault("telegram.bots.notifications.token", "")
	v.SetDefault("telegram.bots.notifications.webhook_secret", "")
	v.SetDefault("telegram.bots.registration.token", "")
	v.SetDefault("telegram.bots.registration.webhook_secret", "")
	v.SetDefault("telegram.default_webhook_secret", "")
	v.SetDefault("telegram.monitoring_chat_id", 0)
	v.SetDefault("telegram.max_connections", DefaultMaxConnections)
	v.SetDefault("telegram.drop_pending_updates", DefaultDropPendingUpdates)

	v.SetDefault("recovery.cooldown", DefaultRecoveryCooldown)
	v.SetDefault("recovery.max_attempts_hour", DefaultRecoveryMaxAttemptsHour)

	v.SetDefault("backfill.days", DefaultBackfillDays)

	v.SetDefault("health.batch_size", DefaultHealthBatchSize)
	v.SetDefault("health.call_delay", DefaultHealthCallDelay)
	v.SetDefault("health.deadline", DefaultHealthDeadline)

	v.SetDefault("scheduler.tasks.webhook_monitor.enabled", true)
	v.SetDefault("scheduler.tasks.webhook_monitor.schedule", "*/5 * * * *")
	v.SetDefault("scheduler.tasks.group_health.enabled", true)
	v.SetDefault("scheduler.tasks.group_health.schedule", "0 4 * * *")
	v.SetDefault("scheduler.tasks.backfill_metrics.enabled", false)
	v.SetDefault("scheduler.tasks.backfill_metrics.schedule", "30 4 * * *")
}
