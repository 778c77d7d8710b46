package config

import "time"

// Default values for configuration
const (
	// Log defaults
	DefaultLogLevel = "info"
	DefaultLogJSON  = true

	// Database defaults
	DefaultDBPath = "groupflow.db"

	// Server defaults
	DefaultServerAddr = ":8080"

	// Webhook registration defaults
	DefaultMaxConnections     = 40
	DefaultDropPendingUpdates = false

	// Recovery defaults
	DefaultRecoveryCooldown        = 20 * time.Minute
	DefaultRecoveryMaxAttemptsHour = 3

	// Backfill defaults
	DefaultBackfillDays = 30

	// Health check defaults
	DefaultHealthBatchSize = 50
	DefaultHealthCallDelay = 100 * time.Millisecond
	DefaultHealthDeadline  = 2 * time.Minute
)
