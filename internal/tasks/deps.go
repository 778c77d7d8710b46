// Package tasks implements the scheduled background jobs: webhook
// registration monitoring, group health checks, and metrics backfill.
package tasks

import (
	"log/slog"

	"github.com/edgard/groupflow/internal/config"
	"github.com/edgard/groupflow/internal/database"
	"github.com/edgard/groupflow/internal/telegram"
)

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger   *slog.Logger
	Store    database.Store
	Monitor  *telegram.Monitor
	Recovery *telegram.Recovery

	// HealthClient is the main bot's API client, used to probe chat access.
	HealthClient *telegram.Client

	Config *config.Config
}
