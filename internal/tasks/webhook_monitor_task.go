package tasks

import (
	"context"
	"fmt"
	"time"
)

// newWebhookMonitorTask creates the task that checks every bot's webhook
// registration and recovers any that drifted, subject to the rate gate.
func newWebhookMonitorTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "webhook_monitor")

	return func(ctx context.Context) error {
		startTime := time.Now()

		statuses := deps.Monitor.CheckAll(ctx)

		recovered := 0
		failed := 0
		for _, status := range statuses {
			if status.Configured {
				continue
			}

			outcome := deps.Recovery.Recover(ctx, status.Bot, "scheduled monitor detected misconfigured webhook", false)
			switch {
			case outcome.Success:
				recovered++
			case outcome.RateLimited:
				log.InfoContext(ctx, "Recovery deferred by rate gate", "bot", string(status.Bot))
			default:
				failed++
			}
		}

		log.InfoContext(ctx, "Webhook monitor pass completed",
			"bots_checked", len(statuses),
			"recovered", recovered,
			"failed", failed,
			"duration", time.Since(startTime))

		if failed > 0 {
			return fmt.Errorf("webhook recovery failed for %d bot(s)", failed)
		}
		return nil
	}
}
