package tasks

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/edgard/groupflow/internal/database"
)

// replyRatio computes the percentage of messages that were replies,
// rounded to the nearest integer.
func replyRatio(replies, messages int) int {
	if messages == 0 {
		return 0
	}
	return int(math.Round(float64(replies) / float64(messages) * 100))
}

// newBackfillMetricsTask creates the task that recomputes per-day group
// metrics for the trailing window from the activity ledger. The window
// starts at the current UTC day so an intraday run refreshes today's
// partial row. Days without activity produce no rows; per-day failures
// are counted and the pass continues.
func newBackfillMetricsTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "backfill_metrics")
	days := deps.Config.Backfill.Days

	return func(ctx context.Context) error {
		startTime := time.Now()

		mappings, err := deps.Store.ActiveGroupMappings(ctx)
		if err != nil {
			return fmt.Errorf("failed to load group mappings: %w", err)
		}
		if len(mappings) == 0 {
			log.InfoContext(ctx, "No active group mappings to backfill")
			return nil
		}

		// Aggregate once per chat per day, then fan the row out to every
		// organization tracking that chat.
		orgsByChat := make(map[int64][]string)
		for _, m := range mappings {
			orgsByChat[m.TgChatID] = append(orgsByChat[m.TgChatID], m.OrgID)
		}

		today := time.Now().UTC().Truncate(24 * time.Hour)

		totalUpdated := 0
		totalErrors := 0
		for chatID, orgs := range orgsByChat {
			for offset := 0; offset < days; offset++ {
				if ctx.Err() != nil {
					log.WarnContext(ctx, "Backfill pass canceled",
						"updated", totalUpdated, "errors", totalErrors)
					return ctx.Err()
				}

				day := today.AddDate(0, 0, -offset)

				stats, statsErr := deps.Store.DailyGroupStats(ctx, chatID, day)
				if statsErr != nil {
					log.WarnContext(ctx, "Failed to aggregate daily stats",
						"chat_id", chatID, "day", day.Format("2006-01-02"), "error", statsErr)
					totalErrors++
					continue
				}
				if !stats.HasActivity() {
					continue
				}

				metrics := &database.GroupMetrics{
					TgChatID:        chatID,
					Date:            day.Format("2006-01-02"),
					DAU:             stats.DAU,
					MessageCount:    stats.Messages,
					ReplyCount:      stats.Replies,
					ReplyRatio:      replyRatio(stats.Replies, stats.Messages),
					JoinCount:       stats.Joins,
					LeaveCount:      stats.Leaves,
					NetMemberChange: stats.Joins - stats.Leaves,
				}

				for _, orgID := range orgs {
					metrics.OrgID = orgID
					if upsertErr := deps.Store.UpsertGroupMetrics(ctx, metrics); upsertErr != nil {
						log.WarnContext(ctx, "Failed to upsert group metrics",
							"org_id", orgID, "chat_id", chatID, "day", metrics.Date, "error", upsertErr)
						totalErrors++
						continue
					}
					totalUpdated++
				}
			}
		}

		log.InfoContext(ctx, "Metrics backfill pass completed",
			"chats", len(orgsByChat),
			"days", days,
			"rows_updated", totalUpdated,
			"errors", totalErrors,
			"duration", time.Since(startTime))

		return nil
	}
}
