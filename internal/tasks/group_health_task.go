package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/edgard/groupflow/internal/telegram"
)

// newGroupHealthTask creates the task that probes bot access to connected
// groups and archives the ones that are gone. Groups are checked least
// recently synced first, with a delay between API calls and an overall
// deadline so one pass never runs away.
func newGroupHealthTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "group_health")
	cfg := deps.Config.Health

	return func(ctx context.Context) error {
		startTime := time.Now()

		runCtx, cancel := context.WithTimeout(ctx, cfg.Deadline)
		defer cancel()

		groups, err := deps.Store.ConnectedGroups(runCtx, cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("failed to load connected groups: %w", err)
		}
		if len(groups) == 0 {
			log.InfoContext(ctx, "No connected groups to check")
			return nil
		}

		checked := 0
		archived := 0
		errored := 0
		for i, group := range groups {
			if runCtx.Err() != nil {
				log.WarnContext(ctx, "Health check pass hit its deadline",
					"checked", checked, "remaining", len(groups)-i)
				break
			}

			health := deps.HealthClient.CheckChat(runCtx, group.TgChatID)
			checked++

			switch health.State {
			case telegram.ChatHealthy:
				if syncErr := deps.Store.MarkGroupSynced(runCtx, group.TgChatID); syncErr != nil {
					log.WarnContext(ctx, "Failed to mark group synced",
						"chat_id", group.TgChatID, "error", syncErr)
				}

			case telegram.ChatBotRemoved, telegram.ChatDeleted:
				log.InfoContext(ctx, "Archiving unreachable group",
					"chat_id", group.TgChatID, "title", group.Title, "reason", string(health.State))
				if archErr := deps.Store.ArchiveGroup(runCtx, group.TgChatID, string(health.State)); archErr != nil {
					log.ErrorContext(ctx, "Failed to archive group",
						"chat_id", group.TgChatID, "error", archErr)
					errored++
				} else {
					archived++
				}

			case telegram.ChatUnknown:
				// Transient; leave the group for the next pass.
				log.WarnContext(ctx, "Health probe failed",
					"chat_id", group.TgChatID, "error", health.Err)
				errored++
			}

			if i < len(groups)-1 && cfg.CallDelay > 0 {
				select {
				case <-time.After(cfg.CallDelay):
				case <-runCtx.Done():
				}
			}
		}

		log.InfoContext(ctx, "Group health pass completed",
			"checked", checked,
			"archived", archived,
			"errors", errored,
			"duration", time.Since(startTime))

		return nil
	}
}
