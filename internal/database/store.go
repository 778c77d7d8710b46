package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store defines the interface for database operations.
// Methods accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// WasUpdateProcessed reports whether the webhook update was already
	// processed for the given chat. The check must happen before any entity
	// mutation for that update.
	WasUpdateProcessed(ctx context.Context, updateID, tgChatID int64) (bool, error)

	// MarkUpdateProcessed records a webhook update as processed. orgID may be
	// empty when the organization could not be resolved. The write is
	// idempotent: re-marking an already recorded update is a no-op.
	MarkUpdateProcessed(ctx context.Context, updateID, tgChatID int64, eventType, orgID string) error

	// ProcessMessageEvent upserts the participant, links them to the chat,
	// and appends one activity row, all in a single transaction. It reports
	// the participant id and whether the participant and the group link were
	// newly created. Duplicate redelivery re-applies the upserts and appends
	// a second activity row; the webhook_events ledger is what prevents that.
	ProcessMessageEvent(ctx context.Context, ev *MessageEvent) (*ProcessResult, error)

	// RecordMembershipEvent upserts the participant, opens or closes the
	// group link, and appends one join/leave activity row in a single
	// transaction.
	RecordMembershipEvent(ctx context.Context, ev *MembershipEvent) (*ProcessResult, error)

	// TouchParticipantActivity bumps last_activity_at for a participant.
	TouchParticipantActivity(ctx context.Context, orgID string, tgUserID int64) error

	// MarkGroupSynced bumps last_sync_at on all mappings for a chat.
	MarkGroupSynced(ctx context.Context, tgChatID int64) error

	// UpdateBotStatus records whether the bot holds admin rights in a chat.
	UpdateBotStatus(ctx context.Context, tgChatID int64, connected bool) error

	// OrgsForChat returns the ids of organizations actively tracking a chat.
	OrgsForChat(ctx context.Context, tgChatID int64) ([]string, error)

	// ActiveGroupMappings returns all active (org, chat) pairs.
	ActiveGroupMappings(ctx context.Context) ([]GroupMapping, error)

	// ConnectedGroups returns up to limit connected chats, least recently
	// synced first, for the health check job.
	ConnectedGroups(ctx context.Context, limit int) ([]TrackedGroup, error)

	// ArchiveGroup marks a chat and all its org mappings as archived.
	ArchiveGroup(ctx context.Context, tgChatID int64, reason string) error

	// DailyGroupStats aggregates one chat's activity for the UTC day
	// starting at day.
	DailyGroupStats(ctx context.Context, tgChatID int64, day time.Time) (*DailyStats, error)

	// UpsertGroupMetrics writes one (org, chat, day) aggregate row,
	// replacing any previous values for that key.
	UpsertGroupMetrics(ctx context.Context, m *GroupMetrics) error

	// GetParticipant retrieves a participant by org and Telegram user id.
	// Returns nil, nil if not found.
	GetParticipant(ctx context.Context, orgID string, tgUserID int64) (*Participant, error)

	// GetWebhookEvent retrieves one idempotency ledger entry. Returns
	// nil, nil if the update was never marked processed for that chat.
	GetWebhookEvent(ctx context.Context, updateID, tgChatID int64) (*WebhookEvent, error)

	// RecentActivity returns up to limit activity rows for a chat, newest
	// first.
	RecentActivity(ctx context.Context, tgChatID int64, limit int) ([]ActivityEvent, error)
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger

	// beforeActivityInsert, when set, runs inside the ProcessMessageEvent
	// transaction after the participant/link upserts and before the activity
	// insert. Tests use it to force a mid-transaction failure.
	beforeActivityInsert func() error
}

// NewStore creates a new Store implementation backed by sqlx.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WasUpdateProcessed reports whether the webhook update was already processed.
func (s *sqlxStore) WasUpdateProcessed(ctx context.Context, updateID, tgChatID int64) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	var exists bool
	query := `SELECT 1 FROM webhook_events WHERE update_id = ? AND tg_chat_id = ? LIMIT 1`
	err := s.db.GetContext(ctx, &exists, query, updateID, tgChatID)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error checking webhook ledger",
			"update_id", updateID, "chat_id", tgChatID, "error", err)
		return false, fmt.Errorf("failed to check webhook ledger for update %d: %w", updateID, err)
	}

	return true, nil
}

// MarkUpdateProcessed records a webhook update as processed.
func (s *sqlxStore) MarkUpdateProcessed(ctx context.Context, updateID, tgChatID int64, eventType, orgID string) error {
	query := `
        INSERT INTO webhook_events (update_id, tg_chat_id, event_type, org_id, processed_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT (update_id, tg_chat_id) DO NOTHING;
    `

	var org any
	if orgID != "" {
		org = orgID
	}

	_, err := s.db.ExecContext(ctx, query, updateID, tgChatID, eventType, org, time.Now().UTC())
	if err != nil {
		s.logger.ErrorContext(ctx, "Error recording webhook ledger entry",
			"update_id", updateID, "chat_id", tgChatID, "error", err)
		return fmt.Errorf("failed to record webhook ledger entry for update %d: %w", updateID, err)
	}

	return nil
}

// upsertParticipant inserts or refreshes a participant inside tx and reports
// the row id and whether this was an insert. SQLite serializes writers, so a
// select-then-write pair inside the transaction is race-safe.
func (s *sqlxStore) upsertParticipant(ctx context.Context, tx *sqlx.Tx, orgID string, tgUserID int64,
	username, firstName, lastName, fullName string, now time.Time,
) (int64, bool, error) {
	var id int64
	err := tx.GetContext(ctx, &id,
		`SELECT id FROM participants WHERE org_id = ? AND tg_user_id = ? LIMIT 1`, orgID, tgUserID)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if fullName == "" {
			fullName = fmt.Sprintf("User%d", tgUserID)
		}
		res, insertErr := tx.ExecContext(ctx, `
            INSERT INTO participants (org_id, tg_user_id, username, first_name, last_name, full_name,
                                      last_activity_at, created_at, updated_at)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
        `, orgID, tgUserID, username, firstName, lastName, fullName, now, now, now)
		if insertErr != nil {
			return 0, false, fmt.Errorf("failed to insert participant (org %s, user %d): %w", orgID, tgUserID, insertErr)
		}
		newID, idErr := res.LastInsertId()
		if idErr != nil {
			return 0, false, fmt.Errorf("failed to read new participant id: %w", idErr)
		}
		return newID, true, nil

	case err != nil:
		return 0, false, fmt.Errorf("failed to look up participant (org %s, user %d): %w", orgID, tgUserID, err)
	}

	_, err = tx.ExecContext(ctx, `
        UPDATE participants
        SET username = ?, first_name = ?, last_name = ?,
            full_name = CASE WHEN ? != '' THEN ? ELSE full_name END,
            last_activity_at = ?, updated_at = ?
        WHERE id = ?;
    `, username, firstName, lastName, fullName, fullName, now, now, id)
	if err != nil {
		return 0, false, fmt.Errorf("failed to refresh participant %d: %w", id, err)
	}

	return id, false, nil
}

// upsertGroupLink ensures a participant-chat link row exists inside tx and
// reports whether it was newly created.
func (s *sqlxStore) upsertGroupLink(ctx context.Context, tx *sqlx.Tx, participantID, tgChatID int64, now time.Time) (bool, error) {
	var exists bool
	err := tx.GetContext(ctx, &exists,
		`SELECT 1 FROM participant_groups WHERE participant_id = ? AND tg_chat_id = ? LIMIT 1`,
		participantID, tgChatID)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, insertErr := tx.ExecContext(ctx, `
            INSERT INTO participant_groups (participant_id, tg_chat_id, joined_at, created_at)
            VALUES (?, ?, ?, ?);
        `, participantID, tgChatID, now, now)
		if insertErr != nil {
			return false, fmt.Errorf("failed to insert group link (participant %d, chat %d): %w", participantID, tgChatID, insertErr)
		}
		return true, nil

	case err != nil:
		return false, fmt.Errorf("failed to look up group link (participant %d, chat %d): %w", participantID, tgChatID, err)
	}

	return false, nil
}

// ProcessMessageEvent applies one message event in a single transaction.
func (s *sqlxStore) ProcessMessageEvent(ctx context.Context, ev *MessageEvent) (*ProcessResult, error) {
	if ev == nil {
		return nil, fmt.Errorf("cannot process nil message event")
	}
	if ev.OrgID == "" {
		return nil, fmt.Errorf("message event must have an org_id")
	}
	if ev.TgChatID == 0 || ev.TgUserID == 0 {
		return nil, fmt.Errorf("message event must have non-zero chat_id and user_id")
	}

	now := time.Now().UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for message event",
			"chat_id", ev.TgChatID, "user_id", ev.TgUserID, "error", err)
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	participantID, isNewParticipant, err := s.upsertParticipant(ctx, tx,
		ev.OrgID, ev.TgUserID, ev.Username, ev.FirstName, ev.LastName, ev.FullName, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error upserting participant",
			"org_id", ev.OrgID, "user_id", ev.TgUserID, "error", err)
		return nil, err
	}

	isNewGroupLink, err := s.upsertGroupLink(ctx, tx, participantID, ev.TgChatID, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error upserting group link",
			"participant_id", participantID, "chat_id", ev.TgChatID, "error", err)
		return nil, err
	}

	if s.beforeActivityInsert != nil {
		if hookErr := s.beforeActivityInsert(); hookErr != nil {
			return nil, hookErr
		}
	}

	meta := ev.Meta
	if meta == "" {
		meta = "{}"
	}

	res, err := tx.ExecContext(ctx, `
        INSERT INTO activity_events (org_id, event_type, participant_id, tg_chat_id, tg_user_id,
                                     message_id, message_thread_id, reply_to_message_id, reply_to_user_id,
                                     chars_count, links_count, mentions_count, reactions_count,
                                     has_media, meta, created_at)
        VALUES (?, 'message', ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
    `, ev.OrgID, participantID, ev.TgChatID, ev.TgUserID,
		ev.MessageID, ev.MessageThreadID, ev.ReplyToMessageID, ev.ReplyToUserID,
		ev.CharsCount, ev.LinksCount, ev.MentionsCount, ev.ReactionsCount,
		ev.HasMedia, meta, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error inserting activity event",
			"chat_id", ev.TgChatID, "message_id", ev.MessageID, "error", err)
		return nil, fmt.Errorf("failed to insert activity event (chat %d, message %d): %w", ev.TgChatID, ev.MessageID, err)
	}

	activityID, err := res.LastInsertId()
	if err != nil {
		s.logger.WarnContext(ctx, "Could not retrieve activity event id",
			"chat_id", ev.TgChatID, "message_id", ev.MessageID, "error", err)
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit message event transaction",
			"chat_id", ev.TgChatID, "user_id", ev.TgUserID, "error", err)
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Message event processed",
		"org_id", ev.OrgID,
		"participant_id", participantID,
		"new_participant", isNewParticipant,
		"new_group_link", isNewGroupLink)

	return &ProcessResult{
		ParticipantID:    participantID,
		IsNewParticipant: isNewParticipant,
		IsNewGroupLink:   isNewGroupLink,
		ActivityEventID:  activityID,
	}, nil
}

// RecordMembershipEvent applies one join/leave event in a single transaction.
func (s *sqlxStore) RecordMembershipEvent(ctx context.Context, ev *MembershipEvent) (*ProcessResult, error) {
	if ev == nil {
		return nil, fmt.Errorf("cannot process nil membership event")
	}
	if ev.OrgID == "" {
		return nil, fmt.Errorf("membership event must have an org_id")
	}

	now := time.Now().UTC()
	eventType := "leave"
	if ev.Joined {
		eventType = "join"
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	participantID, isNewParticipant, err := s.upsertParticipant(ctx, tx,
		ev.OrgID, ev.TgUserID, ev.Username, "", "", ev.FullName, now)
	if err != nil {
		return nil, err
	}

	var isNewGroupLink bool
	if ev.Joined {
		isNewGroupLink, err = s.upsertGroupLink(ctx, tx, participantID, ev.TgChatID, now)
		if err != nil {
			return nil, err
		}
		// A rejoin reopens the link.
		if !isNewGroupLink {
			if _, err = tx.ExecContext(ctx,
				`UPDATE participant_groups SET joined_at = ?, left_at = NULL WHERE participant_id = ? AND tg_chat_id = ?`,
				now, participantID, ev.TgChatID); err != nil {
				return nil, fmt.Errorf("failed to reopen group link (participant %d, chat %d): %w", participantID, ev.TgChatID, err)
			}
		}
	} else {
		if _, err = tx.ExecContext(ctx,
			`UPDATE participant_groups SET left_at = ? WHERE participant_id = ? AND tg_chat_id = ?`,
			now, participantID, ev.TgChatID); err != nil {
			return nil, fmt.Errorf("failed to close group link (participant %d, chat %d): %w", participantID, ev.TgChatID, err)
		}
	}

	meta := ev.Meta
	if meta == "" {
		meta = "{}"
	}

	res, err := tx.ExecContext(ctx, `
        INSERT INTO activity_events (org_id, event_type, participant_id, tg_chat_id, tg_user_id, meta, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?);
    `, ev.OrgID, eventType, participantID, ev.TgChatID, ev.TgUserID, meta, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert %s event (chat %d, user %d): %w", eventType, ev.TgChatID, ev.TgUserID, err)
	}

	activityID, err := res.LastInsertId()
	if err != nil {
		s.logger.WarnContext(ctx, "Could not retrieve activity event id",
			"chat_id", ev.TgChatID, "user_id", ev.TgUserID, "error", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	return &ProcessResult{
		ParticipantID:    participantID,
		IsNewParticipant: isNewParticipant,
		IsNewGroupLink:   isNewGroupLink,
		ActivityEventID:  activityID,
	}, nil
}

// TouchParticipantActivity bumps last_activity_at for a participant.
func (s *sqlxStore) TouchParticipantActivity(ctx context.Context, orgID string, tgUserID int64) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE participants SET last_activity_at = ?, updated_at = ? WHERE org_id = ? AND tg_user_id = ?`,
		now, now, orgID, tgUserID)
	if err != nil {
		return fmt.Errorf("failed to touch participant activity (org %s, user %d): %w", orgID, tgUserID, err)
	}
	return nil
}

// MarkGroupSynced bumps last_sync_at on all mappings for a chat.
func (s *sqlxStore) MarkGroupSynced(ctx context.Context, tgChatID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE org_telegram_groups SET last_sync_at = ? WHERE tg_chat_id = ?`,
		time.Now().UTC(), tgChatID)
	if err != nil {
		return fmt.Errorf("failed to mark group %d synced: %w", tgChatID, err)
	}
	return nil
}

// UpdateBotStatus records whether the bot holds admin rights in a chat.
func (s *sqlxStore) UpdateBotStatus(ctx context.Context, tgChatID int64, connected bool) error {
	var err error
	status := "disconnected"
	if connected {
		status = "connected"
		_, err = s.db.ExecContext(ctx,
			`UPDATE org_telegram_groups SET bot_status = 'connected', last_sync_at = ? WHERE tg_chat_id = ?`,
			time.Now().UTC(), tgChatID)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE org_telegram_groups SET bot_status = 'disconnected' WHERE tg_chat_id = ?`,
			tgChatID)
	}
	if err != nil {
		return fmt.Errorf("failed to update bot status for chat %d: %w", tgChatID, err)
	}

	s.logger.DebugContext(ctx, "Bot status updated", "chat_id", tgChatID, "bot_status", status)
	return nil
}

// OrgsForChat returns the ids of organizations actively tracking a chat.
func (s *sqlxStore) OrgsForChat(ctx context.Context, tgChatID int64) ([]string, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var orgs []string
	err := s.db.SelectContext(ctx, &orgs,
		`SELECT org_id FROM org_telegram_groups WHERE tg_chat_id = ? AND status = 'active' ORDER BY org_id`,
		tgChatID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error resolving orgs for chat", "chat_id", tgChatID, "error", err)
		return nil, fmt.Errorf("failed to resolve orgs for chat %d: %w", tgChatID, err)
	}

	return orgs, nil
}

// ActiveGroupMappings returns all active (org, chat) pairs.
func (s *sqlxStore) ActiveGroupMappings(ctx context.Context) ([]GroupMapping, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var mappings []GroupMapping
	err := s.db.SelectContext(ctx, &mappings,
		`SELECT org_id, tg_chat_id FROM org_telegram_groups WHERE status = 'active' ORDER BY tg_chat_id, org_id`)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error fetching group mappings", "error", err)
		return nil, fmt.Errorf("failed to fetch group mappings: %w", err)
	}

	return mappings, nil
}

// ConnectedGroups returns up to limit connected chats, least recently synced first.
func (s *sqlxStore) ConnectedGroups(ctx context.Context, limit int) ([]TrackedGroup, error) {
	if limit <= 0 {
		limit = 50
	}

	var groups []TrackedGroup
	err := s.db.SelectContext(ctx, &groups, `
        SELECT tg_chat_id, MIN(title) AS title
        FROM org_telegram_groups
        WHERE bot_status = 'connected' AND status = 'active'
        GROUP BY tg_chat_id
        ORDER BY MIN(last_sync_at) ASC NULLS FIRST
        LIMIT ?;
    `, limit)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error fetching connected groups", "error", err)
		return nil, fmt.Errorf("failed to fetch connected groups: %w", err)
	}

	return groups, nil
}

// ArchiveGroup marks a chat and all its org mappings as archived.
func (s *sqlxStore) ArchiveGroup(ctx context.Context, tgChatID int64, reason string) error {
	now := time.Now().UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	_, err = tx.ExecContext(ctx, `
        UPDATE org_telegram_groups
        SET status = 'archived', bot_status = 'inactive',
            archived_at = ?, archived_reason = ?, last_sync_at = ?
        WHERE tg_chat_id = ? AND status = 'active';
    `, now, reason, now, tgChatID)
	if err != nil {
		return fmt.Errorf("failed to archive group %d: %w", tgChatID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.InfoContext(ctx, "Group archived", "chat_id", tgChatID, "reason", reason)
	return nil
}

// DailyGroupStats aggregates one chat's activity for the UTC day starting at day.
func (s *sqlxStore) DailyGroupStats(ctx context.Context, tgChatID int64, day time.Time) (*DailyStats, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	dayStart := day.UTC().Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	var stats DailyStats
	query := `
        SELECT
            COUNT(CASE WHEN event_type = 'message' THEN 1 END) AS messages,
            COUNT(CASE WHEN event_type = 'message' AND reply_to_message_id != 0 THEN 1 END) AS replies,
            COUNT(DISTINCT CASE WHEN event_type = 'message' THEN tg_user_id END) AS dau,
            COUNT(CASE WHEN event_type = 'join' THEN 1 END) AS joins,
            COUNT(CASE WHEN event_type = 'leave' THEN 1 END) AS leaves
        FROM activity_events
        WHERE tg_chat_id = ? AND created_at >= ? AND created_at < ?;
    `

	err := s.db.GetContext(ctx, &stats, query, tgChatID, dayStart, dayEnd)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error aggregating daily stats",
			"chat_id", tgChatID, "day", dayStart.Format("2006-01-02"), "error", err)
		return nil, fmt.Errorf("failed to aggregate daily stats for chat %d: %w", tgChatID, err)
	}

	return &stats, nil
}

// UpsertGroupMetrics writes one (org, chat, day) aggregate row.
func (s *sqlxStore) UpsertGroupMetrics(ctx context.Context, m *GroupMetrics) error {
	if m == nil {
		return fmt.Errorf("cannot save nil group metrics")
	}

	query := `
        INSERT INTO group_metrics (org_id, tg_chat_id, date, dau, message_count, reply_count,
                                   reply_ratio, join_count, leave_count, net_member_change, updated_at)
        VALUES (:org_id, :tg_chat_id, :date, :dau, :message_count, :reply_count,
                :reply_ratio, :join_count, :leave_count, :net_member_change, :updated_at)
        ON CONFLICT (org_id, tg_chat_id, date) DO UPDATE SET
            dau = excluded.dau,
            message_count = excluded.message_count,
            reply_count = excluded.reply_count,
            reply_ratio = excluded.reply_ratio,
            join_count = excluded.join_count,
            leave_count = excluded.leave_count,
            net_member_change = excluded.net_member_change,
            updated_at = excluded.updated_at;
    `

	arg := map[string]any{
		"org_id":            m.OrgID,
		"tg_chat_id":        m.TgChatID,
		"date":              m.Date,
		"dau":               m.DAU,
		"message_count":     m.MessageCount,
		"reply_count":       m.ReplyCount,
		"reply_ratio":       m.ReplyRatio,
		"join_count":        m.JoinCount,
		"leave_count":       m.LeaveCount,
		"net_member_change": m.NetMemberChange,
		"updated_at":        time.Now().UTC(),
	}

	if _, err := s.db.NamedExecContext(ctx, query, arg); err != nil {
		s.logger.ErrorContext(ctx, "Error upserting group metrics",
			"org_id", m.OrgID, "chat_id", m.TgChatID, "date", m.Date, "error", err)
		return fmt.Errorf("failed to upsert group metrics (org %s, chat %d, %s): %w", m.OrgID, m.TgChatID, m.Date, err)
	}

	return nil
}

// GetParticipant retrieves a participant by org and Telegram user id.
func (s *sqlxStore) GetParticipant(ctx context.Context, orgID string, tgUserID int64) (*Participant, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var p Participant
	query := `
        SELECT id, created_at, updated_at, org_id, tg_user_id, username,
               first_name, last_name, full_name, last_activity_at
        FROM participants WHERE org_id = ? AND tg_user_id = ?;
    `

	err := s.db.GetContext(ctx, &p, query, orgID, tgUserID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting participant",
			"org_id", orgID, "user_id", tgUserID, "error", err)
		return nil, fmt.Errorf("failed to get participant (org %s, user %d): %w", orgID, tgUserID, err)
	}

	return &p, nil
}

// GetWebhookEvent retrieves one idempotency ledger entry.
func (s *sqlxStore) GetWebhookEvent(ctx context.Context, updateID, tgChatID int64) (*WebhookEvent, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var ev WebhookEvent
	query := `
        SELECT id, update_id, tg_chat_id, event_type, org_id, processed_at
        FROM webhook_events WHERE update_id = ? AND tg_chat_id = ?;
    `

	err := s.db.GetContext(ctx, &ev, query, updateID, tgChatID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting webhook ledger entry",
			"update_id", updateID, "chat_id", tgChatID, "error", err)
		return nil, fmt.Errorf("failed to get webhook ledger entry for update %d: %w", updateID, err)
	}

	return &ev, nil
}

// RecentActivity returns up to limit activity rows for a chat, newest first.
func (s *sqlxStore) RecentActivity(ctx context.Context, tgChatID int64, limit int) ([]ActivityEvent, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if limit <= 0 {
		limit = 50
	}

	var events []ActivityEvent
	query := `
        SELECT id, created_at, org_id, event_type, participant_id, tg_chat_id, tg_user_id,
               message_id, message_thread_id, reply_to_message_id, reply_to_user_id,
               chars_count, links_count, mentions_count, reactions_count, has_media, meta
        FROM activity_events
        WHERE tg_chat_id = ?
        ORDER BY id DESC
        LIMIT ?;
    `

	err := s.db.SelectContext(ctx, &events, query, tgChatID, limit)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error fetching recent activity", "chat_id", tgChatID, "error", err)
		return nil, fmt.Errorf("failed to fetch recent activity for chat %d: %w", tgChatID, err)
	}

	return events, nil
}
