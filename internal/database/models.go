package database

import (
	"database/sql"
	"time"
)

// Participant is the canonical per-organization identity record for a
// Telegram user. A user active in two organizations has two rows.
type Participant struct {
	ID        int64     `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	OrgID          string    `db:"org_id"`
	TgUserID       int64     `db:"tg_user_id"`
	Username       string    `db:"username"`
	FirstName      string    `db:"first_name"`
	LastName       string    `db:"last_name"`
	FullName       string    `db:"full_name"`
	LastActivityAt time.Time `db:"last_activity_at"`
}

// ParticipantGroup records that a participant has been observed in a chat.
type ParticipantGroup struct {
	ID            int64        `db:"id"`
	ParticipantID int64        `db:"participant_id"`
	TgChatID      int64        `db:"tg_chat_id"`
	JoinedAt      time.Time    `db:"joined_at"`
	LeftAt        sql.NullTime `db:"left_at"`
	CreatedAt     time.Time    `db:"created_at"`
}

// ActivityEvent is one immutable row in the activity ledger: a message,
// join, or leave observed in a chat. Message ids are only unique per chat;
// duplicate suppression is handled by the webhook_events ledger.
type ActivityEvent struct {
	ID        int64     `db:"id"`
	CreatedAt time.Time `db:"created_at"`

	OrgID            string        `db:"org_id"`
	EventType        string        `db:"event_type"`
	ParticipantID    sql.NullInt64 `db:"participant_id"`
	TgChatID         int64         `db:"tg_chat_id"`
	TgUserID         int64         `db:"tg_user_id"`
	MessageID        int64         `db:"message_id"`
	MessageThreadID  int64         `db:"message_thread_id"`
	ReplyToMessageID int64         `db:"reply_to_message_id"`
	ReplyToUserID    int64         `db:"reply_to_user_id"`
	CharsCount       int           `db:"chars_count"`
	LinksCount       int           `db:"links_count"`
	MentionsCount    int           `db:"mentions_count"`
	ReactionsCount   int           `db:"reactions_count"`
	HasMedia         bool          `db:"has_media"`
	Meta             string        `db:"meta"`
}

// WebhookEvent is one idempotency ledger entry, keyed by the provider's
// update id plus the chat id.
type WebhookEvent struct {
	ID          int64          `db:"id"`
	UpdateID    int64          `db:"update_id"`
	TgChatID    int64          `db:"tg_chat_id"`
	EventType   string         `db:"event_type"`
	OrgID       sql.NullString `db:"org_id"`
	ProcessedAt time.Time      `db:"processed_at"`
}

// OrgTelegramGroup maps an organization to a tracked Telegram chat.
type OrgTelegramGroup struct {
	ID             int64        `db:"id"`
	OrgID          string       `db:"org_id"`
	TgChatID       int64        `db:"tg_chat_id"`
	Title          string       `db:"title"`
	Status         string       `db:"status"`
	BotStatus      string       `db:"bot_status"`
	LastSyncAt     sql.NullTime `db:"last_sync_at"`
	ArchivedAt     sql.NullTime `db:"archived_at"`
	ArchivedReason string       `db:"archived_reason"`
	CreatedAt      time.Time    `db:"created_at"`
}

// GroupMetrics is one per-day aggregate row for a chat within an organization.
type GroupMetrics struct {
	OrgID           string `db:"org_id"`
	TgChatID        int64  `db:"tg_chat_id"`
	Date            string `db:"date"`
	DAU             int    `db:"dau"`
	MessageCount    int    `db:"message_count"`
	ReplyCount      int    `db:"reply_count"`
	ReplyRatio      int    `db:"reply_ratio"`
	JoinCount       int    `db:"join_count"`
	LeaveCount      int    `db:"leave_count"`
	NetMemberChange int    `db:"net_member_change"`
}

// MessageEvent is one normalized inbound message, ready for processing.
type MessageEvent struct {
	OrgID            string
	TgUserID         int64
	TgChatID         int64
	MessageID        int64
	MessageThreadID  int64
	ReplyToMessageID int64
	ReplyToUserID    int64
	Username         string
	FirstName        string
	LastName         string
	FullName         string
	HasMedia         bool
	CharsCount       int
	LinksCount       int
	MentionsCount    int
	ReactionsCount   int
	Meta             string
}

// MembershipEvent is one normalized join or leave observed in a chat.
type MembershipEvent struct {
	OrgID    string
	TgUserID int64
	TgChatID int64
	Username string
	FullName string
	Joined   bool
	Meta     string
}

// ProcessResult reports the outcome of one message-event processing pass.
type ProcessResult struct {
	ParticipantID    int64
	IsNewParticipant bool
	IsNewGroupLink   bool
	ActivityEventID  int64
}

// GroupMapping pairs an organization with a chat it tracks.
type GroupMapping struct {
	OrgID    string `db:"org_id"`
	TgChatID int64  `db:"tg_chat_id"`
}

// TrackedGroup is a connected group selected for a health check pass.
type TrackedGroup struct {
	TgChatID int64  `db:"tg_chat_id"`
	Title    string `db:"title"`
}

// DailyStats holds the raw per-day activity aggregates for one chat.
type DailyStats struct {
	Messages int `db:"messages"`
	Replies  int `db:"replies"`
	DAU      int `db:"dau"`
	Joins    int `db:"joins"`
	Leaves   int `db:"leaves"`
}

// HasActivity reports whether the day produced anything worth an aggregate row.
func (s *DailyStats) HasActivity() bool {
	return s.Messages > 0 || s.Joins > 0 || s.Leaves > 0
}
