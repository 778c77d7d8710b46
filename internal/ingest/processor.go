package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"unicode/utf8"

	"github.com/go-telegram/bot/models"

	"github.com/edgard/groupflow/internal/database"
	"github.com/edgard/groupflow/internal/telegram"
)

// Processor consumes validated webhook updates and writes the resulting
// participant, membership, and activity records.
type Processor struct {
	store  database.Store
	logger *slog.Logger
}

// NewProcessor creates a processor over the given store.
func NewProcessor(store database.Store, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Processor{
		store:  store,
		logger: logger.With("component", "ingest"),
	}
}

// HandleUpdate processes one webhook update for the given bot identity.
// A nil return means the update was either fully processed or deliberately
// discarded; the caller acknowledges both the same way. Errors mean
// processing failed and Telegram should redeliver.
//
// Only the main bot ingests group activity. Updates on the sibling bots are
// acknowledged without persistence.
func (p *Processor) HandleUpdate(ctx context.Context, botID telegram.BotID, update *models.Update) error {
	if update == nil {
		return nil
	}

	if botID != telegram.BotMain {
		p.logger.DebugContext(ctx, "Acknowledged sibling bot update",
			"bot", string(botID), "update_id", update.ID)
		return nil
	}

	switch {
	case update.Message != nil:
		return p.handleMessage(ctx, botID, update.ID, update.Message)
	case update.EditedMessage != nil:
		return p.handleEditedMessage(ctx, update.EditedMessage)
	case update.ChatMember != nil:
		return p.handleChatMember(ctx, botID, update.ID, update.ChatMember)
	case update.MyChatMember != nil:
		return p.handleMyChatMember(ctx, update.ID, update.MyChatMember)
	}

	p.logger.DebugContext(ctx, "Ignoring update without supported payload", "update_id", update.ID)
	return nil
}

func isGroupChat(chatType models.ChatType) bool {
	return chatType == models.ChatTypeGroup || chatType == models.ChatTypeSupergroup
}

func (p *Processor) handleMessage(ctx context.Context, botID telegram.BotID, updateID int64, msg *models.Message) error {
	chatID := msg.Chat.ID

	if !isGroupChat(msg.Chat.Type) {
		p.logger.DebugContext(ctx, "Skipping non-group message", "update_id", updateID, "chat_id", chatID)
		return nil
	}
	if ShouldSkipSender(msg.From) {
		p.logger.DebugContext(ctx, "Skipping message from out-of-scope sender", "update_id", updateID, "chat_id", chatID)
		return nil
	}

	processed, err := p.store.WasUpdateProcessed(ctx, updateID, chatID)
	if err != nil {
		return fmt.Errorf("idempotency check failed: %w", err)
	}
	if processed {
		p.logger.DebugContext(ctx, "Discarding duplicate update", "update_id", updateID, "chat_id", chatID)
		return nil
	}

	orgs, err := p.store.OrgsForChat(ctx, chatID)
	if err != nil {
		return fmt.Errorf("org resolution failed: %w", err)
	}
	if len(orgs) == 0 {
		// Untracked chat. Not marked in the ledger so a later mapping can
		// still pick up a redelivery.
		p.logger.DebugContext(ctx, "No organization tracks this chat", "update_id", updateID, "chat_id", chatID)
		return nil
	}

	media := mediaType(msg)
	links, mentions := countEntities(msg)
	meta := buildMessageMeta(msg, media, string(botID))

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	ev := &database.MessageEvent{
		TgUserID:        msg.From.ID,
		TgChatID:        chatID,
		MessageID:       int64(msg.ID),
		MessageThreadID: int64(msg.MessageThreadID),
		Username:        msg.From.Username,
		FirstName:       msg.From.FirstName,
		LastName:        msg.From.LastName,
		FullName:        FullName(msg.From),
		HasMedia:        media != "",
		CharsCount:      utf8.RuneCountInString(text),
		LinksCount:      links,
		MentionsCount:   mentions,
		Meta:            meta,
	}
	if reply := msg.ReplyToMessage; reply != nil {
		ev.ReplyToMessageID = int64(reply.ID)
		if reply.From != nil {
			ev.ReplyToUserID = reply.From.ID
		}
	}

	for _, orgID := range orgs {
		ev.OrgID = orgID
		result, procErr := p.store.ProcessMessageEvent(ctx, ev)
		if procErr != nil {
			return fmt.Errorf("message event processing failed for org %s: %w", orgID, procErr)
		}
		if result.IsNewParticipant {
			p.logger.InfoContext(ctx, "New participant observed",
				"org_id", orgID, "chat_id", chatID, "participant_id", result.ParticipantID)
		}
	}

	// Ledger write is best effort: losing it risks a duplicate, failing the
	// whole update risks losing it entirely.
	if markErr := p.store.MarkUpdateProcessed(ctx, updateID, chatID, "message", orgs[0]); markErr != nil {
		p.logger.WarnContext(ctx, "Failed to record ledger entry",
			"update_id", updateID, "chat_id", chatID, "error", markErr)
	}

	if syncErr := withRetry(ctx, func() error {
		return p.store.MarkGroupSynced(ctx, chatID)
	}); syncErr != nil {
		p.logger.WarnContext(ctx, "Failed to mark group synced", "chat_id", chatID, "error", syncErr)
	}

	return nil
}

// handleEditedMessage refreshes participant recency without appending an
// activity row; edits are not new activity.
func (p *Processor) handleEditedMessage(ctx context.Context, msg *models.Message) error {
	if !isGroupChat(msg.Chat.Type) || ShouldSkipSender(msg.From) {
		return nil
	}

	orgs, err := p.store.OrgsForChat(ctx, msg.Chat.ID)
	if err != nil {
		return fmt.Errorf("org resolution failed: %w", err)
	}

	for _, orgID := range orgs {
		if touchErr := withRetry(ctx, func() error {
			return p.store.TouchParticipantActivity(ctx, orgID, msg.From.ID)
		}); touchErr != nil {
			p.logger.WarnContext(ctx, "Failed to touch participant activity",
				"org_id", orgID, "user_id", msg.From.ID, "error", touchErr)
		}
	}
	return nil
}

func (p *Processor) handleChatMember(ctx context.Context, botID telegram.BotID, updateID int64, upd *models.ChatMemberUpdated) error {
	chatID := upd.Chat.ID

	user, joined, ok := telegram.ChatMemberChange(upd)
	if !ok {
		p.logger.DebugContext(ctx, "Ignoring chat_member update without membership transition",
			"update_id", updateID, "chat_id", chatID)
		return nil
	}
	if ShouldSkipSender(user) {
		return nil
	}

	processed, err := p.store.WasUpdateProcessed(ctx, updateID, chatID)
	if err != nil {
		return fmt.Errorf("idempotency check failed: %w", err)
	}
	if processed {
		p.logger.DebugContext(ctx, "Discarding duplicate update", "update_id", updateID, "chat_id", chatID)
		return nil
	}

	orgs, err := p.store.OrgsForChat(ctx, chatID)
	if err != nil {
		return fmt.Errorf("org resolution failed: %w", err)
	}
	if len(orgs) == 0 {
		p.logger.DebugContext(ctx, "No organization tracks this chat", "update_id", updateID, "chat_id", chatID)
		return nil
	}

	eventType := "leave"
	if joined {
		eventType = "join"
	}

	ev := &database.MembershipEvent{
		TgUserID: user.ID,
		TgChatID: chatID,
		Username: user.Username,
		FullName: FullName(user),
		Joined:   joined,
		Meta:     buildMembershipMeta(user.Username, string(botID)),
	}

	for _, orgID := range orgs {
		ev.OrgID = orgID
		if _, procErr := p.store.RecordMembershipEvent(ctx, ev); procErr != nil {
			return fmt.Errorf("%s event processing failed for org %s: %w", eventType, orgID, procErr)
		}
	}

	if markErr := p.store.MarkUpdateProcessed(ctx, updateID, chatID, eventType, orgs[0]); markErr != nil {
		p.logger.WarnContext(ctx, "Failed to record ledger entry",
			"update_id", updateID, "chat_id", chatID, "error", markErr)
	}

	p.logger.InfoContext(ctx, "Membership change recorded",
		"chat_id", chatID, "user_id", user.ID, "event", eventType)
	return nil
}

func (p *Processor) handleMyChatMember(ctx context.Context, updateID int64, upd *models.ChatMemberUpdated) error {
	chatID := upd.Chat.ID

	connected, ok := telegram.BotMembershipStatus(upd)
	if !ok {
		return nil
	}

	if err := withRetry(ctx, func() error {
		return p.store.UpdateBotStatus(ctx, chatID, connected)
	}); err != nil {
		return fmt.Errorf("bot status update failed for chat %d: %w", chatID, err)
	}

	if markErr := p.store.MarkUpdateProcessed(ctx, updateID, chatID, "bot_status", ""); markErr != nil {
		p.logger.WarnContext(ctx, "Failed to record ledger entry",
			"update_id", updateID, "chat_id", chatID, "error", markErr)
	}

	p.logger.InfoContext(ctx, "Bot membership changed", "chat_id", chatID, "connected", connected)
	return nil
}
