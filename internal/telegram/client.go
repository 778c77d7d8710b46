package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// ChatState classifies the outcome of a chat health probe.
type ChatState string

const (
	// ChatHealthy means the bot can still see the chat.
	ChatHealthy ChatState = "healthy"
	// ChatBotRemoved means the bot was kicked or lost access.
	ChatBotRemoved ChatState = "bot_removed"
	// ChatDeleted means the chat no longer exists.
	ChatDeleted ChatState = "group_deleted"
	// ChatUnknown means the probe failed for a transient reason.
	ChatUnknown ChatState = "error"
)

// ChatHealth is the result of probing one chat.
type ChatHealth struct {
	State ChatState
	Err   error
}

// WebhookStatus mirrors the fields of getWebhookInfo the monitor cares about.
type WebhookStatus struct {
	URL            string
	PendingUpdates int
	LastError      string
	LastErrorAt    int64
}

// Client wraps one bot identity's API connection.
type Client struct {
	cfg    BotConfig
	api    *bot.Bot
	logger *slog.Logger

	dropPendingUpdates bool
}

// NewClient creates the API client for one bot identity. apiBaseURL overrides
// the Telegram API origin when non-empty.
func NewClient(cfg BotConfig, apiBaseURL string, dropPendingUpdates bool, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	opts := []bot.Option{bot.WithSkipGetMe()}
	if apiBaseURL != "" {
		opts = append(opts, bot.WithServerURL(apiBaseURL))
	}

	api, err := bot.New(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram client for bot %s: %w", cfg.ID, err)
	}

	return &Client{
		cfg:                cfg,
		api:                api,
		logger:             logger.With("component", "telegram", "bot", string(cfg.ID)),
		dropPendingUpdates: dropPendingUpdates,
	}, nil
}

// ID returns the bot identity this client serves.
func (c *Client) ID() BotID {
	return c.cfg.ID
}

// Config returns the resolved bot configuration.
func (c *Client) Config() BotConfig {
	return c.cfg
}

// WebhookInfo fetches the currently registered webhook state from Telegram.
func (c *Client) WebhookInfo(ctx context.Context) (*WebhookStatus, error) {
	info, err := c.api.GetWebhookInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook info for bot %s: %w", c.cfg.ID, err)
	}

	return &WebhookStatus{
		URL:            info.URL,
		PendingUpdates: info.PendingUpdateCount,
		LastError:      info.LastErrorMessage,
		LastErrorAt:    int64(info.LastErrorDate),
	}, nil
}

// InstallWebhook registers this bot's webhook callback with Telegram.
func (c *Client) InstallWebhook(ctx context.Context) error {
	ok, err := c.api.SetWebhook(ctx, &bot.SetWebhookParams{
		URL:                c.cfg.WebhookURL,
		SecretToken:        c.cfg.WebhookSecret,
		AllowedUpdates:     c.cfg.AllowedUpdates,
		MaxConnections:     c.cfg.MaxConnections,
		DropPendingUpdates: c.dropPendingUpdates,
	})
	if err != nil {
		return fmt.Errorf("failed to set webhook for bot %s: %w", c.cfg.ID, err)
	}
	if !ok {
		return fmt.Errorf("telegram rejected webhook registration for bot %s", c.cfg.ID)
	}

	c.logger.InfoContext(ctx, "Webhook registered", "url", c.cfg.WebhookURL)
	return nil
}

// CheckChat probes whether the bot still has access to a chat. Permanent
// failures are classified; everything else is reported as transient.
func (c *Client) CheckChat(ctx context.Context, chatID int64) ChatHealth {
	_, err := c.api.GetChat(ctx, &bot.GetChatParams{ChatID: chatID})
	if err == nil {
		return ChatHealth{State: ChatHealthy}
	}

	switch {
	case errors.Is(err, bot.ErrorForbidden):
		return ChatHealth{State: ChatBotRemoved, Err: err}
	case errors.Is(err, bot.ErrorBadRequest) && strings.Contains(err.Error(), "chat not found"):
		return ChatHealth{State: ChatDeleted, Err: err}
	}

	return ChatHealth{State: ChatUnknown, Err: err}
}

// SendMessage delivers a plain text message to a chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	_, err := c.api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("failed to send message to chat %d: %w", chatID, err)
	}
	return nil
}

// ChatMemberChange extracts the affected user and membership direction from a
// chat_member update. joined is true when the new status grants presence in
// the chat.
func ChatMemberChange(upd *models.ChatMemberUpdated) (user *models.User, joined bool, ok bool) {
	if upd == nil {
		return nil, false, false
	}

	newUser, newIn := memberPresence(&upd.NewChatMember)
	_, oldIn := memberPresence(&upd.OldChatMember)
	if newUser == nil {
		return nil, false, false
	}
	if newIn == oldIn {
		return nil, false, false
	}

	return newUser, newIn, true
}

// memberPresence reports the user of a ChatMember variant and whether that
// status counts as being present in the chat.
func memberPresence(m *models.ChatMember) (*models.User, bool) {
	switch m.Type {
	case models.ChatMemberTypeOwner:
		if m.Owner != nil {
			return m.Owner.User, true
		}
	case models.ChatMemberTypeAdministrator:
		if m.Administrator != nil {
			return &m.Administrator.User, true
		}
	case models.ChatMemberTypeMember:
		if m.Member != nil {
			return m.Member.User, true
		}
	case models.ChatMemberTypeRestricted:
		if m.Restricted != nil {
			return m.Restricted.User, m.Restricted.IsMember
		}
	case models.ChatMemberTypeLeft:
		if m.Left != nil {
			return m.Left.User, false
		}
	case models.ChatMemberTypeBanned:
		if m.Banned != nil {
			return m.Banned.User, false
		}
	}
	return nil, false
}

// BotMembershipStatus reports whether a my_chat_member update leaves the bot
// connected to the chat. Administrator and plain member both count.
func BotMembershipStatus(upd *models.ChatMemberUpdated) (connected bool, ok bool) {
	if upd == nil {
		return false, false
	}

	switch upd.NewChatMember.Type {
	case models.ChatMemberTypeOwner, models.ChatMemberTypeAdministrator, models.ChatMemberTypeMember:
		return true, true
	case models.ChatMemberTypeRestricted:
		if upd.NewChatMember.Restricted != nil {
			return upd.NewChatMember.Restricted.IsMember, true
		}
		return false, true
	case models.ChatMemberTypeLeft, models.ChatMemberTypeBanned:
		return false, true
	}
	return false, false
}
