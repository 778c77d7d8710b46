// Package telegram wraps the Telegram Bot API client and implements webhook
// registration monitoring and rate-limited recovery.
package telegram

import (
	"fmt"
	"strings"

	"github.com/edgard/groupflow/internal/config"
)

// BotID names one of the bot identities the service operates.
type BotID string

// Bot identities. Main ingests group activity; the other two only receive
// direct messages on their own webhook endpoints.
const (
	BotMain          BotID = "main"
	BotNotifications BotID = "notifications"
	BotRegistration  BotID = "registration"
)

// ParseBotID validates a bot identity name.
func ParseBotID(name string) (BotID, error) {
	switch BotID(name) {
	case BotMain, BotNotifications, BotRegistration:
		return BotID(name), nil
	}
	return "", fmt.Errorf("unknown bot identity %q", name)
}

// webhookPaths maps each identity to its inbound webhook route.
var webhookPaths = map[BotID]string{
	BotMain:          "/api/telegram/webhook",
	BotNotifications: "/api/telegram/notifications/webhook",
	BotRegistration:  "/api/telegram/registration/webhook",
}

// WebhookPath returns the inbound webhook route for a bot identity.
func WebhookPath(id BotID) string {
	return webhookPaths[id]
}

// BotConfig is the resolved runtime configuration for one bot identity.
type BotConfig struct {
	ID             BotID
	Token          string
	WebhookSecret  string
	WebhookURL     string
	AllowedUpdates []string
	MaxConnections int
}

// ResolveBots builds the runtime bot set from configuration. Identities
// without a token are skipped. The main bot subscribes to membership updates
// in addition to messages; the sibling bots only need messages.
func ResolveBots(cfg *config.Config) ([]BotConfig, error) {
	base := strings.TrimRight(cfg.Server.BaseURL, "/")

	var bots []BotConfig
	for _, id := range []BotID{BotMain, BotNotifications, BotRegistration} {
		creds, ok := cfg.Telegram.Bots[string(id)]
		if !ok || creds.Token == "" {
			continue
		}

		allowed := []string{"message"}
		if id == BotMain {
			allowed = []string{"message", "chat_member", "my_chat_member"}
		}

		bots = append(bots, BotConfig{
			ID:             id,
			Token:          creds.Token,
			WebhookSecret:  cfg.Telegram.WebhookSecret(string(id)),
			WebhookURL:     base + WebhookPath(id),
			AllowedUpdates: allowed,
			MaxConnections: cfg.Telegram.MaxConnections,
		})
	}

	if len(bots) == 0 {
		return nil, fmt.Errorf("no bot identities configured")
	}

	return bots, nil
}
