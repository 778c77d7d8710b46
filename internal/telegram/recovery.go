package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// Outcome reports one recovery attempt.
type Outcome struct {
	Bot         BotID  `json:"bot"`
	Attempted   bool   `json:"attempted"`
	Success     bool   `json:"success"`
	RateLimited bool   `json:"rate_limited"`
	Description string `json:"description"`
}

// Recovery re-registers webhooks when they go missing, guarded by a
// RecoveryGate unless the attempt is forced.
type Recovery struct {
	gate    *RecoveryGate
	clients map[BotID]*Client
	logger  *slog.Logger

	// notify, when non-nil, reports recovery outcomes to the ops channel.
	notify func(ctx context.Context, text string)
}

// NewRecovery creates a recovery service over the given clients. When
// monitoringChatID is non-zero, outcomes are reported through notifier.
func NewRecovery(gate *RecoveryGate, clients []*Client, notifier *Client, monitoringChatID int64, logger *slog.Logger) *Recovery {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	byID := make(map[BotID]*Client, len(clients))
	for _, c := range clients {
		byID[c.ID()] = c
	}

	r := &Recovery{
		gate:    gate,
		clients: byID,
		logger:  logger.With("component", "webhook_recovery"),
	}

	if notifier != nil && monitoringChatID != 0 {
		r.notify = func(ctx context.Context, text string) {
			if err := notifier.SendMessage(ctx, monitoringChatID, text); err != nil {
				r.logger.WarnContext(ctx, "Failed to send recovery notification", "error", err)
			}
		}
	}

	return r
}

// Recover attempts to re-register one bot's webhook. Unless force is set, the
// rate gate must allow the attempt; a declined attempt is not an error. The
// attempt is recorded against the gate whether or not registration succeeds.
func (r *Recovery) Recover(ctx context.Context, id BotID, reason string, force bool) Outcome {
	out := Outcome{Bot: id}

	client, ok := r.clients[id]
	if !ok {
		out.Description = fmt.Sprintf("bot %s is not configured", id)
		return out
	}

	if !force && !r.gate.Allow(id) {
		out.RateLimited = true
		out.Description = "recovery declined by rate gate"
		r.logger.InfoContext(ctx, "Webhook recovery declined by rate gate",
			"bot", id, "reason", reason, "stats", r.gate.Stats(id))
		return out
	}

	out.Attempted = true
	r.gate.Record(id)

	r.logger.InfoContext(ctx, "Attempting webhook recovery", "bot", id, "reason", reason, "forced", force)

	if err := client.InstallWebhook(ctx); err != nil {
		out.Description = err.Error()
		r.logger.ErrorContext(ctx, "Webhook recovery failed", "bot", id, "reason", reason, "error", err)
		if r.notify != nil {
			r.notify(ctx, fmt.Sprintf("⚠️ Webhook recovery failed for %s bot (%s): %v", id, reason, err))
		}
		return out
	}

	out.Success = true
	out.Description = "webhook re-registered"
	r.logger.InfoContext(ctx, "Webhook recovered", "bot", id, "reason", reason)
	if r.notify != nil {
		r.notify(ctx, fmt.Sprintf("✅ Webhook re-registered for %s bot (%s)", id, reason))
	}

	return out
}

// RecoverAll attempts recovery for every configured bot.
func (r *Recovery) RecoverAll(ctx context.Context, reason string, force bool) []Outcome {
	outcomes := make([]Outcome, 0, len(r.clients))
	for _, id := range []BotID{BotMain, BotNotifications, BotRegistration} {
		if _, ok := r.clients[id]; !ok {
			continue
		}
		outcomes = append(outcomes, r.Recover(ctx, id, reason, force))
	}
	return outcomes
}

// Stats exposes the gate history for one bot.
func (r *Recovery) Stats(id BotID) GateStats {
	return r.gate.Stats(id)
}
