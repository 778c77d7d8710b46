package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-telegram/bot/models"

	"github.com/edgard/groupflow/internal/telegram"
)

// secretTokenHeader carries the webhook secret Telegram echoes back on
// every delivery.
const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// recoveryTimeout bounds the detached webhook re-registration triggered by
// an authentication failure.
const recoveryTimeout = 30 * time.Second

// webhookHandler builds the inbound update handler for one bot identity.
//
// Status codes drive Telegram's redelivery: 200 acknowledges the update
// whether it was processed or discarded, 401 rejects a bad secret, 500 asks
// for redelivery after an internal failure.
func (s *Server) webhookHandler(bc telegram.BotConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(secretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(bc.WebhookSecret)) != 1 {
			s.logger.WarnContext(r.Context(), "Webhook secret mismatch", "bot", string(bc.ID))
			s.triggerRecovery(bc.ID, "webhook secret mismatch")
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}

		var update models.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			s.logger.WarnContext(r.Context(), "Malformed webhook payload", "bot", string(bc.ID), "error", err)
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed update"})
			return
		}

		if err := s.proc.HandleUpdate(r.Context(), bc.ID, &update); err != nil {
			s.logger.ErrorContext(r.Context(), "Update processing failed",
				"bot", string(bc.ID), "update_id", update.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "processing failed"})
			return
		}

		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

// triggerRecovery kicks off webhook re-registration without blocking the
// request. A secret mismatch usually means a stale registration, so the
// recovery path re-installs the webhook with the current secret. The gate
// keeps a flood of bad requests from hammering the Telegram API.
func (s *Server) triggerRecovery(id telegram.BotID, reason string) {
	if s.recovery == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), recoveryTimeout)
		defer cancel()
		s.recovery.Recover(ctx, id, reason, false)
	}()
}
