package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/edgard/groupflow/internal/telegram"
)

// requireCronSecret guards admin endpoints with the shared cron secret,
// accepted as an x-cron-secret header or a bearer token.
func (s *Server) requireCronSecret(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		secret := r.Header.Get("x-cron-secret")
		if secret == "" {
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				secret = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if subtle.ConstantTimeCompare([]byte(secret), []byte(s.cfg.Server.CronSecret)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}

		next(w, r)
	}
}

// monitorReport is the admin monitoring response.
type monitorReport struct {
	Statuses   []telegram.Status             `json:"statuses"`
	Recoveries []telegram.Outcome            `json:"recoveries,omitempty"`
	Gate       map[string]telegram.GateStats `json:"gate"`
}

// handleMonitorWebhooks checks every bot's webhook registration and
// auto-recovers any that drifted, subject to the rate gate.
func (s *Server) handleMonitorWebhooks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	statuses := s.monitor.CheckAll(ctx)

	var recoveries []telegram.Outcome
	for _, status := range statuses {
		if status.Configured {
			continue
		}
		recoveries = append(recoveries, s.recovery.Recover(ctx, status.Bot, "monitor detected misconfigured webhook", false))
	}

	gate := make(map[string]telegram.GateStats, len(statuses))
	for _, status := range statuses {
		gate[string(status.Bot)] = s.recovery.Stats(status.Bot)
	}

	writeJSON(w, http.StatusOK, monitorReport{
		Statuses:   statuses,
		Recoveries: recoveries,
		Gate:       gate,
	})
}

// forceRecoveryRequest selects which bot to recover; empty means all.
type forceRecoveryRequest struct {
	Bot    string `json:"bot"`
	Reason string `json:"reason"`
}

// handleForceRecovery re-registers webhooks immediately, bypassing the
// rate gate.
func (s *Server) handleForceRecovery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req forceRecoveryRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := decodeJSONBody(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
			return
		}
	}

	reason := req.Reason
	if reason == "" {
		reason = "manual recovery request"
	}

	var outcomes []telegram.Outcome
	if req.Bot == "" {
		outcomes = s.recovery.RecoverAll(ctx, reason, true)
	} else {
		id, err := telegram.ParseBotID(req.Bot)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		outcomes = []telegram.Outcome{s.recovery.Recover(ctx, id, reason, true)}
	}

	writeJSON(w, http.StatusOK, map[string]any{"recoveries": outcomes})
}
