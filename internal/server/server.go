// Package server exposes the webhook receiver and admin endpoints.
package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-telegram/bot/models"

	"github.com/edgard/groupflow/internal/config"
	"github.com/edgard/groupflow/internal/database"
	"github.com/edgard/groupflow/internal/logger"
	"github.com/edgard/groupflow/internal/telegram"
)

// Processor consumes one validated webhook update.
type Processor interface {
	HandleUpdate(ctx context.Context, botID telegram.BotID, update *models.Update) error
}

// Server wires webhook and admin routes over the ingest pipeline.
type Server struct {
	cfg      *config.Config
	bots     []telegram.BotConfig
	proc     Processor
	monitor  *telegram.Monitor
	recovery *telegram.Recovery
	store    database.Store
	logger   *slog.Logger
}

// New creates the HTTP server surface.
func New(cfg *config.Config, bots []telegram.BotConfig, proc Processor,
	monitor *telegram.Monitor, recovery *telegram.Recovery, store database.Store, log *slog.Logger,
) *Server {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{
		cfg:      cfg,
		bots:     bots,
		proc:     proc,
		monitor:  monitor,
		recovery: recovery,
		store:    store,
		logger:   log.With("component", "server"),
	}
}

// Handler builds the route mux with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	for _, bc := range s.bots {
		mux.HandleFunc("POST "+telegram.WebhookPath(bc.ID), s.webhookHandler(bc))
	}

	mux.HandleFunc("GET /api/telegram/admin/monitor-webhooks", s.requireCronSecret(s.handleMonitorWebhooks))
	mux.HandleFunc("POST /api/telegram/admin/monitor-webhooks", s.requireCronSecret(s.handleForceRecovery))
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	return logger.Middleware(s.logger)(mux)
}

func decodeJSONBody(r *http.Request, dst any) error {
	defer func() { _ = r.Body.Close() }()
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
