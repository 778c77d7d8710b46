package telegram

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// Status is the monitor's verdict on one bot's webhook registration.
type Status struct {
	Bot            BotID  `json:"bot"`
	Configured     bool   `json:"configured"`
	URL            string `json:"url"`
	ExpectedURL    string `json:"expected_url"`
	PendingUpdates int    `json:"pending_updates"`
	LastError      string `json:"last_error,omitempty"`
	LastErrorAt    string `json:"last_error_at,omitempty"`
	CheckError     string `json:"check_error,omitempty"`
}

// Monitor compares each bot's registered webhook against the expected
// callback URL.
type Monitor struct {
	clients []*Client
	logger  *slog.Logger
}

// NewMonitor creates a monitor over the given bot clients.
func NewMonitor(clients []*Client, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Monitor{
		clients: clients,
		logger:  logger.With("component", "webhook_monitor"),
	}
}

// Check probes one bot's webhook registration. A failed API call yields an
// unconfigured status with CheckError set rather than an error, so a flapping
// API still produces a recovery candidate.
func (m *Monitor) Check(ctx context.Context, c *Client) Status {
	status := Status{
		Bot:         c.ID(),
		ExpectedURL: c.Config().WebhookURL,
	}

	info, err := c.WebhookInfo(ctx)
	if err != nil {
		m.logger.WarnContext(ctx, "Webhook info check failed", "bot", c.ID(), "error", err)
		status.CheckError = err.Error()
		return status
	}

	status.URL = info.URL
	status.PendingUpdates = info.PendingUpdates
	status.Configured = info.URL == status.ExpectedURL
	status.LastError = info.LastError
	if info.LastErrorAt > 0 {
		status.LastErrorAt = time.Unix(info.LastErrorAt, 0).UTC().Format(time.RFC3339)
	}

	if !status.Configured {
		m.logger.WarnContext(ctx, "Webhook misconfigured",
			"bot", c.ID(), "registered_url", info.URL, "expected_url", status.ExpectedURL)
	}

	return status
}

// CheckAll probes every bot and returns their statuses in client order.
func (m *Monitor) CheckAll(ctx context.Context) []Status {
	statuses := make([]Status, 0, len(m.clients))
	for _, c := range m.clients {
		statuses = append(statuses, m.Check(ctx, c))
	}
	return statuses
}

// Clients returns the bot clients the monitor covers.
func (m *Monitor) Clients() []*Client {
	return m.clients
}
