package tasks

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/edgard/groupflow/internal/config"
	"github.com/edgard/groupflow/internal/database"
	"github.com/edgard/groupflow/internal/telegram"
)

// fakeStore serves the task tests with canned data and call recording.
type fakeStore struct {
	mu sync.Mutex

	mappings  []database.GroupMapping
	connected []database.TrackedGroup
	stats     map[int64]map[string]*database.DailyStats

	metrics  []database.GroupMetrics
	archived map[int64]string
	synced   []int64

	statsErr error
}

func newTaskFakeStore() *fakeStore {
	return &fakeStore{
		stats:    make(map[int64]map[string]*database.DailyStats),
		archived: make(map[int64]string),
	}
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) WasUpdateProcessed(context.Context, int64, int64) (bool, error) {
	return false, nil
}

func (f *fakeStore) MarkUpdateProcessed(context.Context, int64, int64, string, string) error {
	return nil
}

func (f *fakeStore) ProcessMessageEvent(context.Context, *database.MessageEvent) (*database.ProcessResult, error) {
	return &database.ProcessResult{}, nil
}

func (f *fakeStore) RecordMembershipEvent(context.Context, *database.MembershipEvent) (*database.ProcessResult, error) {
	return &database.ProcessResult{}, nil
}

func (f *fakeStore) TouchParticipantActivity(context.Context, string, int64) error { return nil }

func (f *fakeStore) MarkGroupSynced(_ context.Context, chatID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced = append(f.synced, chatID)
	return nil
}

func (f *fakeStore) UpdateBotStatus(context.Context, int64, bool) error { return nil }

func (f *fakeStore) OrgsForChat(context.Context, int64) ([]string, error) { return nil, nil }

func (f *fakeStore) ActiveGroupMappings(context.Context) ([]database.GroupMapping, error) {
	return f.mappings, nil
}

func (f *fakeStore) ConnectedGroups(context.Context, int) ([]database.TrackedGroup, error) {
	return f.connected, nil
}

func (f *fakeStore) ArchiveGroup(_ context.Context, chatID int64, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archived[chatID] = reason
	return nil
}

func (f *fakeStore) DailyGroupStats(_ context.Context, chatID int64, day time.Time) (*database.DailyStats, error) {
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	if byDay, ok := f.stats[chatID]; ok {
		if s, ok := byDay[day.Format("2006-01-02")]; ok {
			return s, nil
		}
	}
	return &database.DailyStats{}, nil
}

func (f *fakeStore) UpsertGroupMetrics(_ context.Context, m *database.GroupMetrics) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metrics = append(f.metrics, *m)
	return nil
}

func (f *fakeStore) GetParticipant(context.Context, string, int64) (*database.Participant, error) {
	return nil, nil
}

func (f *fakeStore) GetWebhookEvent(context.Context, int64, int64) (*database.WebhookEvent, error) {
	return nil, nil
}

func (f *fakeStore) RecentActivity(context.Context, int64, int) ([]database.ActivityEvent, error) {
	return nil, nil
}

func taskLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeAPI answers Telegram Bot API calls with canned per-method responses.
type fakeAPI struct {
	mu        sync.Mutex
	responses map[string]string
	calls     map[string]int
	server    *httptest.Server
}

func newFakeAPI(t *testing.T, responses map[string]string) *fakeAPI {
	t.Helper()

	f := &fakeAPI{responses: responses, calls: make(map[string]int)}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]

		f.mu.Lock()
		f.calls[method]++
		resp, ok := f.responses[method]
		f.mu.Unlock()

		if !ok {
			resp = `{"ok":true,"result":true}`
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(resp))
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeAPI) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func taskClient(t *testing.T, api *fakeAPI) *telegram.Client {
	t.Helper()

	c, err := telegram.NewClient(telegram.BotConfig{
		ID:             telegram.BotMain,
		Token:          "1:main",
		WebhookSecret:  "hook-secret",
		WebhookURL:     "https://app.example.com/api/telegram/webhook",
		AllowedUpdates: []string{"message"},
		MaxConnections: 40,
	}, api.server.URL, false, taskLogger())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func taskConfig() *config.Config {
	return &config.Config{
		Backfill: config.BackfillConfig{Days: 3},
		Health: config.HealthConfig{
			BatchSize: 50,
			CallDelay: 0,
			Deadline:  time.Minute,
		},
	}
}
