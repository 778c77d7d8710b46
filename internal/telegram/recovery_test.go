package telegram

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRecoverySuccess(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t, nil)
	client := newTestClient(t, api, BotMain)
	gate := NewRecoveryGate(20*time.Minute, 3)
	r := NewRecovery(gate, []*Client{client}, nil, 0, testLogger())

	out := r.Recover(context.Background(), BotMain, "monitor detected missing webhook", false)
	if !out.Attempted || !out.Success {
		t.Fatalf("expected successful recovery, got %+v", out)
	}

	calls := api.calls("setWebhook")
	if len(calls) != 1 {
		t.Fatalf("expected 1 setWebhook call, got %d", len(calls))
	}
	if !strings.Contains(calls[0], "https://app.example.com/api/telegram/webhook") {
		t.Errorf("setWebhook body missing callback URL: %s", calls[0])
	}
	if !strings.Contains(calls[0], "hook-secret") {
		t.Errorf("setWebhook body missing secret token: %s", calls[0])
	}
}

func TestRecoveryRateLimited(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t, nil)
	client := newTestClient(t, api, BotMain)
	gate := NewRecoveryGate(20*time.Minute, 3)
	r := NewRecovery(gate, []*Client{client}, nil, 0, testLogger())

	first := r.Recover(context.Background(), BotMain, "test", false)
	if !first.Success {
		t.Fatalf("expected first recovery to succeed, got %+v", first)
	}

	second := r.Recover(context.Background(), BotMain, "test", false)
	if second.Attempted {
		t.Errorf("expected second recovery inside cooldown to be declined, got %+v", second)
	}
	if !second.RateLimited {
		t.Error("expected second recovery to report rate limiting")
	}

	if calls := api.calls("setWebhook"); len(calls) != 1 {
		t.Errorf("expected exactly 1 setWebhook call, got %d", len(calls))
	}
}

func TestRecoveryForceBypassesGate(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t, nil)
	client := newTestClient(t, api, BotMain)
	gate := NewRecoveryGate(20*time.Minute, 3)
	r := NewRecovery(gate, []*Client{client}, nil, 0, testLogger())

	r.Recover(context.Background(), BotMain, "test", false)

	forced := r.Recover(context.Background(), BotMain, "admin request", true)
	if !forced.Attempted || !forced.Success {
		t.Errorf("expected forced recovery to bypass the gate, got %+v", forced)
	}

	if calls := api.calls("setWebhook"); len(calls) != 2 {
		t.Errorf("expected 2 setWebhook calls, got %d", len(calls))
	}
}

func TestRecoveryFailureStillRecorded(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t, map[string]string{
		"setWebhook": `{"ok":false,"error_code":429,"description":"Too Many Requests"}`,
	})
	client := newTestClient(t, api, BotMain)
	gate := NewRecoveryGate(20*time.Minute, 3)
	r := NewRecovery(gate, []*Client{client}, nil, 0, testLogger())

	out := r.Recover(context.Background(), BotMain, "test", false)
	if !out.Attempted || out.Success {
		t.Fatalf("expected attempted but failed recovery, got %+v", out)
	}

	// The failed attempt counts against the gate.
	if gate.Allow(BotMain) {
		t.Error("expected gate to be in cooldown after failed attempt")
	}
}

func TestRecoveryUnknownBot(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t, nil)
	client := newTestClient(t, api, BotMain)
	gate := NewRecoveryGate(20*time.Minute, 3)
	r := NewRecovery(gate, []*Client{client}, nil, 0, testLogger())

	out := r.Recover(context.Background(), BotRegistration, "test", false)
	if out.Attempted {
		t.Errorf("expected no attempt for unconfigured bot, got %+v", out)
	}
}

func TestRecoveryNotifiesMonitoringChat(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t, nil)
	client := newTestClient(t, api, BotMain)
	notifier := newTestClient(t, api, BotNotifications)
	gate := NewRecoveryGate(20*time.Minute, 3)
	r := NewRecovery(gate, []*Client{client}, notifier, -100999, testLogger())

	out := r.Recover(context.Background(), BotMain, "test", false)
	if !out.Success {
		t.Fatalf("expected successful recovery, got %+v", out)
	}

	if calls := api.calls("sendMessage"); len(calls) != 1 {
		t.Errorf("expected 1 notification message, got %d", len(calls))
	}
}
