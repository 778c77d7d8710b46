package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/go-telegram/bot/models"

	"github.com/edgard/groupflow/internal/database"
	"github.com/edgard/groupflow/internal/telegram"
)

// setupPipeline wires the processor over a real in-memory store.
func setupPipeline(t *testing.T) (*Processor, database.Store, func(query string, args ...any) int) {
	t.Helper()

	db, err := database.NewDB(":memory:")
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	now := time.Now().UTC()
	if _, err := db.Exec(`
        INSERT INTO org_telegram_groups (org_id, tg_chat_id, title, status, bot_status, created_at)
        VALUES ('org-a', -100123, 'Community', 'active', 'connected', ?);
    `, now); err != nil {
		t.Fatalf("seed mapping: %v", err)
	}

	count := func(query string, args ...any) int {
		t.Helper()
		var n int
		if err := db.Get(&n, query, args...); err != nil {
			t.Fatalf("count query %q: %v", query, err)
		}
		return n
	}

	store := database.NewStore(db, discardLogger())
	return NewProcessor(store, discardLogger()), store, count
}

// Redelivery of the same update must leave state identical to a single
// delivery: one participant, one group link, one activity row, one ledger
// entry.
func TestPipelineRedelivery(t *testing.T) {
	t.Parallel()

	p, _, count := setupPipeline(t)
	ctx := context.Background()

	upd := groupMessage(42, -100123, &models.User{ID: 555, Username: "dana", FirstName: "Dana"}, "hello world")

	for i := 0; i < 2; i++ {
		if err := p.HandleUpdate(ctx, telegram.BotMain, upd); err != nil {
			t.Fatalf("HandleUpdate: %v", err)
		}
	}

	if n := count(`SELECT COUNT(*) FROM participants`); n != 1 {
		t.Errorf("participants = %d, want 1", n)
	}
	if n := count(`SELECT COUNT(*) FROM participant_groups`); n != 1 {
		t.Errorf("group links = %d, want 1", n)
	}
	if n := count(`SELECT COUNT(*) FROM activity_events`); n != 1 {
		t.Errorf("activity rows = %d, want 1", n)
	}
	if n := count(`SELECT COUNT(*) FROM webhook_events WHERE update_id = 42 AND tg_chat_id = -100123`); n != 1 {
		t.Errorf("ledger entries = %d, want 1", n)
	}
	if n := count(`SELECT message_id FROM activity_events LIMIT 1`); n != 100 {
		t.Errorf("message_id = %d, want 100", n)
	}
}

func TestPipelineSecondMessageSameSender(t *testing.T) {
	t.Parallel()

	p, _, count := setupPipeline(t)
	ctx := context.Background()

	first := groupMessage(42, -100123, &models.User{ID: 555, Username: "dana"}, "first")
	second := groupMessage(43, -100123, &models.User{ID: 555, Username: "dana"}, "second")

	if err := p.HandleUpdate(ctx, telegram.BotMain, first); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if err := p.HandleUpdate(ctx, telegram.BotMain, second); err != nil {
		t.Fatalf("second update: %v", err)
	}

	if n := count(`SELECT COUNT(*) FROM participants`); n != 1 {
		t.Errorf("participants = %d, want 1", n)
	}
	if n := count(`SELECT COUNT(*) FROM activity_events`); n != 2 {
		t.Errorf("activity rows = %d, want 2", n)
	}
}
