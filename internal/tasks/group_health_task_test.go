package tasks

import (
	"context"
	"testing"

	"github.com/edgard/groupflow/internal/database"
)

func TestGroupHealthMarksHealthyGroupSynced(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t, map[string]string{
		"getChat": `{"ok":true,"result":{"id":-100123,"type":"supergroup","title":"Community"}}`,
	})
	store := newTaskFakeStore()
	store.connected = []database.TrackedGroup{{TgChatID: -100123, Title: "Community"}}

	task := newGroupHealthTask(TaskDeps{
		Logger:       taskLogger(),
		Store:        store,
		HealthClient: taskClient(t, api),
		Config:       taskConfig(),
	})

	if err := task(context.Background()); err != nil {
		t.Fatalf("task: %v", err)
	}

	if len(store.archived) != 0 {
		t.Errorf("healthy group must not be archived: %+v", store.archived)
	}
	if len(store.synced) != 1 || store.synced[0] != -100123 {
		t.Errorf("expected group to be marked synced, got %+v", store.synced)
	}
}

func TestGroupHealthArchivesWhenBotRemoved(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t, map[string]string{
		"getChat": `{"ok":false,"error_code":403,"description":"Forbidden: bot was kicked from the supergroup chat"}`,
	})
	store := newTaskFakeStore()
	store.connected = []database.TrackedGroup{{TgChatID: -100123, Title: "Community"}}

	task := newGroupHealthTask(TaskDeps{
		Logger:       taskLogger(),
		Store:        store,
		HealthClient: taskClient(t, api),
		Config:       taskConfig(),
	})

	if err := task(context.Background()); err != nil {
		t.Fatalf("task: %v", err)
	}

	if store.archived[-100123] != "bot_removed" {
		t.Errorf("expected bot_removed archive reason, got %+v", store.archived)
	}
}

func TestGroupHealthArchivesDeletedGroup(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t, map[string]string{
		"getChat": `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`,
	})
	store := newTaskFakeStore()
	store.connected = []database.TrackedGroup{{TgChatID: -100456, Title: "Gone"}}

	task := newGroupHealthTask(TaskDeps{
		Logger:       taskLogger(),
		Store:        store,
		HealthClient: taskClient(t, api),
		Config:       taskConfig(),
	})

	if err := task(context.Background()); err != nil {
		t.Fatalf("task: %v", err)
	}

	if store.archived[-100456] != "group_deleted" {
		t.Errorf("expected group_deleted archive reason, got %+v", store.archived)
	}
}

func TestGroupHealthTransientErrorLeavesGroup(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t, map[string]string{
		"getChat": `{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 5"}`,
	})
	store := newTaskFakeStore()
	store.connected = []database.TrackedGroup{{TgChatID: -100123, Title: "Community"}}

	task := newGroupHealthTask(TaskDeps{
		Logger:       taskLogger(),
		Store:        store,
		HealthClient: taskClient(t, api),
		Config:       taskConfig(),
	})

	if err := task(context.Background()); err != nil {
		t.Fatalf("task: %v", err)
	}

	if len(store.archived) != 0 {
		t.Errorf("transient failure must not archive the group: %+v", store.archived)
	}
	if len(store.synced) != 0 {
		t.Errorf("transient failure must not mark the group synced: %+v", store.synced)
	}
}

func TestGroupHealthNoGroups(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t, nil)
	task := newGroupHealthTask(TaskDeps{
		Logger:       taskLogger(),
		Store:        newTaskFakeStore(),
		HealthClient: taskClient(t, api),
		Config:       taskConfig(),
	})

	if err := task(context.Background()); err != nil {
		t.Fatalf("task: %v", err)
	}
	if api.callCount("getChat") != 0 {
		t.Errorf("expected no API calls, got %d", api.callCount("getChat"))
	}
}
