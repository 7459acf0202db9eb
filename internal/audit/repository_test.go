package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/cellgate-core/internal/infrastructure/database"
	"github.com/nerrad567/cellgate-core/migrations"
)

func setupRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "audit.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func TestRecord_FillsDefaults(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	e := &Entry{
		Action:     ActionSendMessage,
		EntityType: EntityCommand,
		EntityID:   "cmd-1",
		Actor:      "alice",
		Source:     SourceREST,
		Details:    map[string]any{"to": "+447700900123"},
	}
	if err := repo.Record(ctx, e); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if e.ID == "" {
		t.Error("ID not generated")
	}
	if e.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}

	page, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Total != 1 || len(page.Entries) != 1 {
		t.Fatalf("got total=%d entries=%d, want 1/1", page.Total, len(page.Entries))
	}
	got := page.Entries[0]
	if got.ID != e.ID || got.Actor != "alice" || got.EntityID != "cmd-1" {
		t.Errorf("unexpected entry %+v", got)
	}
	if got.Details["to"] != "+447700900123" {
		t.Errorf("details = %v", got.Details)
	}
}

func TestRecord_RequiresFields(t *testing.T) {
	repo := setupRepo(t)

	tests := []struct {
		name  string
		entry Entry
	}{
		{"no action", Entry{EntityType: EntityCall, Source: SourceREST}},
		{"no entity type", Entry{Action: ActionHangupCall, Source: SourceREST}},
		{"no source", Entry{Action: ActionHangupCall, EntityType: EntityCall}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := repo.Record(context.Background(), &tt.entry); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestList_FilterAndOrder(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	seed := []Entry{
		{Action: ActionSendMessage, EntityType: EntityCommand, EntityID: "cmd-1", Actor: "alice", Source: SourceREST},
		{Action: ActionInitiateCall, EntityType: EntityCall, EntityID: "call-1", Actor: "bob", Source: SourceWebSocket},
		{Action: ActionHangupCall, EntityType: EntityCall, EntityID: "call-1", Actor: "alice", Source: SourceREST},
		{Action: ActionContactCreate, EntityType: EntityContact, EntityID: "c-1", Actor: "alice", Source: SourceREST},
	}
	for i := range seed {
		seed[i].CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := repo.Record(ctx, &seed[i]); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	tests := []struct {
		name    string
		filter  Filter
		total   int
		firstID string
	}{
		{"all newest first", Filter{}, 4, seed[3].ID},
		{"by entity", Filter{EntityType: EntityCall, EntityID: "call-1"}, 2, seed[2].ID},
		{"by actor", Filter{Actor: "bob"}, 1, seed[1].ID},
		{"by action", Filter{Action: ActionContactCreate}, 1, seed[3].ID},
		{"offset", Filter{Limit: 1, Offset: 1}, 4, seed[2].ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if page.Total != tt.total {
				t.Errorf("Total = %d, want %d", page.Total, tt.total)
			}
			if len(page.Entries) == 0 || page.Entries[0].ID != tt.firstID {
				t.Errorf("first entry = %+v, want id %s", page.Entries, tt.firstID)
			}
		})
	}
}

func TestList_LimitClamped(t *testing.T) {
	repo := setupRepo(t)

	page, err := repo.List(context.Background(), Filter{Limit: 10_000, Offset: -3})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Limit != maxListLimit || page.Offset != 0 {
		t.Errorf("limit/offset = %d/%d, want %d/0", page.Limit, page.Offset, maxListLimit)
	}
	if page.Entries == nil {
		t.Error("Entries should be an empty slice, not nil")
	}
}
