package audit

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the audit table.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE audit_entries (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			edge_id TEXT,
			trace_id TEXT,
			user_id TEXT,
			details TEXT,
			created_at TEXT NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return db
}

func TestSQLiteRepository_RecordAndList(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	entry := &Entry{
		Action:  ActionCommandSent,
		EdgeID:  "RED-1A2B3C4D",
		TraceID: "trace-1",
		UserID:  "user-1",
		Details: map[string]any{"code": "201"},
	}
	if err := repo.Record(ctx, entry); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if entry.ID == "" {
		t.Error("Record() did not assign an ID")
	}
	if entry.CreatedAt.IsZero() {
		t.Error("Record() did not assign CreatedAt")
	}

	result, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 1 {
		t.Fatalf("List() total = %d, want 1", result.Total)
	}

	got := result.Entries[0]
	if got.Action != ActionCommandSent {
		t.Errorf("action = %q, want %q", got.Action, ActionCommandSent)
	}
	if got.EdgeID != "RED-1A2B3C4D" {
		t.Errorf("edge_id = %q, want RED-1A2B3C4D", got.EdgeID)
	}
	if got.TraceID != "trace-1" {
		t.Errorf("trace_id = %q, want trace-1", got.TraceID)
	}
	if got.Details["code"] != "201" {
		t.Errorf("details code = %v, want 201", got.Details["code"])
	}
}

func TestSQLiteRepository_RecordOptionalFields(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	// A binding removal carries no trace id and no details.
	if err := repo.Record(ctx, &Entry{
		Action: ActionEdgeUnbound,
		EdgeID: "RED-DEADBEEF",
		UserID: "user-1",
	}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	result, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	got := result.Entries[0]
	if got.TraceID != "" {
		t.Errorf("trace_id = %q, want empty", got.TraceID)
	}
	if got.Details != nil {
		t.Errorf("details = %v, want nil", got.Details)
	}
}

func TestSQLiteRepository_ListFilters(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	seed := []*Entry{
		{Action: ActionEdgeBound, EdgeID: "RED-00000001", UserID: "user-1"},
		{Action: ActionCommandSent, EdgeID: "RED-00000001", UserID: "user-1", TraceID: "t1"},
		{Action: ActionCommandSent, EdgeID: "RED-00000002", UserID: "user-2", TraceID: "t2"},
	}
	for _, e := range seed {
		if err := repo.Record(ctx, e); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"no filter", Filter{}, 3},
		{"by action", Filter{Action: ActionCommandSent}, 2},
		{"by edge", Filter{EdgeID: "RED-00000001"}, 2},
		{"by user", Filter{UserID: "user-2"}, 1},
		{"action and edge", Filter{Action: ActionCommandSent, EdgeID: "RED-00000001"}, 1},
		{"no matches", Filter{EdgeID: "RED-FFFFFFFF"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if result.Total != tt.want {
				t.Errorf("total = %d, want %d", result.Total, tt.want)
			}
			if len(result.Entries) != tt.want {
				t.Errorf("entries = %d, want %d", len(result.Entries), tt.want)
			}
		})
	}
}

func TestSQLiteRepository_ListPagination(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	base := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if err := repo.Record(ctx, &Entry{
			Action:    ActionCommandSent,
			EdgeID:    "RED-00000001",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	result, err := repo.List(ctx, Filter{Limit: 2})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 5 {
		t.Errorf("total = %d, want 5", result.Total)
	}
	if len(result.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(result.Entries))
	}
	// Most recent first.
	if !result.Entries[0].CreatedAt.After(result.Entries[1].CreatedAt) {
		t.Errorf("entries not ordered most recent first: %v, %v",
			result.Entries[0].CreatedAt, result.Entries[1].CreatedAt)
	}

	page2, err := repo.List(ctx, Filter{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(page2.Entries) != 1 {
		t.Errorf("last page entries = %d, want 1", len(page2.Entries))
	}

	// Limit clamps to 200, offset clamps to 0.
	clamped, err := repo.List(ctx, Filter{Limit: 1000, Offset: -9})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if clamped.Limit != 200 {
		t.Errorf("limit = %d, want 200", clamped.Limit)
	}
	if clamped.Offset != 0 {
		t.Errorf("offset = %d, want 0", clamped.Offset)
	}
}
