package history

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"chatlens/internal/api"
)

func TestRecordAndRecent(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	first := Entry{
		JobID:         "job-1",
		InteractionID: "int-1",
		SourceFile:    "export.json",
		Outcome:       "completed",
		AgentStates: map[string]api.AgentState{
			"evaluation": api.AgentCompleted,
		},
		CreatedAt:  time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2026, 8, 1, 9, 4, 0, 0, time.UTC),
	}
	if err := store.Record(ctx, first); err != nil {
		t.Fatalf("record: %v", err)
	}
	second := Entry{
		JobID:        "job-2",
		Outcome:      "failed",
		ErrorMessage: "evaluation: model crashed",
	}
	if err := store.Record(ctx, second); err != nil {
		t.Fatalf("record: %v", err)
	}

	entries, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].JobID != "job-2" {
		t.Fatalf("expected newest first, got %q", entries[0].JobID)
	}
	if entries[1].AgentStates["evaluation"] != api.AgentCompleted {
		t.Fatalf("agent states not preserved: %v", entries[1].AgentStates)
	}
	if !entries[1].CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("created_at not preserved: %v", entries[1].CreatedAt)
	}
	if entries[0].FinishedAt.IsZero() {
		t.Fatal("expected finished_at defaulted for second entry")
	}
}

func TestRecordRequiresJobID(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	if err := store.Record(context.Background(), Entry{Outcome: "completed"}); err == nil {
		t.Fatal("expected error for empty job id")
	}
}

func TestRecentLimit(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := store.Record(ctx, Entry{JobID: "job", Outcome: "completed"}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	entries, err := store.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected limit respected, got %d", len(entries))
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if _, err := store.db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := Open(dir); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestOpenReusesExistingDatabase(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Record(context.Background(), Entry{JobID: "job-1", Outcome: "completed"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	entries, err := reopened.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected persisted entry, got %d", len(entries))
	}

	var count int
	row := reopened.db.QueryRow("SELECT COUNT(1) FROM uploads")
	if err := row.Scan(&count); errors.Is(err, sql.ErrNoRows) || err != nil {
		t.Fatalf("count uploads: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one row, got %d", count)
	}
}
