package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLite_EmptyLoad(t *testing.T) {
	s := newTestStore(t)

	keys, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("expected empty set, got %v", keys)
	}
}

func TestSQLite_AppendThenLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, []string{"feed|https://x/1", "feed|https://x/2"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	keys, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !keys.Has("feed|https://x/1") || !keys.Has("feed|https://x/2") || len(keys) != 2 {
		t.Errorf("Load() = %v", keys)
	}
}

func TestSQLite_AppendIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, []string{"a|1"}); err != nil {
		t.Fatalf("first Append: %v", err)
	}
	if err := s.Append(ctx, []string{"a|1", "b|2"}); err != nil {
		t.Fatalf("second Append (duplicate): %v", err)
	}

	got, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0] != "a|1" || got[1] != "b|2" {
		t.Errorf("List() = %v", got)
	}
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Append(ctx, []string{"a|1"}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	keys, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !keys.Has("a|1") {
		t.Error("key lost after reopening the database")
	}
}

func TestSQLite_PruneRemovesOldKeepsFresh(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Insert an "old" entry by writing directly with a past timestamp.
	if _, err := s.db.Exec(
		"INSERT INTO notified_keys (key, notified_at) VALUES (?, datetime('now', '-3 days'))",
		"old|1",
	); err != nil {
		t.Fatalf("inserting old key: %v", err)
	}
	if err := s.Append(ctx, []string{"fresh|1"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	n, err := s.Prune(ctx, 48*time.Hour)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Errorf("Prune removed %d rows, want 1", n)
	}

	keys, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if keys.Has("old|1") || !keys.Has("fresh|1") {
		t.Errorf("after prune: %v", keys)
	}
}
