package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bensun/jobdigest/internal/model"
)

// SQLiteStore keeps notified keys in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures the
// notified_keys table exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	createTable := `CREATE TABLE IF NOT EXISTS notified_keys (
		key         TEXT PRIMARY KEY,
		notified_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`
	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating notified_keys table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Load returns every notified key.
func (s *SQLiteStore) Load(ctx context.Context) (model.KeySet, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key FROM notified_keys")
	if err != nil {
		return nil, fmt.Errorf("querying notified keys: %w", err)
	}
	defer rows.Close()

	keys := model.KeySet{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scanning notified key: %w", err)
		}
		keys[k] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading notified keys: %w", err)
	}
	return keys, nil
}

// Append records keys in one transaction. Keys already present are ignored.
func (s *SQLiteStore) Append(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning append: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO notified_keys (key) VALUES (?)")
	if err != nil {
		return fmt.Errorf("preparing append: %w", err)
	}
	defer stmt.Close()

	for _, k := range keys {
		if _, err := stmt.ExecContext(ctx, k); err != nil {
			return fmt.Errorf("appending key %s: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing append: %w", err)
	}
	return nil
}

// List returns every key in lexical order.
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	keys, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return sortedKeys(keys), nil
}

// Prune deletes keys notified longer ago than olderThan and returns how many
// were removed. Pruned postings may be notified again.
func (s *SQLiteStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format("2006-01-02 15:04:05")
	res, err := s.db.ExecContext(ctx, "DELETE FROM notified_keys WHERE notified_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning keys older than %v: %w", olderThan, err)
	}
	return res.RowsAffected()
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
