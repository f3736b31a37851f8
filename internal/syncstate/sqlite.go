package syncstate

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/claude/vitalsync/internal/models"
)

// SQLite persists sync state in a small key-value table at dir/state.db.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens (or creates) the state database under dir.
func OpenSQLite(dir string) (*SQLite, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir %s: %w", dir, err)
	}

	dbPath := filepath.Join(dir, "state.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS sync_state (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating sync_state table: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the state database.
func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading state %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLite) set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sync_state (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		return fmt.Errorf("writing state %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) LastSync(ctx context.Context) (time.Time, bool, error) {
	raw, ok, err := s.get(ctx, KeyLastSync)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parsing last sync %q: %w", raw, err)
	}
	return t, true, nil
}

func (s *SQLite) SetLastSync(ctx context.Context, t time.Time) error {
	return s.set(ctx, KeyLastSync, t.Format(time.RFC3339))
}

func (s *SQLite) BackfillComplete(ctx context.Context, metric models.Metric) (bool, error) {
	key := backfillKey(metric)
	if key == "" {
		return false, nil
	}
	raw, ok, err := s.get(ctx, key)
	if err != nil {
		return false, err
	}
	return ok && raw == "true", nil
}

func (s *SQLite) SetBackfillComplete(ctx context.Context, metric models.Metric) error {
	key := backfillKey(metric)
	if key == "" {
		return fmt.Errorf("metric %s has no backfill flag", metric)
	}
	return s.set(ctx, key, "true")
}

func (s *SQLite) ResetBackfill(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM sync_state WHERE key IN (?, ?, ?)`,
		keyHRVBackfill, keyRHRBackfill, keySleepBackfill)
	if err != nil {
		return fmt.Errorf("resetting backfill flags: %w", err)
	}
	return nil
}
