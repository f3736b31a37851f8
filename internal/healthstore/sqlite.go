package healthstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "modernc.org/sqlite"

	"github.com/claude/vitalsync/internal/models"
)

// hrvWindow is the averaging window FetchLatest applies to HRV. A single HRV
// sample is noisy; the day's average is what gets scored against baseline.
const hrvWindow = 24 * time.Hour

// SQLiteStore is the concrete Reader over the local health mirror database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Reader = (*SQLiteStore)(nil)

// Open opens the health mirror at path, creating the schema if the file is
// new. Fails with ErrNotAvailable when the parent volume is missing.
func Open(path string) (*SQLiteStore, error) {
	if _, err := os.Stat(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %v", ErrNotAvailable, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening mirror: %v", ErrNotAvailable, err)
	}

	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS read_grants (
			kind       TEXT PRIMARY KEY,
			granted_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS samples (
			metric TEXT    NOT NULL,
			ts     INTEGER NOT NULL,
			value  REAL    NOT NULL,
			source TEXT    NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_samples_metric_ts ON samples(metric, ts)`,
		`CREATE TABLE IF NOT EXISTS sleep_samples (
			start_ts INTEGER NOT NULL,
			end_ts   INTEGER NOT NULL,
			stage    TEXT    NOT NULL,
			source   TEXT    NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sleep_start ON sleep_samples(start_ts)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating mirror schema: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the mirror database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Grant records read access for a data kind. Called by the export agent
// after the platform authorization prompt succeeds.
func (s *SQLiteStore) Grant(ctx context.Context, kinds ...string) error {
	for _, k := range kinds {
		if _, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO read_grants (kind) VALUES (?)`, k); err != nil {
			return fmt.Errorf("recording grant %s: %w", k, err)
		}
	}
	return nil
}

// EnsureAuthorized verifies every required read kind has been granted.
func (s *SQLiteStore) EnsureAuthorized(ctx context.Context) error {
	for _, kind := range ReadKinds {
		var n int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM read_grants WHERE kind = ?`, kind).Scan(&n)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrNotAvailable, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: missing %s", ErrNotAuthorized, kind)
		}
	}
	return nil
}

// InsertReadings appends raw scalar samples. Export-agent/test side only.
func (s *SQLiteStore) InsertReadings(ctx context.Context, metric models.Metric, readings []models.Reading) error {
	for _, r := range readings {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO samples (metric, ts, value, source) VALUES (?, ?, ?, ?)`,
			string(metric), r.Timestamp.Unix(), r.Value, r.Source); err != nil {
			return fmt.Errorf("inserting %s sample: %w", metric, err)
		}
	}
	return nil
}

// InsertSleepSamples appends raw sleep intervals. Export-agent/test side only.
func (s *SQLiteStore) InsertSleepSamples(ctx context.Context, samples []models.SleepSample) error {
	for _, smp := range samples {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO sleep_samples (start_ts, end_ts, stage, source) VALUES (?, ?, ?, ?)`,
			smp.Start.Unix(), smp.End.Unix(), string(smp.Stage), smp.Source); err != nil {
			return fmt.Errorf("inserting sleep sample: %w", err)
		}
	}
	return nil
}

// FetchHistory implements Reader.
func (s *SQLiteStore) FetchHistory(ctx context.Context, metric models.Metric, daysBack int) ([]models.Reading, error) {
	if err := s.EnsureAuthorized(ctx); err != nil {
		return nil, err
	}

	since := time.Now().AddDate(0, 0, -daysBack).Unix()
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, value, source FROM samples
		 WHERE metric = ? AND ts >= ?
		 ORDER BY ts ASC`,
		string(metric), since)
	if err != nil {
		return nil, fmt.Errorf("querying %s history: %w", metric, err)
	}
	defer rows.Close()

	var result []models.Reading
	for rows.Next() {
		var ts int64
		var r models.Reading
		if err := rows.Scan(&ts, &r.Value, &r.Source); err != nil {
			return nil, fmt.Errorf("scanning %s sample: %w", metric, err)
		}
		r.Timestamp = time.Unix(ts, 0)
		result = append(result, r)
	}
	return result, rows.Err()
}

// FetchLatest implements Reader.
func (s *SQLiteStore) FetchLatest(ctx context.Context, metric models.Metric) (*models.Reading, error) {
	if err := s.EnsureAuthorized(ctx); err != nil {
		return nil, err
	}

	if metric == models.MetricHRV {
		if r, err := s.windowAverage(ctx, metric, hrvWindow); err != nil {
			return nil, err
		} else if r != nil {
			return r, nil
		}
		// Empty window: fall through to the single most recent sample.
	}

	var ts int64
	var r models.Reading
	err := s.db.QueryRowContext(ctx,
		`SELECT ts, value, source FROM samples
		 WHERE metric = ? ORDER BY ts DESC LIMIT 1`,
		string(metric)).Scan(&ts, &r.Value, &r.Source)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest %s: %w", metric, err)
	}
	r.Timestamp = time.Unix(ts, 0)
	return &r, nil
}

// windowAverage returns one reading averaging all samples in the trailing
// window, stamped with the newest sample's time. Nil when the window is empty.
func (s *SQLiteStore) windowAverage(ctx context.Context, metric models.Metric, window time.Duration) (*models.Reading, error) {
	since := time.Now().Add(-window).Unix()
	var n int
	var avg float64
	var maxTS sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(value), 0), MAX(ts) FROM samples
		 WHERE metric = ? AND ts >= ?`,
		string(metric), since).Scan(&n, &avg, &maxTS)
	if err != nil {
		return nil, fmt.Errorf("averaging %s window: %w", metric, err)
	}
	if n == 0 {
		return nil, nil
	}
	return &models.Reading{
		Timestamp: time.Unix(maxTS.Int64, 0),
		Value:     avg,
		Source:    models.SourceDevice,
	}, nil
}

// FetchSleepHistory implements Reader.
func (s *SQLiteStore) FetchSleepHistory(ctx context.Context, daysBack int) ([]models.SleepSample, error) {
	if err := s.EnsureAuthorized(ctx); err != nil {
		return nil, err
	}

	since := time.Now().AddDate(0, 0, -daysBack).Unix()
	rows, err := s.db.QueryContext(ctx,
		`SELECT start_ts, end_ts, stage, source FROM sleep_samples
		 WHERE start_ts >= ?
		 ORDER BY start_ts ASC`,
		since)
	if err != nil {
		return nil, fmt.Errorf("querying sleep history: %w", err)
	}
	defer rows.Close()

	var result []models.SleepSample
	for rows.Next() {
		var startTS, endTS int64
		var rawStage string
		var smp models.SleepSample
		if err := rows.Scan(&startTS, &endTS, &rawStage, &smp.Source); err != nil {
			return nil, fmt.Errorf("scanning sleep sample: %w", err)
		}
		smp.Start = time.Unix(startTS, 0)
		smp.End = time.Unix(endTS, 0)
		smp.Stage, _ = models.ParseStage(rawStage)
		result = append(result, smp)
	}
	return result, rows.Err()
}
