// Package syncstate persists the engine's small key-value sync state: the
// last sync timestamp and the per-metric backfill-complete flags.
package syncstate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/claude/vitalsync/internal/models"
)

// Persisted key names. These are stable identifiers; renaming them would
// orphan existing state and re-trigger full backfills.
const (
	KeyLastSync = "healthkit_last_sync_date"

	keyHRVBackfill   = "healthkit_hrv_backfill_complete"
	keyRHRBackfill   = "healthkit_rhr_backfill_complete"
	keySleepBackfill = "healthkit_sleep_backfill_complete"
)

// backfillKey returns the flag key for a metric, or "" for metrics without a
// backfill flag (weight always scans a fixed window).
func backfillKey(metric models.Metric) string {
	switch metric {
	case models.MetricHRV:
		return keyHRVBackfill
	case models.MetricRHR:
		return keyRHRBackfill
	case models.MetricSleep:
		return keySleepBackfill
	}
	return ""
}

// Store is the persisted sync-state contract. A backfill flag transitions
// false→true exactly once per metric and never reverts except via
// ResetBackfill.
type Store interface {
	// LastSync returns the last completed sync time; ok is false when no
	// sync has ever completed.
	LastSync(ctx context.Context) (t time.Time, ok bool, err error)
	SetLastSync(ctx context.Context, t time.Time) error

	BackfillComplete(ctx context.Context, metric models.Metric) (bool, error)
	SetBackfillComplete(ctx context.Context, metric models.Metric) error

	// ResetBackfill clears the three backfill flags (not the last-sync
	// timestamp), forcing a full re-backfill on the next run.
	ResetBackfill(ctx context.Context) error
}

// Memory is an in-memory Store for tests and dry runs.
type Memory struct {
	mu     sync.Mutex
	values map[string]string
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) LastSync(context.Context) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.values[KeyLastSync]
	if !ok {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parsing last sync %q: %w", raw, err)
	}
	return t, true, nil
}

func (m *Memory) SetLastSync(_ context.Context, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[KeyLastSync] = t.Format(time.RFC3339)
	return nil
}

func (m *Memory) BackfillComplete(_ context.Context, metric models.Metric) (bool, error) {
	key := backfillKey(metric)
	if key == "" {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key] == "true", nil
}

func (m *Memory) SetBackfillComplete(_ context.Context, metric models.Metric) error {
	key := backfillKey(metric)
	if key == "" {
		return fmt.Errorf("metric %s has no backfill flag", metric)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = "true"
	return nil
}

func (m *Memory) ResetBackfill(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, keyHRVBackfill)
	delete(m.values, keyRHRBackfill)
	delete(m.values, keySleepBackfill)
	return nil
}
