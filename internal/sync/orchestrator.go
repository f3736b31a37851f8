// Package sync coordinates the full health-store-to-backend synchronization
// run: recovery snapshot first (the anchor), then four independent per-metric
// history syncs that read, aggregate, diff against remote dates, and upload
// only the delta in bounded chunks.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/claude/vitalsync/internal/healthstore"
	"github.com/claude/vitalsync/internal/models"
	"github.com/claude/vitalsync/internal/remote"
	"github.com/claude/vitalsync/internal/syncstate"
)

const (
	// incrementalWindowDays is the cheap ordinary-run window once a
	// metric's backfill has completed.
	incrementalWindowDays = 7

	// backfillWindowDays covers the one-time historical pull (ten years).
	backfillWindowDays = 3650

	// weightWindowDays is weight's fixed window; weight has no backfill flag.
	weightWindowDays = 90

	// minSyncInterval gates SyncIfNeeded.
	minSyncInterval = time.Hour
)

// RemoteAPI is the slice of the backend client the orchestrator uses.
type RemoteAPI interface {
	FetchExistingDates(ctx context.Context, metric models.Metric, days int) (map[models.Day]bool, error)
	UploadBulk(ctx context.Context, metric models.Metric, entries []remote.Entry) (int, error)
	UploadRecovery(ctx context.Context, snap *models.RecoverySnapshot, baseline *models.RecoveryBaseline) error
}

// SnapshotSource is the slice of the recovery calculator the orchestrator uses.
type SnapshotSource interface {
	CalculateRecoveryScore(ctx context.Context) (*models.RecoverySnapshot, error)
	GetOrUpdateBaseline(ctx context.Context) (models.RecoveryBaseline, error)
}

// MetricResult records one metric's outcome within a run. Error is the
// swallowed per-metric failure, empty on success.
type MetricResult struct {
	Metric       models.Metric `json:"metric"`
	WindowDays   int           `json:"windowDays"`
	LocalDays    int           `json:"localDays"`
	Uploaded     int           `json:"uploaded"`
	BackfillDone bool          `json:"backfillDone"`
	Error        string        `json:"error,omitempty"`
}

// Status is a snapshot of observable sync state. Obtained by copy via
// Status(); never mutated by callers.
type Status struct {
	InFlight     bool                           `json:"inFlight"`
	LastRunID    string                         `json:"lastRunId,omitempty"`
	LastSyncAt   time.Time                      `json:"lastSyncAt"`
	LastError    string                         `json:"lastError,omitempty"`
	LastSnapshot *models.RecoverySnapshot       `json:"lastSnapshot,omitempty"`
	Metrics      map[models.Metric]MetricResult `json:"metrics,omitempty"`
}

// Orchestrator runs syncs. All mutable state (the in-flight flag and the
// status fields) is guarded by mu; readers get copies.
type Orchestrator struct {
	reader   healthstore.Reader
	remote   RemoteAPI
	recovery SnapshotSource
	state    syncstate.Store
	loc      *time.Location
	log      *slog.Logger
	now      func() time.Time

	mu       stdsync.Mutex
	inFlight bool
	status   Status
}

// New creates an Orchestrator. loc decides calendar-day bucketing.
func New(reader healthstore.Reader, remoteAPI RemoteAPI, recovery SnapshotSource, state syncstate.Store, loc *time.Location, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		reader:   reader,
		remote:   remoteAPI,
		recovery: recovery,
		state:    state,
		loc:      loc,
		log:      log,
		now:      time.Now,
	}
}

// Status returns a copy of the current sync status.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.status
	s.InFlight = o.inFlight
	if o.status.Metrics != nil {
		s.Metrics = make(map[models.Metric]MetricResult, len(o.status.Metrics))
		for k, v := range o.status.Metrics {
			s.Metrics[k] = v
		}
	}
	return s
}

// SyncIfNeeded runs a sync unless one completed within the last hour.
// An explicit Sync call bypasses this gate.
func (o *Orchestrator) SyncIfNeeded(ctx context.Context) error {
	last, ok, err := o.state.LastSync(ctx)
	if err != nil {
		return fmt.Errorf("reading last sync time: %w", err)
	}
	if ok && o.now().Sub(last) < minSyncInterval {
		o.log.Info("sync skipped, within minimum interval", "last_sync", last)
		return nil
	}
	return o.Sync(ctx)
}

// Sync runs one full sync. Re-entrant calls while a sync is in flight are
// no-ops, not queued. Authorization failure and recovery-snapshot failure
// abort the whole run; per-metric history failures are recorded in the
// status and never propagate.
func (o *Orchestrator) Sync(ctx context.Context) error {
	o.mu.Lock()
	if o.inFlight {
		o.mu.Unlock()
		o.log.Info("sync already in flight, ignoring")
		return nil
	}
	o.inFlight = true
	runID := uuid.NewString()
	o.status.LastRunID = runID
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.inFlight = false
		o.mu.Unlock()
	}()

	log := o.log.With("run", runID)
	log.Info("sync starting")

	if err := o.reader.EnsureAuthorized(ctx); err != nil {
		o.setError(fmt.Errorf("health store access: %w", err))
		return err
	}

	// Recovery snapshot is the synchronization anchor: its failure aborts
	// the run before any history sync is attempted.
	snap, err := o.recovery.CalculateRecoveryScore(ctx)
	if err != nil {
		o.setError(fmt.Errorf("computing recovery snapshot: %w", err))
		return err
	}
	baseline, err := o.recovery.GetOrUpdateBaseline(ctx)
	if err != nil {
		o.setError(fmt.Errorf("reading baseline: %w", err))
		return err
	}
	if err := o.remote.UploadRecovery(ctx, snap, &baseline); err != nil {
		o.setError(fmt.Errorf("uploading recovery snapshot: %w", err))
		return err
	}
	log.Info("recovery snapshot uploaded", "date", snap.Date, "score", snap.Score, "state", snap.State)

	// Per-metric history syncs run concurrently; they touch disjoint data
	// and disjoint remote paths, and none may fail the run.
	plans := o.plans()
	results := make([]MetricResult, len(plans))
	var wg stdsync.WaitGroup
	for i, p := range plans {
		wg.Add(1)
		go func(i int, p metricPlan) {
			defer wg.Done()
			results[i] = o.syncMetric(ctx, p, log)
		}(i, p)
	}
	wg.Wait()

	syncedAt := o.now()
	if err := o.state.SetLastSync(ctx, syncedAt); err != nil {
		log.Warn("failed to persist last sync time", "error", err)
	}

	o.mu.Lock()
	o.status.LastError = ""
	o.status.LastSyncAt = syncedAt
	o.status.LastSnapshot = snap
	o.status.Metrics = make(map[models.Metric]MetricResult, len(results))
	for _, r := range results {
		o.status.Metrics[r.Metric] = r
	}
	o.mu.Unlock()

	log.Info("sync complete")
	return nil
}

// ResetBackfill clears the backfill flags so the next run re-pulls the full
// historical window for HRV, RHR, and sleep.
func (o *Orchestrator) ResetBackfill(ctx context.Context) error {
	return o.state.ResetBackfill(ctx)
}

func (o *Orchestrator) setError(err error) {
	o.mu.Lock()
	o.status.LastError = err.Error()
	o.mu.Unlock()
	o.log.Error("sync aborted", "error", err)
}

// syncMetric runs one metric's read → aggregate → diff → upload pipeline.
// Every failure is caught here and returned in the result, never re-thrown.
func (o *Orchestrator) syncMetric(ctx context.Context, p metricPlan, log *slog.Logger) MetricResult {
	result := MetricResult{Metric: p.metric}

	backfilled := false
	if p.hasBackfill {
		var err error
		backfilled, err = o.state.BackfillComplete(ctx, p.metric)
		if err != nil {
			result.Error = err.Error()
			log.Warn("metric sync failed", "metric", p.metric, "phase", "state", "error", err)
			return result
		}
	}
	result.WindowDays = p.window(backfilled)

	entries, err := p.collect(ctx, result.WindowDays)
	if err != nil {
		result.Error = err.Error()
		log.Warn("metric sync failed", "metric", p.metric, "phase", "read", "error", err)
		return result
	}
	result.LocalDays = len(entries)

	// An empty local history still completes a backfill run: there is
	// nothing historical left to pull.
	if len(entries) == 0 {
		result.BackfillDone = o.markBackfill(ctx, p, backfilled, log)
		log.Info("nothing to sync", "metric", p.metric, "window_days", result.WindowDays)
		return result
	}

	existing, err := o.remote.FetchExistingDates(ctx, p.metric, result.WindowDays)
	if err != nil {
		result.Error = err.Error()
		log.Warn("metric sync failed", "metric", p.metric, "phase", "fetch-remote", "error", err)
		return result
	}

	var delta []remote.Entry
	for _, e := range entries {
		if !existing[e.Day()] {
			delta = append(delta, e)
		}
	}

	if len(delta) == 0 {
		result.BackfillDone = o.markBackfill(ctx, p, backfilled, log)
		log.Info("remote already current", "metric", p.metric, "local_days", len(entries))
		return result
	}

	added, err := o.remote.UploadBulk(ctx, p.metric, delta)
	result.Uploaded = added
	if err != nil {
		result.Error = err.Error()
		log.Warn("metric sync failed", "metric", p.metric, "phase", "upload",
			"uploaded_before_failure", added, "error", err)
		return result
	}

	result.BackfillDone = o.markBackfill(ctx, p, backfilled, log)
	log.Info("metric synced", "metric", p.metric,
		"local_days", len(entries), "new", len(delta), "added", added)
	return result
}

// markBackfill sets the metric's backfill flag when it has one and it is not
// already set. Returns whether the flag is set after the call.
func (o *Orchestrator) markBackfill(ctx context.Context, p metricPlan, already bool, log *slog.Logger) bool {
	if !p.hasBackfill {
		return false
	}
	if already {
		return true
	}
	if err := o.state.SetBackfillComplete(ctx, p.metric); err != nil {
		log.Warn("failed to mark backfill complete", "metric", p.metric, "error", err)
		return false
	}
	log.Info("backfill complete", "metric", p.metric)
	return true
}
