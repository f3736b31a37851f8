// Package healthstore reads raw physiological samples from the local health
// mirror — the on-device SQLite database the export agent keeps in sync with
// the platform health store. All access is read-only from the engine's side;
// only the export agent (and tests) write to it.
package healthstore

import (
	"context"
	"errors"

	"github.com/claude/vitalsync/internal/models"
)

// ErrNotAvailable means no health mirror exists on this device at all.
var ErrNotAvailable = errors.New("health store not available")

// ErrNotAuthorized means the mirror exists but read access has not been
// granted for every required data kind. Callers must be able to distinguish
// this from "no data exists", so reads fail rather than returning empty.
var ErrNotAuthorized = errors.New("health store read access not granted")

// ReadKinds are the exact data kinds the engine requests read access for.
// No write access is ever requested.
var ReadKinds = []string{
	"heart_rate_variability",
	"resting_heart_rate",
	"heart_rate",
	"body_mass",
	"sleep_analysis",
}

// Reader is the health-store read contract the aggregator, recovery
// calculator, and orchestrator consume.
type Reader interface {
	// EnsureAuthorized fails with ErrNotAvailable or ErrNotAuthorized when
	// reads cannot proceed. It never prompts; granting is the agent's job.
	EnsureAuthorized(ctx context.Context) error

	// FetchHistory returns raw readings for a scalar metric over the last
	// daysBack days, oldest first. An empty slice means no data exists.
	FetchHistory(ctx context.Context, metric models.Metric, daysBack int) ([]models.Reading, error)

	// FetchLatest returns the current value for a metric: the most recent
	// sample, except HRV which averages the last 24 hours and falls back to
	// the single most recent sample when the window is empty. Returns nil
	// when the store holds no sample at all.
	FetchLatest(ctx context.Context, metric models.Metric) (*models.Reading, error)

	// FetchSleepHistory returns raw sleep intervals over the last daysBack
	// days, ordered by start time.
	FetchSleepHistory(ctx context.Context, daysBack int) ([]models.SleepSample, error)
}
