package syncstate

import (
	"context"
	"testing"
	"time"

	"github.com/claude/vitalsync/internal/models"
)

// stores returns both Store implementations so every test runs against each.
func stores(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := OpenSQLite(t.TempDir())
	if err != nil {
		t.Fatalf("opening sqlite state: %v", err)
	}
	t.Cleanup(func() { sq.Close() })
	return map[string]Store{"sqlite": sq, "memory": NewMemory()}
}

// TestLastSyncRoundTrip verifies the timestamp persists and that a fresh
// store reports no last sync.
func TestLastSyncRoundTrip(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, ok, err := s.LastSync(ctx); err != nil || ok {
				t.Fatalf("fresh store: ok=%v err=%v, want no last sync", ok, err)
			}

			want := time.Date(2024, 3, 2, 10, 30, 0, 0, time.UTC)
			if err := s.SetLastSync(ctx, want); err != nil {
				t.Fatal(err)
			}
			got, ok, err := s.LastSync(ctx)
			if err != nil || !ok {
				t.Fatalf("ok=%v err=%v", ok, err)
			}
			if !got.Equal(want) {
				t.Errorf("last sync = %v, want %v", got, want)
			}
		})
	}
}

// TestBackfillFlags verifies per-metric flags are independent, that weight
// has none, and that reset clears flags but not the last-sync timestamp.
func TestBackfillFlags(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for _, m := range []models.Metric{models.MetricHRV, models.MetricRHR, models.MetricSleep} {
				if done, err := s.BackfillComplete(ctx, m); err != nil || done {
					t.Fatalf("%s: fresh flag done=%v err=%v", m, done, err)
				}
			}

			if err := s.SetBackfillComplete(ctx, models.MetricHRV); err != nil {
				t.Fatal(err)
			}
			if done, _ := s.BackfillComplete(ctx, models.MetricHRV); !done {
				t.Error("hrv flag not set")
			}
			if done, _ := s.BackfillComplete(ctx, models.MetricRHR); done {
				t.Error("rhr flag set by hrv write")
			}

			// Weight carries no backfill flag.
			if err := s.SetBackfillComplete(ctx, models.MetricWeight); err == nil {
				t.Error("expected error setting weight backfill flag")
			}
			if done, err := s.BackfillComplete(ctx, models.MetricWeight); err != nil || done {
				t.Errorf("weight flag done=%v err=%v, want false, nil", done, err)
			}

			// Reset clears flags, keeps last sync.
			syncTime := time.Now().UTC().Truncate(time.Second)
			if err := s.SetLastSync(ctx, syncTime); err != nil {
				t.Fatal(err)
			}
			if err := s.ResetBackfill(ctx); err != nil {
				t.Fatal(err)
			}
			if done, _ := s.BackfillComplete(ctx, models.MetricHRV); done {
				t.Error("hrv flag survived reset")
			}
			if _, ok, _ := s.LastSync(ctx); !ok {
				t.Error("last sync cleared by backfill reset")
			}
		})
	}
}
