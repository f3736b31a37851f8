package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/claude/vitalsync/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RecoverySnapshotRow is one day's recovery snapshot plus the baseline it was
// scored against. A later sync on the same day replaces the earlier row, so
// each day keeps only its freshest snapshot.
type RecoverySnapshotRow struct {
	ID               uuid.UUID  `json:"id"`
	UserID           int        `json:"userId"`
	Date             models.Day `json:"date"`
	HRVMs            float64    `json:"hrvMs"`
	HRVVsBaseline    float64    `json:"hrvVsBaseline"`
	RHRBpm           float64    `json:"rhrBpm"`
	RHRVsBaseline    float64    `json:"rhrVsBaseline"`
	SleepHours       float64    `json:"sleepHours"`
	SleepEfficiency  float64    `json:"sleepEfficiency"`
	DeepSleepPercent float64    `json:"deepSleepPercent"`
	Score            int        `json:"score"`
	State            string     `json:"state"`
	BaselineHRV      float64    `json:"baselineHrvMedian"`
	BaselineHRVSD    float64    `json:"baselineHrvStdDev"`
	BaselineRHR      float64    `json:"baselineRhrMedian"`
	BaselineDays     int        `json:"baselineDays"`
	ReceivedAt       time.Time  `json:"receivedAt"`
}

// UpsertRecoverySnapshot stores or replaces the user's snapshot for its date.
func (db *DB) UpsertRecoverySnapshot(ctx context.Context, r RecoverySnapshotRow) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.ReceivedAt.IsZero() {
		r.ReceivedAt = time.Now().UTC()
	}

	_, err := db.Pool.Exec(ctx,
		`INSERT INTO recovery_snapshots
		   (id, user_id, date, hrv_ms, hrv_vs_baseline, rhr_bpm, rhr_vs_baseline,
		    sleep_hours, sleep_efficiency, deep_sleep_pct, score, state,
		    baseline_hrv_median, baseline_hrv_stddev, baseline_rhr_median, baseline_days, received_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		 ON CONFLICT (user_id, date) DO UPDATE SET
		   hrv_ms = EXCLUDED.hrv_ms,
		   hrv_vs_baseline = EXCLUDED.hrv_vs_baseline,
		   rhr_bpm = EXCLUDED.rhr_bpm,
		   rhr_vs_baseline = EXCLUDED.rhr_vs_baseline,
		   sleep_hours = EXCLUDED.sleep_hours,
		   sleep_efficiency = EXCLUDED.sleep_efficiency,
		   deep_sleep_pct = EXCLUDED.deep_sleep_pct,
		   score = EXCLUDED.score,
		   state = EXCLUDED.state,
		   baseline_hrv_median = EXCLUDED.baseline_hrv_median,
		   baseline_hrv_stddev = EXCLUDED.baseline_hrv_stddev,
		   baseline_rhr_median = EXCLUDED.baseline_rhr_median,
		   baseline_days = EXCLUDED.baseline_days,
		   received_at = EXCLUDED.received_at`,
		r.ID, r.UserID, string(r.Date), r.HRVMs, r.HRVVsBaseline, r.RHRBpm, r.RHRVsBaseline,
		r.SleepHours, r.SleepEfficiency, r.DeepSleepPercent, r.Score, r.State,
		r.BaselineHRV, r.BaselineHRVSD, r.BaselineRHR, r.BaselineDays, r.ReceivedAt)
	if err != nil {
		return fmt.Errorf("upserting recovery snapshot: %w", err)
	}
	return nil
}

// QueryRecoverySnapshots retrieves snapshots on or after the given day,
// oldest first.
func (db *DB) QueryRecoverySnapshots(ctx context.Context, since models.Day, userID int) ([]RecoverySnapshotRow, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, user_id, date, hrv_ms, hrv_vs_baseline, rhr_bpm, rhr_vs_baseline,
		        sleep_hours, sleep_efficiency, deep_sleep_pct, score, state,
		        baseline_hrv_median, baseline_hrv_stddev, baseline_rhr_median, baseline_days, received_at
		 FROM recovery_snapshots
		 WHERE date >= $1 AND user_id = $2
		 ORDER BY date ASC`,
		string(since), userID)
	if err != nil {
		return nil, fmt.Errorf("querying recovery snapshots: %w", err)
	}
	defer rows.Close()

	return scanRecoverySnapshotRows(rows)
}

// LatestRecoverySnapshot returns the user's most recent snapshot, or nil when
// none exists.
func (db *DB) LatestRecoverySnapshot(ctx context.Context, userID int) (*RecoverySnapshotRow, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, user_id, date, hrv_ms, hrv_vs_baseline, rhr_bpm, rhr_vs_baseline,
		        sleep_hours, sleep_efficiency, deep_sleep_pct, score, state,
		        baseline_hrv_median, baseline_hrv_stddev, baseline_rhr_median, baseline_days, received_at
		 FROM recovery_snapshots
		 WHERE user_id = $1
		 ORDER BY date DESC
		 LIMIT 1`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("querying latest recovery snapshot: %w", err)
	}
	defer rows.Close()

	result, err := scanRecoverySnapshotRows(rows)
	if err != nil || len(result) == 0 {
		return nil, err
	}
	return &result[0], nil
}

func scanRecoverySnapshotRows(rows pgx.Rows) ([]RecoverySnapshotRow, error) {
	var result []RecoverySnapshotRow
	for rows.Next() {
		var r RecoverySnapshotRow
		var date string
		if err := rows.Scan(&r.ID, &r.UserID, &date, &r.HRVMs, &r.HRVVsBaseline,
			&r.RHRBpm, &r.RHRVsBaseline, &r.SleepHours, &r.SleepEfficiency,
			&r.DeepSleepPercent, &r.Score, &r.State,
			&r.BaselineHRV, &r.BaselineHRVSD, &r.BaselineRHR, &r.BaselineDays, &r.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scanning recovery snapshot row: %w", err)
		}
		r.Date = models.Day(date)
		result = append(result, r)
	}
	return result, rows.Err()
}
