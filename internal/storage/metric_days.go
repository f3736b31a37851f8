package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/claude/vitalsync/internal/models"
	"github.com/jackc/pgx/v5"
)

// MetricDayRow is one scalar metric's daily aggregate as stored. Weight rows
// carry the day's weight in Avg; Min and Max mirror it when the client sends
// only a single figure.
type MetricDayRow struct {
	UserID      int        `json:"userId"`
	Metric      string     `json:"metric"`
	Date        models.Day `json:"date"`
	Avg         float64    `json:"avg"`
	Min         float64    `json:"min"`
	Max         float64    `json:"max"`
	SampleCount int        `json:"sampleCount"`
	Source      string     `json:"source"`
}

// InsertMetricDays batch-inserts daily metric rows. Returns the number
// actually inserted; rows whose (user, metric, date) already exists are
// skipped via ON CONFLICT DO NOTHING, so the return value is the
// authoritative "added" count echoed back to sync clients.
func (db *DB) InsertMetricDays(ctx context.Context, rows []MetricDayRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	query := `INSERT INTO metric_days (user_id, metric, date, avg_val, min_val, max_val, sample_count, source)
VALUES `
	args := make([]any, 0, len(rows)*8)
	valueStrings := make([]string, 0, len(rows))

	for i, r := range rows {
		base := i * 8
		valueStrings = append(valueStrings, fmt.Sprintf(
			"($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8,
		))
		args = append(args, r.UserID, r.Metric, string(r.Date),
			r.Avg, r.Min, r.Max, r.SampleCount, r.Source)
	}

	query += strings.Join(valueStrings, ",") + " ON CONFLICT DO NOTHING"

	tag, err := db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("inserting metric days: %w", err)
	}
	return tag.RowsAffected(), nil
}

// QueryMetricDays retrieves one metric's daily rows on or after the given day,
// oldest first. Dates are stored as "YYYY-MM-DD" text, so string comparison
// orders them correctly.
func (db *DB) QueryMetricDays(ctx context.Context, metric string, since models.Day, userID int) ([]MetricDayRow, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT user_id, metric, date, avg_val, min_val, max_val, sample_count, source
		 FROM metric_days
		 WHERE metric = $1 AND date >= $2 AND user_id = $3
		 ORDER BY date ASC`,
		metric, string(since), userID)
	if err != nil {
		return nil, fmt.Errorf("querying metric days: %w", err)
	}
	defer rows.Close()

	return scanMetricDayRows(rows)
}

func scanMetricDayRows(rows pgx.Rows) ([]MetricDayRow, error) {
	var result []MetricDayRow
	for rows.Next() {
		var r MetricDayRow
		var date string
		if err := rows.Scan(&r.UserID, &r.Metric, &date,
			&r.Avg, &r.Min, &r.Max, &r.SampleCount, &r.Source); err != nil {
			return nil, fmt.Errorf("scanning metric day row: %w", err)
		}
		r.Date = models.Day(date)
		result = append(result, r)
	}
	return result, rows.Err()
}
