package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/claude/vitalsync/internal/models"
	"github.com/jackc/pgx/v5"
)

// SleepDayRow is one night's stage breakdown as stored, keyed by the
// night-bucket day.
type SleepDayRow struct {
	UserID            int        `json:"userId"`
	Date              models.Day `json:"date"`
	TotalSleepMinutes float64    `json:"totalSleepMinutes"`
	InBedMinutes      float64    `json:"inBedMinutes"`
	CoreMinutes       float64    `json:"coreMinutes"`
	DeepMinutes       float64    `json:"deepMinutes"`
	REMMinutes        float64    `json:"remMinutes"`
	AwakeMinutes      float64    `json:"awakeMinutes"`
	EfficiencyPercent float64    `json:"sleepEfficiencyPercent"`
	Source            string     `json:"source"`
}

// InsertSleepDays batch-inserts sleep night rows, skipping nights the user
// already has via ON CONFLICT DO NOTHING. Returns the number actually
// inserted.
func (db *DB) InsertSleepDays(ctx context.Context, rows []SleepDayRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	query := `INSERT INTO sleep_days (user_id, date, total_sleep_min, in_bed_min, core_min, deep_min, rem_min, awake_min, efficiency_pct, source)
VALUES `
	args := make([]any, 0, len(rows)*10)
	valueStrings := make([]string, 0, len(rows))

	for i, r := range rows {
		base := i * 10
		valueStrings = append(valueStrings, fmt.Sprintf(
			"($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10,
		))
		args = append(args, r.UserID, string(r.Date), r.TotalSleepMinutes, r.InBedMinutes,
			r.CoreMinutes, r.DeepMinutes, r.REMMinutes, r.AwakeMinutes, r.EfficiencyPercent, r.Source)
	}

	query += strings.Join(valueStrings, ",") + " ON CONFLICT DO NOTHING"

	tag, err := db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("inserting sleep days: %w", err)
	}
	return tag.RowsAffected(), nil
}

// QuerySleepDays retrieves sleep nights on or after the given day, oldest
// first.
func (db *DB) QuerySleepDays(ctx context.Context, since models.Day, userID int) ([]SleepDayRow, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT user_id, date, total_sleep_min, in_bed_min, core_min, deep_min, rem_min, awake_min, efficiency_pct, source
		 FROM sleep_days
		 WHERE date >= $1 AND user_id = $2
		 ORDER BY date ASC`,
		string(since), userID)
	if err != nil {
		return nil, fmt.Errorf("querying sleep days: %w", err)
	}
	defer rows.Close()

	return scanSleepDayRows(rows)
}

func scanSleepDayRows(rows pgx.Rows) ([]SleepDayRow, error) {
	var result []SleepDayRow
	for rows.Next() {
		var r SleepDayRow
		var date string
		if err := rows.Scan(&r.UserID, &date, &r.TotalSleepMinutes, &r.InBedMinutes,
			&r.CoreMinutes, &r.DeepMinutes, &r.REMMinutes, &r.AwakeMinutes,
			&r.EfficiencyPercent, &r.Source); err != nil {
			return nil, fmt.Errorf("scanning sleep day row: %w", err)
		}
		r.Date = models.Day(date)
		result = append(result, r)
	}
	return result, rows.Err()
}
