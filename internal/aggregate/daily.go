// Package aggregate turns raw health-store samples into per-day summaries.
// Bucketing is deterministic: identical inputs yield identical summaries
// regardless of input order.
package aggregate

import (
	"sort"
	"time"

	"github.com/claude/vitalsync/internal/models"
)

// DailyScalars groups scalar readings by calendar day in loc and computes
// avg/min/max/count per day. Days with no readings produce no summary, so
// every returned summary has SampleCount ≥ 1. Output is sorted by date.
func DailyScalars(readings []models.Reading, loc *time.Location) []models.DailySummary {
	type acc struct {
		sum, min, max float64
		count         int
		source        string
	}

	buckets := make(map[models.Day]*acc)
	for _, r := range readings {
		day := models.DayOf(r.Timestamp.In(loc))
		a, ok := buckets[day]
		if !ok {
			a = &acc{min: r.Value, max: r.Value, source: sourceOf(r.Source)}
			buckets[day] = a
		}
		a.sum += r.Value
		a.count++
		if r.Value < a.min {
			a.min = r.Value
		}
		if r.Value > a.max {
			a.max = r.Value
		}
		if sourceOf(r.Source) == models.SourceManual {
			a.source = models.SourceManual
		}
	}

	result := make([]models.DailySummary, 0, len(buckets))
	for day, a := range buckets {
		result = append(result, models.DailySummary{
			Date:        day,
			Avg:         a.sum / float64(a.count),
			Min:         a.min,
			Max:         a.max,
			SampleCount: a.count,
			Source:      a.source,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date < result[j].Date })
	return result
}

// WeightDays collapses weight readings into the wire shape the backend keys
// weight on: one weightLbs figure per day in loc (the day's average).
func WeightDays(readings []models.Reading, loc *time.Location) []models.WeightDay {
	summaries := DailyScalars(readings, loc)
	result := make([]models.WeightDay, 0, len(summaries))
	for _, s := range summaries {
		result = append(result, models.WeightDay{
			Date:        s.Date,
			WeightLbs:   s.Avg,
			SampleCount: s.SampleCount,
			Source:      s.Source,
		})
	}
	return result
}

// sourceOf normalizes a raw sample source to the summary source enum.
// Anything not explicitly manual counts as device-derived.
func sourceOf(raw string) string {
	if raw == models.SourceManual {
		return models.SourceManual
	}
	return models.SourceDevice
}
