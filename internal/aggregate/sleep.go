package aggregate

import (
	"sort"
	"time"

	"github.com/claude/vitalsync/internal/models"
)

// nightCutoverHour is the local hour from which a sleep sample belongs to the
// NEXT calendar day's night. A sample starting 23:10 on March 1 is part of
// the night of March 2; one starting 06:00 on March 1 is March 1's night.
const nightCutoverHour = 18

// NightOf returns the night-bucket day for a sleep sample starting at t,
// evaluated in loc.
func NightOf(t time.Time, loc *time.Location) models.Day {
	local := t.In(loc)
	day := models.DayOf(local)
	if local.Hour() >= nightCutoverHour {
		return day.Next()
	}
	return day
}

// Nights groups sleep samples into night buckets and accumulates per-stage
// minutes. Unspecified "asleep" time is folded into core for compatibility
// with pre-stage-tracking data. When in-bed time was never recorded but some
// sleep was, in-bed is estimated as totalSleep + awake. Nights with zero
// sleep minutes are dropped. Output is sorted by date.
func Nights(samples []models.SleepSample, loc *time.Location) []models.SleepDay {
	type acc struct {
		inBed, core, deep, rem, awake float64
		source                        string
	}

	buckets := make(map[models.Day]*acc)
	for _, smp := range samples {
		night := NightOf(smp.Start, loc)
		a, ok := buckets[night]
		if !ok {
			a = &acc{source: sourceOf(smp.Source)}
			buckets[night] = a
		}

		minutes := smp.Duration().Minutes()
		switch {
		case smp.Stage == models.StageInBed:
			a.inBed += minutes
		case smp.Stage == models.StageAwake:
			a.awake += minutes
		case smp.Stage.Counted():
			switch smp.Stage {
			case models.StageDeep:
				a.deep += minutes
			case models.StageREM:
				a.rem += minutes
			default:
				// StageCore, plus unspecified "asleep" folded into core.
				a.core += minutes
			}
		}
	}

	result := make([]models.SleepDay, 0, len(buckets))
	for night, a := range buckets {
		total := a.core + a.deep + a.rem
		if total <= 0 {
			continue
		}

		inBed := a.inBed
		if inBed == 0 {
			inBed = total + a.awake
		}

		efficiency := 0.0
		if inBed > 0 {
			efficiency = total / inBed * 100
		}

		result = append(result, models.SleepDay{
			Date:                   night,
			TotalSleepMinutes:      total,
			InBedMinutes:           inBed,
			CoreMinutes:            a.core,
			DeepMinutes:            a.deep,
			REMMinutes:             a.rem,
			AwakeMinutes:           a.awake,
			SleepEfficiencyPercent: efficiency,
			Source:                 a.source,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date < result[j].Date })
	return result
}
