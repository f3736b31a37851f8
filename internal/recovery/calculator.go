// Package recovery derives the daily recovery snapshot and the rolling
// statistical baseline it is scored against.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/claude/vitalsync/internal/aggregate"
	"github.com/claude/vitalsync/internal/healthstore"
	"github.com/claude/vitalsync/internal/models"
)

// ErrNoData means neither an HRV nor an RHR reading exists for the current
// day. The calculator never fabricates a score from baseline alone.
var ErrNoData = errors.New("no HRV or RHR reading for today")

const (
	// baselineMinDays is the history required of BOTH series before a
	// statistical baseline replaces the default.
	baselineMinDays = 7

	// baselineTTL is how long a computed baseline stays fresh.
	baselineTTL = 24 * time.Hour

	// targetSleepHours anchors the sleep component of the score.
	targetSleepHours = 8.0
)

// Calculator computes recovery snapshots and owns the cached baseline.
// The baseline is exposed read-only via GetOrUpdateBaseline.
type Calculator struct {
	reader healthstore.Reader
	loc    *time.Location
	log    *slog.Logger
	now    func() time.Time

	mu         sync.Mutex
	baseline   *models.RecoveryBaseline
	computedAt time.Time
}

// New creates a Calculator. loc decides what "today" means.
func New(reader healthstore.Reader, loc *time.Location, log *slog.Logger) *Calculator {
	return &Calculator{
		reader: reader,
		loc:    loc,
		log:    log,
		now:    time.Now,
	}
}

// GetOrUpdateBaseline returns the cached baseline, recomputing when it is
// absent or older than 24 hours. With fewer than seven days of HRV or RHR
// history it returns the fixed default baseline (and caches it).
func (c *Calculator) GetOrUpdateBaseline(ctx context.Context) (models.RecoveryBaseline, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.baseline != nil && c.now().Sub(c.computedAt) < baselineTTL {
		return *c.baseline, nil
	}

	b, err := c.computeBaseline(ctx)
	if err != nil {
		return models.RecoveryBaseline{}, err
	}
	c.baseline = &b
	c.computedAt = c.now()
	return b, nil
}

// RefreshBaseline clears the cache unconditionally; the next
// GetOrUpdateBaseline recomputes.
func (c *Calculator) RefreshBaseline() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseline = nil
	c.computedAt = time.Time{}
}

func (c *Calculator) computeBaseline(ctx context.Context) (models.RecoveryBaseline, error) {
	hrvReadings, err := c.reader.FetchHistory(ctx, models.MetricHRV, models.BaselineWindowDays)
	if err != nil {
		return models.RecoveryBaseline{}, fmt.Errorf("reading HRV history: %w", err)
	}
	rhrReadings, err := c.reader.FetchHistory(ctx, models.MetricRHR, models.BaselineWindowDays)
	if err != nil {
		return models.RecoveryBaseline{}, fmt.Errorf("reading RHR history: %w", err)
	}

	hrvDaily := dailyAverages(hrvReadings, c.loc)
	rhrDaily := dailyAverages(rhrReadings, c.loc)

	if len(hrvDaily) < baselineMinDays || len(rhrDaily) < baselineMinDays {
		c.log.Info("insufficient history for baseline, using default",
			"hrv_days", len(hrvDaily), "rhr_days", len(rhrDaily), "need", baselineMinDays)
		return models.DefaultBaseline, nil
	}

	b := models.RecoveryBaseline{
		HRVMedian:   median(hrvDaily),
		HRVStdDev:   stdDev(hrvDaily),
		RHRMedian:   median(rhrDaily),
		SampleCount: min(len(hrvDaily), len(rhrDaily)),
	}
	c.log.Info("baseline computed",
		"hrv_median", b.HRVMedian, "hrv_stddev", b.HRVStdDev,
		"rhr_median", b.RHRMedian, "days", b.SampleCount)
	return b, nil
}

// dailyAverages reduces raw readings to one average per calendar day in loc.
func dailyAverages(readings []models.Reading, loc *time.Location) []float64 {
	summaries := aggregate.DailyScalars(readings, loc)
	vs := make([]float64, 0, len(summaries))
	for _, s := range summaries {
		vs = append(vs, s.Avg)
	}
	return vs
}

// CalculateRecoveryScore derives today's snapshot. When exactly one of HRV or
// RHR is missing for today, the baseline median substitutes so the composite
// stays computable; when both are missing it fails with ErrNoData.
func (c *Calculator) CalculateRecoveryScore(ctx context.Context) (*models.RecoverySnapshot, error) {
	baseline, err := c.GetOrUpdateBaseline(ctx)
	if err != nil {
		return nil, err
	}

	today := models.DayOf(c.now().In(c.loc))

	hrv, err := c.todaysReading(ctx, models.MetricHRV, today)
	if err != nil {
		return nil, err
	}
	rhr, err := c.todaysReading(ctx, models.MetricRHR, today)
	if err != nil {
		return nil, err
	}
	if hrv == nil && rhr == nil {
		return nil, ErrNoData
	}

	snap := &models.RecoverySnapshot{Date: today}

	if hrv != nil {
		snap.HRVMs = hrv.Value
		if baseline.HRVMedian > 0 {
			snap.HRVVsBaseline = (hrv.Value - baseline.HRVMedian) / baseline.HRVMedian * 100
		}
	} else {
		c.log.Info("no HRV reading today, substituting baseline median")
		snap.HRVMs = baseline.HRVMedian
	}

	if rhr != nil {
		snap.RHRBpm = rhr.Value
		if baseline.RHRMedian > 0 {
			snap.RHRVsBaseline = (rhr.Value - baseline.RHRMedian) / baseline.RHRMedian * 100
		}
	} else {
		c.log.Info("no RHR reading today, substituting baseline median")
		snap.RHRBpm = baseline.RHRMedian
	}

	night, err := c.lastNight(ctx, today)
	if err != nil {
		return nil, err
	}
	if night != nil {
		snap.SleepHours = night.TotalSleepMinutes / 60
		snap.SleepEfficiency = night.SleepEfficiencyPercent
		if night.TotalSleepMinutes > 0 {
			snap.DeepSleepPercent = night.DeepMinutes / night.TotalSleepMinutes * 100
		}
	}

	snap.Score = c.score(snap, night != nil)
	snap.State = models.StateForScore(snap.Score)
	return snap, nil
}

// todaysReading returns the latest reading when it falls on today, nil
// otherwise. A stale reading is not today's data.
func (c *Calculator) todaysReading(ctx context.Context, metric models.Metric, today models.Day) (*models.Reading, error) {
	r, err := c.reader.FetchLatest(ctx, metric)
	if err != nil {
		return nil, fmt.Errorf("reading latest %s: %w", metric, err)
	}
	if r == nil || models.DayOf(r.Timestamp.In(c.loc)) != today {
		return nil, nil
	}
	return r, nil
}

// lastNight returns the most recent night bucket at or before today.
func (c *Calculator) lastNight(ctx context.Context, today models.Day) (*models.SleepDay, error) {
	samples, err := c.reader.FetchSleepHistory(ctx, 2)
	if err != nil {
		return nil, fmt.Errorf("reading sleep history: %w", err)
	}
	nights := aggregate.Nights(samples, c.loc)
	for i := len(nights) - 1; i >= 0; i-- {
		if nights[i].Date <= today {
			return &nights[i], nil
		}
	}
	return nil, nil
}

// score combines HRV (40%), RHR (30%), and sleep (30%) components. Without
// sleep data the remaining components are reweighted rather than penalized.
func (c *Calculator) score(snap *models.RecoverySnapshot, hasSleep bool) int {
	hrvScore := clamp(50+snap.HRVVsBaseline, 0, 100)
	// Elevated resting heart rate is the negative signal, and RHR moves in
	// a narrower band than HRV, so its deviation is weighted double.
	rhrScore := clamp(50-snap.RHRVsBaseline*2, 0, 100)

	if !hasSleep {
		return int(math.Round((0.4*hrvScore + 0.3*rhrScore) / 0.7))
	}

	hoursFrac := clamp(snap.SleepHours/targetSleepHours, 0, 1)
	sleepScore := clamp(0.7*hoursFrac*100+0.3*snap.SleepEfficiency, 0, 100)

	return int(math.Round(0.4*hrvScore + 0.3*rhrScore + 0.3*sleepScore))
}
