package sync

import (
	"context"

	"github.com/claude/vitalsync/internal/aggregate"
	"github.com/claude/vitalsync/internal/models"
	"github.com/claude/vitalsync/internal/remote"
)

// metricPlan parameterizes one metric's sync routine: how wide a window to
// read, whether a backfill flag applies, and how to turn raw store data into
// uploadable daily entries. The four metrics differ only in these three
// things; everything else is the shared pipeline in syncMetric.
type metricPlan struct {
	metric      models.Metric
	hasBackfill bool
	window      func(backfilled bool) int
	collect     func(ctx context.Context, days int) ([]remote.Entry, error)
}

// backfillWindow picks the cheap incremental window once backfill is done,
// the ten-year historical window until then.
func backfillWindow(backfilled bool) int {
	if backfilled {
		return incrementalWindowDays
	}
	return backfillWindowDays
}

func (o *Orchestrator) plans() []metricPlan {
	return []metricPlan{
		{
			metric:      models.MetricWeight,
			hasBackfill: false,
			window:      func(bool) int { return weightWindowDays },
			collect: func(ctx context.Context, days int) ([]remote.Entry, error) {
				readings, err := o.reader.FetchHistory(ctx, models.MetricWeight, days)
				if err != nil {
					return nil, err
				}
				return asEntries(aggregate.WeightDays(readings, o.loc)), nil
			},
		},
		{
			metric:      models.MetricHRV,
			hasBackfill: true,
			window:      backfillWindow,
			collect:     o.scalarCollector(models.MetricHRV),
		},
		{
			metric:      models.MetricRHR,
			hasBackfill: true,
			window:      backfillWindow,
			collect:     o.scalarCollector(models.MetricRHR),
		},
		{
			metric:      models.MetricSleep,
			hasBackfill: true,
			window:      backfillWindow,
			collect: func(ctx context.Context, days int) ([]remote.Entry, error) {
				samples, err := o.reader.FetchSleepHistory(ctx, days)
				if err != nil {
					return nil, err
				}
				return asEntries(aggregate.Nights(samples, o.loc)), nil
			},
		},
	}
}

func (o *Orchestrator) scalarCollector(metric models.Metric) func(context.Context, int) ([]remote.Entry, error) {
	return func(ctx context.Context, days int) ([]remote.Entry, error) {
		readings, err := o.reader.FetchHistory(ctx, metric, days)
		if err != nil {
			return nil, err
		}
		return asEntries(aggregate.DailyScalars(readings, o.loc)), nil
	}
}

func asEntries[T remote.Entry](items []T) []remote.Entry {
	entries := make([]remote.Entry, len(items))
	for i, item := range items {
		entries[i] = item
	}
	return entries
}
