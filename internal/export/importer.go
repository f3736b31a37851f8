// Package export seeds the local health mirror from a health-export JSON
// file: the file an export agent writes when it pulls samples out of the
// platform health store. One file carries scalar metric series plus raw
// sleep intervals.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/claude/vitalsync/internal/healthstore"
	"github.com/claude/vitalsync/internal/models"
)

// exportTimeLayout is the export agent's timestamp format. RFC 3339 is
// accepted as a fallback.
const exportTimeLayout = "2006-01-02 15:04:05 -0700"

// File is the top-level export file shape.
type File struct {
	Metrics []MetricSeries `json:"metrics"`
	Sleep   []SleepEntry   `json:"sleep"`
}

// MetricSeries is one scalar metric's sample list.
type MetricSeries struct {
	Name  string  `json:"name"`
	Units string  `json:"units"`
	Data  []Point `json:"data"`
}

// Point is one raw sample.
type Point struct {
	Date   string  `json:"date"`
	Qty    float64 `json:"qty"`
	Source string  `json:"source"`
}

// SleepEntry is one raw sleep interval.
type SleepEntry struct {
	Start  string `json:"start"`
	End    string `json:"end"`
	Stage  string `json:"stage"`
	Source string `json:"source"`
}

// Stats summarizes one import run.
type Stats struct {
	Readings     int
	SleepSamples int
	Skipped      []string
}

// metricKinds maps export data kind names to synced metrics. Unknown kinds
// are counted and skipped, never an error.
var metricKinds = map[string]models.Metric{
	"heart_rate_variability": models.MetricHRV,
	"resting_heart_rate":     models.MetricRHR,
	"body_mass":              models.MetricWeight,
	"weight_body_mass":       models.MetricWeight,
}

// Importer writes export files into the health mirror.
type Importer struct {
	store  *healthstore.SQLiteStore
	dryRun bool
	log    *slog.Logger
}

// New creates an Importer. In dry-run mode files are parsed and counted but
// nothing is written.
func New(store *healthstore.SQLiteStore, dryRun bool, log *slog.Logger) *Importer {
	return &Importer{store: store, dryRun: dryRun, log: log}
}

// ImportFile parses one export file and inserts its samples into the mirror.
func (i *Importer) ImportFile(ctx context.Context, path string) (*Stats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading export file: %w", err)
	}

	var file File
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing export file: %w", err)
	}

	stats := &Stats{}

	for _, series := range file.Metrics {
		metric, ok := metricKinds[series.Name]
		if !ok {
			stats.Skipped = append(stats.Skipped, series.Name)
			i.log.Warn("skipping unknown metric kind", "name", series.Name)
			continue
		}

		readings := make([]models.Reading, 0, len(series.Data))
		for _, p := range series.Data {
			ts, err := parseExportTime(p.Date)
			if err != nil {
				return nil, fmt.Errorf("metric %s: %w", series.Name, err)
			}
			readings = append(readings, models.Reading{
				Timestamp: ts,
				Value:     p.Qty,
				Source:    p.Source,
			})
		}

		if !i.dryRun {
			if err := i.store.InsertReadings(ctx, metric, readings); err != nil {
				return nil, err
			}
		}
		stats.Readings += len(readings)
		i.log.Info("imported metric series", "name", series.Name, "metric", metric, "samples", len(readings))
	}

	samples := make([]models.SleepSample, 0, len(file.Sleep))
	for _, e := range file.Sleep {
		start, err := parseExportTime(e.Start)
		if err != nil {
			return nil, fmt.Errorf("sleep entry: %w", err)
		}
		end, err := parseExportTime(e.End)
		if err != nil {
			return nil, fmt.Errorf("sleep entry: %w", err)
		}
		stage, ok := models.ParseStage(e.Stage)
		if !ok {
			stats.Skipped = append(stats.Skipped, "sleep:"+e.Stage)
			i.log.Warn("skipping unknown sleep stage", "stage", e.Stage)
			continue
		}
		samples = append(samples, models.SleepSample{
			Start:  start,
			End:    end,
			Stage:  stage,
			Source: e.Source,
		})
	}

	if len(samples) > 0 {
		if !i.dryRun {
			if err := i.store.InsertSleepSamples(ctx, samples); err != nil {
				return nil, err
			}
		}
		stats.SleepSamples = len(samples)
		i.log.Info("imported sleep intervals", "samples", len(samples))
	}

	return stats, nil
}

func parseExportTime(s string) (time.Time, error) {
	if t, err := time.Parse(exportTimeLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp %q", s)
}
