package models

import "time"

// Metric identifies one synced health series. The value doubles as the remote
// path segment: /health-sync/{metric}.
type Metric string

const (
	MetricWeight Metric = "weight"
	MetricHRV    Metric = "hrv"
	MetricRHR    Metric = "rhr"
	MetricSleep  Metric = "sleep"
)

// SyncedMetrics lists every metric the engine syncs, in the order the
// per-metric routines are launched.
var SyncedMetrics = []Metric{MetricWeight, MetricHRV, MetricRHR, MetricSleep}

// Source values for daily summaries.
const (
	SourceDevice = "device-derived"
	SourceManual = "manual"
)

// Reading is one raw timestamped sample from the local health store.
// Readings are ephemeral: consumed by the aggregator, never persisted here.
type Reading struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Source    string    `json:"source,omitempty"`
}

// SleepSample is one raw sleep interval with its stage. Unlike scalar
// readings it spans time, and its bucket is decided by the night rule
// (start hour ≥ 18:00 local → next day's night).
type SleepSample struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Stage  Stage     `json:"stage"`
	Source string    `json:"source,omitempty"`
}

// Duration returns the sample's length, never negative.
func (s SleepSample) Duration() time.Duration {
	d := s.End.Sub(s.Start)
	if d < 0 {
		return 0
	}
	return d
}

// DailySummary is one scalar metric's aggregate for one calendar day.
// SampleCount is always ≥ 1: empty days produce no summary at all.
type DailySummary struct {
	Date        Day     `json:"date"`
	Avg         float64 `json:"avg"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	SampleCount int     `json:"sampleCount"`
	Source      string  `json:"source"`
}

// Day implements remote.Entry.
func (s DailySummary) Day() Day { return s.Date }

// WeightDay is the wire shape for one weight day. The backend contract keys
// weight on a single weightLbs aggregate rather than avg/min/max.
type WeightDay struct {
	Date        Day     `json:"date"`
	WeightLbs   float64 `json:"weightLbs"`
	SampleCount int     `json:"sampleCount"`
	Source      string  `json:"source"`
}

func (w WeightDay) Day() Day { return w.Date }

// SleepDay is one night's aggregate, keyed by the night-bucket day.
// Emitted only when TotalSleepMinutes > 0.
type SleepDay struct {
	Date                   Day     `json:"date"`
	TotalSleepMinutes      float64 `json:"totalSleepMinutes"`
	InBedMinutes           float64 `json:"inBedMinutes"`
	CoreMinutes            float64 `json:"coreMinutes"`
	DeepMinutes            float64 `json:"deepMinutes"`
	REMMinutes             float64 `json:"remMinutes"`
	AwakeMinutes           float64 `json:"awakeMinutes"`
	SleepEfficiencyPercent float64 `json:"sleepEfficiencyPercent"`
	Source                 string  `json:"source"`
}

func (s SleepDay) Day() Day { return s.Date }
