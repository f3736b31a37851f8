package models

// BaselineWindowDays is the rolling window a statistical baseline covers.
const BaselineWindowDays = 60

// RecoveryBaseline is the rolling statistical reference today's readings are
// scored against. SampleCount is the smaller of the two series' day counts;
// a default baseline carries SampleCount 0.
type RecoveryBaseline struct {
	HRVMedian   float64 `json:"hrvMedian"`
	HRVStdDev   float64 `json:"hrvStdDev"`
	RHRMedian   float64 `json:"rhrMedian"`
	SampleCount int     `json:"sampleCount"`
}

// DefaultBaseline is used until at least seven days of both HRV and RHR
// history exist. Values are ordinary adult resting figures.
var DefaultBaseline = RecoveryBaseline{
	HRVMedian: 45,
	HRVStdDev: 15,
	RHRMedian: 60,
}

// RecoveryState classifies a recovery score into coaching bands.
type RecoveryState string

const (
	RecoveryOptimal RecoveryState = "optimal" // score ≥ 80
	RecoveryGood    RecoveryState = "good"    // score ≥ 60
	RecoveryFair    RecoveryState = "fair"    // score ≥ 40
	RecoveryPoor    RecoveryState = "poor"
)

// StateForScore maps a composite score to its RecoveryState band.
func StateForScore(score int) RecoveryState {
	switch {
	case score >= 80:
		return RecoveryOptimal
	case score >= 60:
		return RecoveryGood
	case score >= 40:
		return RecoveryFair
	default:
		return RecoveryPoor
	}
}

// RecoverySnapshot is the once-per-sync composite derived from today's
// readings and the baseline. Immutable after construction; the orchestrator
// uploads it and keeps only an in-memory latest reference.
type RecoverySnapshot struct {
	Date             Day           `json:"date"`
	HRVMs            float64       `json:"hrvMs"`
	HRVVsBaseline    float64       `json:"hrvVsBaseline"`
	RHRBpm           float64       `json:"rhrBpm"`
	RHRVsBaseline    float64       `json:"rhrVsBaseline"`
	SleepHours       float64       `json:"sleepHours"`
	SleepEfficiency  float64       `json:"sleepEfficiency"`
	DeepSleepPercent float64       `json:"deepSleepPercent"`
	Score            int           `json:"score"`
	State            RecoveryState `json:"state"`
}
