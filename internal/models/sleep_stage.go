package models

import "strings"

// Stage is a canonical sleep stage as recorded by the health store.
type Stage string

const (
	StageInBed  Stage = "in_bed"
	StageCore   Stage = "core"
	StageDeep   Stage = "deep"
	StageREM    Stage = "rem"
	StageAwake  Stage = "awake"
	StageAsleep Stage = "asleep" // pre-stage-tracking "unspecified asleep"
)

// stageAliases maps the stage names found in health exports (including legacy
// and display spellings) to canonical stages.
var stageAliases = map[string]Stage{
	"in_bed":            StageInBed,
	"in bed":            StageInBed,
	"inbed":             StageInBed,
	"core":              StageCore,
	"asleepcore":        StageCore,
	"deep":              StageDeep,
	"asleepdeep":        StageDeep,
	"rem":               StageREM,
	"asleeprem":         StageREM,
	"awake":             StageAwake,
	"asleep":            StageAsleep,
	"asleepunspecified": StageAsleep,
	"sleep":             StageAsleep,
}

// ParseStage maps a raw stage string to its canonical Stage. Returns the
// lowercased input and false when the name is unrecognized.
func ParseStage(raw string) (Stage, bool) {
	lower := strings.ToLower(strings.TrimSpace(raw))
	if s, ok := stageAliases[lower]; ok {
		return s, true
	}
	return Stage(lower), false
}

// Counted reports whether the stage contributes to total sleep time.
// In-bed and awake intervals are tracked but not slept.
func (s Stage) Counted() bool {
	switch s {
	case StageCore, StageDeep, StageREM, StageAsleep:
		return true
	}
	return false
}
