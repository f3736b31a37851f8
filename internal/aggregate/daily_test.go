package aggregate

import (
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/claude/vitalsync/internal/models"
)

func at(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.ParseInLocation("2006-01-02T15:04", value, time.UTC)
	if err != nil {
		t.Fatalf("bad test time %q: %v", value, err)
	}
	return ts
}

// TestDailyScalars verifies per-day avg/min/max/count bucketing.
func TestDailyScalars(t *testing.T) {
	readings := []models.Reading{
		{Timestamp: at(t, "2024-03-01T08:00"), Value: 40},
		{Timestamp: at(t, "2024-03-01T20:00"), Value: 60},
		{Timestamp: at(t, "2024-03-02T09:00"), Value: 55},
	}

	got := DailyScalars(readings, time.UTC)
	if len(got) != 2 {
		t.Fatalf("got %d summaries, want 2", len(got))
	}

	first := got[0]
	if first.Date != "2024-03-01" {
		t.Errorf("date = %s, want 2024-03-01", first.Date)
	}
	if first.Avg != 50 || first.Min != 40 || first.Max != 60 || first.SampleCount != 2 {
		t.Errorf("summary = %+v, want avg 50 min 40 max 60 count 2", first)
	}
	if first.Source != models.SourceDevice {
		t.Errorf("source = %s, want device-derived", first.Source)
	}

	if got[1].Date != "2024-03-02" || got[1].SampleCount != 1 {
		t.Errorf("second day = %+v", got[1])
	}
}

// TestDailyScalarsEmpty verifies empty input yields no summaries (never a
// zero-count record).
func TestDailyScalarsEmpty(t *testing.T) {
	if got := DailyScalars(nil, time.UTC); len(got) != 0 {
		t.Errorf("got %d summaries from empty input, want 0", len(got))
	}
}

// TestDailyScalarsOrderIndependent verifies aggregation is deterministic
// regardless of the order readings arrive in.
func TestDailyScalarsOrderIndependent(t *testing.T) {
	readings := []models.Reading{
		{Timestamp: at(t, "2024-03-01T08:00"), Value: 40},
		{Timestamp: at(t, "2024-03-02T09:00"), Value: 55},
		{Timestamp: at(t, "2024-03-01T20:00"), Value: 60},
		{Timestamp: at(t, "2024-03-03T07:00"), Value: 48},
	}

	want := DailyScalars(readings, time.UTC)

	rng := rand.New(rand.NewSource(1))
	for range 5 {
		shuffled := make([]models.Reading, len(readings))
		copy(shuffled, readings)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		if got := DailyScalars(shuffled, time.UTC); !reflect.DeepEqual(got, want) {
			t.Fatalf("shuffled input produced different summaries:\n got %+v\nwant %+v", got, want)
		}
	}
}

// TestDailyScalarsHonorsLocation verifies day assignment follows the given
// zone, not the timestamp's own: the same instant buckets into different days
// in UTC and New York, and a reading's zone of origin is irrelevant.
func TestDailyScalarsHonorsLocation(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("loading zone: %v", err)
	}

	// 01:00 UTC on March 2 is still 20:00 March 1 in New York.
	readings := []models.Reading{
		{Timestamp: at(t, "2024-03-02T01:00"), Value: 50},
	}

	utcDays := DailyScalars(readings, time.UTC)
	if len(utcDays) != 1 || utcDays[0].Date != "2024-03-02" {
		t.Errorf("UTC bucket = %+v, want one day 2024-03-02", utcDays)
	}

	nyDays := DailyScalars(readings, ny)
	if len(nyDays) != 1 || nyDays[0].Date != "2024-03-01" {
		t.Errorf("New York bucket = %+v, want one day 2024-03-01", nyDays)
	}

	// The same instant expressed in a different zone buckets identically.
	shifted := []models.Reading{
		{Timestamp: readings[0].Timestamp.In(ny), Value: 50},
	}
	if got := DailyScalars(shifted, ny); !reflect.DeepEqual(got, nyDays) {
		t.Errorf("zone-shifted timestamp bucketed differently:\n got %+v\nwant %+v", got, nyDays)
	}
}

// TestDailyScalarsManualSource verifies one manual sample marks the whole
// day's summary as manual.
func TestDailyScalarsManualSource(t *testing.T) {
	readings := []models.Reading{
		{Timestamp: at(t, "2024-03-01T08:00"), Value: 180},
		{Timestamp: at(t, "2024-03-01T20:00"), Value: 181, Source: models.SourceManual},
	}
	got := DailyScalars(readings, time.UTC)
	if len(got) != 1 || got[0].Source != models.SourceManual {
		t.Errorf("got %+v, want one manual summary", got)
	}
}

// TestWeightDays verifies the weightLbs wire shape uses the day's average.
func TestWeightDays(t *testing.T) {
	readings := []models.Reading{
		{Timestamp: at(t, "2024-03-01T07:00"), Value: 180},
		{Timestamp: at(t, "2024-03-01T21:00"), Value: 182},
	}
	got := WeightDays(readings, time.UTC)
	if len(got) != 1 {
		t.Fatalf("got %d days, want 1", len(got))
	}
	if got[0].WeightLbs != 181 {
		t.Errorf("weightLbs = %.1f, want 181", got[0].WeightLbs)
	}
	if got[0].SampleCount != 2 {
		t.Errorf("sampleCount = %d, want 2", got[0].SampleCount)
	}
}
