package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// DayLayout is the wire format for calendar days: "YYYY-MM-DD".
const DayLayout = "2006-01-02"

// Day is a calendar day in the user's local time zone, serialized as
// "YYYY-MM-DD". It is the bucket key every daily record is diffed on, so it
// must round-trip exactly — no time-of-day, no zone offset.
type Day string

// DayOf returns the Day containing t, evaluated in t's location.
func DayOf(t time.Time) Day {
	return Day(t.Format(DayLayout))
}

// Time returns midnight of the day in the given location.
func (d Day) Time(loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DayLayout, string(d), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing day %q: %w", string(d), err)
	}
	return t, nil
}

// Valid reports whether the day is a well-formed "YYYY-MM-DD" string.
func (d Day) Valid() bool {
	_, err := time.Parse(DayLayout, string(d))
	return err == nil
}

// Next returns the following calendar day.
func (d Day) Next() Day {
	t, err := time.Parse(DayLayout, string(d))
	if err != nil {
		return d
	}
	return Day(t.AddDate(0, 0, 1).Format(DayLayout))
}

func (d Day) String() string { return string(d) }

// UnmarshalJSON accepts both bare "YYYY-MM-DD" strings and full timestamps
// (some backends echo dates back as midnight RFC 3339).
func (d *Day) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if _, err := time.Parse(DayLayout, s); err == nil {
		*d = Day(s)
		return nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		*d = DayOf(t)
		return nil
	}
	return fmt.Errorf("cannot parse day %q", s)
}

func (d Day) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(d))
}
