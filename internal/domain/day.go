package domain

import (
	"fmt"
	"time"
)

// DayLayout is the canonical textual form of a Day
const DayLayout = "2006-01-02"

// Day is a calendar day in UTC, stored in its canonical YYYY-MM-DD form.
// The textual form sorts chronologically, so Days can be compared as strings.
type Day string

// DayOf returns the UTC calendar day containing t
func DayOf(t time.Time) Day {
	return Day(t.UTC().Format(DayLayout))
}

// ParseDay parses a YYYY-MM-DD string into a Day
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid day %q: %w", s, err)
	}
	return DayOf(t), nil
}

// Start returns the first instant of the day (UTC midnight)
func (d Day) Start() time.Time {
	t, err := time.Parse(DayLayout, string(d))
	if err != nil {
		return time.Time{}
	}
	return t
}

// End returns the last nanosecond of the day
func (d Day) End() time.Time {
	return d.Start().Add(24*time.Hour - time.Nanosecond)
}

// AddDays returns the day n days after d (n may be negative)
func (d Day) AddDays(n int) Day {
	return DayOf(d.Start().AddDate(0, 0, n))
}

// Before reports whether d is strictly before other
func (d Day) Before(other Day) bool { return d < other }

// After reports whether d is strictly after other
func (d Day) After(other Day) bool { return d > other }

func (d Day) String() string { return string(d) }

// DayRange returns every day from first to last, both included.
// It returns nil when last is before first.
func DayRange(first, last Day) []Day {
	if last.Before(first) {
		return nil
	}
	var days []Day
	for d := first; !d.After(last); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}
