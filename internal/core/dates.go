package core

import (
	"strings"
	"time"
)

// dateLayouts are the accepted formats for date-range boundaries, tried in order.
// Timestamp layouts come first so a full instant is never truncated to a date.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	"2006/01/02",
	"1/2/2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	"20060102",
}

// ParseDate parses a date-range boundary. Values without a zone are read in loc
// (UTC when loc is nil). Failures return ErrInvalidDateFormat.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalidDateFormat
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, withDetail(ErrInvalidDateFormat, "%q", s)
}

// startOfDay floors t to 00:00:00 of its calendar day in t's location.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// nextDay returns midnight of the calendar day after t, in t's location.
// Range checks use it as an exclusive bound, which covers the whole last day
// at any clock precision.
func nextDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}

// dayRange returns the half-open interval [floor(start), nextDay(end)).
func dayRange(start, end time.Time) (from, until time.Time) {
	return startOfDay(start), nextDay(end)
}
