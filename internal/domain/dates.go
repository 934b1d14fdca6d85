package domain

import (
	"strings"
	"time"
)

// DisplayLayout renders entry dates as "Mon Jan 01 1990".
const DisplayLayout = "Mon Jan 02 2006"

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	DisplayLayout,
	"January 2, 2006",
	"Jan 2, 2006",
	"2006/01/02",
	"01/02/2006",
}

// ParseDate parses calendar-date text and truncates it to the UTC day.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return Day(parsed), true
		}
	}
	return time.Time{}, false
}

// Day returns midnight UTC of the calendar day the instant falls on in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDate renders a stored date in the display layout.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DisplayLayout)
}
