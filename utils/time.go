// Package utils provides utility functions for the application.
package utils

import (
	"errors"
	"math"
	"strings"
	"time"
)

// ErrUnsupportedTimeFormat is returned when a timestamp matches none of the accepted layouts
var ErrUnsupportedTimeFormat = errors.New("unsupported time format")

// acceptedTimeLayouts lists the ISO-8601 shapes accepted from callers, most specific first
var acceptedTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// UTCNow returns the current time in UTC
func UTCNow() time.Time {
	return time.Now().UTC()
}

// ParseISO8601 parses an ISO-8601 timestamp. Values without an offset are read as UTC.
func ParseISO8601(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrUnsupportedTimeFormat
	}
	for _, layout := range acceptedTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, ErrUnsupportedTimeFormat
}

// DaysToDuration converts a (possibly fractional) day count to a duration
func DaysToDuration(days float64) time.Duration {
	return time.Duration(math.Round(days * float64(Day)))
}

// DaysBefore returns t minus the given number of days
func DaysBefore(t time.Time, days float64) time.Time {
	return t.Add(-DaysToDuration(days))
}
