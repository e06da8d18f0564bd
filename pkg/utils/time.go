package utils

import "time"

// FormatTimestamp renders a time the way every API response does: UTC RFC3339
// with microseconds
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000Z07:00")
}

// ParseTimestamp parses a time string in RFC3339 format, with or without
// fractional seconds
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
