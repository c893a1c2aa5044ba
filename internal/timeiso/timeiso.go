// Package timeiso formats timestamps the way the store persists them:
// ISO-8601 UTC with a Z suffix and fixed millisecond precision, so the
// strings sort lexicographically.
package timeiso

import "time"

const layout = "2006-01-02T15:04:05.000Z"

func Format(t time.Time) string {
	return t.UTC().Format(layout)
}

func Now() string {
	return Format(time.Now())
}

// Parse accepts the store layout plus the RFC3339 variants sources emit.
func Parse(s string) (time.Time, error) {
	if t, err := time.Parse(layout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.RFC3339, s)
}

// ParseOr parses s and falls back to def when it is empty or malformed.
func ParseOr(s string, def time.Time) time.Time {
	if s == "" {
		return def
	}
	t, err := Parse(s)
	if err != nil {
		return def
	}
	return t.UTC()
}
