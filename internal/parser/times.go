// Package parser turns raw feed payloads into neutral records. Each
// format keeps provider quirks here so normalizers see uniform fields.
package parser

import (
	"net/mail"
	"time"

	"github.com/evhagen/sitmon/internal/timeiso"
)

// rfc2822ToISO converts RSS pubDate style timestamps to the store's
// ISO form. Empty or unparseable input returns "".
func rfc2822ToISO(s string) string {
	if s == "" {
		return ""
	}
	t, err := mail.ParseDate(s)
	if err != nil {
		return ""
	}
	return timeiso.Format(t)
}

// isoToISO normalizes Atom and CAP timestamps to UTC Z form. Values
// already carrying a Z pass through.
func isoToISO(s string) string {
	if s == "" {
		return ""
	}
	if s[len(s)-1] == 'Z' {
		return s
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return timeiso.Format(t)
		}
	}
	return ""
}
