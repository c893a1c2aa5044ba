// Package normalize maps parsed source records onto the canonical item
// schema: identity, canonical URL, dedupe hashes, SimHash and the
// location confidence ladder. One function per source family; the
// scheduler picks which one a plugin uses.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/evhagen/sitmon/internal/model"
	"github.com/evhagen/sitmon/internal/textsig"
	"github.com/evhagen/sitmon/internal/timeiso"
)

func newItem(sourceID, sourceType, fetchedAt string) model.Item {
	return model.Item{
		ItemID:             uuid.NewString(),
		SourceID:           sourceID,
		SourceType:         sourceType,
		FetchedAt:          fetchedAt,
		PublishedAt:        fetchedAt,
		LocationConfidence: model.ConfUnknown,
	}
}

// finish derives the fingerprints from the final text fields. Every
// normalizer calls it last.
func finish(it *model.Item) {
	normTitle := textsig.NormalizeTitle(it.Title)
	it.HashTitle = sha256Hex(normTitle)

	content := normTitle + "\n" + it.Summary
	if it.Content != "" {
		content += "\n" + it.Content
	}
	it.HashContent = sha256Hex(strings.TrimSpace(content))

	sim := textsig.SimHash64(it.Title + " " + runePrefix(it.Summary, 280))
	it.SimHash = textsig.SimHashToStored(sim)
}

func sha256Hex(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func runePrefix(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// truncate caps a summary at n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}

func f64(v float64) *float64 { return &v }

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func asList(v any) []any {
	l, _ := v.([]any)
	return l
}

// getStr returns the first non-empty string value among keys.
func getStr(rec map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := strings.TrimSpace(asString(rec[k])); s != "" {
			return s
		}
	}
	return ""
}

// isoOr converts a source timestamp to the store form, falling back
// when the value is empty or unparseable.
func isoOr(s, fallback string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	if t, err := timeiso.Parse(s); err == nil {
		return timeiso.Format(t)
	}
	for _, layout := range []string{"2006-01-02T15:04:05.000", "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return timeiso.Format(t)
		}
	}
	return fallback
}
