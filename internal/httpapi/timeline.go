package httpapi

import (
	"net/http"
	"time"

	"github.com/evhagen/sitmon/internal/timeiso"
)

type timelineBucket struct {
	TS    string `json:"ts"`
	Count int    `json:"count"`
}

// bucketSeconds widens with the window so the histogram stays around a
// hundred bars.
func bucketSeconds(window string) int {
	switch window {
	case "24h":
		return 900
	case "7d":
		return 7200
	default:
		return 300
	}
}

// handleTimeline buckets incident activity by item publish time. Each
// bucket counts distinct incidents, not items, so a chatty source does
// not dominate the histogram.
func (a *API) handleTimeline(w http.ResponseWriter, r *http.Request) {
	window := r.URL.Query().Get("window")
	if window == "" {
		window = "6h"
	}
	until := time.Now().UTC()
	since := until.Add(-windowDuration(window))
	categories := splitCSV(r.URL.Query().Get("categories"))
	minSeverity := parseOptionalInt(r.URL.Query().Get("min_severity"))

	points, err := a.st.IncidentTimeline(r.Context(),
		timeiso.Format(since), timeiso.Format(until), categories, minSeverity)
	if err != nil {
		a.log.Error().Err(err).Msg("timeline query failed")
		writeError(w, http.StatusInternalServerError, "query_failed")
		return
	}

	step := bucketSeconds(window)
	bucketCount := int(until.Sub(since).Seconds())/step + 1
	sets := make([]map[string]struct{}, bucketCount)

	for _, p := range points {
		t, err := timeiso.Parse(p.PublishedAt)
		if err != nil {
			continue
		}
		idx := int(t.Sub(since).Seconds()) / step
		if idx < 0 || idx >= bucketCount {
			continue
		}
		if sets[idx] == nil {
			sets[idx] = make(map[string]struct{})
		}
		sets[idx][p.IncidentID] = struct{}{}
	}

	buckets := make([]timelineBucket, bucketCount)
	maxCount := 0
	for i := range buckets {
		buckets[i] = timelineBucket{
			TS:    timeiso.Format(since.Add(time.Duration(i*step) * time.Second)),
			Count: len(sets[i]),
		}
		if buckets[i].Count > maxCount {
			maxCount = buckets[i].Count
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"window":    window,
		"since_iso": timeiso.Format(since),
		"until_iso": timeiso.Format(until),
		"buckets":   buckets,
		"max_count": maxCount,
	})
}
