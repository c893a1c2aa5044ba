// Package observability exposes Prometheus metrics for the HTTP API
// and the polling pipeline.
package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	fetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_fetches_total",
			Help: "Source fetch attempts by outcome.",
		},
		[]string{"source_id", "outcome"},
	)

	fetchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "source_fetch_duration_seconds",
			Help:    "Duration of source fetches in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"source_id"},
	)

	itemsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "items_ingested_total",
			Help: "Normalized records by disposition.",
		},
		[]string{"category", "disposition"},
	)

	incidentEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incident_events_total",
			Help: "Incident lifecycle events emitted by clustering.",
		},
		[]string{"type"},
	)

	busDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bus_dropped_events_total",
			Help: "Events dropped because a subscriber queue was full.",
		},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveFetch(sourceID, outcome string, durationSeconds float64) {
	fetchesTotal.WithLabelValues(sourceID, outcome).Inc()
	fetchDurationSeconds.WithLabelValues(sourceID).Observe(durationSeconds)
}

// IncItem counts a normalized record: disposition is inserted,
// duplicate, or error.
func IncItem(category, disposition string) {
	itemsIngestedTotal.WithLabelValues(category, disposition).Inc()
}

func IncIncidentEvent(eventType string) {
	incidentEventsTotal.WithLabelValues(eventType).Inc()
}

func IncBusDropped() {
	busDroppedTotal.Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
