// Package model defines the core domain types shared across the service.
package model

// Source categories an item can carry. The set is closed; normalizers
// must not invent new ones.
const (
	CategoryEarthquake      = "earthquake"
	CategoryWeatherAlert    = "weather_alert"
	CategoryTropicalCyclone = "tropical_cyclone"
	CategoryTsunami         = "tsunami"
	CategoryVolcano         = "volcano"
	CategoryWildfire        = "wildfire"
	CategoryAviation        = "aviation_disruption"
	CategoryHealthAdvisory  = "health_advisory"
	CategoryTravelAdvisory  = "travel_advisory"
	CategoryCyberCVE        = "cyber_cve"
	CategoryCyberKEV        = "cyber_kev"
	CategoryDisaster        = "disaster"
	CategoryMaritimeWarning = "maritime_warning"
	CategoryNews            = "news"
	CategorySocial          = "social"
)

// Location confidence ladder, best first.
const (
	ConfExact         = "A_exact"
	ConfCoordsInText  = "B_coords_in_text"
	ConfPlaceMatch    = "B_place_match"
	ConfCountry       = "C_country"
	ConfSourceDefault = "C_source_default"
	ConfUnknown       = "U_unknown"
)

// LocationRank orders the confidence ladder for incident-level
// promotion. Rank never decreases on an incident.
func LocationRank(conf string) int {
	switch {
	case conf == ConfExact:
		return 30
	case len(conf) > 2 && conf[:2] == "B_":
		return 20
	case len(conf) > 2 && conf[:2] == "C_":
		return 10
	default:
		return 0
	}
}

// Incident statuses, advanced by retention.
const (
	StatusActive   = "active"
	StatusCooling  = "cooling"
	StatusResolved = "resolved"
)

// Item is one normalized record from one source. Immutable after
// insert; timestamps are ISO-8601 UTC with Z suffix.
type Item struct {
	ItemID     string `json:"item_id"`
	SourceID   string `json:"source_id"`
	SourceType string `json:"source_type"`
	ExternalID string `json:"external_id,omitempty"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	Summary    string `json:"summary"`
	Content    string `json:"content,omitempty"`

	PublishedAt string `json:"published_at"`
	UpdatedAt   string `json:"updated_at,omitempty"`
	FetchedAt   string `json:"fetched_at"`

	Category string   `json:"category"`
	Tags     []string `json:"tags"`

	GeomGeoJSON        string   `json:"geom_geojson,omitempty"`
	Lat                *float64 `json:"lat,omitempty"`
	Lon                *float64 `json:"lon,omitempty"`
	LocationName       string   `json:"location_name,omitempty"`
	LocationConfidence string   `json:"location_confidence"`
	LocationRationale  string   `json:"location_rationale"`

	Raw         map[string]any `json:"raw"`
	HashTitle   string         `json:"hash_title"`
	HashContent string         `json:"hash_content"`
	SimHash     int64          `json:"simhash"`
}

// Incident is a cluster of items describing the same real-world event.
type Incident struct {
	IncidentID  string `json:"incident_id"`
	Title       string `json:"title"`
	Summary     string `json:"summary"`
	Category    string `json:"category"`
	FirstSeenAt string `json:"first_seen_at"`
	LastSeenAt  string `json:"last_seen_at"`
	LastItemAt  string `json:"last_item_at"`
	Status      string `json:"status"`
	Severity    int    `json:"severity_score"`

	GeomGeoJSON        string   `json:"geom_geojson,omitempty"`
	Lat                *float64 `json:"lat,omitempty"`
	Lon                *float64 `json:"lon,omitempty"`
	BBox               string   `json:"bbox,omitempty"`
	LocationConfidence string   `json:"location_confidence"`
	LocationRationale  string   `json:"location_rationale"`

	SimHash        int64  `json:"incident_simhash"`
	TokenSignature string `json:"token_signature,omitempty"`

	ItemCount   int `json:"item_count"`
	SourceCount int `json:"source_count"`
}

// Source is a polled feed descriptor plus its schedule state.
type Source struct {
	SourceID            string `json:"source_id"`
	Name                string `json:"name"`
	SourceType          string `json:"source_type"`
	URL                 string `json:"url"`
	PollIntervalSeconds int    `json:"poll_interval_seconds"`
	Enabled             bool   `json:"enabled"`

	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`

	NextFetchAt         string `json:"next_fetch_at,omitempty"`
	LastFetchAt         string `json:"last_fetch_at,omitempty"`
	LastSuccessAt       string `json:"last_success_at,omitempty"`
	LastErrorAt         string `json:"last_error_at,omitempty"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	LastStatusCode      *int   `json:"last_status_code,omitempty"`
	LastFetchMS         *int   `json:"last_fetch_ms,omitempty"`
	LastError           string `json:"last_error,omitempty"`

	SuccessCount int    `json:"success_count"`
	ErrorCount   int    `json:"error_count"`
	Cursor       string `json:"cursor,omitempty"`
}

// Place is a gazetteer entry, unique by (kind, normalized name).
type Place struct {
	PlaceID        int64    `json:"place_id"`
	Name           string   `json:"name"`
	NormalizedName string   `json:"normalized_name"`
	Kind           string   `json:"kind"`
	CountryCode    string   `json:"country_code,omitempty"`
	Admin1         string   `json:"admin1,omitempty"`
	Lat            *float64 `json:"lat,omitempty"`
	Lon            *float64 `json:"lon,omitempty"`
	Importance     *float64 `json:"importance,omitempty"`
}
