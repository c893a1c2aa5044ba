package normalize

import (
	"strings"

	"github.com/evhagen/sitmon/internal/geo"
	"github.com/evhagen/sitmon/internal/model"
	"github.com/evhagen/sitmon/internal/parser"
	"github.com/evhagen/sitmon/internal/textsig"
)

// warningCenterDefault returns the coverage centroid for a tsunami
// warning center feed: Palmer for NTWC, Honolulu for PTWC.
func warningCenterDefault(sourceID string) (lat, lon float64, ok bool) {
	switch {
	case strings.Contains(sourceID, "ntwc"):
		return 61.0, -150.0, true
	case strings.Contains(sourceID, "ptwc"):
		return 19.7, -155.1, true
	}
	return 0, 0, false
}

func applyWarningCenterDefault(it *model.Item, sourceID string) {
	lat, lon, ok := warningCenterDefault(sourceID)
	if !ok {
		it.LocationRationale = "Tsunami bulletin without geometry"
		return
	}
	it.Lat, it.Lon = f64(lat), f64(lon)
	it.LocationConfidence = model.ConfSourceDefault
	it.LocationRationale = "Warning center coverage centroid"
}

// TsunamiAtom maps one warning center Atom entry.
func TsunamiAtom(sourceID string, r parser.FeedRecord, fetchedAt string) model.Item {
	it := newItem(sourceID, "xml_api", fetchedAt)

	it.Title = r.Title
	it.Summary = truncate(r.Summary, 300)
	it.ExternalID = r.ID
	if it.ExternalID == "" {
		it.ExternalID = r.Link
	}
	if r.Link != "" {
		it.URL = textsig.CanonicalizeURL(r.Link)
	} else {
		it.URL = textsig.CanonicalizeURL("tsunami:" + it.ExternalID)
	}
	it.Category = model.CategoryTsunami
	it.PublishedAt = firstOr(r.Published, fetchedAt)
	it.UpdatedAt = r.Updated
	it.Tags = []string{"tsunami", "noaa"}
	it.Raw = map[string]any{"feed_id": r.ID}

	if r.Geom != "" {
		it.GeomGeoJSON = r.Geom
		if bbox, ok := geo.BBoxFromGeoJSON(r.Geom); ok {
			lat, lon := bbox.Centroid()
			it.Lat, it.Lon = f64(lat), f64(lon)
		}
		it.LocationConfidence = model.ConfExact
		it.LocationRationale = "Bulletin GeoRSS coordinates"
	} else {
		applyWarningCenterDefault(&it, sourceID)
	}

	finish(&it)
	return it
}

// TsunamiCAP maps one warning center CAP alert. Alerts carry polygons
// for actual events; tests and info statements fall back to the center
// default.
func TsunamiCAP(sourceID string, a parser.CAPAlert, fetchedAt string) model.Item {
	it := newItem(sourceID, "xml_api", fetchedAt)

	it.Title = firstOr(a.Headline, a.Event)
	it.Summary = truncate(a.Description, 300)
	it.ExternalID = a.Identifier
	it.URL = textsig.CanonicalizeURL("cap:" + a.Identifier)
	it.Category = model.CategoryTsunami
	it.PublishedAt = firstOr(a.Sent, fetchedAt)
	it.Tags = []string{"tsunami", "noaa", "cap"}
	it.Raw = map[string]any{
		"status":   a.Status,
		"msg_type": a.MsgType,
		"event":    a.Event,
	}

	it.LocationName = a.AreaDesc
	if a.Geom != "" {
		it.GeomGeoJSON = a.Geom
		if bbox, ok := geo.BBoxFromGeoJSON(a.Geom); ok {
			lat, lon := bbox.Centroid()
			it.Lat, it.Lon = f64(lat), f64(lon)
		}
		it.LocationConfidence = model.ConfExact
		it.LocationRationale = "CAP polygon geometry"
	} else {
		applyWarningCenterDefault(&it, sourceID)
	}

	finish(&it)
	return it
}
