package normalize

import (
	"fmt"
	"strings"

	"github.com/evhagen/sitmon/internal/geo"
	"github.com/evhagen/sitmon/internal/model"
	"github.com/evhagen/sitmon/internal/parser"
	"github.com/evhagen/sitmon/internal/textsig"
)

// volcanoSeverityLevel maps HANS alert levels and aviation color codes
// onto the 1..5 scale used for severity scoring. Unknown levels map to
// zero so scoring falls back to its category default.
func volcanoSeverityLevel(alertLevel, colorCode string) int {
	switch strings.ToUpper(strings.TrimSpace(alertLevel)) {
	case "NORMAL":
		return 1
	case "ADVISORY":
		return 2
	case "WATCH":
		return 4
	case "WARNING":
		return 5
	}
	switch strings.ToUpper(strings.TrimSpace(colorCode)) {
	case "GREEN":
		return 1
	case "YELLOW":
		return 2
	case "ORANGE":
		return 4
	case "RED":
		return 5
	}
	return 0
}

// HANSElevatedNotice maps one entry of the elevated volcanoes listing.
// The vnum in the raw payload drives per-volcano feed expansion.
func HANSElevatedNotice(sourceID string, rec map[string]any, fetchedAt string) model.Item {
	it := newItem(sourceID, "json_api", fetchedAt)

	name := getStr(rec, "volcano_name", "volcano_name_appended")
	vnum := getStr(rec, "vnum", "volcano_cd")
	alertLevel := getStr(rec, "alert_level", "volcano_alert_level")
	colorCode := getStr(rec, "color_code", "aviation_color_code")

	it.Title = fmt.Sprintf("%s volcano at %s alert level", firstOr(name, vnum), firstOr(alertLevel, "elevated"))
	it.Summary = truncate(getStr(rec, "notice_synopsis", "synopsis", "obs_abbrev"), 300)
	it.ExternalID = strings.Join([]string{vnum, alertLevel, colorCode}, "|")
	it.URL = textsig.CanonicalizeURL("https://volcanoes.usgs.gov/volcano/" + vnum)
	it.Category = model.CategoryVolcano
	it.Tags = []string{"usgs", "hans", "volcano"}
	it.Raw = map[string]any{
		"vnum":                vnum,
		"volcano_name":        name,
		"alert_level":         alertLevel,
		"aviation_color_code": colorCode,
		"severity_level_1_5":  volcanoSeverityLevel(alertLevel, colorCode),
	}

	lat, okLat := asFloat(firstNonNil(rec["latitude"], rec["lat"]))
	lon, okLon := asFloat(firstNonNil(rec["longitude"], rec["lon"]))
	if okLat && okLon {
		it.Lat, it.Lon = f64(lat), f64(lon)
		it.GeomGeoJSON = geo.PointGeoJSON(lat, lon)
		it.LocationName = name
		it.LocationConfidence = model.ConfExact
		it.LocationRationale = "HANS volcano coordinates"
	} else {
		it.LocationName = name
		it.LocationRationale = "HANS listing without coordinates"
	}

	finish(&it)
	return it
}

// HANSVolcanoRSSItem maps one CAP notice from a per-volcano feed
// discovered from the elevated listing.
func HANSVolcanoRSSItem(sourceID string, r parser.FeedRecord, fetchedAt, volcanoName, vnum string) model.Item {
	it := newItem(sourceID, "xml_api", fetchedAt)

	it.Title = firstOr(r.Title, volcanoName+" volcano notice")
	it.Summary = truncate(r.Summary, 300)
	it.ExternalID = r.ID
	if it.ExternalID == "" {
		it.ExternalID = r.Link
	}
	if r.Link != "" {
		it.URL = textsig.CanonicalizeURL(r.Link)
	} else {
		it.URL = textsig.CanonicalizeURL("hans:" + vnum + ":" + it.ExternalID)
	}
	it.Category = model.CategoryVolcano
	it.PublishedAt = firstOr(r.Published, fetchedAt)
	it.Tags = []string{"usgs", "hans", "volcano", "vnum:" + vnum}
	it.Raw = map[string]any{"vnum": vnum, "volcano_name": volcanoName}

	if r.Geom != "" {
		it.GeomGeoJSON = r.Geom
		if bbox, ok := geo.BBoxFromGeoJSON(r.Geom); ok {
			lat, lon := bbox.Centroid()
			it.Lat, it.Lon = f64(lat), f64(lon)
		}
		it.LocationName = volcanoName
		it.LocationConfidence = model.ConfExact
		it.LocationRationale = "CAP notice coordinates"
	} else {
		it.LocationName = volcanoName
		it.LocationConfidence = model.ConfSourceDefault
		it.LocationRationale = "Per-volcano feed"
	}

	finish(&it)
	return it
}
