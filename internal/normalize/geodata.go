package normalize

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/evhagen/sitmon/internal/geo"
	"github.com/evhagen/sitmon/internal/model"
	"github.com/evhagen/sitmon/internal/parser"
	"github.com/evhagen/sitmon/internal/textsig"
	"github.com/evhagen/sitmon/internal/timeiso"
)

// USGSEarthquake maps one earthquake feed feature. Coordinates are
// always present, so the item lands at the top of the confidence
// ladder.
func USGSEarthquake(sourceID string, f parser.Feature, fetchedAt string) model.Item {
	it := newItem(sourceID, "geojson_api", fetchedAt)
	props := f.Properties

	it.Title = asString(props["title"])
	it.Summary = asString(props["place"])
	it.URL = textsig.CanonicalizeURL(asString(props["url"]))
	it.ExternalID = asString(f.ID)
	it.Category = model.CategoryEarthquake

	if ms, ok := asFloat(props["time"]); ok {
		it.PublishedAt = timeiso.Format(time.UnixMilli(int64(ms)))
	}
	if ms, ok := asFloat(props["updated"]); ok {
		it.UpdatedAt = timeiso.Format(time.UnixMilli(int64(ms)))
	}

	it.Tags = []string{"usgs", "earthquake"}
	raw := map[string]any{
		"place":    props["place"],
		"time":     props["time"],
		"updated":  props["updated"],
		"usgs_url": props["url"],
	}
	if mag, ok := asFloat(props["mag"]); ok {
		raw["mag"] = mag
		it.Tags = append(it.Tags, fmt.Sprintf("mag:%.1f", mag))
	}
	it.Raw = raw

	it.GeomGeoJSON = string(f.Geometry)
	var coords struct {
		Coordinates []float64 `json:"coordinates"`
	}
	if err := json.Unmarshal(f.Geometry, &coords); err == nil && len(coords.Coordinates) >= 2 {
		it.Lon = f64(coords.Coordinates[0])
		it.Lat = f64(coords.Coordinates[1])
	}
	it.LocationName = it.Summary
	it.LocationConfidence = model.ConfExact
	it.LocationRationale = "USGS GeoJSON coordinates"

	finish(&it)
	return it
}

// NWSAlert maps one active weather alert feature. Alerts without
// geometry stay unlocated; the areaDesc is kept as a display name.
func NWSAlert(sourceID string, f parser.Feature, fetchedAt string) model.Item {
	it := newItem(sourceID, "geojson_api", fetchedAt)
	props := f.Properties

	it.Title = getStr(props, "headline", "event")
	it.Summary = it.Title
	alertID := asString(f.ID)
	if alertID == "" {
		alertID = asString(props["id"])
	}
	it.URL = textsig.CanonicalizeURL(alertID)
	it.ExternalID = alertID
	it.Category = model.CategoryWeatherAlert

	description := asString(props["description"])
	instruction := asString(props["instruction"])
	switch {
	case description != "" && instruction != "":
		it.Content = description + "\n\n" + instruction
	case description != "":
		it.Content = description
	case instruction != "":
		it.Content = instruction
	}

	it.PublishedAt = isoOr(getStr(props, "effective", "onset", "sent"), fetchedAt)
	it.UpdatedAt = isoOr(getStr(props, "sent", "effective"), fetchedAt)

	it.Tags = []string{
		"nws", "weather_alert",
		"severity:" + asString(props["severity"]),
		"urgency:" + asString(props["urgency"]),
		"certainty:" + asString(props["certainty"]),
	}
	it.Raw = map[string]any{
		"event":     props["event"],
		"severity":  props["severity"],
		"urgency":   props["urgency"],
		"certainty": props["certainty"],
		"areaDesc":  props["areaDesc"],
		"expires":   props["expires"],
		"ends":      props["ends"],
		"headline":  props["headline"],
	}

	it.LocationName = asString(props["areaDesc"])
	it.LocationRationale = "NWS alert without geometry"
	if len(f.Geometry) > 0 && string(f.Geometry) != "null" {
		it.GeomGeoJSON = string(f.Geometry)
		if bbox, ok := geo.BBoxFromGeoJSON(it.GeomGeoJSON); ok {
			lat, lon := bbox.Centroid()
			it.Lat, it.Lon = f64(lat), f64(lon)
		}
		it.LocationConfidence = model.ConfExact
		it.LocationRationale = "NWS polygon geometry"
	}

	finish(&it)
	return it
}

// NHCItem maps one National Hurricane Center feed entry. GIS feeds
// carry GeoRSS geometry; the text-only basin feeds fall back to a
// source default.
func NHCItem(sourceID string, r parser.FeedRecord, fetchedAt string) model.Item {
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
		it.URL = textsig.CanonicalizeURL("nhc:" + it.ExternalID)
	}
	it.Category = model.CategoryTropicalCyclone
	it.PublishedAt = firstOr(r.Published, fetchedAt)
	it.Tags = []string{"nhc", "tropical_cyclone"}
	it.Raw = map[string]any{"links": r.Links}

	if r.Geom != "" {
		it.GeomGeoJSON = r.Geom
		if bbox, ok := geo.BBoxFromGeoJSON(r.Geom); ok {
			lat, lon := bbox.Centroid()
			it.Lat, it.Lon = f64(lat), f64(lon)
		}
		it.LocationConfidence = model.ConfExact
		it.LocationRationale = "NHC GIS GeoRSS geometry"
	} else {
		it.LocationConfidence = model.ConfSourceDefault
		it.LocationRationale = "NHC feed (basin-wide)"
	}

	finish(&it)
	return it
}

// GDACSRss maps one Global Disaster Alert item.
func GDACSRss(sourceID string, r parser.FeedRecord, fetchedAt string) model.Item {
	it := newItem(sourceID, "rss", fetchedAt)

	it.Title = r.Title
	it.Summary = truncate(r.Summary, 300)
	it.URL = textsig.CanonicalizeURL(r.Link)
	it.ExternalID = r.ID
	if it.ExternalID == "" {
		it.ExternalID = it.URL
	}
	it.Category = model.CategoryDisaster
	it.PublishedAt = firstOr(r.Published, fetchedAt)
	it.Tags = []string{"gdacs", "disaster"}
	it.Raw = map[string]any{"feed_id": r.ID}

	if r.Geom != "" {
		it.GeomGeoJSON = r.Geom
		if bbox, ok := geo.BBoxFromGeoJSON(r.Geom); ok {
			lat, lon := bbox.Centroid()
			it.Lat, it.Lon = f64(lat), f64(lon)
		}
		it.LocationConfidence = model.ConfExact
		it.LocationRationale = "GDACS GeoRSS coordinates"
	} else {
		it.LocationRationale = "GDACS item without coordinates"
	}

	finish(&it)
	return it
}

// eonetCategories maps EONET category ids onto the closed category set.
var eonetCategories = map[string]string{
	"wildfires":    model.CategoryWildfire,
	"volcanoes":    model.CategoryVolcano,
	"earthquakes":  model.CategoryEarthquake,
	"severeStorms": model.CategoryWeatherAlert,
}

// EONETEvent maps one open NASA EONET event, taking the most recent
// geometry sample as the event position.
func EONETEvent(sourceID string, rec map[string]any, fetchedAt string) model.Item {
	it := newItem(sourceID, "json_api", fetchedAt)

	it.Title = asString(rec["title"])
	it.Summary = truncate(asString(rec["description"]), 300)
	it.ExternalID = asString(rec["id"])
	link := asString(rec["link"])
	if link != "" {
		it.URL = textsig.CanonicalizeURL(link)
	} else {
		it.URL = textsig.CanonicalizeURL("eonet:" + it.ExternalID)
	}

	it.Category = model.CategoryDisaster
	catID := ""
	if cats := asList(rec["categories"]); len(cats) > 0 {
		if cat, ok := asMap(cats[0]); ok {
			catID = asString(cat["id"])
			if mapped, ok := eonetCategories[catID]; ok {
				it.Category = mapped
			}
		}
	}
	it.Tags = []string{"eonet"}
	if catID != "" {
		it.Tags = append(it.Tags, catID)
	}
	it.Raw = map[string]any{"eonet_category": catID}

	it.LocationRationale = "EONET event without geometry"
	if geoms := asList(rec["geometry"]); len(geoms) > 0 {
		if g, ok := asMap(geoms[len(geoms)-1]); ok {
			it.PublishedAt = isoOr(asString(g["date"]), fetchedAt)
			if asString(g["type"]) == "Point" {
				if coords := asList(g["coordinates"]); len(coords) >= 2 {
					lon, ok1 := asFloat(coords[0])
					lat, ok2 := asFloat(coords[1])
					if ok1 && ok2 {
						it.Lat, it.Lon = f64(lat), f64(lon)
						it.GeomGeoJSON = geo.PointGeoJSON(lat, lon)
						it.LocationConfidence = model.ConfExact
						it.LocationRationale = "EONET geometry"
					}
				}
			}
		}
	}

	finish(&it)
	return it
}

func firstOr(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
