package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/evhagen/sitmon/internal/geo"
	"github.com/evhagen/sitmon/internal/model"
	"github.com/evhagen/sitmon/internal/parser"
	"github.com/evhagen/sitmon/internal/textsig"
)

// FIRMSHotspot maps one VIIRS hotspot CSV row. The detection has no
// stable id upstream, so the identity is the position plus acquisition
// time.
func FIRMSHotspot(sourceID string, rec map[string]any, fetchedAt string) model.Item {
	it := newItem(sourceID, "csv_api", fetchedAt)

	latStr := getStr(rec, "latitude")
	lonStr := getStr(rec, "longitude")
	acqDate := getStr(rec, "acq_date")
	acqTime := getStr(rec, "acq_time")
	frpStr := getStr(rec, "frp")
	confidence := getStr(rec, "confidence")

	it.Title = fmt.Sprintf("Wildfire hotspot near %s, %s", latStr, lonStr)
	it.Summary = fmt.Sprintf("VIIRS detection, FRP %s MW, confidence %s", firstOr(frpStr, "?"), firstOr(confidence, "?"))
	it.ExternalID = strings.Join([]string{latStr, lonStr, acqDate, acqTime}, "|")
	it.URL = textsig.CanonicalizeURL("firms:" + it.ExternalID)
	it.Category = model.CategoryWildfire
	it.Tags = []string{"firms", "wildfire"}

	raw := map[string]any{
		"confidence": confidence,
		"satellite":  getStr(rec, "satellite"),
		"daynight":   getStr(rec, "daynight"),
	}
	if frp, ok := asFloat(frpStr); ok {
		raw["frp"] = frp
	}
	it.Raw = raw

	if len(acqDate) == 10 {
		hhmm := acqTime
		for len(hhmm) < 4 {
			hhmm = "0" + hhmm
		}
		it.PublishedAt = isoOr(acqDate+"T"+hhmm[:2]+":"+hhmm[2:4]+":00", fetchedAt)
	}

	lat, okLat := asFloat(latStr)
	lon, okLon := asFloat(lonStr)
	if okLat && okLon {
		it.Lat, it.Lon = f64(lat), f64(lon)
		it.GeomGeoJSON = geo.PointGeoJSON(lat, lon)
		it.LocationConfidence = model.ConfExact
		it.LocationRationale = "FIRMS hotspot coordinates"
	} else {
		it.LocationRationale = "Hotspot row without coordinates"
	}

	finish(&it)
	return it
}

var delayPartRe = regexp.MustCompile(`(\d+)\s*(hour|minute)`)

// parseAvgDelayMinutes reads FAA delay strings like "1 hour and 21
// minutes" or "44 minutes" into minutes. Zero means unparseable.
func parseAvgDelayMinutes(s string) int {
	total := 0
	for _, m := range delayPartRe.FindAllStringSubmatch(strings.ToLower(s), -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if m[2] == "hour" {
			total += n * 60
		} else {
			total += n
		}
	}
	return total
}

// faaDisruptionKind classifies a status entry for severity scoring.
func faaDisruptionKind(statusType, program string) string {
	t := strings.ToLower(statusType)
	p := strings.ToLower(program)
	switch {
	case strings.Contains(t, "closure") || strings.Contains(p, "closure"):
		return "closure"
	case strings.Contains(t, "ground stop") || strings.Contains(p, "ground stop"):
		return "ground_stop"
	case strings.Contains(t, "ground delay") || strings.Contains(p, "ground delay"):
		return "gdp"
	default:
		return "delay"
	}
}

// FAAAirportDisruption maps one delayed airport from the NAS status
// feed, resolving coordinates from the airports reference table.
func FAAAirportDisruption(sourceID string, a parser.AirportStatus, fetchedAt string, airportsByIATA map[string]geo.Airport) model.Item {
	it := newItem(sourceID, "xml_api", fetchedAt)

	kind := faaDisruptionKind(a.Type, a.Program)
	kindTitle := map[string]string{
		"closure":     "Airport closure",
		"ground_stop": "Ground stop",
		"gdp":         "Ground delay program",
		"delay":       "Flight delays",
	}[kind]

	it.Title = fmt.Sprintf("%s: %s (%s)", kindTitle, a.Name, a.IATA)
	it.Summary = truncate(firstOr(a.Reason, a.Type), 300)
	it.ExternalID = strings.Join([]string{a.IATA, kind, a.UpdateTime}, "|")
	it.URL = textsig.CanonicalizeURL("faa:" + a.IATA)
	it.Category = model.CategoryAviation
	it.Tags = []string{"faa", "aviation", kind}

	avgDelay := parseAvgDelayMinutes(a.AvgDelay)
	it.Raw = map[string]any{
		"severity_kind": kind,
		"avg_delay_min": avgDelay,
		"trend":         a.Trend,
		"program":       a.Program,
		"end_time":      a.EndTime,
	}

	if ap, ok := airportsByIATA[strings.ToUpper(a.IATA)]; ok {
		it.Lat, it.Lon = f64(ap.Lat), f64(ap.Lon)
		it.GeomGeoJSON = geo.PointGeoJSON(ap.Lat, ap.Lon)
		it.LocationName = ap.Name
		it.LocationConfidence = model.ConfExact
		it.LocationRationale = "Airport reference coordinates"
	} else {
		it.LocationName = strings.TrimSpace(a.City + " " + a.State)
		it.LocationRationale = "Airport not in reference table"
	}

	finish(&it)
	return it
}

// MSIBroadcastWarning maps one current NAVAREA broadcast warning. The
// position usually lives in the warning text, so the coordinate is
// left for free-text enrichment.
func MSIBroadcastWarning(sourceID string, rec map[string]any, fetchedAt string) model.Item {
	it := newItem(sourceID, "json_api", fetchedAt)

	navArea := getStr(rec, "navArea", "navarea")
	msgNumber := getStr(rec, "msgNumber", "msg_number")
	msgYear := getStr(rec, "msgYear", "msg_year", "year")
	text := getStr(rec, "text", "msgText")

	it.Title = fmt.Sprintf("NAVAREA %s warning %s/%s", navArea, msgNumber, msgYear)
	it.Summary = truncate(text, 300)
	it.Content = text
	it.ExternalID = strings.Join([]string{navArea, msgNumber, msgYear}, "/")
	it.URL = textsig.CanonicalizeURL("msi:" + it.ExternalID)
	it.Category = model.CategoryMaritimeWarning
	it.PublishedAt = isoOr(getStr(rec, "issueDate", "issue_date"), fetchedAt)
	it.Tags = []string{"msi", "navarea:" + navArea}
	it.Raw = map[string]any{
		"nav_area":   navArea,
		"msg_number": msgNumber,
		"msg_year":   msgYear,
		"status":     getStr(rec, "status"),
		"authority":  getStr(rec, "authority"),
	}
	it.LocationRationale = "Broadcast warning text only"

	finish(&it)
	return it
}
