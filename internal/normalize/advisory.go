package normalize

import (
	"regexp"
	"strings"

	"github.com/evhagen/sitmon/internal/model"
	"github.com/evhagen/sitmon/internal/parser"
	"github.com/evhagen/sitmon/internal/textsig"
)

// GenericRSS maps any plain feed entry. Location stays unknown; the
// scheduler's free-text enrichment fills it in where it can.
func GenericRSS(sourceID string, r parser.FeedRecord, fetchedAt, category string, tags []string) model.Item {
	it := newItem(sourceID, "rss", fetchedAt)

	it.Title = r.Title
	it.Summary = r.Summary
	it.Content = r.Content
	it.URL = textsig.CanonicalizeURL(r.Link)
	it.ExternalID = r.ID
	if it.ExternalID == "" {
		it.ExternalID = it.URL
	}
	it.Category = category
	it.PublishedAt = firstOr(r.Published, fetchedAt)
	it.UpdatedAt = r.Updated

	if len(tags) > 0 {
		it.Tags = append([]string{}, tags...)
	} else {
		it.Tags = []string{"rss", sourceID}
	}
	it.Raw = map[string]any{"feed_id": r.ID}
	it.LocationRationale = "RSS without structured geo"

	finish(&it)
	return it
}

// countryPrefixRe matches a leading country name followed by a dash or
// colon separator, the shape national advisory feeds use for titles.
var countryPrefixRe = regexp.MustCompile(`^([A-Za-z .()'-]+)\s*[-:\x{2013}\x{2014}]\s+`)

func countryFromTitle(title string) string {
	m := countryPrefixRe.FindStringSubmatch(title)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// CountryLevelRSS maps national advisory feeds whose items are scoped
// to a single country named in the title. The coordinate is filled
// later from the gazetteer country centroid.
func CountryLevelRSS(sourceID string, r parser.FeedRecord, fetchedAt, category string, tags []string) model.Item {
	it := GenericRSS(sourceID, r, fetchedAt, category, tags)

	if country := countryFromTitle(r.Title); country != "" {
		it.LocationName = country
		it.LocationConfidence = model.ConfCountry
		it.LocationRationale = "Country prefix in title"
	} else {
		it.LocationRationale = "No country detected"
	}

	finish(&it)
	return it
}

// SmartravellerRSS maps the Australian travel advice feeds. The advice
// level is constant per feed and kept in the raw payload for severity
// scoring.
func SmartravellerRSS(sourceID string, r parser.FeedRecord, fetchedAt, adviceLevel string) model.Item {
	it := newItem(sourceID, "rss", fetchedAt)

	it.Title = r.Title
	it.Summary = r.Summary
	it.URL = textsig.CanonicalizeURL(r.Link)
	it.ExternalID = r.ID
	if it.ExternalID == "" {
		it.ExternalID = it.URL
	}
	it.Category = model.CategoryTravelAdvisory
	it.PublishedAt = firstOr(r.Published, fetchedAt)
	it.Tags = []string{"smartraveller", "travel_advisory", adviceLevel}
	it.Raw = map[string]any{"advice_level": adviceLevel}

	if country := countryFromTitle(r.Title); country != "" {
		it.LocationName = country
		it.LocationConfidence = model.ConfCountry
		it.LocationRationale = "Smartraveller is country-level"
	} else {
		it.LocationRationale = "No country detected"
	}

	finish(&it)
	return it
}

// SmartravellerExport maps one destination from the bulk export. These
// records seed the gazetteer's country table on insert.
func SmartravellerExport(sourceID string, rec map[string]any, fetchedAt string) model.Item {
	it := newItem(sourceID, "json_api", fetchedAt)

	name := getStr(rec, "name", "country", "title")
	if name == "" {
		name = "Smartraveller"
	}
	it.Title = name
	it.Summary = truncate(getStr(rec, "advice", "summary"), 300)

	countryCode := getStr(rec, "iso2", "countryCode", "code")
	it.ExternalID = firstOr(countryCode, name)

	if url := getStr(rec, "url", "link"); url != "" {
		it.URL = textsig.CanonicalizeURL(url)
	} else {
		it.URL = textsig.CanonicalizeURL("smartraveller:" + it.ExternalID)
	}

	it.Category = model.CategoryTravelAdvisory
	it.Tags = []string{"smartraveller", "travel_advisory"}
	it.Raw = map[string]any{"country_code": countryCode}

	if lat, ok := asFloat(firstNonNil(rec["lat"], rec["latitude"])); ok {
		it.Lat = f64(lat)
	}
	if lon, ok := asFloat(firstNonNil(rec["lon"], rec["longitude"], rec["lng"])); ok {
		it.Lon = f64(lon)
	}
	it.LocationName = name
	it.LocationConfidence = model.ConfCountry
	it.LocationRationale = "Smartraveller destinations export"

	finish(&it)
	return it
}

// GOVUKTravelAdvice maps one per-country page from the content API
// index. The index has no timestamps beyond public_updated_at.
func GOVUKTravelAdvice(sourceID string, rec map[string]any, fetchedAt string) model.Item {
	it := newItem(sourceID, "json_api", fetchedAt)

	country := asString(rec["title"])
	it.Title = "Foreign travel advice: " + country
	it.Summary = truncate(asString(rec["description"]), 300)
	basePath := asString(rec["base_path"])
	it.ExternalID = firstOr(basePath, country)
	it.URL = textsig.CanonicalizeURL("https://www.gov.uk" + basePath)
	it.Category = model.CategoryTravelAdvisory
	it.PublishedAt = isoOr(asString(rec["public_updated_at"]), fetchedAt)
	it.Tags = []string{"govuk", "travel_advisory"}
	it.Raw = map[string]any{"base_path": basePath}

	if country != "" {
		it.LocationName = country
		it.LocationConfidence = model.ConfCountry
		it.LocationRationale = "GOV.UK per-country advice"
	} else {
		it.LocationRationale = "Index entry without a country"
	}

	finish(&it)
	return it
}

func firstNonNil(values ...any) any {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
