package parser

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// FeedRecord is one entry from an RSS, RDF or Atom feed.
type FeedRecord struct {
	ID        string
	Link      string
	Title     string
	Summary   string
	Content   string
	Published string // ISO UTC or ""
	Updated   string
	Geom      string // GeoJSON or ""
	Links     []string
}

type rssItem struct {
	GUID           string   `xml:"guid"`
	Title          string   `xml:"title"`
	Links          []string `xml:"link"`
	Description    string   `xml:"description"`
	PubDate        string   `xml:"pubDate"`
	ContentEncoded string   `xml:"http://purl.org/rss/1.0/modules/content/ encoded"`
	GeoRSSPoint    string   `xml:"http://www.georss.org/georss point"`
	GeoRSSPolygon  string   `xml:"http://www.georss.org/georss polygon"`
	GeoLat         string   `xml:"http://www.w3.org/2003/01/geo/wgs84_pos# lat"`
	GeoLong        string   `xml:"http://www.w3.org/2003/01/geo/wgs84_pos# long"`
	Enclosures     []struct {
		URL string `xml:"url,attr"`
	} `xml:"enclosure"`
}

// ParseRSS reads RSS 2.0 and RDF feeds, collecting <item> elements at
// any depth. GeoRSS points and polygons and W3C geo lat/long become
// GeoJSON.
func ParseRSS(data []byte) ([]FeedRecord, error) {
	items, err := collectElements[rssItem](data, "item")
	if err != nil {
		return nil, fmt.Errorf("parse rss: %w", err)
	}

	records := make([]FeedRecord, 0, len(items))
	for _, it := range items {
		link := firstNonEmpty(it.Links)

		geom := geoRSSToGeoJSON(it.GeoRSSPoint, it.GeoRSSPolygon)
		if geom == "" && it.GeoLat != "" && it.GeoLong != "" {
			lat, err1 := strconv.ParseFloat(strings.TrimSpace(it.GeoLat), 64)
			lon, err2 := strconv.ParseFloat(strings.TrimSpace(it.GeoLong), 64)
			if err1 == nil && err2 == nil {
				geom = pointGeoJSON(lat, lon)
			}
		}

		links := make([]string, 0, 1+len(it.Enclosures))
		if link != "" {
			links = append(links, link)
		}
		for _, enc := range it.Enclosures {
			if enc.URL != "" {
				links = append(links, enc.URL)
			}
		}

		id := it.GUID
		if id == "" {
			id = link
		}
		records = append(records, FeedRecord{
			ID:        strings.TrimSpace(id),
			Link:      strings.TrimSpace(link),
			Title:     strings.TrimSpace(it.Title),
			Summary:   strings.TrimSpace(it.Description),
			Content:   strings.TrimSpace(it.ContentEncoded),
			Published: rfc2822ToISO(strings.TrimSpace(it.PubDate)),
			Geom:      geom,
			Links:     links,
		})
	}
	return records, nil
}

type atomEntry struct {
	ID    string `xml:"id"`
	Title string `xml:"title"`
	Links []struct {
		Href string `xml:"href,attr"`
		Rel  string `xml:"rel,attr"`
	} `xml:"link"`
	Summary     string `xml:"summary"`
	Content     string `xml:"content"`
	Published   string `xml:"published"`
	Updated     string `xml:"updated"`
	GeoRSSPoint string `xml:"http://www.georss.org/georss point"`
}

// ParseAtom reads Atom feeds, preferring alternate links.
func ParseAtom(data []byte) ([]FeedRecord, error) {
	entries, err := collectElements[atomEntry](data, "entry")
	if err != nil {
		return nil, fmt.Errorf("parse atom: %w", err)
	}

	records := make([]FeedRecord, 0, len(entries))
	for _, e := range entries {
		link := ""
		for _, l := range e.Links {
			if l.Href == "" {
				continue
			}
			if l.Rel == "" || l.Rel == "alternate" {
				link = l.Href
				break
			}
		}

		summary := strings.TrimSpace(e.Summary)
		if summary == "" {
			summary = strings.TrimSpace(e.Content)
		}

		id := strings.TrimSpace(e.ID)
		if id == "" {
			id = link
		}
		records = append(records, FeedRecord{
			ID:        id,
			Link:      link,
			Title:     strings.TrimSpace(e.Title),
			Summary:   summary,
			Published: isoToISO(strings.TrimSpace(e.Published)),
			Updated:   isoToISO(strings.TrimSpace(e.Updated)),
			Geom:      geoRSSToGeoJSON(e.GeoRSSPoint, ""),
		})
	}
	return records, nil
}

// collectElements walks the document and decodes every element with
// the given local name, at any depth.
func collectElements[T any](data []byte, local string) ([]T, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var out []T
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != local {
			continue
		}
		var v T
		if err := dec.DecodeElement(&v, &start); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}

func firstNonEmpty(values []string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func pointGeoJSON(lat, lon float64) string {
	return fmt.Sprintf(`{"type":"Point","coordinates":[%g,%g]}`, lon, lat)
}

// geoRSSToGeoJSON converts "lat lon" points and "lat lon lat lon ..."
// polygons. Polygons are closed if the feed leaves them open.
func geoRSSToGeoJSON(point, polygon string) string {
	if p := strings.Fields(point); len(p) == 2 {
		lat, err1 := strconv.ParseFloat(p[0], 64)
		lon, err2 := strconv.ParseFloat(p[1], 64)
		if err1 == nil && err2 == nil {
			return pointGeoJSON(lat, lon)
		}
	}
	fields := strings.Fields(polygon)
	if len(fields) >= 6 && len(fields)%2 == 0 {
		coords := make([][2]float64, 0, len(fields)/2+1)
		for i := 0; i+1 < len(fields); i += 2 {
			lat, err1 := strconv.ParseFloat(fields[i], 64)
			lon, err2 := strconv.ParseFloat(fields[i+1], 64)
			if err1 != nil || err2 != nil {
				return ""
			}
			coords = append(coords, [2]float64{lon, lat})
		}
		if coords[0] != coords[len(coords)-1] {
			coords = append(coords, coords[0])
		}
		var b strings.Builder
		b.WriteString(`{"type":"Polygon","coordinates":[[`)
		for i, c := range coords {
			if i > 0 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, "[%g,%g]", c[0], c[1])
		}
		b.WriteString("]]}")
		return b.String()
	}
	return ""
}
