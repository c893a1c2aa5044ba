package parser

import (
	"fmt"
	"strconv"
	"strings"
)

// CAPAlert is one Common Alerting Protocol alert, flattened to its
// first info block.
type CAPAlert struct {
	Identifier  string
	Sent        string // ISO UTC or ""
	Status      string
	MsgType     string
	Event       string
	Headline    string
	Description string
	AreaDesc    string
	Geom        string // GeoJSON or ""
}

type capArea struct {
	AreaDesc string   `xml:"areaDesc"`
	Polygons []string `xml:"polygon"`
}

type capInfo struct {
	Event       string    `xml:"event"`
	Headline    string    `xml:"headline"`
	Description string    `xml:"description"`
	Areas       []capArea `xml:"area"`
}

type capAlert struct {
	Identifier string    `xml:"identifier"`
	Sent       string    `xml:"sent"`
	Status     string    `xml:"status"`
	MsgType    string    `xml:"msgType"`
	Infos      []capInfo `xml:"info"`
}

// ParseCAP reads standalone CAP alerts and documents embedding several.
// Alerts without an info block are skipped.
func ParseCAP(data []byte) ([]CAPAlert, error) {
	alerts, err := collectElements[capAlert](data, "alert")
	if err != nil {
		return nil, fmt.Errorf("parse cap: %w", err)
	}

	records := make([]CAPAlert, 0, len(alerts))
	for _, a := range alerts {
		if len(a.Infos) == 0 {
			continue
		}
		info := a.Infos[0]

		areaDesc := ""
		geom := ""
		for _, area := range info.Areas {
			if area.AreaDesc != "" {
				areaDesc = area.AreaDesc
			}
			if geom == "" {
				geom = capPolygonsToGeoJSON(area.Polygons)
			}
		}

		records = append(records, CAPAlert{
			Identifier:  strings.TrimSpace(a.Identifier),
			Sent:        isoToISO(strings.TrimSpace(a.Sent)),
			Status:      strings.TrimSpace(a.Status),
			MsgType:     strings.TrimSpace(a.MsgType),
			Event:       strings.TrimSpace(info.Event),
			Headline:    strings.TrimSpace(info.Headline),
			Description: strings.TrimSpace(info.Description),
			AreaDesc:    strings.TrimSpace(areaDesc),
			Geom:        geom,
		})
	}
	return records, nil
}

// capPolygonsToGeoJSON converts CAP "lat,lon lat,lon ..." polygon
// strings, closing open rings. Several polygons become a MultiPolygon.
func capPolygonsToGeoJSON(polygons []string) string {
	var rings [][][2]float64
	for _, polyText := range polygons {
		var coords [][2]float64
		ok := true
		for _, pair := range strings.Fields(polyText) {
			latStr, lonStr, found := strings.Cut(pair, ",")
			if !found {
				ok = false
				break
			}
			lat, err1 := strconv.ParseFloat(latStr, 64)
			lon, err2 := strconv.ParseFloat(lonStr, 64)
			if err1 != nil || err2 != nil {
				ok = false
				break
			}
			coords = append(coords, [2]float64{lon, lat})
		}
		if !ok || len(coords) == 0 {
			continue
		}
		if coords[0] != coords[len(coords)-1] {
			coords = append(coords, coords[0])
		}
		rings = append(rings, coords)
	}

	if len(rings) == 0 {
		return ""
	}

	writeRing := func(b *strings.Builder, ring [][2]float64) {
		b.WriteString("[")
		for i, c := range ring {
			if i > 0 {
				b.WriteString(",")
			}
			fmt.Fprintf(b, "[%g,%g]", c[0], c[1])
		}
		b.WriteString("]")
	}

	var b strings.Builder
	if len(rings) == 1 {
		b.WriteString(`{"type":"Polygon","coordinates":[`)
		writeRing(&b, rings[0])
		b.WriteString("]}")
		return b.String()
	}
	b.WriteString(`{"type":"MultiPolygon","coordinates":[`)
	for i, ring := range rings {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("[")
		writeRing(&b, ring)
		b.WriteString("]")
	}
	b.WriteString("]}")
	return b.String()
}
