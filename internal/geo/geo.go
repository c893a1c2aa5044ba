// Package geo holds the small geometry toolkit: haversine distance,
// GeoJSON bounding boxes and their centroids, and coordinate extraction
// from free text.
package geo

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const earthRadiusKm = 6371.0

// HaversineKm is the great-circle distance between two points.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// BBox is minlon, minlat, maxlon, maxlat.
type BBox struct {
	MinLon, MinLat, MaxLon, MaxLat float64
}

// Centroid is the box midpoint, returned lat first.
func (b BBox) Centroid() (lat, lon float64) {
	return (b.MinLat + b.MaxLat) / 2, (b.MinLon + b.MaxLon) / 2
}

// Union grows the box to cover other.
func (b BBox) Union(other BBox) BBox {
	return BBox{
		MinLon: math.Min(b.MinLon, other.MinLon),
		MinLat: math.Min(b.MinLat, other.MinLat),
		MaxLon: math.Max(b.MaxLon, other.MaxLon),
		MaxLat: math.Max(b.MaxLat, other.MaxLat),
	}
}

// String renders the box as a comma-joined list for storage.
func (b BBox) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", b.MinLon, b.MinLat, b.MaxLon, b.MaxLat)
}

// ParseBBox reads the stored comma-joined form.
func ParseBBox(s string) (BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BBox{}, fmt.Errorf("bbox needs 4 values, got %d", len(parts))
	}
	var vals [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BBox{}, fmt.Errorf("bbox value %d: %w", i, err)
		}
		vals[i] = v
	}
	return BBox{MinLon: vals[0], MinLat: vals[1], MaxLon: vals[2], MaxLat: vals[3]}, nil
}

type geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// BBoxFromGeoJSON computes the bounding box of a Point, LineString,
// Polygon, MultiLineString or MultiPolygon geometry. Unknown types and
// empty geometries return ok=false.
func BBoxFromGeoJSON(raw string) (BBox, bool) {
	var g geometry
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return BBox{}, false
	}
	if g.Type == "" || len(g.Coordinates) == 0 {
		return BBox{}, false
	}

	var points [][2]float64
	switch g.Type {
	case "Point":
		var p [2]float64
		if err := json.Unmarshal(g.Coordinates, &p); err != nil {
			return BBox{}, false
		}
		points = append(points, p)
	case "LineString":
		var line [][2]float64
		if err := json.Unmarshal(g.Coordinates, &line); err != nil {
			return BBox{}, false
		}
		points = append(points, line...)
	case "Polygon", "MultiLineString":
		var rings [][][2]float64
		if err := json.Unmarshal(g.Coordinates, &rings); err != nil {
			return BBox{}, false
		}
		for _, ring := range rings {
			points = append(points, ring...)
		}
	case "MultiPolygon":
		var polys [][][][2]float64
		if err := json.Unmarshal(g.Coordinates, &polys); err != nil {
			return BBox{}, false
		}
		for _, poly := range polys {
			for _, ring := range poly {
				points = append(points, ring...)
			}
		}
	default:
		return BBox{}, false
	}

	if len(points) == 0 {
		return BBox{}, false
	}
	b := BBox{
		MinLon: points[0][0], MinLat: points[0][1],
		MaxLon: points[0][0], MaxLat: points[0][1],
	}
	for _, p := range points[1:] {
		b.MinLon = math.Min(b.MinLon, p[0])
		b.MinLat = math.Min(b.MinLat, p[1])
		b.MaxLon = math.Max(b.MaxLon, p[0])
		b.MaxLat = math.Max(b.MaxLat, p[1])
	}
	return b, true
}

// PointGeoJSON renders a lon/lat pair as a GeoJSON Point.
func PointGeoJSON(lat, lon float64) string {
	return fmt.Sprintf(`{"type":"Point","coordinates":[%g,%g]}`, lon, lat)
}

var decimalPairRe = regexp.MustCompile(`(-?\d{1,2}\.\d+)\s*,\s*(-?\d{1,3}\.\d+)`)

// ExtractDecimalCoords finds the first "lat, lon" decimal pair in free
// text, e.g. "35.68, 139.69" inside a navigation warning.
func ExtractDecimalCoords(text string) (lat, lon float64, ok bool) {
	m := decimalPairRe.FindStringSubmatch(text)
	if m == nil {
		return 0, 0, false
	}
	lat, err1 := strconv.ParseFloat(m[1], 64)
	lon, err2 := strconv.ParseFloat(m[2], 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return lat, lon, true
}

// ExtractCoordsCentroid averages every plausible decimal pair in the
// text. Navigation warnings often list several corner points of an
// area; the centroid is a better anchor than the first corner.
func ExtractCoordsCentroid(text string) (lat, lon float64, ok bool) {
	matches := decimalPairRe.FindAllStringSubmatch(text, -1)
	var sumLat, sumLon float64
	n := 0
	for _, m := range matches {
		la, err1 := strconv.ParseFloat(m[1], 64)
		lo, err2 := strconv.ParseFloat(m[2], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		if la < -90 || la > 90 || lo < -180 || lo > 180 {
			continue
		}
		sumLat += la
		sumLon += lo
		n++
	}
	if n == 0 {
		return 0, 0, false
	}
	return sumLat / float64(n), sumLon / float64(n), true
}
