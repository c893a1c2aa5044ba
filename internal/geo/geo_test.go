package geo

import (
	"math"
	"testing"
)

func TestHaversineKm_KnownDistances(t *testing.T) {
	// Stockholm to Gothenburg, roughly 400 km
	d := HaversineKm(59.3293, 18.0686, 57.7089, 11.9746)
	if d < 390 || d > 410 {
		t.Fatalf("Stockholm-Gothenburg: got %f km", d)
	}
	if d := HaversineKm(10, 20, 10, 20); d != 0 {
		t.Fatalf("same point: got %f", d)
	}
}

func TestBBoxFromGeoJSON_Point(t *testing.T) {
	b, ok := BBoxFromGeoJSON(`{"type":"Point","coordinates":[139.69,35.68]}`)
	if !ok {
		t.Fatalf("point bbox not ok")
	}
	if b.MinLon != 139.69 || b.MaxLon != 139.69 || b.MinLat != 35.68 || b.MaxLat != 35.68 {
		t.Fatalf("point bbox: got %+v", b)
	}
	lat, lon := b.Centroid()
	if lat != 35.68 || lon != 139.69 {
		t.Fatalf("centroid: got %f,%f", lat, lon)
	}
}

func TestBBoxFromGeoJSON_Polygon(t *testing.T) {
	b, ok := BBoxFromGeoJSON(`{"type":"Polygon","coordinates":[[[0,0],[2,0],[2,4],[0,4],[0,0]]]}`)
	if !ok {
		t.Fatalf("polygon bbox not ok")
	}
	want := BBox{MinLon: 0, MinLat: 0, MaxLon: 2, MaxLat: 4}
	if b != want {
		t.Fatalf("polygon bbox: got %+v, want %+v", b, want)
	}
	lat, lon := b.Centroid()
	if lat != 2 || lon != 1 {
		t.Fatalf("centroid: got %f,%f", lat, lon)
	}
}

func TestBBoxFromGeoJSON_MultiPolygon(t *testing.T) {
	raw := `{"type":"MultiPolygon","coordinates":[[[[0,0],[1,0],[1,1],[0,0]]],[[[5,5],[6,5],[6,6],[5,5]]]]}`
	b, ok := BBoxFromGeoJSON(raw)
	if !ok {
		t.Fatalf("multipolygon bbox not ok")
	}
	want := BBox{MinLon: 0, MinLat: 0, MaxLon: 6, MaxLat: 6}
	if b != want {
		t.Fatalf("multipolygon bbox: got %+v, want %+v", b, want)
	}
}

func TestBBoxFromGeoJSON_Unknown(t *testing.T) {
	if _, ok := BBoxFromGeoJSON(`{"type":"GeometryCollection"}`); ok {
		t.Fatalf("unknown geometry should not produce a bbox")
	}
	if _, ok := BBoxFromGeoJSON(`not json`); ok {
		t.Fatalf("garbage should not produce a bbox")
	}
}

func TestBBox_UnionAndRoundTrip(t *testing.T) {
	a := BBox{MinLon: 0, MinLat: 0, MaxLon: 2, MaxLat: 2}
	b := BBox{MinLon: -1, MinLat: 1, MaxLon: 1, MaxLat: 3}
	u := a.Union(b)
	want := BBox{MinLon: -1, MinLat: 0, MaxLon: 2, MaxLat: 3}
	if u != want {
		t.Fatalf("union: got %+v, want %+v", u, want)
	}

	parsed, err := ParseBBox(u.String())
	if err != nil {
		t.Fatalf("parse bbox: %v", err)
	}
	if parsed != u {
		t.Fatalf("round trip: got %+v, want %+v", parsed, u)
	}
}

func TestParseBBox_Invalid(t *testing.T) {
	if _, err := ParseBBox("1,2,3"); err == nil {
		t.Fatalf("short bbox should fail")
	}
	if _, err := ParseBBox("a,b,c,d"); err == nil {
		t.Fatalf("non-numeric bbox should fail")
	}
}

func TestExtractDecimalCoords(t *testing.T) {
	lat, lon, ok := ExtractDecimalCoords("vessel reported at 35.68, 139.69 heading north")
	if !ok {
		t.Fatalf("coords not found")
	}
	if math.Abs(lat-35.68) > 1e-9 || math.Abs(lon-139.69) > 1e-9 {
		t.Fatalf("got %f,%f", lat, lon)
	}

	if _, _, ok := ExtractDecimalCoords("no coordinates here"); ok {
		t.Fatalf("false positive")
	}

	lat, lon, ok = ExtractDecimalCoords("position -12.5, -45.25")
	if !ok || lat != -12.5 || lon != -45.25 {
		t.Fatalf("negative coords: got %f,%f ok=%v", lat, lon, ok)
	}
}

func TestExtractCoordsCentroid(t *testing.T) {
	lat, lon, ok := ExtractCoordsCentroid("area bounded by 10.0, 20.0 and 20.0, 40.0")
	if !ok {
		t.Fatalf("centroid not found")
	}
	if math.Abs(lat-15) > 1e-9 || math.Abs(lon-30) > 1e-9 {
		t.Fatalf("got %f,%f", lat, lon)
	}

	if _, _, ok := ExtractCoordsCentroid("nothing here"); ok {
		t.Fatalf("false positive")
	}
}

func TestCellID_RoundTrip(t *testing.T) {
	id, err := CellID(59.3293, 18.0686, 5)
	if err != nil {
		t.Fatalf("cell id: %v", err)
	}
	lat, lon, err := CellCenter(id)
	if err != nil {
		t.Fatalf("cell center: %v", err)
	}
	if HaversineKm(59.3293, 18.0686, lat, lon) > 15 {
		t.Fatalf("cell center too far from input: %f,%f", lat, lon)
	}
}

func TestCellID_ResolutionBounds(t *testing.T) {
	if _, err := CellID(0, 0, -1); err == nil {
		t.Fatalf("negative resolution should fail")
	}
	if _, err := CellID(0, 0, 10); err == nil {
		t.Fatalf("resolution above range should fail")
	}
}
