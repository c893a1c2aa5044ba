package geo

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Airport is a reference coordinate for an IATA code.
type Airport struct {
	Name string
	Lat  float64
	Lon  float64
}

// LoadAirportsByIATA reads a headered airports CSV (iata_code,
// latitude_deg, longitude_deg, name) into a lookup map. Rows without a
// code or coordinates are skipped.
func LoadAirportsByIATA(path string) (map[string]Airport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open airports file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return map[string]Airport{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read airports header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	byIATA := make(map[string]Airport)
	for {
		row, err := r.Read()
		if err == io.EOF {
			return byIATA, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read airports row: %w", err)
		}
		code := strings.ToUpper(field(row, "iata_code"))
		if code == "" {
			continue
		}
		lat, err1 := strconv.ParseFloat(field(row, "latitude_deg"), 64)
		lon, err2 := strconv.ParseFloat(field(row, "longitude_deg"), 64)
		if err1 != nil || err2 != nil {
			continue
		}
		name := field(row, "name")
		if name == "" {
			name = code
		}
		byIATA[code] = Airport{Name: name, Lat: lat, Lon: lon}
	}
}
