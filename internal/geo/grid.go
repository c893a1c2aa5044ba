package geo

import (
	"fmt"

	h3 "github.com/uber/h3-go/v4"
)

const (
	minGridRes = 0
	maxGridRes = 9
)

// CellID maps a point to its H3 cell at the given resolution, as the
// canonical hex string.
func CellID(lat, lon float64, res int) (string, error) {
	if res < minGridRes || res > maxGridRes {
		return "", fmt.Errorf("grid resolution %d out of range [%d,%d]", res, minGridRes, maxGridRes)
	}
	cell, err := h3.LatLngToCell(h3.NewLatLng(lat, lon), res)
	if err != nil {
		return "", fmt.Errorf("h3 cell: %w", err)
	}
	return cell.String(), nil
}

// CellCenter returns the center point of a cell, for placing grid
// aggregates on the map.
func CellCenter(cellID string) (lat, lon float64, err error) {
	var c h3.Cell
	if err := c.UnmarshalText([]byte(cellID)); err != nil {
		return 0, 0, fmt.Errorf("parse cell: %w", err)
	}
	if !c.IsValid() {
		return 0, 0, fmt.Errorf("invalid h3 cell %q", cellID)
	}
	ll, err := c.LatLng()
	if err != nil {
		return 0, 0, fmt.Errorf("h3 center: %w", err)
	}
	return ll.Lat, ll.Lng, nil
}
