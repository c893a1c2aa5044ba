package sched

import (
	"context"
	"strings"

	"github.com/evhagen/sitmon/internal/geo"
	"github.com/evhagen/sitmon/internal/model"
)

// freeTextCategories are the categories whose items carry prose rather
// than structured geometry, so text-based enrichment is worth trying.
var freeTextCategories = map[string]bool{
	model.CategoryNews:            true,
	model.CategorySocial:          true,
	model.CategoryMaritimeWarning: true,
}

func enrichable(it *model.Item) bool {
	if !freeTextCategories[it.Category] {
		return false
	}
	if it.GeomGeoJSON != "" || it.Lat != nil || it.Lon != nil {
		return false
	}
	conf := it.LocationConfidence
	return conf == model.ConfUnknown || strings.HasPrefix(conf, "C_")
}

// enrich upgrades an item's location using free text and the
// gazetteer. Confidence only ever improves; structured geometry from
// the source is never overridden.
func (s *Scheduler) enrich(ctx context.Context, it *model.Item) {
	if enrichable(it) {
		s.enrichFreeText(ctx, it)
	}

	// Country-level items without coordinates fall back to the
	// country centroid so they still render on the map.
	if it.LocationConfidence == model.ConfCountry && it.Lat == nil && it.LocationName != "" {
		lat, lon, ok, err := s.gaz.CountryCentroid(ctx, it.LocationName)
		if err != nil {
			s.log.Warn().Err(err).Str("country", it.LocationName).Msg("country centroid lookup failed")
			return
		}
		if ok {
			it.Lat, it.Lon = &lat, &lon
		}
	}
}

func (s *Scheduler) enrichFreeText(ctx context.Context, it *model.Item) {
	text := strings.TrimSpace(it.Title + " " + it.Summary)
	if text == "" {
		return
	}

	if lat, lon, ok := geo.ExtractCoordsCentroid(text); ok {
		it.Lat, it.Lon = &lat, &lon
		it.LocationConfidence = model.ConfCoordsInText
		it.LocationRationale = "Coordinates found in text"
		if it.LocationName == "" {
			hint := [2]float64{lat, lon}
			if p, err := s.gaz.MatchPlaceInText(ctx, text, &hint, ""); err == nil && p != nil {
				it.LocationName = p.Name
			}
		}
		return
	}

	if p, err := s.gaz.MatchPlaceInText(ctx, text, nil, ""); err == nil && p != nil &&
		p.Lat != nil && p.Lon != nil {
		it.Lat, it.Lon = p.Lat, p.Lon
		it.LocationName = p.Name
		it.LocationConfidence = model.ConfPlaceMatch
		it.LocationRationale = "Gazetteer match: " + p.Name
		return
	}

	if it.LocationConfidence != model.ConfUnknown {
		return
	}
	if m, err := s.gaz.MatchCountryInText(ctx, text); err == nil && m != nil {
		lat, lon := m.Lat, m.Lon
		it.Lat, it.Lon = &lat, &lon
		it.LocationName = m.Name
		it.LocationConfidence = model.ConfCountry
		it.LocationRationale = "Country detected in text"
	}
}
