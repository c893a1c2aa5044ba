// Package gazetteer resolves place names to coordinates. Countries are
// seeded from a Natural Earth GeoJSON export; further places accrete
// from sources that carry authoritative locations.
package gazetteer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/evhagen/sitmon/internal/model"
	"github.com/evhagen/sitmon/internal/store"
)

var (
	nameCleanRe = regexp.MustCompile(`[^\p{L}\p{N}_\s]+`)
	wsRe        = regexp.MustCompile(`\s+`)
	wordRe      = regexp.MustCompile(`[a-z]+`)
)

// NormalizePlaceName lowercases and strips punctuation so lookups are
// insensitive to formatting.
func NormalizePlaceName(name string) string {
	cleaned := nameCleanRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), " ")
	return strings.TrimSpace(wsRe.ReplaceAllString(cleaned, " "))
}

const cacheTTL = 5 * time.Minute

type cachedPlaces struct {
	places   []model.Place
	loadedAt time.Time
}

// Gazetteer wraps the places table with an in-memory snapshot cache so
// per-record text matching does not hammer the store.
type Gazetteer struct {
	st    *store.Store
	cache *lru.Cache[string, cachedPlaces]
}

func New(st *store.Store) (*Gazetteer, error) {
	cache, err := lru.New[string, cachedPlaces](8)
	if err != nil {
		return nil, fmt.Errorf("gazetteer cache: %w", err)
	}
	return &Gazetteer{st: st, cache: cache}, nil
}

// Invalidate drops cached snapshots, e.g. after seeding.
func (g *Gazetteer) Invalidate() {
	g.cache.Purge()
}

type countryFeature struct {
	BBox       []float64 `json:"bbox"`
	Properties struct {
		NameEN string `json:"NAME_EN"`
		Name   string `json:"NAME"`
		ISOA2  string `json:"ISO_A2"`
	} `json:"properties"`
}

type countryCollection struct {
	Features []countryFeature `json:"features"`
}

// SeedCountries loads country centroids from a Natural Earth admin-0
// GeoJSON file. Existing rows win; returns the number inserted.
func (g *Gazetteer) SeedCountries(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read countries file: %w", err)
	}
	var doc countryCollection
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("parse countries file: %w", err)
	}

	inserted := 0
	err = g.st.WithLock(func(db *sql.DB) error {
		for _, f := range doc.Features {
			name := f.Properties.NameEN
			if name == "" {
				name = f.Properties.Name
			}
			if name == "" || len(f.BBox) != 4 {
				continue
			}
			var countryCode any
			if f.Properties.ISOA2 != "" && f.Properties.ISOA2 != "-99" {
				countryCode = f.Properties.ISOA2
			}
			lat := (f.BBox[1] + f.BBox[3]) / 2
			lon := (f.BBox[0] + f.BBox[2]) / 2

			res, err := db.ExecContext(ctx, `
				INSERT OR IGNORE INTO places(
				  name, normalized_name, kind, country_code, admin1, lat, lon, importance
				) VALUES(?, ?, 'country', ?, NULL, ?, ?, 0.6);`,
				name, NormalizePlaceName(name), countryCode, lat, lon)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n > 0 {
				inserted++
			}

			// the dataset names it "United States of America"
			if f.Properties.ISOA2 == "US" {
				res, err := db.ExecContext(ctx, `
					INSERT OR IGNORE INTO places(
					  name, normalized_name, kind, country_code, admin1, lat, lon, importance
					) VALUES('United States', ?, 'country', 'US', NULL, ?, ?, 0.6);`,
					NormalizePlaceName("United States"), lat, lon)
				if err != nil {
					return err
				}
				if n, _ := res.RowsAffected(); n > 0 {
					inserted++
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("seed countries: %w", err)
	}
	g.Invalidate()
	return inserted, nil
}

func (g *Gazetteer) loadPlaces(ctx context.Context, key, whereSQL string) ([]model.Place, error) {
	if entry, ok := g.cache.Get(key); ok && time.Since(entry.loadedAt) < cacheTTL {
		return entry.places, nil
	}

	var places []model.Place
	err := g.st.WithLock(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `
			SELECT place_id, name, normalized_name, kind, country_code, admin1, lat, lon, importance
			FROM places
			`+whereSQL+`;`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				p               model.Place
				cc, admin1      sql.NullString
				lat, lon, scale sql.NullFloat64
			)
			if err := rows.Scan(&p.PlaceID, &p.Name, &p.NormalizedName, &p.Kind, &cc, &admin1, &lat, &lon, &scale); err != nil {
				return err
			}
			p.CountryCode = cc.String
			p.Admin1 = admin1.String
			if lat.Valid {
				v := lat.Float64
				p.Lat = &v
			}
			if lon.Valid {
				v := lon.Float64
				p.Lon = &v
			}
			if scale.Valid {
				v := scale.Float64
				p.Importance = &v
			}
			places = append(places, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("load places: %w", err)
	}
	g.cache.Add(key, cachedPlaces{places: places, loadedAt: time.Now()})
	return places, nil
}

// CountryMatch is a country name found in free text.
type CountryMatch struct {
	Name        string
	CountryCode string
	Lat, Lon    float64
}

// MatchCountryInText scans text for a known country name using
// word-boundary matching on lowercased tokens.
func (g *Gazetteer) MatchCountryInText(ctx context.Context, text string) (*CountryMatch, error) {
	countries, err := g.loadPlaces(ctx, "countries",
		"WHERE kind = 'country' AND lat IS NOT NULL AND lon IS NOT NULL")
	if err != nil {
		return nil, err
	}
	tokens := wordRe.FindAllString(strings.ToLower(text), -1)
	if len(tokens) == 0 {
		return nil, nil
	}
	joined := " " + strings.Join(tokens, " ") + " "
	for _, c := range countries {
		if strings.Contains(joined, " "+c.NormalizedName+" ") {
			return &CountryMatch{
				Name:        c.Name,
				CountryCode: c.CountryCode,
				Lat:         *c.Lat,
				Lon:         *c.Lon,
			}, nil
		}
	}
	return nil, nil
}

// MatchPlaceInText finds a non-country gazetteer entry named in the
// text. A country code hint restricts candidates; a coordinates hint
// breaks ties by distance to the hint.
func (g *Gazetteer) MatchPlaceInText(ctx context.Context, text string, coordsHint *[2]float64, countryCodeHint string) (*model.Place, error) {
	places, err := g.loadPlaces(ctx, "places",
		"WHERE kind <> 'country' AND lat IS NOT NULL AND lon IS NOT NULL")
	if err != nil {
		return nil, err
	}
	tokens := wordRe.FindAllString(strings.ToLower(text), -1)
	if len(tokens) == 0 {
		return nil, nil
	}
	joined := " " + strings.Join(tokens, " ") + " "

	var best *model.Place
	bestScore := -1.0
	for i := range places {
		p := &places[i]
		if p.NormalizedName == "" || !strings.Contains(joined, " "+p.NormalizedName+" ") {
			continue
		}
		if countryCodeHint != "" && p.CountryCode != "" && p.CountryCode != countryCodeHint {
			continue
		}
		score := 0.0
		if p.Importance != nil {
			score = *p.Importance
		}
		// longer names are more specific
		score += float64(len(p.NormalizedName)) / 100
		if coordsHint != nil {
			dLat := *p.Lat - coordsHint[0]
			dLon := *p.Lon - coordsHint[1]
			score -= (dLat*dLat + dLon*dLon) / 1000
		}
		if score > bestScore {
			best = p
			bestScore = score
		}
	}
	return best, nil
}

// CountryCentroid returns the stored centroid for a country name.
func (g *Gazetteer) CountryCentroid(ctx context.Context, countryName string) (lat, lon float64, ok bool, err error) {
	norm := NormalizePlaceName(countryName)
	err = g.st.WithLock(func(db *sql.DB) error {
		var nlat, nlon sql.NullFloat64
		err := db.QueryRowContext(ctx, `
			SELECT lat, lon FROM places
			WHERE kind = 'country' AND normalized_name = ?
			LIMIT 1;`, norm).Scan(&nlat, &nlon)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		if nlat.Valid && nlon.Valid {
			lat, lon, ok = nlat.Float64, nlon.Float64, true
		}
		return nil
	})
	return lat, lon, ok, err
}

// CountryCode looks up the ISO code for a country name.
func (g *Gazetteer) CountryCode(ctx context.Context, countryName string) (string, error) {
	norm := NormalizePlaceName(countryName)
	var code string
	err := g.st.WithLock(func(db *sql.DB) error {
		var cc sql.NullString
		err := db.QueryRowContext(ctx, `
			SELECT country_code FROM places
			WHERE kind = 'country' AND normalized_name = ?
			LIMIT 1;`, norm).Scan(&cc)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		code = cc.String
		return nil
	})
	return code, err
}

// UpsertCountryPlaceTx records an authoritative country location inside
// an ingest transaction, e.g. from a travel advisory export.
func UpsertCountryPlaceTx(tx *sql.Tx, name, countryCode string, lat, lon float64) error {
	norm := NormalizePlaceName(name)
	var placeID int64
	err := tx.QueryRow(`
		SELECT place_id FROM places
		WHERE kind = 'country' AND normalized_name = ?
		LIMIT 1;`, norm).Scan(&placeID)
	if err == sql.ErrNoRows {
		var cc any
		if countryCode != "" {
			cc = countryCode
		}
		_, err = tx.Exec(`
			INSERT INTO places(name, normalized_name, kind, country_code, admin1, lat, lon, importance)
			VALUES(?, ?, 'country', ?, NULL, ?, ?, 0.6);`,
			name, norm, cc, lat, lon)
		return err
	}
	if err != nil {
		return err
	}
	var cc any
	if countryCode != "" {
		cc = countryCode
	}
	_, err = tx.Exec(`
		UPDATE places
		SET name = ?, country_code = COALESCE(?, country_code), lat = ?, lon = ?
		WHERE place_id = ?;`,
		name, cc, lat, lon, placeID)
	return err
}

// Suggest returns places whose normalized name starts with the query,
// best known first. Two chronically ambiguous names get hardcoded
// answers when the table has nothing.
func (g *Gazetteer) Suggest(ctx context.Context, q string, limit int) ([]model.Place, error) {
	norm := NormalizePlaceName(q)
	if norm == "" {
		return nil, nil
	}
	var out []model.Place
	err := g.st.WithLock(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `
			SELECT place_id, name, normalized_name, kind, country_code, admin1, lat, lon, importance
			FROM places
			WHERE normalized_name LIKE ?
			ORDER BY COALESCE(importance, 0) DESC, name ASC
			LIMIT ?;`, norm+"%", limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				p               model.Place
				cc, admin1      sql.NullString
				lat, lon, scale sql.NullFloat64
			)
			if err := rows.Scan(&p.PlaceID, &p.Name, &p.NormalizedName, &p.Kind, &cc, &admin1, &lat, &lon, &scale); err != nil {
				return err
			}
			p.CountryCode = cc.String
			p.Admin1 = admin1.String
			if lat.Valid {
				v := lat.Float64
				p.Lat = &v
			}
			if lon.Valid {
				v := lon.Float64
				p.Lon = &v
			}
			if scale.Valid {
				v := scale.Float64
				p.Importance = &v
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("suggest places: %w", err)
	}
	if len(out) > 0 {
		return out, nil
	}
	return ambiguousFallback(norm), nil
}

func ambiguousFallback(norm string) []model.Place {
	ptr := func(v float64) *float64 { return &v }
	switch norm {
	case "georgia":
		return []model.Place{
			{Name: "Georgia", NormalizedName: "georgia", Kind: "country", CountryCode: "GE",
				Lat: ptr(41.716667), Lon: ptr(44.783333), Importance: ptr(0.8)},
			{Name: "Georgia", NormalizedName: "georgia", Kind: "admin1", CountryCode: "US", Admin1: "Georgia",
				Lat: ptr(32.165622), Lon: ptr(-82.900075), Importance: ptr(0.7)},
		}
	case "congo":
		return []model.Place{
			{Name: "Republic of the Congo", NormalizedName: "republic of the congo", Kind: "country", CountryCode: "CG",
				Lat: ptr(-0.228021), Lon: ptr(15.827659), Importance: ptr(0.6)},
			{Name: "Democratic Republic of the Congo", NormalizedName: "democratic republic of the congo", Kind: "country", CountryCode: "CD",
				Lat: ptr(-4.038333), Lon: ptr(21.758664), Importance: ptr(0.6)},
		}
	}
	return nil
}
