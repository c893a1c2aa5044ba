// Package cluster groups items into incidents. Assignment runs per
// inserted item: a SimHash bucket prefilter narrows candidates, strict
// or loose Hamming distance (backed by token Jaccard) picks a match,
// and a post-update pass merges incidents that drifted together.
package cluster

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/evhagen/sitmon/internal/geo"
	"github.com/evhagen/sitmon/internal/model"
	"github.com/evhagen/sitmon/internal/store"
	"github.com/evhagen/sitmon/internal/textsig"
	"github.com/evhagen/sitmon/internal/timeiso"
)

// Result is the incident-level outcome of assigning one item.
type Result struct {
	IncidentID string
	EventType  string
	Payload    map[string]any
}

type Clusterer struct {
	st *store.Store
}

func New(st *store.Store) *Clusterer {
	return &Clusterer{st: st}
}

// matchThresholds are the per-category Hamming limits: a strict limit
// that matches outright and a loose one that needs Jaccard support.
func matchThresholds(category string) (strict, loose int, jaccardMin float64) {
	switch category {
	case model.CategoryNews:
		return 4, 10, 0.6
	case model.CategoryEarthquake, model.CategoryVolcano, model.CategoryTsunami:
		return 8, 14, 0.4
	default:
		return 6, 12, 0.45
	}
}

// mergeParams bound the post-update merge: centroid distance, SimHash
// distance and how far back candidates may reach.
func mergeParams(category string) (maxKm float64, maxDist, lookbackHours int) {
	switch category {
	case model.CategoryNews:
		return 40, 2, 24
	case model.CategoryEarthquake, model.CategoryVolcano:
		return 120, 4, 72
	case model.CategoryWildfire:
		return 50, 3, 48
	case model.CategoryTsunami:
		return 2500, 4, 72
	case model.CategoryAviation:
		return 30, 3, 24
	case model.CategoryWeatherAlert:
		return 120, 3, 48
	case model.CategoryTropicalCyclone:
		return 500, 3, 72
	default:
		return 150, 3, 48
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SeverityScore maps a category and its raw payload onto 0..100.
func SeverityScore(category string, raw map[string]any) int {
	switch category {
	case model.CategoryEarthquake:
		if mag, ok := rawFloat(raw["mag"]); ok {
			return clamp(int(math.Round((mag-3.0)*20.0)), 0, 100)
		}
		return 40
	case model.CategoryWeatherAlert:
		switch raw["severity"] {
		case "Extreme":
			return 95
		case "Severe":
			return 80
		case "Moderate":
			return 55
		case "Minor":
			return 35
		}
		return 50
	case model.CategoryTropicalCyclone:
		return 75
	case model.CategoryTravelAdvisory:
		switch raw["advice_level"] {
		case "do_not_travel":
			return 85
		case "reconsider_your_need_to_travel":
			return 65
		}
		return 50
	case model.CategoryTsunami:
		return 90
	case model.CategoryVolcano:
		if lvl, ok := rawFloat(raw["severity_level_1_5"]); ok && lvl > 0 {
			return clamp(int(lvl)*20, 0, 100)
		}
		return 70
	case model.CategoryWildfire:
		if frp, ok := rawFloat(raw["frp"]); ok {
			return clamp(int(math.Round(frp*3.0)), 0, 100)
		}
		return 55
	case model.CategoryAviation:
		switch raw["severity_kind"] {
		case "closure":
			return 90
		case "ground_stop":
			return 80
		case "gdp":
			return 65
		}
		if avg, ok := rawFloat(raw["avg_delay_min"]); ok {
			return clamp(int(avg), 40, 80)
		}
		return 50
	case model.CategoryHealthAdvisory:
		return 55
	case model.CategoryCyberKEV:
		return 75
	case model.CategoryCyberCVE:
		return 60
	case model.CategoryDisaster:
		return 60
	default:
		return 40
	}
}

func rawFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(t), "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

// incidentSummary reshapes the incident summary from the newest item.
// Title-bearing categories keep the title; prose categories prefer the
// item summary.
func incidentSummary(category, itemTitle, itemSummary string) string {
	switch category {
	case model.CategoryEarthquake, model.CategoryTropicalCyclone,
		model.CategoryTravelAdvisory, model.CategoryCyberCVE, model.CategoryCyberKEV:
		return itemTitle
	case model.CategoryWeatherAlert:
		if itemSummary != "" {
			return itemSummary
		}
		return itemTitle
	default:
		if itemSummary != "" {
			return itemSummary
		}
		return itemTitle
	}
}

type clusterItem struct {
	itemID      string
	sourceID    string
	title       string
	summary     string
	category    string
	publishedAt string
	lat, lon    sql.NullFloat64
	geom        sql.NullString
	conf        string
	rationale   string
	rawJSON     string
	simhash     int64
}

type candidate struct {
	incidentID string
	title      string
	summary    string
	simhash    int64
	lat, lon   sql.NullFloat64
}

// Assign clusters one inserted item, creating or updating an incident
// inside a single transaction.
func (c *Clusterer) Assign(ctx context.Context, itemID string) (Result, error) {
	var res Result
	err := c.st.WriteTx(ctx, func(tx *sql.Tx) error {
		var err error
		res, err = assignTx(tx, itemID, time.Now())
		return err
	})
	return res, err
}

func assignTx(tx *sql.Tx, itemID string, now time.Time) (Result, error) {
	nowISO := timeiso.Format(now)

	var it clusterItem
	err := tx.QueryRow(`
		SELECT item_id, source_id, title, summary, category, published_at,
		       lat, lon, geom_geojson, location_confidence, location_rationale, raw, simhash
		FROM items
		WHERE item_id = ?;`, itemID).Scan(
		&it.itemID, &it.sourceID, &it.title, &it.summary, &it.category, &it.publishedAt,
		&it.lat, &it.lon, &it.geom, &it.conf, &it.rationale, &it.rawJSON, &it.simhash,
	)
	if err == sql.ErrNoRows {
		return Result{}, fmt.Errorf("cluster: item not found: %s", itemID)
	}
	if err != nil {
		return Result{}, fmt.Errorf("cluster: load item: %w", err)
	}

	itemSim := textsig.StoredToSimHash(it.simhash)
	bucket := int64(textsig.Bucket(itemSim))

	lookback := 48 * time.Hour
	if it.category == model.CategoryNews {
		lookback = 24 * time.Hour
	}
	cutoffISO := timeiso.Format(now.Add(-lookback))

	rows, err := tx.Query(`
		SELECT incident_id, title, summary, incident_simhash, lat, lon
		FROM incidents
		WHERE category = ?
		  AND last_seen_at >= ?
		  AND ((incident_simhash >> 48) & 65535) = ?
		ORDER BY last_seen_at DESC
		LIMIT 200;`, it.category, cutoffISO, bucket)
	if err != nil {
		return Result{}, fmt.Errorf("cluster: candidates: %w", err)
	}
	var best *candidate
	bestDistance := 10000
	for rows.Next() {
		var cand candidate
		if err := rows.Scan(&cand.incidentID, &cand.title, &cand.summary, &cand.simhash, &cand.lat, &cand.lon); err != nil {
			rows.Close()
			return Result{}, fmt.Errorf("cluster: scan candidate: %w", err)
		}
		dist := textsig.HammingDistance(itemSim, textsig.StoredToSimHash(cand.simhash))
		if dist < bestDistance {
			cand := cand
			best = &cand
			bestDistance = dist
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("cluster: candidates: %w", err)
	}

	strict, loose, jaccardMin := matchThresholds(it.category)
	matchedID := ""
	if best != nil && bestDistance <= strict {
		matchedID = best.incidentID
	} else if best != nil && bestDistance <= loose {
		sim := textsig.TokenJaccard(it.title+" "+it.summary, best.title+" "+best.summary)
		if sim >= jaccardMin {
			matchedID = best.incidentID
		}
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(it.rawJSON), &raw); err != nil {
		raw = map[string]any{}
	}
	itemScore := SeverityScore(it.category, raw)

	var itemBBox *geo.BBox
	if it.geom.Valid {
		if bbox, ok := geo.BBoxFromGeoJSON(it.geom.String); ok {
			itemBBox = &bbox
		}
	}

	if matchedID == "" {
		return createIncident(tx, it, itemBBox, itemScore, nowISO)
	}
	return updateIncident(tx, it, matchedID, itemBBox, itemScore, now, nowISO)
}

func createIncident(tx *sql.Tx, it clusterItem, itemBBox *geo.BBox, itemScore int, nowISO string) (Result, error) {
	incidentID := uuid.NewString()
	summary := incidentSummary(it.category, it.title, it.summary)
	tokenSig := textsig.TokenSignature(summary, 6)

	var bboxOut sql.NullString
	latOut, lonOut := it.lat, it.lon
	if itemBBox != nil {
		bboxOut = sql.NullString{String: itemBBox.String(), Valid: true}
		lat, lon := itemBBox.Centroid()
		latOut = sql.NullFloat64{Float64: lat, Valid: true}
		lonOut = sql.NullFloat64{Float64: lon, Valid: true}
	}

	_, err := tx.Exec(`
		INSERT INTO incidents(
		  incident_id, title, summary, category, first_seen_at, last_seen_at, last_item_at,
		  status, severity_score, geom_geojson, lat, lon, bbox,
		  location_confidence, location_rationale, incident_simhash, token_signature,
		  item_count, source_count
		)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, 1);`,
		incidentID, it.title, summary, it.category, nowISO, nowISO, it.publishedAt,
		model.StatusActive, itemScore, it.geom, latOut, lonOut, bboxOut,
		it.conf, it.rationale, it.simhash, nullIfEmpty(tokenSig),
	)
	if err != nil {
		return Result{}, fmt.Errorf("cluster: insert incident: %w", err)
	}
	if _, err := tx.Exec(
		"INSERT INTO incident_items(incident_id, item_id) VALUES(?, ?);",
		incidentID, it.itemID,
	); err != nil {
		return Result{}, fmt.Errorf("cluster: link item: %w", err)
	}

	return Result{
		IncidentID: incidentID,
		EventType:  "incident.created",
		Payload: map[string]any{
			"type":           "incident.created",
			"incident_id":    incidentID,
			"title":          it.title,
			"summary":        summary,
			"last_seen_at":   nowISO,
			"category":       it.category,
			"lat":            nullableFloat(latOut),
			"lon":            nullableFloat(lonOut),
			"severity_score": itemScore,
			"source_count":   1,
			"item_count":     1,
		},
	}, nil
}

func updateIncident(tx *sql.Tx, it clusterItem, incidentID string, itemBBox *geo.BBox, itemScore int, now time.Time, nowISO string) (Result, error) {
	if _, err := tx.Exec(
		"INSERT OR IGNORE INTO incident_items(incident_id, item_id) VALUES(?, ?);",
		incidentID, it.itemID,
	); err != nil {
		return Result{}, fmt.Errorf("cluster: link item: %w", err)
	}

	var (
		incTitle, incConf, incRationale string
		incSummary, lastItemAt          string
		severity                        int
		geom, bbox                      sql.NullString
		lat, lon                        sql.NullFloat64
	)
	err := tx.QueryRow(`
		SELECT title, summary, last_item_at, severity_score,
		       geom_geojson, lat, lon, bbox, location_confidence, location_rationale
		FROM incidents
		WHERE incident_id = ?;`, incidentID).Scan(
		&incTitle, &incSummary, &lastItemAt, &severity,
		&geom, &lat, &lon, &bbox, &incConf, &incRationale,
	)
	if err != nil {
		return Result{}, fmt.Errorf("cluster: load incident: %w", err)
	}

	summary := incidentSummary(it.category, it.title, it.summary)
	tokenSig := textsig.TokenSignature(summary, 6)
	incidentSim := textsig.SimHash64(incTitle + " " + summary)

	lastItemOut := lastItemAt
	existing := timeiso.ParseOr(lastItemAt, now)
	itemTime := timeiso.ParseOr(it.publishedAt, now)
	if itemTime.After(existing) {
		lastItemOut = timeiso.Format(itemTime)
	}

	geomOut, latOut, lonOut, bboxOut := geom, lat, lon, bbox
	confOut, rationaleOut := incConf, incRationale
	if model.LocationRank(it.conf) > model.LocationRank(incConf) {
		geomOut = it.geom
		confOut = it.conf
		rationaleOut = it.rationale
		latOut, lonOut = it.lat, it.lon
		if itemBBox != nil {
			bboxOut = sql.NullString{String: itemBBox.String(), Valid: true}
			clat, clon := itemBBox.Centroid()
			latOut = sql.NullFloat64{Float64: clat, Valid: true}
			lonOut = sql.NullFloat64{Float64: clon, Valid: true}
		}
	}

	if itemBBox != nil && bboxOut.Valid {
		if current, err := geo.ParseBBox(bboxOut.String); err == nil {
			merged := current.Union(*itemBBox)
			bboxOut = sql.NullString{String: merged.String(), Valid: true}
			clat, clon := merged.Centroid()
			latOut = sql.NullFloat64{Float64: clat, Valid: true}
			lonOut = sql.NullFloat64{Float64: clon, Valid: true}
		}
	}

	if itemScore > severity {
		severity = itemScore
	}

	if _, err := tx.Exec(`
		UPDATE incidents
		SET summary = ?,
		    last_seen_at = ?,
		    last_item_at = ?,
		    severity_score = ?,
		    geom_geojson = ?,
		    lat = ?,
		    lon = ?,
		    bbox = ?,
		    location_confidence = ?,
		    location_rationale = ?,
		    incident_simhash = ?,
		    token_signature = ?
		WHERE incident_id = ?;`,
		summary, nowISO, lastItemOut, severity, geomOut, latOut, lonOut, bboxOut,
		confOut, rationaleOut, textsig.SimHashToStored(incidentSim), nullIfEmpty(tokenSig),
		incidentID,
	); err != nil {
		return Result{}, fmt.Errorf("cluster: update incident: %w", err)
	}

	itemCount, sourceCount, err := recountIncident(tx, incidentID)
	if err != nil {
		return Result{}, err
	}

	if it.category == model.CategoryWildfire {
		bonus := itemCount / 10
		if bonus > 20 {
			bonus = 20
		}
		severity = clamp(severity+bonus, 0, 100)
		if _, err := tx.Exec(
			"UPDATE incidents SET severity_score = ? WHERE incident_id = ?;",
			severity, incidentID,
		); err != nil {
			return Result{}, fmt.Errorf("cluster: wildfire bonus: %w", err)
		}
	}

	if err := maybeMerge(tx, incidentID, now); err != nil {
		return Result{}, err
	}

	return Result{
		IncidentID: incidentID,
		EventType:  "incident.updated",
		Payload: map[string]any{
			"type":           "incident.updated",
			"incident_id":    incidentID,
			"title":          incTitle,
			"summary":        summary,
			"last_seen_at":   nowISO,
			"category":       it.category,
			"lat":            nullableFloat(latOut),
			"lon":            nullableFloat(lonOut),
			"severity_score": severity,
			"source_count":   sourceCount,
			"item_count":     itemCount,
		},
	}, nil
}

// maybeMerge folds nearby same-category incidents into the updated
// one: the loser's items reparent and the loser is deleted.
func maybeMerge(tx *sql.Tx, incidentID string, now time.Time) error {
	var (
		category string
		simhash  int64
		lat, lon sql.NullFloat64
	)
	err := tx.QueryRow(`
		SELECT category, incident_simhash, lat, lon
		FROM incidents
		WHERE incident_id = ?;`, incidentID).Scan(&category, &simhash, &lat, &lon)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cluster: merge lookup: %w", err)
	}
	if !lat.Valid || !lon.Valid {
		return nil
	}

	maxKm, maxDist, lookbackHours := mergeParams(category)
	cutoffISO := timeiso.Format(now.Add(-time.Duration(lookbackHours) * time.Hour))
	simU := textsig.StoredToSimHash(simhash)
	bucket := int64(textsig.Bucket(simU))

	rows, err := tx.Query(`
		SELECT incident_id, incident_simhash, lat, lon
		FROM incidents
		WHERE category = ?
		  AND incident_id <> ?
		  AND last_seen_at >= ?
		  AND ((incident_simhash >> 48) & 65535) = ?
		LIMIT 50;`, category, incidentID, cutoffISO, bucket)
	if err != nil {
		return fmt.Errorf("cluster: merge candidates: %w", err)
	}
	var others []candidate
	for rows.Next() {
		var cand candidate
		if err := rows.Scan(&cand.incidentID, &cand.simhash, &cand.lat, &cand.lon); err != nil {
			rows.Close()
			return fmt.Errorf("cluster: scan merge candidate: %w", err)
		}
		others = append(others, cand)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("cluster: merge candidates: %w", err)
	}

	for _, other := range others {
		if !other.lat.Valid || !other.lon.Valid {
			continue
		}
		if geo.HaversineKm(lat.Float64, lon.Float64, other.lat.Float64, other.lon.Float64) > maxKm {
			continue
		}
		if textsig.HammingDistance(simU, textsig.StoredToSimHash(other.simhash)) > maxDist {
			continue
		}

		if _, err := tx.Exec(`
			INSERT OR IGNORE INTO incident_items(incident_id, item_id)
			SELECT ?, item_id FROM incident_items WHERE incident_id = ?;`,
			incidentID, other.incidentID,
		); err != nil {
			return fmt.Errorf("cluster: reparent items: %w", err)
		}
		if _, err := tx.Exec(
			"DELETE FROM incidents WHERE incident_id = ?;", other.incidentID,
		); err != nil {
			return fmt.Errorf("cluster: delete merged incident: %w", err)
		}
		if _, _, err := recountIncident(tx, incidentID); err != nil {
			return err
		}
	}
	return nil
}

func recountIncident(tx *sql.Tx, incidentID string) (itemCount, sourceCount int, err error) {
	err = tx.QueryRow(`
		SELECT COUNT(*), COUNT(DISTINCT i.source_id)
		FROM incident_items ii
		JOIN items i ON i.item_id = ii.item_id
		WHERE ii.incident_id = ?;`, incidentID).Scan(&itemCount, &sourceCount)
	if err != nil {
		return 0, 0, fmt.Errorf("cluster: recount: %w", err)
	}
	if _, err := tx.Exec(
		"UPDATE incidents SET item_count = ?, source_count = ? WHERE incident_id = ?;",
		itemCount, sourceCount, incidentID,
	); err != nil {
		return 0, 0, fmt.Errorf("cluster: store counts: %w", err)
	}
	return itemCount, sourceCount, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableFloat(v sql.NullFloat64) any {
	if !v.Valid {
		return nil
	}
	return v.Float64
}
