package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/evhagen/sitmon/internal/model"
)

// BBox is minlon, minlat, maxlon, maxlat.
type BBox struct {
	MinLon, MinLat, MaxLon, MaxLat float64
}

// IncidentQuery filters the incident list. When AsOf is set the list is
// reconstructed from item timestamps instead of live incident state, so
// the map can replay a past moment.
type IncidentQuery struct {
	SinceISO    string
	UntilISO    string
	AsOfISO     string
	Categories  []string
	BBox        *BBox
	Search      string
	MinSeverity *int
	Limit       int
}

func scanIncident(row interface{ Scan(...any) error }) (model.Incident, error) {
	var (
		inc            model.Incident
		geom, bbox     sql.NullString
		lat, lon       sql.NullFloat64
		tokenSignature sql.NullString
	)
	err := row.Scan(
		&inc.IncidentID, &inc.Title, &inc.Summary, &inc.Category,
		&inc.FirstSeenAt, &inc.LastSeenAt, &inc.LastItemAt,
		&inc.Status, &inc.Severity,
		&geom, &lat, &lon, &bbox, &inc.LocationConfidence, &inc.LocationRationale,
		&inc.SimHash, &tokenSignature,
		&inc.ItemCount, &inc.SourceCount,
	)
	if err != nil {
		return model.Incident{}, err
	}
	inc.GeomGeoJSON = geom.String
	inc.BBox = bbox.String
	inc.TokenSignature = tokenSignature.String
	if lat.Valid {
		v := lat.Float64
		inc.Lat = &v
	}
	if lon.Valid {
		v := lon.Float64
		inc.Lon = &v
	}
	return inc, nil
}

// QueryIncidents lists incidents matching q. Without explicit
// categories the cyber feeds are excluded; they have their own panel.
func (s *Store) QueryIncidents(ctx context.Context, q IncidentQuery) ([]model.Incident, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 300
	}

	var (
		where  []string
		params []any
	)
	if q.AsOfISO == "" {
		where = append(where, "inc.last_seen_at >= ?", "inc.last_seen_at <= ?")
		params = append(params, q.SinceISO, q.UntilISO)
	} else {
		where = append(where, "i.published_at >= ?", "i.published_at <= ?")
		params = append(params, q.SinceISO, q.AsOfISO)
	}

	if len(q.Categories) > 0 {
		where = append(where, "inc.category IN ("+placeholders(len(q.Categories))+")")
		for _, c := range q.Categories {
			params = append(params, c)
		}
	} else {
		where = append(where, "inc.category NOT IN ('cyber_cve','cyber_kev')")
	}

	if q.MinSeverity != nil {
		where = append(where, "inc.severity_score >= ?")
		params = append(params, *q.MinSeverity)
	}

	if q.BBox != nil {
		where = append(where,
			"inc.lon IS NOT NULL AND inc.lat IS NOT NULL",
			"inc.lon >= ? AND inc.lon <= ? AND inc.lat >= ? AND inc.lat <= ?")
		params = append(params, q.BBox.MinLon, q.BBox.MaxLon, q.BBox.MinLat, q.BBox.MaxLat)
	}

	joins := ""
	if q.Search != "" {
		joins = "JOIN incidents_fts fts ON fts.rowid = inc.rowid"
		where = append(where, "fts MATCH ?")
		params = append(params, q.Search)
	}

	var sqlText string
	if q.AsOfISO == "" {
		sqlText = `
			SELECT inc.incident_id, inc.title, inc.summary, inc.category,
			       inc.first_seen_at, inc.last_seen_at, inc.last_item_at,
			       inc.status, inc.severity_score,
			       inc.geom_geojson, inc.lat, inc.lon, inc.bbox,
			       inc.location_confidence, inc.location_rationale,
			       inc.incident_simhash, inc.token_signature,
			       inc.item_count, inc.source_count
			FROM incidents inc
			` + joins + `
			WHERE ` + joinAnd(where) + `
			ORDER BY inc.last_seen_at DESC, inc.source_count DESC, inc.severity_score DESC
			LIMIT ?;`
	} else {
		sqlText = `
			SELECT inc.incident_id, inc.title, inc.summary, inc.category,
			       inc.first_seen_at, MAX(i.published_at) AS last_seen_at,
			       MAX(i.published_at) AS last_item_at,
			       inc.status, inc.severity_score,
			       inc.geom_geojson, inc.lat, inc.lon, inc.bbox,
			       inc.location_confidence, inc.location_rationale,
			       inc.incident_simhash, inc.token_signature,
			       COUNT(DISTINCT i.item_id) AS item_count,
			       COUNT(DISTINCT i.source_id) AS source_count
			FROM incidents inc
			JOIN incident_items ii ON ii.incident_id = inc.incident_id
			JOIN items i ON i.item_id = ii.item_id
			` + joins + `
			WHERE ` + joinAnd(where) + `
			GROUP BY inc.incident_id
			ORDER BY last_item_at DESC, source_count DESC, inc.severity_score DESC
			LIMIT ?;`
	}
	params = append(params, limit)

	var out []model.Incident
	err := s.WithLock(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, sqlText, params...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			inc, err := scanIncident(rows)
			if err != nil {
				return err
			}
			out = append(out, inc)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	return out, nil
}

func joinAnd(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += " AND " + p
	}
	return out
}

func (s *Store) GetIncident(ctx context.Context, incidentID string) (model.Incident, error) {
	var inc model.Incident
	err := s.WithLock(func(db *sql.DB) error {
		row := db.QueryRowContext(ctx, `
			SELECT incident_id, title, summary, category,
			       first_seen_at, last_seen_at, last_item_at,
			       status, severity_score,
			       geom_geojson, lat, lon, bbox,
			       location_confidence, location_rationale,
			       incident_simhash, token_signature,
			       item_count, source_count
			FROM incidents
			WHERE incident_id = ?;`, incidentID)
		var err error
		inc, err = scanIncident(row)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return err
	})
	if err != nil {
		return model.Incident{}, err
	}
	return inc, nil
}

// CategoryCount is one row of the stats rollup.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// IncidentCountsByCategory rolls up incidents active inside the window.
func (s *Store) IncidentCountsByCategory(ctx context.Context, sinceISO, untilISO string) ([]CategoryCount, error) {
	var out []CategoryCount
	err := s.WithLock(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `
			SELECT category, COUNT(*) AS n
			FROM incidents
			WHERE last_seen_at >= ? AND last_seen_at <= ?
			GROUP BY category
			ORDER BY n DESC;`, sinceISO, untilISO)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var c CategoryCount
			if err := rows.Scan(&c.Category, &c.Count); err != nil {
				return err
			}
			out = append(out, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("incident counts: %w", err)
	}
	return out, nil
}

// TimelinePoint pairs an incident with one of its item timestamps, for
// bucketing into an activity histogram.
type TimelinePoint struct {
	IncidentID  string
	PublishedAt string
}

// IncidentTimeline returns (incident, item published_at) pairs inside
// the window, with the same category and severity filters as the list.
func (s *Store) IncidentTimeline(ctx context.Context, sinceISO, untilISO string, categories []string, minSeverity *int) ([]TimelinePoint, error) {
	where := []string{"i.published_at >= ?", "i.published_at <= ?"}
	params := []any{sinceISO, untilISO}
	if len(categories) > 0 {
		where = append(where, "inc.category IN ("+placeholders(len(categories))+")")
		for _, c := range categories {
			params = append(params, c)
		}
	} else {
		where = append(where, "inc.category NOT IN ('cyber_cve','cyber_kev')")
	}
	if minSeverity != nil {
		where = append(where, "inc.severity_score >= ?")
		params = append(params, *minSeverity)
	}

	var out []TimelinePoint
	err := s.WithLock(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `
			SELECT ii.incident_id, i.published_at
			FROM incident_items ii
			JOIN items i ON i.item_id = ii.item_id
			JOIN incidents inc ON inc.incident_id = ii.incident_id
			WHERE `+joinAnd(where)+`;`, params...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var p TimelinePoint
			if err := rows.Scan(&p.IncidentID, &p.PublishedAt); err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("incident timeline: %w", err)
	}
	return out, nil
}

// RetentionCutoffs drive one maintenance sweep.
type RetentionCutoffs struct {
	CoolingISO   string // active incidents quiet past this become cooling
	ResolvedISO  string // incidents quiet past this become resolved
	ItemsISO     string // items older than this are dropped unless still clustered
	IncidentsISO string // resolved incidents older than this are dropped
}

// RunRetention advances incident lifecycle and prunes old rows. Items
// still attached to active or cooling incidents are kept regardless of
// age.
func (s *Store) RunRetention(ctx context.Context, c RetentionCutoffs) error {
	return s.WriteTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			"UPDATE incidents SET status = 'cooling' WHERE status = 'active' AND last_seen_at < ?;",
			c.CoolingISO,
		); err != nil {
			return fmt.Errorf("retention cooling: %w", err)
		}
		if _, err := tx.Exec(
			"UPDATE incidents SET status = 'resolved' WHERE status <> 'resolved' AND last_seen_at < ?;",
			c.ResolvedISO,
		); err != nil {
			return fmt.Errorf("retention resolved: %w", err)
		}
		if _, err := tx.Exec(`
			DELETE FROM items
			WHERE published_at < ?
			  AND item_id NOT IN (
			    SELECT ii.item_id
			    FROM incident_items ii
			    JOIN incidents inc ON inc.incident_id = ii.incident_id
			    WHERE inc.status IN ('active', 'cooling')
			  );`, c.ItemsISO,
		); err != nil {
			return fmt.Errorf("retention items: %w", err)
		}
		if _, err := tx.Exec(
			"DELETE FROM incidents WHERE status = 'resolved' AND last_seen_at < ?;",
			c.IncidentsISO,
		); err != nil {
			return fmt.Errorf("retention incidents: %w", err)
		}
		return nil
	})
}
