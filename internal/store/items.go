package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/evhagen/sitmon/internal/model"
)

// ErrDuplicate is returned when an insert hits the url or
// (source_id, external_id) unique index. Duplicates are expected
// during polling and are not failures.
var ErrDuplicate = errors.New("store: duplicate item")

func isUniqueConstraint(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

const itemColumns = `item_id, source_id, source_type, external_id, url, title, summary, content,
	published_at, updated_at, fetched_at, category, tags,
	geom_geojson, lat, lon, location_name, location_confidence, location_rationale,
	raw, hash_title, hash_content, simhash`

func scanItem(row interface{ Scan(...any) error }) (model.Item, error) {
	var (
		it                           model.Item
		externalID, content, updated sql.NullString
		geom, locName                sql.NullString
		lat, lon                     sql.NullFloat64
		tagsJSON, rawJSON            string
	)
	err := row.Scan(
		&it.ItemID, &it.SourceID, &it.SourceType, &externalID, &it.URL, &it.Title, &it.Summary, &content,
		&it.PublishedAt, &updated, &it.FetchedAt, &it.Category, &tagsJSON,
		&geom, &lat, &lon, &locName, &it.LocationConfidence, &it.LocationRationale,
		&rawJSON, &it.HashTitle, &it.HashContent, &it.SimHash,
	)
	if err != nil {
		return model.Item{}, err
	}
	it.ExternalID = externalID.String
	it.Content = content.String
	it.UpdatedAt = updated.String
	it.GeomGeoJSON = geom.String
	it.LocationName = locName.String
	if lat.Valid {
		v := lat.Float64
		it.Lat = &v
	}
	if lon.Valid {
		v := lon.Float64
		it.Lon = &v
	}
	it.Tags = []string{}
	_ = json.Unmarshal([]byte(tagsJSON), &it.Tags)
	_ = json.Unmarshal([]byte(rawJSON), &it.Raw)
	return it, nil
}

// ItemExistsByExternalIDTx reports whether the source already carries a
// record with this provider-assigned id.
func ItemExistsByExternalIDTx(tx *sql.Tx, sourceID, externalID string) (bool, error) {
	var one int
	err := tx.QueryRow(`
		SELECT 1 FROM items
		WHERE source_id = ? AND external_id = ?
		LIMIT 1;`, sourceID, externalID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// ItemExistsByTitleHashTx reports whether the source published a record
// with the same normalized title on or after sinceISO.
func ItemExistsByTitleHashTx(tx *sql.Tx, sourceID, hashTitle, sinceISO string) (bool, error) {
	var one int
	err := tx.QueryRow(`
		SELECT 1 FROM items
		WHERE source_id = ? AND hash_title = ? AND published_at >= ?
		LIMIT 1;`, sourceID, hashTitle, sinceISO).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// InsertItemTx inserts a normalized record. Unique index violations
// come back as ErrDuplicate.
func InsertItemTx(tx *sql.Tx, it model.Item) error {
	tags := it.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	raw := it.Raw
	if raw == nil {
		raw = map[string]any{}
	}
	rawJSON, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshal raw: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO items (
		  item_id, source_id, source_type, external_id, url, title, summary, content,
		  published_at, updated_at, fetched_at, category, tags,
		  geom_geojson, lat, lon, location_name, location_confidence, location_rationale,
		  raw, hash_title, hash_content, simhash
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		it.ItemID, it.SourceID, it.SourceType, nullStr(it.ExternalID), it.URL, it.Title, it.Summary, nullStr(it.Content),
		it.PublishedAt, nullStr(it.UpdatedAt), it.FetchedAt, it.Category, string(tagsJSON),
		nullStr(it.GeomGeoJSON), it.Lat, it.Lon, nullStr(it.LocationName), it.LocationConfidence, it.LocationRationale,
		string(rawJSON), it.HashTitle, it.HashContent, it.SimHash,
	)
	if isUniqueConstraint(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert item %s: %w", it.ItemID, err)
	}
	return nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *Store) GetItem(ctx context.Context, itemID string) (model.Item, error) {
	var it model.Item
	err := s.WithLock(func(db *sql.DB) error {
		row := db.QueryRowContext(ctx,
			"SELECT "+itemColumns+" FROM items WHERE item_id = ?;", itemID)
		var err error
		it, err = scanItem(row)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return err
	})
	if err != nil {
		return model.Item{}, err
	}
	return it, nil
}

// LatestItems returns the newest records across all sources.
func (s *Store) LatestItems(ctx context.Context, limit int) ([]model.Item, error) {
	var out []model.Item
	err := s.WithLock(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `
			SELECT `+itemColumns+`
			FROM items
			ORDER BY published_at DESC
			LIMIT ?;`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			it, err := scanItem(rows)
			if err != nil {
				return err
			}
			out = append(out, it)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("latest items: %w", err)
	}
	return out, nil
}

// ItemsForIncident returns an incident's records, newest first.
func (s *Store) ItemsForIncident(ctx context.Context, incidentID string, limit int) ([]model.Item, error) {
	var out []model.Item
	err := s.WithLock(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `
			SELECT `+qualify(itemColumns, "i")+`
			FROM incident_items ii
			JOIN items i ON i.item_id = ii.item_id
			WHERE ii.incident_id = ?
			ORDER BY i.published_at DESC
			LIMIT ?;`, incidentID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			it, err := scanItem(rows)
			if err != nil {
				return err
			}
			out = append(out, it)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("items for incident %s: %w", incidentID, err)
	}
	return out, nil
}

func qualify(columns, alias string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
