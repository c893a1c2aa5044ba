package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SavedView is a named bundle of map filters (window, categories, bbox,
// search) stored as opaque JSON for the frontend.
type SavedView struct {
	ViewID     string `json:"view_id"`
	Name       string `json:"name"`
	ConfigJSON string `json:"config_json"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

func (s *Store) ListViews(ctx context.Context) ([]SavedView, error) {
	var out []SavedView
	err := s.WithLock(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `
			SELECT view_id, name, config_json, created_at, updated_at
			FROM saved_views
			ORDER BY name ASC;`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var v SavedView
			if err := rows.Scan(&v.ViewID, &v.Name, &v.ConfigJSON, &v.CreatedAt, &v.UpdatedAt); err != nil {
				return err
			}
			out = append(out, v)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list views: %w", err)
	}
	return out, nil
}

func (s *Store) UpsertView(ctx context.Context, v SavedView) error {
	return s.WithLock(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO saved_views(view_id, name, config_json, created_at, updated_at)
			VALUES(?, ?, ?, ?, ?)
			ON CONFLICT(view_id) DO UPDATE SET
				name = excluded.name,
				config_json = excluded.config_json,
				updated_at = excluded.updated_at;`,
			v.ViewID, v.Name, v.ConfigJSON, v.CreatedAt, v.UpdatedAt)
		if err != nil {
			return fmt.Errorf("upsert view %s: %w", v.ViewID, err)
		}
		return nil
	})
}

func (s *Store) DeleteView(ctx context.Context, viewID string) error {
	return s.WithLock(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			"DELETE FROM saved_views WHERE view_id = ?;", viewID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}
