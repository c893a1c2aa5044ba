package store

import (
	"context"
	"database/sql"
	"fmt"
)

// GetConfig reads one app_config value; ok is false when unset.
func (s *Store) GetConfig(ctx context.Context, key string) (string, bool, error) {
	var value string
	found := false
	err := s.WithLock(func(db *sql.DB) error {
		err := db.QueryRowContext(ctx,
			"SELECT value FROM app_config WHERE key = ? LIMIT 1;", key).Scan(&value)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("get config %s: %w", key, err)
	}
	return value, found, nil
}

func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	return s.WithLock(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO app_config(key, value)
			VALUES(?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value;`, key, value)
		if err != nil {
			return fmt.Errorf("set config %s: %w", key, err)
		}
		return nil
	})
}

func (s *Store) DeleteConfig(ctx context.Context, key string) error {
	return s.WithLock(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			"DELETE FROM app_config WHERE key = ?;", key)
		return err
	})
}

// PollingEnabled is true unless the operator switched polling off.
func (s *Store) PollingEnabled(ctx context.Context) (bool, error) {
	value, found, err := s.GetConfig(ctx, "polling_enabled")
	if err != nil {
		return true, err
	}
	return !found || value != "0", nil
}
