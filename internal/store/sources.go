package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/evhagen/sitmon/internal/model"
)

const sourceColumns = `source_id, name, source_type, url, poll_interval_seconds, enabled,
	etag, last_modified,
	next_fetch_at, last_fetch_at, last_success_at, last_error_at,
	consecutive_failures, last_status_code, last_fetch_ms, last_error,
	success_count, error_count, cursor`

func scanSource(row interface{ Scan(...any) error }) (model.Source, error) {
	var (
		src                                  model.Source
		enabled                              int
		etag, lastModified                   sql.NullString
		nextFetch, lastFetch, lastOK, lastKO sql.NullString
		statusCode, fetchMS                  sql.NullInt64
		lastError, cursor                    sql.NullString
	)
	err := row.Scan(
		&src.SourceID, &src.Name, &src.SourceType, &src.URL, &src.PollIntervalSeconds, &enabled,
		&etag, &lastModified,
		&nextFetch, &lastFetch, &lastOK, &lastKO,
		&src.ConsecutiveFailures, &statusCode, &fetchMS, &lastError,
		&src.SuccessCount, &src.ErrorCount, &cursor,
	)
	if err != nil {
		return model.Source{}, err
	}
	src.Enabled = enabled != 0
	src.ETag = etag.String
	src.LastModified = lastModified.String
	src.NextFetchAt = nextFetch.String
	src.LastFetchAt = lastFetch.String
	src.LastSuccessAt = lastOK.String
	src.LastErrorAt = lastKO.String
	if statusCode.Valid {
		v := int(statusCode.Int64)
		src.LastStatusCode = &v
	}
	if fetchMS.Valid {
		v := int(fetchMS.Int64)
		src.LastFetchMS = &v
	}
	src.LastError = lastError.String
	src.Cursor = cursor.String
	return src, nil
}

// EnsureSource registers a source or refreshes its static fields,
// leaving schedule state untouched. New sources become due immediately.
func (s *Store) EnsureSource(ctx context.Context, src model.Source, nowISO string) error {
	return s.WithLock(func(db *sql.DB) error {
		enabled := 0
		if src.Enabled {
			enabled = 1
		}
		_, err := db.ExecContext(ctx, `
			INSERT INTO sources (source_id, name, source_type, url, poll_interval_seconds, enabled, next_fetch_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(source_id) DO UPDATE SET
				name = excluded.name,
				source_type = excluded.source_type,
				url = excluded.url,
				poll_interval_seconds = excluded.poll_interval_seconds;`,
			src.SourceID, src.Name, src.SourceType, src.URL, src.PollIntervalSeconds, enabled, nowISO,
		)
		if err != nil {
			return fmt.Errorf("ensure source %s: %w", src.SourceID, err)
		}
		return nil
	})
}

// DueSources returns enabled sources whose next_fetch_at has passed,
// soonest first.
func (s *Store) DueSources(ctx context.Context, nowISO string, limit int) ([]model.Source, error) {
	var out []model.Source
	err := s.WithLock(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `
			SELECT `+sourceColumns+`
			FROM sources
			WHERE enabled = 1 AND (next_fetch_at IS NULL OR next_fetch_at <= ?)
			ORDER BY next_fetch_at ASC
			LIMIT ?;`, nowISO, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			src, err := scanSource(rows)
			if err != nil {
				return err
			}
			out = append(out, src)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("due sources: %w", err)
	}
	return out, nil
}

func (s *Store) GetSource(ctx context.Context, sourceID string) (model.Source, error) {
	var src model.Source
	err := s.WithLock(func(db *sql.DB) error {
		row := db.QueryRowContext(ctx,
			"SELECT "+sourceColumns+" FROM sources WHERE source_id = ?;", sourceID)
		var err error
		src, err = scanSource(row)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return err
	})
	if err != nil {
		return model.Source{}, err
	}
	return src, nil
}

// ListSources returns all sources ordered by name.
func (s *Store) ListSources(ctx context.Context) ([]model.Source, error) {
	var out []model.Source
	err := s.WithLock(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx,
			"SELECT "+sourceColumns+" FROM sources ORDER BY name ASC;")
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			src, err := scanSource(rows)
			if err != nil {
				return err
			}
			out = append(out, src)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return out, nil
}

// SourceIDsWithPrefix lists source ids beginning with prefix, enabled or not.
func (s *Store) SourceIDsWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	err := s.WithLock(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx,
			"SELECT source_id FROM sources WHERE source_id LIKE ? ESCAPE '\\';",
			escapeLike(prefix)+"%")
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			out = append(out, id)
		}
		return rows.Err()
	})
	return out, err
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}

func (s *Store) SetSourceEnabled(ctx context.Context, sourceID string, enabled bool) error {
	return s.WithLock(func(db *sql.DB) error {
		v := 0
		if enabled {
			v = 1
		}
		_, err := db.ExecContext(ctx,
			"UPDATE sources SET enabled = ? WHERE source_id = ?;", v, sourceID)
		return err
	})
}

// SetSourcesEnabled flips a batch of sources in one statement.
func (s *Store) SetSourcesEnabled(ctx context.Context, sourceIDs []string, enabled bool) error {
	if len(sourceIDs) == 0 {
		return nil
	}
	return s.WithLock(func(db *sql.DB) error {
		v := 0
		if enabled {
			v = 1
		}
		args := make([]any, 0, len(sourceIDs)+1)
		args = append(args, v)
		for _, id := range sourceIDs {
			args = append(args, id)
		}
		_, err := db.ExecContext(ctx,
			"UPDATE sources SET enabled = ? WHERE source_id IN ("+placeholders(len(sourceIDs))+");",
			args...)
		return err
	})
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// SetSourceCursor persists an opaque resume position, e.g. the highest
// timeline id already ingested.
func (s *Store) SetSourceCursor(ctx context.Context, sourceID, cursor string) error {
	return s.WithLock(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			"UPDATE sources SET cursor = ? WHERE source_id = ?;", cursor, sourceID)
		return err
	})
}

// SetNextFetchAt overrides the schedule, used for Retry-After and for
// sources that tighten their own cadence.
func (s *Store) SetNextFetchAt(ctx context.Context, sourceID, atISO string) error {
	return s.WithLock(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			"UPDATE sources SET next_fetch_at = ? WHERE source_id = ?;", atISO, sourceID)
		return err
	})
}

// CountEnabledSources reports how many of the given ids are enabled.
func (s *Store) CountEnabledSources(ctx context.Context, sourceIDs []string) (int, error) {
	if len(sourceIDs) == 0 {
		return 0, nil
	}
	var n int
	err := s.WithLock(func(db *sql.DB) error {
		args := make([]any, len(sourceIDs))
		for i, id := range sourceIDs {
			args[i] = id
		}
		return db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM sources WHERE source_id IN ("+placeholders(len(sourceIDs))+") AND enabled = 1;",
			args...).Scan(&n)
	})
	return n, err
}
