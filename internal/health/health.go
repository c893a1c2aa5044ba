// Package health tracks per-source fetch outcomes and the exponential
// backoff schedule for failing sources.
package health

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/evhagen/sitmon/internal/store"
	"github.com/evhagen/sitmon/internal/timeiso"
)

const maxBackoffSeconds = 60 * 60

// BackoffSeconds doubles the poll interval per consecutive failure,
// capped at one hour. Zero failures means the normal cadence.
func BackoffSeconds(pollIntervalSeconds, consecutiveFailures int) int {
	if consecutiveFailures <= 0 {
		return pollIntervalSeconds
	}
	backoff := pollIntervalSeconds
	for i := 0; i < consecutiveFailures; i++ {
		backoff *= 2
		if backoff >= maxBackoffSeconds {
			return maxBackoffSeconds
		}
	}
	return backoff
}

// Success describes one completed fetch. ETag and LastModified replace
// the stored validators; pass the previous values to keep them.
type Success struct {
	StatusCode         int
	FetchMS            int
	ETag               string
	LastModified       string
	NextFetchInSeconds int
}

// RecordSuccess clears the failure streak and schedules the next fetch.
func RecordSuccess(ctx context.Context, st *store.Store, sourceID string, s Success) error {
	now := time.Now()
	nowISO := timeiso.Format(now)
	nextISO := timeiso.Format(now.Add(time.Duration(s.NextFetchInSeconds) * time.Second))
	err := st.WithLock(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			UPDATE sources
			SET last_fetch_at = ?,
			    last_success_at = ?,
			    last_status_code = ?,
			    last_fetch_ms = ?,
			    consecutive_failures = 0,
			    last_error = NULL,
			    last_error_at = NULL,
			    success_count = success_count + 1,
			    etag = ?,
			    last_modified = ?,
			    next_fetch_at = ?
			WHERE source_id = ?;`,
			nowISO, nowISO, s.StatusCode, s.FetchMS,
			nullable(s.ETag), nullable(s.LastModified), nextISO, sourceID)
		return err
	})
	if err != nil {
		return fmt.Errorf("record success %s: %w", sourceID, err)
	}
	return nil
}

// Failure describes one failed fetch. StatusCode and FetchMS are nil
// when the request never completed.
type Failure struct {
	StatusCode *int
	FetchMS    *int
	Error      string
}

// RecordError bumps the failure streak and pushes next_fetch_at out by
// the backoff. It returns the backoff applied, in seconds.
func RecordError(ctx context.Context, st *store.Store, sourceID string, f Failure) (int, error) {
	nowISO := timeiso.Now()
	backoff := 300
	err := st.WithLock(func(db *sql.DB) error {
		var pollSeconds, failures int
		err := db.QueryRowContext(ctx,
			"SELECT poll_interval_seconds, consecutive_failures FROM sources WHERE source_id = ?;",
			sourceID).Scan(&pollSeconds, &failures)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		failures++
		backoff = BackoffSeconds(pollSeconds, failures)
		nextISO := timeiso.Format(time.Now().Add(time.Duration(backoff) * time.Second))

		_, err = db.ExecContext(ctx, `
			UPDATE sources
			SET last_fetch_at = ?,
			    last_error_at = ?,
			    last_status_code = COALESCE(?, last_status_code),
			    last_fetch_ms = COALESCE(?, last_fetch_ms),
			    consecutive_failures = ?,
			    last_error = ?,
			    error_count = error_count + 1,
			    next_fetch_at = ?
			WHERE source_id = ?;`,
			nowISO, nowISO, f.StatusCode, f.FetchMS, failures, f.Error, nextISO, sourceID)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("record error %s: %w", sourceID, err)
	}
	return backoff, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
