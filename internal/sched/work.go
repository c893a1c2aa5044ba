package sched

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/evhagen/sitmon/internal/dedupe"
	"github.com/evhagen/sitmon/internal/fetch"
	"github.com/evhagen/sitmon/internal/gazetteer"
	"github.com/evhagen/sitmon/internal/health"
	"github.com/evhagen/sitmon/internal/model"
	"github.com/evhagen/sitmon/internal/observability"
	"github.com/evhagen/sitmon/internal/store"
	"github.com/evhagen/sitmon/internal/timeiso"
)

// runOne performs one complete fetch cycle for a source: resolve the
// URL, fetch with validators, decode, store new items and cluster them.
func (s *Scheduler) runOne(ctx context.Context, src model.Source) {
	p, ok := s.plugin(src.SourceID)
	if !ok {
		p, ok = s.reviveDynamic(src)
	}
	if !ok {
		s.log.Warn().Str("source_id", src.SourceID).Msg("no plugin for source, deferring")
		next := timeiso.Format(time.Now().Add(time.Duration(src.PollIntervalSeconds) * time.Second))
		if err := s.st.SetNextFetchAt(ctx, src.SourceID, next); err != nil {
			s.log.Error().Err(err).Str("source_id", src.SourceID).Msg("defer failed")
		}
		return
	}

	fetchedAt := timeiso.Now()
	fetchURL := src.URL
	if p.BuildURL != nil {
		u, err := p.BuildURL(ctx, s.st, src)
		if err != nil {
			s.log.Error().Err(err).Str("source_id", src.SourceID).Msg("build url failed")
			s.fail(ctx, src, nil, nil, "build_url_error", "build_url_error", 0)
			return
		}
		fetchURL = u
	}

	headers := make(map[string]string, len(p.Headers)+1)
	for k, v := range p.Headers {
		headers[k] = v
	}
	if src.SourceID == "bluesky_search_breaking" {
		token, outcome := s.blueskySession(ctx)
		if outcome != "" {
			s.fail(ctx, src, nil, nil, outcome, "auth_error", 0)
			return
		}
		headers["Authorization"] = "Bearer " + token
	}

	res, err := s.client.Get(ctx, fetchURL, src.ETag, src.LastModified, headers)
	if err != nil {
		outcome := "request_error"
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			outcome = "timeout"
		}
		s.log.Warn().Err(err).Str("source_id", src.SourceID).Msg("fetch failed")
		s.fail(ctx, src, nil, nil, outcome, outcome, 0)
		return
	}
	seconds := float64(res.ElapsedMS) / 1000
	code := res.StatusCode

	switch {
	case code == 304:
		next := nextFetchSeconds(p, res, 0, false)
		err := health.RecordSuccess(ctx, s.st, src.SourceID, health.Success{
			StatusCode:         code,
			FetchMS:            res.ElapsedMS,
			ETag:               firstNonBlank(res.ETag, src.ETag),
			LastModified:       firstNonBlank(res.LastModified, src.LastModified),
			NextFetchInSeconds: next,
		})
		if err != nil {
			s.log.Error().Err(err).Str("source_id", src.SourceID).Msg("record 304 failed")
		}
		observability.ObserveFetch(src.SourceID, "not_modified", seconds)
		s.publish("source.health", map[string]any{"source_id": src.SourceID, "status": 304})
		return

	case code == 429:
		backoff := s.fail(ctx, src, &code, &res.ElapsedMS, "http_429", "http_error", seconds)
		if retry, ok := fetch.RetryAfterSeconds(res.RetryAfter); ok && retry > backoff {
			next := timeiso.Format(time.Now().Add(time.Duration(retry) * time.Second))
			if err := s.st.SetNextFetchAt(ctx, src.SourceID, next); err != nil {
				s.log.Error().Err(err).Str("source_id", src.SourceID).Msg("retry-after reschedule failed")
			}
		}
		return

	case code != 200:
		s.fail(ctx, src, &code, &res.ElapsedMS, fmt.Sprintf("http_%d", code), "http_error", seconds)
		return
	}

	items, err := p.Decode(res.Body, fetchedAt)
	if err != nil {
		s.log.Warn().Err(err).Str("source_id", src.SourceID).Msg("decode failed")
		s.fail(ctx, src, &code, &res.ElapsedMS, "parse_error", "parse_error", seconds)
		return
	}

	if src.SourceID == "hans_elevated_volcanoes" {
		s.expandHANSVolcanoes(ctx, items)
	}

	next := nextFetchSeconds(p, res, len(items), strings.HasPrefix(src.SourceID, "tsunami_"))
	err = health.RecordSuccess(ctx, s.st, src.SourceID, health.Success{
		StatusCode:         code,
		FetchMS:            res.ElapsedMS,
		ETag:               res.ETag,
		LastModified:       res.LastModified,
		NextFetchInSeconds: next,
	})
	if err != nil {
		s.log.Error().Err(err).Str("source_id", src.SourceID).Msg("record success failed")
	}
	observability.ObserveFetch(src.SourceID, "ok", seconds)

	inserted, err := s.ingest(ctx, src, items)
	if err != nil {
		s.log.Error().Err(err).Str("source_id", src.SourceID).Msg("ingest failed")
		return
	}

	for _, it := range inserted {
		result, err := s.clusterer.Assign(ctx, it.ItemID)
		if err != nil {
			s.log.Error().Err(err).Str("item_id", it.ItemID).Msg("cluster assign failed")
			continue
		}
		observability.IncIncidentEvent(result.EventType)
		s.publish(result.EventType, result.Payload)
	}

	s.log.Debug().
		Str("source_id", src.SourceID).
		Int("records", len(items)).
		Int("new_items", len(inserted)).
		Msg("fetch complete")
	s.publish("source.health", map[string]any{
		"source_id": src.SourceID,
		"status":    200,
		"new_items": len(inserted),
	})
}

// nextFetchSeconds honors upstream Cache-Control, except for tsunami
// feeds which tighten to 90s while events are live.
func nextFetchSeconds(p Plugin, res fetch.Result, records int, tsunami bool) int {
	if tsunami {
		if records > 0 {
			return 90
		}
		return 300
	}
	if maxAge, ok := fetch.MaxAgeSeconds(res.CacheControl); ok && maxAge > 0 {
		return maxAge
	}
	return p.PollIntervalSeconds
}

// fail records the error with backoff and reports it. It returns the
// backoff applied, in seconds.
func (s *Scheduler) fail(ctx context.Context, src model.Source, statusCode, fetchMS *int,
	errStr, outcome string, seconds float64) int {
	backoff, err := health.RecordError(ctx, s.st, src.SourceID, health.Failure{
		StatusCode: statusCode,
		FetchMS:    fetchMS,
		Error:      errStr,
	})
	if err != nil {
		s.log.Error().Err(err).Str("source_id", src.SourceID).Msg("record error failed")
	}
	observability.ObserveFetch(src.SourceID, outcome, seconds)
	s.publish("source.health", map[string]any{
		"source_id":       src.SourceID,
		"error":           errStr,
		"backoff_seconds": backoff,
	})
	return backoff
}

// ingest enriches, deduplicates and stores a batch of normalized
// items in one transaction, returning the ones actually inserted.
func (s *Scheduler) ingest(ctx context.Context, src model.Source, items []model.Item) ([]model.Item, error) {
	cutoff := timeiso.Format(time.Now().Add(-24 * time.Hour))

	candidates := make([]model.Item, 0, len(items))
	for i := range items {
		it := items[i]
		it.ExternalID = strings.TrimSpace(it.ExternalID)
		s.enrich(ctx, &it)

		key := dedupe.Key(it.SourceID, firstNonBlank(it.ExternalID, it.HashTitle))
		seen, err := s.window.Seen(ctx, key)
		if err != nil {
			s.log.Warn().Err(err).Str("source_id", it.SourceID).Msg("dedupe window check failed")
		} else if seen {
			observability.IncItem(it.Category, "duplicate")
			continue
		}
		candidates = append(candidates, it)
	}

	var inserted []model.Item
	seededPlaces := false
	err := s.st.WriteTx(ctx, func(tx *sql.Tx) error {
		inserted = inserted[:0]
		seededPlaces = false
		for _, it := range candidates {
			var exists bool
			var err error
			if it.Category == model.CategoryNews && it.ExternalID != "" {
				exists, err = store.ItemExistsByExternalIDTx(tx, it.SourceID, it.ExternalID)
			} else {
				exists, err = store.ItemExistsByTitleHashTx(tx, it.SourceID, it.HashTitle, cutoff)
			}
			if err != nil {
				return err
			}
			if exists {
				observability.IncItem(it.Category, "duplicate")
				continue
			}
			if err := store.InsertItemTx(tx, it); err != nil {
				if errors.Is(err, store.ErrDuplicate) {
					observability.IncItem(it.Category, "duplicate")
					continue
				}
				return err
			}
			observability.IncItem(it.Category, "inserted")
			inserted = append(inserted, it)

			if src.SourceID == "smartraveller_export" &&
				it.LocationName != "" && it.Lat != nil && it.Lon != nil {
				cc, _ := it.Raw["country_code"].(string)
				if err := gazetteer.UpsertCountryPlaceTx(tx, it.LocationName, cc, *it.Lat, *it.Lon); err != nil {
					return err
				}
				seededPlaces = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if seededPlaces {
		s.gaz.Invalidate()
	}

	if strings.HasPrefix(src.SourceID, "mastodon_") {
		s.advanceMastodonCursor(ctx, src, items)
	}
	return inserted, nil
}

// advanceMastodonCursor stores the highest numeric status id seen so
// the next fetch asks only for newer statuses.
func (s *Scheduler) advanceMastodonCursor(ctx context.Context, src model.Source, items []model.Item) {
	var maxID int64 = -1
	for _, it := range items {
		if n, err := strconv.ParseInt(it.ExternalID, 10, 64); err == nil && n > maxID {
			maxID = n
		}
	}
	if maxID < 0 {
		return
	}
	if cur, err := strconv.ParseInt(src.Cursor, 10, 64); err == nil && cur >= maxID {
		return
	}
	if err := s.st.SetSourceCursor(ctx, src.SourceID, strconv.FormatInt(maxID, 10)); err != nil {
		s.log.Error().Err(err).Str("source_id", src.SourceID).Msg("cursor update failed")
	}
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
