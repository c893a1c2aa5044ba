// Package sched owns the polling side of the service: the source
// catalog, the fetch loop with its concurrency limits, normalization
// and storage of new items, and handoff to the clusterer.
package sched

import (
	"context"

	"github.com/evhagen/sitmon/internal/model"
	"github.com/evhagen/sitmon/internal/parser"
	"github.com/evhagen/sitmon/internal/store"
)

// DecodeFunc turns one fetched response body into normalized items.
type DecodeFunc func(data []byte, fetchedAt string) ([]model.Item, error)

// BuildURLFunc computes the fetch URL for sources whose endpoint
// depends on runtime state, like cursors or discovered base URLs. The
// source row passed in is the one just selected for fetching.
type BuildURLFunc func(ctx context.Context, st *store.Store, src model.Source) (string, error)

// Plugin describes one pollable source. The static fields are synced
// into the sources table at startup; schedule state lives in the table
// only.
type Plugin struct {
	SourceID            string
	Name                string
	URL                 string
	SourceType          string
	PollIntervalSeconds int
	DefaultEnabled      bool
	Headers             map[string]string
	BuildURL            BuildURLFunc
	Decode              DecodeFunc
}

// Source returns the catalog row for this plugin. Enabled reflects the
// default only; an operator toggle in the table wins on conflict.
func (p Plugin) Source() model.Source {
	return model.Source{
		SourceID:            p.SourceID,
		Name:                p.Name,
		SourceType:          p.SourceType,
		URL:                 p.URL,
		PollIntervalSeconds: p.PollIntervalSeconds,
		Enabled:             p.DefaultEnabled,
	}
}

func decodeGeoJSON(norm func(parser.Feature, string) model.Item) DecodeFunc {
	return func(data []byte, fetchedAt string) ([]model.Item, error) {
		features, err := parser.ParseGeoJSON(data)
		if err != nil {
			return nil, err
		}
		items := make([]model.Item, 0, len(features))
		for _, f := range features {
			items = append(items, norm(f, fetchedAt))
		}
		return items, nil
	}
}

func decodeRSS(norm func(parser.FeedRecord, string) model.Item) DecodeFunc {
	return func(data []byte, fetchedAt string) ([]model.Item, error) {
		records, err := parser.ParseRSS(data)
		if err != nil {
			return nil, err
		}
		items := make([]model.Item, 0, len(records))
		for _, r := range records {
			items = append(items, norm(r, fetchedAt))
		}
		return items, nil
	}
}

func decodeAtom(norm func(parser.FeedRecord, string) model.Item) DecodeFunc {
	return func(data []byte, fetchedAt string) ([]model.Item, error) {
		records, err := parser.ParseAtom(data)
		if err != nil {
			return nil, err
		}
		items := make([]model.Item, 0, len(records))
		for _, r := range records {
			items = append(items, norm(r, fetchedAt))
		}
		return items, nil
	}
}

func decodeCAP(norm func(parser.CAPAlert, string) model.Item) DecodeFunc {
	return func(data []byte, fetchedAt string) ([]model.Item, error) {
		alerts, err := parser.ParseCAP(data)
		if err != nil {
			return nil, err
		}
		items := make([]model.Item, 0, len(alerts))
		for _, a := range alerts {
			items = append(items, norm(a, fetchedAt))
		}
		return items, nil
	}
}

func decodeJSONRecords(norm func(map[string]any, string) model.Item) DecodeFunc {
	return func(data []byte, fetchedAt string) ([]model.Item, error) {
		records, err := parser.ParseJSONRecords(data)
		if err != nil {
			return nil, err
		}
		items := make([]model.Item, 0, len(records))
		for _, r := range records {
			items = append(items, norm(r, fetchedAt))
		}
		return items, nil
	}
}

func decodeCSVRecords(norm func(map[string]any, string) model.Item) DecodeFunc {
	return func(data []byte, fetchedAt string) ([]model.Item, error) {
		records, err := parser.ParseCSVRecords(data)
		if err != nil {
			return nil, err
		}
		items := make([]model.Item, 0, len(records))
		for _, r := range records {
			items = append(items, norm(r, fetchedAt))
		}
		return items, nil
	}
}

func decodeGovUKIndex(norm func(map[string]any, string) model.Item) DecodeFunc {
	return func(data []byte, fetchedAt string) ([]model.Item, error) {
		records, err := parser.ParseGovUKTravelAdviceIndex(data)
		if err != nil {
			return nil, err
		}
		items := make([]model.Item, 0, len(records))
		for _, r := range records {
			items = append(items, norm(r, fetchedAt))
		}
		return items, nil
	}
}

func decodeFAA(norm func(parser.AirportStatus, string) model.Item) DecodeFunc {
	return func(data []byte, fetchedAt string) ([]model.Item, error) {
		statuses, err := parser.ParseFAAAirportStatus(data)
		if err != nil {
			return nil, err
		}
		items := make([]model.Item, 0, len(statuses))
		for _, a := range statuses {
			items = append(items, norm(a, fetchedAt))
		}
		return items, nil
	}
}
