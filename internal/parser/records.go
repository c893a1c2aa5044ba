package parser

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Feature is one GeoJSON feature with its geometry kept raw for the
// normalizer to pass through.
type Feature struct {
	ID         any             `json:"id"`
	Properties map[string]any  `json:"properties"`
	Geometry   json.RawMessage `json:"geometry"`
}

type featureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// ParseGeoJSON reads a FeatureCollection. Anything else yields no
// records.
func ParseGeoJSON(data []byte) ([]Feature, error) {
	var doc featureCollection
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse geojson: %w", err)
	}
	if doc.Type != "FeatureCollection" {
		return nil, nil
	}
	return doc.Features, nil
}

// recordListKeys are the envelope keys APIs wrap their lists in.
var recordListKeys = []string{
	"destinations", "countries", "items", "events", "vulnerabilities", "posts", "data",
}

// ParseJSONRecords reads a bare JSON list, or unwraps a single-key
// envelope object.
func ParseJSONRecords(data []byte) ([]map[string]any, error) {
	var anyDoc any
	if err := json.Unmarshal(data, &anyDoc); err != nil {
		return nil, fmt.Errorf("parse json records: %w", err)
	}
	switch doc := anyDoc.(type) {
	case []any:
		return toRecordList(doc), nil
	case map[string]any:
		for _, key := range recordListKeys {
			if list, ok := doc[key].([]any); ok {
				return toRecordList(list), nil
			}
		}
	}
	return nil, nil
}

func toRecordList(list []any) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for _, v := range list {
		if m, ok := v.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// ParseCSVRecords reads a headered CSV into one map per row.
func ParseCSVRecords(data []byte) ([]map[string]any, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("parse csv header: %w", err)
	}

	var out []map[string]any
	for {
		row, err := r.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv row: %w", err)
		}
		rec := make(map[string]any, len(header))
		for i, name := range header {
			if i < len(row) {
				rec[strings.TrimSpace(name)] = row[i]
			}
		}
		out = append(out, rec)
	}
}

type govukIndex struct {
	Links struct {
		Children []map[string]any `json:"children"`
	} `json:"links"`
}

// ParseGovUKTravelAdviceIndex unwraps the GOV.UK content API index of
// per-country travel advice pages.
func ParseGovUKTravelAdviceIndex(data []byte) ([]map[string]any, error) {
	var doc govukIndex
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse govuk index: %w", err)
	}
	return doc.Links.Children, nil
}
