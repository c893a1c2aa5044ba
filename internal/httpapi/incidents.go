package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/evhagen/sitmon/internal/geo"
	"github.com/evhagen/sitmon/internal/model"
	"github.com/evhagen/sitmon/internal/store"
	"github.com/evhagen/sitmon/internal/timeiso"
)

const (
	incidentListLimit  = 300
	incidentItemsLimit = 200
)

func (a *API) handleIncidents(w http.ResponseWriter, r *http.Request) {
	since, until, asof := timeRange(r)
	q := store.IncidentQuery{
		SinceISO:    since,
		UntilISO:    until,
		AsOfISO:     asof,
		Categories:  splitCSV(r.URL.Query().Get("categories")),
		BBox:        parseBBox(r.URL.Query().Get("bbox")),
		Search:      strings.TrimSpace(r.URL.Query().Get("q")),
		MinSeverity: parseOptionalInt(r.URL.Query().Get("min_severity")),
		Limit:       incidentListLimit,
	}
	incidents, err := a.st.QueryIncidents(r.Context(), q)
	if err != nil {
		a.log.Error().Err(err).Msg("incident query failed")
		writeError(w, http.StatusInternalServerError, "query_failed")
		return
	}
	if incidents == nil {
		incidents = []model.Incident{}
	}
	writeJSON(w, http.StatusOK, incidents)
}

func (a *API) handleIncident(w http.ResponseWriter, r *http.Request) {
	incidentID := chi.URLParam(r, "incidentID")
	inc, err := a.st.GetIncident(r.Context(), incidentID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		a.log.Error().Err(err).Str("incident_id", incidentID).Msg("incident lookup failed")
		writeError(w, http.StatusInternalServerError, "query_failed")
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (a *API) handleIncidentItems(w http.ResponseWriter, r *http.Request) {
	incidentID := chi.URLParam(r, "incidentID")
	items, err := a.st.ItemsForIncident(r.Context(), incidentID, incidentItemsLimit)
	if err != nil {
		a.log.Error().Err(err).Str("incident_id", incidentID).Msg("incident items query failed")
		writeError(w, http.StatusInternalServerError, "query_failed")
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}

// gridCell is one aggregated map cell for the heatmap layer.
type gridCell struct {
	Cell        string  `json:"cell"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Count       int     `json:"count"`
	MaxSeverity int     `json:"max_severity"`
}

// handleIncidentGrid rolls located incidents up into H3 cells so the
// map can render density instead of hundreds of markers when zoomed
// out.
func (a *API) handleIncidentGrid(w http.ResponseWriter, r *http.Request) {
	since, until, asof := timeRange(r)
	res := 3
	if n := parseOptionalInt(r.URL.Query().Get("res")); n != nil && *n >= 0 && *n <= 8 {
		res = *n
	}
	q := store.IncidentQuery{
		SinceISO:    since,
		UntilISO:    until,
		AsOfISO:     asof,
		Categories:  splitCSV(r.URL.Query().Get("categories")),
		MinSeverity: parseOptionalInt(r.URL.Query().Get("min_severity")),
		Limit:       incidentListLimit,
	}
	incidents, err := a.st.QueryIncidents(r.Context(), q)
	if err != nil {
		a.log.Error().Err(err).Msg("incident grid query failed")
		writeError(w, http.StatusInternalServerError, "query_failed")
		return
	}

	cells := make(map[string]*gridCell)
	for _, inc := range incidents {
		if inc.Lat == nil || inc.Lon == nil {
			continue
		}
		id, err := geo.CellID(*inc.Lat, *inc.Lon, res)
		if err != nil {
			continue
		}
		c, ok := cells[id]
		if !ok {
			lat, lon, err := geo.CellCenter(id)
			if err != nil {
				continue
			}
			c = &gridCell{Cell: id, Lat: lat, Lon: lon}
			cells[id] = c
		}
		c.Count++
		if inc.Severity > c.MaxSeverity {
			c.MaxSeverity = inc.Severity
		}
	}

	out := make([]gridCell, 0, len(cells))
	for _, c := range cells {
		out = append(out, *c)
	}
	writeJSON(w, http.StatusOK, map[string]any{"res": res, "cells": out})
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	window := r.URL.Query().Get("window")
	if window == "" {
		window = "6h"
	}
	until := timeiso.Now()
	since, _, _ := timeRange(r)

	counts, err := a.st.IncidentCountsByCategory(r.Context(), since, until)
	if err != nil {
		a.log.Error().Err(err).Msg("stats query failed")
		writeError(w, http.StatusInternalServerError, "query_failed")
		return
	}
	if counts == nil {
		counts = []store.CategoryCount{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"window":      window,
		"by_category": counts,
	})
}
