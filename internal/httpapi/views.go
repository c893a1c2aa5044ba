package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/evhagen/sitmon/internal/store"
	"github.com/evhagen/sitmon/internal/timeiso"
)

func (a *API) handleListViews(w http.ResponseWriter, r *http.Request) {
	views, err := a.st.ListViews(r.Context())
	if err != nil {
		a.log.Error().Err(err).Msg("views query failed")
		writeError(w, http.StatusInternalServerError, "query_failed")
		return
	}
	if views == nil {
		views = []store.SavedView{}
	}
	writeJSON(w, http.StatusOK, views)
}

type saveViewRequest struct {
	ViewID     string          `json:"view_id"`
	Name       string          `json:"name"`
	ConfigJSON json.RawMessage `json:"config_json"`
}

func (a *API) handleSaveView(w http.ResponseWriter, r *http.Request) {
	var req saveViewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name_required")
		return
	}
	if len(req.ConfigJSON) == 0 {
		req.ConfigJSON = json.RawMessage("{}")
	}
	now := timeiso.Now()
	v := store.SavedView{
		ViewID:     req.ViewID,
		Name:       req.Name,
		ConfigJSON: string(req.ConfigJSON),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if v.ViewID == "" {
		v.ViewID = uuid.NewString()
	}
	if err := a.st.UpsertView(r.Context(), v); err != nil {
		a.log.Error().Err(err).Str("view_id", v.ViewID).Msg("view save failed")
		writeError(w, http.StatusInternalServerError, "save_failed")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *API) handleDeleteView(w http.ResponseWriter, r *http.Request) {
	viewID := chi.URLParam(r, "viewID")
	err := a.st.DeleteView(r.Context(), viewID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		a.log.Error().Err(err).Str("view_id", viewID).Msg("view delete failed")
		writeError(w, http.StatusInternalServerError, "delete_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
