package httpapi

import (
	"net/http"

	"github.com/evhagen/sitmon/internal/model"
)

const (
	itemListLimit     = 100
	placeSuggestLimit = 10
)

func (a *API) handleItems(w http.ResponseWriter, r *http.Request) {
	limit := itemListLimit
	if n := parseOptionalInt(r.URL.Query().Get("limit")); n != nil && *n > 0 && *n <= 500 {
		limit = *n
	}
	items, err := a.st.LatestItems(r.Context(), limit)
	if err != nil {
		a.log.Error().Err(err).Msg("items query failed")
		writeError(w, http.StatusInternalServerError, "query_failed")
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) handleSources(w http.ResponseWriter, r *http.Request) {
	sources, err := a.st.ListSources(r.Context())
	if err != nil {
		a.log.Error().Err(err).Msg("sources query failed")
		writeError(w, http.StatusInternalServerError, "query_failed")
		return
	}
	if sources == nil {
		sources = []model.Source{}
	}
	writeJSON(w, http.StatusOK, sources)
}

func (a *API) handlePlacesSuggest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	places, err := a.gaz.Suggest(r.Context(), q, placeSuggestLimit)
	if err != nil {
		a.log.Error().Err(err).Msg("place suggest failed")
		writeError(w, http.StatusInternalServerError, "query_failed")
		return
	}
	if places == nil {
		places = []model.Place{}
	}
	writeJSON(w, http.StatusOK, places)
}
