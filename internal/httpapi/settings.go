package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/evhagen/sitmon/internal/sched"
)

type packStatus struct {
	PackID      string `json:"pack_id"`
	Enabled     bool   `json:"enabled"`
	SourceCount int    `json:"source_count"`
}

// handleGetSettings reports the runtime toggles the dashboard can flip:
// the polling master switch, the map tile override and feed pack state.
// A pack counts as enabled while any of its sources is enabled.
func (a *API) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	polling, err := a.st.PollingEnabled(ctx)
	if err != nil {
		a.log.Error().Err(err).Msg("settings read failed")
		writeError(w, http.StatusInternalServerError, "query_failed")
		return
	}

	tileURL := a.cfg.MapTileURL
	if v, ok, err := a.st.GetConfig(ctx, "map_tile_url"); err == nil && ok {
		tileURL = v
	}

	packs := make([]packStatus, 0, len(a.packs))
	for _, p := range a.packs {
		ids := p.SourceIDs()
		n, err := a.st.CountEnabledSources(ctx, ids)
		if err != nil {
			a.log.Error().Err(err).Str("pack_id", p.PackID).Msg("pack state read failed")
			writeError(w, http.StatusInternalServerError, "query_failed")
			return
		}
		packs = append(packs, packStatus{
			PackID:      p.PackID,
			Enabled:     n > 0,
			SourceCount: len(ids),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"polling_enabled": polling,
		"map_tile_url":    tileURL,
		"packs":           packs,
	})
}

type settingsRequest struct {
	PollingEnabled *bool           `json:"polling_enabled"`
	MapTileURL     *string         `json:"map_tile_url"`
	Packs          map[string]bool `json:"packs"`
}

// handlePostSettings applies partial updates. Disabling a pack turns
// every source in it off; enabling restores each source to its pack
// default rather than forcing all of them on.
func (a *API) handlePostSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	ctx := r.Context()

	if req.PollingEnabled != nil {
		v := "0"
		if *req.PollingEnabled {
			v = "1"
		}
		if err := a.st.SetConfig(ctx, "polling_enabled", v); err != nil {
			a.log.Error().Err(err).Msg("polling toggle failed")
			writeError(w, http.StatusInternalServerError, "update_failed")
			return
		}
	}

	if req.MapTileURL != nil {
		url := strings.TrimSpace(*req.MapTileURL)
		var err error
		if url == "" {
			err = a.st.DeleteConfig(ctx, "map_tile_url")
		} else {
			err = a.st.SetConfig(ctx, "map_tile_url", url)
		}
		if err != nil {
			a.log.Error().Err(err).Msg("tile url update failed")
			writeError(w, http.StatusInternalServerError, "update_failed")
			return
		}
	}

	for packID, enabled := range req.Packs {
		pack, ok := a.findPack(packID)
		if !ok {
			writeError(w, http.StatusNotFound, "unknown_pack")
			return
		}
		if err := a.applyPackToggle(ctx, pack, enabled); err != nil {
			a.log.Error().Err(err).Str("pack_id", packID).Msg("pack toggle failed")
			writeError(w, http.StatusInternalServerError, "update_failed")
			return
		}
	}

	a.handleGetSettings(w, r)
}

func (a *API) findPack(packID string) (sched.FeedPack, bool) {
	for _, p := range a.packs {
		if p.PackID == packID {
			return p, true
		}
	}
	return sched.FeedPack{}, false
}

func (a *API) applyPackToggle(ctx context.Context, pack sched.FeedPack, enabled bool) error {
	if !enabled {
		return a.st.SetSourcesEnabled(ctx, pack.SourceIDs(), false)
	}
	for _, e := range pack.Entries {
		if e.Type != "rss" {
			continue
		}
		on := e.Enabled == nil || *e.Enabled
		if err := a.st.SetSourceEnabled(ctx, e.ID, on); err != nil {
			return err
		}
	}
	return nil
}
