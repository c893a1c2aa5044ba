package httpapi

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/evhagen/sitmon/internal/bus"
	"github.com/evhagen/sitmon/internal/cluster"
	"github.com/evhagen/sitmon/internal/config"
	"github.com/evhagen/sitmon/internal/gazetteer"
	"github.com/evhagen/sitmon/internal/model"
	"github.com/evhagen/sitmon/internal/sched"
	"github.com/evhagen/sitmon/internal/store"
	"github.com/evhagen/sitmon/internal/textsig"
	"github.com/evhagen/sitmon/internal/timeiso"
)

func newTestAPI(t *testing.T, packs []sched.FeedPack) (*API, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	gaz, err := gazetteer.New(st)
	if err != nil {
		t.Fatalf("new gazetteer: %v", err)
	}
	cfg := config.Config{MapTileURL: "https://tiles.example.org/{z}/{x}/{y}.png"}
	return New(st, gaz, bus.New(), packs, cfg, zerolog.Nop()), st
}

func doRequest(t *testing.T, a *API, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body == nil {
		rd = bytes.NewReader(nil)
	} else {
		rd = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
}

// seedIncident inserts one located item and runs it through the
// clusterer so the read endpoints have a real incident to return.
func seedIncident(t *testing.T, st *store.Store, title string, lat, lon float64) string {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	norm := textsig.NormalizeTitle(title)
	it := model.Item{
		ItemID:             "item-" + norm,
		SourceID:           "usgs_all_hour",
		SourceType:         "geojson_api",
		ExternalID:         "ext-" + norm,
		URL:                "https://example.org/" + norm,
		Title:              title,
		Summary:            title,
		PublishedAt:        timeiso.Format(now.Add(-10 * time.Minute)),
		FetchedAt:          timeiso.Format(now),
		Category:           model.CategoryEarthquake,
		Tags:               []string{"usgs"},
		Lat:                &lat,
		Lon:                &lon,
		LocationConfidence: model.ConfExact,
		LocationRationale:  "coordinates from payload",
		Raw:                map[string]any{"mag": 5.1},
		HashTitle:          "hash-" + norm,
		HashContent:        "hash-" + norm,
		SimHash:            textsig.SimHashToStored(textsig.SimHash64(norm)),
	}
	src := model.Source{
		SourceID:            it.SourceID,
		Name:                "USGS All Hour",
		SourceType:          it.SourceType,
		URL:                 "https://example.org/usgs_all_hour.geojson",
		PollIntervalSeconds: 60,
		Enabled:             true,
	}
	if err := st.EnsureSource(ctx, src, timeiso.Format(now)); err != nil {
		t.Fatalf("ensure source: %v", err)
	}
	err := st.WriteTx(ctx, func(tx *sql.Tx) error {
		return store.InsertItemTx(tx, it)
	})
	if err != nil {
		t.Fatalf("insert item: %v", err)
	}
	res, err := cluster.New(st).Assign(ctx, it.ItemID)
	if err != nil {
		t.Fatalf("assign item: %v", err)
	}
	if res.IncidentID == "" {
		t.Fatalf("no incident created for %q", title)
	}
	return res.IncidentID
}

func TestIncidents_ListAndGet(t *testing.T) {
	a, st := newTestAPI(t, nil)
	incidentID := seedIncident(t, st, "Magnitude 5.1 earthquake near Adak, Alaska", 51.7, -176.7)

	rec := doRequest(t, a, http.MethodGet, "/api/incidents?window=6h", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status: got %d", rec.Code)
	}
	var incidents []model.Incident
	decodeBody(t, rec, &incidents)
	if len(incidents) != 1 {
		t.Fatalf("incident count: got %d, want 1", len(incidents))
	}
	if incidents[0].IncidentID != incidentID {
		t.Fatalf("incident id: got %q, want %q", incidents[0].IncidentID, incidentID)
	}

	rec = doRequest(t, a, http.MethodGet, "/api/incidents/"+incidentID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status: got %d", rec.Code)
	}

	rec = doRequest(t, a, http.MethodGet, "/api/incidents/"+incidentID+"/items", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("items status: got %d", rec.Code)
	}
	var items []model.Item
	decodeBody(t, rec, &items)
	if len(items) != 1 {
		t.Fatalf("incident items: got %d, want 1", len(items))
	}
}

func TestIncidents_NotFound(t *testing.T) {
	a, _ := newTestAPI(t, nil)
	rec := doRequest(t, a, http.MethodGet, "/api/incidents/no-such-incident", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", rec.Code)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["error"] != "not_found" {
		t.Fatalf("error body: got %q", body["error"])
	}
}

func TestIncidents_BBoxFilter(t *testing.T) {
	a, st := newTestAPI(t, nil)
	seedIncident(t, st, "Magnitude 5.1 earthquake near Adak, Alaska", 51.7, -176.7)
	seedIncident(t, st, "Flooding reported across central Jakarta districts", -6.2, 106.8)

	rec := doRequest(t, a, http.MethodGet, "/api/incidents?bbox=100,-10,110,0", nil)
	var incidents []model.Incident
	decodeBody(t, rec, &incidents)
	if len(incidents) != 1 {
		t.Fatalf("bbox filtered count: got %d, want 1", len(incidents))
	}
	if incidents[0].Lat == nil || *incidents[0].Lat > 0 {
		t.Fatalf("wrong incident survived the bbox filter")
	}
}

func TestIncidentGrid_AggregatesCells(t *testing.T) {
	a, st := newTestAPI(t, nil)
	seedIncident(t, st, "Magnitude 5.1 earthquake near Adak, Alaska", 51.7, -176.7)
	seedIncident(t, st, "Flooding reported across central Jakarta districts", -6.2, 106.8)

	rec := doRequest(t, a, http.MethodGet, "/api/incidents/grid?res=3", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("grid status: got %d", rec.Code)
	}
	var body struct {
		Res   int        `json:"res"`
		Cells []gridCell `json:"cells"`
	}
	decodeBody(t, rec, &body)
	if body.Res != 3 {
		t.Fatalf("res: got %d, want 3", body.Res)
	}
	if len(body.Cells) != 2 {
		t.Fatalf("cell count: got %d, want 2", len(body.Cells))
	}
	for _, c := range body.Cells {
		if c.Count != 1 {
			t.Fatalf("cell %s count: got %d, want 1", c.Cell, c.Count)
		}
		if c.Cell == "" {
			t.Fatalf("empty cell id")
		}
	}
}

func TestTimeline_BucketsDistinctIncidents(t *testing.T) {
	a, st := newTestAPI(t, nil)
	seedIncident(t, st, "Magnitude 5.1 earthquake near Adak, Alaska", 51.7, -176.7)

	rec := doRequest(t, a, http.MethodGet, "/api/timeline?window=6h", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("timeline status: got %d", rec.Code)
	}
	var body struct {
		Window   string           `json:"window"`
		Buckets  []timelineBucket `json:"buckets"`
		MaxCount int              `json:"max_count"`
	}
	decodeBody(t, rec, &body)
	if body.Window != "6h" {
		t.Fatalf("window: got %q", body.Window)
	}
	wantBuckets := int(6*time.Hour/time.Second)/300 + 1
	if len(body.Buckets) != wantBuckets {
		t.Fatalf("bucket count: got %d, want %d", len(body.Buckets), wantBuckets)
	}
	if body.MaxCount != 1 {
		t.Fatalf("max_count: got %d, want 1", body.MaxCount)
	}
	total := 0
	for _, b := range body.Buckets {
		total += b.Count
	}
	if total != 1 {
		t.Fatalf("total bucketed incidents: got %d, want 1", total)
	}
}

func TestViews_CRUD(t *testing.T) {
	a, _ := newTestAPI(t, nil)

	body := []byte(`{"name": "Pacific quakes", "config_json": {"window": "24h", "categories": ["earthquake"]}}`)
	rec := doRequest(t, a, http.MethodPost, "/api/views", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("save status: got %d (%s)", rec.Code, rec.Body.String())
	}
	var saved store.SavedView
	decodeBody(t, rec, &saved)
	if saved.ViewID == "" {
		t.Fatalf("view id not generated")
	}
	if saved.Name != "Pacific quakes" {
		t.Fatalf("view name: got %q", saved.Name)
	}
	if !strings.Contains(saved.ConfigJSON, "24h") {
		t.Fatalf("config json not persisted: %q", saved.ConfigJSON)
	}

	rec = doRequest(t, a, http.MethodGet, "/api/views", nil)
	var views []store.SavedView
	decodeBody(t, rec, &views)
	if len(views) != 1 {
		t.Fatalf("view count: got %d, want 1", len(views))
	}

	rec = doRequest(t, a, http.MethodDelete, "/api/views/"+saved.ViewID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status: got %d", rec.Code)
	}
	rec = doRequest(t, a, http.MethodDelete, "/api/views/"+saved.ViewID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status: got %d, want 404", rec.Code)
	}
}

func TestViews_RequiresName(t *testing.T) {
	a, _ := newTestAPI(t, nil)
	rec := doRequest(t, a, http.MethodPost, "/api/views", []byte(`{"name": "  "}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", rec.Code)
	}
}

func testPack(enabledDefaultOff bool) sched.FeedPack {
	off := false
	entries := []sched.FeedPackEntry{
		{ID: "bbc_world", Name: "BBC World", Type: "rss", URL: "https://feeds.bbci.co.uk/news/world/rss.xml", PollSeconds: 180},
		{ID: "reuters_world", Name: "Reuters World", Type: "rss", URL: "https://example.org/reuters.xml", PollSeconds: 600},
	}
	if enabledDefaultOff {
		entries[1].Enabled = &off
	}
	return sched.FeedPack{PackID: "global_news", Entries: entries}
}

func TestSettings_PollingAndTileURL(t *testing.T) {
	a, st := newTestAPI(t, nil)
	ctx := context.Background()

	rec := doRequest(t, a, http.MethodGet, "/api/settings", nil)
	var got struct {
		PollingEnabled bool         `json:"polling_enabled"`
		MapTileURL     string       `json:"map_tile_url"`
		Packs          []packStatus `json:"packs"`
	}
	decodeBody(t, rec, &got)
	if !got.PollingEnabled {
		t.Fatalf("polling should default to enabled")
	}
	if got.MapTileURL != "https://tiles.example.org/{z}/{x}/{y}.png" {
		t.Fatalf("tile url default: got %q", got.MapTileURL)
	}

	rec = doRequest(t, a, http.MethodPost, "/api/settings",
		[]byte(`{"polling_enabled": false, "map_tile_url": "https://other.example.org/{z}/{x}/{y}.png"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("post status: got %d (%s)", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &got)
	if got.PollingEnabled {
		t.Fatalf("polling should now be disabled")
	}
	if got.MapTileURL != "https://other.example.org/{z}/{x}/{y}.png" {
		t.Fatalf("tile url override: got %q", got.MapTileURL)
	}

	if v, ok, err := st.GetConfig(ctx, "polling_enabled"); err != nil || !ok || v != "0" {
		t.Fatalf("polling_enabled config: v=%q ok=%v err=%v", v, ok, err)
	}

	// Clearing the override falls back to the configured default.
	rec = doRequest(t, a, http.MethodPost, "/api/settings", []byte(`{"map_tile_url": ""}`))
	decodeBody(t, rec, &got)
	if got.MapTileURL != "https://tiles.example.org/{z}/{x}/{y}.png" {
		t.Fatalf("tile url after clear: got %q", got.MapTileURL)
	}
	if _, ok, err := st.GetConfig(ctx, "map_tile_url"); err != nil || ok {
		t.Fatalf("map_tile_url config should be deleted, ok=%v err=%v", ok, err)
	}
}

func TestSettings_PackToggleRestoresDefaults(t *testing.T) {
	pack := testPack(true)
	a, st := newTestAPI(t, []sched.FeedPack{pack})
	ctx := context.Background()

	now := timeiso.Now()
	for _, p := range sched.FeedPackSources([]sched.FeedPack{pack}) {
		if err := st.EnsureSource(ctx, p.Source(), now); err != nil {
			t.Fatalf("ensure source: %v", err)
		}
	}

	rec := doRequest(t, a, http.MethodGet, "/api/settings", nil)
	var got struct {
		Packs []packStatus `json:"packs"`
	}
	decodeBody(t, rec, &got)
	if len(got.Packs) != 1 {
		t.Fatalf("pack count: got %d", len(got.Packs))
	}
	if !got.Packs[0].Enabled || got.Packs[0].SourceCount != 2 {
		t.Fatalf("pack state: %+v", got.Packs[0])
	}

	rec = doRequest(t, a, http.MethodPost, "/api/settings", []byte(`{"packs": {"global_news": false}}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("disable status: got %d", rec.Code)
	}
	decodeBody(t, rec, &got)
	if got.Packs[0].Enabled {
		t.Fatalf("pack should be disabled")
	}

	// Re-enabling respects per-entry defaults: reuters stays off.
	rec = doRequest(t, a, http.MethodPost, "/api/settings", []byte(`{"packs": {"global_news": true}}`))
	decodeBody(t, rec, &got)
	if !got.Packs[0].Enabled {
		t.Fatalf("pack should be enabled")
	}
	bbc, err := st.GetSource(ctx, "bbc_world")
	if err != nil {
		t.Fatalf("get bbc source: %v", err)
	}
	if !bbc.Enabled {
		t.Fatalf("bbc_world should be enabled after pack enable")
	}
	reuters, err := st.GetSource(ctx, "reuters_world")
	if err != nil {
		t.Fatalf("get reuters source: %v", err)
	}
	if reuters.Enabled {
		t.Fatalf("reuters_world default is off and should stay off")
	}
}

func TestSettings_UnknownPack(t *testing.T) {
	a, _ := newTestAPI(t, nil)
	rec := doRequest(t, a, http.MethodPost, "/api/settings", []byte(`{"packs": {"nope": true}}`))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", rec.Code)
	}
}

func TestItemsAndSources(t *testing.T) {
	a, st := newTestAPI(t, nil)
	seedIncident(t, st, "Magnitude 5.1 earthquake near Adak, Alaska", 51.7, -176.7)

	rec := doRequest(t, a, http.MethodGet, "/api/items?limit=5", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("items status: got %d", rec.Code)
	}
	var items []model.Item
	decodeBody(t, rec, &items)
	if len(items) != 1 {
		t.Fatalf("item count: got %d, want 1", len(items))
	}

	rec = doRequest(t, a, http.MethodGet, "/api/sources", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sources status: got %d", rec.Code)
	}
}

func TestStats_CountsByCategory(t *testing.T) {
	a, st := newTestAPI(t, nil)
	seedIncident(t, st, "Magnitude 5.1 earthquake near Adak, Alaska", 51.7, -176.7)

	rec := doRequest(t, a, http.MethodGet, "/api/stats?window=6h", nil)
	var body struct {
		Window     string                `json:"window"`
		ByCategory []store.CategoryCount `json:"by_category"`
	}
	decodeBody(t, rec, &body)
	if body.Window != "6h" {
		t.Fatalf("window: got %q", body.Window)
	}
	if len(body.ByCategory) != 1 || body.ByCategory[0].Category != model.CategoryEarthquake {
		t.Fatalf("by_category: %+v", body.ByCategory)
	}
	if body.ByCategory[0].Count != 1 {
		t.Fatalf("earthquake count: got %d", body.ByCategory[0].Count)
	}
}

func TestHealthz(t *testing.T) {
	a, _ := newTestAPI(t, nil)
	rec := doRequest(t, a, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["status"] != "ok" {
		t.Fatalf("body: %v", body)
	}
}

func TestCORS_Preflight(t *testing.T) {
	a, _ := newTestAPI(t, nil)
	rec := doRequest(t, a, http.MethodOptions, "/api/incidents", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status: got %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("allow-origin header missing")
	}
}
