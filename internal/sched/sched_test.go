package sched

import (
	"context"
	"database/sql"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/evhagen/sitmon/internal/bus"
	"github.com/evhagen/sitmon/internal/config"
	"github.com/evhagen/sitmon/internal/dedupe"
	"github.com/evhagen/sitmon/internal/fetch"
	"github.com/evhagen/sitmon/internal/gazetteer"
	"github.com/evhagen/sitmon/internal/model"
	"github.com/evhagen/sitmon/internal/store"
	"github.com/evhagen/sitmon/internal/timeiso"
)

func testConfig() config.Config {
	return config.Config{
		UserAgent:              "sitmon-test/0",
		ItemsRetentionDays:     30,
		IncidentsRetentionDays: 90,
	}
}

func newTestScheduler(t *testing.T) (*Scheduler, *store.Store) {
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
	window, err := dedupe.New("none", "", 0)
	if err != nil {
		t.Fatalf("new dedupe window: %v", err)
	}
	exporter, err := bus.NewExporter("none", nil, "", zerolog.Nop())
	if err != nil {
		t.Fatalf("new exporter: %v", err)
	}
	s := New(st, gaz, bus.New(), exporter, window, testConfig(), zerolog.Nop())
	return s, st
}

func TestBuiltinSources_CatalogShape(t *testing.T) {
	cfg := testConfig()
	plugins := BuiltinSources(cfg, nil)

	byID := make(map[string]Plugin, len(plugins))
	for _, p := range plugins {
		if _, dup := byID[p.SourceID]; dup {
			t.Fatalf("duplicate source id %q", p.SourceID)
		}
		if p.Decode == nil {
			t.Fatalf("source %q has no decoder", p.SourceID)
		}
		byID[p.SourceID] = p
	}

	for _, id := range []string{
		"usgs_all_hour", "usgs_all_day", "usgs_45_hour",
		"nws_alerts_active", "nws_alerts_actual", "nws_alerts_severe",
		"nhc_gtwo", "nhc_index_at", "nhc_gis_cp",
		"smartraveller_documents", "smartraveller_export",
		"gdacs_rss", "eonet_open_events", "hans_elevated_volcanoes",
		"tsunami_ntwc_atom", "tsunami_ntwc_cap", "tsunami_ptwc_atom", "tsunami_ptwc_cap",
		"firms_hotspots", "faa_airport_status",
		"cdc_travel_notices", "who_afro_emergencies",
		"nvd_cves", "cisa_kev",
		"travel_canada_updates", "travel_us_state", "govuk_travel_advice",
		"reliefweb_reports", "reliefweb_disasters",
		"msi_navwarn_current",
		"reddit_worldnews", "reddit_cybersecurity", "reddit_news",
	} {
		if _, ok := byID[id]; !ok {
			t.Fatalf("catalog missing %q", id)
		}
	}

	if byID["firms_hotspots"].DefaultEnabled {
		t.Fatal("firms should ship disabled without an api key")
	}
	if _, ok := byID["bluesky_search_breaking"]; ok {
		t.Fatal("bluesky should be absent without credentials")
	}
	if byID["usgs_all_hour"].PollIntervalSeconds != 60 {
		t.Fatalf("usgs_all_hour interval: got %d", byID["usgs_all_hour"].PollIntervalSeconds)
	}
	if byID["cisa_kev"].PollIntervalSeconds != 21600 {
		t.Fatalf("cisa_kev interval: got %d", byID["cisa_kev"].PollIntervalSeconds)
	}
	if ua := byID["reddit_worldnews"].Headers["User-Agent"]; !strings.HasSuffix(ua, "(reddit rss)") {
		t.Fatalf("reddit user agent: got %q", ua)
	}
}

func TestBuiltinSources_ConditionalSources(t *testing.T) {
	cfg := testConfig()
	cfg.FIRMSAPIKey = "k3y"
	cfg.BlueskyHandle = "alerts.example.com"
	cfg.BlueskyAppPassword = "app-pass"
	plugins := BuiltinSources(cfg, nil)

	byID := make(map[string]Plugin, len(plugins))
	for _, p := range plugins {
		byID[p.SourceID] = p
	}

	firms, ok := byID["firms_hotspots"]
	if !ok || !firms.DefaultEnabled {
		t.Fatal("firms should be enabled with an api key")
	}
	u, err := firms.BuildURL(context.Background(), nil, model.Source{})
	if err != nil {
		t.Fatalf("firms build url: %v", err)
	}
	if u != "https://firms.modaps.eosdis.nasa.gov/api/area/csv/k3y/VIIRS_SNPP_NRT/world/1" {
		t.Fatalf("firms url: got %q", u)
	}
	if strings.Contains(firms.URL, "k3y") {
		t.Fatal("api key leaked into the catalog url")
	}

	bsky, ok := byID["bluesky_search_breaking"]
	if !ok {
		t.Fatal("bluesky should be present with credentials")
	}
	if bsky.DefaultEnabled {
		t.Fatal("bluesky should still ship disabled")
	}
}

func TestMastodonSources_PerInstanceAndTag(t *testing.T) {
	cfg := testConfig()
	cfg.MastodonInstances = "mastodon.social, infosec.exchange"
	cfg.MastodonTags = "#earthquake,#OSINT"
	plugins := Phase3Sources(cfg)

	byID := make(map[string]Plugin)
	for _, p := range plugins {
		if strings.HasPrefix(p.SourceID, "mastodon_") {
			byID[p.SourceID] = p
		}
	}
	if len(byID) != 4 {
		t.Fatalf("mastodon sources: got %d, want 4", len(byID))
	}
	p, ok := byID["mastodon_infosec_exchange_osint"]
	if !ok {
		t.Fatalf("missing instance/tag source, have %v", byID)
	}
	if p.DefaultEnabled {
		t.Fatal("mastodon sources should ship disabled")
	}

	u, err := p.BuildURL(context.Background(), nil, model.Source{Cursor: "115000"})
	if err != nil {
		t.Fatalf("build url: %v", err)
	}
	if u != "https://infosec.exchange/api/v1/timelines/tag/osint?limit=20&since_id=115000" {
		t.Fatalf("mastodon url with cursor: got %q", u)
	}
	u, err = p.BuildURL(context.Background(), nil, model.Source{})
	if err != nil {
		t.Fatalf("build url: %v", err)
	}
	if u != "https://infosec.exchange/api/v1/timelines/tag/osint?limit=20" {
		t.Fatalf("mastodon url without cursor: got %q", u)
	}
}

func TestMastodonTokenEnvKey(t *testing.T) {
	if got := mastodonTokenEnvKey("mastodon.social"); got != "MASTODON_TOKEN_MASTODON_SOCIAL" {
		t.Fatalf("env key: got %q", got)
	}
	if got := mastodonTokenEnvKey("my-host.example:8080"); got != "MASTODON_TOKEN_MY_HOST_EXAMPLE_8080" {
		t.Fatalf("env key: got %q", got)
	}
}

func TestNVDBuildURL_LookbackWindows(t *testing.T) {
	ctx := context.Background()

	u, err := nvdBuildURL(ctx, nil, model.Source{})
	if err != nil {
		t.Fatalf("build url: %v", err)
	}
	if !strings.HasPrefix(u, nvdBase+"?") {
		t.Fatalf("nvd url base: got %q", u)
	}
	if !strings.Contains(u, "resultsPerPage=2000") {
		t.Fatalf("nvd url page size: got %q", u)
	}

	u, err = nvdBuildURL(ctx, nil, model.Source{LastSuccessAt: "2026-08-24T12:00:00.000Z"})
	if err != nil {
		t.Fatalf("build url: %v", err)
	}
	// 15 minute overlap behind the last success
	if !strings.Contains(u, "lastModStartDate=2026-08-24T11%3A45%3A00.000Z") {
		t.Fatalf("nvd start date: got %q", u)
	}
}

func TestMSIBuildURL_UsesDiscoveredBase(t *testing.T) {
	_, st := newTestScheduler(t)
	ctx := context.Background()

	u, err := msiBuildURL(ctx, st, model.Source{})
	if err != nil {
		t.Fatalf("build url: %v", err)
	}
	if u != "https://msi.pub.kubic.nga.mil/api/publications/broadcast-warn?output=json&status=current" {
		t.Fatalf("default msi url: got %q", u)
	}

	if err := st.SetConfig(ctx, "msi_api_base_url", "https://msi.nga.mil/"); err != nil {
		t.Fatalf("set config: %v", err)
	}
	u, err = msiBuildURL(ctx, st, model.Source{})
	if err != nil {
		t.Fatalf("build url: %v", err)
	}
	if u != "https://msi.nga.mil/api/publications/broadcast-warn?output=json&status=current" {
		t.Fatalf("discovered msi url: got %q", u)
	}
}

func TestMSIBaseFromOpenAPI(t *testing.T) {
	swagger := []byte(`{"swagger":"2.0","basePath":"/api/"}`)
	if got := msiBaseFromOpenAPI("https://msi.nga.mil/v2/api-docs", swagger); got != "https://msi.nga.mil/api" {
		t.Fatalf("swagger base: got %q", got)
	}
	openapi := []byte(`{"openapi":"3.0.1","servers":[{"url":"https://msi.pub.kubic.nga.mil/api/"}]}`)
	if got := msiBaseFromOpenAPI("https://msi.pub.kubic.nga.mil/openapi.json", openapi); got != "https://msi.pub.kubic.nga.mil/api" {
		t.Fatalf("openapi base: got %q", got)
	}
	if got := msiBaseFromOpenAPI("https://msi.nga.mil/v2/api-docs", []byte("not json")); got != "" {
		t.Fatalf("invalid doc: got %q", got)
	}
}

func TestNextFetchSeconds(t *testing.T) {
	p := Plugin{PollIntervalSeconds: 300}
	if got := nextFetchSeconds(p, fetch.Result{}, 0, false); got != 300 {
		t.Fatalf("plain interval: got %d", got)
	}
	if got := nextFetchSeconds(p, fetch.Result{CacheControl: "public, max-age=600"}, 0, false); got != 600 {
		t.Fatalf("cache-control wins: got %d", got)
	}
	if got := nextFetchSeconds(p, fetch.Result{CacheControl: "max-age=600"}, 3, true); got != 90 {
		t.Fatalf("tsunami live: got %d", got)
	}
	if got := nextFetchSeconds(p, fetch.Result{}, 0, true); got != 300 {
		t.Fatalf("tsunami quiet: got %d", got)
	}
}

func TestLoadFeedPacks_DefaultsAndSources(t *testing.T) {
	dir := t.TempDir()
	pack := `
- id: bbc_world
  name: BBC World
  url: https://feeds.bbci.co.uk/news/world/rss.xml
  tags: [bbc, world]
- id: local_podcast
  name: Not a Feed
  type: podcast
  url: https://example.org/audio
- id: reuters_top
  name: Reuters Top
  url: https://example.org/reuters.rss
  poll_seconds: 600
  enabled: false
`
	if err := os.WriteFile(filepath.Join(dir, "global.yaml"), []byte(pack), 0o644); err != nil {
		t.Fatalf("write pack: %v", err)
	}

	packs, err := LoadFeedPacks(dir)
	if err != nil {
		t.Fatalf("load packs: %v", err)
	}
	if len(packs) != 1 || packs[0].PackID != "global" {
		t.Fatalf("packs: got %+v", packs)
	}
	if packs[0].Entries[0].Region != "global" {
		t.Fatalf("region default: got %q", packs[0].Entries[0].Region)
	}
	if packs[0].Entries[0].PollSeconds != 180 {
		t.Fatalf("poll default: got %d", packs[0].Entries[0].PollSeconds)
	}
	if got := packs[0].SourceIDs(); len(got) != 2 {
		t.Fatalf("pack source ids: got %v", got)
	}

	plugins := FeedPackSources(packs)
	if len(plugins) != 2 {
		t.Fatalf("feed pack plugins: got %d, want 2", len(plugins))
	}
	if plugins[0].SourceID != "bbc_world" || !plugins[0].DefaultEnabled {
		t.Fatalf("first plugin: got %+v", plugins[0])
	}
	if plugins[1].SourceID != "reuters_top" || plugins[1].DefaultEnabled {
		t.Fatalf("second plugin: got %+v", plugins[1])
	}
	if plugins[1].PollIntervalSeconds != 600 {
		t.Fatalf("poll override: got %d", plugins[1].PollIntervalSeconds)
	}
}

func TestLoadFeedPacks_MissingDir(t *testing.T) {
	packs, err := LoadFeedPacks(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("missing dir should not error: %v", err)
	}
	if len(packs) != 0 {
		t.Fatalf("packs from missing dir: got %d", len(packs))
	}
}

func TestEnsureSources_KeepsOperatorToggle(t *testing.T) {
	s, st := newTestScheduler(t)
	ctx := context.Background()

	s.Register([]Plugin{{
		SourceID:            "demo_feed",
		Name:                "Demo Feed",
		URL:                 "https://example.org/demo.rss",
		SourceType:          "rss",
		PollIntervalSeconds: 300,
		DefaultEnabled:      true,
	}})
	if err := s.EnsureSources(ctx); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := st.SetSourceEnabled(ctx, "demo_feed", false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if err := s.EnsureSources(ctx); err != nil {
		t.Fatalf("re-ensure: %v", err)
	}
	src, err := st.GetSource(ctx, "demo_feed")
	if err != nil {
		t.Fatalf("get source: %v", err)
	}
	if src.Enabled {
		t.Fatal("re-ensure should not flip an operator disable")
	}
}

func TestExpandHANSVolcanoes_EnableAndDisable(t *testing.T) {
	s, st := newTestScheduler(t)
	ctx := context.Background()

	items := []model.Item{
		{Title: "Kilauea", Raw: map[string]any{"vnum": "332010", "volcano_name": "Kilauea"}},
		{Title: "Great Sitkin", Raw: map[string]any{"vnum": "311120", "volcano_name": "Great Sitkin"}},
	}
	s.expandHANSVolcanoes(ctx, items)

	ids, err := st.SourceIDsWithPrefix(ctx, "hans_volcano_")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("volcano sources: got %v", ids)
	}
	src, err := st.GetSource(ctx, "hans_volcano_332010")
	if err != nil {
		t.Fatalf("get source: %v", err)
	}
	if !src.Enabled {
		t.Fatal("elevated volcano source should be enabled")
	}
	if src.Name != "USGS HANS Volcano (Kilauea)" {
		t.Fatalf("volcano source name: got %q", src.Name)
	}
	if !strings.HasSuffix(src.URL, "/rss/cap/volcano/332010") {
		t.Fatalf("volcano source url: got %q", src.URL)
	}

	// Kilauea drops off the elevated list
	s.expandHANSVolcanoes(ctx, items[1:])
	src, err = st.GetSource(ctx, "hans_volcano_332010")
	if err != nil {
		t.Fatalf("get source: %v", err)
	}
	if src.Enabled {
		t.Fatal("de-elevated volcano source should be disabled")
	}
	src, err = st.GetSource(ctx, "hans_volcano_311120")
	if err != nil {
		t.Fatalf("get source: %v", err)
	}
	if !src.Enabled {
		t.Fatal("still-elevated volcano source should stay enabled")
	}
}

func TestReviveDynamic_RebuildsVolcanoPlugin(t *testing.T) {
	s, _ := newTestScheduler(t)
	p, ok := s.reviveDynamic(model.Source{
		SourceID: "hans_volcano_332010",
		Name:     "USGS HANS Volcano (Kilauea)",
	})
	if !ok {
		t.Fatal("volcano source should be revivable")
	}
	if p.URL != "https://volcanoes.usgs.gov/hans-public/rss/cap/volcano/332010" {
		t.Fatalf("revived url: got %q", p.URL)
	}
	if _, ok := s.plugin("hans_volcano_332010"); !ok {
		t.Fatal("revived plugin should be registered")
	}
	if _, ok := s.reviveDynamic(model.Source{SourceID: "reddit_news"}); ok {
		t.Fatal("non-volcano sources are not revivable")
	}
}

func TestEnrich_CoordsInText(t *testing.T) {
	s, _ := newTestScheduler(t)
	it := model.Item{
		Category:           model.CategoryMaritimeWarning,
		Title:              "NAVAREA IV warning",
		Summary:            "Hazardous operations near 36.4, -75.7 and 36.6, -75.9 until further notice",
		LocationConfidence: model.ConfUnknown,
	}
	s.enrich(context.Background(), &it)
	if it.LocationConfidence != model.ConfCoordsInText {
		t.Fatalf("confidence: got %q", it.LocationConfidence)
	}
	if it.Lat == nil || it.Lon == nil {
		t.Fatal("coordinates should be set")
	}
	if math.Abs(*it.Lat-36.5) > 1e-9 || math.Abs(*it.Lon+75.8) > 1e-9 {
		t.Fatalf("centroid: got %v,%v", *it.Lat, *it.Lon)
	}
	if it.LocationRationale != "Coordinates found in text" {
		t.Fatalf("rationale: got %q", it.LocationRationale)
	}
}

func TestEnrich_CountryCentroidFallback(t *testing.T) {
	s, st := newTestScheduler(t)
	ctx := context.Background()

	err := st.WriteTx(ctx, func(tx *sql.Tx) error {
		return gazetteer.UpsertCountryPlaceTx(tx, "Fiji", "FJ", -17.7, 178.0)
	})
	if err != nil {
		t.Fatalf("seed country: %v", err)
	}
	s.gaz.Invalidate()

	it := model.Item{
		Category:           model.CategoryTravelAdvisory,
		Title:              "Fiji - exercise normal safety precautions",
		LocationName:       "Fiji",
		LocationConfidence: model.ConfCountry,
		LocationRationale:  "Country prefix in title",
	}
	s.enrich(ctx, &it)
	if it.Lat == nil || it.Lon == nil {
		t.Fatal("centroid fallback should set coordinates")
	}
	if *it.Lat != -17.7 || *it.Lon != 178.0 {
		t.Fatalf("centroid: got %v,%v", *it.Lat, *it.Lon)
	}
	if it.LocationConfidence != model.ConfCountry {
		t.Fatalf("confidence should stay country level: got %q", it.LocationConfidence)
	}
}

func TestEnrich_StructuredGeometryUntouched(t *testing.T) {
	s, _ := newTestScheduler(t)
	lat, lon := 51.5, -0.1
	it := model.Item{
		Category:           model.CategoryEarthquake,
		Title:              "M 5.0 - Somewhere at 10.0N 20.0E",
		Lat:                &lat,
		Lon:                &lon,
		LocationConfidence: model.ConfExact,
		LocationRationale:  "USGS GeoJSON coordinates",
	}
	s.enrich(context.Background(), &it)
	if *it.Lat != 51.5 || it.LocationConfidence != model.ConfExact {
		t.Fatal("structured geometry must not be overridden")
	}
}

func TestIngest_SkipsDuplicates(t *testing.T) {
	s, st := newTestScheduler(t)
	ctx := context.Background()

	src := model.Source{SourceID: "usgs_all_hour", SourceType: "geojson_api"}
	if err := st.EnsureSource(ctx, model.Source{
		SourceID:            "usgs_all_hour",
		Name:                "USGS Earthquakes (All, Past Hour)",
		SourceType:          "geojson_api",
		URL:                 "https://example.org/quakes",
		PollIntervalSeconds: 60,
		Enabled:             true,
	}, "2026-08-24T12:00:00.000Z"); err != nil {
		t.Fatalf("ensure source: %v", err)
	}

	items := quakeItems(t, "usgs_all_hour", "ak0261", "M 4.2 - near Adak")
	inserted, err := s.ingest(ctx, src, items)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(inserted) != 1 {
		t.Fatalf("first pass inserted: got %d", len(inserted))
	}

	// Same external id again, as the next poll would deliver
	inserted, err = s.ingest(ctx, src, quakeItems(t, "usgs_all_hour", "ak0261", "M 4.2 - near Adak"))
	if err != nil {
		t.Fatalf("re-ingest: %v", err)
	}
	if len(inserted) != 0 {
		t.Fatalf("second pass inserted: got %d", len(inserted))
	}
}

func quakeItems(t *testing.T, sourceID, externalID, title string) []model.Item {
	t.Helper()
	lat, lon := 51.7, -176.7
	return []model.Item{{
		ItemID:             externalID + "-" + title,
		SourceID:           sourceID,
		SourceType:         "geojson_api",
		ExternalID:         externalID,
		URL:                "https://example.org/quakes/" + externalID,
		Title:              title,
		Summary:            title,
		PublishedAt:        "2026-08-24T12:00:00.000Z",
		FetchedAt:          "2026-08-24T12:00:01.000Z",
		Category:           model.CategoryEarthquake,
		Tags:               []string{"usgs"},
		Lat:                &lat,
		Lon:                &lon,
		LocationConfidence: model.ConfExact,
		LocationRationale:  "USGS GeoJSON coordinates",
		Raw:                map[string]any{"mag": 4.2},
		HashTitle:          "hash-" + externalID,
		HashContent:        "hash-" + externalID,
		SimHash:            1,
	}}
}

func navwarnItem(itemID, url, publishedAt string) model.Item {
	return model.Item{
		ItemID:             itemID,
		SourceID:           "msi_navwarn_current",
		SourceType:         "json_api",
		URL:                url,
		Title:              "NAVAREA IV 512/26 western Atlantic hazardous operations",
		Summary:            "Hazardous operations in the western Atlantic.",
		PublishedAt:        publishedAt,
		FetchedAt:          publishedAt,
		Category:           model.CategoryMaritimeWarning,
		Tags:               []string{"msi"},
		LocationConfidence: model.ConfUnknown,
		LocationRationale:  "no location",
		Raw:                map[string]any{},
		HashTitle:          "navwarn-title-hash",
		HashContent:        "navwarn-content-" + itemID,
		SimHash:            7,
	}
}

func TestIngest_TitleHashDedupeWithoutExternalID(t *testing.T) {
	s, st := newTestScheduler(t)
	ctx := context.Background()

	src := model.Source{SourceID: "msi_navwarn_current", SourceType: "json_api"}
	if err := st.EnsureSource(ctx, model.Source{
		SourceID:            "msi_navwarn_current",
		Name:                "NGA MSI Broadcast Warnings",
		SourceType:          "json_api",
		URL:                 "https://example.org/navwarn",
		PollIntervalSeconds: 900,
		Enabled:             true,
	}, timeiso.Now()); err != nil {
		t.Fatalf("ensure source: %v", err)
	}

	now := time.Now().UTC()
	first := navwarnItem("nw-1", "https://example.org/navwarn/1", timeiso.Format(now.Add(-30*time.Minute)))
	inserted, err := s.ingest(ctx, src, []model.Item{first})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(inserted) != 1 {
		t.Fatalf("first pass inserted: got %d", len(inserted))
	}

	// Same normalized title, no external id, a different URL: the
	// 24h title window must still catch it.
	repeat := navwarnItem("nw-2", "https://example.org/navwarn/2", timeiso.Format(now))
	inserted, err = s.ingest(ctx, src, []model.Item{repeat})
	if err != nil {
		t.Fatalf("re-ingest: %v", err)
	}
	if len(inserted) != 0 {
		t.Fatalf("repeated title within 24h inserted again: got %d new items", len(inserted))
	}
}

func TestIngest_TitleHashWindowExpires(t *testing.T) {
	s, st := newTestScheduler(t)
	ctx := context.Background()

	src := model.Source{SourceID: "msi_navwarn_current", SourceType: "json_api"}
	if err := st.EnsureSource(ctx, model.Source{
		SourceID:            "msi_navwarn_current",
		Name:                "NGA MSI Broadcast Warnings",
		SourceType:          "json_api",
		URL:                 "https://example.org/navwarn",
		PollIntervalSeconds: 900,
		Enabled:             true,
	}, timeiso.Now()); err != nil {
		t.Fatalf("ensure source: %v", err)
	}

	now := time.Now().UTC()
	stale := navwarnItem("nw-old", "https://example.org/navwarn/old", timeiso.Format(now.Add(-36*time.Hour)))
	if _, err := s.ingest(ctx, src, []model.Item{stale}); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	fresh := navwarnItem("nw-fresh", "https://example.org/navwarn/fresh", timeiso.Format(now))
	inserted, err := s.ingest(ctx, src, []model.Item{fresh})
	if err != nil {
		t.Fatalf("re-ingest: %v", err)
	}
	if len(inserted) != 1 {
		t.Fatalf("title older than 24h should not block insert: got %d", len(inserted))
	}
}

func TestRunOne_RetryAfterOverridesBackoff(t *testing.T) {
	s, st := newTestScheduler(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := Plugin{
		SourceID:            "throttled_feed",
		Name:                "Throttled Feed",
		URL:                 srv.URL,
		SourceType:          "json_api",
		PollIntervalSeconds: 30,
		DefaultEnabled:      true,
		Decode: func(_ []byte, _ string) ([]model.Item, error) {
			return nil, nil
		},
	}
	s.Register([]Plugin{p})
	if err := st.EnsureSource(ctx, p.Source(), timeiso.Now()); err != nil {
		t.Fatalf("ensure source: %v", err)
	}
	src, err := st.GetSource(ctx, "throttled_feed")
	if err != nil {
		t.Fatalf("get source: %v", err)
	}

	before := time.Now().UTC()
	s.runOne(ctx, src)

	src, err = st.GetSource(ctx, "throttled_feed")
	if err != nil {
		t.Fatalf("get source after fetch: %v", err)
	}
	if src.ConsecutiveFailures != 1 {
		t.Fatalf("consecutive failures: got %d, want 1", src.ConsecutiveFailures)
	}
	next, err := timeiso.Parse(src.NextFetchAt)
	if err != nil {
		t.Fatalf("parse next_fetch_at %q: %v", src.NextFetchAt, err)
	}
	// Retry-After 120s beats the doubled 30s interval; allow a little
	// slack for the wall clock between fail and reschedule.
	if next.Before(before.Add(115 * time.Second)) {
		t.Fatalf("next_fetch_at %q ignores Retry-After (before was %q)",
			src.NextFetchAt, timeiso.Format(before))
	}
	if next.After(before.Add(130 * time.Second)) {
		t.Fatalf("next_fetch_at %q too far out", src.NextFetchAt)
	}
}
