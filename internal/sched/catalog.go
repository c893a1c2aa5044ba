package sched

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/evhagen/sitmon/internal/config"
	"github.com/evhagen/sitmon/internal/geo"
	"github.com/evhagen/sitmon/internal/model"
	"github.com/evhagen/sitmon/internal/normalize"
	"github.com/evhagen/sitmon/internal/parser"
	"github.com/evhagen/sitmon/internal/store"
	"github.com/evhagen/sitmon/internal/timeiso"
)

// BuiltinSources assembles the full catalog of first-party sources.
// Feed pack sources are loaded separately from the feeds directory.
func BuiltinSources(cfg config.Config, airportsByIATA map[string]geo.Airport) []Plugin {
	var out []Plugin
	out = append(out, Phase1Sources()...)
	out = append(out, Phase2Sources(cfg, airportsByIATA)...)
	out = append(out, Phase3Sources(cfg)...)
	return out
}

// Phase1Sources covers the geophysical and weather backbone plus
// Smartraveller advisories.
func Phase1Sources() []Plugin {
	plugins := []Plugin{
		{
			SourceID:            "usgs_all_hour",
			Name:                "USGS Earthquakes (All, Past Hour)",
			URL:                 "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/all_hour.geojson",
			SourceType:          "geojson_api",
			PollIntervalSeconds: 60,
			DefaultEnabled:      true,
		},
		{
			SourceID:            "usgs_all_day",
			Name:                "USGS Earthquakes (All, Past Day)",
			URL:                 "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/all_day.geojson",
			SourceType:          "geojson_api",
			PollIntervalSeconds: 600,
			DefaultEnabled:      true,
		},
		{
			SourceID:            "usgs_45_hour",
			Name:                "USGS Earthquakes (M4.5+, Past Hour)",
			URL:                 "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/4.5_hour.geojson",
			SourceType:          "geojson_api",
			PollIntervalSeconds: 60,
			DefaultEnabled:      true,
		},
		{
			SourceID:            "nws_alerts_active",
			Name:                "NWS Alerts (Active)",
			URL:                 "https://api.weather.gov/alerts/active",
			SourceType:          "geojson_api",
			PollIntervalSeconds: 60,
			DefaultEnabled:      true,
		},
		{
			SourceID:            "nws_alerts_actual",
			Name:                "NWS Alerts (Actual)",
			URL:                 "https://api.weather.gov/alerts/active?status=actual",
			SourceType:          "geojson_api",
			PollIntervalSeconds: 60,
			DefaultEnabled:      true,
		},
		{
			SourceID:            "nws_alerts_severe",
			Name:                "NWS Alerts (Severe)",
			URL:                 "https://api.weather.gov/alerts/active?severity=Severe",
			SourceType:          "geojson_api",
			PollIntervalSeconds: 60,
			DefaultEnabled:      true,
		},
	}
	for i := range plugins[:3] {
		id := plugins[i].SourceID
		plugins[i].Decode = decodeGeoJSON(func(f parser.Feature, fetchedAt string) model.Item {
			return normalize.USGSEarthquake(id, f, fetchedAt)
		})
	}
	for i := 3; i < 6; i++ {
		id := plugins[i].SourceID
		plugins[i].Decode = decodeGeoJSON(func(f parser.Feature, fetchedAt string) model.Item {
			return normalize.NWSAlert(id, f, fetchedAt)
		})
	}

	nhc := []struct{ id, name, url string }{
		{"nhc_gtwo", "NHC Graphical Tropical Weather Outlooks", "https://www.nhc.noaa.gov/gtwo.xml"},
		{"nhc_index_at", "NHC Atlantic Tropical Cyclones", "https://www.nhc.noaa.gov/index-at.xml"},
		{"nhc_index_ep", "NHC Eastern Pacific Tropical Cyclones", "https://www.nhc.noaa.gov/index-ep.xml"},
		{"nhc_index_cp", "NHC Central Pacific Tropical Cyclones", "https://www.nhc.noaa.gov/index-cp.xml"},
		{"nhc_gis_at", "NHC Atlantic GIS", "https://www.nhc.noaa.gov/gis-at.xml"},
		{"nhc_gis_ep", "NHC Eastern Pacific GIS", "https://www.nhc.noaa.gov/gis-ep.xml"},
		{"nhc_gis_cp", "NHC Central Pacific GIS", "https://www.nhc.noaa.gov/gis-cp.xml"},
	}
	for _, n := range nhc {
		id := n.id
		plugins = append(plugins, Plugin{
			SourceID:            id,
			Name:                n.name,
			URL:                 n.url,
			SourceType:          "xml_api",
			PollIntervalSeconds: 300,
			DefaultEnabled:      true,
			Decode: decodeRSS(func(r parser.FeedRecord, fetchedAt string) model.Item {
				return normalize.NHCItem(id, r, fetchedAt)
			}),
		})
	}

	smartraveller := []struct{ id, name, url, level string }{
		{"smartraveller_documents", "Smartraveller Documents",
			"https://www.smartraveller.gov.au/countries/documents/index.rss", "all"},
		{"smartraveller_do_not_travel", "Smartraveller Do Not Travel",
			"https://www.smartraveller.gov.au/countries/documents/do-not-travel.rss", "do_not_travel"},
		{"smartraveller_reconsider", "Smartraveller Reconsider Your Need to Travel",
			"https://www.smartraveller.gov.au/countries/documents/reconsider-your-need-to-travel.rss",
			"reconsider_your_need_to_travel"},
	}
	for _, s := range smartraveller {
		id, level := s.id, s.level
		plugins = append(plugins, Plugin{
			SourceID:            id,
			Name:                s.name,
			URL:                 s.url,
			SourceType:          "rss",
			PollIntervalSeconds: 3600,
			DefaultEnabled:      true,
			Decode: decodeRSS(func(r parser.FeedRecord, fetchedAt string) model.Item {
				return normalize.SmartravellerRSS(id, r, fetchedAt, level)
			}),
		})
	}
	plugins = append(plugins, Plugin{
		SourceID:            "smartraveller_export",
		Name:                "Smartraveller Destinations Export",
		URL:                 "https://www.smartraveller.gov.au/destinations-export",
		SourceType:          "json_api",
		PollIntervalSeconds: 21600,
		DefaultEnabled:      true,
		Decode: decodeJSONRecords(func(rec map[string]any, fetchedAt string) model.Item {
			return normalize.SmartravellerExport("smartraveller_export", rec, fetchedAt)
		}),
	})
	return plugins
}

const nvdBase = "https://services.nvd.nist.gov/rest/json/cves/2.0"

// nvdBuildURL asks for CVEs modified since the last successful fetch,
// minus a 15 minute overlap, or the past hour on a cold start.
func nvdBuildURL(_ context.Context, _ *store.Store, src model.Source) (string, error) {
	now := time.Now().UTC()
	start := now.Add(-time.Hour)
	if src.LastSuccessAt != "" {
		if t, err := timeiso.Parse(src.LastSuccessAt); err == nil {
			start = t.Add(-15 * time.Minute)
		}
	}
	q := url.Values{}
	q.Set("lastModStartDate", timeiso.Format(start))
	q.Set("lastModEndDate", timeiso.Format(now))
	q.Set("resultsPerPage", "2000")
	return nvdBase + "?" + q.Encode(), nil
}

const firmsBase = "https://firms.modaps.eosdis.nasa.gov/api/area/csv/"

// Phase2Sources covers disasters, tsunamis, wildfire hotspots, aviation
// and the advisory and vulnerability feeds.
func Phase2Sources(cfg config.Config, airportsByIATA map[string]geo.Airport) []Plugin {
	firmsKey := strings.TrimSpace(cfg.FIRMSAPIKey)

	plugins := []Plugin{
		{
			SourceID:            "gdacs_rss",
			Name:                "GDACS (Global Disaster Alerts)",
			URL:                 "https://www.gdacs.org/xml/rss.xml",
			SourceType:          "rss",
			PollIntervalSeconds: 300,
			DefaultEnabled:      true,
			Decode: decodeRSS(func(r parser.FeedRecord, fetchedAt string) model.Item {
				return normalize.GDACSRss("gdacs_rss", r, fetchedAt)
			}),
		},
		{
			SourceID:            "eonet_open_events",
			Name:                "NASA EONET (Open Events)",
			URL:                 "https://eonet.gsfc.nasa.gov/api/v3/events?status=open",
			SourceType:          "json_api",
			PollIntervalSeconds: 900,
			DefaultEnabled:      true,
			Decode: decodeJSONRecords(func(rec map[string]any, fetchedAt string) model.Item {
				return normalize.EONETEvent("eonet_open_events", rec, fetchedAt)
			}),
		},
		{
			SourceID:            "hans_elevated_volcanoes",
			Name:                "USGS HANS (Elevated Volcanoes)",
			URL:                 "https://volcanoes.usgs.gov/hans-public/api/volcano/getElevatedVolcanoes",
			SourceType:          "json_api",
			PollIntervalSeconds: 300,
			DefaultEnabled:      true,
			Decode: decodeJSONRecords(func(rec map[string]any, fetchedAt string) model.Item {
				return normalize.HANSElevatedNotice("hans_elevated_volcanoes", rec, fetchedAt)
			}),
		},
		{
			SourceID:            "firms_hotspots",
			Name:                "NASA FIRMS (Wildfire Hotspots)",
			URL:                 firmsBase + "{FIRMS_API_KEY}/VIIRS_SNPP_NRT/world/1",
			SourceType:          "csv_api",
			PollIntervalSeconds: 900,
			DefaultEnabled:      firmsKey != "",
			BuildURL: func(context.Context, *store.Store, model.Source) (string, error) {
				return firmsBase + firmsKey + "/VIIRS_SNPP_NRT/world/1", nil
			},
			Decode: decodeCSVRecords(func(rec map[string]any, fetchedAt string) model.Item {
				return normalize.FIRMSHotspot("firms_hotspots", rec, fetchedAt)
			}),
		},
		{
			SourceID:            "faa_airport_status",
			Name:                "FAA NAS Status (Airport Status)",
			URL:                 "https://nasstatus.faa.gov/api/airport-status-information",
			SourceType:          "xml_api",
			PollIntervalSeconds: 180,
			DefaultEnabled:      true,
			Decode: decodeFAA(func(a parser.AirportStatus, fetchedAt string) model.Item {
				return normalize.FAAAirportDisruption("faa_airport_status", a, fetchedAt, airportsByIATA)
			}),
		},
		{
			SourceID:            "nvd_cves",
			Name:                "NVD CVE API (Recent Changes)",
			URL:                 nvdBase,
			SourceType:          "json_api",
			PollIntervalSeconds: 900,
			DefaultEnabled:      true,
			BuildURL:            nvdBuildURL,
			Decode: decodeJSONRecords(func(rec map[string]any, fetchedAt string) model.Item {
				return normalize.NVDCVE("nvd_cves", rec, fetchedAt)
			}),
		},
		{
			SourceID:            "cisa_kev",
			Name:                "CISA Known Exploited Vulnerabilities (KEV)",
			URL:                 "https://www.cisa.gov/sites/default/files/feeds/known_exploited_vulnerabilities.json",
			SourceType:          "json_api",
			PollIntervalSeconds: 21600,
			DefaultEnabled:      true,
			Decode: decodeJSONRecords(func(rec map[string]any, fetchedAt string) model.Item {
				return normalize.CISAKEV("cisa_kev", rec, fetchedAt)
			}),
		},
		{
			SourceID:            "govuk_travel_advice",
			Name:                "GOV.UK Foreign Travel Advice (Index)",
			URL:                 "https://www.gov.uk/api/content/foreign-travel-advice",
			SourceType:          "json_api",
			PollIntervalSeconds: 14400,
			DefaultEnabled:      true,
			Decode: decodeGovUKIndex(func(rec map[string]any, fetchedAt string) model.Item {
				return normalize.GOVUKTravelAdvice("govuk_travel_advice", rec, fetchedAt)
			}),
		},
		{
			SourceID:            "reliefweb_reports",
			Name:                "ReliefWeb Reports",
			URL:                 "https://api.reliefweb.int/v1/reports?appname=situation-monitor&limit=50&preset=latest",
			SourceType:          "json_api",
			PollIntervalSeconds: 1800,
			DefaultEnabled:      true,
			Decode: decodeJSONRecords(func(rec map[string]any, fetchedAt string) model.Item {
				return normalize.ReliefwebReport("reliefweb_reports", rec, fetchedAt)
			}),
		},
		{
			SourceID:            "reliefweb_disasters",
			Name:                "ReliefWeb Disasters",
			URL:                 "https://api.reliefweb.int/v1/disasters?appname=situation-monitor&limit=50&preset=latest",
			SourceType:          "json_api",
			PollIntervalSeconds: 1800,
			DefaultEnabled:      true,
			Decode: decodeJSONRecords(func(rec map[string]any, fetchedAt string) model.Item {
				return normalize.ReliefwebDisaster("reliefweb_disasters", rec, fetchedAt)
			}),
		},
	}
	if cfg.NVDAPIKey != "" {
		for i := range plugins {
			if plugins[i].SourceID == "nvd_cves" {
				plugins[i].Headers = map[string]string{"apiKey": cfg.NVDAPIKey}
			}
		}
	}

	tsunami := []struct {
		id, name, url string
		cap           bool
	}{
		{"tsunami_ntwc_atom", "Tsunami.gov NTWC (Atom)", "https://tsunami.gov/events/xml/PAAQAtom.xml", false},
		{"tsunami_ntwc_cap", "Tsunami.gov NTWC (CAP)", "https://tsunami.gov/events/xml/PAAQCAP.xml", true},
		{"tsunami_ptwc_atom", "Tsunami.gov PTWC (Atom)", "https://tsunami.gov/events/xml/PHEBAtom.xml", false},
		{"tsunami_ptwc_cap", "Tsunami.gov PTWC (CAP)", "https://tsunami.gov/events/xml/PHEBCAP.xml", true},
	}
	for _, t := range tsunami {
		id := t.id
		p := Plugin{
			SourceID:            id,
			Name:                t.name,
			URL:                 t.url,
			SourceType:          "xml_api",
			PollIntervalSeconds: 300,
			DefaultEnabled:      true,
		}
		if t.cap {
			p.Decode = decodeCAP(func(a parser.CAPAlert, fetchedAt string) model.Item {
				return normalize.TsunamiCAP(id, a, fetchedAt)
			})
		} else {
			p.Decode = decodeAtom(func(r parser.FeedRecord, fetchedAt string) model.Item {
				return normalize.TsunamiAtom(id, r, fetchedAt)
			})
		}
		plugins = append(plugins, p)
	}

	countryFeeds := []struct {
		id, name, url, category string
		tags                    []string
	}{
		{"cdc_travel_notices", "CDC Travel Health Notices",
			"https://wwwnc.cdc.gov/travel/rss/notices.xml",
			model.CategoryHealthAdvisory, []string{"cdc", "health_advisory"}},
		{"who_afro_emergencies", "WHO AFRO Emergencies",
			"https://www.afro.who.int/rss/emergencies.xml",
			model.CategoryHealthAdvisory, []string{"who", "health_advisory"}},
		{"travel_canada_updates", "Canada Travel Updates",
			"https://travel.gc.ca/feeds/rss/eng/travel-updates-24.aspx",
			model.CategoryTravelAdvisory, []string{"canada", "travel_advisory"}},
		{"travel_us_state", "US State Dept Travel Advisories",
			"https://travel.state.gov/_res/rss/TAs.xml",
			model.CategoryTravelAdvisory, []string{"us_state", "travel_advisory"}},
	}
	for _, f := range countryFeeds {
		id, category, tags := f.id, f.category, f.tags
		plugins = append(plugins, Plugin{
			SourceID:            id,
			Name:                f.name,
			URL:                 f.url,
			SourceType:          "rss",
			PollIntervalSeconds: 3600,
			DefaultEnabled:      true,
			Decode: decodeRSS(func(r parser.FeedRecord, fetchedAt string) model.Item {
				return normalize.CountryLevelRSS(id, r, fetchedAt, category, tags)
			}),
		})
	}
	return plugins
}

// msiBuildURL reads the discovered NGA MSI base URL from app_config,
// falling back to the public mirror.
func msiBuildURL(ctx context.Context, st *store.Store, _ model.Source) (string, error) {
	base := "https://msi.pub.kubic.nga.mil"
	if v, ok, err := st.GetConfig(ctx, "msi_api_base_url"); err != nil {
		return "", err
	} else if ok && v != "" {
		base = strings.TrimRight(v, "/")
	}
	return base + "/api/publications/broadcast-warn?output=json&status=current", nil
}

// mastodonTokenEnvKey maps an instance host to the env var holding its
// access token, e.g. mastodon.social -> MASTODON_TOKEN_MASTODON_SOCIAL.
func mastodonTokenEnvKey(instance string) string {
	key := strings.ToUpper(instance)
	for _, r := range []string{".", "-", ":"} {
		key = strings.ReplaceAll(key, r, "_")
	}
	return "MASTODON_TOKEN_" + key
}

func mastodonSourceID(instance, tagSlug string) string {
	host := strings.ToLower(instance)
	host = strings.ReplaceAll(host, ".", "_")
	host = strings.ReplaceAll(host, "-", "_")
	return "mastodon_" + host + "_" + tagSlug
}

// Phase3Sources covers maritime warnings and the social feeds. Social
// sources ship disabled and are enabled per deployment.
func Phase3Sources(cfg config.Config) []Plugin {
	plugins := []Plugin{
		{
			SourceID:            "msi_navwarn_current",
			Name:                "NGA MSI Broadcast Warnings (Current)",
			URL:                 "https://msi.pub.kubic.nga.mil/api/publications/broadcast-warn?output=json&status=current",
			SourceType:          "json_api",
			PollIntervalSeconds: 900,
			DefaultEnabled:      true,
			BuildURL:            msiBuildURL,
			Decode: decodeJSONRecords(func(rec map[string]any, fetchedAt string) model.Item {
				return normalize.MSIBroadcastWarning("msi_navwarn_current", rec, fetchedAt)
			}),
		},
	}

	for _, subreddit := range []string{"worldnews", "geopolitics", "Cybersecurity", "osint", "news"} {
		slug := strings.ToLower(subreddit)
		id := "reddit_" + slug
		tags := []string{"reddit", "r:" + slug}
		plugins = append(plugins, Plugin{
			SourceID:            id,
			Name:                "Reddit RSS /r/" + subreddit,
			URL:                 "https://www.reddit.com/r/" + subreddit + "/.rss",
			SourceType:          "rss",
			PollIntervalSeconds: 240,
			DefaultEnabled:      true,
			Headers:             map[string]string{"User-Agent": cfg.UserAgent + " (reddit rss)"},
			Decode: decodeRSS(func(r parser.FeedRecord, fetchedAt string) model.Item {
				return normalize.GenericRSS(id, r, fetchedAt, model.CategorySocial, tags)
			}),
		})
	}

	for _, instance := range splitTrim(cfg.MastodonInstances) {
		var headers map[string]string
		if token := os.Getenv(mastodonTokenEnvKey(instance)); token != "" {
			headers = map[string]string{"Authorization": "Bearer " + token}
		}
		for _, tag := range splitTrim(cfg.MastodonTags) {
			tagSlug := strings.ToLower(strings.TrimPrefix(tag, "#"))
			id := mastodonSourceID(instance, tagSlug)
			inst, tg := instance, tag
			plugins = append(plugins, Plugin{
				SourceID:            id,
				Name:                fmt.Sprintf("Mastodon #%s (%s)", tagSlug, instance),
				URL:                 fmt.Sprintf("https://%s/api/v1/timelines/tag/%s?limit=20", instance, tagSlug),
				SourceType:          "social",
				PollIntervalSeconds: 180,
				DefaultEnabled:      false,
				Headers:             headers,
				BuildURL: func(_ context.Context, _ *store.Store, src model.Source) (string, error) {
					q := url.Values{}
					q.Set("limit", "20")
					if src.Cursor != "" {
						q.Set("since_id", src.Cursor)
					}
					return fmt.Sprintf("https://%s/api/v1/timelines/tag/%s?%s", inst, tagSlug, q.Encode()), nil
				},
				Decode: decodeJSONRecords(func(rec map[string]any, fetchedAt string) model.Item {
					return normalize.MastodonStatus(id, rec, fetchedAt, inst, tg)
				}),
			})
		}
	}

	if cfg.BlueskyHandle != "" && cfg.BlueskyAppPassword != "" {
		plugins = append(plugins, Plugin{
			SourceID:            "bluesky_search_breaking",
			Name:                "Bluesky Search (breaking)",
			URL:                 "https://bsky.social/xrpc/app.bsky.feed.searchPosts?q=breaking&limit=30",
			SourceType:          "social",
			PollIntervalSeconds: 300,
			DefaultEnabled:      false,
			Decode: decodeJSONRecords(func(rec map[string]any, fetchedAt string) model.Item {
				return normalize.BlueskyPost("bluesky_search_breaking", rec, fetchedAt)
			}),
		})
	}
	return plugins
}

func splitTrim(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
