package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/evhagen/sitmon/internal/bus"
	"github.com/evhagen/sitmon/internal/config"
	"github.com/evhagen/sitmon/internal/gazetteer"
	"github.com/evhagen/sitmon/internal/sched"
	"github.com/evhagen/sitmon/internal/store"
	"github.com/evhagen/sitmon/internal/timeiso"
)

// API bundles the dependencies the handlers need.
type API struct {
	st    *store.Store
	gaz   *gazetteer.Gazetteer
	bus   *bus.Bus
	packs []sched.FeedPack
	cfg   config.Config
	log   zerolog.Logger
}

func New(st *store.Store, gaz *gazetteer.Gazetteer, b *bus.Bus,
	packs []sched.FeedPack, cfg config.Config, log zerolog.Logger) *API {
	return &API{
		st:    st,
		gaz:   gaz,
		bus:   b,
		packs: packs,
		cfg:   cfg,
		log:   log.With().Str("component", "httpapi").Logger(),
	}
}

// Router mounts every endpoint with the standard middleware stack.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(Recover(a.log))
	r.Use(Logging(a.log))
	r.Use(CORS())

	r.Get("/healthz", a.handleHealthz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/sse", a.handleSSE)

	r.Route("/api", func(r chi.Router) {
		r.Get("/incidents", a.handleIncidents)
		r.Get("/incidents/grid", a.handleIncidentGrid)
		r.Get("/incidents/{incidentID}", a.handleIncident)
		r.Get("/incidents/{incidentID}/items", a.handleIncidentItems)
		r.Get("/items", a.handleItems)
		r.Get("/sources", a.handleSources)
		r.Get("/stats", a.handleStats)
		r.Get("/timeline", a.handleTimeline)
		r.Get("/places/suggest", a.handlePlacesSuggest)
		r.Get("/views", a.handleListViews)
		r.Post("/views", a.handleSaveView)
		r.Delete("/views/{viewID}", a.handleDeleteView)
		r.Get("/settings", a.handleGetSettings)
		r.Post("/settings", a.handlePostSettings)
	})
	return r
}

func (a *API) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// windowDuration maps the preset windows; anything unknown falls back
// to 24 hours.
func windowDuration(window string) time.Duration {
	switch window {
	case "1h":
		return time.Hour
	case "6h":
		return 6 * time.Hour
	case "24h":
		return 24 * time.Hour
	case "7d":
		return 7 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// timeRange resolves the since/until pair from explicit timestamps,
// an asof replay point, or the named window.
func timeRange(r *http.Request) (sinceISO, untilISO, asofISO string) {
	q := r.URL.Query()
	until := time.Now().UTC()

	if asof := strings.TrimSpace(q.Get("asof")); asof != "" {
		if t, err := timeiso.Parse(asof); err == nil {
			until = t
			asofISO = timeiso.Format(t)
		}
	} else if u := strings.TrimSpace(q.Get("until")); u != "" {
		if t, err := timeiso.Parse(u); err == nil {
			until = t
		}
	}

	since := until.Add(-windowDuration(q.Get("window")))
	if s := strings.TrimSpace(q.Get("since")); s != "" {
		if t, err := timeiso.Parse(s); err == nil {
			since = t
		}
	}
	return timeiso.Format(since), timeiso.Format(until), asofISO
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBBox(value string) *store.BBox {
	parts := splitCSV(value)
	if len(parts) != 4 {
		return nil
	}
	nums := make([]float64, 4)
	for i, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil
		}
		nums[i] = f
	}
	return &store.BBox{MinLon: nums[0], MinLat: nums[1], MaxLon: nums[2], MaxLat: nums[3]}
}

func parseOptionalInt(value string) *int {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return nil
	}
	return &n
}
