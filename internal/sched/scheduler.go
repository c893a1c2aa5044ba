package sched

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/evhagen/sitmon/internal/bus"
	"github.com/evhagen/sitmon/internal/cluster"
	"github.com/evhagen/sitmon/internal/config"
	"github.com/evhagen/sitmon/internal/dedupe"
	"github.com/evhagen/sitmon/internal/fetch"
	"github.com/evhagen/sitmon/internal/gazetteer"
	"github.com/evhagen/sitmon/internal/model"
	"github.com/evhagen/sitmon/internal/store"
	"github.com/evhagen/sitmon/internal/timeiso"
)

const (
	dueBatchSize      = 12
	globalConcurrency = 4
	idleSleep         = 500 * time.Millisecond
	retentionDelay    = 10 * time.Minute
	retentionInterval = time.Hour
)

// Scheduler polls enabled sources on their schedules and pushes new
// items through normalization, storage and clustering.
type Scheduler struct {
	st        *store.Store
	gaz       *gazetteer.Gazetteer
	bus       *bus.Bus
	exporter  bus.Exporter
	window    dedupe.Window
	clusterer *cluster.Clusterer
	client    *fetch.Client
	auth      *http.Client
	cfg       config.Config
	log       zerolog.Logger

	mu      sync.Mutex
	plugins map[string]Plugin

	global   *semaphore.Weighted
	hostMu   sync.Mutex
	hosts    map[string]*semaphore.Weighted
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

func New(st *store.Store, gaz *gazetteer.Gazetteer, b *bus.Bus, exporter bus.Exporter,
	window dedupe.Window, cfg config.Config, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		st:        st,
		gaz:       gaz,
		bus:       b,
		exporter:  exporter,
		window:    window,
		clusterer: cluster.New(st),
		client:    fetch.NewClient(cfg.UserAgent),
		auth:      &http.Client{Timeout: 10 * time.Second},
		cfg:       cfg,
		log:       log.With().Str("component", "sched").Logger(),
		plugins:   make(map[string]Plugin),
		global:    semaphore.NewWeighted(globalConcurrency),
		hosts:     make(map[string]*semaphore.Weighted),
		inflight:  make(map[string]struct{}),
	}
}

// Register adds or replaces plugins in the in-memory catalog.
func (s *Scheduler) Register(plugins []Plugin) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range plugins {
		s.plugins[p.SourceID] = p
	}
}

func (s *Scheduler) plugin(sourceID string) (Plugin, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plugins[sourceID]
	return p, ok
}

// EnsureSources syncs the registered catalog into the sources table.
// Operator toggles and schedule state survive restarts.
func (s *Scheduler) EnsureSources(ctx context.Context) error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.plugins))
	for id := range s.plugins {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	plugins := make([]Plugin, 0, len(ids))
	for _, id := range ids {
		plugins = append(plugins, s.plugins[id])
	}
	s.mu.Unlock()

	nowISO := timeiso.Now()
	for _, p := range plugins {
		if err := s.st.EnsureSource(ctx, p.Source(), nowISO); err != nil {
			return err
		}
	}
	return nil
}

// Run drives the poll loop until the context is cancelled. It blocks;
// call it from its own goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	if err := s.discoverMSI(ctx); err != nil {
		s.log.Warn().Err(err).Msg("msi openapi discovery failed")
	}
	if err := s.EnsureSources(ctx); err != nil {
		s.log.Error().Err(err).Msg("ensure sources failed")
	}

	s.wg.Add(1)
	go s.retentionLoop(ctx)

	for {
		if sleepCtx(ctx, 0) {
			break
		}
		enabled, err := s.st.PollingEnabled(ctx)
		if err != nil {
			s.log.Error().Err(err).Msg("polling gate check failed")
			sleepCtx(ctx, time.Second)
			continue
		}
		if !enabled {
			sleepCtx(ctx, time.Second)
			continue
		}

		due, err := s.st.DueSources(ctx, timeiso.Now(), dueBatchSize)
		if err != nil {
			s.log.Error().Err(err).Msg("due sources query failed")
			sleepCtx(ctx, time.Second)
			continue
		}
		for _, src := range due {
			if !s.claim(src.SourceID) {
				continue
			}
			s.wg.Add(1)
			go s.dispatch(ctx, src)
		}
		sleepCtx(ctx, idleSleep)
	}
	s.wg.Wait()
}

// claim marks a source as in flight so the due query cannot dispatch
// it twice while a fetch is still running.
func (s *Scheduler) claim(sourceID string) bool {
	s.hostMu.Lock()
	defer s.hostMu.Unlock()
	if _, busy := s.inflight[sourceID]; busy {
		return false
	}
	s.inflight[sourceID] = struct{}{}
	return true
}

func (s *Scheduler) release(sourceID string) {
	s.hostMu.Lock()
	delete(s.inflight, sourceID)
	s.hostMu.Unlock()
}

func (s *Scheduler) hostSem(host string) *semaphore.Weighted {
	s.hostMu.Lock()
	defer s.hostMu.Unlock()
	sem, ok := s.hosts[host]
	if !ok {
		sem = semaphore.NewWeighted(1)
		s.hosts[host] = sem
	}
	return sem
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}

// dispatch runs one fetch under the global limit and a per-host lock
// so no upstream sees concurrent requests from us.
func (s *Scheduler) dispatch(ctx context.Context, src model.Source) {
	defer s.wg.Done()
	defer s.release(src.SourceID)

	if err := s.global.Acquire(ctx, 1); err != nil {
		return
	}
	defer s.global.Release(1)

	host := s.hostSem(hostOf(src.URL))
	if err := host.Acquire(ctx, 1); err != nil {
		return
	}
	defer host.Release(1)

	s.runOne(ctx, src)
}

func (s *Scheduler) retentionLoop(ctx context.Context) {
	defer s.wg.Done()
	timer := time.NewTimer(retentionDelay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.runRetention(ctx)
			timer.Reset(retentionInterval)
		}
	}
}

func (s *Scheduler) runRetention(ctx context.Context) {
	now := time.Now().UTC()
	cutoffs := store.RetentionCutoffs{
		CoolingISO:   timeiso.Format(now.Add(-24 * time.Hour)),
		ResolvedISO:  timeiso.Format(now.Add(-72 * time.Hour)),
		ItemsISO:     timeiso.Format(now.AddDate(0, 0, -s.cfg.ItemsRetentionDays)),
		IncidentsISO: timeiso.Format(now.AddDate(0, 0, -s.cfg.IncidentsRetentionDays)),
	}
	if err := s.st.RunRetention(ctx, cutoffs); err != nil {
		s.log.Error().Err(err).Msg("retention pass failed")
		return
	}
	s.log.Info().Msg("retention pass complete")
}

func (s *Scheduler) publish(eventType string, data map[string]any) {
	ev := bus.Event{Type: eventType, Data: data}
	s.bus.Publish(ev)
	if s.exporter != nil {
		s.exporter.Export(ev)
	}
}

// sleepCtx sleeps for d unless the context ends first; it reports
// whether the context is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return true
		default:
			return false
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return true
	case <-t.C:
		return false
	}
}
