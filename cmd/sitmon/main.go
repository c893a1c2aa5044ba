package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/evhagen/sitmon/internal/bus"
	"github.com/evhagen/sitmon/internal/config"
	"github.com/evhagen/sitmon/internal/dedupe"
	"github.com/evhagen/sitmon/internal/gazetteer"
	"github.com/evhagen/sitmon/internal/geo"
	"github.com/evhagen/sitmon/internal/httpapi"
	"github.com/evhagen/sitmon/internal/logger"
	"github.com/evhagen/sitmon/internal/observability"
	"github.com/evhagen/sitmon/internal/sched"
	"github.com/evhagen/sitmon/internal/store"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.FromEnv()

	log := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: "sitmon",
	}, os.Stdout)

	observability.ExposeBuildInfo(Version)
	log.Info().
		Str("addr", cfg.Addr).
		Str("version", Version).
		Str("db", cfg.DBPath).
		Msg("starting sitmon")

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Error().Err(err).Msg("store open failed")
		return 1
	}
	defer st.Close()

	gaz, err := gazetteer.New(st)
	if err != nil {
		log.Error().Err(err).Msg("gazetteer init failed")
		return 1
	}
	if _, err := os.Stat(cfg.CountriesFile); err == nil {
		n, err := gaz.SeedCountries(context.Background(), cfg.CountriesFile)
		if err != nil {
			log.Error().Err(err).Msg("country seed failed")
			return 1
		}
		log.Info().Int("inserted", n).Msg("country gazetteer seeded")
	} else {
		log.Warn().Str("path", cfg.CountriesFile).
			Msg("countries file missing, country matching limited to stored places")
	}

	airports := map[string]geo.Airport{}
	if _, err := os.Stat(cfg.AirportsFile); err == nil {
		airports, err = geo.LoadAirportsByIATA(cfg.AirportsFile)
		if err != nil {
			log.Error().Err(err).Msg("airport data load failed")
			return 1
		}
		log.Info().Int("airports", len(airports)).Msg("airport reference data loaded")
	} else {
		log.Warn().Str("path", cfg.AirportsFile).
			Msg("airports file missing, FAA disruptions will lack coordinates")
	}

	window, err := dedupe.New(cfg.Dedupe.Driver, cfg.Dedupe.RedisAddr, cfg.Dedupe.Window)
	if err != nil {
		log.Error().Err(err).Msg("dedupe window init failed")
		return 1
	}
	defer window.Close()

	b := bus.New()
	exporter, err := bus.NewExporter(cfg.EventExport.Driver,
		splitCSV(cfg.EventExport.Brokers), cfg.EventExport.Topic, log)
	if err != nil {
		log.Error().Err(err).Msg("event exporter init failed")
		return 1
	}
	defer exporter.Close()

	packs, err := sched.LoadFeedPacks(cfg.FeedsDir)
	if err != nil {
		log.Error().Err(err).Msg("feed pack load failed")
		return 1
	}
	log.Info().Int("packs", len(packs)).Msg("feed packs loaded")

	scheduler := sched.New(st, gaz, b, exporter, window, cfg, log)
	scheduler.Register(sched.BuiltinSources(cfg, airports))
	scheduler.Register(sched.FeedPackSources(packs))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	schedDone := make(chan struct{})
	go func() {
		scheduler.Run(ctx)
		close(schedDone)
	}()

	api := httpapi.New(st, gaz, b, packs, cfg, log)
	if err := httpapi.Run(ctx, cfg.Addr, log, api.Router()); err != nil {
		log.Error().Err(err).Msg("http server failed")
		stop()
		<-schedDone
		return 1
	}

	<-schedDone
	log.Info().Msg("sitmon stopped")
	return 0
}

func splitCSV(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
