package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type DedupeCfg struct {
	Driver    string
	RedisAddr string
	Window    time.Duration
}

type EventExportCfg struct {
	Driver  string
	Brokers string
	Topic   string
}

type Config struct {
	Addr       string
	LogLevel   string
	LogConsole bool
	LogSampleN int

	DBPath        string
	FeedsDir      string
	CountriesFile string
	AirportsFile  string
	MapTileURL    string
	UserAgent     string

	FIRMSAPIKey string
	NVDAPIKey   string

	MastodonInstances string
	MastodonTags      string

	BlueskyHandle      string
	BlueskyAppPassword string

	ItemsRetentionDays     int
	IncidentsRetentionDays int

	Dedupe      DedupeCfg
	EventExport EventExportCfg
}

func FromEnv() Config {
	return Config{
		Addr:       getenv("ADDR", ":8090"),
		LogLevel:   getenv("LOG_LEVEL", "info"),
		LogConsole: getbool("LOG_CONSOLE", false),
		LogSampleN: getint("LOG_SAMPLE_N", 0),

		DBPath:        getenv("DB_PATH", "data/sitmon.db"),
		FeedsDir:      getenv("FEEDS_DIR", "feeds"),
		CountriesFile: getenv("COUNTRIES_FILE", "data/countries.geojson"),
		AirportsFile:  getenv("AIRPORTS_FILE", "data/airports.csv"),
		MapTileURL:    getenv("MAP_TILE_URL", "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png"),
		UserAgent:     getenv("USER_AGENT", "sitmon/0.1"),

		FIRMSAPIKey: getenv("FIRMS_API_KEY", ""),
		NVDAPIKey:   getenv("NVD_API_KEY", ""),

		MastodonInstances: getenv("MASTODON_INSTANCES", ""),
		MastodonTags: getenv("MASTODON_TAGS",
			"#earthquake,#wildfire,#flood,#tsunami,#storm,#breaking,#OSINT"),

		BlueskyHandle:      getenv("BLUESKY_HANDLE", ""),
		BlueskyAppPassword: getenv("BLUESKY_APP_PASSWORD", ""),

		ItemsRetentionDays:     getint("ITEMS_RETENTION_DAYS", 30),
		IncidentsRetentionDays: getint("INCIDENTS_RETENTION_DAYS", 90),

		Dedupe: DedupeCfg{
			Driver:    getenv("DEDUPE_DRIVER", "none"),
			RedisAddr: getenv("REDIS_ADDR", "localhost:6379"),
			Window:    getduration("DEDUPE_WINDOW", 24*time.Hour),
		},
		EventExport: EventExportCfg{
			Driver:  getenv("EVENT_EXPORT_DRIVER", "none"),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			Topic:   getenv("KAFKA_TOPIC", "sitmon-events"),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
