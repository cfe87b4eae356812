package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
	_ "time/tzdata" // the provider's timezone must resolve on minimal images

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// ListenAddr is the address the HTTP server binds to.
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	// ShutdownTimeout is the maximum duration to wait for in-flight requests
	// to complete during graceful shutdown.
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	// Timezone is the provider's local timezone. "Today", "tomorrow",
	// opening hours and midnight rollover are all judged in it.
	Timezone string `env:"TIMEZONE" envDefault:"Asia/Singapore"`

	// UpstreamURL is the base URL of the seat booking API.
	UpstreamURL string `env:"UPSTREAM_URL" envDefault:"https://www.nlb.gov.sg/seatbooking/api"`
	// UpstreamReferer is sent as the Referer header; the provider rejects
	// requests without it.
	UpstreamReferer string `env:"UPSTREAM_REFERER" envDefault:"https://www.nlb.gov.sg/"`
	// UpstreamTimeout bounds a single upstream call.
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"10s"`
	// UpstreamRateLimit is the sustained number of upstream requests per
	// second across the whole process. 0 means unlimited.
	UpstreamRateLimit float64 `env:"UPSTREAM_RATE_LIMIT" envDefault:"20"`
	// UpstreamBurst is the number of upstream requests allowed in a burst.
	UpstreamBurst int `env:"UPSTREAM_BURST" envDefault:"10"`
	// UpstreamConcurrency caps the timeslot queries one aggregation runs at
	// once. 0 means one goroutine per timeslot.
	UpstreamConcurrency int `env:"UPSTREAM_CONCURRENCY" envDefault:"16"`
	// UpstreamHealthInterval is how often the upstream is pinged to clear a
	// degraded status. 0 disables the ping; status then follows live
	// requests only.
	UpstreamHealthInterval time.Duration `env:"UPSTREAM_HEALTH_INTERVAL" envDefault:"2m"`

	// LibraryInfoTTL is how long the library catalogue stays fresh.
	LibraryInfoTTL time.Duration `env:"LIBRARY_INFO_TTL" envDefault:"10m"`
	// LibraryAvailabilityTTL is how long an availability grid stays fresh.
	LibraryAvailabilityTTL time.Duration `env:"LIBRARY_AVAILABILITY_TTL" envDefault:"5m"`
	// AreaMapURLTTL is how long area map URLs stay fresh. Stale URLs are
	// still served while a refresh runs.
	AreaMapURLTTL time.Duration `env:"AREA_MAP_URL_TTL" envDefault:"10m"`

	// PrewarmSchedule is a cron expression (e.g. "@every 5m") on which the
	// catalogue and today's grids for PrewarmLibraries are refreshed ahead of
	// callers. Empty disables prewarming.
	PrewarmSchedule string `env:"PREWARM_SCHEDULE"`
	// PrewarmLibraries lists library IDs (comma-separated) to prewarm.
	PrewarmLibraries []int `env:"PREWARM_LIBRARIES" envSeparator:","`

	// CORSOrigins lists origins (comma-separated) allowed to call the API
	// from a browser. Empty allows any origin without credentials.
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","`
	// APIRateLimit is the sustained requests per second allowed per client
	// IP. 0 disables the limiter.
	APIRateLimit float64 `env:"API_RATE_LIMIT" envDefault:"10"`
	// APIBurst is the per-client burst size.
	APIBurst int `env:"API_BURST" envDefault:"30"`
	// WatchInterval is how often an availability watch stream re-reads the
	// cached grid. New grids are only fetched once the cached one expires.
	WatchInterval time.Duration `env:"WATCH_INTERVAL" envDefault:"30s"`
}

// Load parses configuration from environment variables.
// Returns an error if a value cannot be parsed into the expected type or the
// timezone is unknown.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if _, err := cfg.Location(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Location resolves Timezone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
