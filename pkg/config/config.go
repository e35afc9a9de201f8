// Package config loads pipeline configuration from the environment.
//
// A .env file in the working directory is loaded first (best effort), then
// values are parsed from the process environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the full pipeline configuration.
type Config struct {
	// APIKey authenticates against the catalog API. Required for live runs.
	APIKey string `env:"RAWG_API_KEY"`

	// BaseURL is the catalog API base URL.
	BaseURL string `env:"RAWG_BASE_URL" envDefault:"https://api.rawg.io/api"`

	// UserAgent is sent on every outbound request.
	UserAgent string `env:"GAMELAKE_USER_AGENT" envDefault:"gamelake/1.0"`

	// DataDir is the root directory for the bronze and silver databases.
	DataDir string `env:"GAMELAKE_DATA_DIR" envDefault:"./data"`

	// GenrePageSize is the page size for the genres full load.
	GenrePageSize int `env:"GAMELAKE_GENRE_PAGE_SIZE" envDefault:"40"`

	// GamePageSize is the page size for the games incremental load.
	GamePageSize int `env:"GAMELAKE_GAME_PAGE_SIZE" envDefault:"20"`

	// MaxPages bounds a single paginated pull. 0 means pull until the API
	// reports no next page.
	MaxPages int `env:"GAMELAKE_MAX_PAGES" envDefault:"0"`

	// LastDays is the default lookback window for incremental game loads.
	LastDays int `env:"GAMELAKE_LAST_DAYS" envDefault:"30"`

	// RequestTimeout is the per-request HTTP timeout.
	RequestTimeout time.Duration `env:"GAMELAKE_REQUEST_TIMEOUT" envDefault:"10s"`

	// MaxAttempts is the total attempt budget per request (initial + retries).
	MaxAttempts int `env:"GAMELAKE_MAX_ATTEMPTS" envDefault:"4"`

	// InitialBackoff is the first retry delay; it doubles per attempt.
	InitialBackoff time.Duration `env:"GAMELAKE_INITIAL_BACKOFF" envDefault:"1s"`

	// MaxBackoff caps the exponential backoff growth.
	MaxBackoff time.Duration `env:"GAMELAKE_MAX_BACKOFF" envDefault:"30s"`

	// RequestsPerSecond paces outbound requests. 0 disables pacing.
	RequestsPerSecond float64 `env:"GAMELAKE_REQUESTS_PER_SECOND" envDefault:"1.5"`

	// RedisAddr enables the Redis page cache when set (host:port).
	RedisAddr string `env:"GAMELAKE_REDIS_ADDR"`

	// CacheTTL is how long cached pages stay valid.
	CacheTTL time.Duration `env:"GAMELAKE_CACHE_TTL" envDefault:"15m"`

	// ArchiveBucket enables S3 partition archival when set.
	ArchiveBucket string `env:"GAMELAKE_ARCHIVE_BUCKET"`

	// ArchiveRegion is the AWS region for the archive bucket.
	ArchiveRegion string `env:"GAMELAKE_ARCHIVE_REGION" envDefault:"us-east-1"`

	// MetricsAddr is the listen address for the /metrics and /healthz server.
	MetricsAddr string `env:"GAMELAKE_METRICS_ADDR" envDefault:":9090"`

	// ScheduleInterval is the interval between scheduled pipeline runs.
	ScheduleInterval time.Duration `env:"GAMELAKE_SCHEDULE_INTERVAL" envDefault:"24h"`

	// LogLevel is the minimum log level (debug, info, warn, error).
	LogLevel string `env:"GAMELAKE_LOG_LEVEL" envDefault:"info"`

	// LogPretty enables human-readable console logging.
	LogPretty bool `env:"GAMELAKE_LOG_PRETTY" envDefault:"false"`

	// RunLogFile appends all log output to a persistent run log when set.
	RunLogFile string `env:"GAMELAKE_RUN_LOG_FILE"`
}

// Load reads configuration from .env (if present) and the environment.
func Load() (*Config, error) {
	// Missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

// Validate checks that configuration needed for live API runs is present.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("RAWG_API_KEY is not set in environment or .env file")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be >= 1 (got %d)", c.MaxAttempts)
	}
	if c.GamePageSize < 1 || c.GamePageSize > 40 {
		return fmt.Errorf("game page size must be in [1, 40] (got %d)", c.GamePageSize)
	}
	return nil
}
