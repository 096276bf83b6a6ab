package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/MGMAppDev/soccerview-sub008/internal/rating"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Date is a calendar day read from a YYYY-MM-DD environment value
type Date struct {
	time.Time
}

// Decode implements envconfig.Decoder
func (d *Date) Decode(value string) error {
	if value == "" {
		d.Time = time.Time{}
		return nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return fmt.Errorf("expected YYYY-MM-DD, got %q", value)
	}
	d.Time = t
	return nil
}

// Config holds all application configuration
type Config struct {
	// Database
	DatabaseHost     string `envconfig:"DATABASE_HOST" default:"localhost"`
	DatabasePort     int    `envconfig:"DATABASE_PORT" default:"5432"`
	DatabaseName     string `envconfig:"DATABASE_NAME" default:"soccerview"`
	DatabaseUser     string `envconfig:"DATABASE_USER" default:"soccerview"`
	DatabasePassword string `envconfig:"DATABASE_PASSWORD" required:"true"`
	DatabaseSSLMode  string `envconfig:"DATABASE_SSL_MODE" default:"disable"`
	DatabaseMaxConns int32  `envconfig:"DATABASE_MAX_CONNS" default:"10"`

	// Redis
	RedisEnabled  bool   `envconfig:"REDIS_ENABLED" default:"true"`
	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Season window, both days inclusive. There is no fallback.
	SeasonStart Date `envconfig:"SEASON_START"`
	SeasonEnd   Date `envconfig:"SEASON_END"`

	// Bulk writes
	RatingPageSize   int  `envconfig:"RATING_PAGE_SIZE" default:"1000"`
	SnapshotPageSize int  `envconfig:"SNAPSHOT_PAGE_SIZE" default:"2000"`
	RequireComplete  bool `envconfig:"REQUIRE_COMPLETE_FLUSH" default:"false"`

	// Application
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPPort int    `envconfig:"HTTP_PORT" default:"8080"`

	// Scheduler
	EnableScheduler      bool   `envconfig:"ENABLE_SCHEDULER" default:"true"`
	InitialRecalcEnabled bool   `envconfig:"INITIAL_RECALC_ENABLED" default:"false"`
	RecalcCron           string `envconfig:"RECALC_CRON" default:"0 3 * * *"`
	SnapshotCron         string `envconfig:"SNAPSHOT_CRON" default:"30 3 * * *"`

	// Caching and locking
	LeaderboardCacheTTL time.Duration `envconfig:"LEADERBOARD_CACHE_TTL" default:"6h"`
	RecalcLockTTL       time.Duration `envconfig:"RECALC_LOCK_TTL" default:"30m"`
}

// Load loads configuration from environment variables
// It first attempts to load from .env file if in development mode
func Load() (*Config, error) {
	// Try to load .env file (ignore error if doesn't exist)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.DatabasePassword == "" {
		return fmt.Errorf("DATABASE_PASSWORD is required")
	}

	if c.SeasonStart.IsZero() || c.SeasonEnd.IsZero() {
		return fmt.Errorf("SEASON_START and SEASON_END are required: %w", rating.ErrSeasonWindowMissing)
	}
	if err := c.SeasonWindow().Validate(); err != nil {
		return err
	}

	if c.RatingPageSize <= 0 || c.SnapshotPageSize <= 0 {
		return fmt.Errorf("page sizes must be positive")
	}

	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("HTTP_PORT out of range: %d", c.HTTPPort)
	}

	return nil
}

// SeasonWindow returns the configured season window
func (c *Config) SeasonWindow() rating.Window {
	return rating.Window{Start: c.SeasonStart.Time, End: c.SeasonEnd.Time}
}

// RedisAddr returns the Redis address
func (c *Config) RedisAddr() string {
	return c.RedisHost + ":" + strconv.Itoa(c.RedisPort)
}

// MustLoad loads configuration or exits on error
// Use this in main() where we want to fail fast
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
