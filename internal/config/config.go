// Package config contains everything related to configuration
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheSQLite = "sqlite"
	CacheBadger = "badger"
	CacheRedis  = "redis"
)

const appDirName = "ga4-dashboard"

// Config holds the application configuration.
type Config struct {
	// Property and credentials
	PropertyID      string `env:"GA4_PROPERTY_ID,required"`
	ClientID        string `env:"GA4_CLIENT_ID"`
	ClientSecret    string `env:"GA4_CLIENT_SECRET"`
	RefreshToken    string `env:"GA4_REFRESH_TOKEN"`
	CredentialsPath string `env:"GA4_CREDENTIALS_PATH"`
	DateRangeDays   int    `env:"GA4_DATE_RANGE_DAYS" envDefault:"30"`

	// Storage
	DatabasePath string        `env:"DATABASE_PATH"`
	CacheBackend string        `env:"CACHE_BACKEND" envDefault:"sqlite"`
	CacheTTL     time.Duration `env:"CACHE_TTL" envDefault:"3h"`
	BadgerPath   string        `env:"BADGER_PATH"`
	RedisURL     string        `env:"REDIS_URL"`

	// Upstream behaviour
	RetryMaxAttempts   int           `env:"RETRY_MAX_ATTEMPTS" envDefault:"5"`
	RetryBaseDelay     time.Duration `env:"RETRY_BASE_DELAY" envDefault:"1s"`
	RetryMaxWait       time.Duration `env:"RETRY_MAX_WAIT" envDefault:"2m"`
	QuotaMaxConcurrent int           `env:"QUOTA_MAX_CONCURRENT" envDefault:"10"`
	QuotaDailyRequests int           `env:"QUOTA_DAILY_REQUESTS" envDefault:"25000"`
	QuotaDailyTokens   int           `env:"QUOTA_DAILY_TOKENS" envDefault:"1000000"`
	QuotaMinuteTokens  int           `env:"QUOTA_MINUTE_TOKENS" envDefault:"10000"`
	RefreshInterval    time.Duration `env:"REFRESH_INTERVAL" envDefault:"15m"`

	// Surfaces
	HTTPAddr      string `env:"HTTP_ADDR" envDefault:":8089"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat     string `env:"LOG_FORMAT" envDefault:"text"`
	LogPath       string `env:"LOG_PATH"`
	NotifyEnabled bool   `env:"NOTIFY_ENABLED" envDefault:"true"`
}

// Load reads configuration from .env files and environment variables.
func Load() (*Config, error) {
	// Try loading .env from multiple locations
	envPaths := getEnvPaths()
	for _, path := range envPaths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			break
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return finish(cfg)
}

// parseEnvironment builds a config from an explicit variable set.
func parseEnvironment(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Ensure database directory exists
	if err := ensureDir(filepath.Dir(cfg.DatabasePath)); err != nil {
		return nil, err
	}
	if cfg.CacheBackend == CacheBadger {
		if err := ensureDir(cfg.BadgerPath); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	c.CacheBackend = strings.ToLower(strings.TrimSpace(c.CacheBackend))
	if c.DatabasePath == "" {
		c.DatabasePath = getDefaultDatabasePath()
	}
	if c.BadgerPath == "" {
		c.BadgerPath = filepath.Join(filepath.Dir(c.DatabasePath), "badger")
	}
	if c.LogPath == "" {
		c.LogPath = filepath.Join(filepath.Dir(c.DatabasePath), "ga4dash.log")
	}
	// Fall back to gcloud application default credentials.
	if !c.HasInlineCredentials() && c.CredentialsPath == "" {
		c.CredentialsPath = findApplicationDefaultCredentials()
	}
}

// Validate checks the values that env tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	if !isNumeric(c.PropertyID) {
		errs = append(errs, fmt.Errorf("GA4_PROPERTY_ID must be the numeric property id, got %q", c.PropertyID))
	}
	if !c.HasInlineCredentials() && c.CredentialsPath == "" {
		errs = append(errs, errors.New(
			"GA4_CLIENT_ID, GA4_CLIENT_SECRET and GA4_REFRESH_TOKEN, or GA4_CREDENTIALS_PATH, are required"))
	}
	if c.DateRangeDays <= 0 {
		errs = append(errs, fmt.Errorf("GA4_DATE_RANGE_DAYS must be positive, got %d", c.DateRangeDays))
	}

	switch c.CacheBackend {
	case CacheMemory, CacheSQLite, CacheBadger:
	case CacheRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required when CACHE_BACKEND=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("CACHE_BACKEND must be memory, sqlite, badger or redis, got %q", c.CacheBackend))
	}

	if c.CacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("CACHE_TTL must be positive, got %v", c.CacheTTL))
	}
	if c.RetryMaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("RETRY_MAX_ATTEMPTS must be positive, got %d", c.RetryMaxAttempts))
	}
	if c.RetryBaseDelay <= 0 {
		errs = append(errs, fmt.Errorf("RETRY_BASE_DELAY must be positive, got %v", c.RetryBaseDelay))
	}
	if c.QuotaMaxConcurrent <= 0 {
		errs = append(errs, fmt.Errorf("QUOTA_MAX_CONCURRENT must be positive, got %d", c.QuotaMaxConcurrent))
	}

	return errors.Join(errs...)
}

// HasInlineCredentials reports whether the OAuth client and refresh token
// are all set through the environment.
func (c *Config) HasInlineCredentials() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
}

// getEnvPaths returns a list of paths to check for .env files.
func getEnvPaths() []string {
	var paths []string

	// Current directory
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".env"))
	}

	// Home directory locations
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", appDirName, ".env"),
			filepath.Join(home, ".ga4", ".env"),
		)
	}

	// Parent directories (useful for development)
	if cwd, err := os.Getwd(); err == nil {
		parent := filepath.Dir(cwd)
		paths = append(paths, filepath.Join(parent, ".env"))
		grandparent := filepath.Dir(parent)
		paths = append(paths, filepath.Join(grandparent, ".env"))
	}

	return paths
}

// getDefaultDatabasePath returns the default path for the SQLite database.
func getDefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "ga4.db"
	}
	return filepath.Join(home, ".config", appDirName, "ga4.db")
}

// ensureDir creates a directory and all parent directories if they don't exist.
func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	return os.MkdirAll(path, 0o750)
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
