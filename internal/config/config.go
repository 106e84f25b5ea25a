package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Database
	DatabasePath string

	// Book catalog
	CatalogPath       string
	GoogleBooksAPIKey string

	// Instagram
	InstagramUsername string
	InstagramPassword string

	// Logging
	LogLevel string

	// Scheduler settings
	PostInterval time.Duration
	PostAt       string // optional fixed time of day, "HH:MM"; overrides PostInterval when set
	MaxAttempts  int

	// Backoff settings
	BackoffBase time.Duration
	BackoffMax  time.Duration

	// Notification settings
	NotifyTarget string
}

// Load reads configuration from environment variables.
// It automatically loads .env file if present.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		DatabasePath:      getEnv("DATABASE_PATH", "data/bookposter.db"),
		CatalogPath:       getEnv("CATALOG_PATH", "data/catalog.json"),
		GoogleBooksAPIKey: getEnv("GOOGLE_BOOKS_API_KEY", ""),
		InstagramUsername: getEnv("INSTAGRAM_USERNAME", ""),
		InstagramPassword: getEnv("INSTAGRAM_PASSWORD", ""),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		PostAt:            getEnv("POST_AT", ""),
		NotifyTarget:      getEnv("NOTIFY_TARGET", ""),
	}

	// Parse durations
	var err error
	cfg.PostInterval, err = time.ParseDuration(getEnv("POST_INTERVAL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid POST_INTERVAL: %w", err)
	}

	cfg.BackoffBase, err = time.ParseDuration(getEnv("BACKOFF_BASE", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid BACKOFF_BASE: %w", err)
	}

	cfg.BackoffMax, err = time.ParseDuration(getEnv("BACKOFF_MAX", "15m"))
	if err != nil {
		return nil, fmt.Errorf("invalid BACKOFF_MAX: %w", err)
	}

	// Parse integers
	maxAttempts, err := strconv.Atoi(getEnv("MAX_ATTEMPTS", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_ATTEMPTS: %w", err)
	}
	cfg.MaxAttempts = maxAttempts

	if cfg.PostAt != "" {
		if _, err := time.Parse("15:04", cfg.PostAt); err != nil {
			return nil, fmt.Errorf("invalid POST_AT (want HH:MM): %w", err)
		}
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	return nil
}

// ValidateForPosting checks configuration needed for publishing.
func (c *Config) ValidateForPosting() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.InstagramUsername == "" {
		return fmt.Errorf("INSTAGRAM_USERNAME is required for posting")
	}
	if c.InstagramPassword == "" {
		return fmt.Errorf("INSTAGRAM_PASSWORD is required for posting")
	}
	return nil
}

// ValidateForServe checks all configuration needed for the daemon.
func (c *Config) ValidateForServe() error {
	if err := c.ValidateForPosting(); err != nil {
		return err
	}
	if c.CatalogPath == "" {
		return fmt.Errorf("CATALOG_PATH is required")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("MAX_ATTEMPTS must be at least 1")
	}
	if c.BackoffBase <= 0 || c.BackoffMax < c.BackoffBase {
		return fmt.Errorf("backoff settings invalid: base=%s max=%s", c.BackoffBase, c.BackoffMax)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
