package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration, loaded from the environment.
// A .env file in the working directory is loaded first if present;
// real environment variables take precedence.
type Config struct {
	// Google Cloud configuration
	ProjectID         string
	FirestoreDatabase string
	GCSBucket         string
	BigQueryDataset   string
	AgingReportTable  string

	// Extraction
	GeminiModel        string
	ExtractionTimeout  time.Duration
	RateLimitPerWindow int
	RateLimitWindow    time.Duration

	// Matching
	AcceptanceThreshold float64
	DateWindowDays      int

	// Home currency used when an imported document carries none.
	HomeCurrency string
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	// Missing .env is fine; only explicit env is required.
	_ = godotenv.Load()

	cfg := &Config{
		ProjectID:         getEnv("GOOGLE_CLOUD_PROJECT", ""),
		FirestoreDatabase: getEnv("FIRESTORE_DATABASE", "(default)"),
		GCSBucket:         getEnv("GCS_BUCKET", ""),
		BigQueryDataset:   getEnv("BIGQUERY_DATASET", "finrecon"),
		AgingReportTable:  getEnv("AGING_REPORT_TABLE", "aging_report"),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		HomeCurrency:      getEnv("HOME_CURRENCY", "USD"),
	}

	var err error
	if cfg.ExtractionTimeout, err = getDurationEnv("EXTRACTION_TIMEOUT", 2*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RateLimitWindow, err = getDurationEnv("RATE_LIMIT_WINDOW", time.Minute); err != nil {
		return nil, err
	}
	if cfg.RateLimitPerWindow, err = getIntEnv("RATE_LIMIT_PER_WINDOW", 10); err != nil {
		return nil, err
	}
	if cfg.DateWindowDays, err = getIntEnv("MATCH_DATE_WINDOW_DAYS", 90); err != nil {
		return nil, err
	}
	if cfg.AcceptanceThreshold, err = getFloatEnv("MATCH_ACCEPTANCE_THRESHOLD", 0.7); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.AcceptanceThreshold < 0 || c.AcceptanceThreshold > 1 {
		return fmt.Errorf("MATCH_ACCEPTANCE_THRESHOLD must be between 0 and 1, got %f", c.AcceptanceThreshold)
	}
	if c.DateWindowDays <= 0 {
		return fmt.Errorf("MATCH_DATE_WINDOW_DAYS must be positive, got %d", c.DateWindowDays)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, v, err)
	}
	return n, nil
}

func getFloatEnv(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", key, v, err)
	}
	return f, nil
}

func getDurationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, v, err)
	}
	return d, nil
}
