// Package config handles application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port    int
	BaseURL string

	// Database
	DatabaseURL string

	// CORS
	CORSOrigins []string

	// Scrape source
	SourceBaseURL  string        // root of the catalog site being scraped
	FetchTimeout   time.Duration // per-request timeout for page fetches
	FetchUserAgent string

	// Worker
	WorkerPollInterval        time.Duration // how often each worker polls for jobs (default 2s)
	WorkerConcurrency         int           // number of concurrent workers (default 3)
	WorkerShutdownGracePeriod time.Duration // max wait for running jobs during shutdown

	// Retry policy
	RetryMaxAttempts int           // retries per job after the first run (default 3)
	RetryBaseDelay   time.Duration // first backoff delay, doubled per retry (default 2s)

	// Object Storage (S3-compatible, optional snapshot archive)
	StorageEnabled   bool
	StorageEndpoint  string // AWS_ENDPOINT_URL_S3 for S3-compatible providers
	StorageAccessKey string // AWS_ACCESS_KEY_ID
	StorageSecretKey string // AWS_SECRET_ACCESS_KEY
	StorageBucket    string
	StorageRegion    string

	// Cleanup
	CleanupEnabled    bool          // enable periodic removal of old terminal jobs
	CleanupMaxAgeJobs time.Duration // max age of terminal jobs to keep (default 30 days)
	CleanupInterval   time.Duration // how often to run cleanup (default 24h)

	// Rate limiting (requests per minute per IP on the HTTP surface)
	RateLimitPerMinute int

	// Scale-to-zero
	IdleTimeout time.Duration // shut down after this long with no traffic or jobs (0 = disabled)
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnvInt("PORT", 8080),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		DatabaseURL: getEnv("DATABASE_URL", "file:shelfwise.db?_journal=WAL&_timeout=5000"),

		CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"http://localhost:3000"}),

		SourceBaseURL:  getEnv("SOURCE_BASE_URL", "https://books.toscrape.com"),
		FetchTimeout:   getEnvDuration("FETCH_TIMEOUT", 30*time.Second),
		FetchUserAgent: getEnv("FETCH_USER_AGENT", "shelfwise/1.0"),

		WorkerPollInterval:        getEnvDuration("WORKER_POLL_INTERVAL", 2*time.Second),
		WorkerConcurrency:         getEnvInt("WORKER_CONCURRENCY", 3),
		WorkerShutdownGracePeriod: getEnvDuration("WORKER_SHUTDOWN_GRACE_PERIOD", 5*time.Minute),

		RetryMaxAttempts: getEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelay:   getEnvDuration("RETRY_BASE_DELAY", 2*time.Second),

		StorageEndpoint:  getEnv("AWS_ENDPOINT_URL_S3", ""),
		StorageAccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
		StorageSecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		StorageBucket:    getEnv("BUCKET_NAME", ""),
		StorageRegion:    getEnv("AWS_REGION", "auto"),

		CleanupEnabled:    getEnvBool("CLEANUP_ENABLED", false),
		CleanupMaxAgeJobs: getEnvDuration("CLEANUP_MAX_AGE_JOBS", 30*24*time.Hour),
		CleanupInterval:   getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour),

		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),

		IdleTimeout: getEnvDuration("IDLE_TIMEOUT", 0),
	}

	// Storage is optional: enabled only when a bucket is configured.
	cfg.StorageEnabled = cfg.StorageBucket != ""

	if cfg.WorkerConcurrency < 1 {
		return nil, fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}
	if cfg.RetryMaxAttempts < 1 {
		return nil, fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
