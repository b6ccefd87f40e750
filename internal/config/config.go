// Package config provides configuration management for errand.
// It loads settings from environment variables with the ERRAND_ prefix
// and provides sensible defaults for all configuration options.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration settings for the errand daemon.
type Config struct {
	Storage   StorageConfig
	Jobs      JobsConfig
	NLP       NLPConfig
	LLM       LLMConfig
	Auth      AuthConfig
	Scheduler SchedulerConfig
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	StorageEngine string // Storage engine type: memory, sqlite, postgres (default: sqlite)
	DataPath      string // Path to data directory (default: ./data)
	PostgresDSN   string // Postgres connection string (used when StorageEngine is postgres)
}

// JobsConfig contains job queue and retry configuration.
type JobsConfig struct {
	MaxAttempts     int           // Maximum execution attempts per job (default: 3)
	BackoffPolicy   string        // Backoff curve: fixed, exponential (default: exponential)
	BackoffBase     time.Duration // Base retry delay (default: 1s)
	Workers         int           // Worker concurrency per queue (default: 4)
	RatePerSecond   float64       // Per-queue job start rate limit, 0 disables (default: 0)
	ShutdownTimeout time.Duration // Maximum time to wait for workers to drain (default: 30s)
}

// NLPConfig contains the natural-language pipeline configuration.
type NLPConfig struct {
	LowConfidenceThreshold float64 // Intents below this confidence are rejected (default: 0.5)
	RulesPath              string  // Path to the pattern-rule YAML file (optional)
}

// LLMConfig contains model-tier classifier configuration.
type LLMConfig struct {
	OllamaURL   string        // Ollama API URL (default: http://localhost:11434)
	OllamaModel string        // Ollama model name for classification (default: qwen2.5:7b)
	Timeout     time.Duration // Request timeout for model calls (default: 5s)
}

// AuthConfig contains credential supervision settings.
type AuthConfig struct {
	RefreshThreshold time.Duration // Refresh tokens this close to expiry (default: 5m)
	TokenCachePath   string        // Path to the on-disk token cache (optional)
}

// SchedulerConfig contains recurring-trigger settings.
type SchedulerConfig struct {
	Timezone     string // IANA timezone for cron expressions (default: UTC)
	DocumentCron string // Cron expression for recurring document generation (optional)
}

// Load builds a Config from environment variables with defaults applied.
func Load() (*Config, error) {
	cfg := &Config{
		Storage: StorageConfig{
			StorageEngine: getEnv("ERRAND_STORAGE_ENGINE", "sqlite"),
			DataPath:      getEnv("ERRAND_DATA_PATH", "./data"),
			PostgresDSN:   getEnv("ERRAND_POSTGRES_DSN", ""),
		},
		Jobs: JobsConfig{
			MaxAttempts:     getEnvInt("ERRAND_MAX_ATTEMPTS", 3),
			BackoffPolicy:   getEnv("ERRAND_BACKOFF_POLICY", "exponential"),
			BackoffBase:     time.Duration(getEnvInt("ERRAND_BACKOFF_BASE_MS", 1000)) * time.Millisecond,
			Workers:         getEnvInt("ERRAND_WORKERS", 4),
			RatePerSecond:   getEnvFloat("ERRAND_QUEUE_RATE_PER_SEC", 0),
			ShutdownTimeout: time.Duration(getEnvInt("ERRAND_SHUTDOWN_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		NLP: NLPConfig{
			LowConfidenceThreshold: getEnvFloat("ERRAND_LOW_CONFIDENCE", 0.5),
			RulesPath:              getEnv("ERRAND_RULES_PATH", ""),
		},
		LLM: LLMConfig{
			OllamaURL:   getEnv("ERRAND_OLLAMA_URL", "http://localhost:11434"),
			OllamaModel: getEnv("ERRAND_OLLAMA_MODEL", "qwen2.5:7b"),
			Timeout:     time.Duration(getEnvInt("ERRAND_LLM_TIMEOUT_SECONDS", 5)) * time.Second,
		},
		Auth: AuthConfig{
			RefreshThreshold: time.Duration(getEnvInt("ERRAND_REFRESH_THRESHOLD_MINUTES", 5)) * time.Minute,
			TokenCachePath:   getEnv("ERRAND_TOKEN_CACHE_PATH", ""),
		},
		Scheduler: SchedulerConfig{
			Timezone:     getEnv("ERRAND_CRON_TIMEZONE", "UTC"),
			DocumentCron: getEnv("ERRAND_DOCUMENT_CRON", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime behavior.
func (c *Config) Validate() error {
	switch c.Storage.StorageEngine {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown storage engine %q", c.Storage.StorageEngine)
	}
	if c.Storage.StorageEngine == "postgres" && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("config: postgres storage engine requires ERRAND_POSTGRES_DSN")
	}
	if c.Jobs.MaxAttempts < 1 {
		return fmt.Errorf("config: max attempts must be at least 1, got %d", c.Jobs.MaxAttempts)
	}
	switch c.Jobs.BackoffPolicy {
	case "fixed", "exponential":
	default:
		return fmt.Errorf("config: unknown backoff policy %q", c.Jobs.BackoffPolicy)
	}
	if c.Jobs.Workers < 1 {
		return fmt.Errorf("config: workers must be at least 1, got %d", c.Jobs.Workers)
	}
	if c.NLP.LowConfidenceThreshold < 0 || c.NLP.LowConfidenceThreshold > 1 {
		return fmt.Errorf("config: low confidence threshold must be in [0,1], got %f", c.NLP.LowConfidenceThreshold)
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("config: invalid cron timezone %q: %w", c.Scheduler.Timezone, err)
	}
	return nil
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
