// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrInvalidPollInterval is returned when a poll interval is not positive
	// or the maximum is below the initial interval.
	ErrInvalidPollInterval = errors.New("config: POLL_INITIAL_INTERVAL and POLL_MAX_INTERVAL must be positive, max >= initial")
	// ErrInvalidPollMultiplier is returned when POLL_MULTIPLIER is below 1 or not finite.
	ErrInvalidPollMultiplier = errors.New("config: POLL_MULTIPLIER must be a finite number, at least 1")
	// ErrInvalidJobTimeout is returned when JOB_TIMEOUT is not positive.
	ErrInvalidJobTimeout = errors.New("config: JOB_TIMEOUT must be positive")
	// ErrInvalidRetention is returned when JOB_RETENTION is not positive.
	ErrInvalidRetention = errors.New("config: JOB_RETENTION must be positive")
	// ErrInvalidMaterializeRetries is returned when MATERIALIZE_RETRIES is negative.
	ErrInvalidMaterializeRetries = errors.New("config: MATERIALIZE_RETRIES must not be negative")
	// ErrIncompleteS3Config is returned when only one of S3_BUCKET and S3_REGION is set.
	ErrIncompleteS3Config = errors.New("config: S3_BUCKET and S3_REGION must be set together")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Default provider, used when a request carries no provider configuration
	Provider       string `env:"PROVIDER" json:"provider,omitempty"`
	ProviderURL    string `env:"PROVIDER_BASE_URL" json:"provider_base_url,omitempty"`
	ProviderAPIKey string `env:"PROVIDER_API_KEY" json:"-"` // Masked in JSON
	ProviderModel  string `env:"PROVIDER_MODEL" json:"provider_model,omitempty"`
	CatalogFile    string `env:"CATALOG_FILE" json:"catalog_file,omitempty"`

	// Polling settings
	PollInitialInterval time.Duration `env:"POLL_INITIAL_INTERVAL, default=3s" json:"poll_initial_interval"`
	PollMaxInterval     time.Duration `env:"POLL_MAX_INTERVAL, default=15s" json:"poll_max_interval"`
	PollMultiplier      float64       `env:"POLL_MULTIPLIER, default=1.2" json:"poll_multiplier"`
	JobTimeout          time.Duration `env:"JOB_TIMEOUT, default=60m" json:"job_timeout"`

	// Materialization settings
	MaterializeProxyURL   string        `env:"MATERIALIZE_PROXY_URL" json:"materialize_proxy_url,omitempty"`
	MaterializeTimeout    time.Duration `env:"MATERIALIZE_TIMEOUT, default=20s" json:"materialize_timeout"`
	MaterializeRetries    int           `env:"MATERIALIZE_RETRIES, default=2" json:"materialize_retries"`
	MaterializeRetryDelay time.Duration `env:"MATERIALIZE_RETRY_DELAY, default=1s" json:"materialize_retry_delay"`

	// Registry housekeeping
	JobRetention    time.Duration `env:"JOB_RETENTION, default=30m" json:"job_retention"`
	JanitorSchedule string        `env:"JANITOR_SCHEDULE, default=@every 1m" json:"janitor_schedule"`

	// Storage settings
	TempDir string `env:"TEMP_DIR, default=/tmp/genjob" json:"temp_dir"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadEnvFile loads variables from a .env file into the process environment.
// A missing file is not an error. Variables already set are left untouched.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

// Validate checks that the configuration is consistent.
func (c *Config) Validate() error {
	if c.PollInitialInterval <= 0 || c.PollMaxInterval < c.PollInitialInterval {
		return ErrInvalidPollInterval
	}
	if math.IsNaN(c.PollMultiplier) || math.IsInf(c.PollMultiplier, 0) || c.PollMultiplier < 1 {
		return ErrInvalidPollMultiplier
	}
	if c.JobTimeout <= 0 {
		return ErrInvalidJobTimeout
	}
	if c.JobRetention <= 0 {
		return ErrInvalidRetention
	}
	if c.MaterializeRetries < 0 {
		return ErrInvalidMaterializeRetries
	}
	if (c.S3Bucket == "") != (c.S3Region == "") {
		return ErrIncompleteS3Config
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, Provider: %s, PollInitialInterval: %s, PollMaxInterval: %s, PollMultiplier: %g, JobTimeout: %s, MaterializeProxyURL: %s, TempDir: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.Provider,
		c.PollInitialInterval,
		c.PollMaxInterval,
		c.PollMultiplier,
		c.JobTimeout,
		c.MaterializeProxyURL,
		c.TempDir,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
