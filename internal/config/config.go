// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Gateway providers.
const (
	ProviderReplicate = "replicate"
	ProviderRunPod    = "runpod"
	ProviderBeam      = "beam"
)

// Static errors for configuration validation.
var (
	// ErrUnknownProvider is returned when GATEWAY_PROVIDER is not supported.
	ErrUnknownProvider = errors.New("config: GATEWAY_PROVIDER must be replicate, runpod or beam")
	// ErrReplicateTokenRequired is returned when REPLICATE_API_TOKEN is not set.
	ErrReplicateTokenRequired = errors.New("config: REPLICATE_API_TOKEN is required")
	// ErrRunPodAPIKeyRequired is returned when RUNPOD_API_KEY is not set.
	ErrRunPodAPIKeyRequired = errors.New("config: RUNPOD_API_KEY is required")
	// ErrRunPodEndpointIDRequired is returned when RUNPOD_ENDPOINT_ID is not set.
	ErrRunPodEndpointIDRequired = errors.New("config: RUNPOD_ENDPOINT_ID is required")
	// ErrBeamConfigRequired is returned when BEAM_TOKEN or BEAM_QUEUE_URL is not set.
	ErrBeamConfigRequired = errors.New("config: BEAM_TOKEN and BEAM_QUEUE_URL are required")
	// ErrPublishTargetRequired is returned when publishing is enabled without object storage.
	ErrPublishTargetRequired = errors.New("config: PUBLISH_ARTIFACTS requires S3 or MinIO settings")
	// ErrInvalidScheduling is returned for non-positive tick or concurrency settings.
	ErrInvalidScheduling = errors.New("config: TICK_INTERVAL and concurrency limits must be positive")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port           int      `env:"PORT, default=8080" json:"port"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" json:"allowed_origins,omitempty"`

	// Gateway settings
	GatewayProvider     string `env:"GATEWAY_PROVIDER, default=replicate" json:"gateway_provider"`
	ReplicateAPIToken   string `env:"REPLICATE_API_TOKEN" json:"-"` // Masked in JSON
	ReplicateVideoModel string `env:"REPLICATE_VIDEO_MODEL, default=minimax/video-01" json:"replicate_video_model"`
	ReplicateImageModel string `env:"REPLICATE_IMAGE_MODEL, default=black-forest-labs/flux-schnell" json:"replicate_image_model"`
	RunPodAPIKey        string `env:"RUNPOD_API_KEY" json:"-"` // Masked in JSON
	RunPodEndpointID    string `env:"RUNPOD_ENDPOINT_ID" json:"runpod_endpoint_id,omitempty"`
	BeamToken           string `env:"BEAM_TOKEN" json:"-"` // Masked in JSON
	BeamQueueURL        string `env:"BEAM_QUEUE_URL" json:"beam_queue_url,omitempty"`

	// Scheduling settings
	TickInterval         time.Duration `env:"TICK_INTERVAL, default=6s" json:"tick_interval"`
	StaleAfter           time.Duration `env:"STALE_AFTER, default=5m" json:"stale_after"`
	MaxConcurrentSubmits int           `env:"MAX_CONCURRENT_SUBMITS, default=3" json:"max_concurrent_submits"`
	MaxConcurrentPolls   int           `env:"MAX_CONCURRENT_POLLS, default=8" json:"max_concurrent_polls"`

	// Storage settings
	TempDir          string `env:"TEMP_DIR, default=/tmp/clipline" json:"temp_dir"`
	FFmpegPath       string `env:"FFMPEG_PATH" json:"ffmpeg_path,omitempty"`
	PublishArtifacts bool   `env:"PUBLISH_ARTIFACTS, default=false" json:"publish_artifacts"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Optional MinIO settings
	MinIOEndpoint  string `env:"MINIO_ENDPOINT" json:"minio_endpoint,omitempty"`
	MinIOAccessKey string `env:"MINIO_ACCESS_KEY" json:"-"` // Masked in JSON
	MinIOSecretKey string `env:"MINIO_SECRET_KEY" json:"-"` // Masked in JSON
	MinIOBucket    string `env:"MINIO_BUCKET, default=clipline" json:"minio_bucket"`
	MinIOUseSSL    bool   `env:"MINIO_USE_SSL, default=false" json:"minio_use_ssl"`

	// Persistence settings
	DatabaseURL       string `env:"DATABASE_URL" json:"-"` // Masked in JSON
	RedisAddr         string `env:"REDIS_ADDR" json:"redis_addr,omitempty"`
	RedisPassword     string `env:"REDIS_PASSWORD" json:"-"` // Masked in JSON
	OutboxMaxAttempts int    `env:"OUTBOX_MAX_ATTEMPTS, default=5" json:"outbox_max_attempts"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// MinIOEnabled returns true if MinIO configuration is provided.
func (c *Config) MinIOEnabled() bool {
	return c.MinIOEndpoint != "" && c.MinIOAccessKey != "" && c.MinIOSecretKey != ""
}

// PostgresEnabled returns true if a database URL is configured.
func (c *Config) PostgresEnabled() bool {
	return c.DatabaseURL != ""
}

// RedisEnabled returns true if a Redis address is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// Load reads a .env file when present, then configuration from environment
// variables using go-envconfig, and validates the result.
func Load() (*Config, error) {
	// Missing .env is fine; real environment variables take precedence.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the selected provider has its credentials and that
// scheduling limits are usable.
func (c *Config) Validate() error {
	switch strings.ToLower(c.GatewayProvider) {
	case ProviderReplicate:
		if c.ReplicateAPIToken == "" {
			return ErrReplicateTokenRequired
		}
	case ProviderRunPod:
		if c.RunPodAPIKey == "" {
			return ErrRunPodAPIKeyRequired
		}
		if c.RunPodEndpointID == "" {
			return ErrRunPodEndpointIDRequired
		}
	case ProviderBeam:
		if c.BeamToken == "" || c.BeamQueueURL == "" {
			return ErrBeamConfigRequired
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProvider, c.GatewayProvider)
	}

	if c.TickInterval <= 0 || c.MaxConcurrentSubmits <= 0 || c.MaxConcurrentPolls <= 0 {
		return ErrInvalidScheduling
	}
	if c.PublishArtifacts && !c.S3Enabled() && !c.MinIOEnabled() {
		return ErrPublishTargetRequired
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
		"Config{Port: %d, GatewayProvider: %s, TickInterval: %s, StaleAfter: %s, MaxConcurrentSubmits: %d, MaxConcurrentPolls: %d, TempDir: %s, PublishArtifacts: %t, S3Bucket: %s, MinIOEndpoint: %s, Postgres: %t, Redis: %t, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.GatewayProvider,
		c.TickInterval,
		c.StaleAfter,
		c.MaxConcurrentSubmits,
		c.MaxConcurrentPolls,
		c.TempDir,
		c.PublishArtifacts,
		c.S3Bucket,
		c.MinIOEndpoint,
		c.PostgresEnabled(),
		c.RedisEnabled(),
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
