package config

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allKeys = []string{
	"PORT", "ALLOWED_ORIGINS", "GATEWAY_PROVIDER",
	"REPLICATE_API_TOKEN", "REPLICATE_VIDEO_MODEL", "REPLICATE_IMAGE_MODEL",
	"RUNPOD_API_KEY", "RUNPOD_ENDPOINT_ID", "BEAM_TOKEN", "BEAM_QUEUE_URL",
	"TICK_INTERVAL", "STALE_AFTER", "MAX_CONCURRENT_SUBMITS", "MAX_CONCURRENT_POLLS",
	"TEMP_DIR", "FFMPEG_PATH", "PUBLISH_ARTIFACTS",
	"S3_BUCKET", "S3_REGION", "S3_ENDPOINT", "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY",
	"MINIO_ENDPOINT", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY", "MINIO_BUCKET", "MINIO_USE_SSL",
	"DATABASE_URL", "REDIS_ADDR", "REDIS_PASSWORD", "OUTBOX_MAX_ATTEMPTS",
	"LOG_FORMAT", "LOG_LEVEL",
}

// clearEnv unsets every config key for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoad_ProviderCredentials(t *testing.T) {
	t.Run("replicate without token returns error", func(t *testing.T) {
		clearEnv(t)

		_, err := Load()
		assert.ErrorIs(t, err, ErrReplicateTokenRequired)
	})

	t.Run("runpod without API key returns error", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GATEWAY_PROVIDER", "runpod")
		t.Setenv("RUNPOD_ENDPOINT_ID", "test-endpoint")

		_, err := Load()
		assert.ErrorIs(t, err, ErrRunPodAPIKeyRequired)
	})

	t.Run("runpod without endpoint returns error", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GATEWAY_PROVIDER", "runpod")
		t.Setenv("RUNPOD_API_KEY", "test-api-key")

		_, err := Load()
		assert.ErrorIs(t, err, ErrRunPodEndpointIDRequired)
	})

	t.Run("beam without queue URL returns error", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GATEWAY_PROVIDER", "beam")
		t.Setenv("BEAM_TOKEN", "tok")

		_, err := Load()
		assert.ErrorIs(t, err, ErrBeamConfigRequired)
	})

	t.Run("unknown provider returns error", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GATEWAY_PROVIDER", "openai")

		_, err := Load()
		assert.ErrorIs(t, err, ErrUnknownProvider)
	})

	t.Run("replicate with token succeeds", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("REPLICATE_API_TOKEN", "r8_test")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "r8_test", cfg.ReplicateAPIToken)
	})
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("REPLICATE_API_TOKEN", "r8_test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, ProviderReplicate, cfg.GatewayProvider)
	assert.Equal(t, "minimax/video-01", cfg.ReplicateVideoModel)
	assert.Equal(t, "black-forest-labs/flux-schnell", cfg.ReplicateImageModel)
	assert.Equal(t, 6*time.Second, cfg.TickInterval)
	assert.Equal(t, 5*time.Minute, cfg.StaleAfter)
	assert.Equal(t, 3, cfg.MaxConcurrentSubmits)
	assert.Equal(t, 8, cfg.MaxConcurrentPolls)
	assert.Equal(t, "/tmp/clipline", cfg.TempDir)
	assert.False(t, cfg.PublishArtifacts)
	assert.Equal(t, "clipline", cfg.MinIOBucket)
	assert.Equal(t, 5, cfg.OutboxMaxAttempts)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.PostgresEnabled())
	assert.False(t, cfg.RedisEnabled())
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("GATEWAY_PROVIDER", "runpod")
	t.Setenv("RUNPOD_API_KEY", "custom-api-key")
	t.Setenv("RUNPOD_ENDPOINT_ID", "custom-endpoint")
	t.Setenv("PORT", "3000")
	t.Setenv("ALLOWED_ORIGINS", "https://app.example.com,https://admin.example.com")
	t.Setenv("TICK_INTERVAL", "2s")
	t.Setenv("STALE_AFTER", "10m")
	t.Setenv("MAX_CONCURRENT_SUBMITS", "5")
	t.Setenv("MAX_CONCURRENT_POLLS", "16")
	t.Setenv("TEMP_DIR", "/custom/temp")
	t.Setenv("PUBLISH_ARTIFACTS", "true")
	t.Setenv("S3_BUCKET", "my-bucket")
	t.Setenv("S3_REGION", "us-east-1")
	t.Setenv("AWS_ACCESS_KEY_ID", "access-key")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret-key")
	t.Setenv("DATABASE_URL", "postgres://localhost/clipline")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, 2*time.Second, cfg.TickInterval)
	assert.Equal(t, 10*time.Minute, cfg.StaleAfter)
	assert.Equal(t, 5, cfg.MaxConcurrentSubmits)
	assert.Equal(t, 16, cfg.MaxConcurrentPolls)
	assert.Equal(t, "/custom/temp", cfg.TempDir)
	assert.True(t, cfg.PublishArtifacts)
	assert.True(t, cfg.S3Enabled())
	assert.Equal(t, "access-key", cfg.AWSAccessKeyID)
	assert.Equal(t, "secret-key", cfg.AWSSecretAccessKey)
	assert.True(t, cfg.PostgresEnabled())
	assert.True(t, cfg.RedisEnabled())
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_InvalidValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("REPLICATE_API_TOKEN", "r8_test")
	t.Setenv("PORT", "not-a-number")

	// go-envconfig returns an error when parsing fails
	_, err := Load()
	require.Error(t, err)

	t.Setenv("PORT", "8080")
	t.Setenv("TICK_INTERVAL", "soon")
	_, err = Load()
	require.Error(t, err)
}

func TestConfig_Enabled(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		s3    bool
		minio bool
	}{
		{"s3 bucket and region", Config{S3Bucket: "b", S3Region: "r"}, true, false},
		{"s3 bucket only", Config{S3Bucket: "b"}, false, false},
		{"minio complete", Config{MinIOEndpoint: "minio:9000", MinIOAccessKey: "a", MinIOSecretKey: "s"}, false, true},
		{"minio without secret", Config{MinIOEndpoint: "minio:9000", MinIOAccessKey: "a"}, false, false},
		{"nothing", Config{}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.s3, tt.cfg.S3Enabled())
			assert.Equal(t, tt.minio, tt.cfg.MinIOEnabled())
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			GatewayProvider:      ProviderReplicate,
			ReplicateAPIToken:    "tok",
			TickInterval:         time.Second,
			MaxConcurrentSubmits: 1,
			MaxConcurrentPolls:   1,
		}
	}

	t.Run("valid config", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("provider is case insensitive", func(t *testing.T) {
		cfg := valid()
		cfg.GatewayProvider = "Replicate"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("zero tick interval", func(t *testing.T) {
		cfg := valid()
		cfg.TickInterval = 0
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidScheduling)
	})

	t.Run("zero poll concurrency", func(t *testing.T) {
		cfg := valid()
		cfg.MaxConcurrentPolls = 0
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidScheduling)
	})

	t.Run("publish without object storage", func(t *testing.T) {
		cfg := valid()
		cfg.PublishArtifacts = true
		assert.ErrorIs(t, cfg.Validate(), ErrPublishTargetRequired)

		cfg.MinIOEndpoint = "minio:9000"
		cfg.MinIOAccessKey = "a"
		cfg.MinIOSecretKey = "s"
		assert.NoError(t, cfg.Validate())
	})
}

func TestConfig_String_MasksSecrets(t *testing.T) {
	cfg := &Config{
		Port:              8080,
		GatewayProvider:   ProviderRunPod,
		RunPodAPIKey:      "secret-key",
		RunPodEndpointID:  "endpoint-123",
		ReplicateAPIToken: "r8_secret",
		TempDir:           "/tmp/test",
		DatabaseURL:       "postgres://user:hunter2@db/clipline",
		LogFormat:         "text",
		LogLevel:          "info",
	}

	str := cfg.String()

	// Should contain non-sensitive values
	assert.Contains(t, str, "8080")
	assert.Contains(t, str, "runpod")
	assert.Contains(t, str, "/tmp/test")
	assert.Contains(t, str, "Postgres: true")

	// Should NOT contain sensitive values
	assert.NotContains(t, str, "secret-key")
	assert.NotContains(t, str, "r8_secret")
	assert.NotContains(t, str, "hunter2")
}

func TestConfig_NewLogger(t *testing.T) {
	for _, format := range []string{"json", "text"} {
		t.Run(format, func(t *testing.T) {
			cfg := &Config{LogFormat: format, LogLevel: "warn"}

			logger := cfg.NewLogger()
			require.NotNil(t, logger)
			assert.False(t, logger.Enabled(t.Context(), slog.LevelInfo))
			assert.True(t, logger.Enabled(t.Context(), slog.LevelWarn))
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"unknown", slog.LevelInfo}, // defaults to info
		{"", slog.LevelInfo},        // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}
