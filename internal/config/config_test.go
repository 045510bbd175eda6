package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Firebase: FirebaseConfig{ProjectID: "koinonia-dev"},
		Delivery: DeliveryConfig{Concurrency: 4, RetryBackoff: 100 * time.Millisecond},
		Feed:     FeedConfig{DefaultLimit: 10, MinFetchLimit: 10, MaxLimit: 50},
		Security: SecurityConfig{JWTSigningKey: strings.Repeat("k", 32)},
		Worker:   WorkerConfig{DeliveryPoolSize: 8, EventsPoolSize: 2},
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("FIREBASE_PROJECT_ID", "koinonia-dev")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.True(t, cfg.Server.AllowCredentials)
	assert.False(t, cfg.Server.UnsafeAllowAllOrigins)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	assert.False(t, cfg.PubSub.Enabled)
	assert.Equal(t, "koinonia-dev", cfg.PubSub.ProjectID, "pubsub project falls back to the firebase project")

	assert.Equal(t, 16, cfg.Delivery.Concurrency)
	assert.Equal(t, 0, cfg.Delivery.MaxRetries)
	assert.Equal(t, 200*time.Millisecond, cfg.Delivery.RetryBackoff)

	assert.Equal(t, 10, cfg.Feed.DefaultLimit)
	assert.Equal(t, 10, cfg.Feed.MinFetchLimit)

	assert.Equal(t, 64, cfg.Worker.DeliveryPoolSize)
	assert.Equal(t, 16, cfg.Worker.EventsPoolSize)

	assert.GreaterOrEqual(t, len(cfg.Security.JWTSigningKey), 32, "signing key is generated when unset")
	assert.NotEmpty(t, cfg.Security.IngestSecret)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FIREBASE_PROJECT_ID", "koinonia-prod")
	t.Setenv("DELIVERY_CONCURRENCY", "8")
	t.Setenv("DELIVERY_MAX_RETRIES", "2")
	t.Setenv("PUBSUB_ENABLED", "true")
	t.Setenv("PUBSUB_SUBSCRIPTION", "entity-created-notifier")
	t.Setenv("PUBSUB_PROJECT_ID", "koinonia-events")
	t.Setenv("SECURITY_INGEST_SECRET", "shared-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Delivery.Concurrency)
	assert.Equal(t, 2, cfg.Delivery.MaxRetries)
	assert.True(t, cfg.PubSub.Enabled)
	assert.Equal(t, "entity-created-notifier", cfg.PubSub.Subscription)
	assert.Equal(t, "koinonia-events", cfg.PubSub.ProjectID)
	assert.Equal(t, "shared-secret", cfg.Security.IngestSecret)
}

func TestLoad_ServerCORSFlagsFromEnv(t *testing.T) {
	t.Setenv("FIREBASE_PROJECT_ID", "koinonia-dev")
	t.Setenv("SERVER_ALLOWED_ORIGINS", "https://koinonia.app")
	t.Setenv("SERVER_ALLOW_CREDENTIALS", "false")
	t.Setenv("SERVER_UNSAFE_ALLOW_ALL_ORIGINS", "true")

	cfg, err := Load()
	require.NoError(t, err)

	require.Len(t, cfg.Server.AllowedOrigins, 1)
	assert.Equal(t, "https://koinonia.app", cfg.Server.AllowedOrigins[0])
	assert.False(t, cfg.Server.AllowCredentials)
	assert.True(t, cfg.Server.UnsafeAllowAllOrigins)
}

func TestLoad_MissingProject(t *testing.T) {
	t.Setenv("FIREBASE_PROJECT_ID", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "firebase.project_id")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"zero concurrency", func(c *Config) { c.Delivery.Concurrency = 0 }, "delivery.concurrency"},
		{"negative retries", func(c *Config) { c.Delivery.MaxRetries = -1 }, "delivery.max_retries"},
		{"retries without backoff", func(c *Config) {
			c.Delivery.MaxRetries = 3
			c.Delivery.RetryBackoff = 0
		}, "delivery.retry_backoff"},
		{"max limit below default", func(c *Config) { c.Feed.MaxLimit = 5 }, "feed limits"},
		{"pubsub without subscription", func(c *Config) { c.PubSub.Enabled = true }, "pubsub.subscription"},
		{"short signing key", func(c *Config) { c.Security.JWTSigningKey = "short" }, "jwt_signing_key"},
		{"pool smaller than concurrency", func(c *Config) { c.Worker.DeliveryPoolSize = 2 }, "delivery_pool_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
