// Package config provides configuration management for the notifier.
//
// Configuration is loaded from:
// 1. .env file in the working directory (optional, local development)
// 2. config.yaml file (optional)
// 3. Environment variables (standard names like SERVER_PORT, FIREBASE_PROJECT_ID)
// 4. Default values
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Firebase FirebaseConfig `mapstructure:"firebase"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Delivery DeliveryConfig `mapstructure:"delivery"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Security SecurityConfig `mapstructure:"security"`
	Worker   WorkerConfig   `mapstructure:"worker"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	AllowedOrigins        []string `mapstructure:"allowed_origins"`
	AllowCredentials      bool     `mapstructure:"allow_credentials"`
	UnsafeAllowAllOrigins bool     `mapstructure:"unsafe_allow_all_origins"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// FirebaseConfig selects the Firebase project backing Firestore and FCM.
type FirebaseConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	CredentialsFile string `mapstructure:"credentials_file"`
	// EmulatorHost is exported as FIRESTORE_EMULATOR_HOST before the client is built.
	EmulatorHost string `mapstructure:"emulator_host"`
}

// PubSubConfig configures the entity-created subscription.
type PubSubConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ProjectID    string `mapstructure:"project_id"`
	Subscription string `mapstructure:"subscription"`
	// MaxOutstandingMessages bounds concurrent Receive callbacks.
	MaxOutstandingMessages int `mapstructure:"max_outstanding_messages"`
}

// DeliveryConfig tunes the delivery engine.
type DeliveryConfig struct {
	// Concurrency caps recipients in flight within one invocation.
	Concurrency int `mapstructure:"concurrency"`
	// MaxRetries applies to transient send errors only. Zero disables retry.
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	SendTimeout  time.Duration `mapstructure:"send_timeout"`
}

// FeedConfig bounds the user feed callable.
type FeedConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
	// MinFetchLimit is the per-collection query size floor; each group
	// collection is read with max(limit, MinFetchLimit).
	MinFetchLimit int `mapstructure:"min_fetch_limit"`
	MaxLimit      int `mapstructure:"max_limit"`
}

// SecurityConfig contains security-related settings.
type SecurityConfig struct {
	JWTSigningKey string `mapstructure:"jwt_signing_key"`
	// JWTVerificationKeys are previous signing keys still accepted during rotation.
	JWTVerificationKeys []string      `mapstructure:"jwt_verification_keys"`
	JWTIssuer           string        `mapstructure:"jwt_issuer"`
	JWTExpiresIn        time.Duration `mapstructure:"jwt_expires_in"`
	// IngestSecret authenticates POST /events/entity-created.
	IngestSecret string `mapstructure:"ingest_secret"`
}

// WorkerConfig contains worker pool settings.
type WorkerConfig struct {
	DeliveryPoolSize int `mapstructure:"delivery_pool_size"`
	EventsPoolSize   int `mapstructure:"events_pool_size"`
}

var (
	bootstrapLoggerOnce sync.Once
	bootstrapLogger     *zap.Logger
)

// Load reads configuration from .env, file and environment variables.
// Nested keys map to env names by replacing dots: delivery.max_retries → DELIVERY_MAX_RETRIES.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/koinonia-notifier")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firebase.ProjectID
	}

	if err := cfg.ensureSecrets(); err != nil {
		return nil, fmt.Errorf("ensure secrets: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate checks for critical configuration errors.
func (c *Config) Validate() error {
	if c.Firebase.ProjectID == "" {
		return fmt.Errorf("firebase.project_id must not be empty")
	}
	if c.Delivery.Concurrency < 1 {
		return fmt.Errorf("delivery.concurrency must be at least 1")
	}
	if c.Delivery.MaxRetries < 0 {
		return fmt.Errorf("delivery.max_retries must not be negative")
	}
	if c.Delivery.MaxRetries > 0 && c.Delivery.RetryBackoff <= 0 {
		return fmt.Errorf("delivery.retry_backoff must be positive when retries are enabled")
	}
	if c.Feed.DefaultLimit < 1 || c.Feed.MinFetchLimit < 1 || c.Feed.MaxLimit < c.Feed.DefaultLimit {
		return fmt.Errorf("feed limits must be positive and max_limit must cover default_limit")
	}
	if c.PubSub.Enabled && c.PubSub.Subscription == "" {
		return fmt.Errorf("pubsub.subscription is required when pubsub is enabled")
	}
	if len(c.Security.JWTSigningKey) < 32 {
		return fmt.Errorf("security.jwt_signing_key must be at least 32 characters")
	}
	if c.Worker.DeliveryPoolSize < c.Delivery.Concurrency {
		return fmt.Errorf("worker.delivery_pool_size (%d) must not be smaller than delivery.concurrency (%d)",
			c.Worker.DeliveryPoolSize, c.Delivery.Concurrency)
	}
	return nil
}

// ensureSecrets generates missing secrets on first boot so a local run works
// without any setup. Tokens signed with a generated key do not survive a restart.
func (c *Config) ensureSecrets() error {
	if c.Security.JWTSigningKey == "" {
		key, err := generateSecureRandomHex(32)
		if err != nil {
			return fmt.Errorf("auto-generate jwt signing key: %w", err)
		}
		c.Security.JWTSigningKey = key
		logBootstrapWarn(
			"auto-generated jwt_signing_key; set SECURITY_JWT_SIGNING_KEY env var for persistence",
			zap.Int("length", len(key)),
		)
	}
	if c.Security.IngestSecret == "" {
		secret, err := generateSecureRandomHex(24)
		if err != nil {
			return fmt.Errorf("auto-generate ingest secret: %w", err)
		}
		c.Security.IngestSecret = secret
		logBootstrapWarn(
			"auto-generated ingest_secret; set SECURITY_INGEST_SECRET env var so event publishers can authenticate",
			zap.Int("length", len(secret)),
		)
	}
	return nil
}

func logBootstrapWarn(msg string, fields ...zap.Field) {
	bootstrapLoggerOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)

		l, err := cfg.Build()
		if err != nil {
			bootstrapLogger = zap.NewNop()
			return
		}
		bootstrapLogger = l
	})

	bootstrapLogger.Warn(msg, fields...)
}

func generateSecureRandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("crypto/rand: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.allow_credentials", true)
	v.SetDefault("server.unsafe_allow_all_origins", false)

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Firebase
	v.SetDefault("firebase.project_id", "")
	v.SetDefault("firebase.credentials_file", "")
	v.SetDefault("firebase.emulator_host", "")

	// Pub/Sub
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.subscription", "")
	v.SetDefault("pubsub.max_outstanding_messages", 8)

	// Delivery
	v.SetDefault("delivery.concurrency", 16)
	v.SetDefault("delivery.max_retries", 0)
	v.SetDefault("delivery.retry_backoff", "200ms")
	v.SetDefault("delivery.send_timeout", "10s")

	// Feed
	v.SetDefault("feed.default_limit", 10)
	v.SetDefault("feed.min_fetch_limit", 10)
	v.SetDefault("feed.max_limit", 50)

	// Security
	v.SetDefault("security.jwt_signing_key", "")
	v.SetDefault("security.jwt_verification_keys", []string{})
	v.SetDefault("security.jwt_issuer", "koinonia")
	v.SetDefault("security.jwt_expires_in", "1h")
	v.SetDefault("security.ingest_secret", "")

	// Worker pools
	v.SetDefault("worker.delivery_pool_size", 64)
	v.SetDefault("worker.events_pool_size", 16)
}
