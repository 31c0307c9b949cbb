package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// Store policies for persistent-class notifications.
const (
	StorePolicyAlways      = "always"
	StorePolicyOfflineOnly = "offline_only"
)

// Config represents the overall application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Push     PushConfig     `yaml:"push"`
	Queue    QueueConfig    `yaml:"queue"`
	Presence PresenceConfig `yaml:"presence"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	StatsCacheTTL   int     `yaml:"stats_cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn" env:"DATABASE_DSN, overwrite"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogSQL                 bool   `yaml:"log_sql"`
}

// PushConfig holds the VAPID keys and delivery tuning for web push.
type PushConfig struct {
	PublicKey         string        `yaml:"vapid_public_key" env:"VAPID_PUBLIC_KEY, overwrite"`
	PrivateKey        string        `yaml:"vapid_private_key" env:"VAPID_PRIVATE_KEY, overwrite"`
	Subject           string        `yaml:"subject"`
	SendTimeout       time.Duration `yaml:"send_timeout"`
	BreakerFailures   uint32        `yaml:"breaker_failures"`
	BreakerOpenPeriod time.Duration `yaml:"breaker_open_period"`
}

// QueueConfig controls the delivery engine.
type QueueConfig struct {
	DrainInterval      time.Duration `yaml:"drain_interval"`
	MaxRetries         int           `yaml:"max_retries"`
	BatchSize          int           `yaml:"batch_size"`
	Parallelism        int           `yaml:"parallelism"`
	EphemeralTTL       time.Duration `yaml:"ephemeral_ttl"`
	PersistentTTL      time.Duration `yaml:"persistent_ttl"`
	StorePolicy        string        `yaml:"store_policy"`
	CleanupInterval    time.Duration `yaml:"cleanup_interval"`
	DeliveredRetention time.Duration `yaml:"delivered_retention"`
}

// PresenceConfig controls how online state is judged.
type PresenceConfig struct {
	Freshness time.Duration `yaml:"freshness"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// AuthConfig holds the secret used to verify caller tokens.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET, overwrite"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL, overwrite"`
	Format string `yaml:"format" env:"LOG_FORMAT, overwrite"`
}

// Load reads the configuration from the given path, applies environment
// overrides and fills in defaults.
func Load(ctx context.Context, path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills zero values with the service defaults.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.StatsCacheTTL <= 0 {
		cfg.Server.StatsCacheTTL = 5
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.Push.SendTimeout <= 0 {
		cfg.Push.SendTimeout = 10 * time.Second
	}
	if cfg.Push.BreakerFailures == 0 {
		cfg.Push.BreakerFailures = 5
	}
	if cfg.Push.BreakerOpenPeriod <= 0 {
		cfg.Push.BreakerOpenPeriod = time.Minute
	}

	if cfg.Queue.DrainInterval <= 0 {
		cfg.Queue.DrainInterval = 30 * time.Second
	}
	if cfg.Queue.MaxRetries <= 0 {
		cfg.Queue.MaxRetries = 5
	}
	if cfg.Queue.BatchSize <= 0 {
		cfg.Queue.BatchSize = 500
	}
	if cfg.Queue.Parallelism <= 0 {
		cfg.Queue.Parallelism = 8
	}
	if cfg.Queue.EphemeralTTL <= 0 {
		cfg.Queue.EphemeralTTL = 10 * time.Minute
	}
	if cfg.Queue.PersistentTTL <= 0 {
		cfg.Queue.PersistentTTL = 72 * time.Hour
	}
	if cfg.Queue.StorePolicy == "" {
		cfg.Queue.StorePolicy = StorePolicyAlways
	}
	if cfg.Queue.CleanupInterval <= 0 {
		cfg.Queue.CleanupInterval = 24 * time.Hour
	}
	if cfg.Queue.DeliveredRetention <= 0 {
		cfg.Queue.DeliveredRetention = 7 * 24 * time.Hour
	}

	if cfg.Presence.Freshness <= 0 {
		cfg.Presence.Freshness = 5 * time.Minute
	}
	if cfg.Presence.CacheTTL <= 0 {
		cfg.Presence.CacheTTL = 30 * time.Second
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

// Validate rejects configurations the service cannot run with.
func (cfg *Config) Validate() error {
	switch cfg.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", cfg.Database.Driver)
	}
	switch cfg.Queue.StorePolicy {
	case StorePolicyAlways, StorePolicyOfflineOnly:
	default:
		return fmt.Errorf("queue.store_policy must be %q or %q, got %q",
			StorePolicyAlways, StorePolicyOfflineOnly, cfg.Queue.StorePolicy)
	}
	return nil
}
