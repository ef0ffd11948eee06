// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Supported pusher and storage backend names.
const (
	PusherSimulated = "simulated"
	PusherLog       = "log"
	PusherMemory    = "memory"
	PusherPubSub    = "pubsub"
	PusherArchive   = "archive"
	PusherPostgres  = "postgres"

	StorageLocal  = "local"
	StorageGCS    = "gcs"
	StorageMemory = "memory"
)

var (
	knownPushers  = []string{PusherSimulated, PusherLog, PusherMemory, PusherPubSub, PusherArchive, PusherPostgres}
	knownBackends = []string{StorageLocal, StorageGCS, StorageMemory}
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Batch     BatchConfig     `mapstructure:"batch"`
	Sink      SinkConfig      `mapstructure:"sink"`
	Shutdown  ShutdownConfig  `mapstructure:"shutdown"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Demo      DemoConfig      `mapstructure:"demo"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// BatchConfig governs per-topic accumulators.
type BatchConfig struct {
	Size            int           `mapstructure:"size"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MailboxCapacity int           `mapstructure:"mailbox_capacity"`
}

// SinkConfig governs the shared sink and its downstream pushers.
type SinkConfig struct {
	MailboxCapacity int             `mapstructure:"mailbox_capacity"`
	PushTimeout     time.Duration   `mapstructure:"push_timeout"`
	Pushers         []string        `mapstructure:"pushers"`
	Simulated       SimulatedConfig `mapstructure:"simulated"`
	Retry           RetryConfig     `mapstructure:"retry"`
}

// SimulatedConfig shapes the simulated downstream latency.
type SimulatedConfig struct {
	Latency time.Duration `mapstructure:"latency"`
	Jitter  time.Duration `mapstructure:"jitter"`
}

// RetryConfig controls push retries. MaxTries of 1 disables retrying.
type RetryConfig struct {
	MaxTries        uint          `mapstructure:"max_tries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

// ShutdownConfig bounds graceful shutdown.
type ShutdownConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	FlushTimeout time.Duration `mapstructure:"flush_timeout"`
}

// PubSubConfig holds Pub/Sub publishing settings.
type PubSubConfig struct {
	ProjectID   string `mapstructure:"project_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

// StorageConfig selects the blob store used by the archive pusher.
type StorageConfig struct {
	Backend         string `mapstructure:"backend"`
	BaseDir         string `mapstructure:"base_dir"`
	GCSBucket       string `mapstructure:"gcs_bucket"`
	GCSCacheControl string `mapstructure:"gcs_cache_control"`
	Prefix          string `mapstructure:"prefix"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ServerConfig controls the HTTP admin server. RateLimitRPS of zero disables
// per-topic ingress throttling.
type ServerConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	Port           int     `mapstructure:"port"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// DemoConfig drives the built-in producer.
type DemoConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Topic    string        `mapstructure:"topic"`
	Interval time.Duration `mapstructure:"interval"`
	Count    int           `mapstructure:"count"`
}

// TelemetryConfig toggles OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TOPICBATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Batch.MailboxCapacity == 0 {
		cfg.Batch.MailboxCapacity = cfg.Batch.Size * 5
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("batch.size", 5)
	v.SetDefault("batch.timeout", "1s")
	v.SetDefault("batch.mailbox_capacity", 0)
	v.SetDefault("sink.mailbox_capacity", 10)
	v.SetDefault("sink.push_timeout", "10s")
	v.SetDefault("sink.pushers", []string{PusherSimulated})
	v.SetDefault("sink.simulated.latency", "500ms")
	v.SetDefault("sink.simulated.jitter", "0s")
	v.SetDefault("sink.retry.max_tries", 1)
	v.SetDefault("sink.retry.initial_interval", "250ms")
	v.SetDefault("sink.retry.max_interval", "5s")
	v.SetDefault("shutdown.timeout", "30s")
	v.SetDefault("shutdown.flush_timeout", "5s")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_prefix", "")
	v.SetDefault("storage.backend", StorageLocal)
	v.SetDefault("storage.base_dir", "data/batches")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.gcs_cache_control", "")
	v.SetDefault("storage.prefix", "batches")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "topic_batches")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit_rps", 0)
	v.SetDefault("server.rate_limit_burst", 10)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("demo.enabled", true)
	v.SetDefault("demo.topic", "topic1")
	v.SetDefault("demo.interval", "200ms")
	v.SetDefault("demo.count", 9999)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "topicbatch")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Batch.Size <= 0 {
		return fmt.Errorf("batch.size must be > 0")
	}
	if c.Batch.Timeout <= 0 {
		return fmt.Errorf("batch.timeout must be > 0")
	}
	if c.Batch.MailboxCapacity <= 0 {
		return fmt.Errorf("batch.mailbox_capacity must be > 0")
	}
	if c.Sink.MailboxCapacity <= 0 {
		return fmt.Errorf("sink.mailbox_capacity must be > 0")
	}
	if c.Sink.PushTimeout <= 0 {
		return fmt.Errorf("sink.push_timeout must be > 0")
	}
	if c.Sink.Retry.MaxTries == 0 {
		return fmt.Errorf("sink.retry.max_tries must be > 0")
	}
	if len(c.Sink.Pushers) == 0 {
		return fmt.Errorf("sink.pushers must name at least one pusher")
	}
	for _, name := range c.Sink.Pushers {
		if !slices.Contains(knownPushers, name) {
			return fmt.Errorf("sink.pushers: unknown pusher %q", name)
		}
	}
	if c.UsesPusher(PusherPubSub) && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when the pubsub pusher is enabled")
	}
	if c.UsesPusher(PusherPostgres) && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set when the postgres pusher is enabled")
	}
	if c.UsesPusher(PusherArchive) {
		if !slices.Contains(knownBackends, c.Storage.Backend) {
			return fmt.Errorf("storage.backend: unknown backend %q", c.Storage.Backend)
		}
		if c.Storage.Backend == StorageGCS && c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
		if c.Storage.Backend == StorageLocal && c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir must be set for the local backend")
		}
	}
	if c.Shutdown.Timeout <= 0 {
		return fmt.Errorf("shutdown.timeout must be > 0")
	}
	if c.Shutdown.FlushTimeout <= 0 {
		return fmt.Errorf("shutdown.flush_timeout must be > 0")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0, 1]")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RateLimitRPS < 0 {
		return fmt.Errorf("server.rate_limit_rps must be >= 0")
	}
	if c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst <= 0 {
		return fmt.Errorf("server.rate_limit_burst must be > 0 when rate limiting is enabled")
	}
	if c.Demo.Enabled {
		if strings.TrimSpace(c.Demo.Topic) == "" {
			return fmt.Errorf("demo.topic must be set when the demo is enabled")
		}
		if c.Demo.Interval <= 0 {
			return fmt.Errorf("demo.interval must be > 0")
		}
		if c.Demo.Count < 0 {
			return fmt.Errorf("demo.count must be >= 0")
		}
	}
	return nil
}

// UsesPusher reports whether name is listed in sink.pushers.
func (c Config) UsesPusher(name string) bool {
	return slices.Contains(c.Sink.Pushers, name)
}
