// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Buffer   BufferConfig   `mapstructure:"buffer"`
	BFS      BFSConfig      `mapstructure:"bfs"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Headless HeadlessConfig `mapstructure:"headless"`
	DB       DBConfig       `mapstructure:"db"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Stream   StreamConfig   `mapstructure:"stream"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// BufferConfig governs the priority buffer flush policy.
type BufferConfig struct {
	Threshold       int `mapstructure:"threshold"`
	TimeoutSeconds  int `mapstructure:"timeout_seconds"`
	FlushIntervalMs int `mapstructure:"flush_interval_ms"`
}

// BFSConfig bounds the breadth-first URL expansion.
type BFSConfig struct {
	MaxDepth         int    `mapstructure:"max_depth"`
	MaxURLsPerSymbol int    `mapstructure:"max_urls_per_symbol"`
	SeedTemplate     string `mapstructure:"seed_template"`
}

// QueueConfig sets per-tier capacities and loop intervals.
type QueueConfig struct {
	URLQueueSize       int `mapstructure:"url_queue_size"`
	RouterIntervalMs   int `mapstructure:"router_interval_ms"`
	DispatchIntervalMs int `mapstructure:"dispatch_interval_ms"`
}

// WorkerConfig bounds the download worker pool.
type WorkerConfig struct {
	MaxWorkers int `mapstructure:"max_workers"`
}

// HTTPConfig configures outbound fetch behavior.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
}

// HeadlessConfig configures the headless rendering fallback.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
	PromotionThresh int  `mapstructure:"promotion_threshold"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// ArchiveConfig selects where raw HTML artifacts go.
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"` // gcs | local | none
	GCSBucket string `mapstructure:"gcs_bucket"`
	BaseDir   string `mapstructure:"base_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// StreamConfig holds metadata for the inbound symbol event subscription.
type StreamConfig struct {
	ProjectID      string `mapstructure:"project_id"`
	SubscriptionID string `mapstructure:"subscription_id"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
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

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("buffer.threshold", 2)
	v.SetDefault("buffer.timeout_seconds", 10)
	v.SetDefault("buffer.flush_interval_ms", 1000)
	v.SetDefault("bfs.max_depth", 2)
	v.SetDefault("bfs.max_urls_per_symbol", 10)
	v.SetDefault("bfs.seed_template", "https://news.google.com/search?q=%s")
	v.SetDefault("queue.url_queue_size", 30)
	v.SetDefault("queue.router_interval_ms", 1000)
	v.SetDefault("queue.dispatch_interval_ms", 1000)
	v.SetDefault("worker.max_workers", 10)
	v.SetDefault("http.timeout_seconds", 5)
	v.SetDefault("http.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("archive.provider", "none")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Buffer.Threshold <= 0 {
		return fmt.Errorf("buffer.threshold must be > 0")
	}
	if c.Buffer.TimeoutSeconds <= 0 {
		return fmt.Errorf("buffer.timeout_seconds must be > 0")
	}
	if c.BFS.MaxDepth <= 0 {
		return fmt.Errorf("bfs.max_depth must be > 0")
	}
	if c.BFS.MaxURLsPerSymbol <= 0 {
		return fmt.Errorf("bfs.max_urls_per_symbol must be > 0")
	}
	if c.Queue.URLQueueSize <= 0 {
		return fmt.Errorf("queue.url_queue_size must be > 0")
	}
	if c.Worker.MaxWorkers <= 0 {
		return fmt.Errorf("worker.max_workers must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	switch c.Archive.Provider {
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set when archive.provider is gcs")
		}
	case "local":
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir must be set when archive.provider is local")
		}
	case "none", "":
	default:
		return fmt.Errorf("unknown archive.provider %q", c.Archive.Provider)
	}
	return nil
}

// FetchTimeout returns the per-fetch timeout as a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// BufferTimeout returns the buffer age cutoff as a duration.
func (c Config) BufferTimeout() time.Duration {
	return time.Duration(c.Buffer.TimeoutSeconds) * time.Second
}

// FlushInterval returns the flush driver period as a duration.
func (c Config) FlushInterval() time.Duration {
	return time.Duration(c.Buffer.FlushIntervalMs) * time.Millisecond
}

// RouterInterval returns the router backoff period as a duration.
func (c Config) RouterInterval() time.Duration {
	return time.Duration(c.Queue.RouterIntervalMs) * time.Millisecond
}

// DispatchInterval returns the URL dispatch period as a duration.
func (c Config) DispatchInterval() time.Duration {
	return time.Duration(c.Queue.DispatchIntervalMs) * time.Millisecond
}
