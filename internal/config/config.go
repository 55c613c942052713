// Package config handles engine configuration loading and validation.
//
// # Configuration Sources
//
// Configuration is loaded from (in order of precedence):
// 1. Command-line flags
// 2. Environment variables (KUBIQ_*)
// 3. Config file (YAML)
// 4. Defaults
//
// # Example Config File
//
//	server:
//	  port: 8080
//
//	database:
//	  url: postgres://localhost:5432/kubiq?sslmode=disable
//
//	redis:
//	  url: redis://localhost:6379/0
//
//	schedule:
//	  check_interval: 60s
//	  probe_timeout: 10s
//
//	history:
//	  window_size: 1000
//	  retention_max_age: 720h
//
//	notify:
//	  max_retries: 3
//	  retry_backoff: 5s
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Schedule ScheduleConfig `yaml:"schedule"`
	History  HistoryConfig  `yaml:"history"`
	Notify   NotifyConfig   `yaml:"notify"`
	Tail     TailConfig     `yaml:"tail"`
}

// ServerConfig defines the HTTP listener.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout,omitempty"`
	WriteTimeout time.Duration `yaml:"write_timeout,omitempty"`
}

// DatabaseConfig defines the durable record store connection.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig defines the result buffer / cache connection.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// ScheduleConfig defines check scheduling behavior.
type ScheduleConfig struct {
	// CheckInterval is the global default between checks for one target.
	// Targets may override it individually.
	CheckInterval time.Duration `yaml:"check_interval"`

	// ProbeTimeout is the hard bound on a single check.
	ProbeTimeout time.Duration `yaml:"probe_timeout"`

	// JitterFraction spreads tick starts by up to this fraction of the
	// interval, avoiding thundering-herd synchronization across targets.
	JitterFraction float64 `yaml:"jitter_fraction"`

	// ReloadInterval is how often the target/channel snapshot is
	// refreshed from the configuration store.
	ReloadInterval time.Duration `yaml:"reload_interval"`
}

// HistoryConfig defines in-memory window and durable retention.
type HistoryConfig struct {
	// WindowSize caps the in-memory results retained per target.
	WindowSize int `yaml:"window_size"`

	// RetentionMaxAge prunes durable results older than this. 0 disables.
	RetentionMaxAge time.Duration `yaml:"retention_max_age"`

	// RetentionMaxCount caps durable results per target. 0 disables.
	RetentionMaxCount int `yaml:"retention_max_count"`

	// PruneInterval is how often the retention pass runs.
	PruneInterval time.Duration `yaml:"prune_interval"`
}

// NotifyConfig defines notification dispatch behavior.
type NotifyConfig struct {
	// MaxRetries bounds delivery attempts per channel per event.
	MaxRetries int `yaml:"max_retries"`

	// RetryBackoff is the base delay between delivery attempts.
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// SendTimeout bounds a single webhook POST or SMTP session.
	SendTimeout time.Duration `yaml:"send_timeout"`

	// WebhookRatePerSec limits outbound webhook sends engine-wide.
	WebhookRatePerSec float64 `yaml:"webhook_rate_per_sec"`
	WebhookBurst      int     `yaml:"webhook_burst"`
}

// TailConfig defines log streaming behavior.
type TailConfig struct {
	// InitialLines is how many trailing lines the initial batch carries.
	InitialLines int `yaml:"initial_lines"`

	// SubscriberBuffer is the per-subscription event buffer; oldest
	// events are dropped when a slow consumer falls behind.
	SubscriberBuffer int `yaml:"subscriber_buffer"`

	// PollInterval is the fallback scan cadence when no fsnotify event
	// arrives (e.g. on filesystems without inotify support).
	PollInterval time.Duration `yaml:"poll_interval"`

	// DefaultMaxFiles caps glob expansion when a source sets no limit.
	DefaultMaxFiles int `yaml:"default_max_files"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			URL: "postgres://localhost:5432/kubiq?sslmode=disable",
		},
		Redis: RedisConfig{
			URL: "redis://localhost:6379/0",
		},
		Schedule: ScheduleConfig{
			CheckInterval:  60 * time.Second,
			ProbeTimeout:   10 * time.Second,
			JitterFraction: 0.1,
			ReloadInterval: 30 * time.Second,
		},
		History: HistoryConfig{
			WindowSize:        1000,
			RetentionMaxAge:   30 * 24 * time.Hour,
			RetentionMaxCount: 100000,
			PruneInterval:     15 * time.Minute,
		},
		Notify: NotifyConfig{
			MaxRetries:        3,
			RetryBackoff:      5 * time.Second,
			SendTimeout:       15 * time.Second,
			WebhookRatePerSec: 5,
			WebhookBurst:      10,
		},
		Tail: TailConfig{
			InitialLines:     100,
			SubscriberBuffer: 256,
			PollInterval:     2 * time.Second,
			DefaultMaxFiles:  20,
		},
	}
}

// LoadFromFile loads configuration from a YAML file on top of defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present and coherent.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.Schedule.CheckInterval <= 0 {
		return fmt.Errorf("schedule.check_interval must be positive")
	}
	if c.Schedule.ProbeTimeout <= 0 {
		return fmt.Errorf("schedule.probe_timeout must be positive")
	}
	if c.Schedule.JitterFraction < 0 || c.Schedule.JitterFraction >= 1 {
		return fmt.Errorf("schedule.jitter_fraction must be in [0, 1)")
	}
	if c.Tail.InitialLines < 0 {
		return fmt.Errorf("tail.initial_lines must not be negative")
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides.
// Environment variables use the KUBIQ_ prefix:
// - KUBIQ_DATABASE_URL
// - KUBIQ_REDIS_URL
// - KUBIQ_PORT
// - KUBIQ_CHECK_INTERVAL (Go duration, e.g. "30s")
// - KUBIQ_PROBE_TIMEOUT (Go duration)
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("KUBIQ_DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("KUBIQ_REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("KUBIQ_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("KUBIQ_CHECK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Schedule.CheckInterval = d
		}
	}
	if v := os.Getenv("KUBIQ_PROBE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Schedule.ProbeTimeout = d
		}
	}
}
