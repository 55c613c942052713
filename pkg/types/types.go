// Package types defines the core domain types shared across the engine.
//
// # Design Principles
//
// 1. Simplicity: Types represent the domain model directly, no ORM abstractions
// 2. Serialization: All types are JSON-serializable for API transport
// 3. Validation: Types include Validate() methods for business rule enforcement
package types

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// =============================================================================
// SERVICE TARGET
// =============================================================================

// CheckKind identifies the probe mechanism for a target.
type CheckKind string

const (
	// KindHTTP - HTTP(S) request, success judged by status code
	KindHTTP CheckKind = "http"
	// KindTCP - raw TCP dial, success = connection established
	KindTCP CheckKind = "tcp"
	// KindMySQL - MySQL ping over a DSN
	KindMySQL CheckKind = "mysql"
	// KindMongoDB - MongoDB ping over a connection string
	KindMongoDB CheckKind = "mongodb"
)

// Valid reports whether the kind is one of the supported probe kinds.
func (k CheckKind) Valid() bool {
	switch k {
	case KindHTTP, KindTCP, KindMySQL, KindMongoDB:
		return true
	}
	return false
}

// ServiceTarget is one monitored service.
//
// Targets are owned by the configuration store; the engine holds a
// read-only snapshot refreshed per scheduling cycle.
type ServiceTarget struct {
	// Name is the unique identifier for the target.
	Name string    `json:"name"`
	Kind CheckKind `json:"kind"`

	// HTTP settings
	URL            string            `json:"url,omitempty"`
	Method         string            `json:"method,omitempty"` // Defaults to GET
	Headers        map[string]string `json:"headers,omitempty"`
	Body           string            `json:"body,omitempty"`
	ExpectedStatus int               `json:"expected_status,omitempty"` // 0 = any 2xx/3xx
	SkipTLSVerify  bool              `json:"skip_tls_verify,omitempty"`

	// TCP settings
	Address string `json:"address,omitempty"` // host:port

	// Database settings (mysql DSN or mongodb connection string)
	ConnString string `json:"conn_string,omitempty"`

	// Interval overrides the global check interval when non-zero.
	Interval time.Duration `json:"interval,omitempty"`

	Enabled bool `json:"enabled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks that the target has the fields its check kind requires.
func (t *ServiceTarget) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("target name is required")
	}
	if !t.Kind.Valid() {
		return fmt.Errorf("target %q: unknown check kind %q", t.Name, t.Kind)
	}

	switch t.Kind {
	case KindHTTP:
		if t.URL == "" {
			return fmt.Errorf("target %q: url is required for http checks", t.Name)
		}
		u, err := url.Parse(t.URL)
		if err != nil {
			return fmt.Errorf("target %q: invalid url: %w", t.Name, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("target %q: unsupported scheme %q", t.Name, u.Scheme)
		}
	case KindTCP:
		if t.Address == "" {
			return fmt.Errorf("target %q: address is required for tcp checks", t.Name)
		}
		if _, _, err := net.SplitHostPort(t.Address); err != nil {
			return fmt.Errorf("target %q: address must be host:port: %w", t.Name, err)
		}
	case KindMySQL, KindMongoDB:
		if t.ConnString == "" {
			return fmt.Errorf("target %q: conn_string is required for %s checks", t.Name, t.Kind)
		}
	}
	return nil
}

// EffectiveInterval returns the per-target interval, or def when unset.
func (t *ServiceTarget) EffectiveInterval(def time.Duration) time.Duration {
	if t.Interval > 0 {
		return t.Interval
	}
	return def
}

// =============================================================================
// CHECK RESULT
// =============================================================================

// FailureKind classifies why a check failed. Empty on success.
type FailureKind string

const (
	FailureTimeout           FailureKind = "timeout"
	FailureConnectionRefused FailureKind = "connection_refused"
	FailureTLS               FailureKind = "tls_error"
	FailureProtocol          FailureKind = "protocol_error"
	FailureInvalidConfig     FailureKind = "invalid_config"
)

// CertInfo carries peer certificate metadata captured during a TLS check.
// Captured independently of verification so expiry can be surfaced even
// when verification is intentionally skipped.
type CertInfo struct {
	Issuer   string    `json:"issuer"`
	Subject  string    `json:"subject"`
	NotAfter time.Time `json:"not_after"`
}

// CheckResult is the immutable outcome of a single health check.
type CheckResult struct {
	Target     string      `json:"target"`
	Timestamp  time.Time   `json:"timestamp"`
	Success    bool        `json:"success"`
	StatusCode int         `json:"status_code,omitempty"`
	LatencyMs  float64     `json:"latency_ms"`
	Error      string      `json:"error,omitempty"`
	Failure    FailureKind `json:"failure,omitempty"`
	Cert       *CertInfo   `json:"cert,omitempty"`
}

// =============================================================================
// SERVICE STATE
// =============================================================================

// Status is the derived health status of a target.
type Status string

const (
	// StatusUnknown - no check has completed yet
	StatusUnknown   Status = "unknown"
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// StatusFor maps a check outcome to a status.
func StatusFor(success bool) Status {
	if success {
		return StatusHealthy
	}
	return StatusUnhealthy
}

// ServiceState is the current derived state of a target. It is a cache
// over the most recent CheckResult, never a source of truth.
type ServiceState struct {
	Target        string       `json:"target"`
	Status        Status       `json:"status"`
	Since         time.Time    `json:"since"`
	LastResult    *CheckResult `json:"last_result,omitempty"`
	UptimePercent float64      `json:"uptime_percent"`
	AvgLatencyMs  float64      `json:"avg_latency_ms"`
	CheckCount    int          `json:"check_count"`
}

// AggregateStats summarises a window of check results for one target.
type AggregateStats struct {
	UptimePercent float64 `json:"uptime_percent"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	Total         int     `json:"total"`
	Successes     int     `json:"successes"`
}

// =============================================================================
// NOTIFICATION CHANNELS
// =============================================================================

// EventType identifies a status transition direction.
type EventType string

const (
	EventUp   EventType = "up"
	EventDown EventType = "down"
)

// ChannelKind identifies the delivery mechanism for a channel.
type ChannelKind string

const (
	ChannelWebhook ChannelKind = "webhook"
	ChannelEmail   ChannelKind = "email"
)

// SMTPConfig is the delivery descriptor for an email channel.
type SMTPConfig struct {
	Host       string   `json:"host"`
	Port       int      `json:"port"`
	Username   string   `json:"username,omitempty"`
	Password   string   `json:"password,omitempty"`
	From       string   `json:"from"`
	Recipients []string `json:"recipients"`
}

// NotificationChannel is a configured alert destination. Consumed
// read-only by the notifier.
type NotificationChannel struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	Kind    ChannelKind `json:"kind"`
	Enabled bool        `json:"enabled"`

	// Events this channel subscribes to (up, down).
	Events []EventType `json:"events"`

	// Webhook settings
	WebhookURL string `json:"webhook_url,omitempty"`

	// Email settings
	SMTP *SMTPConfig `json:"smtp,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SubscribedTo reports whether the channel wants events of the given type.
func (c *NotificationChannel) SubscribedTo(et EventType) bool {
	for _, e := range c.Events {
		if e == et {
			return true
		}
	}
	return false
}

// Validate checks the channel's delivery configuration.
func (c *NotificationChannel) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("channel name is required")
	}
	switch c.Kind {
	case ChannelWebhook:
		if !strings.HasPrefix(c.WebhookURL, "http://") && !strings.HasPrefix(c.WebhookURL, "https://") {
			return fmt.Errorf("channel %q: webhook_url must be an http(s) URL", c.Name)
		}
	case ChannelEmail:
		if c.SMTP == nil || c.SMTP.Host == "" || len(c.SMTP.Recipients) == 0 {
			return fmt.Errorf("channel %q: smtp host and recipients are required", c.Name)
		}
	default:
		return fmt.Errorf("channel %q: unknown kind %q", c.Name, c.Kind)
	}
	return nil
}

// NotificationEvent is one status transition to be delivered to channels.
type NotificationEvent struct {
	ID         string      `json:"id"`
	Type       EventType   `json:"type"`
	Target     string      `json:"target"`
	Previous   Status      `json:"previous"`
	Current    Status      `json:"current"`
	Result     CheckResult `json:"result"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// =============================================================================
// LOG SOURCES
// =============================================================================

// LogSource binds a log file path or glob pattern to a service.
// The active file resolved from a pattern is derived state, recomputed
// per watch session, never persisted.
type LogSource struct {
	ID          string    `json:"id"`
	ServiceName string    `json:"service_name"`
	DisplayName string    `json:"display_name"`
	Pattern     string    `json:"pattern"`
	MaxFiles    int       `json:"max_files,omitempty"` // 0 = unlimited
	CreatedAt   time.Time `json:"created_at"`
}

// Validate checks the log source binding.
func (s *LogSource) Validate() error {
	if s.ServiceName == "" {
		return fmt.Errorf("log source service_name is required")
	}
	if s.Pattern == "" {
		return fmt.Errorf("log source %q: pattern is required", s.DisplayName)
	}
	return nil
}

// =============================================================================
// STATUS PAGES
// =============================================================================

// StatusPage is a public, slug-keyed projection of a subset of targets.
type StatusPage struct {
	Slug            string        `json:"slug"`
	Title           string        `json:"title"`
	RefreshInterval time.Duration `json:"refresh_interval"`
	Enabled         bool          `json:"enabled"`
	ServiceNames    []string      `json:"service_names"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}
