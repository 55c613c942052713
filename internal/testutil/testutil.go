// Package testutil provides testing utilities and fixtures.
//
// Fixtures use functional options for customization:
//
//	target := testutil.FixtureTarget()
//	target := testutil.FixtureTarget(func(t *types.ServiceTarget) {
//		t.Name = "payments"
//		t.Interval = 10 * time.Second
//	})
package testutil

import (
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/priyanshumodi22/kubiq-sub000/pkg/types"
)

// NewTestLogger returns a logger that discards all output.
func NewTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// =============================================================================
// TARGET FIXTURES
// =============================================================================

// FixtureTarget creates an HTTP target with sensible defaults.
func FixtureTarget(overrides ...func(*types.ServiceTarget)) *types.ServiceTarget {
	target := &types.ServiceTarget{
		Name:      "svc-" + uuid.New().String()[:8],
		Kind:      types.KindHTTP,
		URL:       "https://example.com/healthz",
		Enabled:   true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	for _, override := range overrides {
		override(target)
	}

	return target
}

// FixtureTCPTarget creates a TCP target.
func FixtureTCPTarget(overrides ...func(*types.ServiceTarget)) *types.ServiceTarget {
	return FixtureTarget(append([]func(*types.ServiceTarget){
		func(t *types.ServiceTarget) {
			t.Kind = types.KindTCP
			t.URL = ""
			t.Address = "127.0.0.1:5432"
		},
	}, overrides...)...)
}

// =============================================================================
// RESULT FIXTURES
// =============================================================================

// FixtureResult creates a successful check result for a target.
func FixtureResult(target string, overrides ...func(*types.CheckResult)) types.CheckResult {
	result := types.CheckResult{
		Target:     target,
		Timestamp:  time.Now(),
		Success:    true,
		StatusCode: 200,
		LatencyMs:  12.5,
	}

	for _, override := range overrides {
		override(&result)
	}

	return result
}

// FixtureFailedResult creates a failed check result.
func FixtureFailedResult(target string, kind types.FailureKind, overrides ...func(*types.CheckResult)) types.CheckResult {
	return FixtureResult(target, append([]func(*types.CheckResult){
		func(r *types.CheckResult) {
			r.Success = false
			r.StatusCode = 0
			r.LatencyMs = 0
			r.Failure = kind
			r.Error = string(kind)
		},
	}, overrides...)...)
}

// =============================================================================
// CHANNEL FIXTURES
// =============================================================================

// FixtureChannel creates an enabled webhook channel subscribed to both
// event types.
func FixtureChannel(overrides ...func(*types.NotificationChannel)) *types.NotificationChannel {
	ch := &types.NotificationChannel{
		ID:         uuid.New().String(),
		Name:       "channel-" + uuid.New().String()[:8],
		Kind:       types.ChannelWebhook,
		Enabled:    true,
		Events:     []types.EventType{types.EventUp, types.EventDown},
		WebhookURL: "https://hooks.example.com/notify",
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	for _, override := range overrides {
		override(ch)
	}

	return ch
}

// FixtureEmailChannel creates an enabled email channel.
func FixtureEmailChannel(overrides ...func(*types.NotificationChannel)) *types.NotificationChannel {
	return FixtureChannel(append([]func(*types.NotificationChannel){
		func(c *types.NotificationChannel) {
			c.Kind = types.ChannelEmail
			c.WebhookURL = ""
			c.SMTP = &types.SMTPConfig{
				Host:       "smtp.example.com",
				Port:       587,
				From:       "alerts@example.com",
				Recipients: []string{"oncall@example.com"},
			}
		},
	}, overrides...)...)
}

// =============================================================================
// LOG SOURCE FIXTURES
// =============================================================================

// FixtureLogSource creates a log source binding.
func FixtureLogSource(pattern string, overrides ...func(*types.LogSource)) *types.LogSource {
	src := &types.LogSource{
		ID:          uuid.New().String(),
		ServiceName: "svc-" + uuid.New().String()[:8],
		DisplayName: "Test log source",
		Pattern:     pattern,
		CreatedAt:   time.Now(),
	}

	for _, override := range overrides {
		override(src)
	}

	return src
}

// =============================================================================
// STATUS PAGE FIXTURES
// =============================================================================

// FixtureStatusPage creates an enabled status page.
func FixtureStatusPage(services []string, overrides ...func(*types.StatusPage)) *types.StatusPage {
	page := &types.StatusPage{
		Slug:            "page-" + uuid.New().String()[:8],
		Title:           "Service Status",
		RefreshInterval: 30 * time.Second,
		Enabled:         true,
		ServiceNames:    services,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}

	for _, override := range overrides {
		override(page)
	}

	return page
}
