package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	gomail "gopkg.in/gomail.v2"

	"github.com/priyanshumodi22/kubiq-sub000/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockSender records deliveries and can fail a configurable number of times.
type mockSender struct {
	kind types.ChannelKind

	mu       sync.Mutex
	attempts int
	failures int // fail this many initial attempts
	sent     []types.NotificationEvent
}

func (m *mockSender) Kind() types.ChannelKind { return m.kind }

func (m *mockSender) Send(ctx context.Context, ch types.NotificationChannel, event types.NotificationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	if m.attempts <= m.failures {
		return errors.New("send failed")
	}
	m.sent = append(m.sent, event)
	return nil
}

func (m *mockSender) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func downEvent(target string) types.NotificationEvent {
	return types.NotificationEvent{
		ID:         "ev-1",
		Type:       types.EventDown,
		Target:     target,
		Previous:   types.StatusHealthy,
		Current:    types.StatusUnhealthy,
		OccurredAt: time.Now(),
	}
}

func webhookChannel(name string, events ...types.EventType) types.NotificationChannel {
	return types.NotificationChannel{
		ID:         name,
		Name:       name,
		Kind:       types.ChannelWebhook,
		Enabled:    true,
		Events:     events,
		WebhookURL: "http://example.invalid/hook",
	}
}

func TestNotifier_DispatchFansOutPerChannel(t *testing.T) {
	webhook := &mockSender{kind: types.ChannelWebhook}
	email := &mockSender{kind: types.ChannelEmail}
	n := New(Config{MaxRetries: 1, SendTimeout: time.Second}, testLogger(), webhook, email)

	emailCh := types.NotificationChannel{
		Name: "ops-mail", Kind: types.ChannelEmail, Enabled: true,
		Events: []types.EventType{types.EventDown},
	}
	n.Dispatch(context.Background(), downEvent("api"), []types.NotificationChannel{
		webhookChannel("hook-a", types.EventDown),
		emailCh,
	})
	n.Wait()

	if webhook.sentCount() != 1 {
		t.Fatalf("webhook deliveries = %d, want 1", webhook.sentCount())
	}
	if email.sentCount() != 1 {
		t.Fatalf("email deliveries = %d, want 1", email.sentCount())
	}
}

func TestNotifier_SkipsDisabledAndUnsubscribed(t *testing.T) {
	sender := &mockSender{kind: types.ChannelWebhook}
	n := New(Config{MaxRetries: 1}, testLogger(), sender)

	disabled := webhookChannel("disabled", types.EventDown)
	disabled.Enabled = false
	upOnly := webhookChannel("up-only", types.EventUp)

	n.Dispatch(context.Background(), downEvent("api"), []types.NotificationChannel{disabled, upOnly})
	n.Wait()

	if sender.sentCount() != 0 {
		t.Fatalf("deliveries = %d, want 0", sender.sentCount())
	}
}

func TestNotifier_RetriesThenSucceeds(t *testing.T) {
	sender := &mockSender{kind: types.ChannelWebhook, failures: 2}
	n := New(Config{MaxRetries: 3, RetryBackoff: time.Millisecond}, testLogger(), sender)

	n.Dispatch(context.Background(), downEvent("api"), []types.NotificationChannel{
		webhookChannel("hook", types.EventDown),
	})
	n.Wait()

	if sender.sentCount() != 1 {
		t.Fatalf("deliveries = %d, want 1 after retries", sender.sentCount())
	}
	if sender.attempts != 3 {
		t.Fatalf("attempts = %d, want 3", sender.attempts)
	}
}

func TestNotifier_DropsAfterMaxRetries(t *testing.T) {
	sender := &mockSender{kind: types.ChannelWebhook, failures: 100}
	n := New(Config{MaxRetries: 2, RetryBackoff: time.Millisecond}, testLogger(), sender)

	n.Dispatch(context.Background(), downEvent("api"), []types.NotificationChannel{
		webhookChannel("hook", types.EventDown),
	})
	n.Wait()

	if sender.sentCount() != 0 {
		t.Fatalf("deliveries = %d, want 0", sender.sentCount())
	}
	if sender.attempts != 2 {
		t.Fatalf("attempts = %d, want 2", sender.attempts)
	}
}

// One broken channel must not block delivery to the others.
func TestNotifier_ChannelFailureIsolated(t *testing.T) {
	webhook := &mockSender{kind: types.ChannelWebhook, failures: 100}
	email := &mockSender{kind: types.ChannelEmail}
	n := New(Config{MaxRetries: 2, RetryBackoff: time.Millisecond}, testLogger(), webhook, email)

	emailCh := types.NotificationChannel{
		Name: "ops-mail", Kind: types.ChannelEmail, Enabled: true,
		Events: []types.EventType{types.EventDown},
	}
	n.Dispatch(context.Background(), downEvent("api"), []types.NotificationChannel{
		webhookChannel("broken", types.EventDown),
		emailCh,
	})
	n.Wait()

	if email.sentCount() != 1 {
		t.Fatalf("email deliveries = %d, want 1 despite broken webhook", email.sentCount())
	}
}

func TestWebhookSender_PostsJSON(t *testing.T) {
	var gotContentType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ch := webhookChannel("hook", types.EventDown)
	ch.WebhookURL = srv.URL

	sender := NewWebhookSender(0, 0)
	if err := sender.Send(context.Background(), ch, downEvent("api")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if gotContentType != "application/json" {
		t.Fatalf("content type = %q", gotContentType)
	}
	if len(gotBody) == 0 {
		t.Fatal("empty webhook body")
	}
}

func TestWebhookSender_NonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ch := webhookChannel("hook", types.EventDown)
	ch.WebhookURL = srv.URL

	if err := NewWebhookSender(0, 0).Send(context.Background(), ch, downEvent("api")); err == nil {
		t.Fatal("expected error for 502 response")
	}
}

func TestEmailSender_BuildsMessage(t *testing.T) {
	var sentCfg *types.SMTPConfig
	sender := NewEmailSender()
	sender.send = func(cfg *types.SMTPConfig, msg *gomail.Message) error {
		sentCfg = cfg
		if got := msg.GetHeader("To"); len(got) != 2 {
			t.Errorf("To = %v, want 2 recipients", got)
		}
		if got := msg.GetHeader("Subject"); len(got) != 1 || got[0] == "" {
			t.Errorf("Subject = %v", got)
		}
		return nil
	}

	ch := types.NotificationChannel{
		Name: "ops-mail", Kind: types.ChannelEmail, Enabled: true,
		Events: []types.EventType{types.EventDown},
		SMTP: &types.SMTPConfig{
			Host:       "smtp.example.com",
			From:       "kubiq@example.com",
			Recipients: []string{"a@example.com", "b@example.com"},
		},
	}

	if err := sender.Send(context.Background(), ch, downEvent("api")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if sentCfg == nil || sentCfg.Host != "smtp.example.com" {
		t.Fatal("smtp config not passed through")
	}
}
