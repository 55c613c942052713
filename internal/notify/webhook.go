package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/priyanshumodi22/kubiq-sub000/pkg/types"
)

// webhookPayload is the JSON body POSTed to webhook channels.
type webhookPayload struct {
	Event      types.EventType `json:"event"`
	Target     string          `json:"target"`
	Previous   types.Status    `json:"previous"`
	Current    types.Status    `json:"current"`
	Subject    string          `json:"subject"`
	Message    string          `json:"message"`
	Error      string          `json:"error,omitempty"`
	LatencyMs  float64         `json:"latency_ms"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// WebhookSender delivers events as JSON POSTs.
// An engine-wide rate limiter keeps a flapping fleet from hammering
// webhook receivers.
type WebhookSender struct {
	client  *http.Client
	limiter *rate.Limiter
}

// NewWebhookSender creates a webhook sender limited to ratePerSec
// outbound sends with the given burst. ratePerSec <= 0 disables the
// limiter.
func NewWebhookSender(ratePerSec float64, burst int) *WebhookSender {
	var limiter *rate.Limiter
	if ratePerSec > 0 {
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(ratePerSec), burst)
	}
	return &WebhookSender{
		client:  &http.Client{},
		limiter: limiter,
	}
}

// Kind implements Sender.
func (s *WebhookSender) Kind() types.ChannelKind { return types.ChannelWebhook }

// Send POSTs the event payload to the channel's webhook URL.
// Any non-2xx response counts as a delivery failure.
func (s *WebhookSender) Send(ctx context.Context, channel types.NotificationChannel, event types.NotificationEvent) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	payload := webhookPayload{
		Event:      event.Type,
		Target:     event.Target,
		Previous:   event.Previous,
		Current:    event.Current,
		Subject:    Subject(event),
		Message:    Body(event),
		Error:      event.Result.Error,
		LatencyMs:  event.Result.LatencyMs,
		OccurredAt: event.OccurredAt,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, channel.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
