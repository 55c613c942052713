// Package notify dispatches status-transition notifications to
// configured channels.
//
// # Delivery Semantics
//
// Fan-out is independent per channel: every enabled channel subscribed
// to the event type gets its own delivery goroutine, so one slow or
// broken webhook never delays email delivery or subsequent checks.
// Delivery is at-least-once with a bounded number of retries; after
// the last attempt the event is dropped with a logged warning.
// Channels must tolerate duplicates: a retry after an ambiguous
// failure may deliver the same alert twice, and that is preferred over
// missing one.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/priyanshumodi22/kubiq-sub000/pkg/types"
)

// Sender delivers one event over one channel kind.
type Sender interface {
	// Kind returns the channel kind this sender handles.
	Kind() types.ChannelKind

	// Send delivers the event. Errors are retried by the notifier.
	Send(ctx context.Context, channel types.NotificationChannel, event types.NotificationEvent) error
}

// Config holds notifier dispatch settings.
type Config struct {
	// MaxRetries bounds delivery attempts per channel per event.
	MaxRetries int

	// RetryBackoff is the base delay between attempts; attempt n waits
	// n * RetryBackoff.
	RetryBackoff time.Duration

	// SendTimeout bounds a single delivery attempt.
	SendTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		RetryBackoff: 5 * time.Second,
		SendTimeout:  15 * time.Second,
	}
}

// Notifier fans transition events out to channels.
type Notifier struct {
	senders map[types.ChannelKind]Sender
	config  Config
	logger  *slog.Logger

	wg sync.WaitGroup
}

// New creates a notifier with the given senders registered.
func New(config Config, logger *slog.Logger, senders ...Sender) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 1
	}
	n := &Notifier{
		senders: make(map[types.ChannelKind]Sender),
		config:  config,
		logger:  logger.With("component", "notifier"),
	}
	for _, s := range senders {
		n.senders[s.Kind()] = s
	}
	return n
}

// Dispatch delivers the event to every enabled channel subscribed to
// its type. It returns immediately; deliveries run concurrently.
func (n *Notifier) Dispatch(ctx context.Context, event types.NotificationEvent, channels []types.NotificationChannel) {
	for _, ch := range channels {
		if !ch.Enabled || !ch.SubscribedTo(event.Type) {
			continue
		}

		sender, ok := n.senders[ch.Kind]
		if !ok {
			n.logger.Warn("no sender for channel kind",
				"channel", ch.Name,
				"kind", ch.Kind)
			continue
		}

		n.wg.Add(1)
		go func(ch types.NotificationChannel) {
			defer n.wg.Done()
			n.deliver(ctx, sender, ch, event)
		}(ch)
	}
}

// Wait blocks until all in-flight deliveries finish. Used at shutdown.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// deliver attempts one channel delivery with bounded retries.
func (n *Notifier) deliver(ctx context.Context, sender Sender, ch types.NotificationChannel, event types.NotificationEvent) {
	var lastErr error

	for attempt := 1; attempt <= n.config.MaxRetries; attempt++ {
		sendCtx := ctx
		var cancel context.CancelFunc
		if n.config.SendTimeout > 0 {
			sendCtx, cancel = context.WithTimeout(ctx, n.config.SendTimeout)
		}
		err := sender.Send(sendCtx, ch, event)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			n.logger.Info("notification delivered",
				"channel", ch.Name,
				"kind", ch.Kind,
				"target", event.Target,
				"event", event.Type,
				"attempt", attempt)
			return
		}
		lastErr = err

		n.logger.Error("notification delivery failed",
			"channel", ch.Name,
			"kind", ch.Kind,
			"target", event.Target,
			"event", event.Type,
			"attempt", attempt,
			"error", err)

		if attempt < n.config.MaxRetries {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(attempt) * n.config.RetryBackoff):
			}
		}
	}

	n.logger.Warn("notification dropped after retries",
		"channel", ch.Name,
		"target", event.Target,
		"event", event.Type,
		"attempts", n.config.MaxRetries,
		"error", lastErr)
}

// =============================================================================
// MESSAGE BUILDING
// =============================================================================

// Subject builds a short human-readable summary for an event.
func Subject(event types.NotificationEvent) string {
	switch event.Type {
	case types.EventDown:
		return fmt.Sprintf("%s is DOWN", event.Target)
	case types.EventUp:
		return fmt.Sprintf("%s recovered", event.Target)
	default:
		return fmt.Sprintf("%s changed status", event.Target)
	}
}

// Body builds the long-form message for an event.
func Body(event types.NotificationEvent) string {
	switch event.Type {
	case types.EventDown:
		msg := fmt.Sprintf("Service %s transitioned %s -> %s at %s.",
			event.Target, event.Previous, event.Current,
			event.OccurredAt.Format(time.RFC3339))
		if event.Result.Error != "" {
			msg += fmt.Sprintf(" Last error: %s", event.Result.Error)
		}
		return msg
	case types.EventUp:
		return fmt.Sprintf("Service %s is healthy again as of %s (latency %.0fms).",
			event.Target,
			event.OccurredAt.Format(time.RFC3339),
			event.Result.LatencyMs)
	default:
		return fmt.Sprintf("Service %s: %s -> %s.", event.Target, event.Previous, event.Current)
	}
}
