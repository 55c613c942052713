package notify

import (
	"context"
	"fmt"

	gomail "gopkg.in/gomail.v2"

	"github.com/priyanshumodi22/kubiq-sub000/pkg/types"
)

// EmailSender delivers events over SMTP.
type EmailSender struct {
	// send is swappable for tests; defaults to a real SMTP session.
	send func(cfg *types.SMTPConfig, msg *gomail.Message) error
}

// NewEmailSender creates an SMTP email sender.
func NewEmailSender() *EmailSender {
	return &EmailSender{send: smtpSend}
}

// Kind implements Sender.
func (s *EmailSender) Kind() types.ChannelKind { return types.ChannelEmail }

// Send builds the message and delivers it to all recipients in one
// SMTP session.
func (s *EmailSender) Send(ctx context.Context, channel types.NotificationChannel, event types.NotificationEvent) error {
	cfg := channel.SMTP
	if cfg == nil {
		return fmt.Errorf("channel %q has no smtp configuration", channel.Name)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", cfg.From)
	msg.SetHeader("To", cfg.Recipients...)
	msg.SetHeader("Subject", Subject(event))
	msg.SetBody("text/plain", Body(event))

	// gomail has no context support; run the session in a goroutine so
	// the notifier's send timeout still bounds it.
	done := make(chan error, 1)
	go func() {
		done <- s.send(cfg, msg)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp delivery: %w", err)
		}
		return nil
	}
}

func smtpSend(cfg *types.SMTPConfig, msg *gomail.Message) error {
	port := cfg.Port
	if port == 0 {
		port = 587
	}
	dialer := gomail.NewDialer(cfg.Host, port, cfg.Username, cfg.Password)
	return dialer.DialAndSend(msg)
}
