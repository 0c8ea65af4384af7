package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// EmailSender delivers one rendered message.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string
	HTML    string
}

// LogSender writes messages to the log instead of sending them.
type LogSender struct {
	log *slog.Logger
}

func NewLogSender(log *slog.Logger) *LogSender {
	if log == nil {
		log = slog.Default()
	}
	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, msg EmailMessage) error {
	s.log.InfoContext(ctx, "email not sent: log provider",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	return nil
}

type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

type SendGridSender struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	log       *slog.Logger
}

// NewSendGridSender returns nil when no API key is configured.
func NewSendGridSender(cfg SendGridConfig, log *slog.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = "CareBridge"
	}
	return &SendGridSender{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		log:       log,
	}
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}

	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.To)
	plain := msg.Body
	if plain == "" {
		plain = msg.Subject
	}
	message := mail.NewSingleEmail(from, msg.Subject, to, plain, msg.HTML)

	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("notify: sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("notify: sendgrid returned status %d", resp.StatusCode)
	}
	s.log.InfoContext(ctx, "email sent via sendgrid", slog.String("to", msg.To), slog.Int("status", resp.StatusCode))
	return nil
}

var (
	_ EmailSender = (*LogSender)(nil)
	_ EmailSender = (*SendGridSender)(nil)
)
