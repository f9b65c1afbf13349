package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wolfman30/dental-voice-booking/pkg/logging"
)

const defaultSenderName = "Dental Booking"

var errNoRecipients = errors.New("notify: email has no recipients")

// EmailSender delivers one message to all of its recipients.
type EmailSender interface {
	Send(ctx context.Context, msg Email) error
}

// Email is a plain text message with an optional HTML alternative.
type Email struct {
	To      []string
	ReplyTo string
	Subject string
	Text    string
	HTML    string
}

func (e Email) html() string {
	if e.HTML != "" {
		return e.HTML
	}
	return e.Text
}

// SendGridConfig configures SendGridSender.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
	// Host replaces https://api.sendgrid.com in tests.
	Host string
}

// SendGridSender posts to the SendGrid v3 mail API.
type SendGridSender struct {
	client *sendgrid.Client
	from   *mail.Email
	logger *logging.Logger
}

// NewSendGridSender returns nil without an API key.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultSenderName
	}
	client := sendgrid.NewSendClient(cfg.APIKey)
	if host := strings.TrimRight(cfg.Host, "/"); host != "" {
		req := sendgrid.GetRequest(cfg.APIKey, "/v3/mail/send", host)
		req.Method = "POST"
		client = &sendgrid.Client{Request: req}
	}
	return &SendGridSender{
		client: client,
		from:   mail.NewEmail(cfg.FromName, cfg.FromEmail),
		logger: logger,
	}
}

// Send delivers msg as a single personalization addressed to every recipient.
func (s *SendGridSender) Send(ctx context.Context, msg Email) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("notify: sendgrid: client not configured")
	}
	if len(msg.To) == 0 {
		return errNoRecipients
	}

	v3 := mail.NewV3Mail()
	v3.SetFrom(s.from)
	v3.Subject = msg.Subject
	p := mail.NewPersonalization()
	for _, to := range msg.To {
		p.AddTos(mail.NewEmail("", to))
	}
	v3.AddPersonalizations(p)
	if msg.ReplyTo != "" {
		v3.SetReplyTo(mail.NewEmail("", msg.ReplyTo))
	}
	v3.AddContent(mail.NewContent("text/plain", msg.Text), mail.NewContent("text/html", msg.html()))

	resp, err := s.client.SendWithContext(ctx, v3)
	if err != nil {
		return fmt.Errorf("notify: sendgrid: send: %w", err)
	}
	if resp.StatusCode >= 400 {
		s.logger.Warn("sendgrid rejected email", "status", resp.StatusCode, "body", resp.Body, "recipients", len(msg.To))
		return fmt.Errorf("notify: sendgrid: status %d", resp.StatusCode)
	}
	s.logger.Info("booking email sent", "provider", EmailProviderSendGrid, "recipients", len(msg.To), "status", resp.StatusCode)
	return nil
}

// StubEmailSender only logs.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(_ context.Context, msg Email) error {
	s.logger.Info("email disabled, not sending", "recipients", msg.To, "subject", msg.Subject)
	return nil
}
