// Package notify emails the clinic when a booking completes.
package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/wolfman30/dental-voice-booking/pkg/logging"
)

const (
	EmailProviderAuto     = "auto"
	EmailProviderSendGrid = "sendgrid"
	EmailProviderSES      = "ses"
	EmailProviderStub     = "stub"
)

// BookingNotice summarizes a completed booking for clinic staff.
type BookingNotice struct {
	PatientName    string
	PatientPhone   string
	PatientEmail   string
	Summary        string
	Amount         string
	Currency       string
	PaymentLinkURL string
	SMSSent        bool
	ConversationID string
	BookedAt       time.Time
}

// Service sends booking notifications to the clinic inbox.
type Service struct {
	email      EmailSender
	recipients []string
	clinicName string
	logger     *logging.Logger
}

// NewService creates a notification service. Without recipients it is a no-op.
func NewService(email EmailSender, recipients []string, clinicName string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	var clean []string
	for _, r := range recipients {
		if r = strings.TrimSpace(r); r != "" {
			clean = append(clean, r)
		}
	}
	return &Service{email: email, recipients: clean, clinicName: clinicName, logger: logger}
}

// NotifyBooking sends one email to every configured recipient. Replies go
// to the patient when they gave an address.
func (s *Service) NotifyBooking(ctx context.Context, notice BookingNotice) error {
	if s == nil || s.email == nil || len(s.recipients) == 0 {
		return nil
	}
	text := bookingBody(notice)
	msg := Email{
		To:      s.recipients,
		ReplyTo: strings.TrimSpace(notice.PatientEmail),
		Subject: bookingSubject(s.clinicName, notice),
		Text:    text,
		HTML:    "<pre>" + html.EscapeString(text) + "</pre>",
	}
	if err := s.email.Send(ctx, msg); err != nil {
		s.logger.Warn("booking email failed", "recipients", len(s.recipients), "error", err)
		return err
	}
	return nil
}

func bookingSubject(clinic string, n BookingNotice) string {
	name := strings.TrimSpace(n.PatientName)
	if name == "" {
		name = "New patient"
	}
	if clinic == "" {
		return fmt.Sprintf("New booking: %s", name)
	}
	return fmt.Sprintf("[%s] New booking: %s", clinic, name)
}

func bookingBody(n BookingNotice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Patient: %s\n", n.PatientName)
	if n.PatientPhone != "" {
		fmt.Fprintf(&b, "Phone: %s\n", n.PatientPhone)
	}
	if n.PatientEmail != "" {
		fmt.Fprintf(&b, "Email: %s\n", n.PatientEmail)
	}
	if !n.BookedAt.IsZero() {
		fmt.Fprintf(&b, "Booked at: %s\n", n.BookedAt.Format(time.RFC1123))
	}
	if n.ConversationID != "" {
		fmt.Fprintf(&b, "Conversation: %s\n", n.ConversationID)
	}
	b.WriteString("\n")
	b.WriteString(n.Summary)
	b.WriteString("\n")
	if n.PaymentLinkURL != "" {
		fmt.Fprintf(&b, "\nAmount due: %s %s\nPayment link: %s\nSMS sent: %t\n",
			n.Amount, strings.ToUpper(n.Currency), n.PaymentLinkURL, n.SMSSent)
	}
	return b.String()
}

// SenderConfig selects an email provider.
type SenderConfig struct {
	Provider       string
	SendGridAPIKey string
	SendGridFrom   string
	SESFrom        string
	FromName       string
}

// BuildEmailSender picks SendGrid, then SES, falling back to the stub.
func BuildEmailSender(cfg SenderConfig, ses SESAPI, logger *logging.Logger) (EmailSender, string) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = EmailProviderAuto
	}
	if (provider == EmailProviderAuto || provider == EmailProviderSendGrid) && cfg.SendGridAPIKey != "" {
		return NewSendGridSender(SendGridConfig{APIKey: cfg.SendGridAPIKey, FromEmail: cfg.SendGridFrom, FromName: cfg.FromName}, logger), EmailProviderSendGrid
	}
	if (provider == EmailProviderAuto || provider == EmailProviderSES) && ses != nil && cfg.SESFrom != "" {
		return NewSESSender(ses, cfg.SESFrom, cfg.FromName, logger), EmailProviderSES
	}
	return NewStubEmailSender(logger), EmailProviderStub
}
