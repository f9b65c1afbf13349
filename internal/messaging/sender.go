// Package messaging delivers outbound SMS to patients.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/dental-voice-booking/pkg/logging"
)

// SMS is a single outbound text message.
type SMS struct {
	To   string
	From string
	Body string
}

// Sender delivers SMS.
type Sender interface {
	Send(ctx context.Context, msg SMS) error
}

func (m SMS) validate() error {
	if strings.TrimSpace(m.To) == "" {
		return errors.New("messaging: to required")
	}
	if strings.TrimSpace(m.Body) == "" {
		return errors.New("messaging: body required")
	}
	return nil
}

// PaymentRequestText renders the booking confirmation asking for payment.
func PaymentRequestText(patientName, clinicName, paymentURL string) string {
	patientName = strings.TrimSpace(patientName)
	if patientName == "" {
		patientName = "there"
	}
	clinicName = strings.TrimSpace(clinicName)
	if clinicName == "" {
		return fmt.Sprintf("Hi %s, thank you for booking your appointment. Kindly pay on the link below to confirm your appointment: %s", patientName, paymentURL)
	}
	return fmt.Sprintf("Hi %s, thank you for booking your appointment with %s. Kindly pay on the link below to confirm your appointment: %s", patientName, clinicName, paymentURL)
}

// LogSender records messages instead of sending them.
type LogSender struct {
	logger *logging.Logger
}

func NewLogSender(logger *logging.Logger) *LogSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg SMS) error {
	if err := msg.validate(); err != nil {
		return err
	}
	s.logger.Info("sms stub: message not sent", "to", msg.To, "body_len", len(msg.Body))
	return nil
}
