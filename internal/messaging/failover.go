package messaging

import (
	"context"
	"errors"

	"github.com/wolfman30/dental-voice-booking/pkg/logging"
)

// FailoverSender attempts a primary send, then falls back to a secondary provider on error.
type FailoverSender struct {
	primary       Sender
	secondary     Sender
	primaryName   string
	secondaryName string
	logger        *logging.Logger
}

// NewFailoverSender builds a failover sender with named providers.
func NewFailoverSender(primary Sender, primaryName string, secondary Sender, secondaryName string, logger *logging.Logger) *FailoverSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &FailoverSender{
		primary:       primary,
		secondary:     secondary,
		primaryName:   primaryName,
		secondaryName: secondaryName,
		logger:        logger,
	}
}

func (f *FailoverSender) Send(ctx context.Context, msg SMS) error {
	if f == nil || f.primary == nil {
		return errors.New("messaging: failover primary sender not configured")
	}
	err := f.primary.Send(ctx, msg)
	if err == nil || f.secondary == nil {
		return err
	}
	f.logger.Warn("primary sms send failed; attempting fallback",
		"provider", f.primaryName,
		"fallback", f.secondaryName,
		"error", err,
	)
	if fallbackErr := f.secondary.Send(ctx, msg); fallbackErr != nil {
		f.logger.Error("fallback sms send failed", "provider", f.secondaryName, "error", fallbackErr)
		return fallbackErr
	}
	return nil
}
