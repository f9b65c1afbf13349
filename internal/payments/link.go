// Package payments creates hosted payment links for booked appointments.
package payments

import (
	"context"
	"errors"
	"strings"

	"github.com/wolfman30/dental-voice-booking/internal/pricing"
)

// ErrZeroAmount is returned when asked to collect nothing.
var ErrZeroAmount = errors.New("payments: amount must be positive")

// LinkRequest describes what the patient owes.
type LinkRequest struct {
	Amount      pricing.Money
	Currency    string
	Description string
	PatientID   int
	// AppointmentIDs are recorded as metadata on the link.
	AppointmentIDs []int
}

// Link is a hosted payment page.
type Link struct {
	URL        string
	ProviderID string
}

// LinkCreator produces payment links.
type LinkCreator interface {
	CreatePaymentLink(ctx context.Context, req LinkRequest) (*Link, error)
}

func normalizeCurrency(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if c == "" {
		return "eur"
	}
	return c
}
