// Package booking turns resolved slots into Dentally appointments: it creates
// the patient, books each service in turn, prices the result and sends the
// payment request.
package booking

import (
	"time"

	"github.com/wolfman30/dental-voice-booking/internal/pricing"
)

// PatientInput is the caller-supplied patient record.
type PatientInput struct {
	Title        string `json:"title,omitempty"`
	FirstName    string `json:"first_name" validate:"required"`
	LastName     string `json:"last_name" validate:"required"`
	DateOfBirth  string `json:"date_of_birth" validate:"required"`
	AddressLine1 string `json:"address_line_1" validate:"required"`
	Postcode     string `json:"postcode" validate:"required"`
	MobilePhone  string `json:"mobile_phone" validate:"required"`
	EmailAddress string `json:"email_address,omitempty" validate:"omitempty,email"`
}

// ServiceBooking is one already-resolved slot to book.
type ServiceBooking struct {
	ServiceID      int       `json:"service_id"`
	PractitionerID int       `json:"practitioner_id"`
	Start          time.Time `json:"start_time"`
	// Finish defaults to Start plus the service duration.
	Finish time.Time `json:"finish_time"`
	Reason string    `json:"reason,omitempty"`
}

// Request is a single booking transaction.
type Request struct {
	Patient        PatientInput
	Services       []ServiceBooking
	TotalOverride  *pricing.Money
	ConversationID string
}

type ServiceStatus string

const (
	StatusSuccess ServiceStatus = "success"
	StatusFailed  ServiceStatus = "failed"
)

// ServiceOutcome is the result of booking one service.
type ServiceOutcome struct {
	ServiceID      int           `json:"service_id"`
	ServiceName    string        `json:"service_name"`
	PractitionerID int           `json:"practitioner_id"`
	Start          time.Time     `json:"start_time"`
	Finish         time.Time     `json:"finish_time"`
	Status         ServiceStatus `json:"status"`
	Reason         string        `json:"reason,omitempty"`
	AppointmentID  int           `json:"appointment_id,omitempty"`
}

// Outcome aggregates the per-service results.
type Outcome struct {
	PatientID      int              `json:"patient_id"`
	Services       []ServiceOutcome `json:"services"`
	PaymentAmount  pricing.Money    `json:"payment_amount"`
	Currency       string           `json:"currency"`
	PaymentLinkURL string           `json:"payment_link_url,omitempty"`
	SMSSent        bool             `json:"sms_sent"`
	Summary        string           `json:"summary"`
}

// Booked returns the successful outcomes.
func (o *Outcome) Booked() []ServiceOutcome {
	var out []ServiceOutcome
	for _, s := range o.Services {
		if s.Status == StatusSuccess {
			out = append(out, s)
		}
	}
	return out
}

// Result classifies the outcome as success, partial or failed.
func (o *Outcome) Result() string {
	booked := len(o.Booked())
	switch {
	case booked == 0:
		return "failed"
	case booked < len(o.Services):
		return "partial"
	default:
		return "success"
	}
}
