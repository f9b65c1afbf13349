package dentally

import (
	"encoding/json"
	"strings"
	"time"
)

// Practitioner is a clinician as reported by Dentally.
type Practitioner struct {
	ID     int              `json:"id"`
	Active bool             `json:"active"`
	SiteID string           `json:"site_id,omitempty"`
	User   PractitionerUser `json:"user"`
}

// PractitionerUser carries the practitioner's personal details.
type PractitionerUser struct {
	Title     string `json:"title,omitempty"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// DisplayName joins the first and last names.
func (p Practitioner) DisplayName() string {
	return strings.TrimSpace(strings.TrimSpace(p.User.FirstName) + " " + strings.TrimSpace(p.User.LastName))
}

// AvailabilityQuery asks which practitioners are free inside a window.
type AvailabilityQuery struct {
	PractitionerIDs []int
	Start           time.Time
	Finish          time.Time
	DurationMinutes int
}

// AvailabilityBlock is a free interval returned by the availability endpoint.
type AvailabilityBlock struct {
	PractitionerID    int       `json:"practitioner_id"`
	StartTime         time.Time `json:"start_time"`
	FinishTime        time.Time `json:"finish_time"`
	AvailableDuration int       `json:"available_duration,omitempty"`
}

// AvailabilityResult wraps the blocks and whether the field was present at all.
type AvailabilityResult struct {
	Blocks  []AvailabilityBlock
	Present bool
}

// PatientInput is the payload for POST /patients.
type PatientInput struct {
	Title         string `json:"title"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	DateOfBirth   string `json:"date_of_birth"`
	Gender        bool   `json:"gender"`
	EthnicityID   string `json:"ethnicity"`
	AddressLine1  string `json:"address_line_1"`
	Postcode      string `json:"postcode"`
	MobilePhone   string `json:"mobile_phone"`
	EmailAddress  string `json:"email_address,omitempty"`
	PaymentPlanID int    `json:"payment_plan_id,omitempty"`
	SiteID        string `json:"site_id,omitempty"`
}

// Patient is a created patient record; Raw holds the verbatim response body.
type Patient struct {
	ID        int             `json:"id"`
	FirstName string          `json:"first_name"`
	LastName  string          `json:"last_name"`
	Raw       json.RawMessage `json:"-"`
}

// AppointmentInput is the payload for POST /appointments.
type AppointmentInput struct {
	StartTime      time.Time `json:"start_time"`
	FinishTime     time.Time `json:"finish_time"`
	PatientID      int       `json:"patient_id"`
	PractitionerID int       `json:"practitioner_id"`
	Reason         string    `json:"reason"`
}

// Appointment is an appointment record; Raw holds the verbatim JSON object.
type Appointment struct {
	ID             int             `json:"id"`
	StartTime      time.Time       `json:"start_time"`
	FinishTime     time.Time       `json:"finish_time"`
	PatientID      int             `json:"patient_id"`
	PractitionerID int             `json:"practitioner_id"`
	Reason         string          `json:"reason"`
	State          string          `json:"state,omitempty"`
	Raw            json.RawMessage `json:"-"`
}

// PaymentPlan is a clinic payment plan.
type PaymentPlan struct {
	ID     int             `json:"id"`
	Name   string          `json:"name"`
	Active bool            `json:"active"`
	Raw    json.RawMessage `json:"-"`
}

type pageMeta struct {
	TotalPages  int `json:"total_pages"`
	CurrentPage int `json:"current_page"`
}
