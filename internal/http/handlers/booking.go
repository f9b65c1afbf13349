package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/dental-voice-booking/internal/availability"
	"github.com/wolfman30/dental-voice-booking/internal/booking"
	"github.com/wolfman30/dental-voice-booking/internal/catalog"
	"github.com/wolfman30/dental-voice-booking/internal/extraction"
	"github.com/wolfman30/dental-voice-booking/internal/pricing"
	"github.com/wolfman30/dental-voice-booking/pkg/logging"
)

// Booker runs a booking transaction.
type Booker interface {
	Book(ctx context.Context, req booking.Request) (*booking.Outcome, error)
}

// BookingHandler creates the patient and books the requested services.
type BookingHandler struct {
	booker  Booker
	finder  SlotFinder
	catalog *catalog.Catalog
	loc     *time.Location
	logger  *logging.Logger
}

// NewBookingHandler builds the handler. finder may be nil; it is only used
// when a legacy reason string names several services for one slot.
func NewBookingHandler(booker Booker, finder SlotFinder, cat *catalog.Catalog, loc *time.Location, logger *logging.Logger) *BookingHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if cat == nil {
		cat = catalog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &BookingHandler{booker: booker, finder: finder, catalog: cat, loc: loc, logger: logger}
}

type appointmentPayload struct {
	PractitionerID extraction.FlexInt `json:"practitioner_id"`
	ServiceID      extraction.FlexInt `json:"service_id"`
	StartTime      string             `json:"start_time"`
	FinishTime     string             `json:"finish_time"`
	Reason         string             `json:"reason"`
}

type bookingPayload struct {
	Patient        *booking.PatientInput `json:"patient"`
	Appointment    *appointmentPayload   `json:"appointment"`
	Appointments   []appointmentPayload  `json:"appointments"`
	TotalPayment   *pricing.Money        `json:"total_payment"`
	ConversationID string                `json:"conversation_id"`

	// Flat fields sent by older agent tool definitions.
	PatientTitle              string             `json:"patient_title"`
	PatientFirstName          string             `json:"patient_first_name"`
	PatientLastName           string             `json:"patient_last_name"`
	PatientDateOfBirth        string             `json:"patient_date_of_birth"`
	PatientAddressLine1       string             `json:"patient_address_line_1"`
	PatientPostcode           string             `json:"patient_postcode"`
	PatientMobilePhone        string             `json:"patient_mobile_phone"`
	PatientEmailAddress       string             `json:"patient_email_address"`
	AppointmentPractitionerID extraction.FlexInt `json:"appointment_practitioner_id"`
	AppointmentServiceID      extraction.FlexInt `json:"appointment_service_id"`
	AppointmentStartTime      string             `json:"appointment_start_time"`
	AppointmentFinishTime     string             `json:"appointment_finish_time"`
	AppointmentReason         string             `json:"appointment_reason"`
}

func (p *bookingPayload) hasFlatPatient() bool {
	return p.PatientFirstName != "" || p.PatientLastName != "" || p.PatientDateOfBirth != "" ||
		p.PatientMobilePhone != "" || p.PatientAddressLine1 != "" || p.PatientPostcode != ""
}

func (p *bookingPayload) hasFlatAppointment() bool {
	return p.AppointmentStartTime != "" || p.AppointmentPractitionerID > 0 ||
		p.AppointmentServiceID > 0 || p.AppointmentReason != ""
}

// normalize folds the flat legacy shape into the nested one.
func (p *bookingPayload) normalize() (booking.PatientInput, []appointmentPayload, bool) {
	appts := p.Appointments
	if p.Appointment != nil {
		appts = append([]appointmentPayload{*p.Appointment}, appts...)
	}
	if p.Patient != nil && len(appts) > 0 {
		return *p.Patient, appts, true
	}
	if !p.hasFlatPatient() || !p.hasFlatAppointment() {
		return booking.PatientInput{}, nil, false
	}
	patient := booking.PatientInput{
		Title:        p.PatientTitle,
		FirstName:    p.PatientFirstName,
		LastName:     p.PatientLastName,
		DateOfBirth:  p.PatientDateOfBirth,
		AddressLine1: p.PatientAddressLine1,
		Postcode:     p.PatientPostcode,
		MobilePhone:  p.PatientMobilePhone,
		EmailAddress: p.PatientEmailAddress,
	}
	appt := appointmentPayload{
		PractitionerID: p.AppointmentPractitionerID,
		ServiceID:      p.AppointmentServiceID,
		StartTime:      p.AppointmentStartTime,
		FinishTime:     p.AppointmentFinishTime,
		Reason:         p.AppointmentReason,
	}
	return patient, []appointmentPayload{appt}, true
}

type requestError struct {
	status int
	detail string
	extra  map[string]any
}

func (e *requestError) Error() string { return e.detail }

func badRequest(format string, args ...any) *requestError {
	return &requestError{status: http.StatusBadRequest, detail: fmt.Sprintf(format, args...)}
}

// BookingResponse is the booking endpoint's answer.
type BookingResponse struct {
	Result         string                   `json:"result"`
	Appointment    *booking.ServiceOutcome  `json:"appointment"`
	Appointments   []booking.ServiceOutcome `json:"appointments"`
	PatientID      int                      `json:"patient_id"`
	PaymentAmount  pricing.Money            `json:"payment_amount"`
	Currency       string                   `json:"currency"`
	PaymentLinkURL string                   `json:"payment_link_url,omitempty"`
	SMSSent        bool                     `json:"sms_sent"`
	Summary        string                   `json:"summary"`
}

func newBookingResponse(out *booking.Outcome) BookingResponse {
	resp := BookingResponse{
		Result:         out.Result(),
		Appointments:   out.Services,
		PatientID:      out.PatientID,
		PaymentAmount:  out.PaymentAmount,
		Currency:       out.Currency,
		PaymentLinkURL: out.PaymentLinkURL,
		SMSSent:        out.SMSSent,
		Summary:        out.Summary,
	}
	if booked := out.Booked(); len(booked) > 0 {
		first := booked[0]
		resp.Appointment = &first
	}
	return resp
}

// CreatePatientAndBook handles POST /api/v1/create-patient-and-book-appointment.
func (h *BookingHandler) CreatePatientAndBook(w http.ResponseWriter, r *http.Request) {
	var payload bookingPayload
	if err := decodeBody(w, r, &payload); err != nil {
		jsonError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	patient, appts, ok := payload.normalize()
	if !ok {
		jsonError(w, "Missing required fields: patient, appointment", http.StatusBadRequest)
		return
	}
	if err := validatePatient(patient); err != nil {
		h.writeRequestError(w, err)
		return
	}
	if payload.TotalPayment != nil && *payload.TotalPayment < 0 {
		jsonError(w, "total_payment must not be negative", http.StatusBadRequest)
		return
	}
	services, err := h.toServices(r.Context(), appts)
	if err != nil {
		h.writeRequestError(w, err)
		return
	}

	out, err := h.booker.Book(r.Context(), booking.Request{
		Patient:        patient,
		Services:       services,
		TotalOverride:  payload.TotalPayment,
		ConversationID: payload.ConversationID,
	})
	if err != nil {
		writeBookingError(w, h.logger, err)
		return
	}
	status := http.StatusCreated
	if len(out.Booked()) == 0 {
		status = http.StatusConflict
	}
	writeJSON(w, status, newBookingResponse(out))
}

func validatePatient(p booking.PatientInput) error {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.DateOfBirth = strings.TrimSpace(p.DateOfBirth)
	p.AddressLine1 = strings.TrimSpace(p.AddressLine1)
	p.Postcode = strings.TrimSpace(p.Postcode)
	p.MobilePhone = strings.TrimSpace(p.MobilePhone)
	err := validate.Struct(p)
	if err == nil {
		return nil
	}
	missing, invalid := fieldErrors(err)
	if len(missing) > 0 {
		return badRequest("Missing required patient fields: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return badRequest("Invalid patient fields: %s", strings.Join(invalid, ", "))
	}
	return badRequest("Invalid patient")
}

// toServices resolves each appointment to a concrete service booking.
func (h *BookingHandler) toServices(ctx context.Context, appts []appointmentPayload) ([]booking.ServiceBooking, error) {
	var out []booking.ServiceBooking
	for _, a := range appts {
		start, ok := extraction.ParseTime(a.StartTime, h.loc)
		if !ok {
			return nil, badRequest("Invalid start_time format")
		}
		var finish time.Time
		if strings.TrimSpace(a.FinishTime) != "" {
			if finish, ok = extraction.ParseTime(a.FinishTime, h.loc); !ok {
				return nil, badRequest("Invalid finish_time format")
			}
		}
		ids := []int{int(a.ServiceID)}
		if a.ServiceID <= 0 {
			parsed, err := catalog.ParseReason(a.Reason)
			if err != nil {
				return nil, badRequest("Missing required fields: service_id")
			}
			ids = parsed
		}
		if len(ids) == 1 {
			out = append(out, booking.ServiceBooking{
				ServiceID:      ids[0],
				PractitionerID: int(a.PractitionerID),
				Start:          start,
				Finish:         finish,
				Reason:         a.Reason,
			})
			continue
		}
		paired, err := pairServices(ctx, h.finder, h.catalog, ids, start)
		if err != nil {
			return nil, err
		}
		out = append(out, paired...)
	}
	return out, nil
}

// pairServices resolves several services requested for one time into a
// chained slot sequence.
func pairServices(ctx context.Context, finder SlotFinder, cat *catalog.Catalog, ids []int, start time.Time) ([]booking.ServiceBooking, error) {
	if finder == nil {
		return nil, badRequest("each service needs its own appointment")
	}
	for _, id := range ids {
		if _, ok := cat.Get(id); !ok {
			return nil, badRequest("unknown service_id %d", id)
		}
	}
	res, err := finder.Find(ctx, ids, start)
	if err != nil {
		if errors.Is(err, availability.ErrUnknownService) {
			return nil, badRequest("%s", err.Error())
		}
		return nil, err
	}
	if res.Primary == nil {
		return nil, &requestError{
			status: http.StatusConflict,
			detail: "No available slots for any practitioner in the requested window.",
			extra:  map[string]any{"status": res.Status, "message": res.Message},
		}
	}
	return sequenceBookings(cat, *res.Primary), nil
}

func sequenceBookings(cat *catalog.Catalog, seq availability.SlotSequence) []booking.ServiceBooking {
	out := make([]booking.ServiceBooking, 0, len(seq.Steps))
	for _, step := range seq.Steps {
		out = append(out, booking.ServiceBooking{
			ServiceID:      step.ServiceID,
			PractitionerID: step.Slot.PractitionerID,
			Start:          step.Slot.Start,
			Finish:         step.Slot.Finish,
			Reason:         cat.FormatReason(step.ServiceID),
		})
	}
	return out
}

func (h *BookingHandler) writeRequestError(w http.ResponseWriter, err error) {
	writeRequestError(w, h.logger, err)
}

func writeRequestError(w http.ResponseWriter, logger *logging.Logger, err error) {
	var reqErr *requestError
	if !errors.As(err, &reqErr) {
		logger.Error("booking request failed", "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	body := map[string]any{"detail": reqErr.detail}
	for k, v := range reqErr.extra {
		body[k] = v
	}
	writeJSON(w, reqErr.status, body)
}

func writeBookingError(w http.ResponseWriter, logger *logging.Logger, err error) {
	switch {
	case errors.Is(err, booking.ErrValidation):
		jsonError(w, trimSentinel(err, booking.ErrValidation), http.StatusBadRequest)
	case errors.Is(err, booking.ErrDependencyUnmet):
		jsonError(w, trimSentinel(err, booking.ErrDependencyUnmet), http.StatusBadRequest)
	case errors.Is(err, booking.ErrPatientCreate):
		logger.Error("patient creation failed", "error", err)
		jsonError(w, "Failed to create patient or retrieve patient_id.", http.StatusBadGateway)
	default:
		logger.Error("booking failed", "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func trimSentinel(err, sentinel error) string {
	return strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
}
