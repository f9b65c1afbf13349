package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/dental-voice-booking/internal/catalog"
	"github.com/wolfman30/dental-voice-booking/internal/dentally"
	"github.com/wolfman30/dental-voice-booking/internal/messaging"
	"github.com/wolfman30/dental-voice-booking/internal/notify"
	"github.com/wolfman30/dental-voice-booking/internal/observability/metrics"
	"github.com/wolfman30/dental-voice-booking/internal/payments"
	"github.com/wolfman30/dental-voice-booking/internal/pricing"
	"github.com/wolfman30/dental-voice-booking/internal/store"
	"github.com/wolfman30/dental-voice-booking/pkg/logging"
)

var bookingTracer = otel.Tracer("dentalbridge.internal.booking")

const (
	defaultTitle     = "Mr"
	defaultEthnicity = "99"
)

// PracticeManagement is the Dentally write surface.
type PracticeManagement interface {
	CreatePatient(ctx context.Context, input dentally.PatientInput) (*dentally.Patient, error)
	CreateAppointment(ctx context.Context, input dentally.AppointmentInput) (*dentally.Appointment, error)
}

// Notifier receives a copy of each completed booking.
type Notifier interface {
	NotifyBooking(ctx context.Context, notice notify.BookingNotice) error
}

// Options wires the orchestrator's collaborators. Only the pricing policy is
// required; missing notification collaborators disable that step.
type Options struct {
	Catalog  *catalog.Catalog
	Pricing  pricing.Policy
	Payments payments.LinkCreator
	SMS      messaging.Sender
	Notifier Notifier
	Mirror   store.Store
	Metrics  *metrics.BookingMetrics
	Logger   *logging.Logger

	ClinicName           string
	SiteID               string
	DefaultPaymentPlanID int
	Currency             string
	Location             *time.Location
	Now                  func() time.Time
}

// Orchestrator drives a booking from patient creation to payment request.
type Orchestrator struct {
	pm   PracticeManagement
	opts Options
}

// NewOrchestrator builds an Orchestrator.
func NewOrchestrator(pm PracticeManagement, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Catalog == nil {
		opts.Catalog = catalog.Default()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Currency == "" {
		opts.Currency = "eur"
		if c, ok := opts.Pricing.(interface{ Currency() string }); ok && c.Currency() != "" {
			opts.Currency = c.Currency()
		}
	}
	return &Orchestrator{pm: pm, opts: opts}
}

// Book runs the booking transaction. Validation, dependency and patient
// errors abort the request; per-service failures are reported in the Outcome.
func (o *Orchestrator) Book(ctx context.Context, req Request) (*Outcome, error) {
	started := o.opts.Now()
	ctx, span := bookingTracer.Start(ctx, "booking.book")
	defer span.End()
	span.SetAttributes(
		attribute.Int("dentalbridge.services", len(req.Services)),
		attribute.String("dentalbridge.conversation_id", req.ConversationID),
	)
	logger := o.opts.Logger.With("conversation_id", req.ConversationID)

	services, err := Validate(o.opts.Catalog, req)
	if err != nil {
		o.opts.Metrics.ObserveBooking("rejected", time.Since(started).Seconds())
		return nil, err
	}

	patient, err := o.pm.CreatePatient(ctx, o.patientPayload(req.Patient))
	if err != nil || patient == nil || patient.ID == 0 {
		if err == nil {
			err = errors.New("response missing patient id")
		}
		span.RecordError(err)
		logger.Error("booking: create patient failed", "error", err)
		o.opts.Metrics.ObserveBooking("patient_error", time.Since(started).Seconds())
		return nil, fmt.Errorf("%w: %v", ErrPatientCreate, err)
	}
	span.SetAttributes(attribute.Int("dentalbridge.patient_id", patient.ID))
	logger = logger.With("patient_id", patient.ID)
	o.mirror(ctx, logger, store.Patients, patient.Raw, patient)

	outcome := &Outcome{
		PatientID: patient.ID,
		Services:  make([]ServiceOutcome, len(services)),
		Currency:  o.opts.Currency,
	}
	failedRoots := map[int]bool{}
	for _, i := range bookingOrder(o.opts.Catalog, services) {
		outcome.Services[i] = o.bookOne(ctx, logger, patient.ID, services[i], failedRoots)
	}

	o.price(outcome)
	o.requestPayment(ctx, logger, req, outcome)
	outcome.Summary = buildSummary(outcome, o.opts.Location)
	o.notifyClinic(ctx, logger, req, outcome)

	result := outcome.Result()
	span.SetAttributes(attribute.String("dentalbridge.result", result))
	o.opts.Metrics.ObserveBooking(result, time.Since(started).Seconds())
	logger.Info("booking completed", "result", result, "amount", outcome.PaymentAmount.String(), "sms_sent", outcome.SMSSent)
	return outcome, nil
}

// bookingOrder keeps the request order, except that a service another
// requested service depends on is moved ahead of everything else.
func bookingOrder(cat *catalog.Catalog, services []ServiceBooking) []int {
	required := make(map[int]bool, len(services))
	for _, s := range services {
		if root := cat.RootOf(s.ServiceID); root != 0 {
			required[root] = true
		}
	}
	order := make([]int, 0, len(services))
	for i, s := range services {
		if required[s.ServiceID] {
			order = append(order, i)
		}
	}
	for i, s := range services {
		if !required[s.ServiceID] {
			order = append(order, i)
		}
	}
	return order
}

func (o *Orchestrator) patientPayload(p PatientInput) dentally.PatientInput {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		title = defaultTitle
	}
	return dentally.PatientInput{
		Title:         title,
		FirstName:     strings.TrimSpace(p.FirstName),
		LastName:      strings.TrimSpace(p.LastName),
		DateOfBirth:   strings.TrimSpace(p.DateOfBirth),
		Gender:        true,
		EthnicityID:   defaultEthnicity,
		AddressLine1:  strings.TrimSpace(p.AddressLine1),
		Postcode:      strings.TrimSpace(p.Postcode),
		MobilePhone:   strings.TrimSpace(p.MobilePhone),
		EmailAddress:  strings.TrimSpace(p.EmailAddress),
		PaymentPlanID: o.opts.DefaultPaymentPlanID,
		SiteID:        o.opts.SiteID,
	}
}

func (o *Orchestrator) bookOne(ctx context.Context, logger *logging.Logger, patientID int, s ServiceBooking, failedRoots map[int]bool) ServiceOutcome {
	svc, _ := o.opts.Catalog.Get(s.ServiceID)
	out := ServiceOutcome{
		ServiceID:      s.ServiceID,
		ServiceName:    svc.Name,
		PractitionerID: s.PractitionerID,
		Start:          s.Start,
		Finish:         s.Finish,
		Status:         StatusFailed,
	}
	log := logger.With("service_id", s.ServiceID, "practitioner_id", s.PractitionerID)

	if root := o.opts.Catalog.RootOf(s.ServiceID); root != 0 && failedRoots[root] {
		rootSvc, _ := o.opts.Catalog.Get(root)
		out.Reason = fmt.Sprintf("requires %s, which could not be booked", rootSvc.Name)
		log.Info("booking: dependent skipped after root failure", "root_service_id", root)
		o.opts.Metrics.ObserveServiceBooking(s.ServiceID, "skipped")
		return out
	}

	reason := strings.TrimSpace(s.Reason)
	if reason == "" {
		reason = o.opts.Catalog.FormatReason(s.ServiceID)
	}
	appt, err := o.pm.CreateAppointment(ctx, dentally.AppointmentInput{
		StartTime:      s.Start,
		FinishTime:     s.Finish,
		PatientID:      patientID,
		PractitionerID: s.PractitionerID,
		Reason:         reason,
	})
	if err != nil || appt == nil {
		if o.opts.Catalog.IsRoot(s.ServiceID) {
			failedRoots[s.ServiceID] = true
		}
		status := "error"
		switch {
		case err == nil:
			out.Reason = "appointment was not created"
		case errors.Is(err, dentally.ErrConflict):
			status = "conflict"
			out.Reason = "the practitioner is no longer available at that time"
		default:
			out.Reason = "appointment creation failed"
		}
		log.Warn("booking: create appointment failed", "error", err, "status", status)
		o.opts.Metrics.ObserveServiceBooking(s.ServiceID, status)
		return out
	}

	out.Status = StatusSuccess
	out.AppointmentID = appt.ID
	o.opts.Metrics.ObserveServiceBooking(s.ServiceID, "success")
	log.Info("booking: appointment created", "appointment_id", appt.ID)
	o.mirror(ctx, log, store.Appointments, appt.Raw, appt)
	return out
}

func (o *Orchestrator) price(outcome *Outcome) {
	booked := outcome.Booked()
	if len(booked) == 0 {
		return
	}
	if o.opts.Pricing == nil {
		return
	}
	items := make([]pricing.BookedService, 0, len(booked))
	for _, s := range booked {
		items = append(items, pricing.BookedService{ServiceID: s.ServiceID, PractitionerID: s.PractitionerID})
	}
	outcome.PaymentAmount = o.opts.Pricing.Total(items)
}

func (o *Orchestrator) requestPayment(ctx context.Context, logger *logging.Logger, req Request, outcome *Outcome) {
	if len(outcome.Booked()) > 0 && req.TotalOverride != nil {
		outcome.PaymentAmount = *req.TotalOverride
	}
	if outcome.PaymentAmount <= 0 || o.opts.Payments == nil {
		return
	}

	ids := make([]int, 0, len(outcome.Services))
	names := make([]string, 0, len(outcome.Services))
	for _, s := range outcome.Booked() {
		ids = append(ids, s.AppointmentID)
		names = append(names, s.ServiceName)
	}
	link, err := o.opts.Payments.CreatePaymentLink(ctx, payments.LinkRequest{
		Amount:         outcome.PaymentAmount,
		Currency:       outcome.Currency,
		Description:    strings.Join(names, " + "),
		PatientID:      outcome.PatientID,
		AppointmentIDs: ids,
	})
	o.opts.Metrics.ObserveNotification("payment_link", err == nil)
	if err != nil {
		logger.Error("booking: payment link failed", "error", err)
		return
	}
	outcome.PaymentLinkURL = link.URL

	if o.opts.SMS == nil {
		return
	}
	err = o.opts.SMS.Send(ctx, messaging.SMS{
		To:   req.Patient.MobilePhone,
		Body: messaging.PaymentRequestText(req.Patient.FirstName, o.opts.ClinicName, link.URL),
	})
	o.opts.Metrics.ObserveNotification("sms", err == nil)
	if err != nil {
		logger.Error("booking: payment sms failed", "error", err)
		return
	}
	outcome.SMSSent = true
}

func (o *Orchestrator) notifyClinic(ctx context.Context, logger *logging.Logger, req Request, outcome *Outcome) {
	if o.opts.Notifier == nil || len(outcome.Booked()) == 0 {
		return
	}
	err := o.opts.Notifier.NotifyBooking(ctx, notify.BookingNotice{
		PatientName:    strings.TrimSpace(req.Patient.FirstName + " " + req.Patient.LastName),
		PatientPhone:   req.Patient.MobilePhone,
		PatientEmail:   req.Patient.EmailAddress,
		Summary:        outcome.Summary,
		Amount:         outcome.PaymentAmount.String(),
		Currency:       outcome.Currency,
		PaymentLinkURL: outcome.PaymentLinkURL,
		SMSSent:        outcome.SMSSent,
		ConversationID: req.ConversationID,
		BookedAt:       o.opts.Now().In(o.opts.Location),
	})
	o.opts.Metrics.ObserveNotification("email", err == nil)
	if err != nil {
		logger.Warn("booking: clinic notification failed", "error", err)
	}
}

// mirror copies a created record into local storage. The verbatim Dentally
// body is preferred; failures are logged only.
func (o *Orchestrator) mirror(ctx context.Context, logger *logging.Logger, collection string, raw json.RawMessage, fallback any) {
	if o.opts.Mirror == nil {
		return
	}
	var body any = fallback
	if len(raw) > 0 {
		body = raw
	}
	if _, err := o.opts.Mirror.Insert(ctx, collection, body); err != nil {
		logger.Warn("booking: local mirror write failed", "collection", collection, "error", err)
	}
}
