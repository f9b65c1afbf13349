// Package maintenance holds the offline jobs that keep the local mirror in
// step with Dentally: practitioner and service mapping, appointment and
// payment plan snapshots, and agent key generation.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/dental-voice-booking/internal/catalog"
	"github.com/wolfman30/dental-voice-booking/internal/dentally"
	"github.com/wolfman30/dental-voice-booking/internal/directory"
	"github.com/wolfman30/dental-voice-booking/internal/store"
	"github.com/wolfman30/dental-voice-booking/pkg/logging"
)

var maintenanceTracer = otel.Tracer("dentalbridge.internal.maintenance")

var (
	ErrInvalidDate     = errors.New("maintenance: date must be in YYYY-MM-DD format")
	ErrNoPaymentPlans  = errors.New("maintenance: no payment plans found in API response")
	ErrUpstream        = errors.New("maintenance: dentally request failed")
	ErrInvalidMapping  = errors.New("maintenance: invalid service mapping")
	ErrNoPractitioners = errors.New("maintenance: no practitioners returned")
)

var dateOnly = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Dentally is the part of the practice-management API maintenance reads.
type Dentally interface {
	ListPractitioners(ctx context.Context) ([]dentally.Practitioner, error)
	ListAppointmentsOn(ctx context.Context, day time.Time) ([]dentally.Appointment, int, error)
	ListPaymentPlans(ctx context.Context) ([]dentally.PaymentPlan, error)
}

type Service struct {
	remote  Dentally
	store   store.Store
	catalog *catalog.Catalog
	logger  *logging.Logger
}

func NewService(remote Dentally, s store.Store, cat *catalog.Catalog, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if cat == nil {
		cat = catalog.Default()
	}
	return &Service{remote: remote, store: s, catalog: cat, logger: logger}
}

// AppointmentSync reports a day snapshot.
type AppointmentSync struct {
	Date    string `json:"date"`
	Count   int    `json:"count"`
	Pages   int    `json:"pages"`
	Message string `json:"message"`
}

// SyncAppointments replaces the Dentally appointment snapshot with every
// appointment on date.
func (s *Service) SyncAppointments(ctx context.Context, date string) (*AppointmentSync, error) {
	ctx, span := maintenanceTracer.Start(ctx, "maintenance.sync_appointments")
	defer span.End()

	if !dateOnly.MatchString(date) {
		return nil, ErrInvalidDate
	}
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, ErrInvalidDate
	}
	appts, pages, err := s.remote.ListAppointmentsOn(ctx, day)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	bodies := make([]any, 0, len(appts))
	for _, a := range appts {
		bodies = append(bodies, rawOr(a.Raw, a))
	}
	n, err := store.Replace(ctx, s.store, store.DentallyAppointments, nil, bodies)
	if err != nil {
		return nil, fmt.Errorf("maintenance: save appointments: %w", err)
	}
	span.SetAttributes(attribute.Int("dentalbridge.appointments", n), attribute.Int("dentalbridge.pages", pages))

	res := &AppointmentSync{Date: date, Count: n, Pages: pages, Message: "No appointments found to save"}
	if n > 0 {
		res.Message = fmt.Sprintf("Fetched and saved %d appointments from %d page(s).", n, pages)
	}
	s.logger.Info("appointments synced", "date", date, "count", n, "pages", pages)
	return res, nil
}

// PaymentPlanSync reports a payment plan refresh.
type PaymentPlanSync struct {
	Count   int    `json:"stored_count"`
	Message string `json:"message"`
}

// SyncPaymentPlans replaces the stored active payment plans.
func (s *Service) SyncPaymentPlans(ctx context.Context) (*PaymentPlanSync, error) {
	plans, err := s.remote.ListPaymentPlans(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if len(plans) == 0 {
		return nil, ErrNoPaymentPlans
	}
	bodies := make([]any, 0, len(plans))
	for _, p := range plans {
		bodies = append(bodies, rawOr(p.Raw, p))
	}
	n, err := store.Replace(ctx, s.store, store.PaymentPlans, nil, bodies)
	if err != nil {
		return nil, fmt.Errorf("maintenance: save payment plans: %w", err)
	}
	s.logger.Info("payment plans synced", "count", n)
	return &PaymentPlanSync{Count: n, Message: "Payment plans fetched and stored successfully."}, nil
}

// PractitionerSync reports a directory refresh.
type PractitionerSync struct {
	Fetched   int `json:"fetched"`
	Active    int `json:"active"`
	Preserved int `json:"preserved_mappings"`
}

// SyncPractitioners refreshes the local practitioner records from Dentally,
// keeping each practitioner's existing service mapping.
func (s *Service) SyncPractitioners(ctx context.Context) (*PractitionerSync, error) {
	ctx, span := maintenanceTracer.Start(ctx, "maintenance.sync_practitioners")
	defer span.End()

	remote, err := s.remote.ListPractitioners(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if len(remote) == 0 {
		return nil, ErrNoPractitioners
	}
	existing, err := s.ListPractitioners(ctx)
	if err != nil {
		return nil, err
	}
	services := make(map[int][]int, len(existing))
	for _, rec := range existing {
		services[rec.ID] = rec.Services
	}

	res := &PractitionerSync{Fetched: len(remote)}
	bodies := make([]any, 0, len(remote))
	for _, p := range remote {
		rec := directory.Record{ID: p.ID, Active: p.Active, User: p.User, Services: services[p.ID]}
		if rec.Services == nil {
			rec.Services = []int{}
		} else {
			res.Preserved++
		}
		if p.Active {
			res.Active++
		}
		bodies = append(bodies, rec)
	}
	if _, err := store.Replace(ctx, s.store, store.Practitioners, nil, bodies); err != nil {
		return nil, fmt.Errorf("maintenance: save practitioners: %w", err)
	}
	s.logger.Info("practitioners synced", "fetched", res.Fetched, "active", res.Active, "preserved_mappings", res.Preserved)
	return res, nil
}

// ListPractitioners returns the stored practitioner records.
func (s *Service) ListPractitioners(ctx context.Context) ([]directory.Record, error) {
	docs, err := s.store.Find(ctx, store.Practitioners, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("maintenance: load practitioners: %w", err)
	}
	out := make([]directory.Record, 0, len(docs))
	for _, d := range docs {
		var rec directory.Record
		if err := d.Decode(&rec); err != nil {
			s.logger.Warn("skipping undecodable practitioner", "document_id", d.ID, "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func rawOr(raw []byte, fallback any) any {
	if len(raw) > 0 {
		return raw
	}
	return fallback
}
