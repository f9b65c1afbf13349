package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/dental-voice-booking/internal/catalog"
	"github.com/wolfman30/dental-voice-booking/internal/dentally"
	"github.com/wolfman30/dental-voice-booking/internal/messaging"
	"github.com/wolfman30/dental-voice-booking/internal/notify"
	"github.com/wolfman30/dental-voice-booking/internal/payments"
	"github.com/wolfman30/dental-voice-booking/internal/pricing"
	"github.com/wolfman30/dental-voice-booking/internal/store"
)

var slotT = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

type fakePM struct {
	patientErr   error
	apptErrs     map[int]error // keyed by practitioner id
	patients     []dentally.PatientInput
	appointments []dentally.AppointmentInput
	nextID       int
}

func (f *fakePM) CreatePatient(_ context.Context, in dentally.PatientInput) (*dentally.Patient, error) {
	f.patients = append(f.patients, in)
	if f.patientErr != nil {
		return nil, f.patientErr
	}
	return &dentally.Patient{ID: 501, FirstName: in.FirstName, Raw: json.RawMessage(`{"id":501}`)}, nil
}

func (f *fakePM) CreateAppointment(_ context.Context, in dentally.AppointmentInput) (*dentally.Appointment, error) {
	f.appointments = append(f.appointments, in)
	if err := f.apptErrs[in.PractitionerID]; err != nil {
		return nil, err
	}
	f.nextID++
	id := 9000 + f.nextID
	return &dentally.Appointment{ID: id, PractitionerID: in.PractitionerID, Raw: json.RawMessage(fmt.Sprintf(`{"id":%d}`, id))}, nil
}

type fakeLinks struct {
	err  error
	reqs []payments.LinkRequest
}

func (f *fakeLinks) CreatePaymentLink(_ context.Context, req payments.LinkRequest) (*payments.Link, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &payments.Link{URL: "https://buy.stripe.com/test_1", ProviderID: "plink_1"}, nil
}

type fakeSMS struct {
	err  error
	sent []messaging.SMS
}

func (f *fakeSMS) Send(_ context.Context, msg messaging.SMS) error {
	f.sent = append(f.sent, msg)
	return f.err
}

type fakeNotifier struct{ notices []notify.BookingNotice }

func (f *fakeNotifier) NotifyBooking(_ context.Context, n notify.BookingNotice) error {
	f.notices = append(f.notices, n)
	return nil
}

type failingMirror struct{ store.Store }

func (failingMirror) Insert(context.Context, string, any) (store.Document, error) {
	return store.Document{}, errors.New("mirror offline")
}

type harness struct {
	pm       *fakePM
	links    *fakeLinks
	sms      *fakeSMS
	notifier *fakeNotifier
	mirror   *store.MemoryStore
	orch     *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	policy, err := pricing.NewRulePolicy(pricing.DefaultRules(), catalog.Default())
	require.NoError(t, err)
	h := &harness{
		pm:       &fakePM{apptErrs: map[int]error{}},
		links:    &fakeLinks{},
		sms:      &fakeSMS{},
		notifier: &fakeNotifier{},
		mirror:   store.NewMemoryStore(),
	}
	h.orch = NewOrchestrator(h.pm, Options{
		Pricing:              policy,
		Payments:             h.links,
		SMS:                  h.sms,
		Notifier:             h.notifier,
		Mirror:               h.mirror,
		ClinicName:           "Wonder of Wellness",
		DefaultPaymentPlanID: 44651,
	})
	return h
}

func validPatient() PatientInput {
	return PatientInput{
		FirstName:    "Ada",
		LastName:     "Lovelace",
		DateOfBirth:  "1990-01-01",
		AddressLine1: "1 Main St",
		Postcode:     "D01 AB12",
		MobilePhone:  "+353871234567",
	}
}

func bundleRequest() Request {
	return Request{
		Patient: validPatient(),
		Services: []ServiceBooking{
			{ServiceID: catalog.BiologicalConsultation, PractitionerID: 11, Start: slotT},
			{ServiceID: catalog.HolisticHygiene, PractitionerID: 22, Start: slotT.Add(90 * time.Minute)},
		},
	}
}

func TestBook_BundleSuccess(t *testing.T) {
	h := newHarness(t)
	out, err := h.orch.Book(context.Background(), bundleRequest())
	require.NoError(t, err)

	assert.Equal(t, 501, out.PatientID)
	require.Len(t, out.Services, 2)
	for _, s := range out.Services {
		assert.Equal(t, StatusSuccess, s.Status)
		assert.NotZero(t, s.AppointmentID)
	}
	// Bundled price minus discount, not the standalone sum.
	assert.Equal(t, pricing.FromDecimal(269+176-50), out.PaymentAmount)
	assert.Equal(t, "https://buy.stripe.com/test_1", out.PaymentLinkURL)
	assert.True(t, out.SMSSent)
	assert.Equal(t, "success", out.Result())

	require.Len(t, h.pm.appointments, 2)
	assert.Equal(t, slotT.Add(60*time.Minute), h.pm.appointments[0].FinishTime)
	assert.Equal(t, "Biological New Consultation-1", h.pm.appointments[0].Reason)

	require.Len(t, h.pm.patients, 1)
	p := h.pm.patients[0]
	assert.Equal(t, "Mr", p.Title)
	assert.True(t, p.Gender)
	assert.Equal(t, "99", p.EthnicityID)
	assert.Equal(t, 44651, p.PaymentPlanID)

	require.Len(t, h.sms.sent, 1)
	assert.Equal(t, "+353871234567", h.sms.sent[0].To)
	assert.Contains(t, h.sms.sent[0].Body, "Hi Ada, thank you for booking your appointment with Wonder of Wellness.")
	assert.Equal(t, []int{9001, 9002}, h.links.reqs[0].AppointmentIDs)

	appts, err := h.mirror.Find(context.Background(), store.Appointments, nil, 0)
	require.NoError(t, err)
	assert.Len(t, appts, 2)
	patients, err := h.mirror.Find(context.Background(), store.Patients, nil, 0)
	require.NoError(t, err)
	assert.Len(t, patients, 1)

	require.Len(t, h.notifier.notices, 1)
	assert.Equal(t, "Ada Lovelace", h.notifier.notices[0].PatientName)
	assert.Contains(t, out.Summary, "Biological New Consultation booked for Wednesday 4 March 2026 at 10:00")
	assert.Contains(t, out.Summary, "A payment link for EUR 395.00 has been sent by SMS.")
}

func TestBook_RootConflictFailsDependentsWithoutRemoteCall(t *testing.T) {
	h := newHarness(t)
	h.pm.apptErrs[11] = fmt.Errorf("dentally: create appointment: %w", &dentally.APIError{StatusCode: 409})

	out, err := h.orch.Book(context.Background(), bundleRequest())
	require.NoError(t, err)

	require.Len(t, h.pm.appointments, 1, "dependent must not reach Dentally")
	assert.Equal(t, 11, h.pm.appointments[0].PractitionerID)

	assert.Equal(t, StatusFailed, out.Services[0].Status)
	assert.Contains(t, out.Services[0].Reason, "no longer available")
	assert.Equal(t, StatusFailed, out.Services[1].Status)
	assert.Contains(t, out.Services[1].Reason, "requires Biological New Consultation")
	assert.Equal(t, pricing.Money(0), out.PaymentAmount)
	assert.Empty(t, h.links.reqs)
	assert.Empty(t, h.notifier.notices)
	assert.Equal(t, "failed", out.Result())
}

func TestBook_DependentConflictKeepsRoot(t *testing.T) {
	h := newHarness(t)
	h.pm.apptErrs[22] = &dentally.APIError{StatusCode: 422}

	out, err := h.orch.Book(context.Background(), bundleRequest())
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, out.Services[0].Status)
	assert.Equal(t, StatusFailed, out.Services[1].Status)
	assert.Equal(t, pricing.FromDecimal(269), out.PaymentAmount)
	assert.Equal(t, "partial", out.Result())
}

func TestBook_RootListedLastIsAttemptedFirst(t *testing.T) {
	h := newHarness(t)
	h.pm.apptErrs[11] = errors.New("timeout")
	req := bundleRequest()
	req.Services[0], req.Services[1] = req.Services[1], req.Services[0]

	out, err := h.orch.Book(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, h.pm.appointments, 1)
	assert.Equal(t, catalog.HolisticHygiene, out.Services[0].ServiceID)
	assert.Equal(t, StatusFailed, out.Services[0].Status)
	assert.Equal(t, "appointment creation failed", out.Services[1].Reason)
}

func TestBookingOrderMovesOnlyRootsForward(t *testing.T) {
	cat, err := catalog.New([]catalog.Service{
		{ID: 1, Name: "Consultation", DurationMinutes: 60},
		{ID: 2, Name: "Hygiene", DurationMinutes: 30, Requires: 1},
		{ID: 5, Name: "Whitening", DurationMinutes: 45},
		{ID: 6, Name: "X-ray", DurationMinutes: 15},
	})
	require.NoError(t, err)

	services := []ServiceBooking{
		{ServiceID: 6, Start: slotT.Add(4 * time.Hour)},
		{ServiceID: 2, Start: slotT.Add(2 * time.Hour)},
		{ServiceID: 5, Start: slotT},
		{ServiceID: 1, Start: slotT.Add(time.Hour)},
	}
	// Start times are ignored; only the consultation jumps the queue.
	assert.Equal(t, []int{3, 0, 1, 2}, bookingOrder(cat, services))

	assert.Equal(t, []int{0, 1}, bookingOrder(cat, services[:2]), "dependent without its root keeps its place")
}

func TestBook_PremiumPractitionerAndOverride(t *testing.T) {
	h := newHarness(t)
	req := Request{
		Patient:  validPatient(),
		Services: []ServiceBooking{{ServiceID: catalog.BiologicalConsultation, PractitionerID: pricing.PremiumPractitionerID, Start: slotT}},
	}
	out, err := h.orch.Book(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, pricing.FromDecimal(299), out.PaymentAmount)

	override := pricing.FromDecimal(10)
	req.TotalOverride = &override
	out, err = h.orch.Book(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, override, out.PaymentAmount)
	assert.Equal(t, override, h.links.reqs[len(h.links.reqs)-1].Amount)
}

func TestBook_NotificationFailuresDoNotRollBack(t *testing.T) {
	h := newHarness(t)
	h.sms.err = errors.New("clicksend down")
	out, err := h.orch.Book(context.Background(), bundleRequest())
	require.NoError(t, err)
	assert.Equal(t, "https://buy.stripe.com/test_1", out.PaymentLinkURL)
	assert.False(t, out.SMSSent)
	assert.Equal(t, "success", out.Result())
	assert.Contains(t, out.Summary, "the SMS could not be sent")

	h = newHarness(t)
	h.links.err = errors.New("stripe down")
	out, err = h.orch.Book(context.Background(), bundleRequest())
	require.NoError(t, err)
	assert.Empty(t, out.PaymentLinkURL)
	assert.False(t, out.SMSSent)
	assert.Empty(t, h.sms.sent)
	assert.Len(t, out.Booked(), 2)
}

func TestBook_MirrorFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.orch.opts.Mirror = failingMirror{}
	out, err := h.orch.Book(context.Background(), bundleRequest())
	require.NoError(t, err)
	assert.Equal(t, "success", out.Result())
}

func TestBook_DirectAccessNeedsNoRoot(t *testing.T) {
	h := newHarness(t)
	out, err := h.orch.Book(context.Background(), Request{
		Patient:  validPatient(),
		Services: []ServiceBooking{{ServiceID: catalog.HygieneDirectAccess, PractitionerID: 33, Start: slotT}},
	})
	require.NoError(t, err)
	assert.Equal(t, pricing.FromDecimal(192.50), out.PaymentAmount)
	assert.Equal(t, slotT.Add(15*time.Minute), h.pm.appointments[0].FinishTime)
}

func TestBook_RejectsBeforeRemoteCalls(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Request)
		wantErr error
		wantMsg string
	}{
		{"missing postcode", func(r *Request) { r.Patient.Postcode = "" }, ErrValidation, "postcode"},
		{"missing mobile", func(r *Request) { r.Patient.MobilePhone = " " }, ErrValidation, "mobile_phone"},
		{"no services", func(r *Request) { r.Services = nil }, ErrValidation, "at least one"},
		{"unknown service", func(r *Request) { r.Services[0].ServiceID = 99 }, ErrValidation, "unknown service_id 99"},
		{"no practitioner", func(r *Request) { r.Services[0].PractitionerID = 0 }, ErrValidation, "practitioner_id"},
		{"finish before start", func(r *Request) { r.Services[0].Finish = slotT.Add(-time.Minute) }, ErrValidation, "finish_time"},
		{"dependent alone", func(r *Request) { r.Services = r.Services[1:] }, ErrDependencyUnmet, "requires Biological New Consultation"},
		{"dependent first", func(r *Request) { r.Services[1].Start = slotT.Add(-2 * time.Hour) }, ErrDependencyUnmet, "must start before"},
		{"negative total", func(r *Request) { neg := pricing.Money(-100); r.TotalOverride = &neg }, ErrValidation, "total_payment must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			req := bundleRequest()
			tt.mutate(&req)
			_, err := h.orch.Book(context.Background(), req)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.Empty(t, h.pm.patients)
			assert.Empty(t, h.pm.appointments)
		})
	}
}

func TestBook_PatientCreateFailureIsTerminal(t *testing.T) {
	h := newHarness(t)
	h.pm.patientErr = errors.New("dentally: status 500")
	_, err := h.orch.Book(context.Background(), bundleRequest())
	require.ErrorIs(t, err, ErrPatientCreate)
	assert.Empty(t, h.pm.appointments)
}
