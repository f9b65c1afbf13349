package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wolfman30/dental-voice-booking/internal/availability"
	"github.com/wolfman30/dental-voice-booking/internal/booking"
	"github.com/wolfman30/dental-voice-booking/internal/directory"
	"github.com/wolfman30/dental-voice-booking/internal/extraction"
	"github.com/wolfman30/dental-voice-booking/internal/maintenance"
)

type fakeFinder struct {
	result availability.FindResult
	err    error

	calls int
	ids   []int
	start time.Time
}

func (f *fakeFinder) Find(ctx context.Context, ids []int, start time.Time) (availability.FindResult, error) {
	f.calls++
	f.ids = ids
	f.start = start
	return f.result, f.err
}

type fakeBooker struct {
	outcome *booking.Outcome
	err     error

	calls int
	req   booking.Request
}

func (f *fakeBooker) Book(ctx context.Context, req booking.Request) (*booking.Outcome, error) {
	f.calls++
	f.req = req
	return f.outcome, f.err
}

type fakeLister []directory.Practitioner

func (f fakeLister) ActivePractitioners(ctx context.Context) []directory.Practitioner { return f }

type fakeExtractor struct {
	intent *extraction.Intent
	err    error

	transcript    string
	practitioners []directory.Practitioner
}

func (f *fakeExtractor) Extract(ctx context.Context, transcript string, practitioners []directory.Practitioner) (*extraction.Intent, error) {
	f.transcript = transcript
	f.practitioners = practitioners
	return f.intent, f.err
}

type fakeVoice struct {
	mu      sync.Mutex
	started []string
	sent    []any
	err     error
}

func (f *fakeVoice) Start(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, id)
}

func (f *fakeVoice) Send(ctx context.Context, id string, msg any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.err
}

type fakeMaintainer struct {
	appointments  *maintenance.AppointmentSync
	plans         *maintenance.PaymentPlanSync
	practitioners *maintenance.PractitionerSync
	err           error
	date          string
}

func (f *fakeMaintainer) SyncAppointments(ctx context.Context, date string) (*maintenance.AppointmentSync, error) {
	f.date = date
	return f.appointments, f.err
}

func (f *fakeMaintainer) SyncPaymentPlans(ctx context.Context) (*maintenance.PaymentPlanSync, error) {
	return f.plans, f.err
}

func (f *fakeMaintainer) SyncPractitioners(ctx context.Context) (*maintenance.PractitionerSync, error) {
	return f.practitioners, f.err
}

func postJSON(t *testing.T, h http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch v := body.(type) {
	case string:
		buf.WriteString(v)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(v))
	}
	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decodeMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func futureSlot(offset time.Duration) time.Time {
	return time.Now().UTC().Add(72 * time.Hour).Truncate(time.Hour).Add(offset)
}

func sequence(steps ...availability.SequenceStep) *availability.SlotSequence {
	return &availability.SlotSequence{Steps: steps}
}

func step(serviceID, practitionerID int, start time.Time, minutes int) availability.SequenceStep {
	return availability.SequenceStep{
		ServiceID: serviceID,
		Slot: availability.Slot{
			PractitionerID: practitionerID,
			Start:          start,
			Finish:         start.Add(time.Duration(minutes) * time.Minute),
		},
	}
}

func bookedOutcome(services ...booking.ServiceOutcome) *booking.Outcome {
	return &booking.Outcome{PatientID: 555, Services: services, Currency: "eur", Summary: "summary"}
}
