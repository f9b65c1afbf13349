package dentally

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/dental-voice-booking/pkg/logging"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return NewClient(Config{APIKey: "key-1", BaseURL: ts.URL, SiteID: "site-9"}, logging.Default())
}

func TestListPractitioners(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/practitioners", r.URL.Path)
		assert.Equal(t, "site-9", r.URL.Query().Get("site_id"))
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"practitioners":[{"id":148774,"active":true,"user":{"first_name":"Sebastien","last_name":"Lomas"}},{"id":2,"active":false,"user":{"first_name":"Old","last_name":"Doc"}}]}`))
	})

	practitioners, err := client.ListPractitioners(context.Background())
	require.NoError(t, err)
	require.Len(t, practitioners, 2)
	assert.Equal(t, "Sebastien Lomas", practitioners[0].DisplayName())
	assert.False(t, practitioners[1].Active)
}

func TestAvailabilityQueryParams(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/appointments/availability", r.URL.Path)
		assert.Equal(t, []string{"10", "11"}, q["practitioner_ids[]"])
		assert.Equal(t, "2026-03-02T09:00:00Z", q.Get("start_time"))
		assert.Equal(t, "2026-03-03T10:00:00Z", q.Get("finish_time"))
		assert.Equal(t, "60", q.Get("duration"))
		_, _ = w.Write([]byte(`{"availability":[{"practitioner_id":10,"start_time":"2026-03-02T09:00:00Z","finish_time":"2026-03-02T11:00:00Z"}]}`))
	})

	res, err := client.Availability(context.Background(), AvailabilityQuery{
		PractitionerIDs: []int{10, 11},
		Start:           start,
		Finish:          start.Add(25 * time.Hour),
		DurationMinutes: 60,
	})
	require.NoError(t, err)
	assert.True(t, res.Present)
	require.Len(t, res.Blocks, 1)
	assert.Equal(t, 10, res.Blocks[0].PractitionerID)
	assert.Equal(t, 2*time.Hour, res.Blocks[0].FinishTime.Sub(res.Blocks[0].StartTime))
}

func TestAvailabilityFieldAbsent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	res, err := client.Availability(context.Background(), AvailabilityQuery{PractitionerIDs: []int{1}, DurationMinutes: 30})
	require.NoError(t, err)
	assert.False(t, res.Present)
	assert.Empty(t, res.Blocks)
}

func TestCreatePatientKeepsRawBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body struct {
			Patient PatientInput `json:"patient"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Ada", body.Patient.FirstName)
		assert.Equal(t, "site-9", body.Patient.SiteID)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"patient":{"id":555,"first_name":"Ada","last_name":"Lovelace","nhs_number":"x"}}`))
	})

	patient, err := client.CreatePatient(context.Background(), PatientInput{FirstName: "Ada", LastName: "Lovelace"})
	require.NoError(t, err)
	assert.Equal(t, 555, patient.ID)
	assert.Contains(t, string(patient.Raw), "nhs_number")
}

func TestCreateAppointmentConflict(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":{"message":"Practitioner is already booked"}}`))
	})

	_, err := client.CreateAppointment(context.Background(), AppointmentInput{PatientID: 1, PractitionerID: 2})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflict))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
}

func TestCreateAppointmentServerErrorIsNotConflict(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	_, err := client.CreateAppointment(context.Background(), AppointmentInput{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrConflict))
}

func TestListAppointmentsOnPaginates(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "2026-03-02", r.URL.Query().Get("on"))
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))
		switch r.URL.Query().Get("page") {
		case "1":
			_, _ = w.Write([]byte(`{"appointments":[{"id":1,"practitioner_id":5}],"meta":{"total_pages":2,"current_page":1}}`))
		case "2":
			_, _ = w.Write([]byte(`{"appointments":[{"id":2,"practitioner_id":6}],"meta":{"total_pages":2,"current_page":2}}`))
		default:
			t.Fatalf("unexpected page %s", r.URL.Query().Get("page"))
		}
	})

	appts, pages, err := client.ListAppointmentsOn(context.Background(), time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, pages)
	require.Len(t, appts, 2)
	assert.Equal(t, 2, appts[1].ID)
	assert.NotEmpty(t, appts[1].Raw)
}

func TestListPaymentPlans(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("active"))
		_, _ = w.Write([]byte(`{"payment_plans":[{"id":44651,"name":"Private","active":true}]}`))
	})
	plans, err := client.ListPaymentPlans(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, 44651, plans[0].ID)
}
