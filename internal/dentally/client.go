// Package dentally is a REST client for the Dentally practice-management API.
package dentally

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/dental-voice-booking/pkg/logging"
)

const (
	defaultBaseURL      = "https://api.dentally.co/v1"
	defaultTimeout      = 15 * time.Second
	userAgent           = "dental-voice-booking/1.0"
	appointmentsPerPage = 100
)

var (
	dentallyTracer = otel.Tracer("dentalbridge.internal.dentally")
	clientSpan     = trace.WithSpanKind(trace.SpanKindClient)
)

// Config configures the client.
type Config struct {
	APIKey  string
	BaseURL string
	SiteID  string
	Timeout time.Duration
}

// Client talks to the Dentally REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	siteID     string
	logger     *logging.Logger
}

// NewClient constructs a Dentally client.
func NewClient(cfg Config, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
		siteID:     cfg.SiteID,
		logger:     logger,
	}
}

// SiteID returns the configured site.
func (c *Client) SiteID() string { return c.siteID }

// ListPractitioners returns the practitioners of the configured site.
func (c *Client) ListPractitioners(ctx context.Context) ([]Practitioner, error) {
	ctx, span := dentallyTracer.Start(ctx, "dentally.list_practitioners", clientSpan)
	defer span.End()

	q := url.Values{}
	if c.siteID != "" {
		q.Set("site_id", c.siteID)
	}
	var out struct {
		Practitioners []Practitioner `json:"practitioners"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/practitioners", q, nil, &out); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("dentally: list practitioners: %w", err)
	}
	span.SetAttributes(attribute.Int("dentally.practitioners", len(out.Practitioners)))
	return out.Practitioners, nil
}

// Availability queries free blocks for the given practitioners.
func (c *Client) Availability(ctx context.Context, query AvailabilityQuery) (*AvailabilityResult, error) {
	ctx, span := dentallyTracer.Start(ctx, "dentally.availability", clientSpan)
	defer span.End()
	span.SetAttributes(
		attribute.Int("dentally.practitioner_count", len(query.PractitionerIDs)),
		attribute.Int("dentally.duration_minutes", query.DurationMinutes),
	)

	q := url.Values{}
	for _, id := range query.PractitionerIDs {
		q.Add("practitioner_ids[]", strconv.Itoa(id))
	}
	q.Set("start_time", query.Start.UTC().Format(time.RFC3339))
	q.Set("finish_time", query.Finish.UTC().Format(time.RFC3339))
	q.Set("duration", strconv.Itoa(query.DurationMinutes))

	var out struct {
		Availability *[]AvailabilityBlock `json:"availability"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/appointments/availability", q, nil, &out); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("dentally: availability: %w", err)
	}
	if out.Availability == nil {
		return &AvailabilityResult{}, nil
	}
	span.SetAttributes(attribute.Int("dentally.blocks", len(*out.Availability)))
	return &AvailabilityResult{Blocks: *out.Availability, Present: true}, nil
}

// CreatePatient registers a patient.
func (c *Client) CreatePatient(ctx context.Context, input PatientInput) (*Patient, error) {
	ctx, span := dentallyTracer.Start(ctx, "dentally.create_patient", clientSpan)
	defer span.End()

	if input.SiteID == "" {
		input.SiteID = c.siteID
	}
	var out struct {
		Patient json.RawMessage `json:"patient"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/patients", nil, map[string]any{"patient": input}, &out); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("dentally: create patient: %w", err)
	}
	if len(out.Patient) == 0 {
		return nil, fmt.Errorf("dentally: create patient: response missing patient")
	}
	var patient Patient
	if err := json.Unmarshal(out.Patient, &patient); err != nil {
		return nil, fmt.Errorf("dentally: decode patient: %w", err)
	}
	patient.Raw = out.Patient
	span.SetAttributes(attribute.Int("dentally.patient_id", patient.ID))
	return &patient, nil
}

// CreateAppointment books an appointment. A clash is reported as an error
// matching ErrConflict.
func (c *Client) CreateAppointment(ctx context.Context, input AppointmentInput) (*Appointment, error) {
	ctx, span := dentallyTracer.Start(ctx, "dentally.create_appointment", clientSpan)
	defer span.End()
	span.SetAttributes(attribute.Int("dentally.practitioner_id", input.PractitionerID))

	body := map[string]any{"appointment": map[string]any{
		"start_time":      input.StartTime.UTC().Format(time.RFC3339),
		"finish_time":     input.FinishTime.UTC().Format(time.RFC3339),
		"patient_id":      input.PatientID,
		"practitioner_id": input.PractitionerID,
		"reason":          input.Reason,
	}}
	var out struct {
		Appointment json.RawMessage `json:"appointment"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/appointments", nil, body, &out); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("dentally: create appointment: %w", err)
	}
	appt, err := decodeAppointment(out.Appointment)
	if err != nil {
		return nil, fmt.Errorf("dentally: create appointment: %w", err)
	}
	return appt, nil
}

// ListAppointmentsOn returns every appointment on the given day, following
// pagination, and the number of pages read.
func (c *Client) ListAppointmentsOn(ctx context.Context, day time.Time) ([]Appointment, int, error) {
	ctx, span := dentallyTracer.Start(ctx, "dentally.list_appointments", clientSpan)
	defer span.End()

	var all []Appointment
	page := 1
	for ; ; page++ {
		q := url.Values{}
		q.Set("on", day.Format("2006-01-02"))
		q.Set("page", strconv.Itoa(page))
		q.Set("per_page", strconv.Itoa(appointmentsPerPage))
		if c.siteID != "" {
			q.Set("site_id", c.siteID)
		}
		var out struct {
			Appointments []json.RawMessage `json:"appointments"`
			Meta         pageMeta          `json:"meta"`
		}
		if err := c.doJSON(ctx, http.MethodGet, "/appointments", q, nil, &out); err != nil {
			span.RecordError(err)
			return nil, page - 1, fmt.Errorf("dentally: list appointments page %d: %w", page, err)
		}
		for _, raw := range out.Appointments {
			appt, err := decodeAppointment(raw)
			if err != nil {
				return nil, page - 1, fmt.Errorf("dentally: list appointments: %w", err)
			}
			all = append(all, *appt)
		}
		if out.Meta.TotalPages <= page || len(out.Appointments) == 0 {
			break
		}
	}
	span.SetAttributes(attribute.Int("dentally.appointments", len(all)), attribute.Int("dentally.pages", page))
	return all, page, nil
}

// ListPaymentPlans returns active payment plans.
func (c *Client) ListPaymentPlans(ctx context.Context) ([]PaymentPlan, error) {
	q := url.Values{}
	q.Set("active", "true")
	var out struct {
		PaymentPlans []json.RawMessage `json:"payment_plans"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/payment_plans", q, nil, &out); err != nil {
		return nil, fmt.Errorf("dentally: list payment plans: %w", err)
	}
	plans := make([]PaymentPlan, 0, len(out.PaymentPlans))
	for _, raw := range out.PaymentPlans {
		var plan PaymentPlan
		if err := json.Unmarshal(raw, &plan); err != nil {
			return nil, fmt.Errorf("dentally: decode payment plan: %w", err)
		}
		plan.Raw = raw
		plans = append(plans, plan)
	}
	return plans, nil
}

func decodeAppointment(raw json.RawMessage) (*Appointment, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("response missing appointment")
	}
	var appt Appointment
	if err := json.Unmarshal(raw, &appt); err != nil {
		return nil, fmt.Errorf("decode appointment: %w", err)
	}
	appt.Raw = raw
	return &appt, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body interface{}, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := string(respBody)
		if len(msg) > 300 {
			msg = msg[:300]
		}
		c.logger.Warn("dentally API non-2xx response", "status", resp.StatusCode, "path", path, "body", msg)
		return &APIError{StatusCode: resp.StatusCode, Path: path, Body: msg}
	}

	if len(respBody) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
