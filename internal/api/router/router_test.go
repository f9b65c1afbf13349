package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/dental-voice-booking/internal/directory"
	"github.com/wolfman30/dental-voice-booking/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/dental-voice-booking/internal/http/middleware"
	"github.com/wolfman30/dental-voice-booking/internal/maintenance"
	"github.com/wolfman30/dental-voice-booking/internal/store"
	"github.com/wolfman30/dental-voice-booking/pkg/logging"
)

const (
	testAgentKey    = "sk-test"
	testAdminSecret = "admin-secret"
	testHookSecret  = "hook-secret"
)

type staticDirectory []directory.Practitioner

func (s staticDirectory) ActivePractitioners(ctx context.Context) []directory.Practitioner { return s }

type noopJobs struct{}

func (noopJobs) SyncAppointments(ctx context.Context, date string) (*maintenance.AppointmentSync, error) {
	return &maintenance.AppointmentSync{Date: date, Message: "No appointments found to save"}, nil
}

func (noopJobs) SyncPaymentPlans(ctx context.Context) (*maintenance.PaymentPlanSync, error) {
	return &maintenance.PaymentPlanSync{Count: 1}, nil
}

func (noopJobs) SyncPractitioners(ctx context.Context) (*maintenance.PractitionerSync, error) {
	return &maintenance.PractitionerSync{}, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	logger := logging.Default()
	dir := staticDirectory{{ID: 10, DisplayName: "Ana Silva", Active: true}}

	cfg := &Config{
		Logger:          logger,
		Practitioners:   handlers.NewPractitionersHandler(dir, logger),
		Appointments:    handlers.NewAppointmentsHandler(store.NewMemoryStore(), logger),
		Webhook:         handlers.NewWebhookHandler(handlers.WebhookHandlerConfig{Directory: dir, Logger: logger}),
		Admin:           handlers.NewAdminHandler(noopJobs{}, logger),
		AgentAPIKeys:    []string{testAgentKey},
		AdminAuthSecret: testAdminSecret,
		Signature:       httpmiddleware.SignatureConfig{Secret: testHookSecret, Enabled: true},
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}),
	}
	return New(cfg)
}

func TestRouterHealthEndpoints(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/health", "/api/v1/health"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected status %d, got %d", path, http.StatusOK, rr.Code)
		}
		var resp map[string]string
		if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode health response: %v", err)
		}
		if resp["status"] != "ok" {
			t.Errorf("expected status 'ok', got %q", resp["status"])
		}
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "# metrics") {
		t.Fatalf("unexpected metrics response %d %q", rr.Code, rr.Body.String())
	}
}

func TestRouterAgentRoutesRequireKey(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/practitioners", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without key, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/practitioners", nil)
	req.Header.Set("Authorization", "Bearer "+testAgentKey)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with key, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Ana Silva (10)") {
		t.Errorf("unexpected body %s", rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
	req.Header.Set("Authorization", "Bearer "+testAgentKey)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for appointments, got %d", rr.Code)
	}
}

func TestRouterWebhookRequiresSignature(t *testing.T) {
	router := newTestRouter(t)
	body := `{"type":"call_started","data":{}}`

	for _, path := range []string{"/api/v1/webhooks/elevenlabs", "/api/v1/create-appointment"} {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 unsigned, got %d", path, rr.Code)
		}

		ts := time.Now().Unix()
		req = httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("ElevenLabs-Signature", "t="+itoa(ts)+",v0="+httpmiddleware.Sign(testHookSecret, []byte(itoa(ts)+"."+body)))
		rr = httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 signed, got %d (%s)", path, rr.Code, rr.Body.String())
		}
	}
}

func TestRouterAdminRequiresJWT(t *testing.T) {
	router := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/admin/sync/practitioners", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "ops",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testAdminSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/admin/dentally/appointments/2025-03-04", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d (%s)", rr.Code, rr.Body.String())
	}
}

func TestRouterOmitsUnconfiguredRoutes(t *testing.T) {
	r := New(&Config{AgentAPIKeys: []string{testAgentKey}})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/elevenlabs", strings.NewReader("{}"))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound && rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 404/405 without a webhook handler, got %d", rr.Code)
	}
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
