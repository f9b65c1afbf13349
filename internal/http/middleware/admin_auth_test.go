package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func adminToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.RegisteredClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestAdminJWTRejections(t *testing.T) {
	live := jwt.RegisteredClaims{Subject: "clinic-ops", ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute))}

	cases := []struct {
		name   string
		secret string
		header string
		detail string
	}{
		{name: "secret unset", secret: "", header: "Bearer " + adminToken(t, jwt.SigningMethodHS256, []byte("secret"), live), detail: "admin auth disabled"},
		{name: "no header", secret: "secret", detail: "missing authorization header"},
		{name: "basic auth", secret: "secret", header: "Basic YWRtaW46YWRtaW4=", detail: "missing authorization header"},
		{name: "wrong key", secret: "secret", header: "Bearer " + adminToken(t, jwt.SigningMethodHS256, []byte("wrong"), live), detail: "invalid token"},
		{name: "none alg", secret: "secret", header: "Bearer " + adminToken(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, live), detail: "invalid token"},
		{name: "no expiry", secret: "secret", header: "Bearer " + adminToken(t, jwt.SigningMethodHS256, []byte("secret"), jwt.RegisteredClaims{Subject: "clinic-ops"}), detail: "invalid token"},
		{name: "expired", secret: "secret", header: "Bearer " + adminToken(t, jwt.SigningMethodHS256, []byte("secret"), jwt.RegisteredClaims{
			Subject:   "clinic-ops",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		}), detail: "token expired"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/admin/sync/payment-plans", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			AdminJWT(tc.secret, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatalf("handler should not run")
			})).ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body["detail"] != tc.detail {
				t.Fatalf("expected detail %q, got %q", tc.detail, body["detail"])
			}
		})
	}
}

func TestAdminJWTAcceptsLiveToken(t *testing.T) {
	// Expired 10s ago, inside the allowed clock skew.
	claims := jwt.RegisteredClaims{Subject: "clinic-ops", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-10 * time.Second))}
	req := httptest.NewRequest(http.MethodGet, "/admin/dentally/appointments/2026-10-14", nil)
	req.Header.Set("Authorization", "bearer "+adminToken(t, jwt.SigningMethodHS384, []byte("secret"), claims))
	rec := httptest.NewRecorder()

	called := false
	AdminJWT("secret", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		got, ok := AdminClaimsFromContext(r.Context())
		if !ok || got.Subject != "clinic-ops" {
			t.Fatalf("expected admin claims in context, got %+v", got)
		}
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	if !called || rec.Code != http.StatusOK {
		t.Fatalf("expected handler to run with 200, got called=%v status=%d", called, rec.Code)
	}
}
