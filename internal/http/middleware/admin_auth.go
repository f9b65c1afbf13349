package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/dental-voice-booking/pkg/logging"
)

type contextKey string

const (
	adminClaimsKey contextKey = "adminClaims"
	requestIDKey   contextKey = "requestID"
	agentKeyKey    contextKey = "agentKey"
)

const adminClockSkew = 30 * time.Second

// AdminJWT guards the Dentally sync endpoints with an HMAC-signed JWT. Tokens
// must carry an expiry. An empty secret closes the routes.
func AdminJWT(secret string, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(adminClockSkew),
	)
	key := func(*jwt.Token) (any, error) { return []byte(secret), nil }

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "admin auth disabled"})
				return
			}
			raw, ok := bearerToken(r)
			if !ok {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "missing authorization header"})
				return
			}
			var claims jwt.RegisteredClaims
			if _, err := parser.ParseWithClaims(raw, &claims, key); err != nil {
				detail := "invalid token"
				if errors.Is(err, jwt.ErrTokenExpired) {
					detail = "token expired"
				}
				logger.Warn("admin token rejected", "path", r.URL.Path, "error", err)
				writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": detail})
				return
			}
			logger.Info("admin request", "subject", claims.Subject, "method", r.Method, "path", r.URL.Path)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), adminClaimsKey, claims)))
		})
	}
}

// AdminClaimsFromContext returns the claims AdminJWT accepted.
func AdminClaimsFromContext(ctx context.Context) (jwt.RegisteredClaims, bool) {
	claims, ok := ctx.Value(adminClaimsKey).(jwt.RegisteredClaims)
	return claims, ok
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
