package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"
)

// AgentKey admits requests whose bearer token is one of keys. Anything else
// gets 403. An empty key list rejects every request.
func AgentKey(keys []string) func(http.Handler) http.Handler {
	digests := make([][sha256.Size]byte, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			digests = append(digests, sha256.Sum256([]byte(k)))
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok || !matchesAny(digests, token) {
				writeJSON(w, http.StatusForbidden, map[string]string{"error": "Unauthorized"})
				return
			}
			ctx := context.WithValue(r.Context(), agentKeyKey, true)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AgentAuthenticated reports whether AgentKey admitted the request.
func AgentAuthenticated(ctx context.Context) bool {
	ok, _ := ctx.Value(agentKeyKey).(bool)
	return ok
}

func matchesAny(digests [][sha256.Size]byte, token string) bool {
	got := sha256.Sum256([]byte(token))
	match := 0
	for _, d := range digests {
		match |= subtle.ConstantTimeCompare(got[:], d[:])
	}
	return match == 1
}
