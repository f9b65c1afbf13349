package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

// CORS admits the listed origins with credentials. An empty list, or one
// containing "*", admits any origin without credentials.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	var origins []string
	wildcard := false
	for _, o := range allowedOrigins {
		switch o = strings.TrimSpace(o); o {
		case "":
		case "*":
			wildcard = true
		default:
			origins = append(origins, o)
		}
	}
	if wildcard || len(origins) == 0 {
		origins, wildcard = []string{"*"}, true
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: !wildcard,
		MaxAge:           600,
	})
}
