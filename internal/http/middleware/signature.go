package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/dental-voice-booking/pkg/logging"
)

const maxWebhookBody = 10 << 20

// SignatureConfig controls webhook signature checks.
type SignatureConfig struct {
	Secret  string
	Enabled bool
	// Tolerance bounds the age of a timestamped signature.
	Tolerance time.Duration
	Now       func() time.Time
}

// ElevenLabsSignature verifies webhook deliveries. It accepts the timestamped
// "ElevenLabs-Signature: t=<unix>,v0=<hex>" header, signed over "<t>.<body>",
// and the bare hex "X-ElevenLabs-Signature" header signed over the body.
// When disabled or without a secret every request passes.
func ElevenLabsSignature(cfg SignatureConfig, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = 30 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return func(next http.Handler) http.Handler {
		if !cfg.Enabled || cfg.Secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "unable to read body"})
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			if !verifySignature(cfg, r.Header, body) {
				logger.Warn("webhook signature rejected", "path", r.URL.Path)
				writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid signature"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func verifySignature(cfg SignatureConfig, h http.Header, body []byte) bool {
	if header := h.Get("ElevenLabs-Signature"); header != "" {
		return verifyTimestamped(cfg, header, body)
	}
	if header := strings.TrimSpace(h.Get("X-ElevenLabs-Signature")); header != "" {
		return hmac.Equal([]byte(strings.ToLower(header)), []byte(Sign(cfg.Secret, body)))
	}
	return false
}

func verifyTimestamped(cfg SignatureConfig, header string, body []byte) bool {
	var ts, sig string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v0":
			sig = v
		}
	}
	if ts == "" || sig == "" {
		return false
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	age := cfg.Now().Sub(time.Unix(unix, 0))
	if age > cfg.Tolerance || age < -cfg.Tolerance {
		return false
	}
	payload := append([]byte(ts+"."), body...)
	return hmac.Equal([]byte(strings.ToLower(sig)), []byte(Sign(cfg.Secret, payload)))
}

// Sign returns the lowercase hex HMAC-SHA256 of payload.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
