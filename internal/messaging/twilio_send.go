package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/dental-voice-booking/pkg/logging"
)

var twilioTracer = otel.Tracer("dentalbridge.internal.messaging.twilio")

const defaultTwilioURL = "https://api.twilio.com"

// TwilioSender sends the payment SMS through the Twilio Messages API.
type TwilioSender struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	httpClient *http.Client
	retry      retryPolicy
	logger     *logging.Logger
}

func NewTwilioSender(accountSID, authToken, defaultFrom string, logger *logging.Logger) *TwilioSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &TwilioSender{
		accountSID: accountSID,
		authToken:  authToken,
		from:       defaultFrom,
		baseURL:    defaultTwilioURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry:      defaultRetryPolicy(),
		logger:     logger,
	}
}

// WithBaseURL points the sender at another API host.
func (s *TwilioSender) WithBaseURL(baseURL string) *TwilioSender {
	if baseURL != "" {
		s.baseURL = strings.TrimRight(baseURL, "/")
	}
	return s
}

func (s *TwilioSender) Send(ctx context.Context, msg SMS) error {
	if s.accountSID == "" || s.authToken == "" {
		return errors.New("messaging: twilio: credentials missing")
	}
	if err := msg.validate(); err != nil {
		return err
	}
	if msg.From == "" {
		msg.From = s.from
	}
	if msg.From == "" {
		return errors.New("messaging: twilio: sender number required")
	}

	ctx, span := twilioTracer.Start(ctx, "messaging.twilio.send")
	defer span.End()
	span.SetAttributes(attribute.String("dentalbridge.to", msg.To))

	form := url.Values{
		"To":   {NormalizeE164(msg.To)},
		"From": {msg.From},
		"Body": {msg.Body},
	}.Encode()
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, url.PathEscape(s.accountSID))

	var sid string
	err := s.retry.do(ctx, func(ctx context.Context) (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form))
		if err != nil {
			return false, fmt.Errorf("messaging: twilio: request: %w", err)
		}
		req.SetBasicAuth(s.accountSID, s.authToken)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return unsent(ctx, err), fmt.Errorf("messaging: twilio: http: %w", err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode/100 != 2 {
			return transientStatus(resp.StatusCode), fmt.Errorf("messaging: twilio: %s", twilioError(resp.StatusCode, body))
		}
		var ok struct {
			SID string `json:"sid"`
		}
		_ = json.Unmarshal(body, &ok)
		sid = ok.SID
		return false, nil
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	s.logger.Info("payment sms sent", "provider", SMSProviderTwilio, "to", msg.To, "sid", sid)
	return nil
}

func twilioError(status int, body []byte) string {
	var apiErr struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	trimmed := strings.TrimSpace(string(body))
	switch {
	case trimmed == "":
		return fmt.Sprintf("status %d", status)
	case json.Unmarshal([]byte(trimmed), &apiErr) == nil && apiErr.Message != "":
		if apiErr.Code != 0 {
			return fmt.Sprintf("status %d code %d: %s", status, apiErr.Code, apiErr.Message)
		}
		return fmt.Sprintf("status %d: %s", status, apiErr.Message)
	default:
		return fmt.Sprintf("status %d: %s", status, truncate(trimmed, 300))
	}
}
