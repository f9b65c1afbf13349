package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/dental-voice-booking/pkg/logging"
)

var clickSendTracer = otel.Tracer("dentalbridge.internal.messaging.clicksend")

const defaultClickSendURL = "https://rest.clicksend.com/v3/sms/send"

// ClickSendSender posts SMS via the ClickSend v3 REST API.
type ClickSendSender struct {
	username   string
	apiKey     string
	from       string
	endpoint   string
	httpClient *http.Client
	retry      retryPolicy
	logger     *logging.Logger
}

func NewClickSendSender(username, apiKey, defaultFrom string, logger *logging.Logger) *ClickSendSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &ClickSendSender{
		username:   username,
		apiKey:     apiKey,
		from:       defaultFrom,
		endpoint:   defaultClickSendURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry:      defaultRetryPolicy(),
		logger:     logger,
	}
}

// WithEndpoint overrides the send URL (for testing).
func (s *ClickSendSender) WithEndpoint(endpoint string) *ClickSendSender {
	if endpoint != "" {
		s.endpoint = endpoint
	}
	return s
}

type clickSendMessage struct {
	From        string `json:"from,omitempty"`
	Body        string `json:"body"`
	To          string `json:"to"`
	ShortenURLs bool   `json:"shorten_urls"`
}

type clickSendResponse struct {
	ResponseCode string `json:"response_code"`
	ResponseMsg  string `json:"response_msg"`
	Data         struct {
		Messages []struct {
			MessageID string `json:"message_id"`
			Status    string `json:"status"`
		} `json:"messages"`
	} `json:"data"`
}

func (s *ClickSendSender) Send(ctx context.Context, msg SMS) error {
	if s.username == "" || s.apiKey == "" {
		return errors.New("messaging: clicksend credentials missing")
	}
	if err := msg.validate(); err != nil {
		return err
	}
	if msg.From == "" {
		msg.From = s.from
	}

	ctx, span := clickSendTracer.Start(ctx, "messaging.clicksend.send")
	defer span.End()
	span.SetAttributes(attribute.String("dentalbridge.to", msg.To))

	payload, err := json.Marshal(map[string][]clickSendMessage{
		"messages": {{From: msg.From, Body: msg.Body, To: NormalizeE164(msg.To), ShortenURLs: true}},
	})
	if err != nil {
		return fmt.Errorf("messaging: clicksend: encode: %w", err)
	}

	var messageID string
	err = s.retry.do(ctx, func(ctx context.Context) (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
		if err != nil {
			return false, fmt.Errorf("messaging: clicksend: request: %w", err)
		}
		req.SetBasicAuth(s.username, s.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return unsent(ctx, err), fmt.Errorf("messaging: clicksend: http: %w", err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode != http.StatusOK {
			return transientStatus(resp.StatusCode), fmt.Errorf("messaging: clicksend: status %d: %s", resp.StatusCode, truncate(string(body), 300))
		}
		var parsed clickSendResponse
		if json.Unmarshal(body, &parsed) != nil {
			return false, nil
		}
		// ClickSend answers 200 with a per-message status.
		for _, m := range parsed.Data.Messages {
			if m.Status != "" && !strings.EqualFold(m.Status, "SUCCESS") {
				return false, fmt.Errorf("messaging: clicksend: message status %s", m.Status)
			}
			messageID = m.MessageID
		}
		return false, nil
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	s.logger.Info("payment sms sent", "provider", SMSProviderClickSend, "to", msg.To, "message_id", messageID)
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
