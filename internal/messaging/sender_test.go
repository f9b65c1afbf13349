package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentRequestText(t *testing.T) {
	got := PaymentRequestText("Ada", "Wonder of Wellness", "https://pay.example/x")
	assert.Equal(t, "Hi Ada, thank you for booking your appointment with Wonder of Wellness. Kindly pay on the link below to confirm your appointment: https://pay.example/x", got)
	assert.Contains(t, PaymentRequestText("", "", "u"), "Hi there, thank you for booking your appointment. Kindly pay")
}

func TestClickSendSender_Send(t *testing.T) {
	var got struct {
		Messages []clickSendMessage `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "user", user)
		assert.Equal(t, "key", pass)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"response_code":"SUCCESS","data":{"messages":[{"message_id":"m1","status":"SUCCESS"}]}}`))
	}))
	defer srv.Close()

	s := NewClickSendSender("user", "key", "Clinic", nil).WithEndpoint(srv.URL)
	require.NoError(t, s.Send(context.Background(), SMS{To: "+353871234567", Body: "hello"}))
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "Clinic", got.Messages[0].From)
	assert.Equal(t, "+353871234567", got.Messages[0].To)
	assert.True(t, got.Messages[0].ShortenURLs)
}

func TestClickSendSender_Failures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("mode") == "status" {
			_, _ = w.Write([]byte(`{"data":{"messages":[{"status":"INVALID_RECIPIENT"}]}}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"response_code":"UNAUTHORIZED"}`))
	}))
	defer srv.Close()

	s := NewClickSendSender("user", "key", "", nil).WithEndpoint(srv.URL)
	err := s.Send(context.Background(), SMS{To: "1", Body: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")

	s = NewClickSendSender("user", "key", "", nil).WithEndpoint(srv.URL + "?mode=status")
	err = s.Send(context.Background(), SMS{To: "1", Body: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID_RECIPIENT")

	assert.Error(t, NewClickSendSender("", "", "", nil).Send(context.Background(), SMS{To: "1", Body: "x"}))
	assert.Error(t, s.Send(context.Background(), SMS{To: "1"}))
}

func TestTwilioSender_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2010-04-01/Accounts/AC1/Messages.json", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "+353871234567", r.PostForm.Get("To"))
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM1","status":"queued"}`))
	}))
	defer srv.Close()

	s := NewTwilioSender("AC1", "token", "+15550001111", nil).WithBaseURL(srv.URL)
	s.retry.backoff = func(int) time.Duration { return time.Millisecond }
	require.NoError(t, s.Send(context.Background(), SMS{To: "00353 87 123 4567", Body: "hi"}))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestTwilioSender_NoRetryOnClientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number"}`))
	}))
	defer srv.Close()

	s := NewTwilioSender("AC1", "token", "+15550001111", nil).WithBaseURL(srv.URL)
	s.retry.backoff = func(int) time.Duration { return time.Millisecond }
	err := s.Send(context.Background(), SMS{To: "+1", Body: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "code 21211")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestTwilioSender_NoRetryAfterInternalError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewTwilioSender("AC1", "token", "+15550001111", nil).WithBaseURL(srv.URL)
	s.retry.backoff = func(int) time.Duration { return time.Millisecond }
	require.Error(t, s.Send(context.Background(), SMS{To: "+353871234567", Body: "hi"}))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "a 500 may follow a delivered message")
}

func TestClickSendSender_RetriesRefusedConnection(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	s := NewClickSendSender("user", "key", "", nil).WithEndpoint(endpoint)
	waits := 0
	s.retry.backoff = func(int) time.Duration { waits++; return time.Millisecond }
	err := s.Send(context.Background(), SMS{To: "+353871234567", Body: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clicksend: http")
	assert.Equal(t, 2, waits)
}

type stubSender struct {
	err   error
	calls int
}

func (s *stubSender) Send(context.Context, SMS) error {
	s.calls++
	return s.err
}

func TestFailoverSender(t *testing.T) {
	primary := &stubSender{err: errors.New("down")}
	secondary := &stubSender{}
	f := NewFailoverSender(primary, "a", secondary, "b", nil)
	require.NoError(t, f.Send(context.Background(), SMS{To: "1", Body: "x"}))
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, secondary.calls)

	secondary.err = errors.New("also down")
	assert.EqualError(t, f.Send(context.Background(), SMS{To: "1", Body: "x"}), "also down")
}

func TestBuildSender(t *testing.T) {
	s, name, reason := BuildSender(ProviderSelectionConfig{ClickSendUsername: "u", ClickSendAPIKey: "k"}, nil)
	assert.IsType(t, &ClickSendSender{}, s)
	assert.Equal(t, SMSProviderClickSend, name)
	assert.Empty(t, reason)

	s, name, _ = BuildSender(ProviderSelectionConfig{
		ClickSendUsername: "u", ClickSendAPIKey: "k", TwilioAccountSID: "AC", TwilioAuthToken: "t",
	}, nil)
	assert.IsType(t, &FailoverSender{}, s)
	assert.Equal(t, "clicksend+twilio", name)

	s, _, reason = BuildSender(ProviderSelectionConfig{Preference: "twilio"}, nil)
	assert.Nil(t, s)
	assert.Contains(t, reason, "TWILIO_ACCOUNT_SID missing")

	s, name, _ = BuildSender(ProviderSelectionConfig{Preference: "log"}, nil)
	assert.IsType(t, &LogSender{}, s)
	assert.Equal(t, SMSProviderLog, name)

	s, _, reason = BuildSender(ProviderSelectionConfig{}, nil)
	assert.Nil(t, s)
	assert.Contains(t, reason, "CLICKSEND_USERNAME missing")
}

func TestNormalizeE164(t *testing.T) {
	assert.Equal(t, "+353871234567", NormalizeE164("+353 87 123 4567"))
	assert.Equal(t, "+353871234567", NormalizeE164("00353871234567"))
	assert.Equal(t, "+447700900123", NormalizeE164("447700900123"))
	assert.Equal(t, "", NormalizeE164("  "))
}

func TestClickSendSender_RetriesRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"messages":[{"message_id":"m2","status":"SUCCESS"}]}}`))
	}))
	defer srv.Close()

	s := NewClickSendSender("user", "key", "", nil).WithEndpoint(srv.URL)
	s.retry.backoff = func(int) time.Duration { return time.Millisecond }
	require.NoError(t, s.Send(context.Background(), SMS{To: "+353871234567", Body: "x"}))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRetryPolicyStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := retryPolicy{attempts: 5, backoff: func(int) time.Duration { return time.Hour }}
	go cancel()
	err := p.do(ctx, func(context.Context) (bool, error) {
		calls++
		return true, errors.New("unavailable")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
