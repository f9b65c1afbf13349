package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSendGridSenderRequiresKey(t *testing.T) {
	assert.Nil(t, NewSendGridSender(SendGridConfig{FromEmail: "desk@clinic.test"}, nil))

	s := NewSendGridSender(SendGridConfig{APIKey: "k", FromEmail: "desk@clinic.test"}, nil)
	require.NotNil(t, s)
	assert.Equal(t, defaultSenderName, s.from.Name)
}

func TestSendGridSenderAddressesAllRecipients(t *testing.T) {
	var payload struct {
		Subject          string `json:"subject"`
		Personalizations []struct {
			To []struct {
				Email string `json:"email"`
			} `json:"to"`
		} `json:"personalizations"`
		ReplyTo struct {
			Email string `json:"email"`
		} `json:"reply_to"`
		Content []struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		} `json:"content"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		assert.Equal(t, "Bearer sg-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewSendGridSender(SendGridConfig{APIKey: "sg-key", FromEmail: "bot@clinic.test", Host: srv.URL}, nil)
	err := s.Send(context.Background(), Email{
		To:      []string{"desk@clinic.test", "owner@clinic.test"},
		ReplyTo: "ada@example.com",
		Subject: "New booking",
		Text:    "Patient: Ada",
	})
	require.NoError(t, err)

	assert.Equal(t, "New booking", payload.Subject)
	require.Len(t, payload.Personalizations, 1)
	require.Len(t, payload.Personalizations[0].To, 2)
	assert.Equal(t, "owner@clinic.test", payload.Personalizations[0].To[1].Email)
	assert.Equal(t, "ada@example.com", payload.ReplyTo.Email)
	require.Len(t, payload.Content, 2)
	assert.Equal(t, "text/plain", payload.Content[0].Type)
	assert.Equal(t, "Patient: Ada", payload.Content[1].Value)
}

func TestSendGridSenderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	s := NewSendGridSender(SendGridConfig{APIKey: "sg-key", FromEmail: "bot@clinic.test", Host: srv.URL}, nil)
	assert.ErrorContains(t, s.Send(context.Background(), Email{To: []string{"desk@clinic.test"}}), "status 403")
	assert.ErrorIs(t, s.Send(context.Background(), Email{}), errNoRecipients)

	var unset *SendGridSender
	assert.Error(t, unset.Send(context.Background(), Email{To: []string{"a@b.c"}}))
}

type fakeSES struct {
	in  *sesv2.SendEmailInput
	err error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESSenderSend(t *testing.T) {
	api := &fakeSES{}
	s := NewSESSender(api, "bot@clinic.test", "Clinic", nil)
	err := s.Send(context.Background(), Email{
		To:      []string{"desk@clinic.test", "owner@clinic.test"},
		ReplyTo: "ada@example.com",
		Subject: "S",
		Text:    "B",
	})
	require.NoError(t, err)

	assert.Equal(t, "Clinic <bot@clinic.test>", aws.ToString(api.in.FromEmailAddress))
	assert.Equal(t, []string{"desk@clinic.test", "owner@clinic.test"}, api.in.Destination.ToAddresses)
	assert.Equal(t, []string{"ada@example.com"}, api.in.ReplyToAddresses)
	assert.Equal(t, "B", aws.ToString(api.in.Content.Simple.Body.Text.Data))
	assert.Equal(t, "B", aws.ToString(api.in.Content.Simple.Body.Html.Data), "html falls back to text")

	api.err = errors.New("throttled")
	assert.ErrorContains(t, s.Send(context.Background(), Email{To: []string{"x@y.z"}}), "throttled")
	assert.ErrorIs(t, s.Send(context.Background(), Email{}), errNoRecipients)
	assert.Nil(t, NewSESSender(nil, "", "", nil))
}
