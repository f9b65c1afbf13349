package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/dental-voice-booking/internal/catalog"
	"github.com/wolfman30/dental-voice-booking/internal/directory"
)

type stubCompleter struct {
	reply  string
	err    error
	prompt Prompt
}

func (s *stubCompleter) Complete(_ context.Context, p Prompt) (string, error) {
	s.prompt = p
	return s.reply, s.err
}

const sampleReply = "```json\n" + `{"patient_first_name":"Ada","patient_last_name":"Lovelace","patient_dob":"1990-01-01",
"patient_phone_number":"+353871234567","patient_address_line_1":"1 Main St","patient_postcode":"D01",
"service_requested":"Biological New Consultation","appointment_start_time":"2026-03-04T10:00:00Z",
"booked_practitioner_id":"148753","appointment_reason":null,"patient_payment_plan_id":null}` + "\n```"

func TestExtract(t *testing.T) {
	llm := &stubCompleter{reply: sampleReply}
	loc, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)
	e := NewExtractor(llm, catalog.Default(), loc, nil)
	e.now = func() time.Time { return time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC) }

	intent, err := e.Extract(context.Background(), "agent: hello\nuser: hi", []directory.Practitioner{{ID: 148753, DisplayName: "Maria Savu"}})
	require.NoError(t, err)
	assert.Equal(t, "Ada", intent.PatientFirstName)
	assert.Equal(t, FlexInt(148753), intent.BookedPractitionerID)
	assert.Equal(t, []int{catalog.BiologicalConsultation}, intent.ServiceIDs(catalog.Default()))
	assert.True(t, intent.HasSlot(catalog.Default()))

	assert.Contains(t, llm.prompt.User, "Maria Savu (148753)")
	assert.Contains(t, llm.prompt.User, "Holistic Hygiene-2 (30 minutes)")
	assert.Contains(t, llm.prompt.User, "2026-03-02T08:00:00Z")
	assert.Contains(t, llm.prompt.User, "user: hi")
	assert.Equal(t, float32(0), llm.prompt.Temperature)
}

func TestExtractErrors(t *testing.T) {
	e := NewExtractor(&stubCompleter{err: errors.New("quota")}, nil, nil, nil)
	_, err := e.Extract(context.Background(), "user: hi", nil)
	assert.ErrorContains(t, err, "quota")

	_, err = e.Extract(context.Background(), "  ", nil)
	assert.ErrorIs(t, err, ErrNoIntent)

	e = NewExtractor(&stubCompleter{reply: "I could not find anything."}, nil, nil, nil)
	_, err = e.Extract(context.Background(), "user: hi", nil)
	assert.ErrorIs(t, err, ErrNoIntent)
}

func TestDecodeIntent(t *testing.T) {
	_, err := DecodeIntent(`{"patient_first_name":null}`)
	assert.ErrorIs(t, err, ErrNoIntent)

	_, err = DecodeIntent(`{"booked_practitioner_id":"abc","patient_first_name":"A"}`)
	assert.ErrorIs(t, err, ErrNoIntent)

	intent, err := DecodeIntent(`Sure! {"patient_first_name":"A","booked_practitioner_id":12.0}`)
	require.NoError(t, err)
	assert.Equal(t, FlexInt(12), intent.BookedPractitionerID)
}

func TestServiceIDs(t *testing.T) {
	cat := catalog.Default()
	tests := []struct {
		name   string
		intent Intent
		want   []int
	}{
		{"reason shim", Intent{AppointmentReason: "Holistic Hygiene-2, Biological New Consultation-1"}, []int{1, 2}},
		{"direct access not hygiene", Intent{ServiceRequested: "holistic hygiene direct access"}, []int{3}},
		{"both by name", Intent{ServiceRequested: "Biological New Consultation and Holistic Hygiene"}, []int{1, 2}},
		{"consultation type", Intent{ConsultationType: "Biological Consultation"}, []int{1}},
		{"nothing", Intent{ServiceRequested: "whitening"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.intent.ServiceIDs(cat))
		})
	}
}

func TestRequestedStartUsesLocation(t *testing.T) {
	loc, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)
	i := Intent{AppointmentStartTime: "2026-07-01T10:00"}
	got, ok := i.RequestedStart(loc)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC), got.UTC())

	_, ok = (&Intent{AppointmentStartTime: "next tuesday"}).RequestedStart(loc)
	assert.False(t, ok)
}

func TestFlattenTranscript(t *testing.T) {
	got, err := FlattenTranscript(json.RawMessage(`[{"role":"agent","message":"Hello"},{"role":"user","message":" "},{"role":"user","message":"Hi"}]`))
	require.NoError(t, err)
	assert.Equal(t, "agent: Hello\nuser: Hi", got)

	got, err = FlattenTranscript(json.RawMessage(`"plain text"`))
	require.NoError(t, err)
	assert.Equal(t, "plain text", got)

	got, err = FlattenTranscript(nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = FlattenTranscript(json.RawMessage(`{"x":1}`))
	assert.Error(t, err)
}

type stubConverse struct {
	in  *bedrockruntime.ConverseInput
	out *bedrockruntime.ConverseOutput
}

func (s *stubConverse) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	s.in = in
	return s.out, nil
}

func TestBedrockClient(t *testing.T) {
	api := &stubConverse{out: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role:    brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: ` {"a":1} `}},
		}},
	}}
	c, err := NewBedrockClient(api, "anthropic.model")
	require.NoError(t, err)
	got, err := c.Complete(context.Background(), Prompt{System: "sys", User: "hi", MaxTokens: 10})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, got)
	assert.Equal(t, "anthropic.model", aws.ToString(api.in.ModelId))
	assert.Len(t, api.in.System, 1)
	assert.Equal(t, int32(10), aws.ToInt32(api.in.InferenceConfig.MaxTokens))

	api.out = &bedrockruntime.ConverseOutput{}
	_, err = c.Complete(context.Background(), Prompt{User: "hi"})
	assert.Error(t, err)

	_, err = NewBedrockClient(nil, "m")
	assert.Error(t, err)
}
