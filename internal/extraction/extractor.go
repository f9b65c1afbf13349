package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/dental-voice-booking/internal/catalog"
	"github.com/wolfman30/dental-voice-booking/internal/directory"
	"github.com/wolfman30/dental-voice-booking/pkg/logging"
)

var extractionTracer = otel.Tracer("dentalbridge.internal.extraction")

// ErrNoIntent is returned when the model produced nothing usable.
var ErrNoIntent = errors.New("extraction: no booking intent")

const systemPrompt = `You extract appointment booking details from dental clinic phone call transcripts.
Reply with a single JSON object and nothing else. Use null for any field not present in the transcript.`

// Extractor prompts a Completer and decodes the Intent.
type Extractor struct {
	llm     Completer
	catalog *catalog.Catalog
	loc     *time.Location
	now     func() time.Time
	logger  *logging.Logger
}

func NewExtractor(llm Completer, cat *catalog.Catalog, loc *time.Location, logger *logging.Logger) *Extractor {
	if logger == nil {
		logger = logging.Default()
	}
	if cat == nil {
		cat = catalog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Extractor{llm: llm, catalog: cat, loc: loc, now: time.Now, logger: logger}
}

// Extract returns the booking intent described by transcript. practitioners
// lets the model map a spoken name to a practitioner id.
func (e *Extractor) Extract(ctx context.Context, transcript string, practitioners []directory.Practitioner) (*Intent, error) {
	ctx, span := extractionTracer.Start(ctx, "extraction.extract")
	defer span.End()
	span.SetAttributes(attribute.Int("dentalbridge.transcript_len", len(transcript)))

	if strings.TrimSpace(transcript) == "" {
		return nil, ErrNoIntent
	}
	reply, err := e.llm.Complete(ctx, Prompt{
		System:      systemPrompt,
		User:        e.userPrompt(transcript, practitioners),
		MaxTokens:   1024,
		Temperature: 0,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("extraction: complete: %w", err)
	}
	intent, err := DecodeIntent(reply)
	if err != nil {
		e.logger.Warn("extraction: unusable model reply", "error", err, "reply_len", len(reply))
		return nil, err
	}
	return intent, nil
}

func (e *Extractor) userPrompt(transcript string, practitioners []directory.Practitioner) string {
	var b strings.Builder
	now := e.now().In(e.loc)
	fmt.Fprintf(&b, "Current date and time: %s (%s). Resolve relative dates such as \"tomorrow\" against it.\n\n", now.Format(time.RFC3339), e.loc)
	b.WriteString("Extract these fields:\n")
	for _, f := range []string{
		"patient_first_name", "patient_last_name",
		`patient_title (Mr/Mrs/Ms, default "Mr")`,
		"patient_dob (YYYY-MM-DD)", "patient_gender", "patient_email", "patient_phone_number",
		"patient_ethnicity", "patient_address_line_1", "patient_postcode", "patient_payment_plan_id",
		"service_requested",
		"appointment_start_time (ISO 8601 with offset)", "appointment_finish_time (ISO 8601 with offset)",
		"booked_practitioner_id (number, matched from the practitioner list)",
		`appointment_reason (services as "Name-ID" joined by commas)`,
		"consultation_type", `patient_status ("New" or "Existing")`,
	} {
		b.WriteString("- " + f + "\n")
	}
	b.WriteString("\nServices:\n")
	for _, svc := range e.catalog.All() {
		fmt.Fprintf(&b, "- %s-%d (%d minutes)\n", svc.Name, svc.ID, svc.DurationMinutes)
	}
	if len(practitioners) > 0 {
		b.WriteString("\nPractitioners:\n")
		for _, p := range practitioners {
			fmt.Fprintf(&b, "- %s (%d)\n", p.DisplayName, p.ID)
		}
	}
	b.WriteString("\nTranscript:\n")
	b.WriteString(transcript)
	return b.String()
}

// DecodeIntent parses a model reply, tolerating markdown fences and prose
// around the JSON object.
func DecodeIntent(reply string) (*Intent, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return nil, ErrNoIntent
	}
	var intent Intent
	if err := json.Unmarshal([]byte(reply[start:end+1]), &intent); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoIntent, err)
	}
	if strings.TrimSpace(intent.PatientFirstName) == "" && strings.TrimSpace(intent.AppointmentStartTime) == "" {
		return nil, ErrNoIntent
	}
	return &intent, nil
}
