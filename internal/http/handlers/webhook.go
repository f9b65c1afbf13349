package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/dental-voice-booking/internal/archive"
	"github.com/wolfman30/dental-voice-booking/internal/booking"
	"github.com/wolfman30/dental-voice-booking/internal/catalog"
	"github.com/wolfman30/dental-voice-booking/internal/directory"
	"github.com/wolfman30/dental-voice-booking/internal/events"
	"github.com/wolfman30/dental-voice-booking/internal/extraction"
	"github.com/wolfman30/dental-voice-booking/internal/observability/metrics"
	"github.com/wolfman30/dental-voice-booking/internal/voiceagent"
	"github.com/wolfman30/dental-voice-booking/pkg/logging"
)

const (
	// EventPostCallTranscription is the only ElevenLabs event that books.
	EventPostCallTranscription = "post_call_transcription"
	eventDirect                = "direct"
	dedupeProvider             = "elevenlabs"
)

// IntentExtractor turns a call transcript into booking details.
type IntentExtractor interface {
	Extract(ctx context.Context, transcript string, practitioners []directory.Practitioner) (*extraction.Intent, error)
}

// VoiceChannel pushes messages into a live agent conversation.
type VoiceChannel interface {
	Start(conversationID string)
	Send(ctx context.Context, conversationID string, msg any) error
}

// TranscriptArchiver keeps a copy of each received call transcript.
type TranscriptArchiver interface {
	ArchiveTranscript(ctx context.Context, t archive.Transcript) (string, error)
}

type WebhookHandlerConfig struct {
	Extractor IntentExtractor
	Archive   TranscriptArchiver
	Directory PractitionerLister
	Finder    SlotFinder
	Booker    Booker
	Dedupe    events.Deduper
	Voice     VoiceChannel
	Catalog   *catalog.Catalog
	Location  *time.Location
	AgentID   string
	Metrics   *metrics.BookingMetrics
	Logger    *logging.Logger
}

// WebhookHandler books from ElevenLabs post-call transcripts and from direct
// extracted-intent posts.
type WebhookHandler struct {
	cfg WebhookHandlerConfig
	now func() time.Time
}

func NewWebhookHandler(cfg WebhookHandlerConfig) *WebhookHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Catalog == nil {
		cfg.Catalog = catalog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Dedupe == nil {
		cfg.Dedupe = events.NewMemoryDeduper(events.DefaultTTL)
	}
	return &WebhookHandler{cfg: cfg, now: time.Now}
}

type webhookEvent struct {
	Type           string `json:"type"`
	EventTimestamp int64  `json:"event_timestamp"`
	Data           struct {
		AgentID        string          `json:"agent_id"`
		ConversationID string          `json:"conversation_id"`
		Transcript     json.RawMessage `json:"transcript"`
	} `json:"data"`
}

type directCall struct {
	extraction.Intent
	ConversationID string `json:"conversation_id"`
}

func (d *directCall) valid() bool {
	return strings.TrimSpace(d.PatientFirstName) != "" && d.BookedPractitionerID > 0 &&
		strings.TrimSpace(d.AppointmentStartTime) != ""
}

// Handle serves POST /api/v1/webhooks/elevenlabs and /api/v1/create-appointment.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"received": false, "error": "Invalid payload format"})
		return
	}
	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.cfg.Metrics.ObserveWebhook("unknown", "invalid")
		writeJSON(w, http.StatusBadRequest, map[string]any{"received": false, "error": "Invalid payload format"})
		return
	}

	if event.Type == EventPostCallTranscription {
		h.handleTranscript(w, r, event)
		return
	}

	var direct directCall
	if err := json.Unmarshal(body, &direct); err == nil && direct.valid() {
		h.cfg.Logger.Info("webhook: direct booking call", "conversation_id", direct.ConversationID)
		h.bookIntent(w, r.Context(), eventDirect, direct.ConversationID, &direct.Intent, false)
		return
	}

	if event.Type != "" {
		h.cfg.Logger.Debug("webhook: ignoring event", "type", event.Type)
		h.cfg.Metrics.ObserveWebhook(event.Type, "ignored")
		writeJSON(w, http.StatusOK, map[string]any{"received": true})
		return
	}
	h.cfg.Metrics.ObserveWebhook("unknown", "invalid")
	writeJSON(w, http.StatusBadRequest, map[string]any{"received": false, "error": "Invalid payload format"})
}

func (h *WebhookHandler) handleTranscript(w http.ResponseWriter, r *http.Request, event webhookEvent) {
	ctx := r.Context()
	convID := strings.TrimSpace(event.Data.ConversationID)
	logger := h.cfg.Logger.With("conversation_id", convID)

	if h.cfg.AgentID != "" && event.Data.AgentID != h.cfg.AgentID {
		logger.Info("webhook: agent id mismatch", "agent_id", event.Data.AgentID)
		h.cfg.Metrics.ObserveWebhook(event.Type, "ignored")
		writeJSON(w, http.StatusOK, map[string]any{"received": true})
		return
	}

	claimed := false
	if convID != "" {
		first, err := h.cfg.Dedupe.MarkProcessed(ctx, dedupeProvider, convID)
		claimed = err == nil && first
		if err != nil {
			logger.Warn("webhook: dedupe check failed, processing anyway", "error", err)
		} else if !first {
			logger.Info("webhook: duplicate delivery")
			h.cfg.Metrics.ObserveWebhook(event.Type, "duplicate")
			writeJSON(w, http.StatusOK, map[string]any{"received": true, "duplicate": true})
			return
		}
		if h.cfg.Voice != nil {
			h.cfg.Voice.Start(convID)
		}
	}

	transcript, err := extraction.FlattenTranscript(event.Data.Transcript)
	if err != nil {
		logger.Warn("webhook: unreadable transcript", "error", err)
		h.cfg.Metrics.ObserveWebhook(event.Type, "no_intent")
		writeJSON(w, http.StatusOK, map[string]any{"received": true})
		return
	}
	h.archiveTranscript(ctx, logger, event, transcript)

	if h.cfg.Extractor == nil {
		logger.Warn("webhook: transcript extraction not configured")
		h.cfg.Metrics.ObserveWebhook(event.Type, "ignored")
		writeJSON(w, http.StatusOK, map[string]any{"received": true})
		return
	}
	var practitioners []directory.Practitioner
	if h.cfg.Directory != nil {
		practitioners = h.cfg.Directory.ActivePractitioners(ctx)
	}
	intent, err := h.cfg.Extractor.Extract(ctx, transcript, practitioners)
	if errors.Is(err, extraction.ErrNoIntent) {
		logger.Info("webhook: no booking intent in transcript")
		h.cfg.Metrics.ObserveWebhook(event.Type, "no_intent")
		writeJSON(w, http.StatusOK, map[string]any{"received": true})
		return
	}
	if err != nil {
		logger.Error("webhook: extraction failed", "error", err)
		if claimed {
			h.release(ctx, logger, convID)
		}
		h.cfg.Metrics.ObserveWebhook(event.Type, "error")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"received": false, "appointment": nil, "error": err.Error()})
		return
	}
	h.bookIntent(w, ctx, event.Type, convID, intent, claimed)
}

// release drops the dedupe claim after a server-side failure so the
// provider's retry is processed instead of answered as a duplicate.
func (h *WebhookHandler) release(ctx context.Context, logger *logging.Logger, convID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := h.cfg.Dedupe.Release(ctx, dedupeProvider, convID); err != nil {
		logger.Warn("webhook: dedupe release failed, retry will be treated as duplicate", "error", err)
	}
}

func (h *WebhookHandler) bookIntent(w http.ResponseWriter, ctx context.Context, eventType, convID string, intent *extraction.Intent, claimed bool) {
	logger := h.cfg.Logger.With("conversation_id", convID)
	req, err := h.requestFromIntent(ctx, convID, intent)
	if err != nil {
		if failed := h.writeUnbookable(w, logger, eventType, err); failed && claimed {
			h.release(ctx, logger, convID)
		}
		return
	}
	out, err := h.cfg.Booker.Book(ctx, req)
	if err != nil {
		if errors.Is(err, booking.ErrValidation) || errors.Is(err, booking.ErrDependencyUnmet) {
			h.writeUnbookable(w, logger, eventType, err)
			return
		}
		logger.Error("webhook: booking failed", "error", err)
		if claimed {
			h.release(ctx, logger, convID)
		}
		h.cfg.Metrics.ObserveWebhook(eventType, "error")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"received": false, "appointment": nil, "error": err.Error()})
		return
	}

	resp := newBookingResponse(out)
	if resp.Appointment != nil && convID != "" && h.cfg.Voice != nil {
		h.pushConfirmation(ctx, logger, convID, out)
	}
	h.cfg.Metrics.ObserveWebhook(eventType, out.Result())
	writeJSON(w, http.StatusOK, map[string]any{"received": true, "appointment": resp.Appointment, "booking": resp})
}

// requestFromIntent books the named slot when the intent carries one and
// otherwise pairs slots anchored at the requested time.
func (h *WebhookHandler) requestFromIntent(ctx context.Context, convID string, intent *extraction.Intent) (booking.Request, error) {
	req := booking.Request{Patient: intent.Patient(), ConversationID: convID}
	ids := intent.ServiceIDs(h.cfg.Catalog)
	if len(ids) == 0 {
		return req, badRequest("no service could be identified from the call")
	}
	if intent.HasSlot(h.cfg.Catalog) {
		start, _ := intent.RequestedStart(h.cfg.Location)
		finish, _ := intent.RequestedFinish(h.cfg.Location)
		req.Services = []booking.ServiceBooking{{
			ServiceID:      ids[0],
			PractitionerID: int(intent.BookedPractitionerID),
			Start:          start,
			Finish:         finish,
			Reason:         h.cfg.Catalog.FormatReason(ids[0]),
		}}
		return req, nil
	}
	start, ok := intent.RequestedStart(h.cfg.Location)
	if !ok || start.Before(h.now()) {
		start = h.now()
	}
	services, err := pairServices(ctx, h.cfg.Finder, h.cfg.Catalog, ids, start)
	if err != nil {
		return req, err
	}
	req.Services = services
	return req, nil
}

// writeUnbookable reports true when err was a server failure rather than a
// call that cannot be booked.
func (h *WebhookHandler) writeUnbookable(w http.ResponseWriter, logger *logging.Logger, eventType string, err error) bool {
	var reqErr *requestError
	detail := err.Error()
	switch {
	case errors.As(err, &reqErr):
		detail = reqErr.detail
	case errors.Is(err, booking.ErrValidation):
		detail = trimSentinel(err, booking.ErrValidation)
	case errors.Is(err, booking.ErrDependencyUnmet):
		detail = trimSentinel(err, booking.ErrDependencyUnmet)
	default:
		logger.Error("webhook: could not prepare booking", "error", err)
		h.cfg.Metrics.ObserveWebhook(eventType, "error")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"received": false, "appointment": nil, "error": err.Error()})
		return true
	}
	logger.Info("webhook: call could not be booked", "reason", detail)
	h.cfg.Metrics.ObserveWebhook(eventType, "unbookable")
	writeJSON(w, http.StatusOK, map[string]any{"received": true, "appointment": nil, "error": detail})
	return false
}

func (h *WebhookHandler) pushConfirmation(ctx context.Context, logger *logging.Logger, convID string, out *booking.Outcome) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := h.cfg.Voice.Send(ctx, convID, voiceagent.ConfirmationMessage(out)); err != nil {
		logger.Warn("webhook: confirmation push failed", "error", err)
		return
	}
	logger.Info("webhook: confirmation pushed to agent")
}

// archiveTranscript failures never block booking.
func (h *WebhookHandler) archiveTranscript(ctx context.Context, logger *logging.Logger, event webhookEvent, transcript string) {
	if h.cfg.Archive == nil || transcript == "" {
		return
	}
	rec := archive.Transcript{
		ConversationID: strings.TrimSpace(event.Data.ConversationID),
		AgentID:        event.Data.AgentID,
		ReceivedAt:     h.now().UTC(),
		Text:           transcript,
	}
	if event.EventTimestamp > 0 {
		rec.CallEndedAt = time.Unix(event.EventTimestamp, 0).UTC()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := h.cfg.Archive.ArchiveTranscript(ctx, rec); err != nil {
		logger.Warn("webhook: transcript archive failed", "error", err)
	}
}
