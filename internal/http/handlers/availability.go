package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/dental-voice-booking/internal/availability"
	"github.com/wolfman30/dental-voice-booking/internal/catalog"
	"github.com/wolfman30/dental-voice-booking/internal/extraction"
	"github.com/wolfman30/dental-voice-booking/pkg/logging"
)

const spokenLayout = "Monday 2 January 2006 at 15:04"

// SlotFinder pairs slots for an ordered list of services.
type SlotFinder interface {
	Find(ctx context.Context, serviceIDs []int, requestedStart time.Time) (availability.FindResult, error)
}

// AvailabilityHandler answers the agent's "when can I book" question.
type AvailabilityHandler struct {
	finder  SlotFinder
	catalog *catalog.Catalog
	loc     *time.Location
	now     func() time.Time
	logger  *logging.Logger
}

func NewAvailabilityHandler(finder SlotFinder, cat *catalog.Catalog, loc *time.Location, logger *logging.Logger) *AvailabilityHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if cat == nil {
		cat = catalog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &AvailabilityHandler{finder: finder, catalog: cat, loc: loc, now: time.Now, logger: logger}
}

type availabilityRequest struct {
	StartTime  string               `json:"start_time"`
	ServiceID  extraction.FlexInt   `json:"service_id"`
	ServiceIDs []extraction.FlexInt `json:"service_ids"`
	Reason     string               `json:"reason"`
	// Duration is accepted for older agents; catalog durations win.
	Duration extraction.FlexInt `json:"duration"`
}

func (r availabilityRequest) serviceIDs() []int {
	var ids []int
	for _, id := range r.ServiceIDs {
		if id > 0 {
			ids = append(ids, int(id))
		}
	}
	if len(ids) == 0 && r.ServiceID > 0 {
		ids = append(ids, int(r.ServiceID))
	}
	if len(ids) == 0 && r.Reason != "" {
		ids, _ = catalog.ParseReason(r.Reason)
	}
	return ids
}

// SlotView is one bookable service slot as returned to callers.
type SlotView struct {
	ServiceID        int       `json:"service_id"`
	ServiceName      string    `json:"service_name"`
	PractitionerID   int       `json:"practitioner_id"`
	PractitionerName string    `json:"practitioner_name"`
	StartTime        time.Time `json:"start_time"`
	FinishTime       time.Time `json:"finish_time"`
}

// AvailabilityResponse is the found-slot answer.
type AvailabilityResponse struct {
	PractitionerID   int          `json:"practitioner_id"`
	PractitionerName string       `json:"practitioner_name"`
	ExactMatch       bool         `json:"exact_match"`
	AvailableSlots   []SlotView   `json:"available_slots"`
	Alternatives     [][]SlotView `json:"alternatives"`
	Services         []int        `json:"services"`
	Message          string       `json:"message"`
}

// FindAvailable handles POST /api/v1/practitioners/available.
func (h *AvailabilityHandler) FindAvailable(w http.ResponseWriter, r *http.Request) {
	var req availabilityRequest
	if err := decodeBody(w, r, &req); err != nil {
		jsonError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	ids := req.serviceIDs()
	if strings.TrimSpace(req.StartTime) == "" || len(ids) == 0 {
		jsonError(w, "Missing required fields: start_time, service_id", http.StatusBadRequest)
		return
	}
	start, ok := extraction.ParseTime(req.StartTime, h.loc)
	if !ok {
		jsonError(w, "Invalid start_time format", http.StatusBadRequest)
		return
	}
	if !start.After(h.now()) {
		jsonError(w, "start_time must be in the future", http.StatusBadRequest)
		return
	}
	for _, id := range ids {
		svc, ok := h.catalog.Get(id)
		if !ok {
			jsonError(w, fmt.Sprintf("Unknown service_id %d", id), http.StatusBadRequest)
			return
		}
		if req.Duration > 0 && int(req.Duration) != svc.DurationMinutes {
			h.logger.Debug("ignoring requested duration", "service_id", id, "requested", int(req.Duration), "catalog", svc.DurationMinutes)
		}
	}

	res, err := h.finder.Find(r.Context(), ids, start)
	if err != nil {
		h.logger.Error("availability search failed", "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if res.Primary == nil {
		h.logger.Info("no availability", "services", ids, "status", string(res.Status), "message", res.Message)
		writeJSON(w, http.StatusNotFound, map[string]any{
			"detail":                 "No available slots for any practitioner in the requested window.",
			"status":                 res.Status,
			"unavailable_service_id": res.UnavailableServiceID,
			"message":                res.Message,
		})
		return
	}

	primary := h.sequenceView(*res.Primary, res.PractitionerNames)
	resp := AvailabilityResponse{
		PractitionerID:   primary[0].PractitionerID,
		PractitionerName: primary[0].PractitionerName,
		ExactMatch:       res.ExactMatch,
		AvailableSlots:   primary,
		Alternatives:     make([][]SlotView, 0, len(res.Alternates)),
		Services:         ids,
	}
	for _, alt := range res.Alternates {
		resp.Alternatives = append(resp.Alternatives, h.sequenceView(alt, res.PractitionerNames))
	}
	resp.Message = describeSequence(primary, res.ExactMatch)
	writeJSON(w, http.StatusOK, resp)
}

func (h *AvailabilityHandler) sequenceView(seq availability.SlotSequence, names map[int]string) []SlotView {
	return sequenceView(h.catalog, h.loc, seq, names)
}

func sequenceView(cat *catalog.Catalog, loc *time.Location, seq availability.SlotSequence, names map[int]string) []SlotView {
	out := make([]SlotView, 0, len(seq.Steps))
	for _, step := range seq.Steps {
		name := ""
		if svc, ok := cat.Get(step.ServiceID); ok {
			name = svc.Name
		}
		out = append(out, SlotView{
			ServiceID:        step.ServiceID,
			ServiceName:      name,
			PractitionerID:   step.Slot.PractitionerID,
			PractitionerName: names[step.Slot.PractitionerID],
			StartTime:        step.Slot.Start.In(loc),
			FinishTime:       step.Slot.Finish.In(loc),
		})
	}
	return out
}

// describeSequence renders a sentence the agent can read back.
func describeSequence(slots []SlotView, exact bool) string {
	parts := make([]string, 0, len(slots))
	for _, s := range slots {
		who := s.PractitionerName
		if who == "" {
			who = fmt.Sprintf("practitioner %d", s.PractitionerID)
		}
		parts = append(parts, fmt.Sprintf("%s with %s on %s", s.ServiceName, who, s.StartTime.Format(spokenLayout)))
	}
	prefix := "The closest available time is "
	if exact {
		prefix = "That time is available: "
	}
	return prefix + strings.Join(parts, ", then ") + "."
}
