package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/dental-voice-booking/internal/store"
	"github.com/wolfman30/dental-voice-booking/pkg/logging"
)

const (
	defaultAppointmentLimit = 100
	maxAppointmentLimit     = 500
)

// AppointmentsHandler reads the local mirror of booked appointments.
type AppointmentsHandler struct {
	store  store.Store
	logger *logging.Logger
}

func NewAppointmentsHandler(s store.Store, logger *logging.Logger) *AppointmentsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AppointmentsHandler{store: s, logger: logger}
}

type appointmentDocument struct {
	ID          string          `json:"id"`
	CreatedAt   time.Time       `json:"created_at"`
	Appointment json.RawMessage `json:"appointment"`
}

func toAppointmentDocument(d store.Document) appointmentDocument {
	return appointmentDocument{ID: d.ID, CreatedAt: d.CreatedAt, Appointment: d.Body}
}

// List handles GET /api/v1/appointments?limit=N.
func (h *AppointmentsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := defaultAppointmentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			jsonError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxAppointmentLimit)
	}
	docs, err := h.store.Find(r.Context(), store.Appointments, nil, limit)
	if err != nil {
		h.logger.Error("list appointments failed", "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	results := make([]appointmentDocument, 0, len(docs))
	for _, d := range docs {
		results = append(results, toAppointmentDocument(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// Get handles GET /api/v1/appointments/{id}.
func (h *AppointmentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := h.store.FindByID(r.Context(), store.Appointments, id)
	if errors.Is(err, store.ErrNotFound) {
		jsonError(w, "Appointment not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("get appointment failed", "error", err, "id", id)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentDocument(*doc))
}
