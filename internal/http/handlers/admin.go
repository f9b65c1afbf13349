package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/dental-voice-booking/internal/maintenance"
	"github.com/wolfman30/dental-voice-booking/pkg/logging"
)

// Maintainer runs the Dentally mirror jobs.
type Maintainer interface {
	SyncAppointments(ctx context.Context, date string) (*maintenance.AppointmentSync, error)
	SyncPaymentPlans(ctx context.Context) (*maintenance.PaymentPlanSync, error)
	SyncPractitioners(ctx context.Context) (*maintenance.PractitionerSync, error)
}

// AdminHandler exposes the mirror jobs to operators holding an admin token.
type AdminHandler struct {
	jobs   Maintainer
	logger *logging.Logger
}

func NewAdminHandler(jobs Maintainer, logger *logging.Logger) *AdminHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminHandler{jobs: jobs, logger: logger}
}

// SyncAppointments handles GET /admin/dentally/appointments/{date}.
func (h *AdminHandler) SyncAppointments(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	res, err := h.jobs.SyncAppointments(r.Context(), date)
	switch {
	case errors.Is(err, maintenance.ErrInvalidDate):
		jsonError(w, "Date must be in YYYY-MM-DD format", http.StatusBadRequest)
		return
	case errors.Is(err, maintenance.ErrUpstream):
		h.logger.Error("appointment sync failed", "date", date, "error", err)
		jsonError(w, fmt.Sprintf("Failed to fetch appointments: %v", err), http.StatusBadGateway)
		return
	case err != nil:
		h.logger.Error("appointment sync failed", "date", date, "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"source":  "dentally",
		"date":    res.Date,
		"count":   res.Count,
		"pages":   res.Pages,
		"message": res.Message,
	})
}

// SyncPaymentPlans handles POST /admin/sync/payment-plans.
func (h *AdminHandler) SyncPaymentPlans(w http.ResponseWriter, r *http.Request) {
	res, err := h.jobs.SyncPaymentPlans(r.Context())
	switch {
	case errors.Is(err, maintenance.ErrNoPaymentPlans):
		jsonError(w, "No payment plans found in API response", http.StatusNotFound)
		return
	case errors.Is(err, maintenance.ErrUpstream):
		h.logger.Error("payment plan sync failed", "error", err)
		jsonError(w, fmt.Sprintf("Failed to fetch payment plans: %v", err), http.StatusBadGateway)
		return
	case err != nil:
		h.logger.Error("payment plan sync failed", "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"source":       "dentally",
		"message":      res.Message,
		"stored_count": res.Count,
	})
}

// SyncPractitioners handles POST /admin/sync/practitioners.
func (h *AdminHandler) SyncPractitioners(w http.ResponseWriter, r *http.Request) {
	res, err := h.jobs.SyncPractitioners(r.Context())
	switch {
	case errors.Is(err, maintenance.ErrNoPractitioners):
		jsonError(w, "No practitioners found in API response", http.StatusNotFound)
		return
	case errors.Is(err, maintenance.ErrUpstream):
		h.logger.Error("practitioner sync failed", "error", err)
		jsonError(w, fmt.Sprintf("Failed to fetch practitioners: %v", err), http.StatusBadGateway)
		return
	case err != nil:
		h.logger.Error("practitioner sync failed", "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"source":             "dentally",
		"message":            fmt.Sprintf("Synced %d practitioners (%d active).", res.Fetched, res.Active),
		"fetched":            res.Fetched,
		"active":             res.Active,
		"preserved_mappings": res.Preserved,
	})
}
