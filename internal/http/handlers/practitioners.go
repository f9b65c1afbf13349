package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/wolfman30/dental-voice-booking/internal/directory"
	"github.com/wolfman30/dental-voice-booking/pkg/logging"
)

// PractitionerLister returns the currently active practitioners.
type PractitionerLister interface {
	ActivePractitioners(ctx context.Context) []directory.Practitioner
}

type PractitionersHandler struct {
	directory PractitionerLister
	logger    *logging.Logger
}

func NewPractitionersHandler(dir PractitionerLister, logger *logging.Logger) *PractitionersHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &PractitionersHandler{directory: dir, logger: logger}
}

// List handles GET /api/v1/practitioners with a sentence the agent can speak.
func (h *PractitionersHandler) List(w http.ResponseWriter, r *http.Request) {
	practitioners := h.directory.ActivePractitioners(r.Context())
	if len(practitioners) == 0 {
		writeJSON(w, http.StatusOK, map[string]string{"text": "Sorry, no active practitioners are currently available."})
		return
	}
	parts := make([]string, 0, len(practitioners))
	for _, p := range practitioners {
		parts = append(parts, fmt.Sprintf("%s (%d)", p.DisplayName, p.ID))
	}
	h.logger.Debug("listing practitioners", "count", len(practitioners))
	writeJSON(w, http.StatusOK, map[string]any{
		"text":          "Here are the available practitioners: " + strings.Join(parts, "; "),
		"practitioners": practitioners,
	})
}
