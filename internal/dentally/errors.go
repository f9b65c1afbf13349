package dentally

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrConflict is matched by API errors where Dentally rejected a write
// because the slot is no longer bookable.
var ErrConflict = errors.New("dentally: scheduling conflict")

// APIError is a non-2xx response from Dentally.
type APIError struct {
	StatusCode int
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dentally API returned %d for %s: %s", e.StatusCode, e.Path, e.Body)
}

// Is lets errors.Is(err, ErrConflict) match clash responses.
func (e *APIError) Is(target error) bool {
	if target != ErrConflict {
		return false
	}
	return e.StatusCode == http.StatusConflict || e.StatusCode == http.StatusUnprocessableEntity
}
