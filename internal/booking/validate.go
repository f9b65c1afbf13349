package booking

import (
	"fmt"
	"strings"

	"github.com/wolfman30/dental-voice-booking/internal/catalog"
)

// Validate checks patient fields, resolves missing finish times and enforces
// root-before-dependent ordering. It returns the normalized service list.
func Validate(cat *catalog.Catalog, req Request) ([]ServiceBooking, error) {
	var missing []string
	p := req.Patient
	for _, f := range []struct{ name, value string }{
		{"first_name", p.FirstName},
		{"last_name", p.LastName},
		{"date_of_birth", p.DateOfBirth},
		{"address_line_1", p.AddressLine1},
		{"postcode", p.Postcode},
		{"mobile_phone", p.MobilePhone},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required patient fields: %s", ErrValidation, strings.Join(missing, ", "))
	}
	if len(req.Services) == 0 {
		return nil, fmt.Errorf("%w: at least one appointment is required", ErrValidation)
	}
	if req.TotalOverride != nil && *req.TotalOverride < 0 {
		return nil, fmt.Errorf("%w: total_payment must not be negative", ErrValidation)
	}

	services := make([]ServiceBooking, len(req.Services))
	seen := map[int]bool{}
	for i, s := range req.Services {
		svc, ok := cat.Get(s.ServiceID)
		if !ok {
			return nil, fmt.Errorf("%w: unknown service_id %d", ErrValidation, s.ServiceID)
		}
		if seen[s.ServiceID] {
			return nil, fmt.Errorf("%w: service_id %d listed twice", ErrValidation, s.ServiceID)
		}
		seen[s.ServiceID] = true
		if s.PractitionerID <= 0 {
			return nil, fmt.Errorf("%w: practitioner_id required for service %d", ErrValidation, s.ServiceID)
		}
		if s.Start.IsZero() {
			return nil, fmt.Errorf("%w: start_time required for service %d", ErrValidation, s.ServiceID)
		}
		if s.Finish.IsZero() {
			s.Finish = s.Start.Add(svc.Duration())
		}
		if !s.Finish.After(s.Start) {
			return nil, fmt.Errorf("%w: finish_time must be after start_time for service %d", ErrValidation, s.ServiceID)
		}
		services[i] = s
	}

	byID := make(map[int]ServiceBooking, len(services))
	for _, s := range services {
		byID[s.ServiceID] = s
	}
	for _, s := range services {
		rootID := cat.RootOf(s.ServiceID)
		if rootID == 0 {
			continue
		}
		dep, _ := cat.Get(s.ServiceID)
		root, _ := cat.Get(rootID)
		rb, ok := byID[rootID]
		if !ok {
			return nil, fmt.Errorf("%w: %s requires %s to be booked in the same request", ErrDependencyUnmet, dep.Name, root.Name)
		}
		if !rb.Start.Before(s.Start) {
			return nil, fmt.Errorf("%w: %s must start before %s", ErrDependencyUnmet, root.Name, dep.Name)
		}
	}
	return services, nil
}
