// Package catalog holds the static service definitions offered by the clinic
// and the root/dependent relationships between them.
package catalog

import (
	"fmt"
	"sort"
	"time"
)

// Default service identifiers.
const (
	BiologicalConsultation = 1
	HolisticHygiene        = 2
	HygieneDirectAccess    = 3
)

// Service describes a bookable service and how long it occupies a practitioner.
type Service struct {
	ID              int    `json:"id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	// Requires is the root service that must be booked first (0 when standalone).
	Requires int `json:"requires,omitempty"`
}

// Duration returns the service length.
func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// Catalog is an immutable lookup over service definitions.
type Catalog struct {
	byID  map[int]Service
	order []int
}

// New builds a catalog, rejecting duplicate ids, non-positive durations and
// dependencies on unknown services.
func New(services []Service) (*Catalog, error) {
	c := &Catalog{byID: make(map[int]Service, len(services))}
	for _, svc := range services {
		if svc.ID <= 0 {
			return nil, fmt.Errorf("catalog: invalid service id %d", svc.ID)
		}
		if svc.DurationMinutes <= 0 {
			return nil, fmt.Errorf("catalog: service %d has non-positive duration", svc.ID)
		}
		if _, dup := c.byID[svc.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate service id %d", svc.ID)
		}
		c.byID[svc.ID] = svc
		c.order = append(c.order, svc.ID)
	}
	for _, svc := range services {
		if svc.Requires == 0 {
			continue
		}
		if svc.Requires == svc.ID {
			return nil, fmt.Errorf("catalog: service %d cannot require itself", svc.ID)
		}
		if _, ok := c.byID[svc.Requires]; !ok {
			return nil, fmt.Errorf("catalog: service %d requires unknown service %d", svc.ID, svc.Requires)
		}
	}
	return c, nil
}

// Default returns the clinic's standard service catalog.
func Default() *Catalog {
	c, err := New([]Service{
		{ID: BiologicalConsultation, Name: "Biological New Consultation", DurationMinutes: 60},
		{ID: HolisticHygiene, Name: "Holistic Hygiene", DurationMinutes: 30, Requires: BiologicalConsultation},
		{ID: HygieneDirectAccess, Name: "Holistic Hygiene Direct Access", DurationMinutes: 15},
	})
	if err != nil {
		panic(err)
	}
	return c
}

// Get looks up a service by id.
func (c *Catalog) Get(id int) (Service, bool) {
	svc, ok := c.byID[id]
	return svc, ok
}

// All returns services in definition order.
func (c *Catalog) All() []Service {
	out := make([]Service, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// IsRoot reports whether any other service depends on id.
func (c *Catalog) IsRoot(id int) bool {
	for _, svc := range c.byID {
		if svc.Requires == id {
			return true
		}
	}
	return false
}

// RootOf returns the service that id depends on, or 0.
func (c *Catalog) RootOf(id int) int {
	return c.byID[id].Requires
}

// RootIn returns the first service in ids that is a root for another member of
// ids, or 0 when the set carries no dependency.
func (c *Catalog) RootIn(ids []int) int {
	present := make(map[int]bool, len(ids))
	for _, id := range ids {
		present[id] = true
	}
	for _, id := range ids {
		for dep := range present {
			if c.byID[dep].Requires == id {
				return id
			}
		}
	}
	return 0
}

// Dependents returns the ids in set that require root, sorted.
func (c *Catalog) Dependents(root int, set []int) []int {
	var out []int
	for _, id := range set {
		if c.byID[id].Requires == root {
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}
