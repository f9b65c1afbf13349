package maintenance

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/wolfman30/dental-voice-booking/internal/directory"
	"github.com/wolfman30/dental-voice-booking/internal/store"
)

// MappingRule grants services to practitioners matched by id or full name.
type MappingRule struct {
	Names           []string `json:"names"`
	PractitionerIDs []int    `json:"practitioner_ids"`
	Services        []int    `json:"services"`
}

// Mapping is the service assignment file.
type Mapping struct {
	Rules []MappingRule `json:"rules"`
}

// LoadMapping reads a mapping file. A bare JSON array of rules is accepted too.
func LoadMapping(path string) (Mapping, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Mapping{}, fmt.Errorf("maintenance: read mapping: %w", err)
	}
	return ParseMapping(raw)
}

func ParseMapping(raw []byte) (Mapping, error) {
	var m Mapping
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(raw, &m.Rules); err != nil {
			return Mapping{}, fmt.Errorf("%w: %v", ErrInvalidMapping, err)
		}
	} else if err := json.Unmarshal(raw, &m); err != nil {
		return Mapping{}, fmt.Errorf("%w: %v", ErrInvalidMapping, err)
	}
	if len(m.Rules) == 0 {
		return Mapping{}, fmt.Errorf("%w: no rules", ErrInvalidMapping)
	}
	return m, nil
}

// Assignment is one practitioner whose services changed.
type Assignment struct {
	PractitionerID int    `json:"practitioner_id"`
	Name           string `json:"name"`
	Services       []int  `json:"services"`
}

// AssignServices applies m to the stored practitioners. Practitioners no
// rule matches keep their current services.
func (s *Service) AssignServices(ctx context.Context, m Mapping) ([]Assignment, error) {
	for _, rule := range m.Rules {
		if len(rule.Services) == 0 {
			return nil, fmt.Errorf("%w: rule without services", ErrInvalidMapping)
		}
		for _, id := range rule.Services {
			if _, ok := s.catalog.Get(id); !ok {
				return nil, fmt.Errorf("%w: unknown service %d", ErrInvalidMapping, id)
			}
		}
	}
	records, err := s.ListPractitioners(ctx)
	if err != nil {
		return nil, err
	}

	var changed []Assignment
	bodies := make([]any, 0, len(records))
	for _, rec := range records {
		if granted := m.servicesFor(rec); len(granted) > 0 {
			rec.Services = granted
			changed = append(changed, Assignment{PractitionerID: rec.ID, Name: rec.DisplayName(), Services: granted})
		}
		bodies = append(bodies, rec)
	}
	if len(changed) == 0 {
		return nil, nil
	}
	if _, err := store.Replace(ctx, s.store, store.Practitioners, nil, bodies); err != nil {
		return nil, fmt.Errorf("maintenance: save practitioners: %w", err)
	}
	for _, a := range changed {
		s.logger.Info("services assigned", "practitioner_id", a.PractitionerID, "name", a.Name, "services", a.Services)
	}
	return changed, nil
}

func (m Mapping) servicesFor(rec directory.Record) []int {
	name := normalizeName(rec.DisplayName())
	set := map[int]bool{}
	for _, rule := range m.Rules {
		if !rule.matches(rec.ID, name) {
			continue
		}
		for _, id := range rule.Services {
			set[id] = true
		}
	}
	out := make([]int, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

func (r MappingRule) matches(id int, name string) bool {
	for _, pid := range r.PractitionerIDs {
		if pid == id {
			return true
		}
	}
	if name == "" {
		return false
	}
	for _, n := range r.Names {
		if normalizeName(n) == name {
			return true
		}
	}
	return false
}

// normalizeName folds case, stray dots and repeated spaces so that
// "Annalea. Staples." matches "Annalea Staples".
func normalizeName(s string) string {
	s = strings.ReplaceAll(strings.ToLower(s), ".", " ")
	return strings.Join(strings.Fields(s), " ")
}
