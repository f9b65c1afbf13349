package catalog

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseReason recovers service ids from a legacy free-text reason such as
// "Biological New Consultation-1, Holistic Hygiene-2". Only the trailing
// number after the last dash of each comma separated part is significant.
func ParseReason(reason string) ([]int, error) {
	var ids []int
	for _, part := range strings.Split(reason, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx := strings.LastIndex(part, "-")
		if idx < 0 || idx == len(part)-1 {
			return nil, fmt.Errorf("catalog: reason %q has no service id", part)
		}
		id, err := strconv.Atoi(strings.TrimSpace(part[idx+1:]))
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("catalog: reason %q has invalid service id", part)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("catalog: empty reason")
	}
	return ids, nil
}

// FormatReason renders services in the legacy "Name-ID" form Dentally stores
// as the appointment reason.
func (c *Catalog) FormatReason(ids ...int) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		name := "Service"
		if svc, ok := c.byID[id]; ok {
			name = svc.Name
		}
		parts = append(parts, fmt.Sprintf("%s-%d", name, id))
	}
	return strings.Join(parts, ",")
}
