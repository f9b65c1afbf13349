package availability

import (
	"sort"
	"time"
)

// Rank orders slots for a requested start: exact matches, then slots
// strictly before (closest first), then later slots (earliest first).
// Ties break on practitioner id, and duplicate (practitioner, start) pairs
// are dropped.
func Rank(slots []Slot, requested time.Time) []Slot {
	out := dedupe(slots)
	sort.SliceStable(out, func(i, j int) bool {
		ci, cj := rankClass(out[i], requested), rankClass(out[j], requested)
		if ci != cj {
			return ci < cj
		}
		if !out[i].Start.Equal(out[j].Start) {
			if ci == classBefore {
				return out[i].Start.After(out[j].Start)
			}
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].PractitionerID < out[j].PractitionerID
	})
	return out
}

const (
	classExact = iota
	classBefore
	classAfter
)

func rankClass(s Slot, requested time.Time) int {
	switch {
	case s.Start.Equal(requested):
		return classExact
	case s.Start.Before(requested):
		return classBefore
	default:
		return classAfter
	}
}

type slotKey struct {
	practitioner int
	start        int64
}

func dedupe(slots []Slot) []Slot {
	seen := make(map[slotKey]bool, len(slots))
	out := make([]Slot, 0, len(slots))
	for _, s := range slots {
		k := slotKey{practitioner: s.PractitionerID, start: s.Start.UnixNano()}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	return out
}
