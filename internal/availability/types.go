// Package availability turns Dentally free/busy answers into ranked,
// bookable slots and chains them across dependent services.
package availability

import "time"

// TimeWindow is a half-open interval [Start, End).
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Length returns End-Start, never negative.
func (w TimeWindow) Length() time.Duration {
	if w.End.Before(w.Start) {
		return 0
	}
	return w.End.Sub(w.Start)
}

// FreeBlock is an interval with no conflicting booking for a practitioner.
type FreeBlock struct {
	PractitionerID int
	Window         TimeWindow
}

// Slot is a duration-aligned bookable piece of a free block.
type Slot struct {
	PractitionerID int       `json:"practitioner_id"`
	Start          time.Time `json:"start_time"`
	Finish         time.Time `json:"finish_time"`
}

// SequenceStep pairs a service with the slot chosen for it.
type SequenceStep struct {
	ServiceID int  `json:"service_id"`
	Slot      Slot `json:"slot"`
}

// SlotSequence is an ordered chain of slots, one per requested service.
type SlotSequence struct {
	Steps []SequenceStep `json:"steps"`
}

// First returns the anchor step.
func (s SlotSequence) First() SequenceStep {
	if len(s.Steps) == 0 {
		return SequenceStep{}
	}
	return s.Steps[0]
}

// Step returns the step for serviceID.
func (s SlotSequence) Step(serviceID int) (SequenceStep, bool) {
	for _, step := range s.Steps {
		if step.ServiceID == serviceID {
			return step, true
		}
	}
	return SequenceStep{}, false
}
