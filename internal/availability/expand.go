package availability

import "time"

// Expand slices block into consecutive slots of durationMinutes starting at
// the block start. The trailing remainder shorter than the duration is
// dropped, as is any slot starting before now.
func Expand(block FreeBlock, durationMinutes int, now time.Time) []Slot {
	if durationMinutes <= 0 {
		return nil
	}
	d := time.Duration(durationMinutes) * time.Minute
	count := int(block.Window.Length() / d)
	slots := make([]Slot, 0, count)
	for k := 0; k < count; k++ {
		start := block.Window.Start.Add(time.Duration(k) * d)
		if start.Before(now) {
			continue
		}
		slots = append(slots, Slot{PractitionerID: block.PractitionerID, Start: start, Finish: start.Add(d)})
	}
	return slots
}
