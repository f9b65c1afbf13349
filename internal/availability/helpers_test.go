package availability

import (
	"context"
	"time"
)

var (
	testNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	testT   = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
)

// fakeSource returns the configured blocks that overlap the queried window
// and belong to a queried practitioner.
type fakeSource struct {
	blocks  []FreeBlock
	calls   int
	windows []TimeWindow
}

func (f *fakeSource) FreeBlocks(ctx context.Context, ids []int, w TimeWindow, durationMinutes int) []FreeBlock {
	f.calls++
	f.windows = append(f.windows, w)
	wanted := make(map[int]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var out []FreeBlock
	for _, b := range f.blocks {
		if !wanted[b.PractitionerID] {
			continue
		}
		if b.Window.Start.Before(w.End) && b.Window.End.After(w.Start) {
			out = append(out, b)
		}
	}
	return out
}

func block(practitioner int, start time.Time, length time.Duration) FreeBlock {
	return FreeBlock{PractitionerID: practitioner, Window: TimeWindow{Start: start, End: start.Add(length)}}
}

func newTestSearcher(src BlockSource, maxAttempts int) *Searcher {
	cfg := DefaultSearchConfig()
	cfg.MaxAttempts = maxAttempts
	return NewSearcher(src, cfg, nil, nil).WithClock(func() time.Time { return testNow })
}
