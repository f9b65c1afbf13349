package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/dental-voice-booking/internal/observability/metrics"
	"github.com/wolfman30/dental-voice-booking/pkg/logging"
)

// SearchConfig tunes the expanding window search.
type SearchConfig struct {
	Lookback    time.Duration
	MinLead     time.Duration
	Span        time.Duration
	Step        time.Duration
	MaxAttempts int
}

// DefaultSearchConfig looks 12h back (but never closer than an hour from
// now) and 25h forward, moving 25h per retry, for at most 7 windows.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		Lookback:    12 * time.Hour,
		MinLead:     time.Hour,
		Span:        25 * time.Hour,
		Step:        25 * time.Hour,
		MaxAttempts: 7,
	}
}

// SearchRequest describes one single-service search.
type SearchRequest struct {
	ServiceID       int
	DurationMinutes int
	RequestedStart  time.Time
	PractitionerIDs []int
	// After discards slots starting at or before this instant when set.
	After time.Time
	// MaxAttempts overrides the configured window budget when positive.
	MaxAttempts int
}

// SearchResult is the ranked outcome of a search.
type SearchResult struct {
	Slots     []Slot       `json:"slots"`
	Windows   []TimeWindow `json:"windows"`
	Exhausted bool         `json:"exhausted"`
	Message   string       `json:"message,omitempty"`
}

// Attempts is the number of windows queried.
func (r SearchResult) Attempts() int { return len(r.Windows) }

// ExactMatch reports whether the best slot starts at requested.
func (r SearchResult) ExactMatch(requested time.Time) bool {
	return len(r.Slots) > 0 && r.Slots[0].Start.Equal(requested)
}

// Searcher runs the windowed search over a BlockSource.
type Searcher struct {
	blocks  BlockSource
	cfg     SearchConfig
	now     func() time.Time
	logger  *logging.Logger
	metrics *metrics.BookingMetrics
}

// NewSearcher builds a searcher; zero config fields take defaults.
func NewSearcher(blocks BlockSource, cfg SearchConfig, logger *logging.Logger, m *metrics.BookingMetrics) *Searcher {
	if logger == nil {
		logger = logging.Default()
	}
	def := DefaultSearchConfig()
	if cfg.Lookback <= 0 {
		cfg.Lookback = def.Lookback
	}
	if cfg.MinLead <= 0 {
		cfg.MinLead = def.MinLead
	}
	if cfg.Span <= 0 {
		cfg.Span = def.Span
	}
	if cfg.Step <= 0 {
		cfg.Step = def.Step
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	return &Searcher{blocks: blocks, cfg: cfg, now: time.Now, logger: logger, metrics: m}
}

// WithClock replaces the time source.
func (s *Searcher) WithClock(now func() time.Time) *Searcher {
	s.now = now
	return s
}

// InitialWindow computes [max(req-lookback, now+lead), req+span].
func (s *Searcher) InitialWindow(requested, now time.Time) TimeWindow {
	start := requested.Add(-s.cfg.Lookback)
	if floor := now.Add(s.cfg.MinLead); start.Before(floor) {
		start = floor
	}
	end := requested.Add(s.cfg.Span)
	if !end.After(start) {
		end = start.Add(s.cfg.Span)
	}
	return TimeWindow{Start: start, End: end}
}

// Search queries successive windows until slots appear or the attempt
// budget runs out. It never returns an error.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) SearchResult {
	maxAttempts := s.cfg.MaxAttempts
	if req.MaxAttempts > 0 {
		maxAttempts = req.MaxAttempts
	}
	if len(req.PractitionerIDs) == 0 {
		s.metrics.ObserveSearch(req.ServiceID, 0, "no_practitioners")
		return SearchResult{Exhausted: true, Message: "no eligible practitioners for this service"}
	}
	if req.DurationMinutes <= 0 {
		return SearchResult{Exhausted: true, Message: "service duration must be positive"}
	}

	var result SearchResult
	window := s.InitialWindow(req.RequestedStart, s.now())
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			break
		}
		result.Windows = append(result.Windows, window)

		blocks := s.blocks.FreeBlocks(ctx, req.PractitionerIDs, window, req.DurationMinutes)
		now := s.now()
		var slots []Slot
		for _, block := range blocks {
			for _, slot := range Expand(block, req.DurationMinutes, now) {
				if slot.Start.Before(window.Start) {
					continue
				}
				if !req.After.IsZero() && !slot.Start.After(req.After) {
					continue
				}
				slots = append(slots, slot)
			}
		}
		if len(slots) > 0 {
			result.Slots = Rank(slots, req.RequestedStart)
			s.metrics.ObserveSearch(req.ServiceID, attempt, "found")
			s.logger.Debug("availability: slots found",
				"service_id", req.ServiceID, "attempt", attempt, "slots", len(result.Slots))
			return result
		}
		window = TimeWindow{Start: window.End, End: window.End.Add(s.cfg.Step)}
	}

	result.Exhausted = true
	result.Message = fmt.Sprintf("no slots found after searching %d windows", len(result.Windows))
	s.metrics.ObserveSearch(req.ServiceID, len(result.Windows), "exhausted")
	s.logger.Info("availability: search exhausted", "service_id", req.ServiceID, "windows", len(result.Windows))
	return result
}
