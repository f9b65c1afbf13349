package availability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/dental-voice-booking/internal/observability/metrics"
	"github.com/wolfman30/dental-voice-booking/pkg/logging"
)

var pairingTracer = otel.Tracer("dentalbridge.internal.availability.pairing")

// PairStatus classifies a pairing outcome.
type PairStatus string

const (
	PairFound                 PairStatus = "found"
	PairRootUnavailable       PairStatus = "root_unavailable"
	PairDependentsUnavailable PairStatus = "dependents_unavailable"
)

const maxAlternates = 3

// PairingConfig bounds the chaining work.
type PairingConfig struct {
	MaxSequences         int
	MaxAnchorCandidates  int
	AnchorMaxAttempts    int
	DependentMaxAttempts int
}

// DefaultPairingConfig collects up to 10 sequences from at most 20 anchor
// candidates, with 7 windows for the anchor and 5 for each dependent.
func DefaultPairingConfig() PairingConfig {
	return PairingConfig{MaxSequences: 10, MaxAnchorCandidates: 20, AnchorMaxAttempts: 7, DependentMaxAttempts: 5}
}

// ServiceRequest is one service to place in a sequence.
type ServiceRequest struct {
	ServiceID       int
	DurationMinutes int
	PractitionerIDs []int
}

// PairRequest asks for a chain of slots across services in order. When
// RootServiceID names a member of Services it anchors the chain; otherwise
// the first service does.
type PairRequest struct {
	Services       []ServiceRequest
	RequestedStart time.Time
	RootServiceID  int
}

// PairResult is the recommendation returned to callers.
type PairResult struct {
	Status               PairStatus     `json:"status"`
	Primary              *SlotSequence  `json:"primary,omitempty"`
	Alternates           []SlotSequence `json:"alternates,omitempty"`
	ExactMatch           bool           `json:"exact_match"`
	UnavailableServiceID int            `json:"unavailable_service_id,omitempty"`
	Message              string         `json:"message,omitempty"`
}

// Pairer chains single-service searches.
type Pairer struct {
	searcher *Searcher
	cfg      PairingConfig
	logger   *logging.Logger
	metrics  *metrics.BookingMetrics
}

// NewPairer builds a pairer; zero config fields take defaults.
func NewPairer(searcher *Searcher, cfg PairingConfig, logger *logging.Logger, m *metrics.BookingMetrics) *Pairer {
	if logger == nil {
		logger = logging.Default()
	}
	def := DefaultPairingConfig()
	if cfg.MaxSequences <= 0 {
		cfg.MaxSequences = def.MaxSequences
	}
	if cfg.MaxAnchorCandidates <= 0 {
		cfg.MaxAnchorCandidates = def.MaxAnchorCandidates
	}
	if cfg.AnchorMaxAttempts <= 0 {
		cfg.AnchorMaxAttempts = def.AnchorMaxAttempts
	}
	if cfg.DependentMaxAttempts <= 0 {
		cfg.DependentMaxAttempts = def.DependentMaxAttempts
	}
	return &Pairer{searcher: searcher, cfg: cfg, logger: logger, metrics: m}
}

type depKey struct {
	serviceID int
	after     int64
}

// Pair resolves a primary sequence and up to three alternates.
func (p *Pairer) Pair(ctx context.Context, req PairRequest) PairResult {
	ctx, span := pairingTracer.Start(ctx, "availability.pair")
	defer span.End()
	span.SetAttributes(attribute.Int("pairing.services", len(req.Services)))

	if len(req.Services) == 0 {
		return p.finish(PairResult{Status: PairRootUnavailable, Message: "no services requested"})
	}

	anchor, rest := splitAnchor(req.Services, req.RootServiceID)
	rootID := 0
	if req.RootServiceID != 0 && anchor.ServiceID == req.RootServiceID {
		rootID = anchor.ServiceID
	}

	anchorRes := p.searcher.Search(ctx, SearchRequest{
		ServiceID:       anchor.ServiceID,
		DurationMinutes: anchor.DurationMinutes,
		RequestedStart:  req.RequestedStart,
		PractitionerIDs: anchor.PractitionerIDs,
		MaxAttempts:     p.cfg.AnchorMaxAttempts,
	})
	if len(anchorRes.Slots) == 0 {
		return p.finish(PairResult{
			Status:               PairRootUnavailable,
			UnavailableServiceID: anchor.ServiceID,
			Message:              fmt.Sprintf("service %d is unavailable: %s", anchor.ServiceID, anchorRes.Message),
		})
	}

	candidates := anchorRes.Slots
	if len(candidates) > p.cfg.MaxAnchorCandidates {
		candidates = candidates[:p.cfg.MaxAnchorCandidates]
	}

	cache := make(map[depKey][]Slot)
	var sequences []SlotSequence
	failedService := 0
	for _, cand := range candidates {
		if len(sequences) >= p.cfg.MaxSequences || ctx.Err() != nil {
			break
		}
		seq := SlotSequence{Steps: []SequenceStep{{ServiceID: anchor.ServiceID, Slot: cand}}}
		prev := cand
		complete := true
		for _, dep := range rest {
			next, ok := p.nextAfter(ctx, cache, dep, prev.Finish)
			if !ok {
				complete = false
				failedService = dep.ServiceID
				break
			}
			seq.Steps = append(seq.Steps, SequenceStep{ServiceID: dep.ServiceID, Slot: next})
			prev = next
		}
		if !complete {
			continue
		}
		if err := ValidateSequence(seq, rootID); err != nil {
			p.logger.Warn("availability: rejecting sequence", "error", err)
			continue
		}
		sequences = append(sequences, seq)
	}

	if len(sequences) == 0 {
		return p.finish(PairResult{
			Status:               PairDependentsUnavailable,
			UnavailableServiceID: failedService,
			Message: fmt.Sprintf("service %d is available but service %d could not be scheduled after it",
				anchor.ServiceID, failedService),
		})
	}

	primary, alternates := choosePrimary(sequences, req.RequestedStart)
	return p.finish(PairResult{
		Status:     PairFound,
		Primary:    &primary,
		Alternates: alternates,
		ExactMatch: primary.First().Slot.Start.Equal(req.RequestedStart),
	})
}

func (p *Pairer) finish(res PairResult) PairResult {
	p.metrics.ObservePairing(string(res.Status))
	return res
}

// nextAfter returns the best slot for dep starting strictly after the
// given instant. Results are memoized per Pair call.
func (p *Pairer) nextAfter(ctx context.Context, cache map[depKey][]Slot, dep ServiceRequest, after time.Time) (Slot, bool) {
	key := depKey{serviceID: dep.ServiceID, after: after.UnixNano()}
	slots, ok := cache[key]
	if !ok {
		res := p.searcher.Search(ctx, SearchRequest{
			ServiceID:       dep.ServiceID,
			DurationMinutes: dep.DurationMinutes,
			RequestedStart:  after,
			PractitionerIDs: dep.PractitionerIDs,
			After:           after,
			MaxAttempts:     p.cfg.DependentMaxAttempts,
		})
		slots = res.Slots
		cache[key] = slots
	}
	for _, s := range slots {
		if s.Start.After(after) {
			return s, true
		}
	}
	return Slot{}, false
}

func splitAnchor(services []ServiceRequest, rootID int) (ServiceRequest, []ServiceRequest) {
	idx := 0
	if rootID != 0 {
		for i, svc := range services {
			if svc.ServiceID == rootID {
				idx = i
				break
			}
		}
	}
	rest := make([]ServiceRequest, 0, len(services)-1)
	rest = append(rest, services[:idx]...)
	rest = append(rest, services[idx+1:]...)
	return services[idx], rest
}

// ValidateSequence checks strict ordering between consecutive steps and,
// when rootID is part of the sequence, that every other step starts after
// the root.
func ValidateSequence(seq SlotSequence, rootID int) error {
	var root *SequenceStep
	for i := range seq.Steps {
		if rootID != 0 && seq.Steps[i].ServiceID == rootID {
			root = &seq.Steps[i]
		}
		if i == 0 {
			continue
		}
		prev, cur := seq.Steps[i-1].Slot, seq.Steps[i].Slot
		if !cur.Start.After(prev.Finish) {
			return fmt.Errorf("service %d starts at %s, not after previous finish %s",
				seq.Steps[i].ServiceID, cur.Start.Format(time.RFC3339), prev.Finish.Format(time.RFC3339))
		}
	}
	if root == nil {
		return nil
	}
	for _, step := range seq.Steps {
		if step.ServiceID == rootID {
			continue
		}
		if !step.Slot.Start.After(root.Slot.Start) {
			return fmt.Errorf("service %d starts before root service %d", step.ServiceID, rootID)
		}
	}
	return nil
}

// choosePrimary prefers an exact anchor match, then the closest sequence
// starting before the request, then the earliest after it. Remaining
// sequences keep their ranked order as alternates.
func choosePrimary(sequences []SlotSequence, requested time.Time) (SlotSequence, []SlotSequence) {
	best := -1
	for i, seq := range sequences {
		if seq.First().Slot.Start.Equal(requested) {
			best = i
			break
		}
	}
	if best < 0 {
		for i, seq := range sequences {
			start := seq.First().Slot.Start
			if start.Before(requested) && (best < 0 || start.After(sequences[best].First().Slot.Start)) {
				best = i
			}
		}
	}
	if best < 0 {
		for i, seq := range sequences {
			if best < 0 || seq.First().Slot.Start.Before(sequences[best].First().Slot.Start) {
				best = i
			}
		}
	}

	alternates := make([]SlotSequence, 0, maxAlternates)
	for i, seq := range sequences {
		if i == best {
			continue
		}
		if len(alternates) == maxAlternates {
			break
		}
		alternates = append(alternates, seq)
	}
	return sequences[best], alternates
}
