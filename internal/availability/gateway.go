package availability

import (
	"context"

	"github.com/wolfman30/dental-voice-booking/internal/dentally"
	"github.com/wolfman30/dental-voice-booking/internal/observability/metrics"
	"github.com/wolfman30/dental-voice-booking/pkg/logging"
)

// BlockSource answers free/busy questions.
type BlockSource interface {
	FreeBlocks(ctx context.Context, practitionerIDs []int, window TimeWindow, durationMinutes int) []FreeBlock
}

// RemoteAvailability is the Dentally call the gateway wraps.
type RemoteAvailability interface {
	Availability(ctx context.Context, query dentally.AvailabilityQuery) (*dentally.AvailabilityResult, error)
}

// Gateway normalizes Dentally availability into free blocks. Every failure
// collapses to an empty answer; nothing is cached.
type Gateway struct {
	remote  RemoteAvailability
	logger  *logging.Logger
	metrics *metrics.BookingMetrics
}

// NewGateway wraps a Dentally availability client.
func NewGateway(remote RemoteAvailability, logger *logging.Logger, m *metrics.BookingMetrics) *Gateway {
	if logger == nil {
		logger = logging.Default()
	}
	return &Gateway{remote: remote, logger: logger, metrics: m}
}

// FreeBlocks issues a single availability query.
func (g *Gateway) FreeBlocks(ctx context.Context, practitionerIDs []int, window TimeWindow, durationMinutes int) []FreeBlock {
	if len(practitionerIDs) == 0 || g.remote == nil {
		return nil
	}
	res, err := g.remote.Availability(ctx, dentally.AvailabilityQuery{
		PractitionerIDs: practitionerIDs,
		Start:           window.Start,
		Finish:          window.End,
		DurationMinutes: durationMinutes,
	})
	if err != nil {
		g.metrics.ObserveGatewayCall("error")
		g.logger.Warn("availability: query failed, treating as no free blocks",
			"error", err, "practitioner_ids", practitionerIDs, "window_start", window.Start, "window_end", window.End)
		return nil
	}
	if res == nil || !res.Present {
		g.metrics.ObserveGatewayCall("absent")
		g.logger.Debug("availability: response had no availability field", "practitioner_ids", practitionerIDs)
		return nil
	}
	g.metrics.ObserveGatewayCall("ok")

	requested := make(map[int]bool, len(practitionerIDs))
	for _, id := range practitionerIDs {
		requested[id] = true
	}
	blocks := make([]FreeBlock, 0, len(res.Blocks))
	for _, b := range res.Blocks {
		if !b.FinishTime.After(b.StartTime) {
			continue
		}
		id := b.PractitionerID
		if id == 0 && len(practitionerIDs) == 1 {
			id = practitionerIDs[0]
		}
		if !requested[id] {
			continue
		}
		blocks = append(blocks, FreeBlock{PractitionerID: id, Window: TimeWindow{Start: b.StartTime, End: b.FinishTime}})
	}
	return blocks
}
