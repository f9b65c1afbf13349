package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/dental-voice-booking/internal/catalog"
	"github.com/wolfman30/dental-voice-booking/internal/directory"
)

// ErrUnknownService is returned for service ids missing from the catalog.
var ErrUnknownService = errors.New("availability: unknown service")

// Eligibility resolves practitioners per service.
type Eligibility interface {
	EligiblePractitioners(ctx context.Context, serviceID int) []directory.Practitioner
}

// Finder resolves practitioners and durations for service ids, then pairs.
type Finder struct {
	catalog   *catalog.Catalog
	directory Eligibility
	pairer    *Pairer
}

// NewFinder wires the catalog, directory and pairer together.
func NewFinder(cat *catalog.Catalog, dir Eligibility, pairer *Pairer) *Finder {
	if cat == nil {
		cat = catalog.Default()
	}
	return &Finder{catalog: cat, directory: dir, pairer: pairer}
}

// FindResult carries the pairing outcome plus practitioner display names.
type FindResult struct {
	PairResult
	PractitionerNames map[int]string `json:"-"`
}

// Find searches for serviceIDs in order, anchored at requestedStart.
func (f *Finder) Find(ctx context.Context, serviceIDs []int, requestedStart time.Time) (FindResult, error) {
	if len(serviceIDs) == 0 {
		return FindResult{}, fmt.Errorf("%w: no service ids", ErrUnknownService)
	}
	names := make(map[int]string)
	requests := make([]ServiceRequest, 0, len(serviceIDs))
	seen := make(map[int]bool, len(serviceIDs))
	for _, id := range serviceIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		svc, ok := f.catalog.Get(id)
		if !ok {
			return FindResult{}, fmt.Errorf("%w: %d", ErrUnknownService, id)
		}
		practitioners := f.directory.EligiblePractitioners(ctx, id)
		for pid, name := range directory.Names(practitioners) {
			names[pid] = name
		}
		requests = append(requests, ServiceRequest{
			ServiceID:       id,
			DurationMinutes: svc.DurationMinutes,
			PractitionerIDs: directory.IDs(practitioners),
		})
	}

	res := f.pairer.Pair(ctx, PairRequest{
		Services:       requests,
		RequestedStart: requestedStart,
		RootServiceID:  f.catalog.RootIn(serviceIDs),
	})
	return FindResult{PairResult: res, PractitionerNames: names}, nil
}
