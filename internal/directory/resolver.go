// Package directory resolves which practitioners may perform a service by
// joining Dentally's live practitioner list with the locally maintained
// service mapping.
package directory

import (
	"context"
	"sort"
	"strings"

	"github.com/wolfman30/dental-voice-booking/internal/dentally"
	"github.com/wolfman30/dental-voice-booking/internal/store"
	"github.com/wolfman30/dental-voice-booking/pkg/logging"
)

// Practitioner is a practitioner eligible for booking.
type Practitioner struct {
	ID          int    `json:"id"`
	DisplayName string `json:"display_name"`
	Active      bool   `json:"active"`
	ServiceIDs  []int  `json:"service_ids"`
}

// Eligible reports whether the practitioner is mapped to serviceID.
func (p Practitioner) Eligible(serviceID int) bool {
	for _, id := range p.ServiceIDs {
		if id == serviceID {
			return true
		}
	}
	return false
}

// Record is the locally stored practitioner document.
type Record struct {
	ID       int                       `json:"id"`
	Active   bool                      `json:"active"`
	User     dentally.PractitionerUser `json:"user"`
	Services []int                     `json:"services"`
}

// DisplayName joins the record's names.
func (r Record) DisplayName() string {
	return strings.TrimSpace(strings.TrimSpace(r.User.FirstName) + " " + strings.TrimSpace(r.User.LastName))
}

// RemoteSource lists practitioners from the practice-management system.
type RemoteSource interface {
	ListPractitioners(ctx context.Context) ([]dentally.Practitioner, error)
}

// Resolver answers eligibility questions. It never returns an error: an
// unreachable source degrades to the other one, and both failing yields an
// empty answer.
type Resolver struct {
	remote RemoteSource
	local  store.Store
	logger *logging.Logger
}

// NewResolver builds a resolver. remote may be nil to run purely from the
// local mapping.
func NewResolver(remote RemoteSource, local store.Store, logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{remote: remote, local: local, logger: logger}
}

// EligiblePractitioners returns active practitioners mapped to serviceID.
func (r *Resolver) EligiblePractitioners(ctx context.Context, serviceID int) []Practitioner {
	remote := r.activeRemote(ctx)
	if len(remote) == 0 {
		r.logger.Info("directory: using local practitioner mapping", "service_id", serviceID, "reason", "no remote practitioners")
		return r.localEligible(ctx, serviceID)
	}

	records := r.localByID(ctx)
	var out []Practitioner
	for _, p := range remote {
		rec, ok := records[p.ID]
		if !ok {
			continue
		}
		candidate := Practitioner{ID: p.ID, DisplayName: p.DisplayName(), Active: true, ServiceIDs: rec.Services}
		if candidate.Eligible(serviceID) {
			out = append(out, candidate)
		}
	}
	if len(out) == 0 {
		r.logger.Info("directory: remote join empty, using local mapping", "service_id", serviceID, "remote_count", len(remote))
		return r.localEligible(ctx, serviceID)
	}
	sortPractitioners(out)
	return out
}

// ActivePractitioners lists every active practitioner regardless of service.
func (r *Resolver) ActivePractitioners(ctx context.Context) []Practitioner {
	remote := r.activeRemote(ctx)
	if len(remote) == 0 {
		return r.fromRecords(r.queryLocal(ctx, store.Filter{"active": true}))
	}
	records := r.localByID(ctx)
	out := make([]Practitioner, 0, len(remote))
	for _, p := range remote {
		out = append(out, Practitioner{ID: p.ID, DisplayName: p.DisplayName(), Active: true, ServiceIDs: records[p.ID].Services})
	}
	sortPractitioners(out)
	return out
}

func (r *Resolver) activeRemote(ctx context.Context) []dentally.Practitioner {
	if r.remote == nil {
		return nil
	}
	all, err := r.remote.ListPractitioners(ctx)
	if err != nil {
		r.logger.Warn("directory: remote practitioner fetch failed", "error", err)
		return nil
	}
	active := make([]dentally.Practitioner, 0, len(all))
	for _, p := range all {
		if p.Active {
			active = append(active, p)
		}
	}
	return active
}

func (r *Resolver) localEligible(ctx context.Context, serviceID int) []Practitioner {
	return r.fromRecords(r.queryLocal(ctx, store.Filter{"active": true, "services": []int{serviceID}}))
}

func (r *Resolver) localByID(ctx context.Context) map[int]Record {
	out := make(map[int]Record)
	for _, rec := range r.queryLocal(ctx, nil) {
		out[rec.ID] = rec
	}
	return out
}

func (r *Resolver) queryLocal(ctx context.Context, filter store.Filter) []Record {
	if r.local == nil {
		return nil
	}
	docs, err := r.local.Find(ctx, store.Practitioners, filter, 0)
	if err != nil {
		r.logger.Warn("directory: local practitioner query failed", "error", err)
		return nil
	}
	records := make([]Record, 0, len(docs))
	for _, doc := range docs {
		var rec Record
		if err := doc.Decode(&rec); err != nil {
			r.logger.Warn("directory: skipping undecodable practitioner", "document_id", doc.ID, "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records
}

func (r *Resolver) fromRecords(records []Record) []Practitioner {
	seen := make(map[int]bool, len(records))
	out := make([]Practitioner, 0, len(records))
	for _, rec := range records {
		if seen[rec.ID] {
			continue
		}
		seen[rec.ID] = true
		out = append(out, Practitioner{ID: rec.ID, DisplayName: rec.DisplayName(), Active: rec.Active, ServiceIDs: rec.Services})
	}
	sortPractitioners(out)
	return out
}

func sortPractitioners(ps []Practitioner) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].ID < ps[j].ID })
}

// IDs extracts practitioner ids.
func IDs(ps []Practitioner) []int {
	out := make([]int, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.ID)
	}
	return out
}

// Names indexes display names by id.
func Names(ps []Practitioner) map[int]string {
	out := make(map[int]string, len(ps))
	for _, p := range ps {
		out[p.ID] = p.DisplayName
	}
	return out
}
