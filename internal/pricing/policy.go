// Package pricing computes the amount owed for a set of booked services
// from a configurable rule table.
package pricing

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/wolfman30/dental-voice-booking/internal/catalog"
)

// PremiumPractitionerID is the practitioner charged the premium consultation rate.
const PremiumPractitionerID = 148774

// BookedService is a successfully booked service.
type BookedService struct {
	ServiceID      int
	PractitionerID int
}

// Policy prices a set of booked services.
type Policy interface {
	Total(booked []BookedService) Money
}

// PractitionerRate overrides a service price for one practitioner.
type PractitionerRate struct {
	PractitionerID int   `json:"practitioner_id"`
	Amount         Money `json:"amount"`
}

// ServicePrice is the standalone price of a service.
type ServicePrice struct {
	ServiceID         int                `json:"service_id"`
	Amount            Money              `json:"amount"`
	PractitionerRates []PractitionerRate `json:"practitioner_rates,omitempty"`
}

// Bundle discounts a combination booked together.
type Bundle struct {
	ServiceIDs []int `json:"service_ids"`
	Discount   Money `json:"discount"`
}

// Rules is the serializable policy definition.
type Rules struct {
	Currency string         `json:"currency"`
	Services []ServicePrice `json:"services"`
	Bundles  []Bundle       `json:"bundles,omitempty"`
	// ChargeStandaloneDependents allows pricing a dependent without its root.
	ChargeStandaloneDependents bool `json:"charge_standalone_dependents,omitempty"`
}

// RulePolicy evaluates Rules against the catalog's dependency graph.
type RulePolicy struct {
	rules   Rules
	prices  map[int]ServicePrice
	catalog *catalog.Catalog
}

// DefaultRules mirrors the clinic's published price list.
func DefaultRules() Rules {
	return Rules{
		Currency: "eur",
		Services: []ServicePrice{
			{ServiceID: catalog.BiologicalConsultation, Amount: FromDecimal(269), PractitionerRates: []PractitionerRate{
				{PractitionerID: PremiumPractitionerID, Amount: FromDecimal(299)},
			}},
			{ServiceID: catalog.HolisticHygiene, Amount: FromDecimal(176)},
			{ServiceID: catalog.HygieneDirectAccess, Amount: FromDecimal(192.50)},
		},
		Bundles: []Bundle{
			{ServiceIDs: []int{catalog.BiologicalConsultation, catalog.HolisticHygiene}, Discount: FromDecimal(50)},
		},
	}
}

// NewRulePolicy validates rules against the catalog.
func NewRulePolicy(rules Rules, cat *catalog.Catalog) (*RulePolicy, error) {
	if cat == nil {
		cat = catalog.Default()
	}
	prices := make(map[int]ServicePrice, len(rules.Services))
	for _, p := range rules.Services {
		if _, ok := cat.Get(p.ServiceID); !ok {
			return nil, fmt.Errorf("pricing: unknown service %d", p.ServiceID)
		}
		if p.Amount < 0 {
			return nil, fmt.Errorf("pricing: negative price for service %d", p.ServiceID)
		}
		prices[p.ServiceID] = p
	}
	for _, b := range rules.Bundles {
		if len(b.ServiceIDs) < 2 {
			return nil, fmt.Errorf("pricing: bundle needs at least two services")
		}
	}
	if strings.TrimSpace(rules.Currency) == "" {
		rules.Currency = "eur"
	}
	return &RulePolicy{rules: rules, prices: prices, catalog: cat}, nil
}

// LoadPolicy builds a policy from inline JSON, then a file, then defaults.
func LoadPolicy(inline, path string, cat *catalog.Catalog) (*RulePolicy, error) {
	rules := DefaultRules()
	var raw []byte
	switch {
	case strings.TrimSpace(inline) != "":
		raw = []byte(inline)
	case strings.TrimSpace(path) != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("pricing: read %s: %w", path, err)
		}
		raw = data
	}
	if raw != nil {
		rules = Rules{}
		if err := json.Unmarshal(raw, &rules); err != nil {
			return nil, fmt.Errorf("pricing: decode rules: %w", err)
		}
	}
	return NewRulePolicy(rules, cat)
}

// Currency is the ISO code amounts are expressed in.
func (p *RulePolicy) Currency() string { return p.rules.Currency }

// Total sums standalone prices, applies practitioner rates, zeroes
// dependents booked without their root and subtracts bundle discounts.
func (p *RulePolicy) Total(booked []BookedService) Money {
	present := make(map[int]bool, len(booked))
	for _, b := range booked {
		present[b.ServiceID] = true
	}

	var total Money
	for _, b := range booked {
		if root := p.catalog.RootOf(b.ServiceID); root != 0 && !present[root] && !p.rules.ChargeStandaloneDependents {
			continue
		}
		total += p.price(b)
	}
	for _, bundle := range p.rules.Bundles {
		if bundleBooked(bundle, present) {
			total -= bundle.Discount
		}
	}
	if total < 0 {
		return 0
	}
	return total
}

func (p *RulePolicy) price(b BookedService) Money {
	sp, ok := p.prices[b.ServiceID]
	if !ok {
		return 0
	}
	for _, rate := range sp.PractitionerRates {
		if rate.PractitionerID == b.PractitionerID {
			return rate.Amount
		}
	}
	return sp.Amount
}

func bundleBooked(b Bundle, present map[int]bool) bool {
	for _, id := range b.ServiceIDs {
		if !present[id] {
			return false
		}
	}
	return true
}
