// Package store is the local document mirror: a small collection/document
// abstraction with in-memory, Postgres (JSONB) and MongoDB backends.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Collection names.
const (
	Practitioners        = "practitioners"
	Patients             = "patients"
	Appointments         = "appointments"
	DentallyAppointments = "dentally_appointments"
	PaymentPlans         = "payment_plans"
)

const defaultFindLimit = 1000

// ErrNotFound is returned when a document id does not exist.
var ErrNotFound = errors.New("store: document not found")

// Document is a stored JSON body.
type Document struct {
	ID        string          `json:"id"`
	Body      json.RawMessage `json:"body"`
	CreatedAt time.Time       `json:"created_at"`
}

// Decode unmarshals the body into out.
func (d Document) Decode(out any) error {
	return json.Unmarshal(d.Body, out)
}

// Filter is a containment match. A document matches when every key in the
// filter is present with an equal value; array values match when the stored
// array holds every listed element.
type Filter map[string]any

// Store is the minimal document API the bridge needs.
type Store interface {
	Insert(ctx context.Context, collection string, body any) (Document, error)
	InsertMany(ctx context.Context, collection string, bodies []any) (int, error)
	Find(ctx context.Context, collection string, filter Filter, limit int) ([]Document, error)
	FindByID(ctx context.Context, collection, id string) (*Document, error)
	DeleteMany(ctx context.Context, collection string, filter Filter) (int64, error)
}

// Replace deletes every document matching filter and inserts bodies.
func Replace(ctx context.Context, s Store, collection string, filter Filter, bodies []any) (int, error) {
	if _, err := s.DeleteMany(ctx, collection, filter); err != nil {
		return 0, fmt.Errorf("store: replace %s: %w", collection, err)
	}
	if len(bodies) == 0 {
		return 0, nil
	}
	n, err := s.InsertMany(ctx, collection, bodies)
	if err != nil {
		return n, fmt.Errorf("store: replace %s: %w", collection, err)
	}
	return n, nil
}

func encodeBody(body any) (json.RawMessage, error) {
	switch v := body.(type) {
	case json.RawMessage:
		if !json.Valid(v) {
			return nil, fmt.Errorf("store: invalid json body")
		}
		return v, nil
	case []byte:
		if !json.Valid(v) {
			return nil, fmt.Errorf("store: invalid json body")
		}
		return json.RawMessage(v), nil
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("store: marshal body: %w", err)
	}
	return payload, nil
}

// normalize converts a Go value into the generic JSON shape (maps, slices,
// float64, string, bool, nil) so values compare the same way regardless of
// their original Go types.
func normalize(v any) (any, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > defaultFindLimit {
		return defaultFindLimit
	}
	return limit
}
