package store

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps documents in process.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]Document
	now  func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string][]Document),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) Insert(ctx context.Context, collection string, body any) (Document, error) {
	payload, err := encodeBody(body)
	if err != nil {
		return Document{}, err
	}
	doc := Document{ID: uuid.NewString(), Body: payload, CreatedAt: m.now()}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[collection] = append(m.docs[collection], doc)
	return doc, nil
}

func (m *MemoryStore) InsertMany(ctx context.Context, collection string, bodies []any) (int, error) {
	docs := make([]Document, 0, len(bodies))
	for i, body := range bodies {
		payload, err := encodeBody(body)
		if err != nil {
			return 0, fmt.Errorf("store: document %d: %w", i, err)
		}
		docs = append(docs, Document{ID: uuid.NewString(), Body: payload, CreatedAt: m.now()})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[collection] = append(m.docs[collection], docs...)
	return len(docs), nil
}

func (m *MemoryStore) Find(ctx context.Context, collection string, filter Filter, limit int) ([]Document, error) {
	want, err := normalize(filter)
	if err != nil {
		return nil, fmt.Errorf("store: filter: %w", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Document
	for _, doc := range m.docs[collection] {
		var body any
		if err := json.Unmarshal(doc.Body, &body); err != nil {
			continue
		}
		if contains(body, want) {
			out = append(out, doc)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit = clampLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) FindByID(ctx context.Context, collection, id string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, doc := range m.docs[collection] {
		if doc.ID == id {
			d := doc
			return &d, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) DeleteMany(ctx context.Context, collection string, filter Filter) (int64, error) {
	want, err := normalize(filter)
	if err != nil {
		return 0, fmt.Errorf("store: filter: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.docs[collection][:0]
	var deleted int64
	for _, doc := range m.docs[collection] {
		var body any
		if err := json.Unmarshal(doc.Body, &body); err == nil && contains(body, want) {
			deleted++
			continue
		}
		kept = append(kept, doc)
	}
	m.docs[collection] = kept
	return deleted, nil
}

// contains mirrors the Postgres jsonb @> operator for generic JSON values.
func contains(have, want any) bool {
	switch w := want.(type) {
	case nil:
		return true
	case map[string]any:
		h, ok := have.(map[string]any)
		if !ok {
			return false
		}
		for k, wv := range w {
			hv, present := h[k]
			if !present || !contains(hv, wv) {
				return false
			}
		}
		return true
	case []any:
		h, ok := have.([]any)
		if !ok {
			return false
		}
		for _, wv := range w {
			found := false
			for _, hv := range h {
				if contains(hv, wv) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(have, want)
	}
}
