// Package events records which inbound webhook deliveries were already handled.
package events

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long a processed event id is remembered.
const DefaultTTL = 24 * time.Hour

// Deduper claims an event id. MarkProcessed returns true the first time a
// (provider, eventID) pair is seen and false on every repeat. Release drops
// a claim so the next delivery of the same event is processed again.
type Deduper interface {
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
	Release(ctx context.Context, provider, eventID string) error
}

func dedupeKey(provider, eventID string) string {
	return "processed:" + strings.ToLower(strings.TrimSpace(provider)) + ":" + strings.TrimSpace(eventID)
}

// RedisDeduper claims ids with SET NX and a TTL.
type RedisDeduper struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisDeduper(client redis.Cmdable, ttl time.Duration) *RedisDeduper {
	if client == nil {
		panic("events: redis client required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisDeduper{client: client, ttl: ttl}
}

func (d *RedisDeduper) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	ok, err := d.client.SetNX(ctx, dedupeKey(provider, eventID), time.Now().UTC().Format(time.RFC3339), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("events: mark processed: %w", err)
	}
	return ok, nil
}

func (d *RedisDeduper) Release(ctx context.Context, provider, eventID string) error {
	if err := d.client.Del(ctx, dedupeKey(provider, eventID)).Err(); err != nil {
		return fmt.Errorf("events: release: %w", err)
	}
	return nil
}

// MemoryDeduper is a process-local Deduper for development and tests.
type MemoryDeduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	seen map[string]time.Time
}

func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryDeduper{ttl: ttl, now: time.Now, seen: make(map[string]time.Time)}
}

func (d *MemoryDeduper) MarkProcessed(_ context.Context, provider, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	for k, exp := range d.seen {
		if !now.Before(exp) {
			delete(d.seen, k)
		}
	}
	key := dedupeKey(provider, eventID)
	if _, ok := d.seen[key]; ok {
		return false, nil
	}
	d.seen[key] = now.Add(d.ttl)
	return true, nil
}

func (d *MemoryDeduper) Release(_ context.Context, provider, eventID string) error {
	d.mu.Lock()
	delete(d.seen, dedupeKey(provider, eventID))
	d.mu.Unlock()
	return nil
}
