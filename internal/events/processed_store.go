package events

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ProcessedStore is the Postgres Deduper, used when a database is configured
// but Redis is not. A claim older than ttl can be taken again.
type ProcessedStore struct {
	db  execer
	ttl time.Duration
}

func NewProcessedStore(pool *pgxpool.Pool, ttl time.Duration) *ProcessedStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return newProcessedStore(pool, ttl)
}

func newProcessedStore(db execer, ttl time.Duration) *ProcessedStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ProcessedStore{db: db, ttl: ttl}
}

const claimSQL = `
	INSERT INTO processed_events (provider, event_id)
	VALUES ($1, $2)
	ON CONFLICT (provider, event_id) DO UPDATE
		SET processed_at = now()
		WHERE processed_events.processed_at < now() - make_interval(secs => $3)
`

// MarkProcessed claims the event. It reports false when a live claim exists.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	ct, err := s.db.Exec(ctx, claimSQL, provider, eventID, s.ttl.Seconds())
	if err != nil {
		return false, fmt.Errorf("events: claim %s: %w", dedupeKey(provider, eventID), err)
	}
	return ct.RowsAffected() > 0, nil
}

// Release deletes the claim so a redelivery is processed.
func (s *ProcessedStore) Release(ctx context.Context, provider, eventID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM processed_events WHERE provider = $1 AND event_id = $2`, provider, eventID); err != nil {
		return fmt.Errorf("events: release %s: %w", dedupeKey(provider, eventID), err)
	}
	return nil
}

// Purge deletes claims that have outlived the TTL.
func (s *ProcessedStore) Purge(ctx context.Context) (int64, error) {
	ct, err := s.db.Exec(ctx, `DELETE FROM processed_events WHERE processed_at < now() - make_interval(secs => $1)`, s.ttl.Seconds())
	if err != nil {
		return 0, fmt.Errorf("events: purge processed: %w", err)
	}
	return ct.RowsAffected(), nil
}

var _ Deduper = (*ProcessedStore)(nil)
