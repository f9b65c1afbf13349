// Package bootstrap wires configuration into the running service graph.
package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/dental-voice-booking/internal/config"
	"github.com/wolfman30/dental-voice-booking/internal/events"
	"github.com/wolfman30/dental-voice-booking/internal/store"
	"github.com/wolfman30/dental-voice-booking/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// ConnectPostgresPool opens a pgx pool, or returns nil when url is empty.
func ConnectPostgresPool(ctx context.Context, url string, logger *logging.Logger) (*pgxpool.Pool, error) {
	if strings.TrimSpace(url) == "" {
		return nil, nil
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	logger.Info("postgres connected")
	return pool, nil
}

// BuildStore selects the document store named by STORE_DRIVER. The returned
// closer releases the underlying connection.
func BuildStore(ctx context.Context, cfg *appconfig.Config, pool *pgxpool.Pool, logger *logging.Logger) (store.Store, func(), error) {
	noop := func() {}
	switch cfg.StoreDriver {
	case "", "memory":
		logger.Warn("using in-memory document store; data is lost on restart")
		return store.NewMemoryStore(), noop, nil
	case "postgres":
		if pool == nil {
			return nil, noop, fmt.Errorf("bootstrap: STORE_DRIVER=postgres requires DATABASE_URL")
		}
		return store.NewPostgresStore(pool), noop, nil
	case "mongo":
		if strings.TrimSpace(cfg.MongoURI) == "" {
			return nil, noop, fmt.Errorf("bootstrap: STORE_DRIVER=mongo requires MONGO_URI")
		}
		client, err := store.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, noop, err
		}
		logger.Info("mongo connected", "database", cfg.MongoDatabase)
		closer := func() { _ = client.Disconnect(context.Background()) }
		return store.NewMongoStore(client.Database(cfg.MongoDatabase)), closer, nil
	default:
		return nil, noop, fmt.Errorf("bootstrap: unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}

// BuildDeduper prefers Redis, then the Postgres processed_events table, then
// process memory.
func BuildDeduper(ctx context.Context, cfg *appconfig.Config, redisClient *redis.Client, pool *pgxpool.Pool, logger *logging.Logger) (events.Deduper, string) {
	switch {
	case redisClient != nil:
		return events.NewRedisDeduper(redisClient, cfg.WebhookDedupeTTL), "redis"
	case pool != nil:
		processed := events.NewProcessedStore(pool, cfg.WebhookDedupeTTL)
		if n, err := processed.Purge(ctx); err != nil {
			logger.Warn("processed events purge failed", "error", err)
		} else if n > 0 {
			logger.Info("purged processed events", "count", n)
		}
		return processed, "postgres"
	default:
		return events.NewMemoryDeduper(cfg.WebhookDedupeTTL), "memory"
	}
}
