package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kalambet/replydesk/internal/knowledge"
)

// CacheRecorder receives cache hit/miss/error events.
type CacheRecorder interface {
	CacheLookup(result string)
}

// CachedLookup is a read-through Redis cache in front of another Lookup.
// Redis failures are logged and bypassed; they never fail an import.
type CachedLookup struct {
	rdb     *redis.Client
	next    Lookup
	ttl     time.Duration
	metrics CacheRecorder
}

// NewCachedLookup wraps next with a cache on rdb. ttl <= 0 stores entries
// without expiry.
func NewCachedLookup(rdb *redis.Client, next Lookup, ttl time.Duration, metrics CacheRecorder) *CachedLookup {
	if ttl < 0 {
		ttl = 0
	}
	return &CachedLookup{rdb: rdb, next: next, ttl: ttl, metrics: metrics}
}

// Connect parses a redis:// URL and verifies the server answers.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// CacheKey is the Redis key for a listing.
func CacheKey(asin string, m knowledge.Marketplace) string {
	return fmt.Sprintf("catalog:%s:%s", m, asin)
}

func (c *CachedLookup) Lookup(ctx context.Context, asin string, m knowledge.Marketplace) (Listing, error) {
	key := CacheKey(asin, m)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var l Listing
		if jerr := json.Unmarshal(raw, &l); jerr == nil {
			c.record("hit")
			return l, nil
		}
		slog.Warn("discarding corrupt catalog cache entry", "key", key)
		c.record("error")
	case errors.Is(err, redis.Nil):
		c.record("miss")
	default:
		slog.Warn("catalog cache read failed", "key", key, "error", err)
		c.record("error")
	}

	l, err := c.next.Lookup(ctx, asin, m)
	if err != nil {
		return Listing{}, err
	}

	if b, err := json.Marshal(l); err == nil {
		if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
			slog.Warn("catalog cache write failed", "key", key, "error", err)
		}
	}
	return l, nil
}

// Invalidate drops the cached listing for asin.
func (c *CachedLookup) Invalidate(ctx context.Context, asin string, m knowledge.Marketplace) error {
	return c.rdb.Del(ctx, CacheKey(asin, m)).Err()
}

func (c *CachedLookup) record(result string) {
	if c.metrics != nil {
		c.metrics.CacheLookup(result)
	}
}
