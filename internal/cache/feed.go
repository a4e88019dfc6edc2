package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"anonfeed/internal/middleware"
	"anonfeed/internal/observability"

	"github.com/redis/go-redis/v9"
)

const (
	feedGenerationPrefix = "feed:gen:%s"
	feedEntryPrefix      = "feed:%s:%d:%s"
)

const (
	// FeedTTL bounds how long a snapshot may be served after its generation was last read.
	FeedTTL = 30 * time.Second
)

// ScopeAll is the cache scope of the unscoped feed.
const ScopeAll = "all"

// ScopeDomain is the cache scope of one company feed.
func ScopeDomain(domain string) string {
	return "domain:" + domain
}

// ScopeComments is the cache scope of one post's comment thread.
func ScopeComments(postID string) string {
	return "comments:" + postID
}

// FeedCache stores feed snapshots keyed by a per-scope generation counter.
// Invalidating a scope bumps its generation, so every cached page of that
// scope becomes unreachable at once.
type FeedCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewFeedCache returns a cache over rdb. A nil client yields a pass-through cache.
func NewFeedCache(rdb *redis.Client, ttl time.Duration) *FeedCache {
	if ttl <= 0 {
		ttl = FeedTTL
	}
	return &FeedCache{rdb: rdb, ttl: ttl}
}

// Enabled reports whether a Redis client backs the cache.
func (c *FeedCache) Enabled() bool {
	return c != nil && c.rdb != nil
}

func (c *FeedCache) generation(ctx context.Context, scope string) (int64, error) {
	gen, err := c.rdb.Get(ctx, fmt.Sprintf(feedGenerationPrefix, scope)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Aside serves dest from the cache when possible. On a miss it calls fetch,
// which must populate dest, then stores the result. Cache errors fall back to fetch.
func (c *FeedCache) Aside(ctx context.Context, scope, variant string, dest any, fetch func() error) error {
	if !c.Enabled() {
		return fetch()
	}

	gen, err := c.generation(ctx, scope)
	if err != nil {
		middleware.Logger.WarnContext(ctx, "feed cache generation lookup failed", slog.String("error", err.Error()))
		return fetch()
	}
	key := fmt.Sprintf(feedEntryPrefix, scope, gen, variant)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		if jsonErr := json.Unmarshal(raw, dest); jsonErr == nil {
			observability.FeedCacheLookups.WithLabelValues("hit").Inc()
			return nil
		}
	}
	observability.FeedCacheLookups.WithLabelValues("miss").Inc()

	if err := fetch(); err != nil {
		return err
	}

	if b, err := json.Marshal(dest); err == nil {
		if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
			middleware.Logger.WarnContext(ctx, "feed cache store failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// Invalidate bumps the generation of each scope.
func (c *FeedCache) Invalidate(ctx context.Context, scopes ...string) {
	if !c.Enabled() || len(scopes) == 0 {
		return
	}
	_, err := c.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, scope := range scopes {
			p.Incr(ctx, fmt.Sprintf(feedGenerationPrefix, scope))
		}
		return nil
	})
	if err != nil {
		middleware.Logger.WarnContext(ctx, "feed cache invalidation failed", slog.String("error", err.Error()))
	}
}
