package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// FailPolicy defines the behavior when the rate limit store (Redis) is unavailable.
type FailPolicy int

const (
	// FailOpen falls back to a per-process token bucket if Redis is unavailable.
	FailOpen FailPolicy = iota
	// FailClosed blocks the request (503 Service Unavailable) if Redis is unavailable.
	FailClosed
)

const maxLocalBuckets = 10000

// CheckRateLimit counts one request for id against a fixed window in Redis.
// Returns true if allowed, false if limit exceeded.
func CheckRateLimit(ctx context.Context, rdb *redis.Client, resource, id string, limit int, window time.Duration) (bool, error) {
	if rdb == nil {
		return false, fmt.Errorf("redis client is nil")
	}

	key := fmt.Sprintf("rl:%s:%s", resource, id)

	// INCR and set EXPIRE if new
	cnt, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if cnt == 1 {
		rdb.Expire(ctx, key, window)
	}
	return cnt <= int64(limit), nil
}

// RateLimiter enforces limit requests per window for each caller, using Redis
// when available and an in-process token bucket otherwise.
type RateLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	policy FailPolicy

	mu    sync.Mutex
	local map[string]*rate.Limiter
}

// NewRateLimiter creates a RateLimiter. rdb may be nil.
func NewRateLimiter(rdb *redis.Client, limit int, window time.Duration, policy FailPolicy) *RateLimiter {
	return &RateLimiter{
		rdb:    rdb,
		limit:  limit,
		window: window,
		policy: policy,
		local:  make(map[string]*rate.Limiter),
	}
}

// Allow reports whether one more request for (resource, id) fits the budget.
func (l *RateLimiter) Allow(ctx context.Context, resource, id string) (bool, error) {
	if l.rdb != nil {
		allowed, err := CheckRateLimit(ctx, l.rdb, resource, id, l.limit, l.window)
		if err == nil {
			return allowed, nil
		}
		if l.policy == FailClosed {
			return false, err
		}
		Logger.WarnContext(ctx, "rate limit store unavailable, using local bucket",
			slog.String("resource", resource), slog.String("error", err.Error()))
	} else if l.policy == FailClosed {
		return false, fmt.Errorf("redis client is nil")
	}
	return l.localBucket(resource + ":" + id).Allow(), nil
}

func (l *RateLimiter) localBucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.local[key]; ok {
		return b
	}
	if len(l.local) >= maxLocalBuckets {
		l.local = make(map[string]*rate.Limiter)
	}
	b := rate.NewLimiter(rate.Every(l.window/time.Duration(l.limit)), l.limit)
	l.local[key] = b
	return b
}

// Handler returns a Fiber middleware for the named resource. It keys by
// anonymous id when ResolveIdentity found one, otherwise by remote IP.
// Limits are skipped in test and development.
func (l *RateLimiter) Handler(name string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch os.Getenv("APP_ENV") {
		case "", "test", "development":
			return c.Next()
		}

		var id string
		if identity := IdentityFrom(c); identity != nil {
			id = "anon:" + identity.AnonymousID
		} else {
			id = "ip:" + c.IP()
		}

		allowed, err := l.Allow(c.UserContext(), name, id)
		if err != nil {
			Logger.WarnContext(c.UserContext(), "rate limit fail-closed",
				slog.String("resource", name), slog.String("error", err.Error()))
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "rate limit unavailable",
			})
		}
		if !allowed {
			c.Set(fiber.HeaderRetryAfter, fmt.Sprintf("%d", int(l.window.Seconds())))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded",
			})
		}
		return c.Next()
	}
}
