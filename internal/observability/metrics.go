package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anonfeed_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "anonfeed_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// StorageUnavailableTotal counts operations that failed with a transient storage error.
	StorageUnavailableTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anonfeed_storage_unavailable_total",
		Help: "Total number of operations that failed because storage was unavailable",
	}, []string{"operation"})

	// PostsCreatedTotal counts created posts.
	PostsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anonfeed_posts_created_total",
		Help: "Total number of posts created",
	})

	// CommentsCreatedTotal counts created comments.
	CommentsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anonfeed_comments_created_total",
		Help: "Total number of comments created",
	})

	// LikeTogglesTotal counts like toggles by target type and resulting state.
	LikeTogglesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anonfeed_like_toggles_total",
		Help: "Total number of like toggles",
	}, []string{"target_type", "liked"})

	// IdempotentReplaysTotal counts create requests answered from an idempotency record.
	IdempotentReplaysTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anonfeed_idempotent_replays_total",
		Help: "Total number of create requests replayed from an idempotency key",
	}, []string{"resource_type"})

	// FeedCacheLookups counts feed cache lookups by result (hit or miss).
	FeedCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anonfeed_feed_cache_lookups_total",
		Help: "Total number of feed cache lookups",
	}, []string{"result"})

	// SessionsTotal counts session lifecycle events (sign_in, sign_out).
	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anonfeed_sessions_total",
		Help: "Total number of session lifecycle events",
	}, []string{"event"})

	// FeedSubscribers is the gauge of open realtime feed connections.
	FeedSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "anonfeed_feed_subscribers",
		Help: "Number of open realtime feed connections",
	})

	// RealtimeDrops counts realtime events dropped because a subscriber was too slow.
	RealtimeDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anonfeed_realtime_drops_total",
		Help: "Total number of realtime events dropped due to backpressure",
	})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}
