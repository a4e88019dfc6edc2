// Package bootstrap assembles the process runtime: storage handles, the feed
// services and the realtime plumbing that cmd/server and the tests share.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"anonfeed/internal/cache"
	"anonfeed/internal/config"
	"anonfeed/internal/database"
	"anonfeed/internal/featureflags"
	"anonfeed/internal/identity"
	"anonfeed/internal/idgen"
	"anonfeed/internal/middleware"
	"anonfeed/internal/notifications"
	"anonfeed/internal/repository"
	"anonfeed/internal/seed"
	"anonfeed/internal/service"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// SeedFixtures loads the sample company feeds after the schema is applied.
	SeedFixtures bool
}

// Runtime owns every long-lived dependency of the API.
type Runtime struct {
	Config *config.Config
	DB     *gorm.DB
	Redis  *redis.Client

	Flags    *featureflags.Manager
	Notifier *notifications.Notifier
	Hub      *notifications.Hub

	Sessions *identity.Resolver
	// AssertionVerifier checks authenticator-issued assertions. Nil when not configured.
	AssertionVerifier identity.Verifier
	// EmailVerifier accepts bare emails. Nil outside trusted development setups.
	EmailVerifier identity.Verifier

	Posts    *service.PostService
	Comments *service.CommentService
	Feed     *service.FeedQuery
}

// Open connects to the configured database and Redis, then wires the runtime.
// Redis is optional: without it sessions, rate limits and events stay in-process.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	rdb := cache.Connect(cfg.RedisURL)

	rt, err := New(cfg, db, rdb)
	if err != nil {
		_ = database.Close(db)
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil, err
	}

	if opts.SeedFixtures {
		summary, err := seed.Fixtures(ctx, rt.Posts, rt.Comments)
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("failed to seed fixtures: %w", err)
		}
		middleware.Logger.Info("fixtures seeded",
			slog.Int("posts", summary.Posts), slog.Int("comments", summary.Comments))
	}

	return rt, nil
}

// New wires a runtime over already-open handles. rdb may be nil.
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client) (*Runtime, error) {
	if cfg == nil || db == nil {
		return nil, errors.New("bootstrap: config and database are required")
	}

	rdb = cache.Instrument(rdb)

	ids, err := idgen.New(cfg.NodeID)
	if err != nil {
		return nil, err
	}

	var store identity.SessionStore
	if rdb != nil {
		store = identity.NewRedisSessionStore(rdb)
	}
	sessions, err := identity.NewResolver(cfg.JWTSecret, cfg.SessionTTL, store)
	if err != nil {
		return nil, fmt.Errorf("session resolver: %w", err)
	}

	flags := featureflags.NewManager(cfg.FeatureFlags)
	notifier := notifications.NewNotifier(rdb)
	opts := service.Options{
		StorageTimeout: cfg.StorageTimeout,
		Cache:          cache.NewFeedCache(rdb, cache.FeedTTL),
		Events:         notifier,
		Flags:          flags,
	}

	postRepo := repository.NewPostRepository(db)
	commentRepo := repository.NewCommentRepository(db)
	likeRepo := repository.NewLikeRepository(db)

	rt := &Runtime{
		Config:   cfg,
		DB:       db,
		Redis:    rdb,
		Flags:    flags,
		Notifier: notifier,
		Hub:      notifications.NewHub(),
		Sessions: sessions,
		Posts:    service.NewPostService(postRepo, likeRepo, ids, opts),
		Comments: service.NewCommentService(commentRepo, likeRepo, ids, opts),
		Feed:     service.NewFeedQuery(postRepo, commentRepo, likeRepo, opts),
	}

	if cfg.AuthAssertionSecret != "" {
		rt.AssertionVerifier = identity.NewJWTAssertionVerifier(
			cfg.AuthAssertionSecret, cfg.AuthAssertionIssuer, cfg.AuthAssertionAudience)
	}
	if cfg.AuthTrustPlainEmail && !cfg.IsProduction() {
		rt.EmailVerifier = identity.TrustedEmailVerifier{}
	}

	return rt, nil
}

// Close releases the database and Redis handles.
func (r *Runtime) Close() error {
	var errs []error
	if err := database.Close(r.DB); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	if r.Redis != nil {
		if err := r.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}
