// Package service implements the feed store, comment and query operations on
// top of the repositories.
package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"anonfeed/internal/cache"
	"anonfeed/internal/featureflags"
	"anonfeed/internal/middleware"
	"anonfeed/internal/models"
	"anonfeed/internal/notifications"
	"anonfeed/internal/observability"
	"anonfeed/internal/repository"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"
)

// DefaultStorageTimeout bounds every storage call when Options leaves it unset.
const DefaultStorageTimeout = 5 * time.Second

// IDGenerator issues resource and row ids.
type IDGenerator interface {
	ULID(t time.Time) string
	RowID() int64
}

// EventPublisher receives realtime feed hints after successful writes.
type EventPublisher interface {
	PublishFeedEvent(ctx context.Context, ev notifications.FeedEvent) error
}

// Options carries the collaborators shared by every service. Zero values are
// usable: no cache, no events, no flags.
type Options struct {
	StorageTimeout time.Duration
	Cache          *cache.FeedCache
	Events         EventPublisher
	Flags          *featureflags.Manager
	Now            func() time.Time
}

// base holds the plumbing shared by the services.
type base struct {
	timeout time.Duration
	cache   *cache.FeedCache
	events  EventPublisher
	flags   *featureflags.Manager
	now     func() time.Time
}

func newBase(opts Options) base {
	b := base{
		timeout: opts.StorageTimeout,
		cache:   opts.Cache,
		events:  opts.Events,
		flags:   opts.Flags,
		now:     opts.Now,
	}
	if b.timeout <= 0 {
		b.timeout = DefaultStorageTimeout
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b
}

// storage runs fn under the storage deadline and turns transient failures
// into STORAGE_UNAVAILABLE.
func (b base) storage(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	err := repository.Classify(fn(ctx))
	if errors.Is(err, models.ErrStorageUnavailable) {
		observability.StorageUnavailableTotal.WithLabelValues(op).Inc()
		middleware.Logger.WarnContext(ctx, "storage unavailable",
			slog.String("operation", op), slog.String("error", err.Error()))
	}
	return err
}

// afterWrite invalidates cached snapshots for scopes and publishes ev when the
// realtime flag is on for the actor. Neither step can fail the write.
func (b base) afterWrite(ctx context.Context, actor *models.Identity, ev notifications.FeedEvent, scopes ...string) {
	b.cache.Invalidate(ctx, scopes...)

	if b.events == nil || !b.flags.Enabled(featureflags.Realtime, actor.ViewerID()) {
		return
	}
	ev.At = b.now().UTC()
	if err := b.events.PublishFeedEvent(ctx, ev); err != nil {
		middleware.Logger.WarnContext(ctx, "feed event publish failed",
			slog.String("type", ev.Type), slog.String("error", err.Error()))
	}
}

// cacheFor returns the feed cache when the feed_cache flag is on for viewer, else nil.
func (b base) cacheFor(viewer *models.Identity) *cache.FeedCache {
	if b.cache.Enabled() && b.flags.Enabled(featureflags.FeedCache, viewer.ViewerID()) {
		return b.cache
	}
	return nil
}

// idempotencyClaim hashes the client key together with the actor and operation,
// so the same key from different identities or endpoints never collides.
func idempotencyClaim(anonymousID, operation, key string) *repository.IdempotencyClaim {
	if key == "" {
		return nil
	}
	h, _ := blake2b.New256(nil)
	fmt.Fprintf(h, "%d:%s|%d:%s|%s", len(anonymousID), anonymousID, len(operation), operation, key)
	return &repository.IdempotencyClaim{KeyHash: hex.EncodeToString(h.Sum(nil))}
}

// likeToggler collapses concurrent duplicate toggles of one like key into a
// single storage toggle whose result every caller shares.
type likeToggler struct {
	base
	likes repository.LikeRepository
	ids   IDGenerator
	group singleflight.Group
}

func (t *likeToggler) toggle(ctx context.Context, targetType, targetID string, actor *models.Identity) (repository.ToggleOutcome, error) {
	key := targetType + ":" + targetID + ":" + actor.AnonymousID
	v, err, _ := t.group.Do(key, func() (interface{}, error) {
		like := &models.Like{
			ID:            t.ids.RowID(),
			TargetType:    targetType,
			TargetID:      targetID,
			AnonymousID:   actor.AnonymousID,
			CompanyDomain: actor.CompanyDomain,
			CreatedAt:     t.now().UTC(),
		}
		var res repository.ToggleOutcome
		err := t.storage(ctx, "toggle_like", func(ctx context.Context) error {
			var err error
			res, err = t.likes.Toggle(ctx, like)
			return err
		})
		return res, err
	})
	if err != nil {
		return repository.ToggleOutcome{}, err
	}

	res := v.(repository.ToggleOutcome)
	observability.LikeTogglesTotal.WithLabelValues(targetType, fmt.Sprintf("%t", res.Liked)).Inc()
	return res, nil
}
