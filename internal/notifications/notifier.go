// Package notifications fans feed change hints out to realtime subscribers.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"anonfeed/internal/middleware"

	"github.com/redis/go-redis/v9"
)

// Feed event types. Events carry ids and counts only, never content, so
// subscribers re-run their feed query to pick up the change.
const (
	EventPostCreated        = "post_created"
	EventPostLikeUpdated    = "post_like_updated"
	EventCommentCreated     = "comment_created"
	EventCommentLikeUpdated = "comment_like_updated"
)

const feedChannelPrefix = "feed:domain:"

// FeedEvent is the payload published on a company's feed channel.
type FeedEvent struct {
	Type          string    `json:"type"`
	CompanyDomain string    `json:"company_domain"`
	PostID        string    `json:"post_id"`
	CommentID     string    `json:"comment_id,omitempty"`
	LikeCount     *int      `json:"like_count,omitempty"`
	At            time.Time `json:"at"`
}

// FeedChannel derives the Redis channel name for a company feed.
func FeedChannel(domain string) string {
	return feedChannelPrefix + domain
}

// DomainFromChannel is the inverse of FeedChannel.
func DomainFromChannel(channel string) (string, bool) {
	domain, ok := strings.CutPrefix(channel, feedChannelPrefix)
	return domain, ok && domain != ""
}

// Notifier publishes feed events into Redis channels. Without Redis, events go
// straight to the local sink so a single process still delivers them.
type Notifier struct {
	rdb *redis.Client

	mu   sync.RWMutex
	sink func(domain string, payload []byte)
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// SetLocalSink installs the in-process delivery used when Redis is absent.
func (n *Notifier) SetLocalSink(sink func(domain string, payload []byte)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sink = sink
}

// PublishFeedEvent publishes ev on its company's channel.
func (n *Notifier) PublishFeedEvent(ctx context.Context, ev FeedEvent) error {
	if ev.CompanyDomain == "" {
		return fmt.Errorf("feed event %q has no company domain", ev.Type)
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	if n.rdb == nil {
		n.mu.RLock()
		sink := n.sink
		n.mu.RUnlock()
		if sink != nil {
			sink(ev.CompanyDomain, payload)
		}
		return nil
	}
	return n.rdb.Publish(ctx, FeedChannel(ev.CompanyDomain), payload).Err()
}

// StartFeedSubscriber subscribes to every company feed channel and calls
// onMessage for each incoming message until ctx is done.
func (n *Notifier) StartFeedSubscriber(
	ctx context.Context, onMessage func(channel string, payload string),
) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, feedChannelPrefix+"*")
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe feed channels: %w", err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							middleware.Logger.Error("panic in feed subscriber",
								slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
						}
					}()
					onMessage(msg.Channel, msg.Payload)
				}()
			}
		}
	}()

	return nil
}
