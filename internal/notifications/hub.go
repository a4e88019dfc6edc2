package notifications

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"anonfeed/internal/middleware"
	"anonfeed/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Max subscribers per company feed
	maxConnsPerDomain = 2000
	// Max total connections
	maxTotalConns = 10000
)

// ErrHubClosed is returned by Register after Shutdown.
var ErrHubClosed = errors.New("feed hub is shut down")

// Hub maps company domain -> subscribed clients. Clients registered under ""
// follow every company.
type Hub struct {
	mu         sync.RWMutex
	conns      map[string]map[*Client]struct{}
	totalConns int
	closed     bool
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[string]map[*Client]struct{})}
}

// Register subscribes conn to domain's events. Returns an error if limits are exceeded.
func (h *Hub) Register(domain string, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}
	if h.totalConns >= maxTotalConns {
		return nil, errors.New("server connection limit reached")
	}

	m, ok := h.conns[domain]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[domain] = m
	}
	if len(m) >= maxConnsPerDomain {
		return nil, errors.New("feed connection limit reached")
	}

	client := newClient(h, conn, domain)
	m[client] = struct{}{}
	h.totalConns++
	observability.FeedSubscribers.Inc()
	return client, nil
}

// Unregister removes client and closes its send channel. Safe to call twice.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.conns[client.Domain]
	if !ok {
		return
	}
	if _, exists := m[client]; !exists {
		return
	}
	delete(m, client)
	if len(m) == 0 {
		delete(h.conns, client.Domain)
	}
	h.totalConns--
	observability.FeedSubscribers.Dec()
	close(client.Send)
}

// Deliver sends payload to domain's subscribers and to all-company subscribers.
func (h *Hub) Deliver(domain string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.conns[domain] {
		c.trySend(payload)
	}
	if domain != "" {
		for c := range h.conns[""] {
			c.trySend(payload)
		}
	}
}

// SendTo queues payload for a single registered client. It is a no-op once
// the client is unregistered or the hub is shut down.
func (h *Hub) SendTo(client *Client, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.conns[client.Domain][client]; ok {
		client.trySend(payload)
	}
}

// Subscribers reports the number of clients following domain.
func (h *Hub) Subscribers(domain string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[domain])
}

// StartWiring connects the Notifier to this hub. With Redis it subscribes to
// every feed channel; without Redis the notifier delivers in-process.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	n.SetLocalSink(h.Deliver)
	return n.StartFeedSubscriber(ctx, func(channel, payload string) {
		domain, ok := DomainFromChannel(channel)
		if !ok {
			middleware.Logger.Warn("invalid feed channel", slog.String("channel", channel))
			return
		}
		h.Deliver(domain, []byte(payload))
	})
}

// Shutdown closes all websocket connections and refuses new ones.
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	// Closing Send makes each WritePump send a close frame and drop the connection.
	for _, clients := range h.conns {
		for client := range clients {
			close(client.Send)
			observability.FeedSubscribers.Dec()
		}
	}
	h.conns = make(map[string]map[*Client]struct{})
	h.totalConns = 0
	return nil
}
