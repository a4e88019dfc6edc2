package notifications

import (
	"log/slog"
	"time"

	"anonfeed/internal/middleware"
	"anonfeed/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Subscribers only send control frames.
	maxMessageSize = 512

	sendBuffer = 64
)

var dropNotice = []byte(`{"type":"events_dropped"}`)

// Client is a middleman between a websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection. Nil in tests that only exercise fan-out.
	Conn *websocket.Conn

	// Buffered channel of outbound messages.
	Send chan []byte

	// Domain is the subscribed company, or "" for every company.
	Domain string
}

func newClient(hub *Hub, conn *websocket.Conn, domain string) *Client {
	return &Client{
		hub:    hub,
		Conn:   conn,
		Domain: domain,
		Send:   make(chan []byte, sendBuffer),
	}
}

// ReadPump drains control frames until the peer goes away, then unregisters.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { _ = c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				middleware.Logger.Debug("feed subscriber read error",
					slog.String("company_domain", c.Domain), slog.String("error", err.Error()))
			}
			return
		}
	}
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// trySend queues message without blocking. A full buffer drops it and queues
// a drop notice instead, so the client knows to refetch.
func (c *Client) trySend(message []byte) {
	select {
	case c.Send <- message:
	default:
		observability.RealtimeDrops.Inc()
		select {
		case c.Send <- dropNotice:
		default:
		}
	}
}
