package server

import (
	"encoding/json"
	"log/slog"

	"anonfeed/internal/middleware"
	"anonfeed/internal/models"
	"anonfeed/internal/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const localFeedDomain = "feed_domain"

// FeedWebsocketUpgrade rejects plain HTTP requests and resolves ?domain=
// before the upgrade. An empty domain follows every company.
func (s *Server) FeedWebsocketUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return models.RespondWithError(c, fiber.StatusUpgradeRequired,
			models.NewValidationError("websocket upgrade required"))
	}

	domain := ""
	if raw := c.Query("domain"); raw != "" {
		normalized, err := validation.NormalizeCompanyDomain(raw)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError(err.Error()))
		}
		domain = normalized
	}
	c.Locals(localFeedDomain, domain)
	return c.Next()
}

// FeedWebsocketHandler streams feed change hints to a subscriber
// @Summary Subscribe to feed change events
// @Description Upgrades to a websocket. Each message is a JSON feed event naming the changed post. Clients refetch on receipt.
// @Tags realtime
// @Param domain query string false "company domain; omit to follow every company"
// @Success 101
// @Failure 426 {object} models.ErrorResponse
// @Router /ws/feed [get]
func (s *Server) FeedWebsocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		domain, _ := conn.Locals(localFeedDomain).(string)

		client, err := s.rt.Hub.Register(domain, conn)
		if err != nil {
			middleware.Logger.Warn("feed subscription refused",
				slog.String("company_domain", domain), slog.String("error", err.Error()))
			msg, _ := json.Marshal(fiber.Map{"type": "error", "error": err.Error()})
			_ = conn.WriteMessage(websocket.TextMessage, msg)
			_ = conn.Close()
			return
		}

		welcome, _ := json.Marshal(fiber.Map{"type": "connected", "company_domain": domain})
		s.rt.Hub.SendTo(client, welcome)

		go client.WritePump()
		client.ReadPump()
	})
}
