package server

import (
	"anonfeed/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

// GetFeatureFlags returns configured feature flags and their evaluated state for the caller.
// @Summary Feature flags
// @Tags flags
// @Produce json
// @Success 200 {object} object{raw=map[string]string,evaluated=map[string]bool}
// @Router /flags [get]
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	if s.rt == nil || s.rt.Flags == nil {
		return c.JSON(fiber.Map{
			"raw":       map[string]string{},
			"evaluated": map[string]bool{},
		})
	}

	viewer := middleware.IdentityFrom(c).ViewerID()
	return c.JSON(fiber.Map{
		"raw":       s.rt.Flags.Raw(),
		"evaluated": s.rt.Flags.Snapshot(viewer),
	})
}
