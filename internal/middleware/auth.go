// Package middleware provides identity, rate limiting, logging and tracing middleware for the API.
package middleware

import (
	"context"
	"strings"

	"anonfeed/internal/models"

	"github.com/gofiber/fiber/v2"
)

// IdentityResolver maps a bearer token onto a session identity.
// A nil identity is the Anonymous state.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (*models.Identity, string)
}

// ResolveIdentity attaches the caller's identity to the request. Missing or
// invalid tokens are not rejected here: reads stay open to anonymous callers.
func ResolveIdentity(resolver IdentityResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			return c.Next()
		}

		id, tokenID := resolver.Resolve(c.UserContext(), token)
		if id == nil {
			return c.Next()
		}

		c.Locals(LocalIdentity, id)
		c.Locals(LocalTokenID, tokenID)
		c.SetUserContext(WithAnonymousID(c.UserContext(), id.AnonymousID))
		return c.Next()
	}
}

// RequireIdentity rejects Anonymous callers with NOT_AUTHENTICATED.
// Must run after ResolveIdentity.
func RequireIdentity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !IdentityFrom(c).Authenticated() {
			return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewNotAuthenticatedError())
		}
		return c.Next()
	}
}

// IdentityFrom returns the identity set by ResolveIdentity, or nil.
func IdentityFrom(c *fiber.Ctx) *models.Identity {
	id, _ := c.Locals(LocalIdentity).(*models.Identity)
	return id
}

// TokenIDFrom returns the session token id set by ResolveIdentity, or "".
func TokenIDFrom(c *fiber.Ctx) string {
	tokenID, _ := c.Locals(LocalTokenID).(string)
	return tokenID
}

// bearerToken extracts the token from "Authorization: Bearer <token>". The
// websocket route has no header support in browsers, so it also reads ?token=.
func bearerToken(c *fiber.Ctx) string {
	if header := c.Get(fiber.HeaderAuthorization); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if strings.HasPrefix(c.Path(), "/api/ws") {
		return c.Query("token")
	}
	return ""
}
