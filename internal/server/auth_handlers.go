package server

import (
	"strings"

	"anonfeed/internal/identity"
	"anonfeed/internal/middleware"
	"anonfeed/internal/models"

	"github.com/gofiber/fiber/v2"
)

type signInRequest struct {
	// Assertion is an authenticator-issued token carrying a verified email.
	Assertion string `json:"assertion"`
	// Email is accepted only when plain-email sign-in is enabled.
	Email string `json:"email"`
}

// SignIn handles POST /api/session
// @Summary Sign in and receive an anonymous session
// @Description Exchanges a verified-email assertion for an anonymous id scoped to the email's company domain. The email is never stored.
// @Tags session
// @Accept json
// @Produce json
// @Param request body object{assertion=string,email=string} true "Sign-in request"
// @Success 201 {object} identity.Session
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /session [post]
func (s *Server) SignIn(c *fiber.Ctx) error {
	var req signInRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	var verifier identity.Verifier
	var assertion string
	switch {
	case strings.TrimSpace(req.Assertion) != "":
		verifier, assertion = s.rt.AssertionVerifier, req.Assertion
	case strings.TrimSpace(req.Email) != "":
		verifier, assertion = s.rt.EmailVerifier, req.Email
	default:
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("assertion or email is required"))
	}
	if verifier == nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("this sign-in method is not enabled"))
	}

	email, err := verifier.Verify(c.UserContext(), assertion)
	if err != nil {
		return respondServiceError(c, err)
	}

	session, err := s.rt.Sessions.SignIn(c.UserContext(), email)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(session)
}

// SignOut handles DELETE /api/session
// @Summary Sign out
// @Description Revokes the bearer session. Succeeds for unknown or already revoked sessions.
// @Tags session
// @Security BearerAuth
// @Success 204
// @Failure 503 {object} models.ErrorResponse
// @Router /session [delete]
func (s *Server) SignOut(c *fiber.Ctx) error {
	if tokenID := middleware.TokenIDFrom(c); tokenID != "" {
		if err := s.rt.Sessions.SignOut(c.UserContext(), tokenID); err != nil {
			return respondServiceError(c, err)
		}
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetSession handles GET /api/session
// @Summary Current identity state
// @Tags session
// @Produce json
// @Success 200 {object} object{state=string,identity=models.Identity}
// @Router /session [get]
func (s *Server) GetSession(c *fiber.Ctx) error {
	id := middleware.IdentityFrom(c)
	return c.JSON(fiber.Map{
		"state":    id.State(),
		"identity": id,
	})
}
