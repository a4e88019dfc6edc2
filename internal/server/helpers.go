package server

import (
	"errors"
	"log/slog"
	"strconv"

	"anonfeed/internal/middleware"
	"anonfeed/internal/models"
	"anonfeed/internal/service"
	"anonfeed/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// storageRetryAfter is the Retry-After hint, in seconds, sent with STORAGE_UNAVAILABLE.
const storageRetryAfter = 5

// parsePagination extracts limit and offset query parameters with the given default limit.
func parsePagination(c *fiber.Ctx, defaultLimit int) models.Page {
	if defaultLimit <= 0 {
		defaultLimit = service.DefaultPageLimit
	}
	return service.NormalizePage(models.Page{
		Limit:  c.QueryInt("limit", defaultLimit),
		Offset: c.QueryInt("offset", 0),
	})
}

// parseSort reads ?sort=new|top|hot. On failure it writes a 400 response and
// returns false.
func parseSort(c *fiber.Ctx) (models.SortMode, bool) {
	sort, ok := models.ParseSortMode(c.Query("sort"))
	if !ok {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("sort must be one of new, top, hot"))
		return "", false
	}
	return sort, true
}

// statusFor maps an AppError code onto its HTTP status.
func statusFor(err error) int {
	var appErr *models.AppError
	if !errors.As(err, &appErr) {
		return fiber.StatusInternalServerError
	}
	switch appErr.Code {
	case models.CodeNotAuthenticated:
		return fiber.StatusUnauthorized
	case models.CodeInvalidEmailFormat, models.CodeEmptyContent, models.CodeValidation:
		return fiber.StatusBadRequest
	case models.CodePostNotFound, models.CodeNotFound:
		return fiber.StatusNotFound
	case models.CodeStorageUnavailable:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// respondServiceError writes err with its mapped status. Unclassified errors
// are logged and hidden behind INTERNAL_ERROR.
func respondServiceError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if models.IsRetryable(err) {
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(storageRetryAfter))
	}

	var appErr *models.AppError
	if !errors.As(err, &appErr) {
		middleware.Logger.ErrorContext(c.UserContext(), "unexpected service error",
			slog.String("path", c.Path()), slog.String("error", err.Error()))
		err = models.NewInternalError(err)
	}
	return models.RespondWithError(c, status, err)
}

// contentLimit is the configured maximum post or comment length in runes.
func (s *Server) contentLimit() int {
	if s.config != nil && s.config.ContentMaxLength > 0 {
		return s.config.ContentMaxLength
	}
	return validation.DefaultContentMaxLength
}

// pageLimit is the configured default feed page size.
func (s *Server) pageLimit() int {
	if s.config != nil && s.config.FeedPageLimit > 0 {
		return s.config.FeedPageLimit
	}
	return service.DefaultPageLimit
}

// writeRequest is the body of POST /api/posts and POST /api/posts/:id/comments.
type writeRequest struct {
	Content string `json:"content"`
}

// parseWrite decodes and bounds a post or comment body and reads the
// Idempotency-Key header. On failure it writes a 400 response and returns false.
func (s *Server) parseWrite(c *fiber.Ctx) (content, idempotencyKey string, ok bool) {
	var req writeRequest
	if err := c.BodyParser(&req); err != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
		return "", "", false
	}
	if err := validation.ValidateContentLength(req.Content, s.contentLimit()); err != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError(err.Error()))
		return "", "", false
	}

	key := c.Get("Idempotency-Key")
	if err := validation.ValidateIdempotencyKey(key); err != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError(err.Error()))
		return "", "", false
	}
	return req.Content, key, true
}
