package server

import (
	"anonfeed/internal/middleware"
	"anonfeed/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetComments handles GET /api/posts/:id/comments
// @Summary List a post's comments, oldest first
// @Tags comments
// @Produce json
// @Param id path string true "post id"
// @Success 200 {array} models.Comment
// @Failure 503 {object} models.ErrorResponse
// @Router /posts/{id}/comments [get]
func (s *Server) GetComments(c *fiber.Ctx) error {
	comments, err := s.rt.Feed.GetCommentsByPost(c.UserContext(), c.Params("id"), middleware.IdentityFrom(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(comments)
}

// CreateComment handles POST /api/posts/:id/comments
// @Summary Comment on a post
// @Tags comments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "post id"
// @Param Idempotency-Key header string false "client retry key"
// @Param request body object{content=string} true "comment body"
// @Success 201 {object} models.Comment
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id}/comments [post]
func (s *Server) CreateComment(c *fiber.Ctx) error {
	content, key, ok := s.parseWrite(c)
	if !ok {
		return nil
	}

	comment, err := s.rt.Comments.CreateComment(c.UserContext(), service.CreateCommentInput{
		PostID:         c.Params("id"),
		Identity:       middleware.IdentityFrom(c),
		Content:        content,
		IdempotencyKey: key,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}

// LikeComment handles POST /api/comments/:id/like
// @Summary Toggle the caller's like on a comment
// @Tags comments
// @Produce json
// @Security BearerAuth
// @Param id path string true "comment id"
// @Success 200 {object} models.ToggleResult
// @Failure 401 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /comments/{id}/like [post]
func (s *Server) LikeComment(c *fiber.Ctx) error {
	res, err := s.rt.Comments.ToggleLikeComment(c.UserContext(), c.Params("id"), middleware.IdentityFrom(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(res)
}
