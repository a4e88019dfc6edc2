package server

import (
	"anonfeed/internal/middleware"
	"anonfeed/internal/models"
	"anonfeed/internal/service"
	"anonfeed/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// GetPosts handles GET /api/posts
// @Summary List posts from every company
// @Tags posts
// @Produce json
// @Param sort query string false "new (default), top or hot"
// @Param limit query int false "page size, max 100"
// @Param offset query int false "page offset"
// @Success 200 {array} models.Post
// @Failure 400 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /posts [get]
func (s *Server) GetPosts(c *fiber.Ctx) error {
	sort, ok := parseSort(c)
	if !ok {
		return nil
	}
	page := parsePagination(c, s.pageLimit())

	posts, err := s.rt.Feed.GetAllPosts(c.UserContext(), sort, page, middleware.IdentityFrom(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(posts)
}

// GetCompanyPosts handles GET /api/company/:domain/posts
// @Summary List one company's posts
// @Tags posts
// @Produce json
// @Param domain path string true "company domain"
// @Param sort query string false "new (default), top or hot"
// @Param limit query int false "page size, max 100"
// @Param offset query int false "page offset"
// @Success 200 {array} models.Post
// @Failure 400 {object} models.ErrorResponse
// @Router /company/{domain}/posts [get]
func (s *Server) GetCompanyPosts(c *fiber.Ctx) error {
	domain, err := validation.NormalizeCompanyDomain(c.Params("domain"))
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError(err.Error()))
	}
	sort, ok := parseSort(c)
	if !ok {
		return nil
	}
	page := parsePagination(c, s.pageLimit())

	posts, err := s.rt.Feed.GetPostsByDomain(c.UserContext(), domain, sort, page, middleware.IdentityFrom(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(posts)
}

// CreatePost handles POST /api/posts
// @Summary Create a post in the caller's company feed
// @Tags posts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "client retry key"
// @Param request body object{content=string} true "post body"
// @Success 201 {object} models.Post
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /posts [post]
func (s *Server) CreatePost(c *fiber.Ctx) error {
	content, key, ok := s.parseWrite(c)
	if !ok {
		return nil
	}

	post, err := s.rt.Posts.CreatePost(c.UserContext(), service.CreatePostInput{
		Identity:       middleware.IdentityFrom(c),
		Content:        content,
		IdempotencyKey: key,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// LikePost handles POST /api/posts/:id/like
// @Summary Toggle the caller's like on a post
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param id path string true "post id"
// @Success 200 {object} models.ToggleResult
// @Failure 401 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id}/like [post]
func (s *Server) LikePost(c *fiber.Ctx) error {
	res, err := s.rt.Posts.ToggleLike(c.UserContext(), c.Params("id"), middleware.IdentityFrom(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(res)
}
