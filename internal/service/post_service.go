package service

import (
	"context"
	"errors"
	"strings"

	"anonfeed/internal/cache"
	"anonfeed/internal/models"
	"anonfeed/internal/notifications"
	"anonfeed/internal/observability"
	"anonfeed/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// PostService creates posts and toggles post likes.
type PostService struct {
	base
	postRepo repository.PostRepository
	ids      IDGenerator
	toggler  *likeToggler
}

// CreatePostInput is the input of CreatePost. Domain and author come from Identity only.
type CreatePostInput struct {
	Identity       *models.Identity
	Content        string
	IdempotencyKey string
}

func NewPostService(
	postRepo repository.PostRepository,
	likeRepo repository.LikeRepository,
	ids IDGenerator,
	opts Options,
) *PostService {
	b := newBase(opts)
	return &PostService{
		base:     b,
		postRepo: postRepo,
		ids:      ids,
		toggler:  &likeToggler{base: b, likes: likeRepo, ids: ids},
	}
}

func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (_ *models.Post, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "PostService", "CreatePost")
	defer func() { observability.EndSpan(span, err) }()

	if !in.Identity.Authenticated() {
		return nil, models.NewNotAuthenticatedError()
	}
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, models.NewEmptyContentError("Post")
	}

	now := s.now().UTC()
	post := &models.Post{
		ID:            s.ids.ULID(now),
		CompanyDomain: in.Identity.CompanyDomain,
		AnonymousID:   in.Identity.AnonymousID,
		Content:       content,
		CreatedAt:     now,
	}
	claim := idempotencyClaim(in.Identity.AnonymousID, "create_post", in.IdempotencyKey)

	var created *models.Post
	var replayed bool
	err = s.storage(ctx, "create_post", func(ctx context.Context) error {
		var err error
		created, replayed, err = s.postRepo.Create(ctx, post, claim)
		return err
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Bool("idempotent_replay", replayed))

	if replayed {
		observability.IdempotentReplaysTotal.WithLabelValues(models.TargetPost).Inc()
		return created, nil
	}

	observability.PostsCreatedTotal.Inc()
	observability.LogServiceCall(ctx, "PostService", "CreatePost", map[string]interface{}{
		"post_id":        created.ID,
		"company_domain": created.CompanyDomain,
	})
	s.afterWrite(ctx, in.Identity, notifications.FeedEvent{
		Type:          notifications.EventPostCreated,
		CompanyDomain: created.CompanyDomain,
		PostID:        created.ID,
	}, cache.ScopeAll, cache.ScopeDomain(created.CompanyDomain))

	return created, nil
}

// ToggleLike flips the caller's like on postID.
func (s *PostService) ToggleLike(ctx context.Context, postID string, identity *models.Identity) (_ models.ToggleResult, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "PostService", "ToggleLike", attribute.String("post_id", postID))
	defer func() { observability.EndSpan(span, err) }()

	if !identity.Authenticated() {
		return models.ToggleResult{}, models.NewNotAuthenticatedError()
	}

	res, err := s.toggler.toggle(ctx, models.TargetPost, postID, identity)
	if errors.Is(err, repository.ErrTargetNotFound) {
		return models.ToggleResult{}, models.NewPostNotFoundError(postID)
	}
	if err != nil {
		return models.ToggleResult{}, err
	}

	likeCount := res.LikeCount
	s.afterWrite(ctx, identity, notifications.FeedEvent{
		Type:          notifications.EventPostLikeUpdated,
		CompanyDomain: res.CompanyDomain,
		PostID:        postID,
		LikeCount:     &likeCount,
	}, cache.ScopeAll, cache.ScopeDomain(res.CompanyDomain))

	return res.ToggleResult, nil
}
