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

type CommentService struct {
	base
	commentRepo repository.CommentRepository
	ids         IDGenerator
	toggler     *likeToggler
}

type CreateCommentInput struct {
	PostID         string
	Identity       *models.Identity
	Content        string
	IdempotencyKey string
}

func NewCommentService(
	commentRepo repository.CommentRepository,
	likeRepo repository.LikeRepository,
	ids IDGenerator,
	opts Options,
) *CommentService {
	b := newBase(opts)
	return &CommentService{
		base:        b,
		commentRepo: commentRepo,
		ids:         ids,
		toggler:     &likeToggler{base: b, likes: likeRepo, ids: ids},
	}
}

// CreateComment checks authentication, then content, then the post. The post
// check and the insert share one transaction.
func (s *CommentService) CreateComment(ctx context.Context, in CreateCommentInput) (_ *models.Comment, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "CommentService", "CreateComment", attribute.String("post_id", in.PostID))
	defer func() { observability.EndSpan(span, err) }()

	if !in.Identity.Authenticated() {
		return nil, models.NewNotAuthenticatedError()
	}
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, models.NewEmptyContentError("Comment")
	}

	now := s.now().UTC()
	comment := &models.Comment{
		ID:            s.ids.ULID(now),
		PostID:        in.PostID,
		CompanyDomain: in.Identity.CompanyDomain,
		AnonymousID:   in.Identity.AnonymousID,
		Content:       content,
		CreatedAt:     now,
	}
	claim := idempotencyClaim(in.Identity.AnonymousID, "create_comment:"+in.PostID, in.IdempotencyKey)

	var created *models.Comment
	var replayed bool
	err = s.storage(ctx, "create_comment", func(ctx context.Context) error {
		var err error
		created, replayed, err = s.commentRepo.Create(ctx, comment, claim)
		return err
	})
	if errors.Is(err, repository.ErrTargetNotFound) {
		return nil, models.NewPostNotFoundError(in.PostID)
	}
	if err != nil {
		return nil, err
	}

	if replayed {
		observability.IdempotentReplaysTotal.WithLabelValues(models.TargetComment).Inc()
		return created, nil
	}

	observability.CommentsCreatedTotal.Inc()
	observability.LogServiceCall(ctx, "CommentService", "CreateComment", map[string]interface{}{
		"comment_id": created.ID,
		"post_id":    created.PostID,
	})

	// Comment counts show in the post's feeds, which may belong to another company.
	feedDomain := created.CompanyDomain
	if created.Post != nil {
		feedDomain = created.Post.CompanyDomain
	}
	s.afterWrite(ctx, in.Identity, notifications.FeedEvent{
		Type:          notifications.EventCommentCreated,
		CompanyDomain: feedDomain,
		PostID:        created.PostID,
		CommentID:     created.ID,
	}, cache.ScopeAll, cache.ScopeDomain(feedDomain), cache.ScopeComments(created.PostID))

	return created, nil
}

// ToggleLikeComment flips the caller's like on commentID.
func (s *CommentService) ToggleLikeComment(ctx context.Context, commentID string, identity *models.Identity) (_ models.ToggleResult, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "CommentService", "ToggleLikeComment", attribute.String("comment_id", commentID))
	defer func() { observability.EndSpan(span, err) }()

	if !identity.Authenticated() {
		return models.ToggleResult{}, models.NewNotAuthenticatedError()
	}

	res, err := s.toggler.toggle(ctx, models.TargetComment, commentID, identity)
	if errors.Is(err, repository.ErrTargetNotFound) {
		return models.ToggleResult{}, models.NewNotFoundError("Comment", commentID)
	}
	if err != nil {
		return models.ToggleResult{}, err
	}

	likeCount := res.LikeCount
	s.afterWrite(ctx, identity, notifications.FeedEvent{
		Type:          notifications.EventCommentLikeUpdated,
		CompanyDomain: res.CompanyDomain,
		PostID:        res.PostID,
		CommentID:     commentID,
		LikeCount:     &likeCount,
	}, cache.ScopeComments(res.PostID))

	return res.ToggleResult, nil
}
