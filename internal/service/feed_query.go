package service

import (
	"context"
	"fmt"
	"strings"

	"anonfeed/internal/cache"
	"anonfeed/internal/models"
	"anonfeed/internal/observability"
	"anonfeed/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// Page size bounds for feed queries.
const (
	DefaultPageLimit = 50
	MaxPageLimit     = 100
)

// FeedQuery serves feed snapshots with the viewer's liked flags overlaid.
type FeedQuery struct {
	base
	postRepo    repository.PostRepository
	commentRepo repository.CommentRepository
	likeRepo    repository.LikeRepository
}

func NewFeedQuery(
	postRepo repository.PostRepository,
	commentRepo repository.CommentRepository,
	likeRepo repository.LikeRepository,
	opts Options,
) *FeedQuery {
	return &FeedQuery{
		base:        newBase(opts),
		postRepo:    postRepo,
		commentRepo: commentRepo,
		likeRepo:    likeRepo,
	}
}

// NormalizePage applies the default limit, caps it at MaxPageLimit and clamps
// a negative offset to zero.
func NormalizePage(p models.Page) models.Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// GetAllPosts returns a page of posts from every company. viewer may be nil.
func (q *FeedQuery) GetAllPosts(ctx context.Context, sort models.SortMode, page models.Page, viewer *models.Identity) (_ []*models.Post, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "FeedQuery", "GetAllPosts", attribute.String("sort", string(sort)))
	defer func() { observability.EndSpan(span, err) }()

	return q.listPosts(ctx, "", cache.ScopeAll, sort, page, viewer)
}

// GetPostsByDomain returns a page of one company's posts. Domains compare case-insensitively.
func (q *FeedQuery) GetPostsByDomain(ctx context.Context, domain string, sort models.SortMode, page models.Page, viewer *models.Identity) (_ []*models.Post, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "FeedQuery", "GetPostsByDomain",
		attribute.String("company_domain", domain), attribute.String("sort", string(sort)))
	defer func() { observability.EndSpan(span, err) }()

	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return []*models.Post{}, nil
	}
	return q.listPosts(ctx, domain, cache.ScopeDomain(domain), sort, page, viewer)
}

func (q *FeedQuery) listPosts(ctx context.Context, domain, scope string, sort models.SortMode, page models.Page, viewer *models.Identity) ([]*models.Post, error) {
	if sort != models.SortTop {
		sort = models.SortNew
	}
	page = NormalizePage(page)

	var posts []*models.Post
	variant := fmt.Sprintf("%s:%d:%d", sort, page.Limit, page.Offset)
	err := q.cacheFor(viewer).Aside(ctx, scope, variant, &posts, func() error {
		return q.storage(ctx, "list_posts", func(ctx context.Context) error {
			var err error
			posts, err = q.postRepo.List(ctx, domain, sort, page)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	if posts == nil {
		posts = []*models.Post{}
	}

	if viewer.ViewerID() == "" || len(posts) == 0 {
		return posts, nil
	}
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	liked, err := q.likedSet(ctx, models.TargetPost, viewer, ids)
	if err != nil {
		return nil, err
	}
	for _, p := range posts {
		p.Liked = liked[p.ID]
	}
	return posts, nil
}

// GetCommentsByPost returns postID's comments, oldest first. An unknown post
// has no comments.
func (q *FeedQuery) GetCommentsByPost(ctx context.Context, postID string, viewer *models.Identity) (_ []*models.Comment, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "FeedQuery", "GetCommentsByPost", attribute.String("post_id", postID))
	defer func() { observability.EndSpan(span, err) }()

	var comments []*models.Comment
	err = q.cacheFor(viewer).Aside(ctx, cache.ScopeComments(postID), "all", &comments, func() error {
		return q.storage(ctx, "list_comments", func(ctx context.Context) error {
			var err error
			comments, err = q.commentRepo.ListByPost(ctx, postID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	if comments == nil {
		comments = []*models.Comment{}
	}

	if viewer.ViewerID() == "" || len(comments) == 0 {
		return comments, nil
	}
	ids := make([]string, len(comments))
	for i, c := range comments {
		ids[i] = c.ID
	}
	liked, err := q.likedSet(ctx, models.TargetComment, viewer, ids)
	if err != nil {
		return nil, err
	}
	for _, c := range comments {
		c.Liked = liked[c.ID]
	}
	return comments, nil
}

func (q *FeedQuery) likedSet(ctx context.Context, targetType string, viewer *models.Identity, ids []string) (map[string]bool, error) {
	var liked map[string]bool
	err := q.storage(ctx, "liked_ids", func(ctx context.Context) error {
		var err error
		liked, err = q.likeRepo.LikedTargetIDs(ctx, targetType, viewer.ViewerID(), ids)
		return err
	})
	return liked, err
}
