package service

import (
	"context"
	"testing"

	"anonfeed/internal/models"
	"anonfeed/internal/notifications"
	"anonfeed/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommentService_CreateCommentErrorOrder(t *testing.T) {
	t.Parallel()

	repo := &commentRepoStub{
		createFn: func(context.Context, *models.Comment, *repository.IdempotencyClaim) (*models.Comment, bool, error) {
			return nil, false, repository.ErrTargetNotFound
		},
	}
	svc := NewCommentService(repo, &likeRepoStub{}, testIDs(t), Options{})

	tests := []struct {
		name     string
		identity *models.Identity
		content  string
		want     error
	}{
		{name: "anonymous on missing post", identity: nil, content: "", want: models.ErrNotAuthenticated},
		{name: "blank on missing post", identity: identity("AAAA0001", "tech.com"), content: "   ", want: models.ErrEmptyContent},
		{name: "missing post", identity: identity("AAAA0001", "tech.com"), content: "hi", want: models.ErrPostNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := svc.CreateComment(context.Background(), CreateCommentInput{
				PostID:   "01JNOTHERE000000000000000",
				Identity: tt.identity,
				Content:  tt.content,
			})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCommentService_MissingPostHasNoSideEffects(t *testing.T) {
	s := newFeedStack(t, Options{})
	ctx := context.Background()
	alice := identity("AAAA0001", "tech.com")
	post := s.mustPost(t, alice, "post")
	s.mustComment(t, alice, post.ID, "c1")

	_, err := s.comments.CreateComment(ctx, CreateCommentInput{
		PostID:         "01JNOTHERE000000000000000",
		Identity:       alice,
		Content:        "orphan",
		IdempotencyKey: "k1",
	})
	require.ErrorIs(t, err, models.ErrPostNotFound)

	var comments, claims int64
	require.NoError(t, s.db.Model(&models.Comment{}).Count(&comments).Error)
	require.NoError(t, s.db.Model(&models.IdempotencyRecord{}).Count(&claims).Error)
	assert.Equal(t, int64(1), comments)
	assert.Zero(t, claims)

	feed, err := s.query.GetAllPosts(ctx, models.SortNew, models.Page{}, nil)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, 1, feed[0].CommentCount)
	assert.Equal(t, []string{notifications.EventPostCreated, notifications.EventCommentCreated}, s.events.types())
}

func TestCommentService_CommentCountMatchesThread(t *testing.T) {
	s := newFeedStack(t, Options{})
	ctx := context.Background()
	alice := identity("AAAA0001", "tech.com")
	bob := identity("BBBB0001", "corp.com")

	p1 := s.mustPost(t, alice, "one")
	p2 := s.mustPost(t, bob, "two")
	for i, target := range []*models.Post{p1, p2, p1, p1, p2} {
		who := alice
		if i%2 == 1 {
			who = bob
		}
		s.mustComment(t, who, target.ID, "comment")

		feed, err := s.query.GetAllPosts(ctx, models.SortNew, models.Page{}, nil)
		require.NoError(t, err)
		for _, p := range feed {
			thread, err := s.query.GetCommentsByPost(ctx, p.ID, nil)
			require.NoError(t, err)
			assert.Equal(t, len(thread), p.CommentCount, "post %s after %d comments", p.ID, i+1)
		}
	}
}

func TestCommentService_ThreadOrderAndAuthorship(t *testing.T) {
	s := newFeedStack(t, Options{})
	ctx := context.Background()
	alice := identity("AAAA0001", "tech.com")
	bob := identity("BBBB0001", "corp.com")

	post := s.mustPost(t, alice, "post")
	c1 := s.mustComment(t, bob, post.ID, "  first  ")
	c2 := s.mustComment(t, alice, post.ID, "second")

	assert.Equal(t, "first", c1.Content)
	assert.Equal(t, "corp.com", c1.CompanyDomain)
	assert.Equal(t, "BBBB0001", c1.AnonymousID)

	thread, err := s.query.GetCommentsByPost(ctx, post.ID, nil)
	require.NoError(t, err)
	require.Len(t, thread, 2)
	assert.Equal(t, c1.ID, thread[0].ID)
	assert.Equal(t, c2.ID, thread[1].ID)

	// A cross-company comment still invalidates and notifies the post's feed.
	last := s.events.events[len(s.events.events)-1]
	assert.Equal(t, notifications.EventCommentCreated, last.Type)
	assert.Equal(t, "tech.com", last.CompanyDomain)
}

func TestCommentService_IdempotentReplay(t *testing.T) {
	s := newFeedStack(t, Options{})
	ctx := context.Background()
	alice := identity("AAAA0001", "tech.com")
	p1 := s.mustPost(t, alice, "one")
	p2 := s.mustPost(t, alice, "two")

	in := CreateCommentInput{PostID: p1.ID, Identity: alice, Content: "hi", IdempotencyKey: "same"}
	first, err := s.comments.CreateComment(ctx, in)
	require.NoError(t, err)
	again, err := s.comments.CreateComment(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	// The claim is scoped per post.
	in.PostID = p2.ID
	other, err := s.comments.CreateComment(ctx, in)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)

	thread, err := s.query.GetCommentsByPost(ctx, p1.ID, nil)
	require.NoError(t, err)
	assert.Len(t, thread, 1)
}

func TestCommentService_ToggleLikeComment(t *testing.T) {
	s := newFeedStack(t, Options{})
	ctx := context.Background()
	alice := identity("AAAA0001", "tech.com")
	bob := identity("BBBB0001", "corp.com")
	post := s.mustPost(t, alice, "post")
	comment := s.mustComment(t, bob, post.ID, "comment")

	res, err := s.comments.ToggleLikeComment(ctx, comment.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, models.ToggleResult{Liked: true, LikeCount: 1}, res)

	thread, err := s.query.GetCommentsByPost(ctx, post.ID, alice)
	require.NoError(t, err)
	require.Len(t, thread, 1)
	assert.True(t, thread[0].Liked)
	assert.Equal(t, 1, thread[0].LikeCount)

	// Comment likes do not count toward the post.
	feed, err := s.query.GetAllPosts(ctx, models.SortNew, models.Page{}, alice)
	require.NoError(t, err)
	assert.Equal(t, 0, feed[0].LikeCount)
	assert.False(t, feed[0].Liked)

	res, err = s.comments.ToggleLikeComment(ctx, comment.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, models.ToggleResult{Liked: false, LikeCount: 0}, res)

	last := s.events.events[len(s.events.events)-1]
	assert.Equal(t, notifications.EventCommentLikeUpdated, last.Type)
	assert.Equal(t, post.ID, last.PostID)
	assert.Equal(t, comment.ID, last.CommentID)
}

func TestCommentService_ToggleLikeCommentErrors(t *testing.T) {
	s := newFeedStack(t, Options{})
	ctx := context.Background()

	_, err := s.comments.ToggleLikeComment(ctx, "01JNOTHERE000000000000000", identity("AAAA0001", "tech.com"))
	assert.True(t, models.HasCode(err, models.CodeNotFound))

	_, err = s.comments.ToggleLikeComment(ctx, "01JNOTHERE000000000000000", nil)
	assert.ErrorIs(t, err, models.ErrNotAuthenticated)
}
