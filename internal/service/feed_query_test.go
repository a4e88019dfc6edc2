package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"anonfeed/internal/featureflags"
	"anonfeed/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   models.Page
		want models.Page
	}{
		{name: "zero uses default", in: models.Page{}, want: models.Page{Limit: DefaultPageLimit}},
		{name: "negative limit uses default", in: models.Page{Limit: -3, Offset: 10}, want: models.Page{Limit: DefaultPageLimit, Offset: 10}},
		{name: "over max is capped", in: models.Page{Limit: 1000}, want: models.Page{Limit: MaxPageLimit}},
		{name: "negative offset", in: models.Page{Limit: 5, Offset: -1}, want: models.Page{Limit: 5}},
		{name: "unchanged", in: models.Page{Limit: 20, Offset: 40}, want: models.Page{Limit: 20, Offset: 40}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, NormalizePage(tt.in))
		})
	}
}

func TestFeedQuery_TopBreaksTiesByRecency(t *testing.T) {
	s := newFeedStack(t, Options{})
	ctx := context.Background()
	author := identity("AAAA0001", "tech.com")

	older := s.mustPost(t, author, "five likes, older")
	two := s.mustPost(t, author, "two likes")
	newer := s.mustPost(t, author, "five likes, newer")

	likeN := func(p *models.Post, n int) {
		for i := 0; i < n; i++ {
			_, err := s.posts.ToggleLike(ctx, p.ID, identity(fmt.Sprintf("LIKE%04d", i), "corp.com"))
			require.NoError(t, err)
		}
	}
	likeN(older, 5)
	likeN(two, 2)
	likeN(newer, 5)

	top, err := s.query.GetAllPosts(ctx, models.SortTop, models.Page{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{newer.ID, older.ID, two.ID}, postIDs(top))
	assert.Equal(t, []int{5, 5, 2}, []int{top[0].LikeCount, top[1].LikeCount, top[2].LikeCount})

	recent, err := s.query.GetAllPosts(ctx, models.SortNew, models.Page{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{newer.ID, two.ID, older.ID}, postIDs(recent))
}

func TestFeedQuery_CompanyScopes(t *testing.T) {
	s := newFeedStack(t, Options{})
	ctx := context.Background()
	a := identity("AAAA0001", "acme.com")
	b := identity("BBBB0001", "other.com")

	hello := s.mustPost(t, a, "hello")
	assert.Equal(t, "acme.com", hello.CompanyDomain)

	acme, err := s.query.GetPostsByDomain(ctx, "acme.com", models.SortNew, models.Page{}, a)
	require.NoError(t, err)
	assert.Equal(t, []string{hello.ID}, postIDs(acme))

	other, err := s.query.GetPostsByDomain(ctx, "other.com", models.SortNew, models.Page{}, b)
	require.NoError(t, err)
	assert.Empty(t, other)

	all, err := s.query.GetAllPosts(ctx, models.SortNew, models.Page{}, b)
	require.NoError(t, err)
	assert.Equal(t, []string{hello.ID}, postIDs(all))

	upper, err := s.query.GetPostsByDomain(ctx, " ACME.com ", models.SortNew, models.Page{}, nil)
	require.NoError(t, err)
	assert.Len(t, upper, 1)

	blank, err := s.query.GetPostsByDomain(ctx, "", models.SortNew, models.Page{}, nil)
	require.NoError(t, err)
	assert.NotNil(t, blank)
	assert.Empty(t, blank)
}

func TestFeedQuery_Pagination(t *testing.T) {
	s := newFeedStack(t, Options{})
	ctx := context.Background()
	author := identity("AAAA0001", "tech.com")

	var created []*models.Post
	for i := 0; i < 5; i++ {
		created = append(created, s.mustPost(t, author, fmt.Sprintf("post %d", i)))
	}

	page, err := s.query.GetAllPosts(ctx, models.SortNew, models.Page{Limit: 2, Offset: 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{created[3].ID, created[2].ID}, postIDs(page))

	past, err := s.query.GetAllPosts(ctx, models.SortNew, models.Page{Limit: 2, Offset: 10}, nil)
	require.NoError(t, err)
	assert.NotNil(t, past)
	assert.Empty(t, past)
}

func TestFeedQuery_ResultsAreSnapshots(t *testing.T) {
	s := newFeedStack(t, Options{})
	ctx := context.Background()
	author := identity("AAAA0001", "tech.com")
	post := s.mustPost(t, author, "original")

	first, err := s.query.GetAllPosts(ctx, models.SortNew, models.Page{}, nil)
	require.NoError(t, err)
	first[0].Content = "mutated by caller"
	first[0].LikeCount = 99

	_, err = s.posts.ToggleLike(ctx, post.ID, author)
	require.NoError(t, err)
	assert.Equal(t, 99, first[0].LikeCount)

	second, err := s.query.GetAllPosts(ctx, models.SortNew, models.Page{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "original", second[0].Content)
	assert.Equal(t, 1, second[0].LikeCount)
}

func TestFeedQuery_UnknownPostHasNoComments(t *testing.T) {
	s := newFeedStack(t, Options{})

	thread, err := s.query.GetCommentsByPost(context.Background(), "01JNOTHERE000000000000000", nil)
	require.NoError(t, err)
	assert.NotNil(t, thread)
	assert.Empty(t, thread)
}

func TestFeedQuery_LikedLookupFailureSurfaces(t *testing.T) {
	t.Parallel()

	posts := &postRepoStub{
		listFn: func(context.Context, string, models.SortMode, models.Page) ([]*models.Post, error) {
			return []*models.Post{{ID: "P1"}}, nil
		},
	}
	boom := errors.New("liked lookup failed")
	likes := &likeRepoStub{
		likedFn: func(context.Context, string, string, []string) (map[string]bool, error) {
			return nil, boom
		},
	}
	q := NewFeedQuery(posts, &commentRepoStub{}, likes, Options{})

	// Anonymous viewers never need the lookup.
	anon, err := q.GetAllPosts(context.Background(), models.SortNew, models.Page{}, nil)
	require.NoError(t, err)
	assert.Len(t, anon, 1)

	_, err = q.GetAllPosts(context.Background(), models.SortNew, models.Page{}, identity("AAAA0001", "tech.com"))
	assert.ErrorIs(t, err, boom)
}

func TestFeedQuery_UnknownSortFallsBackToNew(t *testing.T) {
	t.Parallel()

	var gotSort models.SortMode
	var gotPage models.Page
	posts := &postRepoStub{
		listFn: func(_ context.Context, _ string, sort models.SortMode, page models.Page) ([]*models.Post, error) {
			gotSort, gotPage = sort, page
			return nil, nil
		},
	}
	q := NewFeedQuery(posts, &commentRepoStub{}, &likeRepoStub{}, Options{})

	out, err := q.GetAllPosts(context.Background(), models.SortMode("sideways"), models.Page{Limit: 500}, nil)
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Equal(t, models.SortNew, gotSort)
	assert.Equal(t, MaxPageLimit, gotPage.Limit)
}

func TestFeedQuery_CacheInvalidatedOnWrites(t *testing.T) {
	feedCache, mr := newTestCache(t)
	s := newFeedStack(t, Options{
		Cache: feedCache,
		Flags: featureflags.NewManager("feed_cache=on,realtime=on"),
	})
	ctx := context.Background()
	alice := identity("AAAA0001", "tech.com")
	bob := identity("BBBB0001", "tech.com")

	p1 := s.mustPost(t, alice, "first")
	feed, err := s.query.GetAllPosts(ctx, models.SortNew, models.Page{}, nil)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.NotEmpty(t, mr.Keys())

	// A row written behind the service's back stays invisible until a write
	// through the service bumps the generation.
	require.NoError(t, s.db.Create(&models.Post{
		ID: "01JBEHIND0000000000000000", CompanyDomain: "tech.com", AnonymousID: "ZZZZ0001",
		Content: "behind", CreatedAt: p1.CreatedAt,
	}).Error)
	cached, err := s.query.GetAllPosts(ctx, models.SortNew, models.Page{}, nil)
	require.NoError(t, err)
	assert.Len(t, cached, 1)

	p2 := s.mustPost(t, alice, "second")
	fresh, err := s.query.GetAllPosts(ctx, models.SortNew, models.Page{}, nil)
	require.NoError(t, err)
	require.Len(t, fresh, 3)
	assert.Equal(t, p2.ID, fresh[0].ID)

	// Like toggles invalidate too, and the liked overlay never leaks into the
	// shared snapshot.
	_, err = s.posts.ToggleLike(ctx, p2.ID, alice)
	require.NoError(t, err)
	asAlice, err := s.query.GetPostsByDomain(ctx, "tech.com", models.SortNew, models.Page{}, alice)
	require.NoError(t, err)
	asBob, err := s.query.GetPostsByDomain(ctx, "tech.com", models.SortNew, models.Page{}, bob)
	require.NoError(t, err)
	assert.True(t, asAlice[0].Liked)
	assert.False(t, asBob[0].Liked)
	assert.Equal(t, 1, asBob[0].LikeCount)

	// Comment threads are their own scope.
	thread, err := s.query.GetCommentsByPost(ctx, p2.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, thread)
	s.mustComment(t, bob, p2.ID, "reply")
	thread, err = s.query.GetCommentsByPost(ctx, p2.ID, nil)
	require.NoError(t, err)
	assert.Len(t, thread, 1)
}

func TestFeedQuery_CacheOutageFallsBackToStorage(t *testing.T) {
	feedCache, mr := newTestCache(t)
	s := newFeedStack(t, Options{
		Cache: feedCache,
		Flags: featureflags.NewManager("feed_cache=on"),
	})
	ctx := context.Background()

	s.mustPost(t, identity("AAAA0001", "tech.com"), "post")
	mr.Close()

	feed, err := s.query.GetAllPosts(ctx, models.SortNew, models.Page{}, nil)
	require.NoError(t, err)
	assert.Len(t, feed, 1)
}
