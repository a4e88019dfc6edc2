package repository

import (
	"context"
	"errors"
	"testing"

	"anonfeed/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestPostRepository_CreateAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewPostRepository(db)
	f := newFixtures(t)
	ctx := context.Background()

	post := f.post("tech.com", "ABCD1234", "hello")
	created, replayed, err := repo.Create(ctx, post, nil)
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, post.ID, created.ID)

	got, err := repo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Content)
	assert.Equal(t, "tech.com", got.CompanyDomain)
	assert.Equal(t, 0, got.LikeCount)
	assert.Equal(t, 0, got.CommentCount)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestPostRepository_CreateReplaysClaim(t *testing.T) {
	db := newTestDB(t)
	repo := NewPostRepository(db)
	f := newFixtures(t)
	ctx := context.Background()
	claim := &IdempotencyClaim{KeyHash: "k1"}

	first, replayed, err := repo.Create(ctx, f.post("tech.com", "ABCD1234", "once"), claim)
	require.NoError(t, err)
	assert.False(t, replayed)

	second, replayed, err := repo.Create(ctx, f.post("tech.com", "ABCD1234", "once"), claim)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Model(&models.Post{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestPostRepository_List(t *testing.T) {
	db := newTestDB(t)
	repo := NewPostRepository(db)
	likes := NewLikeRepository(db)
	f := newFixtures(t)
	ctx := context.Background()

	p1 := f.post("tech.com", "AAAA0001", "first")
	p2 := f.post("startup.io", "AAAA0002", "second")
	p3 := f.post("tech.com", "AAAA0003", "third")
	for _, p := range []*models.Post{p1, p2, p3} {
		_, _, err := repo.Create(ctx, p, nil)
		require.NoError(t, err)
	}
	for _, anon := range []string{"LIKER001", "LIKER002"} {
		_, err := likes.Toggle(ctx, f.like(models.TargetPost, p1.ID, anon))
		require.NoError(t, err)
	}
	_, err := likes.Toggle(ctx, f.like(models.TargetPost, p2.ID, "LIKER001"))
	require.NoError(t, err)

	ids := func(posts []*models.Post) []string {
		out := make([]string, 0, len(posts))
		for _, p := range posts {
			out = append(out, p.ID)
		}
		return out
	}

	tests := []struct {
		name   string
		domain string
		sort   models.SortMode
		page   models.Page
		want   []string
	}{
		{name: "new all domains", sort: models.SortNew, page: models.Page{Limit: 10}, want: []string{p3.ID, p2.ID, p1.ID}},
		{name: "top all domains", sort: models.SortTop, page: models.Page{Limit: 10}, want: []string{p1.ID, p2.ID, p3.ID}},
		{name: "new single domain", domain: "tech.com", sort: models.SortNew, page: models.Page{Limit: 10}, want: []string{p3.ID, p1.ID}},
		{name: "unknown domain", domain: "nowhere.org", sort: models.SortNew, page: models.Page{Limit: 10}, want: []string{}},
		{name: "limit and offset", sort: models.SortNew, page: models.Page{Limit: 1, Offset: 1}, want: []string{p2.ID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			posts, err := repo.List(ctx, tt.domain, tt.sort, tt.page)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(posts))
		})
	}

	posts, err := repo.List(ctx, "", models.SortTop, models.Page{Limit: 1})
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, 2, posts[0].LikeCount)
}

func TestPostRepository_ListCountsComments(t *testing.T) {
	db := newTestDB(t)
	repo := NewPostRepository(db)
	comments := NewCommentRepository(db)
	f := newFixtures(t)
	ctx := context.Background()

	post := f.post("corp.com", "AAAA0001", "post")
	_, _, err := repo.Create(ctx, post, nil)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, _, err := comments.Create(ctx, f.comment(post, "BBBB0001", "c"), nil)
		require.NoError(t, err)
	}

	got, err := repo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.CommentCount)
}

func TestPostRepository_GetByID_ConnectionLossIsRetryable(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostRepository(db)

	mock.ExpectQuery(`SELECT posts\.\*, .* FROM "posts" WHERE posts\.id = \$1`).
		WithArgs("01HX", 1).
		WillReturnError(&pgconn.PgError{Code: "57P01", Message: "terminating connection due to administrator command"})

	_, err := repo.GetByID(context.Background(), "01HX")
	require.Error(t, err)

	classified := Classify(err)
	assert.True(t, errors.Is(classified, models.ErrStorageUnavailable))
	assert.True(t, models.IsRetryable(classified))
	assert.NoError(t, mock.ExpectationsWereMet())
}
