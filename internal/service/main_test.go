package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"anonfeed/internal/cache"
	"anonfeed/internal/database"
	"anonfeed/internal/featureflags"
	"anonfeed/internal/idgen"
	"anonfeed/internal/models"
	"anonfeed/internal/notifications"
	"anonfeed/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// postRepoStub is a stub for repository.PostRepository.
type postRepoStub struct {
	createFn  func(context.Context, *models.Post, *repository.IdempotencyClaim) (*models.Post, bool, error)
	getByIDFn func(context.Context, string) (*models.Post, error)
	listFn    func(context.Context, string, models.SortMode, models.Page) ([]*models.Post, error)
}

func (s *postRepoStub) Create(ctx context.Context, post *models.Post, claim *repository.IdempotencyClaim) (*models.Post, bool, error) {
	return s.createFn(ctx, post, claim)
}
func (s *postRepoStub) GetByID(ctx context.Context, id string) (*models.Post, error) {
	return s.getByIDFn(ctx, id)
}
func (s *postRepoStub) List(ctx context.Context, domain string, sort models.SortMode, page models.Page) ([]*models.Post, error) {
	return s.listFn(ctx, domain, sort, page)
}

// commentRepoStub is a stub for repository.CommentRepository.
type commentRepoStub struct {
	createFn     func(context.Context, *models.Comment, *repository.IdempotencyClaim) (*models.Comment, bool, error)
	getByIDFn    func(context.Context, string) (*models.Comment, error)
	listByPostFn func(context.Context, string) ([]*models.Comment, error)
}

func (s *commentRepoStub) Create(ctx context.Context, comment *models.Comment, claim *repository.IdempotencyClaim) (*models.Comment, bool, error) {
	return s.createFn(ctx, comment, claim)
}
func (s *commentRepoStub) GetByID(ctx context.Context, id string) (*models.Comment, error) {
	return s.getByIDFn(ctx, id)
}
func (s *commentRepoStub) ListByPost(ctx context.Context, postID string) ([]*models.Comment, error) {
	return s.listByPostFn(ctx, postID)
}

// likeRepoStub is a stub for repository.LikeRepository.
type likeRepoStub struct {
	toggleFn func(context.Context, *models.Like) (repository.ToggleOutcome, error)
	likedFn  func(context.Context, string, string, []string) (map[string]bool, error)
}

func (s *likeRepoStub) Toggle(ctx context.Context, like *models.Like) (repository.ToggleOutcome, error) {
	return s.toggleFn(ctx, like)
}
func (s *likeRepoStub) LikedTargetIDs(ctx context.Context, targetType, anonymousID string, targetIDs []string) (map[string]bool, error) {
	return s.likedFn(ctx, targetType, anonymousID, targetIDs)
}

// eventRecorder captures published feed events.
type eventRecorder struct {
	mu     sync.Mutex
	events []notifications.FeedEvent
}

func (r *eventRecorder) PublishFeedEvent(_ context.Context, ev notifications.FeedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *eventRecorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func identity(anonID, domain string) *models.Identity {
	return &models.Identity{AnonymousID: anonID, CompanyDomain: domain}
}

func testIDs(t *testing.T) *idgen.Generator {
	t.Helper()
	ids, err := idgen.New(7)
	require.NoError(t, err)
	return ids
}

// testClock advances one second per reading so creation times are distinct.
func testClock() func() time.Time {
	var n atomic.Int64
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		return start.Add(time.Duration(n.Add(1)) * time.Second)
	}
}

var dbSeq atomic.Int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.OpenSQLiteMemory(fmt.Sprintf("svc_%s_%d", name, dbSeq.Add(1)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func newTestCache(t *testing.T) (*cache.FeedCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return cache.NewFeedCache(rdb, time.Minute), mr
}

// feedStack wires the three services over one SQLite store.
type feedStack struct {
	db       *gorm.DB
	posts    *PostService
	comments *CommentService
	query    *FeedQuery
	events   *eventRecorder
}

func newFeedStack(t *testing.T, opts Options) *feedStack {
	t.Helper()
	db := newTestDB(t)
	ids := testIDs(t)
	events := &eventRecorder{}
	if opts.Events == nil {
		opts.Events = events
	}
	if opts.Flags == nil {
		opts.Flags = featureflags.NewManager("realtime=on")
	}
	if opts.Now == nil {
		opts.Now = testClock()
	}

	postRepo := repository.NewPostRepository(db)
	commentRepo := repository.NewCommentRepository(db)
	likeRepo := repository.NewLikeRepository(db)
	return &feedStack{
		db:       db,
		posts:    NewPostService(postRepo, likeRepo, ids, opts),
		comments: NewCommentService(commentRepo, likeRepo, ids, opts),
		query:    NewFeedQuery(postRepo, commentRepo, likeRepo, opts),
		events:   events,
	}
}

func (s *feedStack) mustPost(t *testing.T, who *models.Identity, content string) *models.Post {
	t.Helper()
	p, err := s.posts.CreatePost(context.Background(), CreatePostInput{Identity: who, Content: content})
	require.NoError(t, err)
	return p
}

func (s *feedStack) mustComment(t *testing.T, who *models.Identity, postID, content string) *models.Comment {
	t.Helper()
	c, err := s.comments.CreateComment(context.Background(), CreateCommentInput{PostID: postID, Identity: who, Content: content})
	require.NoError(t, err)
	return c
}

func postIDs(posts []*models.Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}

func featureflagsOff() *featureflags.Manager {
	return featureflags.NewManager("realtime=off,feed_cache=off")
}
