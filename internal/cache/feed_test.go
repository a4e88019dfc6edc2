package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFeedCache(t *testing.T) (*FeedCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewFeedCache(rdb, time.Minute), mr
}

func TestFeedCache_AsideServesSecondReadFromCache(t *testing.T) {
	c, _ := newTestFeedCache(t)
	ctx := context.Background()

	calls := 0
	fetch := func(dest *[]string) func() error {
		return func() error {
			calls++
			*dest = []string{"p1", "p2"}
			return nil
		}
	}

	var first []string
	require.NoError(t, c.Aside(ctx, ScopeAll, "new:50:0", &first, fetch(&first)))
	var second []string
	require.NoError(t, c.Aside(ctx, ScopeAll, "new:50:0", &second, fetch(&second)))

	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"p1", "p2"}, second)
}

func TestFeedCache_InvalidateForcesRefetch(t *testing.T) {
	c, _ := newTestFeedCache(t)
	ctx := context.Background()

	calls := 0
	var out []string
	fetch := func() error {
		calls++
		out = []string{"p"}
		return nil
	}

	require.NoError(t, c.Aside(ctx, ScopeDomain("acme.com"), "v", &out, fetch))
	c.Invalidate(ctx, ScopeDomain("acme.com"))
	require.NoError(t, c.Aside(ctx, ScopeDomain("acme.com"), "v", &out, fetch))
	assert.Equal(t, 2, calls)

	// Other scopes keep their snapshot.
	require.NoError(t, c.Aside(ctx, ScopeAll, "v", &out, fetch))
	require.NoError(t, c.Aside(ctx, ScopeAll, "v", &out, fetch))
	assert.Equal(t, 3, calls)
}

func TestFeedCache_FetchErrorIsNotCached(t *testing.T) {
	c, _ := newTestFeedCache(t)
	ctx := context.Background()
	boom := errors.New("boom")

	var out []string
	err := c.Aside(ctx, ScopeAll, "v", &out, func() error { return boom })
	assert.ErrorIs(t, err, boom)

	err = c.Aside(ctx, ScopeAll, "v", &out, func() error {
		out = []string{"ok"}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, out)
}

func TestFeedCache_RedisDownFallsBackToFetch(t *testing.T) {
	c, mr := newTestFeedCache(t)
	mr.Close()

	calls := 0
	var out []string
	err := c.Aside(context.Background(), ScopeAll, "v", &out, func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestFeedCache_NilClientPassesThrough(t *testing.T) {
	c := NewFeedCache(nil, 0)
	assert.False(t, c.Enabled())

	calls := 0
	var out []string
	require.NoError(t, c.Aside(context.Background(), ScopeAll, "v", &out, func() error {
		calls++
		return nil
	}))
	c.Invalidate(context.Background(), ScopeAll)
	assert.Equal(t, 1, calls)
}
