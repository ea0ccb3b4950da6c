package posts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func postWithID(id int64) Post {
	date := int64(1700000000)
	chatID := int64(-100)
	return Post{MessageID: &id, Date: &date, Chat: &Chat{ID: &chatID, Type: "channel"}}
}

func countingLoader(calls *int, posts []Post, err error) func(context.Context) ([]Post, error) {
	return func(context.Context) ([]Post, error) {
		*calls++
		return posts, err
	}
}

func TestPageCacheHitWithinTTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	cache := NewPageCache(time.Minute).WithClock(clock.Now)
	ctx := context.Background()

	calls := 0
	page := []Post{postWithID(2), postWithID(1)}

	got, err := cache.Load(ctx, 0, 10, countingLoader(&calls, page, nil))
	require.NoError(t, err)
	require.Equal(t, page, got)

	clock.Advance(59 * time.Second)
	got, err = cache.Load(ctx, 0, 10, countingLoader(&calls, nil, nil))
	require.NoError(t, err)
	require.Equal(t, page, got)
	require.Equal(t, 1, calls)
}

func TestPageCacheExpires(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	cache := NewPageCache(time.Minute).WithClock(clock.Now)
	ctx := context.Background()

	calls := 0
	_, err := cache.Load(ctx, 0, 10, countingLoader(&calls, []Post{postWithID(1)}, nil))
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, ok := cache.Get(0, 10)
	require.False(t, ok)

	_, err = cache.Load(ctx, 0, 10, countingLoader(&calls, []Post{postWithID(1)}, nil))
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestPageCacheKeysByOffsetAndLimit(t *testing.T) {
	cache := NewPageCache(time.Minute)
	ctx := context.Background()

	calls := 0
	for _, key := range [][2]int{{0, 10}, {10, 10}, {0, 5}, {0, 10}} {
		_, err := cache.Load(ctx, key[0], key[1], countingLoader(&calls, []Post{postWithID(1)}, nil))
		require.NoError(t, err)
	}
	require.Equal(t, 3, calls)
	require.Equal(t, 3, cache.Len())
}

func TestPageCacheSkipsEmptyPages(t *testing.T) {
	cache := NewPageCache(time.Minute)
	ctx := context.Background()

	calls := 0
	got, err := cache.Load(ctx, 0, 10, countingLoader(&calls, []Post{}, nil))
	require.NoError(t, err)
	require.Empty(t, got)

	_, err = cache.Load(ctx, 0, 10, countingLoader(&calls, nil, nil))
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Zero(t, cache.Len())
}

func TestPageCacheDoesNotStoreErrors(t *testing.T) {
	cache := NewPageCache(time.Minute)
	ctx := context.Background()
	boom := errors.New("connection refused")

	calls := 0
	_, err := cache.Load(ctx, 0, 10, countingLoader(&calls, nil, boom))
	require.ErrorIs(t, err, boom)

	_, err = cache.Load(ctx, 0, 10, countingLoader(&calls, []Post{postWithID(1)}, nil))
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestPageCacheClear(t *testing.T) {
	cache := NewPageCache(time.Minute)
	ctx := context.Background()

	calls := 0
	_, err := cache.Load(ctx, 0, 10, countingLoader(&calls, []Post{postWithID(1)}, nil))
	require.NoError(t, err)

	cache.Clear()
	require.Zero(t, cache.Len())

	_, ok := cache.Get(0, 10)
	require.False(t, ok)
}

func TestPageCacheDropsFillRacingClear(t *testing.T) {
	cache := NewPageCache(time.Minute)
	ctx := context.Background()

	stale := []Post{postWithID(1)}
	got, err := cache.Load(ctx, 0, 10, func(context.Context) ([]Post, error) {
		// A write commits and invalidates while this read is in flight.
		cache.Clear()
		return stale, nil
	})
	require.NoError(t, err)
	require.Equal(t, stale, got)

	_, ok := cache.Get(0, 10)
	require.False(t, ok)
}

func TestPageCacheConcurrentAccess(t *testing.T) {
	cache := NewPageCache(time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%8 == 0 {
				cache.Clear()
				return
			}
			got, err := cache.Load(ctx, i%3, 10, func(context.Context) ([]Post, error) {
				return []Post{postWithID(int64(i % 3))}, nil
			})
			if err != nil || len(got) != 1 {
				t.Errorf("load page %d: got %d posts, err %v", i%3, len(got), err)
			}
		}(i)
	}
	wg.Wait()
}
