package posts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MotorTG/motortg-crud/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL is how long a listed page stays servable without a store read.
const DefaultCacheTTL = 180 * time.Second

type pageKey struct {
	offset, limit int
}

type pageEntry struct {
	posts   []Post
	expires time.Time
}

// PageCache memoizes listed pages by (offset, limit) until they expire or the
// cache is cleared. Empty pages are never stored.
//
// Every Clear bumps a generation counter. A fill that started under an older
// generation is returned to its callers but not stored, and callers arriving
// after a Clear never join a fill started before it.
type PageCache struct {
	ttl time.Duration
	now func() time.Time

	mu         sync.RWMutex
	pages      map[pageKey]pageEntry
	generation uint64

	group singleflight.Group
}

func NewPageCache(ttl time.Duration) *PageCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &PageCache{
		ttl:   ttl,
		now:   time.Now,
		pages: make(map[pageKey]pageEntry),
	}
}

// WithClock replaces the time source; tests use it to step past the TTL.
func (c *PageCache) WithClock(now func() time.Time) *PageCache {
	c.now = now
	return c
}

// Get returns a live page, if any.
func (c *PageCache) Get(offset, limit int) ([]Post, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.pages[pageKey{offset, limit}]
	if !ok || !c.now().Before(entry.expires) {
		return nil, false
	}
	return entry.posts, true
}

// Load serves the page from the cache or fills it with load. Concurrent misses
// on the same page share one call to load.
func (c *PageCache) Load(ctx context.Context, offset, limit int, load func(context.Context) ([]Post, error)) ([]Post, error) {
	if posts, ok := c.Get(offset, limit); ok {
		metrics.CacheHitsTotal.Inc()
		return posts, nil
	}
	metrics.CacheMissesTotal.Inc()

	key := pageKey{offset, limit}
	gen := c.currentGeneration()
	flight := fmt.Sprintf("%d:%d:%d", gen, offset, limit)

	v, err, _ := c.group.Do(flight, func() (any, error) {
		posts, err := load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.store(key, gen, posts)
		return posts, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Post), nil
}

// Clear drops every page.
func (c *PageCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	clear(c.pages)
	metrics.CacheInvalidationsTotal.Inc()
}

// Len reports the number of stored pages, expired ones included.
func (c *PageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pages)
}

func (c *PageCache) currentGeneration() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

func (c *PageCache) store(key pageKey, gen uint64, posts []Post) {
	if len(posts) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return
	}
	now := c.now()
	for k, entry := range c.pages {
		if !now.Before(entry.expires) {
			delete(c.pages, k)
		}
	}
	c.pages[key] = pageEntry{posts: posts, expires: now.Add(c.ttl)}
}
