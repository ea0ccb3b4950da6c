package posts

import "context"

// CachedRepository puts a PageCache in front of the paged read of a Repository.
// Single reads always go to the store; every successful write clears the cache.
type CachedRepository struct {
	repo  Repository
	cache *PageCache
}

func NewCachedRepository(repo Repository, cache *PageCache) *CachedRepository {
	return &CachedRepository{repo: repo, cache: cache}
}

func (r *CachedRepository) FindAllOffset(ctx context.Context, offset, limit int) ([]Post, error) {
	return r.cache.Load(ctx, offset, limit, func(ctx context.Context) ([]Post, error) {
		return r.repo.FindAllOffset(ctx, offset, limit)
	})
}

func (r *CachedRepository) FindByID(ctx context.Context, id int64) (Post, error) {
	return r.repo.FindByID(ctx, id)
}

func (r *CachedRepository) Save(ctx context.Context, post Post) (Post, error) {
	saved, err := r.repo.Save(ctx, post)
	if err != nil {
		return Post{}, err
	}
	r.cache.Clear()
	return saved, nil
}

func (r *CachedRepository) DeleteByID(ctx context.Context, id int64) error {
	if err := r.repo.DeleteByID(ctx, id); err != nil {
		return err
	}
	r.cache.Clear()
	return nil
}

// Invalidate drops every cached page. Writes made by another instance reach
// this one only as broadcasts, so the caller clears the cache on those.
func (r *CachedRepository) Invalidate() {
	r.cache.Clear()
}

var _ Repository = (*CachedRepository)(nil)
