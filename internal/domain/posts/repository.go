package posts

import "context"

// Repository persists posts keyed by message id.
type Repository interface {
	// FindAllOffset returns up to limit posts starting at offset, newest message id first.
	FindAllOffset(ctx context.Context, offset, limit int) ([]Post, error)
	// FindByID returns ErrNotFound when no post has the id.
	FindByID(ctx context.Context, id int64) (Post, error)
	// Save inserts the post or fully replaces the stored one with the same message id.
	Save(ctx context.Context, post Post) (Post, error)
	// DeleteByID returns ErrNotFound when nothing was deleted.
	DeleteByID(ctx context.Context, id int64) error
}
