package postgres

import (
	"context"
	"testing"

	"github.com/MotorTG/motortg-crud/internal/domain/posts"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func samplePost(id int64) posts.Post {
	return posts.Post{
		MessageID: ptr(id),
		Date:      ptr(int64(1680514605)),
		Chat:      &posts.Chat{ID: ptr(int64(-1001391712027)), Type: "channel", Title: ptr("MotorTG")},
		Text:      ptr("hello #motor"),
		Entities: []posts.MessageEntity{
			{Type: "hashtag", Offset: ptr(int64(6)), Length: ptr(int64(6))},
		},
		Photo: []posts.PhotoSize{
			{FileID: "AgAD", FileUniqueID: "AQAD", Width: ptr(int64(90)), Height: ptr(int64(60))},
		},
	}
}

func newPostRepository(t *testing.T) *PostRepository {
	t.Helper()
	pool, _ := setupPostgres(t)
	repo, err := NewRepository(pool)
	require.NoError(t, err)
	return repo.Posts()
}

func TestPostRepositorySaveAndFind(t *testing.T) {
	ctx := context.Background()
	repo := newPostRepository(t)

	post := samplePost(255)
	saved, err := repo.Save(ctx, post)
	require.NoError(t, err)
	require.Equal(t, post, saved)

	found, err := repo.FindByID(ctx, 255)
	require.NoError(t, err)
	require.Equal(t, post, found)
	require.Nil(t, found.Caption)
	require.Nil(t, found.Video)
	require.Nil(t, found.CaptionEntities)
}

func TestPostRepositoryUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	repo := newPostRepository(t)

	_, err := repo.Save(ctx, samplePost(7))
	require.NoError(t, err)

	replacement := posts.Post{
		MessageID: ptr(int64(7)),
		Date:      ptr(int64(1680514700)),
		Chat:      &posts.Chat{ID: ptr(int64(1)), Type: "private"},
		Caption:   ptr("edited"),
	}
	_, err = repo.Save(ctx, replacement)
	require.NoError(t, err)

	found, err := repo.FindByID(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, replacement, found)
	require.Nil(t, found.Text)
	require.Nil(t, found.Entities)
}

func TestPostRepositoryFindAllOffset(t *testing.T) {
	ctx := context.Background()
	repo := newPostRepository(t)

	for _, id := range []int64{3, 11, 5, 8, 1} {
		_, err := repo.Save(ctx, samplePost(id))
		require.NoError(t, err)
	}

	page, err := repo.FindAllOffset(ctx, 0, 2)
	require.NoError(t, err)
	require.Equal(t, []int64{11, 8}, ids(page))

	page, err = repo.FindAllOffset(ctx, 2, 10)
	require.NoError(t, err)
	require.Equal(t, []int64{5, 3, 1}, ids(page))

	page, err = repo.FindAllOffset(ctx, 10, 10)
	require.NoError(t, err)
	require.NotNil(t, page)
	require.Empty(t, page)
}

func TestPostRepositoryDelete(t *testing.T) {
	ctx := context.Background()
	repo := newPostRepository(t)

	_, err := repo.Save(ctx, samplePost(42))
	require.NoError(t, err)

	require.NoError(t, repo.DeleteByID(ctx, 42))
	require.ErrorIs(t, repo.DeleteByID(ctx, 42), posts.ErrNotFound)

	_, err = repo.FindByID(ctx, 42)
	require.ErrorIs(t, err, posts.ErrNotFound)
}

func ids(page []posts.Post) []int64 {
	out := make([]int64, 0, len(page))
	for _, p := range page {
		out = append(out, p.ID())
	}
	return out
}
