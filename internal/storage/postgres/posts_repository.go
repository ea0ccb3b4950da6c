package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MotorTG/motortg-crud/internal/domain/posts"
	"github.com/MotorTG/motortg-crud/internal/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ posts.Repository = (*PostRepository)(nil)

// PostRepository runs every operation in its own transaction.
type PostRepository struct {
	pool *pgxpool.Pool
}

const postColumns = `message_id, date, chat, text, caption, entities, caption_entities, media_group_id, photo, video`

type postRow struct {
	MessageID       int64
	Date            int64
	Chat            []byte
	Text            *string
	Caption         *string
	Entities        []byte
	CaptionEntities []byte
	MediaGroupID    *string
	Photo           []byte
	Video           []byte
}

func (row *postRow) scanTargets() []any {
	return []any{
		&row.MessageID, &row.Date, &row.Chat, &row.Text, &row.Caption,
		&row.Entities, &row.CaptionEntities, &row.MediaGroupID, &row.Photo, &row.Video,
	}
}

func (row postRow) toPost() (posts.Post, error) {
	id, date := row.MessageID, row.Date
	post := posts.Post{
		MessageID:    &id,
		Date:         &date,
		Text:         row.Text,
		Caption:      row.Caption,
		MediaGroupID: row.MediaGroupID,
	}

	columns := []struct {
		name string
		raw  []byte
		dst  any
	}{
		{"chat", row.Chat, &post.Chat},
		{"entities", row.Entities, &post.Entities},
		{"caption_entities", row.CaptionEntities, &post.CaptionEntities},
		{"photo", row.Photo, &post.Photo},
		{"video", row.Video, &post.Video},
	}
	for _, col := range columns {
		if len(col.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(col.raw, col.dst); err != nil {
			return posts.Post{}, fmt.Errorf("decode %s of post %d: %w", col.name, id, err)
		}
	}
	return post, nil
}

func (r *PostRepository) FindAllOffset(ctx context.Context, offset, limit int) (result []posts.Post, err error) {
	defer func(start time.Time) { metrics.RecordQuery("find_posts", start, err) }(time.Now())

	err = r.inTx(ctx, func(q queryer) error {
		rows, err := q.Query(ctx,
			`SELECT `+postColumns+`
			   FROM posts
			  ORDER BY message_id DESC
			  LIMIT $1 OFFSET $2`,
			limit, offset,
		)
		if err != nil {
			return fmt.Errorf("list posts: %w", err)
		}
		defer rows.Close()

		result = make([]posts.Post, 0, limit)
		for rows.Next() {
			var row postRow
			if err := rows.Scan(row.scanTargets()...); err != nil {
				return fmt.Errorf("scan post: %w", err)
			}
			post, err := row.toPost()
			if err != nil {
				return err
			}
			result = append(result, post)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostRepository) FindByID(ctx context.Context, id int64) (post posts.Post, err error) {
	defer func(start time.Time) { metrics.RecordQuery("find_post", start, storeError(err)) }(time.Now())

	err = r.inTx(ctx, func(q queryer) error {
		var row postRow
		err := q.QueryRow(ctx,
			`SELECT `+postColumns+` FROM posts WHERE message_id = $1`,
			id,
		).Scan(row.scanTargets()...)
		if errors.Is(err, pgx.ErrNoRows) {
			return posts.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get post %d: %w", id, err)
		}
		post, err = row.toPost()
		return err
	})
	if err != nil {
		return posts.Post{}, err
	}
	return post, nil
}

// Save upserts on message_id; a conflicting row is replaced column by column,
// so fields absent from post become NULL.
func (r *PostRepository) Save(ctx context.Context, post posts.Post) (saved posts.Post, err error) {
	defer func(start time.Time) { metrics.RecordQuery("save_post", start, err) }(time.Now())

	if post.MessageID == nil || post.Date == nil || post.Chat == nil {
		return posts.Post{}, fmt.Errorf("save post: message_id, date and chat are required")
	}

	var encoded [5]any
	for i, value := range []any{post.Chat, post.Entities, post.CaptionEntities, post.Photo, post.Video} {
		if encoded[i], err = jsonColumn(value); err != nil {
			return posts.Post{}, err
		}
	}
	args := []any{
		*post.MessageID, *post.Date, encoded[0], post.Text, post.Caption,
		encoded[1], encoded[2], post.MediaGroupID, encoded[3], encoded[4],
	}

	err = r.inTx(ctx, func(q queryer) error {
		var row postRow
		err := q.QueryRow(ctx,
			`INSERT INTO posts (`+postColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 ON CONFLICT (message_id) DO UPDATE SET
			     date             = EXCLUDED.date,
			     chat             = EXCLUDED.chat,
			     text             = EXCLUDED.text,
			     caption          = EXCLUDED.caption,
			     entities         = EXCLUDED.entities,
			     caption_entities = EXCLUDED.caption_entities,
			     media_group_id   = EXCLUDED.media_group_id,
			     photo            = EXCLUDED.photo,
			     video            = EXCLUDED.video,
			     updated_at       = NOW()
			 RETURNING `+postColumns,
			args...,
		).Scan(row.scanTargets()...)
		if err != nil {
			return fmt.Errorf("upsert post %d: %w", *post.MessageID, err)
		}
		saved, err = row.toPost()
		return err
	})
	if err != nil {
		return posts.Post{}, err
	}
	return saved, nil
}

func (r *PostRepository) DeleteByID(ctx context.Context, id int64) (err error) {
	defer func(start time.Time) { metrics.RecordQuery("delete_post", start, storeError(err)) }(time.Now())

	return r.inTx(ctx, func(q queryer) error {
		tag, err := q.Exec(ctx, `DELETE FROM posts WHERE message_id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete post %d: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return posts.ErrNotFound
		}
		return nil
	})
}

func (r *PostRepository) inTx(ctx context.Context, fn func(queryer) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(tx)
	})
}

// storeError drops misses so they are not counted as database errors.
func storeError(err error) error {
	if errors.Is(err, posts.ErrNotFound) {
		return nil
	}
	return err
}

// jsonColumn encodes value for a JSONB column, mapping nil pointers and nil
// slices to SQL NULL.
func jsonColumn(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case *posts.Chat:
		if v == nil {
			return nil, nil
		}
	case *posts.Video:
		if v == nil {
			return nil, nil
		}
	case []posts.MessageEntity:
		if v == nil {
			return nil, nil
		}
	case []posts.PhotoSize:
		if v == nil {
			return nil, nil
		}
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode json column: %w", err)
	}
	return string(raw), nil
}
