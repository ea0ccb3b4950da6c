package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"

	"github.com/MotorTG/motortg-crud/internal/api/problem"
	"github.com/MotorTG/motortg-crud/internal/config"
	"github.com/MotorTG/motortg-crud/internal/domain/posts"
	"github.com/rs/zerolog"
)

// Events pushed to the other members of the write namespace.
const (
	EventCreated = "post:created"
	EventUpdated = "post:updated"
	EventDeleted = "post:deleted"
)

// Peer is the connection a write arrived on. Broadcasts skip it.
type Peer interface {
	Broadcast(ctx context.Context, event string, payload any) error
}

// Page selects a window of the newest-first post list.
type Page struct {
	Offset int
	Limit  int
}

type PostsHandler struct {
	repo        posts.Repository
	create      *posts.Schema
	update      *posts.Schema
	pageSize    int
	maxPageSize int
}

func NewPostsHandler(repo posts.Repository, cfg config.PostsConfig) *PostsHandler {
	return &PostsHandler{
		repo:        repo,
		create:      posts.MustTailor(posts.ContextCreate),
		update:      posts.MustTailor(posts.ContextUpdate),
		pageSize:    cfg.PageSize,
		maxPageSize: cfg.MaxPageSize,
	}
}

func (h *PostsHandler) CreatePost(ctx context.Context, peer Peer, payload json.RawMessage) Response {
	return h.write(ctx, peer, payload, h.create, EventCreated)
}

func (h *PostsHandler) UpdatePost(ctx context.Context, peer Peer, payload json.RawMessage) Response {
	return h.write(ctx, peer, payload, h.update, EventUpdated)
}

// write validates against schema, upserts, and only then tells the other peers.
// The sanitized value is both broadcast and returned.
func (h *PostsHandler) write(ctx context.Context, peer Peer, payload json.RawMessage, schema *posts.Schema, event string) Response {
	post, details := schema.Validate(payload)
	if len(details) > 0 {
		zerolog.Ctx(ctx).Debug().
			Err(&posts.ValidationError{Details: details}).
			Str("context", string(schema.Context())).
			Msg("payload rejected")
		return Invalid(details)
	}

	if _, err := h.repo.Save(ctx, post); err != nil {
		return Fail(problem.Sanitize(ctx, err))
	}

	broadcast(ctx, peer, event, post)
	return Direct(post)
}

func (h *PostsHandler) ReadPost(ctx context.Context, rawID json.RawMessage) Response {
	id, err := posts.ParseID(rawID)
	if err != nil {
		return Fail(problem.EntityNotFound)
	}

	post, err := h.repo.FindByID(ctx, id)
	if err != nil {
		return Fail(problem.Sanitize(ctx, err))
	}
	return OK(post)
}

func (h *PostsHandler) DeletePost(ctx context.Context, peer Peer, rawID json.RawMessage) Response {
	id, err := posts.ParseID(rawID)
	if err != nil {
		return Fail(problem.EntityNotFound)
	}

	if err := h.repo.DeleteByID(ctx, id); err != nil {
		return Fail(problem.Sanitize(ctx, err))
	}

	broadcast(ctx, peer, EventDeleted, id)
	return Direct(id)
}

func (h *PostsHandler) ListPost(ctx context.Context, page Page) Response {
	list, err := h.repo.FindAllOffset(ctx, page.Offset, page.Limit)
	if err != nil {
		return Fail(problem.Sanitize(ctx, err))
	}
	if list == nil {
		list = []posts.Post{}
	}
	return OK(list)
}

// ParsePage reads the optional positional (offset, limit) arguments of a list
// event. Both accept integers or numeric strings; null means "use the default".
// A limit above the configured maximum is capped rather than refused.
func (h *PostsHandler) ParsePage(args []json.RawMessage) (Page, []posts.FieldError) {
	page := Page{Offset: 0, Limit: h.pageSize}
	var details []posts.FieldError

	if len(args) > 0 {
		if offset, ok, valid := pageArg(args[0]); !valid {
			details = append(details, posts.FieldError{Field: "offset", Message: `"offset" must be an integer`})
		} else if ok && offset < 0 {
			details = append(details, posts.FieldError{Field: "offset", Message: `"offset" must be greater than or equal to 0`})
		} else if ok {
			page.Offset = offset
		}
	}

	if len(args) > 1 {
		if limit, ok, valid := pageArg(args[1]); !valid {
			details = append(details, posts.FieldError{Field: "limit", Message: `"limit" must be an integer`})
		} else if ok && limit < 1 {
			details = append(details, posts.FieldError{Field: "limit", Message: `"limit" must be greater than or equal to 1`})
		} else if ok {
			page.Limit = min(limit, h.maxPageSize)
		}
	}

	return page, details
}

// pageArg reports the value, whether one was given, and whether it was well formed.
func pageArg(raw json.RawMessage) (value int, present, valid bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false, true
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, false, false
	}

	var text string
	switch t := v.(type) {
	case json.Number:
		text = t.String()
	case string:
		text = t
	default:
		return 0, false, false
	}

	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, false, false
	}
	return n, true, true
}

// broadcast runs after the store call returned, so the change is committed.
// A failed broadcast does not undo the write; it is only logged.
func broadcast(ctx context.Context, peer Peer, event string, payload any) {
	if peer == nil {
		return
	}
	if err := peer.Broadcast(ctx, event, payload); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("event", event).Msg("broadcast failed")
	}
}
