package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MotorTG/motortg-crud/internal/realtime"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// maxNotifyPayload stays under PostgreSQL's 8000 byte NOTIFY limit.
const maxNotifyPayload = 7900

var _ realtime.Adapter = (*NotifyAdapter)(nil)

// notification is the NOTIFY body. Exactly one of Message and AttachmentID is set.
type notification struct {
	Node         string            `json:"node"`
	Message      *realtime.Message `json:"message,omitempty"`
	AttachmentID int64             `json:"attachment_id,omitempty"`
}

// NotifyAdapter fans broadcasts out to every instance sharing the database
// through LISTEN/NOTIFY. Payloads too large for a NOTIFY go through the
// realtime_attachments table.
type NotifyAdapter struct {
	pool      *pgxpool.Pool
	channel   string
	node      string
	retention time.Duration
	logger    zerolog.Logger
}

func NewNotifyAdapter(pool *pgxpool.Pool, channel, node string, retention time.Duration, logger zerolog.Logger) *NotifyAdapter {
	if retention <= 0 {
		retention = 30 * time.Second
	}
	return &NotifyAdapter{
		pool:      pool,
		channel:   channel,
		node:      node,
		retention: retention,
		logger:    logger.With().Str("component", "notify_adapter").Str("channel", channel).Logger(),
	}
}

func (a *NotifyAdapter) Publish(ctx context.Context, msg realtime.Message) error {
	body, err := json.Marshal(notification{Node: a.node, Message: &msg})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	if len(body) > maxNotifyPayload {
		var id int64
		if err := a.pool.QueryRow(ctx,
			`INSERT INTO realtime_attachments (payload) VALUES ($1) RETURNING id`,
			body,
		).Scan(&id); err != nil {
			return fmt.Errorf("store attachment: %w", err)
		}
		if body, err = json.Marshal(notification{Node: a.node, AttachmentID: id}); err != nil {
			return fmt.Errorf("encode notification: %w", err)
		}
	}

	if _, err := a.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, a.channel, string(body)); err != nil {
		return fmt.Errorf("notify %s: %w", a.channel, err)
	}
	return nil
}

// Subscribe holds one pooled connection in LISTEN and hands every message from
// other nodes to deliver. It returns nil once ctx is done.
func (a *NotifyAdapter) Subscribe(ctx context.Context, deliver func(realtime.Message)) error {
	conn, err := a.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	defer func() {
		unlistenCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.Exec(unlistenCtx, "UNLISTEN *"); err != nil {
			// The session still holds the LISTEN; keep it out of the pool.
			_ = conn.Conn().Close(unlistenCtx)
		}
		conn.Release()
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{a.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", a.channel, err)
	}
	a.logger.Info().Msg("listening for broadcasts")

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wait for notification: %w", err)
		}

		msg, err := a.decode(ctx, []byte(n.Payload))
		if err != nil {
			a.logger.Warn().Err(err).Msg("dropping undecodable notification")
			continue
		}
		if msg != nil {
			deliver(*msg)
		}
	}
}

const (
	minResubscribeBackoff = time.Second
	maxResubscribeBackoff = 30 * time.Second
	// A subscription that listened at least this long counts as healthy.
	stableSubscription = time.Minute
)

// Run keeps a subscription alive, reconnecting with capped backoff until ctx is done.
func (a *NotifyAdapter) Run(ctx context.Context, deliver func(realtime.Message)) {
	backoff := minResubscribeBackoff
	for {
		started := time.Now()
		err := a.Subscribe(ctx, deliver)
		if ctx.Err() != nil {
			return
		}
		backoff = resubscribeDelay(backoff, time.Since(started))
		a.logger.Error().Err(err).Dur("retry_in", backoff).Msg("broadcast subscription lost")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxResubscribeBackoff)
	}
}

// resubscribeDelay returns the wait before the next attempt, given the current
// backoff and how long the lost subscription was listening. A stable
// subscription starts the backoff over.
func resubscribeDelay(backoff, listened time.Duration) time.Duration {
	if listened >= stableSubscription {
		return minResubscribeBackoff
	}
	return backoff
}

// decode returns nil for notifications this node published itself.
func (a *NotifyAdapter) decode(ctx context.Context, payload []byte) (*realtime.Message, error) {
	var n notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, err
	}
	if n.Node == a.node {
		return nil, nil
	}
	if n.Message != nil {
		return n.Message, nil
	}
	if n.AttachmentID == 0 {
		return nil, errors.New("notification carries neither message nor attachment")
	}

	var body []byte
	if err := a.pool.QueryRow(ctx,
		`SELECT payload FROM realtime_attachments WHERE id = $1`,
		n.AttachmentID,
	).Scan(&body); err != nil {
		return nil, fmt.Errorf("load attachment %d: %w", n.AttachmentID, err)
	}

	var full notification
	if err := json.Unmarshal(body, &full); err != nil {
		return nil, fmt.Errorf("decode attachment %d: %w", n.AttachmentID, err)
	}
	if full.Message == nil {
		return nil, fmt.Errorf("attachment %d carries no message", n.AttachmentID)
	}
	return full.Message, nil
}

// PurgeAttachments deletes attachments older than the retention window.
func (a *NotifyAdapter) PurgeAttachments(ctx context.Context) (int64, error) {
	tag, err := a.pool.Exec(ctx,
		`DELETE FROM realtime_attachments WHERE created_at < NOW() - make_interval(secs => $1)`,
		a.retention.Seconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("purge attachments: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RunPurge calls PurgeAttachments every interval until ctx is done.
func (a *NotifyAdapter) RunPurge(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := a.PurgeAttachments(ctx)
			if err != nil {
				a.logger.Warn().Err(err).Msg("attachment purge failed")
				continue
			}
			if removed > 0 {
				a.logger.Debug().Int64("removed", removed).Msg("purged broadcast attachments")
			}
		}
	}
}
