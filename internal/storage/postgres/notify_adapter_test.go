package postgres

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/MotorTG/motortg-crud/internal/realtime"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNotifyAdapterFansOut(t *testing.T) {
	pool, _ := setupPostgres(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const channel = "motortg_test"
	sender := NewNotifyAdapter(pool, channel, "node-a", time.Minute, zerolog.Nop())
	receiver := NewNotifyAdapter(pool, channel, "node-b", time.Minute, zerolog.Nop())

	received := make(chan realtime.Message, 4)
	go receiver.Run(ctx, func(msg realtime.Message) { received <- msg })
	go sender.Run(ctx, func(msg realtime.Message) { received <- msg })

	small := realtime.Message{Namespace: "/post", Event: "post:deleted", Payload: json.RawMessage(`255`), Except: "sock-1"}
	large := realtime.Message{
		Namespace: "/post",
		Event:     "post:created",
		Payload:   json.RawMessage(`{"text":"` + strings.Repeat("x", 9000) + `"}`),
	}

	// The listener may not be up yet; publish until the first message lands.
	var first realtime.Message
	require.Eventually(t, func() bool {
		if err := sender.Publish(ctx, small); err != nil {
			return false
		}
		select {
		case first = <-received:
			return true
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 10*time.Second, 10*time.Millisecond)
	require.Equal(t, small, first)

	require.NoError(t, sender.Publish(ctx, large))
	deadline := time.After(5 * time.Second)
	for {
		var msg realtime.Message
		select {
		case msg = <-received:
		case <-deadline:
			t.Fatal("large broadcast not delivered")
		}
		if msg.Event == "post:deleted" {
			continue
		}
		require.Equal(t, "post:created", msg.Event)
		require.JSONEq(t, string(large.Payload), string(msg.Payload))
		break
	}

	var stored int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM realtime_attachments`).Scan(&stored))
	require.Equal(t, 1, stored)
}

func TestNotifyAdapterPurgeAttachments(t *testing.T) {
	pool, _ := setupPostgres(t)
	ctx := context.Background()

	_, err := pool.Exec(ctx, `INSERT INTO realtime_attachments (created_at, payload) VALUES (NOW() - INTERVAL '1 hour', '\x00'), (NOW(), '\x00')`)
	require.NoError(t, err)

	adapter := NewNotifyAdapter(pool, "motortg_test", "node-a", time.Minute, zerolog.Nop())
	removed, err := adapter.PurgeAttachments(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)
}

func TestResubscribeDelay(t *testing.T) {
	tests := []struct {
		name     string
		backoff  time.Duration
		listened time.Duration
		want     time.Duration
	}{
		{"failed at once keeps growing backoff", 8 * time.Second, 0, 8 * time.Second},
		{"short subscription keeps backoff", maxResubscribeBackoff, 10 * time.Second, maxResubscribeBackoff},
		{"stable subscription starts over", maxResubscribeBackoff, stableSubscription, minResubscribeBackoff},
		{"long subscription starts over", 16 * time.Second, 3 * time.Hour, minResubscribeBackoff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, resubscribeDelay(tt.backoff, tt.listened))
		})
	}
}
