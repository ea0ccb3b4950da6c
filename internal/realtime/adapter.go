package realtime

import (
	"context"
	"encoding/json"
)

// Message is a broadcast crossing process boundaries.
type Message struct {
	Namespace string          `json:"nsp"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
	// Except is the originating socket id, which never receives its own broadcast.
	Except string `json:"except,omitempty"`
}

// Adapter forwards local broadcasts to other server instances. Instances feed
// what they receive back in through Server.Deliver.
type Adapter interface {
	Publish(ctx context.Context, msg Message) error
}

type localAdapter struct{}

func (localAdapter) Publish(context.Context, Message) error { return nil }
