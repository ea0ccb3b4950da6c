package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Handshake is what the peer presented when joining a namespace.
type Handshake struct {
	Auth       map[string]any
	RemoteAddr string
}

// Token returns Auth["token"] when it is a string.
func (h Handshake) Token() string {
	token, _ := h.Auth["token"].(string)
	return token
}

// Socket is one peer's membership in one namespace.
type Socket struct {
	id        string
	nsp       *Namespace
	client    *client
	handshake Handshake
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	handlers map[string]EventHandler
	values   map[string]any
}

func newSocket(c *client, nsp *Namespace, auth map[string]any) *Socket {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(c.ctx)
	s := &Socket{
		id:     id,
		nsp:    nsp,
		client: c,
		handshake: Handshake{
			Auth:       auth,
			RemoteAddr: c.remoteAddr,
		},
		logger:   c.logger.With().Str("namespace", nsp.name).Str("socket_id", id).Logger(),
		handlers: make(map[string]EventHandler),
		values:   make(map[string]any),
		cancel:   cancel,
	}
	s.ctx = s.logger.WithContext(ctx)
	return s
}

func (s *Socket) ID() string { return s.id }

func (s *Socket) Namespace() string { return s.nsp.name }

func (s *Socket) Handshake() Handshake { return s.handshake }

func (s *Socket) Logger() *zerolog.Logger { return &s.logger }

// On binds handler to event, wrapped in the namespace's event middlewares.
func (s *Socket) On(event string, handler EventHandler) {
	wrapped := s.nsp.wrap(handler)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = wrapped
}

func (s *Socket) handler(event string) EventHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handlers[event]
}

// Set stores per-socket state for middlewares.
func (s *Socket) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func (s *Socket) Value(key string) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key]
}

// Broadcast emits event with payload to every other socket of the namespace,
// on this instance and, through the adapter, on the others.
func (s *Socket) Broadcast(ctx context.Context, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event, err)
	}

	s.nsp.deliver(event, raw, s.id, "local")

	msg := Message{Namespace: s.nsp.name, Event: event, Payload: raw, Except: s.id}
	if err := s.nsp.server.adapter.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", event, err)
	}
	return nil
}
