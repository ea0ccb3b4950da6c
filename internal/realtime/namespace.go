package realtime

import (
	"context"
	"encoding/json"
	"slices"
	"sync"

	"github.com/MotorTG/motortg-crud/internal/metrics"
)

// ConnectMiddleware runs once per connection attempt, before any handler is
// bound. A non-nil error refuses the connection; its message is sent to the peer.
type ConnectMiddleware func(ctx context.Context, socket *Socket) error

// EventHandler handles one inbound event. A non-nil result is sent back as the
// acknowledgement when the peer asked for one.
type EventHandler func(ctx context.Context, socket *Socket, ev Event) any

type EventMiddleware func(next EventHandler) EventHandler

type Namespace struct {
	name   string
	server *Server

	mu           sync.RWMutex
	connectMW    []ConnectMiddleware
	eventMW      []EventMiddleware
	onConnection []func(*Socket)
	sockets      map[string]*Socket
}

func newNamespace(server *Server, name string) *Namespace {
	return &Namespace{
		name:    name,
		server:  server,
		sockets: make(map[string]*Socket),
	}
}

func (n *Namespace) Name() string {
	return n.name
}

// Use appends a connect middleware. Middlewares run in registration order and
// stop at the first refusal.
func (n *Namespace) Use(mw ConnectMiddleware) *Namespace {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connectMW = append(n.connectMW, mw)
	return n
}

// UseEvents wraps every handler bound afterwards; the first registered
// middleware is the outermost.
func (n *Namespace) UseEvents(mw EventMiddleware) *Namespace {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.eventMW = append(n.eventMW, mw)
	return n
}

// OnConnection registers fn to run for every admitted socket, typically to bind handlers.
func (n *Namespace) OnConnection(fn func(*Socket)) *Namespace {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onConnection = append(n.onConnection, fn)
	return n
}

// Len reports the number of admitted sockets on this instance.
func (n *Namespace) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.sockets)
}

func (n *Namespace) admit(ctx context.Context, socket *Socket) error {
	n.mu.RLock()
	chain := slices.Clone(n.connectMW)
	n.mu.RUnlock()

	for _, mw := range chain {
		if err := mw(ctx, socket); err != nil {
			return err
		}
	}
	return nil
}

func (n *Namespace) add(socket *Socket) {
	n.mu.Lock()
	bind := slices.Clone(n.onConnection)
	n.mu.Unlock()

	for _, fn := range bind {
		fn(socket)
	}

	n.mu.Lock()
	n.sockets[socket.id] = socket
	n.mu.Unlock()
	metrics.ConnectionsActive.WithLabelValues(n.name).Inc()
}

func (n *Namespace) remove(socket *Socket) {
	n.mu.Lock()
	_, ok := n.sockets[socket.id]
	delete(n.sockets, socket.id)
	n.mu.Unlock()
	if ok {
		metrics.ConnectionsActive.WithLabelValues(n.name).Dec()
	}
}

func (n *Namespace) wrap(handler EventHandler) EventHandler {
	n.mu.RLock()
	chain := slices.Clone(n.eventMW)
	n.mu.RUnlock()

	for i := len(chain) - 1; i >= 0; i-- {
		handler = chain[i](handler)
	}
	return handler
}

// deliver emits event to every local socket except the one with id except.
func (n *Namespace) deliver(event string, payload json.RawMessage, except, origin string) {
	frame, err := json.Marshal(Packet{
		Type:      PacketEvent,
		Namespace: n.name,
		Event:     event,
		Args:      []json.RawMessage{payload},
	})
	if err != nil {
		n.server.logger.Error().Err(err).Str("event", event).Msg("encode broadcast")
		return
	}

	n.mu.RLock()
	targets := make([]*Socket, 0, len(n.sockets))
	for id, socket := range n.sockets {
		if id != except {
			targets = append(targets, socket)
		}
	}
	n.mu.RUnlock()

	for _, socket := range targets {
		_ = socket.client.enqueue(frame)
	}
	metrics.BroadcastsTotal.WithLabelValues(event, origin).Inc()
}
