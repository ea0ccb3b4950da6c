package realtime

import (
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 256
	inboxBuffer    = 64
)

type Option func(*Server)

// WithAdapter enables cross-instance broadcasts.
func WithAdapter(adapter Adapter) Option {
	return func(s *Server) {
		if adapter != nil {
			s.adapter = adapter
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithAllowedOrigins restricts the Origin header on upgrade. Empty allows any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.origins = slices.Clone(origins)
	}
}

// Server accepts WebSocket upgrades and routes packets to namespaces. It is an
// http.Handler.
type Server struct {
	upgrader websocket.Upgrader
	adapter  Adapter
	logger   zerolog.Logger
	origins  []string

	mu         sync.RWMutex
	namespaces map[string]*Namespace
	clients    map[*client]struct{}
	closed     bool
}

func NewServer(opts ...Option) *Server {
	s := &Server{
		adapter:    localAdapter{},
		logger:     zerolog.Nop(),
		namespaces: make(map[string]*Namespace),
		clients:    make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.Of("/")
	return s
}

// Of returns the namespace called name, creating it on first use. "post" and
// "/post" name the same namespace.
func (s *Server) Of(name string) *Namespace {
	name = normalizeNamespace(name)

	s.mu.Lock()
	defer s.mu.Unlock()

	if nsp, ok := s.namespaces[name]; ok {
		return nsp
	}
	nsp := newNamespace(s, name)
	s.namespaces[name] = nsp
	return nsp
}

func (s *Server) lookup(name string) *Namespace {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.namespaces[name]
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	c := newClient(s, conn, r)
	if !s.register(c) {
		_ = conn.Close()
		return
	}
	c.logger.Debug().Msg("client connected")

	go c.writePump()
	go c.dispatch()
	go c.readPump()
}

// Deliver hands a broadcast published by another instance to local sockets.
func (s *Server) Deliver(msg Message) {
	nsp := s.lookup(normalizeNamespace(msg.Namespace))
	if nsp == nil {
		s.logger.Debug().Str("namespace", msg.Namespace).Msg("dropping broadcast for unknown namespace")
		return
	}
	nsp.deliver(msg.Event, msg.Payload, msg.Except, "remote")
}

// Close disconnects every client and refuses new ones.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

func (s *Server) register(c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.clients[c] = struct{}{}
	return true
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.origins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || slices.Contains(s.origins, origin)
}
