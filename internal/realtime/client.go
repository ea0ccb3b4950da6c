package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var (
	ErrClosed       = errors.New("connection closed")
	ErrSlowConsumer = errors.New("send queue full")
)

// client is one WebSocket connection. readPump decodes frames into inbox,
// dispatch handles them one at a time in arrival order, and writePump is the
// only writer of data frames.
type client struct {
	id     string
	server *Server
	conn   *websocket.Conn
	logger zerolog.Logger

	remoteAddr string

	send  chan []byte
	inbox chan Packet

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu      sync.Mutex
	sockets map[string]*Socket
}

func newClient(server *Server, conn *websocket.Conn, r *http.Request) *client {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	return &client{
		id:         id,
		server:     server,
		conn:       conn,
		logger:     server.logger.With().Str("conn_id", id).Str("remote_addr", r.RemoteAddr).Logger(),
		remoteAddr: r.RemoteAddr,
		send:       make(chan []byte, sendBuffer),
		inbox:      make(chan Packet, inboxBuffer),
		ctx:        ctx,
		cancel:     cancel,
		sockets:    make(map[string]*Socket),
	}
}

func (c *client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug().Err(err).Msg("connection closed unexpectedly")
			}
			return
		}

		var p Packet
		if err := json.Unmarshal(data, &p); err != nil {
			c.logger.Debug().Err(err).Msg("dropping malformed packet")
			continue
		}
		p.Namespace = normalizeNamespace(p.Namespace)

		select {
		case c.inbox <- p:
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug().Err(err).Msg("write failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *client) dispatch() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case p := <-c.inbox:
			c.handle(p)
		}
	}
}

func (c *client) handle(p Packet) {
	switch p.Type {
	case PacketConnect:
		c.connect(p)
	case PacketEvent:
		c.event(p)
	case PacketDisconnect:
		c.leave(p.Namespace)
	default:
		c.logger.Debug().Str("type", string(p.Type)).Msg("ignoring packet")
	}
}

func (c *client) connect(p Packet) {
	if socket := c.socket(p.Namespace); socket != nil {
		_ = c.sendPacket(Packet{Type: PacketConnect, Namespace: p.Namespace, Data: sidData(socket.id)})
		return
	}

	nsp := c.server.lookup(p.Namespace)
	if nsp == nil {
		_ = c.sendPacket(Packet{Type: PacketConnectError, Namespace: p.Namespace, Data: errorData("invalid namespace")})
		return
	}

	var auth map[string]any
	if len(p.Data) > 0 {
		if err := json.Unmarshal(p.Data, &auth); err != nil {
			auth = nil
		}
	}

	socket := newSocket(c, nsp, auth)
	if err := nsp.admit(socket.ctx, socket); err != nil {
		socket.cancel()
		_ = c.sendPacket(Packet{Type: PacketConnectError, Namespace: nsp.name, Data: errorData(err.Error())})
		return
	}

	c.mu.Lock()
	c.sockets[nsp.name] = socket
	c.mu.Unlock()
	nsp.add(socket)

	socket.logger.Debug().Msg("socket joined namespace")
	_ = c.sendPacket(Packet{Type: PacketConnect, Namespace: nsp.name, Data: sidData(socket.id)})
}

func (c *client) event(p Packet) {
	socket := c.socket(p.Namespace)
	if socket == nil {
		c.logger.Debug().Str("namespace", p.Namespace).Str("event", p.Event).Msg("event for a namespace the peer has not joined")
		return
	}

	handler := socket.handler(p.Event)
	if handler == nil {
		socket.logger.Debug().Str("event", p.Event).Msg("no handler bound")
		return
	}

	result := c.invoke(socket, handler, Event{Name: p.Event, Args: p.Args})
	if p.ID == nil {
		return
	}

	ack := Packet{Type: PacketAck, Namespace: socket.nsp.name, ID: p.ID}
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			socket.logger.Error().Err(err).Str("event", p.Event).Msg("encode acknowledgement")
			return
		}
		ack.Args = []json.RawMessage{raw}
	}
	_ = c.sendPacket(ack)
}

func (c *client) invoke(socket *Socket, handler EventHandler, ev Event) (result any) {
	defer func() {
		if r := recover(); r != nil {
			socket.logger.Error().Interface("panic", r).Str("event", ev.Name).Msg("event handler panicked")
			result = nil
		}
	}()
	return handler(socket.ctx, socket, ev)
}

func (c *client) socket(nsp string) *Socket {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sockets[nsp]
}

// leave removes the socket joined to nsp, reporting whether there was one.
func (c *client) leave(nsp string) bool {
	c.mu.Lock()
	socket, ok := c.sockets[nsp]
	delete(c.sockets, nsp)
	c.mu.Unlock()

	if !ok {
		return false
	}
	socket.nsp.remove(socket)
	socket.cancel()
	socket.logger.Debug().Msg("socket left namespace")
	return true
}

func (c *client) sendPacket(p Packet) error {
	frame, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.enqueue(frame)
}

func (c *client) enqueue(frame []byte) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.ctx.Done():
		return ErrClosed
	default:
		c.logger.Warn().Msg("send queue full, dropping connection")
		go c.close()
		return ErrSlowConsumer
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		sockets := c.sockets
		c.sockets = make(map[string]*Socket)
		c.mu.Unlock()

		for _, socket := range sockets {
			socket.nsp.remove(socket)
			socket.cancel()
		}
		c.server.unregister(c)

		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		_ = c.conn.Close()
		c.logger.Debug().Msg("client disconnected")
	})
}

func sidData(id string) json.RawMessage {
	raw, _ := json.Marshal(struct {
		SID string `json:"sid"`
	}{id})
	return raw
}
