package middleware

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MotorTG/motortg-crud/internal/realtime"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type wsPeer struct {
	t    *testing.T
	conn *websocket.Conn
	next uint64
}

func serve(t *testing.T, srv *realtime.Server) *wsPeer {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &wsPeer{t: t, conn: conn}
}

func (p *wsPeer) read() realtime.Packet {
	p.t.Helper()
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var packet realtime.Packet
	require.NoError(p.t, p.conn.ReadJSON(&packet))
	return packet
}

func (p *wsPeer) connect(nsp string, auth any) realtime.Packet {
	p.t.Helper()
	packet := realtime.Packet{Type: realtime.PacketConnect, Namespace: nsp}
	if auth != nil {
		raw, err := json.Marshal(auth)
		require.NoError(p.t, err)
		packet.Data = raw
	}
	require.NoError(p.t, p.conn.WriteJSON(packet))
	return p.read()
}

// call emits event and returns the first acknowledgement argument.
func (p *wsPeer) call(nsp, event string, args ...any) string {
	p.t.Helper()
	p.next++
	id := p.next

	raw := make([]json.RawMessage, 0, len(args))
	for _, arg := range args {
		b, err := json.Marshal(arg)
		require.NoError(p.t, err)
		raw = append(raw, b)
	}
	require.NoError(p.t, p.conn.WriteJSON(realtime.Packet{
		Type: realtime.PacketEvent, Namespace: nsp, Event: event, Args: raw, ID: &id,
	}))

	ack := p.read()
	require.Equal(p.t, realtime.PacketAck, ack.Type)
	require.Equal(p.t, id, *ack.ID)
	if len(ack.Args) == 0 {
		return ""
	}
	return string(ack.Args[0])
}
