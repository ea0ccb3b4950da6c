// Package realtime is a small namespaced event transport over WebSocket. One
// connection multiplexes several namespaces; each joined namespace is a Socket
// with its own handlers, acknowledgements and broadcasts.
package realtime

import (
	"encoding/json"
	"strings"
)

type PacketType string

const (
	PacketConnect      PacketType = "connect"
	PacketConnectError PacketType = "connect_error"
	PacketDisconnect   PacketType = "disconnect"
	PacketEvent        PacketType = "event"
	PacketAck          PacketType = "ack"
)

// Packet is the JSON frame exchanged in both directions.
//
//	-> {"type":"connect","nsp":"/post","data":{"token":"..."}}
//	<- {"type":"connect","nsp":"/post","data":{"sid":"..."}}
//	-> {"type":"event","nsp":"/post","event":"post:create","args":[{...}],"id":1}
//	<- {"type":"ack","nsp":"/post","id":1,"args":[{...}]}
type Packet struct {
	Type      PacketType        `json:"type"`
	Namespace string            `json:"nsp"`
	Event     string            `json:"event,omitempty"`
	Args      []json.RawMessage `json:"args,omitempty"`
	ID        *uint64           `json:"id,omitempty"`
	Data      json.RawMessage   `json:"data,omitempty"`
}

// Event is an inbound event as seen by handlers.
type Event struct {
	Name string
	Args []json.RawMessage
}

// Arg returns the i-th argument or nil when the peer sent fewer.
func (e Event) Arg(i int) json.RawMessage {
	if i < 0 || i >= len(e.Args) {
		return nil
	}
	return e.Args[i]
}

func normalizeNamespace(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "/"
	}
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	return name
}

func errorData(message string) json.RawMessage {
	raw, _ := json.Marshal(struct {
		Message string `json:"message"`
	}{message})
	return raw
}
