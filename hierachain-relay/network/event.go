package network

import (
	"time"

	"github.com/VanDung-dev/HieraChain-Relay/hierachain-relay/protocol"
)

// EventType tells the dispatcher what a peer did.
type EventType int

const (
	EventHello EventType = iota
	EventLeave
	EventMessage
	EventMalformed
	EventConnect
)

// String returns the name of the event type.
func (t EventType) String() string {
	switch t {
	case EventHello:
		return "hello"
	case EventLeave:
		return "leave"
	case EventMessage:
		return "message"
	case EventMalformed:
		return "malformed"
	case EventConnect:
		return "connect"
	default:
		return "unknown"
	}
}

// Event is one inbound occurrence from a peer, queued in arrival order.
type Event struct {
	Type    EventType
	From    string
	Message *protocol.Message
	Err     error
	At      time.Time
}
