package transport

import (
	"context"

	"menusync/internal/protocol"
)

// Direction tags which side initiated a connection.
type Direction int

const (
	Outgoing Direction = iota
	Incoming
)

// String returns the string representation of Direction.
func (d Direction) String() string {
	switch d {
	case Outgoing:
		return "outgoing"
	case Incoming:
		return "incoming"
	default:
		return "unknown"
	}
}

// EventKind labels a transport event.
type EventKind int

const (
	// EventOpen reports a connection ready for traffic. For incoming
	// opens the consumer decides whether to keep or close it.
	EventOpen EventKind = iota
	// EventData reports a received message.
	EventData
	// EventClosed reports a connection gone, whether closed by the
	// remote or torn down after a send/receive failure.
	EventClosed
	// EventError reports a failed outbound connection attempt.
	EventError
)

// Event is one structured transport occurrence. Conn identifies which
// connection an open or close belongs to, so a consumer that replaced a
// connection can tell a stale close apart from a live one.
type Event struct {
	Kind EventKind
	Peer string
	Conn Conn             // set on EventOpen and EventClosed
	Msg  protocol.Message // set on EventData
	Err  error            // set on EventError
}

// Conn is one open logical connection to a peer.
type Conn interface {
	PeerID() string
	Direction() Direction
	Send(msg protocol.Message) error
	Close() error
}

// Transport produces connections and their event streams. Connect is
// asynchronous; its outcome arrives as an EventOpen or EventError.
type Transport interface {
	Start(ctx context.Context) error
	Connect(peerID string)
	Events() <-chan Event
	Close() error
}
