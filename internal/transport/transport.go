// Package transport provides the duplex, message-oriented connection used for streaming sessions.
package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned when writing to a connection that is no longer open.
var ErrClosed = errors.New("transport: connection closed")

// EventKind tags an Event.
type EventKind int

const (
	// EventOpened is always the first event on a connection.
	EventOpened EventKind = iota
	// EventMessage carries one inbound frame.
	EventMessage
	// EventClosed reports a close handshake from either side.
	EventClosed
	// EventFailed reports an abnormal termination.
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventOpened:
		return "opened"
	case EventMessage:
		return "message"
	case EventClosed:
		return "closed"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is the single variant delivered on a connection's event channel.
// Payload and Binary are set for EventMessage, Code and Reason for EventClosed, Err for EventFailed.
type Event struct {
	Kind    EventKind
	Payload []byte
	Binary  bool
	Code    int
	Reason  string
	Err     error
}

// Conn is one open duplex connection.
// Events emits EventOpened, then any number of EventMessage, then at most one of
// EventClosed or EventFailed, and is then closed.
type Conn interface {
	Events() <-chan Event
	SendText(p []byte) error
	SendBinary(p []byte) error
	IsOpen() bool
	Close() error
}

// Dialer opens connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}
