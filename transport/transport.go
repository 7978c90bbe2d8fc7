package transport

import (
	"context"
	"errors"
)

var (
	ErrClosed = errors.New("Connection is closed")
)

type EventType int

const (
	// EventData carries a chunk of inbound bytes. Chunks do not respect frame
	// boundaries.
	EventData EventType = iota

	// EventError reports a failed read or write. It is always followed by
	// EventClose.
	EventError

	// EventClose is the last event of a connection.
	EventClose

	// EventTimeout reports that nothing was read for the configured idle
	// timeout. The connection stays open.
	EventTimeout
)

func (e EventType) String() string {
	switch e {
	case EventData:
		return "data"
	case EventError:
		return "error"
	case EventClose:
		return "close"
	case EventTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

type Event struct {
	Type EventType
	Data []byte
	Err  error
}

// Conn is a byte stream to a single receiver.
type Conn interface {
	// Events delivers inbound events in order. The channel is closed after
	// EventClose. Readers must drain it until then.
	Events() <-chan Event

	// Write hands data to the connection's write queue. It returns once the
	// data is queued, not when it has been written to the network.
	Write(ctx context.Context, data []byte) error

	// Close destroys the connection. It is safe to call more than once.
	Close() error
}

// Dialer opens connections. Dial returns once the connection is established
// or has failed.
type Dialer interface {
	Dial(ctx context.Context, host string, port int) (Conn, error)
}
