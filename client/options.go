package client

import (
	"time"

	"go.uber.org/zap"

	"github.com/luma/tvremote/protocol"
)

const (
	DefaultClientName   = "tvremote"
	DefaultMaxFrameSize = 64 * 1024
	EventBufferSize     = 255
)

type Options struct {
	// ClientName is shown by the receiver when it asks the user to confirm
	// the pairing
	ClientName string

	ProtocolVersion uint64

	// HandshakeTimeout disconnects a session that has not been authenticated
	// this long after connecting. Zero waits forever.
	HandshakeTimeout time.Duration

	// MaxFrameSize bounds the inbound reassembly buffer.
	MaxFrameSize int

	Log *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.ClientName == "" {
		o.ClientName = DefaultClientName
	}

	if o.ProtocolVersion == 0 {
		o.ProtocolVersion = protocol.ProtocolVersion
	}

	if o.MaxFrameSize < 1 {
		o.MaxFrameSize = DefaultMaxFrameSize
	}

	if o.Log == nil {
		o.Log = zap.NewNop()
	}

	return o
}
