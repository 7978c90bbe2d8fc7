package transport

import (
	"time"

	"go.uber.org/zap"
)

type Options struct {
	// DialTimeout bounds how long establishing a connection may take. Zero means
	// only the Dial context applies.
	DialTimeout time.Duration

	// IdleTimeout emits EventTimeout whenever nothing has been read for this
	// long. Zero disables it.
	IdleTimeout time.Duration

	// WriteQueueSize is the number of frames that can be queued before Write
	// blocks.
	WriteQueueSize int

	// ReadBufferSize is the size of each read from the socket.
	ReadBufferSize int

	// Trace will dump packets to the log. This is only useful in local debugging
	Trace bool

	Log *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.WriteQueueSize < 1 {
		o.WriteQueueSize = 127
	}

	if o.ReadBufferSize < 1 {
		o.ReadBufferSize = 4096
	}

	if o.Log == nil {
		o.Log = zap.NewNop()
	}

	return o
}
