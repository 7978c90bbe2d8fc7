package storage

import (
	"context"
	"errors"
)

var ErrClosed = errors.New("Store is closed")

// Store holds the observable state as a single JSON document. Paths use the
// gjson/sjson dot syntax, e.g. "session.state" or "devices.0.host".
type Store interface {
	Set(ctx context.Context, path string, value interface{}) error
	Delete(ctx context.Context, path string) error

	// Get returns the raw JSON at path, or nil if nothing is there.
	Get(ctx context.Context, path string) ([]byte, error)

	// Snapshot returns the whole document.
	Snapshot() ([]byte, error)

	// Listen returns a channel of updates and a function that unsubscribes it.
	Listen() (<-chan *Update, func())

	Close() error
}

// Update is sent to listeners after every write. Value is the raw JSON now at
// Path, nil after a delete.
type Update struct {
	Path  string
	Value []byte
}
