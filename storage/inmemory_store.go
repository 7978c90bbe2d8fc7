package storage

import (
	"context"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
)

const UpdateBufferSize = 255

type InmemoryStore struct {
	log *zap.Logger

	mu          sync.RWMutex
	doc         []byte
	updateChans map[int]chan *Update
	nextID      int

	// stop will be closed when Close() is called
	stop chan struct{}
}

func NewInmemoryStore(log *zap.Logger) *InmemoryStore {
	if log == nil {
		log = zap.NewNop()
	}

	return &InmemoryStore{
		log:         log,
		doc:         []byte("{}"),
		stop:        make(chan struct{}),
		updateChans: make(map[int]chan *Update),
	}
}

func (i *InmemoryStore) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.isRunning() {
		return nil
	}

	close(i.stop)

	for id, updateChan := range i.updateChans {
		close(updateChan)
		delete(i.updateChans, id)
	}

	return nil
}

func (i *InmemoryStore) Set(ctx context.Context, path string, value interface{}) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.isRunning() {
		return ErrClosed
	}

	doc, err := sjson.SetBytes(i.doc, path, value)
	if err != nil {
		return err
	}

	i.doc = doc
	i.publishLocked(path, []byte(gjson.GetBytes(i.doc, path).Raw))

	return nil
}

func (i *InmemoryStore) Delete(ctx context.Context, path string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.isRunning() {
		return ErrClosed
	}

	if !gjson.GetBytes(i.doc, path).Exists() {
		return nil
	}

	doc, err := sjson.DeleteBytes(i.doc, path)
	if err != nil {
		return err
	}

	i.doc = doc
	i.publishLocked(path, nil)

	return nil
}

func (i *InmemoryStore) Get(ctx context.Context, path string) ([]byte, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if path == "" {
		return copyBytes(i.doc), nil
	}

	result := gjson.GetBytes(i.doc, path)
	if !result.Exists() {
		return nil, nil
	}

	return []byte(result.Raw), nil
}

func (i *InmemoryStore) Snapshot() ([]byte, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return copyBytes(i.doc), nil
}

func (i *InmemoryStore) Listen() (<-chan *Update, func()) {
	i.mu.Lock()
	defer i.mu.Unlock()

	updateChan := make(chan *Update, UpdateBufferSize)
	if !i.isRunning() {
		close(updateChan)
		return updateChan, func() {}
	}

	id := i.nextID
	i.nextID++
	i.updateChans[id] = updateChan

	return updateChan, func() {
		i.mu.Lock()
		defer i.mu.Unlock()

		if c, ok := i.updateChans[id]; ok {
			close(c)
			delete(i.updateChans, id)
		}
	}
}

// publishLocked never blocks, a listener that falls behind loses updates.
func (i *InmemoryStore) publishLocked(path string, value []byte) {
	for _, updateChan := range i.updateChans {
		select {
		case updateChan <- &Update{Path: path, Value: copyBytes(value)}:
		default:
			i.log.Warn("Dropped state update for a slow listener", zap.String("path", path))
		}
	}
}

// isRunning returns true if Close has not been called
func (i *InmemoryStore) isRunning() bool {
	select {
	case <-i.stop:
		return false

	default:
		return true
	}
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}

	return append([]byte(nil), b...)
}

var _ Store = (*InmemoryStore)(nil)
