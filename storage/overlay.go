package storage

import (
	"fmt"
	"sync"
)

// Overlay buffers writes on top of a parent database until Commit is called.
// Reads observe buffered writes first. Discard drops every pending write.
type Overlay struct {
	parent Database
	mu     sync.RWMutex
	writes map[string][]byte
}

// NewOverlay layers a write buffer on top of parent.
func NewOverlay(parent Database) *Overlay {
	return &Overlay{parent: parent, writes: make(map[string][]byte)}
}

func (o *Overlay) Put(key []byte, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.writes[string(key)] = append([]byte(nil), value...)
	return nil
}

func (o *Overlay) Get(key []byte) ([]byte, error) {
	o.mu.RLock()
	value, ok := o.writes[string(key)]
	o.mu.RUnlock()
	if ok {
		if value == nil {
			return nil, ErrNotFound
		}
		return append([]byte(nil), value...), nil
	}
	return o.parent.Get(key)
}

func (o *Overlay) Has(key []byte) (bool, error) {
	o.mu.RLock()
	value, ok := o.writes[string(key)]
	o.mu.RUnlock()
	if ok {
		return value != nil, nil
	}
	return o.parent.Has(key)
}

func (o *Overlay) Delete(key []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.writes[string(key)] = nil
	return nil
}

// Close is a no-op; the parent database is owned by the caller.
func (o *Overlay) Close() {}

// Pending reports the number of buffered writes.
func (o *Overlay) Pending() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.writes)
}

// Commit flushes the buffered writes into the parent. Backends implementing
// Batcher apply the writes atomically.
func (o *Overlay) Commit() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.writes) == 0 {
		return nil
	}
	if batcher, ok := o.parent.(Batcher); ok {
		if err := batcher.WriteBatch(o.writes); err != nil {
			return fmt.Errorf("commit overlay: %w", err)
		}
	} else {
		for key, value := range o.writes {
			var err error
			if value == nil {
				err = o.parent.Delete([]byte(key))
			} else {
				err = o.parent.Put([]byte(key), value)
			}
			if err != nil {
				return fmt.Errorf("commit overlay: %w", err)
			}
		}
	}
	o.writes = make(map[string][]byte)
	return nil
}

// Discard drops all buffered writes.
func (o *Overlay) Discard() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.writes = make(map[string][]byte)
}
