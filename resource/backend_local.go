package resource

import (
	"errors"
	"sync"
)

var (
	ErrClosed = errors.New("resource backend closed")
	ErrFull   = errors.New("resource backend has no free slots")
)

// LocalBackend is an in-memory slot store with generation-tagged cookies.
type LocalBackend[V any] struct {
	entries  []entry[V]
	freeList []uint32
	mu       sync.RWMutex
	closed   bool
}

type entry[V any] struct {
	value      V
	generation uint32
	valid      bool
}

// NewLocalBackend creates a new in-memory backend.
func NewLocalBackend[V any]() *LocalBackend[V] {
	return &LocalBackend[V]{
		entries:  make([]entry[V], 0, 64),
		freeList: make([]uint32, 0, 16),
	}
}

// Create stores a value and returns its cookie.
func (b *LocalBackend[V]) Create(value V) (Cookie, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}

	if len(b.freeList) > 0 {
		slot := b.freeList[len(b.freeList)-1]
		b.freeList = b.freeList[:len(b.freeList)-1]
		e := &b.entries[slot]
		e.value = value
		e.valid = true
		return makeCookie(slot, e.generation), nil
	}

	if len(b.entries) >= maxSlots {
		return 0, ErrFull
	}

	b.entries = append(b.entries, entry[V]{value: value, valid: true})
	return makeCookie(uint32(len(b.entries)-1), 0), nil
}

// lookup returns the live entry for c. Callers hold b.mu.
func (b *LocalBackend[V]) lookup(c Cookie) *entry[V] {
	slot, ok := c.slot()
	if !ok || int(slot) >= len(b.entries) {
		return nil
	}
	e := &b.entries[slot]
	if !e.valid || e.generation != c.generation() {
		return nil
	}
	return e
}

// Get retrieves a value by cookie.
func (b *LocalBackend[V]) Get(c Cookie) (V, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var zero V
	e := b.lookup(c)
	if e == nil {
		return zero, false
	}
	return e.value, true
}

// Drop removes an entry and returns (value, true) if it was live.
// The slot's generation advances so c never resolves again.
func (b *LocalBackend[V]) Drop(c Cookie) (V, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero V
	e := b.lookup(c)
	if e == nil {
		return zero, false
	}

	value := e.value
	e.value = zero
	e.valid = false
	e.generation = (e.generation + 1) & generationMax
	slot, _ := c.slot()
	b.freeList = append(b.freeList, slot)

	return value, true
}

// Close drops every live entry and refuses further inserts. Droppers run
// after the backend lock is released.
func (b *LocalBackend[V]) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true

	var live []V
	for i := range b.entries {
		if b.entries[i].valid {
			live = append(live, b.entries[i].value)
		}
	}
	b.entries = nil
	b.freeList = nil
	b.mu.Unlock()

	for _, v := range live {
		if d, ok := any(v).(Dropper); ok {
			d.Drop()
		}
	}
	return nil
}

// Len returns the number of live entries.
func (b *LocalBackend[V]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.entries) - len(b.freeList)
}

// Each iterates over all live entries in slot order.
func (b *LocalBackend[V]) Each(fn func(Cookie, V) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for i, e := range b.entries {
		if e.valid {
			if !fn(makeCookie(uint32(i), e.generation), e.value) {
				break
			}
		}
	}
}
