package resource

import (
	"sync"
)

// Table maps cookies to values and notifies observers about inserts and
// removals. It is safe for concurrent use.
type Table[V any] struct {
	backend   *LocalBackend[V]
	observers map[uint64]Observer
	nextObs   uint64
	obsMu     sync.RWMutex
	closed    bool
	closeMu   sync.RWMutex
}

// NewTable creates a new table with a LocalBackend.
func NewTable[V any]() *Table[V] {
	return &Table[V]{
		backend:   NewLocalBackend[V](),
		observers: make(map[uint64]Observer),
	}
}

// Insert adds a value and returns its cookie.
func (t *Table[V]) Insert(value V) (Cookie, error) {
	t.closeMu.RLock()
	if t.closed {
		t.closeMu.RUnlock()
		return 0, ErrClosed
	}
	t.closeMu.RUnlock()

	c, err := t.backend.Create(value)
	if err != nil {
		return 0, err
	}

	t.notify(Event{
		Type:   EventCreated,
		Cookie: c,
		Value:  value,
	})

	return c, nil
}

// Get retrieves a value by cookie.
func (t *Table[V]) Get(c Cookie) (V, bool) {
	return t.backend.Get(c)
}

// Remove drops an entry and returns (value, true) if found.
func (t *Table[V]) Remove(c Cookie) (V, bool) {
	value, ok := t.backend.Drop(c)
	if !ok {
		return value, false
	}

	if d, ok := any(value).(Dropper); ok {
		d.Drop()
	}

	t.notify(Event{
		Type:   EventDropped,
		Cookie: c,
		Value:  value,
	})

	return value, true
}

// Subscribe adds an observer for lifecycle events and returns a function
// that removes it.
func (t *Table[V]) Subscribe(o Observer) (cancel func()) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	id := t.nextObs
	t.nextObs++
	t.observers[id] = o
	return func() {
		t.obsMu.Lock()
		defer t.obsMu.Unlock()
		delete(t.observers, id)
	}
}

// Len returns the number of live entries.
func (t *Table[V]) Len() int {
	return t.backend.Len()
}

// Each iterates over all live entries.
func (t *Table[V]) Each(fn func(Cookie, V) bool) {
	t.backend.Each(fn)
}

// Clear removes all entries.
func (t *Table[V]) Clear() {
	// Collect cookies first to avoid holding the backend lock during Remove
	var cookies []Cookie
	t.backend.Each(func(c Cookie, _ V) bool {
		cookies = append(cookies, c)
		return true
	})
	for _, c := range cookies {
		t.Remove(c)
	}
}

// Close drops all entries and stops accepting inserts.
func (t *Table[V]) Close() error {
	t.closeMu.Lock()
	t.closed = true
	t.closeMu.Unlock()

	return t.backend.Close()
}

func (t *Table[V]) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnTableEvent(e)
	}
}
