package resource

// Cookie is an opaque reference to an entry in a table.
// Cookie 0 is reserved and always invalid.
//
// The low bits hold the slot (plus one, so a live cookie is never zero) and
// the high bits a per-slot generation, so a revoked cookie does not resolve
// to whatever entry later reuses its slot.
type Cookie uint32

const (
	slotBits      = 20
	slotMask      = 1<<slotBits - 1
	maxSlots      = slotMask
	generationMax = 1<<(32-slotBits) - 1
)

func makeCookie(slot, generation uint32) Cookie {
	return Cookie(generation<<slotBits | (slot + 1))
}

func (c Cookie) slot() (uint32, bool) {
	s := uint32(c) & slotMask
	if s == 0 {
		return 0, false
	}
	return s - 1, true
}

func (c Cookie) generation() uint32 {
	return uint32(c) >> slotBits
}

// Event types for entry lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventDropped:
		return "dropped"
	}
	return "unknown"
}

// Event represents an entry lifecycle event.
type Event struct {
	Value  any
	Cookie Cookie
	Type   EventType
}

// Observer receives notifications about entry lifecycle events.
type Observer interface {
	OnTableEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnTableEvent(e Event) { f(e) }

// Dropper is optionally implemented by values that need cleanup when their
// entry is removed or the table is closed.
type Dropper interface {
	Drop()
}
