package apartment

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/mcom/com"
	"github.com/wippyai/mcom/hresult"
)

// EventType identifies a runtime event.
type EventType int

const (
	EventApartmentEnter EventType = iota
	EventApartmentExit
	EventCreate
	EventRegister
	EventRevoke
	EventMint
	EventResolve
	EventCall
)

func (t EventType) String() string {
	switch t {
	case EventApartmentEnter:
		return "enter"
	case EventApartmentExit:
		return "exit"
	case EventCreate:
		return "create"
	case EventRegister:
		return "register"
	case EventRevoke:
		return "revoke"
	case EventMint:
		return "mint"
	case EventResolve:
		return "resolve"
	case EventCall:
		return "call"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event describes something the runtime did. Fields that do not apply to
// the event type are zero.
type Event struct {
	CLSID     com.CLSID
	IID       com.IID
	Apartment uint64
	Table     uint64
	Kind      Kind
	Type      EventType
	Status    hresult.HRESULT
	Cookie    uint32
	Options   com.ReferenceOptions
}

// Observer receives runtime events. Observers run synchronously on the
// goroutine that caused the event and must not block. They may subscribe
// or cancel other observers; an observer added during an event first sees
// the next one.
type Observer interface {
	OnRuntimeEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnRuntimeEvent implements Observer.
func (f ObserverFunc) OnRuntimeEvent(e Event) { f(e) }

// Subscribe adds an observer and returns a function that removes it.
func (rt *Runtime) Subscribe(o Observer) (cancel func()) {
	rt.obsMu.Lock()
	defer rt.obsMu.Unlock()
	id := rt.nextObs
	rt.nextObs++
	rt.observers[id] = o
	return func() {
		rt.obsMu.Lock()
		defer rt.obsMu.Unlock()
		delete(rt.observers, id)
	}
}

func (rt *Runtime) emit(e Event) {
	if ce := rt.log.Check(zap.DebugLevel, "runtime event"); ce != nil {
		fields := []zap.Field{
			zap.Stringer("type", e.Type),
			zap.Uint64("apartment", e.Apartment),
		}
		if e.Cookie != 0 {
			fields = append(fields, zap.Uint32("cookie", e.Cookie))
		}
		if !e.IID.IsZero() {
			fields = append(fields, zap.Stringer("iid", e.IID))
		}
		if e.Status != hresult.S_OK {
			fields = append(fields, zap.String("hr", e.Status.Name()))
		}
		ce.Write(fields...)
	}

	rt.obsMu.RLock()
	observers := make([]Observer, 0, len(rt.observers))
	for _, o := range rt.observers {
		observers = append(observers, o)
	}
	rt.obsMu.RUnlock()

	for _, o := range observers {
		o.OnRuntimeEvent(e)
	}
}
