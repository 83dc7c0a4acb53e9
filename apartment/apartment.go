package apartment

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/mcom/com"
	"github.com/wippyai/mcom/errors"
	"github.com/wippyai/mcom/hresult"
)

const (
	methodCoInitializeEx      = "CoInitializeEx"
	methodCoIncrementMTAUsage = "CoIncrementMTAUsage"
	methodCall                = "Apartment.Call"
	methodApartmentLocal      = "Apartment.Local"
)

type apartmentKey struct{}

// Apartment is a confinement boundary for objects. A context carries the
// caller's apartment; see FromContext.
type Apartment struct {
	rt   *Runtime
	id   uint64
	kind Kind
	init Init

	// users counts Initialize calls and MTA usage scopes; guarded by rt.mu.
	users int

	mu     sync.Mutex
	queue  []*task
	closed bool
	wake   chan struct{}

	localsMu   sync.Mutex
	locals     map[any]com.Releaser
	localOrder []any
}

type task struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

// Initialize enters an apartment of the model selected by init and returns
// a context bound to it.
//
// first reports whether a new apartment was entered. If ctx is already
// bound to a live apartment of the same kind, its use count grows and
// first is false; a different kind fails with RPC_E_CHANGED_MODE. Every
// successful call must be paired with Uninitialize.
func Initialize(ctx context.Context, rt *Runtime, init Init) (context.Context, bool, error) {
	if cur := FromContext(ctx); cur != nil && cur.rt == rt && !cur.Closed() {
		if cur.kind != init.Kind() {
			return ctx, false, errors.New(methodCoInitializeEx, hresult.RPC_E_CHANGED_MODE).
				Detail("context is bound to an " + cur.kind.String()).
				Build()
		}
		if err := rt.retain(cur); err != nil {
			return ctx, false, err
		}
		return ctx, false, nil
	}

	var (
		a   *Apartment
		err error
	)
	if init.Kind() == MTA {
		a, err = rt.acquireMTA(init)
	} else {
		a, err = rt.newSTA(init)
	}
	if err != nil {
		return ctx, false, err
	}
	return a.Context(ctx), true, nil
}

// EnterSTA enters a new single-threaded apartment.
func EnterSTA(ctx context.Context, rt *Runtime) (context.Context, bool, error) {
	return Initialize(ctx, rt, ApartmentThreaded)
}

// EnterMTA enters the runtime's multi-threaded apartment.
func EnterMTA(ctx context.Context, rt *Runtime) (context.Context, bool, error) {
	return Initialize(ctx, rt, MultiThreaded)
}

// Uninitialize leaves the apartment bound to ctx. The last user closes it:
// queued calls fail with RPC_E_DISCONNECTED, queued releases run, and
// apartment-local values are released.
func Uninitialize(ctx context.Context) {
	a := FromContext(ctx)
	if a == nil {
		return
	}
	a.rt.release(a)
}

// FromContext returns the apartment bound to ctx, or nil.
func FromContext(ctx context.Context) *Apartment {
	a, _ := ctx.Value(apartmentKey{}).(*Apartment)
	return a
}

// ID returns the apartment's runtime-unique identifier.
func (a *Apartment) ID() uint64 { return a.id }

// Kind returns the apartment model.
func (a *Apartment) Kind() Kind { return a.kind }

// Init returns the flags the apartment was created with.
func (a *Apartment) Init() Init { return a.init }

// Runtime returns the owning runtime.
func (a *Apartment) Runtime() *Runtime { return a.rt }

// Closed reports whether the apartment has been uninitialized.
func (a *Apartment) Closed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// Context returns parent bound to a and its runtime.
func (a *Apartment) Context(parent context.Context) context.Context {
	return com.WithRuntime(context.WithValue(parent, apartmentKey{}, a), a.rt)
}

// Call runs fn inside a. A caller already in a runs fn directly. MTA calls
// run on the caller's goroutine. STA calls are queued and run by the
// owner's next Pump; while waiting, a caller that is itself in an STA pumps
// its own queue so calls back into it cannot deadlock.
func (a *Apartment) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	caller := FromContext(ctx)
	if caller == a {
		return fn(ctx)
	}

	if a.kind == MTA {
		if a.Closed() {
			return errors.Unchecked(methodCall, hresult.RPC_E_DISCONNECTED)
		}
		return fn(a.Context(ctx))
	}

	t := &task{ctx: a.Context(ctx), fn: fn, done: make(chan error, 1)}
	if !a.enqueue(t) {
		return errors.Unchecked(methodCall, hresult.RPC_E_DISCONNECTED)
	}
	a.rt.emit(Event{Type: EventCall, Apartment: a.id})

	var callerWake chan struct{}
	if caller != nil && caller.kind == STA {
		callerWake = caller.wake
	}
	for {
		select {
		case err := <-t.done:
			return err
		case <-callerWake:
			caller.Pump()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// post runs fn inside a without waiting. Closed or multi-threaded
// apartments run it immediately.
func (a *Apartment) post(fn func(ctx context.Context)) {
	ctx := a.Context(context.Background())
	run := func(ctx context.Context) error {
		fn(ctx)
		return nil
	}
	if a.kind == MTA || !a.enqueue(&task{ctx: ctx, fn: run}) {
		fn(ctx)
	}
}

func (a *Apartment) enqueue(t *task) bool {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return false
	}
	a.queue = append(a.queue, t)
	a.mu.Unlock()

	select {
	case a.wake <- struct{}{}:
	default:
	}
	return true
}

// Pump runs every queued call and returns how many ran. Only the goroutine
// that owns the apartment may pump it.
func (a *Apartment) Pump() int {
	n := 0
	for {
		a.mu.Lock()
		q := a.queue
		a.queue = nil
		a.mu.Unlock()
		if len(q) == 0 {
			return n
		}
		for _, t := range q {
			err := t.fn(t.ctx)
			if t.done != nil {
				t.done <- err
			}
			n++
		}
	}
}

// PumpUntil runs fn on a new goroutine and pumps a until fn returns. If ctx
// ends first PumpUntil returns ctx.Err() and fn keeps running.
func (a *Apartment) PumpUntil(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	for {
		select {
		case <-a.wake:
			a.Pump()
		case err := <-done:
			a.Pump()
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Local returns the value stored under key, calling create on first use.
func (a *Apartment) Local(key any, create func() (com.Releaser, error)) (com.Releaser, error) {
	a.localsMu.Lock()
	defer a.localsMu.Unlock()

	if a.locals == nil {
		return nil, errors.New(methodApartmentLocal, hresult.CO_E_NOTINITIALIZED).
			Detail("apartment is closed").
			Build()
	}
	if v, ok := a.locals[key]; ok {
		return v, nil
	}

	v, err := create()
	if err != nil {
		return nil, err
	}
	a.locals[key] = v
	a.localOrder = append(a.localOrder, key)
	return v, nil
}

func (a *Apartment) close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	q := a.queue
	a.queue = nil
	a.mu.Unlock()

	for _, t := range q {
		if t.done == nil {
			t.fn(t.ctx)
			continue
		}
		t.done <- errors.Unchecked(methodCall, hresult.RPC_E_DISCONNECTED)
	}

	a.localsMu.Lock()
	locals, order := a.locals, a.localOrder
	a.locals, a.localOrder = nil, nil
	a.localsMu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		locals[order[i]].Release()
	}

	a.rt.log.Debug("apartment closed",
		zap.Uint64("apartment", a.id),
		zap.Stringer("kind", a.kind),
		zap.Int("queued", len(q)))
	a.rt.emit(Event{Type: EventApartmentExit, Apartment: a.id, Kind: a.kind})
}

// MTAUsage keeps the multi-threaded apartment alive without binding any
// context to it.
type MTAUsage struct {
	a    *Apartment
	once sync.Once
}

// IncrementMTAUsage creates the runtime's MTA if needed and keeps it alive
// until Close.
func IncrementMTAUsage(rt *Runtime) (*MTAUsage, error) {
	a, err := rt.acquireMTA(MultiThreaded)
	if err != nil {
		return nil, errors.New(methodCoIncrementMTAUsage, errors.Code(err)).Cause(err).Build()
	}
	return &MTAUsage{a: a}, nil
}

// Apartment returns the kept-alive MTA.
func (u *MTAUsage) Apartment() *Apartment { return u.a }

// Close drops the usage. Further calls are no-ops.
func (u *MTAUsage) Close() error {
	u.once.Do(func() {
		u.a.rt.release(u.a)
	})
	return nil
}
