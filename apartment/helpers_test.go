package apartment

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/wippyai/mcom/com"
	"github.com/wippyai/mcom/errors"
	"github.com/wippyai/mcom/hresult"
	"github.com/wippyai/mcom/object"
)

var (
	iidCounter         = com.MustParseGUID("{8D2C4E61-1A3B-4C5D-9E7F-0A1B2C3D4E01}")
	clsidCounter       = com.MustParseGUID("{8D2C4E61-1A3B-4C5D-9E7F-0A1B2C3D4EC1}")
	clsidAgileCounter  = com.MustParseGUID("{8D2C4E61-1A3B-4C5D-9E7F-0A1B2C3D4EC2}")
	clsidSealedCounter = com.MustParseGUID("{8D2C4E61-1A3B-4C5D-9E7F-0A1B2C3D4EC3}")
	clsidFreeCounter   = com.MustParseGUID("{8D2C4E61-1A3B-4C5D-9E7F-0A1B2C3D4EC4}")
)

type ICounter struct {
	com.Unknown
}

func (ICounter) InterfaceID() com.IID { return iidCounter }

func (c *ICounter) Parent() *com.Unknown { return &c.Unknown }

type counterVtbl struct {
	com.UnknownVtbl
	Add func(this *com.Unknown, ctx context.Context, n int32) (int32, hresult.HRESULT)
}

func (c *ICounter) Add(ctx context.Context, n int32) (int32, hresult.HRESULT) {
	vtbl := com.VtblOf[counterVtbl](&c.Unknown)
	return vtbl.Add(&c.Unknown, ctx, n)
}

type counter struct {
	n         int32
	ran       *Apartment
	destroyed bool
}

var counterImplVtbl = counterVtbl{
	UnknownVtbl: object.UnknownVtbl(),
	Add: func(this *com.Unknown, ctx context.Context, n int32) (int32, hresult.HRESULT) {
		c := object.Impl[*counter](this)
		c.n += n
		c.ran = FromContext(ctx)
		return c.n, hresult.S_OK
	},
}

func newCounter(c *counter, mark func(*object.Builder) *object.Builder) *com.Unknown {
	b := object.New(c).
		Implement(iidCounter, &counterImplVtbl.UnknownVtbl).
		OnDestroy(func() { c.destroyed = true })
	if mark != nil {
		b = mark(b)
	}
	return b.Build()
}

type counterProxy struct {
	stub *Stub
}

var counterProxyVtbl = counterVtbl{
	UnknownVtbl: object.UnknownVtbl(),
	Add: func(this *com.Unknown, ctx context.Context, n int32) (int32, hresult.HRESULT) {
		p := object.Impl[*counterProxy](this)
		var (
			out int32
			hr  hresult.HRESULT
		)
		err := p.stub.Invoke(ctx, func(ctx context.Context, target *com.Unknown) error {
			out, hr = com.FromRoot[ICounter](target).Add(ctx, n)
			return nil
		})
		if err != nil {
			return 0, errors.Code(err)
		}
		return out, hr
	},
}

func newCounterProxy(stub *Stub) (*com.Unknown, hresult.HRESULT) {
	return object.New(&counterProxy{stub: stub}).
		Implement(iidCounter, &counterProxyVtbl.UnknownVtbl).
		OnDestroy(stub.Release).
		Build(), hresult.S_OK
}

// fixture is a runtime with the counter classes registered. The last
// created counter of each class is kept for inspection.
type fixture struct {
	rt   *Runtime
	last map[com.CLSID]*counter
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	f := &fixture{rt: New(opts...), last: make(map[com.CLSID]*counter)}
	t.Cleanup(func() { f.rt.Close() })

	classes := []struct {
		clsid com.CLSID
		model ThreadingModel
		mark  func(*object.Builder) *object.Builder
	}{
		{clsidCounter, ThreadingApartment, nil},
		{clsidAgileCounter, ThreadingBoth, (*object.Builder).Agile},
		{clsidSealedCounter, ThreadingApartment, (*object.Builder).NoMarshal},
		{clsidFreeCounter, ThreadingFree, (*object.Builder).Agile},
	}
	for _, c := range classes {
		err := f.rt.RegisterClass(c.clsid, c.model, func(ctx context.Context) (*com.Unknown, hresult.HRESULT) {
			impl := &counter{}
			f.last[c.clsid] = impl
			return newCounter(impl, c.mark), hresult.S_OK
		})
		if err != nil {
			t.Fatalf("RegisterClass(%s): %v", c.clsid, err)
		}
	}
	return f
}

func enterSTA(t *testing.T, rt *Runtime) context.Context {
	t.Helper()
	ctx, first, err := EnterSTA(context.Background(), rt)
	if err != nil || !first {
		t.Fatalf("STA: first=%v err=%v", first, err)
	}
	t.Cleanup(func() { Uninitialize(ctx) })
	return ctx
}

func enterMTA(t *testing.T, rt *Runtime) context.Context {
	t.Helper()
	ctx, _, err := EnterMTA(context.Background(), rt)
	if err != nil {
		t.Fatalf("MTA: %v", err)
	}
	t.Cleanup(func() { Uninitialize(ctx) })
	return ctx
}

func createCounter(t *testing.T, ctx context.Context, clsid com.CLSID) *com.Rc[ICounter] {
	t.Helper()
	c, err := com.CoCreate[ICounter](ctx, &clsid, nil)
	if err != nil {
		t.Fatalf("CoCreate(%s): %v", clsid, err)
	}
	return c
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) OnRuntimeEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) count(typ EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}
