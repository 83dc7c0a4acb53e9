package apartment

import (
	"context"
	"sync/atomic"
	"unsafe"

	"github.com/wippyai/mcom/com"
	"github.com/wippyai/mcom/hresult"
)

// ProxyFactory builds a proxy for a stub's interface, to be used from a
// foreign apartment. The proxy must forward calls through Stub.Invoke.
//
// The factory owns one stub reference. It releases it when the proxy is
// destroyed, or before returning a failure.
type ProxyFactory func(stub *Stub) (*com.Unknown, hresult.HRESULT)

// Stub holds one interface of an object on behalf of other apartments. It
// is created in the object's home apartment when the object is registered
// in a table or wrapped in an agile reference.
type Stub struct {
	rt        *Runtime
	home      *Apartment
	target    *com.Unknown
	iid       com.IID
	agile     bool
	noMarshal bool
	refs      atomic.Int32
}

// newStub queries unk for iid from within home. The stub owns the queried
// reference.
func (rt *Runtime) newStub(home *Apartment, unk *com.Unknown, iid com.IID) (*Stub, hresult.HRESULT) {
	var out unsafe.Pointer
	if hr := unk.QueryInterface(&iid, &out); hresult.Failed(hr) {
		return nil, hr
	}
	if out == nil {
		return nil, hresult.E_POINTER
	}

	s := &Stub{
		rt:        rt,
		home:      home,
		target:    com.TrustedCast[com.Unknown](out),
		iid:       iid,
		agile:     unk.Supports(com.IID_IAgileObject),
		noMarshal: unk.Supports(com.IID_INoMarshal),
	}
	s.refs.Store(1)
	return s, hresult.S_OK
}

// Home returns the apartment the object lives in.
func (s *Stub) Home() *Apartment { return s.home }

// IID returns the interface the stub holds.
func (s *Stub) IID() com.IID { return s.iid }

// AddRef adds a stub reference.
func (s *Stub) AddRef() { s.refs.Add(1) }

// Release drops a stub reference. The last one releases the object inside
// its home apartment.
func (s *Stub) Release() {
	if s.refs.Add(-1) != 0 {
		return
	}
	target := s.target
	if s.agile {
		target.Release()
		return
	}
	s.home.post(func(context.Context) {
		target.Release()
	})
}

// Invoke runs fn inside the home apartment with the held interface.
func (s *Stub) Invoke(ctx context.Context, fn func(ctx context.Context, target *com.Unknown) error) error {
	return s.home.Call(ctx, func(ctx context.Context) error {
		return fn(ctx, s.target)
	})
}

// marshalable reports whether the interface can reach a foreign apartment.
func (s *Stub) marshalable() hresult.HRESULT {
	switch {
	case s.agile:
		return hresult.S_OK
	case s.noMarshal:
		return hresult.CO_E_NOT_SUPPORTED
	case s.rt.marshaler(s.iid) == nil:
		return hresult.REGDB_E_IIDNOTREG
	}
	return hresult.S_OK
}

// unmarshal returns an iid pointer usable in the apartment bound to ctx:
// the object itself for its own apartment or when it is agile, otherwise a
// proxy.
func (s *Stub) unmarshal(ctx context.Context, iid *com.IID) (unsafe.Pointer, hresult.HRESULT) {
	caller, hr := s.rt.apartmentOf(ctx)
	if hresult.Failed(hr) {
		return nil, hr
	}
	if iid == nil {
		return nil, hresult.E_INVALIDARG
	}

	if s.agile || caller == s.home {
		var out unsafe.Pointer
		hr := s.target.QueryInterface(iid, &out)
		return out, hr
	}

	if s.home.Closed() {
		return nil, hresult.RPC_E_DISCONNECTED
	}
	if hr := s.marshalable(); hresult.Failed(hr) {
		return nil, hr
	}
	if *iid != s.iid {
		return nil, hresult.E_NOINTERFACE
	}

	factory := s.rt.marshaler(s.iid)
	s.AddRef()
	proxy, hr := factory(s)
	if hresult.Failed(hr) {
		return nil, hr
	}

	var out unsafe.Pointer
	hr = proxy.QueryInterface(iid, &out)
	proxy.Release()
	return out, hr
}
