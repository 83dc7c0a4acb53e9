package apartment

import (
	"context"
	"unsafe"

	"github.com/wippyai/mcom/com"
	"github.com/wippyai/mcom/hresult"
	"github.com/wippyai/mcom/object"
)

type agileRef struct {
	rt      *Runtime
	stub    *Stub
	options com.ReferenceOptions
}

var agileRefVtbl = com.AgileReferenceVtbl{
	UnknownVtbl: object.UnknownVtbl(),
	Resolve:     agileResolve,
}

// GetAgileReference implements com.Runtime.
//
// ReferenceDefault refuses objects that cannot reach other apartments:
// CO_E_NOT_SUPPORTED for INoMarshal objects, REGDB_E_IIDNOTREG when no
// marshaler exists for iid. ReferenceDelayedMarshal accepts them and fails
// at resolve time instead.
func (rt *Runtime) GetAgileReference(ctx context.Context, options com.ReferenceOptions, iid *com.IID, unk *com.Unknown) (unsafe.Pointer, hresult.HRESULT) {
	a, hr := rt.apartmentOf(ctx)
	if hresult.Failed(hr) {
		return nil, hr
	}
	if iid == nil || unk == nil || options > com.ReferenceDelayedMarshal {
		return nil, hresult.E_INVALIDARG
	}

	stub, hr := rt.newStub(a, unk, *iid)
	if hresult.Succeeded(hr) && options == com.ReferenceDefault {
		if hr = stub.marshalable(); hresult.Failed(hr) {
			stub.Release()
		}
	}
	rt.emit(Event{Type: EventMint, Apartment: a.id, Kind: a.kind, IID: *iid, Options: options, Status: hr})
	if hresult.Failed(hr) {
		return nil, hr
	}

	ref := &agileRef{rt: rt, stub: stub, options: options}
	root := object.New(ref).
		Implement(com.IID_IAgileReference, &agileRefVtbl.UnknownVtbl).
		Agile().
		OnDestroy(stub.Release).
		Build()

	var out unsafe.Pointer
	hr = root.QueryInterface(&com.IID_IAgileReference, &out)
	root.Release()
	return out, hr
}

func agileResolve(this *com.Unknown, ctx context.Context, iid *com.IID, out *unsafe.Pointer) hresult.HRESULT {
	r := object.Impl[*agileRef](this)
	if out == nil {
		return hresult.E_POINTER
	}

	var hr hresult.HRESULT
	*out, hr = r.stub.unmarshal(ctx, iid)
	if hr == hresult.REGDB_E_IIDNOTREG && r.options == com.ReferenceDelayedMarshal {
		// Nothing can carry the object here; report the apartment mismatch.
		hr = hresult.RPC_E_WRONG_THREAD
	}

	e := Event{Type: EventResolve, Status: hr, Options: r.options}
	if a := FromContext(ctx); a != nil {
		e.Apartment, e.Kind = a.id, a.kind
	}
	if iid != nil {
		e.IID = *iid
	}
	r.rt.emit(e)
	return hr
}
