package apartment

import (
	"context"
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/mcom/com"
	"github.com/wippyai/mcom/hresult"
	"github.com/wippyai/mcom/object"
	"github.com/wippyai/mcom/resource"
)

// gitTable backs both table classes. A standard table belongs to the
// apartment that created it; a process table has no owner. All tables of a
// runtime share one cookie space so cookies never collide across tables.
type gitTable struct {
	rt    *Runtime
	owner *Apartment
}

type registration struct {
	table *gitTable
	stub  *Stub
}

// Drop implements resource.Dropper.
func (r *registration) Drop() {
	r.stub.Release()
}

var gitTableVtbl = com.GlobalInterfaceTableVtbl{
	UnknownVtbl:               object.UnknownVtbl(),
	RegisterInterfaceInGlobal: gitRegister,
	RevokeInterfaceFromGlobal: gitRevoke,
	GetInterfaceFromGlobal:    gitGet,
}

func (rt *Runtime) newStdTable(ctx context.Context) (*com.Unknown, hresult.HRESULT) {
	owner, hr := rt.apartmentOf(ctx)
	if hresult.Failed(hr) {
		return nil, hr
	}
	return rt.newTable(&gitTable{rt: rt, owner: owner}), hresult.S_OK
}

func (rt *Runtime) newProcessTable(context.Context) (*com.Unknown, hresult.HRESULT) {
	return rt.newTable(&gitTable{rt: rt}), hresult.S_OK
}

func (rt *Runtime) newTable(t *gitTable) *com.Unknown {
	return object.New(t).
		Implement(com.IID_IGlobalInterfaceTable, &gitTableVtbl.UnknownVtbl).
		Agile().
		OnDestroy(t.revokeAll).
		Build()
}

// revokeAll drops registrations left behind when the table is destroyed.
func (t *gitTable) revokeAll() {
	var cookies []resource.Cookie
	t.rt.cookies.Each(func(c resource.Cookie, r *registration) bool {
		if r.table == t {
			cookies = append(cookies, c)
		}
		return true
	})
	for _, c := range cookies {
		t.rt.cookies.Remove(c)
	}
}

func (t *gitTable) ownerID() uint64 {
	if t.owner == nil {
		return 0
	}
	return t.owner.id
}

func gitRegister(this *com.Unknown, ctx context.Context, unk *com.Unknown, iid *com.IID, cookie *uint32) hresult.HRESULT {
	t := object.Impl[*gitTable](this)
	if cookie == nil || unk == nil || iid == nil {
		return hresult.E_INVALIDARG
	}
	*cookie = 0

	a, hr := t.rt.apartmentOf(ctx)
	if hresult.Failed(hr) {
		return hr
	}
	if t.owner != nil && a != t.owner {
		return hresult.RPC_E_WRONG_THREAD
	}

	stub, hr := t.rt.newStub(a, unk, *iid)
	if hresult.Failed(hr) {
		t.rt.emit(Event{Type: EventRegister, Apartment: a.id, Kind: a.kind, IID: *iid, Status: hr})
		return hr
	}

	c, err := t.rt.cookies.Insert(&registration{table: t, stub: stub})
	if err != nil {
		stub.Release()
		t.rt.log.Warn("cookie table refused registration", zap.Error(err))
		return hresult.E_OUTOFMEMORY
	}
	*cookie = uint32(c)

	t.rt.emit(Event{Type: EventRegister, Apartment: a.id, Kind: a.kind, IID: *iid, Cookie: *cookie, Table: t.ownerID()})
	return hresult.S_OK
}

func gitRevoke(this *com.Unknown, cookie uint32) hresult.HRESULT {
	t := object.Impl[*gitTable](this)
	c := resource.Cookie(cookie)

	reg, ok := t.rt.cookies.Get(c)
	if !ok || reg.table != t {
		if t.rt.isClosed() {
			// Shutdown already dropped every registration.
			return hresult.S_OK
		}
		return hresult.E_INVALIDARG
	}
	if _, ok := t.rt.cookies.Remove(c); !ok {
		return hresult.E_INVALIDARG
	}

	t.rt.emit(Event{Type: EventRevoke, Apartment: reg.stub.home.id, IID: reg.stub.iid, Cookie: cookie, Table: t.ownerID()})
	return hresult.S_OK
}

func gitGet(this *com.Unknown, ctx context.Context, cookie uint32, iid *com.IID, out *unsafe.Pointer) hresult.HRESULT {
	t := object.Impl[*gitTable](this)
	if out == nil {
		return hresult.E_POINTER
	}
	*out = nil

	a, hr := t.rt.apartmentOf(ctx)
	if hresult.Failed(hr) {
		return hr
	}

	reg, ok := t.rt.cookies.Get(resource.Cookie(cookie))
	if !ok || reg.table != t || (t.owner != nil && a != t.owner) {
		hr = hresult.E_INVALIDARG
	} else {
		*out, hr = reg.stub.unmarshal(ctx, iid)
	}

	e := Event{Type: EventResolve, Apartment: a.id, Kind: a.kind, Cookie: cookie, Table: t.ownerID(), Status: hr}
	if iid != nil {
		e.IID = *iid
	}
	t.rt.emit(e)
	return hr
}
