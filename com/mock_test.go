package com

import (
	"context"
	"sync/atomic"
	"unsafe"

	"github.com/wippyai/mcom/hresult"
)

// IWidget and IGadget are test interfaces. IGadget derives from IWidget.
type IWidget struct {
	Unknown
}

func (IWidget) InterfaceID() IID { return iidWidget }

func (w *IWidget) Parent() *Unknown { return &w.Unknown }

type IGadget struct {
	IWidget
}

func (IGadget) InterfaceID() IID { return iidGadget }

func (g *IGadget) Parent() *IWidget { return &g.IWidget }

// misplaced claims Unknown as its parent but does not start with it.
type misplaced struct {
	pad uintptr
	Unknown
}

func (misplaced) InterfaceID() IID { return iidWidget }

func (m *misplaced) Parent() *Unknown { return &m.Unknown }

var (
	iidWidget = MustParseGUID("{5B7E3A10-0C2D-4E6F-8A91-B2C3D4E5F601}")
	iidGadget = MustParseGUID("{5B7E3A10-0C2D-4E6F-8A91-B2C3D4E5F602}")
)

// mockObject counts every root call. It answers QueryInterface for its iids
// with its own pointer; all test interfaces share the root layout.
type mockObject struct {
	Unknown
	refs      atomic.Int32
	addRefs   atomic.Int32
	releases  atomic.Int32
	destroyed atomic.Int32
	iids      map[IID]bool
	qiStatus  hresult.HRESULT
}

var mockVtbl = UnknownVtbl{
	QueryInterface: func(this *Unknown, iid *IID, out *unsafe.Pointer) hresult.HRESULT {
		m := mockOf(this)
		if !m.iids[*iid] {
			*out = nil
			return m.qiStatus
		}
		m.Vtbl.AddRef(this)
		*out = unsafe.Pointer(this)
		return hresult.S_OK
	},
	AddRef: func(this *Unknown) uint32 {
		m := mockOf(this)
		m.addRefs.Add(1)
		return uint32(m.refs.Add(1))
	},
	Release: func(this *Unknown) uint32 {
		m := mockOf(this)
		m.releases.Add(1)
		n := m.refs.Add(-1)
		if n == 0 {
			m.destroyed.Add(1)
		}
		return uint32(n)
	},
}

func newMock(iids ...IID) *mockObject {
	m := &mockObject{
		iids:     map[IID]bool{IID_IUnknown: true},
		qiStatus: hresult.E_NOINTERFACE,
	}
	for _, iid := range iids {
		m.iids[iid] = true
	}
	m.Vtbl = &mockVtbl
	m.refs.Store(1)
	return m
}

func mockOf(this *Unknown) *mockObject {
	return FromRoot[mockObject](this)
}

// fakeTable is a global interface table that records revocations.
type fakeTable struct {
	GlobalInterfaceTable
	refs      atomic.Int32
	next      uint32
	fixed     bool
	revokeHR  hresult.HRESULT
	revoked   []uint32
	entries   map[uint32]*Unknown
	destroyed bool
}

var fakeTableVtbl = GlobalInterfaceTableVtbl{
	UnknownVtbl: UnknownVtbl{
		QueryInterface: func(this *Unknown, iid *IID, out *unsafe.Pointer) hresult.HRESULT {
			if *iid != IID_IUnknown && *iid != IID_IGlobalInterfaceTable {
				*out = nil
				return hresult.E_NOINTERFACE
			}
			this.AddRef()
			*out = unsafe.Pointer(this)
			return hresult.S_OK
		},
		AddRef: func(this *Unknown) uint32 {
			return uint32(tableOf(this).refs.Add(1))
		},
		Release: func(this *Unknown) uint32 {
			t := tableOf(this)
			n := t.refs.Add(-1)
			if n == 0 {
				t.destroyed = true
			}
			return uint32(n)
		},
	},
	RegisterInterfaceInGlobal: func(this *Unknown, _ context.Context, unk *Unknown, _ *IID, cookie *uint32) hresult.HRESULT {
		t := tableOf(this)
		c := t.next
		if !t.fixed {
			t.next++
		}
		unk.AddRef()
		t.entries[c] = unk
		*cookie = c
		return hresult.S_OK
	},
	RevokeInterfaceFromGlobal: func(this *Unknown, cookie uint32) hresult.HRESULT {
		t := tableOf(this)
		t.revoked = append(t.revoked, cookie)
		if t.revokeHR != hresult.S_OK {
			return t.revokeHR
		}
		unk, ok := t.entries[cookie]
		if !ok {
			return hresult.E_INVALIDARG
		}
		delete(t.entries, cookie)
		unk.Release()
		return hresult.S_OK
	},
	GetInterfaceFromGlobal: func(this *Unknown, _ context.Context, cookie uint32, iid *IID, out *unsafe.Pointer) hresult.HRESULT {
		unk, ok := tableOf(this).entries[cookie]
		if !ok {
			*out = nil
			return hresult.E_INVALIDARG
		}
		return unk.QueryInterface(iid, out)
	},
}

func newFakeTable(firstCookie uint32) *fakeTable {
	t := &fakeTable{next: firstCookie, entries: make(map[uint32]*Unknown)}
	t.Vtbl = &fakeTableVtbl.UnknownVtbl
	t.refs.Store(1)
	return t
}

func tableOf(this *Unknown) *fakeTable {
	return FromRoot[fakeTable](this)
}

// fakeAgileRef is an agile reference token that holds its target and
// counts its own releases.
type fakeAgileRef struct {
	AgileReference
	refs     atomic.Int32
	releases atomic.Int32
	resolves atomic.Int32
	target   *Unknown
	options  ReferenceOptions
}

var fakeAgileVtbl = AgileReferenceVtbl{
	UnknownVtbl: UnknownVtbl{
		QueryInterface: func(this *Unknown, iid *IID, out *unsafe.Pointer) hresult.HRESULT {
			if *iid != IID_IUnknown && *iid != IID_IAgileReference {
				*out = nil
				return hresult.E_NOINTERFACE
			}
			this.AddRef()
			*out = unsafe.Pointer(this)
			return hresult.S_OK
		},
		AddRef: func(this *Unknown) uint32 {
			return uint32(FromRoot[fakeAgileRef](this).refs.Add(1))
		},
		Release: func(this *Unknown) uint32 {
			a := FromRoot[fakeAgileRef](this)
			a.releases.Add(1)
			n := a.refs.Add(-1)
			if n == 0 {
				a.target.Release()
			}
			return uint32(n)
		},
	},
	Resolve: func(this *Unknown, _ context.Context, iid *IID, out *unsafe.Pointer) hresult.HRESULT {
		a := FromRoot[fakeAgileRef](this)
		a.resolves.Add(1)
		return a.target.QueryInterface(iid, out)
	},
}

func newFakeAgileRef(target *Unknown, options ReferenceOptions) *fakeAgileRef {
	target.AddRef()
	a := &fakeAgileRef{target: target, options: options}
	a.Vtbl = &fakeAgileVtbl.UnknownVtbl
	a.refs.Store(1)
	return a
}

// fakeRuntime creates mocks and fake tables, and keeps a single local slot
// map for both scopes.
type fakeRuntime struct {
	object   *mockObject
	table    *fakeTable
	createHR hresult.HRESULT
	entryHR  hresult.HRESULT
	count    uint32
	clsctx   ClsCtx
	locals   map[any]Releaser
	agileHR  hresult.HRESULT
	agile    *fakeAgileRef
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{locals: make(map[any]Releaser)}
}

func (f *fakeRuntime) instance(clsid *CLSID) *Unknown {
	switch *clsid {
	case CLSID_StdGlobalInterfaceTable, CLSID_ProcessGlobalInterfaceTable:
		return &f.table.Unknown
	default:
		return &f.object.Unknown
	}
}

func (f *fakeRuntime) CreateInstance(_ context.Context, clsid *CLSID, _ *Unknown, clsctx ClsCtx, iid *IID) (unsafe.Pointer, hresult.HRESULT) {
	f.clsctx = clsctx
	if hresult.Failed(f.createHR) {
		return nil, f.createHR
	}
	var out unsafe.Pointer
	hr := f.instance(clsid).QueryInterface(iid, &out)
	return out, hr
}

func (f *fakeRuntime) CreateInstanceFromApp(_ context.Context, clsid *CLSID, _ *Unknown, clsctx ClsCtx, _ unsafe.Pointer, count uint32, results []MultiQI) hresult.HRESULT {
	f.clsctx = clsctx
	f.count = count
	if hresult.Failed(f.createHR) {
		return f.createHR
	}
	unk := f.instance(clsid)
	for i := range results {
		if f.entryHR != hresult.S_OK {
			results[i].HR = f.entryHR
			continue
		}
		results[i].HR = unk.QueryInterface(results[i].IID, &results[i].Itf)
	}
	return hresult.S_OK
}

func (f *fakeRuntime) GetAgileReference(_ context.Context, options ReferenceOptions, _ *IID, unk *Unknown) (unsafe.Pointer, hresult.HRESULT) {
	if hresult.Failed(f.agileHR) {
		return nil, f.agileHR
	}
	f.agile = newFakeAgileRef(unk, options)
	return unsafe.Pointer(&f.agile.Unknown), hresult.S_OK
}

func (f *fakeRuntime) ApartmentLocal(_ context.Context, key any, create func() (Releaser, error)) (Releaser, error) {
	if v, ok := f.locals[key]; ok {
		return v, nil
	}
	v, err := create()
	if err != nil {
		return nil, err
	}
	f.locals[key] = v
	return v, nil
}

func (f *fakeRuntime) ProcessLocal(ctx context.Context, key any, create func() (Releaser, error)) (Releaser, error) {
	return f.ApartmentLocal(ctx, key, create)
}

func (f *fakeRuntime) shutdown() {
	for k, v := range f.locals {
		v.Release()
		delete(f.locals, k)
	}
}
