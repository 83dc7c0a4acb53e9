package object

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/wippyai/mcom/com"
	"github.com/wippyai/mcom/hresult"
)

// Object is a Go-implemented capability object. Every interface it
// implements is an Iface entry; all entries share one reference count.
type Object struct {
	impl      any
	ifaces    map[com.IID]*Iface
	root      *Iface
	refs      atomic.Int32
	onDestroy []func()
	destroy   sync.Once
}

// Iface is one interface entry of an Object. Its first field is the vtable
// pointer, so a *Iface is a valid interface pointer.
type Iface struct {
	com.Unknown
	obj *Object
}

var unknownVtbl = UnknownVtbl()

// UnknownVtbl returns the root slots shared by every Object interface.
// Derived vtables embed the result as their first field.
func UnknownVtbl() com.UnknownVtbl {
	return com.UnknownVtbl{
		QueryInterface: queryInterface,
		AddRef:         addRef,
		Release:        release,
	}
}

func ifaceOf(this *com.Unknown) *Iface {
	return com.FromRoot[Iface](this)
}

func queryInterface(this *com.Unknown, iid *com.IID, out *unsafe.Pointer) hresult.HRESULT {
	if out == nil {
		return hresult.E_POINTER
	}
	*out = nil
	if iid == nil {
		return hresult.E_INVALIDARG
	}
	o := ifaceOf(this).obj
	e, ok := o.ifaces[*iid]
	if !ok {
		return hresult.E_NOINTERFACE
	}
	o.refs.Add(1)
	*out = unsafe.Pointer(e)
	return hresult.S_OK
}

func addRef(this *com.Unknown) uint32 {
	return uint32(ifaceOf(this).obj.refs.Add(1))
}

func release(this *com.Unknown) uint32 {
	o := ifaceOf(this).obj
	n := o.refs.Add(-1)
	switch {
	case n == 0:
		o.destroy.Do(func() {
			for i := len(o.onDestroy) - 1; i >= 0; i-- {
				o.onDestroy[i]()
			}
		})
	case n < 0:
		panic(fmt.Sprintf("object: Release on destroyed %T", o.impl))
	}
	return uint32(n)
}

// Of returns the Object behind an interface pointer produced by this
// package.
func Of(this *com.Unknown) *Object {
	return ifaceOf(this).obj
}

// Impl returns the Go implementation behind this, asserted to T.
func Impl[T any](this *com.Unknown) T {
	return Of(this).impl.(T)
}

// RefCount returns the current reference count of the object behind this.
func RefCount(this *com.Unknown) int32 {
	return Of(this).refs.Load()
}

// Impl returns the Go implementation value.
func (o *Object) Impl() any { return o.impl }

// RefCount returns the current reference count.
func (o *Object) RefCount() int32 { return o.refs.Load() }

// Root returns the identity interface without adding a reference.
func (o *Object) Root() *com.Unknown { return &o.root.Unknown }

// Implements reports whether the object answers QueryInterface for iid.
func (o *Object) Implements(iid com.IID) bool {
	_, ok := o.ifaces[iid]
	return ok
}
