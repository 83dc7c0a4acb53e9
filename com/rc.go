package com

import (
	"fmt"
	"unsafe"

	"github.com/wippyai/mcom/errors"
	"github.com/wippyai/mcom/hresult"
)

// noCopy lets go vet's copylocks check flag copied handles.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Rc owns exactly one reference to an object exposing I.
//
// An Rc belongs to the apartment that produced it and must not be handed to
// other goroutines unless the object is known to be agile. Use Git or Agile
// to share an object. Rc does not implement Shareable.
//
// A live Rc never holds nil. Release drops the reference and leaves the
// handle empty; further Release calls are no-ops.
type Rc[I Interface] struct {
	_   noCopy
	ptr *I
}

// FromRawOpt adopts p without incrementing its reference count. It reports
// false for nil.
func FromRawOpt[I Interface](p *I) (*Rc[I], bool) {
	if p == nil {
		return nil, false
	}
	return &Rc[I]{ptr: p}, true
}

// FromRaw adopts p without incrementing its reference count and panics if p
// is nil.
func FromRaw[I Interface](p *I) *Rc[I] {
	rc, ok := FromRawOpt(p)
	if !ok {
		panic(fmt.Sprintf("com: FromRaw called with nil %T", p))
	}
	return rc
}

// FromPointer adopts an out-parameter filled in by a protocol call.
func FromPointer[I Interface](p unsafe.Pointer) (*Rc[I], bool) {
	return FromRawOpt(TrustedCast[I](p))
}

// Get returns the interface pointer. The handle keeps ownership.
// It returns nil after Release, IntoRaw or Leak.
func (r *Rc[I]) Get() *I {
	return r.ptr
}

// AsPtr returns the interface pointer as an unsafe.Pointer.
func (r *Rc[I]) AsPtr() unsafe.Pointer {
	return unsafe.Pointer(r.ptr)
}

// AsRoot returns the root view of the held pointer.
func (r *Rc[I]) AsRoot() *Unknown {
	return AsRoot(r.mustGet())
}

// IID returns the interface identifier of I.
func (r *Rc[I]) IID() IID {
	return interfaceID[I]()
}

// Clone adds a reference and returns a second handle to the same object.
func (r *Rc[I]) Clone() *Rc[I] {
	p := r.mustGet()
	AsRoot(p).AddRef()
	return &Rc[I]{ptr: p}
}

// Release drops the owned reference. The Release slot is read from the
// object's own vtable at call time, so objects that override it are honored.
func (r *Rc[I]) Release() {
	if r == nil || r.ptr == nil {
		return
	}
	root := AsRoot(r.ptr)
	r.ptr = nil
	root.Vtbl.Release(root)
}

// IntoRaw gives up ownership without releasing. The caller becomes
// responsible for the reference, typically by passing it to an API that
// takes ownership; dropping the result leaks the object.
func (r *Rc[I]) IntoRaw() *I {
	p := r.mustGet()
	r.ptr = nil
	return p
}

// Leak gives up ownership for good. It suits process-lifetime singletons.
func (r *Rc[I]) Leak() *I {
	return r.IntoRaw()
}

func (r *Rc[I]) mustGet() *I {
	if r == nil || r.ptr == nil {
		var zero I
		panic(fmt.Sprintf("com: use of released Rc[%T]", zero))
	}
	return r.ptr
}

// QueryInterface asks the object behind r for J. The query adds the
// reference owned by the returned handle; r is unchanged.
func QueryInterface[J Interface, I Interface](r *Rc[I]) (*Rc[J], error) {
	iid := interfaceID[J]()
	var out unsafe.Pointer
	hr := r.AsRoot().QueryInterface(&iid, &out)
	if err := errors.Check("IUnknown::QueryInterface", hr); err != nil {
		return nil, err
	}
	rc, ok := FromPointer[J](out)
	if !ok {
		return nil, errors.Unchecked("IUnknown::QueryInterface", hresult.E_POINTER)
	}
	return rc, nil
}

// TryCast is QueryInterface without the status: any failure, not only
// E_NOINTERFACE, yields false. Out-of-memory and argument errors are
// swallowed too; callers that care must use QueryInterface.
func TryCast[J Interface, I Interface](r *Rc[I]) (*Rc[J], bool) {
	rc, err := QueryInterface[J](r)
	if err != nil {
		return nil, false
	}
	return rc, true
}

// Upcast converts r into a handle for the base interface B, consuming r.
// No reference count changes hands. It panics if the reinterpreted pointer
// differs from the one I's Parent method reports, which means the interface
// struct's declared parent disagrees with its layout.
func Upcast[B Interface, I Interface, PI Derived[B, I]](r *Rc[I]) *Rc[B] {
	p := r.mustGet()
	base := TrustedCast[B](unsafe.Pointer(p))
	if parent := PI(p).Parent(); parent != base {
		var b B
		var i I
		panic(fmt.Sprintf("com: %T does not begin with its parent %T (%p != %p)", i, b, parent, base))
	}
	r.ptr = nil
	return &Rc[B]{ptr: base}
}
