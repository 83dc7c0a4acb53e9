package com

import "unsafe"

// Interface is implemented, with a value receiver, by every interface struct.
// The zero value must answer, so generic code can ask a type for its IID.
type Interface interface {
	InterfaceID() IID
}

// Derived is satisfied by pointers to interface structs that embed a parent
// interface struct as their first field.
type Derived[B Interface, I any] interface {
	*I
	Parent() *B
}

// AsRoot views p as the root interface without touching its reference count.
//
// The layout contract is assumed, not checked: I must begin with the vtable
// pointer whose first slots are UnknownVtbl. An interface struct declared as
// `struct{ Unknown }` or `struct{ Parent }` (recursively) satisfies it. A type
// that does not is undefined behavior, the same hazard as a provider that
// hands out a mislaid vtable.
func AsRoot[I any](p *I) *Unknown {
	return TrustedCast[Unknown](unsafe.Pointer(p))
}

// AsRootPtr returns the raw root pointer for p.
func AsRootPtr[I any](p *I) unsafe.Pointer {
	return unsafe.Pointer(AsRoot(p))
}

// interfaceID returns the IID a type declares.
func interfaceID[I Interface]() IID {
	var zero I
	return zero.InterfaceID()
}

// TrustedCast is the single place raw pointers are reinterpreted as
// interface structs, vtables or object headers. Callers vouch that p points
// at memory laid out as T; nothing is checked, and a wrong T is undefined
// behavior.
func TrustedCast[T any](p unsafe.Pointer) *T {
	return (*T)(p)
}

// FromRoot views a root pointer as the interface struct T. T must begin with
// the vtable pointer, as AsRoot requires, and the object must implement T.
func FromRoot[T any](u *Unknown) *T {
	return TrustedCast[T](unsafe.Pointer(u))
}

// VtblOf returns u's vtable viewed as V. V must embed UnknownVtbl as its
// first field and match the table the object installed.
func VtblOf[V any](u *Unknown) *V {
	return TrustedCast[V](unsafe.Pointer(u.Vtbl))
}
