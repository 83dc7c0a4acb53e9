package com

import (
	"unsafe"

	"github.com/wippyai/mcom/hresult"
)

// Unknown is the root interface. Every interface struct starts with the same
// single field: a pointer to its vtable, whose first three slots are the
// UnknownVtbl entries.
type Unknown struct {
	Vtbl *UnknownVtbl
}

// UnknownVtbl holds the root capability's slots. Derived vtables embed it as
// their first field.
type UnknownVtbl struct {
	QueryInterface func(this *Unknown, iid *IID, out *unsafe.Pointer) hresult.HRESULT
	AddRef         func(this *Unknown) uint32
	Release        func(this *Unknown) uint32
}

// InterfaceID implements Interface.
func (Unknown) InterfaceID() IID { return IID_IUnknown }

// QueryInterface asks the object for iid. On success *out holds a new
// reference.
func (u *Unknown) QueryInterface(iid *IID, out *unsafe.Pointer) hresult.HRESULT {
	return u.Vtbl.QueryInterface(u, iid, out)
}

// AddRef increments the reference count and returns the new count, which is
// informational only.
func (u *Unknown) AddRef() uint32 {
	return u.Vtbl.AddRef(u)
}

// Release decrements the reference count. The object may be destroyed when
// it reaches zero.
func (u *Unknown) Release() uint32 {
	return u.Vtbl.Release(u)
}

// Supports reports whether the object answers QueryInterface for iid. The
// reference gained by a successful query is released again.
func (u *Unknown) Supports(iid IID) bool {
	var out unsafe.Pointer
	if hresult.Failed(u.QueryInterface(&iid, &out)) || out == nil {
		return false
	}
	TrustedCast[Unknown](out).Release()
	return true
}
