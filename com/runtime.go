package com

import (
	"context"
	"unsafe"

	"github.com/wippyai/mcom/hresult"
)

// ClsCtx selects the server context for object creation.
type ClsCtx uint32

const (
	ClsCtxInprocServer  ClsCtx = 0x1
	ClsCtxInprocHandler ClsCtx = 0x2
	ClsCtxLocalServer   ClsCtx = 0x4
	ClsCtxAll           ClsCtx = ClsCtxInprocServer | ClsCtxInprocHandler | ClsCtxLocalServer
)

// MultiQI is one entry of a batched creation request. The runtime fills in
// Itf and HR for each entry.
type MultiQI struct {
	IID *IID
	Itf unsafe.Pointer
	HR  hresult.HRESULT
}

// Releaser is anything holding a resource that must be given back.
type Releaser interface {
	Release()
}

// Runtime is the host object model: creation, agile references and
// apartment-scoped storage. Calls that depend on the caller's apartment
// take the caller's context, which identifies the apartment.
type Runtime interface {
	// CreateInstance creates an object of class clsid and returns its iid
	// interface with one reference.
	CreateInstance(ctx context.Context, clsid *CLSID, outer *Unknown, clsctx ClsCtx, iid *IID) (unsafe.Pointer, hresult.HRESULT)

	// CreateInstanceFromApp creates an object and queries every entry of
	// results. count must equal len(results).
	CreateInstanceFromApp(ctx context.Context, clsid *CLSID, outer *Unknown, clsctx ClsCtx, reserved unsafe.Pointer, count uint32, results []MultiQI) hresult.HRESULT

	// GetAgileReference mints an IAgileReference token for unk's iid
	// interface.
	GetAgileReference(ctx context.Context, options ReferenceOptions, iid *IID, unk *Unknown) (unsafe.Pointer, hresult.HRESULT)

	// ApartmentLocal returns the value stored under key in the caller's
	// apartment, calling create on first use. Values are released when the
	// apartment is uninitialized.
	ApartmentLocal(ctx context.Context, key any, create func() (Releaser, error)) (Releaser, error)

	// ProcessLocal is ApartmentLocal for runtime-wide values. They are
	// released when the runtime shuts down.
	ProcessLocal(ctx context.Context, key any, create func() (Releaser, error)) (Releaser, error)
}

type runtimeKey struct{}

// WithRuntime returns a context carrying rt.
func WithRuntime(ctx context.Context, rt Runtime) context.Context {
	return context.WithValue(ctx, runtimeKey{}, rt)
}

// RuntimeFrom returns the runtime carried by ctx.
func RuntimeFrom(ctx context.Context) (Runtime, bool) {
	rt, ok := ctx.Value(runtimeKey{}).(Runtime)
	return rt, ok && rt != nil
}
