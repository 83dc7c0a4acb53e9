package com

import (
	"context"
	"fmt"
	"sync/atomic"
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/mcom/errors"
	"github.com/wippyai/mcom/hresult"
)

const (
	methodRoGetAgileReference = "RoGetAgileReference"
	methodAgileResolve        = "IAgileReference::Resolve"
)

// ReferenceOptions selects when an agile reference marshals its object.
type ReferenceOptions uint32

const (
	// ReferenceDefault marshals while minting. Objects that cannot be
	// marshaled fail at mint time.
	ReferenceDefault ReferenceOptions = 0

	// ReferenceDelayedMarshal defers marshaling until a foreign apartment
	// resolves the reference. Minting succeeds for most objects; resolving
	// from an apartment that cannot reach the object fails then.
	ReferenceDelayedMarshal ReferenceOptions = 1
)

func (o ReferenceOptions) String() string {
	switch o {
	case ReferenceDefault:
		return "AGILEREFERENCE_DEFAULT"
	case ReferenceDelayedMarshal:
		return "AGILEREFERENCE_DELAYEDMARSHAL"
	default:
		return fmt.Sprintf("ReferenceOptions(%d)", uint32(o))
	}
}

// AgileReference is a token that resolves to an apartment-correct pointer.
// Tokens are free-threaded.
type AgileReference struct {
	Unknown
}

// AgileReferenceVtbl is the IAgileReference vtable.
type AgileReferenceVtbl struct {
	UnknownVtbl
	Resolve func(this *Unknown, ctx context.Context, iid *IID, out *unsafe.Pointer) hresult.HRESULT
}

// InterfaceID implements Interface.
func (AgileReference) InterfaceID() IID { return IID_IAgileReference }

// Parent returns the embedded root interface.
func (a *AgileReference) Parent() *Unknown { return &a.Unknown }

// Resolve returns a new reference to iid valid in the apartment identified
// by ctx.
func (a *AgileReference) Resolve(ctx context.Context, iid *IID, out *unsafe.Pointer) hresult.HRESULT {
	vtbl := VtblOf[AgileReferenceVtbl](&a.Unknown)
	return vtbl.Resolve(&a.Unknown, ctx, iid, out)
}

type agileToken struct {
	ref     *Rc[AgileReference]
	options ReferenceOptions
	refs    atomic.Int64
}

// Agile shares an object through an agile reference token. Any apartment
// may resolve it; the runtime passes free-threaded objects through
// unwrapped and marshals the rest.
//
// Clones share one token. The last Release releases it.
type Agile[I Interface] struct {
	tok      *agileToken
	released atomic.Bool
}

// NewAgileEager mints a token with ReferenceDefault.
func NewAgileEager[I Interface](ctx context.Context, rc *Rc[I]) (*Agile[I], error) {
	return NewAgile(ctx, ReferenceDefault, rc)
}

// NewAgileLazy mints a token with ReferenceDelayedMarshal.
func NewAgileLazy[I Interface](ctx context.Context, rc *Rc[I]) (*Agile[I], error) {
	return NewAgile(ctx, ReferenceDelayedMarshal, rc)
}

// NewAgile mints a token for rc's I interface. rc keeps its own reference.
func NewAgile[I Interface](ctx context.Context, options ReferenceOptions, rc *Rc[I]) (*Agile[I], error) {
	rt, ok := RuntimeFrom(ctx)
	if !ok {
		return nil, errors.Unchecked(methodRoGetAgileReference, hresult.CO_E_NOTINITIALIZED)
	}

	iid := interfaceID[I]()
	p, hr := rt.GetAgileReference(ctx, options, &iid, rc.AsRoot())
	if err := errors.Check(methodRoGetAgileReference, hr); err != nil {
		Logger().Debug("agile reference refused",
			zap.Stringer("iid", iid),
			zap.Stringer("options", options),
			zap.Stringer("hr", hr))
		return nil, err
	}

	ref, ok := FromPointer[AgileReference](p)
	if !ok {
		return nil, errors.Unchecked(methodRoGetAgileReference, hresult.E_POINTER)
	}

	tok := &agileToken{ref: ref, options: options}
	tok.refs.Store(1)
	return &Agile[I]{tok: tok}, nil
}

func (*Agile[I]) shareable() {}

// Options returns the policy the token was minted with.
func (a *Agile[I]) Options() ReferenceOptions {
	return a.tok.options
}

// Resolve returns a new reference valid in the caller's apartment.
func (a *Agile[I]) Resolve(ctx context.Context) (*Rc[I], error) {
	if a.released.Load() {
		return nil, errors.New(methodAgileResolve, hresult.E_POINTER).
			Detail("handle already released").
			Build()
	}

	iid := interfaceID[I]()
	var out unsafe.Pointer
	hr := a.tok.ref.Get().Resolve(ctx, &iid, &out)
	if err := errors.Check(methodAgileResolve, hr); err != nil {
		return nil, err
	}

	rc, ok := FromPointer[I](out)
	if !ok {
		return nil, errors.Unchecked(methodAgileResolve, hresult.E_POINTER)
	}
	return rc, nil
}

// Clone returns another holder of the same token. Like Git.Clone it panics
// once the token has been released.
func (a *Agile[I]) Clone() *Agile[I] {
	if a.released.Load() || !retain(&a.tok.refs) {
		panic("com: Clone of released Agile")
	}
	return &Agile[I]{tok: a.tok}
}

// Release drops this holder. Releasing a holder twice is a no-op. The last
// holder releases the token.
func (a *Agile[I]) Release() {
	if a == nil || !a.released.CompareAndSwap(false, true) {
		return
	}
	if a.tok.refs.Add(-1) != 0 {
		return
	}
	a.tok.ref.Release()
}
