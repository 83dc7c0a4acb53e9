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
	methodRegisterInterfaceInGlobal = "IGlobalInterfaceTable::RegisterInterfaceInGlobal"
	methodGetInterfaceFromGlobal    = "IGlobalInterfaceTable::GetInterfaceFromGlobal"
	methodRevokeInterfaceFromGlobal = "IGlobalInterfaceTable::RevokeInterfaceFromGlobal"
)

// GlobalInterfaceTable maps cookies to registered interfaces. Table objects
// are free-threaded.
type GlobalInterfaceTable struct {
	Unknown
}

// GlobalInterfaceTableVtbl is the IGlobalInterfaceTable vtable.
type GlobalInterfaceTableVtbl struct {
	UnknownVtbl
	RegisterInterfaceInGlobal func(this *Unknown, ctx context.Context, unk *Unknown, iid *IID, cookie *uint32) hresult.HRESULT
	RevokeInterfaceFromGlobal func(this *Unknown, cookie uint32) hresult.HRESULT
	GetInterfaceFromGlobal    func(this *Unknown, ctx context.Context, cookie uint32, iid *IID, out *unsafe.Pointer) hresult.HRESULT
}

// InterfaceID implements Interface.
func (GlobalInterfaceTable) InterfaceID() IID { return IID_IGlobalInterfaceTable }

// Parent returns the embedded root interface.
func (g *GlobalInterfaceTable) Parent() *Unknown { return &g.Unknown }

func (g *GlobalInterfaceTable) vtbl() *GlobalInterfaceTableVtbl {
	return VtblOf[GlobalInterfaceTableVtbl](&g.Unknown)
}

// RegisterInterfaceInGlobal registers unk's iid interface and writes its
// cookie. ctx identifies the registering apartment.
func (g *GlobalInterfaceTable) RegisterInterfaceInGlobal(ctx context.Context, unk *Unknown, iid *IID, cookie *uint32) hresult.HRESULT {
	return g.vtbl().RegisterInterfaceInGlobal(&g.Unknown, ctx, unk, iid, cookie)
}

// RevokeInterfaceFromGlobal removes a registration. It may be called from
// any goroutine.
func (g *GlobalInterfaceTable) RevokeInterfaceFromGlobal(cookie uint32) hresult.HRESULT {
	return g.vtbl().RevokeInterfaceFromGlobal(&g.Unknown, cookie)
}

// GetInterfaceFromGlobal returns a new reference to the registered
// interface, valid in the apartment identified by ctx.
func (g *GlobalInterfaceTable) GetInterfaceFromGlobal(ctx context.Context, cookie uint32, iid *IID, out *unsafe.Pointer) hresult.HRESULT {
	return g.vtbl().GetInterfaceFromGlobal(&g.Unknown, ctx, cookie, iid, out)
}

// Scope selects which global interface table a Git registers in.
type Scope int

const (
	// ScopeApartment uses one table per apartment. A cookie resolves only in
	// the apartment that registered it.
	ScopeApartment Scope = iota

	// ScopeProcess uses one table for the whole runtime. Cookies resolve in
	// any apartment; foreign apartments receive a marshaled interface.
	ScopeProcess
)

func (s Scope) String() string {
	switch s {
	case ScopeApartment:
		return "apartment"
	case ScopeProcess:
		return "process"
	default:
		return fmt.Sprintf("Scope(%d)", int(s))
	}
}

// GitOption configures NewGit.
type GitOption func(*gitConfig)

type gitConfig struct {
	scope Scope
}

// WithScope selects the table scope. The default is ScopeApartment.
func WithScope(s Scope) GitOption {
	return func(c *gitConfig) {
		c.scope = s
	}
}

type tableKey struct {
	scope Scope
}

// globalTable returns a new reference to the caller's table for scope,
// creating and caching the table on first use.
func globalTable(ctx context.Context, scope Scope, method string) (*Rc[GlobalInterfaceTable], error) {
	rt, ok := RuntimeFrom(ctx)
	if !ok {
		return nil, errors.Unchecked(method, hresult.CO_E_NOTINITIALIZED)
	}

	clsid := CLSID_StdGlobalInterfaceTable
	local := rt.ApartmentLocal
	if scope == ScopeProcess {
		clsid = CLSID_ProcessGlobalInterfaceTable
		local = rt.ProcessLocal
	}

	v, err := local(ctx, tableKey{scope: scope}, func() (Releaser, error) {
		t, err := CoCreate[GlobalInterfaceTable](ctx, &clsid, nil)
		if err != nil {
			return nil, err
		}
		return t, nil
	})
	if err != nil {
		return nil, err
	}

	t, ok := v.(*Rc[GlobalInterfaceTable])
	if !ok {
		return nil, errors.New(method, hresult.E_UNEXPECTED).
			Detail(fmt.Sprintf("table slot holds %T", v)).
			Build()
	}
	return t.Clone(), nil
}

// registration is the table entry shared by every clone of a Git.
type registration struct {
	table  *Rc[GlobalInterfaceTable]
	scope  Scope
	cookie uint32
	refs   atomic.Int64
}

// Git shares an object by registering it in a global interface table and
// holding only the cookie. Any apartment may resolve the cookie into its
// own Rc; in ScopeApartment tables only the registering apartment succeeds.
//
// Clones share one registration. The last Release revokes it.
type Git[I Interface] struct {
	reg      *registration
	released atomic.Bool
}

// NewGit registers rc's object under I's IID in the caller's table. rc keeps
// its own reference; the table takes another.
func NewGit[I Interface](ctx context.Context, rc *Rc[I], opts ...GitOption) (*Git[I], error) {
	cfg := gitConfig{scope: ScopeApartment}
	for _, opt := range opts {
		opt(&cfg)
	}

	table, err := globalTable(ctx, cfg.scope, methodRegisterInterfaceInGlobal)
	if err != nil {
		return nil, err
	}

	iid := interfaceID[I]()
	var cookie uint32
	hr := table.Get().RegisterInterfaceInGlobal(ctx, rc.AsRoot(), &iid, &cookie)
	if err := errors.Check(methodRegisterInterfaceInGlobal, hr); err != nil {
		table.Release()
		return nil, err
	}

	if cookie == 0 {
		// Zero is never a valid cookie. Run the teardown anyway, its status
		// is meaningless here.
		table.Get().RevokeInterfaceFromGlobal(cookie)
		table.Release()
		Logger().Warn("global interface table returned the invalid cookie",
			zap.Stringer("iid", iid),
			zap.Stringer("scope", cfg.scope),
			zap.Stringer("hr", hr))
		return nil, errors.New(methodRegisterInterfaceInGlobal, hr).
			Detail("returned the invalid cookie").
			Build()
	}

	reg := &registration{table: table, scope: cfg.scope, cookie: cookie}
	reg.refs.Store(1)

	Logger().Debug("registered in global interface table",
		zap.Uint32("cookie", cookie),
		zap.Stringer("iid", iid),
		zap.Stringer("scope", cfg.scope))

	return &Git[I]{reg: reg}, nil
}

func (*Git[I]) shareable() {}

// Cookie returns the registration cookie.
func (g *Git[I]) Cookie() uint32 {
	return g.reg.cookie
}

// Scope returns the table scope the registration lives in.
func (g *Git[I]) Scope() Scope {
	return g.reg.scope
}

// Resolve looks the cookie up in the caller's table and returns a new
// reference valid in the caller's apartment.
func (g *Git[I]) Resolve(ctx context.Context) (*Rc[I], error) {
	if g.released.Load() {
		return nil, errors.New(methodGetInterfaceFromGlobal, hresult.E_POINTER).
			Detail("handle already released").
			Build()
	}

	table, err := globalTable(ctx, g.reg.scope, methodGetInterfaceFromGlobal)
	if err != nil {
		return nil, err
	}
	defer table.Release()

	iid := interfaceID[I]()
	var out unsafe.Pointer
	hr := table.Get().GetInterfaceFromGlobal(ctx, g.reg.cookie, &iid, &out)
	if err := errors.Check(methodGetInterfaceFromGlobal, hr); err != nil {
		return nil, err
	}

	rc, ok := FromPointer[I](out)
	if !ok {
		return nil, errors.Unchecked(methodGetInterfaceFromGlobal, hresult.E_POINTER)
	}
	return rc, nil
}

// Clone returns another holder of the same registration. The table is not
// touched. Clone panics on a released holder, and also when it loses a race
// with the last Release of another holder.
func (g *Git[I]) Clone() *Git[I] {
	if g.released.Load() || !retain(&g.reg.refs) {
		panic("com: Clone of released Git")
	}
	return &Git[I]{reg: g.reg}
}

// Release drops this holder. Releasing a holder twice is a no-op. The last
// holder revokes the cookie from the table it was registered in; a failed
// revoke means the table is corrupt and panics.
func (g *Git[I]) Release() {
	if g == nil || !g.released.CompareAndSwap(false, true) {
		return
	}
	if g.reg.refs.Add(-1) != 0 {
		return
	}

	hr := g.reg.table.Get().RevokeInterfaceFromGlobal(g.reg.cookie)
	if hresult.Failed(hr) {
		panic(errors.New(methodRevokeInterfaceFromGlobal, hr).
			Detail(fmt.Sprintf("cookie %#x", g.reg.cookie)).
			Build())
	}
	g.reg.table.Release()

	Logger().Debug("revoked from global interface table",
		zap.Uint32("cookie", g.reg.cookie),
		zap.Stringer("scope", g.reg.scope))
}
