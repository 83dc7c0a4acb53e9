package com

import (
	"strings"
	"testing"

	"github.com/wippyai/mcom/errors"
	"github.com/wippyai/mcom/hresult"
)

func TestRc_IntoRawRoundTrip(t *testing.T) {
	m := newMock(iidWidget)
	h := FromRaw(&m.Unknown)
	defer h.Release()

	raw := h.Clone().IntoRaw()
	back := FromRaw(raw)
	if back.AsRoot() != h.AsRoot() {
		t.Fatalf("root pointer changed: %p != %p", back.AsRoot(), h.AsRoot())
	}
	if got := m.refs.Load(); got != 2 {
		t.Fatalf("refs = %d, want 2", got)
	}

	back.Release()
	if got := m.refs.Load(); got != 1 {
		t.Fatalf("refs after release = %d, want 1", got)
	}
}

func TestRc_ReleaseLastReference(t *testing.T) {
	m := newMock()
	h := FromRaw(&m.Unknown)
	c := h.Clone()

	h.Release()
	if m.destroyed.Load() != 0 {
		t.Fatal("object destroyed while a clone is alive")
	}

	c.Release()
	if got := m.destroyed.Load(); got != 1 {
		t.Fatalf("destroyed %d times, want 1", got)
	}
	if got := m.releases.Load(); got != 2 {
		t.Fatalf("Release called %d times, want 2", got)
	}
}

func TestRc_ReleaseIdempotent(t *testing.T) {
	m := newMock()
	h := FromRaw(&m.Unknown)

	h.Release()
	h.Release()

	if got := m.releases.Load(); got != 1 {
		t.Fatalf("Release called %d times, want 1", got)
	}
	if h.Get() != nil {
		t.Fatal("released handle still holds a pointer")
	}

	var nilRc *Rc[Unknown]
	nilRc.Release()
}

func TestRc_ReleaseReadsVtableAtCallTime(t *testing.T) {
	m := newMock()
	h := FromRaw(&m.Unknown)

	overridden := 0
	vtbl := mockVtbl
	vtbl.Release = func(this *Unknown) uint32 {
		overridden++
		return mockVtbl.Release(this)
	}
	m.Vtbl = &vtbl

	h.Release()
	if overridden != 1 {
		t.Fatalf("overridden Release called %d times, want 1", overridden)
	}
	if m.destroyed.Load() != 1 {
		t.Fatal("object not destroyed")
	}
}

func TestFromRawOpt(t *testing.T) {
	if _, ok := FromRawOpt[Unknown](nil); ok {
		t.Fatal("FromRawOpt(nil) reported present")
	}

	m := newMock()
	h, ok := FromRawOpt(&m.Unknown)
	if !ok {
		t.Fatal("FromRawOpt rejected a live pointer")
	}
	if m.addRefs.Load() != 0 {
		t.Fatal("adopting must not AddRef")
	}
	h.Release()
}

func TestFromRaw_NilPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	FromRaw[IWidget](nil)
}

func TestTryCast(t *testing.T) {
	t.Run("present", func(t *testing.T) {
		m := newMock(iidWidget)
		h := FromRaw(&m.Unknown)
		defer h.Release()

		w, ok := TryCast[IWidget](h)
		if !ok {
			t.Fatal("TryCast failed for a supported interface")
		}
		if got := m.refs.Load(); got != 2 {
			t.Fatalf("refs = %d, want 2 after cast", got)
		}
		if w.AsRoot() != h.AsRoot() {
			t.Fatal("cast changed identity")
		}
		w.Release()
		if got := m.refs.Load(); got != 1 {
			t.Fatalf("refs = %d, want 1", got)
		}
	})

	t.Run("absent", func(t *testing.T) {
		m := newMock()
		h := FromRaw(&m.Unknown)
		defer h.Release()

		if _, ok := TryCast[IWidget](h); ok {
			t.Fatal("TryCast succeeded for an unsupported interface")
		}
		if got := m.refs.Load(); got != 1 {
			t.Fatalf("refs = %d, want 1", got)
		}
	})

	t.Run("other failures collapse", func(t *testing.T) {
		m := newMock()
		m.qiStatus = hresult.E_OUTOFMEMORY
		h := FromRaw(&m.Unknown)
		defer h.Release()

		if _, ok := TryCast[IWidget](h); ok {
			t.Fatal("TryCast succeeded on E_OUTOFMEMORY")
		}
	})
}

func TestQueryInterface_Status(t *testing.T) {
	m := newMock()
	m.qiStatus = hresult.E_OUTOFMEMORY
	h := FromRaw(&m.Unknown)
	defer h.Release()

	_, err := QueryInterface[IWidget](h)
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Code(err) != hresult.E_OUTOFMEMORY {
		t.Fatalf("code = %s, want E_OUTOFMEMORY", errors.Code(err))
	}
	if !strings.Contains(err.Error(), "QueryInterface") {
		t.Fatalf("error %q does not name the method", err)
	}
}

func TestUpcast(t *testing.T) {
	m := newMock(iidWidget, iidGadget)
	root := FromRaw(&m.Unknown)
	defer root.Release()

	g, err := QueryInterface[IGadget](root)
	if err != nil {
		t.Fatalf("QueryInterface: %v", err)
	}
	before := m.refs.Load()

	w := Upcast[IWidget](g)
	if g.Get() != nil {
		t.Fatal("Upcast must consume its argument")
	}
	u := Upcast[Unknown](w)
	if u.Get() != root.Get() {
		t.Fatal("upcast root differs")
	}
	if got := m.refs.Load(); got != before {
		t.Fatalf("refs changed during upcast: %d -> %d", before, got)
	}
	u.Release()
}

func TestUpcast_LayoutMismatchPanics(t *testing.T) {
	bad := FromRaw(&misplaced{})
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	Upcast[Unknown](bad)
}

func TestRc_UseAfterReleasePanics(t *testing.T) {
	m := newMock()
	h := FromRaw(&m.Unknown)
	h.Release()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	h.Clone()
}

func TestRc_Leak(t *testing.T) {
	m := newMock()
	h := FromRaw(&m.Unknown)

	p := h.Leak()
	h.Release()

	if p != &m.Unknown {
		t.Fatal("Leak returned a different pointer")
	}
	if m.releases.Load() != 0 {
		t.Fatal("leaked handle released its reference")
	}
}

func TestAsRoot(t *testing.T) {
	m := newMock(iidWidget, iidGadget)
	g := &IGadget{IWidget{Unknown{Vtbl: m.Vtbl}}}

	if AsRoot(g) != &g.Unknown {
		t.Fatal("AsRoot does not point at the embedded root")
	}
	if AsRootPtr(g) != AsRootPtr(&g.IWidget) {
		t.Fatal("AsRootPtr differs between derived and parent views")
	}
	if m.addRefs.Load() != 0 || m.releases.Load() != 0 {
		t.Fatal("AsRoot touched the reference count")
	}
}

func TestFromRootAndVtblOf(t *testing.T) {
	m := newMock(iidWidget, iidGadget)
	g := &IGadget{IWidget{Unknown{Vtbl: m.Vtbl}}}

	if FromRoot[IGadget](AsRoot(g)) != g {
		t.Fatal("FromRoot does not invert AsRoot")
	}
	if FromRoot[mockObject](&m.Unknown) != m {
		t.Fatal("FromRoot does not reach the object header")
	}
	if VtblOf[UnknownVtbl](AsRoot(g)) != m.Vtbl {
		t.Fatal("VtblOf returned a different table")
	}
	if m.addRefs.Load() != 0 || m.releases.Load() != 0 {
		t.Fatal("casts touched the reference count")
	}
}
