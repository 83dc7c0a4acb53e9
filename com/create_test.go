package com

import (
	"context"
	"math"
	"testing"

	"github.com/wippyai/mcom/errors"
	"github.com/wippyai/mcom/hresult"
)

var clsidWidget = MustParseGUID("{5B7E3A10-0C2D-4E6F-8A91-B2C3D4E5F6AA}")

func TestCoCreate(t *testing.T) {
	rt := newFakeRuntime()
	rt.object = newMock(iidWidget)
	ctx := WithRuntime(context.Background(), rt)

	w, err := CoCreate[IWidget](ctx, &clsidWidget, nil)
	if err != nil {
		t.Fatalf("CoCreate: %v", err)
	}
	if w.Get() == nil {
		t.Fatal("CoCreate returned an empty handle")
	}
	if got := rt.object.refs.Load(); got != 2 {
		t.Fatalf("refs = %d, want 2", got)
	}
	if rt.clsctx != ClsCtxInprocServer {
		t.Fatalf("clsctx = %#x", rt.clsctx)
	}
	w.Release()
}

func TestCoCreate_NoRuntime(t *testing.T) {
	_, err := CoCreate[IWidget](context.Background(), &clsidWidget, nil)
	if !errors.IsNotInitialized(err) {
		t.Fatalf("err = %v, want CO_E_NOTINITIALIZED", err)
	}
}

func TestCoCreateInstance(t *testing.T) {
	tests := []struct {
		name     string
		createHR hresult.HRESULT
		iid      IID
		want     hresult.HRESULT
	}{
		{"success", hresult.S_OK, iidWidget, hresult.S_OK},
		{"class not registered", hresult.REGDB_E_CLASSNOTREG, iidWidget, hresult.REGDB_E_CLASSNOTREG},
		{"out of memory", hresult.E_OUTOFMEMORY, iidWidget, hresult.E_OUTOFMEMORY},
		{"no interface", hresult.S_OK, iidGadget, hresult.E_NOINTERFACE},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newFakeRuntime()
			rt.object = newMock(iidWidget)
			rt.createHR = tt.createHR
			ctx := WithRuntime(context.Background(), rt)

			p, err := coCreateInstance(ctx, &clsidWidget, nil, tt.iid)
			if got := errors.Code(err); got != tt.want {
				t.Fatalf("status = %s, want %s", got.Name(), tt.want.Name())
			}
			if err == nil {
				if p == nil {
					t.Fatal("nil pointer on success")
				}
				TrustedCast[Unknown](p).Release()
			}
			if got := rt.object.refs.Load(); got != 1 {
				t.Fatalf("refs = %d, want 1", got)
			}
		})
	}
}

func TestCoCreateInstanceFromApp(t *testing.T) {
	tests := []struct {
		name    string
		entryHR hresult.HRESULT
		iid     IID
		want    hresult.HRESULT
	}{
		{"success", hresult.S_OK, iidWidget, hresult.S_OK},
		{"entry no interface", hresult.S_OK, iidGadget, hresult.E_NOINTERFACE},
		{"entry failure", hresult.E_OUTOFMEMORY, iidWidget, hresult.E_OUTOFMEMORY},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newFakeRuntime()
			rt.object = newMock(iidWidget)
			rt.entryHR = tt.entryHR
			ctx := WithRuntime(context.Background(), rt)

			p, err := coCreateInstanceFromApp(ctx, &clsidWidget, nil, tt.iid)
			if got := errors.Code(err); got != tt.want {
				t.Fatalf("status = %s, want %s", got.Name(), tt.want.Name())
			}
			if rt.count != 1 {
				t.Fatalf("batch count = %d, want 1", rt.count)
			}
			if err == nil {
				TrustedCast[Unknown](p).Release()
			}
			if got := rt.object.refs.Load(); got != 1 {
				t.Fatalf("refs = %d, want 1", got)
			}
		})
	}
}

func TestBatchCount(t *testing.T) {
	if n, err := batchCount(3); err != nil || n != 3 {
		t.Fatalf("batchCount(3) = %d, %v", n, err)
	}

	big := uint64(math.MaxUint32) + 1
	if int(big) < 0 || uint64(int(big)) != big {
		t.Skip("int cannot hold the overflowing count")
	}
	_, err := batchCount(int(big))
	want := hresult.Make(hresult.SeverityError, hresult.FacilityNull, hresult.ERROR_ARITHMETIC_OVERFLOW)
	if errors.Code(err) != want {
		t.Fatalf("status = %s, want %s", errors.Code(err), want)
	}
	if errors.KindOf(errors.Code(err)) != errors.KindOverflow {
		t.Fatalf("kind = %s, want overflow", errors.KindOf(errors.Code(err)))
	}
}
