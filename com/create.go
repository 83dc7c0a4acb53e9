package com

import (
	"context"
	"math"
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/mcom/errors"
	"github.com/wippyai/mcom/hresult"
)

const (
	methodCoCreateInstance        = "CoCreateInstance"
	methodCoCreateInstanceFromApp = "CoCreateInstanceFromApp"
)

// CoCreate creates an instance of clsid and returns its I interface.
// outer, when non-nil, is the controlling object for aggregation.
//
// Builds with the mcom_app tag use the sandboxed, batched creation call;
// other builds use the in-process call.
func CoCreate[I Interface](ctx context.Context, clsid *CLSID, outer *Rc[Unknown]) (*Rc[I], error) {
	var o *Unknown
	if outer != nil {
		o = outer.Get()
	}
	p, err := coCreate(ctx, clsid, o, interfaceID[I]())
	if err != nil {
		return nil, err
	}
	return FromRaw(TrustedCast[I](p)), nil
}

func coCreateInstance(ctx context.Context, clsid *CLSID, outer *Unknown, iid IID) (unsafe.Pointer, error) {
	rt, ok := RuntimeFrom(ctx)
	if !ok {
		return nil, errors.Unchecked(methodCoCreateInstance, hresult.CO_E_NOTINITIALIZED)
	}

	p, hr := rt.CreateInstance(ctx, clsid, outer, ClsCtxInprocServer, &iid)
	if err := errors.Check(methodCoCreateInstance, hr); err != nil {
		Logger().Debug("create failed",
			zap.Stringer("clsid", clsid),
			zap.Stringer("iid", iid),
			zap.Stringer("hr", hr))
		return nil, err
	}
	if p == nil {
		return nil, errors.Unchecked(methodCoCreateInstance, hresult.E_POINTER)
	}
	return p, nil
}

func coCreateInstanceFromApp(ctx context.Context, clsid *CLSID, outer *Unknown, iid IID) (unsafe.Pointer, error) {
	rt, ok := RuntimeFrom(ctx)
	if !ok {
		return nil, errors.Unchecked(methodCoCreateInstanceFromApp, hresult.CO_E_NOTINITIALIZED)
	}

	results := []MultiQI{{IID: &iid}}
	count, err := batchCount(len(results))
	if err != nil {
		return nil, err
	}

	hr := rt.CreateInstanceFromApp(ctx, clsid, outer, ClsCtxInprocServer, nil, count, results)
	if err := errors.Check(methodCoCreateInstanceFromApp, hr); err != nil {
		Logger().Debug("create failed",
			zap.Stringer("clsid", clsid),
			zap.Stringer("iid", iid),
			zap.Stringer("hr", hr))
		return nil, err
	}

	// The call can succeed overall while individual entries fail.
	r := results[0]
	if err := errors.Check(methodCoCreateInstanceFromApp, r.HR); err != nil {
		releaseBatch(results)
		return nil, err
	}
	if r.Itf == nil {
		return nil, errors.Unchecked(methodCoCreateInstanceFromApp, hresult.E_POINTER)
	}
	return r.Itf, nil
}

// batchCount converts a batch length to the wire count.
func batchCount(n int) (uint32, error) {
	if n < 0 || uint64(n) > math.MaxUint32 {
		return 0, errors.Unchecked(methodCoCreateInstanceFromApp,
			hresult.Make(hresult.SeverityError, hresult.FacilityNull, hresult.ERROR_ARITHMETIC_OVERFLOW))
	}
	return uint32(n), nil
}

func releaseBatch(results []MultiQI) {
	for i := range results {
		if results[i].Itf != nil {
			TrustedCast[Unknown](results[i].Itf).Release()
			results[i].Itf = nil
		}
	}
}
