// Package com provides lifetime and sharing handles for reference-counted
// capability objects.
//
// An object exposes interfaces through vtables. Every interface begins with
// the root Unknown slots (QueryInterface, AddRef, Release). Objects live in
// an apartment, identified by the context passed to calls, and their raw
// pointers are only valid there.
//
// # Handles
//
// Rc owns one reference and stays in its apartment:
//
//	table, err := com.CoCreate[com.GlobalInterfaceTable](ctx, &com.CLSID_StdGlobalInterfaceTable, nil)
//	if err != nil {
//		return err
//	}
//	defer table.Release()
//
// Git and Agile are shareable. Create one in the owning apartment, hand it
// to other goroutines, and resolve it there:
//
//	shared, err := com.NewAgileEager(ctx, counter)
//	...
//	go func() {
//		local, err := shared.Resolve(workerCtx)
//		...
//		defer local.Release()
//	}()
//
// Git holds a cookie from a global interface table. With the default
// ScopeApartment the cookie only resolves in the registering apartment;
// WithScope(ScopeProcess) registers in the runtime-wide table instead.
// Agile holds an agile reference token minted eagerly (NewAgileEager) or
// lazily (NewAgileLazy).
//
// # Casting
//
// QueryInterface and TryCast go through the object's QueryInterface slot.
// Upcast reinterprets a derived interface as its embedded parent. AsRoot is
// the layout-trusting view every handle relies on.
//
// # Runtime
//
// All protocol calls go to the Runtime carried by the context (see
// WithRuntime). The apartment package provides one.
package com
