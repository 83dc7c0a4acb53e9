// Package mcom is a thread-safety and lifetime layer over a ref-counted
// capability object model.
//
// Objects expose interfaces through vtables rooted at IUnknown. Each object
// lives in an apartment: a single-threaded apartment (STA) runs calls on the
// goroutine that owns it, the multi-threaded apartment (MTA) runs them on
// the caller. Raw pointers are bound to their apartment; the handles in
// package com encode which of them may cross goroutines.
//
// # Architecture Overview
//
//	mcom/
//	├── hresult/      Status codes and their names
//	├── errors/       Error type carrying the failing method and status
//	├── com/          Handles: Rc, Git, Agile, plus CoCreate and the runtime contract
//	├── object/       Building objects from Go values and vtables
//	├── apartment/    Runtime: apartments, class registry, tables, agile references
//	├── resource/     Generation-tagged cookie table shared by all tables
//	├── wasmclass/    WebAssembly guests as creatable classes (wazero)
//	├── cmd/mcom/     CLI sharing a guest object with worker goroutines
//	└── examples/     Standalone programs
//
// # Handles
//
// An Rc owns one reference and releases it exactly once. It is bound to the
// apartment it was obtained in and never satisfies com.Shareable.
//
// A Git registers the object in a global interface table and holds only the
// cookie. Clones share the registration; the last Release revokes it.
//
// An Agile holds an agile reference token. Resolving it hands free-threaded
// objects through unchanged and marshals the rest.
//
// # Quick Start
//
//	rt := apartment.New()
//	defer rt.Close()
//
//	ctx, _, err := apartment.EnterSTA(context.Background(), rt)
//	if err != nil {
//		return err
//	}
//	defer apartment.Uninitialize(ctx)
//
//	obj, err := com.CoCreate[IFoo](ctx, &CLSID_Foo, nil)
//	if err != nil {
//		return err
//	}
//	defer obj.Release()
//
//	shared, err := com.NewAgileEager(ctx, obj)
//	if err != nil {
//		return err
//	}
//	defer shared.Release()
//
// Workers enter the MTA and call shared.Resolve; the STA owner pumps with
// Apartment.PumpUntil while they run.
package mcom
