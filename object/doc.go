// Package object implements capability objects in Go.
//
// An object is a Go value plus a set of interface entries. Each entry is a
// pointer to a vtable whose first slots are the shared root functions from
// UnknownVtbl; the remaining slots are the interface's own methods, which
// recover the Go value with Impl:
//
//	type CounterVtbl struct {
//		com.UnknownVtbl
//		Get func(this *com.Unknown) int32
//	}
//
//	var counterVtbl = CounterVtbl{
//		UnknownVtbl: object.UnknownVtbl(),
//		Get: func(this *com.Unknown) int32 {
//			return object.Impl[*counter](this).n
//		},
//	}
//
//	unk := object.New(&counter{}).
//		Implement(IID_ICounter, &counterVtbl.UnknownVtbl).
//		Build()
//
// QueryInterface for IID_IUnknown always returns the same identity
// pointer. All entries share one atomic reference count; OnDestroy
// callbacks run when it drops to zero.
package object
