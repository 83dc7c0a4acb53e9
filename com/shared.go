package com

import (
	"context"
	"sync/atomic"
)

// Shareable marks handle types that may be used from any goroutine and any
// apartment. Only Git and Agile implement it: each resolves through a
// protocol that hands the caller an apartment-correct pointer. Rc never
// implements it, because a raw object pointer is bound to its apartment.
type Shareable interface {
	shareable()
}

// Shared is a shareable handle to an I object.
type Shared[I Interface] interface {
	Shareable

	// Resolve returns an I usable in the caller's apartment.
	Resolve(ctx context.Context) (*Rc[I], error)

	// Release drops this holder. The last holder tears the registration down.
	Release()
}

var (
	_ Shared[Unknown] = (*Git[Unknown])(nil)
	_ Shared[Unknown] = (*Agile[Unknown])(nil)
)

// retain adds a holder to a shared count. It never moves the count off
// zero: once the last holder has torn the registration down, a racing
// Clone fails instead of reviving it.
func retain(refs *atomic.Int64) bool {
	for {
		n := refs.Load()
		if n <= 0 {
			return false
		}
		if refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}
