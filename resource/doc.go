// Package resource provides the cookie table behind global interface tables.
//
// A table maps non-zero 32-bit cookies to values. Cookie 0 is reserved as
// "invalid" and is never handed out, so callers can use it as a sentinel.
//
//	table := resource.NewTable[*registration]()
//
//	// Insert a value, get a cookie
//	cookie, err := table.Insert(reg)
//
//	// Look it up again
//	reg, ok := table.Get(cookie)
//
//	// Remove it; the cookie is dead from now on
//	reg, ok = table.Remove(cookie)
//
// # Cookie Reuse
//
// Slots are recycled through a free list, but every slot carries a
// generation that is folded into the cookie. A revoked cookie keeps failing
// even after its slot holds a new entry.
//
// # Observers
//
// Register observers to track entry lifecycle events:
//
//	cancel := table.Subscribe(resource.ObserverFunc(func(e resource.Event) {
//	    log.Printf("cookie %#x %s", e.Cookie, e.Type)
//	}))
//	defer cancel()
//
// # Cleanup
//
// Values implementing Dropper have Drop called when they are removed or when
// the table is closed.
package resource
