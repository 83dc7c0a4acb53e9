// Package apartment hosts capability objects in Go apartments.
//
// A Runtime owns apartments, a class registry, global interface tables and
// agile references, and implements com.Runtime. Goroutines enter an
// apartment through a context:
//
//	rt := apartment.New(apartment.WithLogger(log))
//	defer rt.Close()
//
//	ctx, _, err := apartment.EnterSTA(ctx, rt)
//	if err != nil {
//		return err
//	}
//	defer apartment.Uninitialize(ctx)
//
// # Apartments
//
// Each STA is its own apartment. Calls into it from other apartments are
// queued; the goroutine owning the STA runs them with Pump or PumpUntil.
// The MTA is shared by all goroutines that enter it and runs calls
// directly.
//
// # Sharing
//
// Objects leave their apartment through a global interface table or an
// agile reference. The standard table class (com.CLSID_StdGlobalInterfaceTable)
// gives each apartment its own table, so cookies only resolve where they
// were registered. The process table class
// (com.CLSID_ProcessGlobalInterfaceTable) is shared and hands foreign
// apartments a proxy.
//
// An object reaches a foreign apartment directly if it is agile
// (IAgileObject). An INoMarshal object never does. Any other object needs a
// ProxyFactory registered for the interface; proxies forward each call to
// the home apartment through Stub.Invoke.
//
// # Events
//
// Subscribe receives an Event for every apartment entry and exit, object
// creation, table registration, revocation, agile reference mint and
// resolve, and queued cross-apartment call.
package apartment
