// Package wasmclass hosts WebAssembly guests as creatable classes.
//
// A Class is a compiled core module plus the exports callers may reach
// through IInvoker. Registering it makes a CLSID creatable; every object
// owns its own instance, so guest globals and memory are per object:
//
//	r := wazero.NewRuntime(ctx)
//	class, err := wasmclass.Compile(ctx, r, wasmclass.CounterModule, wasmclass.CounterMethods)
//	if err != nil {
//		return err
//	}
//	if err := class.Register(rt, clsid); err != nil {
//		return err
//	}
//	wasmclass.RegisterMarshaler(rt)
//
//	inv, err := com.CoCreate[wasmclass.Invoker](ctx, &clsid, nil)
//	out, err := inv.Get().Invoke(ctx, "add", int32(2))
//
// Guest instances are not safe for concurrent calls. Apartment-threaded
// classes rely on their STA for that; free-threaded classes take a lock per
// call. RegisterMarshaler installs the IInvoker proxy so apartment-threaded
// objects can be shared with other apartments through com.Git or com.Agile.
package wasmclass
