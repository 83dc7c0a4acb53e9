package object

import (
	"github.com/wippyai/mcom/com"
)

// Builder assembles an Object.
//
//	unk := object.New(counter).
//		Implement(IID_ICounter, &counterVtbl.UnknownVtbl).
//		Agile().
//		Build()
type Builder struct {
	obj *Object
}

// New starts an object whose methods recover impl through Impl.
func New(impl any) *Builder {
	o := &Object{
		impl:   impl,
		ifaces: make(map[com.IID]*Iface),
	}
	o.root = &Iface{Unknown: com.Unknown{Vtbl: &unknownVtbl}, obj: o}
	o.ifaces[com.IID_IUnknown] = o.root
	return &Builder{obj: o}
}

// Implement adds an interface. vtbl points at the UnknownVtbl embedded at
// the start of the interface's full vtable; it must stay valid for the
// object's lifetime.
func (b *Builder) Implement(iid com.IID, vtbl *com.UnknownVtbl) *Builder {
	b.obj.ifaces[iid] = &Iface{Unknown: com.Unknown{Vtbl: vtbl}, obj: b.obj}
	return b
}

// Agile marks the object free-threaded (IAgileObject). The runtime hands
// its pointers to any apartment unwrapped.
func (b *Builder) Agile() *Builder {
	b.obj.ifaces[com.IID_IAgileObject] = b.obj.root
	return b
}

// NoMarshal marks the object as refusing marshaling (INoMarshal).
func (b *Builder) NoMarshal() *Builder {
	b.obj.ifaces[com.IID_INoMarshal] = b.obj.root
	return b
}

// OnDestroy registers fn to run when the last reference is released.
// Callbacks run once, in reverse registration order.
func (b *Builder) OnDestroy(fn func()) *Builder {
	b.obj.onDestroy = append(b.obj.onDestroy, fn)
	return b
}

// Build returns the identity interface holding the first reference. The
// builder must not be used afterwards.
func (b *Builder) Build() *com.Unknown {
	o := b.obj
	b.obj = nil
	o.refs.Store(1)
	return &o.root.Unknown
}
