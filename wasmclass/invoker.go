package wasmclass

import (
	"context"
	stderrors "errors"

	"go.uber.org/zap"

	"github.com/wippyai/mcom/apartment"
	"github.com/wippyai/mcom/com"
	"github.com/wippyai/mcom/errors"
	"github.com/wippyai/mcom/hresult"
	"github.com/wippyai/mcom/object"
)

const methodInvoke = "IInvoker::Invoke"

// IID_IInvoker identifies the late-bound call interface of guest objects.
var IID_IInvoker = com.MustParseGUID("{3B7F2A90-5C1D-4E8A-B6F4-2D9E0C7A1B55}")

// Invoker calls guest methods by name.
type Invoker struct {
	com.Unknown
}

// InvokerVtbl is the IInvoker vtable.
type InvokerVtbl struct {
	com.UnknownVtbl
	Invoke func(this *com.Unknown, ctx context.Context, method string, args []any, results *[]any) hresult.HRESULT
}

// InterfaceID implements com.Interface.
func (Invoker) InterfaceID() com.IID { return IID_IInvoker }

// Parent returns the embedded root interface.
func (i *Invoker) Parent() *com.Unknown { return &i.Unknown }

// Invoke calls method with args and returns its results. ctx identifies
// the calling apartment.
func (i *Invoker) Invoke(ctx context.Context, method string, args ...any) ([]any, error) {
	vtbl := com.VtblOf[InvokerVtbl](&i.Unknown)
	var results []any
	hr := vtbl.Invoke(&i.Unknown, ctx, method, args, &results)
	if hresult.Failed(hr) {
		return nil, errors.New(methodInvoke, hr).Detail(method).Build()
	}
	return results, nil
}

var guestVtbl = InvokerVtbl{
	UnknownVtbl: object.UnknownVtbl(),
	Invoke:      guestInvoke,
}

func guestInvoke(this *com.Unknown, ctx context.Context, name string, args []any, results *[]any) hresult.HRESULT {
	g := object.Impl[*guest](this)
	if results == nil {
		return hresult.E_POINTER
	}

	m, ok := g.class.methods[name]
	if !ok {
		return hresult.DISP_E_UNKNOWNNAME
	}
	if len(args) != len(m.Params) {
		return hresult.DISP_E_BADPARAMCOUNT
	}

	flat := make([]uint64, len(args))
	for i, a := range args {
		v, err := lower(m.Params[i], a)
		if err != nil {
			Logger().Debug("argument rejected",
				zap.String("method", name),
				zap.Int("index", i),
				zap.Error(err))
			return hresult.DISP_E_TYPEMISMATCH
		}
		flat[i] = v
	}

	if g.mu != nil {
		g.mu.Lock()
		defer g.mu.Unlock()
	}
	raw, err := g.mod.ExportedFunction(name).Call(ctx, flat...)
	if err != nil {
		Logger().Warn("guest call failed",
			zap.String("method", name),
			zap.Error(err))
		return hresult.E_FAIL
	}

	out := make([]any, len(m.Results))
	for i, t := range m.Results {
		v, err := lift(t, raw[i])
		if err != nil {
			Logger().Warn("guest returned an invalid value",
				zap.String("method", name),
				zap.Error(err))
			return hresult.E_FAIL
		}
		out[i] = v
	}
	*results = out
	return hresult.S_OK
}

type invokerProxy struct {
	stub *apartment.Stub
}

var proxyVtbl = InvokerVtbl{
	UnknownVtbl: object.UnknownVtbl(),
	Invoke:      proxyInvoke,
}

// proxyInvoke forwards the call into the object's home apartment.
func proxyInvoke(this *com.Unknown, ctx context.Context, name string, args []any, results *[]any) hresult.HRESULT {
	p := object.Impl[*invokerProxy](this)
	if results == nil {
		return hresult.E_POINTER
	}

	var (
		out []any
		hr  hresult.HRESULT
	)
	err := p.stub.Invoke(ctx, func(ctx context.Context, target *com.Unknown) error {
		vtbl := com.VtblOf[InvokerVtbl](target)
		hr = vtbl.Invoke(target, ctx, name, args, &out)
		return nil
	})
	switch {
	case err == nil:
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return hresult.E_ABORT
	default:
		return errors.Code(err)
	}
	if hresult.Succeeded(hr) {
		*results = out
	}
	return hr
}

func newProxy(stub *apartment.Stub) (*com.Unknown, hresult.HRESULT) {
	return object.New(&invokerProxy{stub: stub}).
		Implement(IID_IInvoker, &proxyVtbl.UnknownVtbl).
		OnDestroy(stub.Release).
		Build(), hresult.S_OK
}

// RegisterMarshaler lets IInvoker references cross apartments in rt.
func RegisterMarshaler(rt *apartment.Runtime) {
	rt.RegisterMarshaler(IID_IInvoker, newProxy)
}
