package wasmclass

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"

	"github.com/wippyai/mcom/apartment"
	"github.com/wippyai/mcom/com"
	"github.com/wippyai/mcom/hresult"
	"github.com/wippyai/mcom/object"
)

// Method describes a guest export callable through IInvoker. Only scalar
// WIT types are supported.
type Method struct {
	Name    string
	Params  []wit.Type
	Results []wit.Type
}

// Class is a compiled guest module. Each object created from it owns a
// fresh instance, so guest state is per object.
type Class struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	methods  map[string]Method
	model    apartment.ThreadingModel
}

// Option configures Compile.
type Option func(*Class)

// WithThreading selects the threading model objects are registered with.
// The default is ThreadingApartment. Free and Both objects are agile and
// serialize guest calls with a lock.
func WithThreading(m apartment.ThreadingModel) Option {
	return func(c *Class) {
		c.model = m
	}
}

// Compile compiles wasm with r and checks that every method is exported
// with the matching core signature.
func Compile(ctx context.Context, r wazero.Runtime, wasm []byte, methods []Method, opts ...Option) (*Class, error) {
	compiled, err := r.CompileModule(ctx, wasm)
	if err != nil {
		return nil, fmt.Errorf("compile guest: %w", err)
	}

	c := &Class{
		runtime:  r,
		compiled: compiled,
		methods:  make(map[string]Method, len(methods)),
		model:    apartment.ThreadingApartment,
	}
	for _, opt := range opts {
		opt(c)
	}

	exports := compiled.ExportedFunctions()
	for _, m := range methods {
		def, ok := exports[m.Name]
		if !ok {
			compiled.Close(ctx)
			return nil, fmt.Errorf("method %q is not exported", m.Name)
		}
		if err := checkSignature(m, def); err != nil {
			compiled.Close(ctx)
			return nil, err
		}
		c.methods[m.Name] = m
	}
	return c, nil
}

// Exports compiles wasm and describes every exported function whose core
// signature maps onto scalar WIT types. Integers map to their signed WIT
// counterparts.
func Exports(ctx context.Context, r wazero.Runtime, wasm []byte) ([]Method, error) {
	compiled, err := r.CompileModule(ctx, wasm)
	if err != nil {
		return nil, fmt.Errorf("compile guest: %w", err)
	}
	defer compiled.Close(ctx)

	var methods []Method
	for name, def := range compiled.ExportedFunctions() {
		params, ok := witTypes(def.ParamTypes())
		if !ok {
			continue
		}
		results, ok := witTypes(def.ResultTypes())
		if !ok {
			continue
		}
		methods = append(methods, Method{Name: name, Params: params, Results: results})
	}
	slices.SortFunc(methods, func(a, b Method) int { return strings.Compare(a.Name, b.Name) })
	return methods, nil
}

func witTypes(types []api.ValueType) ([]wit.Type, bool) {
	out := make([]wit.Type, 0, len(types))
	for _, t := range types {
		switch t {
		case api.ValueTypeI32:
			out = append(out, wit.S32{})
		case api.ValueTypeI64:
			out = append(out, wit.S64{})
		case api.ValueTypeF32:
			out = append(out, wit.F32{})
		case api.ValueTypeF64:
			out = append(out, wit.F64{})
		default:
			return nil, false
		}
	}
	return out, true
}

func checkSignature(m Method, def api.FunctionDefinition) error {
	params, err := flatten(m.Params)
	if err != nil {
		return fmt.Errorf("method %q params: %w", m.Name, err)
	}
	results, err := flatten(m.Results)
	if err != nil {
		return fmt.Errorf("method %q results: %w", m.Name, err)
	}
	if !slices.Equal(params, def.ParamTypes()) || !slices.Equal(results, def.ResultTypes()) {
		return fmt.Errorf("method %q: export has signature %s", m.Name, signature(def))
	}
	return nil
}

func flatten(types []wit.Type) ([]api.ValueType, error) {
	out := make([]api.ValueType, 0, len(types))
	for _, t := range types {
		vt, ok := coreType(t)
		if !ok {
			return nil, fmt.Errorf("unsupported WIT type %T", t)
		}
		out = append(out, vt)
	}
	return out, nil
}

func signature(def api.FunctionDefinition) string {
	name := func(ts []api.ValueType) []string {
		s := make([]string, len(ts))
		for i, t := range ts {
			s[i] = api.ValueTypeName(t)
		}
		return s
	}
	return fmt.Sprintf("%v -> %v", name(def.ParamTypes()), name(def.ResultTypes()))
}

// Methods returns the callable method names in sorted order.
func (c *Class) Methods() []string {
	names := make([]string, 0, len(c.methods))
	for n := range c.methods {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Model returns the threading model objects are registered with.
func (c *Class) Model() apartment.ThreadingModel {
	return c.model
}

// Register makes clsid creatable in rt. Every created object instantiates
// the module; the instance is closed when the object is destroyed.
func (c *Class) Register(rt *apartment.Runtime, clsid com.CLSID) error {
	return rt.RegisterClass(clsid, c.model, func(ctx context.Context) (*com.Unknown, hresult.HRESULT) {
		obj, err := c.instantiate(ctx)
		if err != nil {
			Logger().Warn("guest instantiation failed",
				zap.Stringer("clsid", clsid),
				zap.Error(err))
			return nil, hresult.E_FAIL
		}
		return obj, hresult.S_OK
	})
}

// Close releases the compiled module. Live objects keep their instances.
func (c *Class) Close(ctx context.Context) error {
	return c.compiled.Close(ctx)
}

type guest struct {
	class *Class
	mod   api.Module
	mu    *sync.Mutex
}

func (c *Class) instantiate(ctx context.Context) (*com.Unknown, error) {
	mod, err := c.runtime.InstantiateModule(ctx, c.compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return nil, fmt.Errorf("instantiate guest: %w", err)
	}

	g := &guest{class: c, mod: mod}
	b := object.New(g).
		Implement(IID_IInvoker, &guestVtbl.UnknownVtbl).
		OnDestroy(func() {
			if err := mod.Close(context.Background()); err != nil {
				Logger().Warn("guest close failed", zap.Error(err))
			}
		})
	if c.model != apartment.ThreadingApartment {
		g.mu = &sync.Mutex{}
		b = b.Agile()
	}
	return b.Build(), nil
}
