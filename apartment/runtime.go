package apartment

import (
	"context"
	"sync"
	"sync/atomic"
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/mcom/com"
	"github.com/wippyai/mcom/errors"
	"github.com/wippyai/mcom/hresult"
	"github.com/wippyai/mcom/resource"
)

const (
	methodCoRegisterClassObject = "CoRegisterClassObject"
	methodCoRevokeClassObject   = "CoRevokeClassObject"
	methodProcessLocal          = "Runtime.ProcessLocal"
)

// ThreadingModel states which apartments may host a class's objects.
type ThreadingModel int

const (
	// ThreadingApartment objects live in an STA and must be created from one.
	ThreadingApartment ThreadingModel = iota

	// ThreadingFree objects are free-threaded.
	ThreadingFree

	// ThreadingBoth objects live in whichever apartment creates them.
	ThreadingBoth
)

func (m ThreadingModel) String() string {
	switch m {
	case ThreadingApartment:
		return "Apartment"
	case ThreadingFree:
		return "Free"
	case ThreadingBoth:
		return "Both"
	default:
		return "Unknown"
	}
}

// Factory creates an object and returns its identity interface holding one
// reference. ctx is bound to the apartment the object will live in.
type Factory func(ctx context.Context) (*com.Unknown, hresult.HRESULT)

type class struct {
	model   ThreadingModel
	factory Factory
}

// Runtime hosts apartments, registered classes, global interface tables and
// agile references. It implements com.Runtime.
type Runtime struct {
	log          *zap.Logger
	processTable bool

	mu         sync.Mutex
	classes    map[com.CLSID]*class
	marshalers map[com.IID]ProxyFactory
	mta        *Apartment
	closed     bool

	processMu    sync.Mutex
	process      map[any]com.Releaser
	processOrder []any

	cookies *resource.Table[*registration]
	nextID  atomic.Uint64

	obsMu     sync.RWMutex
	observers map[uint64]Observer
	nextObs   uint64
}

var _ com.Runtime = (*Runtime)(nil)

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the runtime's logger.
func WithLogger(l *zap.Logger) Option {
	return func(rt *Runtime) {
		rt.log = l
	}
}

// WithProcessTable enables or disables the runtime-wide global interface
// table class. It is enabled by default.
func WithProcessTable(enabled bool) Option {
	return func(rt *Runtime) {
		rt.processTable = enabled
	}
}

// WithMarshaler registers a proxy factory for iid.
func WithMarshaler(iid com.IID, f ProxyFactory) Option {
	return func(rt *Runtime) {
		rt.marshalers[iid] = f
	}
}

// New creates a runtime with the built-in table classes registered.
func New(opts ...Option) *Runtime {
	rt := &Runtime{
		log:          Logger(),
		processTable: true,
		classes:      make(map[com.CLSID]*class),
		marshalers:   make(map[com.IID]ProxyFactory),
		process:      make(map[any]com.Releaser),
		cookies:      resource.NewTable[*registration](),
		observers:    make(map[uint64]Observer),
	}
	for _, opt := range opts {
		opt(rt)
	}

	rt.classes[com.CLSID_StdGlobalInterfaceTable] = &class{
		model:   ThreadingBoth,
		factory: rt.newStdTable,
	}
	if rt.processTable {
		rt.classes[com.CLSID_ProcessGlobalInterfaceTable] = &class{
			model:   ThreadingBoth,
			factory: rt.newProcessTable,
		}
	}

	rt.cookies.Subscribe(resource.ObserverFunc(func(e resource.Event) {
		rt.log.Debug("cookie table",
			zap.Stringer("event", e.Type),
			zap.Uint32("cookie", uint32(e.Cookie)),
			zap.Int("live", rt.cookies.Len()))
	}))
	return rt
}

func (rt *Runtime) isClosed() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.closed
}

// Close releases runtime-wide values and drops every remaining table
// registration. Apartments still open are left to their owners.
func (rt *Runtime) Close() error {
	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		return nil
	}
	rt.closed = true
	rt.mu.Unlock()

	rt.processMu.Lock()
	process, order := rt.process, rt.processOrder
	rt.process, rt.processOrder = nil, nil
	rt.processMu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		process[order[i]].Release()
	}

	return rt.cookies.Close()
}

// RegisterClass makes clsid creatable.
func (rt *Runtime) RegisterClass(clsid com.CLSID, model ThreadingModel, factory Factory) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if _, ok := rt.classes[clsid]; ok {
		return errors.New(methodCoRegisterClassObject, hresult.E_INVALIDARG).
			Detail("class " + clsid.String() + " already registered").
			Build()
	}
	rt.classes[clsid] = &class{model: model, factory: factory}
	rt.log.Debug("class registered",
		zap.Stringer("clsid", clsid),
		zap.Stringer("model", model))
	return nil
}

// RevokeClass removes a class registration. Existing objects are not
// affected.
func (rt *Runtime) RevokeClass(clsid com.CLSID) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if _, ok := rt.classes[clsid]; !ok {
		return errors.Unchecked(methodCoRevokeClassObject, hresult.REGDB_E_CLASSNOTREG)
	}
	delete(rt.classes, clsid)
	return nil
}

// RegisterMarshaler installs the proxy factory used to hand iid interfaces
// to foreign apartments. It replaces any earlier factory for iid.
func (rt *Runtime) RegisterMarshaler(iid com.IID, f ProxyFactory) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.marshalers[iid] = f
}

func (rt *Runtime) marshaler(iid com.IID) ProxyFactory {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.marshalers[iid]
}

func (rt *Runtime) newSTA(init Init) (*Apartment, error) {
	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		return nil, errors.New(methodCoInitializeEx, hresult.E_UNEXPECTED).Detail("runtime closed").Build()
	}
	a := rt.newApartment(STA, init)
	a.users = 1
	rt.mu.Unlock()

	rt.enter(a)
	return a, nil
}

func (rt *Runtime) acquireMTA(init Init) (*Apartment, error) {
	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		return nil, errors.New(methodCoInitializeEx, hresult.E_UNEXPECTED).Detail("runtime closed").Build()
	}
	created := false
	if rt.mta == nil {
		rt.mta = rt.newApartment(MTA, init)
		created = true
	}
	a := rt.mta
	a.users++
	rt.mu.Unlock()

	if created {
		rt.enter(a)
	}
	return a, nil
}

// newApartment is called with rt.mu held.
func (rt *Runtime) newApartment(kind Kind, init Init) *Apartment {
	return &Apartment{
		rt:     rt,
		id:     rt.nextID.Add(1),
		kind:   kind,
		init:   init,
		wake:   make(chan struct{}, 1),
		locals: make(map[any]com.Releaser),
	}
}

func (rt *Runtime) enter(a *Apartment) {
	rt.log.Debug("apartment entered",
		zap.Uint64("apartment", a.id),
		zap.Stringer("kind", a.kind),
		zap.Stringer("init", a.init))
	rt.emit(Event{Type: EventApartmentEnter, Apartment: a.id, Kind: a.kind})
}

func (rt *Runtime) retain(a *Apartment) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if a.users == 0 {
		return errors.New(methodCoInitializeEx, hresult.E_UNEXPECTED).Detail("apartment closed").Build()
	}
	a.users++
	return nil
}

func (rt *Runtime) release(a *Apartment) {
	rt.mu.Lock()
	if a.users == 0 {
		rt.mu.Unlock()
		return
	}
	a.users--
	last := a.users == 0
	if last && rt.mta == a {
		rt.mta = nil
	}
	rt.mu.Unlock()

	if last {
		a.close()
	}
}

// apartmentOf returns the live apartment of this runtime bound to ctx.
func (rt *Runtime) apartmentOf(ctx context.Context) (*Apartment, hresult.HRESULT) {
	a := FromContext(ctx)
	if a == nil || a.rt != rt || a.Closed() {
		return nil, hresult.CO_E_NOTINITIALIZED
	}
	return a, hresult.S_OK
}

func (rt *Runtime) construct(ctx context.Context, a *Apartment, clsid *com.CLSID, outer *com.Unknown, clsctx com.ClsCtx) (*com.Unknown, hresult.HRESULT) {
	if clsid == nil {
		return nil, hresult.E_INVALIDARG
	}
	if clsctx&com.ClsCtxInprocServer == 0 {
		return nil, hresult.REGDB_E_CLASSNOTREG
	}

	rt.mu.Lock()
	c := rt.classes[*clsid]
	rt.mu.Unlock()
	if c == nil {
		return nil, hresult.REGDB_E_CLASSNOTREG
	}
	if outer != nil {
		return nil, hresult.CLASS_E_NOAGGREGATION
	}
	if c.model == ThreadingApartment && a.kind != STA {
		return nil, hresult.CO_E_NOT_SUPPORTED
	}

	unk, hr := c.factory(ctx)
	if hresult.Failed(hr) {
		return nil, hr
	}
	if unk == nil {
		return nil, hresult.E_POINTER
	}
	return unk, hresult.S_OK
}

// CreateInstance implements com.Runtime.
func (rt *Runtime) CreateInstance(ctx context.Context, clsid *com.CLSID, outer *com.Unknown, clsctx com.ClsCtx, iid *com.IID) (unsafe.Pointer, hresult.HRESULT) {
	a, hr := rt.apartmentOf(ctx)
	if hresult.Failed(hr) {
		return nil, hr
	}
	if iid == nil {
		return nil, hresult.E_INVALIDARG
	}

	unk, hr := rt.construct(ctx, a, clsid, outer, clsctx)
	if hresult.Failed(hr) {
		rt.emit(Event{Type: EventCreate, Apartment: a.id, Kind: a.kind, CLSID: deref(clsid), IID: *iid, Status: hr})
		return nil, hr
	}

	var out unsafe.Pointer
	hr = unk.QueryInterface(iid, &out)
	unk.Release()

	rt.emit(Event{Type: EventCreate, Apartment: a.id, Kind: a.kind, CLSID: *clsid, IID: *iid, Status: hr})
	if hresult.Failed(hr) {
		return nil, hr
	}
	return out, hr
}

// CreateInstanceFromApp implements com.Runtime. It reports S_OK when every
// entry succeeded, CO_S_NOTALLINTERFACES when some did and E_NOINTERFACE
// when none did.
func (rt *Runtime) CreateInstanceFromApp(ctx context.Context, clsid *com.CLSID, outer *com.Unknown, clsctx com.ClsCtx, reserved unsafe.Pointer, count uint32, results []com.MultiQI) hresult.HRESULT {
	a, hr := rt.apartmentOf(ctx)
	if hresult.Failed(hr) {
		return hr
	}
	if reserved != nil || count == 0 || uint64(count) != uint64(len(results)) {
		return hresult.E_INVALIDARG
	}

	unk, hr := rt.construct(ctx, a, clsid, outer, clsctx)
	if hresult.Failed(hr) {
		for i := range results {
			results[i].Itf = nil
			results[i].HR = hr
		}
		rt.emit(Event{Type: EventCreate, Apartment: a.id, Kind: a.kind, CLSID: deref(clsid), Status: hr})
		return hr
	}
	defer unk.Release()

	ok := 0
	for i := range results {
		r := &results[i]
		r.Itf = nil
		if r.IID == nil {
			r.HR = hresult.E_POINTER
			continue
		}
		r.HR = unk.QueryInterface(r.IID, &r.Itf)
		if hresult.Succeeded(r.HR) {
			ok++
		}
	}

	switch ok {
	case 0:
		hr = hresult.E_NOINTERFACE
	case len(results):
		hr = hresult.S_OK
	default:
		hr = hresult.CO_S_NOTALLINTERFACES
	}
	rt.emit(Event{Type: EventCreate, Apartment: a.id, Kind: a.kind, CLSID: *clsid, Status: hr})
	return hr
}

// ApartmentLocal implements com.Runtime.
func (rt *Runtime) ApartmentLocal(ctx context.Context, key any, create func() (com.Releaser, error)) (com.Releaser, error) {
	a, hr := rt.apartmentOf(ctx)
	if hresult.Failed(hr) {
		return nil, errors.Unchecked(methodApartmentLocal, hr)
	}
	return a.Local(key, create)
}

// ProcessLocal implements com.Runtime.
func (rt *Runtime) ProcessLocal(_ context.Context, key any, create func() (com.Releaser, error)) (com.Releaser, error) {
	rt.processMu.Lock()
	defer rt.processMu.Unlock()

	if rt.process == nil {
		return nil, errors.New(methodProcessLocal, hresult.CO_E_NOTINITIALIZED).
			Detail("runtime closed").
			Build()
	}
	if v, ok := rt.process[key]; ok {
		return v, nil
	}

	v, err := create()
	if err != nil {
		return nil, err
	}
	rt.process[key] = v
	rt.processOrder = append(rt.processOrder, key)
	return v, nil
}

func deref(clsid *com.CLSID) com.CLSID {
	if clsid == nil {
		return com.CLSID{}
	}
	return *clsid
}
