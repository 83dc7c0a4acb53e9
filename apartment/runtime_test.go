package apartment

import (
	"context"
	"testing"

	"github.com/wippyai/mcom/com"
	"github.com/wippyai/mcom/errors"
	"github.com/wippyai/mcom/hresult"
	"github.com/wippyai/mcom/object"
)

func TestCreateInstance(t *testing.T) {
	f := newFixture(t)
	sta := enterSTA(t, f.rt)
	mta := enterMTA(t, f.rt)
	unknownClass := com.NewGUID()

	tests := []struct {
		name  string
		ctx   context.Context
		clsid com.CLSID
		want  hresult.HRESULT
	}{
		{"apartment class in STA", sta, clsidCounter, hresult.S_OK},
		{"apartment class in MTA", mta, clsidCounter, hresult.CO_E_NOT_SUPPORTED},
		{"free class in MTA", mta, clsidFreeCounter, hresult.S_OK},
		{"both class in MTA", mta, clsidAgileCounter, hresult.S_OK},
		{"unregistered", sta, unknownClass, hresult.REGDB_E_CLASSNOTREG},
		{"no apartment", com.WithRuntime(context.Background(), f.rt), clsidCounter, hresult.CO_E_NOTINITIALIZED},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := com.CoCreate[ICounter](tt.ctx, &tt.clsid, nil)
			if got := errors.Code(err); got != tt.want {
				t.Fatalf("status = %s, want %s", got.Name(), tt.want.Name())
			}
			if err != nil {
				return
			}
			if n, hr := c.Get().Add(tt.ctx, 2); hr != hresult.S_OK || n != 2 {
				t.Fatalf("Add = %d, %s", n, hr.Name())
			}
			c.Release()
		})
	}
}

func TestCreateInstance_Aggregation(t *testing.T) {
	f := newFixture(t)
	ctx := enterSTA(t, f.rt)

	outer := com.FromRaw(object.New(nil).Build())
	defer outer.Release()

	_, err := com.CoCreate[ICounter](ctx, &clsidCounter, outer)
	if errors.Code(err) != hresult.CLASS_E_NOAGGREGATION {
		t.Fatalf("err = %v, want CLASS_E_NOAGGREGATION", err)
	}
}

func TestCreateInstance_ReleasesOnMissingInterface(t *testing.T) {
	f := newFixture(t)
	ctx := enterSTA(t, f.rt)

	_, err := com.CoCreate[com.GlobalInterfaceTable](ctx, &clsidCounter, nil)
	if !errors.IsNoInterface(err) {
		t.Fatalf("err = %v, want E_NOINTERFACE", err)
	}
	if !f.last[clsidCounter].destroyed {
		t.Fatal("object leaked after failed query")
	}
}

func TestCreateInstanceFromApp(t *testing.T) {
	f := newFixture(t)
	ctx := enterSTA(t, f.rt)

	iidUnknown, iidCounterCopy, iidMissing := com.IID_IUnknown, iidCounter, com.NewGUID()

	tests := []struct {
		name    string
		iids    []*com.IID
		count   uint32
		want    hresult.HRESULT
		entries []hresult.HRESULT
	}{
		{"all", []*com.IID{&iidUnknown, &iidCounterCopy}, 2, hresult.S_OK, []hresult.HRESULT{hresult.S_OK, hresult.S_OK}},
		{"some", []*com.IID{&iidCounterCopy, &iidMissing}, 2, hresult.CO_S_NOTALLINTERFACES, []hresult.HRESULT{hresult.S_OK, hresult.E_NOINTERFACE}},
		{"none", []*com.IID{&iidMissing}, 1, hresult.E_NOINTERFACE, []hresult.HRESULT{hresult.E_NOINTERFACE}},
		{"count mismatch", []*com.IID{&iidCounterCopy}, 2, hresult.E_INVALIDARG, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := make([]com.MultiQI, len(tt.iids))
			for i, iid := range tt.iids {
				results[i].IID = iid
			}

			hr := f.rt.CreateInstanceFromApp(ctx, &clsidCounter, nil, com.ClsCtxInprocServer, nil, tt.count, results)
			if hr != tt.want {
				t.Fatalf("status = %s, want %s", hr.Name(), tt.want.Name())
			}
			for i, want := range tt.entries {
				if results[i].HR != want {
					t.Errorf("entry %d = %s, want %s", i, results[i].HR.Name(), want.Name())
				}
				if hresult.Succeeded(results[i].HR) != (results[i].Itf != nil) {
					t.Errorf("entry %d pointer does not match status", i)
				}
			}
			for _, r := range results {
				if r.Itf != nil {
					com.TrustedCast[com.Unknown](r.Itf).Release()
				}
			}
			if c := f.last[clsidCounter]; tt.entries != nil && !c.destroyed {
				t.Fatal("object leaked")
			}
		})
	}
}

func TestCreateInstanceFromApp_ClassFailure(t *testing.T) {
	f := newFixture(t)
	ctx := enterSTA(t, f.rt)

	missing := com.NewGUID()
	iid := iidCounter
	results := []com.MultiQI{{IID: &iid}}
	hr := f.rt.CreateInstanceFromApp(ctx, &missing, nil, com.ClsCtxInprocServer, nil, 1, results)
	if hr != hresult.REGDB_E_CLASSNOTREG || results[0].HR != hresult.REGDB_E_CLASSNOTREG {
		t.Fatalf("status = %s, entry = %s", hr.Name(), results[0].HR.Name())
	}
}

func TestRegisterClass(t *testing.T) {
	f := newFixture(t)
	ctx := enterSTA(t, f.rt)

	factory := func(context.Context) (*com.Unknown, hresult.HRESULT) { return nil, hresult.E_FAIL }
	if err := f.rt.RegisterClass(clsidCounter, ThreadingBoth, factory); err == nil {
		t.Fatal("duplicate registration accepted")
	}

	if err := f.rt.RevokeClass(clsidCounter); err != nil {
		t.Fatalf("RevokeClass: %v", err)
	}
	if err := f.rt.RevokeClass(clsidCounter); errors.Code(err) != hresult.REGDB_E_CLASSNOTREG {
		t.Fatalf("second RevokeClass: %v", err)
	}
	if _, err := com.CoCreate[ICounter](ctx, &clsidCounter, nil); errors.Code(err) != hresult.REGDB_E_CLASSNOTREG {
		t.Fatalf("create after revoke: %v", err)
	}

	if err := f.rt.RegisterClass(clsidCounter, ThreadingBoth, factory); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if _, err := com.CoCreate[ICounter](ctx, &clsidCounter, nil); errors.Code(err) != hresult.E_FAIL {
		t.Fatalf("factory failure: %v", err)
	}
}

func TestProcessTableDisabled(t *testing.T) {
	f := newFixture(t, WithProcessTable(false))
	ctx := enterSTA(t, f.rt)

	_, err := com.CoCreate[com.GlobalInterfaceTable](ctx, &com.CLSID_ProcessGlobalInterfaceTable, nil)
	if errors.Code(err) != hresult.REGDB_E_CLASSNOTREG {
		t.Fatalf("err = %v, want REGDB_E_CLASSNOTREG", err)
	}
}

func TestClose_ReleasesProcessLocals(t *testing.T) {
	rt := New()
	released := 0
	if _, err := rt.ProcessLocal(context.Background(), "k", func() (com.Releaser, error) {
		return releaseCounter{n: &released}, nil
	}); err != nil {
		t.Fatalf("ProcessLocal: %v", err)
	}

	rt.Close()
	rt.Close()
	if released != 1 {
		t.Fatalf("released %d times, want 1", released)
	}
	if _, err := rt.ProcessLocal(context.Background(), "k", nil); !errors.IsNotInitialized(err) {
		t.Fatalf("after close: %v", err)
	}
	if _, _, err := EnterSTA(context.Background(), rt); err == nil {
		t.Fatal("Initialize succeeded on a closed runtime")
	}
}

func TestEvents_Subscribe(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{}
	cancel := f.rt.Subscribe(rec)

	ctx := enterSTA(t, f.rt)
	c := createCounter(t, ctx, clsidCounter)
	c.Release()

	cancel()
	createCounter(t, ctx, clsidCounter).Release()

	if rec.count(EventCreate) != 1 {
		t.Fatalf("create events = %d, want 1", rec.count(EventCreate))
	}
	for _, e := range rec.events {
		if e.Type == EventCreate && (e.CLSID != clsidCounter || e.IID != iidCounter) {
			t.Fatalf("create event %+v", e)
		}
	}
}

func TestEvents_ObserverResubscribes(t *testing.T) {
	f := newFixture(t)
	next := &recorder{}

	fired := 0
	var cancel func()
	cancel = f.rt.Subscribe(ObserverFunc(func(e Event) {
		if e.Type != EventCreate {
			return
		}
		fired++
		cancel()
		f.rt.Subscribe(next)
	}))

	ctx := enterSTA(t, f.rt)
	createCounter(t, ctx, clsidCounter).Release()
	createCounter(t, ctx, clsidCounter).Release()

	if fired != 1 {
		t.Fatalf("cancelled observer fired %d times, want 1", fired)
	}
	if got := next.count(EventCreate); got != 1 {
		t.Fatalf("observer added during an event saw %d creates, want 1", got)
	}
}

func TestEventType_String(t *testing.T) {
	if EventRevoke.String() != "revoke" || EventType(99).String() != "EventType(99)" {
		t.Fatal("unexpected event names")
	}
	if STA.String() != "STA" || MTA.String() != "MTA" {
		t.Fatal("unexpected kind names")
	}
	if ThreadingFree.String() != "Free" {
		t.Fatal("unexpected threading model name")
	}
}
