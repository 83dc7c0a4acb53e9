package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/wippyai/mcom/apartment"
	"github.com/wippyai/mcom/com"
	"github.com/wippyai/mcom/errors"
	"github.com/wippyai/mcom/wasmclass"
)

var clsidGuest = com.MustParseGUID("{3B7F2A90-5C1D-4E8A-B6F4-2D9E0C7A1BF0}")

type options struct {
	wasmFile string
	method   string
	args     string
	share    string
	workers  int
	rounds   int
	verbose  bool
}

func main() {
	var (
		opts        options
		interactive bool
	)
	flag.StringVar(&opts.wasmFile, "wasm", "", "Path to a core wasm module (default: built-in counter)")
	flag.StringVar(&opts.method, "method", "increment", "Guest method each worker calls")
	flag.StringVar(&opts.args, "args", "", "Method arguments (comma-separated)")
	flag.StringVar(&opts.share, "share", "agile", "How workers reach the object: agile, agile-lazy, git-process, git (workers are refused: the cookie stays in the home apartment)")
	flag.IntVar(&opts.workers, "workers", 4, "Number of worker goroutines")
	flag.IntVar(&opts.rounds, "rounds", 10, "Calls per worker")
	flag.BoolVar(&opts.verbose, "v", false, "Verbose logging")
	flag.BoolVar(&interactive, "i", false, "Interactive mode with TUI")
	flag.Parse()

	if opts.workers < 1 || opts.rounds < 0 {
		fmt.Fprintln(os.Stderr, "Usage: mcom [-wasm file.wasm] [-method name] [-args a,b] [-share agile|agile-lazy|git|git-process] [-workers n] [-rounds n]")
		fmt.Fprintln(os.Stderr, "       mcom -i  (interactive mode)")
		os.Exit(1)
	}

	log, err := newLogger(opts.verbose && !interactive)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	com.SetLogger(log.Named("com"))
	apartment.SetLogger(log.Named("apartment"))
	wasmclass.SetLogger(log.Named("wasmclass"))

	if interactive && !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(os.Stderr, "stdout is not a terminal, running without TUI")
		interactive = false
	}

	if interactive {
		err = runInteractive(opts, log)
	} else {
		err = run(opts, log, os.Stdout)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewNop(), nil
}

// host is a runtime with the guest class registered, entered as an STA on
// the calling goroutine.
type host struct {
	ctx     context.Context
	home    *apartment.Apartment
	rt      *apartment.Runtime
	wazero  wazero.Runtime
	class   *wasmclass.Class
	methods []wasmclass.Method
}

func newHost(opts options, log *zap.Logger) (*host, error) {
	ctx := context.Background()

	wasm := wasmclass.CounterModule
	if opts.wasmFile != "" {
		data, err := os.ReadFile(opts.wasmFile)
		if err != nil {
			return nil, fmt.Errorf("read file: %w", err)
		}
		wasm = data
	}

	r := wazero.NewRuntime(ctx)
	methods, err := wasmclass.Exports(ctx, r, wasm)
	if err != nil {
		r.Close(ctx)
		return nil, err
	}
	class, err := wasmclass.Compile(ctx, r, wasm, methods)
	if err != nil {
		r.Close(ctx)
		return nil, err
	}

	rt := apartment.New(apartment.WithLogger(log.Named("runtime")))
	wasmclass.RegisterMarshaler(rt)
	if err := class.Register(rt, clsidGuest); err != nil {
		rt.Close()
		r.Close(ctx)
		return nil, err
	}

	sta, _, err := apartment.EnterSTA(ctx, rt)
	if err != nil {
		rt.Close()
		r.Close(ctx)
		return nil, err
	}

	return &host{
		ctx:     sta,
		home:    apartment.FromContext(sta),
		rt:      rt,
		wazero:  r,
		class:   class,
		methods: methods,
	}, nil
}

func (h *host) Close() {
	apartment.Uninitialize(h.ctx)
	h.rt.Close()
	h.wazero.Close(context.Background())
}

func (h *host) method(name string) (wasmclass.Method, bool) {
	for _, m := range h.methods {
		if m.Name == name {
			return m, true
		}
	}
	return wasmclass.Method{}, false
}

// share hands rc to other apartments using the selected mechanism.
func share(ctx context.Context, mode string, rc *com.Rc[wasmclass.Invoker]) (com.Shared[wasmclass.Invoker], error) {
	var (
		h   com.Shared[wasmclass.Invoker]
		err error
	)
	switch mode {
	case "git":
		var g *com.Git[wasmclass.Invoker]
		if g, err = com.NewGit(ctx, rc); err == nil {
			h = g
		}
	case "git-process":
		var g *com.Git[wasmclass.Invoker]
		if g, err = com.NewGit(ctx, rc, com.WithScope(com.ScopeProcess)); err == nil {
			h = g
		}
	case "agile", "agile-lazy":
		options := com.ReferenceDefault
		if mode == "agile-lazy" {
			options = com.ReferenceDelayedMarshal
		}
		var a *com.Agile[wasmclass.Invoker]
		if a, err = com.NewAgile(ctx, options, rc); err == nil {
			h = a
		}
	default:
		err = fmt.Errorf("unknown share mode %q", mode)
	}
	return h, err
}

// run shares one guest object with opts.workers MTA workers. A worker whose
// apartment may not resolve the handle is reported, not treated as a failure.
func run(opts options, log *zap.Logger, out io.Writer) error {
	h, err := newHost(opts, log)
	if err != nil {
		return err
	}
	defer h.Close()

	m, ok := h.method(opts.method)
	if !ok {
		return fmt.Errorf("guest has no callable export %q", opts.method)
	}
	args, err := parseArgs(opts.args, m)
	if err != nil {
		return err
	}

	counts := newEventCounts()
	defer h.rt.Subscribe(counts)()

	obj, err := com.CoCreate[wasmclass.Invoker](h.ctx, &clsidGuest, nil)
	if err != nil {
		return fmt.Errorf("create guest: %w", err)
	}
	defer obj.Release()

	handle, err := share(h.ctx, opts.share, obj)
	if err != nil {
		return fmt.Errorf("share guest: %w", err)
	}
	defer handle.Release()

	fmt.Fprintf(out, "Guest: %s\n", describeModule(opts.wasmFile))
	fmt.Fprintf(out, "Sharing with %d workers via %s, %d calls each\n\n", opts.workers, opts.share, opts.rounds)

	last := make([][]any, opts.workers)
	refused := make([]error, opts.workers)
	err = h.home.PumpUntil(h.ctx, func() error {
		var eg errgroup.Group
		for w := 0; w < opts.workers; w++ {
			eg.Go(func() error {
				ctx, _, err := apartment.EnterMTA(context.Background(), h.rt)
				if err != nil {
					return err
				}
				defer apartment.Uninitialize(ctx)

				inv, err := handle.Resolve(ctx)
				if errors.IsWrongContext(err) {
					refused[w] = err
					return nil
				}
				if err != nil {
					return fmt.Errorf("worker %d: %w", w, err)
				}
				defer inv.Release()

				for i := 0; i < opts.rounds; i++ {
					res, err := inv.Get().Invoke(ctx, m.Name, args...)
					if err != nil {
						return fmt.Errorf("worker %d: %w", w, err)
					}
					last[w] = res
				}
				return nil
			})
		}
		return eg.Wait()
	})
	if err != nil {
		return err
	}

	nrefused := 0
	for w, res := range last {
		if refused[w] != nil {
			nrefused++
			fmt.Fprintf(out, "worker %d: refused: %v\n", w, refused[w])
			continue
		}
		fmt.Fprintf(out, "worker %d: last result %v\n", w, res)
	}
	if nrefused > 0 {
		fmt.Fprintf(out, "\n%d of %d workers could not reach the object from their apartment", nrefused, opts.workers)
		if opts.share == "git" {
			fmt.Fprint(out, "; apartment-scoped cookies only resolve at home, try -share git-process")
		}
		fmt.Fprintln(out)
	}
	if _, ok := h.method("get"); ok {
		res, err := obj.Get().Invoke(h.ctx, "get")
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\nfinal get(): %v\n", res)
	}

	fmt.Fprintf(out, "\nRuntime events:\n")
	counts.print(out)
	return nil
}

func describeModule(file string) string {
	if file == "" {
		return "built-in counter"
	}
	return file
}

type eventCounts struct {
	mu     sync.Mutex
	counts map[string]int
}

func newEventCounts() *eventCounts {
	return &eventCounts{counts: make(map[string]int)}
}

func (c *eventCounts) OnRuntimeEvent(e apartment.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[e.Type.String()]++
}

func (c *eventCounts) print(out io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.counts))
	for n := range c.counts {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(out, "  %-8s %d\n", n, c.counts[n])
	}
}

func parseArgs(s string, m wasmclass.Method) ([]any, error) {
	var fields []string
	if s != "" {
		fields = strings.Split(s, ",")
	}
	if len(fields) != len(m.Params) {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", m.Name, len(m.Params), len(fields))
	}
	args := make([]any, len(fields))
	for i, f := range fields {
		v, err := convertArg(strings.TrimSpace(f), m.Params[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		args[i] = v
	}
	return args, nil
}
