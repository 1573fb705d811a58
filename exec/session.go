// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/grailbio/base/backgroundcontext"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/eventlog"
	"github.com/grailbio/base/limiter"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigmachine"
	"github.com/grailbio/pmi"
	"github.com/grailbio/pmi/stats"
)

// Session represents a parallel method invocation session: a compute
// group of ranks served by an executor, and an optional active
// subgroup of ranks that execute native operations. A session is
// valid for the run of the binary.
//
// A session is started by the Start method. Some executors may launch
// multiple copies of the binary: these additional binaries are
// called workers and Start in these workers does not return.
//
// Families must be registered before Start is called, identically in
// every binary. This is provided by default when families are
// registered as part of package initialization:
//
//	var Counter = pmi.Register(pmi.Family{
//		Name: "example.Counter",
//		New:  NewCounter,
//		Methods: map[pmi.Method]string{"Add": "Add"},
//	})
//
//	func main() {
//		sess := exec.Start(exec.Local(4), exec.ActiveRanks(0, 1))
//		defer sess.Shutdown()
//		counter, err := sess.New(ctx, Counter)
//		...
//		if err := counter.Call(ctx, "Add", 1); err != nil {
//			log.Fatal(err)
//		}
//	}
type Session struct {
	context.Context
	shutdown  func()
	executor  Executor
	group     pmi.Group
	active    *pmi.Subgroup
	maxFanout int
	fanout    *limiter.Limiter
	status    *status.Status
	calls     *status.Group
	eventer   eventlog.Eventer
	tracePath string

	// activeRanks are the ranks configured by ActiveRanks; they are
	// validated against the group when the session is started.
	activeRanks []int
	restricted  bool

	tracer *tracer

	seq, nextHandle uint64

	mu      sync.Mutex
	proxies map[pmi.HandleID]*Proxy
}

func newSession() *Session {
	return &Session{
		Context: backgroundcontext.Get(),
		eventer: eventlog.Nop{},
		proxies: make(map[pmi.HandleID]*Proxy),
	}
}

// An Option represents a session configuration parameter value.
type Option func(s *Session)

// Local configures a session with the local in-binary executor,
// running n ranks.
func Local(n int) Option {
	return func(s *Session) {
		s.executor = newLocalExecutor(n)
	}
}

// Bigmachine configures a session using the bigmachine executor
// configured with the provided system, running each of n ranks on
// its own machine. If any params are provided, they are applied to
// each machine.
func Bigmachine(system bigmachine.System, n int, params ...bigmachine.Param) Option {
	return func(s *Session) {
		s.executor = newBigmachineExecutor(system, n, params...)
	}
}

// ActiveRanks restricts native execution to the provided ranks. By
// default, every rank of the group is active. The ranks must lie
// within the group; Start fails otherwise.
func ActiveRanks(ranks ...int) Option {
	return func(s *Session) {
		s.activeRanks = append([]int(nil), ranks...)
		s.restricted = true
	}
}

// MaxFanout bounds the number of ranks to which a single replicated
// call is delivered concurrently. By default, calls are delivered to
// every rank at once.
func MaxFanout(n int) Option {
	if n <= 0 {
		panic("exec.MaxFanout: n <= 0")
	}
	return func(s *Session) {
		s.maxFanout = n
	}
}

// Status configures the session with a status object to which
// replicated call statuses are reported.
func Status(status *status.Status) Option {
	return func(s *Session) {
		s.status = status
	}
}

// Eventer configures the session with an Eventer that will be used to log
// session events (for analytics).
func Eventer(e eventlog.Eventer) Option {
	return func(s *Session) {
		s.eventer = e
	}
}

// TracePath configures the path to which a trace event file for the session
// will be written on shutdown.
func TracePath(path string) Option {
	return func(s *Session) {
		s.tracePath = path
	}
}

// Open creates and starts a new session, configuring it according to
// the provided options. If no executor is configured, the session
// runs a single rank with the bigmachine executor. Open returns an
// errors.Invalid error if the configured group or active subgroup is
// invalid; such a session cannot be started.
func Open(options ...Option) (*Session, error) {
	s := newSession()
	for _, opt := range options {
		opt(s)
	}
	if s.executor == nil {
		s.executor = newBigmachineExecutor(bigmachine.Local, 1)
	}
	if err := s.start(); err != nil {
		return nil, err
	}
	return s, nil
}

// Start is like Open, but panics if the session cannot be started.
// Group configuration errors are not recoverable.
func Start(options ...Option) *Session {
	s, err := Open(options...)
	if err != nil {
		log.Panicf("exec.Start: %v", err)
	}
	return s
}

func (s *Session) start() error {
	var err error
	s.group, err = pmi.NewGroup(s.executor.Ranks())
	if err != nil {
		return err
	}
	if s.restricted {
		s.active, err = pmi.NewSubgroup(s.group, s.activeRanks...)
		if err != nil {
			return err
		}
	}
	if s.maxFanout > 0 {
		s.fanout = limiter.New()
		s.fanout.Release(s.maxFanout)
	}
	if s.status != nil {
		s.calls = s.status.Group("pmi calls")
	}
	s.tracer = newTracer()
	s.shutdown, err = s.executor.Start(s)
	if err != nil {
		return errors.E(fmt.Sprintf("starting %s executor", s.executor.Name()), err)
	}
	if err := s.configure(s.Context); err != nil {
		s.shutdown()
		return err
	}
	log.Printf("pmi: started %s session of %d ranks, active %s", s.executor.Name(), s.group.Size(), s.active)
	s.eventer.Event("pmi:sessionStart",
		"executorType", s.executor.Name(),
		"ranks", s.group.Size(),
		"activeRanks", s.active.String(),
		"maxFanout", s.maxFanout)
	return nil
}

// Configure assigns each worker its rank and distributes the active
// subgroup.
func (s *Session) configure(ctx context.Context) error {
	c := s.newCall(0, "Configure")
	return s.replicate(ctx, c, "Worker.Configure", true,
		func(rank int) interface{} {
			return configureRequest{Rank: rank, Size: s.group.Size(), Active: s.active}
		},
		func(int) interface{} { return new(struct{}) })
}

// New constructs a new distributed object of the provided family.
// The constructor is replicated to every rank; each active rank
// constructs its own native instance from the provided arguments.
// Arguments that are proxies are delivered by reference and resolved
// to each rank's native instance. New returns a proxy through which
// the object's methods are invoked.
//
// Construction is not rolled back: if it fails on some ranks, the
// error of the lowest failing rank is returned, and the natives
// constructed by other ranks remain until the session is shut down.
func (s *Session) New(ctx context.Context, family *pmi.Family, args ...interface{}) (*Proxy, error) {
	if family == nil {
		return nil, errors.E(errors.Invalid, "exec.New: nil family")
	}
	if _, ok := pmi.Lookup(family.Name); !ok {
		return nil, errors.E(errors.NotExist, fmt.Sprintf("exec.New: family %s is not registered", family.Name))
	}
	if got, want := len(args), family.NumIn(); got != want {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("exec.New %s: constructor takes %d arguments, got %d", family.Name, want, got))
	}
	wire, err := s.wire(args)
	if err != nil {
		return nil, errors.E(fmt.Sprintf("exec.New %s", family.Name), err)
	}
	p := &Proxy{
		sess:   s,
		family: family,
		handle: pmi.HandleID(atomic.AddUint64(&s.nextHandle, 1)),
	}
	// The proxy is locked before it is published, so this never blocks.
	if err := p.mu.Lock(ctx); err != nil {
		return nil, err
	}
	defer p.mu.Unlock()
	s.mu.Lock()
	s.proxies[p.handle] = p
	s.mu.Unlock()
	req := constructRequest{Handle: p.handle, Family: family.Name, Args: wire}
	err = s.replicate(ctx, s.newCall(p.handle, "New"), "Worker.Construct", true,
		func(int) interface{} { return req },
		func(int) interface{} { return new(callReply) })
	if err != nil {
		s.mu.Lock()
		delete(s.proxies, p.handle)
		s.mu.Unlock()
		return nil, err
	}
	s.eventer.Event("pmi:construct",
		"family", family.Name,
		"variant", family.Variant.String(),
		"handle", uint64(p.handle))
	return p, nil
}

// Wire translates proxy arguments into references.
func (s *Session) wire(args []interface{}) ([]interface{}, error) {
	wire := make([]interface{}, len(args))
	for i, arg := range args {
		switch arg := arg.(type) {
		case *Proxy:
			if arg == nil || arg.sess != s {
				return nil, errors.E(errors.Invalid, fmt.Sprintf("argument %d: proxy %v does not belong to this session", i, arg))
			}
			wire[i] = arg.Ref()
		case pmi.Ref:
			if s.proxy(arg.Handle) == nil {
				return nil, errors.E(errors.NotExist, fmt.Sprintf("argument %d: unknown handle %s", i, arg.Handle))
			}
			wire[i] = arg
		default:
			wire[i] = arg
		}
	}
	return wire, nil
}

// Proxy returns the proxy of the provided handle, or nil if there is
// none.
func (s *Session) proxy(handle pmi.HandleID) *Proxy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proxies[handle]
}

// Unwire translates references in a rank's result into proxies.
func (s *Session) unwire(v interface{}) interface{} {
	ref, ok := v.(pmi.Ref)
	if !ok {
		return v
	}
	if p := s.proxy(ref.Handle); p != nil {
		return p
	}
	return ref
}

func (s *Session) newCall(handle pmi.HandleID, method string) call {
	return call{Seq: atomic.AddUint64(&s.seq, 1), Handle: handle, Method: method}
}

// Group returns the session's compute group.
func (s *Session) Group() pmi.Group {
	return s.group
}

// Active returns the session's active subgroup, or nil if every rank
// is active.
func (s *Session) Active() *pmi.Subgroup {
	return s.active
}

// Executor returns the name of the session's executor.
func (s *Session) Executor() string {
	return s.executor.Name()
}

// Status returns the session's status aggregator.
func (s *Session) Status() *status.Status {
	return s.status
}

// Proxies returns the session's live proxies, ordered by handle.
func (s *Session) Proxies() []*Proxy {
	s.mu.Lock()
	proxies := make([]*Proxy, 0, len(s.proxies))
	for _, p := range s.proxies {
		proxies = append(proxies, p)
	}
	s.mu.Unlock()
	sort.Slice(proxies, func(i, j int) bool { return proxies[i].handle < proxies[j].handle })
	return proxies
}

// Stats returns the counters of every rank's worker, indexed by
// rank.
func (s *Session) Stats(ctx context.Context) ([]stats.Values, error) {
	values := make([]stats.Values, s.group.Size())
	err := s.replicate(ctx, s.newCall(0, "Stats"), "Worker.Stats", true,
		func(int) interface{} { return struct{}{} },
		func(rank int) interface{} { return &values[rank] })
	return values, err
}

// Shutdown tears down resources associated with this session.
// It should be called when the session is discarded.
func (s *Session) Shutdown() {
	if s.shutdown != nil {
		s.shutdown()
	}
	if s.tracePath != "" {
		writeTraceFile(s.tracer, s.tracePath)
	}
	s.eventer.Event("pmi:sessionShutdown", "handles", atomic.LoadUint64(&s.nextHandle))
}

// HandleDebug registers the session's debug handlers, along with
// those of its executor, on the provided mux.
func (s *Session) HandleDebug(handler *http.ServeMux) {
	s.executor.HandleDebug(handler)
	handler.HandleFunc("/debug/handles", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("content-type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "%s executor, %d ranks, active %s\n", s.executor.Name(), s.group.Size(), s.active)
		for _, p := range s.Proxies() {
			fmt.Fprintln(w, p)
		}
	})
	if s.tracer != nil {
		handler.HandleFunc("/debug/trace", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("content-type", "application/json; charset=utf-8")
			if err := s.tracer.Marshal(w); err != nil {
				log.Error.Printf("exec.Session: /debug/trace: marshal: %v", err)
			}
		})
	}
}

func writeTraceFile(tracer *tracer, path string) {
	w, err := os.Create(path)
	if err != nil {
		log.Error.Printf("error creating trace file at %q: %v", path, err)
		return
	}
	defer func() {
		if closeErr := w.Close(); closeErr != nil {
			log.Error.Printf("error closing trace file at %q: %v", path, closeErr)
			return
		}
	}()
	err = tracer.Marshal(w)
	if err != nil {
		log.Error.Printf("error marshaling to trace file at %q: %v", path, err)
		return
	}
}
