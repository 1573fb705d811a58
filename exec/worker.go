// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/bigmachine"
	"github.com/grailbio/pmi"
	"github.com/grailbio/pmi/stats"
	"github.com/spaolacci/murmur3"
)

func init() {
	gob.Register(&worker{})
}

// ConfigureRequest assigns a worker its place in the compute group.
type configureRequest struct {
	Rank, Size int
	// Active is the session's active subgroup; nil if every rank is
	// active.
	Active *pmi.Subgroup
}

// ConstructRequest requests the construction of a native object.
type constructRequest struct {
	Handle pmi.HandleID
	Family string
	Args   []interface{}
}

// InvokeRequest requests the invocation of a method on a native
// object.
type invokeRequest struct {
	Handle pmi.HandleID
	Method pmi.Method
	Args   []interface{}
}

// CallReply is the reply to a gated request.
type callReply struct {
	// Active tells whether the request was executed; it is false if
	// the rank is not a member of the active subgroup.
	Active bool
	// Value is the result of a query, or nil if it produced none.
	// Native objects are replaced by their references.
	Value interface{}
}

// FingerprintReply carries the fingerprint of a native object's
// bindings.
type fingerprintReply struct {
	Active      bool
	Fingerprint uint64
	Bindings    int
}

// A native is a rank-local object together with its family.
type native struct {
	family *pmi.Family
	value  interface{}
}

// A worker is the service, run by every rank, that holds the rank's
// native objects. The worker consults the subgroup gate before every
// construction and invocation: requests on inactive ranks are
// skipped and report no value.
type worker struct {
	// Exported just satisfies gob's persnickety nature: we need at least
	// one exported field.
	Exported struct{}

	b *bigmachine.B

	mu         sync.Mutex
	configured bool
	rank, size int
	active     *pmi.Subgroup
	natives    map[pmi.HandleID]native
	// handles maps native values back to their handles so that
	// results may be returned by reference.
	handles    map[interface{}]pmi.HandleID
	constructs onceMap

	// exec serializes native execution: a rank runs a single thread of
	// control over its natives.
	exec sync.Mutex

	stats *stats.Map
}

func newWorker() *worker {
	w := new(worker)
	if err := w.Init(nil); err != nil {
		log.Panicf("exec: init worker: %v", err)
	}
	return w
}

// Init implements bigmachine's service initialization.
func (w *worker) Init(b *bigmachine.B) error {
	w.b = b
	w.natives = make(map[pmi.HandleID]native)
	w.handles = make(map[interface{}]pmi.HandleID)
	w.stats = stats.NewMap()
	return nil
}

// Configure sets the worker's rank, group size and active subgroup.
// Configure is idempotent; a worker cannot be reassigned to a
// different rank.
func (w *worker) Configure(ctx context.Context, req configureRequest, _ *struct{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.configured && w.rank != req.Rank {
		return errors.E(errors.Precondition, fmt.Sprintf("worker already configured as rank %d, got rank %d", w.rank, req.Rank))
	}
	if req.Rank < 0 || req.Rank >= req.Size {
		return errors.E(errors.Invalid, fmt.Sprintf("rank %d is outside of the compute group of size %d", req.Rank, req.Size))
	}
	w.configured = true
	w.rank, w.size, w.active = req.Rank, req.Size, req.Active
	log.Debug.Printf("worker configured: rank %d/%d active %s", w.rank, w.size, w.active)
	return nil
}

// gate returns whether the worker's rank is active. It returns an
// error if the worker has not been configured.
func (w *worker) gate() (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.configured {
		return false, errors.E(errors.Precondition, "worker is not configured")
	}
	active := pmi.IsActive(w.rank, w.active)
	if !active {
		w.stats.Int("skipped").Add(1)
	}
	return active, nil
}

// Construct constructs the native object of the requested handle,
// if the worker's rank is active. Construct is idempotent: each
// handle is constructed at most once, and repeated requests return
// the outcome of the first.
func (w *worker) Construct(ctx context.Context, req constructRequest, reply *callReply) error {
	active, err := w.gate()
	if err != nil || !active {
		return err
	}
	reply.Active = true
	err = w.constructs.Do(req.Handle, func() error {
		family, ok := pmi.Lookup(req.Family)
		if !ok {
			return errors.E(errors.NotExist, fmt.Sprintf("family %s is not registered", req.Family))
		}
		args, err := w.resolve(req.Args)
		if err != nil {
			return err
		}
		w.mu.Lock()
		env := pmi.Env{Rank: w.rank, Size: w.size}
		w.mu.Unlock()
		w.exec.Lock()
		value, err := family.Construct(env, args)
		w.exec.Unlock()
		if err != nil {
			return err
		}
		w.mu.Lock()
		w.natives[req.Handle] = native{family, value}
		if isRef(value) {
			w.handles[value] = req.Handle
		}
		w.mu.Unlock()
		w.stats.Int("natives").Add(1)
		return nil
	})
	if err != nil {
		w.stats.Int("errors").Add(1)
	}
	return err
}

// Invoke invokes the requested method on the native object of the
// requested handle, if the worker's rank is active.
func (w *worker) Invoke(ctx context.Context, req invokeRequest, reply *callReply) error {
	active, err := w.gate()
	if err != nil || !active {
		return err
	}
	reply.Active = true
	n, err := w.lookup(req.Handle)
	if err != nil {
		w.stats.Int("errors").Add(1)
		return err
	}
	args, err := w.resolve(req.Args)
	if err != nil {
		w.stats.Int("errors").Add(1)
		return err
	}
	w.exec.Lock()
	value, err := n.family.Invoke(n.value, req.Method, args)
	w.exec.Unlock()
	w.stats.Int("calls").Add(1)
	if err != nil {
		w.stats.Int("errors").Add(1)
		return err
	}
	reply.Value = w.ref(value)
	return nil
}

// Release discards the native object of the provided handle.
// Releasing an unknown handle is a no-op. Releasing a handle whose
// construction failed allows it to be constructed again.
func (w *worker) Release(ctx context.Context, handle pmi.HandleID, _ *struct{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	n, ok := w.natives[handle]
	if !ok {
		w.constructs.Forget(handle)
		return nil
	}
	delete(w.natives, handle)
	if isRef(n.value) && w.handles[n.value] == handle {
		delete(w.handles, n.value)
	}
	w.constructs.Forget(handle)
	w.stats.Int("natives").Add(-1)
	return nil
}

// Fingerprint computes a fingerprint of the bindings of the native
// object of the provided handle, if the worker's rank is active.
// Natives bound by reference contribute their handle, so that
// fingerprints are comparable across ranks.
func (w *worker) Fingerprint(ctx context.Context, handle pmi.HandleID, reply *fingerprintReply) error {
	active, err := w.gate()
	if err != nil || !active {
		return err
	}
	reply.Active = true
	n, err := w.lookup(handle)
	if err != nil {
		return err
	}
	binder, ok := n.value.(pmi.Binder)
	if !ok {
		return errors.E(errors.Invalid, fmt.Sprintf("%s: %s does not report bindings", handle, n.family.Name))
	}
	w.exec.Lock()
	bindings := binder.Bindings()
	w.exec.Unlock()
	reply.Fingerprint = w.fingerprint(bindings)
	reply.Bindings = len(bindings)
	return nil
}

// Stats returns the worker's counters.
func (w *worker) Stats(ctx context.Context, _ struct{}, values *stats.Values) error {
	*values = make(stats.Values)
	w.stats.AddAll(*values)
	return nil
}

func (w *worker) lookup(handle pmi.HandleID) (native, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n, ok := w.natives[handle]
	switch {
	case ok:
		return n, nil
	case w.constructs.Done(handle):
		return native{}, errors.E(errors.Precondition, fmt.Sprintf("construction of %s failed on rank %d", handle, w.rank))
	default:
		return native{}, errors.E(errors.NotExist, fmt.Sprintf("%s is not constructed on rank %d", handle, w.rank))
	}
}

// resolve replaces references in args with the rank's native
// objects.
func (w *worker) resolve(args []interface{}) ([]interface{}, error) {
	resolved := make([]interface{}, len(args))
	for i, arg := range args {
		ref, ok := arg.(pmi.Ref)
		if !ok {
			resolved[i] = arg
			continue
		}
		n, err := w.lookup(ref.Handle)
		if err != nil {
			return nil, errors.E(fmt.Sprintf("argument %d", i), err)
		}
		resolved[i] = n.value
	}
	return resolved, nil
}

// ref returns a reference to value if it is a native object of this
// worker, or else the value itself.
func (w *worker) ref(value interface{}) interface{} {
	if !isRef(value) {
		return value
	}
	if reflect.ValueOf(value).IsNil() {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if handle, ok := w.handles[value]; ok {
		return pmi.Ref{Handle: handle}
	}
	return value
}

// isRef tells whether value may be returned by reference: only
// pointers to native objects are.
func isRef(value interface{}) bool {
	return value != nil && reflect.TypeOf(value).Kind() == reflect.Ptr
}

func (w *worker) fingerprint(bindings []pmi.Binding) uint64 {
	keys := make([]string, len(bindings))
	for i, b := range bindings {
		var pot string
		switch v := w.ref(b.Potential).(type) {
		case pmi.Ref:
			pot = v.Handle.String()
		default:
			pot = fmt.Sprintf("%T:%v", v, v)
		}
		keys[i] = fmt.Sprintf("%s/%d/%d=%s", b.Slot, b.Type1, b.Type2, pot)
	}
	sort.Strings(keys)
	h := murmur3.New64()
	var n [8]byte
	for _, key := range keys {
		binary.LittleEndian.PutUint64(n[:], uint64(len(key)))
		h.Write(n[:])
		h.Write([]byte(key))
	}
	return h.Sum64()
}
