// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"fmt"
	"reflect"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/pmi"
	"github.com/grailbio/pmi/ctxsync"
)

// A Proxy is the controller's handle to a distributed object: a
// family of native instances, one per active rank. Every method call
// on a proxy is replicated to all ranks of the session's group and
// blocks until each has replied; inactive ranks skip the call.
//
// Calls on a single proxy are totally ordered: no two calls on the
// same proxy are in flight at once. Calls on different proxies may
// proceed concurrently. A call waiting for its turn on the proxy is
// abandoned, with the context's error, when its context is done.
type Proxy struct {
	sess   *Session
	family *pmi.Family
	handle pmi.HandleID

	mu ctxsync.Mutex
}

// A Value is the result of a replicated call on a single rank.
type Value struct {
	// Rank is the rank that produced the value.
	Rank int
	// Active tells whether the rank executed the call.
	Active bool
	// Value is the value returned by the rank's native method, or nil
	// if the rank is inactive or the method returned no value. Native
	// objects are returned as their proxies.
	Value interface{}
}

// A Fingerprint summarizes the bindings of a rank's native object.
type Fingerprint struct {
	Rank   int
	Active bool
	// Sum is the fingerprint of the bindings; it is equal across ranks
	// that hold identical bindings.
	Sum uint64
	// Bindings is the number of bindings.
	Bindings int
}

// Handle returns the proxy's handle.
func (p *Proxy) Handle() pmi.HandleID { return p.handle }

// Family returns the proxy's family.
func (p *Proxy) Family() *pmi.Family { return p.family }

// Ref returns a reference to the proxy's object, for use in
// replicated arguments.
func (p *Proxy) Ref() pmi.Ref { return pmi.Ref{Handle: p.handle} }

func (p *Proxy) String() string {
	return fmt.Sprintf("%s(%s)", p.handle, p.family.Name)
}

// Call invokes the provided method on every active rank's native
// object, discarding any results. Call returns an error if the
// method is not part of the proxy's family, or if any rank failed.
func (p *Proxy) Call(ctx context.Context, method pmi.Method, args ...interface{}) error {
	_, err := p.Gather(ctx, method, args...)
	return err
}

// Query invokes the provided method on every active rank's native
// object, and returns the controller's (rank 0's) result. Query
// reports ok=false if rank 0 is inactive or its method produced no
// value; this is not an error.
func (p *Proxy) Query(ctx context.Context, method pmi.Method, args ...interface{}) (value interface{}, ok bool, err error) {
	values, err := p.Gather(ctx, method, args...)
	if err != nil {
		return nil, false, err
	}
	v := values[0]
	return v.Value, v.Active && v.Value != nil, nil
}

// Gather invokes the provided method on every active rank's native
// object, and returns the result of every rank, indexed by rank.
func (p *Proxy) Gather(ctx context.Context, method pmi.Method, args ...interface{}) ([]Value, error) {
	if !p.family.Has(method) {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("%s: family %s has no method %s", p.handle, p.family.Name, method))
	}
	if got, want := len(args), p.family.NumMethodIn(method); got != want {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("%s.%s: takes %d arguments, got %d", p.handle, method, want, got))
	}
	wire, err := p.sess.wire(args)
	if err != nil {
		return nil, errors.E(fmt.Sprintf("%s.%s", p.handle, method), err)
	}
	req := invokeRequest{Handle: p.handle, Method: method, Args: wire}
	replies := make([]callReply, p.sess.group.Size())
	if err := p.mu.Lock(ctx); err != nil {
		return nil, err
	}
	err = p.sess.replicate(ctx, p.sess.newCall(p.handle, string(method)), "Worker.Invoke", false,
		func(int) interface{} { return req },
		func(rank int) interface{} { return &replies[rank] })
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	values := make([]Value, len(replies))
	for rank, reply := range replies {
		values[rank] = Value{Rank: rank, Active: reply.Active, Value: p.sess.unwire(reply.Value)}
	}
	return values, nil
}

// Reduce invokes the provided method on every active rank's native
// object, and combines their numeric results with op. Reduce returns
// op's identity if no rank is active.
func (p *Proxy) Reduce(ctx context.Context, op pmi.ReduceOp, method pmi.Method, args ...interface{}) (float64, error) {
	values, err := p.Gather(ctx, method, args...)
	if err != nil {
		return 0, err
	}
	acc := op.Init()
	for _, v := range values {
		if !v.Active {
			continue
		}
		f, ok := toFloat(v.Value)
		if !ok {
			return 0, errors.E(errors.Invalid, fmt.Sprintf("%s.%s: rank %d: cannot %s value of type %T", p.handle, method, v.Rank, op, v.Value))
		}
		acc = op.Apply(acc, f)
	}
	return acc, nil
}

func toFloat(v interface{}) (float64, bool) {
	if v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// Fingerprints returns the fingerprint of every rank's bindings,
// indexed by rank. The proxy's native objects must implement
// pmi.Binder.
func (p *Proxy) Fingerprints(ctx context.Context) ([]Fingerprint, error) {
	replies := make([]fingerprintReply, p.sess.group.Size())
	if err := p.mu.Lock(ctx); err != nil {
		return nil, err
	}
	err := p.sess.replicate(ctx, p.sess.newCall(p.handle, "Fingerprint"), "Worker.Fingerprint", true,
		func(int) interface{} { return p.handle },
		func(rank int) interface{} { return &replies[rank] })
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	fps := make([]Fingerprint, len(replies))
	for rank, reply := range replies {
		fps[rank] = Fingerprint{
			Rank:     rank,
			Active:   reply.Active,
			Sum:      reply.Fingerprint,
			Bindings: reply.Bindings,
		}
	}
	return fps, nil
}

// Converged tells whether every active rank holds identical
// bindings, i.e., whether the replicated mutations made on the proxy
// have converged.
func (p *Proxy) Converged(ctx context.Context) (bool, error) {
	fps, err := p.Fingerprints(ctx)
	if err != nil {
		return false, err
	}
	var first *Fingerprint
	for i := range fps {
		if !fps[i].Active {
			continue
		}
		if first == nil {
			first = &fps[i]
			continue
		}
		if fps[i].Sum != first.Sum || fps[i].Bindings != first.Bindings {
			return false, nil
		}
	}
	return true, nil
}

// Close releases the proxy's native objects on every rank. The proxy
// may not be used after Close.
func (p *Proxy) Close(ctx context.Context) error {
	if err := p.mu.Lock(ctx); err != nil {
		return err
	}
	err := p.sess.replicate(ctx, p.sess.newCall(p.handle, "Close"), "Worker.Release", true,
		func(int) interface{} { return p.handle },
		func(int) interface{} { return new(struct{}) })
	p.mu.Unlock()
	if err != nil {
		return err
	}
	p.sess.mu.Lock()
	delete(p.sess.proxies, p.handle)
	p.sess.mu.Unlock()
	return nil
}
