// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package pmitest provides utilities for testing families and the
// code that drives them. The utilities here run every rank in-process
// and are strictly intended for unit tests and examples.
package pmitest

import (
	"context"
	"fmt"
	"testing"

	"github.com/grailbio/base/log"
	"github.com/grailbio/pmi"
	"github.com/grailbio/pmi/exec"
)

// Start starts a session of the provided number of in-process ranks.
// If any active ranks are provided, native execution is restricted
// to them. Errors are reported as fatal to the provided t instance.
// The caller should shut the session down when done.
func Start(t *testing.T, ranks int, active ...int) *exec.Session {
	t.Helper()
	options := []exec.Option{exec.Local(ranks)}
	if len(active) > 0 {
		options = append(options, exec.ActiveRanks(active...))
	}
	sess, err := exec.Open(options...)
	if err != nil {
		t.Fatal(err)
	}
	return sess
}

// New constructs a distributed object of the provided family.
// Errors are reported as fatal to the provided t instance.
func New(t *testing.T, sess *exec.Session, family *pmi.Family, args ...interface{}) *exec.Proxy {
	t.Helper()
	p, err := sess.New(context.Background(), family, args...)
	if err != nil {
		t.Fatalf("new %s: %v", family.Name, err)
	}
	return p
}

// Call invokes method on the proxy's objects. Errors are reported as
// fatal to the provided t instance.
func Call(t *testing.T, p *exec.Proxy, method pmi.Method, args ...interface{}) {
	t.Helper()
	if err := p.Call(context.Background(), method, args...); err != nil {
		t.Fatalf("%s.%s: %v", p, method, err)
	}
}

// Values invokes method on the proxy's objects and returns the
// results of the active ranks, in rank order. Errors are reported as
// fatal to the provided t instance.
func Values(t *testing.T, p *exec.Proxy, method pmi.Method, args ...interface{}) []interface{} {
	t.Helper()
	values, err := p.Gather(context.Background(), method, args...)
	if err != nil {
		t.Fatalf("%s.%s: %v", p, method, err)
	}
	var active []interface{}
	for _, v := range values {
		if v.Active {
			active = append(active, v.Value)
		}
	}
	return active
}

// Converged reports a test error unless the bindings of the proxy's
// objects are identical across active ranks.
func Converged(t *testing.T, p *exec.Proxy) {
	t.Helper()
	ok, err := p.Converged(context.Background())
	if err != nil {
		t.Fatalf("%s: %v", p, err)
	}
	if !ok {
		t.Errorf("%s: bindings diverged across ranks", p)
	}
}

// Print invokes method on the proxy's objects and prints the result
// of each rank to stdout, in rank order. This is useful for examples,
// as the output is deterministic.
func Print(p *exec.Proxy, method pmi.Method, args ...interface{}) {
	values, err := p.Gather(context.Background(), method, args...)
	if err != nil {
		log.Panicf("unhandled error invoking %s.%s: %v", p, method, err)
	}
	for _, v := range values {
		if !v.Active {
			fmt.Printf("rank %d: inactive\n", v.Rank)
			continue
		}
		fmt.Printf("rank %d: %v\n", v.Rank, v.Value)
	}
}
