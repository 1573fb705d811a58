// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package pmi

import (
	"encoding/gob"
	"fmt"
	"math"
)

func init() {
	gob.Register(Ref{})
}

// A HandleID identifies a distributed object: a family of native
// instances, one per active rank, managed by a single proxy. IDs are
// assigned by the controller and are never reused within a session.
type HandleID uint64

func (h HandleID) String() string {
	return fmt.Sprintf("h%d", uint64(h))
}

// A Ref refers to a distributed object in replicated call arguments
// and results. Each rank resolves a Ref to its own native instance.
type Ref struct {
	Handle HandleID
}

// A Binding is a potential bound to a slot of an interaction.
type Binding struct {
	// Slot names the potential table, e.g., "at" or "cg".
	Slot string
	// Type1 and Type2 are the particle types the potential is bound
	// to. They are -1 for interactions with a single potential.
	Type1, Type2 int
	// Potential is the bound native potential.
	Potential interface{}
}

// A Binder is a native object that reports its bound potentials.
// The runtime fingerprints bindings to check that replicated
// mutations converged to identical state on every active rank.
type Binder interface {
	Bindings() []Binding
}

// A ReduceOp combines values produced by active ranks.
type ReduceOp int

const (
	// Sum adds rank values.
	Sum ReduceOp = iota
	// Max takes the maximum of rank values.
	Max
)

func (op ReduceOp) String() string {
	switch op {
	case Sum:
		return "sum"
	case Max:
		return "max"
	default:
		return fmt.Sprintf("reduceop(%d)", int(op))
	}
}

// Init returns the identity element of the operation.
func (op ReduceOp) Init() float64 {
	if op == Max {
		return math.Inf(-1)
	}
	return 0
}

// Apply combines an accumulated value with a rank value.
func (op ReduceOp) Apply(acc, v float64) float64 {
	if op == Max {
		return math.Max(acc, v)
	}
	return acc + v
}
