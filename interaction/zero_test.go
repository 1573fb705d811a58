// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package interaction

import (
	"math"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func testStorage(t *testing.T) *Storage {
	t.Helper()
	st := NewStorage()
	assert.NoError(t, st.AddParticle(1, 0, 0, 0, 0))
	assert.NoError(t, st.AddParticle(2, 1, 1, 0, 0))
	assert.NoError(t, st.AddParticle(3, 1, 0, 3, 0))
	return st
}

func TestZeroPotential(t *testing.T) {
	z := NewZero()
	expect.True(t, math.IsInf(z.Cutoff(), 1))
	expect.EQ(t, z.EnergySqr(4), 0.0)
	expect.EQ(t, z.Energy(0.5), 0.0)
	expect.EQ(t, z.ForceSqr([3]float64{1, 2, 3}, 14), [3]float64{})
	assert.NoError(t, z.SetCutoff(2.5))
	expect.EQ(t, z.Cutoff(), 2.5)
	for _, c := range []float64{0, -1, math.NaN()} {
		err := z.SetCutoff(c)
		if !errors.Is(errors.Invalid, err) {
			t.Errorf("cutoff %v: got %v, want invalid", c, err)
		}
	}
	expect.EQ(t, z.Cutoff(), 2.5)
}

func TestStorage(t *testing.T) {
	st := testStorage(t)
	expect.EQ(t, st.Len(), 3)
	if err := st.AddParticle(1, 0, 0, 0, 0); !errors.Is(errors.Exists, err) {
		t.Errorf("got %v, want exists", err)
	}
	if err := st.AddParticle(4, -1, 0, 0, 0); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}
	p, ok := st.Particle(2)
	assert.True(t, ok)
	expect.EQ(t, p, Particle{ID: 2, Type: 1, Pos: [3]float64{1, 0, 0}})
	if got, want := st.pairs(), [][2]int{{1, 2}, {1, 3}, {2, 3}}; !equalPairs(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func equalPairs(x, y [][2]int) bool {
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

func TestPairLists(t *testing.T) {
	st := testStorage(t)
	if _, err := NewVerletList(st, 0); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}
	vl, err := NewVerletList(st, 1.5)
	assert.NoError(t, err)
	assert.NoError(t, vl.AddPair(1, 2))
	if err := vl.AddPair(1, 1); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}
	if err := vl.AddPair(1, 9); !errors.Is(errors.NotExist, err) {
		t.Errorf("got %v, want not exist", err)
	}
	expect.EQ(t, vl.Len(), 1)
	expect.EQ(t, vl.Cutoff(), 1.5)

	ftl, err := NewFixedTupleList(st)
	assert.NoError(t, err)
	assert.NoError(t, ftl.AddTuple(1, []int{2, 3}))
	if err := ftl.AddTuple(1, nil); !errors.Is(errors.Exists, err) {
		t.Errorf("got %v, want exists", err)
	}
	expect.EQ(t, ftl.Len(), 1)

	sys, err := NewSystem(st)
	assert.NoError(t, err)
	if err := sys.SetSkin(-0.1); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}
	assert.NoError(t, sys.SetSkin(0.3))
	expect.EQ(t, sys.Skin(), 0.3)
}

func TestVerletListZero(t *testing.T) {
	st := testStorage(t)
	vl, err := NewVerletList(st, 5)
	assert.NoError(t, err)
	assert.NoError(t, vl.AddPair(1, 2))
	assert.NoError(t, vl.AddPair(2, 3))
	z, err := NewVerletListZero(vl)
	assert.NoError(t, err)

	expect.Nil(t, z.GetPotential(0, 1))
	expect.EQ(t, z.MaxCutoff(), 0.0)

	p1, p2 := NewZero(), NewZero()
	assert.NoError(t, p2.SetCutoff(2))
	assert.NoError(t, z.SetPotential(0, 1, p1))
	// Bindings are symmetric and the last write wins.
	assert.NoError(t, z.SetPotential(1, 0, p2))
	if got, want := z.GetPotential(0, 1), Potential(p2); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := z.GetPotential(1, 0), Potential(p2); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if err := z.SetPotential(-1, 0, p1); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}
	if err := z.SetPotential(0, 0, nil); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}
	expect.EQ(t, z.MaxCutoff(), 2.0)
	expect.EQ(t, z.ComputeEnergy(), 0.0)
	expect.EQ(t, z.ComputeVirial(), 0.0)

	bindings := z.Bindings()
	assert.EQ(t, len(bindings), 1)
	expect.EQ(t, bindings[0].Type1, 0)
	expect.EQ(t, bindings[0].Type2, 1)
	expect.True(t, bindings[0].Potential == Potential(p2))
}

func TestAdressZero(t *testing.T) {
	st := testStorage(t)
	vl, err := NewVerletList(st, 5)
	assert.NoError(t, err)
	if _, err := NewVerletListHadressZero(vl, nil); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}
	z, err := NewVerletListAdressZero(vl)
	assert.NoError(t, err)
	at, cg := NewZero(), NewZero()
	assert.NoError(t, at.SetCutoff(1))
	assert.NoError(t, cg.SetCutoff(3))
	assert.NoError(t, z.SetPotentialAT(1, 1, at))
	assert.NoError(t, z.SetPotentialCG(0, 0, cg))
	expect.True(t, z.GetPotentialAT(1, 1) == Potential(at))
	expect.True(t, z.GetPotentialCG(0, 0) == Potential(cg))
	expect.Nil(t, z.GetPotentialAT(0, 0))
	expect.EQ(t, z.MaxCutoff(), 3.0)

	bindings := z.Bindings()
	assert.EQ(t, len(bindings), 2)
	expect.EQ(t, bindings[0].Slot, "at")
	expect.EQ(t, bindings[1].Slot, "cg")
}

func TestFixedPairListZero(t *testing.T) {
	st := testStorage(t)
	sys, err := NewSystem(st)
	assert.NoError(t, err)
	fpl, err := NewFixedPairList(st)
	assert.NoError(t, err)
	assert.NoError(t, fpl.AddPair(1, 3))
	if _, err := NewFixedPairListZero(sys, fpl, nil); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}
	p := NewZero()
	z, err := NewFixedPairListZero(sys, fpl, p)
	assert.NoError(t, err)
	expect.True(t, math.IsInf(z.MaxCutoff(), 1))
	q := NewZero()
	assert.NoError(t, q.SetCutoff(4))
	assert.NoError(t, z.SetPotential(q))
	expect.True(t, z.GetPotential() == Potential(q))
	expect.EQ(t, z.MaxCutoff(), 4.0)
	expect.EQ(t, z.ComputeEnergy(), 0.0)
	expect.EQ(t, len(z.Bindings()), 1)
}

// countPotential counts the pairs it is evaluated on.
type countPotential struct {
	cutoff float64
	n      int
}

func (c *countPotential) EnergySqr(float64) float64 {
	c.n++
	return 1
}

func (c *countPotential) ForceSqr(dist [3]float64, _ float64) [3]float64 {
	return dist
}

func (c *countPotential) Cutoff() float64 { return c.cutoff }

func TestPairTraversal(t *testing.T) {
	st := testStorage(t)
	z, err := NewCellListZero(st)
	assert.NoError(t, err)
	// Distances: (1,2)=1, (1,3)=3, (2,3)=sqrt(10).
	p := &countPotential{cutoff: 3}
	for _, pair := range [][2]int{{0, 1}, {1, 1}} {
		assert.NoError(t, z.SetPotential(pair[0], pair[1], p))
	}
	expect.EQ(t, z.ComputeEnergy(), 2.0)
	expect.EQ(t, p.n, 2)
	// The virial of a force equal to the separation is the squared
	// distance.
	expect.EQ(t, z.ComputeVirial(), 10.0)
}
