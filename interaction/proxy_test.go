// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package interaction_test

import (
	"context"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/pmi"
	"github.com/grailbio/pmi/exec"
	"github.com/grailbio/pmi/interaction"
	"github.com/grailbio/pmi/pmitest"
	"github.com/grailbio/testutil/expect"
)

type fixture struct {
	sess                    *exec.Session
	storage, vl, fpl, ftl   *exec.Proxy
	system, zero, shortZero *exec.Proxy
}

func newFixture(t *testing.T, ranks int, active ...int) *fixture {
	t.Helper()
	f := &fixture{sess: pmitest.Start(t, ranks, active...)}
	f.storage = pmitest.New(t, f.sess, interaction.StorageFamily)
	pmitest.Call(t, f.storage, interaction.AddParticle, 1, 0, 0.0, 0.0, 0.0)
	pmitest.Call(t, f.storage, interaction.AddParticle, 2, 1, 1.0, 0.0, 0.0)
	pmitest.Call(t, f.storage, interaction.AddParticle, 3, 1, 0.0, 3.0, 0.0)
	f.vl = pmitest.New(t, f.sess, interaction.VerletListFamily, f.storage, 1.5)
	pmitest.Call(t, f.vl, interaction.AddPair, 1, 2)
	f.fpl = pmitest.New(t, f.sess, interaction.FixedPairListFamily, f.storage)
	pmitest.Call(t, f.fpl, interaction.AddPair, 2, 3)
	f.ftl = pmitest.New(t, f.sess, interaction.FixedTupleListFamily, f.storage)
	pmitest.Call(t, f.ftl, interaction.AddTuple, 1, []int{2, 3})
	f.system = pmitest.New(t, f.sess, interaction.SystemFamily, f.storage)
	pmitest.Call(t, f.system, interaction.SetSkin, 0.3)
	f.zero = pmitest.New(t, f.sess, interaction.ZeroFamily)
	f.shortZero = pmitest.New(t, f.sess, interaction.ZeroFamily)
	pmitest.Call(t, f.shortZero, interaction.SetCutoff, 2.5)
	return f
}

func TestVerletListZeroProxy(t *testing.T) {
	f := newFixture(t, 3, 0, 2)
	defer f.sess.Shutdown()
	ctx := context.Background()
	inter := pmitest.New(t, f.sess, interaction.VerletListZeroFamily, f.vl)
	pmitest.Call(t, inter, pmi.SetPotential, 0, 1, f.zero)
	pmitest.Call(t, inter, pmi.SetPotential, 1, 0, f.shortZero)
	pmitest.Call(t, inter, pmi.SetFixedTupleList, f.ftl)
	pmitest.Converged(t, inter)
	values := pmitest.Values(t, inter, pmi.GetPotential, 0, 1)
	expect.EQ(t, len(values), 2)
	for _, v := range values {
		if v != f.shortZero {
			t.Errorf("got %v, want %v", v, f.shortZero)
		}
	}
	cutoff, ok, err := inter.Query(ctx, pmi.MaxCutoff)
	expect.NoError(t, err)
	expect.True(t, ok)
	expect.EQ(t, cutoff, 2.5)
	energy, err := inter.Reduce(ctx, pmi.Sum, pmi.ComputeEnergy)
	expect.NoError(t, err)
	expect.EQ(t, energy, 0.0)
	expect.NoError(t, inter.Close(ctx))
}

func TestAdressZeroProxy(t *testing.T) {
	f := newFixture(t, 2)
	defer f.sess.Shutdown()
	ctx := context.Background()
	for _, c := range []struct {
		family *pmi.Family
		args   []interface{}
	}{
		{interaction.VerletListAdressZeroFamily, []interface{}{f.vl}},
		{interaction.VerletListHadressZeroFamily, []interface{}{f.vl, f.ftl}},
	} {
		inter := pmitest.New(t, f.sess, c.family, c.args...)
		pmitest.Call(t, inter, pmi.SetFixedTupleList, f.ftl)
		pmitest.Call(t, inter, pmi.SetPotentialAT, 0, 1, f.shortZero)
		pmitest.Call(t, inter, pmi.SetPotentialCG, 1, 1, f.shortZero)
		pmitest.Converged(t, inter)
		fps, err := inter.Fingerprints(ctx)
		expect.NoError(t, err)
		for _, fp := range fps {
			// Both potentials land in the atomistic table.
			expect.EQ(t, fp.Bindings, 2)
		}
		virial, err := inter.Reduce(ctx, pmi.Sum, pmi.ComputeVirial)
		expect.NoError(t, err)
		expect.EQ(t, virial, 0.0)
		if _, err := inter.Gather(ctx, pmi.SetPotential, 0, 0, f.zero); !errors.Is(errors.Invalid, err) {
			t.Errorf("%s: got %v, want invalid", c.family.Name, err)
		}
	}
}

func TestCellListZeroProxy(t *testing.T) {
	f := newFixture(t, 2, 1)
	defer f.sess.Shutdown()
	ctx := context.Background()
	inter := pmitest.New(t, f.sess, interaction.CellListZeroFamily, f.storage)
	pmitest.Call(t, inter, pmi.SetPotential, 1, 1, f.zero)
	pmitest.Converged(t, inter)
	// Rank 0 is inactive, so the controller has no result.
	_, ok, err := inter.Query(ctx, pmi.MaxCutoff)
	expect.NoError(t, err)
	expect.False(t, ok)
	if _, err := inter.Gather(ctx, pmi.GetPotential, 1, 1); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}
	if _, err := inter.Gather(ctx, pmi.SetFixedTupleList, f.ftl); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}
}

func TestFixedPairListZeroProxy(t *testing.T) {
	f := newFixture(t, 2)
	defer f.sess.Shutdown()
	ctx := context.Background()
	inter := pmitest.New(t, f.sess, interaction.FixedPairListZeroFamily, f.system, f.fpl, f.zero)
	pmitest.Call(t, inter, pmi.SetPotential, f.shortZero)
	cutoffs := pmitest.Values(t, inter, pmi.MaxCutoff)
	expect.EQ(t, cutoffs, []interface{}{2.5, 2.5})
	pmitest.Converged(t, inter)
	if _, err := inter.Gather(ctx, pmi.SetPotential, 0, 1, f.zero); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}
	energy, err := inter.Reduce(ctx, pmi.Max, pmi.ComputeEnergy)
	expect.NoError(t, err)
	expect.EQ(t, energy, 0.0)
}

func ExampleVerletListZero() {
	ctx := context.Background()
	sess := exec.Start(exec.Local(2), exec.ActiveRanks(0))
	defer sess.Shutdown()
	must := func(p *exec.Proxy, err error) *exec.Proxy {
		if err != nil {
			panic(err)
		}
		return p
	}
	storage := must(sess.New(ctx, interaction.StorageFamily))
	vl := must(sess.New(ctx, interaction.VerletListFamily, storage, 1.5))
	zero := must(sess.New(ctx, interaction.ZeroFamily))
	if err := zero.Call(ctx, interaction.SetCutoff, 2.5); err != nil {
		panic(err)
	}
	inter := must(sess.New(ctx, interaction.VerletListZeroFamily, vl))
	if err := inter.Call(ctx, pmi.SetPotential, 0, 0, zero); err != nil {
		panic(err)
	}
	pmitest.Print(inter, pmi.MaxCutoff)
	// Output:
	// rank 0: 2.5
	// rank 1: inactive
}

func TestFractionalTypeRejected(t *testing.T) {
	f := newFixture(t, 2)
	defer f.sess.Shutdown()
	ctx := context.Background()
	inter := pmitest.New(t, f.sess, interaction.VerletListZeroFamily, f.vl)
	if err := inter.Call(ctx, pmi.SetPotential, 0.9, 1.99, f.zero); !errors.Is(errors.Invalid, err) {
		t.Fatalf("got %v, want invalid", err)
	}
	pmitest.Call(t, inter, pmi.SetPotential, 0.0, 1.0, f.zero)
	fps, err := inter.Fingerprints(ctx)
	expect.NoError(t, err)
	for _, fp := range fps {
		expect.EQ(t, fp.Bindings, 1)
	}
}
