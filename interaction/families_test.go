// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package interaction

import (
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/pmi"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestFamiliesRegistered(t *testing.T) {
	for _, f := range []*pmi.Family{
		ZeroFamily, StorageFamily, VerletListFamily, FixedPairListFamily,
		FixedTupleListFamily, SystemFamily,
		VerletListZeroFamily, VerletListAdressZeroFamily,
		VerletListHadressZeroFamily, CellListZeroFamily,
		FixedPairListZeroFamily,
	} {
		got, ok := pmi.Lookup(f.Name)
		if !ok {
			t.Errorf("family %s not registered", f.Name)
			continue
		}
		expect.True(t, got == f)
	}
}

func TestFamilyCapabilities(t *testing.T) {
	for _, c := range []struct {
		family  *pmi.Family
		variant pmi.Variant
		has     []pmi.Method
		hasNot  []pmi.Method
	}{
		{
			VerletListZeroFamily, pmi.FullList,
			[]pmi.Method{pmi.SetPotential, pmi.GetPotential, pmi.SetFixedTupleList},
			[]pmi.Method{pmi.SetPotentialAT, pmi.SetPotentialCG},
		},
		{
			VerletListAdressZeroFamily, pmi.AdaptiveList,
			[]pmi.Method{pmi.SetPotentialAT, pmi.SetPotentialCG, pmi.SetFixedTupleList},
			[]pmi.Method{pmi.SetPotential, pmi.GetPotential},
		},
		{
			VerletListHadressZeroFamily, pmi.FilteredList,
			[]pmi.Method{pmi.SetPotentialAT, pmi.SetPotentialCG, pmi.SetFixedTupleList},
			[]pmi.Method{pmi.SetPotential, pmi.GetPotential},
		},
		{
			CellListZeroFamily, pmi.CellList,
			[]pmi.Method{pmi.SetPotential},
			[]pmi.Method{pmi.GetPotential, pmi.SetFixedTupleList, pmi.SetPotentialAT},
		},
		{
			FixedPairListZeroFamily, pmi.FixedPairList,
			[]pmi.Method{pmi.SetPotential},
			[]pmi.Method{pmi.GetPotential, pmi.SetFixedTupleList, pmi.SetPotentialCG},
		},
	} {
		expect.EQ(t, c.family.Variant, c.variant)
		for _, m := range append(c.has, pmi.ComputeEnergy, pmi.ComputeVirial, pmi.MaxCutoff) {
			if !c.family.Has(m) {
				t.Errorf("%s: missing method %s", c.family, m)
			}
		}
		for _, m := range c.hasNot {
			if c.family.Has(m) {
				t.Errorf("%s: unexpected method %s", c.family, m)
			}
		}
	}
}

func TestFamilyConstructInvoke(t *testing.T) {
	env := pmi.Env{Rank: 0, Size: 1}
	st, err := StorageFamily.Construct(env, nil)
	assert.NoError(t, err)
	_, err = StorageFamily.Invoke(st, AddParticle, []interface{}{1, 0, 0.0, 0.0, 0.0})
	assert.NoError(t, err)
	// Integer positions are converted to float64.
	_, err = StorageFamily.Invoke(st, AddParticle, []interface{}{2, 0, 1, 0, 0})
	assert.NoError(t, err)
	n, err := StorageFamily.Invoke(st, NumParticles, nil)
	assert.NoError(t, err)
	expect.EQ(t, n, 2)

	vl, err := VerletListFamily.Construct(env, []interface{}{st, 2})
	assert.NoError(t, err)
	_, err = VerletListFamily.Invoke(vl, AddPair, []interface{}{1, 2})
	assert.NoError(t, err)

	z, err := VerletListAdressZeroFamily.Construct(env, []interface{}{vl})
	assert.NoError(t, err)
	pot := NewZero()
	_, err = VerletListAdressZeroFamily.Invoke(z, pmi.SetPotentialCG, []interface{}{0, 0, pot})
	assert.NoError(t, err)
	adress := z.(*VerletListAdressZero)
	// SetPotentialCG binds the atomistic table.
	expect.True(t, adress.GetPotentialAT(0, 0) == Potential(pot))
	expect.Nil(t, adress.GetPotentialCG(0, 0))

	_, err = VerletListAdressZeroFamily.Invoke(z, pmi.SetPotentialAT, []interface{}{-1, 0, pot})
	if !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}
	_, err = VerletListAdressZeroFamily.Invoke(z, pmi.GetPotential, []interface{}{0, 0})
	if !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}
	e, err := VerletListAdressZeroFamily.Invoke(z, pmi.ComputeEnergy, nil)
	assert.NoError(t, err)
	expect.EQ(t, e, 0.0)

	if _, err := VerletListFamily.Construct(env, []interface{}{st}); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}
	if _, err := VerletListFamily.Construct(env, []interface{}{"storage", 1.0}); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}
}
