// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package pmi

import (
	"bytes"
	"encoding/gob"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestIsActive(t *testing.T) {
	g, err := NewGroup(4)
	assert.NoError(t, err)
	sub, err := NewSubgroup(g, 0, 1)
	assert.NoError(t, err)
	for _, c := range []struct {
		rank int
		sub  *Subgroup
		want bool
	}{
		{0, nil, true},
		{3, nil, true},
		{0, sub, true},
		{1, sub, true},
		{2, sub, false},
		{3, sub, false},
	} {
		if got, want := IsActive(c.rank, c.sub), c.want; got != want {
			t.Errorf("IsActive(%d, %s): got %v, want %v", c.rank, c.sub, got, want)
		}
	}
}

func TestIsActiveFuzz(t *testing.T) {
	const size = 16
	g, err := NewGroup(size)
	assert.NoError(t, err)
	fz := fuzz.New().NilChance(0)
	for i := 0; i < 100; i++ {
		var members [size]bool
		fz.Fuzz(&members)
		var ranks []int
		for rank, ok := range members {
			if ok {
				ranks = append(ranks, rank)
			}
		}
		sub, err := NewSubgroup(g, ranks...)
		assert.NoError(t, err)
		expect.EQ(t, sub.Len(), len(ranks))
		for rank := 0; rank < size; rank++ {
			if got, want := IsActive(rank, sub), members[rank]; got != want {
				t.Errorf("IsActive(%d, %s): got %v, want %v", rank, sub, got, want)
			}
			if !IsActive(rank, nil) {
				t.Errorf("rank %d inactive without a subgroup", rank)
			}
		}
	}
}

func TestGroupConfiguration(t *testing.T) {
	if _, err := NewGroup(0); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}
	g, err := NewGroup(2)
	assert.NoError(t, err)
	expect.EQ(t, g.Ranks(), []int{0, 1})
	for _, rank := range []int{-1, 2} {
		if _, err := NewSubgroup(g, 0, rank); !errors.Is(errors.Invalid, err) {
			t.Errorf("rank %d: got %v, want invalid", rank, err)
		}
	}
}

func TestSubgroupGob(t *testing.T) {
	g, err := NewGroup(8)
	assert.NoError(t, err)
	sub, err := NewSubgroup(g, 5, 1, 3, 1)
	assert.NoError(t, err)
	expect.EQ(t, sub.String(), "{1,3,5}")
	type config struct {
		Rank   int
		Active *Subgroup
	}
	var b bytes.Buffer
	enc := gob.NewEncoder(&b)
	assert.NoError(t, enc.Encode(config{Rank: 1, Active: sub}))
	assert.NoError(t, enc.Encode(config{Rank: 2}))
	dec := gob.NewDecoder(&b)
	var c1, c2 config
	assert.NoError(t, dec.Decode(&c1))
	assert.NoError(t, dec.Decode(&c2))
	expect.EQ(t, c1.Active.Ranks(), []int{1, 3, 5})
	if c2.Active != nil {
		t.Errorf("got %s, want nil subgroup", c2.Active)
	}
	expect.EQ(t, c2.Active.String(), "{*}")
}

func TestParseRanks(t *testing.T) {
	for _, c := range []struct {
		s    string
		want []int
	}{
		{"", nil},
		{"0", []int{0}},
		{"0,1", []int{0, 1}},
		{" 3, 0-2 ", []int{3, 0, 1, 2}},
		{"4-4", []int{4}},
	} {
		got, err := ParseRanks(c.s)
		assert.NoError(t, err)
		expect.EQ(t, got, c.want)
	}
	for _, s := range []string{"x", "1,", "-1", "3-1", "1-x"} {
		if _, err := ParseRanks(s); !errors.Is(errors.Invalid, err) {
			t.Errorf("%q: got %v, want invalid", s, err)
		}
	}
}
