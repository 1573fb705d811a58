// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"strings"
	"testing"

	"github.com/grailbio/bigmachine/testsystem"
	"github.com/grailbio/pmi"
	"github.com/grailbio/pmi/interaction"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

var executors = map[string]func(n int) Option{
	"Local": Local,
	"Bigmachine.Test": func(n int) Option {
		return Bigmachine(testsystem.New(), n)
	},
}

func testSession(t *testing.T, n int, run func(t *testing.T, sess *Session), options ...Option) {
	t.Helper()
	for name, opt := range executors {
		opt := opt
		t.Run(name, func(t *testing.T) {
			sess, err := Open(append([]Option{opt(n)}, options...)...)
			assert.NoError(t, err)
			defer sess.Shutdown()
			run(t, sess)
		})
	}
}

func TestBigmachineExecutor(t *testing.T) {
	system := testsystem.New()
	sess, err := Open(Bigmachine(system, 3))
	assert.NoError(t, err)
	defer sess.Shutdown()
	expect.EQ(t, sess.Executor(), "bigmachine")
	expect.EQ(t, sess.Group().Size(), 3)
	x := sess.executor.(*bigmachineExecutor)
	expect.EQ(t, len(x.machines), 3)
	expect.EQ(t, system.N(), 3)
	for rank := range x.machines {
		expect.True(t, strings.HasPrefix(sess.rankName(rank), "rank "))
	}
}

func TestExecutorsGated(t *testing.T) {
	testSession(t, 4, func(t *testing.T, sess *Session) {
		ctx := context.Background()
		f := newZeroFixture(t, sess)
		zero, err := sess.New(ctx, interaction.ZeroFamily)
		assert.NoError(t, err)
		assert.NoError(t, f.inter.Call(ctx, pmi.SetPotential, 0, 1, zero))
		values, err := f.inter.Gather(ctx, pmi.GetPotential, 1, 0)
		assert.NoError(t, err)
		for _, v := range values {
			if got, want := v.Active, v.Rank < 2; got != want {
				t.Errorf("rank %d: got %v, want %v", v.Rank, got, want)
			}
			if v.Active && v.Value != zero {
				t.Errorf("rank %d: got %v, want %v", v.Rank, v.Value, zero)
			}
		}
		n, err := f.vl.Reduce(ctx, pmi.Sum, interaction.NumPairs)
		assert.NoError(t, err)
		expect.EQ(t, n, 4.0)
		ok, err := f.inter.Converged(ctx)
		assert.NoError(t, err)
		expect.True(t, ok)
	}, ActiveRanks(0, 1))
}

func TestExecutorsRankFailure(t *testing.T) {
	testSession(t, 3, func(t *testing.T, sess *Session) {
		ctx := context.Background()
		c, err := sess.New(ctx, rankCounterFamily)
		assert.NoError(t, err)
		err = c.Call(ctx, "FailOn", 1)
		if err == nil || !strings.Contains(err.Error(), "failure on rank 1") {
			t.Fatalf("got %v, want failure on rank 1", err)
		}
		sum, err := c.Reduce(ctx, pmi.Sum, "Value")
		assert.NoError(t, err)
		expect.EQ(t, sum, 2.0)
	})
}
