// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Zerobench measures the cost of replicated calls by driving every
// zero interaction over a compute group. Because the zero potential
// contributes nothing, the measured time is that of call delivery and
// pair traversal alone.
//
// Usage:
//
//	zerobench [pmi flags] [-particles N] [-types T] [-iterations K]
//
// For example, to run 8 ranks of which the first 4 are active, in
// separate processes:
//
//	zerobench -system=local -ranks=8 -active-ranks=0-3
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/pmi"
	"github.com/grailbio/pmi/exec"
	"github.com/grailbio/pmi/interaction"
	"github.com/grailbio/pmi/pmicmd"
	"github.com/grailbio/pmi/stats"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

func main() {
	var (
		particles  = flag.Int("particles", 100, "number of particles")
		types      = flag.Int("types", 2, "number of particle types")
		iterations = flag.Int("iterations", 10, "number of energy evaluations per interaction")
		cutoff     = flag.Float64("cutoff", 2.5, "cutoff radius of the zero potentials")
		seed       = flag.Int64("seed", 1, "seed for particle positions")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: zerobench [flags]\n")
		flag.PrintDefaults()
		os.Exit(2)
	}
	pmicmd.Main(func(sess *exec.Session, args []string) error {
		if len(args) != 0 {
			flag.Usage()
		}
		b := bench{
			sess:      sess,
			particles: *particles,
			types:     *types,
			cutoff:    *cutoff,
			rand:      rand.New(rand.NewSource(*seed)),
		}
		return b.run(context.Background(), *iterations)
	})
}

type bench struct {
	sess      *exec.Session
	particles int
	types     int
	cutoff    float64
	rand      *rand.Rand

	latencies map[string][]time.Duration
}

// timed runs fn, recording its latency under name.
func (b *bench) timed(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	b.latencies[name] = append(b.latencies[name], time.Since(start))
	return err
}

func (b *bench) new(ctx context.Context, family *pmi.Family, args ...interface{}) (p *exec.Proxy, err error) {
	err = b.timed("New", func() error {
		p, err = b.sess.New(ctx, family, args...)
		return err
	})
	return
}

func (b *bench) call(ctx context.Context, p *exec.Proxy, method pmi.Method, args ...interface{}) error {
	return b.timed(string(method), func() error {
		return p.Call(ctx, method, args...)
	})
}

func (b *bench) run(ctx context.Context, iterations int) error {
	if b.types < 1 || b.particles < 2 {
		return errors.E(errors.Invalid, "zerobench: need at least 2 particles of at least 1 type")
	}
	b.latencies = make(map[string][]time.Duration)
	log.Printf("zerobench: %d particles of %d types on %d ranks (active %s)",
		b.particles, b.types, b.sess.Group().Size(), b.sess.Active())

	storage, err := b.new(ctx, interaction.StorageFamily)
	if err != nil {
		return err
	}
	side := float64(b.particles) / 4
	pos := make([][3]float64, b.particles)
	for i := range pos {
		pos[i] = [3]float64{b.rand.Float64() * side, b.rand.Float64() * side, b.rand.Float64() * side}
		if err := b.call(ctx, storage, interaction.AddParticle, i, i%b.types, pos[i][0], pos[i][1], pos[i][2]); err != nil {
			return err
		}
	}
	vl, err := b.new(ctx, interaction.VerletListFamily, storage, b.cutoff)
	if err != nil {
		return err
	}
	for i := range pos {
		for j := i + 1; j < len(pos); j++ {
			if distSqr(pos[i], pos[j]) > b.cutoff*b.cutoff {
				continue
			}
			if err := b.call(ctx, vl, interaction.AddPair, i, j); err != nil {
				return err
			}
		}
	}
	fpl, err := b.new(ctx, interaction.FixedPairListFamily, storage)
	if err != nil {
		return err
	}
	for i := 0; i+1 < b.particles; i += 2 {
		if err := b.call(ctx, fpl, interaction.AddPair, i, i+1); err != nil {
			return err
		}
	}
	ftl, err := b.new(ctx, interaction.FixedTupleListFamily, storage)
	if err != nil {
		return err
	}
	for i := 0; i+2 < b.particles; i += 3 {
		if err := b.call(ctx, ftl, interaction.AddTuple, i, []int{i + 1, i + 2}); err != nil {
			return err
		}
	}
	system, err := b.new(ctx, interaction.SystemFamily, storage)
	if err != nil {
		return err
	}
	if err := b.call(ctx, system, interaction.SetSkin, 0.3); err != nil {
		return err
	}
	zero, err := b.new(ctx, interaction.ZeroFamily)
	if err != nil {
		return err
	}
	if err := b.call(ctx, zero, interaction.SetCutoff, b.cutoff); err != nil {
		return err
	}

	type typed struct {
		family *pmi.Family
		args   []interface{}
	}
	var inters []*exec.Proxy
	for _, t := range []typed{
		{interaction.VerletListZeroFamily, []interface{}{vl}},
		{interaction.VerletListAdressZeroFamily, []interface{}{vl}},
		{interaction.VerletListHadressZeroFamily, []interface{}{vl, ftl}},
		{interaction.CellListZeroFamily, []interface{}{storage}},
		{interaction.FixedPairListZeroFamily, []interface{}{system, fpl, zero}},
	} {
		inter, err := b.new(ctx, t.family, t.args...)
		if err != nil {
			return err
		}
		if err := b.bind(ctx, inter, zero, ftl); err != nil {
			return err
		}
		inters = append(inters, inter)
	}

	for _, inter := range inters {
		ok, err := inter.Converged(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return errors.E(errors.Precondition, fmt.Sprintf("%s: bindings diverged across ranks", inter))
		}
		var energy float64
		for i := 0; i < iterations; i++ {
			err := b.timed(string(pmi.ComputeEnergy), func() (err error) {
				energy, err = inter.Reduce(ctx, pmi.Sum, pmi.ComputeEnergy)
				return
			})
			if err != nil {
				return err
			}
		}
		maxCutoff, _, err := inter.Query(ctx, pmi.MaxCutoff)
		if err != nil {
			return err
		}
		fmt.Printf("%s: energy %v, max cutoff %v\n", inter, energy, maxCutoff)
	}
	for _, inter := range inters {
		if err := inter.Close(ctx); err != nil {
			return err
		}
	}

	fmt.Println()
	fmt.Printf("%-20s %8s %12s %12s %12s %12s\n", "call", "count", "mean", "p50", "p99", "max")
	for _, name := range sortedKeys(b.latencies) {
		d := b.latencies[name]
		x := make([]float64, len(d))
		for i := range d {
			x[i] = float64(d[i])
		}
		sort.Float64s(x)
		fmt.Printf("%-20s %8d %12s %12s %12s %12s\n", name, len(x),
			time.Duration(stat.Mean(x, nil)),
			time.Duration(stat.Quantile(0.5, stat.Empirical, x, nil)),
			time.Duration(stat.Quantile(0.99, stat.Empirical, x, nil)),
			time.Duration(floats.Max(x)))
	}
	values, err := b.sess.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Println()
	return stats.WriteTable(os.Stdout, values)
}

// bind binds the zero potential to every pair of particle types on
// the provided interaction, using whichever entry points its family
// supports.
func (b *bench) bind(ctx context.Context, inter *exec.Proxy, zero, ftl *exec.Proxy) error {
	family := inter.Family()
	if family.Has(pmi.SetFixedTupleList) {
		if err := b.call(ctx, inter, pmi.SetFixedTupleList, ftl); err != nil {
			return err
		}
	}
	if family.Has(pmi.SetPotential) && family.NumMethodIn(pmi.SetPotential) == 1 {
		return b.call(ctx, inter, pmi.SetPotential, zero)
	}
	for t1 := 0; t1 < b.types; t1++ {
		for t2 := t1; t2 < b.types; t2++ {
			for _, method := range []pmi.Method{pmi.SetPotential, pmi.SetPotentialAT, pmi.SetPotentialCG} {
				if !family.Has(method) {
					continue
				}
				if err := b.call(ctx, inter, method, t1, t2, zero); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func distSqr(x, y [3]float64) float64 {
	var d float64
	for i := range x {
		d += (x[i] - y[i]) * (x[i] - y[i])
	}
	return d
}

func sortedKeys(m map[string][]time.Duration) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
