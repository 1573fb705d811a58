// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package interaction implements the rank-local ("native") zero
// pairwise interactions and their collaborators, and registers them
// as pmi families. The zero interaction always yields zero energy
// and force; it is used as a placeholder interaction and to measure
// the cost of traversing pair lists and replicating calls.
package interaction

import (
	"fmt"
	"math"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/pmi"
)

// Table binds potentials to unordered pairs of particle types.
type table struct {
	pots map[[2]int]Potential
}

func typeKey(type1, type2 int) [2]int {
	if type1 > type2 {
		type1, type2 = type2, type1
	}
	return [2]int{type1, type2}
}

// Set binds p to (type1, type2). The last binding wins.
func (t *table) set(type1, type2 int, p Potential) error {
	if type1 < 0 || type2 < 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("invalid type pair (%d, %d)", type1, type2))
	}
	if p == nil {
		return errors.E(errors.Invalid, fmt.Sprintf("type pair (%d, %d): nil potential", type1, type2))
	}
	if t.pots == nil {
		t.pots = make(map[[2]int]Potential)
	}
	t.pots[typeKey(type1, type2)] = p
	return nil
}

// Get returns the potential bound to (type1, type2), or nil.
func (t *table) get(type1, type2 int) Potential {
	return t.pots[typeKey(type1, type2)]
}

func (t *table) maxCutoff() float64 {
	var max float64
	for _, p := range t.pots {
		max = math.Max(max, p.Cutoff())
	}
	return max
}

func (t *table) bindings(slot string) []pmi.Binding {
	keys := make([][2]int, 0, len(t.pots))
	for key := range t.pots {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})
	bindings := make([]pmi.Binding, len(keys))
	for i, key := range keys {
		bindings[i] = pmi.Binding{Slot: slot, Type1: key[0], Type2: key[1], Potential: t.pots[key]}
	}
	return bindings
}

// PairSum traverses pairs of particles in storage, summing f over
// each pair that has a potential within cutoff.
func pairSum(storage *Storage, pairs [][2]int, lookup func(type1, type2 int) Potential, f func(p Potential, dist [3]float64, distSqr float64) float64) float64 {
	var sum float64
	for _, pair := range pairs {
		p1, ok1 := storage.particles[pair[0]]
		p2, ok2 := storage.particles[pair[1]]
		if !ok1 || !ok2 {
			continue
		}
		pot := lookup(p1.Type, p2.Type)
		if pot == nil {
			continue
		}
		var (
			dist    [3]float64
			distSqr float64
		)
		for i := range dist {
			dist[i] = p1.Pos[i] - p2.Pos[i]
			distSqr += dist[i] * dist[i]
		}
		if cutoff := pot.Cutoff(); distSqr > cutoff*cutoff {
			continue
		}
		sum += f(pot, dist, distSqr)
	}
	return sum
}

func energy(p Potential, _ [3]float64, distSqr float64) float64 {
	return p.EnergySqr(distSqr)
}

func virial(p Potential, dist [3]float64, distSqr float64) float64 {
	force := p.ForceSqr(dist, distSqr)
	return dist[0]*force[0] + dist[1]*force[1] + dist[2]*force[2]
}

// VerletListZero is the zero interaction over a full Verlet list.
type VerletListZero struct {
	vl   *VerletList
	pots table
	ftl  *FixedTupleList
}

// NewVerletListZero returns a zero interaction over the provided
// Verlet list.
func NewVerletListZero(vl *VerletList) (*VerletListZero, error) {
	if vl == nil {
		return nil, errors.E(errors.Invalid, "verlet list zero: nil verlet list")
	}
	return &VerletListZero{vl: vl}, nil
}

// SetPotential binds a potential to the type pair (type1, type2).
func (z *VerletListZero) SetPotential(type1, type2 int, p Potential) error {
	return z.pots.set(type1, type2, p)
}

// GetPotential returns the potential bound to (type1, type2), or
// nil if there is none.
func (z *VerletListZero) GetPotential(type1, type2 int) Potential {
	return z.pots.get(type1, type2)
}

// SetFixedTupleList attaches a fixed tuple list to the interaction.
func (z *VerletListZero) SetFixedTupleList(ftl *FixedTupleList) {
	z.ftl = ftl
}

// ComputeEnergy returns the interaction energy over the list.
func (z *VerletListZero) ComputeEnergy() float64 {
	return pairSum(z.vl.storage, z.vl.pairs, z.pots.get, energy)
}

// ComputeVirial returns the interaction virial over the list.
func (z *VerletListZero) ComputeVirial() float64 {
	return pairSum(z.vl.storage, z.vl.pairs, z.pots.get, virial)
}

// MaxCutoff returns the largest cutoff of the bound potentials.
func (z *VerletListZero) MaxCutoff() float64 { return z.pots.maxCutoff() }

// Bindings implements pmi.Binder.
func (z *VerletListZero) Bindings() []pmi.Binding { return z.pots.bindings("") }

// adress holds the potential tables shared by the adaptive
// resolution interactions.
type adress struct {
	vl     *VerletList
	ftl    *FixedTupleList
	at, cg table
}

// SetPotentialAT binds an atomistic potential to (type1, type2).
func (a *adress) SetPotentialAT(type1, type2 int, p Potential) error {
	return a.at.set(type1, type2, p)
}

// SetPotentialCG binds a coarse-grained potential to (type1, type2).
func (a *adress) SetPotentialCG(type1, type2 int, p Potential) error {
	return a.cg.set(type1, type2, p)
}

// GetPotentialAT returns the atomistic potential bound to (type1, type2).
func (a *adress) GetPotentialAT(type1, type2 int) Potential { return a.at.get(type1, type2) }

// GetPotentialCG returns the coarse-grained potential bound to (type1, type2).
func (a *adress) GetPotentialCG(type1, type2 int) Potential { return a.cg.get(type1, type2) }

// SetFixedTupleList attaches a fixed tuple list to the interaction.
func (a *adress) SetFixedTupleList(ftl *FixedTupleList) {
	a.ftl = ftl
}

// ComputeEnergy returns the sum of the atomistic and coarse-grained
// energies over the list.
func (a *adress) ComputeEnergy() float64 {
	return pairSum(a.vl.storage, a.vl.pairs, a.at.get, energy) +
		pairSum(a.vl.storage, a.vl.pairs, a.cg.get, energy)
}

// ComputeVirial returns the sum of the atomistic and coarse-grained
// virials over the list.
func (a *adress) ComputeVirial() float64 {
	return pairSum(a.vl.storage, a.vl.pairs, a.at.get, virial) +
		pairSum(a.vl.storage, a.vl.pairs, a.cg.get, virial)
}

// MaxCutoff returns the largest cutoff of the bound potentials.
func (a *adress) MaxCutoff() float64 {
	return math.Max(a.at.maxCutoff(), a.cg.maxCutoff())
}

// Bindings implements pmi.Binder.
func (a *adress) Bindings() []pmi.Binding {
	return append(a.at.bindings("at"), a.cg.bindings("cg")...)
}

// VerletListAdressZero is the zero interaction over an adaptive
// resolution Verlet list.
type VerletListAdressZero struct {
	adress
}

// NewVerletListAdressZero returns a zero interaction over the
// provided adaptive resolution Verlet list.
func NewVerletListAdressZero(vl *VerletList) (*VerletListAdressZero, error) {
	if vl == nil {
		return nil, errors.E(errors.Invalid, "verlet list adress zero: nil verlet list")
	}
	return &VerletListAdressZero{adress{vl: vl}}, nil
}

// VerletListHadressZero is the zero interaction over a hybrid
// adaptive resolution Verlet list. Its tuple list is supplied at
// construction.
type VerletListHadressZero struct {
	adress
}

// NewVerletListHadressZero returns a zero interaction over the
// provided Verlet list and fixed tuple list.
func NewVerletListHadressZero(vl *VerletList, ftl *FixedTupleList) (*VerletListHadressZero, error) {
	if vl == nil || ftl == nil {
		return nil, errors.E(errors.Invalid, "verlet list hadress zero: nil verlet or tuple list")
	}
	return &VerletListHadressZero{adress{vl: vl, ftl: ftl}}, nil
}

// CellListZero is the zero interaction over every pair of particles
// in a cell storage.
type CellListZero struct {
	storage *Storage
	pots    table
}

// NewCellListZero returns a zero interaction over the provided
// storage.
func NewCellListZero(storage *Storage) (*CellListZero, error) {
	if storage == nil {
		return nil, errors.E(errors.Invalid, "cell list zero: nil storage")
	}
	return &CellListZero{storage: storage}, nil
}

// SetPotential binds a potential to the type pair (type1, type2).
func (z *CellListZero) SetPotential(type1, type2 int, p Potential) error {
	return z.pots.set(type1, type2, p)
}

// ComputeEnergy returns the interaction energy over all pairs.
func (z *CellListZero) ComputeEnergy() float64 {
	return pairSum(z.storage, z.storage.pairs(), z.pots.get, energy)
}

// ComputeVirial returns the interaction virial over all pairs.
func (z *CellListZero) ComputeVirial() float64 {
	return pairSum(z.storage, z.storage.pairs(), z.pots.get, virial)
}

// MaxCutoff returns the largest cutoff of the bound potentials.
func (z *CellListZero) MaxCutoff() float64 { return z.pots.maxCutoff() }

// Bindings implements pmi.Binder.
func (z *CellListZero) Bindings() []pmi.Binding { return z.pots.bindings("") }

// FixedPairListZero is the zero interaction over a list of bonded
// pairs, with a single potential.
type FixedPairListZero struct {
	system *System
	fpl    *FixedPairList
	pot    Potential
}

// NewFixedPairListZero returns a zero interaction over the provided
// fixed pair list using potential p.
func NewFixedPairListZero(system *System, fpl *FixedPairList, p Potential) (*FixedPairListZero, error) {
	if system == nil || fpl == nil {
		return nil, errors.E(errors.Invalid, "fixed pair list zero: nil system or pair list")
	}
	if p == nil {
		return nil, errors.E(errors.Invalid, "fixed pair list zero: nil potential")
	}
	return &FixedPairListZero{system: system, fpl: fpl, pot: p}, nil
}

// SetPotential replaces the interaction's potential.
func (z *FixedPairListZero) SetPotential(p Potential) error {
	if p == nil {
		return errors.E(errors.Invalid, "fixed pair list zero: nil potential")
	}
	z.pot = p
	return nil
}

// GetPotential returns the interaction's potential.
func (z *FixedPairListZero) GetPotential() Potential { return z.pot }

func (z *FixedPairListZero) lookup(int, int) Potential { return z.pot }

// ComputeEnergy returns the interaction energy over the bonds.
func (z *FixedPairListZero) ComputeEnergy() float64 {
	return pairSum(z.fpl.storage, z.fpl.pairs, z.lookup, energy)
}

// ComputeVirial returns the interaction virial over the bonds.
func (z *FixedPairListZero) ComputeVirial() float64 {
	return pairSum(z.fpl.storage, z.fpl.pairs, z.lookup, virial)
}

// MaxCutoff returns the cutoff of the interaction's potential.
func (z *FixedPairListZero) MaxCutoff() float64 { return z.pot.Cutoff() }

// Bindings implements pmi.Binder.
func (z *FixedPairListZero) Bindings() []pmi.Binding {
	return []pmi.Binding{{Type1: -1, Type2: -1, Potential: z.pot}}
}
