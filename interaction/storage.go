// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package interaction

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// Particle is a particle held in a rank's storage.
type Particle struct {
	ID, Type int
	Pos      [3]float64
}

// Storage holds the particles owned by a rank.
type Storage struct {
	particles map[int]Particle
	// order is the insertion order of particle IDs, so that
	// traversals are deterministic.
	order []int
}

// NewStorage returns an empty storage.
func NewStorage() *Storage {
	return &Storage{particles: make(map[int]Particle)}
}

// AddParticle adds a particle with the given ID, type, and position.
func (s *Storage) AddParticle(id, typ int, x, y, z float64) error {
	if typ < 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("particle %d: invalid type %d", id, typ))
	}
	if _, ok := s.particles[id]; ok {
		return errors.E(errors.Exists, fmt.Sprintf("particle %d", id))
	}
	s.particles[id] = Particle{ID: id, Type: typ, Pos: [3]float64{x, y, z}}
	s.order = append(s.order, id)
	return nil
}

// Len returns the number of particles in the storage.
func (s *Storage) Len() int { return len(s.order) }

// Particle returns the particle with the provided ID.
func (s *Storage) Particle(id int) (Particle, bool) {
	p, ok := s.particles[id]
	return p, ok
}

// pairs returns every pair of distinct particles in the storage.
func (s *Storage) pairs() [][2]int {
	var pairs [][2]int
	for i := range s.order {
		for j := i + 1; j < len(s.order); j++ {
			pairs = append(pairs, [2]int{s.order[i], s.order[j]})
		}
	}
	return pairs
}

// pairList is an explicit list of particle pairs over a storage.
type pairList struct {
	storage *Storage
	pairs   [][2]int
}

func (l *pairList) add(id1, id2 int) error {
	if l.storage == nil {
		return errors.E(errors.Precondition, "pair list has no storage")
	}
	if id1 == id2 {
		return errors.E(errors.Invalid, fmt.Sprintf("pair (%d, %d): particle paired with itself", id1, id2))
	}
	for _, id := range [2]int{id1, id2} {
		if _, ok := l.storage.particles[id]; !ok {
			return errors.E(errors.NotExist, fmt.Sprintf("particle %d", id))
		}
	}
	l.pairs = append(l.pairs, [2]int{id1, id2})
	return nil
}

// VerletList is a neighbor list: the pairs of particles within a
// cutoff (plus skin) of each other. Pairs are supplied explicitly.
type VerletList struct {
	pairList
	cutoff float64
}

// NewVerletList returns an empty Verlet list over the provided
// storage with the provided cutoff.
func NewVerletList(storage *Storage, cutoff float64) (*VerletList, error) {
	if storage == nil {
		return nil, errors.E(errors.Invalid, "verlet list: nil storage")
	}
	if !(cutoff > 0) {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("verlet list: invalid cutoff %v", cutoff))
	}
	return &VerletList{pairList: pairList{storage: storage}, cutoff: cutoff}, nil
}

// AddPair adds the pair (id1, id2) to the list.
func (l *VerletList) AddPair(id1, id2 int) error { return l.add(id1, id2) }

// Len returns the number of pairs in the list.
func (l *VerletList) Len() int { return len(l.pairs) }

// Cutoff returns the list's cutoff.
func (l *VerletList) Cutoff() float64 { return l.cutoff }

// FixedPairList is a list of bonded particle pairs.
type FixedPairList struct {
	pairList
}

// NewFixedPairList returns an empty fixed pair list over the
// provided storage.
func NewFixedPairList(storage *Storage) (*FixedPairList, error) {
	if storage == nil {
		return nil, errors.E(errors.Invalid, "fixed pair list: nil storage")
	}
	return &FixedPairList{pairList{storage: storage}}, nil
}

// AddPair adds the bond (id1, id2) to the list.
func (l *FixedPairList) AddPair(id1, id2 int) error { return l.add(id1, id2) }

// Len returns the number of pairs in the list.
func (l *FixedPairList) Len() int { return len(l.pairs) }

// FixedTupleList maps coarse-grained particles to the atomistic
// particles they represent in adaptive resolution schemes.
type FixedTupleList struct {
	storage *Storage
	tuples  map[int][]int
}

// NewFixedTupleList returns an empty tuple list over the provided
// storage.
func NewFixedTupleList(storage *Storage) (*FixedTupleList, error) {
	if storage == nil {
		return nil, errors.E(errors.Invalid, "fixed tuple list: nil storage")
	}
	return &FixedTupleList{storage: storage, tuples: make(map[int][]int)}, nil
}

// AddTuple maps the coarse-grained particle cg to the atomistic
// particles at.
func (l *FixedTupleList) AddTuple(cg int, at []int) error {
	if _, ok := l.storage.particles[cg]; !ok {
		return errors.E(errors.NotExist, fmt.Sprintf("particle %d", cg))
	}
	if _, ok := l.tuples[cg]; ok {
		return errors.E(errors.Exists, fmt.Sprintf("tuple for particle %d", cg))
	}
	l.tuples[cg] = append([]int(nil), at...)
	return nil
}

// Len returns the number of tuples in the list.
func (l *FixedTupleList) Len() int { return len(l.tuples) }

// System collects the rank-wide state that bonded interactions
// require.
type System struct {
	storage *Storage
	skin    float64
}

// NewSystem returns a system over the provided storage.
func NewSystem(storage *Storage) (*System, error) {
	if storage == nil {
		return nil, errors.E(errors.Invalid, "system: nil storage")
	}
	return &System{storage: storage}, nil
}

// SetSkin sets the Verlet skin of the system.
func (s *System) SetSkin(skin float64) error {
	if skin < 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("system: invalid skin %v", skin))
	}
	s.skin = skin
	return nil
}

// Skin returns the Verlet skin of the system.
func (s *System) Skin() float64 { return s.skin }
