// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package pmi

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
)

// A Group is the full set of cooperating ranks of a run. Ranks are
// numbered 0 through Size()-1. Groups are immutable.
type Group struct {
	size int
}

// NewGroup returns a group of n ranks.
func NewGroup(n int) (Group, error) {
	if n <= 0 {
		return Group{}, errors.E(errors.Invalid, fmt.Sprintf("pmi.NewGroup: group size %d: must be positive", n))
	}
	return Group{n}, nil
}

// Size returns the number of ranks in the group.
func (g Group) Size() int { return g.size }

// Contains tells whether rank is a member of the group.
func (g Group) Contains(rank int) bool {
	return rank >= 0 && rank < g.size
}

// Ranks returns the group's ranks in increasing order.
func (g Group) Ranks() []int {
	ranks := make([]int, g.size)
	for i := range ranks {
		ranks[i] = i
	}
	return ranks
}

// A Subgroup is a set of ranks designated to perform computation.
// A nil *Subgroup places no restriction: every rank is active.
// Subgroups are read-only once constructed and may be shared across
// goroutines.
type Subgroup struct {
	ranks map[int]struct{}
}

// NewSubgroup returns the subgroup of g consisting of the provided
// ranks. Duplicate ranks are ignored. NewSubgroup returns an
// errors.Invalid error if any rank lies outside of g; such
// configurations cannot be recovered from.
func NewSubgroup(g Group, ranks ...int) (*Subgroup, error) {
	s := &Subgroup{ranks: make(map[int]struct{}, len(ranks))}
	for _, rank := range ranks {
		if !g.Contains(rank) {
			return nil, errors.E(errors.Invalid,
				fmt.Sprintf("pmi.NewSubgroup: rank %d is outside of the compute group of size %d", rank, g.Size()))
		}
		s.ranks[rank] = struct{}{}
	}
	return s, nil
}

// Contains tells whether rank is a member of the subgroup.
func (s *Subgroup) Contains(rank int) bool {
	_, ok := s.ranks[rank]
	return ok
}

// Len returns the number of ranks in the subgroup.
func (s *Subgroup) Len() int { return len(s.ranks) }

// Ranks returns the subgroup's ranks in increasing order.
func (s *Subgroup) Ranks() []int {
	ranks := make([]int, 0, len(s.ranks))
	for rank := range s.ranks {
		ranks = append(ranks, rank)
	}
	sort.Ints(ranks)
	return ranks
}

// String returns a description of the subgroup, e.g., "{0,1,3}".
func (s *Subgroup) String() string {
	if s == nil {
		return "{*}"
	}
	ranks := s.Ranks()
	strs := make([]string, len(ranks))
	for i, rank := range ranks {
		strs[i] = fmt.Sprint(rank)
	}
	return "{" + strings.Join(strs, ",") + "}"
}

// GobEncode implements gob.GobEncoder so that subgroups can be
// distributed to every rank.
func (s *Subgroup) GobEncode() ([]byte, error) {
	var b bytes.Buffer
	err := gob.NewEncoder(&b).Encode(s.Ranks())
	return b.Bytes(), err
}

// GobDecode implements gob.GobDecoder.
func (s *Subgroup) GobDecode(p []byte) error {
	var ranks []int
	if err := gob.NewDecoder(bytes.NewReader(p)).Decode(&ranks); err != nil {
		return err
	}
	s.ranks = make(map[int]struct{}, len(ranks))
	for _, rank := range ranks {
		s.ranks[rank] = struct{}{}
	}
	return nil
}

// ParseRanks parses a comma-separated list of ranks and inclusive
// rank ranges, e.g., "0,2-4". The empty string yields no ranks.
func ParseRanks(s string) ([]int, error) {
	var ranks []int
	if strings.TrimSpace(s) == "" {
		return ranks, nil
	}
	for _, elem := range strings.Split(s, ",") {
		elem = strings.TrimSpace(elem)
		lo, hi := elem, elem
		if i := strings.Index(elem, "-"); i > 0 {
			lo, hi = elem[:i], elem[i+1:]
		}
		beg, err1 := strconv.Atoi(lo)
		end, err2 := strconv.Atoi(hi)
		if err1 != nil || err2 != nil || beg < 0 || end < beg {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("invalid rank list %q: bad element %q", s, elem))
		}
		for rank := beg; rank <= end; rank++ {
			ranks = append(ranks, rank)
		}
	}
	return ranks, nil
}

// IsActive tells whether the given rank should execute native
// operations under the provided subgroup: it is true if sub is nil
// (no restriction is configured) or if rank is a member of sub.
// IsActive has no side effects and may be called before any native
// object exists.
func IsActive(rank int, sub *Subgroup) bool {
	return sub == nil || sub.Contains(rank)
}

// Env describes the rank on which a native object is constructed.
// Constructors that declare an Env as their first parameter have it
// supplied by the runtime; it is not part of the family's
// constructor arguments.
type Env struct {
	// Rank is the rank of the constructing process.
	Rank int
	// Size is the size of the compute group.
	Size int
}
