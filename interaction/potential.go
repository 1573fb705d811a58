// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package interaction

import (
	"fmt"
	"math"

	"github.com/grailbio/base/errors"
)

// A Potential is a pairwise potential evaluated on squared
// distances.
type Potential interface {
	// EnergySqr returns the pair energy at squared distance distSqr.
	EnergySqr(distSqr float64) float64
	// ForceSqr returns the force on the first particle of a pair
	// separated by dist, with squared length distSqr.
	ForceSqr(dist [3]float64, distSqr float64) [3]float64
	// Cutoff returns the potential's cutoff radius.
	Cutoff() float64
}

// Zero is the potential that is zero everywhere. It is used as a
// placeholder interaction and to benchmark the cost of pair
// traversal. Its cutoff is infinite unless set.
type Zero struct {
	cutoff float64
}

// NewZero returns a new zero potential.
func NewZero() *Zero {
	return &Zero{cutoff: math.Inf(1)}
}

// EnergySqr implements Potential.
func (*Zero) EnergySqr(float64) float64 { return 0 }

// ForceSqr implements Potential.
func (*Zero) ForceSqr([3]float64, float64) [3]float64 { return [3]float64{} }

// Cutoff implements Potential.
func (z *Zero) Cutoff() float64 { return z.cutoff }

// SetCutoff sets the potential's cutoff radius.
func (z *Zero) SetCutoff(cutoff float64) error {
	if !(cutoff > 0) {
		return errors.E(errors.Invalid, fmt.Sprintf("zero potential: invalid cutoff %v", cutoff))
	}
	z.cutoff = cutoff
	return nil
}

// Energy returns the energy at distance dist.
func (z *Zero) Energy(dist float64) float64 {
	return z.EnergySqr(dist * dist)
}

func (z *Zero) String() string {
	return fmt.Sprintf("zero(cutoff=%v)", z.cutoff)
}
