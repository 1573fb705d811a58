// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package interaction

import "github.com/grailbio/pmi"

// Methods of the collaborator families.
const (
	AddParticle  pmi.Method = "AddParticle"
	NumParticles pmi.Method = "NumParticles"
	AddPair      pmi.Method = "AddPair"
	NumPairs     pmi.Method = "NumPairs"
	AddTuple     pmi.Method = "AddTuple"
	NumTuples    pmi.Method = "NumTuples"
	SetSkin      pmi.Method = "SetSkin"
	SetCutoff    pmi.Method = "SetCutoff"
	Energy       pmi.Method = "Energy"
)

// The methods of the Interaction base shared by every zero
// interaction family.
var base = map[pmi.Method]string{
	pmi.ComputeEnergy: "ComputeEnergy",
	pmi.ComputeVirial: "ComputeVirial",
	pmi.MaxCutoff:     "MaxCutoff",
}

func with(methods map[pmi.Method]string) map[pmi.Method]string {
	m := make(map[pmi.Method]string, len(base)+len(methods))
	for k, v := range base {
		m[k] = v
	}
	for k, v := range methods {
		m[k] = v
	}
	return m
}

// Collaborator families.
var (
	ZeroFamily = pmi.Register(pmi.Family{
		Name:    "interaction.Zero",
		Variant: pmi.Potential,
		New:     NewZero,
		Methods: map[pmi.Method]string{
			SetCutoff:     "SetCutoff",
			Energy:        "Energy",
			pmi.MaxCutoff: "Cutoff",
		},
	})

	StorageFamily = pmi.Register(pmi.Family{
		Name:    "interaction.Storage",
		Variant: pmi.Support,
		New:     NewStorage,
		Methods: map[pmi.Method]string{
			AddParticle:  "AddParticle",
			NumParticles: "Len",
		},
	})

	VerletListFamily = pmi.Register(pmi.Family{
		Name:    "interaction.VerletList",
		Variant: pmi.Support,
		New:     NewVerletList,
		Methods: map[pmi.Method]string{
			AddPair:  "AddPair",
			NumPairs: "Len",
		},
	})

	FixedPairListFamily = pmi.Register(pmi.Family{
		Name:    "interaction.FixedPairList",
		Variant: pmi.Support,
		New:     NewFixedPairList,
		Methods: map[pmi.Method]string{
			AddPair:  "AddPair",
			NumPairs: "Len",
		},
	})

	FixedTupleListFamily = pmi.Register(pmi.Family{
		Name:    "interaction.FixedTupleList",
		Variant: pmi.Support,
		New:     NewFixedTupleList,
		Methods: map[pmi.Method]string{
			AddTuple:  "AddTuple",
			NumTuples: "Len",
		},
	})

	SystemFamily = pmi.Register(pmi.Family{
		Name:    "interaction.System",
		Variant: pmi.Support,
		New:     NewSystem,
		Methods: map[pmi.Method]string{
			SetSkin: "SetSkin",
		},
	})
)

// Zero interaction families.
var (
	VerletListZeroFamily = pmi.Register(pmi.Family{
		Name:    "interaction.VerletListZero",
		Variant: pmi.FullList,
		New:     NewVerletListZero,
		Methods: with(map[pmi.Method]string{
			pmi.SetPotential:      "SetPotential",
			pmi.GetPotential:      "GetPotential",
			pmi.SetFixedTupleList: "SetFixedTupleList",
		}),
	})

	// TODO(pmi): SetPotentialCG is bound to the atomistic entry point,
	// matching the deployed engine bindings; confirm against the engine
	// contract whether it should bind the coarse-grained table instead.
	VerletListAdressZeroFamily = pmi.Register(pmi.Family{
		Name:    "interaction.VerletListAdressZero",
		Variant: pmi.AdaptiveList,
		New:     NewVerletListAdressZero,
		Methods: with(map[pmi.Method]string{
			pmi.SetFixedTupleList: "SetFixedTupleList",
			pmi.SetPotentialAT:    "SetPotentialAT",
			pmi.SetPotentialCG:    "SetPotentialAT",
		}),
	})

	VerletListHadressZeroFamily = pmi.Register(pmi.Family{
		Name:    "interaction.VerletListHadressZero",
		Variant: pmi.FilteredList,
		New:     NewVerletListHadressZero,
		Methods: with(map[pmi.Method]string{
			pmi.SetFixedTupleList: "SetFixedTupleList",
			pmi.SetPotentialAT:    "SetPotentialAT",
			pmi.SetPotentialCG:    "SetPotentialAT",
		}),
	})

	CellListZeroFamily = pmi.Register(pmi.Family{
		Name:    "interaction.CellListZero",
		Variant: pmi.CellList,
		New:     NewCellListZero,
		Methods: with(map[pmi.Method]string{
			pmi.SetPotential: "SetPotential",
		}),
	})

	FixedPairListZeroFamily = pmi.Register(pmi.Family{
		Name:    "interaction.FixedPairListZero",
		Variant: pmi.FixedPairList,
		New:     NewFixedPairListZero,
		Methods: with(map[pmi.Method]string{
			pmi.SetPotential: "SetPotential",
		}),
	})
)
