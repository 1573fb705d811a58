// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"github.com/grailbio/base/config"
	"github.com/grailbio/bigmachine"
	"github.com/grailbio/pmi"
)

func init() {
	config.Register("pmi", func(inst *config.Constructor) {
		var (
			ranks, maxFanout int
			active, trace    string
			system           bigmachine.System
		)
		inst.IntVar(&ranks, "ranks", 1, "the number of ranks in the compute group")
		inst.StringVar(&active, "active-ranks", "", "comma-separated list of active ranks and rank ranges (e.g., 0,2-3); all ranks are active if empty")
		inst.IntVar(&maxFanout, "max-fanout", 0, "maximum number of ranks to which a call is delivered concurrently; unbounded if 0")
		inst.StringVar(&trace, "trace", "", "path to which a trace of replicated calls is written on shutdown")
		inst.InstanceVar(&system, "system", "", "the bigmachine system used to run ranks; ranks run in-process if empty")
		inst.Doc = "pmi configures the parallel method invocation runtime"
		inst.New = func() (interface{}, error) {
			var options []Option
			if system != nil {
				options = append(options, Bigmachine(system, ranks))
			} else {
				options = append(options, Local(ranks))
			}
			if active != "" {
				list, err := pmi.ParseRanks(active)
				if err != nil {
					return nil, err
				}
				options = append(options, ActiveRanks(list...))
			}
			if maxFanout > 0 {
				options = append(options, MaxFanout(maxFanout))
			}
			if trace != "" {
				options = append(options, TracePath(trace))
			}
			return Open(options...)
		}
	})
}
