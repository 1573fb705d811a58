// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

/*
	Package pmi implements parallel method invocation: a controller
	process issues method calls on proxy objects, and every call is
	replicated to all processes ("ranks") of a compute group, each of
	which holds its own rank-local ("native") instance of the object.

	A run may restrict computation to an active subgroup of ranks.
	Before constructing or invoking a native object, each rank consults
	the subgroup gate (IsActive): active ranks execute the call, while
	inactive ranks skip it silently and report no value for queries.

	Objects are described by families (see Family and Register). A
	family names a constructor and a table of methods that its proxies
	may call; a single generic proxy type (exec.Proxy) serves every
	family. Package interaction registers the zero-interaction families
	used in molecular dynamics benchmarks; package exec implements the
	controller, the replicated call protocol and the local and
	bigmachine-based executors.

	A typical driver:

		sess := exec.Start(exec.Local(4), exec.ActiveRanks(0, 1))
		defer sess.Shutdown()
		zero, err := sess.New(ctx, interaction.ZeroFamily)
		...
		vl, err := sess.New(ctx, interaction.VerletListFamily, storage, 2.5)
		...
		inter, err := sess.New(ctx, interaction.VerletListZeroFamily, vl)
		...
		err = inter.Call(ctx, pmi.SetPotential, 0, 1, zero)

	Families must be registered (typically in package init) identically
	in every process of a run, as ranks look them up by name.

	Commands are conveniently built with package pmicmd, which
	configures a session from flags (package pmiflags); package
	pmiconfig configures one from a shared profile instead.
*/
package pmi
