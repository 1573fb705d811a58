// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"sync"
	"sync/atomic"

	"github.com/grailbio/pmi"
)

// OnceTask manages a computation that must be run at most once.
// It's similar to sync.Once, except it also handles and returns errors.
type onceTask struct {
	mu   sync.Mutex
	done uint32
	err  error
}

// Do run the function do at most once. Successive invocations of Do
// guarantee exactly one invocation of the function do. Do returns
// the error of do's invocation.
func (o *onceTask) Do(do func() error) error {
	if atomic.LoadUint32(&o.done) == 1 {
		return o.err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if atomic.LoadUint32(&o.done) == 0 {
		o.err = do()
		atomic.StoreUint32(&o.done, 1)
	}
	return o.err
}

// OnceMap guards the construction of native objects: each handle is
// constructed at most once per rank, even when construction requests
// are retried or duplicated.
type onceMap sync.Map

// Do invokes the construction of the provided handle exactly once,
// and returns any error produced by it. Later calls for the same
// handle return the error of the first.
func (m *onceMap) Do(handle pmi.HandleID, do func() error) error {
	taskv, _ := (*sync.Map)(m).LoadOrStore(handle, new(onceTask))
	task := taskv.(*onceTask)
	return task.Do(do)
}

// Done tells whether a construction of the provided handle has been
// attempted.
func (m *onceMap) Done(handle pmi.HandleID) bool {
	taskv, ok := (*sync.Map)(m).Load(handle)
	return ok && atomic.LoadUint32(&taskv.(*onceTask).done) == 1
}

// Forget forgets the construction of the provided handle, so that it
// may be attempted again.
func (m *onceMap) Forget(handle pmi.HandleID) {
	(*sync.Map)(m).Delete(handle)
}
