// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/retry"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigmachine"
)

// RetryPolicy is the default retry policy used for idempotent
// machine calls.
var retryPolicy = retry.Backoff(time.Second, 5*time.Second, 1.5)

// FatalErr is used to match fatal errors.
var fatalErr = errors.E(errors.Fatal)

// BigmachineExecutor is an executor that runs each rank on its own
// bigmachine machine. Ranks are assigned in the order in which
// machines are started.
type bigmachineExecutor struct {
	system bigmachine.System
	params []bigmachine.Param
	n      int

	sess     *Session
	b        *bigmachine.B
	machines []*bigmachine.Machine
	status   *status.Group
}

func newBigmachineExecutor(system bigmachine.System, n int, params ...bigmachine.Param) *bigmachineExecutor {
	return &bigmachineExecutor{system: system, n: n, params: params}
}

func (*bigmachineExecutor) Name() string {
	return "bigmachine"
}

// Start starts the bigmachine and boots one machine per rank, each
// running the Worker service. Start fails if any machine fails to
// boot: a compute group cannot run with missing ranks.
//
// TODO(pmi): replace failed machines instead of failing the session.
func (b *bigmachineExecutor) Start(sess *Session) (shutdown func(), err error) {
	b.sess = sess
	b.b = bigmachine.Start(b.system)
	if status := sess.Status(); status != nil {
		b.status = status.Group("bigmachine")
	}
	b.machines, err = startMachines(sess.Context, b.b, b.status, b.n, b.params...)
	if err != nil {
		b.b.Shutdown()
		return nil, err
	}
	return b.b.Shutdown, nil
}

func (b *bigmachineExecutor) Ranks() int {
	return b.n
}

func (b *bigmachineExecutor) Call(ctx context.Context, rank int, serviceMethod string, arg, reply interface{}) error {
	if rank < 0 || rank >= len(b.machines) {
		return errors.E(errors.Invalid, fmt.Sprintf("rank %d is outside of the compute group of size %d", rank, len(b.machines)))
	}
	return b.machines[rank].Call(ctx, serviceMethod, arg, reply)
}

func (b *bigmachineExecutor) HandleDebug(handler *http.ServeMux) {
	b.b.HandleDebug(handler)
}

// Addr returns the address of the machine serving the provided rank.
func (b *bigmachineExecutor) addr(rank int) string {
	return b.machines[rank].Addr
}

// StartMachines starts n machines on b, installing a worker service
// on each of them. StartMachines returns the machines in rank order
// once all of them are in bigmachine.Running state. If any machine
// fails to start, all of them are cancelled and an error is
// returned.
func startMachines(ctx context.Context, b *bigmachine.B, group *status.Group, n int, params ...bigmachine.Param) ([]*bigmachine.Machine, error) {
	params = append([]bigmachine.Param{bigmachine.Services{"Worker": &worker{}}}, params...)
	machines, err := b.Start(ctx, n, params...)
	if err != nil {
		return nil, errors.E(errors.Net, "starting machines", err)
	}
	if len(machines) != n {
		return nil, errors.E(errors.Unavailable, fmt.Sprintf("started %d of %d machines", len(machines), n))
	}
	var (
		wg   sync.WaitGroup
		errs = make([]error, n)
	)
	for i := range machines {
		i, m := i, machines[i]
		var task *status.Task
		if group != nil {
			task = group.Startf("rank %d", i)
			task.Print("waiting for machine to boot")
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-m.Wait(bigmachine.Running)
			if err := m.Err(); err != nil {
				log.Printf("machine %s (rank %d) failed to start: %v", m.Addr, i, err)
				if task != nil {
					task.Printf("failed to start: %v", err)
					task.Done()
				}
				errs[i] = err
				return
			}
			if task != nil {
				task.Title(m.Addr)
				task.Printf("rank %d: running", i)
			}
			log.Printf("machine %v (rank %d) is ready", m.Addr, i)
		}()
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			for _, m := range machines {
				m.Cancel()
			}
			return nil, errors.E(fmt.Sprintf("rank %d", i), err)
		}
	}
	return machines, nil
}
