// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/retry"
	"github.com/grailbio/base/status"
	"golang.org/x/sync/errgroup"
)

// Replicate delivers the service method to every rank of the group,
// and blocks until every rank has replied. Each rank is sent the
// request returned by arg and replies into the value returned by
// reply. Calls to different ranks proceed concurrently, up to the
// session's maximum fanout.
//
// If any rank fails, replicate returns the error of the lowest
// failing rank; the errors of other ranks are logged. Idempotent
// calls are retried on network errors. There is no timeout: a rank
// that never replies blocks the call until ctx is done.
func (s *Session) replicate(ctx context.Context, c call, serviceMethod string, idempotent bool, arg, reply func(rank int) interface{}) error {
	n := s.group.Size()
	var task *status.Task
	if s.calls != nil {
		task = s.calls.Startf("%s", c)
		task.Printf("replicating to %d ranks", n)
		defer task.Done()
	}
	errs := make([]error, n)
	var g errgroup.Group
	for rank := 0; rank < n; rank++ {
		rank := rank
		g.Go(func() error {
			if s.fanout != nil {
				if err := s.fanout.Acquire(ctx, 1); err != nil {
					errs[rank] = err
					return err
				}
				defer s.fanout.Release(1)
			}
			name := s.rankName(rank)
			s.tracer.Event(rank, name, c, "B")
			var err error
			if idempotent {
				err = s.callRetry(ctx, rank, serviceMethod, arg(rank), reply(rank))
			} else {
				err = s.executor.Call(ctx, rank, serviceMethod, arg(rank), reply(rank))
			}
			if err != nil {
				s.tracer.Event(rank, name, c, "E", "error", err.Error())
			} else {
				s.tracer.Event(rank, name, c, "E")
			}
			errs[rank] = err
			return err
		})
	}
	if g.Wait() == nil {
		return nil
	}
	var (
		err  error
		rank = -1
	)
	for i, e := range errs {
		switch {
		case e == nil:
		case err == nil:
			err, rank = e, i
		default:
			log.Error.Printf("%s: rank %d: %v", c, i, e)
		}
	}
	if errors.Match(fatalErr, err) {
		log.Error.Printf("%s: fatal error on rank %d: %v", c, rank, err)
	}
	if task != nil {
		task.Printf("rank %d: %v", rank, err)
	}
	return errors.E(fmt.Sprintf("%s: rank %d", c, rank), err)
}

// CallRetry calls the service method on the provided rank, retrying
// on network errors according to retryPolicy.
func (s *Session) callRetry(ctx context.Context, rank int, serviceMethod string, arg, reply interface{}) error {
	for retries := 0; ; retries++ {
		err := s.executor.Call(ctx, rank, serviceMethod, arg, reply)
		if err == nil || !errors.Is(errors.Net, err) {
			return err
		}
		log.Printf("%s: rank %d: retrying(%d) call: %v", serviceMethod, rank, retries, err)
		if werr := retry.Wait(ctx, retryPolicy, retries); werr != nil {
			return err
		}
	}
}

func (s *Session) rankName(rank int) string {
	if b, ok := s.executor.(*bigmachineExecutor); ok && rank < len(b.machines) {
		return fmt.Sprintf("rank %d (%s)", rank, b.addr(rank))
	}
	return fmt.Sprintf("rank %d", rank)
}
