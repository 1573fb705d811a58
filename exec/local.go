// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"fmt"
	"net/http"
	"reflect"
	"runtime/debug"
	"strings"

	"github.com/grailbio/base/errors"
)

var typeOfContext = reflect.TypeOf((*context.Context)(nil)).Elem()

// LocalExecutor is an executor that runs every rank in-process: each
// rank is served by its own worker, and calls are dispatched to it
// directly in the caller's goroutine.
type localExecutor struct {
	workers []*worker
}

func newLocalExecutor(n int) *localExecutor {
	l := &localExecutor{workers: make([]*worker, n)}
	for i := range l.workers {
		l.workers[i] = newWorker()
	}
	return l
}

func (*localExecutor) Name() string {
	return "local"
}

func (l *localExecutor) Start(sess *Session) (shutdown func(), err error) {
	return func() {}, nil
}

func (l *localExecutor) Ranks() int {
	return len(l.workers)
}

// Call dispatches the service method to the worker of the provided
// rank in the manner of bigmachine: the method must have the shape
// func(ctx, arg, reply) error. Panics are recovered as fatal errors.
func (l *localExecutor) Call(ctx context.Context, rank int, serviceMethod string, arg, reply interface{}) (err error) {
	if rank < 0 || rank >= len(l.workers) {
		return errors.E(errors.Invalid, fmt.Sprintf("rank %d is outside of the compute group of size %d", rank, len(l.workers)))
	}
	parts := strings.SplitN(serviceMethod, ".", 2)
	if len(parts) != 2 || parts[0] != "Worker" {
		return errors.E(errors.NotExist, fmt.Sprintf("service method %s", serviceMethod))
	}
	method := reflect.ValueOf(l.workers[rank]).MethodByName(parts[1])
	if !method.IsValid() || method.Type().NumIn() != 3 || method.Type().In(0) != typeOfContext {
		return errors.E(errors.NotExist, fmt.Sprintf("service method %s", serviceMethod))
	}
	argv := reflect.ValueOf(arg)
	replyv := reflect.ValueOf(reply)
	if !argv.IsValid() || !replyv.IsValid() ||
		argv.Type() != method.Type().In(1) || replyv.Type() != method.Type().In(2) {
		return errors.E(errors.Invalid, fmt.Sprintf("%s: got (%T, %T), want (%s, %s)",
			serviceMethod, arg, reply, method.Type().In(1), method.Type().In(2)))
	}
	defer func() {
		if e := recover(); e != nil {
			err = errors.E(errors.Fatal, fmt.Sprintf("%s: rank %d panic: %v\n%s", serviceMethod, rank, e, debug.Stack()))
		}
	}()
	out := method.Call([]reflect.Value{reflect.ValueOf(ctx), argv, replyv})
	if e := out[0].Interface(); e != nil {
		return e.(error)
	}
	return nil
}

func (*localExecutor) HandleDebug(handler *http.ServeMux) {}
