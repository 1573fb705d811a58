// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"net/http"
)

// Executor is the transport substrate of a session: it provides one
// worker per rank of the compute group, and delivers service calls to
// them. Every rank runs the same Worker service; the executor decides
// where (in-process or on separate machines) the workers live.
type Executor interface {
	// Name returns a human-friendly name for this executor.
	Name() string

	// Start starts the executor's workers. It is called exactly once,
	// before any calls are made. Start returns a function that tears
	// the workers down.
	Start(*Session) (shutdown func(), err error)

	// Ranks returns the number of ranks served by the executor. It is
	// fixed at construction.
	Ranks() int

	// Call invokes the named service method ("Worker.Construct", etc.)
	// on the worker of the provided rank. Call blocks until the worker
	// replies. Errors returned by the worker retain their
	// github.com/grailbio/base/errors kind.
	Call(ctx context.Context, rank int, serviceMethod string, arg, reply interface{}) error

	// HandleDebug adds executor-specific debug handlers to the provided
	// http.ServeMux. This is used to serve diagnostic information
	// relating to the executor.
	HandleDebug(handler *http.ServeMux)
}
