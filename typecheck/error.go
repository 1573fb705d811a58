// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package typecheck

import (
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/grailbio/base/errors"
)

// Error is a registration error: a family whose constructor or
// method table does not have a valid shape. It records the source
// location of the offending registration, so that the panic points
// at user code rather than at package pmi.
type Error struct {
	// Err is the underlying error; it is of kind errors.Invalid.
	Err  error
	File string
	Line int
}

// Errorf returns a typechecking error formatted in the manner of
// fmt.Sprintf, located calldepth frames above its caller.
func Errorf(calldepth int, format string, args ...interface{}) *Error {
	e := &Error{Err: errors.E(errors.Invalid, fmt.Sprintf(format, args...))}
	var ok bool
	_, e.File, e.Line, ok = runtime.Caller(calldepth + 1)
	if !ok {
		e.File = "<unknown>"
	}
	return e
}

// Panic panics with a typechecking error with the provided message.
func Panic(calldepth int, message string) {
	panic(Errorf(calldepth+1, "%s", message))
}

// Panicf panics with a formatted typechecking error.
func Panicf(calldepth int, format string, args ...interface{}) {
	panic(Errorf(calldepth+1, format, args...))
}

// Error implements error.
func (e *Error) Error() string {
	return fmt.Sprintf("%s:%d: %v", filepath.Base(e.File), e.Line, e.Err)
}
