// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package typecheck contains the typechecking utilities used to
// validate family constructors and native methods, and to coerce
// replicated call arguments into their declared parameter types.
package typecheck

import (
	"math"
	"reflect"
)

var typeOfError = reflect.TypeOf((*error)(nil)).Elem()

// Func returns the parameter types of the function type t. Func
// returns false if t is not a function type or if it is variadic.
func Func(t reflect.Type) (in []reflect.Type, ok bool) {
	if t.Kind() != reflect.Func || t.IsVariadic() {
		return nil, false
	}
	in = make([]reflect.Type, t.NumIn())
	for i := range in {
		in[i] = t.In(i)
	}
	return in, true
}

// Results classifies the results of the function type t. A valid
// function returns nothing, a value, an error, or a value followed
// by an error. Results reports whether t returns a value, whether it
// returns an error, and whether the result shape is valid.
func Results(t reflect.Type) (value, err, ok bool) {
	switch t.NumOut() {
	case 0:
		return false, false, true
	case 1:
		if t.Out(0) == typeOfError {
			return false, true, true
		}
		return true, false, true
	case 2:
		if t.Out(1) != typeOfError || t.Out(0) == typeOfError {
			return false, false, false
		}
		return true, true, true
	default:
		return false, false, false
	}
}

// IsError tells whether t is the error interface type.
func IsError(t reflect.Type) bool { return t == typeOfError }

// Convert returns arg as a value of type param. Arguments are
// assigned directly when possible. Numeric arguments are converted
// between numeric kinds only when the conversion is exact: 2.0 is a
// valid int, but 1.5, -1 as a uint, and 300 as an int8 are not. A nil
// argument yields the zero value of pointer, interface, map and
// slice parameters. Convert returns false if arg cannot be used as a
// param.
func Convert(param reflect.Type, arg interface{}) (reflect.Value, bool) {
	if arg == nil {
		switch param.Kind() {
		case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(param), true
		}
		return reflect.Value{}, false
	}
	v := reflect.ValueOf(arg)
	if v.Type().AssignableTo(param) {
		return v, true
	}
	if isNumeric(v.Kind()) && isNumeric(param.Kind()) {
		c := v.Convert(param)
		if !exact(v, c) {
			return reflect.Value{}, false
		}
		return c, true
	}
	return reflect.Value{}, false
}

// Exact tells whether the numeric conversion of v to c preserved
// v's value.
func exact(v, c reflect.Value) bool {
	if isFloat(v.Kind()) && isFloat(c.Kind()) {
		// Narrowing floats loses precision; only overflow is rejected.
		f := v.Float()
		return math.IsInf(c.Float(), 0) == math.IsInf(f, 0) || math.IsNaN(f)
	}
	if isFloat(v.Kind()) {
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
			return false
		}
	}
	return c.Convert(v.Type()).Interface() == v.Interface() && sameSign(v, c)
}

// SameSign tells whether v and c agree on being negative. Round
// trips through an unsigned type of the same width otherwise hide
// the wraparound of negative values.
func sameSign(v, c reflect.Value) bool {
	return negative(v) == negative(c)
}

func negative(v reflect.Value) bool {
	switch {
	case isFloat(v.Kind()):
		return v.Float() < 0
	case isUint(v.Kind()):
		return false
	default:
		return v.Int() < 0
	}
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

func isUint(k reflect.Kind) bool {
	switch k {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
