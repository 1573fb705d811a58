// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package pmi

import (
	"fmt"
	"reflect"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/pmi/typecheck"
)

// A Method names an operation that a family's proxies may invoke.
// Methods are mapped onto native methods by the family's method
// table.
type Method string

// The capabilities shared by the interaction families. Families
// expose a subset of these, as declared in their method tables.
const (
	// SetPotential binds a potential to a pair of particle types (or,
	// for fixed pair lists, to the list as a whole).
	SetPotential Method = "SetPotential"
	// GetPotential returns the potential bound to a pair of particle
	// types.
	GetPotential Method = "GetPotential"
	// SetFixedTupleList attaches an auxiliary fixed tuple list.
	SetFixedTupleList Method = "SetFixedTupleList"
	// SetPotentialAT binds an atomistic potential in adaptive
	// resolution schemes.
	SetPotentialAT Method = "SetPotentialAT"
	// SetPotentialCG binds a coarse-grained potential in adaptive
	// resolution schemes.
	SetPotentialCG Method = "SetPotentialCG"
	// ComputeEnergy computes the rank-local interaction energy.
	ComputeEnergy Method = "ComputeEnergy"
	// ComputeVirial computes the rank-local interaction virial.
	ComputeVirial Method = "ComputeVirial"
	// MaxCutoff returns the largest cutoff among bound potentials.
	MaxCutoff Method = "MaxCutoff"
)

// Variant tags the kind of object a family produces.
type Variant int

const (
	// Support families produce collaborator objects (storages, pair
	// lists) that interactions are constructed over.
	Support Variant = iota
	// Potential families produce pair potentials.
	Potential
	// FullList interactions operate over a full neighbor list.
	FullList
	// AdaptiveList interactions operate over an adaptive resolution
	// neighbor list, with separate atomistic and coarse-grained
	// potentials.
	AdaptiveList
	// FilteredList interactions operate over a filtered (hybrid
	// adaptive resolution) neighbor list.
	FilteredList
	// CellList interactions operate over all pairs in a cell storage.
	CellList
	// FixedPairList interactions operate over an explicit list of
	// bonded pairs with a single potential.
	FixedPairList
)

var variantNames = [...]string{
	Support:       "support",
	Potential:     "potential",
	FullList:      "fulllist",
	AdaptiveList:  "adaptivelist",
	FilteredList:  "filteredlist",
	CellList:      "celllist",
	FixedPairList: "fixedpairlist",
}

func (v Variant) String() string {
	if v < 0 || int(v) >= len(variantNames) {
		return fmt.Sprintf("variant(%d)", int(v))
	}
	return variantNames[v]
}

var typeOfEnv = reflect.TypeOf(Env{})

// A Family describes a kind of distributed object: how its
// rank-local native instances are constructed, and which methods
// its proxies may invoke on them. Families are registered with
// Register and looked up by name on every rank.
type Family struct {
	// Name is the family's name, unique within a binary.
	Name string
	// Variant tags the kind of object the family produces.
	Variant Variant
	// New is the constructor of native instances. It must be a
	// function returning either a value, or a value and an error. If
	// its first parameter is of type Env, the rank's environment is
	// supplied by the runtime.
	New interface{}
	// Methods maps each proxy method to the name of the native
	// method that implements it. Several proxy methods may share a
	// native method.
	Methods map[Method]string

	newv   reflect.Value
	env    bool
	params []reflect.Type
	typ    reflect.Type
	value  map[Method]bool
}

var (
	mu       sync.Mutex
	families = map[string]*Family{}
)

// Register typechecks and registers the provided family, returning
// the registered instance. Register panics with a *typecheck.Error
// if the family is malformed: if its constructor is not a valid
// function, or if any of its methods does not name an exported
// method of the native type with a valid result shape. Register
// also panics if a family of the same name is already registered.
func Register(f Family) *Family {
	if f.Name == "" {
		typecheck.Panic(1, "pmi.Register: family has no name")
	}
	t := reflect.TypeOf(f.New)
	if t == nil {
		typecheck.Panicf(1, "pmi.Register %s: nil constructor", f.Name)
	}
	params, ok := typecheck.Func(t)
	if !ok {
		typecheck.Panicf(1, "pmi.Register %s: constructor must be a non-variadic function, got %s", f.Name, t)
	}
	if value, _, ok := typecheck.Results(t); !ok || !value {
		typecheck.Panicf(1, "pmi.Register %s: constructor must return a value, or a value and an error", f.Name)
	}
	fam := &Family{
		Name:    f.Name,
		Variant: f.Variant,
		New:     f.New,
		Methods: make(map[Method]string, len(f.Methods)),
		newv:    reflect.ValueOf(f.New),
		params:  params,
		typ:     t.Out(0),
		value:   make(map[Method]bool, len(f.Methods)),
	}
	if len(params) > 0 && params[0] == typeOfEnv {
		fam.env = true
		fam.params = params[1:]
	}
	for method, native := range f.Methods {
		m, ok := fam.typ.MethodByName(native)
		if !ok {
			typecheck.Panicf(1, "pmi.Register %s: method %s: type %s has no method %s", f.Name, method, fam.typ, native)
		}
		if m.Type.IsVariadic() {
			typecheck.Panicf(1, "pmi.Register %s: method %s: variadic native methods are not supported", f.Name, method)
		}
		value, _, ok := typecheck.Results(m.Type)
		if !ok {
			typecheck.Panicf(1, "pmi.Register %s: method %s: invalid results %s", f.Name, method, m.Type)
		}
		fam.Methods[method] = native
		fam.value[method] = value
	}
	mu.Lock()
	defer mu.Unlock()
	if _, ok := families[f.Name]; ok {
		typecheck.Panicf(1, "pmi.Register: family %s is already registered", f.Name)
	}
	families[f.Name] = fam
	return fam
}

// Lookup returns the registered family with the provided name.
func Lookup(name string) (*Family, bool) {
	mu.Lock()
	f, ok := families[name]
	mu.Unlock()
	return f, ok
}

// Families returns the names of all registered families, sorted.
func Families() []string {
	mu.Lock()
	names := make([]string, 0, len(families))
	for name := range families {
		names = append(names, name)
	}
	mu.Unlock()
	sort.Strings(names)
	return names
}

// Has tells whether the family's proxies may invoke method m.
func (f *Family) Has(m Method) bool {
	_, ok := f.Methods[m]
	return ok
}

// Returns tells whether method m produces a value.
func (f *Family) Returns(m Method) bool {
	return f.value[m]
}

// NumIn returns the number of constructor arguments, excluding the
// runtime-supplied Env.
func (f *Family) NumIn() int { return len(f.params) }

// In returns the type of the i'th constructor argument.
func (f *Family) In(i int) reflect.Type { return f.params[i] }

// Type returns the type of the family's native instances.
func (f *Family) Type() reflect.Type { return f.typ }

// NumMethodIn returns the number of arguments taken by method m.
func (f *Family) NumMethodIn(m Method) int {
	method, _ := f.typ.MethodByName(f.Methods[m])
	// The receiver is the first input of the method type.
	return method.Type.NumIn() - 1
}

func (f *Family) String() string {
	return fmt.Sprintf("%s(%s)", f.Name, f.Variant)
}

// Construct creates a native instance of the family from the
// provided arguments. Native panics are recovered and returned as
// fatal errors.
func (f *Family) Construct(env Env, args []interface{}) (native interface{}, err error) {
	if len(args) != len(f.params) {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("%s: constructor takes %d arguments, got %d", f.Name, len(f.params), len(args)))
	}
	argv := make([]reflect.Value, 0, len(args)+1)
	if f.env {
		argv = append(argv, reflect.ValueOf(env))
	}
	for i, arg := range args {
		v, ok := typecheck.Convert(f.params[i], arg)
		if !ok {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("%s: argument %d: cannot use %T as %s", f.Name, i, arg, f.params[i]))
		}
		argv = append(argv, v)
	}
	out, err := call(f.newv, argv)
	if err != nil {
		return nil, errors.E(fmt.Sprintf("construct %s", f.Name), err)
	}
	return out, nil
}

// Invoke invokes method m on the native instance with the provided
// arguments, returning the method's value, if any. Native panics are
// recovered and returned as fatal errors.
func (f *Family) Invoke(native interface{}, m Method, args []interface{}) (interface{}, error) {
	name, ok := f.Methods[m]
	if !ok {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("%s: no method %s", f.Name, m))
	}
	method := reflect.ValueOf(native).MethodByName(name)
	if !method.IsValid() {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("%s: native %T has no method %s", f.Name, native, name))
	}
	t := method.Type()
	if len(args) != t.NumIn() {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("%s.%s: takes %d arguments, got %d", f.Name, m, t.NumIn(), len(args)))
	}
	argv := make([]reflect.Value, len(args))
	for i, arg := range args {
		v, ok := typecheck.Convert(t.In(i), arg)
		if !ok {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("%s.%s: argument %d: cannot use %T as %s", f.Name, m, i, arg, t.In(i)))
		}
		argv[i] = v
	}
	out, err := call(method, argv)
	if err != nil {
		return nil, errors.E(fmt.Sprintf("%s.%s", f.Name, m), err)
	}
	return out, nil
}

// Call calls fn and interprets its results according to
// typecheck.Results.
func call(fn reflect.Value, argv []reflect.Value) (value interface{}, err error) {
	defer func() {
		if e := recover(); e != nil {
			err = errors.E(errors.Fatal, fmt.Sprintf("native panic: %v\n%s", e, debug.Stack()))
		}
	}()
	out := fn.Call(argv)
	hasValue, hasErr, _ := typecheck.Results(fn.Type())
	if hasErr {
		if e := out[len(out)-1].Interface(); e != nil {
			return nil, e.(error)
		}
	}
	if hasValue {
		value = out[0].Interface()
	}
	return value, nil
}
