// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package pmi

import (
	"fmt"
	"strings"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/pmi/typecheck"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

type counter struct {
	rank, n int
}

func (c *counter) Add(n int) error {
	if n < 0 {
		return fmt.Errorf("negative increment %d", n)
	}
	c.n += n
	return nil
}

func (c *counter) Value() int { return c.n }
func (c *counter) Rank() int  { return c.rank }
func (c *counter) Boom()      { panic("boom") }

var counterFamily = Register(Family{
	Name: "pmi.testCounter",
	New: func(env Env, start int) *counter {
		return &counter{rank: env.Rank, n: start}
	},
	Methods: map[Method]string{
		"Add":   "Add",
		"Value": "Value",
		"Get":   "Value",
		"Rank":  "Rank",
		"Boom":  "Boom",
	},
})

func TestFamily(t *testing.T) {
	f, ok := Lookup("pmi.testCounter")
	assert.True(t, ok)
	expect.True(t, f == counterFamily)
	expect.EQ(t, f.NumIn(), 1)
	expect.EQ(t, f.NumMethodIn("Add"), 1)
	expect.True(t, f.Returns("Value"))
	expect.False(t, f.Returns("Add"))
	expect.True(t, f.Has("Get"))
	expect.False(t, f.Has("Sub"))
	expect.EQ(t, f.String(), "pmi.testCounter(support)")

	names := Families()
	var found bool
	for _, name := range names {
		found = found || name == "pmi.testCounter"
	}
	expect.True(t, found)
}

func TestFamilyConstruct(t *testing.T) {
	native, err := counterFamily.Construct(Env{Rank: 3, Size: 4}, []interface{}{int64(5)})
	assert.NoError(t, err)
	v, err := counterFamily.Invoke(native, "Rank", nil)
	assert.NoError(t, err)
	expect.EQ(t, v, 3)
	_, err = counterFamily.Invoke(native, "Add", []interface{}{2.0})
	assert.NoError(t, err)
	v, err = counterFamily.Invoke(native, "Get", nil)
	assert.NoError(t, err)
	expect.EQ(t, v, 7)

	_, err = counterFamily.Invoke(native, "Add", []interface{}{-1})
	if err == nil || !strings.Contains(err.Error(), "negative increment") {
		t.Errorf("got %v, want native error", err)
	}
	_, err = counterFamily.Invoke(native, "Add", []interface{}{"x"})
	if !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}
	_, err = counterFamily.Invoke(native, "Add", nil)
	if !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}
	_, err = counterFamily.Invoke(native, "Sub", nil)
	if !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}
	if _, err := counterFamily.Construct(Env{}, nil); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want invalid", err)
	}
}

func TestFamilyPanic(t *testing.T) {
	native, err := counterFamily.Construct(Env{}, []interface{}{0})
	assert.NoError(t, err)
	_, err = counterFamily.Invoke(native, "Boom", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !isFatal(err) {
		t.Errorf("got %v, want fatal", err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("got %v, want boom", err)
	}
}

func isFatal(err error) bool {
	for err != nil {
		e, ok := err.(*errors.Error)
		if !ok {
			return false
		}
		if e.Severity == errors.Fatal {
			return true
		}
		err = e.Err
	}
	return false
}

func expectRegisterPanic(t *testing.T, f Family, substr string) {
	t.Helper()
	defer func() {
		t.Helper()
		e := recover()
		if e == nil {
			t.Errorf("%s: expected panic", f.Name)
			return
		}
		err, ok := e.(*typecheck.Error)
		if !ok {
			t.Errorf("%s: got %T, want *typecheck.Error", f.Name, e)
			return
		}
		if !strings.Contains(err.Error(), substr) {
			t.Errorf("%s: got %v, want %q", f.Name, err, substr)
		}
	}()
	Register(f)
}

func TestRegisterInvalid(t *testing.T) {
	expectRegisterPanic(t, Family{New: func() int { return 0 }}, "no name")
	expectRegisterPanic(t, Family{Name: "pmi.nil"}, "nil constructor")
	expectRegisterPanic(t, Family{Name: "pmi.notfunc", New: 1}, "non-variadic function")
	expectRegisterPanic(t, Family{Name: "pmi.variadic", New: func(...int) *counter { return nil }}, "non-variadic function")
	expectRegisterPanic(t, Family{Name: "pmi.novalue", New: func() error { return nil }}, "must return a value")
	expectRegisterPanic(t, Family{
		Name:    "pmi.nomethod",
		New:     func() *counter { return nil },
		Methods: map[Method]string{"Sub": "Sub"},
	}, "has no method Sub")
	expectRegisterPanic(t, Family{Name: "pmi.testCounter", New: func() *counter { return nil }}, "already registered")
}
