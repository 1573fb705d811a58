// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package stats provides the counters kept by each rank's worker:
// the number of native objects it holds, the calls it executed,
// skipped, or failed. Each rank's counters are snapshotted into
// Values, which can be summed across the compute group or tabulated
// per rank.
package stats

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"text/tabwriter"
)

// Values is a snapshot of the values in a collection.
type Values map[string]int64

// Copy returns a copy of the values v.
func (v Values) Copy() Values {
	w := make(Values, len(v))
	for k, v := range v {
		w[k] = v
	}
	return w
}

// Keys returns the sorted keys of v.
func (v Values) Keys() []string {
	keys := make([]string, 0, len(v))
	for key := range v {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// String returns an abbreviated string with the values in this
// snapshot sorted by key.
func (v Values) String() string {
	keys := v.Keys()
	for i, key := range keys {
		keys[i] = fmt.Sprintf("%s:%d", key, v[key])
	}
	return strings.Join(keys, " ")
}

// Sum returns the sum of the provided snapshots, key by key. Nil
// snapshots, as returned by inactive or failed ranks, are skipped.
func Sum(snapshots ...Values) Values {
	sum := make(Values)
	for _, v := range snapshots {
		for k, n := range v {
			sum[k] += n
		}
	}
	return sum
}

// WriteTable writes a table of the provided per-rank snapshots to w,
// one row per rank, with a column for every key that appears in any
// snapshot and a final row with their sum.
func WriteTable(w io.Writer, ranks []Values) error {
	keys := Sum(ranks...).Keys()
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "rank\t%s\n", strings.Join(keys, "\t"))
	row := func(name string, v Values) {
		fmt.Fprint(tw, name)
		for _, k := range keys {
			fmt.Fprintf(tw, "\t%d", v[k])
		}
		fmt.Fprintln(tw)
	}
	for rank, v := range ranks {
		row(fmt.Sprint(rank), v)
	}
	row("total", Sum(ranks...))
	return tw.Flush()
}

// A Map is a set of counters keyed by name.
type Map struct {
	mu     sync.Mutex
	values map[string]*Int
}

// NewMap returns a fresh Map.
func NewMap() *Map {
	return &Map{
		values: make(map[string]*Int),
	}
}

// Int returns the counter with the provided name. The counter is
// created if it does not already exist.
func (m *Map) Int(name string) *Int {
	m.mu.Lock()
	v := m.values[name]
	if v == nil {
		v = new(Int)
		m.values[name] = v
	}
	m.mu.Unlock()
	return v
}

// AddAll adds all counters in the map to the provided snapshot.
func (m *Map) AddAll(vals Values) {
	m.mu.Lock()
	for k, v := range m.values {
		vals[k] += v.Get()
	}
	m.mu.Unlock()
}

// An Int is an integer counter. Ints can be atomically
// incremented and set.
type Int struct {
	val int64
}

// Add increments v by delta.
func (v *Int) Add(delta int64) {
	if v == nil {
		return
	}
	atomic.AddInt64(&v.val, delta)
}

// Get returns the current value of a counter.
func (v *Int) Get() int64 {
	if v == nil {
		return 0
	}
	return atomic.LoadInt64(&v.val)
}
