// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package trace defines the Chrome trace format in which replicated
// calls are recorded, and provides helpers to encode, decode and
// summarize trace files.
package trace

import (
	"encoding/json"
	"io"
	"sort"
)

// T is a trace file.
type T struct {
	Events []Event `json:"traceEvents"`
}

// Event is an event in the Chrome tracing format. The fields are
// mirrored exactly. For more details, see:
//	https://docs.google.com/document/d/1CvAClvFfyA5R-PhYUmn5OOQtYMH4h6I0nSsKchNAySU/preview
type Event struct {
	Pid  int                    `json:"pid"`
	Tid  int                    `json:"tid"`
	Ts   int64                  `json:"ts"`
	Ph   string                 `json:"ph"`
	Dur  int64                  `json:"dur,omitempty"`
	Name string                 `json:"name"`
	Cat  string                 `json:"cat,omitempty"`
	Args map[string]interface{} `json:"args"`
}

// Encode writes t to w as JSON.
func (t *T) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	return enc.Encode(t)
}

// Decode reads a JSON encoded trace from r into t.
func (t *T) Decode(r io.Reader) error {
	dec := json.NewDecoder(r)
	return dec.Decode(t)
}

// Processes returns the process names recorded in the trace, keyed
// by pid.
func (t *T) Processes() map[int]string {
	names := make(map[int]string)
	for _, e := range t.Events {
		if e.Ph != "M" || e.Name != "process_name" {
			continue
		}
		if name, ok := e.Args["name"].(string); ok {
			names[e.Pid] = name
		}
	}
	return names
}

// Calls returns, for each event name, the complete ("X") events
// recorded under that name, ordered by timestamp.
func (t *T) Calls() map[string][]Event {
	calls := make(map[string][]Event)
	for _, e := range t.Events {
		if e.Ph == "X" {
			calls[e.Name] = append(calls[e.Name], e)
		}
	}
	for _, events := range calls {
		sort.Slice(events, func(i, j int) bool { return events[i].Ts < events[j].Ts })
	}
	return calls
}
