// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/grailbio/pmi/internal/trace"
)

// A tracer tracks the trace events of replicated calls. Trace events
// are logged in the Chrome tracing format and can be visualized using
// its built-in visualization tool (chrome://tracing). Each rank is
// represented as a Chrome "process" (pid=rank+1; pid=0 is the
// controller), and each replicated call is tracked on every rank it
// was delivered to.
//
// As in the Chrome tool, events are coalesced into "complete events"
// (X) at the time of rendering.
type tracer struct {
	mu sync.Mutex

	events     []trace.Event
	callEvents map[callKey][]trace.Event
	// names holds the process names of ranks that have been traced.
	names map[int]string

	// firstEvent is used to store the time of the first observed
	// event so that the offsets in the trace are meaningful.
	firstEvent time.Time
}

// A call identifies a single replicated call.
type call struct {
	// Seq is the session-wide sequence number of the call.
	Seq    uint64
	Handle fmt.Stringer
	Method string
}

func (c call) String() string {
	return fmt.Sprintf("%s.%s", c.Handle, c.Method)
}

// callKey scopes call events to a rank.
type callKey struct {
	rank int
	seq  uint64
}

func newTracer() *tracer {
	return &tracer{
		callEvents: make(map[callKey][]trace.Event),
		names:      make(map[int]string),
	}
}

// Event logs an event of the provided call on the provided rank with
// the given type (ph) and arguments; ph is as in Chrome's tracing
// format. Arguments is list of interleaved key-value pairs that are
// attached as event metadata. Args must be of even length. Rank -1
// denotes the controller.
func (t *tracer) Event(rank int, name string, c call, ph string, args ...interface{}) {
	if t == nil {
		return
	}
	if len(args)%2 != 0 {
		panic("trace.Event: invalid arguments")
	}
	var event trace.Event
	event.Args = make(map[string]interface{}, len(args)/2+1)
	for i := 0; i < len(args); i += 2 {
		event.Args[fmt.Sprint(args[i])] = args[i+1]
	}
	event.Args["seq"] = c.Seq
	event.Ph = ph
	event.Name = c.String()
	event.Cat = "call"
	event.Pid = rank + 1
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.firstEvent.IsZero() {
		t.firstEvent = time.Now()
		event.Ts = 0
	} else {
		event.Ts = time.Since(t.firstEvent).Nanoseconds() / 1e3
	}
	if _, ok := t.names[rank]; !ok {
		t.names[rank] = name
		// Attach "process" name metadata so we can identify the rank.
		t.events = append(t.events, trace.Event{
			Pid:  event.Pid,
			Ts:   event.Ts,
			Ph:   "M",
			Name: "process_name",
			Args: map[string]interface{}{
				"name": name,
			},
		})
	}
	key := callKey{rank, c.Seq}
	t.callEvents[key] = append(t.callEvents[key], event)
}

// Marshal writes the trace captured by t into the writer w in
// Chrome's event tracing format.
func (t *tracer) Marshal(w io.Writer) error {
	t.mu.Lock()
	events := make([]trace.Event, len(t.events))
	copy(events, t.events)
	for _, v := range t.callEvents {
		events = appendCoalesce(events, v)
	}
	t.mu.Unlock()
	tr := trace.T{Events: events}
	return tr.Encode(w)
}

// appendCoalesce appends a set of events on the provided list,
// first coalescing events so that "B" and "E" events are matched
// into a single "X" event. This produces more visually compact (and
// useful) trace visualizations. appendCoalesce also prunes orphan
// events.
func appendCoalesce(list []trace.Event, events []trace.Event) []trace.Event {
	var begIndex = -1
	for _, event := range events {
		if event.Ph == "B" && begIndex < 0 {
			begIndex = len(list)
		}
		if event.Ph == "E" && begIndex >= 0 {
			list[begIndex].Ph = "X"
			list[begIndex].Dur = event.Ts - list[begIndex].Ts
			if list[begIndex].Dur == 0 {
				list[begIndex].Dur = 1
			}
			for k, v := range event.Args {
				if _, ok := list[begIndex].Args[k]; !ok {
					list[begIndex].Args[k] = v
				}
			}
			begIndex = -1
		} else if event.Ph != "E" {
			list = append(list, event)
		} // drop unmatched "E"s
	}
	if begIndex >= 0 {
		// We have an unmatched "B". Drop it.
		copy(list[begIndex:], list[begIndex+1:])
		list = list[:len(list)-1]
	}
	return list
}
