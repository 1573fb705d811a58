// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package trace

import (
	"bytes"
	"testing"

	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestTrace(t *testing.T) {
	tr := T{Events: []Event{
		{Pid: 1, Ph: "M", Name: "process_name", Args: map[string]interface{}{"name": "rank 0"}},
		{Pid: 2, Ph: "M", Name: "process_name", Args: map[string]interface{}{"name": "rank 1"}},
		{Pid: 2, Ph: "X", Ts: 30, Dur: 5, Name: "h1.Add"},
		{Pid: 1, Ph: "X", Ts: 10, Dur: 5, Name: "h1.Add"},
		{Pid: 1, Ph: "X", Ts: 20, Dur: 1, Name: "h2.Len"},
		{Pid: 1, Ph: "B", Ts: 40, Name: "h2.Len"},
	}}
	var b bytes.Buffer
	assert.NoError(t, tr.Encode(&b))
	var decoded T
	assert.NoError(t, decoded.Decode(&b))
	expect.EQ(t, len(decoded.Events), len(tr.Events))
	expect.EQ(t, decoded.Processes(), map[int]string{1: "rank 0", 2: "rank 1"})
	calls := decoded.Calls()
	expect.EQ(t, len(calls), 2)
	add := calls["h1.Add"]
	expect.EQ(t, len(add), 2)
	expect.EQ(t, add[0].Pid, 1)
	expect.EQ(t, add[1].Ts, int64(30))
	expect.EQ(t, len(calls["h2.Len"]), 1)
}
