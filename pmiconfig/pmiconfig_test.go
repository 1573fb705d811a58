// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package pmiconfig

import (
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/config"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

const profile = `
param pmi (
	ranks = 3
	active-ranks = "0,2"
)
`

func TestSession(t *testing.T) {
	p := config.New()
	assert.NoError(t, p.Parse(strings.NewReader(profile)))
	sess, err := Session(p)
	assert.NoError(t, err)
	defer sess.Shutdown()
	expect.EQ(t, sess.Executor(), "local")
	expect.EQ(t, sess.Group().Size(), 3)
	expect.EQ(t, sess.Active().Ranks(), []int{0, 2})
	again, err := Session(p)
	assert.NoError(t, err)
	if again != sess {
		t.Error("profile did not cache the session")
	}

	p = config.New()
	assert.NoError(t, p.Parse(strings.NewReader("param pmi (\n\tactive-ranks = \"0-x\"\n)\n")))
	if _, err := Session(p); err == nil {
		t.Error("expected error")
	}
}

func TestParse(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "pmiconfig")
	defer cleanup()
	save := Path
	defer func() { Path = save }()
	Path = filepath.Join(dir, "config")
	assert.NoError(t, ioutil.WriteFile(Path, []byte(profile), 0644))
	sess, shutdown := Parse()
	defer shutdown()
	expect.EQ(t, sess.Group().Size(), 3)
	expect.EQ(t, sess.Active().Ranks(), []int{0, 2})
}
