// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/grailbio/base/config"
	"github.com/grailbio/base/must"

	// Bring in the instances so that their defaults are printed.
	_ "github.com/grailbio/base/config/aws"
	_ "github.com/grailbio/bigmachine/ec2system"
	_ "github.com/grailbio/pmi/exec"
	"github.com/grailbio/pmi/pmiconfig"
)

func configCmd(args []string) {
	flags := flag.NewFlagSet("pmi config", flag.ExitOnError)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: pmi config\n\nCommand config prints the pmi profile at %s, with defaults.\n", pmiconfig.Path)
		os.Exit(2)
	}
	flags.Parse(args)
	if flags.NArg() != 0 {
		flags.Usage()
	}
	must.Nil(readProfile().PrintTo(os.Stdout))
}

// readProfile reads the profile at pmiconfig.Path; a missing profile
// is empty.
func readProfile() *config.Profile {
	profile := config.New()
	f, err := os.Open(pmiconfig.Path)
	if err == nil {
		must.Nil(profile.Parse(f))
		must.Nil(f.Close())
	} else {
		must.True(os.IsNotExist(err), err)
	}
	return profile
}

// writeProfile atomically replaces the profile at pmiconfig.Path.
func writeProfile(profile *config.Profile) {
	var buf bytes.Buffer
	must.Nil(profile.PrintTo(&buf))
	must.Nil(os.MkdirAll(filepath.Dir(pmiconfig.Path), 0777))
	must.Nil(ioutil.WriteFile(pmiconfig.Path+".tmp", buf.Bytes(), 0666))
	must.Nil(os.Rename(pmiconfig.Path+".tmp", pmiconfig.Path))
}
