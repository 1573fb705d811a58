// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package pmiconfig provides a mechanism to create a pmi session
// from a shared configuration. Pmiconfig uses the configuration
// mechanism in package github.com/grailbio/base/config, and reads a
// default profile from $HOME/.pmi/config. The session is configured
// by the "pmi" instance, for example:
//
//	param pmi (
//		ranks = 8
//		active-ranks = "0-3"
//		system = bigmachine/ec2system
//	)
package pmiconfig

import (
	"flag"
	"os"

	"github.com/grailbio/base/config"
	"github.com/grailbio/base/must"

	// Used to provide ec2system.System bigmachines.
	_ "github.com/grailbio/bigmachine/ec2system"
	"github.com/grailbio/pmi/exec"
)

// Path determines the location of the pmi profile read by Parse.
var Path = os.ExpandEnv("$HOME/.pmi/config")

// Parse registers configuration flags and calls flag.Parse. It reads
// pmi configuration from Path defined in this package. Parse returns
// a session as configured by the configuration and any flags
// provided, together with a function that shuts it down. Parse
// panics if session creation fails.
func Parse() (sess *exec.Session, shutdown func()) {
	config.RegisterFlags("", Path)
	flag.Parse()
	must.Nil(config.ProcessFlags())
	sess, err := Session(config.Application())
	must.Nil(err)
	return sess, sess.Shutdown
}

// Session returns the session configured by the "pmi" instance of
// the provided profile. Sessions are cached by the profile: repeated
// calls return the same session.
func Session(profile *config.Profile) (*exec.Session, error) {
	var sess *exec.Session
	if err := profile.Instance("pmi", &sess); err != nil {
		return nil, err
	}
	return sess, nil
}
