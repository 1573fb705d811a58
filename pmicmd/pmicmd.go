// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package pmicmd provides utilities for implementing pmi-based
// command line tools. The main entry point, pmicmd.Main, configures
// a session according to a common set of flags, and then invokes the
// user's driver code.
//
// A pmicmd tool follows this form:
//
//	func main() {
//		var (
//			applicationFlag1 = flag.Int(...)
//			applicationFlag2 = ...
//		)
//		pmicmd.Main(func(sess *exec.Session, args []string) error {
//			ctx := context.Background()
//			storage, err := sess.New(ctx, interaction.StorageFamily)
//			if err != nil {
//				return err
//			}
//			// Build and drive interactions...
//			return nil
//		})
//	}
package pmicmd

import (
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof" // Pprof is included to be exposed on the local diagnostic web server.
	"os"
	"sort"
	"strings"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/pmi/exec"
	"github.com/grailbio/pmi/pmiflags"
)

// Main is a convenient entry point for a pmicmd. Main does not
// return; it should be called after other initialization is
// performed. Main parses (global) flags, and starts a session
// accordingly. Main then invokes the provided func with the session,
// and the unparsed arguments.
//
// Main starts a diagnostic web server (default address :3333), using
// http.DefaultServeMux, which includes pprof handlers, the session's
// handle and trace handlers, as well as bigmachine's aggregated pprof
// handlers when ranks run on bigmachine.
//
// Main shuts the session down and terminates the program after the
// user func returns. If it returns with an error, it is reported and
// the process exits with code 1, otherwise it exits successfully.
func Main(main func(sess *exec.Session, args []string) error) {
	var pf pmiflags.Flags
	pmiflags.RegisterFlags(flag.CommandLine, &pf, "")
	log.AddFlags()
	flag.Parse()
	sess, err := Init(pf)
	if err != nil {
		log.Fatal(err)
	}
	err = main(sess, flag.Args())
	sess.Shutdown()
	if err != nil {
		log.Fatal(err)
	}
	os.Exit(0)
}

// Init starts a session according to the supplied flags.
func Init(pf pmiflags.Flags) (*exec.Session, error) {
	if pf.SystemHelp {
		providers, profiles := pmiflags.ProvidersAndProfiles()
		sort.Strings(providers)
		wr := pf.Output()
		fmt.Fprintf(wr, "%s\n\n", pmiflags.SystemHelpLong)
		fmt.Fprintf(wr, "The available providers are: %v\n", strings.Join(providers, ", "))
		var str []string
		for k, v := range profiles {
			str = append(str, fmt.Sprintf("%v is shorthand for: %v\n", k, v))
		}
		sort.Strings(str)
		for _, s := range str {
			wr.Write([]byte(s))
		}
		os.Exit(0)
	}
	options, err := pf.ExecOptions()
	if err != nil {
		return nil, err
	}
	sess, err := exec.Open(options...)
	if err != nil {
		return nil, err
	}
	DisplayStatus(pf, sess)
	return sess, nil
}

// DisplayStatus arranges for the session's call status to be
// displayed on the console and/or a web page depending on the flags
// specified on the command line. The web page is hosted at
// /debug/status on http.DefaultServeMux.
func DisplayStatus(pf pmiflags.Flags, sess *exec.Session) {
	if pf.ConsoleStatus {
		var console status.Reporter
		go console.Go(os.Stdout, sess.Status())
	}
	if len(pf.HTTPAddress.Address) > 0 {
		sess.HandleDebug(http.DefaultServeMux)
		http.Handle("/debug/status", status.Handler(sess.Status()))
		go func() {
			log.Printf("HTTP Status at: %v\n", pf.HTTPAddress)
			err := http.ListenAndServe(pf.HTTPAddress.Address, nil)
			if err != nil {
				log.Error.Printf("Failed to start HTTP at: %v: %v\n", pf.HTTPAddress, err)
			}
		}()
	}
}
