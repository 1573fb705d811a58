// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package pmiflags provides flag support for use by pmi command
// line applications.
package pmiflags

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/user"
	"strconv"
	"strings"
	"sync"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigmachine"
	"github.com/grailbio/bigmachine/ec2system"
	"github.com/grailbio/pmi"
	"github.com/grailbio/pmi/exec"
)

var (
	mu        sync.Mutex
	providers = map[string]Provider{} // protected by mu
	profiles  = map[string]string{}   // protected by mu
)

// Provider represents a provider of ranks that can be configured by
// setting some set of options via Set.
type Provider interface {
	// Name returns the name of a provider instance.
	Name() string
	// Set sets one or more options for the ranks to be provided. The
	// options may be specified as key=val.
	Set(string) error
	// ExecOption returns the exec.Option that requests a compute
	// group of the provided number of ranks, as configured by the
	// currently set options.
	ExecOption(ranks int) exec.Option
	// DefaultRanks returns the default compute group size for this
	// provider.
	DefaultRanks() int
}

// RegisterSystemProvider registers a 'system' provider, i.e., any
// service that can provide ranks to a pmi session.
func RegisterSystemProvider(name string, provider Provider) {
	mu.Lock()
	defer mu.Unlock()
	if _, present := providers[name]; present {
		log.Panicf("system %s is already registered", name)
	}
	providers[name] = provider
}

// RegisterSystemProfile registers a system 'profile' which is a named
// shorthand for a system and any associated options. For example an
// application that registers a profile of:
//   pmiflags.RegisterSystemProfile("md-ec2", "ec2:instance=c5.2xlarge")
// can accept
//   --system=md-ec2
// as a synonym for
//   --system=ec2:instance=c5.2xlarge
func RegisterSystemProfile(name, profile string) {
	mu.Lock()
	defer mu.Unlock()
	if _, present := providers[name]; present {
		log.Panicf("profile %s is already used as a provider name", name)
	}
	if _, present := profiles[name]; present {
		log.Panicf("profile %s is already registered", name)
	}
	profiles[name] = profile
}

// ProvidersAndProfiles returns the supported providers and profiles.
func ProvidersAndProfiles() ([]string, map[string]string) {
	mu.Lock()
	defer mu.Unlock()
	prv := make([]string, 0, len(providers))
	for k := range providers {
		prv = append(prv, k)
	}
	prf := make(map[string]string, len(profiles))
	for k, v := range profiles {
		prf[k] = v
	}
	return prv, prf
}

// Internal runs every rank in-process.
type Internal struct{}

// Name implements Provider.Name.
func (*Internal) Name() string { return "internal" }

// Set implements Provider.Set.
func (*Internal) Set(_ string) error {
	return fmt.Errorf("the internal provider does not support any configuration")
}

// ExecOption implements Provider.ExecOption.
func (*Internal) ExecOption(ranks int) exec.Option {
	return exec.Local(ranks)
}

// DefaultRanks implements Provider.DefaultRanks.
func (*Internal) DefaultRanks() int { return 1 }

// Local runs each rank in a separate process on the local machine.
type Local struct{}

// Name implements Provider.Name.
func (*Local) Name() string { return "local" }

// Set implements Provider.Set.
func (*Local) Set(_ string) error {
	return fmt.Errorf("the local provider does not support any configuration")
}

// ExecOption implements Provider.ExecOption.
func (*Local) ExecOption(ranks int) exec.Option {
	return exec.Bigmachine(bigmachine.Local, ranks)
}

// DefaultRanks implements Provider.DefaultRanks.
func (*Local) DefaultRanks() int { return 2 }

// EC2 runs each rank on its own AWS EC2 instance.
type EC2 struct {
	Options map[string]interface{}
}

// Name implements Provider.Name.
func (*EC2) Name() string { return "EC2" }

// Set implements Provider.Set.
func (ec2 *EC2) Set(v string) error {
	if ec2.Options == nil {
		ec2.Options = make(map[string]interface{}, 5)
	}
	parts := strings.Split(v, "=")
	if len(parts) != 2 {
		return fmt.Errorf("not in key=val format %q", v)
	}
	key, val := parts[0], parts[1]
	switch key {
	case "dataspace", "rootsize":
		i, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return fmt.Errorf("not an int: %v", val)
		}
		ec2.Options[key] = uint(i)
	case "instance", "profile":
		ec2.Options[key] = val
	case "ondemand":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("not a bool: %v", val)
		}
		ec2.Options[key] = b
	default:
		return fmt.Errorf("unsupported option: %v", key)
	}
	return nil
}

// DefaultRanks implements Provider.DefaultRanks.
func (*EC2) DefaultRanks() int { return 4 }

// ExecOption implements Provider.ExecOption.
func (ec2 *EC2) ExecOption(ranks int) exec.Option {
	if ec2.Options == nil {
		return exec.Bigmachine(&ec2system.System{}, ranks)
	}
	system := &ec2system.System{Username: "unknown"}
	if u, err := user.Current(); err == nil {
		system.Username = u.Username
	} else {
		log.Printf("ec2: get current user: %v", err)
	}
	for key, val := range ec2.Options {
		switch key {
		case "instance":
			system.InstanceType = val.(string)
		case "dataspace":
			system.Dataspace = val.(uint)
		case "rootsize":
			system.Diskspace = val.(uint)
		case "profile":
			system.InstanceProfile = val.(string)
		case "ondemand":
			system.OnDemand = val.(bool)
		}
	}
	return exec.Bigmachine(system, ranks)
}

func init() {
	RegisterSystemProvider("local", &Local{})
	RegisterSystemProvider("internal", &Internal{})
	RegisterSystemProvider("ec2", &EC2{})
}

// SystemHelpShort is a short explanation of the allowed SystemFlag values.
func SystemHelpShort(prefix string) string {
	const format = `a pmi system is specified as follows: {local,internal,ec2:[key=val,],name}, use -%s for more information.`
	return fmt.Sprintf(format, prefix+"system-help")
}

// SystemHelpLong is a complete explanation of the allowed SystemFlag values.
const SystemHelpLong = `A pmi system is specified as follows:

<system-type>:<options> where options is [key=value,]+

Each rank of the compute group is served by the system. The currently
supported system types and their options are as follows:

internal: all ranks run in-process, the default.
local: each rank runs in a separate process on this machine.
ec2: each rank runs on its own AWS EC2 instance. The supported options are:
	instance=<AWS instance type> - the AWS instance type, e.g. m4.xlarge
	dataspace=<number> - size of the data volume in GiB, typically /mnt/data.
	rootsize=<number> - size of the root volume in GiB.
	ondemand - true to use on-demand rather than spot instances
	profile - the aws instance profile to use instead of a default

In addition, an application may register 'profiles' that are shorthand
for the above, eg. "md-ec2" can be configured as a synonym for
ec2:instance=c5.2xlarge.
`

// SystemFlag represents a flag that can be used to specify the system
// that serves a session's ranks.
type SystemFlag struct {
	Provider  Provider
	Options   []string
	Specified bool
}

// String implements flag.Value.String
func (sys *SystemFlag) String() string {
	if sys.Provider == nil {
		return ""
	}
	if len(sys.Options) == 0 {
		return sys.Provider.Name()
	}
	return fmt.Sprintf("%v:%v", sys.Provider.Name(), strings.Join(sys.Options, ","))
}

// Set implements flag.Value.Set
func (sys *SystemFlag) Set(v string) error {
	parse := func(s string) (name string, options []string) {
		parts := strings.SplitN(s, ":", 2)
		name = parts[0]
		if len(parts) > 1 {
			options = strings.Split(parts[1], ",")
		}
		return
	}
	name, options := parse(v)
	mu.Lock()
	if profile, ok := profiles[name]; ok {
		var profileOptions []string
		name, profileOptions = parse(profile)
		options = append(profileOptions, options...)
	}
	provider, ok := providers[name]
	mu.Unlock()
	if !ok {
		return fmt.Errorf("unsupported system or profile type: %v", name)
	}
	for _, opt := range options {
		if err := provider.Set(opt); err != nil {
			return err
		}
	}
	sys.Options = options
	sys.Provider = provider
	sys.Specified = true
	return nil
}

// Get implements flag.Value.Get
func (sys *SystemFlag) Get() interface{} {
	return sys.String()
}

// Flags represents all of the flags that can be used to configure a
// pmi command.
type Flags struct {
	System        SystemFlag
	SystemHelp    bool
	HTTPAddress   cmdutil.NetworkAddressFlag
	ConsoleStatus bool
	// Ranks is the size of the compute group; 0 requests the
	// provider's default.
	Ranks int
	// ActiveRanks is a list of active ranks and rank ranges, as
	// parsed by pmi.ParseRanks. All ranks are active if empty.
	ActiveRanks string
	MaxFanout   int
	TracePath   string
	fs          *flag.FlagSet
}

// Output returns an appropriate io.Writer for printing out help/usage
// messages as per the underlying flag.FlagSet.
func (pf *Flags) Output() io.Writer {
	if pf.fs == nil {
		return os.Stderr
	}
	if wr := pf.fs.Output(); wr != nil {
		return wr
	}
	return os.Stderr
}

// RegisterFlags registers the pmi command line flags with the supplied
// flag set. The flag names will be prefixed with the supplied prefix.
func RegisterFlags(fs *flag.FlagSet, pf *Flags, prefix string) {
	RegisterFlagsWithDefaults(fs, pf, prefix, Defaults{
		System:      "internal",
		HTTPAddress: ":3333",
	})
}

// ExecOptions parses the flag values and returns a slice of
// exec.Options that represent the session specified by those flags.
func (pf *Flags) ExecOptions() ([]exec.Option, error) {
	var pmiStatus status.Status
	// Ensure bigmachine's group is displayed first.
	_ = pmiStatus.Group("bigmachine")
	_ = pmiStatus.Groups()

	ranks := pf.Ranks
	if ranks <= 0 {
		ranks = pf.System.Provider.DefaultRanks()
	}
	options := []exec.Option{
		exec.Status(&pmiStatus),
		pf.System.Provider.ExecOption(ranks),
	}
	if pf.ActiveRanks != "" {
		active, err := pmi.ParseRanks(pf.ActiveRanks)
		if err != nil {
			return nil, err
		}
		options = append(options, exec.ActiveRanks(active...))
	}
	if pf.MaxFanout > 0 {
		options = append(options, exec.MaxFanout(pf.MaxFanout))
	}
	if pf.TracePath != "" {
		options = append(options, exec.TracePath(pf.TracePath))
	}
	return options, nil
}

// Defaults represents default values for the supported flags.
type Defaults struct {
	System        string
	HTTPAddress   string
	ConsoleStatus bool
	Ranks         int
	ActiveRanks   string
	MaxFanout     int
	TracePath     string
}

// RegisterFlagsWithDefaults registers the pmi command line flags with
// the supplied flag set and defaults. The flag names will be prefixed
// with the supplied prefix.
func RegisterFlagsWithDefaults(fs *flag.FlagSet, pf *Flags, prefix string, defaults Defaults) {
	fs.Var(&pf.System, prefix+"system", SystemHelpShort(prefix))
	if err := pf.System.Set(defaults.System); err != nil {
		log.Panicf("pmiflags: default system %q: %v", defaults.System, err)
	}
	pf.System.Specified = false
	fs.Var(&pf.HTTPAddress, prefix+"http", "address of http status server")
	if defaults.HTTPAddress != "" {
		pf.HTTPAddress.Set(defaults.HTTPAddress)
		pf.HTTPAddress.Specified = false
	}
	fs.BoolVar(&pf.ConsoleStatus, prefix+"console-status", defaults.ConsoleStatus, "print status to stdout")
	fs.IntVar(&pf.Ranks, prefix+"ranks", defaults.Ranks, "size of the compute group, 0 requests an appropriate default for the system")
	fs.StringVar(&pf.ActiveRanks, prefix+"active-ranks", defaults.ActiveRanks, "comma-separated list of active ranks and rank ranges (e.g., 0,2-3); all ranks are active if empty")
	fs.IntVar(&pf.MaxFanout, prefix+"max-fanout", defaults.MaxFanout, "maximum number of ranks to which a call is delivered concurrently, 0 for no limit")
	fs.StringVar(&pf.TracePath, prefix+"trace", defaults.TracePath, "path to which a trace of replicated calls is written on shutdown")
	fs.BoolVar(&pf.SystemHelp, prefix+"system-help", false, "provide help on system providers and profiles")
	pf.fs = fs
}
