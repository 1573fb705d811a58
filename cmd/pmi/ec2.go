// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"
	"github.com/grailbio/pmi/pmiconfig"
)

func setupEc2Usage(flags *flag.FlagSet) {
	fmt.Fprint(os.Stderr, `usage: pmi setup-ec2 [-securitygroup name] [-ranks n] [-instance type]

Command setup-ec2 sets up a security group so that the ranks of a pmi
session can run on AWS EC2, and configures the session to use EC2.
The resulting configuration is written to the pmi configuration file
at `, pmiconfig.Path, `. If a configuration file already exists, then
it is modified in place.

Setup-ec2 tags the security group with the name "pmi"; if a previously
set up security group already exists, no new group is created, but
the configuration is modified to include that security group.

The pmi security group is set up with the following rules:

	allowed: all traffic within the default VPC
	allowed: all outbound
	allowed: inbound SSH connections
	allowed: inbound HTTPS connections

The flags are:
`)
	flags.PrintDefaults()
	os.Exit(2)
}

func setupEc2Cmd(args []string) {
	var (
		flags         = flag.NewFlagSet("pmi setup-ec2", flag.ExitOnError)
		securityGroup = flags.String("securitygroup", "pmi", "name of the security group to set up")
		ranks         = flags.Int("ranks", 4, "number of ranks (instances) in the compute group")
		instance      = flags.String("instance", "c5.2xlarge", "instance type of each rank")
	)
	flags.Usage = func() { setupEc2Usage(flags) }
	flags.Parse(args)
	if flags.NArg() != 0 || *ranks < 1 {
		flags.Usage()
	}

	profile := readProfile()
	if region, ok := profile.Get("aws/env.region"); ok && len(region) > 0 {
		must.Nil(profile.Set("bigmachine/ec2system.default-region", strings.Trim(region, `"`)))
	}
	if v, ok := profile.Get("bigmachine/ec2system.security-group"); ok && v != `""` {
		log.Print("ec2 security group ", v, " already configured")
	} else {
		sess, err := session.NewSession()
		must.Nil(err, "setting up AWS session")
		ident, err := setupEC2SecurityGroup(ec2.New(sess), *securityGroup)
		must.Nil(err, "setting up security group")
		must.Nil(profile.Set("bigmachine/ec2system.security-group", ident))
		log.Print("set up new security group ", ident)
	}
	must.Nil(profile.Set("pmi.system", "bigmachine/ec2system"))
	must.Nil(profile.Set("pmi.ranks", strconv.Itoa(*ranks)))
	must.Nil(profile.Set("bigmachine/ec2system.instance", *instance))
	writeProfile(profile)
	log.Print("wrote configuration to ", pmiconfig.Path)
}

// setupEC2SecurityGroup returns the ID of the security group with the
// provided name, creating it in the account's default VPC if it does
// not exist.
func setupEC2SecurityGroup(svc ec2iface.EC2API, name string) (string, error) {
	describeResp, err := svc.DescribeSecurityGroups(&ec2.DescribeSecurityGroupsInput{
		Filters: []*ec2.Filter{{
			Name:   aws.String("group-name"),
			Values: []*string{aws.String(name)},
		}},
	})
	if err != nil {
		return "", errors.E(errors.Net, fmt.Sprintf("unable to query existing security group %s", name), err)
	}
	if len(describeResp.SecurityGroups) > 0 {
		id := aws.StringValue(describeResp.SecurityGroups[0].GroupId)
		log.Printf("found existing pmi security group %s", id)
		return id, nil
	}
	log.Print("no existing pmi security group found; creating new")
	vpcResp, err := svc.DescribeVpcs(&ec2.DescribeVpcsInput{
		Filters: []*ec2.Filter{{
			Name:   aws.String("isDefault"),
			Values: []*string{aws.String("true")},
		}},
	})
	if err != nil {
		return "", errors.E(errors.Net, "retrieving default VPC", err)
	}
	switch len(vpcResp.Vpcs) {
	case 0:
		return "", errors.E(errors.NotExist,
			"AWS account does not have a default VPC and requires manual setup; "+
				"see https://docs.aws.amazon.com/vpc/latest/userguide/default-vpc.html#create-default-vpc")
	case 1:
	default:
		return "", errors.E(errors.Precondition, "AWS account has multiple default VPCs; needs manual setup")
	}
	vpc := vpcResp.Vpcs[0]
	log.Printf("found default VPC %s", aws.StringValue(vpc.VpcId))
	resp, err := svc.CreateSecurityGroup(&ec2.CreateSecurityGroupInput{
		GroupName:   aws.String(name),
		Description: aws.String("security group automatically created by pmi setup-ec2"),
		VpcId:       vpc.VpcId,
	})
	if err != nil {
		return "", errors.E(fmt.Sprintf("creating security group %s", name), err)
	}
	id := aws.StringValue(resp.GroupId)
	log.Printf("authorizing ingress traffic for security group %s", id)
	_, err = svc.AuthorizeSecurityGroupIngress(&ec2.AuthorizeSecurityGroupIngressInput{
		GroupName: aws.String(name),
		IpPermissions: []*ec2.IpPermission{
			// Ranks talk to each other and to the controller.
			{
				IpProtocol: aws.String("-1"),
				IpRanges:   []*ec2.IpRange{{CidrIp: vpc.CidrBlock}},
				FromPort:   aws.Int64(0),
				ToPort:     aws.Int64(0),
			},
			{
				IpProtocol: aws.String("tcp"),
				IpRanges:   []*ec2.IpRange{{CidrIp: aws.String("0.0.0.0/0")}},
				FromPort:   aws.Int64(22),
				ToPort:     aws.Int64(22),
			},
			// Bigmachine serves the Worker service over HTTPS.
			{
				IpProtocol: aws.String("tcp"),
				IpRanges:   []*ec2.IpRange{{CidrIp: aws.String("0.0.0.0/0")}},
				FromPort:   aws.Int64(443),
				ToPort:     aws.Int64(443),
			},
		},
	})
	if err != nil {
		return "", errors.E(fmt.Sprintf("authorizing security group %s for ingress traffic", id), err)
	}
	log.Printf("tagging security group %s", id)
	_, err = svc.CreateTags(&ec2.CreateTagsInput{
		Resources: []*string{aws.String(id)},
		Tags: []*ec2.Tag{
			{Key: aws.String("pmi-sg"), Value: aws.String("true")},
			{Key: aws.String("Name"), Value: aws.String("pmi")},
		},
	})
	if err != nil {
		log.Error.Printf("tag security group %s: %v", id, err)
	}
	log.Printf("created security group %v", id)
	return id, nil
}
