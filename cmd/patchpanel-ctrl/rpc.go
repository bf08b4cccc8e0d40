package main

import (
	"strings"

	"github.com/urfave/cli/v2"
	"github.com/usnistgov/patchpanel/app/dataplane"
	"github.com/usnistgov/patchpanel/container/vlantag"
	"github.com/usnistgov/patchpanel/core/macaddr"
	"github.com/usnistgov/patchpanel/core/version"
	"github.com/usnistgov/patchpanel/iface"
	"github.com/usnistgov/patchpanel/mgmt/patchmgmt"
	"github.com/usnistgov/patchpanel/mgmt/portmgmt"
	"github.com/usnistgov/patchpanel/mgmt/workermgmt"
)

func portFlag(dst *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "port",
		Usage:       "port `TYPE:ID`, optionally followed by \"nq Q\"",
		Destination: dst,
		Required:    true,
	}
}

func init() {
	var port string
	portArg := func() (arg portmgmt.PortArg, e error) {
		arg.Port, e = iface.ParsePortID(port)
		return
	}

	defineCommand(&cli.Command{
		Name:   "port",
		Usage:  "Manage ports",
		Before: connect,
		After:  disconnect,
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List ports",
				Action: func(c *cli.Context) error {
					return clientDoPrint("Port.List", struct{}{}, &[]portmgmt.PortInfo{})
				},
			},
			{
				Name:  "add",
				Usage: "Add a port",
				Flags: []cli.Flag{portFlag(&port)},
				Action: func(c *cli.Context) error {
					arg, e := portArg()
					if e != nil {
						return e
					}
					return clientDoPrint("Port.Add", arg, &portmgmt.PortInfo{})
				},
			},
			{
				Name:  "del",
				Usage: "Delete a port",
				Flags: []cli.Flag{portFlag(&port)},
				Action: func(c *cli.Context) error {
					arg, e := portArg()
					if e != nil {
						return e
					}
					return client.Call("Port.Del", arg, &struct{}{})
				},
			},
		},
	})
}

func init() {
	var in, out string
	defineCommand(&cli.Command{
		Name:   "patch",
		Usage:  "Manage patches",
		Before: connect,
		After:  disconnect,
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List patches",
				Action: func(c *cli.Context) error {
					return clientDoPrint("Patch.List", struct{}{}, &[]dataplane.PatchStatus{})
				},
			},
			{
				Name:  "add",
				Usage: "Connect an input port queue to an output port queue",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "in", Usage: "input `PORT`", Destination: &in, Required: true},
					&cli.StringFlag{Name: "out", Usage: "output `PORT`", Destination: &out, Required: true},
				},
				Action: func(c *cli.Context) (e error) {
					var arg patchmgmt.PatchArg
					if arg.In, e = iface.ParsePortQueue(in); e != nil {
						return e
					}
					if arg.Out, e = iface.ParsePortQueue(out); e != nil {
						return e
					}
					return client.Call("Patch.Add", arg, &struct{}{})
				},
			},
			{
				Name:  "reset",
				Usage: "Remove every patch",
				Action: func(c *cli.Context) error {
					return client.Call("Patch.Reset", struct{}{}, &struct{}{})
				},
			},
		},
	})
}

func init() {
	var (
		name, typ, port, dir, ability string
		lcore, vlan, vid, pcp         int
		mac                           macaddr.Flag
	)
	attachArg := func() (arg workermgmt.AttachArg, e error) {
		arg.Component = name
		if arg.Port, e = iface.ParsePortQueue(port); e != nil {
			return
		}
		if arg.Dir, e = vlantag.ParseDir(dir); e != nil {
			return
		}
		switch ability {
		case "":
		case vlantag.OpAddTag.String():
			arg.Ability, e = vlantag.AddTag(vid, pcp)
		case vlantag.OpDelTag.String():
			arg.Ability = vlantag.DelTag()
		default:
			e = arg.Ability.Op.UnmarshalText([]byte(ability))
		}
		return
	}
	classifierArg := func() (arg workermgmt.ClassifierArg, e error) {
		text, _ := mac.MarshalText()
		arg.MAC = string(text)
		if vlan >= 0 {
			arg.Vlan = &vlan
		}
		arg.Port, e = iface.ParsePortID(port)
		return
	}
	componentFlags := []cli.Flag{
		&cli.StringFlag{Name: "name", Usage: "component `NAME`", Destination: &name, Required: true},
		portFlag(&port),
		&cli.StringFlag{Name: "dir", Usage: "direction `rx|tx`", Destination: &dir, Required: true},
	}
	classifierFlags := []cli.Flag{
		&cli.IntFlag{Name: "vlan", Usage: "VLAN `ID`, negative for untagged", Value: -1, Destination: &vlan},
		&cli.GenericFlag{Name: "mac", Usage: "destination `MAC` or \"default\"", Value: &mac, Required: true},
		portFlag(&port),
	}

	defineCommand(&cli.Command{
		Name:   "status",
		Usage:  "Show dataplane status",
		Before: connect,
		After:  disconnect,
		Action: func(c *cli.Context) error {
			return clientDoPrint("Worker.Status", struct{}{}, &dataplane.Status{})
		},
	})
	defineCommand(&cli.Command{
		Name:   "version",
		Usage:  "Show dataplane version",
		Before: connect,
		After:  disconnect,
		Action: func(c *cli.Context) error {
			return clientDoPrint("Version.Get", struct{}{}, &version.Version{})
		},
	})
	defineCommand(&cli.Command{
		Name:   "forward",
		Usage:  "Start forwarding",
		Before: connect,
		After:  disconnect,
		Action: func(c *cli.Context) error {
			return client.Call("Worker.Forward", struct{}{}, &struct{}{})
		},
	})
	defineCommand(&cli.Command{
		Name:   "stop",
		Usage:  "Stop forwarding",
		Before: connect,
		After:  disconnect,
		Action: func(c *cli.Context) error {
			return client.Call("Worker.Stop", struct{}{}, &struct{}{})
		},
	})
	defineCommand(&cli.Command{
		Name:   "component",
		Usage:  "Manage components",
		Before: connect,
		After:  disconnect,
		Subcommands: []*cli.Command{
			{
				Name:  "start",
				Usage: "Start a component",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "component `NAME`", Destination: &name, Required: true},
					&cli.IntFlag{Name: "lcore", Usage: "lcore `ID`", Destination: &lcore, Required: true},
					&cli.StringFlag{Name: "type", Usage: "component `TYPE`: " + strings.Join(dataplane.ComponentTypes, "|"), Value: dataplane.ComponentClassifierMAC, Destination: &typ},
				},
				Action: func(c *cli.Context) error {
					return client.Call("Worker.StartComponent", workermgmt.ComponentArg{Name: name, LCore: lcore, Type: typ}, &struct{}{})
				},
			},
			{
				Name:  "stop",
				Usage: "Stop a component",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "component `NAME`", Destination: &name, Required: true},
				},
				Action: func(c *cli.Context) error {
					return client.Call("Worker.StopComponent", workermgmt.ComponentArg{Name: name}, &struct{}{})
				},
			},
			{
				Name:  "attach",
				Usage: "Attach a port to a component",
				Flags: append(componentFlags,
					&cli.StringFlag{Name: "ability", Usage: "`add_vlantag|del_vlantag`", Destination: &ability},
					&cli.IntFlag{Name: "vid", Usage: "VLAN `ID` of add_vlantag", Destination: &vid},
					&cli.IntFlag{Name: "pcp", Usage: "`PCP` of add_vlantag", Destination: &pcp},
				),
				Action: func(c *cli.Context) error {
					arg, e := attachArg()
					if e != nil {
						return e
					}
					return client.Call("Worker.AttachPort", arg, &struct{}{})
				},
			},
			{
				Name:  "detach",
				Usage: "Detach a port from a component",
				Flags: componentFlags,
				Action: func(c *cli.Context) error {
					arg, e := attachArg()
					if e != nil {
						return e
					}
					return client.Call("Worker.DetachPort", arg, &struct{}{})
				},
			},
		},
	})
	defineCommand(&cli.Command{
		Name:   "classifier",
		Usage:  "Manage classifier table",
		Before: connect,
		After:  disconnect,
		Subcommands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Add a classifier table entry",
				Flags: classifierFlags,
				Action: func(c *cli.Context) error {
					arg, e := classifierArg()
					if e != nil {
						return e
					}
					return client.Call("Worker.ClassifierAdd", arg, &struct{}{})
				},
			},
			{
				Name:  "del",
				Usage: "Delete a classifier table entry",
				Flags: classifierFlags,
				Action: func(c *cli.Context) error {
					arg, e := classifierArg()
					if e != nil {
						return e
					}
					return client.Call("Worker.ClassifierDel", arg, &struct{}{})
				},
			},
		},
	})
}
