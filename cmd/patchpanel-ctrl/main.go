// Command patchpanel-ctrl controls patch panel dataplane processes.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"

	"github.com/powerman/rpc-codec/jsonrpc2"
	"github.com/urfave/cli/v2"
	"github.com/usnistgov/patchpanel/core/version"
	"github.com/usnistgov/patchpanel/mgmt"
)

var (
	mgmtURL string
	client  *jsonrpc2.Client
)

func defineCommand(command *cli.Command) {
	app.Commands = append(app.Commands, command)
}

// clientDoPrint invokes an RPC method and prints the reply as JSON lines.
func clientDoPrint(method string, args, reply any) error {
	if e := client.Call(method, args, reply); e != nil {
		return e
	}

	if val := reflect.Indirect(reflect.ValueOf(reply)); val.Kind() == reflect.Slice {
		for i := range val.Len() {
			j, _ := json.Marshal(val.Index(i).Interface())
			fmt.Println(string(j))
		}
	} else {
		j, _ := json.Marshal(val.Interface())
		fmt.Println(string(j))
	}
	return nil
}

var app = &cli.App{
	Version: version.V.String(),
	Usage:   "Control patch panel dataplane.",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:        "mgmt",
			Usage:       "management `URL` of patchpanel-svc",
			Value:       mgmt.DefaultURL,
			EnvVars:     []string{mgmt.EnvMgmt},
			Destination: &mgmtURL,
		},
	},
}

func connect(c *cli.Context) (e error) {
	client, e = mgmt.Dial(mgmtURL)
	return e
}

func disconnect(c *cli.Context) error {
	if client == nil {
		return nil
	}
	return client.Close()
}

func main() {
	if e := app.Run(os.Args); e != nil {
		fmt.Fprintln(os.Stderr, e)
		os.Exit(1)
	}
}
