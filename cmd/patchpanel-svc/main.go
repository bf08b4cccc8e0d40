// Command patchpanel-svc runs the patch panel dataplane.
package main

import (
	"bytes"
	"context"
	"os"

	"github.com/urfave/cli/v2"
	"github.com/usnistgov/patchpanel/core/logging"
	"github.com/usnistgov/patchpanel/core/version"
	"github.com/usnistgov/patchpanel/core/yamlflag"
	"github.com/usnistgov/patchpanel/mgmt/ctrlconn"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

var logger = logging.New("main")

var userConfig = map[string]any{}

var app = &cli.App{
	Version: version.V.String(),
	Usage:   "Run patch panel dataplane.",
	Flags: []cli.Flag{
		&cli.GenericFlag{
			Name:  "config",
			Usage: "configuration `YAML` document, or @file.yaml",
			Value: yamlflag.New(&userConfig),
		},
		&cli.IntFlag{
			Name:    "client-id",
			Aliases: []string{"n"},
			Usage:   "client `ID` reported in status (overrides config)",
			Value:   -1,
		},
		&cli.StringFlag{
			Name:    "ctrl",
			Aliases: []string{"s"},
			Usage:   "controller `HOST:PORT` (overrides config)",
		},
	},
	Action: func(c *cli.Context) error {
		cfg, e := loadConfig(userConfig)
		if e != nil {
			return cli.Exit(e, 1)
		}
		if id := c.Int("client-id"); id >= 0 {
			cfg.DataPlane.ClientID = id
		}
		if addr := c.String("ctrl"); addr != "" {
			if cfg.Ctrl == nil {
				cfg.Ctrl = &ctrlconn.Config{}
			}
			cfg.Ctrl.Controller = addr
			if e := cfg.Ctrl.Validate(); e != nil {
				return cli.Exit(e, 1)
			}
		}

		if e := run(c.Context, cfg); e != nil {
			return cli.Exit(e, 1)
		}
		return nil
	},
}

func main() {
	var uname unix.Utsname
	unix.Uname(&uname)
	logger.Info("patchpanel-svc starting",
		zap.Any("version", version.V),
		zap.Int("uid", os.Getuid()),
		zap.ByteString("linux", bytes.TrimRight(uname.Release[:], string([]byte{0}))),
	)

	app.RunContext(context.Background(), os.Args)
}
