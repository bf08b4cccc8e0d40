package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	lru "github.com/hashicorp/golang-lru"
	"github.com/kballard/go-shellquote"
	"github.com/rickb777/plural"
	"github.com/urfave/cli/v2"
	"github.com/usnistgov/patchpanel/core/version"
	"github.com/usnistgov/patchpanel/iface"
	"github.com/usnistgov/patchpanel/mgmt/ctrlhub"
)

var (
	clientCount = plural.FromZero("no client connected", "%d client connected", "%d clients connected")
	errBye      = errors.New("bye")
)

// lineCommands are the commands of the line protocol, offered for completion.
var lineCommands = []string{
	"status", "forward", "stop", "add", "del", "patch", "exit",
	"component", "port", "classifier_table", "_get_client_id", "_set_client_id",
}

// shell relays command lines from an interactive prompt to connected dataplane processes.
type shell struct {
	hub    *ctrlhub.Hub
	recent *lru.Cache
	out    io.Writer
}

func newShell(hub *ctrlhub.Hub, out io.Writer) *shell {
	recent, _ := lru.New(32)
	return &shell{hub: hub, recent: recent, out: out}
}

// rememberPorts records port names seen in a command line for completion.
func (sh *shell) rememberPorts(args []string) {
	for _, arg := range args {
		if p, e := iface.ParsePortID(arg); e == nil {
			sh.recent.Add(p.String(), nil)
		}
	}
}

func (sh *shell) recentPorts(string) (ports []string) {
	for _, key := range sh.recent.Keys() {
		ports = append(ports, key.(string))
	}
	return ports
}

func (sh *shell) clientIDs(string) (ids []string) {
	for _, id := range sh.hub.Clients() {
		ids = append(ids, strconv.Itoa(id))
	}
	return ids
}

func (sh *shell) completer() readline.AutoCompleter {
	var cmds []readline.PrefixCompleterInterface
	for _, cmd := range lineCommands {
		cmds = append(cmds, readline.PcItem(cmd, readline.PcItemDynamic(sh.recentPorts)))
	}
	return readline.NewPrefixCompleter(
		readline.PcItem("status"),
		readline.PcItem("sec", readline.PcItemDynamic(sh.clientIDs, cmds...)),
		readline.PcItem("bye", readline.PcItem("all")),
		readline.PcItem("help"),
	)
}

// Dispatch executes one shell line.
func (sh *shell) Dispatch(line string) error {
	args, e := shellquote.Split(line)
	if e != nil {
		return e
	}
	if len(args) == 0 {
		return nil
	}

	switch args[0] {
	case "help":
		fmt.Fprintln(sh.out, "status             list connected clients")
		fmt.Fprintln(sh.out, "sec ID COMMAND...  send a command to client ID")
		fmt.Fprintln(sh.out, "bye [all]          quit; 'all' also terminates every client")
	case "status":
		ids := sh.hub.Clients()
		fmt.Fprintln(sh.out, clientCount.FormatInt(len(ids)))
		for _, id := range ids {
			fmt.Fprintf(sh.out, "  sec %d\n", id)
		}
	case "sec":
		if len(args) < 3 {
			return errors.New("usage: sec ID COMMAND...")
		}
		id, e := strconv.Atoi(args[1])
		if e != nil {
			return fmt.Errorf("invalid client ID %q", args[1])
		}
		sh.rememberPorts(args[2:])
		reply, e := sh.hub.Exec(id, shellquote.Join(args[2:]...))
		if e != nil {
			return e
		}
		fmt.Fprintln(sh.out, string(reply))
	case "bye":
		if len(args) > 1 && args[1] == "all" {
			if e := sh.hub.Bye(); e != nil {
				return e
			}
		}
		return errBye
	default:
		return fmt.Errorf("unknown command %q, try 'help'", args[0])
	}
	return nil
}

func (sh *shell) Run() error {
	home, _ := os.UserHomeDir()
	rl, e := readline.NewEx(&readline.Config{
		Prompt:          "patchpanel > ",
		HistoryFile:     filepath.Join(home, ".patchpanel_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "bye",
		AutoComplete:    sh.completer(),
	})
	if e != nil {
		return e
	}
	defer rl.Close()
	sh.out = rl.Stdout()
	fmt.Fprintln(sh.out, version.V.Banner())

	for {
		line, e := rl.Readline()
		switch {
		case errors.Is(e, readline.ErrInterrupt):
			continue
		case errors.Is(e, io.EOF):
			return nil
		case e != nil:
			return e
		}

		switch e := sh.Dispatch(strings.TrimSpace(line)); {
		case errors.Is(e, errBye):
			return nil
		case e != nil:
			fmt.Fprintln(rl.Stderr(), "error:", e)
		}
	}
}

func init() {
	var listen string
	defineCommand(&cli.Command{
		Name:  "serve",
		Usage: "Accept dataplane connections and run an interactive shell",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "listen",
				Usage:       "controller listen `HOST:PORT`",
				Value:       "127.0.0.1:5555",
				Destination: &listen,
			},
		},
		Action: func(c *cli.Context) error {
			hub, e := ctrlhub.Listen(listen)
			if e != nil {
				return e
			}
			defer hub.Close()
			return newShell(hub, os.Stdout).Run()
		},
	})
}
