// Package cmdline interprets the line-oriented control protocol.
package cmdline

import (
	"slices"
	"strconv"

	"github.com/kballard/go-shellquote"
	"github.com/usnistgov/patchpanel/app/dataplane"
	"github.com/usnistgov/patchpanel/container/vlantag"
	"github.com/usnistgov/patchpanel/core/logging"
	"github.com/usnistgov/patchpanel/iface"
	"go.uber.org/zap"
)

var logger = logging.New("cmdline")

// Target is the dataplane controlled by an Interpreter.
type Target interface {
	Status() dataplane.Status
	ClientID() int
	SetClientID(id int) error
	Forward()
	Stop()
	AddPort(p iface.PortID) error
	DelPort(p iface.PortID) error
	Patch(in, out iface.PortQueue) error
	PatchReset() error
	StartComponent(name string, lcore int, typ string) error
	StopComponent(name string) error
	AttachPort(pq iface.PortQueue, dir vlantag.Dir, name string, abl vlantag.Ability) error
	DetachPort(pq iface.PortQueue, dir vlantag.Dir, name string) error
	ClassifierAdd(ent dataplane.ClassifierEntry) error
	ClassifierDel(ent dataplane.ClassifierEntry) error
}

var _ Target = (*dataplane.DataPlane)(nil)

// Interpreter executes command lines against a Target.
type Interpreter struct {
	target Target
}

// New creates an Interpreter.
func New(target Target) *Interpreter {
	return &Interpreter{target: target}
}

// Execute runs one command line.
// It returns the JSON reply, and whether the command requests the process to exit.
func (ip *Interpreter) Execute(line string) (reply []byte, exit bool) {
	args, e := shellquote.Split(line)
	if e != nil {
		return marshal(NewResult(newError(CodeWrongFormat, e))), false
	}
	if len(args) == 0 {
		return marshal(NewResult(errorf(CodeWrongFormat, "empty command"))), false
	}

	cmd, ok := commands[args[0]]
	if !ok {
		return marshal(NewResult(errorf(CodeUnknownCommand, "unknown command %q", args[0]))), false
	}

	res, e := cmd(ip.target, args[1:])
	if e != nil {
		logger.Info("command failed", zap.Strings("args", args), zap.Error(e))
		return marshal(NewResult(e)), false
	}
	logger.Debug("command", zap.Strings("args", args))

	if res == nil {
		res = NewResult(nil)
	}
	return marshal(res), args[0] == "exit"
}

type command func(t Target, args []string) (res any, e error)

var commands = map[string]command{
	"status": func(t Target, args []string) (any, error) {
		return t.Status(), nil
	},
	"exit": func(t Target, args []string) (any, error) {
		t.Stop()
		return nil, nil
	},
	"stop": func(t Target, args []string) (any, error) {
		t.Stop()
		return nil, nil
	},
	"forward": func(t Target, args []string) (any, error) {
		t.Forward()
		return nil, nil
	},
	"add": func(t Target, args []string) (any, error) {
		p, e := portArg(args, 0)
		if e != nil {
			return nil, e
		}
		return nil, failed(t.AddPort(p))
	},
	"del": func(t Target, args []string) (any, error) {
		p, e := portArg(args, 0)
		if e != nil {
			return nil, e
		}
		return nil, failed(t.DelPort(p))
	},
	"patch":            cmdPatch,
	"_get_client_id":   func(t Target, args []string) (any, error) { return t.ClientID(), nil },
	"_set_client_id":   cmdSetClientID,
	"component":        cmdComponent,
	"port":             cmdPort,
	"classifier_table": cmdClassifierTable,
}

func cmdPatch(t Target, args []string) (any, error) {
	if len(args) == 1 && args[0] == "reset" {
		return nil, failed(t.PatchReset())
	}
	in, rest, e := takePortQueue(args)
	if e != nil {
		return nil, e
	}
	out, rest, e := takePortQueue(rest)
	if e != nil {
		return nil, e
	}
	if len(rest) > 0 {
		return nil, errorf(CodeWrongFormat, "unexpected %q", rest[0])
	}
	return nil, failed(t.Patch(in, out))
}

func cmdSetClientID(t Target, args []string) (any, error) {
	if len(args) < 1 {
		return nil, errorf(CodeNoParam, "client id missing")
	}
	id, e := strconv.Atoi(args[0])
	if e != nil || id < 0 {
		return nil, errorf(CodeInvalidValue, "invalid client id %q", args[0])
	}
	return nil, failed(t.SetClientID(id))
}

func cmdComponent(t Target, args []string) (any, error) {
	if len(args) < 2 {
		return nil, errorf(CodeNoParam, "usage: component start|stop NAME [LCORE TYPE]")
	}
	switch args[0] {
	case "start":
		if len(args) < 4 {
			return nil, errorf(CodeNoParam, "usage: component start NAME LCORE TYPE")
		}
		lcore, e := strconv.Atoi(args[2])
		if e != nil || lcore < 0 {
			return nil, errorf(CodeInvalidValue, "invalid lcore %q", args[2])
		}
		if !slices.Contains(dataplane.ComponentTypes, args[3]) {
			return nil, errorf(CodeInvalidType, "unknown component type %q", args[3])
		}
		return nil, failed(t.StartComponent(args[1], lcore, args[3]))
	case "stop":
		return nil, failed(t.StopComponent(args[1]))
	}
	return nil, errorf(CodeUnknownCommand, "unknown component action %q", args[0])
}

func cmdPort(t Target, args []string) (any, error) {
	if len(args) < 1 {
		return nil, errorf(CodeNoParam, "usage: port add|del PORT rx|tx NAME [ABILITY]")
	}
	action := args[0]
	if action != "add" && action != "del" {
		return nil, errorf(CodeUnknownCommand, "unknown port action %q", action)
	}

	pq, rest, e := takePortQueue(args[1:])
	if e != nil {
		return nil, e
	}
	if len(rest) < 2 {
		return nil, errorf(CodeNoParam, "direction and component name missing")
	}
	dir, e := vlantag.ParseDir(rest[0])
	if e != nil {
		return nil, errorf(CodeInvalidValue, "%w: %q", e, rest[0])
	}
	name := rest[1]

	if action == "del" {
		if len(rest) > 2 {
			return nil, errorf(CodeWrongFormat, "unexpected %q", rest[2])
		}
		return nil, failed(t.DetachPort(pq, dir, name))
	}

	abl, e := parseAbility(rest[2:])
	if e != nil {
		return nil, e
	}
	return nil, failed(t.AttachPort(pq, dir, name, abl))
}

func parseAbility(args []string) (abl vlantag.Ability, e error) {
	if len(args) == 0 {
		return abl, nil
	}
	switch args[0] {
	case "add_vlantag":
		if len(args) < 3 {
			return abl, errorf(CodeNoParam, "usage: add_vlantag VID PCP")
		}
		vid, e0 := strconv.Atoi(args[1])
		pcp, e1 := strconv.Atoi(args[2])
		if e0 != nil || e1 != nil {
			return abl, errorf(CodeInvalidValue, "invalid VLAN tag %q %q", args[1], args[2])
		}
		if abl, e = vlantag.AddTag(vid, pcp); e != nil {
			return abl, newError(CodeInvalidValue, e)
		}
		args = args[3:]
	case "del_vlantag":
		abl = vlantag.DelTag()
		args = args[1:]
	default:
		return abl, errorf(CodeInvalidType, "unknown ability %q", args[0])
	}
	if len(args) > 0 {
		return abl, errorf(CodeWrongFormat, "unexpected %q", args[0])
	}
	return abl, nil
}

// failed marks an execution error with CodeFailed.
func failed(e error) error {
	if e == nil {
		return nil
	}
	return newError(CodeFailed, e)
}
