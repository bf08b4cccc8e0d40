package cmdline

import (
	"errors"

	"github.com/usnistgov/patchpanel/app/dataplane"
	"github.com/usnistgov/patchpanel/container/classifier"
	"github.com/usnistgov/patchpanel/core/macaddr"
	"github.com/usnistgov/patchpanel/iface"
)

func portError(e error) *Error {
	if errors.Is(e, iface.ErrType) {
		return newError(CodeInvalidType, e)
	}
	return newError(CodeInvalidValue, e)
}

func portArg(args []string, i int) (p iface.PortID, e error) {
	if len(args) <= i {
		return p, errorf(CodeNoParam, "port missing")
	}
	if p, e = iface.ParsePortID(args[i]); e != nil {
		return p, portError(e)
	}
	return p, nil
}

// takePortQueue consumes "type:id", "type:id nq Q", or "type:idnqQ" from the head of args.
func takePortQueue(args []string) (pq iface.PortQueue, rest []string, e error) {
	if len(args) == 0 {
		return pq, nil, errorf(CodeNoParam, "port missing")
	}
	s, rest := args[0], args[1:]
	if len(rest) >= 2 && rest[0] == "nq" {
		s += " nq " + rest[1]
		rest = rest[2:]
	}
	if pq, e = iface.ParsePortQueue(s); e != nil {
		return pq, rest, portError(e)
	}
	return pq, rest, nil
}

// cmdClassifierTable handles
// "classifier_table add|del mac MAC PORT" and "classifier_table add|del vlan VID MAC PORT".
func cmdClassifierTable(t Target, args []string) (any, error) {
	if len(args) < 2 {
		return nil, errorf(CodeNoParam, "usage: classifier_table add|del mac|vlan ...")
	}
	var op func(dataplane.ClassifierEntry) error
	switch args[0] {
	case "add":
		op = t.ClassifierAdd
	case "del":
		op = t.ClassifierDel
	default:
		return nil, errorf(CodeUnknownCommand, "unknown classifier_table action %q", args[0])
	}

	ent := dataplane.ClassifierEntry{Vlan: classifier.Untagged}
	rest := args[2:]
	switch args[1] {
	case "mac":
	case "vlan":
		if len(rest) < 1 {
			return nil, errorf(CodeNoParam, "VLAN ID missing")
		}
		vid, e := classifier.ParseVlanID(rest[0])
		if e != nil {
			return nil, errorf(CodeInvalidValue, "%w %q", e, rest[0])
		}
		ent.Vlan, rest = vid, rest[1:]
	default:
		return nil, errorf(CodeInvalidType, "unknown classifier type %q", args[1])
	}

	if len(rest) < 2 {
		return nil, errorf(CodeNoParam, "MAC address and port missing")
	}
	if len(rest) > 2 {
		return nil, errorf(CodeWrongFormat, "unexpected %q", rest[2])
	}
	mac, e := macaddr.Parse(rest[0])
	if e != nil {
		return nil, newError(CodeInvalidValue, e)
	}
	ent.MAC = macaddr.KeyOf(mac)
	if ent.Port, e = portArg(rest, 1); e != nil {
		return nil, e
	}
	return nil, failed(op(ent))
}
