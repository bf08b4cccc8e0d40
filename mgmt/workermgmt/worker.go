// Package workermgmt provides the Worker management service.
package workermgmt

import (
	"github.com/usnistgov/patchpanel/app/dataplane"
	"github.com/usnistgov/patchpanel/container/classifier"
	"github.com/usnistgov/patchpanel/core/macaddr"
)

// WorkerMgmt controls the forwarder and classifier components.
type WorkerMgmt struct {
	DP *dataplane.DataPlane
}

// Status returns dataplane status.
func (mg WorkerMgmt) Status(args struct{}, reply *dataplane.Status) error {
	*reply = mg.DP.Status()
	return nil
}

// SetClientID changes the client identifier.
func (mg WorkerMgmt) SetClientID(args ClientIDArg, reply *struct{}) error {
	return mg.DP.SetClientID(args.ClientID)
}

// Forward starts forwarding.
func (mg WorkerMgmt) Forward(args struct{}, reply *struct{}) error {
	mg.DP.Forward()
	return nil
}

// Stop stops forwarding.
func (mg WorkerMgmt) Stop(args struct{}, reply *struct{}) error {
	mg.DP.Stop()
	return nil
}

// StartComponent starts a component.
func (mg WorkerMgmt) StartComponent(args ComponentArg, reply *struct{}) error {
	return mg.DP.StartComponent(args.Name, args.LCore, args.Type)
}

// StopComponent stops a component.
func (mg WorkerMgmt) StopComponent(args ComponentArg, reply *struct{}) error {
	return mg.DP.StopComponent(args.Name)
}

// AttachPort attaches a port queue to a component.
func (mg WorkerMgmt) AttachPort(args AttachArg, reply *struct{}) error {
	return mg.DP.AttachPort(args.Port, args.Dir, args.Component, args.Ability)
}

// DetachPort detaches a port queue from a component.
func (mg WorkerMgmt) DetachPort(args AttachArg, reply *struct{}) error {
	return mg.DP.DetachPort(args.Port, args.Dir, args.Component)
}

// ClassifierAdd adds a classifier table entry.
func (mg WorkerMgmt) ClassifierAdd(args ClassifierArg, reply *struct{}) error {
	ent, e := args.entry()
	if e != nil {
		return e
	}
	return mg.DP.ClassifierAdd(ent)
}

// ClassifierDel deletes a classifier table entry.
func (mg WorkerMgmt) ClassifierDel(args ClassifierArg, reply *struct{}) error {
	ent, e := args.entry()
	if e != nil {
		return e
	}
	return mg.DP.ClassifierDel(ent)
}

func (args ClassifierArg) entry() (ent dataplane.ClassifierEntry, e error) {
	ent.Port, ent.Vlan = args.Port, classifier.Untagged
	if args.Vlan != nil {
		if ent.Vlan, e = classifier.NewVlanID(*args.Vlan); e != nil {
			return ent, e
		}
	}
	mac, e := macaddr.Parse(args.MAC)
	if e != nil {
		return ent, e
	}
	ent.MAC = macaddr.KeyOf(mac)
	return ent, nil
}
