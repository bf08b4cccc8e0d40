// Package portmgmt provides the Port management service.
package portmgmt

import (
	"fmt"

	"github.com/usnistgov/patchpanel/app/dataplane"
	"github.com/usnistgov/patchpanel/iface"
)

// PortMgmt manages logical ports.
type PortMgmt struct {
	DP *dataplane.DataPlane
}

// List lists ports in registration order.
func (mg PortMgmt) List(args struct{}, reply *[]PortInfo) error {
	list := []PortInfo{}
	for _, ent := range mg.DP.Registry().List() {
		list = append(list, newPortInfo(ent))
	}
	*reply = list
	return nil
}

// Get returns information of one port.
func (mg PortMgmt) Get(args PortArg, reply *PortInfo) error {
	ent, ok := mg.DP.Registry().Get(args.Port)
	if !ok {
		return fmt.Errorf("%w: %s", iface.ErrNotFound, args.Port)
	}
	*reply = newPortInfo(ent)
	return nil
}

// Add adds a port.
func (mg PortMgmt) Add(args PortArg, reply *PortInfo) error {
	if e := mg.DP.AddPort(args.Port); e != nil {
		return e
	}
	return mg.Get(args, reply)
}

// Del deletes a port.
func (mg PortMgmt) Del(args PortArg, reply *struct{}) error {
	return mg.DP.DelPort(args.Port)
}
