// Package patchmgmt provides the Patch management service.
package patchmgmt

import (
	"github.com/usnistgov/patchpanel/app/dataplane"
	"github.com/usnistgov/patchpanel/iface"
)

// PatchArg connects an input port queue to an output port queue.
type PatchArg struct {
	In  iface.PortQueue
	Out iface.PortQueue
}

// PatchMgmt manages the patch graph.
type PatchMgmt struct {
	DP *dataplane.DataPlane
}

// List lists patches.
func (mg PatchMgmt) List(args struct{}, reply *[]dataplane.PatchStatus) error {
	*reply = mg.DP.Status().Patches
	return nil
}

// Add connects In to Out, replacing any existing output of In.
func (mg PatchMgmt) Add(args PatchArg, reply *struct{}) error {
	return mg.DP.Patch(args.In, args.Out)
}

// Reset removes every patch.
func (mg PatchMgmt) Reset(args struct{}, reply *struct{}) error {
	return mg.DP.PatchReset()
}
