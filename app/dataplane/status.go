package dataplane

import (
	"fmt"
	"slices"

	"github.com/usnistgov/patchpanel/app/clsworker"
	"github.com/usnistgov/patchpanel/container/patch"
	"github.com/usnistgov/patchpanel/eal/ethdev"
	"github.com/usnistgov/patchpanel/iface"
)

// Forwarder states in Status.
const (
	StatusRunning = "running"
	StatusIdling  = "idling"
)

// Status describes ports, patches, and components.
type Status struct {
	ClientID        int                `json:"client-id"`
	Status          string             `json:"status"`
	LCores          []int              `json:"lcores"`
	Ports           []string           `json:"ports"`
	Patches         []PatchStatus      `json:"patches"`
	Components      []ComponentStatus  `json:"components"`
	ClassifierTable []ClassifierStatus `json:"classifier_table"`
}

// PatchStatus describes a patch link with an active output.
type PatchStatus struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
}

// ComponentStatus describes a component.
type ComponentStatus struct {
	LCore  int      `json:"core"`
	Name   string   `json:"name"`
	Type   string   `json:"type"`
	RxPort []string `json:"rx_port"`
	TxPort []string `json:"tx_port"`
}

// ClassifierStatus describes a classifier table entry.
// Type is "mac" for untagged entries, with Value as the MAC address;
// Type is "vlan" for tagged entries, with Value as "VID/MAC".
type ClassifierStatus struct {
	Type  string `json:"type"`
	Value string `json:"value"`
	Port  string `json:"port"`
}

// Status returns current status.
func (dp *DataPlane) Status() (st Status) {
	dp.mutex.Lock()
	defer dp.mutex.Unlock()

	st = Status{
		ClientID:        dp.clientID,
		Status:          StatusIdling,
		LCores:          []int{},
		Ports:           []string{},
		Patches:         []PatchStatus{},
		Components:      []ComponentStatus{},
		ClassifierTable: []ClassifierStatus{},
	}
	if dp.fwd.IsForwarding() {
		st.Status = StatusRunning
	}
	if dp.fwdLCore.Valid() {
		st.LCores = append(st.LCores, dp.fwdLCore.ID())
	}

	for _, ent := range dp.reg.List() {
		nq := ent.MaxQueues()
		for q := range nq {
			st.Ports = append(st.Ports, iface.PortQueue{PortID: ent.PortID, Queue: q}.Format(nq))
		}
	}

	for _, l := range dp.graph.List() {
		if !l.Out.Valid() {
			continue
		}
		st.Patches = append(st.Patches, PatchStatus{Src: dp.formatEndpoint(l.In), Dst: dp.formatEndpoint(l.Out)})
	}

	for _, name := range dp.componentNames() {
		c := dp.components[name]
		if c.lc.Valid() {
			st.LCores = append(st.LCores, c.lc.ID())
		}
		cs := ComponentStatus{
			LCore:  c.lc.ID(),
			Name:   name,
			Type:   c.typ,
			RxPort: []string{},
			TxPort: []string{},
		}
		rx, tx := c.Ports()
		for _, ep := range rx {
			cs.RxPort = append(cs.RxPort, dp.formatEndpoint(ep))
		}
		for _, ep := range tx {
			cs.TxPort = append(cs.TxPort, dp.formatEndpoint(ep))
		}
		st.Components = append(st.Components, cs)

		w, ok := c.worker.(*clsworker.Worker)
		if !ok {
			continue
		}
		for _, ent := range w.Entries() {
			cls := ClassifierStatus{Type: "mac", Value: ent.MAC.String(), Port: dp.formatHandle(ent.Port)}
			if ent.Vlan.IsTagged() {
				cls.Type, cls.Value = "vlan", fmt.Sprintf("%d/%s", ent.Vlan, ent.MAC)
			}
			st.ClassifierTable = append(st.ClassifierTable, cls)
		}
	}
	slices.Sort(st.LCores)
	return st
}

func (dp *DataPlane) formatEndpoint(ep patch.Endpoint) string {
	ent, ok := dp.reg.ByHandle(ep.Handle)
	if !ok {
		return iface.TypeUndefined.String()
	}
	return iface.PortQueue{PortID: ent.PortID, Queue: ep.Queue}.Format(ent.MaxQueues())
}

func (dp *DataPlane) formatHandle(handle ethdev.ID) string {
	return dp.formatEndpoint(patch.Endpoint{Handle: handle})
}
