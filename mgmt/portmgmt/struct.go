package portmgmt

import (
	"github.com/usnistgov/patchpanel/iface"
	"github.com/usnistgov/patchpanel/iface/portstats"
)

// PortArg identifies a port.
type PortArg struct {
	Port iface.PortID
}

// PortInfo describes a port.
type PortInfo struct {
	Port     iface.PortID
	Handle   int
	RxQueues int
	TxQueues int
	Counters portstats.Counters
}

func newPortInfo(ent iface.Entry) PortInfo {
	return PortInfo{
		Port:     ent.PortID,
		Handle:   int(ent.Handle),
		RxQueues: ent.RxQueues,
		TxQueues: ent.TxQueues,
		Counters: ent.Stats.Read(),
	}
}
