package dataplane

import (
	"fmt"
	"slices"

	"github.com/usnistgov/patchpanel/eal/ethdev"
	"github.com/usnistgov/patchpanel/eal/ethdev/afpktdev"
	"github.com/usnistgov/patchpanel/eal/ethdev/memifdev"
	"github.com/usnistgov/patchpanel/eal/ethdev/nulldev"
	"github.com/usnistgov/patchpanel/eal/ethdev/pcapdev"
	"github.com/usnistgov/patchpanel/eal/ethdev/tapdev"
	"github.com/usnistgov/patchpanel/eal/ethdev/vhostdev"
	"github.com/usnistgov/patchpanel/iface"
	"github.com/usnistgov/patchpanel/iface/portstats"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func (dp *DataPlane) openDevice(p iface.PortID) (ethdev.Driver, error) {
	switch p.Type {
	case iface.TypePhy:
		if p.ID >= len(dp.cfg.Phy) {
			return nil, ErrNoPhy
		}
		return nonNil(afpktdev.New(dp.cfg.Phy[p.ID], dp.pool))
	case iface.TypeRing:
		return nonNil(dp.rings.New(p.ID))
	case iface.TypeVhost:
		return nonNil(vhostdev.New(dp.cfg.VhostDir, p.ID, dp.pool))
	case iface.TypePcap:
		return nonNil(pcapdev.New(dp.cfg.PcapDir, p.ID, dp.pool))
	case iface.TypeNull:
		return nulldev.New(), nil
	case iface.TypeTap:
		return nonNil(tapdev.New(p.ID, dp.pool))
	case iface.TypeMemif:
		if dp.memif == nil {
			sock, e := memifdev.NewSocket(dp.cfg.MemifSocket)
			if e != nil {
				return nil, e
			}
			dp.memif = sock
		}
		return nonNil(memifdev.New(dp.memif, p.ID, dp.pool))
	}
	return nil, fmt.Errorf("%w: %s", iface.ErrType, p.Type)
}

// nonNil converts a typed nil driver into an untyped nil.
func nonNil[D ethdev.Driver](d D, e error) (ethdev.Driver, error) {
	if e != nil {
		return nil, e
	}
	return d, nil
}

func (dp *DataPlane) statsRecord(p iface.PortID, handle ethdev.ID) (*portstats.Record, error) {
	if p.Type == iface.TypePhy {
		return dp.stats.Phy(p.ID)
	}
	return dp.stats.Client(int(handle))
}

// AddPort creates a port.
func (dp *DataPlane) AddPort(p iface.PortID) error {
	dp.mutex.Lock()
	defer dp.mutex.Unlock()
	return dp.addPort(p)
}

func (dp *DataPlane) addPort(p iface.PortID) (e error) {
	if _, ok := dp.reg.Get(p); ok {
		return fmt.Errorf("%w: %s", iface.ErrDuplicate, p)
	}

	drv, e := dp.openDevice(p)
	if e != nil {
		logger.Warn("port open error", p.ZapField("port"), zap.Error(e))
		return e
	}
	handle, e := dp.devs.Attach(drv)
	if e != nil {
		drv.Close()
		return e
	}
	defer func() {
		if e != nil {
			dp.devs.Detach(handle)
		}
	}()

	rec, e := dp.statsRecord(p, handle)
	if e != nil {
		return e
	}
	rec.Reset()

	if e = dp.reg.Register(iface.Entry{
		PortID:   p,
		Handle:   handle,
		RxQueues: drv.NRxQueues(),
		TxQueues: drv.NTxQueues(),
		Stats:    rec,
	}); e != nil {
		return e
	}
	logger.Info("port added", p.ZapField("port"), handle.ZapField("handle"), zap.String("kind", drv.Kind()))
	return nil
}

// DelPort removes a port.
// The forwarder is idled; links using the port as input are removed, and links using it as output become inert.
// If any of these changes cannot be published, every prior change is undone, the forwarder resumes its
// previous state, and the port remains registered.
func (dp *DataPlane) DelPort(p iface.PortID) error {
	dp.mutex.Lock()
	defer dp.mutex.Unlock()

	handle, e := dp.reg.Resolve(p)
	if e != nil {
		return fmt.Errorf("%w: %s", e, p)
	}
	wasForwarding := dp.fwd.IsForwarding()
	dp.fwd.Idle()

	var undo []func() error
	rollback := func(e error) error {
		for _, restore := range slices.Backward(undo) {
			e = multierr.Append(e, restore())
		}
		if wasForwarding {
			dp.fwd.Forward()
		}
		logger.Warn("port delete rolled back", p.ZapField("port"), handle.ZapField("handle"), zap.Error(e))
		return e
	}

	restore := dp.graph.Checkpoint()
	if e := dp.graph.RemoveByPort(handle); e != nil {
		return rollback(e)
	}
	undo = append(undo, restore)

	for _, name := range dp.componentNames() {
		c := dp.components[name]
		if !c.HasPort(handle) {
			continue
		}
		restore := c.Checkpoint()
		if e := c.RemovePort(handle); e != nil {
			return rollback(fmt.Errorf("component %s: %w", name, e))
		}
		undo = append(undo, restore)
	}

	if e := dp.abls.ClearPort(handle); e != nil {
		return rollback(e)
	}

	e = multierr.Append(dp.reg.Unregister(p), dp.devs.Detach(handle))
	logger.Info("port deleted", p.ZapField("port"), handle.ZapField("handle"), zap.Error(e))
	return e
}

// PortCounters returns counters of a port.
func (dp *DataPlane) PortCounters(p iface.PortID) (cnt portstats.Counters, e error) {
	ent, ok := dp.reg.Get(p)
	if !ok {
		return cnt, fmt.Errorf("%w: %s", iface.ErrNotFound, p)
	}
	return ent.Stats.Read(), nil
}
