package dataplane

import (
	"fmt"
	"slices"

	"github.com/usnistgov/patchpanel/app/clsworker"
	"github.com/usnistgov/patchpanel/app/fwdworker"
	"github.com/usnistgov/patchpanel/container/classifier"
	"github.com/usnistgov/patchpanel/container/patch"
	"github.com/usnistgov/patchpanel/container/vlantag"
	"github.com/usnistgov/patchpanel/core/macaddr"
	"github.com/usnistgov/patchpanel/eal/ealthread"
	"github.com/usnistgov/patchpanel/eal/ethdev"
	"github.com/usnistgov/patchpanel/iface"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Component types.
const (
	ComponentClassifierMAC = "classifier_mac"
	ComponentForward       = "forward"
	ComponentMerge         = "merge"
)

// ComponentTypes lists valid component types.
var ComponentTypes = []string{ComponentClassifierMAC, ComponentForward, ComponentMerge}

// worker is the control surface of a component thread.
type worker interface {
	ealthread.ThreadWithLoadStat
	Name() string
	AttachRx(ep patch.Endpoint) error
	AttachTx(ep patch.Endpoint) error
	DetachRx(handle ethdev.ID) error
	DetachTx(handle ethdev.ID) error
	HasPort(handle ethdev.ID) bool
	RemovePort(handle ethdev.ID) error
	Ports() (rx, tx []patch.Endpoint)
	Checkpoint() (restore func() error)
	Close() error
}

var (
	_ worker = (*clsworker.Worker)(nil)
	_ worker = (*fwdworker.Worker)(nil)
)

type component struct {
	worker
	typ string
	lc  ealthread.LCore
}

func (dp *DataPlane) newWorker(name, typ string) worker {
	switch typ {
	case ComponentForward:
		return fwdworker.New(name, fwdworker.ModeForward, dp.reg, dp.devs, dp.abls, dp.cfg.Relay)
	case ComponentMerge:
		return fwdworker.New(name, fwdworker.ModeMerge, dp.reg, dp.devs, dp.abls, dp.cfg.Relay)
	default:
		return clsworker.New(name, dp.reg, dp.devs, dp.abls, dp.cfg.Classifier)
	}
}

// StartComponent creates a component and launches its thread on an lcore.
func (dp *DataPlane) StartComponent(name string, lcore int, typ string) error {
	if !slices.Contains(ComponentTypes, typ) {
		return fmt.Errorf("%w: %s", ErrComponentType, typ)
	}

	dp.mutex.Lock()
	defer dp.mutex.Unlock()
	if dp.components[name] != nil {
		return fmt.Errorf("%w: %s", ErrComponentExists, name)
	}

	lc := ealthread.NewLCore(lcore)
	for _, c := range dp.components {
		if c.lc == lc {
			return fmt.Errorf("%w: %s on lcore %s", ErrLCoreUsed, c.Name(), lc)
		}
	}
	if e := dp.cfg.Allocator.Claim(RoleComponent, lc); e != nil {
		return fmt.Errorf("lcore %d: %w", lcore, e)
	}

	w := dp.newWorker(name, typ)
	w.SetLCore(lc)
	w.Launch()
	dp.components[name] = &component{worker: w, typ: typ, lc: lc}
	logger.Info("component started", zap.String("name", name), zap.String("type", typ), lc.ZapField("lc"))
	return nil
}

// StopComponent stops and deletes a component.
func (dp *DataPlane) StopComponent(name string) error {
	dp.mutex.Lock()
	defer dp.mutex.Unlock()
	return dp.stopComponent(name)
}

func (dp *DataPlane) stopComponent(name string) error {
	c := dp.components[name]
	if c == nil {
		return fmt.Errorf("%w: %s", ErrNoComponent, name)
	}
	delete(dp.components, name)
	e := c.Close()
	dp.cfg.Allocator.Free(c.lc)
	logger.Info("component stopped", zap.String("name", name), zap.Error(e))
	return e
}

func (dp *DataPlane) component(name string) (*component, error) {
	c := dp.components[name]
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoComponent, name)
	}
	return c, nil
}

// AttachPort attaches a port to a component as rx or tx.
// If abl is not OpNone, it becomes the ability of the port in that direction.
func (dp *DataPlane) AttachPort(pq iface.PortQueue, dir vlantag.Dir, name string, abl vlantag.Ability) error {
	dp.mutex.Lock()
	defer dp.mutex.Unlock()

	c, e := dp.component(name)
	if e != nil {
		return e
	}
	ep, e := dp.endpoint(pq)
	if e != nil {
		return e
	}

	if dir == vlantag.DirRx {
		e = c.AttachRx(ep)
	} else {
		e = c.AttachTx(ep)
	}
	if e != nil || abl.Op == vlantag.OpNone {
		return e
	}

	if e = dp.abls.Set(ep.Handle, dir, vlantag.Abilities{abl}); e != nil {
		if dir == vlantag.DirRx {
			e = multierr.Append(e, c.DetachRx(ep.Handle))
		} else {
			e = multierr.Append(e, c.DetachTx(ep.Handle))
		}
	}
	return e
}

// DetachPort detaches a port from a component and clears its ability in that direction.
func (dp *DataPlane) DetachPort(pq iface.PortQueue, dir vlantag.Dir, name string) error {
	dp.mutex.Lock()
	defer dp.mutex.Unlock()

	c, e := dp.component(name)
	if e != nil {
		return e
	}
	ep, e := dp.endpoint(pq)
	if e != nil {
		return e
	}

	if dir == vlantag.DirRx {
		e = c.DetachRx(ep.Handle)
	} else {
		e = c.DetachTx(ep.Handle)
	}
	if e != nil {
		return e
	}
	return dp.abls.Set(ep.Handle, dir, nil)
}

// ClassifierEntry identifies a classifier table entry by VLAN, MAC address, and tx port.
type ClassifierEntry struct {
	Vlan classifier.VlanID
	MAC  macaddr.Key
	Port iface.PortID
}

func (dp *DataPlane) classifierEntry(ent ClassifierEntry) (*clsworker.Worker, clsworker.TableEntry, error) {
	handle, e := dp.reg.Resolve(ent.Port)
	if e != nil {
		return nil, clsworker.TableEntry{}, fmt.Errorf("%w: %s", e, ent.Port)
	}
	te := clsworker.TableEntry{Vlan: ent.Vlan, MAC: ent.MAC, Port: handle}
	for _, name := range dp.componentNames() {
		if w, ok := dp.components[name].worker.(*clsworker.Worker); ok && w.HasTx(handle) {
			return w, te, nil
		}
	}
	return nil, te, fmt.Errorf("%w: %s", ErrNoClassifierPort, ent.Port)
}

// ClassifierAdd adds a classifier table entry to the component whose tx port is ent.Port.
func (dp *DataPlane) ClassifierAdd(ent ClassifierEntry) error {
	dp.mutex.Lock()
	defer dp.mutex.Unlock()

	c, te, e := dp.classifierEntry(ent)
	if e != nil {
		return e
	}
	return c.AddEntry(te)
}

// ClassifierDel deletes a classifier table entry.
func (dp *DataPlane) ClassifierDel(ent ClassifierEntry) error {
	dp.mutex.Lock()
	defer dp.mutex.Unlock()

	c, te, e := dp.classifierEntry(ent)
	if e != nil {
		return e
	}
	return c.DelEntry(te)
}

func (dp *DataPlane) componentNames() (names []string) {
	for name := range dp.components {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
