// Package clsworker implements the classifier component, a polling thread that dispatches
// packets from one rx port to several tx ports by destination MAC address and VLAN.
package clsworker

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/usnistgov/patchpanel/container/classifier"
	"github.com/usnistgov/patchpanel/container/dblbuf"
	"github.com/usnistgov/patchpanel/container/patch"
	"github.com/usnistgov/patchpanel/container/vlantag"
	"github.com/usnistgov/patchpanel/core/logging"
	"github.com/usnistgov/patchpanel/core/macaddr"
	"github.com/usnistgov/patchpanel/eal/ealthread"
	"github.com/usnistgov/patchpanel/eal/ethdev"
	"github.com/usnistgov/patchpanel/iface"
	"github.com/usnistgov/patchpanel/iface/portstats"
	"go.uber.org/zap"
)

var logger = logging.New("clsworker")

// Errors.
var (
	ErrRxBusy     = errors.New("component already has an rx port")
	ErrTooManyTx  = errors.New("too many tx ports")
	ErrPortExists = errors.New("port already attached to component")
	ErrNoPort     = errors.New("port not attached to component")
	ErrNotTx      = errors.New("port is not a tx port of component")
	ErrNoEntry    = errors.New("classifier entry not found")
)

// TableEntry is a classifier table entry that refers to a tx port by handle.
type TableEntry struct {
	Vlan classifier.VlanID
	MAC  macaddr.Key
	Port ethdev.ID
}

type port struct {
	patch.Endpoint
	dev   ethdev.Driver
	stats *portstats.Record
}

// snapshot is the published state of a component.
type snapshot struct {
	rx    port
	tx    []port
	table classifier.Snapshot
}

// Worker is a classifier component.
type Worker struct {
	ealthread.Thread
	name string
	cfg  Config
	reg  *iface.Registry
	devs patch.Devices

	mutex   sync.Mutex
	rx      patch.Endpoint
	tx      []patch.Endpoint
	entries []TableEntry
	arena   *dblbuf.Arena[snapshot]

	reader    *dblbuf.Reader[snapshot]
	ablReader *dblbuf.Reader[vlantag.Snapshot]
	stop      ealthread.StopChan
	load      ealthread.LoadCounter
	loop      loopState
}

var _ ealthread.ThreadWithLoadStat = (*Worker)(nil)

// New creates a Worker.
// The Worker has no ports and its thread is not launched.
func New(name string, reg *iface.Registry, devs patch.Devices, abls *vlantag.Table, cfg Config) *Worker {
	cfg.applyDefaults()
	w := &Worker{
		name:  name,
		cfg:   cfg,
		reg:   reg,
		devs:  devs,
		rx:    patch.None,
		arena: dblbuf.New[snapshot]("classifier "+name, cfg.Reload),
		stop:  ealthread.NewStopChan(),
	}
	w.reader = w.arena.NewReader()
	w.ablReader = abls.NewReader()
	w.loop.init(cfg)
	w.Thread = ealthread.New(w.main, w.stop)
	return w
}

// Name returns component name.
func (w *Worker) Name() string {
	return w.name
}

// ThreadLoadStat implements ealthread.ThreadWithLoadStat.
func (w *Worker) ThreadLoadStat() ealthread.LoadStat {
	return w.load.Read()
}

// Rx returns the rx port, or patch.None.
func (w *Worker) Rx() patch.Endpoint {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.rx
}

// Tx returns tx ports in table index order.
func (w *Worker) Tx() []patch.Endpoint {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return slices.Clone(w.tx)
}

// Ports returns rx and tx ports.
func (w *Worker) Ports() (rx, tx []patch.Endpoint) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.rx.Valid() {
		rx = []patch.Endpoint{w.rx}
	}
	return rx, slices.Clone(w.tx)
}

// Entries returns classifier table entries in insertion order.
func (w *Worker) Entries() []TableEntry {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return slices.Clone(w.entries)
}

// HasPort determines whether the component uses a port as rx or tx.
func (w *Worker) HasPort(handle ethdev.ID) bool {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.rx.Handle == handle || slices.ContainsFunc(w.tx, func(ep patch.Endpoint) bool { return ep.Handle == handle })
}

// HasTx determines whether a port is a tx port of the component.
func (w *Worker) HasTx(handle ethdev.ID) bool {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.txIndex(handle) >= 0
}

func (w *Worker) txIndex(handle ethdev.ID) int {
	return slices.IndexFunc(w.tx, func(ep patch.Endpoint) bool { return ep.Handle == handle })
}

func (w *Worker) checkPort(ep patch.Endpoint, dir vlantag.Dir) error {
	_, e := patch.CheckEndpoint(w.reg, w.devs, ep, dir == vlantag.DirTx)
	return e
}

// AttachRx sets the rx port.
func (w *Worker) AttachRx(ep patch.Endpoint) error {
	if e := w.checkPort(ep, vlantag.DirRx); e != nil {
		return e
	}
	return w.mutate(func() error {
		switch w.rx {
		case patch.None:
			w.rx = ep
			return nil
		case ep:
			return ErrPortExists
		}
		return ErrRxBusy
	}, zap.Stringer("attach-rx", ep.Handle))
}

// AttachTx appends a tx port.
func (w *Worker) AttachTx(ep patch.Endpoint) error {
	if e := w.checkPort(ep, vlantag.DirTx); e != nil {
		return e
	}
	return w.mutate(func() error {
		if w.txIndex(ep.Handle) >= 0 {
			return ErrPortExists
		}
		if len(w.tx) >= MaxTx {
			return ErrTooManyTx
		}
		w.tx = append(w.tx, ep)
		return nil
	}, zap.Stringer("attach-tx", ep.Handle))
}

// DetachRx clears the rx port if it is handle.
func (w *Worker) DetachRx(handle ethdev.ID) error {
	return w.mutate(func() error {
		if w.rx.Handle != handle {
			return ErrNoPort
		}
		w.rx = patch.None
		return nil
	}, handle.ZapField("detach-rx"))
}

// DetachTx removes a tx port and every table entry that refers to it.
func (w *Worker) DetachTx(handle ethdev.ID) error {
	return w.mutate(func() error {
		i := w.txIndex(handle)
		if i < 0 {
			return ErrNoPort
		}
		w.tx = slices.Delete(w.tx, i, i+1)
		w.entries = slices.DeleteFunc(w.entries, func(ent TableEntry) bool { return ent.Port == handle })
		return nil
	}, handle.ZapField("detach-tx"))
}

// RemovePort detaches a port from every role in the component.
// It succeeds when the component does not use the port.
func (w *Worker) RemovePort(handle ethdev.ID) error {
	return w.mutate(func() error {
		if w.rx.Handle == handle {
			w.rx = patch.None
		}
		w.tx = slices.DeleteFunc(w.tx, func(ep patch.Endpoint) bool { return ep.Handle == handle })
		w.entries = slices.DeleteFunc(w.entries, func(ent TableEntry) bool { return ent.Port == handle })
		return nil
	}, handle.ZapField("remove-port"))
}

// AddEntry inserts a classifier table entry.
func (w *Worker) AddEntry(ent TableEntry) error {
	if !ent.Vlan.Valid() {
		return classifier.ErrVlanID
	}
	return w.mutate(func() error {
		if w.txIndex(ent.Port) < 0 {
			return ErrNotTx
		}
		if slices.ContainsFunc(w.entries, func(old TableEntry) bool { return old.Vlan == ent.Vlan && old.MAC == ent.MAC }) {
			return fmt.Errorf("%w: %s vlan %s", classifier.ErrDuplicate, ent.MAC, ent.Vlan)
		}
		w.entries = append(w.entries, ent)
		return nil
	}, zap.Stringer("add-vlan", ent.Vlan), zap.Stringer("mac", ent.MAC), ent.Port.ZapField("port"))
}

// DelEntry removes a classifier table entry.
func (w *Worker) DelEntry(ent TableEntry) error {
	return w.mutate(func() error {
		i := slices.Index(w.entries, ent)
		if i < 0 {
			return ErrNoEntry
		}
		w.entries = slices.Delete(w.entries, i, i+1)
		return nil
	}, zap.Stringer("del-vlan", ent.Vlan), zap.Stringer("mac", ent.MAC), ent.Port.ZapField("port"))
}

// Checkpoint saves ports and table entries.
// The returned function republishes the saved state, undoing later mutations.
func (w *Worker) Checkpoint() (restore func() error) {
	w.mutex.Lock()
	rx, tx, entries := w.rx, slices.Clone(w.tx), slices.Clone(w.entries)
	w.mutex.Unlock()
	return func() error {
		return w.mutate(func() error {
			w.rx, w.tx, w.entries = rx, slices.Clone(tx), slices.Clone(entries)
			return nil
		}, zap.Bool("restore", true))
	}
}

// mutate applies a change and publishes it.
// If the change or publishing fails, prior state is restored.
func (w *Worker) mutate(change func() error, fields ...zap.Field) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	rx, tx, entries := w.rx, slices.Clone(w.tx), slices.Clone(w.entries)
	e := change()
	if e == nil {
		e = w.publish()
	}
	if e != nil {
		w.rx, w.tx, w.entries = rx, tx, entries
		logger.Warn("classifier update rejected", append(fields, zap.String("component", w.name), zap.Error(e))...)
		return e
	}
	logger.Info("classifier updated", append(fields, zap.String("component", w.name),
		zap.Int("tx", len(w.tx)), zap.Int("entries", len(w.entries)))...)
	return nil
}

func (w *Worker) resolve(ep patch.Endpoint) (p port) {
	p.Endpoint = ep
	if !ep.Valid() {
		return p
	}
	p.dev = w.devs.Get(ep.Handle)
	if ent, ok := w.reg.ByHandle(ep.Handle); ok {
		p.stats = ent.Stats
	}
	return p
}

func (w *Worker) publish() error {
	entries := make([]classifier.Entry, 0, len(w.entries))
	for _, ent := range w.entries {
		entries = append(entries, classifier.Entry{Vlan: ent.Vlan, MAC: ent.MAC, Tx: w.txIndex(ent.Port)})
	}
	return w.arena.Update(func(s *snapshot) error {
		s.rx = w.resolve(w.rx)
		s.tx = s.tx[:0]
		for _, ep := range w.tx {
			s.tx = append(s.tx, w.resolve(ep))
		}
		return classifier.Builder{Capacity: w.cfg.TableCapacity, NTx: len(w.tx)}.Build(&s.table, entries)
	})
}

// Close stops the thread and unregisters its readers.
func (w *Worker) Close() error {
	e := w.Thread.Stop()
	w.reader.Close()
	w.ablReader.Close()
	return e
}

func (w *Worker) String() string {
	return w.name
}
