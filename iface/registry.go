// Package iface maps logical ports to device handles.
package iface

import (
	"cmp"
	"errors"
	"io"
	"slices"
	"sync"

	"github.com/usnistgov/patchpanel/core/events"
	"github.com/usnistgov/patchpanel/core/logging"
	"github.com/usnistgov/patchpanel/eal/ethdev"
	"github.com/usnistgov/patchpanel/iface/portstats"
	"go.uber.org/zap"
)

var logger = logging.New("iface")

// Registry errors.
var (
	ErrDuplicate = errors.New("port already registered")
	ErrNotFound  = errors.New("port not found")
	ErrHandle    = errors.New("invalid device handle")
)

// Entry describes a registered port.
type Entry struct {
	PortID
	Handle   ethdev.ID
	RxQueues int
	TxQueues int
	Stats    *portstats.Record
}

// MaxQueues returns max(RxQueues, TxQueues).
func (ent Entry) MaxQueues() int {
	return max(ent.RxQueues, ent.TxQueues)
}

// Registry maps logical ports to device handles.
// At most one entry exists per PortID, and handles are unique across entries.
type Registry struct {
	mutex    sync.RWMutex
	byPort   map[PortID]*Entry
	byHandle map[ethdev.ID]*Entry
	emitter  *events.Emitter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byPort:   map[PortID]*Entry{},
		byHandle: map[ethdev.ID]*Entry{},
		emitter:  events.NewEmitter(),
	}
}

// Register adds a port.
// Zero queue counts are replaced by DefaultQueues.
func (reg *Registry) Register(ent Entry) error {
	if !ent.Type.Valid() || !ent.Handle.Valid() {
		return ErrHandle
	}
	if ent.RxQueues <= 0 {
		ent.RxQueues = DefaultQueues
	}
	if ent.TxQueues <= 0 {
		ent.TxQueues = DefaultQueues
	}

	reg.mutex.Lock()
	if reg.byPort[ent.PortID] != nil || reg.byHandle[ent.Handle] != nil {
		reg.mutex.Unlock()
		return ErrDuplicate
	}
	p := &ent
	reg.byPort[ent.PortID] = p
	reg.byHandle[ent.Handle] = p
	reg.mutex.Unlock()

	logger.Info("port registered",
		ent.PortID.ZapField("port"),
		ent.Handle.ZapField("handle"),
		zap.Int("rxq", ent.RxQueues),
		zap.Int("txq", ent.TxQueues),
	)
	reg.emitter.Emit(evtPortNew, ent)
	return nil
}

// Resolve returns the device handle of a port.
func (reg *Registry) Resolve(p PortID) (ethdev.ID, error) {
	reg.mutex.RLock()
	defer reg.mutex.RUnlock()
	if ent := reg.byPort[p]; ent != nil {
		return ent.Handle, nil
	}
	return ethdev.InvalidID, ErrNotFound
}

// Unregister removes a port.
// References to its handle must have been severed beforehand.
func (reg *Registry) Unregister(p PortID) error {
	reg.mutex.Lock()
	ent := reg.byPort[p]
	if ent == nil {
		reg.mutex.Unlock()
		return ErrNotFound
	}
	delete(reg.byPort, p)
	delete(reg.byHandle, ent.Handle)
	reg.mutex.Unlock()

	logger.Info("port unregistered", p.ZapField("port"), ent.Handle.ZapField("handle"))
	reg.emitter.Emit(evtPortClosed, *ent)
	return nil
}

// MaxQueues returns max(rxq, txq) of the port with the given handle.
// Returns zero if the handle is not registered.
func (reg *Registry) MaxQueues(handle ethdev.ID) int {
	if ent, ok := reg.ByHandle(handle); ok {
		return ent.MaxQueues()
	}
	return 0
}

// Get returns the entry of a port.
func (reg *Registry) Get(p PortID) (ent Entry, ok bool) {
	reg.mutex.RLock()
	defer reg.mutex.RUnlock()
	if e := reg.byPort[p]; e != nil {
		return *e, true
	}
	return ent, false
}

// ByHandle returns the entry of a device handle.
func (reg *Registry) ByHandle(handle ethdev.ID) (ent Entry, ok bool) {
	reg.mutex.RLock()
	defer reg.mutex.RUnlock()
	if e := reg.byHandle[handle]; e != nil {
		return *e, true
	}
	return ent, false
}

// List returns all entries, ordered by type then ID.
func (reg *Registry) List() (list []Entry) {
	reg.mutex.RLock()
	for _, ent := range reg.byPort {
		list = append(list, *ent)
	}
	reg.mutex.RUnlock()

	slices.SortFunc(list, func(a, b Entry) int {
		return cmp.Or(cmp.Compare(a.Type, b.Type), cmp.Compare(a.ID, b.ID))
	})
	return list
}

// Len returns the number of entries.
func (reg *Registry) Len() int {
	reg.mutex.RLock()
	defer reg.mutex.RUnlock()
	return len(reg.byPort)
}

// EachStats implements portstats.Source.
func (reg *Registry) EachStats(cb func(port string, rec *portstats.Record)) {
	for _, ent := range reg.List() {
		if ent.Stats != nil {
			cb(ent.PortID.String(), ent.Stats)
		}
	}
}

var _ portstats.Source = (*Registry)(nil)

const (
	evtPortNew    = "PortNew"
	evtPortClosed = "PortClosed"
)

// OnPortNew registers a callback when a port is registered.
// Returns an io.Closer that cancels the callback registration.
func (reg *Registry) OnPortNew(cb func(Entry)) io.Closer {
	return reg.emitter.On(evtPortNew, cb)
}

// OnPortClosed registers a callback when a port is unregistered.
// Returns an io.Closer that cancels the callback registration.
func (reg *Registry) OnPortClosed(cb func(Entry)) io.Closer {
	return reg.emitter.On(evtPortClosed, cb)
}
