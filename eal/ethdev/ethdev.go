// Package ethdev defines the network interface driver abstraction and the table of attached interfaces.
package ethdev

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"

	"github.com/usnistgov/patchpanel/core/logging"
	"github.com/usnistgov/patchpanel/eal/pktmbuf"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var logger = logging.New("ethdev")

// Driver is an attached network interface.
//
// RxBurst and TxBurst are invoked from a single polling thread per queue and must not block.
type Driver interface {
	io.Closer

	// Kind returns driver kind, such as "ring".
	Kind() string

	// NRxQueues returns number of RX queues.
	NRxQueues() int

	// NTxQueues returns number of TX queues.
	NTxQueues() int

	// RxBurst receives up to len(pkts) packets into pkts[:n] and returns n.
	RxBurst(queue int, pkts pktmbuf.Vector) int

	// TxBurst offers pkts for transmission and returns how many were accepted.
	// Accepted packets are always a prefix of pkts; the caller retains ownership of the remainder.
	TxBurst(queue int, pkts pktmbuf.Vector) int

	// Valid determines whether the interface is usable.
	Valid() bool
}

// ID identifies an attached interface.
type ID uint16

// ID limits.
const (
	MaxID ID = 1023

	// InvalidID indicates no interface.
	InvalidID ID = 0xFFFF
)

// Valid checks whether id is within range.
func (id ID) Valid() bool {
	return id <= MaxID
}

// ZapField returns a zap.Field for logging.
func (id ID) ZapField(key string) zap.Field {
	if !id.Valid() {
		return zap.String(key, "invalid")
	}
	return zap.Uint16(key, uint16(id))
}

func (id ID) String() string {
	if !id.Valid() {
		return "invalid"
	}
	return strconv.Itoa(int(id))
}

// Errors.
var (
	ErrTableFull = errors.New("no available interface ID")
	ErrNoDevice  = errors.New("interface not attached")
)

// Table assigns IDs to attached interfaces.
// Attach and Detach are control plane operations; polling threads should cache the Driver they need.
type Table struct {
	mutex sync.RWMutex
	devs  map[ID]Driver
}

// NewTable creates an empty Table.
func NewTable() *Table {
	return &Table{devs: map[ID]Driver{}}
}

// Attach assigns the lowest free ID to drv.
func (t *Table) Attach(drv Driver) (ID, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	for id := ID(0); id <= MaxID; id++ {
		if _, ok := t.devs[id]; !ok {
			t.devs[id] = drv
			logger.Info("interface attached", id.ZapField("id"), zap.String("kind", drv.Kind()),
				zap.Int("rxq", drv.NRxQueues()), zap.Int("txq", drv.NTxQueues()))
			return id, nil
		}
	}
	return InvalidID, ErrTableFull
}

// Get returns the Driver of an ID, or nil.
func (t *Table) Get(id ID) Driver {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.devs[id]
}

// IsValid determines whether id refers to an attached and usable interface.
func (t *Table) IsValid(id ID) bool {
	drv := t.Get(id)
	return drv != nil && drv.Valid()
}

// List returns attached IDs in ascending order.
func (t *Table) List() (list []ID) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	for id := range t.devs {
		list = append(list, id)
	}
	sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
	return list
}

// Detach removes and closes an interface.
func (t *Table) Detach(id ID) error {
	t.mutex.Lock()
	drv, ok := t.devs[id]
	delete(t.devs, id)
	t.mutex.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNoDevice, id)
	}
	logger.Info("interface detached", id.ZapField("id"), zap.String("kind", drv.Kind()))
	return drv.Close()
}

// Close detaches every interface.
func (t *Table) Close() (e error) {
	for _, id := range t.List() {
		e = multierr.Append(e, t.Detach(id))
	}
	return e
}
