package classifier

import (
	"errors"

	"github.com/usnistgov/patchpanel/core/macaddr"
)

// DefaultCapacity is the default MacTable capacity.
const DefaultCapacity = 128

// ErrTableFull indicates a MacTable has reached its capacity.
var ErrTableFull = errors.New("MAC table full")

// MacTable maps destination MAC address to tx index.
// Its capacity is fixed at construction.
type MacTable struct {
	capacity int
	m        map[macaddr.Key]int
}

// NewMacTable creates a MacTable.
func NewMacTable(capacity int) *MacTable {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MacTable{
		capacity: capacity,
		m:        make(map[macaddr.Key]int, capacity),
	}
}

// Capacity returns the maximum number of entries.
func (t *MacTable) Capacity() int {
	return t.capacity
}

// Len returns the number of entries.
func (t *MacTable) Len() int {
	return len(t.m)
}

// Insert adds or replaces an entry.
func (t *MacTable) Insert(mac macaddr.Key, tx int) error {
	if _, ok := t.m[mac]; !ok && len(t.m) >= t.capacity {
		return ErrTableFull
	}
	t.m[mac] = tx
	return nil
}

// Lookup finds the tx index of a MAC address.
func (t *MacTable) Lookup(mac macaddr.Key) (tx int, ok bool) {
	tx, ok = t.m[mac]
	return
}

// Reset deletes all entries.
func (t *MacTable) Reset() {
	clear(t.m)
}
