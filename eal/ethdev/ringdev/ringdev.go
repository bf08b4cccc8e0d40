// Package ringdev provides interfaces backed by shared packet rings.
//
// A ring interface with logical id N transmits into and receives from ring "eth_ring_N".
// Two interfaces created from the same Set with the same id share one ring, so one worker's
// output becomes another worker's input.
package ringdev

import (
	"fmt"
	"sync"

	"github.com/usnistgov/patchpanel/eal/pktmbuf"
	"github.com/usnistgov/patchpanel/eal/ringbuffer"
)

// Kind is the driver kind.
const Kind = "ring"

// Set holds named rings shared among ring interfaces.
type Set struct {
	mutex    sync.Mutex
	capacity int
	rings    map[int]*sharedRing
}

type sharedRing struct {
	*ringbuffer.Ring
	nRefs int
}

// NewSet creates a Set.
// capacity is adjusted with ringbuffer.AlignCapacity.
func NewSet(capacity int) *Set {
	return &Set{
		capacity: ringbuffer.AlignCapacity(capacity),
		rings:    map[int]*sharedRing{},
	}
}

// RingName returns the ring name of a logical id.
func RingName(id int) string {
	return fmt.Sprintf("eth_ring_%d", id)
}

// Lookup returns the ring of a logical id, or nil.
func (s *Set) Lookup(id int) *ringbuffer.Ring {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if r := s.rings[id]; r != nil {
		return r.Ring
	}
	return nil
}

// New creates a ring interface.
func (s *Set) New(id int) (*Dev, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	r := s.rings[id]
	if r == nil {
		ring, e := ringbuffer.New(RingName(id), s.capacity)
		if e != nil {
			return nil, e
		}
		r = &sharedRing{Ring: ring}
		s.rings[id] = r
	}
	r.nRefs++
	return &Dev{set: s, id: id, ring: r.Ring}, nil
}

func (s *Set) release(id int) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	r := s.rings[id]
	if r.nRefs--; r.nRefs > 0 {
		return nil
	}
	delete(s.rings, id)
	return r.Close()
}

// Dev is a ring interface.
type Dev struct {
	set    *Set
	id     int
	ring   *ringbuffer.Ring
	closed bool
}

// Kind implements ethdev.Driver.
func (*Dev) Kind() string {
	return Kind
}

// NRxQueues implements ethdev.Driver.
func (*Dev) NRxQueues() int {
	return 1
}

// NTxQueues implements ethdev.Driver.
func (*Dev) NTxQueues() int {
	return 1
}

// RxBurst implements ethdev.Driver.
func (d *Dev) RxBurst(queue int, pkts pktmbuf.Vector) int {
	return d.ring.Dequeue(pkts)
}

// TxBurst implements ethdev.Driver.
func (d *Dev) TxBurst(queue int, pkts pktmbuf.Vector) int {
	return d.ring.Enqueue(pkts)
}

// Valid implements ethdev.Driver.
func (d *Dev) Valid() bool {
	return !d.closed
}

// Ring returns the underlying ring.
func (d *Dev) Ring() *ringbuffer.Ring {
	return d.ring
}

// Close releases the ring reference; the ring is freed with its last reference.
func (d *Dev) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	return d.set.release(d.id)
}
