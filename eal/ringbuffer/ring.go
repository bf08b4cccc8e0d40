// Package ringbuffer provides a bounded lock-free FIFO of packet buffers.
package ringbuffer

import (
	"errors"
	"sync/atomic"

	binutils "github.com/jfoster/binary-utilities"
	"github.com/pkg/math"
	"github.com/usnistgov/patchpanel/eal/pktmbuf"
)

// Limits and defaults.
const (
	MinCapacity     = 4
	MaxCapacity     = 1 << 20
	DefaultCapacity = 256
)

// AlignCapacity adjusts Ring capacity to a power of two between minimum and maximum.
// Optional arguments: minimum capacity, default capacity, maximum capacity.
// Default capacity is used if input is zero.
func AlignCapacity(capacity int, opts ...int) int {
	min, dflt, max := MinCapacity, DefaultCapacity, MaxCapacity
	switch len(opts) {
	case 0:
	case 1:
		min, dflt = opts[0], opts[0]
	case 2:
		min, dflt = opts[0], opts[1]
	case 3:
		min, dflt, max = opts[0], opts[1], opts[2]
	default:
		panic("unexpected opts count")
	}
	if dflt < min || dflt > max ||
		binutils.NextPowerOfTwo(int64(min)) != int64(min) ||
		binutils.NextPowerOfTwo(int64(dflt)) != int64(dflt) ||
		binutils.NextPowerOfTwo(int64(max)) != int64(max) {
		panic("invalid min, dflt, max")
	}

	if capacity <= 0 {
		capacity = dflt
	} else {
		capacity = int(binutils.NextPowerOfTwo(int64(capacity)))
	}
	return math.MinInt(math.MaxInt(min, capacity), max)
}

type cacheLinePad [64]byte

type cell struct {
	seq atomic.Uint64
	pkt *pktmbuf.Packet
}

// Ring is a multi-producer multi-consumer ring of packets.
// Enqueue and Dequeue never block.
type Ring struct {
	name  string
	mask  uint64
	cells []cell
	_     cacheLinePad
	head  atomic.Uint64
	_     cacheLinePad
	tail  atomic.Uint64
	_     cacheLinePad
}

// New creates a Ring.
// capacity is adjusted with AlignCapacity.
func New(name string, capacity int) (*Ring, error) {
	if name == "" {
		return nil, errors.New("ring name is empty")
	}
	capacity = AlignCapacity(capacity)
	r := &Ring{
		name:  name,
		mask:  uint64(capacity - 1),
		cells: make([]cell, capacity),
	}
	for i := range r.cells {
		r.cells[i].seq.Store(uint64(i))
	}
	return r, nil
}

// Name returns ring name.
func (r *Ring) Name() string {
	return r.name
}

// Capacity returns maximum number of entries.
func (r *Ring) Capacity() int {
	return len(r.cells)
}

// CountInUse returns approximate number of entries in the ring.
func (r *Ring) CountInUse() int {
	tail, head := r.tail.Load(), r.head.Load()
	if tail <= head {
		return 0
	}
	return int(tail - head)
}

// CountAvailable returns approximate number of free slots.
func (r *Ring) CountAvailable() int {
	return r.Capacity() - r.CountInUse()
}

// Enqueue enqueues packets in order until the ring is full.
// Returns number of enqueued packets; ownership of those transfers to the ring.
func (r *Ring) Enqueue(pkts pktmbuf.Vector) (n int) {
	for n < len(pkts) && r.enqueueOne(pkts[n]) {
		n++
	}
	return n
}

// Dequeue dequeues up to len(pkts) packets into pkts.
// Returns number of dequeued packets.
func (r *Ring) Dequeue(pkts pktmbuf.Vector) (n int) {
	for n < len(pkts) {
		if pkts[n] = r.dequeueOne(); pkts[n] == nil {
			break
		}
		n++
	}
	return n
}

func (r *Ring) enqueueOne(pkt *pktmbuf.Packet) bool {
	pos := r.tail.Load()
	for {
		c := &r.cells[pos&r.mask]
		seq := c.seq.Load()
		switch {
		case seq == pos:
			if r.tail.CompareAndSwap(pos, pos+1) {
				c.pkt = pkt
				c.seq.Store(pos + 1)
				return true
			}
			pos = r.tail.Load()
		case seq < pos:
			return false
		default:
			pos = r.tail.Load()
		}
	}
}

func (r *Ring) dequeueOne() *pktmbuf.Packet {
	pos := r.head.Load()
	for {
		c := &r.cells[pos&r.mask]
		seq := c.seq.Load()
		switch {
		case seq == pos+1:
			if r.head.CompareAndSwap(pos, pos+1) {
				pkt := c.pkt
				c.pkt = nil
				c.seq.Store(pos + r.mask + 1)
				return pkt
			}
			pos = r.head.Load()
		case seq < pos+1:
			return nil
		default:
			pos = r.head.Load()
		}
	}
}

// Close releases packets remaining in the ring.
func (r *Ring) Close() error {
	var vec [64]*pktmbuf.Packet
	for {
		n := r.Dequeue(vec[:])
		if n == 0 {
			return nil
		}
		pktmbuf.Vector(vec[:n]).Close()
	}
}
