package pktmbuf

import (
	"errors"
)

// Pool defaults.
const (
	DefaultDataroom = 2048
	MinDataroom     = 64
)

// ErrExhausted indicates the pool does not have enough free buffers.
var ErrExhausted = errors.New("packet pool exhausted")

// PoolConfig contains packet pool configuration.
type PoolConfig struct {
	Capacity int `json:"capacity"`

	// Dataroom is the buffer size of each packet, excluding headroom.
	// Default is DefaultDataroom.
	Dataroom int `json:"dataroom,omitempty"`
}

// Pool is a pre-sized set of packet buffers.
// All buffers are allocated at construction; Alloc and Close never touch the heap.
type Pool struct {
	name     string
	dataroom int
	packets  []Packet
	free     chan *Packet
}

// NewPool creates a packet pool.
func NewPool(name string, cfg PoolConfig) (*Pool, error) {
	if cfg.Capacity <= 0 {
		return nil, errors.New("pool capacity must be positive")
	}
	if cfg.Dataroom == 0 {
		cfg.Dataroom = DefaultDataroom
	}
	if cfg.Dataroom < MinDataroom {
		cfg.Dataroom = MinDataroom
	}

	bufSize := DefaultHeadroom + cfg.Dataroom
	backing := make([]byte, bufSize*cfg.Capacity)
	mp := &Pool{
		name:     name,
		dataroom: cfg.Dataroom,
		packets:  make([]Packet, cfg.Capacity),
		free:     make(chan *Packet, cfg.Capacity),
	}
	for i := range mp.packets {
		pkt := &mp.packets[i]
		pkt.buf = backing[i*bufSize : (i+1)*bufSize : (i+1)*bufSize]
		pkt.pool = mp
		mp.free <- pkt
	}
	return mp, nil
}

// Name returns pool name.
func (mp *Pool) Name() string {
	return mp.name
}

// Dataroom returns buffer size of each packet.
func (mp *Pool) Dataroom() int {
	return mp.dataroom
}

// CountAvailable returns number of free buffers.
func (mp *Pool) CountAvailable() int {
	return len(mp.free)
}

// CountInUse returns number of buffers owned by someone.
func (mp *Pool) CountInUse() int {
	return len(mp.packets) - len(mp.free)
}

// Alloc allocates a vector of packets.
// Either all or none are allocated.
func (mp *Pool) Alloc(count int) (Vector, error) {
	vec := make(Vector, count)
	if e := mp.AllocBulk(vec); e != nil {
		return nil, e
	}
	return vec, nil
}

// AllocBulk fills every slot of vec with a fresh packet.
// Either all or none are allocated.
func (mp *Pool) AllocBulk(vec Vector) error {
	for i := range vec {
		if vec[i] = mp.get(); vec[i] == nil {
			vec[:i].Close()
			for j := range vec {
				vec[j] = nil
			}
			return ErrExhausted
		}
	}
	return nil
}

// AllocOne allocates one packet, or returns nil.
func (mp *Pool) AllocOne() *Packet {
	return mp.get()
}

func (mp *Pool) get() *Packet {
	select {
	case pkt := <-mp.free:
		pkt.reset()
		return pkt
	default:
		return nil
	}
}

func (mp *Pool) put(pkt *Packet) {
	select {
	case mp.free <- pkt:
	default:
		panic(ErrDoubleClose)
	}
}
