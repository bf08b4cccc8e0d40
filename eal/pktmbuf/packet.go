// Package pktmbuf provides packet buffers with headroom and reference counting, drawn from pre-sized pools.
package pktmbuf

import (
	"errors"
	"io"
	"sync/atomic"
)

// DefaultHeadroom is the default headroom of a packet buffer.
const DefaultHeadroom = 128

// Errors.
var (
	ErrTooLong     = errors.New("insufficient dataroom")
	ErrNoHeadroom  = errors.New("insufficient headroom")
	ErrNotEmpty    = errors.New("packet is not empty")
	ErrDoubleClose = errors.New("packet closed twice")
)

// Packet represents a packet in a buffer.
// A Packet is owned by one component at a time, except during multicast fan-out where owners share it through Ref.
type Packet struct {
	buf    []byte
	off    int
	n      int
	port   uint16
	refcnt atomic.Int32
	pool   *Pool
}

// NewPacket creates a standalone packet that does not belong to a pool.
func NewPacket(dataroom int) *Packet {
	pkt := &Packet{buf: make([]byte, DefaultHeadroom+dataroom), off: DefaultHeadroom}
	pkt.refcnt.Store(1)
	return pkt
}

// Close drops one reference.
// The buffer is returned to its pool when the last reference is dropped.
func (pkt *Packet) Close() error {
	switch n := pkt.refcnt.Add(-1); {
	case n > 0:
		return nil
	case n < 0:
		panic(ErrDoubleClose)
	}
	if pkt.pool != nil {
		pkt.pool.put(pkt)
	}
	return nil
}

// Ref adds a reference and returns the same packet.
// Each reference must be released with Close.
func (pkt *Packet) Ref() *Packet {
	pkt.refcnt.Add(1)
	return pkt
}

// Refcnt returns current reference count.
func (pkt *Packet) Refcnt() int {
	return int(pkt.refcnt.Load())
}

// Len returns packet length in octets.
func (pkt *Packet) Len() int {
	return pkt.n
}

// Port returns ingress network interface.
func (pkt *Packet) Port() uint16 {
	return pkt.port
}

// SetPort sets ingress network interface.
func (pkt *Packet) SetPort(port uint16) {
	pkt.port = port
}

// Bytes returns the packet data.
// It aliases the buffer and is only valid while the caller owns a reference.
func (pkt *Packet) Bytes() []byte {
	return pkt.buf[pkt.off : pkt.off+pkt.n]
}

// Headroom returns available space in front of the data.
func (pkt *Packet) Headroom() int {
	return pkt.off
}

// Tailroom returns available space after the data.
func (pkt *Packet) Tailroom() int {
	return len(pkt.buf) - pkt.off - pkt.n
}

// Dataroom returns buffer size excluding DefaultHeadroom.
func (pkt *Packet) Dataroom() int {
	return len(pkt.buf) - DefaultHeadroom
}

// SetBytes replaces packet data with a copy of input, restoring default headroom.
func (pkt *Packet) SetBytes(input []byte) error {
	if len(input) > len(pkt.buf)-DefaultHeadroom {
		return ErrTooLong
	}
	pkt.off = DefaultHeadroom
	pkt.n = copy(pkt.buf[pkt.off:], input)
	return nil
}

// ReadFrom reads once from the reader into the dataroom of this packet.
// It can only be used on an empty packet.
func (pkt *Packet) ReadFrom(r io.Reader) (n int64, e error) {
	if pkt.n != 0 {
		return 0, ErrNotEmpty
	}
	pkt.off = DefaultHeadroom
	nr, e := r.Read(pkt.buf[pkt.off:])
	pkt.n = nr
	return int64(nr), e
}

// Prepend grows the packet by n octets in the headroom and returns the new leading region.
func (pkt *Packet) Prepend(n int) ([]byte, error) {
	if n > pkt.off {
		return nil, ErrNoHeadroom
	}
	pkt.off -= n
	pkt.n += n
	return pkt.buf[pkt.off : pkt.off+n], nil
}

// Adj removes n octets from the front of the packet.
func (pkt *Packet) Adj(n int) {
	if n > pkt.n {
		n = pkt.n
	}
	pkt.off += n
	pkt.n -= n
}

// Append appends to the packet in tailroom.
func (pkt *Packet) Append(input []byte) error {
	if len(input) > pkt.Tailroom() {
		return ErrTooLong
	}
	pkt.n += copy(pkt.buf[pkt.off+pkt.n:], input)
	return nil
}

// Clone creates a private copy of this packet from the same pool.
// Returns nil if the pool is exhausted.
func (pkt *Packet) Clone() *Packet {
	var clone *Packet
	if pkt.pool == nil {
		clone = NewPacket(pkt.Dataroom())
	} else if clone = pkt.pool.get(); clone == nil {
		return nil
	}
	clone.off = pkt.off
	clone.n = copy(clone.buf[clone.off:], pkt.Bytes())
	clone.port = pkt.port
	return clone
}

func (pkt *Packet) reset() {
	pkt.off = DefaultHeadroom
	pkt.n = 0
	pkt.port = 0
	pkt.refcnt.Store(1)
}
