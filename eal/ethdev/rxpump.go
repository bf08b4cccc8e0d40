package ethdev

import (
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/usnistgov/patchpanel/eal/pktmbuf"
	"github.com/usnistgov/patchpanel/eal/ringbuffer"
	"go.uber.org/zap"
)

// ReadFunc reads one frame into p.
// It may block; returning os.ErrDeadlineExceeded lets RxPump check for closure.
type ReadFunc func(p []byte) (n int, e error)

// Read implements io.Reader.
func (f ReadFunc) Read(p []byte) (int, error) {
	return f(p)
}

// RxPump adapts a blocking frame reader into a non-blocking RxBurst.
// A goroutine reads frames into pool buffers and queues them in a ring.
type RxPump struct {
	ring    *ringbuffer.Ring
	pool    *pktmbuf.Pool
	read    ReadFunc
	port    uint16
	closing atomic.Bool
	wg      sync.WaitGroup

	nRxDrops  atomic.Uint64
	nNoBufs   atomic.Uint64
	nReadErrs atomic.Uint64
}

// NewRxPump starts an RxPump.
func NewRxPump(name string, pool *pktmbuf.Pool, capacity int, read ReadFunc) (*RxPump, error) {
	ring, e := ringbuffer.New(name, capacity)
	if e != nil {
		return nil, e
	}
	p := &RxPump{
		ring: ring,
		pool: pool,
		read: read,
	}
	p.wg.Add(1)
	go p.run()
	return p, nil
}

func (p *RxPump) run() {
	defer p.wg.Done()
	var pkt *pktmbuf.Packet
	defer func() {
		if pkt != nil {
			pkt.Close()
		}
	}()

	for !p.closing.Load() {
		if pkt == nil {
			if pkt = p.pool.AllocOne(); pkt == nil {
				p.nNoBufs.Add(1)
				time.Sleep(time.Millisecond)
				continue
			}
		}

		_, e := pkt.ReadFrom(p.read)
		switch {
		case e == nil && pkt.Len() > 0:
			pkt.SetPort(p.port)
			if p.ring.Enqueue(pktmbuf.Vector{pkt}) == 0 {
				p.nRxDrops.Add(1)
				pkt.Close()
			}
			pkt = nil
			continue
		case e == nil, errors.Is(e, os.ErrDeadlineExceeded):
		case errors.Is(e, io.EOF), errors.Is(e, os.ErrClosed):
			return
		default:
			if p.nReadErrs.Add(1)%1024 == 1 {
				logger.Warn("rx read error", zap.String("pump", p.ring.Name()), zap.Error(e))
			}
			time.Sleep(time.Millisecond)
		}
		pkt.SetBytes(nil)
	}
}

// SetPort sets ingress port number recorded on received packets.
func (p *RxPump) SetPort(port uint16) {
	p.port = port
}

// RxBurst dequeues received packets.
func (p *RxPump) RxBurst(pkts pktmbuf.Vector) int {
	return p.ring.Dequeue(pkts)
}

// Counters returns rx drops due to full ring, allocation failures, and read errors.
func (p *RxPump) Counters() (rxDrops, noBufs, readErrs uint64) {
	return p.nRxDrops.Load(), p.nNoBufs.Load(), p.nReadErrs.Load()
}

// Close stops the goroutine and releases queued packets.
// The underlying reader must be closed or time out for the goroutine to exit.
func (p *RxPump) Close() error {
	p.closing.Store(true)
	p.wg.Wait()
	return p.ring.Close()
}

// TxWrite transmits pkts one by one with write, stopping at the first failure.
func TxWrite(pkts pktmbuf.Vector, write func(p []byte) (int, error)) (n int) {
	for _, pkt := range pkts {
		if _, e := write(pkt.Bytes()); e != nil {
			break
		}
		pkt.Close()
		n++
	}
	return n
}
