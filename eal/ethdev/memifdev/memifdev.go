// Package memifdev provides shared memory packet interfaces (memif) in server role.
package memifdev

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/FDio/vpp/extras/gomemif/memif"
	"github.com/usnistgov/patchpanel/core/logging"
	"github.com/usnistgov/patchpanel/eal/ethdev"
	"github.com/usnistgov/patchpanel/eal/pktmbuf"
	"go.uber.org/zap"
)

var logger = logging.New("memifdev")

// Kind is the driver kind.
const Kind = "memif"

// Defaults.
const (
	DefaultSocketName = "/run/patchpanel/memif.sock"
	Log2RingSize      = 10
)

// Socket is a memif control socket shared by interfaces.
type Socket struct {
	name  string
	sock  *memif.Socket
	errCh chan error
}

// NewSocket creates a control socket and starts polling it.
func NewSocket(name string) (*Socket, error) {
	if name == "" {
		name = DefaultSocketName
	}
	if e := os.MkdirAll(filepath.Dir(name), 0o755); e != nil {
		return nil, e
	}
	sock, e := memif.NewSocket(filepath.Base(os.Args[0]), name)
	if e != nil {
		return nil, fmt.Errorf("memif.NewSocket %w", e)
	}
	s := &Socket{name: name, sock: sock, errCh: make(chan error, 1)}
	s.sock.StartPolling(s.errCh)
	go func() {
		for e := range s.errCh {
			logger.Warn("memif socket error", zap.String("socket", name), zap.Error(e))
		}
	}()
	return s, nil
}

// Name returns socket filename.
func (s *Socket) Name() string {
	return s.name
}

// Close deletes the socket and all its interfaces.
func (s *Socket) Close() error {
	s.sock.Delete()
	return nil
}

// Dev is a memif interface.
type Dev struct {
	id     int
	intf   *memif.Interface
	pool   *pktmbuf.Pool
	rxq    atomic.Pointer[memif.Queue]
	txq    atomic.Pointer[memif.Queue]
	closed atomic.Bool
}

// New creates a memif interface with the logical id as memif interface id.
func New(s *Socket, id int, pool *pktmbuf.Pool) (d *Dev, e error) {
	d = &Dev{id: id, pool: pool}
	a := &memif.Arguments{
		Id:       uint32(id),
		IsMaster: true,
		Name:     fmt.Sprintf("memif%d", id),
		MemoryConfig: memif.MemoryConfig{
			NumQueuePairs:    1,
			Log2RingSize:     Log2RingSize,
			PacketBufferSize: uint32(pool.Dataroom()),
		},
		ConnectedFunc:    d.connected,
		DisconnectedFunc: d.disconnected,
	}
	if d.intf, e = s.sock.NewInterface(a); e != nil {
		return nil, fmt.Errorf("sock.NewInterface %w", e)
	}
	return d, nil
}

func (d *Dev) connected(intf *memif.Interface) error {
	rxq, _ := intf.GetRxQueue(0)
	txq, _ := intf.GetTxQueue(0)
	d.rxq.Store(rxq)
	d.txq.Store(txq)
	logger.Info("memif connected", zap.Int("id", d.id))
	return nil
}

func (d *Dev) disconnected(intf *memif.Interface) error {
	d.rxq.Store(nil)
	d.txq.Store(nil)
	logger.Info("memif disconnected", zap.Int("id", d.id))
	return nil
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
func (d *Dev) RxBurst(queue int, pkts pktmbuf.Vector) (n int) {
	rxq := d.rxq.Load()
	if rxq == nil {
		return 0
	}
	for n < len(pkts) {
		pkt := d.pool.AllocOne()
		if pkt == nil {
			break
		}
		if nr, e := pkt.ReadFrom(ethdev.ReadFunc(rxq.ReadPacket)); nr == 0 || e != nil {
			pkt.Close()
			break
		}
		pkts[n] = pkt
		n++
	}
	return n
}

// TxBurst implements ethdev.Driver.
func (d *Dev) TxBurst(queue int, pkts pktmbuf.Vector) (n int) {
	txq := d.txq.Load()
	if txq == nil {
		return 0
	}
	for _, pkt := range pkts {
		if txq.WritePacket(pkt.Bytes()) < pkt.Len() {
			break
		}
		pkt.Close()
		n++
	}
	return n
}

// Valid implements ethdev.Driver.
func (d *Dev) Valid() bool {
	return !d.closed.Load()
}

// Close implements ethdev.Driver.
func (d *Dev) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	d.rxq.Store(nil)
	d.txq.Store(nil)
	return d.intf.Delete()
}
