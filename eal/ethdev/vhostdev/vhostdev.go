// Package vhostdev provides an interface that exchanges frames with a virtual machine or container
// over a unix seqpacket socket, one frame per datagram.
//
// The interface listens on its socket path and serves one peer at a time.
// Frames transmitted while no peer is connected are refused.
package vhostdev

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/usnistgov/patchpanel/core/logging"
	"github.com/usnistgov/patchpanel/eal/ethdev"
	"github.com/usnistgov/patchpanel/eal/pktmbuf"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var logger = logging.New("vhostdev")

// Kind is the driver kind.
const Kind = "vhost"

// RxCapacity is the capacity of the receive ring.
const RxCapacity = 1024

const readTimeout = 100 * time.Millisecond

// SocketPath returns the socket path of a logical id.
func SocketPath(dir string, id int) string {
	return fmt.Sprintf("%s/sock%d", dir, id)
}

var errNoPeer = errors.New("no peer connected")

// Dev is a vhost interface.
type Dev struct {
	path     string
	listener *net.UnixListener
	pump     *ethdev.RxPump

	mutex  sync.RWMutex
	conn   *net.UnixConn
	closed bool
	wg     sync.WaitGroup
}

// New creates a vhost interface listening at SocketPath(dir, id).
func New(dir string, id int, pool *pktmbuf.Pool) (d *Dev, e error) {
	d = &Dev{path: SocketPath(dir, id)}
	os.Remove(d.path)
	if d.listener, e = net.ListenUnix("unixpacket", &net.UnixAddr{Name: d.path, Net: "unixpacket"}); e != nil {
		return nil, e
	}
	if d.pump, e = ethdev.NewRxPump(d.path, pool, RxCapacity, d.read); e != nil {
		d.listener.Close()
		return nil, e
	}
	d.wg.Add(1)
	go d.acceptLoop()
	logger.Info("vhost socket listening", zap.String("path", d.path))
	return d, nil
}

func (d *Dev) acceptLoop() {
	defer d.wg.Done()
	for {
		conn, e := d.listener.AcceptUnix()
		if e != nil {
			return
		}
		d.mutex.Lock()
		if d.conn != nil {
			d.conn.Close()
		}
		d.conn = conn
		d.mutex.Unlock()
		logger.Info("vhost peer connected", zap.String("path", d.path))
	}
}

func (d *Dev) peer() *net.UnixConn {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.conn
}

func (d *Dev) read(p []byte) (int, error) {
	conn := d.peer()
	if conn == nil {
		if d.isClosed() {
			return 0, os.ErrClosed
		}
		time.Sleep(readTimeout)
		return 0, os.ErrDeadlineExceeded
	}
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	n, e := conn.Read(p)
	if e != nil && !errors.Is(e, os.ErrDeadlineExceeded) {
		d.dropPeer(conn)
		if d.isClosed() {
			return 0, os.ErrClosed
		}
		return 0, os.ErrDeadlineExceeded
	}
	return n, e
}

func (d *Dev) write(p []byte) (int, error) {
	conn := d.peer()
	if conn == nil {
		return 0, errNoPeer
	}
	return conn.Write(p)
}

func (d *Dev) dropPeer(conn *net.UnixConn) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.conn == conn {
		d.conn.Close()
		d.conn = nil
	}
}

func (d *Dev) isClosed() bool {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.closed
}

// Path returns the socket path.
func (d *Dev) Path() string {
	return d.path
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
	return d.pump.RxBurst(pkts)
}

// TxBurst implements ethdev.Driver.
func (d *Dev) TxBurst(queue int, pkts pktmbuf.Vector) int {
	return ethdev.TxWrite(pkts, d.write)
}

// Valid implements ethdev.Driver.
func (d *Dev) Valid() bool {
	return !d.isClosed()
}

// Close implements ethdev.Driver.
func (d *Dev) Close() (e error) {
	d.mutex.Lock()
	if d.closed {
		d.mutex.Unlock()
		return nil
	}
	d.closed = true
	if d.conn != nil {
		e = d.conn.Close()
		d.conn = nil
	}
	d.mutex.Unlock()

	e = multierr.Append(e, d.listener.Close())
	d.wg.Wait()
	e = multierr.Append(e, d.pump.Close())
	os.Remove(d.path)
	return e
}
