// Package tapdev provides an interface backed by a Linux TAP device.
package tapdev

import (
	"fmt"
	"time"

	"github.com/songgao/water"
	"github.com/usnistgov/patchpanel/core/logging"
	"github.com/usnistgov/patchpanel/eal/ethdev"
	"github.com/usnistgov/patchpanel/eal/pktmbuf"
	"github.com/vishvananda/netlink"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var logger = logging.New("tapdev")

// Kind is the driver kind.
const Kind = "tap"

// RxCapacity is the capacity of the receive ring.
const RxCapacity = 1024

const readTimeout = 100 * time.Millisecond

// IfName returns the TAP device name of a logical id.
func IfName(id int) string {
	return fmt.Sprintf("spptap%d", id)
}

// Dev is a TAP interface.
type Dev struct {
	intf   *water.Interface
	pump   *ethdev.RxPump
	closed bool
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// New creates a TAP device and brings it up.
func New(id int, pool *pktmbuf.Pool) (d *Dev, e error) {
	cfg := water.Config{DeviceType: water.TAP}
	cfg.Name = IfName(id)
	intf, e := water.New(cfg)
	if e != nil {
		return nil, fmt.Errorf("water.New(%s): %w", cfg.Name, e)
	}

	link, e := netlink.LinkByName(intf.Name())
	if e == nil {
		e = netlink.LinkSetUp(link)
	}
	if e != nil {
		intf.Close()
		return nil, fmt.Errorf("netlink(%s): %w", intf.Name(), e)
	}

	d = &Dev{intf: intf}
	read := ethdev.ReadFunc(intf.Read)
	if rd, ok := intf.ReadWriteCloser.(readDeadliner); ok {
		read = func(p []byte) (int, error) {
			rd.SetReadDeadline(time.Now().Add(readTimeout))
			return intf.Read(p)
		}
	}
	if d.pump, e = ethdev.NewRxPump(intf.Name(), pool, RxCapacity, read); e != nil {
		intf.Close()
		return nil, e
	}
	logger.Info("TAP device created", zap.String("ifname", intf.Name()), zap.String("link-type", link.Type()))
	return d, nil
}

// Name returns the network interface name.
func (d *Dev) Name() string {
	return d.intf.Name()
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
	return ethdev.TxWrite(pkts, d.intf.Write)
}

// Valid implements ethdev.Driver.
func (d *Dev) Valid() bool {
	return !d.closed
}

// Close implements ethdev.Driver.
func (d *Dev) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	return multierr.Append(d.intf.Close(), d.pump.Close())
}
