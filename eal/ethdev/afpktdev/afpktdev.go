// Package afpktdev provides physical network interfaces through AF_PACKET sockets.
//
// Each RX queue is an AF_PACKET socket in a hash fanout group, so that the kernel distributes
// flows among queues the way NIC RSS would.
package afpktdev

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/safchain/ethtool"
	"github.com/usnistgov/patchpanel/core/logging"
	"github.com/usnistgov/patchpanel/eal/ethdev"
	"github.com/usnistgov/patchpanel/eal/pktmbuf"
	"github.com/vishvananda/netlink"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

var logger = logging.New("afpktdev")

// Kind is the driver kind.
const Kind = "phy"

// RxCapacity is the capacity of each receive ring.
const RxCapacity = 1024

const readTimeout = 100 * time.Millisecond

// Config contains physical interface configuration.
type Config struct {
	// Netif is the kernel network interface name.
	Netif string `json:"netif"`

	// MaxQueues limits the number of queues.
	// Default is the number of channels reported by ethtool, or 1 if unavailable.
	MaxQueues int `json:"maxQueues,omitempty"`

	// Promisc enables promiscuous mode.
	Promisc bool `json:"promisc,omitempty"`
}

// Dev is a physical interface.
type Dev struct {
	cfg    Config
	link   netlink.Link
	fds    []int
	pumps  []*ethdev.RxPump
	closed bool
}

func htons(v uint16) uint16 {
	return v<<8 | v>>8
}

// QueueCount queries the number of combined or RX channels of a network interface.
func QueueCount(ifname string) int {
	et, e := ethtool.NewEthtool()
	if e != nil {
		return 1
	}
	defer et.Close()

	channels, e := et.GetChannels(ifname)
	if e != nil {
		logger.Debug("ethtool.GetChannels error", zap.String("netif", ifname), zap.Error(e))
		return 1
	}
	return max(1, int(channels.CombinedCount), int(channels.RxCount))
}

// New opens a physical interface.
func New(cfg Config, pool *pktmbuf.Pool) (d *Dev, e error) {
	d = &Dev{cfg: cfg}
	if d.link, e = netlink.LinkByName(cfg.Netif); e != nil {
		return nil, fmt.Errorf("netlink.LinkByName(%s): %w", cfg.Netif, e)
	}
	if cfg.Promisc {
		if e = netlink.SetPromiscOn(d.link); e != nil {
			return nil, fmt.Errorf("netlink.SetPromiscOn(%s): %w", cfg.Netif, e)
		}
	}

	nQueues := QueueCount(cfg.Netif)
	if cfg.MaxQueues > 0 {
		nQueues = min(nQueues, cfg.MaxQueues)
	}

	ifindex := d.link.Attrs().Index
	for q := 0; q < nQueues; q++ {
		fd, e := openSocket(ifindex, nQueues > 1)
		if e != nil {
			d.Close()
			return nil, fmt.Errorf("AF_PACKET %s queue %d: %w", cfg.Netif, q, e)
		}
		d.fds = append(d.fds, fd)

		pump, e := ethdev.NewRxPump(fmt.Sprintf("%s:%d", cfg.Netif, q), pool, RxCapacity, readFunc(fd))
		if e != nil {
			d.Close()
			return nil, e
		}
		d.pumps = append(d.pumps, pump)
	}

	logger.Info("physical interface opened", zap.String("netif", cfg.Netif), zap.Int("ifindex", ifindex),
		zap.Int("queues", nQueues), zap.Stringer("hwaddr", d.link.Attrs().HardwareAddr))
	return d, nil
}

func openSocket(ifindex int, fanout bool) (fd int, e error) {
	if fd, e = unix.Socket(unix.AF_PACKET, unix.SOCK_RAW|unix.SOCK_CLOEXEC, int(htons(unix.ETH_P_ALL))); e != nil {
		return -1, e
	}
	if e = unix.Bind(fd, &unix.SockaddrLinklayer{Protocol: htons(unix.ETH_P_ALL), Ifindex: ifindex}); e != nil {
		unix.Close(fd)
		return -1, e
	}
	if fanout {
		arg := (ifindex & 0xFFFF) | unix.PACKET_FANOUT_HASH<<16
		if e = unix.SetsockoptInt(fd, unix.SOL_PACKET, unix.PACKET_FANOUT, arg); e != nil {
			unix.Close(fd)
			return -1, e
		}
	}
	tv := unix.NsecToTimeval(int64(readTimeout))
	if e = unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); e != nil {
		unix.Close(fd)
		return -1, e
	}
	return fd, nil
}

func readFunc(fd int) ethdev.ReadFunc {
	return func(p []byte) (int, error) {
		n, e := unix.Read(fd, p)
		switch {
		case errors.Is(e, unix.EAGAIN), errors.Is(e, unix.EINTR):
			return 0, os.ErrDeadlineExceeded
		case errors.Is(e, unix.EBADF):
			return 0, os.ErrClosed
		case e != nil:
			return 0, e
		}
		return n, nil
	}
}

// Netif returns network interface name.
func (d *Dev) Netif() string {
	return d.cfg.Netif
}

// Kind implements ethdev.Driver.
func (*Dev) Kind() string {
	return Kind
}

// NRxQueues implements ethdev.Driver.
func (d *Dev) NRxQueues() int {
	return len(d.fds)
}

// NTxQueues implements ethdev.Driver.
func (d *Dev) NTxQueues() int {
	return len(d.fds)
}

// RxBurst implements ethdev.Driver.
func (d *Dev) RxBurst(queue int, pkts pktmbuf.Vector) int {
	return d.pumps[queue].RxBurst(pkts)
}

// TxBurst implements ethdev.Driver.
func (d *Dev) TxBurst(queue int, pkts pktmbuf.Vector) int {
	fd := d.fds[queue]
	return ethdev.TxWrite(pkts, func(p []byte) (int, error) { return unix.Write(fd, p) })
}

// Valid implements ethdev.Driver.
func (d *Dev) Valid() bool {
	return !d.closed
}

// Close implements ethdev.Driver.
func (d *Dev) Close() (e error) {
	if d.closed {
		return nil
	}
	d.closed = true
	for _, pump := range d.pumps {
		e = multierr.Append(e, pump.Close())
	}
	for _, fd := range d.fds {
		e = multierr.Append(e, unix.Close(fd))
	}
	if d.cfg.Promisc && d.link != nil {
		e = multierr.Append(e, netlink.SetPromiscOff(d.link))
	}
	return e
}
