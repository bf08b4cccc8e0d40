// Package pcapdev provides an interface that replays packets from a pcap file and records transmitted packets into another.
package pcapdev

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/usnistgov/patchpanel/core/logging"
	"github.com/usnistgov/patchpanel/eal/pktmbuf"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var logger = logging.New("pcapdev")

// Kind is the driver kind.
const Kind = "pcap"

// SnapLen is the snapshot length written into the output file header.
const SnapLen = 65535

// RxFilename returns the input filename of a logical id.
func RxFilename(dir string, id int) string {
	return filepath.Join(dir, fmt.Sprintf("spp-rx%d.pcap", id))
}

// TxFilename returns the output filename of a logical id.
func TxFilename(dir string, id int) string {
	return filepath.Join(dir, fmt.Sprintf("spp-tx%d.pcap", id))
}

// Dev is a pcap interface.
type Dev struct {
	pool   *pktmbuf.Pool
	rxFile *os.File
	rx     *pcapgo.Reader
	txFile *os.File
	tx     *pcapgo.Writer
	closed bool
}

// New creates a pcap interface.
// The input file is optional; without it the interface receives nothing.
func New(dir string, id int, pool *pktmbuf.Pool) (d *Dev, e error) {
	d = &Dev{pool: pool}

	rxFilename := RxFilename(dir, id)
	if d.rxFile, e = os.Open(rxFilename); e == nil {
		if d.rx, e = pcapgo.NewReader(d.rxFile); e != nil {
			d.rxFile.Close()
			return nil, fmt.Errorf("pcapgo.NewReader(%s): %w", rxFilename, e)
		}
	} else if !errors.Is(e, os.ErrNotExist) {
		return nil, e
	} else {
		d.rxFile = nil
		logger.Info("no input file, interface will not receive", zap.String("filename", rxFilename))
	}

	txFilename := TxFilename(dir, id)
	if d.txFile, e = os.Create(txFilename); e != nil {
		d.closeRx()
		return nil, e
	}
	d.tx = pcapgo.NewWriter(d.txFile)
	if e = d.tx.WriteFileHeader(SnapLen, layers.LinkTypeEthernet); e != nil {
		d.Close()
		return nil, e
	}
	return d, nil
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
	if d.rx == nil {
		return 0
	}
	for n < len(pkts) {
		pkt := d.pool.AllocOne()
		if pkt == nil {
			break
		}
		data, _, e := d.rx.ReadPacketData()
		if e != nil || pkt.SetBytes(data) != nil {
			pkt.Close()
			if errors.Is(e, io.EOF) || errors.Is(e, io.ErrUnexpectedEOF) {
				d.closeRx()
			}
			break
		}
		pkts[n] = pkt
		n++
	}
	return n
}

// TxBurst implements ethdev.Driver.
func (d *Dev) TxBurst(queue int, pkts pktmbuf.Vector) (n int) {
	now := time.Now()
	for _, pkt := range pkts {
		data := pkt.Bytes()
		ci := gopacket.CaptureInfo{Timestamp: now, CaptureLength: len(data), Length: len(data)}
		if e := d.tx.WritePacket(ci, data); e != nil {
			break
		}
		pkt.Close()
		n++
	}
	return n
}

// Valid implements ethdev.Driver.
func (d *Dev) Valid() bool {
	return !d.closed
}

func (d *Dev) closeRx() (e error) {
	if d.rxFile != nil {
		e = d.rxFile.Close()
	}
	d.rxFile, d.rx = nil, nil
	return e
}

// Close implements ethdev.Driver.
func (d *Dev) Close() (e error) {
	if d.closed {
		return nil
	}
	d.closed = true
	e = d.closeRx()
	if d.txFile != nil {
		e = multierr.Append(e, d.txFile.Close())
	}
	return e
}
