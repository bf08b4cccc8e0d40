// Package nulldev provides an interface that receives nothing and discards everything transmitted.
package nulldev

import (
	"github.com/usnistgov/patchpanel/eal/pktmbuf"
)

// Kind is the driver kind.
const Kind = "nullpmd"

// Dev is a null interface.
type Dev struct {
	closed bool
}

// New creates a null interface.
func New() *Dev {
	return &Dev{}
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
func (*Dev) RxBurst(queue int, pkts pktmbuf.Vector) int {
	return 0
}

// TxBurst implements ethdev.Driver.
func (*Dev) TxBurst(queue int, pkts pktmbuf.Vector) int {
	pkts.Close()
	return len(pkts)
}

// Valid implements ethdev.Driver.
func (d *Dev) Valid() bool {
	return !d.closed
}

// Close implements ethdev.Driver.
func (d *Dev) Close() error {
	d.closed = true
	return nil
}
