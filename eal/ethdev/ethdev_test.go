package ethdev_test

import (
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/usnistgov/patchpanel/core/testenv"
	"github.com/usnistgov/patchpanel/eal/ethdev"
	"github.com/usnistgov/patchpanel/eal/pktmbuf"
)

var makeAR = testenv.MakeAR

type fakeDriver struct {
	closed bool
}

func (d *fakeDriver) Close() error {
	d.closed = true
	return nil
}
func (*fakeDriver) Kind() string                                 { return "fake" }
func (*fakeDriver) NRxQueues() int                               { return 1 }
func (*fakeDriver) NTxQueues() int                               { return 2 }
func (*fakeDriver) RxBurst(queue int, pkts pktmbuf.Vector) int { return 0 }
func (*fakeDriver) TxBurst(queue int, pkts pktmbuf.Vector) int { return 0 }
func (d *fakeDriver) Valid() bool                                { return !d.closed }

func TestTable(t *testing.T) {
	assert, require := makeAR(t)

	table := ethdev.NewTable()
	d0, d1, d2 := &fakeDriver{}, &fakeDriver{}, &fakeDriver{}

	id0, e := table.Attach(d0)
	require.NoError(e)
	id1, e := table.Attach(d1)
	require.NoError(e)
	assert.Equal(ethdev.ID(0), id0)
	assert.Equal(ethdev.ID(1), id1)
	assert.True(table.IsValid(id1))
	assert.Same(d1, table.Get(id1))

	require.NoError(table.Detach(id0))
	assert.True(d0.closed)
	assert.False(table.IsValid(id0))
	assert.ErrorIs(table.Detach(id0), ethdev.ErrNoDevice)

	id2, e := table.Attach(d2)
	require.NoError(e)
	assert.Equal(ethdev.ID(0), id2)
	assert.Equal([]ethdev.ID{0, 1}, table.List())

	assert.NoError(table.Close())
	assert.True(d1.closed)
	assert.True(d2.closed)
	assert.Empty(table.List())

	assert.False(ethdev.InvalidID.Valid())
	assert.Equal("invalid", ethdev.InvalidID.String())
}

func TestRxPump(t *testing.T) {
	assert, require := makeAR(t)

	mp, e := pktmbuf.NewPool("MP", pktmbuf.PoolConfig{Capacity: 16})
	require.NoError(e)

	frames := make(chan []byte, 4)
	frames <- []byte{0x01, 0x02}
	frames <- []byte{0x03}
	read := func(p []byte) (int, error) {
		select {
		case frame, ok := <-frames:
			if !ok {
				return 0, io.EOF
			}
			return copy(p, frame), nil
		case <-time.After(time.Millisecond):
			return 0, os.ErrDeadlineExceeded
		}
	}

	pump, e := ethdev.NewRxPump("pump0", mp, 8, read)
	require.NoError(e)
	pump.SetPort(4)

	vec := make(pktmbuf.Vector, 4)
	var n int
	assert.Eventually(func() bool {
		n += pump.RxBurst(vec[n:])
		return n == 2
	}, time.Second, time.Millisecond)
	assert.Equal([]byte{0x01, 0x02}, vec[0].Bytes())
	assert.Equal([]byte{0x03}, vec[1].Bytes())
	assert.Equal(uint16(4), vec[1].Port())
	vec[:n].Close()

	close(frames)
	assert.NoError(pump.Close())
	assert.Equal(16, mp.CountAvailable())
}

func TestTxWrite(t *testing.T) {
	assert, require := makeAR(t)

	mp, e := pktmbuf.NewPool("MP", pktmbuf.PoolConfig{Capacity: 4})
	require.NoError(e)
	vec, e := mp.Alloc(3)
	require.NoError(e)

	nWrites := 0
	n := ethdev.TxWrite(vec, func(p []byte) (int, error) {
		if nWrites++; nWrites > 2 {
			return 0, errors.New("full")
		}
		return len(p), nil
	})
	assert.Equal(2, n)
	assert.Equal(3, mp.CountAvailable())
	vec[n:].Close()
	assert.Equal(4, mp.CountAvailable())
}
