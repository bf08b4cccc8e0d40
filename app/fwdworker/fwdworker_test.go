package fwdworker_test

import (
	"testing"
	"time"

	"github.com/usnistgov/patchpanel/app/fwdworker"
	"github.com/usnistgov/patchpanel/container/dblbuf"
	"github.com/usnistgov/patchpanel/container/patch"
	"github.com/usnistgov/patchpanel/container/vlantag"
	"github.com/usnistgov/patchpanel/core/testenv"
	"github.com/usnistgov/patchpanel/eal/ethdev"
	"github.com/usnistgov/patchpanel/eal/ethdev/ringdev"
	"github.com/usnistgov/patchpanel/eal/pktmbuf"
	"github.com/usnistgov/patchpanel/eal/ringbuffer"
	"github.com/usnistgov/patchpanel/iface"
	"github.com/usnistgov/patchpanel/iface/portstats"
)

var makeAR = testenv.MakeAR

type fixture struct {
	t     *testing.T
	mp    *pktmbuf.Pool
	table *ethdev.Table
	rings *ringdev.Set
	reg   *iface.Registry
	abls  *vlantag.Table
	ports map[int]patch.Endpoint
	stats map[int]*portstats.Record
}

func newFixture(t *testing.T, nRings int) *fixture {
	_, require := makeAR(t)
	mp, e := pktmbuf.NewPool(t.Name(), pktmbuf.PoolConfig{Capacity: 1024})
	require.NoError(e)
	f := &fixture{
		t:     t,
		mp:    mp,
		table: ethdev.NewTable(),
		rings: ringdev.NewSet(256),
		reg:   iface.NewRegistry(),
		abls:  vlantag.NewTable(dblbuf.Config{}),
		ports: map[int]patch.Endpoint{},
		stats: map[int]*portstats.Record{},
	}
	t.Cleanup(func() { f.table.Close() })
	for i := range nRings {
		dev, e := f.rings.New(i)
		require.NoError(e)
		id, e := f.table.Attach(dev)
		require.NoError(e)
		f.stats[i] = &portstats.Record{}
		require.NoError(f.reg.Register(iface.Entry{
			PortID: iface.PortID{Type: iface.TypeRing, ID: i},
			Handle: id,
			Stats:  f.stats[i],
		}))
		f.ports[i] = patch.Endpoint{Handle: id}
	}
	return f
}

func (f *fixture) newWorker(mode fwdworker.Mode, rx, tx []int) *fwdworker.Worker {
	_, require := makeAR(f.t)
	w := fwdworker.New(f.t.Name(), mode, f.reg, f.table, f.abls, fwdworker.Config{})
	f.t.Cleanup(func() { w.Close() })
	for _, i := range rx {
		require.NoError(w.AttachRx(f.ports[i]))
	}
	for _, i := range tx {
		require.NoError(w.AttachTx(f.ports[i]))
	}
	return w
}

func (f *fixture) ring(i int) *ringbuffer.Ring {
	return f.rings.Lookup(i)
}

func (f *fixture) feed(i int, n int) {
	vec, e := f.mp.Alloc(n)
	if e != nil {
		f.t.Fatal(e)
	}
	for _, pkt := range vec {
		pkt.SetBytes(testenv.EthernetFrame("02:00:00:00:00:0A", "02:00:00:00:00:01", -1, 46))
	}
	if n := f.ring(i).Enqueue(vec); n != len(vec) {
		f.t.Fatalf("enqueue %d of %d", n, len(vec))
	}
}

func (f *fixture) drain(i int) pktmbuf.Vector {
	vec := make(pktmbuf.Vector, 64)
	n := f.ring(i).Dequeue(vec)
	return vec[:n]
}

func TestForward(t *testing.T) {
	assert, _ := makeAR(t)
	f := newFixture(t, 5)
	w := f.newWorker(fwdworker.ModeForward, []int{0, 1, 4}, []int{2, 3})
	assert.Len(w.Links(), 2)

	f.feed(0, 5)
	f.feed(1, 3)
	f.feed(4, 2)
	assert.Equal(8, w.Poll())

	out2, out3 := f.drain(2), f.drain(3)
	assert.Len(out2, 5)
	assert.Len(out3, 3)
	out2.Close()
	out3.Close()
	assert.Equal(portstats.Counters{Rx: 5}, f.stats[0].Read())
	assert.Equal(portstats.Counters{Tx: 3}, f.stats[3].Read())

	// ring:4 has no counterpart and stays unpolled
	assert.Equal(2, f.ring(4).CountInUse())
	f.drain(4).Close()
	assert.Equal(0, f.mp.CountInUse())
}

func TestMerge(t *testing.T) {
	assert, require := makeAR(t)
	f := newFixture(t, 4)
	w := f.newWorker(fwdworker.ModeMerge, []int{0, 1, 2}, nil)
	assert.Len(w.Links(), 0)
	require.NoError(w.AttachTx(f.ports[3]))
	assert.ErrorIs(w.AttachTx(f.ports[0]), fwdworker.ErrTooManyTx)
	assert.Len(w.Links(), 3)

	f.feed(0, 4)
	f.feed(1, 4)
	f.feed(2, 4)
	assert.Equal(12, w.Poll())
	assert.Equal(12, f.ring(3).CountInUse())
	f.drain(3).Close()

	rx, tx := w.Ports()
	assert.Equal([]patch.Endpoint{f.ports[0], f.ports[1], f.ports[2]}, rx)
	assert.Equal([]patch.Endpoint{f.ports[3]}, tx)
}

func TestAbilities(t *testing.T) {
	assert, require := makeAR(t)
	f := newFixture(t, 2)
	w := f.newWorker(fwdworker.ModeForward, []int{0}, []int{1})

	addTag, e := vlantag.AddTag(20, 0)
	require.NoError(e)
	require.NoError(f.abls.Set(f.ports[1].Handle, vlantag.DirTx, vlantag.Abilities{addTag}))

	f.feed(0, 2)
	assert.Equal(2, w.Poll())
	out := f.drain(1)
	defer out.Close()
	require.Len(out, 2)
	assert.Equal(testenv.EthernetFrame("02:00:00:00:00:0A", "02:00:00:00:00:01", 20, 46), out[0].Bytes())
}

func TestErrors(t *testing.T) {
	assert, require := makeAR(t)
	f := newFixture(t, 4)
	w := f.newWorker(fwdworker.ModeForward, []int{0}, []int{1})

	assert.ErrorIs(w.AttachRx(f.ports[0]), fwdworker.ErrPortExists)
	assert.ErrorIs(w.AttachTx(f.ports[1]), fwdworker.ErrPortExists)
	assert.ErrorIs(w.AttachRx(patch.Endpoint{Handle: f.ports[2].Handle, Queue: 1}), patch.ErrInvalidPort)
	assert.ErrorIs(w.AttachTx(patch.Endpoint{Handle: 999}), patch.ErrInvalidPort)
	assert.ErrorIs(w.DetachRx(f.ports[1].Handle), fwdworker.ErrNoPort)
	assert.ErrorIs(w.DetachTx(f.ports[0].Handle), fwdworker.ErrNoPort)

	require.NoError(f.table.Get(f.ports[3].Handle).Close())
	assert.ErrorIs(w.AttachRx(f.ports[3]), patch.ErrInvalidPort)

	assert.True(w.HasPort(f.ports[0].Handle))
	assert.False(w.HasPort(f.ports[2].Handle))
	require.NoError(w.DetachTx(f.ports[1].Handle))
	assert.Len(w.Links(), 0)
	assert.False(w.HasPort(f.ports[1].Handle))
}

func TestCheckpoint(t *testing.T) {
	assert, require := makeAR(t)
	f := newFixture(t, 4)
	w := f.newWorker(fwdworker.ModeForward, []int{0, 1}, []int{2, 3})
	restore := w.Checkpoint()

	require.NoError(w.RemovePort(f.ports[0].Handle))
	require.NoError(w.RemovePort(f.ports[3].Handle))
	rx, tx := w.Ports()
	assert.Equal([]patch.Endpoint{f.ports[1]}, rx)
	assert.Equal([]patch.Endpoint{f.ports[2]}, tx)

	// a port the component does not use
	require.NoError(w.RemovePort(f.ports[3].Handle))

	require.NoError(restore())
	rx, tx = w.Ports()
	assert.Equal([]patch.Endpoint{f.ports[0], f.ports[1]}, rx)
	assert.Equal([]patch.Endpoint{f.ports[2], f.ports[3]}, tx)
	links := w.Links()
	require.Len(links, 2)
	assert.Equal(f.ports[0], links[0].In)
	assert.Equal(f.ports[2], links[0].Out)
}

func TestThread(t *testing.T) {
	assert, require := makeAR(t)
	f := newFixture(t, 2)
	w := f.newWorker(fwdworker.ModeForward, []int{0}, []int{1})
	w.Launch()
	assert.True(w.IsForwarding())

	f.feed(0, 16)
	assert.Eventually(func() bool { return f.ring(1).CountInUse() == 16 }, time.Second, time.Millisecond)

	// reconfiguration while running
	require.NoError(w.DetachTx(f.ports[1].Handle))
	f.feed(0, 4)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(4, f.ring(0).CountInUse())

	require.NoError(w.Stop())
	assert.Equal(uint64(16), w.ThreadLoadStat().Items)
	f.drain(0).Close()
	f.drain(1).Close()
	assert.Equal(0, f.mp.CountInUse())
}
