package patchfwd_test

import (
	"sync"
	"testing"
	"time"

	"github.com/usnistgov/patchpanel/app/patchfwd"
	"github.com/usnistgov/patchpanel/container/dblbuf"
	"github.com/usnistgov/patchpanel/container/patch"
	"github.com/usnistgov/patchpanel/container/vlantag"
	"github.com/usnistgov/patchpanel/core/testenv"
	"github.com/usnistgov/patchpanel/eal/ethdev"
	"github.com/usnistgov/patchpanel/eal/ethdev/ringdev"
	"github.com/usnistgov/patchpanel/eal/pktmbuf"
	"github.com/usnistgov/patchpanel/iface"
	"github.com/usnistgov/patchpanel/iface/portstats"
)

var makeAR = testenv.MakeAR

// stubDev is a driver whose rx returns queued packets and whose tx accepts up to txLimit packets per burst.
type stubDev struct {
	mutex   sync.Mutex
	rxq     pktmbuf.Vector
	txLimit int
	sent    pktmbuf.Vector
}

func (*stubDev) Kind() string { return "stub" }
func (*stubDev) NRxQueues() int { return 1 }
func (*stubDev) NTxQueues() int { return 1 }
func (*stubDev) Valid() bool { return true }
func (d *stubDev) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.rxq.Close()
	d.sent.Close()
	d.rxq, d.sent = nil, nil
	return nil
}

func (d *stubDev) RxBurst(queue int, pkts pktmbuf.Vector) int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	n := copy(pkts, d.rxq)
	d.rxq = d.rxq[n:]
	return n
}

func (d *stubDev) TxBurst(queue int, pkts pktmbuf.Vector) int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	n := min(len(pkts), d.txLimit)
	d.sent = append(d.sent, pkts[:n]...)
	return n
}

func (d *stubDev) nSent() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.sent)
}

type fixture struct {
	t     *testing.T
	mp    *pktmbuf.Pool
	table *ethdev.Table
	reg   *iface.Registry
	graph *patch.Graph
	stats map[string]*portstats.Record
}

func newFixture(t *testing.T) *fixture {
	_, require := makeAR(t)
	mp, e := pktmbuf.NewPool(t.Name(), pktmbuf.PoolConfig{Capacity: 256})
	require.NoError(e)
	f := &fixture{
		t:     t,
		mp:    mp,
		table: ethdev.NewTable(),
		reg:   iface.NewRegistry(),
		stats: map[string]*portstats.Record{},
	}
	f.graph = patch.New(f.reg, f.table, dblbuf.Config{})
	t.Cleanup(func() { f.table.Close() })
	return f
}

func (f *fixture) addPort(port string, drv ethdev.Driver) patch.Endpoint {
	_, require := makeAR(f.t)
	id, e := f.table.Attach(drv)
	require.NoError(e)
	rec := &portstats.Record{}
	f.stats[port] = rec
	require.NoError(f.reg.Register(iface.Entry{PortID: iface.MustParsePortID(port), Handle: id, Stats: rec}))
	return patch.Endpoint{Handle: id}
}

func (f *fixture) feed(d *stubDev, n int) {
	vec, e := f.mp.Alloc(n)
	if e != nil {
		f.t.Fatal(e)
	}
	for _, pkt := range vec {
		pkt.SetBytes(testenv.EthernetFrame("02:00:00:00:00:01", "02:00:00:00:00:02", -1, 46))
	}
	d.mutex.Lock()
	d.rxq = append(d.rxq, vec...)
	d.mutex.Unlock()
}

func TestForward(t *testing.T) {
	assert, require := makeAR(t)
	f := newFixture(t)
	phy0, phy1 := &stubDev{txLimit: 64}, &stubDev{txLimit: 64}
	in, out := f.addPort("phy:0", phy0), f.addPort("phy:1", phy1)
	require.NoError(f.graph.AddLink(in, out))

	fwd := patchfwd.New(f.graph, patchfwd.Config{})
	defer fwd.Close()

	f.feed(phy0, 10)
	assert.Equal(10, fwd.Poll())
	assert.Equal(10, phy1.nSent())
	assert.Equal(portstats.Counters{Rx: 10}, f.stats["phy:0"].Read())
	assert.Equal(portstats.Counters{Tx: 10}, f.stats["phy:1"].Read())

	// empty input
	assert.Equal(0, fwd.Poll())
}

func TestBurstLimit(t *testing.T) {
	assert, require := makeAR(t)
	f := newFixture(t)
	phy0, phy1 := &stubDev{txLimit: 64}, &stubDev{txLimit: 64}
	require.NoError(f.graph.AddLink(f.addPort("phy:0", phy0), f.addPort("phy:1", phy1)))

	fwd := patchfwd.New(f.graph, patchfwd.Config{BurstSize: 8})
	defer fwd.Close()

	f.feed(phy0, 20)
	assert.Equal(8, fwd.Poll())
	assert.Equal(8, fwd.Poll())
	assert.Equal(4, fwd.Poll())
	assert.Equal(20, phy1.nSent())
}

func TestPartialTx(t *testing.T) {
	assert, require := makeAR(t)
	f := newFixture(t)
	phy0, phy1 := &stubDev{txLimit: 64}, &stubDev{txLimit: 3}
	require.NoError(f.graph.AddLink(f.addPort("phy:0", phy0), f.addPort("phy:1", phy1)))

	fwd := patchfwd.New(f.graph, patchfwd.Config{})
	defer fwd.Close()

	f.feed(phy0, 10)
	sentBefore := phy0.rxq[:3:3]
	assert.Equal(10, fwd.Poll())

	rxCnt, txCnt := f.stats["phy:0"].Read(), f.stats["phy:1"].Read()
	assert.Equal(rxCnt.Rx, txCnt.Tx+txCnt.TxDrop)
	assert.Equal(uint64(3), txCnt.Tx)
	assert.Equal(uint64(7), txCnt.TxDrop)

	// the head of the burst is transmitted in order, the tail is freed
	assert.Equal(sentBefore, phy1.sent)
	assert.Equal(3, f.mp.CountInUse())
}

func TestInertLink(t *testing.T) {
	assert, require := makeAR(t)
	f := newFixture(t)
	phy0, ring3 := &stubDev{txLimit: 64}, &stubDev{txLimit: 64}
	in, out := f.addPort("phy:0", phy0), f.addPort("ring:3", ring3)
	require.NoError(f.graph.AddLink(in, out))

	fwd := patchfwd.New(f.graph, patchfwd.Config{})
	defer fwd.Close()

	require.NoError(f.graph.RemoveByPort(out.Handle))
	require.NoError(f.reg.Unregister(iface.MustParsePortID("ring:3")))
	require.NoError(f.table.Detach(out.Handle))

	f.feed(phy0, 5)
	assert.Equal(5, fwd.Poll())
	assert.Equal(portstats.Counters{Rx: 5, RxDrop: 5}, f.stats["phy:0"].Read())
	assert.Equal(0, f.mp.CountInUse())
}

func TestAbilities(t *testing.T) {
	assert, require := makeAR(t)
	f := newFixture(t)
	phy0, phy1 := &stubDev{txLimit: 64}, &stubDev{txLimit: 64}
	in, out := f.addPort("phy:0", phy0), f.addPort("phy:1", phy1)
	require.NoError(f.graph.AddLink(in, out))

	abls := vlantag.NewTable(dblbuf.Config{})
	addTag, e := vlantag.AddTag(100, 3)
	require.NoError(e)
	require.NoError(abls.Set(in.Handle, vlantag.DirRx, vlantag.Abilities{addTag}))

	fwd := patchfwd.New(f.graph, patchfwd.Config{})
	fwd.UseAbilities(abls)
	defer fwd.Close()

	f.feed(phy0, 4)
	assert.Equal(4, fwd.Poll())
	require.Equal(4, phy1.nSent())
	for _, pkt := range phy1.sent {
		frame := pkt.Bytes()
		assert.Equal([]byte{0x81, 0x00, 0x60, 0x64}, frame[12:16])
	}

	// tx ability strips the tag added on rx
	require.NoError(abls.Set(out.Handle, vlantag.DirTx, vlantag.Abilities{vlantag.DelTag()}))
	f.feed(phy0, 1)
	assert.Equal(1, fwd.Poll())
	require.Equal(5, phy1.nSent())
	assert.Equal(testenv.EthernetFrame("02:00:00:00:00:01", "02:00:00:00:00:02", -1, 46), phy1.sent[4].Bytes())
}

func TestThread(t *testing.T) {
	assert, require := makeAR(t)
	f := newFixture(t)
	rings := ringdev.NewSet(256)
	ring0, e := rings.New(0)
	require.NoError(e)
	ring1, e := rings.New(1)
	require.NoError(e)
	require.NoError(f.graph.AddLink(f.addPort("ring:0", ring0), f.addPort("ring:1", ring1)))

	fwd := patchfwd.New(f.graph, patchfwd.Config{IdleSleep: 1})
	defer fwd.Close()
	fwd.Launch()
	assert.False(fwd.IsForwarding())

	vec, e := f.mp.Alloc(16)
	require.NoError(e)
	require.Equal(16, ring0.TxBurst(0, vec))

	time.Sleep(10 * time.Millisecond)
	assert.Equal(16, ring0.Ring().CountInUse())

	fwd.Forward()
	assert.True(fwd.IsForwarding())
	assert.Eventually(func() bool { return ring1.Ring().CountInUse() == 16 }, time.Second, time.Millisecond)

	// reconfiguration succeeds while forwarding
	require.NoError(f.graph.ResetAll())

	fwd.Idle()
	require.NoError(fwd.Stop())
	st := fwd.ThreadLoadStat()
	assert.Greater(st.ValidPolls, uint64(0))
	assert.Equal(uint64(16), st.Items)

	out := make(pktmbuf.Vector, 32)
	assert.Equal(16, ring1.RxBurst(0, out))
	out[:16].Close()
}
