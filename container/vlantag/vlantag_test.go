package vlantag_test

import (
	"testing"

	"github.com/usnistgov/patchpanel/container/dblbuf"
	"github.com/usnistgov/patchpanel/container/vlantag"
	"github.com/usnistgov/patchpanel/core/testenv"
	"github.com/usnistgov/patchpanel/eal/pktmbuf"
)

var makeAR = testenv.MakeAR

const (
	dst = "02:00:00:00:00:01"
	src = "02:00:00:00:00:02"
)

func makePacket(t *testing.T, mp *pktmbuf.Pool, frame []byte) *pktmbuf.Packet {
	pkt := mp.AllocOne()
	if pkt == nil {
		t.Fatal("pool exhausted")
	}
	if e := pkt.SetBytes(frame); e != nil {
		t.Fatal(e)
	}
	return pkt
}

func TestAbility(t *testing.T) {
	assert, require := makeAR(t)

	_, e := vlantag.AddTag(4095, 0)
	assert.ErrorIs(e, vlantag.ErrVid)
	_, e = vlantag.AddTag(1, 8)
	assert.ErrorIs(e, vlantag.ErrPcp)

	abl, e := vlantag.AddTag(100, 3)
	require.NoError(e)
	assert.Equal(uint16(3<<13|100), abl.TCI())
	assert.Equal("add_vlantag 100 3", abl.String())
	assert.Equal("del_vlantag", vlantag.DelTag().String())
	assert.ErrorIs(vlantag.Abilities{abl, abl, abl, abl, abl}.Validate(), vlantag.ErrTooMany)
}

func TestApply(t *testing.T) {
	assert, require := makeAR(t)
	mp, e := pktmbuf.NewPool("TestApply", pktmbuf.PoolConfig{Capacity: 8})
	require.NoError(e)

	add100, _ := vlantag.AddTag(100, 0)
	add200, _ := vlantag.AddTag(200, 5)

	untagged := testenv.EthernetFrame(dst, src, -1, 4)
	tagged100 := testenv.EthernetFrame(dst, src, 100, 4)
	tagged200 := append([]byte(nil), tagged100...)
	tagged200[14], tagged200[15] = 0xA0, 0xC8 // PCP 5, VID 200

	vec := pktmbuf.Vector{makePacket(t, mp, untagged), makePacket(t, mp, tagged100)}
	assert.Equal(2, vlantag.Abilities{add100}.Apply(vec))
	assert.Equal(tagged100, vec[0].Bytes())
	assert.Equal(tagged100, vec[1].Bytes())

	assert.Equal(2, vlantag.Abilities{add200}.Apply(vec))
	assert.Equal(tagged200, vec[0].Bytes())

	assert.Equal(2, vlantag.Abilities{vlantag.DelTag()}.Apply(vec))
	assert.Equal(untagged, vec[0].Bytes())
	assert.Equal(untagged, vec[1].Bytes())

	// stripping an untagged frame is a no-op
	assert.Equal(2, vlantag.Abilities{vlantag.DelTag()}.Apply(vec))
	assert.Equal(untagged, vec[1].Bytes())

	// no abilities
	assert.Equal(2, vlantag.Abilities(nil).Apply(vec))

	vec.Close()
	assert.Equal(8, mp.CountAvailable())
}

func TestApplyShared(t *testing.T) {
	assert, require := makeAR(t)
	mp, e := pktmbuf.NewPool("TestApplyShared", pktmbuf.PoolConfig{Capacity: 4})
	require.NoError(e)
	add7, _ := vlantag.AddTag(7, 0)

	untagged := testenv.EthernetFrame(dst, src, -1, 4)
	pkt := makePacket(t, mp, untagged)
	pkt.Ref()

	vec := pktmbuf.Vector{pkt}
	assert.Equal(1, vlantag.Abilities{add7}.Apply(vec))
	assert.NotSame(pkt, vec[0])
	assert.Equal(1, pkt.Refcnt())
	assert.Equal(untagged, pkt.Bytes())
	assert.Equal(testenv.EthernetFrame(dst, src, 7, 4), vec[0].Bytes())

	vec.Close()
	pkt.Close()
	assert.Equal(4, mp.CountAvailable())
}

func TestApplyFailure(t *testing.T) {
	assert, require := makeAR(t)
	mp, e := pktmbuf.NewPool("TestApplyFailure", pktmbuf.PoolConfig{Capacity: 4})
	require.NoError(e)
	add7, _ := vlantag.AddTag(7, 0)

	good := makePacket(t, mp, testenv.EthernetFrame(dst, src, -1, 4))
	short := makePacket(t, mp, []byte{0x02, 0x00})
	vec := pktmbuf.Vector{good, short, makePacket(t, mp, testenv.EthernetFrame(dst, src, -1, 4))}
	assert.Equal(1, vlantag.Abilities{add7}.Apply(vec))
	vec.Close()
	assert.Equal(4, mp.CountAvailable())
}

func TestTable(t *testing.T) {
	assert, require := makeAR(t)
	tbl := vlantag.NewTable(dblbuf.Config{RetryCount: 10, RetryInterval: 1})
	r := tbl.NewReader()
	defer r.Close()

	add7, _ := vlantag.AddTag(7, 1)
	require.NoError(tbl.Set(3, vlantag.DirTx, vlantag.Abilities{add7}))
	require.NoError(tbl.Set(4, vlantag.DirRx, vlantag.Abilities{vlantag.DelTag()}))
	assert.ErrorIs(tbl.Set(9999, vlantag.DirRx, nil), vlantag.ErrHandle)

	s := r.Acquire()
	assert.Equal(vlantag.Abilities{add7}, s.Get(3, vlantag.DirTx))
	assert.Empty(s.Get(3, vlantag.DirRx))
	assert.Equal(vlantag.Abilities{vlantag.DelTag()}, s.Get(4, vlantag.DirRx))
	r.Park()

	require.NoError(tbl.ClearPort(3))
	s = r.Acquire()
	assert.Empty(s.Get(3, vlantag.DirTx))
	assert.Equal(vlantag.Abilities{vlantag.DelTag()}, tbl.Get(4, vlantag.DirRx))
	assert.Empty(s.Get(9999, vlantag.DirTx))

	// reader stuck on an old snapshot causes rollback
	assert.Error(tbl.Set(5, vlantag.DirTx, vlantag.Abilities{add7}))
	assert.Empty(tbl.Get(5, vlantag.DirTx))
}

func TestTableClearPort(t *testing.T) {
	assert, require := makeAR(t)
	tbl := vlantag.NewTable(dblbuf.Config{RetryCount: 10, RetryInterval: 1})

	add7, _ := vlantag.AddTag(7, 1)
	require.NoError(tbl.Set(3, vlantag.DirRx, vlantag.Abilities{vlantag.DelTag()}))
	require.NoError(tbl.Set(3, vlantag.DirTx, vlantag.Abilities{add7}))
	restore := tbl.Checkpoint()

	r := tbl.NewReader()
	defer r.Close()
	r.Acquire()

	// both directions are cleared in one publication, so a stuck reader leaves both in place
	assert.ErrorIs(tbl.ClearPort(3), dblbuf.ErrDrainTimeout)
	assert.Equal(vlantag.Abilities{vlantag.DelTag()}, tbl.Get(3, vlantag.DirRx))
	assert.Equal(vlantag.Abilities{add7}, tbl.Get(3, vlantag.DirTx))

	// a port without abilities needs no publication
	require.NoError(tbl.ClearPort(8))

	r.Park()
	require.NoError(tbl.ClearPort(3))
	assert.Empty(tbl.Get(3, vlantag.DirRx))
	assert.Empty(tbl.Get(3, vlantag.DirTx))

	require.NoError(restore())
	assert.Equal(vlantag.Abilities{add7}, tbl.Get(3, vlantag.DirTx))
	s := r.Acquire()
	assert.Equal(vlantag.Abilities{vlantag.DelTag()}, s.Get(3, vlantag.DirRx))
}

func TestAbilityJSON(t *testing.T) {
	assert, _ := makeAR(t)

	abl, _ := vlantag.AddTag(100, 3)
	assert.Equal(`{"operation":"add_vlantag","id":100,"pcp":3}`, testenv.ToJSON(abl))

	var decoded vlantag.Ability
	testenv.FromJSON(`{"operation":"del_vlantag"}`, &decoded)
	assert.Equal(vlantag.DelTag(), decoded)

	dir, e := vlantag.ParseDir("tx")
	assert.NoError(e)
	assert.Equal(vlantag.DirTx, dir)
	_, e = vlantag.ParseDir("up")
	assert.ErrorIs(e, vlantag.ErrDir)
	assert.Equal(`"rx"`, testenv.ToJSON(vlantag.DirRx))
}
