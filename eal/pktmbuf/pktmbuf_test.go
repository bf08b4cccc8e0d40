package pktmbuf_test

import (
	"bytes"
	"testing"

	"github.com/usnistgov/patchpanel/core/testenv"
	"github.com/usnistgov/patchpanel/eal/pktmbuf"
)

var makeAR = testenv.MakeAR

func TestPool(t *testing.T) {
	assert, require := makeAR(t)

	mp, e := pktmbuf.NewPool("MP", pktmbuf.PoolConfig{Capacity: 63, Dataroom: 1000})
	require.NoError(e)

	assert.Equal(63, mp.CountAvailable())
	assert.Equal(0, mp.CountInUse())
	assert.Equal(1000, mp.Dataroom())

	vec0, e := mp.Alloc(33)
	assert.NoError(e)
	assert.Equal(30, mp.CountAvailable())
	assert.Equal(33, mp.CountInUse())
	assert.Len(vec0, 33)

	vec1, e := mp.Alloc(30)
	assert.NoError(e)
	assert.Equal(0, mp.CountAvailable())

	vec2, e := mp.Alloc(1)
	assert.ErrorIs(e, pktmbuf.ErrExhausted)
	assert.Len(vec2, 0)
	assert.Nil(mp.AllocOne())

	vec0.Close()
	vec1.Close()
	assert.Equal(63, mp.CountAvailable())

	vec3 := make(pktmbuf.Vector, 64)
	assert.Error(mp.AllocBulk(vec3))
	assert.Nil(vec3[0])
	assert.Equal(63, mp.CountAvailable())
}

func TestPacket(t *testing.T) {
	assert, require := makeAR(t)

	mp, e := pktmbuf.NewPool("MP", pktmbuf.PoolConfig{Capacity: 4, Dataroom: 256})
	require.NoError(e)

	pkt := mp.AllocOne()
	require.NotNil(pkt)
	assert.Equal(0, pkt.Len())
	assert.Equal(pktmbuf.DefaultHeadroom, pkt.Headroom())
	assert.Equal(256, pkt.Tailroom())

	require.NoError(pkt.SetBytes([]byte{0xA0, 0xA1, 0xA2, 0xA3}))
	assert.Equal(4, pkt.Len())
	pkt.SetPort(7)
	assert.Equal(uint16(7), pkt.Port())

	head, e := pkt.Prepend(2)
	require.NoError(e)
	copy(head, []byte{0xB0, 0xB1})
	assert.Equal([]byte{0xB0, 0xB1, 0xA0, 0xA1, 0xA2, 0xA3}, pkt.Bytes())

	pkt.Adj(3)
	assert.Equal([]byte{0xA1, 0xA2, 0xA3}, pkt.Bytes())
	assert.NoError(pkt.Append([]byte{0xC0}))
	assert.Equal(4, pkt.Len())

	_, e = pkt.Prepend(1000)
	assert.ErrorIs(e, pktmbuf.ErrNoHeadroom)
	assert.ErrorIs(pkt.SetBytes(make([]byte, 257)), pktmbuf.ErrTooLong)
	assert.ErrorIs(pkt.Append(make([]byte, 300)), pktmbuf.ErrTooLong)

	clone := pkt.Clone()
	require.NotNil(clone)
	assert.Equal(pkt.Bytes(), clone.Bytes())
	assert.Equal(uint16(7), clone.Port())
	clone.Bytes()[0] = 0xFF
	assert.Equal(byte(0xA1), pkt.Bytes()[0])
	assert.Equal(2, mp.CountInUse())

	clone.Close()
	pkt.Close()
	assert.Equal(4, mp.CountAvailable())

	again := mp.AllocOne()
	assert.Equal(0, again.Len())
	assert.Equal(uint16(0), again.Port())
	again.Close()
}

func TestRefcnt(t *testing.T) {
	assert, require := makeAR(t)

	mp, e := pktmbuf.NewPool("MP", pktmbuf.PoolConfig{Capacity: 2})
	require.NoError(e)

	pkt := mp.AllocOne()
	assert.Equal(1, pkt.Refcnt())
	pkt.Ref()
	assert.Equal(2, pkt.Refcnt())

	pkt.Close()
	assert.Equal(1, pkt.Refcnt())
	assert.Equal(1, mp.CountInUse())

	pkt.Close()
	assert.Equal(0, mp.CountInUse())
	assert.Panics(func() { pkt.Close() })
}

func TestReadFrom(t *testing.T) {
	assert, _ := makeAR(t)

	pkt := pktmbuf.NewPacket(64)
	n, e := pkt.ReadFrom(bytes.NewReader([]byte{1, 2, 3}))
	assert.NoError(e)
	assert.EqualValues(3, n)
	_, e = pkt.ReadFrom(bytes.NewReader([]byte{4}))
	assert.ErrorIs(e, pktmbuf.ErrNotEmpty)
	assert.Equal(3, pktmbuf.Vector{pkt}.Len())
	assert.NoError(pkt.Close())
}
