// Package dataplanetest provides a DataPlane test fixture.
package dataplanetest

import (
	"testing"
	"time"

	"github.com/usnistgov/patchpanel/app/dataplane"
	"github.com/usnistgov/patchpanel/core/hwinfo"
	"github.com/usnistgov/patchpanel/core/testenv"
	"github.com/usnistgov/patchpanel/eal/ealthread"
	"github.com/usnistgov/patchpanel/eal/pktmbuf"
	"github.com/usnistgov/patchpanel/iface/portstats"
)

// Cores is the CPU topology seen by the fixture allocator.
var Cores = hwinfo.Static{
	{ID: 0, NumaSocket: 0}, {ID: 1, NumaSocket: 0}, {ID: 2, NumaSocket: 0}, {ID: 3, NumaSocket: 0},
}

// Fixture is a DataPlane with ring ports in a temporary statistics region.
type Fixture struct {
	t  testing.TB
	DP *dataplane.DataPlane
}

// New creates a Fixture.
// modify, if not nil, can change the configuration.
func New(t testing.TB, modify func(cfg *dataplane.Config)) *Fixture {
	cfg := dataplane.Config{
		Pool:      pktmbuf.PoolConfig{Capacity: 1024},
		Stats:     portstats.Config{Dir: testenv.TempDir(t), MaxPhy: 4, MaxClient: 64},
		Allocator: ealthread.NewAllocator(Cores),
	}
	cfg.LCores = ealthread.AllocConfig{dataplane.RoleForwarder: {LCores: []int{1}}}
	if modify != nil {
		modify(&cfg)
	}

	dp, e := dataplane.New(cfg)
	if e != nil {
		t.Fatalf("dataplane.New: %v", e)
	}
	t.Cleanup(func() { dp.Close() })
	return &Fixture{t: t, DP: dp}
}

// Feed enqueues n packets containing frame into ring id.
func (f *Fixture) Feed(id, n int, frame []byte) pktmbuf.Vector {
	vec, e := f.DP.Pool().Alloc(n)
	if e != nil {
		f.t.Fatalf("Pool.Alloc: %v", e)
	}
	for _, pkt := range vec {
		pkt.SetBytes(frame)
	}
	ring := f.DP.Rings().Lookup(id)
	if ring == nil {
		vec.Close()
		f.t.Fatalf("ring %d does not exist", id)
	}
	if nEnq := ring.Enqueue(vec); nEnq != n {
		f.t.Fatalf("enqueued %d of %d", nEnq, n)
	}
	return vec
}

// RingCount returns number of packets in ring id.
func (f *Fixture) RingCount(id int) int {
	if ring := f.DP.Rings().Lookup(id); ring != nil {
		return ring.CountInUse()
	}
	return 0
}

// Drain dequeues and frees every packet in ring id, and returns how many were dequeued.
func (f *Fixture) Drain(id int) (n int) {
	ring := f.DP.Rings().Lookup(id)
	if ring == nil {
		return 0
	}
	vec := make(pktmbuf.Vector, 64)
	for {
		nDeq := ring.Dequeue(vec)
		if nDeq == 0 {
			return n
		}
		vec[:nDeq].Close()
		n += nDeq
	}
}

// WaitRing waits until ring id holds n packets.
func (f *Fixture) WaitRing(id, n int) bool {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if f.RingCount(id) == n {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}
