package portstats_test

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/usnistgov/patchpanel/core/testenv"
	"github.com/usnistgov/patchpanel/iface/portstats"
)

var makeAR = testenv.MakeAR

func TestRegion(t *testing.T) {
	assert, require := makeAR(t)
	cfg := portstats.Config{
		Dir:       t.TempDir(),
		Name:      "stats",
		MaxPhy:    4,
		MaxClient: 8,
		Reset:     true,
	}

	rg, e := portstats.Open(cfg)
	require.NoError(e)
	defer rg.Remove()
	assert.Equal(4, rg.MaxPhy())
	assert.Equal(8, rg.MaxClient())

	p1, e := rg.Phy(1)
	require.NoError(e)
	c7, e := rg.Client(7)
	require.NoError(e)
	_, e = rg.Phy(4)
	assert.ErrorIs(e, portstats.ErrIndex)
	_, e = rg.Client(-1)
	assert.ErrorIs(e, portstats.ErrIndex)

	p1.Add(portstats.Rx, 10)
	p1.Add(portstats.Tx, 7)
	p1.Add(portstats.TxDrop, 3)
	c7.Add(portstats.RxDrop, 2)
	assert.Equal(portstats.Counters{Rx: 10, Tx: 7, TxDrop: 3}, p1.Read())

	// second mapping observes the same counters
	cfg.Reset = false
	rg2, e := portstats.Open(cfg)
	require.NoError(e)
	defer rg2.Close()
	p1b, _ := rg2.Phy(1)
	c7b, _ := rg2.Client(7)
	assert.Equal(uint64(10), p1b.Load(portstats.Rx))
	assert.Equal(uint64(2), c7b.Load(portstats.RxDrop))

	p1b.Reset()
	assert.Equal(portstats.Counters{}, p1.Read())

	var nilRec *portstats.Record
	nilRec.Add(portstats.Rx, 1)
	assert.Equal(portstats.Counters{}, nilRec.Read())
}

type testSource map[string]*portstats.Record

func (src testSource) EachStats(cb func(port string, rec *portstats.Record)) {
	for port, rec := range src {
		cb(port, rec)
	}
}

func TestCollector(t *testing.T) {
	assert, _ := makeAR(t)

	var r0, r1 portstats.Record
	r0.Add(portstats.Rx, 5)
	r0.Add(portstats.Tx, 4)
	r1.Add(portstats.TxDrop, 1)
	c := portstats.NewCollector(testSource{"phy:0": &r0, "ring:1": &r1})

	assert.Equal(8, testutil.CollectAndCount(c))
	assert.NoError(testutil.CollectAndCompare(c, strings.NewReader(`
# HELP patchpanel_port_drops_total Total dropped packets per port.
# TYPE patchpanel_port_drops_total counter
patchpanel_port_drops_total{direction="rx",port="phy:0"} 0
patchpanel_port_drops_total{direction="rx",port="ring:1"} 0
patchpanel_port_drops_total{direction="tx",port="phy:0"} 0
patchpanel_port_drops_total{direction="tx",port="ring:1"} 1
`), "patchpanel_port_drops_total"))
}
