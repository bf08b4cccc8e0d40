// Package patchfwd implements the polling thread that forwards packets along patch links.
package patchfwd

import (
	"sync/atomic"
	"time"

	"github.com/usnistgov/patchpanel/container/dblbuf"
	"github.com/usnistgov/patchpanel/container/patch"
	"github.com/usnistgov/patchpanel/container/vlantag"
	"github.com/usnistgov/patchpanel/core/logging"
	"github.com/usnistgov/patchpanel/eal/ealthread"
	"github.com/usnistgov/patchpanel/eal/pktmbuf"
	"github.com/usnistgov/patchpanel/iface/portstats"
	"go.uber.org/zap"
)

var logger = logging.New("patchfwd")

// Forwarder forwards packets along patch links.
// While forwarding, it polls every link without sleeping; while idle, it sleeps in coarse increments.
type Forwarder struct {
	ealthread.Thread
	cfg     Config
	reader  *dblbuf.Reader[[]patch.Link]
	abls    *dblbuf.Reader[vlantag.Snapshot]
	stop    ealthread.StopChan
	running atomic.Bool
	load    ealthread.LoadCounter
	vec     pktmbuf.Vector
}

var _ ealthread.ThreadWithLoadStat = (*Forwarder)(nil)

// New creates a Forwarder reading links from g.
// The Forwarder starts idle and its thread is not launched.
func New(g *patch.Graph, cfg Config) *Forwarder {
	cfg.applyDefaults()
	fwd := &Forwarder{
		cfg:    cfg,
		reader: g.NewReader(),
		stop:   ealthread.NewStopChan(),
		vec:    make(pktmbuf.Vector, cfg.BurstSize),
	}
	fwd.Thread = ealthread.New(fwd.main, fwd.stop)
	return fwd
}

// UseAbilities makes the Forwarder apply port abilities from t on each link.
// This must be called before the thread is launched.
func (fwd *Forwarder) UseAbilities(t *vlantag.Table) {
	fwd.abls = t.NewReader()
}

// Forward sets running state.
func (fwd *Forwarder) Forward() {
	if !fwd.running.Swap(true) {
		logger.Info("forwarding", fwd.LCore().ZapField("lc"))
	}
}

// Idle clears running state.
func (fwd *Forwarder) Idle() {
	if fwd.running.Swap(false) {
		logger.Info("idling", fwd.LCore().ZapField("lc"))
	}
}

// IsForwarding returns running state.
func (fwd *Forwarder) IsForwarding() bool {
	return fwd.running.Load()
}

// ThreadLoadStat implements ealthread.ThreadWithLoadStat.
func (fwd *Forwarder) ThreadLoadStat() ealthread.LoadStat {
	return fwd.load.Read()
}

func (fwd *Forwarder) main() int {
	idleSleep := fwd.cfg.idleSleep()
	for fwd.stop.Continue() {
		if !fwd.running.Load() {
			time.Sleep(idleSleep)
			continue
		}
		fwd.load.Poll(fwd.Poll())
	}
	return 0
}

// Poll executes one iteration over all links, and returns the number of received packets.
// This is called by the thread; tests may call it directly while the thread is not running.
func (fwd *Forwarder) Poll() (nRx int) {
	links := *fwd.reader.Acquire()
	defer fwd.reader.Park()
	var abls *vlantag.Snapshot
	if fwd.abls != nil {
		abls = fwd.abls.Acquire()
		defer fwd.abls.Park()
	}
	for i := range links {
		nRx += fwd.forwardLink(&links[i], abls)
	}
	return nRx
}

func (fwd *Forwarder) forwardLink(l *patch.Link, abls *vlantag.Snapshot) int {
	nRx := l.InDev.RxBurst(l.In.Queue, fwd.vec)
	if nRx == 0 {
		return 0
	}
	rx := fwd.vec[:nRx]
	defer rx.Clear()
	l.InStats.Add(portstats.Rx, uint64(nRx))

	if l.OutDev == nil {
		rx.Close()
		l.InStats.Add(portstats.RxDrop, uint64(nRx))
		return nRx
	}

	pkts := rx
	if abls != nil {
		pkts = applyAbilities(abls.Get(l.In.Handle, vlantag.DirRx), pkts, l.InStats, portstats.RxDrop)
		pkts = applyAbilities(abls.Get(l.Out.Handle, vlantag.DirTx), pkts, l.OutStats, portstats.TxDrop)
	}

	nTx := l.OutDev.TxBurst(l.Out.Queue, pkts)
	l.OutStats.Add(portstats.Tx, uint64(nTx))
	if nTx < len(pkts) {
		pkts[nTx:].Close()
		l.OutStats.Add(portstats.TxDrop, uint64(len(pkts)-nTx))
	}
	return nRx
}

// applyAbilities applies abilities to packets, and frees and counts the packets that fail.
func applyAbilities(abls vlantag.Abilities, pkts pktmbuf.Vector, stats *portstats.Record, drop portstats.Counter) pktmbuf.Vector {
	if len(abls) == 0 {
		return pkts
	}
	nOk := abls.Apply(pkts)
	if nOk < len(pkts) {
		pkts[nOk:].Close()
		stats.Add(drop, uint64(len(pkts)-nOk))
	}
	return pkts[:nOk]
}

// Close stops the thread and unregisters from the patch graph and ability table.
func (fwd *Forwarder) Close() error {
	e := fwd.Thread.Stop()
	fwd.reader.Close()
	if fwd.abls != nil {
		fwd.abls.Close()
	}
	if e != nil {
		logger.Warn("forwarder exit", zap.Error(e))
	}
	return e
}
