package clsworker

import (
	"time"

	"github.com/usnistgov/patchpanel/container/classifier"
	"github.com/usnistgov/patchpanel/container/vlantag"
	"github.com/usnistgov/patchpanel/eal/pktmbuf"
	"github.com/usnistgov/patchpanel/iface/portstats"
)

// loopState is owned by the polling thread.
type loopState struct {
	burst     pktmbuf.Vector
	pending   []pktmbuf.Vector
	dec       *classifier.Decoder
	drain     time.Duration
	lastDrain time.Time

	snap *snapshot
	abls *vlantag.Snapshot
}

func (ls *loopState) init(cfg Config) {
	ls.burst = make(pktmbuf.Vector, cfg.BurstSize)
	ls.pending = make([]pktmbuf.Vector, MaxTx)
	for i := range ls.pending {
		ls.pending[i] = make(pktmbuf.Vector, 0, cfg.BurstSize)
	}
	ls.dec = classifier.NewDecoder()
	ls.drain = cfg.drainInterval()
	ls.lastDrain = time.Now()
}

func (w *Worker) main() int {
	w.loop.lastDrain = time.Now()
	for w.stop.Continue() {
		w.load.Poll(w.Poll())
	}
	w.Release()
	return 0
}

// acquire refreshes the snapshots used by Poll.
// Packets pending on tx ports of an outdated snapshot are flushed first, so that a tx index
// never refers to a port of another generation.
func (w *Worker) acquire() {
	ls := &w.loop
	if ls.snap != nil && !w.reader.Stale() && !w.ablReader.Stale() {
		return
	}
	w.Flush()
	ls.snap = w.reader.Acquire()
	ls.abls = w.ablReader.Acquire()
}

// Poll executes one iteration: receives a burst from the rx port, classifies each packet into
// pending buffers, and flushes pending buffers whose drain interval has elapsed.
// It returns the number of received packets.
//
// This is called by the thread; tests may call it directly while the thread is not running,
// followed by Release.
func (w *Worker) Poll() int {
	w.acquire()
	ls := &w.loop
	s := ls.snap

	nRx := 0
	if s.rx.dev != nil {
		nRx = s.rx.dev.RxBurst(s.rx.Queue, ls.burst)
	}
	if nRx > 0 {
		w.dispatch(s, ls.burst[:nRx])
	}

	if now := time.Now(); now.Sub(ls.lastDrain) >= ls.drain {
		w.Flush()
		ls.lastDrain = now
	}
	return nRx
}

func (w *Worker) dispatch(s *snapshot, rx pktmbuf.Vector) {
	ls := &w.loop
	defer rx.Clear()
	s.rx.stats.Add(portstats.Rx, uint64(len(rx)))

	if abls := ls.abls.Get(s.rx.Handle, vlantag.DirRx); len(abls) > 0 {
		if nOk := abls.Apply(rx); nOk < len(rx) {
			rx[nOk:].Close()
			s.rx.stats.Add(portstats.RxDrop, uint64(len(rx)-nOk))
			rx = rx[:nOk]
		}
	}

	for _, pkt := range rx {
		res := ls.dec.ClassifyFrame(&s.table, pkt.Bytes())
		switch res.Verdict {
		case classifier.Single:
			w.push(s, res.Tx, pkt)
		case classifier.FanOut:
			for range res.Fanout[1:] {
				pkt.Ref()
			}
			for _, tx := range res.Fanout {
				w.push(s, tx, pkt)
			}
		default:
			pkt.Close()
			s.rx.stats.Add(portstats.RxDrop, 1)
		}
	}
}

func (w *Worker) push(s *snapshot, tx int, pkt *pktmbuf.Packet) {
	ls := &w.loop
	ls.pending[tx] = append(ls.pending[tx], pkt)
	if len(ls.pending[tx]) >= len(ls.burst) {
		w.flushTx(s, tx)
	}
}

func (w *Worker) flushTx(s *snapshot, tx int) {
	ls := &w.loop
	vec := ls.pending[tx]
	defer func(all pktmbuf.Vector) {
		all.Clear()
		ls.pending[tx] = all[:0]
	}(vec)
	p := s.tx[tx]

	if abls := ls.abls.Get(p.Handle, vlantag.DirTx); len(abls) > 0 {
		if nOk := abls.Apply(vec); nOk < len(vec) {
			vec[nOk:].Close()
			p.stats.Add(portstats.TxDrop, uint64(len(vec)-nOk))
			vec = vec[:nOk]
		}
	}

	nTx := 0
	if p.dev != nil {
		nTx = p.dev.TxBurst(p.Queue, vec)
	}
	p.stats.Add(portstats.Tx, uint64(nTx))
	if nTx < len(vec) {
		vec[nTx:].Close()
		p.stats.Add(portstats.TxDrop, uint64(len(vec)-nTx))
	}
}

// Flush transmits every non-empty pending buffer.
// This must be called from the polling thread, or while the thread is not running.
func (w *Worker) Flush() {
	ls := &w.loop
	if ls.snap == nil {
		return
	}
	for tx := range ls.snap.tx {
		if len(ls.pending[tx]) > 0 {
			w.flushTx(ls.snap, tx)
		}
	}
}

// Release flushes pending buffers and parks the readers, so that the control plane
// does not wait for this component while it is not polling.
func (w *Worker) Release() {
	w.Flush()
	w.loop.snap, w.loop.abls = nil, nil
	w.reader.Park()
	w.ablReader.Park()
}
