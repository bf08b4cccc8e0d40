// Package dataplane assembles ports, the patch forwarder, and classifier components,
// and implements control operations on them.
package dataplane

import (
	"errors"
	"fmt"
	"sync"

	"github.com/usnistgov/patchpanel/app/patchfwd"
	"github.com/usnistgov/patchpanel/container/patch"
	"github.com/usnistgov/patchpanel/container/vlantag"
	"github.com/usnistgov/patchpanel/core/logging"
	"github.com/usnistgov/patchpanel/eal/ealthread"
	"github.com/usnistgov/patchpanel/eal/ethdev"
	"github.com/usnistgov/patchpanel/eal/ethdev/memifdev"
	"github.com/usnistgov/patchpanel/eal/ethdev/ringdev"
	"github.com/usnistgov/patchpanel/eal/pktmbuf"
	"github.com/usnistgov/patchpanel/iface"
	"github.com/usnistgov/patchpanel/iface/portstats"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var logger = logging.New("dataplane")

// Errors.
var (
	ErrNoPhy            = errors.New("physical interface not configured")
	ErrComponentExists  = errors.New("component exists")
	ErrNoComponent      = errors.New("component not found")
	ErrComponentType    = errors.New("unknown component type")
	ErrLCoreUsed        = errors.New("lcore is used by another component")
	ErrNoClassifierPort = errors.New("port is not a tx port of any classifier component")
)

// DataPlane owns every port, the patch forwarder, and classifier components.
// Control operations are serialized; forwarding continues while they execute.
type DataPlane struct {
	cfg   Config
	mutex sync.Mutex

	clientID int
	pool     *pktmbuf.Pool
	stats    *portstats.Region
	devs     *ethdev.Table
	reg      *iface.Registry
	rings    *ringdev.Set
	memif    *memifdev.Socket

	graph      *patch.Graph
	abls       *vlantag.Table
	fwd        *patchfwd.Forwarder
	fwdLCore   ealthread.LCore
	components map[string]*component
}

// New creates a DataPlane, registers configured physical interfaces, and launches the forwarder in idle state.
func New(cfg Config) (dp *DataPlane, e error) {
	cfg.applyDefaults()
	dp = &DataPlane{
		cfg:        cfg,
		clientID:   cfg.ClientID,
		devs:       ethdev.NewTable(),
		reg:        iface.NewRegistry(),
		rings:      ringdev.NewSet(cfg.RingCapacity),
		components: map[string]*component{},
	}

	if dp.pool, e = pktmbuf.NewPool("patchpanel", cfg.Pool); e != nil {
		return nil, fmt.Errorf("pktmbuf.NewPool: %w", e)
	}
	if dp.stats, e = portstats.Open(cfg.Stats); e != nil {
		return nil, fmt.Errorf("portstats.Open: %w", e)
	}

	dp.graph = patch.New(dp.reg, dp.devs, cfg.Reload)
	dp.abls = vlantag.NewTable(cfg.Reload)

	for i := range cfg.Phy {
		p := iface.PortID{Type: iface.TypePhy, ID: i}
		if e := dp.addPort(p); e != nil {
			dp.Close()
			return nil, fmt.Errorf("%s: %w", p, e)
		}
	}

	dp.fwd = patchfwd.New(dp.graph, cfg.Forwarder)
	if lc, e := cfg.Allocator.Alloc(RoleForwarder); e == nil {
		dp.fwdLCore = lc
		dp.fwd.SetLCore(lc)
	} else {
		logger.Warn("forwarder runs without lcore affinity", zap.Error(e))
	}
	dp.fwd.Launch()

	logger.Info("dataplane ready", zap.Int("client-id", dp.clientID), zap.Int("phy", len(cfg.Phy)),
		zap.String("stats", dp.stats.Path()))
	return dp, nil
}

// Registry returns the port registry.
func (dp *DataPlane) Registry() *iface.Registry {
	return dp.reg
}

// Pool returns the packet buffer pool.
func (dp *DataPlane) Pool() *pktmbuf.Pool {
	return dp.pool
}

// Rings returns the ring set backing ring ports.
func (dp *DataPlane) Rings() *ringdev.Set {
	return dp.rings
}

// Abilities returns the port ability table.
func (dp *DataPlane) Abilities() *vlantag.Table {
	return dp.abls
}

// Forwarder returns the patch forwarder.
func (dp *DataPlane) Forwarder() *patchfwd.Forwarder {
	return dp.fwd
}

// ClientID returns the client ID.
func (dp *DataPlane) ClientID() int {
	dp.mutex.Lock()
	defer dp.mutex.Unlock()
	return dp.clientID
}

// SetClientID changes the client ID.
func (dp *DataPlane) SetClientID(id int) error {
	if id < 0 {
		return fmt.Errorf("invalid client ID %d", id)
	}
	dp.mutex.Lock()
	defer dp.mutex.Unlock()
	dp.clientID = id
	logger.Info("client ID changed", zap.Int("client-id", id))
	return nil
}

// Forward starts forwarding along patch links.
func (dp *DataPlane) Forward() {
	dp.fwd.Forward()
}

// Stop idles the forwarder.
func (dp *DataPlane) Stop() {
	dp.fwd.Idle()
}

// Patch adds or replaces the link whose input is in.
func (dp *DataPlane) Patch(in, out iface.PortQueue) error {
	dp.mutex.Lock()
	defer dp.mutex.Unlock()

	inEp, e := dp.endpoint(in)
	if e != nil {
		return e
	}
	outEp, e := dp.endpoint(out)
	if e != nil {
		return e
	}
	return dp.graph.AddLink(inEp, outEp)
}

// PatchReset makes every link inert.
func (dp *DataPlane) PatchReset() error {
	dp.mutex.Lock()
	defer dp.mutex.Unlock()
	return dp.graph.ResetAll()
}

func (dp *DataPlane) endpoint(pq iface.PortQueue) (ep patch.Endpoint, e error) {
	handle, e := dp.reg.Resolve(pq.PortID)
	if e != nil {
		return patch.None, fmt.Errorf("%w: %s", e, pq.PortID)
	}
	return patch.Endpoint{Handle: handle, Queue: pq.Queue}, nil
}

// Close stops all threads and closes all ports.
func (dp *DataPlane) Close() (e error) {
	dp.mutex.Lock()
	defer dp.mutex.Unlock()

	for name := range dp.components {
		e = multierr.Append(e, dp.stopComponent(name))
	}
	if dp.fwd != nil {
		e = multierr.Append(e, dp.fwd.Close())
		if dp.fwdLCore.Valid() {
			dp.cfg.Allocator.Free(dp.fwdLCore)
		}
	}
	e = multierr.Append(e, dp.devs.Close())
	if dp.memif != nil {
		e = multierr.Append(e, dp.memif.Close())
	}
	if dp.stats != nil {
		e = multierr.Append(e, dp.stats.Close())
	}
	logger.Info("dataplane closed", zap.Error(e))
	return e
}
