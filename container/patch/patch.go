// Package patch maintains the forwarding graph between port queues.
package patch

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/usnistgov/patchpanel/container/dblbuf"
	"github.com/usnistgov/patchpanel/core/logging"
	"github.com/usnistgov/patchpanel/eal/ethdev"
	"github.com/usnistgov/patchpanel/iface"
	"github.com/usnistgov/patchpanel/iface/portstats"
	"go.uber.org/zap"
)

var logger = logging.New("patch")

// ErrInvalidPort indicates a link endpoint is not a registered port or its queue is out of range.
var ErrInvalidPort = errors.New("invalid port")

// Endpoint identifies a queue of a device.
type Endpoint struct {
	Handle ethdev.ID
	Queue  int
}

// None is the Endpoint of an inert link output.
var None = Endpoint{Handle: ethdev.InvalidID}

// Valid determines whether ep refers to a device.
func (ep Endpoint) Valid() bool {
	return ep.Handle.Valid()
}

func (ep Endpoint) compare(other Endpoint) int {
	return cmp.Or(cmp.Compare(ep.Handle, other.Handle), cmp.Compare(ep.Queue, other.Queue))
}

// Link is a forwarding rule from an input queue to an output queue.
// Its output is None when the link is inert.
type Link struct {
	In  Endpoint
	Out Endpoint

	InDev    ethdev.Driver
	OutDev   ethdev.Driver
	InStats  *portstats.Record
	OutStats *portstats.Record
}

// Devices provides drivers by handle.
type Devices interface {
	Get(id ethdev.ID) ethdev.Driver
	IsValid(id ethdev.ID) bool
}

// Graph is the authoritative set of links, keyed by input endpoint.
// Every mutation publishes an immutable link list through a dblbuf.Arena.
type Graph struct {
	mutex sync.Mutex
	reg   *iface.Registry
	devs  Devices
	links map[Endpoint]Endpoint
	arena *dblbuf.Arena[[]Link]
}

// New creates an empty Graph.
func New(reg *iface.Registry, devs Devices, cfg dblbuf.Config) *Graph {
	return &Graph{
		reg:   reg,
		devs:  devs,
		links: map[Endpoint]Endpoint{},
		arena: dblbuf.New[[]Link]("patch", cfg),
	}
}

// NewReader registers a reader of the published link list.
func (g *Graph) NewReader() *dblbuf.Reader[[]Link] {
	return g.arena.NewReader()
}

// CheckEndpoint determines whether ep is a usable rx (isTx=false) or tx (isTx=true) queue.
// The port must be registered, its device must be valid, and the queue must be within bounds.
func CheckEndpoint(reg *iface.Registry, devs Devices, ep Endpoint, isTx bool) (ent iface.Entry, e error) {
	ent, ok := reg.ByHandle(ep.Handle)
	nQueues, dir := ent.RxQueues, "input"
	if isTx {
		nQueues, dir = ent.TxQueues, "output"
	}
	switch {
	case !ok, ep.Queue < 0, ep.Queue >= nQueues:
		return ent, fmt.Errorf("%w: %s %s", ErrInvalidPort, dir, formatEndpoint(ent, ep))
	case !devs.IsValid(ep.Handle):
		return ent, fmt.Errorf("%w: %s %s device is not usable", ErrInvalidPort, dir, formatEndpoint(ent, ep))
	}
	return ent, nil
}

// AddLink adds or replaces the link whose input is in.
func (g *Graph) AddLink(in, out Endpoint) error {
	inEnt, e := CheckEndpoint(g.reg, g.devs, in, false)
	if e != nil {
		return e
	}
	outEnt, e := CheckEndpoint(g.reg, g.devs, out, true)
	if e != nil {
		return e
	}

	return g.mutate(func() {
		g.links[in] = out
	}, zap.Stringer("in", iface.PortQueue{PortID: inEnt.PortID, Queue: in.Queue}),
		zap.Stringer("out", iface.PortQueue{PortID: outEnt.PortID, Queue: out.Queue}))
}

// Replace replaces every link.
// Each input must be usable; each output must be usable or None.
func (g *Graph) Replace(links map[Endpoint]Endpoint) error {
	for in, out := range links {
		if _, e := CheckEndpoint(g.reg, g.devs, in, false); e != nil {
			return e
		}
		if out == None {
			continue
		}
		if _, e := CheckEndpoint(g.reg, g.devs, out, true); e != nil {
			return e
		}
	}
	return g.mutate(func() {
		g.links = cloneLinks(links)
	}, zap.Int("replace", len(links)))
}

// Checkpoint saves current links.
// The returned function republishes the saved links, undoing later mutations.
func (g *Graph) Checkpoint() (restore func() error) {
	g.mutex.Lock()
	saved := cloneLinks(g.links)
	g.mutex.Unlock()
	return func() error {
		return g.mutate(func() {
			g.links = cloneLinks(saved)
		}, zap.Bool("restore", true))
	}
}

// RemoveByPort removes links whose input is the port, and makes links whose output is the port inert.
func (g *Graph) RemoveByPort(handle ethdev.ID) error {
	return g.mutate(func() {
		for in, out := range g.links {
			switch {
			case in.Handle == handle:
				delete(g.links, in)
			case out.Handle == handle:
				g.links[in] = None
			}
		}
	}, handle.ZapField("remove-port"))
}

// RemoveAll removes every link.
func (g *Graph) RemoveAll() error {
	return g.mutate(func() {
		clear(g.links)
	}, zap.Bool("remove-all", true))
}

// ResetAll makes every link inert, preserving inputs.
func (g *Graph) ResetAll() error {
	return g.mutate(func() {
		for in := range g.links {
			g.links[in] = None
		}
	}, zap.Bool("reset-all", true))
}

// mutate applies a change and publishes it.
// If publishing fails, the change is rolled back.
func (g *Graph) mutate(change func(), fields ...zap.Field) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	saved := cloneLinks(g.links)
	change()

	if e := g.publish(); e != nil {
		g.links = saved
		logger.Warn("patch update rejected", append(fields, zap.Error(e))...)
		return e
	}
	logger.Info("patch updated", append(fields, zap.Int("links", len(g.links)))...)
	return nil
}

func (g *Graph) publish() error {
	list := g.list()
	return g.arena.Update(func(slot *[]Link) error {
		links := (*slot)[:0]
		for _, l := range list {
			l.InDev = g.devs.Get(l.In.Handle)
			if inEnt, ok := g.reg.ByHandle(l.In.Handle); ok {
				l.InStats = inEnt.Stats
			}
			if l.Out.Valid() {
				l.OutDev = g.devs.Get(l.Out.Handle)
				if outEnt, ok := g.reg.ByHandle(l.Out.Handle); ok {
					l.OutStats = outEnt.Stats
				}
			}
			links = append(links, l)
		}
		clear(links[len(links):cap(links)])
		*slot = links
		return nil
	})
}

func (g *Graph) list() (list []Link) {
	for in, out := range g.links {
		list = append(list, Link{In: in, Out: out})
	}
	slices.SortFunc(list, func(a, b Link) int { return a.In.compare(b.In) })
	return list
}

// List returns the authoritative links, ordered by input endpoint.
// Driver and statistics fields are not populated.
func (g *Graph) List() []Link {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.list()
}

// Output returns the output of the link whose input is in.
func (g *Graph) Output(in Endpoint) (out Endpoint, ok bool) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	out, ok = g.links[in]
	return
}

func cloneLinks(m map[Endpoint]Endpoint) map[Endpoint]Endpoint {
	c := make(map[Endpoint]Endpoint, len(m))
	maps.Copy(c, m)
	return c
}

func formatEndpoint(ent iface.Entry, ep Endpoint) string {
	if !ent.Type.Valid() {
		return fmt.Sprintf("handle %s queue %d", ep.Handle, ep.Queue)
	}
	return iface.PortQueue{PortID: ent.PortID, Queue: ep.Queue}.String()
}
