// Package fwdworker implements the forward and merge components.
// Each component relays packets from its rx ports to its tx ports through a private patch graph,
// polled by its own forwarder thread.
package fwdworker

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/usnistgov/patchpanel/app/patchfwd"
	"github.com/usnistgov/patchpanel/container/patch"
	"github.com/usnistgov/patchpanel/container/vlantag"
	"github.com/usnistgov/patchpanel/core/logging"
	"github.com/usnistgov/patchpanel/eal/ethdev"
	"github.com/usnistgov/patchpanel/iface"
	"go.uber.org/zap"
)

var logger = logging.New("fwdworker")

// MaxPorts is the maximum number of rx ports, and of tx ports, of a component.
const MaxPorts = 64

// Errors.
var (
	ErrTooManyRx  = errors.New("too many rx ports")
	ErrTooManyTx  = errors.New("too many tx ports")
	ErrPortExists = errors.New("port already attached to component")
	ErrNoPort     = errors.New("port not attached to component")
)

// Mode selects how rx ports are paired with tx ports.
type Mode int

// Modes.
const (
	// ModeForward relays the i-th rx port to the i-th tx port.
	// An rx port without a counterpart is not polled.
	ModeForward Mode = iota

	// ModeMerge relays every rx port to the only tx port.
	ModeMerge
)

func (m Mode) String() string {
	switch m {
	case ModeForward:
		return "forward"
	case ModeMerge:
		return "merge"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

func (m Mode) maxTx() int {
	if m == ModeMerge {
		return 1
	}
	return MaxPorts
}

// Worker is a forward or merge component.
type Worker struct {
	*patchfwd.Forwarder
	name  string
	mode  Mode
	reg   *iface.Registry
	devs  patch.Devices
	graph *patch.Graph

	mutex sync.Mutex
	rx    []patch.Endpoint
	tx    []patch.Endpoint
}

// New creates a Worker.
// The Worker has no ports and its thread is not launched.
// If abls is not nil, port abilities are applied on every relayed burst.
func New(name string, mode Mode, reg *iface.Registry, devs patch.Devices, abls *vlantag.Table, cfg Config) *Worker {
	w := &Worker{
		name:  name,
		mode:  mode,
		reg:   reg,
		devs:  devs,
		graph: patch.New(reg, devs, cfg.Reload),
	}
	w.Forwarder = patchfwd.New(w.graph, cfg.Forwarder)
	if abls != nil {
		w.UseAbilities(abls)
	}
	return w
}

// Name returns component name.
func (w *Worker) Name() string {
	return w.name
}

// Mode returns component mode.
func (w *Worker) Mode() Mode {
	return w.mode
}

// Launch starts the thread in forwarding state.
func (w *Worker) Launch() {
	w.Forward()
	w.Forwarder.Launch()
}

// Ports returns rx and tx ports in attach order.
func (w *Worker) Ports() (rx, tx []patch.Endpoint) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return slices.Clone(w.rx), slices.Clone(w.tx)
}

// Links returns the links currently relayed.
func (w *Worker) Links() []patch.Link {
	return w.graph.List()
}

// HasPort determines whether the component uses a port as rx or tx.
func (w *Worker) HasPort(handle ethdev.ID) bool {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return indexOf(w.rx, handle) >= 0 || indexOf(w.tx, handle) >= 0
}

func indexOf(list []patch.Endpoint, handle ethdev.ID) int {
	return slices.IndexFunc(list, func(ep patch.Endpoint) bool { return ep.Handle == handle })
}

// AttachRx appends an rx port.
func (w *Worker) AttachRx(ep patch.Endpoint) error {
	if _, e := patch.CheckEndpoint(w.reg, w.devs, ep, false); e != nil {
		return e
	}
	return w.mutate(func() error {
		switch {
		case indexOf(w.rx, ep.Handle) >= 0:
			return ErrPortExists
		case len(w.rx) >= MaxPorts:
			return ErrTooManyRx
		}
		w.rx = append(w.rx, ep)
		return nil
	}, zap.Stringer("attach-rx", ep.Handle))
}

// AttachTx appends a tx port.
func (w *Worker) AttachTx(ep patch.Endpoint) error {
	if _, e := patch.CheckEndpoint(w.reg, w.devs, ep, true); e != nil {
		return e
	}
	return w.mutate(func() error {
		switch {
		case indexOf(w.tx, ep.Handle) >= 0:
			return ErrPortExists
		case len(w.tx) >= w.mode.maxTx():
			return ErrTooManyTx
		}
		w.tx = append(w.tx, ep)
		return nil
	}, zap.Stringer("attach-tx", ep.Handle))
}

// DetachRx removes an rx port.
func (w *Worker) DetachRx(handle ethdev.ID) error {
	return w.mutate(func() (e error) {
		w.rx, e = without(w.rx, handle)
		return e
	}, handle.ZapField("detach-rx"))
}

// DetachTx removes a tx port.
func (w *Worker) DetachTx(handle ethdev.ID) error {
	return w.mutate(func() (e error) {
		w.tx, e = without(w.tx, handle)
		return e
	}, handle.ZapField("detach-tx"))
}

func without(list []patch.Endpoint, handle ethdev.ID) ([]patch.Endpoint, error) {
	i := indexOf(list, handle)
	if i < 0 {
		return list, ErrNoPort
	}
	return slices.Delete(list, i, i+1), nil
}

// RemovePort detaches a port from both directions.
// It succeeds when the component does not use the port.
func (w *Worker) RemovePort(handle ethdev.ID) error {
	return w.mutate(func() error {
		match := func(ep patch.Endpoint) bool { return ep.Handle == handle }
		w.rx = slices.DeleteFunc(w.rx, match)
		w.tx = slices.DeleteFunc(w.tx, match)
		return nil
	}, handle.ZapField("remove-port"))
}

// Checkpoint saves rx and tx ports.
// The returned function republishes the saved state, undoing later mutations.
func (w *Worker) Checkpoint() (restore func() error) {
	rx, tx := w.Ports()
	return func() error {
		return w.mutate(func() error {
			w.rx, w.tx = slices.Clone(rx), slices.Clone(tx)
			return nil
		}, zap.Bool("restore", true))
	}
}

// links pairs rx ports with tx ports according to mode.
func (w *Worker) links() map[patch.Endpoint]patch.Endpoint {
	m := map[patch.Endpoint]patch.Endpoint{}
	for i, in := range w.rx {
		switch {
		case w.mode == ModeMerge && len(w.tx) > 0:
			m[in] = w.tx[0]
		case w.mode == ModeForward && i < len(w.tx):
			m[in] = w.tx[i]
		}
	}
	return m
}

// mutate applies a change and republishes links.
// If the change or publishing fails, prior state is restored.
func (w *Worker) mutate(change func() error, fields ...zap.Field) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	rx, tx := slices.Clone(w.rx), slices.Clone(w.tx)
	e := change()
	if e == nil {
		e = w.graph.Replace(w.links())
	}
	if e != nil {
		w.rx, w.tx = rx, tx
		logger.Warn("component update rejected", append(fields, zap.String("component", w.name), zap.Error(e))...)
		return e
	}
	logger.Info("component updated", append(fields, zap.String("component", w.name), zap.Stringer("mode", w.mode),
		zap.Int("rx", len(w.rx)), zap.Int("tx", len(w.tx)))...)
	return nil
}

// Close stops the thread and unregisters its readers.
func (w *Worker) Close() error {
	return w.Forwarder.Close()
}

func (w *Worker) String() string {
	return w.name
}
