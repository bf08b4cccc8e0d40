// Package dblbuf implements a two-slot arena for publishing configuration to polling threads.
//
// A single control goroutine rebuilds the slot that no reader references, then publishes it
// with one atomic store. Readers observe the published slot once per iteration and never block.
package dblbuf

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/usnistgov/patchpanel/core/logging"
	"github.com/usnistgov/patchpanel/core/nnduration"
	"go.uber.org/zap"
)

var logger = logging.New("dblbuf")

// ErrDrainTimeout indicates a reader did not move past a superseded slot within the retry bound.
var ErrDrainTimeout = errors.New("reader did not observe new generation in time")

// Defaults.
const (
	DefaultRetryCount    = 1000
	DefaultRetryInterval = 10 * time.Microsecond
)

// Config contains Arena settings.
type Config struct {
	// RetryCount is the maximum number of times to recheck readers while waiting for them to
	// observe a generation.
	RetryCount int `json:"retryCount,omitempty"`

	// RetryInterval is the sleep duration between rechecks.
	RetryInterval nnduration.Microseconds `json:"retryInterval,omitempty"`
}

func (cfg *Config) applyDefaults() {
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = DefaultRetryCount
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = nnduration.Microseconds(DefaultRetryInterval / time.Microsecond)
	}
}

const parked = math.MaxUint64

func makeState(gen uint64, idx int) uint64 {
	return gen<<1 | uint64(idx)
}

func splitState(st uint64) (gen uint64, idx int) {
	return st >> 1, int(st & 1)
}

// Arena holds two slots of T.
// The reference slot is read by readers; the other slot is rebuilt by Update.
type Arena[T any] struct {
	name  string
	cfg   Config
	state atomic.Uint64
	slots [2]T

	writer    sync.Mutex
	readersMu sync.Mutex
	readers   map[*Reader[T]]struct{}
}

// New creates an Arena.
// Both slots start as the zero value of T.
func New[T any](name string, cfg Config) *Arena[T] {
	cfg.applyDefaults()
	return &Arena[T]{
		name:    name,
		cfg:     cfg,
		readers: map[*Reader[T]]struct{}{},
	}
}

// Name returns the arena name.
func (a *Arena[T]) Name() string {
	return a.name
}

// Generation returns the published generation number.
func (a *Arena[T]) Generation() uint64 {
	gen, _ := splitState(a.state.Load())
	return gen
}

// NewReader registers a reader.
// A new reader starts in parked state.
func (a *Arena[T]) NewReader() *Reader[T] {
	r := &Reader[T]{arena: a}
	r.seen.Store(parked)

	a.readersMu.Lock()
	defer a.readersMu.Unlock()
	a.readers[r] = struct{}{}
	return r
}

func (a *Arena[T]) caughtUp(gen uint64) bool {
	a.readersMu.Lock()
	defer a.readersMu.Unlock()
	for r := range a.readers {
		if seen := r.seen.Load(); seen != parked && seen < gen {
			return false
		}
	}
	return true
}

func (a *Arena[T]) waitReaders(gen uint64) bool {
	interval := a.cfg.RetryInterval.Duration()
	for i := 0; !a.caughtUp(gen); i++ {
		if i >= a.cfg.RetryCount {
			return false
		}
		time.Sleep(interval)
	}
	return true
}

// Update rebuilds the unreferenced slot and publishes it.
//
// build receives the unreferenced slot, which still holds the contents of an older generation.
// If build fails, nothing is published and its error is returned.
// After publishing, Update waits until every active reader has observed the new generation.
// If a reader does not catch up within the retry bound, the previous slot is republished
// and ErrDrainTimeout is returned.
func (a *Arena[T]) Update(build func(slot *T) error) error {
	a.writer.Lock()
	defer a.writer.Unlock()

	gen, ref := splitState(a.state.Load())
	// no reader may still hold the slot about to be rebuilt
	if !a.waitReaders(gen) {
		logger.Error("readers still hold unreferenced slot", zap.String("arena", a.name), zap.Uint64("gen", gen))
		return ErrDrainTimeout
	}

	upd := 1 - ref
	if e := build(&a.slots[upd]); e != nil {
		return e
	}

	a.state.Store(makeState(gen+1, upd))
	if a.waitReaders(gen + 1) {
		return nil
	}

	a.state.Store(makeState(gen+2, ref))
	logger.Error("reader did not observe new generation, reverted",
		zap.String("arena", a.name),
		zap.Uint64("gen", gen+1),
		zap.Int("retry-count", a.cfg.RetryCount),
		zap.Duration("retry-interval", a.cfg.RetryInterval.Duration()),
	)
	return ErrDrainTimeout
}

// Reader observes the reference slot from a polling thread.
// Each Reader must be used by a single goroutine.
type Reader[T any] struct {
	arena *Arena[T]
	seen  atomic.Uint64
}

// Acquire returns the reference slot and records its generation as observed.
// The returned pointer stays valid until the next Acquire, Park, or Close on this Reader.
func (r *Reader[T]) Acquire() *T {
	a := r.arena
	for {
		st := a.state.Load()
		gen, idx := splitState(st)
		r.seen.Store(gen)
		if a.state.Load() == st {
			return &a.slots[idx]
		}
	}
}

// Stale reports whether a generation other than the last acquired one is published.
// A polling thread can use this to finish work that depends on the current slot before calling Acquire.
func (r *Reader[T]) Stale() bool {
	gen, _ := splitState(r.arena.state.Load())
	return r.seen.Load() != gen
}

// Park declares that the reader holds no slot.
// Update does not wait for a parked reader.
func (r *Reader[T]) Park() {
	r.seen.Store(parked)
}

// Close unregisters the reader.
func (r *Reader[T]) Close() error {
	r.Park()
	a := r.arena
	a.readersMu.Lock()
	defer a.readersMu.Unlock()
	delete(a.readers, r)
	return nil
}
