package vlantag

import (
	"errors"
	"maps"
	"sync"

	"github.com/usnistgov/patchpanel/container/dblbuf"
	"github.com/usnistgov/patchpanel/core/logging"
	"github.com/usnistgov/patchpanel/eal/ethdev"
	"go.uber.org/zap"
)

var logger = logging.New("vlantag")

// Dir indicates port direction.
type Dir uint8

// Dir values.
const (
	DirRx Dir = iota
	DirTx
)

// ErrDir indicates an invalid direction string.
var ErrDir = errors.New("direction must be rx or tx")

// ParseDir parses "rx" or "tx".
func ParseDir(s string) (Dir, error) {
	switch s {
	case "rx":
		return DirRx, nil
	case "tx":
		return DirTx, nil
	}
	return DirRx, ErrDir
}

func (dir Dir) String() string {
	if dir == DirRx {
		return "rx"
	}
	return "tx"
}

// MarshalText implements encoding.TextMarshaler.
func (dir Dir) MarshalText() ([]byte, error) {
	return []byte(dir.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (dir *Dir) UnmarshalText(text []byte) (e error) {
	*dir, e = ParseDir(string(text))
	return e
}

// Snapshot contains abilities of every port, indexed by device handle and direction.
type Snapshot struct {
	ports [ethdev.MaxID + 1][2]Abilities
}

// Get returns abilities of a port direction.
func (s *Snapshot) Get(handle ethdev.ID, dir Dir) Abilities {
	if !handle.Valid() {
		return nil
	}
	return s.ports[handle][dir]
}

type key struct {
	Handle ethdev.ID
	Dir    Dir
}

// ErrHandle indicates an invalid device handle.
var ErrHandle = errors.New("invalid device handle")

// Table is the authoritative set of port abilities.
// Every mutation publishes a Snapshot through a dblbuf.Arena.
type Table struct {
	mutex sync.Mutex
	m     map[key]Abilities
	arena *dblbuf.Arena[Snapshot]
}

// NewTable creates an empty Table.
func NewTable(cfg dblbuf.Config) *Table {
	return &Table{
		m:     map[key]Abilities{},
		arena: dblbuf.New[Snapshot]("vlantag", cfg),
	}
}

// NewReader registers a reader of published snapshots.
func (t *Table) NewReader() *dblbuf.Reader[Snapshot] {
	return t.arena.NewReader()
}

// Get returns abilities of a port direction.
func (t *Table) Get(handle ethdev.ID, dir Dir) Abilities {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.m[key{handle, dir}]
}

// Set replaces abilities of a port direction.
// Empty abls clears them.
func (t *Table) Set(handle ethdev.ID, dir Dir, abls Abilities) error {
	if !handle.Valid() {
		return ErrHandle
	}
	if e := abls.Validate(); e != nil {
		return e
	}
	k := key{handle, dir}
	return t.mutate(func() {
		if len(abls) == 0 {
			delete(t.m, k)
		} else {
			t.m[k] = append(Abilities{}, abls...)
		}
	}, handle.ZapField("port"), zap.Stringer("dir", dir), zap.Stringers("abilities", abls))
}

// ClearPort removes abilities of both directions of a port.
// Nothing is published if the port has no abilities.
func (t *Table) ClearPort(handle ethdev.ID) error {
	t.mutex.Lock()
	_, hasRx := t.m[key{handle, DirRx}]
	_, hasTx := t.m[key{handle, DirTx}]
	t.mutex.Unlock()
	if !hasRx && !hasTx {
		return nil
	}
	return t.mutate(func() {
		delete(t.m, key{handle, DirRx})
		delete(t.m, key{handle, DirTx})
	}, handle.ZapField("clear-port"))
}

// Checkpoint saves current abilities.
// The returned function republishes the saved abilities, undoing later mutations.
func (t *Table) Checkpoint() (restore func() error) {
	t.mutex.Lock()
	saved := maps.Clone(t.m)
	t.mutex.Unlock()
	return func() error {
		return t.mutate(func() {
			t.m = maps.Clone(saved)
		}, zap.Bool("restore", true))
	}
}

// mutate applies a change and publishes it.
// If publishing fails, the change is rolled back.
func (t *Table) mutate(change func(), fields ...zap.Field) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	saved := maps.Clone(t.m)
	change()
	if e := t.publish(); e != nil {
		t.m = saved
		logger.Warn("port abilities update rejected", append(fields, zap.Error(e))...)
		return e
	}
	logger.Info("port abilities updated", fields...)
	return nil
}

func (t *Table) publish() error {
	return t.arena.Update(func(slot *Snapshot) error {
		clear(slot.ports[:])
		for k, abls := range t.m {
			slot.ports[k.Handle][k.Dir] = abls
		}
		return nil
	})
}
