package ealthread

import (
	"errors"
	"slices"
	"sync"

	"github.com/usnistgov/patchpanel/core/hwinfo"
	"go.uber.org/zap"
)

// Allocator errors.
var (
	ErrNoLCore   = errors.New("no lcore available")
	ErrLCoreBusy = errors.New("lcore is allocated to another role")
)

// AllocConfig contains per-role lcore allocation config.
type AllocConfig map[string]AllocRoleConfig

// AllocRoleConfig contains lcore allocation config for a role.
type AllocRoleConfig struct {
	// LCores is a list of lcores reserved for this role.
	LCores []int `json:"lcores,omitempty"`

	// EachNuma is the maximum number of lcores on each NUMA socket.
	// Zero means unlimited.
	EachNuma int `json:"eachNuma,omitempty"`
}

// Allocator allocates lcores to roles.
type Allocator struct {
	Config AllocConfig

	mutex     sync.Mutex
	provider  hwinfo.Provider
	allocated map[int]string
}

// NewAllocator creates an Allocator.
func NewAllocator(provider hwinfo.Provider) *Allocator {
	return &Allocator{
		Config:    AllocConfig{},
		provider:  provider,
		allocated: map[int]string{},
	}
}

func (la *Allocator) reservedByOther(role string, id int) bool {
	for otherRole, rc := range la.Config {
		if otherRole != role && slices.Contains(rc.LCores, id) {
			return true
		}
	}
	return false
}

func (la *Allocator) countOnNuma(role string, socket int) (n int) {
	for _, core := range la.provider.Cores() {
		if core.NumaSocket == socket && la.allocated[core.ID] == role {
			n++
		}
	}
	return n
}

func (la *Allocator) pick(role string) LCore {
	cores := la.provider.Cores()
	rc := la.Config[role]

	// 1. Allocate from role-specific list.
	for _, core := range cores {
		if la.allocated[core.ID] == "" && slices.Contains(rc.LCores, core.ID) {
			return NewLCore(core.ID)
		}
	}

	// 2. Allocate unreserved lcore on the least occupied NUMA socket, within per-socket limit.
	var candidate LCore
	candidateRem := 0
	for socket, numaCores := range cores.ByNumaSocket() {
		if rc.EachNuma > 0 && la.countOnNuma(role, socket) >= rc.EachNuma {
			continue
		}
		var avails []int
		for _, core := range numaCores {
			if la.allocated[core.ID] == "" && !la.reservedByOther(role, core.ID) {
				avails = append(avails, core.ID)
			}
		}
		if len(avails) > candidateRem || (len(avails) == candidateRem && len(avails) > 0 && avails[0] < candidate.ID()) {
			candidate, candidateRem = NewLCore(avails[0]), len(avails)
		}
	}
	return candidate
}

// Alloc allocates an lcore for a role.
func (la *Allocator) Alloc(role string) (LCore, error) {
	la.mutex.Lock()
	defer la.mutex.Unlock()

	lc := la.pick(role)
	if !lc.Valid() {
		return lc, ErrNoLCore
	}
	la.allocated[lc.ID()] = role
	logger.Info("lcore allocated", zap.String("role", role), lc.ZapField("lc"))
	return lc, nil
}

// Claim allocates a specific lcore for a role.
// Claiming an lcore already allocated to the same role succeeds.
func (la *Allocator) Claim(role string, lc LCore) error {
	la.mutex.Lock()
	defer la.mutex.Unlock()

	if !lc.Valid() || !slices.Contains(la.provider.Cores().IDs(), lc.ID()) {
		return ErrNoLCore
	}
	switch la.allocated[lc.ID()] {
	case "":
	case role:
		return nil
	default:
		return ErrLCoreBusy
	}
	la.allocated[lc.ID()] = role
	logger.Info("lcore claimed", zap.String("role", role), lc.ZapField("lc"))
	return nil
}

// Free deallocates an lcore.
func (la *Allocator) Free(lc LCore) {
	la.mutex.Lock()
	defer la.mutex.Unlock()

	role := la.allocated[lc.ID()]
	if role == "" {
		logger.Panic("lcore double free", lc.ZapField("lc"))
	}
	delete(la.allocated, lc.ID())
	logger.Info("lcore freed", lc.ZapField("lc"), zap.String("role", role))
}

// List returns lcores allocated to a role, in ascending order.
func (la *Allocator) List(role string) (list []LCore) {
	la.mutex.Lock()
	defer la.mutex.Unlock()

	for _, id := range la.provider.Cores().IDs() {
		if la.allocated[id] == role {
			list = append(list, NewLCore(id))
		}
	}
	return list
}

// Clear deletes all allocations.
func (la *Allocator) Clear() {
	la.mutex.Lock()
	defer la.mutex.Unlock()
	clear(la.allocated)
}

// DefaultAllocator is the default instance of Allocator.
var DefaultAllocator = NewAllocator(hwinfo.Default)
