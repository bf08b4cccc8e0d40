// Package hwinfo gathers hardware information.
package hwinfo

import (
	"sort"

	"github.com/usnistgov/patchpanel/core/logging"
)

var logger = logging.New("hwinfo")

// CoreInfo describes a logical CPU core.
type CoreInfo struct {
	// ID is the logical core number, as used in CPU affinity masks.
	ID int `json:"id"`

	NumaSocket int `json:"numaSocket"`

	// PhysicalKey identifies the physical core; hyper-threads of the same physical core share a key.
	PhysicalKey int `json:"physicalKey"`
}

// Cores contains information about CPU cores.
type Cores []CoreInfo

// ByNumaSocket classifies cores as map[NumaSocket]Cores.
func (cores Cores) ByNumaSocket() (m map[int]Cores) {
	m = map[int]Cores{}
	for _, core := range cores {
		m[core.NumaSocket] = append(m[core.NumaSocket], core)
	}
	return m
}

// IDs returns sorted logical core numbers.
func (cores Cores) IDs() (list []int) {
	for _, core := range cores {
		list = append(list, core.ID)
	}
	sort.Ints(list)
	return list
}

// ListPrimary returns a list of logical cores that are the first logical core in each physical core.
func (cores Cores) ListPrimary() []int {
	return cores.listHyperThread(false)
}

// ListSecondary returns a list of logical cores that are not in ListPrimary().
func (cores Cores) ListSecondary() []int {
	return cores.listHyperThread(true)
}

func (cores Cores) listHyperThread(secondary bool) (list []int) {
	ht := map[[2]int]bool{}
	for _, core := range cores {
		key := [2]int{core.NumaSocket, core.PhysicalKey}
		if ht[key] == secondary {
			list = append(list, core.ID)
		}
		ht[key] = true
	}
	return list
}

// Provider provides information about hardware.
type Provider interface {
	// Cores provides information about CPU cores.
	Cores() Cores
}

// Default is the default Provider implementation.
var Default Provider = &procinfoProvider{}

// Static is a Provider with a fixed core list.
type Static Cores

// Cores implements Provider.
func (s Static) Cores() Cores {
	return Cores(s)
}
