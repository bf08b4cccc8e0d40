package ealthread

import (
	"sync/atomic"
)

// LoadStat contains statistics of a polling thread.
type LoadStat struct {
	// EmptyPolls is the number of polls that processed zero item.
	EmptyPolls uint64 `json:"emptyPolls"`

	// ValidPolls is the number of polls that processed non-zero items.
	ValidPolls uint64 `json:"validPolls"`

	// Items is the number of processed items.
	Items uint64 `json:"items"`
}

// Sub computes the difference.
func (s LoadStat) Sub(prev LoadStat) (diff LoadStat) {
	diff.EmptyPolls = s.EmptyPolls - prev.EmptyPolls
	diff.ValidPolls = s.ValidPolls - prev.ValidPolls
	diff.Items = s.Items - prev.Items
	return diff
}

// LoadCounter records LoadStat from within a polling thread.
// Reads from other goroutines are safe.
type LoadCounter struct {
	emptyPolls atomic.Uint64
	validPolls atomic.Uint64
	items      atomic.Uint64
}

// Poll records one poll that processed n items.
func (c *LoadCounter) Poll(n int) {
	if n == 0 {
		c.emptyPolls.Add(1)
		return
	}
	c.validPolls.Add(1)
	c.items.Add(uint64(n))
}

// Read returns current statistics.
func (c *LoadCounter) Read() LoadStat {
	return LoadStat{
		EmptyPolls: c.emptyPolls.Load(),
		ValidPolls: c.validPolls.Load(),
		Items:      c.items.Load(),
	}
}

// ThreadWithLoadStat is an object that tracks thread load statistics.
type ThreadWithLoadStat interface {
	Thread
	ThreadLoadStat() LoadStat
}
