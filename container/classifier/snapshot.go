// Package classifier selects an output per packet by destination MAC address and VLAN.
package classifier

import (
	"errors"
	"fmt"
	"slices"

	"github.com/jwangsadinata/go-multimap/slicemultimap"
	"github.com/usnistgov/patchpanel/core/macaddr"
)

// Build errors.
var (
	ErrDuplicate = errors.New("duplicate MAC address in VLAN")
	ErrTxIndex   = errors.New("tx index out of range")
)

const noIndex = -1

// Entry associates a MAC address within a VLAN with a tx index.
// MAC may be macaddr.WildcardKey to set the VLAN default.
type Entry struct {
	Vlan VlanID
	MAC  macaddr.Key
	Tx   int
}

type vlanTable struct {
	macs   *MacTable
	dflt   int
	fanout []int
}

// Snapshot is a complete classification configuration.
// It is rebuilt by Builder and treated as immutable by readers.
type Snapshot struct {
	vlans          [nVlans]*vlanTable
	used           []VlanID
	spare          []*vlanTable
	generalDefault int
	hasGeneral     bool
	nEntries       int
}

func (s *Snapshot) reset() {
	for _, vlan := range s.used {
		tbl := s.vlans[vlan]
		tbl.macs.Reset()
		tbl.fanout = tbl.fanout[:0]
		s.spare = append(s.spare, tbl)
		s.vlans[vlan] = nil
	}
	s.used = s.used[:0]
	s.generalDefault, s.hasGeneral = noIndex, false
	s.nEntries = 0
}

func (s *Snapshot) table(vlan VlanID, capacity int) *vlanTable {
	if tbl := s.vlans[vlan]; tbl != nil {
		return tbl
	}
	var tbl *vlanTable
	if n := len(s.spare); n > 0 && s.spare[n-1].macs.Capacity() == capacity {
		tbl, s.spare = s.spare[n-1], s.spare[:n-1]
	} else {
		tbl = &vlanTable{macs: NewMacTable(capacity)}
	}
	tbl.dflt = noIndex
	s.vlans[vlan] = tbl
	s.used = append(s.used, vlan)
	return tbl
}

// GeneralDefault returns the default tx index of the untagged VLAN.
func (s *Snapshot) GeneralDefault() (tx int, ok bool) {
	return s.generalDefault, s.hasGeneral
}

// Len returns the number of entries, including VLAN defaults.
func (s *Snapshot) Len() int {
	return s.nEntries
}

// Builder populates a Snapshot.
type Builder struct {
	// Capacity is the MacTable capacity of each VLAN.
	Capacity int

	// NTx is the number of tx endpoints.
	NTx int
}

// Build replaces the contents of s.
// If an error occurs, s is left partially built and must not be published.
func (b Builder) Build(s *Snapshot, entries []Entry) error {
	capacity := b.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s.reset()

	txByVlan := slicemultimap.New()
	for _, ent := range entries {
		if !ent.Vlan.Valid() {
			return fmt.Errorf("%w: %d", ErrVlanID, ent.Vlan)
		}
		if ent.Tx < 0 || ent.Tx >= b.NTx {
			return fmt.Errorf("%w: %d", ErrTxIndex, ent.Tx)
		}

		tbl := s.table(ent.Vlan, capacity)
		if ent.MAC == macaddr.WildcardKey {
			if tbl.dflt != noIndex {
				return fmt.Errorf("%w: default vlan %s", ErrDuplicate, ent.Vlan)
			}
			tbl.dflt = ent.Tx
		} else {
			if _, ok := tbl.macs.Lookup(ent.MAC); ok {
				return fmt.Errorf("%w: %s vlan %s", ErrDuplicate, ent.MAC, ent.Vlan)
			}
			if e := tbl.macs.Insert(ent.MAC, ent.Tx); e != nil {
				return fmt.Errorf("%w: vlan %s", e, ent.Vlan)
			}
		}
		txByVlan.Put(ent.Vlan, ent.Tx)
		s.nEntries++
	}

	if tbl := s.vlans[Untagged]; tbl != nil && tbl.dflt != noIndex {
		s.generalDefault, s.hasGeneral = tbl.dflt, true
	}

	for _, key := range txByVlan.KeySet() {
		vlan := key.(VlanID)
		tbl := s.vlans[vlan]
		values, _ := txByVlan.Get(vlan)
		for _, value := range values {
			if tx := value.(int); !slices.Contains(tbl.fanout, tx) {
				tbl.fanout = append(tbl.fanout, tx)
			}
		}
		if vlan != Untagged && s.hasGeneral && !slices.Contains(tbl.fanout, s.generalDefault) {
			tbl.fanout = append(tbl.fanout, s.generalDefault)
		}
	}
	return nil
}

// Verdict indicates the kind of classification result.
type Verdict uint8

// Verdict values.
const (
	Drop Verdict = iota
	Single
	FanOut
)

func (v Verdict) String() string {
	switch v {
	case Drop:
		return "drop"
	case Single:
		return "single"
	case FanOut:
		return "fan-out"
	}
	return fmt.Sprint(uint8(v))
}

// Result is a classification result.
type Result struct {
	Verdict Verdict

	// Tx is the tx index when Verdict is Single.
	Tx int

	// Fanout lists tx indices when Verdict is FanOut.
	// It belongs to the Snapshot and must not be modified.
	Fanout []int
}

func (s *Snapshot) fallback() Result {
	if !s.hasGeneral {
		return Result{Verdict: Drop}
	}
	return Result{Verdict: Single, Tx: s.generalDefault}
}

// Classify selects output for a packet with the given VLAN and destination address.
func (s *Snapshot) Classify(vlan VlanID, dst macaddr.Key) Result {
	if !vlan.Valid() {
		return Result{Verdict: Drop}
	}
	tbl := s.vlans[vlan]
	if tbl == nil {
		return s.fallback()
	}

	if tx, ok := tbl.macs.Lookup(dst); ok {
		return Result{Verdict: Single, Tx: tx}
	}
	if dst.IsMulticast() {
		if len(tbl.fanout) == 0 {
			return Result{Verdict: Drop}
		}
		return Result{Verdict: FanOut, Fanout: tbl.fanout}
	}
	if tbl.dflt != noIndex {
		return Result{Verdict: Single, Tx: tbl.dflt}
	}
	return s.fallback()
}
