// Package vlantag implements port abilities that insert, rewrite, or strip 802.1Q tags.
package vlantag

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/gopacket/layers"
	"github.com/usnistgov/patchpanel/eal/pktmbuf"
)

// Header sizes.
const (
	macPairLen = 12
	tagLen     = 4
)

// MaxAbilities is the maximum number of abilities per port direction.
const MaxAbilities = 4

// Errors.
var (
	ErrVid      = errors.New("VLAN ID out of range")
	ErrPcp      = errors.New("PCP out of range")
	ErrTooMany  = errors.New("too many abilities")
	ErrTruncate = errors.New("frame too short")
)

// Op indicates ability operation.
type Op uint8

// Op values.
const (
	OpNone Op = iota
	OpAddTag
	OpDelTag
)

func (op Op) String() string {
	switch op {
	case OpNone:
		return "none"
	case OpAddTag:
		return "add_vlantag"
	case OpDelTag:
		return "del_vlantag"
	}
	return fmt.Sprint(uint8(op))
}

// MarshalText implements encoding.TextMarshaler.
func (op Op) MarshalText() ([]byte, error) {
	return []byte(op.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (op *Op) UnmarshalText(text []byte) error {
	for o := OpNone; o <= OpDelTag; o++ {
		if o.String() == string(text) {
			*op = o
			return nil
		}
	}
	return fmt.Errorf("unknown ability operation %q", text)
}

// Ability is an operation applied to every packet passing a port in one direction.
type Ability struct {
	Op  Op     `json:"operation"`
	Vid uint16 `json:"id,omitempty"`
	Pcp uint8  `json:"pcp,omitempty"`
}

// AddTag creates an ability that inserts or rewrites an 802.1Q tag.
func AddTag(vid, pcp int) (Ability, error) {
	if vid < 0 || vid > 4094 {
		return Ability{}, ErrVid
	}
	if pcp < 0 || pcp > 7 {
		return Ability{}, ErrPcp
	}
	return Ability{Op: OpAddTag, Vid: uint16(vid), Pcp: uint8(pcp)}, nil
}

// DelTag creates an ability that strips an 802.1Q tag.
func DelTag() Ability {
	return Ability{Op: OpDelTag}
}

// TCI returns the Tag Control Information field.
func (abl Ability) TCI() uint16 {
	return uint16(abl.Pcp)<<13 | abl.Vid&0x0FFF
}

func (abl Ability) String() string {
	if abl.Op == OpAddTag {
		return fmt.Sprintf("%s %d %d", abl.Op, abl.Vid, abl.Pcp)
	}
	return abl.Op.String()
}

func hasTag(frame []byte) bool {
	return len(frame) >= macPairLen+tagLen && layers.EthernetType(binary.BigEndian.Uint16(frame[macPairLen:])) == layers.EthernetTypeDot1Q
}

func (abl Ability) apply(pkt *pktmbuf.Packet) error {
	frame := pkt.Bytes()
	if len(frame) < macPairLen+2 {
		return ErrTruncate
	}
	switch abl.Op {
	case OpAddTag:
		if !hasTag(frame) {
			if _, e := pkt.Prepend(tagLen); e != nil {
				return e
			}
			frame = pkt.Bytes()
			copy(frame[:macPairLen], frame[tagLen:tagLen+macPairLen])
			binary.BigEndian.PutUint16(frame[macPairLen:], uint16(layers.EthernetTypeDot1Q))
		}
		binary.BigEndian.PutUint16(frame[macPairLen+2:], abl.TCI())
	case OpDelTag:
		if hasTag(frame) {
			copy(frame[tagLen:tagLen+macPairLen], frame[:macPairLen])
			pkt.Adj(tagLen)
		}
	}
	return nil
}

// Abilities is an ordered list of abilities on a port direction.
type Abilities []Ability

// Validate checks the list length.
func (abls Abilities) Validate() error {
	if len(abls) > MaxAbilities {
		return ErrTooMany
	}
	return nil
}

// Apply applies every ability to a burst of packets, in order.
//
// A packet shared with other owners is replaced by a private copy before modification.
// Processing stops at the first packet that cannot be modified; the return value is the
// number of leading packets processed. The caller owns and must free the remaining packets.
func (abls Abilities) Apply(pkts pktmbuf.Vector) int {
	if len(abls) == 0 {
		return len(pkts)
	}
	for i, pkt := range pkts {
		if pkt.Refcnt() > 1 {
			clone := pkt.Clone()
			if clone == nil {
				return i
			}
			pkt.Close()
			pkts[i], pkt = clone, clone
		}
		for _, abl := range abls {
			if abl.apply(pkt) != nil {
				return i
			}
		}
	}
	return len(pkts)
}
