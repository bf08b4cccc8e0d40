package classifier

import (
	"errors"
	"strconv"
)

// VlanID is a VLAN identifier, or Untagged.
type VlanID uint16

// VlanID limits.
const (
	MaxVlanID VlanID = 4094
	Untagged  VlanID = 4095

	nVlans = int(Untagged) + 1
)

// ErrVlanID indicates a VLAN identifier is out of range.
var ErrVlanID = errors.New("VLAN ID out of range")

// NewVlanID validates a VLAN identifier.
// Negative value means Untagged.
func NewVlanID(v int) (VlanID, error) {
	switch {
	case v < 0:
		return Untagged, nil
	case v > int(MaxVlanID):
		return Untagged, ErrVlanID
	}
	return VlanID(v), nil
}

// ParseVlanID parses a decimal VLAN identifier.
func ParseVlanID(s string) (VlanID, error) {
	v, e := strconv.ParseUint(s, 10, 16)
	if e != nil || v > uint64(MaxVlanID) {
		return Untagged, ErrVlanID
	}
	return VlanID(v), nil
}

// IsTagged determines whether v refers to a tagged VLAN.
func (v VlanID) IsTagged() bool {
	return v <= MaxVlanID
}

// Valid determines whether v is within range, including Untagged.
func (v VlanID) Valid() bool {
	return v <= Untagged
}

func (v VlanID) String() string {
	if v == Untagged {
		return "untagged"
	}
	return strconv.Itoa(int(v))
}
