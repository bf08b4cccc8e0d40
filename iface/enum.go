package iface

import (
	"errors"
	"strconv"
)

// DefaultQueues is the queue count of a port not configured with multiple queues.
const DefaultQueues = 1

// MaxQueues is the maximum queue count of a port.
const MaxQueues = 64

// Type indicates logical port type.
type Type uint8

// Type values.
const (
	TypeUndefined Type = iota
	TypePhy
	TypeRing
	TypeVhost
	TypePcap
	TypeNull
	TypeTap
	TypeMemif
)

var typeNames = map[Type]string{
	TypeUndefined: "udf",
	TypePhy:       "phy",
	TypeRing:      "ring",
	TypeVhost:     "vhost",
	TypePcap:      "pcap",
	TypeNull:      "nullpmd",
	TypeTap:       "tap",
	TypeMemif:     "memif",
}

// ErrType indicates an unknown port type.
var ErrType = errors.New("unknown port type")

// ParseType parses port type from its name.
func ParseType(s string) (Type, error) {
	for t, name := range typeNames {
		if t != TypeUndefined && name == s {
			return t, nil
		}
	}
	return TypeUndefined, ErrType
}

// Valid determines whether t is a known port type other than TypeUndefined.
func (t Type) Valid() bool {
	return t != TypeUndefined && typeNames[t] != ""
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return strconv.Itoa(int(t))
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(text []byte) (e error) {
	*t, e = ParseType(string(text))
	return e
}
