// Package macaddr provides helpers for MAC-48 addresses.
package macaddr

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math/rand"
	"net"
	"strings"
)

// DefaultKeyword is the textual alias of Wildcard accepted by Parse.
const DefaultKeyword = "default"

// Wildcard is a reserved address that selects the default destination in a classification table.
var Wildcard = net.HardwareAddr{0x00, 0x00, 0x00, 0x00, 0x00, 0x01}

// Broadcast is the all-ones address.
var Broadcast = net.HardwareAddr{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// ErrInvalid indicates the input is not a MAC-48 address.
var ErrInvalid = errors.New("invalid MAC-48 address")

// Equal determines whether two HardwareAddrs are the same.
func Equal(a, b net.HardwareAddr) bool {
	return bytes.Equal([]byte(a), []byte(b))
}

// IsValid determines whether the HardwareAddr is a MAC-48 address.
func IsValid(a net.HardwareAddr) bool {
	return len(a) == 6
}

// IsUnicast determines whether the HardwareAddr is a non-zero unicast MAC-48 address.
func IsUnicast(a net.HardwareAddr) bool {
	return IsValid(a) && (a[0]&0x01) == 0 && (a[0]|a[1]|a[2]|a[3]|a[4]|a[5]) != 0
}

// IsMulticast determines whether the HardwareAddr is a multicast MAC-48 address.
// Broadcast is a multicast address.
func IsMulticast(a net.HardwareAddr) bool {
	return IsValid(a) && (a[0]&0x01) != 0
}

// IsWildcard determines whether the HardwareAddr is Wildcard.
func IsWildcard(a net.HardwareAddr) bool {
	return Equal(a, Wildcard)
}

// MakeRandom generates a random MAC-48 address.
func MakeRandom(multicast bool) (a net.HardwareAddr) {
	a = make(net.HardwareAddr, 6)
	rand.Read([]byte(a))
	a[0] |= 0x02
	if multicast {
		a[0] |= 0x01
	} else {
		a[0] &^= 0x01
	}
	return a
}

// Parse parses a MAC-48 address or DefaultKeyword.
func Parse(s string) (net.HardwareAddr, error) {
	if strings.EqualFold(s, DefaultKeyword) {
		return append(net.HardwareAddr{}, Wildcard...), nil
	}
	a, e := net.ParseMAC(s)
	if e != nil || !IsValid(a) {
		return nil, ErrInvalid
	}
	return a, nil
}

// Key is a MAC-48 address packed into the low 48 bits of an integer.
// It is usable as a map key without allocation.
type Key uint64

// WildcardKey is the Key of Wildcard.
var WildcardKey = KeyOf(Wildcard)

// KeyOf converts a HardwareAddr to Key.
// Returns zero if the address is not MAC-48.
func KeyOf(a net.HardwareAddr) Key {
	if !IsValid(a) {
		return 0
	}
	return KeyFromBytes(a)
}

// KeyFromBytes reads a Key from the first 6 octets of b, such as the destination field of an Ethernet header.
func KeyFromBytes(b []byte) Key {
	_ = b[5]
	return Key(uint64(binary.BigEndian.Uint16(b[0:2]))<<32 | uint64(binary.BigEndian.Uint32(b[2:6])))
}

// IsMulticast determines whether the Key is a multicast address.
func (k Key) IsMulticast() bool {
	return (k>>40)&0x01 != 0
}

// HardwareAddr converts the Key back to net.HardwareAddr.
func (k Key) HardwareAddr() net.HardwareAddr {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(k))
	return net.HardwareAddr(b[2:8])
}

func (k Key) String() string {
	if k == WildcardKey {
		return DefaultKeyword
	}
	return k.HardwareAddr().String()
}
