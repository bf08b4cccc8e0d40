package testenv

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// BytesFromHex converts a hexadecimal string to a byte slice.
// The octets must be written as upper case.
// All characters other than [0-9A-F] are considered comments and stripped.
func BytesFromHex(input string) []byte {
	s := strings.Map(func(ch rune) rune {
		if strings.ContainsRune("0123456789ABCDEF", ch) {
			return ch
		}
		return -1
	}, input)
	decoded, e := hex.DecodeString(s)
	if e != nil {
		panic(fmt.Errorf("hex.DecodeString error %w", e))
	}
	return decoded
}

// EthernetFrame builds a minimal Ethernet frame from hexadecimal header fields.
// dst and src are MAC-48 in "02:00:00:00:00:01" form; vlan < 0 omits the 802.1Q tag.
func EthernetFrame(dst, src string, vlan int, payloadLen int) []byte {
	frame := BytesFromHex(strings.ToUpper(dst) + strings.ToUpper(src))
	if vlan >= 0 {
		frame = append(frame, 0x81, 0x00, byte(vlan>>8)&0x0F, byte(vlan))
	}
	frame = append(frame, 0x08, 0x00)
	return append(frame, make([]byte, payloadLen)...)
}
