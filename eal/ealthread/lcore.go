package ealthread

import (
	"strconv"

	"go.uber.org/zap"
)

// MaxLCoreID is the maximum logical core number.
const MaxLCoreID = 1023

// LCore identifies a logical core that a thread is pinned to.
// The zero value is invalid; use NewLCore to construct.
type LCore struct {
	v int // lcore ID + 1
}

// NewLCore constructs LCore from ID.
// Out of range ID yields an invalid LCore.
func NewLCore(id int) (lc LCore) {
	if id < 0 || id > MaxLCoreID {
		return lc
	}
	return LCore{id + 1}
}

// ID returns lcore ID, or -1 if invalid.
func (lc LCore) ID() int {
	return lc.v - 1
}

// Valid checks whether the LCore is valid.
func (lc LCore) Valid() bool {
	return lc.v > 0
}

func (lc LCore) String() string {
	if !lc.Valid() {
		return "invalid"
	}
	return strconv.Itoa(lc.ID())
}

// ZapField returns a zap.Field for logging.
func (lc LCore) ZapField(key string) zap.Field {
	if !lc.Valid() {
		return zap.String(key, "invalid")
	}
	return zap.Int(key, lc.ID())
}
