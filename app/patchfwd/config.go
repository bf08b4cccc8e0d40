package patchfwd

import (
	"time"

	"github.com/usnistgov/patchpanel/core/nnduration"
)

// Defaults and limits.
const (
	DefaultBurstSize = 32
	MaxBurstSize     = 256
	DefaultIdleSleep = time.Millisecond
)

// Config contains Forwarder settings.
type Config struct {
	// BurstSize is the maximum number of packets received from one input per iteration.
	BurstSize int `json:"burstSize,omitempty"`

	// IdleSleep is the sleep duration of each iteration when idle.
	IdleSleep nnduration.Milliseconds `json:"idleSleep,omitempty"`
}

func (cfg *Config) applyDefaults() {
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = DefaultBurstSize
	}
	cfg.BurstSize = min(cfg.BurstSize, MaxBurstSize)
}

func (cfg Config) idleSleep() time.Duration {
	return cfg.IdleSleep.DurationOr(nnduration.Milliseconds(DefaultIdleSleep / time.Millisecond))
}
