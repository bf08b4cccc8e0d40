package clsworker

import (
	"time"

	"github.com/usnistgov/patchpanel/container/classifier"
	"github.com/usnistgov/patchpanel/container/dblbuf"
	"github.com/usnistgov/patchpanel/core/nnduration"
)

// Defaults and limits.
const (
	DefaultBurstSize     = 32
	MaxBurstSize         = 256
	DefaultDrainInterval = 100 * time.Microsecond

	// MaxTx is the maximum number of tx ports of a component.
	MaxTx = 128
)

// Config contains classifier component settings.
type Config struct {
	// BurstSize is both the rx burst size and the pending buffer size of each tx port.
	BurstSize int `json:"burstSize,omitempty"`

	// DrainInterval is the maximum duration a packet may wait in a pending buffer.
	DrainInterval nnduration.Microseconds `json:"drainInterval,omitempty"`

	// TableCapacity is the MAC table capacity of each VLAN.
	TableCapacity int `json:"tableCapacity,omitempty"`

	// Reload configures the table swap handshake.
	Reload dblbuf.Config `json:"reload"`
}

func (cfg *Config) applyDefaults() {
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = DefaultBurstSize
	}
	cfg.BurstSize = min(cfg.BurstSize, MaxBurstSize)
	if cfg.TableCapacity <= 0 {
		cfg.TableCapacity = classifier.DefaultCapacity
	}
}

func (cfg Config) drainInterval() time.Duration {
	return cfg.DrainInterval.DurationOr(nnduration.Microseconds(DefaultDrainInterval / time.Microsecond))
}
