package dataplane

import (
	"github.com/usnistgov/patchpanel/app/clsworker"
	"github.com/usnistgov/patchpanel/app/fwdworker"
	"github.com/usnistgov/patchpanel/app/patchfwd"
	"github.com/usnistgov/patchpanel/container/dblbuf"
	"github.com/usnistgov/patchpanel/eal/ealthread"
	"github.com/usnistgov/patchpanel/eal/ethdev/afpktdev"
	"github.com/usnistgov/patchpanel/eal/ethdev/memifdev"
	"github.com/usnistgov/patchpanel/eal/pktmbuf"
	"github.com/usnistgov/patchpanel/iface/portstats"
)

// Defaults.
const (
	DefaultPoolCapacity = 8191
	DefaultRingCapacity = 1024
	DefaultPcapDir      = "/tmp"
	DefaultVhostDir     = "/tmp"
)

// LCore allocation roles.
const (
	RoleForwarder = "FWD"
	RoleComponent = "CMP"
)

// Config contains DataPlane configuration.
type Config struct {
	// ClientID is the initial client ID reported in status.
	ClientID int `json:"clientId,omitempty"`

	// Pool configures the packet buffer pool shared by all receiving drivers.
	Pool pktmbuf.PoolConfig `json:"pool"`

	// Stats configures the shared statistics region.
	Stats portstats.Config `json:"stats"`

	// Phy lists physical interfaces; Phy[i] becomes port phy:i at startup.
	Phy []afpktdev.Config `json:"phy,omitempty"`

	RingCapacity int    `json:"ringCapacity,omitempty"`
	PcapDir      string `json:"pcapDir,omitempty"`
	VhostDir     string `json:"vhostDir,omitempty"`
	MemifSocket  string `json:"memifSocket,omitempty"`

	Forwarder  patchfwd.Config  `json:"forwarder"`
	Classifier clsworker.Config `json:"classifier"`
	Relay      fwdworker.Config `json:"relay"`

	// Reload configures the configuration swap handshake of every published table.
	Reload dblbuf.Config `json:"reload"`

	// LCores configures lcore reservation per role.
	LCores ealthread.AllocConfig `json:"lcores,omitempty"`

	// Allocator allocates lcores.
	// Default is ealthread.DefaultAllocator.
	Allocator *ealthread.Allocator `json:"-"`
}

func (cfg *Config) applyDefaults() {
	if cfg.Pool.Capacity <= 0 {
		cfg.Pool.Capacity = DefaultPoolCapacity
	}
	if cfg.RingCapacity <= 0 {
		cfg.RingCapacity = DefaultRingCapacity
	}
	if cfg.PcapDir == "" {
		cfg.PcapDir = DefaultPcapDir
	}
	if cfg.VhostDir == "" {
		cfg.VhostDir = DefaultVhostDir
	}
	if cfg.MemifSocket == "" {
		cfg.MemifSocket = memifdev.DefaultSocketName
	}
	if cfg.Classifier.Reload == (dblbuf.Config{}) {
		cfg.Classifier.Reload = cfg.Reload
	}
	if cfg.Relay.Reload == (dblbuf.Config{}) {
		cfg.Relay.Reload = cfg.Reload
	}
	if cfg.Allocator == nil {
		cfg.Allocator = ealthread.DefaultAllocator
	}
	if len(cfg.LCores) > 0 {
		cfg.Allocator.Config = cfg.LCores
	}
}
