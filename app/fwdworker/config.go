package fwdworker

import (
	"github.com/usnistgov/patchpanel/app/patchfwd"
	"github.com/usnistgov/patchpanel/container/dblbuf"
)

// Config contains forward and merge component settings.
type Config struct {
	// Forwarder configures the polling loop.
	Forwarder patchfwd.Config `json:"forwarder"`

	// Reload configures the link swap handshake.
	Reload dblbuf.Config `json:"reload"`
}
