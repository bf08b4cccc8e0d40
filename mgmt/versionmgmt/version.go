// Package versionmgmt provides the Version management service.
package versionmgmt

import (
	"github.com/usnistgov/patchpanel/core/version"
)

// VersionMgmt reports the running version.
type VersionMgmt struct{}

// Get returns version information.
func (VersionMgmt) Get(args struct{}, reply *version.Version) error {
	*reply = version.V
	return nil
}
