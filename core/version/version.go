// Package version returns patchpanel version information.
package version

import (
	"fmt"
	"path"
	"runtime"
	"runtime/debug"
	"time"
)

// Version records patchpanel version information.
type Version struct {
	Module    string    `json:"module"`
	Version   string    `json:"version"`
	Commit    string    `json:"commit"`
	Date      time.Time `json:"date"`
	Dirty     bool      `json:"dirty"`
	GoVersion string    `json:"goVersion"`
}

func (v Version) String() string {
	return v.Version
}

// Banner returns a one-line description suitable for startup logs and shell greetings.
func (v Version) Banner() string {
	return fmt.Sprintf("%s %s (%s)", path.Base(v.Module), v.Version, v.GoVersion)
}

// V contains patchpanel version information.
var V = Version{
	Module:    "github.com/usnistgov/patchpanel",
	Version:   "development",
	Commit:    "unknown",
	Date:      time.Now(),
	Dirty:     true,
	GoVersion: runtime.Version(),
}

func init() {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if bi.Main.Path != "" {
		V.Module = bi.Main.Path
	}

	bs := map[string]string{}
	for _, kv := range bi.Settings {
		bs[kv.Key] = kv.Value
	}
	dt, e := time.Parse(time.RFC3339, bs["vcs.time"])
	if bs["vcs"] != "git" || len(bs["vcs.revision"]) != 40 || e != nil {
		return
	}

	V.Commit = bs["vcs.revision"]
	V.Date = dt
	V.Dirty = bs["vcs.modified"] == "true"
	V.Version = fmt.Sprintf("v0.0.0-%s-%s%s", V.Date.Format("20060102150405"), V.Commit[:12], map[bool]string{true: "-dirty"}[V.Dirty])
}
