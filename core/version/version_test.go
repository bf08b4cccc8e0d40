package version_test

import (
	"runtime"
	"testing"

	"github.com/usnistgov/patchpanel/core/testenv"
	"github.com/usnistgov/patchpanel/core/version"
)

func TestBanner(t *testing.T) {
	assert, _ := testenv.MakeAR(t)

	v := version.Version{Module: "github.com/usnistgov/patchpanel", Version: "v1.0.0", GoVersion: "go1.23.0"}
	assert.Equal("patchpanel v1.0.0 (go1.23.0)", v.Banner())
	assert.Equal("v1.0.0", v.String())

	assert.Equal(runtime.Version(), version.V.GoVersion)
}
