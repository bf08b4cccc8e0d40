package main

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/usnistgov/patchpanel/app/dataplane"
	"github.com/usnistgov/patchpanel/core/jsonhelper"
	"github.com/usnistgov/patchpanel/mgmt/ctrlconn"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed patchpanel.schema.json
var schemaJSON []byte

// defaultConfig is merged beneath the user configuration.
const defaultConfig = `{
	"dataplane": {
		"stats": { "name": "patchpanel_stats", "maxPhy": 64, "maxClient": 1024 },
		"forwarder": { "burstSize": 32, "idleSleep": 1 },
		"classifier": { "burstSize": 32, "drainInterval": 100, "tableCapacity": 128 },
		"relay": { "forwarder": { "burstSize": 32 } },
		"reload": { "retryCount": 1000, "retryInterval": 10 }
	},
	"metrics": "127.0.0.1:9411"
}`

// svcConfig is the patchpanel-svc configuration document.
type svcConfig struct {
	DataPlane dataplane.Config `json:"dataplane"`

	// Ctrl, if present, connects to a controller.
	Ctrl *ctrlconn.Config `json:"ctrl,omitempty"`

	// Mgmt is the management listen URL. It overrides the environment.
	Mgmt string `json:"mgmt,omitempty"`

	// Metrics is the Prometheus HTTP listen address. Empty string disables metrics.
	Metrics string `json:"metrics"`
}

type schemaError struct {
	*gojsonschema.Result
}

func (e schemaError) Error() string {
	var b strings.Builder
	fmt.Fprintln(&b, "configuration failed schema validation:")
	for _, desc := range e.Result.Errors() {
		fmt.Fprintln(&b, "-", desc)
	}
	return b.String()
}

func checkSchema(doc map[string]any) error {
	result, e := gojsonschema.Validate(gojsonschema.NewBytesLoader(schemaJSON), gojsonschema.NewGoLoader(doc))
	if e != nil {
		return fmt.Errorf("schema validator: %w", e)
	}
	if !result.Valid() {
		return schemaError{Result: result}
	}
	return nil
}

// loadConfig validates a user document, merges it over the defaults, and decodes it.
func loadConfig(doc map[string]any) (cfg svcConfig, e error) {
	if doc == nil {
		doc = map[string]any{}
	}
	if e = checkSchema(doc); e != nil {
		return cfg, e
	}

	if e = jsonhelper.Overlay([]byte(defaultConfig), &cfg, []map[string]any{doc}, jsonhelper.DisallowUnknownFields); e != nil {
		return cfg, e
	}
	if cfg.Ctrl != nil {
		if e = cfg.Ctrl.Validate(); e != nil {
			return cfg, e
		}
	}
	return cfg, nil
}
