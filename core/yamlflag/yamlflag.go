// Package yamlflag provides a command line flag that accepts a YAML document.
package yamlflag

import (
	"encoding/json"
	"flag"
	"os"
	"reflect"

	"github.com/ghodss/yaml"
)

// New creates a flag.Value that recognizes a YAML document.
//
// The YAML document can be specified directly on the command line:
//
//	--flag="key: value"
//
// Or it can be read from a file, when the flag value starts with '@':
//
//	--flag=@file.yaml
//
// value must be a pointer to a struct or map.
// Panics if value is not a pointer.
func New(value any) flag.Getter {
	if val := reflect.ValueOf(value); val.Kind() != reflect.Ptr {
		panic(val.Kind())
	}
	return &yamlFlagValue{Value: value}
}

type yamlFlagValue struct {
	Value any
}

func (v *yamlFlagValue) Get() any {
	return v.Value
}

func (v *yamlFlagValue) Set(s string) error {
	doc, e := ReadDocument(s)
	if e != nil {
		return e
	}
	return yaml.Unmarshal(doc, v.Value)
}

func (v *yamlFlagValue) String() string {
	if v == nil || v.Value == nil {
		return ""
	}
	j, _ := json.Marshal(v.Value)
	return string(j)
}

// ReadDocument returns the YAML document named by a flag value: file content if s starts with '@', otherwise s itself.
func ReadDocument(s string) ([]byte, error) {
	if len(s) >= 1 && s[0] == '@' {
		return os.ReadFile(s[1:])
	}
	return []byte(s), nil
}

// ToJSON converts a YAML document named by a flag value to JSON.
func ToJSON(s string) ([]byte, error) {
	doc, e := ReadDocument(s)
	if e != nil {
		return nil, e
	}
	return yaml.YAMLToJSON(doc)
}
