// Package jsonhelper provides JSON-related helper functions.
package jsonhelper

import (
	"bytes"
	"encoding/json"

	"github.com/peterbourgon/mergemap"
)

// Option sets an option on json.Decoder.
type Option func(*json.Decoder)

// DisallowUnknownFields causes json.Decoder to reject unknown struct fields.
var DisallowUnknownFields Option = func(d *json.Decoder) { d.DisallowUnknownFields() }

// Roundtrip marshals the input to JSON then unmarshals it into ptr.
func Roundtrip(input, ptr any, options ...Option) error {
	j, e := json.Marshal(input)
	if e != nil {
		return e
	}
	return decode(j, ptr, options)
}

// Overlay decodes base, deep-merges each overlay document on top of it, and decodes the result into ptr.
// Objects are merged key by key; any other value in an overlay replaces the base value.
func Overlay(base []byte, ptr any, overlays []map[string]any, options ...Option) error {
	var merged map[string]any
	if e := json.Unmarshal(base, &merged); e != nil {
		return e
	}
	for _, overlay := range overlays {
		merged = mergemap.Merge(merged, overlay)
	}
	return Roundtrip(merged, ptr, options...)
}

func decode(j []byte, ptr any, options []Option) error {
	decoder := json.NewDecoder(bytes.NewReader(j))
	for _, option := range options {
		option(decoder)
	}
	return decoder.Decode(ptr)
}
