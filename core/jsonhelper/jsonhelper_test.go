package jsonhelper_test

import (
	"testing"

	"github.com/usnistgov/patchpanel/core/jsonhelper"
	"github.com/usnistgov/patchpanel/core/testenv"
)

var makeAR = testenv.MakeAR

type sample struct {
	A int `json:"a"`
	B struct {
		C string `json:"c"`
		D []int  `json:"d"`
	} `json:"b"`
}

func TestRoundtrip(t *testing.T) {
	assert, require := makeAR(t)

	var s sample
	require.NoError(jsonhelper.Roundtrip(map[string]any{"a": 1, "b": map[string]any{"c": "x"}}, &s))
	assert.Equal(1, s.A)
	assert.Equal("x", s.B.C)

	assert.Error(jsonhelper.Roundtrip(map[string]any{"z": 1}, &s, jsonhelper.DisallowUnknownFields))
}

func TestOverlay(t *testing.T) {
	assert, require := makeAR(t)

	base := []byte(`{"a":1,"b":{"c":"x","d":[1,2]}}`)
	var s sample
	require.NoError(jsonhelper.Overlay(base, &s, []map[string]any{
		{"b": map[string]any{"d": []any{3}}},
		{"a": 5},
	}))
	assert.Equal(5, s.A)
	assert.Equal("x", s.B.C)
	assert.Equal([]int{3}, s.B.D)

	assert.Error(jsonhelper.Overlay(base, &s, []map[string]any{{"q": true}}, jsonhelper.DisallowUnknownFields))
	assert.Error(jsonhelper.Overlay([]byte(`[`), &s, nil))
}
