package weft_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/weftlabs/weft"
)

func TestToPrimitives(t *testing.T) {
	t.Parallel()

	type inner struct {
		Label string `json:"label"`
	}
	type outer struct {
		Name    string    `json:"name"`
		Hidden  string    `json:"-"`
		Omitted string    `json:"omitted,omitempty"`
		Nested  inner     `json:"nested"`
		Items   []inner   `json:"items"`
		Ptr     *string   `json:"ptr"`
		Stamp   time.Time `json:"stamp"`
	}

	now := time.Now()
	in := outer{
		Name:   "a",
		Hidden: "never",
		Nested: inner{Label: "n"},
		Items:  []inner{{Label: "i0"}},
		Stamp:  now,
	}

	got, ok := weft.ToPrimitives(in, nil, nil, false, false).(map[string]any)
	assert.True(t, ok)

	assert.Equal(t, "a", got["name"])
	assert.NotContains(t, got, "Hidden")
	assert.NotContains(t, got, "omitted") // omitempty zero value dropped
	assert.Equal(t, map[string]any{"label": "n"}, got["nested"])
	assert.Equal(t, []any{map[string]any{"label": "i0"}}, got["items"])
	assert.Nil(t, got["ptr"])
	assert.Equal(t, now, got["stamp"]) // time.Time passes through for the encoder
}

func TestToPrimitives_top_level_filters(t *testing.T) {
	t.Parallel()

	type doc struct {
		A string `json:"a"`
		B string `json:"b"`
		C string `json:"c"`
	}
	in := doc{A: "1", B: "2", C: "3"}

	include := weft.ToPrimitives(in, []string{"a"}, nil, false, false).(map[string]any)
	assert.Equal(t, map[string]any{"a": "1"}, include)

	exclude := weft.ToPrimitives(in, nil, []string{"b"}, false, false).(map[string]any)
	assert.Equal(t, map[string]any{"a": "1", "c": "3"}, exclude)

	names := weft.ToPrimitives(in, nil, nil, true, false).(map[string]any)
	assert.Equal(t, map[string]any{"A": "1", "B": "2", "C": "3"}, names)
}

func TestToPrimitives_filters_do_not_recurse(t *testing.T) {
	t.Parallel()

	// Include/exclude apply to the top level only; nested fields with the
	// same name are untouched.
	type child struct {
		B string `json:"b"`
	}
	type parent struct {
		A     string `json:"a"`
		Child child  `json:"child"`
	}
	in := parent{A: "x", Child: child{B: "kept"}}

	got := weft.ToPrimitives(in, nil, []string{"b"}, false, false).(map[string]any)
	assert.Equal(t, map[string]any{"a": "x", "child": map[string]any{"b": "kept"}}, got)
}

func TestToPrimitives_omit_nil(t *testing.T) {
	t.Parallel()

	type doc struct {
		A *string `json:"a"`
		B string  `json:"b"`
	}

	got := weft.ToPrimitives(doc{B: "v"}, nil, nil, false, true).(map[string]any)
	assert.Equal(t, map[string]any{"b": "v"}, got)
}

func TestStringify(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", weft.Stringify(nil))
	assert.Equal(t, "plain", weft.Stringify("plain"))
	assert.Equal(t, "bytes", weft.Stringify([]byte("bytes")))
	assert.Equal(t, "42", weft.Stringify(42))
}

func TestInferContentType(t *testing.T) {
	t.Parallel()

	type rec struct{ A int }

	tests := map[string]struct {
		val    any
		expect string
	}{
		"struct": {val: rec{}, expect: "application/json"},
		"map":    {val: map[string]int{}, expect: "application/json"},
		"slice":  {val: []int{1}, expect: "application/json"},
		"string": {val: "s", expect: "text/plain"},
		"int":    {val: 3, expect: "text/plain"},
		"bool":   {val: true, expect: "text/plain"},
		"bytes":  {val: []byte{1}, expect: "application/octet-stream"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expect, weft.InferContentType(tc.val))
		})
	}
}
