package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterPathParameters(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
		want   bool
	}{
		{"plain string", map[string]any{"id": "abc"}, true},
		{"number", map[string]any{"id": 42}, true},
		{"empty", map[string]any{}, true},
		{"single dot", map[string]any{"id": "."}, false},
		{"array value", map[string]any{"id": []any{"x"}}, false},
		{"object value", map[string]any{"id": map[string]any{"k": "v"}}, false},
		{"one bad among good", map[string]any{"a": "ok", "b": "."}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterPathParameters(tt.params))
		})
	}
}

func TestQuoteAll(t *testing.T) {
	out := QuoteAll(map[string]any{
		"plain":   "abc",
		"spaced":  "a b/c",
		"numeric": 7,
	})

	assert.Equal(t, "abc", out["plain"])
	assert.Equal(t, "a%20b%2Fc", out["spaced"])
	assert.Equal(t, 7, out["numeric"])
}

func TestIsValidHeader(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  bool
	}{
		{"string values", map[string]any{"A": "b"}, true},
		{"non-string value", map[string]any{"A": 1}, false},
		{"empty value", map[string]any{"A": ""}, false},
		{"empty name", map[string]any{"": "b"}, false},
		{"non-ascii value", map[string]any{"A": "café"}, false},
		{"crlf in value", map[string]any{"A": "b\r\nX: y"}, false},
		{"not a map", "A: b", false},
		{"empty map", map[string]any{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidHeader(tt.value))
		})
	}
}

func TestIsValidQuery(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  bool
	}{
		{"plain", map[string]any{"q": "term"}, true},
		{"unicode is fine", map[string]any{"q": "café"}, true},
		// Surrogate code points only survive as ill-formed UTF-8 bytes;
		// rune conversion would silently replace them with U+FFFD.
		{"surrogate in value", map[string]any{"q": string([]byte{0xed, 0xa0, 0x80})}, false},
		{"surrogate in key", map[string]any{string([]byte{0xed, 0xbf, 0xbf}): "x"}, false},
		{"not a map", []any{"q"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidQuery(tt.value))
		})
	}
}

func TestIsValidFormData(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  bool
	}{
		{"string map", map[string]any{"name": "x"}, true},
		{"bytes value", map[string]any{"file": []byte{1, 2}}, true},
		{"nested map value", map[string]any{"meta": map[string]any{}}, false},
		{"pair sequence", []FormPair{{Name: "a", Value: "b"}}, true},
		{"pair with composite value", []FormPair{{Name: "a", Value: []any{}}}, false},
		{"scalar", "name=x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidFormData(tt.value))
		})
	}
}
