package generator

import (
	"net/url"
	"unicode"
	"unicode/utf8"
)

// FilterPathParameters rejects generated path parameters that cannot survive
// path substitution: composite values have no path representation, and a
// lone "." collapses during URL normalization, silently producing a request
// for a different path.
func FilterPathParameters(params map[string]any) bool {
	for _, value := range params {
		switch value.(type) {
		case map[string]any, []any:
			return false
		}
		if value == "." {
			return false
		}
	}
	return true
}

// QuoteAll percent-encodes string path parameters before substitution.
func QuoteAll(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for name, value := range params {
		if s, ok := value.(string); ok {
			out[name] = url.PathEscape(s)
		} else {
			out[name] = value
		}
	}
	return out
}

// IsValidHeader accepts only string-to-string mappings whose names and values
// are non-empty, ASCII-encodable and free of header-breaking characters.
func IsValidHeader(value any) bool {
	headers, ok := value.(map[string]any)
	if !ok {
		return false
	}
	for name, raw := range headers {
		s, ok := raw.(string)
		if !ok {
			return false
		}
		if name == "" || s == "" {
			return false
		}
		if !isASCII(name) || !isASCII(s) {
			return false
		}
		if hasInvalidHeaderChars(name) || hasInvalidHeaderChars(s) {
			return false
		}
	}
	return true
}

// IsValidQuery rejects mappings whose keys or values contain lone UTF-16
// surrogates; transports cannot carry them.
func IsValidQuery(value any) bool {
	query, ok := value.(map[string]any)
	if !ok {
		return false
	}
	for name, raw := range query {
		if hasSurrogate(name) {
			return false
		}
		if s, ok := raw.(string); ok && hasSurrogate(s) {
			return false
		}
	}
	return true
}

// FormPair is one entry of a sequence-style form payload.
type FormPair struct {
	Name  string
	Value any
}

// IsValidFormData accepts either a mapping of string keys to primitive or
// byte values, or a sequence of (name, value) pairs with the same value
// constraint.
func IsValidFormData(value any) bool {
	switch form := value.(type) {
	case map[string]any:
		for _, item := range form {
			if !isFormValue(item) {
				return false
			}
		}
		return true
	case []FormPair:
		for _, pair := range form {
			if !isFormValue(pair.Value) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func isFormValue(v any) bool {
	switch v.(type) {
	case string, []byte, int, int64, float64, bool:
		return true
	default:
		return false
	}
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > unicode.MaxASCII {
			return false
		}
	}
	return true
}

func hasInvalidHeaderChars(s string) bool {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\r', '\n', '\x00':
			return true
		}
	}
	return false
}

// hasSurrogate reports whether s contains a code point in the UTF-16
// surrogate range, including ill-formed UTF-8 encodings of one.
func hasSurrogate(s string) bool {
	if !utf8.ValidString(s) {
		return true
	}
	for _, r := range s {
		if r >= 0xD800 && r <= 0xDFFF {
			return true
		}
	}
	return false
}
