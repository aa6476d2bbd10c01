// Package sanitize HTML-escapes every string in a decoded JSON document
// before it is persisted.
package sanitize

import (
	"html"
	"strings"
)

// Kind classifies a decoded JSON value.
type Kind int

const (
	Other Kind = iota
	Object
	Array
	String
)

func (k Kind) String() string {
	switch k {
	case Object:
		return "object"
	case Array:
		return "array"
	case String:
		return "string"
	default:
		return "other"
	}
}

// KindOf classifies v as produced by encoding/json into an any. Numbers
// decoded with UseNumber are json.Number and count as Other.
func KindOf(v any) Kind {
	switch v.(type) {
	case map[string]any:
		return Object
	case []any:
		return Array
	case string:
		return String
	default:
		return Other
	}
}

// markup is the set that triggers escaping
const markup = "<>&"

// Value returns v with every string that contains markup HTML-escaped, and
// whether anything changed. Object keys and array order are kept. The input
// is not modified.
func Value(v any) (any, bool) {
	switch KindOf(v) {
	case Object:
		m := v.(map[string]any)
		out := make(map[string]any, len(m))
		changed := false
		for k, e := range m {
			s, c := Value(e)
			out[k] = s
			changed = changed || c
		}
		return out, changed
	case Array:
		a := v.([]any)
		out := make([]any, len(a))
		changed := false
		for i, e := range a {
			s, c := Value(e)
			out[i] = s
			changed = changed || c
		}
		return out, changed
	case String:
		return stringValue(v.(string))
	default:
		return v, false
	}
}

func stringValue(s string) (string, bool) {
	if !strings.ContainsAny(s, markup) {
		return s, false
	}
	return html.EscapeString(s), true
}
