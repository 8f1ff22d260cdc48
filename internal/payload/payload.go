// Package payload gives ordered-fallback access to decoded webhook JSON.
//
// Provider payloads spell the same field several ways and nest it at
// different depths; callers list the candidate paths in priority order and
// take the first present value.
package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Payload is a decoded JSON object.
type Payload map[string]any

// Decode parses raw JSON keeping numbers as json.Number so ids and
// timestamps are not rounded through float64.
func Decode(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// DecodeObject parses raw JSON that must be an object.
func DecodeObject(raw []byte) (Payload, error) {
	v, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	p := AsMap(v)
	if p == nil {
		return nil, fmt.Errorf("expected JSON object, got %T", v)
	}
	return p, nil
}

// AsMap returns v as a Payload, or nil when v is not an object.
func AsMap(v any) Payload {
	switch m := v.(type) {
	case Payload:
		return m
	case map[string]any:
		return Payload(m)
	default:
		return nil
	}
}

// Get walks the given keys and returns the value found, or nil.
func (p Payload) Get(path ...string) any {
	var cur any = p
	for _, key := range path {
		m := AsMap(cur)
		if m == nil {
			return nil
		}
		v, ok := m[key]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

// Has reports whether the key path exists, even when its value is null.
func (p Payload) Has(path ...string) bool {
	if len(path) == 0 {
		return false
	}
	parent := p
	if len(path) > 1 {
		parent = AsMap(p.Get(path[:len(path)-1]...))
	}
	if parent == nil {
		return false
	}
	_, ok := parent[path[len(path)-1]]
	return ok
}

// Map returns the object at path, or nil.
func (p Payload) Map(path ...string) Payload {
	return AsMap(p.Get(path...))
}

// Slice returns the value at path as a list. A scalar becomes a one element
// list and a missing value an empty one.
func (p Payload) Slice(path ...string) []any {
	return Wrap(p.Get(path...))
}

// Str returns the value at path stringified and trimmed.
func (p Payload) Str(path ...string) string {
	return String(p.Get(path...))
}

// Strings returns every non-blank entry of the list at path.
func (p Payload) Strings(path ...string) []string {
	var out []string
	for _, v := range p.Slice(path...) {
		if s := String(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// First returns the first non-blank string among the candidate paths.
func (p Payload) First(paths ...[]string) string {
	for _, path := range paths {
		if s := p.Str(path...); s != "" {
			return s
		}
	}
	return ""
}

// Present reports whether the value at path is non-blank: not nil, not an
// empty string, and not an empty object or list.
func (p Payload) Present(path ...string) bool {
	return Present(p.Get(path...))
}

// Clone makes a deep copy.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	return AsMap(deepCopy(map[string]any(p)))
}

// Set writes value at path creating intermediate objects.
func (p Payload) Set(value any, path ...string) {
	if len(path) == 0 {
		return
	}
	cur := p
	for _, key := range path[:len(path)-1] {
		next := AsMap(cur[key])
		if next == nil {
			next = Payload{}
			cur[key] = map[string]any(next)
		}
		cur = next
	}
	cur[path[len(path)-1]] = value
}

// SetIfBlank writes value at path unless a non-blank value is already there.
func (p Payload) SetIfBlank(value any, path ...string) {
	if !p.Present(path...) && Present(value) {
		p.Set(value, path...)
	}
}

// P builds a key path.
func P(keys ...string) []string { return keys }

// Wrap turns v into a list the way the providers' optional list fields behave.
func Wrap(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	default:
		return []any{v}
	}
}

// String stringifies scalars. Objects and lists yield "".
func String(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// Present mirrors the blank semantics providers rely on.
func Present(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case map[string]any:
		return len(t) > 0
	case Payload:
		return len(t) > 0
	case []any:
		return len(t) > 0
	case bool:
		return t
	default:
		return true
	}
}

// Int converts numeric values and numeric strings.
func Int(v any) (int64, bool) {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, true
		}
		if f, err := t.Float64(); err == nil {
			return int64(f), true
		}
	case float64:
		return int64(t), true
	case int:
		return int64(t), true
	case int64:
		return t, true
	case string:
		s := strings.TrimSpace(t)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}

// Float converts numeric values and numeric strings.
func Float(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

var (
	trueStrings  = map[string]bool{"true": true, "t": true, "1": true, "yes": true, "y": true, "on": true}
	falseStrings = map[string]bool{"false": true, "f": true, "0": true, "no": true, "n": true, "off": true}
)

// Bool interprets the boolean spellings gateways use for fromMe. The second
// result is false when v carries no boolean meaning.
func Bool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		if trueStrings[s] {
			return true, true
		}
		if falseStrings[s] {
			return false, true
		}
	case json.Number, float64, int, int64:
		n, ok := Float(t)
		return n != 0, ok
	}
	return false, false
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case Payload:
		return deepCopy(map[string]any(t))
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}
