package config

import (
	"sort"
	"strings"
)

// Object is a configuration document addressable by dotted path.
//
// Nested sections are plain map[string]any values so that documents decoded
// by viper or yaml.v3 can be used without conversion.
type Object map[string]any

// Get returns the value at path.
func (o Object) Get(path string) (any, bool) {
	var cur any = map[string]any(o)
	for _, key := range splitPath(path) {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set stores value at path, creating intermediate sections as needed.
func (o Object) Set(path string, value any) {
	keys := splitPath(path)
	cur := map[string]any(o)
	for _, key := range keys[:len(keys)-1] {
		next, ok := asMap(cur[key])
		if !ok {
			next = make(map[string]any)
			cur[key] = next
		}
		cur = next
	}
	cur[keys[len(keys)-1]] = value
}

// Delete removes the value at path. Empty parent sections are left in place.
func (o Object) Delete(path string) {
	keys := splitPath(path)
	cur := map[string]any(o)
	for _, key := range keys[:len(keys)-1] {
		next, ok := asMap(cur[key])
		if !ok {
			return
		}
		cur = next
	}
	delete(cur, keys[len(keys)-1])
}

// Has reports whether path is set to a non-nil value.
func (o Object) Has(path string) bool {
	v, ok := o.Get(path)
	return ok && !isNil(v)
}

// Clone returns a deep copy of the object.
func (o Object) Clone() Object {
	if o == nil {
		return nil
	}
	return Object(cloneMap(o))
}

// Flatten returns every leaf value keyed by its dotted path. Arrays are leaves.
func (o Object) Flatten() map[string]any {
	out := make(map[string]any)
	flatten("", o, out)
	return out
}

// Paths returns the sorted leaf paths of the object.
func (o Object) Paths() []string {
	flat := o.Flatten()
	paths := make([]string, 0, len(flat))
	for p := range flat {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// String returns the string at path, or "".
func (o Object) String(path string) string {
	v, _ := o.Get(path)
	s, _ := v.(string)
	return s
}

// Bool returns the boolean at path, or false.
func (o Object) Bool(path string) bool {
	v, _ := o.Get(path)
	b, _ := v.(bool)
	return b
}

// Int returns the integer at path, or 0. Integral floats decoded from JSON are
// accepted.
func (o Object) Int(path string) int {
	v, _ := o.Get(path)
	n, _ := toInt(v)
	return n
}

// Strings returns the string list at path. A single string is returned as a
// one-element list.
func (o Object) Strings(path string) []string {
	v, _ := o.Get(path)
	switch val := v.(type) {
	case string:
		return []string{val}
	case []string:
		return append([]string(nil), val...)
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Section returns a copy of the section at path, or an empty map.
func (o Object) Section(path string) map[string]any {
	v, _ := o.Get(path)
	m, ok := asMap(v)
	if !ok {
		return map[string]any{}
	}
	return cloneMap(m)
}

func splitPath(path string) []string {
	return strings.Split(path, ".")
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Object:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			if ks, ok := k.(string); ok {
				out[ks] = val
			}
		}
		return out, true
	default:
		return nil, false
	}
}

func cloneValue(v any) any {
	if m, ok := asMap(v); ok {
		return cloneMap(m)
	}
	switch val := v.(type) {
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func flatten(prefix string, m map[string]any, out map[string]any) {
	for k, v := range m {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if sub, ok := asMap(v); ok && len(sub) > 0 {
			flatten(path, sub, out)
			continue
		}
		out[path] = v
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case float32:
		if float32(int(n)) == n {
			return int(n), true
		}
	case float64:
		if float64(int(n)) == n {
			return int(n), true
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	if n, ok := toInt(v); ok {
		return float64(n), true
	}
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
