package config

import "reflect"

// Merge deep-merges objects into a new object, later objects taking priority.
//
// Nested sections merge key by key. Arrays and scalars are replaced as a
// whole. A nil value (including a nil slice or map) never overrides a
// previously set value, so an unset flag cannot erase a value from the config
// file.
func Merge(objs ...Object) Object {
	merged := Object{}
	for _, obj := range objs {
		mergeInto(merged, obj)
	}
	return merged
}

func mergeInto(dst map[string]any, src map[string]any) {
	for k, v := range src {
		if isNil(v) {
			continue
		}
		if sub, ok := asMap(v); ok {
			existing, ok := asMap(dst[k])
			if !ok {
				existing = make(map[string]any)
			}
			mergeInto(existing, sub)
			dst[k] = existing
			continue
		}
		dst[k] = cloneValue(v)
	}
}

// Overlay is a shallow merge of option maps that skips nil values. Keys set
// to nil in a later map keep the value from an earlier one.
func Overlay(maps ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, m := range maps {
		for k, v := range m {
			if isNil(v) {
				if _, ok := out[k]; !ok {
					out[k] = nil
				}
				continue
			}
			out[k] = v
		}
	}
	return out
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
