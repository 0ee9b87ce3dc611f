package maps

import stdmaps "maps"

// Clone returns a shallow clone of the input map.
// It returns nil for nil or empty input; callers that need a writable map
// allocate one themselves.
func Clone[K comparable, V any](m map[K]V) map[K]V {
	if len(m) == 0 {
		return nil
	}
	return stdmaps.Clone(m)
}

// DeepClone copies a decoded JSON tree. Nested objects and arrays are
// copied, other values are shared. A nil map stays nil.
func DeepClone(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return DeepClone(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
