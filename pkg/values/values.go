// Package values provides typed access to decoded settings trees.
//
// Settings arrive as generic JSON/YAML documents: map[string]interface{} objects,
// []interface{} sequences and scalars. Numbers may be float64 (encoding/json),
// int (yaml.v3) or json.Number depending on the decoder, so every numeric
// accessor accepts all of them.
package values

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Clone deep-copies maps and slices. Scalars are returned as-is.
func Clone(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return CloneMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = Clone(item)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, item := range t {
			if ks, ok := k.(string); ok {
				out[ks] = Clone(item)
			}
		}
		return out
	default:
		return v
	}
}

// CloneMap deep-copies an object. A nil map yields nil.
func CloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = Clone(v)
	}
	return out
}

// Map returns v as an object.
func Map(v interface{}) (map[string]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	return m, ok
}

// Slice returns v as a sequence.
func Slice(v interface{}) ([]interface{}, bool) {
	s, ok := v.([]interface{})
	return s, ok
}

// Maps returns the object elements of a sequence, skipping anything else.
func Maps(v interface{}) []map[string]interface{} {
	items, _ := v.([]interface{})
	out := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

// Strings returns the string elements of a sequence, skipping anything else.
func Strings(v interface{}) []string {
	items, _ := v.([]interface{})
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// String returns v as a string.
func String(v interface{}) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// Bool returns v as a bool.
func Bool(v interface{}) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

// Int returns v as an int when it is a whole number.
func Int(v interface{}) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case int32:
		return int(t), true
	case uint64:
		return int(t), true
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return int(t), true
	case json.Number:
		i, err := strconv.Atoi(t.String())
		return i, err == nil
	default:
		return 0, false
	}
}

// Number returns v as a float64.
func Number(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Get walks a dotted path through nested objects.
func Get(m map[string]interface{}, path string) interface{} {
	var cur interface{} = m
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur = obj[part]
	}
	return cur
}

// GetString returns the string at path or "".
func GetString(m map[string]interface{}, path string) string {
	s, _ := Get(m, path).(string)
	return s
}

// GetMap returns the object at path or nil.
func GetMap(m map[string]interface{}, path string) map[string]interface{} {
	obj, _ := Get(m, path).(map[string]interface{})
	return obj
}

// GetBool returns the bool at path or false.
func GetBool(m map[string]interface{}, path string) bool {
	b, _ := Get(m, path).(bool)
	return b
}

// GetInt returns the int at path or def.
func GetInt(m map[string]interface{}, path string, def int) int {
	if i, ok := Int(Get(m, path)); ok {
		return i
	}
	return def
}

// Has reports whether key is present in m, even with a nil value.
func Has(m map[string]interface{}, key string) bool {
	if m == nil {
		return false
	}
	_, ok := m[key]
	return ok
}

// IsBlank reports whether v is nil, an empty/whitespace string, or an empty container.
func IsBlank(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []interface{}:
		return len(t) == 0
	case map[string]interface{}:
		return len(t) == 0
	default:
		return false
	}
}

// ToAny converts a string slice to a sequence.
func ToAny(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// FromMaps converts object slices to a sequence.
func FromMaps(ms []map[string]interface{}) []interface{} {
	out := make([]interface{}, len(ms))
	for i, m := range ms {
		out[i] = m
	}
	return out
}

// Normalize converts decoder-specific shapes (map[interface{}]interface{} from YAML,
// []map[string]interface{} built in Go) into plain map[string]interface{} / []interface{} trees.
func Normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, item := range t {
			out[k] = Normalize(item)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, item := range t {
			if ks, ok := k.(string); ok {
				out[ks] = Normalize(item)
			}
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = Normalize(item)
		}
		return out
	case []map[string]interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = Normalize(item)
		}
		return out
	case []string:
		return ToAny(t)
	default:
		return v
	}
}
