// Package data contains the native entry used by the in-memory store and the
// conversion of Go values to their native representation.
package data

import (
	"iter"
	"maps"
	"slices"
)

// Entry is a native entry: a flat map from native keys to native values.
type Entry map[string]any

// Get returns the value stored under key, or nil.
func (e Entry) Get(key string) any {
	return e[key]
}

// Set stores value under key.
func (e Entry) Set(key string, value any) {
	e[key] = value
}

// Unset removes key.
func (e Entry) Unset(key string) {
	delete(e, key)
}

// Has reports whether key is set, even to nil.
func (e Entry) Has(key string) bool {
	_, ok := e[key]
	return ok
}

// Keys returns the keys in lexical order.
func (e Entry) Keys() iter.Seq[string] {
	return slices.Values(slices.Sorted(maps.Keys(e)))
}

// Len returns the number of keys.
func (e Entry) Len() int {
	return len(e)
}

// Clone returns a deep copy of the entry. Nested lists and entries are
// copied, other values are shared.
func (e Entry) Clone() Entry {
	if e == nil {
		return nil
	}
	res := make(Entry, len(e))
	for k, v := range e {
		res[k] = cloneValue(v)
	}
	return res
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Entry:
		return t.Clone()
	case map[string]any:
		return Entry(t).Clone()
	case []any:
		res := make([]any, len(t))
		for i, item := range t {
			res[i] = cloneValue(item)
		}
		return res
	case []byte:
		return slices.Clone(t)
	default:
		return v
	}
}
