package data

import (
	"encoding"
	"reflect"
	"time"

	goreflect "github.com/goccy/go-reflect"
)

var timeTyp = reflect.TypeFor[time.Time]()

// Native converts a Go value to its native form. Signed integers become
// int64, unsigned integers uint64, floats float64, named basic types their
// underlying type, slices and arrays []any, and string keyed maps [Entry].
// Arrays and structs implementing [encoding.TextMarshaler], such as UUIDs,
// become their text. Times, byte slices and values of other kinds are
// returned unchanged.
func Native(v any) any {
	switch t := v.(type) {
	case nil, string, bool, int64, uint64, float64, time.Time, []byte:
		return v
	case int:
		return int64(t)
	case []any:
		res := make([]any, len(t))
		for i, item := range t {
			res[i] = Native(item)
		}
		return res
	}
	return native(goreflect.ToReflectValue(goreflect.ValueNoEscapeOf(v)))
}

func native(r reflect.Value) any {
	for r.Kind() == reflect.Pointer || r.Kind() == reflect.Interface {
		if r.IsNil() {
			return nil
		}
		r = r.Elem()
	}
	if k := r.Kind(); (k == reflect.Array || k == reflect.Struct) && r.Type() != timeTyp && r.CanInterface() {
		if m, ok := r.Interface().(encoding.TextMarshaler); ok {
			if text, err := m.MarshalText(); err == nil {
				return string(text)
			}
		}
	}
	switch r.Kind() {
	case reflect.Invalid:
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return r.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return r.Uint()
	case reflect.Float32, reflect.Float64:
		return r.Float()
	case reflect.String:
		return r.String()
	case reflect.Bool:
		return r.Bool()
	case reflect.Slice:
		if r.IsNil() {
			return nil
		}
		if r.Type().Elem().Kind() == reflect.Uint8 {
			return r.Bytes()
		}
		fallthrough
	case reflect.Array:
		res := make([]any, r.Len())
		for i := range res {
			res[i] = native(r.Index(i))
		}
		return res
	case reflect.Map:
		if r.IsNil() || r.Type().Key().Kind() != reflect.String {
			return r.Interface()
		}
		res := make(Entry, r.Len())
		iter := r.MapRange()
		for iter.Next() {
			res[iter.Key().String()] = native(iter.Value())
		}
		return res
	case reflect.Struct:
		if r.Type() == timeTyp {
			return r.Interface()
		}
		if r.Type().ConvertibleTo(timeTyp) {
			return r.Convert(timeTyp).Interface()
		}
		return r.Interface()
	default:
		return r.Interface()
	}
}
