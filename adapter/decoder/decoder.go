// Package decoder contains the default [domain.Decoder] implementation.
package decoder

import (
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/mapping"
)

// Decoder implements domain.Decoder. Values that are directly assignable to
// the target are set without conversion; other values go through
// mapstructure with weak typing, so native strings, numbers and times
// returned by stores fit the field types they were written from.
type Decoder struct {
	hook mapstructure.DecodeHookFunc
}

// NewDecoder returns a new implementation of domain.Decoder.
func NewDecoder() domain.Decoder {
	return &Decoder{
		hook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.TextUnmarshallerHookFunc(),
			numberToTimeHook,
		),
	}
}

// Decode implements domain.Decoder.
func (d *Decoder) Decode(src any, tgt any) error {
	if tgt == nil {
		return domain.ErrTargetNil
	}
	rv := reflect.ValueOf(tgt)
	if rv.Kind() != reflect.Pointer {
		return domain.ErrNonPointer
	}
	if rv.IsNil() {
		return domain.ErrTargetNil
	}
	elem := rv.Elem()
	if src == nil {
		elem.SetZero()
		return nil
	}
	if sv := reflect.ValueOf(src); sv.Type().AssignableTo(elem.Type()) {
		elem.Set(sv)
		return nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          mapping.TagName,
		Result:           tgt,
		WeaklyTypedInput: true,
		DecodeHook:       d.hook,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(src); err != nil {
		return domain.ErrDecode{Source: src, Target: elem.Interface()}
	}
	return nil
}

// numberToTimeHook reads integers as unix milliseconds, which is how stores
// without a time type keep them.
func numberToTimeHook(from reflect.Type, to reflect.Type, v any) (any, error) {
	if to != reflect.TypeFor[time.Time]() {
		return v, nil
	}
	switch from.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return time.UnixMilli(reflect.ValueOf(v).Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return time.UnixMilli(int64(reflect.ValueOf(v).Uint())), nil
	case reflect.Float32, reflect.Float64:
		return time.UnixMilli(int64(reflect.ValueOf(v).Float())), nil
	default:
		return v, nil
	}
}
