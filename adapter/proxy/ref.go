// Package proxy contains the lazy reference used for to-one associations
// and the registry that creates them.
package proxy

import (
	"context"
	"reflect"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// Ref is a to-one association value. It holds either a resolved value or an
// unresolved key with the resolver that loads it on first use. The zero Ref
// is a nil reference.
//
// A Ref must not be used by multiple goroutines at once.
type Ref[T any] struct {
	key      any
	value    T
	resolved bool
	resolver domain.Resolver
}

// To returns a resolved reference to v.
func To[T any](v T) Ref[T] {
	return Ref[T]{value: v, resolved: true}
}

// Get returns the referenced value, loading it on first call.
func (r *Ref[T]) Get(ctx context.Context) (T, error) {
	if r.resolved || r.resolver == nil {
		return r.value, nil
	}
	v, err := r.resolver(ctx, r.key)
	if err != nil {
		var zero T
		return zero, err
	}
	if err := r.SetValue(v); err != nil {
		var zero T
		return zero, err
	}
	return r.value, nil
}

// Set replaces the referenced value.
func (r *Ref[T]) Set(v T) {
	r.value = v
	r.resolved = true
	r.resolver = nil
	r.key = nil
}

// Key implements [domain.Reference]. It returns the key the reference was
// bound to, or nil.
func (r *Ref[T]) Key() any { return r.key }

// IsResolved implements [domain.Reference].
func (r *Ref[T]) IsResolved() bool { return r.resolved }

// IsNil reports whether the reference points nowhere.
func (r *Ref[T]) IsNil() bool {
	if r.resolved {
		return isNil(r.value)
	}
	return r.key == nil
}

// Value implements [domain.Reference].
func (r *Ref[T]) Value() any {
	if !r.resolved || isNil(r.value) {
		return nil
	}
	return r.value
}

// SetValue implements [domain.Reference].
func (r *Ref[T]) SetValue(v any) error {
	if v == nil {
		var zero T
		r.Set(zero)
		return nil
	}
	t, ok := v.(T)
	if !ok {
		return domain.ErrElementType{Expected: reflect.TypeFor[T]().String(), Value: v}
	}
	r.Set(t)
	return nil
}

// Bind implements [domain.Reference].
func (r *Ref[T]) Bind(key any, resolver domain.Resolver) {
	var zero T
	r.key = key
	r.value = zero
	r.resolved = false
	r.resolver = resolver
}

// ReferencedType returns the type of the referenced value.
func (r *Ref[T]) ReferencedType() reflect.Type {
	return reflect.TypeFor[T]()
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	default:
		return false
	}
}
