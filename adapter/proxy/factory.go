package proxy

import (
	"fmt"
	"reflect"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

var referenceIface = reflect.TypeFor[domain.Reference]()

// Factory creates and inspects lazy references. It caches, per field type,
// whether the type is a reference and how to allocate it.
type Factory struct {
	types *xsync.MapOf[reflect.Type, refType]
}

type refType struct {
	ok      bool
	pointer bool
	alloc   reflect.Type
}

// NewFactory returns an empty Factory.
func NewFactory() *Factory {
	return &Factory{types: xsync.NewMapOf[reflect.Type, refType]()}
}

func (f *Factory) lookup(typ reflect.Type) refType {
	rt, _ := f.types.LoadOrCompute(typ, func() refType {
		switch {
		case typ.Kind() == reflect.Pointer && typ.Implements(referenceIface):
			return refType{ok: true, pointer: true, alloc: typ.Elem()}
		case typ.Kind() != reflect.Pointer && reflect.PointerTo(typ).Implements(referenceIface):
			return refType{ok: true, alloc: typ}
		default:
			return refType{}
		}
	})
	return rt
}

// IsReferenceType reports whether values of typ are lazy references.
func (f *Factory) IsReferenceType(typ reflect.Type) bool {
	return f.lookup(typ).ok
}

// IsProxy reports whether obj is an unresolved reference.
func (f *Factory) IsProxy(obj any) bool {
	r, ok := obj.(domain.Reference)
	return ok && !r.IsResolved()
}

// Identifier returns the key of an unresolved reference, or nil.
func (f *Factory) Identifier(obj any) any {
	if r, ok := obj.(domain.Reference); ok && !r.IsResolved() {
		return r.Key()
	}
	return nil
}

// Unwrap returns the value of a resolved reference, obj itself when it is
// not a reference, and nil for unresolved references.
func (f *Factory) Unwrap(obj any) any {
	r, ok := obj.(domain.Reference)
	if !ok {
		return obj
	}
	return r.Value()
}

// Create returns a reference of type typ bound to key. If typ is a pointer
// type the result is a pointer, otherwise it is a value.
func (f *Factory) Create(typ reflect.Type, key any, resolver domain.Resolver) (any, error) {
	rv, err := f.New(typ, key, resolver)
	if err != nil {
		return nil, err
	}
	return rv.Interface(), nil
}

// New is like [Factory.Create] but returns a reflect.Value, ready to be set
// into a field of type typ.
func (f *Factory) New(typ reflect.Type, key any, resolver domain.Resolver) (reflect.Value, error) {
	rt := f.lookup(typ)
	if !rt.ok {
		return reflect.Value{}, fmt.Errorf("%s is not a reference type", typ)
	}
	p := reflect.New(rt.alloc)
	p.Interface().(domain.Reference).Bind(key, resolver)
	if rt.pointer {
		return p, nil
	}
	return p.Elem(), nil
}

// Reference returns the [domain.Reference] held in field, which must be
// addressable when it is not a pointer. It returns nil for nil pointers and
// for fields that are not references.
func (f *Factory) Reference(field reflect.Value) domain.Reference {
	rt := f.lookup(field.Type())
	switch {
	case !rt.ok:
		return nil
	case rt.pointer:
		if field.IsNil() {
			return nil
		}
		return field.Interface().(domain.Reference)
	case field.CanAddr():
		return field.Addr().Interface().(domain.Reference)
	default:
		return nil
	}
}
