// Package entityaccess reads and writes the properties of live entity
// instances by name.
package entityaccess

import (
	"fmt"
	"reflect"

	goreflect "github.com/goccy/go-reflect"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/decoder"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/mapping"
)

// EntityAccess implements [domain.EntityAccess] over a pointer to a struct.
type EntityAccess struct {
	entity  *mapping.Entity
	obj     any
	value   reflect.Value
	decoder domain.Decoder
}

// NewEntityAccess returns an accessor for obj, which must be a non-nil
// pointer to a value of the entity type.
func NewEntityAccess(entity *mapping.Entity, obj any, opts ...Option) (*EntityAccess, error) {
	if obj == nil {
		return nil, domain.ErrTargetNil
	}
	rv := goreflect.ToReflectValue(goreflect.ValueNoEscapeOf(obj))
	if rv.Kind() != reflect.Pointer {
		return nil, fmt.Errorf("%w: %T", domain.ErrNonPointer, obj)
	}
	if rv.IsNil() {
		return nil, domain.ErrTargetNil
	}
	if rv.Elem().Type() != entity.Type() {
		return nil, fmt.Errorf("%w: %T is not %s", domain.ErrNotPersistent, obj, entity.Name())
	}
	a := &EntityAccess{
		entity:  entity,
		obj:     obj,
		value:   rv.Elem(),
		decoder: decoder.NewDecoder(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Entity implements [domain.EntityAccess].
func (a *EntityAccess) Entity() *mapping.Entity { return a.entity }

// Object implements [domain.EntityAccess].
func (a *EntityAccess) Object() any { return a.obj }

// Identifier implements [domain.EntityAccess]. Zero identifiers are reported
// as nil, which marks the instance as new.
func (a *EntityAccess) Identifier() any {
	id := a.entity.Identity()
	if id == nil {
		return nil
	}
	f := a.field(id.FieldIndex())
	if !f.IsValid() || f.IsZero() {
		return nil
	}
	return indirect(f)
}

// SetIdentifier implements [domain.EntityAccess].
func (a *EntityAccess) SetIdentifier(value any) error {
	id := a.entity.Identity()
	if id == nil {
		return mapping.ErrUnknownIdentifier
	}
	return a.set(a.field(id.FieldIndex()), value)
}

// Get implements [domain.EntityAccess]. Nil pointers are returned as nil.
func (a *EntityAccess) Get(name string) any {
	f := a.Field(name)
	if !f.IsValid() {
		return nil
	}
	return indirectPointer(f)
}

// Set implements [domain.EntityAccess].
func (a *EntityAccess) Set(name string, value any) error {
	f := a.Field(name)
	if !f.IsValid() {
		return fmt.Errorf("%s has no property %s", a.entity.Name(), name)
	}
	return a.set(f, value)
}

// Field implements [domain.EntityAccess]. It returns the zero Value when the
// entity has no property with the given name.
func (a *EntityAccess) Field(name string) reflect.Value {
	if id := a.entity.Identity(); id != nil && id.Name() == name {
		return a.field(id.FieldIndex())
	}
	p := a.entity.Property(name)
	if p == nil {
		return reflect.Value{}
	}
	return a.field(p.FieldIndex())
}

func (a *EntityAccess) field(index []int) reflect.Value {
	return FieldByIndex(a.value, index)
}

func (a *EntityAccess) set(f reflect.Value, value any) error {
	return Assign(f, value, a.decoder)
}

// Assign sets the settable field f to value. Values that are neither
// assignable nor numerically convertible to the field type go through d.
func Assign(f reflect.Value, value any, d domain.Decoder) error {
	if value == nil {
		f.SetZero()
		return nil
	}
	rv := reflect.ValueOf(value)
	switch {
	case rv.Type().AssignableTo(f.Type()):
		f.Set(rv)
		return nil
	case f.Kind() == reflect.Pointer && rv.Type().AssignableTo(f.Type().Elem()):
		p := reflect.New(f.Type().Elem())
		p.Elem().Set(rv)
		f.Set(p)
		return nil
	case rv.Type().ConvertibleTo(f.Type()) && rv.Kind() != reflect.String && f.Kind() != reflect.String:
		f.Set(rv.Convert(f.Type()))
		return nil
	default:
		return d.Decode(value, f.Addr().Interface())
	}
}

// FieldByIndex returns the nested field of v, allocating nil embedded
// pointers on the way when they can be set.
func FieldByIndex(v reflect.Value, index []int) reflect.Value {
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				if !v.CanSet() {
					return reflect.Value{}
				}
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v
}

func indirect(f reflect.Value) any {
	for f.Kind() == reflect.Pointer {
		if f.IsNil() {
			return nil
		}
		f = f.Elem()
	}
	return f.Interface()
}

func indirectPointer(f reflect.Value) any {
	switch f.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface:
		if f.IsNil() {
			return nil
		}
	}
	return f.Interface()
}
