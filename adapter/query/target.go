package query

import (
	"reflect"
	"strings"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/entityaccess"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/proxy"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/mapping"
)

// Target is what criteria are evaluated against: a live instance or a
// native entry. Values are native values, and to-one associations are
// represented by the identifier of the associated entity.
type Target interface {
	Identifier() any
	// Value returns the native value of a property. Properties of embedded
	// values are addressed as "embedded.property".
	Value(property string) any
}

type objectTarget struct {
	access  domain.EntityAccess
	factory *proxy.Factory
}

// ObjectTarget returns a [Target] reading the instance behind access.
func ObjectTarget(access domain.EntityAccess, factory *proxy.Factory) Target {
	if factory == nil {
		factory = proxy.NewFactory()
	}
	return objectTarget{access: access, factory: factory}
}

func (t objectTarget) Identifier() any {
	return data.Native(t.access.Identifier())
}

func (t objectTarget) Value(property string) any {
	entity := t.access.Entity()
	name, rest, nested := strings.Cut(property, ".")
	if id := entity.Identity(); id != nil && id.Name() == name && !nested {
		return t.Identifier()
	}
	p := entity.Property(name)
	if p == nil {
		return nil
	}
	field := t.access.Field(name)
	if !field.IsValid() {
		return nil
	}
	switch prop := p.(type) {
	case *mapping.ToOne:
		return t.associationKey(prop, field)
	case *mapping.Embedded:
		if !nested {
			return data.Native(t.access.Get(name))
		}
		return t.embeddedValue(prop, field, rest)
	default:
		return data.Native(t.access.Get(name))
	}
}

func (t objectTarget) associationKey(p *mapping.ToOne, field reflect.Value) any {
	if ref := t.factory.Reference(field); ref != nil {
		if !ref.IsResolved() {
			return data.Native(ref.Key())
		}
		return identifierOf(p.AssociatedEntity(), ref.Value())
	}
	if field.Kind() == reflect.Pointer && field.IsNil() {
		return nil
	}
	return identifierOf(p.AssociatedEntity(), field.Interface())
}

func (t objectTarget) embeddedValue(p *mapping.Embedded, field reflect.Value, rest string) any {
	if field.Kind() == reflect.Pointer {
		if field.IsNil() {
			return nil
		}
	} else {
		field = field.Addr()
	}
	access, err := entityaccess.NewEntityAccess(p.Entity(), field.Interface())
	if err != nil {
		return nil
	}
	return objectTarget{access: access, factory: t.factory}.Value(rest)
}

func identifierOf(entity *mapping.Entity, obj any) any {
	if obj == nil || entity == nil {
		return nil
	}
	access, err := entityaccess.NewEntityAccess(entity, obj)
	if err != nil {
		return nil
	}
	return data.Native(access.Identifier())
}

type entryTarget struct {
	entity *mapping.Entity
	key    any
	entry  data.Entry
}

// EntryTarget returns a [Target] reading a native entry of entity. Property
// names are translated to native keys.
func EntryTarget(entity *mapping.Entity, key any, entry data.Entry) Target {
	return entryTarget{entity: entity, key: key, entry: entry}
}

func (t entryTarget) Identifier() any { return data.Native(t.key) }

func (t entryTarget) Value(property string) any {
	if id := t.entity.Identity(); id != nil && id.Name() == property {
		return t.Identifier()
	}
	return t.entry.Get(NativeKey(t.entity, property))
}

// NativeKey translates a property path to the native key it is stored
// under. Unknown properties are returned unchanged.
func NativeKey(entity *mapping.Entity, property string) string {
	name, rest, nested := strings.Cut(property, ".")
	p := entity.Property(name)
	if p == nil {
		return property
	}
	if e, ok := p.(*mapping.Embedded); ok && nested {
		return p.Key() + "." + NativeKey(e.Entity(), rest)
	}
	return p.Key()
}
