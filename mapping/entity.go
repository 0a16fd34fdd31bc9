package mapping

import (
	"reflect"
	"strings"
)

// DiscriminatorKey is the native key holding the discriminator of entries
// that belong to an inheritance hierarchy.
const DiscriminatorKey = "_class"

// Identity describes the identifier of an entity.
type Identity struct {
	name  string
	typ   reflect.Type
	key   string
	index []int
}

// Name returns the identifier field name.
func (i *Identity) Name() string { return i.name }

// Type returns the identifier field type.
func (i *Identity) Type() reflect.Type { return i.typ }

// Key returns the native key name of the identifier.
func (i *Identity) Key() string { return i.key }

// FieldIndex returns the struct field index path of the identifier.
func (i *Identity) FieldIndex() []int { return i.index }

// ClassMapping is the resolved mapping configuration of an entity.
type ClassMapping struct {
	// Family is the store grouping name (table, collection, hash prefix).
	// Defaults to the lower-cased type name of the root entity.
	Family   string
	Keyspace string
	// Discriminator identifies the entity inside its hierarchy. Defaults
	// to the type name.
	Discriminator string
}

// Entity describes a persistent type.
type Entity struct {
	name       string
	typ        reflect.Type
	identity   *Identity
	version    *Simple
	properties []Property
	byName     map[string]Property
	mapping    ClassMapping
	parentType reflect.Type
	parent     *Entity
	children   []*Entity
	embedded   bool
	ctx        *Context
}

// Name returns the entity name, which is the Go type name.
func (e *Entity) Name() string { return e.name }

// Type returns the struct type of the entity.
func (e *Entity) Type() reflect.Type { return e.typ }

// Identity returns the identifier descriptor. It is nil only for embedded
// entities.
func (e *Entity) Identity() *Identity { return e.identity }

// Version returns the optimistic locking version property, or nil.
func (e *Entity) Version() *Simple { return e.version }

// IsVersioned reports whether the entity has a version property.
func (e *Entity) IsVersioned() bool { return e.version != nil }

// Properties returns the persistent properties in declaration order,
// without the identifier.
func (e *Entity) Properties() []Property { return e.properties }

// Property returns the property with the given name, or nil.
func (e *Entity) Property(name string) Property { return e.byName[name] }

// Associations returns the association properties.
func (e *Entity) Associations() []Property {
	var res []Property
	for _, p := range e.properties {
		switch p.(type) {
		case *ToOne, *OneToMany:
			res = append(res, p)
		}
	}
	return res
}

// Mapping returns the class mapping.
func (e *Entity) Mapping() ClassMapping { return e.mapping }

// Family returns the family of the root entity.
func (e *Entity) Family() string {
	root := e.Root()
	if root.mapping.Family != "" {
		return root.mapping.Family
	}
	return strings.ToLower(root.name)
}

// Keyspace returns the configured keyspace.
func (e *Entity) Keyspace() string { return e.Root().mapping.Keyspace }

// Parent returns the parent entity, or nil for roots.
func (e *Entity) Parent() *Entity { return e.parent }

// Root returns the top-most entity of the hierarchy.
func (e *Entity) Root() *Entity {
	r := e
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// IsRoot reports whether the entity has no parent.
func (e *Entity) IsRoot() bool { return e.parent == nil }

// Children returns the direct sub entities.
func (e *Entity) Children() []*Entity { return e.children }

// Discriminator returns the value stored under [DiscriminatorKey].
func (e *Entity) Discriminator() string {
	if e.mapping.Discriminator != "" {
		return e.mapping.Discriminator
	}
	return e.name
}

// HasDiscriminator reports whether entries of the entity carry a
// discriminator, which happens for any member of a hierarchy.
func (e *Entity) HasDiscriminator() bool {
	return e.parent != nil || len(e.children) > 0
}

// Descendant returns the entity of the hierarchy rooted at e with the given
// discriminator, or nil.
func (e *Entity) Descendant(discriminator string) *Entity {
	if e.Discriminator() == discriminator {
		return e
	}
	for _, c := range e.children {
		if d := c.Descendant(discriminator); d != nil {
			return d
		}
	}
	return nil
}

// IsEmbedded reports whether the entity only exists inside other entities.
func (e *Entity) IsEmbedded() bool { return e.embedded }

// Context returns the mapping context the entity belongs to.
func (e *Entity) Context() *Context { return e.ctx }

// NewInstance returns a pointer to a new zero value of the entity type.
func (e *Entity) NewInstance() any {
	return reflect.New(e.typ).Interface()
}
