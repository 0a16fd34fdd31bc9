package mapping

import (
	"reflect"
)

// FetchStrategy tells whether an association is loaded together with its
// owner or on first access.
type FetchStrategy uint8

const (
	// FetchLazy defers loading until the association is accessed.
	FetchLazy FetchStrategy = iota
	// FetchEager loads the association while hydrating the owner.
	FetchEager
)

// CollectionKind is the container used by a to-many association.
type CollectionKind uint8

const (
	// CollectionSlice is a plain slice, always loaded eagerly.
	CollectionSlice CollectionKind = iota
	// CollectionList is an ordered persistent collection.
	CollectionList
	// CollectionSet is a persistent collection without duplicates.
	CollectionSet
	// CollectionSortedSet is a persistent set kept in element order.
	CollectionSortedSet
)

// PropertyMapping is the resolved mapping configuration of a single property.
type PropertyMapping struct {
	// Key is the native key name. Defaults to the property name.
	Key             string
	Index           bool
	Fetch           FetchStrategy
	Cascade         string
	CascadeList     []CascadeType
	CascadeValidate string
	OrphanRemoval   bool
	// Required makes a nil to-one association a data-integrity error.
	Required bool
}

// ReferenceType is implemented by field types holding a lazy reference to
// another entity.
type ReferenceType interface {
	ReferencedType() reflect.Type
}

// CollectionType is implemented by persistent collection field types.
type CollectionType interface {
	ElementType() reflect.Type
	CollectionKind() CollectionKind
}

// CustomType is implemented by field types that know their own native
// representation. The pointer type must implement [CustomTypeUnmarshaler].
type CustomType interface {
	MarshalNative() (any, error)
}

// CustomTypeUnmarshaler restores a [CustomType] from its native form.
type CustomTypeUnmarshaler interface {
	UnmarshalNative(native any) error
}

// Property is a persistent property of an [Entity]. The set of
// implementations is closed: [*Simple], [*Basic], [*Custom], [*TenantID],
// [*Embedded], [*ToOne] and [*OneToMany]. Use [Property.Accept] with a
// [PropertyVisitor] to handle every kind.
type Property interface {
	Name() string
	Type() reflect.Type
	Owner() *Entity
	Mapping() PropertyMapping
	// Key returns the native key name.
	Key() string
	// FieldIndex returns the struct field index path.
	FieldIndex() []int
	Accept(v PropertyVisitor) error
	isProperty()
}

// PropertyVisitor has one method per property kind. Adding a kind adds a
// method, so every visitor has to handle it.
type PropertyVisitor interface {
	VisitSimple(p *Simple) error
	VisitBasic(p *Basic) error
	VisitCustom(p *Custom) error
	VisitTenantID(p *TenantID) error
	VisitEmbedded(p *Embedded) error
	VisitToOne(p *ToOne) error
	VisitOneToMany(p *OneToMany) error
}

type property struct {
	name    string
	typ     reflect.Type
	owner   *Entity
	mapping PropertyMapping
	index   []int
}

func (p *property) Name() string             { return p.name }
func (p *property) Type() reflect.Type       { return p.typ }
func (p *property) Owner() *Entity           { return p.owner }
func (p *property) Mapping() PropertyMapping { return p.mapping }
func (p *property) FieldIndex() []int        { return p.index }
func (p *property) isProperty()              {}

func (p *property) Key() string {
	if p.mapping.Key != "" {
		return p.mapping.Key
	}
	return p.name
}

// Simple is a scalar property stored as is.
type Simple struct{ property }

// Accept implements [Property].
func (p *Simple) Accept(v PropertyVisitor) error { return v.VisitSimple(p) }

// Basic is a collection of scalar values.
type Basic struct {
	property
	elem reflect.Type
}

// ElemType returns the type of the collection elements.
func (p *Basic) ElemType() reflect.Type { return p.elem }

// Accept implements [Property].
func (p *Basic) Accept(v PropertyVisitor) error { return v.VisitBasic(p) }

// Custom is a property whose type implements [CustomType].
type Custom struct{ property }

// Accept implements [Property].
func (p *Custom) Accept(v PropertyVisitor) error { return v.VisitCustom(p) }

// TenantID is the property holding the tenant the entity belongs to.
type TenantID struct{ property }

// Accept implements [Property].
func (p *TenantID) Accept(v PropertyVisitor) error { return v.VisitTenantID(p) }

// Embedded is a struct stored inside its owner's native entry.
type Embedded struct {
	property
	entity  *Entity
	pointer bool
}

// Entity returns the metadata of the embedded type.
func (p *Embedded) Entity() *Entity { return p.entity }

// IsPointer reports whether the field is a pointer to the embedded struct.
func (p *Embedded) IsPointer() bool { return p.pointer }

// Accept implements [Property].
func (p *Embedded) Accept(v PropertyVisitor) error { return v.VisitEmbedded(p) }

// ToOne is a single valued association.
type ToOne struct {
	Association
	reference         bool
	foreignKeyInChild bool
}

// IsReference reports whether the field holds a lazy reference rather than
// a direct pointer. Direct pointers are always fetched eagerly.
func (p *ToOne) IsReference() bool { return p.reference }

// ForeignKeyInChild reports whether the associated entity stores the key of
// the owner instead of the owner storing the key of the associated entity.
func (p *ToOne) ForeignKeyInChild() bool { return p.foreignKeyInChild }

// IsLazy reports whether hydration installs an unresolved reference.
func (p *ToOne) IsLazy() bool {
	return p.reference && p.mapping.Fetch == FetchLazy
}

// Accept implements [Property].
func (p *ToOne) Accept(v PropertyVisitor) error { return v.VisitToOne(p) }

// OneToMany is a collection valued association.
type OneToMany struct {
	Association
	kind    CollectionKind
	proxies bool
}

// CollectionKind returns the container kind of the field.
func (p *OneToMany) CollectionKind() CollectionKind { return p.kind }

// ProxyEntities reports whether collection members are lazy references.
func (p *OneToMany) ProxyEntities() bool { return p.proxies }

// IsLazy reports whether hydration installs an uninitialized collection.
func (p *OneToMany) IsLazy() bool {
	return p.kind != CollectionSlice && p.mapping.Fetch == FetchLazy
}

// Accept implements [Property].
func (p *OneToMany) Accept(v PropertyVisitor) error { return v.VisitOneToMany(p) }
