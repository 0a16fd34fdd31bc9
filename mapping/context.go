// Package mapping contains the entity metadata model: entities, their
// identifiers and properties, and the association cascade rules.
//
// Types are registered in a [Context], which is an explicit registry object
// owned by the datastore. Registration is done in two phases: every type is
// first registered with [Context.Register], then [Context.Initialize]
// resolves associations between them.
package mapping

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

var (
	timeType           = reflect.TypeFor[time.Time]()
	referenceTypeIface = reflect.TypeFor[ReferenceType]()
	collectionIface    = reflect.TypeFor[CollectionType]()
	customTypeIface    = reflect.TypeFor[CustomType]()
)

// Context is the registry of mapped entities.
type Context struct {
	entities    *xsync.MapOf[reflect.Type, *Entity]
	byName      *xsync.MapOf[string, *Entity]
	initialized atomic.Bool
	logger      *zap.Logger
}

// NewContext returns an empty mapping context.
func NewContext(opts ...Option) *Context {
	c := &Context{
		entities: xsync.NewMapOf[reflect.Type, *Entity](),
		byName:   xsync.NewMapOf[string, *Entity](),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register maps the type of sample, which may be a struct, a pointer to a
// struct or a [reflect.Type]. Registering a type twice returns the existing
// entity.
func (c *Context) Register(sample any, opts ...EntityOption) (*Entity, error) {
	if c.initialized.Load() {
		return nil, ErrAlreadyInitialized
	}
	typ := structType(sample)
	if typ == nil {
		return nil, fmt.Errorf("%w: %T", ErrNotStruct, sample)
	}
	if e, ok := c.entities.Load(typ); ok {
		return e, nil
	}

	var o entityOptions
	for _, opt := range opts {
		opt(&o)
	}

	e, err := c.build(typ, o)
	if err != nil {
		return nil, err
	}
	c.entities.Store(typ, e)
	c.byName.Store(e.name, e)
	return e, nil
}

func (c *Context) build(typ reflect.Type, o entityOptions) (*Entity, error) {
	e := &Entity{
		name:       typ.Name(),
		typ:        typ,
		byName:     make(map[string]Property),
		mapping:    o.class,
		parentType: o.parent,
		embedded:   o.embedded,
		ctx:        c,
	}
	explicitID := false
	if err := c.parseFields(e, typ, nil, o, &explicitID); err != nil {
		return nil, err
	}
	if e.identity == nil && !e.embedded {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIdentifier, e.name)
	}
	return e, nil
}

func (c *Context) parseFields(e *Entity, typ reflect.Type, prefix []int, o entityOptions, explicitID *bool) error {
	for i := range typ.NumField() {
		f := typ.Field(i)
		tag, hasTag := f.Tag.Lookup(TagName)
		if tag == "-" {
			continue
		}
		index := append(slices.Clone(prefix), i)

		if f.Anonymous && !hasTag && f.Type.Kind() == reflect.Struct && f.Type != timeType {
			if err := c.parseFields(e, f.Type, index, o, explicitID); err != nil {
				return err
			}
			continue
		}
		if !f.IsExported() {
			continue
		}

		tagOpts := parseTag(tag)
		if tagOpts.id || (!*explicitID && e.identity == nil && (f.Name == "ID" || f.Name == "Id")) {
			key := tagOpts.key
			if key == "" {
				key = f.Name
			}
			e.identity = &Identity{name: f.Name, typ: f.Type, key: key, index: index}
			*explicitID = tagOpts.id
			continue
		}

		pm := tagOpts.propertyMapping()
		if override, ok := o.properties[f.Name]; ok {
			pm = override
		}
		base := property{name: f.Name, typ: f.Type, owner: e, mapping: pm, index: index}

		prop, err := c.classify(e, f, base, tagOpts)
		if err != nil {
			return err
		}
		if tagOpts.version {
			simple, ok := prop.(*Simple)
			if !ok || !isInteger(f.Type) {
				return fmt.Errorf("%w: version field %s.%s must be an integer", ErrIllegalMapping, e.name, f.Name)
			}
			e.version = simple
		}
		e.properties = append(e.properties, prop)
		e.byName[f.Name] = prop
	}
	return nil
}

func (c *Context) classify(e *Entity, f reflect.StructField, base property, t tagOptions) (Property, error) {
	ft := f.Type
	switch {
	case t.tenant:
		return &TenantID{property: base}, nil
	case ft.Implements(customTypeIface) || reflect.PointerTo(ft).Implements(customTypeIface):
		return &Custom{property: base}, nil
	case t.embedded || (ft.Kind() == reflect.Struct && ft != timeType && !isReference(ft) && !isCollection(ft)):
		return c.embedded(base, ft)
	case isReference(ft):
		return c.toOne(base, referencedType(ft), true, t), nil
	case isCollection(ft):
		coll := collectionSample(ft)
		return c.oneToMany(base, coll.ElementType(), coll.CollectionKind(), t), nil
	case isStructPointer(ft):
		return c.toOne(base, ft, false, t), nil
	case ft.Kind() == reflect.Slice && (isStructPointer(ft.Elem()) || isReference(ft.Elem())):
		return c.oneToMany(base, ft.Elem(), CollectionSlice, t), nil
	case ft.Kind() == reflect.Slice || ft.Kind() == reflect.Array:
		return &Basic{property: base, elem: ft.Elem()}, nil
	case ft.Kind() == reflect.Chan || ft.Kind() == reflect.Func || ft.Kind() == reflect.Interface:
		return nil, ErrPropertyType{Entity: e.name, Field: f.Name, Type: ft}
	default:
		return &Simple{property: base}, nil
	}
}

func (c *Context) embedded(base property, ft reflect.Type) (Property, error) {
	pointer := ft.Kind() == reflect.Pointer
	st := structType(ft)
	if st == nil {
		return nil, ErrPropertyType{Entity: base.owner.name, Field: base.name, Type: ft}
	}
	ee, ok := c.entities.Load(st)
	if !ok {
		var err error
		ee, err = c.build(st, entityOptions{embedded: true})
		if err != nil {
			return nil, err
		}
		c.entities.Store(st, ee)
	}
	return &Embedded{property: base, entity: ee, pointer: pointer}, nil
}

func (c *Context) toOne(base property, target reflect.Type, reference bool, t tagOptions) *ToOne {
	p := &ToOne{
		Association:       newAssociation(base, structType(target), true, c.logger),
		reference:         reference,
		foreignKeyInChild: t.hasOne,
	}
	p.referencedName = t.mappedBy
	p.owning = t.owning
	p.belongsTo = t.belongsTo
	return p
}

func (c *Context) oneToMany(base property, elem reflect.Type, kind CollectionKind, t tagOptions) *OneToMany {
	proxies := isReference(elem)
	if proxies {
		elem = referencedType(elem)
	}
	p := &OneToMany{
		Association: newAssociation(base, structType(elem), false, c.logger),
		kind:        kind,
		proxies:     proxies,
	}
	p.referencedName = t.mappedBy
	p.owning = t.owning
	return p
}

// Initialize resolves parents, associated entities and inverse sides. It
// must be called once after every type was registered; later calls are
// no-ops.
func (c *Context) Initialize() error {
	if !c.initialized.CompareAndSwap(false, true) {
		return nil
	}
	entities := c.Entities()

	for _, e := range entities {
		if e.parentType == nil {
			continue
		}
		parent := c.Entity(e.parentType)
		if parent == nil {
			return fmt.Errorf("%w: parent of %s is not mapped", ErrIllegalMapping, e.name)
		}
		e.parent = parent
		parent.children = append(parent.children, e)
	}

	for _, e := range entities {
		for _, p := range e.Associations() {
			if err := c.resolveTarget(e, association(p)); err != nil {
				return err
			}
		}
	}

	for _, e := range entities {
		for _, p := range e.Associations() {
			if err := c.resolveInverse(e, p); err != nil {
				return err
			}
		}
	}

	for _, e := range entities {
		for _, p := range e.Associations() {
			a := association(p)
			a.owning = a.owning || c.ownedByInverse(a)
			a.init()
		}
	}
	return nil
}

func (c *Context) resolveTarget(e *Entity, a *Association) error {
	if a.target == nil {
		return fmt.Errorf("%w: %s.%s has no struct target", ErrIllegalMapping, e.name, a.name)
	}
	target := c.Entity(a.target)
	if target == nil || target.embedded {
		return fmt.Errorf("%w: %s.%s targets unmapped type %s", ErrIllegalMapping, e.name, a.name, a.target)
	}
	a.associated = target
	return nil
}

func (c *Context) resolveInverse(e *Entity, p Property) error {
	a := association(p)
	if a.referencedName != "" {
		inv := a.associated.Property(a.referencedName)
		if inv == nil {
			return fmt.Errorf("%w: inverse side %s.%s does not exist", ErrIllegalMapping, a.associated.name, a.referencedName)
		}
		if _, ok := inv.(*ToOne); !ok {
			if _, ok := inv.(*OneToMany); !ok {
				return fmt.Errorf("%w: inverse side %s.%s is not an association", ErrIllegalMapping, a.associated.name, a.referencedName)
			}
		}
		a.inverse = inv
	} else if inv := c.inferInverse(e, p); inv != nil {
		a.inverse = inv
		a.referencedName = inv.Name()
	}

	if a.toOne {
		_, a.manyToOne = a.inverse.(*OneToMany)
	}
	return nil
}

// inferInverse returns the only association of the target entity pointing
// back to e, if there is exactly one.
func (c *Context) inferInverse(e *Entity, p Property) Property {
	a := association(p)
	var found Property
	for _, candidate := range a.associated.Associations() {
		if candidate == p {
			continue
		}
		ca := association(candidate)
		if ca.target != e.typ {
			continue
		}
		if ca.referencedName != "" && ca.referencedName != p.Name() {
			continue
		}
		if found != nil {
			return nil
		}
		found = candidate
	}
	return found
}

func (c *Context) ownedByInverse(a *Association) bool {
	if a.inverse == nil {
		return false
	}
	return association(a.inverse).belongsTo
}

// Entity returns the entity registered for typ or for the type typ points
// to, or nil.
func (c *Context) Entity(typ reflect.Type) *Entity {
	for typ != nil && typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ == nil {
		return nil
	}
	e, _ := c.entities.Load(typ)
	return e
}

// EntityFor returns the entity of the dynamic type of obj, or nil.
func (c *Context) EntityFor(obj any) *Entity {
	if obj == nil {
		return nil
	}
	return c.Entity(reflect.TypeOf(obj))
}

// EntityByName returns the entity with the given type name, or nil.
func (c *Context) EntityByName(name string) *Entity {
	e, _ := c.byName.Load(name)
	return e
}

// Entities returns every registered entity sorted by name.
func (c *Context) Entities() []*Entity {
	res := make([]*Entity, 0, c.entities.Size())
	c.entities.Range(func(_ reflect.Type, e *Entity) bool {
		res = append(res, e)
		return true
	})
	slices.SortFunc(res, func(a, b *Entity) int { return cmp.Compare(a.name, b.name) })
	return res
}

// IsInitialized reports whether [Context.Initialize] was called.
func (c *Context) IsInitialized() bool {
	return c.initialized.Load()
}

func association(p Property) *Association {
	switch t := p.(type) {
	case *ToOne:
		return &t.Association
	case *OneToMany:
		return &t.Association
	default:
		return nil
	}
}

// AsAssociation returns the association part of p, or nil if p is not an
// association.
func AsAssociation(p Property) *Association {
	return association(p)
}

func structType(sample any) reflect.Type {
	var typ reflect.Type
	switch t := sample.(type) {
	case nil:
		return nil
	case reflect.Type:
		typ = t
	default:
		typ = reflect.TypeOf(sample)
	}
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return nil
	}
	return typ
}

func isReference(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		return t.Implements(referenceTypeIface) && t.Elem().Kind() == reflect.Struct
	}
	return t.Kind() == reflect.Struct && reflect.PointerTo(t).Implements(referenceTypeIface)
}

func referencedType(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return reflect.New(t).Interface().(ReferenceType).ReferencedType()
}

func isCollection(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		return t.Implements(collectionIface) && t.Elem().Kind() == reflect.Struct
	}
	return t.Kind() == reflect.Struct && reflect.PointerTo(t).Implements(collectionIface)
}

func collectionSample(t reflect.Type) CollectionType {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return reflect.New(t).Interface().(CollectionType)
}

func isStructPointer(t reflect.Type) bool {
	return t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct && t.Elem() != timeType
}

func isInteger(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	default:
		return false
	}
}
