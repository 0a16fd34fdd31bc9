package persister

import (
	"context"
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/collection"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/entityaccess"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/query"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/mapping"
)

// Retrieve implements [domain.Persister]. It returns nil when there is no
// entry for key.
func (p *Persister[E]) Retrieve(ctx context.Context, key any) (any, error) {
	if key == nil {
		return nil, nil
	}
	entry, found, err := p.store.RetrieveEntry(ctx, p.entity, p.entity.Family(), nativeKey(key))
	if err != nil || !found {
		return nil, err
	}
	return p.hydrate(ctx, key, entry)
}

// RetrieveAll implements [domain.Persister]. Keys without entry are
// skipped.
func (p *Persister[E]) RetrieveAll(ctx context.Context, keys []any) ([]any, error) {
	res := make([]any, 0, len(keys))
	if br, ok := p.store.(BatchRetriever[E]); ok {
		native := make([]any, len(keys))
		for i, k := range keys {
			native[i] = nativeKey(k)
		}
		entries, found, err := br.RetrieveEntries(ctx, p.entity, p.entity.Family(), native)
		if err != nil {
			return nil, err
		}
		for i, entry := range entries {
			if !found[i] {
				continue
			}
			obj, err := p.hydrate(ctx, keys[i], entry)
			if err != nil {
				return nil, err
			}
			res = append(res, obj)
		}
		return res, nil
	}
	for _, key := range keys {
		obj, err := p.Retrieve(ctx, key)
		if err != nil {
			return nil, err
		}
		if obj != nil {
			res = append(res, obj)
		}
	}
	return res, nil
}

// Refresh implements [domain.Persister]. The state of obj is replaced by
// the stored one.
func (p *Persister[E]) Refresh(ctx context.Context, obj any) error {
	obj, _ = p.unwrap(obj)
	if obj == nil {
		return domain.ErrTargetNil
	}
	access, err := p.access(obj)
	if err != nil {
		return err
	}
	id := access.Identifier()
	if id == nil {
		return fmt.Errorf("%w: %s has no identifier", domain.ErrNotPersistent, p.entity.Name())
	}
	entry, found, err := p.store.RetrieveEntry(ctx, access.Entity(), access.Entity().Family(), nativeKey(id))
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: no %s entry for %v", domain.ErrNotPersistent, p.entity.Name(), id)
	}
	reflect.ValueOf(obj).Elem().SetZero()
	if err := access.SetIdentifier(id); err != nil {
		return err
	}
	return p.hydrateInto(ctx, access, entry)
}

// concreteEntity returns the entity named by the discriminator of entry.
func (p *Persister[E]) concreteEntity(entry E) *mapping.Entity {
	d, ok := p.store.GetEntryValue(entry, mapping.DiscriminatorKey).(string)
	if !ok {
		return p.entity
	}
	if e := p.entity.Root().Descendant(d); e != nil {
		return e
	}
	p.logger.Warn("unknown discriminator", zap.String("discriminator", d))
	return p.entity
}

func (p *Persister[E]) hydrate(ctx context.Context, key any, entry E) (any, error) {
	entity := p.concreteEntity(entry)
	obj := entity.NewInstance()
	access, err := entityaccess.NewEntityAccess(entity, obj, entityaccess.WithDecoder(p.decoder))
	if err != nil {
		return nil, err
	}
	if err := access.SetIdentifier(key); err != nil {
		return nil, err
	}
	if p.session != nil {
		p.session.Attach(entity, access.Identifier(), obj)
	}
	if err := p.hydrateInto(ctx, access, entry); err != nil {
		if p.session != nil {
			p.session.Detach(entity, access.Identifier())
		}
		return nil, err
	}
	return obj, nil
}

func (p *Persister[E]) hydrateInto(ctx context.Context, access domain.EntityAccess, entry E) error {
	r := &reader[E]{
		p:        p,
		ctx:      ctx,
		value:    reflect.ValueOf(access.Object()).Elem(),
		entry:    entry,
		root:     true,
		ownerKey: nativeKey(access.Identifier()),
	}
	for _, prop := range access.Entity().Properties() {
		if err := prop.Accept(r); err != nil {
			return fmt.Errorf("read %s.%s: %w", access.Entity().Name(), prop.Name(), err)
		}
	}
	return nil
}

// reader copies the values of an entry into a struct value.
type reader[E any] struct {
	p        *Persister[E]
	ctx      context.Context
	value    reflect.Value
	entry    E
	prefix   string
	root     bool
	ownerKey any
}

func (r *reader[E]) field(p mapping.Property) reflect.Value {
	return entityaccess.FieldByIndex(r.value, p.FieldIndex())
}

func (r *reader[E]) get(p mapping.Property) any {
	return r.p.store.GetEntryValue(r.entry, r.prefix+p.Key())
}

func (r *reader[E]) assign(p mapping.Property) error {
	v := r.get(p)
	if v == nil {
		return nil
	}
	return entityaccess.Assign(r.field(p), v, r.p.decoder)
}

func (r *reader[E]) VisitSimple(p *mapping.Simple) error     { return r.assign(p) }
func (r *reader[E]) VisitBasic(p *mapping.Basic) error       { return r.assign(p) }
func (r *reader[E]) VisitTenantID(p *mapping.TenantID) error { return r.assign(p) }

func (r *reader[E]) VisitCustom(p *mapping.Custom) error {
	v := r.get(p)
	if v == nil {
		return nil
	}
	f := r.field(p)
	target := f
	if f.Kind() == reflect.Pointer {
		target = reflect.New(f.Type().Elem())
	} else {
		target = f.Addr()
	}
	u, ok := target.Interface().(mapping.CustomTypeUnmarshaler)
	if !ok {
		return domain.ErrElementType{Expected: "mapping.CustomTypeUnmarshaler", Value: target.Interface()}
	}
	if err := u.UnmarshalNative(v); err != nil {
		return err
	}
	if f.Kind() == reflect.Pointer {
		f.Set(target)
	}
	return nil
}

func (r *reader[E]) VisitEmbedded(p *mapping.Embedded) error {
	nested := &reader[E]{p: r.p, ctx: r.ctx}
	if es, ok := r.p.store.(EmbeddedStore[E]); ok {
		sub, found := es.GetEmbedded(r.entry, r.prefix+p.Key())
		if !found {
			return nil
		}
		nested.entry = sub
	} else {
		nested.entry = r.entry
		nested.prefix = r.prefix + p.Key() + "."
	}

	f := r.field(p)
	target := f
	if p.IsPointer() {
		target = reflect.New(f.Type().Elem()).Elem()
	}
	nested.value = target
	if id := p.Entity().Identity(); id != nil {
		v := r.p.store.GetEntryValue(nested.entry, nested.prefix+id.Key())
		if v != nil {
			if err := entityaccess.Assign(entityaccess.FieldByIndex(target, id.FieldIndex()), v, r.p.decoder); err != nil {
				return err
			}
		}
	}
	for _, prop := range p.Entity().Properties() {
		if err := prop.Accept(nested); err != nil {
			return err
		}
	}
	if p.IsPointer() && !target.IsZero() {
		f.Set(target.Addr())
	}
	return nil
}

func (r *reader[E]) resolver(entity *mapping.Entity) domain.Resolver {
	session := r.p.session
	return func(ctx context.Context, key any) (any, error) {
		return session.Retrieve(ctx, entity.Type(), key)
	}
}

// associationKey decodes a stored foreign key into the identifier type of
// the associated entity.
func (r *reader[E]) associationKey(entity *mapping.Entity, v any) any {
	id := entity.Identity()
	if id == nil {
		return v
	}
	k := reflect.New(id.Type()).Elem()
	if err := entityaccess.Assign(k, v, r.p.decoder); err != nil {
		return v
	}
	return k.Interface()
}

func (r *reader[E]) VisitToOne(p *mapping.ToOne) error {
	if r.p.session == nil {
		return nil
	}
	assoc := p.AssociatedEntity()
	f := r.field(p)
	resolver := r.resolver(assoc)
	var key any
	if p.ForeignKeyInChild() {
		if !r.root || r.ownerKey == nil {
			return nil
		}
		child, err := r.childResolver(p)
		if err != nil || child == nil {
			return err
		}
		key, resolver = r.ownerKey, child
	} else {
		v := r.get(p)
		if v == nil {
			return nil
		}
		key = r.associationKey(assoc, v)
	}

	if p.IsReference() {
		rv, err := r.p.factory.New(f.Type(), key, resolver)
		if err != nil {
			return err
		}
		f.Set(rv)
		if p.IsLazy() {
			return nil
		}
		obj, err := resolver(r.ctx, key)
		if err != nil {
			return err
		}
		return r.p.factory.Reference(f).SetValue(obj)
	}

	obj, err := resolver(r.ctx, key)
	if err != nil || obj == nil {
		return err
	}
	if rv := reflect.ValueOf(obj); rv.Type().AssignableTo(f.Type()) {
		f.Set(rv)
	}
	return nil
}

// childResolver returns a resolver finding the associated instance holding
// the given owner key, or nil when the association has no inverse.
func (r *reader[E]) childResolver(p *mapping.ToOne) (domain.Resolver, error) {
	name := p.ReferencedPropertyName()
	if inv := p.InverseSide(); name == "" && inv != nil {
		name = inv.Name()
	}
	if name == "" {
		return nil, nil
	}
	dp, err := r.p.session.Persister(p.AssociatedEntity())
	if err != nil {
		return nil, err
	}
	exec, ok := dp.(query.Executor)
	if !ok {
		return nil, nil
	}
	entity := p.AssociatedEntity()
	return func(ctx context.Context, key any) (any, error) {
		res, err := exec.ExecuteQuery(ctx, query.New(entity, exec).Eq(name, key).MaxResults(1))
		if err != nil || len(res) == 0 {
			return nil, err
		}
		return res[0], nil
	}, nil
}

func (r *reader[E]) VisitOneToMany(p *mapping.OneToMany) error {
	if !r.root || r.p.session == nil {
		return nil
	}
	f := r.field(p)
	idx := r.p.store.AssociationIndexer(r.entry, p)
	assoc := p.AssociatedEntity()

	if p.CollectionKind() == mapping.CollectionSlice {
		if idx == nil {
			return nil
		}
		return r.fillSlice(f, p, idx)
	}

	if f.Kind() == reflect.Pointer && f.IsNil() {
		f.Set(reflect.New(f.Type().Elem()))
	}
	pc := persistentCollection(f)
	if pc == nil {
		return domain.ErrElementType{Expected: "collection.Persistent", Value: f.Interface()}
	}
	b := collection.Binding{
		Session:  r.p.session,
		Type:     assoc.Type(),
		OwnerKey: r.ownerKey,
		Proxies:  p.ProxyEntities(),
		Factory:  r.p.factory,
	}
	if idx != nil {
		b.Executor = idx
	}
	pc.Bind(r.ctx, b)
	if p.IsLazy() {
		return nil
	}
	return pc.Initialize(r.ctx)
}

func (r *reader[E]) fillSlice(f reflect.Value, p *mapping.OneToMany, idx domain.AssociationQueryExecutor) error {
	res, err := idx.Query(r.ctx, r.ownerKey)
	if err != nil || len(res) == 0 {
		return err
	}
	elem := f.Type().Elem()
	if idx.DoesReturnKeys() {
		if p.ProxyEntities() {
			resolver := r.resolver(p.AssociatedEntity())
			objs := make([]any, len(res))
			for i, key := range res {
				if objs[i], err = r.p.factory.Create(elem, key, resolver); err != nil {
					return err
				}
			}
			res = objs
		} else if res, err = r.p.session.RetrieveAll(r.ctx, p.AssociatedEntity().Type(), res); err != nil {
			return err
		}
	}
	s := reflect.MakeSlice(f.Type(), 0, len(res))
	for _, obj := range res {
		rv := reflect.ValueOf(obj)
		if obj == nil || !rv.Type().AssignableTo(elem) {
			return domain.ErrElementType{Expected: elem.String(), Value: obj}
		}
		s = reflect.Append(s, rv)
	}
	f.Set(s)
	return nil
}
