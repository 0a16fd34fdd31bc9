// Package persister maps entity instances to and from the native entries of
// a key-value store.
//
// A [Persister] handles one entity. It reads and writes fields through
// entity access, cascades writes to associated entities through the
// session, and keeps the property and association indexes of the store up
// to date. Storage itself is delegated to a [Store].
package persister

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"go.uber.org/zap"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/comparer"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/decoder"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/entityaccess"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/proxy"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/query"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/mapping"
)

// Persister implements [domain.Persister] over a [Store].
type Persister[E any] struct {
	store       Store[E]
	entity      *mapping.Entity
	session     domain.Session
	interceptor domain.EntityInterceptor
	factory     *proxy.Factory
	decoder     domain.Decoder
	comparer    domain.Comparer
	matcher     *query.Matcher
	reducer     *query.Reducer
	logger      *zap.Logger
}

// New returns a persister of entity over store. The session is used to
// cascade to and load associated entities.
func New[E any](store Store[E], entity *mapping.Entity, session domain.Session, opts ...Option) *Persister[E] {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.factory == nil {
		o.factory = proxy.NewFactory()
	}
	if o.decoder == nil {
		o.decoder = decoder.NewDecoder()
	}
	if o.comparer == nil {
		o.comparer = comparer.NewComparer()
	}
	return &Persister[E]{
		store:       store,
		entity:      entity,
		session:     session,
		interceptor: o.interceptor,
		factory:     o.factory,
		decoder:     o.decoder,
		comparer:    o.comparer,
		matcher:     query.NewMatcher(query.WithMatcherComparer(o.comparer)),
		reducer:     query.NewReducer(query.WithReducerComparer(o.comparer)),
		logger:      o.logger.With(zap.String("entity", entity.Name())),
	}
}

// Entity implements [domain.Persister].
func (p *Persister[E]) Entity() *mapping.Entity { return p.entity }

// Store returns the backing store.
func (p *Persister[E]) Store() Store[E] { return p.store }

// entityOf returns the entity of obj, which is the persister's entity or
// one of its descendants.
func (p *Persister[E]) entityOf(obj any) (*mapping.Entity, error) {
	e := p.entity.Context().EntityFor(obj)
	if e == nil {
		return nil, fmt.Errorf("%w: %T", domain.ErrNotPersistent, obj)
	}
	for a := e; a != nil; a = a.Parent() {
		if a == p.entity {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: %T is not %s", domain.ErrNotPersistent, obj, p.entity.Name())
}

func (p *Persister[E]) access(obj any) (*entityaccess.EntityAccess, error) {
	e, err := p.entityOf(obj)
	if err != nil {
		return nil, err
	}
	return entityaccess.NewEntityAccess(e, obj, entityaccess.WithDecoder(p.decoder))
}

// unwrap returns the instance behind a reference. The key of an unresolved
// reference is returned separately.
func (p *Persister[E]) unwrap(obj any) (any, any) {
	if obj == nil {
		return nil, nil
	}
	if rv := reflect.ValueOf(obj); rv.Kind() == reflect.Struct && p.factory.IsReferenceType(rv.Type()) {
		ptr := reflect.New(rv.Type())
		ptr.Elem().Set(rv)
		obj = ptr.Interface()
	}
	ref, ok := obj.(domain.Reference)
	if !ok {
		return obj, nil
	}
	if !ref.IsResolved() {
		return nil, ref.Key()
	}
	return ref.Value(), nil
}

// ObjectIdentifier implements [domain.Persister].
func (p *Persister[E]) ObjectIdentifier(obj any) any {
	obj, key := p.unwrap(obj)
	if obj == nil {
		return key
	}
	access, err := p.access(obj)
	if err != nil {
		return nil
	}
	return access.Identifier()
}

// nativeKey converts an identifier to the form keys are given to the store.
func nativeKey(key any) any {
	return data.Native(key)
}

func (p *Persister[E]) allowed(ctx context.Context, access domain.EntityAccess, op func(domain.EntityInterceptor) func(context.Context, domain.EntityAccess) bool) bool {
	if p.interceptor == nil {
		return true
	}
	return op(p.interceptor)(ctx, access)
}

func beforeInsert(i domain.EntityInterceptor) func(context.Context, domain.EntityAccess) bool {
	return i.BeforeInsert
}

func beforeUpdate(i domain.EntityInterceptor) func(context.Context, domain.EntityAccess) bool {
	return i.BeforeUpdate
}

func beforeDelete(i domain.EntityInterceptor) func(context.Context, domain.EntityAccess) bool {
	return i.BeforeDelete
}

// Persist implements [domain.Persister]. Instances without identifier are
// inserted, others are updated. A vetoed insert returns a nil identifier
// and a vetoed update returns the current one, without writing anything.
func (p *Persister[E]) Persist(ctx context.Context, obj any) (any, error) {
	obj, key := p.unwrap(obj)
	if obj == nil {
		return key, nil
	}
	access, err := p.access(obj)
	if err != nil {
		return nil, err
	}
	ctx, busy := enter(ctx, obj)
	id := access.Identifier()
	if busy {
		return id, nil
	}
	insert := id == nil

	if insert && !p.allowed(ctx, access, beforeInsert) {
		p.logger.Debug("insert vetoed")
		return nil, nil
	}
	if !insert && !p.allowed(ctx, access, beforeUpdate) {
		p.logger.Debug("update vetoed", zap.Any("key", id))
		return id, nil
	}
	if err := p.checkRequired(access); err != nil {
		return nil, err
	}

	entity := access.Entity()
	family := entity.Family()
	var old E
	var hasOld bool
	if !insert && p.hasIndexes(entity) {
		if old, hasOld, err = p.store.RetrieveEntry(ctx, entity, family, nativeKey(id)); err != nil {
			return nil, err
		}
	}

	entry := p.store.CreateNewEntry(family)
	w := newWriter(ctx, p, access, entry, insert)
	for _, prop := range entity.Properties() {
		if err := prop.Accept(w); err != nil {
			return nil, err
		}
	}
	if entity.HasDiscriminator() {
		p.store.SetEntryValue(entry, mapping.DiscriminatorKey, entity.Discriminator())
	}

	restore, err := p.incrementVersion(access, entry, insert)
	if err != nil {
		return nil, err
	}

	if insert {
		id, err = p.insert(ctx, access, entry)
	} else {
		err = p.store.UpdateEntry(ctx, entity, access, nativeKey(id), entry)
	}
	if err != nil {
		restore()
		return nil, err
	}
	p.logger.Debug("entry written", zap.Any("key", id), zap.Bool("insert", insert))

	if err := p.updateIndexes(ctx, w.indexed, old, hasOld, id); err != nil {
		return nil, err
	}
	if err := p.persistDeferred(ctx, w, id); err != nil {
		return nil, err
	}
	return id, nil
}

func (p *Persister[E]) insert(ctx context.Context, access domain.EntityAccess, entry E) (any, error) {
	entity := access.Entity()
	id, err := p.store.GenerateIdentifier(ctx, entity, entry)
	if err != nil {
		return nil, err
	}
	if id != nil {
		if err := access.SetIdentifier(id); err != nil {
			return nil, err
		}
		id = access.Identifier()
	}
	key, err := p.store.StoreEntry(ctx, entity, access, nativeKey(id), entry)
	if err != nil {
		if id != nil {
			_ = access.SetIdentifier(nil)
		}
		return nil, err
	}
	if id == nil {
		if err := access.SetIdentifier(key); err != nil {
			return nil, err
		}
		id = access.Identifier()
	}
	return id, nil
}

// checkRequired fails when a required to-one association is nil.
func (p *Persister[E]) checkRequired(access domain.EntityAccess) error {
	for _, prop := range access.Entity().Associations() {
		toOne, ok := prop.(*mapping.ToOne)
		if !ok || !toOne.Mapping().Required || toOne.ForeignKeyInChild() {
			continue
		}
		field := access.Field(toOne.Name())
		if ref := p.factory.Reference(field); ref != nil {
			if ref.IsResolved() && ref.Value() == nil || !ref.IsResolved() && ref.Key() == nil {
				return fmt.Errorf("%w: %s.%s is required", domain.ErrDataIntegrity, access.Entity().Name(), toOne.Name())
			}
			continue
		}
		if access.Get(toOne.Name()) == nil {
			return fmt.Errorf("%w: %s.%s is required", domain.ErrDataIntegrity, access.Entity().Name(), toOne.Name())
		}
	}
	return nil
}

func (p *Persister[E]) hasIndexes(entity *mapping.Entity) bool {
	for _, prop := range entity.Properties() {
		if p.store.PropertyIndexer(prop) != nil {
			return true
		}
	}
	return false
}

// incrementVersion writes the next version of versioned entities. The
// returned function puts the previous version back.
func (p *Persister[E]) incrementVersion(access domain.EntityAccess, entry E, insert bool) (func(), error) {
	vp := access.Entity().Version()
	if vp == nil {
		return func() {}, nil
	}
	field := access.Field(vp.Name())
	previous := reflect.ValueOf(field.Interface())
	var next int64
	if !insert {
		switch v := data.Native(field.Interface()).(type) {
		case int64:
			next = v + 1
		case uint64:
			next = int64(v) + 1
		}
	}
	if err := access.Set(vp.Name(), next); err != nil {
		return nil, err
	}
	p.store.SetEntryValue(entry, vp.Key(), next)
	return func() { field.Set(previous) }, nil
}

func (p *Persister[E]) updateIndexes(ctx context.Context, staged []indexedValue, old E, hasOld bool, id any) error {
	key := nativeKey(id)
	for _, st := range staged {
		if hasOld {
			prev := p.store.GetEntryValue(old, st.key)
			if p.equal(prev, st.value) {
				continue
			}
			for _, v := range indexValues(prev) {
				if err := st.indexer.Deindex(ctx, v, key); err != nil {
					return err
				}
			}
		}
		for _, v := range indexValues(st.value) {
			if err := st.indexer.Index(ctx, v, key); err != nil {
				return err
			}
		}
	}
	return nil
}

// indexValues returns the values indexed for a native value: every element
// of a list, nothing for nil, and the value itself otherwise.
func indexValues(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	default:
		return []any{t}
	}
}

func (p *Persister[E]) equal(a, b any) bool {
	c, err := p.comparer.Compare(a, b)
	return err == nil && c == 0
}

// PersistAll implements [domain.Persister]. It stops at the first error.
func (p *Persister[E]) PersistAll(ctx context.Context, objs []any) ([]any, error) {
	ids := make([]any, 0, len(objs))
	for _, obj := range objs {
		id, err := p.Persist(ctx, obj)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Lock implements [domain.Persister]. Without store support it only
// retrieves the instance. The lock is released when the retrieval fails.
func (p *Persister[E]) Lock(ctx context.Context, key any, timeout time.Duration) (any, error) {
	l, ok := p.store.(Locker)
	if !ok {
		return p.Retrieve(ctx, key)
	}
	if err := l.LockEntry(ctx, p.entity, nativeKey(key), timeout); err != nil {
		return nil, err
	}
	p.logger.Debug("entry locked", zap.Any("key", key))
	obj, err := p.Retrieve(ctx, key)
	if err != nil {
		if uerr := l.UnlockEntry(ctx, p.entity, nativeKey(key)); uerr != nil {
			p.logger.Warn("unlock after failed retrieval", zap.Any("key", key), zap.Error(uerr))
		}
		return nil, err
	}
	return obj, nil
}

// Unlock implements [domain.Persister].
func (p *Persister[E]) Unlock(ctx context.Context, obj any) error {
	l, ok := p.store.(Locker)
	if !ok {
		return nil
	}
	id := p.ObjectIdentifier(obj)
	if id == nil {
		return nil
	}
	return l.UnlockEntry(ctx, p.entity, nativeKey(id))
}

// CreateQuery returns a query over the entity, run by the persister.
func (p *Persister[E]) CreateQuery() *query.Query {
	return query.New(p.entity, p, query.WithSession(p.session))
}

type persistingKey struct{}

// enter marks obj as being persisted in the returned context, so that
// cyclic cascades stop at it. It reports whether obj was already marked.
func enter(ctx context.Context, obj any) (context.Context, bool) {
	set, _ := ctx.Value(persistingKey{}).(map[any]struct{})
	if _, ok := set[obj]; ok {
		return ctx, true
	}
	next := make(map[any]struct{}, len(set)+1)
	for k := range set {
		next[k] = struct{}{}
	}
	next[obj] = struct{}{}
	return context.WithValue(ctx, persistingKey{}, next), false
}
