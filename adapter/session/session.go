// Package session contains the unit of work wrapping the persisters of a
// mapping context. A [Session] keeps a first-level cache, so retrieving the
// same key twice returns the same instance, and writes back instances whose
// collections changed when flushed.
package session

import (
	"context"
	"fmt"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/puzpuzpuz/xsync/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/collection"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/entityaccess"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/metrics"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/proxy"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/query"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/mapping"
)

const tracerName = "github.com/vinicius-lino-figueiredo/gedm/adapter/session"

var _ domain.Session = (*Session)(nil)

// PersisterProvider creates the persister of a root entity for a session.
type PersisterProvider interface {
	Persister(s domain.Session, e *mapping.Entity) (domain.Persister, error)
}

// ProviderFunc adapts a function to [PersisterProvider].
type ProviderFunc func(s domain.Session, e *mapping.Entity) (domain.Persister, error)

// Persister implements [PersisterProvider].
func (f ProviderFunc) Persister(s domain.Session, e *mapping.Entity) (domain.Persister, error) {
	return f(s, e)
}

type cacheKey struct {
	entity string
	key    any
}

// Session implements [domain.Session].
type Session struct {
	mc         *mapping.Context
	provider   PersisterProvider
	persisters *xsync.MapOf[*mapping.Entity, domain.Persister]
	cache      *xsync.MapOf[cacheKey, any]
	objects    *xsync.MapOf[any, cacheKey]
	flushMode  atomic.Uint32
	factory    *proxy.Factory
	validate   *validator.Validate
	tracer     trace.Tracer
	recorder   *metrics.Recorder
	logger     *zap.Logger
}

// New returns a session over the entities of mc. Persisters are created on
// first use by provider.
func New(mc *mapping.Context, provider PersisterProvider, opts ...Option) *Session {
	s := &Session{
		mc:         mc,
		provider:   provider,
		persisters: xsync.NewMapOf[*mapping.Entity, domain.Persister](),
		cache:      xsync.NewMapOf[cacheKey, any](),
		objects:    xsync.NewMapOf[any, cacheKey](),
		factory:    proxy.NewFactory(),
		validate:   validator.New(),
		tracer:     otel.Tracer(tracerName),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// start opens the span of an operation. The returned function ends it and
// records the outcome.
func (s *Session) start(ctx context.Context, op string, entity *mapping.Entity) (context.Context, func(error)) {
	name := ""
	if entity != nil {
		name = entity.Name()
	}
	ctx, span := s.tracer.Start(ctx, "Session."+op,
		trace.WithAttributes(attribute.String("gedm.entity", name)),
	)
	begin := time.Now()
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		s.recorder.Observe(op, name, begin, err)
		span.End()
	}
}

func (s *Session) key(entity *mapping.Entity, key any) cacheKey {
	k := data.Native(key)
	if b, ok := k.([]byte); ok {
		k = string(b)
	}
	return cacheKey{entity: entity.Root().Name(), key: k}
}

// entityOf resolves a [*mapping.Entity], a [reflect.Type], a reference or an
// instance to its entity.
func (s *Session) entityOf(v any) *mapping.Entity {
	switch t := v.(type) {
	case nil:
		return nil
	case *mapping.Entity:
		return t
	case reflect.Type:
		return s.mc.Entity(t)
	case mapping.ReferenceType:
		return s.mc.Entity(t.ReferencedType())
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer {
		p := reflect.New(rv.Type())
		if ref, ok := p.Interface().(mapping.ReferenceType); ok {
			return s.mc.Entity(ref.ReferencedType())
		}
	}
	return s.mc.EntityFor(v)
}

// Persister implements [domain.Session]. Persisters are shared by an
// entity hierarchy.
func (s *Session) Persister(typeOrInstance any) (domain.Persister, error) {
	e := s.entityOf(typeOrInstance)
	if e == nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNotPersistent, describe(typeOrInstance))
	}
	root := e.Root()
	if p, ok := s.persisters.Load(root); ok {
		return p, nil
	}
	p, err := s.provider.Persister(s, root)
	if err != nil {
		return nil, err
	}
	p, _ = s.persisters.LoadOrStore(root, p)
	return p, nil
}

func describe(v any) any {
	if t, ok := v.(reflect.Type); ok {
		return t
	}
	return reflect.TypeOf(v)
}

// MappingContext implements [domain.Session].
func (s *Session) MappingContext() *mapping.Context { return s.mc }

// FlushMode implements [domain.Session].
func (s *Session) FlushMode() domain.FlushMode {
	return domain.FlushMode(s.flushMode.Load())
}

// SetFlushMode changes when queries flush the session.
func (s *Session) SetFlushMode(m domain.FlushMode) {
	s.flushMode.Store(uint32(m))
}

// Retrieve implements [domain.Session].
func (s *Session) Retrieve(ctx context.Context, typ reflect.Type, key any) (obj any, err error) {
	if key == nil {
		return nil, nil
	}
	p, err := s.Persister(typ)
	if err != nil {
		return nil, err
	}
	if obj, ok := s.cache.Load(s.key(p.Entity(), key)); ok {
		return obj, nil
	}
	ctx, end := s.start(ctx, "retrieve", p.Entity())
	defer func() { end(err) }()
	return p.Retrieve(ctx, key)
}

// RetrieveAll implements [domain.Session]. Cached instances are reused and
// the others are retrieved in one call.
func (s *Session) RetrieveAll(ctx context.Context, typ reflect.Type, keys []any) (res []any, err error) {
	p, err := s.Persister(typ)
	if err != nil {
		return nil, err
	}
	var missing []any
	for _, k := range keys {
		if _, ok := s.cache.Load(s.key(p.Entity(), k)); !ok && k != nil {
			missing = append(missing, k)
		}
	}
	ctx, end := s.start(ctx, "retrieve_all", p.Entity())
	defer func() { end(err) }()
	var loaded []any
	if len(missing) > 0 {
		if loaded, err = p.RetrieveAll(ctx, missing); err != nil {
			return nil, err
		}
	}
	res = make([]any, 0, len(keys))
	for _, k := range keys {
		if k == nil {
			continue
		}
		if obj, ok := s.cache.Load(s.key(p.Entity(), k)); ok {
			res = append(res, obj)
		}
	}
	// instances the persister did not attach are still returned
	if len(res) < len(keys) {
		for _, obj := range loaded {
			if !s.Contains(obj) {
				res = append(res, obj)
			}
		}
	}
	return res, nil
}

// Persist implements [domain.Session]. Persisted instances are attached.
func (s *Session) Persist(ctx context.Context, obj any) (id any, err error) {
	p, err := s.Persister(obj)
	if err != nil {
		return nil, err
	}
	ctx, end := s.start(ctx, "persist", p.Entity())
	defer func() { end(err) }()
	if id, err = p.Persist(ctx, obj); err != nil || id == nil {
		return id, err
	}
	if v := s.factory.Unwrap(obj); v != nil && reflect.TypeOf(v).Kind() == reflect.Pointer {
		s.Attach(p.Entity(), id, v)
	}
	return id, nil
}

// PersistAll implements [domain.Session]. It stops at the first error.
func (s *Session) PersistAll(ctx context.Context, objs []any) ([]any, error) {
	ids := make([]any, 0, len(objs))
	for _, obj := range objs {
		id, err := s.Persist(ctx, obj)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Delete implements [domain.Session].
func (s *Session) Delete(ctx context.Context, obj any) (err error) {
	p, err := s.Persister(obj)
	if err != nil {
		return err
	}
	ctx, end := s.start(ctx, "delete", p.Entity())
	defer func() { end(err) }()
	return p.Delete(ctx, obj)
}

// Lock acquires a lock on the entry of typ under key and returns its
// current state. The instance replaces any cached one.
func (s *Session) Lock(ctx context.Context, typ reflect.Type, key any, timeout time.Duration) (obj any, err error) {
	p, err := s.Persister(typ)
	if err != nil {
		return nil, err
	}
	ctx, end := s.start(ctx, "lock", p.Entity())
	defer func() { end(err) }()
	s.Detach(p.Entity(), key)
	return p.Lock(ctx, key, timeout)
}

// Unlock releases a lock acquired with [Session.Lock].
func (s *Session) Unlock(ctx context.Context, obj any) (err error) {
	p, err := s.Persister(obj)
	if err != nil {
		return err
	}
	ctx, end := s.start(ctx, "unlock", p.Entity())
	defer func() { end(err) }()
	return p.Unlock(ctx, obj)
}

// Refresh reloads obj from the store.
func (s *Session) Refresh(ctx context.Context, obj any) (err error) {
	p, err := s.Persister(obj)
	if err != nil {
		return err
	}
	ctx, end := s.start(ctx, "refresh", p.Entity())
	defer func() { end(err) }()
	return p.Refresh(ctx, obj)
}

// CreateQuery returns a query over the entity of typeOrInstance. Results
// include instances of its sub entities.
func (s *Session) CreateQuery(typeOrInstance any) (*query.Query, error) {
	p, err := s.Persister(typeOrInstance)
	if err != nil {
		return nil, err
	}
	exec, ok := p.(query.Executor)
	if !ok {
		return nil, fmt.Errorf("%w: persister of %s cannot run queries", domain.ErrUnsupportedQuery, p.Entity().Name())
	}
	return query.New(s.entityOf(typeOrInstance), exec, query.WithSession(s)), nil
}

// Contains implements [domain.Session].
func (s *Session) Contains(obj any) bool {
	if obj == nil || !reflect.TypeOf(obj).Comparable() {
		return false
	}
	_, ok := s.objects.Load(obj)
	return ok
}

// Attach implements [domain.Session].
func (s *Session) Attach(entity *mapping.Entity, key any, obj any) {
	if key == nil || obj == nil {
		return
	}
	k := s.key(entity, key)
	if old, ok := s.cache.Load(k); ok && old != obj {
		s.objects.Delete(old)
	}
	s.cache.Store(k, obj)
	s.objects.Store(obj, k)
}

// Detach implements [domain.Session].
func (s *Session) Detach(entity *mapping.Entity, key any) {
	if key == nil {
		return
	}
	if obj, ok := s.cache.LoadAndDelete(s.key(entity, key)); ok {
		s.objects.Delete(obj)
	}
}

// Clear detaches every instance.
func (s *Session) Clear() {
	s.cache.Clear()
	s.objects.Clear()
}

// Size returns the number of attached instances.
func (s *Session) Size() int { return s.cache.Size() }

// Flush implements [domain.Session]. Attached instances whose persistent
// collections are dirty, or that report changes through
// [mapping.DirtyCheckable], are persisted again.
func (s *Session) Flush(ctx context.Context) (err error) {
	ctx, end := s.start(ctx, "flush", nil)
	defer func() { end(err) }()
	var dirty []any
	s.cache.Range(func(_ cacheKey, obj any) bool {
		if s.isDirty(obj) {
			dirty = append(dirty, obj)
		}
		return true
	})
	for _, obj := range dirty {
		if _, err := s.Persist(ctx, obj); err != nil {
			return err
		}
	}
	if len(dirty) > 0 {
		s.logger.Debug("session flushed", zap.Int("instances", len(dirty)))
	}
	return nil
}

func (s *Session) isDirty(obj any) bool {
	if dc, ok := obj.(mapping.DirtyCheckable); ok && dc.HasChanged() {
		return true
	}
	e := s.mc.EntityFor(obj)
	if e == nil {
		return false
	}
	rv := reflect.ValueOf(obj)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return false
	}
	for _, prop := range e.Associations() {
		if _, ok := prop.(*mapping.OneToMany); !ok {
			continue
		}
		field := entityaccess.FieldByIndex(rv.Elem(), prop.FieldIndex())
		if c := persistent(field); c != nil && c.IsDirty() {
			return true
		}
	}
	return false
}

// persistent returns the collection held in field, or nil.
func persistent(field reflect.Value) collection.Persistent {
	if !field.IsValid() {
		return nil
	}
	if field.Kind() == reflect.Pointer {
		if field.IsNil() {
			return nil
		}
		c, _ := field.Interface().(collection.Persistent)
		return c
	}
	if field.CanAddr() {
		c, _ := field.Addr().Interface().(collection.Persistent)
		return c
	}
	return nil
}
