// Package interceptor contains the registration table of entity
// interceptors.
//
// The table is filled at startup: interceptors registered for every entity,
// interceptors registered for given entity types, and the hooks of entity
// types that implement [InsertHook], [UpdateHook] or [DeleteHook]
// themselves. After [Registry.Seal] the table is read only and lookups need
// no locking.
package interceptor

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"

	goreflect "github.com/goccy/go-reflect"
	"go.uber.org/zap"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/mapping"
)

// ErrSealed is returned when registering into a sealed registry.
var ErrSealed = errors.New("interceptor registry is sealed")

// InsertHook is implemented by entities that want to be notified before they
// are inserted. Returning false vetoes the insert.
type InsertHook interface {
	BeforeInsert(ctx context.Context) bool
}

// UpdateHook is implemented by entities that want to be notified before they
// are updated. Returning false vetoes the update.
type UpdateHook interface {
	BeforeUpdate(ctx context.Context) bool
}

// DeleteHook is implemented by entities that want to be notified before they
// are deleted. Returning false vetoes the delete.
type DeleteHook interface {
	BeforeDelete(ctx context.Context) bool
}

var (
	insertHookIface = reflect.TypeFor[InsertHook]()
	updateHookIface = reflect.TypeFor[UpdateHook]()
	deleteHookIface = reflect.TypeFor[DeleteHook]()
)

// Registry is an arena of interceptors with a lookup table by entity type.
type Registry struct {
	arena  []domain.EntityInterceptor
	global []int
	byType map[uintptr][]int
	sealed atomic.Bool
	logger *zap.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		byType: make(map[uintptr][]int),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds i for the entity types of samples, or for every entity when
// no sample is given. Samples are instances, pointers to instances or
// [reflect.Type] values.
func (r *Registry) Register(i domain.EntityInterceptor, samples ...any) error {
	if r.sealed.Load() {
		return ErrSealed
	}
	idx := len(r.arena)
	r.arena = append(r.arena, i)
	if len(samples) == 0 {
		r.global = append(r.global, idx)
		return nil
	}
	for _, sample := range samples {
		id := typeID(sample)
		r.byType[id] = append(r.byType[id], idx)
	}
	return nil
}

// RegisterEntity registers the hooks implemented by the entity type itself.
// Types implementing none of them are skipped.
func (r *Registry) RegisterEntity(e *mapping.Entity) error {
	ptr := reflect.PointerTo(e.Type())
	h := selfHook{
		insert: ptr.Implements(insertHookIface),
		update: ptr.Implements(updateHookIface),
		delete: ptr.Implements(deleteHookIface),
	}
	if !h.insert && !h.update && !h.delete {
		return nil
	}
	return r.Register(h, e.Type())
}

// Seal makes the registry read only.
func (r *Registry) Seal() {
	r.sealed.Store(true)
}

// For returns the interceptors applying to obj: global ones first, then the
// ones registered for its type, in registration order.
func (r *Registry) For(obj any) []domain.EntityInterceptor {
	typed := r.byType[goreflect.TypeID(obj)]
	res := make([]domain.EntityInterceptor, 0, len(r.global)+len(typed))
	for _, idx := range r.global {
		res = append(res, r.arena[idx])
	}
	for _, idx := range typed {
		res = append(res, r.arena[idx])
	}
	return res
}

// BeforeInsert runs the insert interceptors of the accessed object and
// reports whether the insert may proceed.
func (r *Registry) BeforeInsert(ctx context.Context, access domain.EntityAccess) bool {
	return r.run(access, "insert", func(i domain.EntityInterceptor) bool {
		return i.BeforeInsert(ctx, access)
	})
}

// BeforeUpdate runs the update interceptors of the accessed object and
// reports whether the update may proceed.
func (r *Registry) BeforeUpdate(ctx context.Context, access domain.EntityAccess) bool {
	return r.run(access, "update", func(i domain.EntityInterceptor) bool {
		return i.BeforeUpdate(ctx, access)
	})
}

// BeforeDelete runs the delete interceptors of the accessed object and
// reports whether the delete may proceed.
func (r *Registry) BeforeDelete(ctx context.Context, access domain.EntityAccess) bool {
	return r.run(access, "delete", func(i domain.EntityInterceptor) bool {
		return i.BeforeDelete(ctx, access)
	})
}

func (r *Registry) run(access domain.EntityAccess, op string, fn func(domain.EntityInterceptor) bool) bool {
	for _, i := range r.For(access.Object()) {
		if !fn(i) {
			r.logger.Debug("operation vetoed",
				zap.String("operation", op),
				zap.String("entity", access.Entity().Name()),
			)
			return false
		}
	}
	return true
}

// typeID returns the identifier of the pointer type of the struct type of
// sample, which is the dynamic type of the instances looked up later.
func typeID(sample any) uintptr {
	typ, ok := sample.(reflect.Type)
	if !ok {
		typ = reflect.TypeOf(sample)
	}
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	return goreflect.TypeID(reflect.New(typ).Interface())
}

type selfHook struct {
	insert, update, delete bool
}

func (h selfHook) BeforeInsert(ctx context.Context, access domain.EntityAccess) bool {
	return !h.insert || access.Object().(InsertHook).BeforeInsert(ctx)
}

func (h selfHook) BeforeUpdate(ctx context.Context, access domain.EntityAccess) bool {
	return !h.update || access.Object().(UpdateHook).BeforeUpdate(ctx)
}

func (h selfHook) BeforeDelete(ctx context.Context, access domain.EntityAccess) bool {
	return !h.delete || access.Object().(DeleteHook).BeforeDelete(ctx)
}
