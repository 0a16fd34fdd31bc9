// Package domain contains the contracts shared by every gedm component:
// session, persister, indexers, interceptors and the value helpers used by
// them.
package domain

import (
	"context"
	"reflect"
	"time"

	"github.com/vinicius-lino-figueiredo/gedm/mapping"
)

// FlushMode controls when pending changes are written before queries.
type FlushMode uint8

const (
	// FlushAuto flushes the session before every query.
	FlushAuto FlushMode = iota
	// FlushCommit only flushes on commit or explicit [Session.Flush].
	FlushCommit
)

// Session is the unit of work surface consumed by persisters, queries and
// persistent collections.
type Session interface {
	// Retrieve returns the instance of typ with the given key, or nil.
	Retrieve(ctx context.Context, typ reflect.Type, key any) (any, error)
	// RetrieveAll returns the instances for keys, skipping missing ones.
	RetrieveAll(ctx context.Context, typ reflect.Type, keys []any) ([]any, error)
	// Persist inserts or updates obj and returns its identifier.
	Persist(ctx context.Context, obj any) (any, error)
	// PersistAll persists every object and returns their identifiers.
	PersistAll(ctx context.Context, objs []any) ([]any, error)
	Delete(ctx context.Context, obj any) error
	// Persister returns the persister for a [reflect.Type], a
	// [*mapping.Entity] or an instance.
	Persister(typeOrInstance any) (Persister, error)
	MappingContext() *mapping.Context
	FlushMode() FlushMode
	Flush(ctx context.Context) error
	// Contains reports whether obj is attached to the session.
	Contains(obj any) bool
	// Attach registers an instance being hydrated, so cyclic associations
	// resolve to it instead of loading it again.
	Attach(entity *mapping.Entity, key any, obj any)
	// Detach removes an instance from the session.
	Detach(entity *mapping.Entity, key any)
}

// Persister maps instances of one entity to and from one store.
type Persister interface {
	Entity() *mapping.Entity
	Persist(ctx context.Context, obj any) (any, error)
	PersistAll(ctx context.Context, objs []any) ([]any, error)
	Retrieve(ctx context.Context, key any) (any, error)
	RetrieveAll(ctx context.Context, keys []any) ([]any, error)
	Delete(ctx context.Context, obj any) error
	DeleteAll(ctx context.Context, objs []any) error
	// Lock acquires a lock on the entry and returns the locked instance.
	Lock(ctx context.Context, key any, timeout time.Duration) (any, error)
	Unlock(ctx context.Context, obj any) error
	// Refresh reloads the state of obj from the store.
	Refresh(ctx context.Context, obj any) error
	// ObjectIdentifier returns the identifier of obj without loading it.
	ObjectIdentifier(obj any) any
}

// EntityAccess reads and writes the properties of a live instance.
type EntityAccess interface {
	Entity() *mapping.Entity
	Object() any
	Identifier() any
	SetIdentifier(value any) error
	Get(name string) any
	// Set converts value to the property type before setting it.
	Set(name string, value any) error
	// Field returns the addressable field of a property.
	Field(name string) reflect.Value
}

// EntityInterceptor is notified before writes. Returning false vetoes the
// operation without raising an error.
type EntityInterceptor interface {
	BeforeInsert(ctx context.Context, access EntityAccess) bool
	BeforeUpdate(ctx context.Context, access EntityAccess) bool
	BeforeDelete(ctx context.Context, access EntityAccess) bool
}

// PropertyValueIndexer is a secondary index from property values to the keys
// of the entries holding them.
type PropertyValueIndexer interface {
	Index(ctx context.Context, value any, key any) error
	Deindex(ctx context.Context, value any, key any) error
	Query(ctx context.Context, value any) ([]any, error)
}

// RangeIndexer is implemented by property indexers able to answer range
// queries. Nil bounds are open.
type RangeIndexer interface {
	QueryRange(ctx context.Context, from, to any, includeFrom, includeTo bool) ([]any, error)
}

// AssociationQueryExecutor lists the members of an association.
type AssociationQueryExecutor interface {
	// Query returns the related keys, or the related instances when
	// [AssociationQueryExecutor.DoesReturnKeys] is false.
	Query(ctx context.Context, ownerKey any) ([]any, error)
	DoesReturnKeys() bool
	IndexedEntity() *mapping.Entity
}

// AssociationIndexer maintains the index from an owner key to related keys.
type AssociationIndexer interface {
	AssociationQueryExecutor
	// Index replaces the related keys of the owner.
	Index(ctx context.Context, ownerKey any, keys []any) error
	// IndexOne appends a related key to the owner.
	IndexOne(ctx context.Context, ownerKey any, key any) error
	// Deindex removes every related key of the owner.
	Deindex(ctx context.Context, ownerKey any) error
}

// Resolver loads the instance behind a key.
type Resolver func(ctx context.Context, key any) (any, error)

// Reference is a lazy to-one association value.
type Reference interface {
	Key() any
	IsResolved() bool
	// Value returns the resolved instance, or nil.
	Value() any
	// SetValue installs a resolved instance.
	SetValue(v any) error
	// Bind makes the reference unresolved, holding key and loading it
	// through resolver on first access.
	Bind(key any, resolver Resolver)
}

// Decoder converts native values to Go values.
type Decoder interface {
	Decode(source any, target any) error
}

// Comparer defines the order of native values.
type Comparer interface {
	Compare(a, b any) (int, error)
	Comparable(a, b any) bool
}

// Hasher calculates stable hashes of native values.
type Hasher interface {
	Hash(value any) (uint64, error)
}

// IDGenerator creates identifiers for new entries.
type IDGenerator interface {
	GenerateID(ctx context.Context, typ reflect.Type) (any, error)
}

// TimeGetter returns the current time.
type TimeGetter interface {
	GetTime() time.Time
}
