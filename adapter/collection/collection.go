// Package collection contains the persistent collections standing in for
// to-many associations: [List], [Set] and [SortedSet].
//
// A collection hydrated by a persister is bound to the place its members come
// from and stays uninitialized until one of its methods needs the members.
// Initialization happens exactly once. Collections created by the
// application are never bound and behave as plain containers.
//
// Collections must not be used by multiple goroutines at once.
package collection

import (
	"context"
	"fmt"
	"reflect"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/proxy"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/mapping"
)

// State is the initialization state of a collection.
type State uint8

const (
	// Uninitialized collections have not loaded their members yet.
	Uninitialized State = iota
	// Initializing collections are loading their members.
	Initializing
	// Initialized collections hold their members.
	Initialized
)

// Binding tells an uninitialized collection where to load its members
// from. Either Keys or Executor is set.
type Binding struct {
	Session domain.Session
	// Type is the entity type of the members.
	Type reflect.Type
	// Keys is a plain list of member identifiers.
	Keys     []any
	Executor domain.AssociationQueryExecutor
	OwnerKey any
	// Proxies makes members lazy references instead of loaded instances.
	Proxies bool
	Factory *proxy.Factory
}

// Persistent is implemented by every collection of this package. It is what
// persisters use to handle collections without knowing their element type.
type Persistent interface {
	mapping.CollectionType
	Bind(ctx context.Context, b Binding)
	IsBound() bool
	State() State
	IsInitialized() bool
	Initialize(ctx context.Context) error
	IsDirty() bool
	ResetDirty()
	// Elements returns the members as a new slice.
	Elements() []any
	Err() error
}

type base[T any] struct {
	state        State
	dirty        bool
	bound        bool
	originalSize int
	binding      Binding
	ctx          context.Context
	err          error
}

// Bind makes the collection uninitialized and loading from b. Implicit
// initializations, triggered by accessors that take no context, use a
// context derived from ctx that is never canceled.
func (c *base[T]) Bind(ctx context.Context, b Binding) {
	c.state = Uninitialized
	c.bound = true
	c.binding = b
	c.ctx = context.WithoutCancel(ctx)
	c.dirty = false
	c.err = nil
}

// IsBound reports whether the collection was hydrated by a persister.
func (c *base[T]) IsBound() bool { return c.bound }

// State returns the initialization state.
func (c *base[T]) State() State {
	if !c.bound {
		return Initialized
	}
	return c.state
}

// IsInitialized reports whether the members were loaded.
func (c *base[T]) IsInitialized() bool { return c.State() == Initialized }

// IsDirty reports whether the container changed since it was loaded or
// since the last call to ResetDirty.
func (c *base[T]) IsDirty() bool { return c.dirty }

// ResetDirty clears the dirty flag.
func (c *base[T]) ResetDirty() { c.dirty = false }

// OriginalSize returns the number of members right after initialization.
func (c *base[T]) OriginalSize() int { return c.originalSize }

// Err returns the error of the initialization, if it failed.
func (c *base[T]) Err() error { return c.err }

// ElementType implements [mapping.CollectionType].
func (c *base[T]) ElementType() reflect.Type { return reflect.TypeFor[T]() }

func (c *base[T]) markDirty() {
	if c.state == Initializing {
		return
	}
	c.dirty = true
}

// initialize loads the members through fill, once. Calls made while
// loading return immediately.
func (c *base[T]) initialize(ctx context.Context, fill func([]T), size func() int) error {
	if !c.bound || c.state != Uninitialized {
		return c.err
	}
	c.state = Initializing
	items, err := c.load(ctx)
	if err != nil {
		c.err = err
	} else {
		fill(items)
	}
	c.state = Initialized
	c.originalSize = size()
	return c.err
}

func (c *base[T]) load(ctx context.Context) ([]T, error) {
	b := c.binding
	raw := b.Keys
	keys := true
	if b.Executor != nil {
		res, err := b.Executor.Query(ctx, b.OwnerKey)
		if err != nil {
			return nil, err
		}
		raw = res
		keys = b.Executor.DoesReturnKeys()
	}
	if len(raw) == 0 {
		return nil, nil
	}

	if keys {
		var err error
		if raw, err = c.resolve(ctx, raw); err != nil {
			return nil, err
		}
	}

	res := make([]T, 0, len(raw))
	for _, item := range raw {
		t, ok := item.(T)
		if !ok {
			return nil, domain.ErrElementType{Expected: reflect.TypeFor[T]().String(), Value: item}
		}
		res = append(res, t)
	}
	return res, nil
}

func (c *base[T]) resolve(ctx context.Context, keys []any) ([]any, error) {
	b := c.binding
	if b.Session == nil {
		return nil, fmt.Errorf("collection of %s has no session", b.Type)
	}
	if !b.Proxies {
		return b.Session.RetrieveAll(ctx, b.Type, keys)
	}

	factory := b.Factory
	if factory == nil {
		factory = proxy.NewFactory()
	}
	resolver := func(ctx context.Context, key any) (any, error) {
		return b.Session.Retrieve(ctx, b.Type, key)
	}
	res := make([]any, len(keys))
	for i, key := range keys {
		p, err := factory.Create(reflect.TypeFor[T](), key, resolver)
		if err != nil {
			return nil, err
		}
		res[i] = p
	}
	return res, nil
}
