package collection

import (
	"context"
	"iter"
	"slices"

	"github.com/vinicius-lino-figueiredo/gedm/mapping"
)

// Set is a persistent collection without duplicates. Members keep insertion
// order. The zero value is an empty, unbound set.
type Set[T comparable] struct {
	base[T]
	items []T
	index map[T]int
}

// NewSet returns an unbound set holding items.
func NewSet[T comparable](items ...T) *Set[T] {
	s := &Set[T]{}
	s.insert(items...)
	return s
}

// CollectionKind implements [mapping.CollectionType].
func (s *Set[T]) CollectionKind() mapping.CollectionKind { return mapping.CollectionSet }

// Initialize loads the members if the set was not initialized yet.
func (s *Set[T]) Initialize(ctx context.Context) error {
	return s.initialize(ctx, s.fill, s.size)
}

func (s *Set[T]) init() {
	_ = s.initialize(s.ctx, s.fill, s.size)
}

func (s *Set[T]) fill(items []T) { s.AddAll(items...) }

func (s *Set[T]) size() int { return len(s.items) }

// insert adds the missing members of vs and reports whether any was added.
func (s *Set[T]) insert(vs ...T) bool {
	if s.index == nil {
		s.index = make(map[T]int, len(vs))
	}
	changed := false
	for _, v := range vs {
		if _, ok := s.index[v]; ok {
			continue
		}
		s.index[v] = len(s.items)
		s.items = append(s.items, v)
		changed = true
	}
	return changed
}

func (s *Set[T]) reindex() {
	clear(s.index)
	for i, v := range s.items {
		s.index[v] = i
	}
}

// Len returns the number of members.
func (s *Set[T]) Len() int {
	s.init()
	return len(s.items)
}

// Contains reports whether v is a member.
func (s *Set[T]) Contains(v T) bool {
	s.init()
	_, ok := s.index[v]
	return ok
}

// All returns an iterator over the members.
func (s *Set[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		s.init()
		for _, v := range s.items {
			if !yield(v) {
				return
			}
		}
	}
}

// Values returns the members as a new slice.
func (s *Set[T]) Values() []T {
	s.init()
	return slices.Clone(s.items)
}

// Elements implements [Persistent].
func (s *Set[T]) Elements() []any {
	s.init()
	return toAny(s.items)
}

// Add adds v and reports whether it was not a member yet.
func (s *Set[T]) Add(v T) bool {
	return s.AddAll(v)
}

// AddAll adds vs and reports whether any of them was not a member yet.
func (s *Set[T]) AddAll(vs ...T) bool {
	s.init()
	if !s.insert(vs...) {
		return false
	}
	s.markDirty()
	return true
}

// Remove removes v and reports whether it was a member.
func (s *Set[T]) Remove(v T) bool {
	return s.RemoveAll(v)
}

// RemoveAll removes vs and reports whether any of them was a member.
func (s *Set[T]) RemoveAll(vs ...T) bool {
	return s.DeleteFunc(func(v T) bool { return slices.Contains(vs, v) })
}

// RetainAll removes every member not in vs and reports whether anything was
// removed.
func (s *Set[T]) RetainAll(vs ...T) bool {
	return s.DeleteFunc(func(v T) bool { return !slices.Contains(vs, v) })
}

// DeleteFunc removes the members for which del returns true and reports
// whether anything was removed.
func (s *Set[T]) DeleteFunc(del func(T) bool) bool {
	s.init()
	before := len(s.items)
	s.items = slices.DeleteFunc(s.items, del)
	if len(s.items) == before {
		return false
	}
	s.reindex()
	s.markDirty()
	return true
}

// Clear removes every member.
func (s *Set[T]) Clear() {
	s.init()
	if len(s.items) == 0 {
		return
	}
	clear(s.items)
	s.items = s.items[:0]
	clear(s.index)
	s.markDirty()
}

// HasGrown reports whether the set has more members than when it was
// loaded.
func (s *Set[T]) HasGrown() bool {
	return s.IsInitialized() && len(s.items) > s.originalSize
}

// HasShrunk reports whether the set has fewer members than when it was
// loaded.
func (s *Set[T]) HasShrunk() bool {
	return s.IsInitialized() && len(s.items) < s.originalSize
}

// HasChangedSize reports whether the size differs from the loaded size.
func (s *Set[T]) HasChangedSize() bool {
	return s.IsInitialized() && len(s.items) != s.originalSize
}
