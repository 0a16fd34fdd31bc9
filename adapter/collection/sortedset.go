package collection

import (
	"context"
	"iter"
	"slices"

	"github.com/vinicius-lino-figueiredo/gedm/mapping"
)

// Sortable is implemented by members of a [SortedSet].
type Sortable[T any] interface {
	comparable
	Compare(other T) int
}

// SortedSet is a persistent set kept in member order. Members comparing
// equal are duplicates. The zero value is an empty, unbound set.
type SortedSet[T Sortable[T]] struct {
	base[T]
	items []T
}

// NewSortedSet returns an unbound sorted set holding items.
func NewSortedSet[T Sortable[T]](items ...T) *SortedSet[T] {
	s := &SortedSet[T]{}
	for _, v := range items {
		s.insert(v)
	}
	return s
}

// CollectionKind implements [mapping.CollectionType].
func (s *SortedSet[T]) CollectionKind() mapping.CollectionKind {
	return mapping.CollectionSortedSet
}

// Initialize loads the members if the set was not initialized yet.
func (s *SortedSet[T]) Initialize(ctx context.Context) error {
	return s.initialize(ctx, s.fill, s.size)
}

func (s *SortedSet[T]) init() {
	_ = s.initialize(s.ctx, s.fill, s.size)
}

func (s *SortedSet[T]) fill(items []T) { s.AddAll(items...) }

func (s *SortedSet[T]) size() int { return len(s.items) }

func compare[T Sortable[T]](a, b T) int { return a.Compare(b) }

func (s *SortedSet[T]) search(v T) (int, bool) {
	return slices.BinarySearchFunc(s.items, v, compare[T])
}

func (s *SortedSet[T]) insert(v T) bool {
	i, found := s.search(v)
	if found {
		return false
	}
	s.items = slices.Insert(s.items, i, v)
	return true
}

// Len returns the number of members.
func (s *SortedSet[T]) Len() int {
	s.init()
	return len(s.items)
}

// Contains reports whether a member compares equal to v.
func (s *SortedSet[T]) Contains(v T) bool {
	s.init()
	_, found := s.search(v)
	return found
}

// First returns the smallest member. It returns false if the set is empty.
func (s *SortedSet[T]) First() (T, bool) {
	s.init()
	if len(s.items) == 0 {
		var zero T
		return zero, false
	}
	return s.items[0], true
}

// Last returns the greatest member. It returns false if the set is empty.
func (s *SortedSet[T]) Last() (T, bool) {
	s.init()
	if len(s.items) == 0 {
		var zero T
		return zero, false
	}
	return s.items[len(s.items)-1], true
}

// All returns an iterator over the members in order.
func (s *SortedSet[T]) All() iter.Seq[T] {
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
func (s *SortedSet[T]) Values() []T {
	s.init()
	return slices.Clone(s.items)
}

// Elements implements [Persistent].
func (s *SortedSet[T]) Elements() []any {
	s.init()
	return toAny(s.items)
}

// Add adds v and reports whether no member compared equal to it.
func (s *SortedSet[T]) Add(v T) bool {
	return s.AddAll(v)
}

// AddAll adds vs and reports whether any of them was added.
func (s *SortedSet[T]) AddAll(vs ...T) bool {
	s.init()
	changed := false
	for _, v := range vs {
		changed = s.insert(v) || changed
	}
	if changed {
		s.markDirty()
	}
	return changed
}

// Remove removes the member comparing equal to v and reports whether there
// was one.
func (s *SortedSet[T]) Remove(v T) bool {
	return s.RemoveAll(v)
}

// RemoveAll removes the members comparing equal to any of vs.
func (s *SortedSet[T]) RemoveAll(vs ...T) bool {
	s.init()
	changed := false
	for _, v := range vs {
		if i, found := s.search(v); found {
			s.items = slices.Delete(s.items, i, i+1)
			changed = true
		}
	}
	if changed {
		s.markDirty()
	}
	return changed
}

// RetainAll removes every member not comparing equal to one of vs.
func (s *SortedSet[T]) RetainAll(vs ...T) bool {
	return s.DeleteFunc(func(v T) bool {
		return !slices.ContainsFunc(vs, func(o T) bool { return v.Compare(o) == 0 })
	})
}

// DeleteFunc removes the members for which del returns true and reports
// whether anything was removed.
func (s *SortedSet[T]) DeleteFunc(del func(T) bool) bool {
	s.init()
	before := len(s.items)
	s.items = slices.DeleteFunc(s.items, del)
	if len(s.items) == before {
		return false
	}
	s.markDirty()
	return true
}

// Clear removes every member.
func (s *SortedSet[T]) Clear() {
	s.init()
	if len(s.items) == 0 {
		return
	}
	clear(s.items)
	s.items = s.items[:0]
	s.markDirty()
}

// HasGrown reports whether the set has more members than when it was
// loaded.
func (s *SortedSet[T]) HasGrown() bool {
	return s.IsInitialized() && len(s.items) > s.originalSize
}

// HasShrunk reports whether the set has fewer members than when it was
// loaded.
func (s *SortedSet[T]) HasShrunk() bool {
	return s.IsInitialized() && len(s.items) < s.originalSize
}

// HasChangedSize reports whether the size differs from the loaded size.
func (s *SortedSet[T]) HasChangedSize() bool {
	return s.IsInitialized() && len(s.items) != s.originalSize
}
