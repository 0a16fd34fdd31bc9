package collection

import (
	"context"
	"iter"
	"slices"

	"github.com/vinicius-lino-figueiredo/gedm/mapping"
)

// List is an ordered persistent collection. The zero value is an empty,
// unbound list.
type List[T comparable] struct {
	base[T]
	items []T
}

// NewList returns an unbound list holding items.
func NewList[T comparable](items ...T) *List[T] {
	return &List[T]{items: items}
}

// CollectionKind implements [mapping.CollectionType].
func (l *List[T]) CollectionKind() mapping.CollectionKind { return mapping.CollectionList }

// Initialize loads the members if the list was not initialized yet.
func (l *List[T]) Initialize(ctx context.Context) error {
	return l.initialize(ctx, l.fill, l.size)
}

func (l *List[T]) init() {
	_ = l.initialize(l.ctx, l.fill, l.size)
}

func (l *List[T]) fill(items []T) { l.AddAll(items...) }

func (l *List[T]) size() int { return len(l.items) }

// Len returns the number of members.
func (l *List[T]) Len() int {
	l.init()
	return len(l.items)
}

// Get returns the member at index i.
func (l *List[T]) Get(i int) T {
	l.init()
	return l.items[i]
}

// IndexOf returns the index of the first occurrence of v, or -1.
func (l *List[T]) IndexOf(v T) int {
	l.init()
	return slices.Index(l.items, v)
}

// Contains reports whether v is a member.
func (l *List[T]) Contains(v T) bool {
	return l.IndexOf(v) >= 0
}

// All returns an iterator over indexes and members.
func (l *List[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		l.init()
		for i, v := range l.items {
			if !yield(i, v) {
				return
			}
		}
	}
}

// Values returns the members as a new slice.
func (l *List[T]) Values() []T {
	l.init()
	return slices.Clone(l.items)
}

// Elements implements [Persistent].
func (l *List[T]) Elements() []any {
	l.init()
	return toAny(l.items)
}

// Add appends v.
func (l *List[T]) Add(v T) bool {
	l.init()
	l.items = append(l.items, v)
	l.markDirty()
	return true
}

// AddAll appends vs and reports whether anything was added.
func (l *List[T]) AddAll(vs ...T) bool {
	l.init()
	if len(vs) == 0 {
		return false
	}
	l.items = append(l.items, vs...)
	l.markDirty()
	return true
}

// Insert inserts v at index i.
func (l *List[T]) Insert(i int, v T) {
	l.init()
	l.items = slices.Insert(l.items, i, v)
	l.markDirty()
}

// Set replaces the member at index i and returns the previous one.
func (l *List[T]) Set(i int, v T) T {
	l.init()
	old := l.items[i]
	l.items[i] = v
	if old != v {
		l.markDirty()
	}
	return old
}

// Remove removes the first occurrence of v and reports whether it was found.
func (l *List[T]) Remove(v T) bool {
	l.init()
	i := slices.Index(l.items, v)
	if i < 0 {
		return false
	}
	l.items = slices.Delete(l.items, i, i+1)
	l.markDirty()
	return true
}

// RemoveAt removes the member at index i and returns it.
func (l *List[T]) RemoveAt(i int) T {
	l.init()
	old := l.items[i]
	l.items = slices.Delete(l.items, i, i+1)
	l.markDirty()
	return old
}

// RemoveAll removes every occurrence of vs and reports whether anything was
// removed.
func (l *List[T]) RemoveAll(vs ...T) bool {
	return l.DeleteFunc(func(v T) bool { return slices.Contains(vs, v) })
}

// RetainAll removes every member not in vs and reports whether anything was
// removed.
func (l *List[T]) RetainAll(vs ...T) bool {
	return l.DeleteFunc(func(v T) bool { return !slices.Contains(vs, v) })
}

// DeleteFunc removes the members for which del returns true and reports
// whether anything was removed.
func (l *List[T]) DeleteFunc(del func(T) bool) bool {
	l.init()
	before := len(l.items)
	l.items = slices.DeleteFunc(l.items, del)
	if len(l.items) == before {
		return false
	}
	l.markDirty()
	return true
}

// Clear removes every member.
func (l *List[T]) Clear() {
	l.init()
	if len(l.items) == 0 {
		return
	}
	clear(l.items)
	l.items = l.items[:0]
	l.markDirty()
}

// HasGrown reports whether the list has more members than when it was
// loaded.
func (l *List[T]) HasGrown() bool {
	return l.IsInitialized() && len(l.items) > l.originalSize
}

// HasShrunk reports whether the list has fewer members than when it was
// loaded.
func (l *List[T]) HasShrunk() bool {
	return l.IsInitialized() && len(l.items) < l.originalSize
}

// HasChangedSize reports whether the size differs from the loaded size.
func (l *List[T]) HasChangedSize() bool {
	return l.IsInitialized() && len(l.items) != l.originalSize
}

func toAny[T any](items []T) []any {
	res := make([]any, len(items))
	for i, v := range items {
		res[i] = v
	}
	return res
}
