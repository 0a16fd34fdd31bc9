package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/vinicius-lino-figueiredo/bst"
	"github.com/vinicius-lino-figueiredo/bst/adapter/avl"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/mapping"
)

type bstComparer struct {
	comparer domain.Comparer
}

func newBSTComparer(comparer domain.Comparer) bst.Comparer[any, any] {
	return &bstComparer{comparer: comparer}
}

// CompareKeys implements bst.Comparer.
func (bc *bstComparer) CompareKeys(a any, b any) (int, error) {
	return bc.comparer.Compare(a, b)
}

// CompareValues implements bst.Comparer.
func (bc *bstComparer) CompareValues(a any, b any) (bool, error) {
	c, err := bc.comparer.Compare(a, b)
	if err != nil {
		return false, err
	}
	return c == 0, nil
}

// PropertyIndex maps property values to entry keys. It is ordered, so it
// also answers range queries.
type PropertyIndex struct {
	mu       sync.RWMutex
	tree     bst.BST[any, any]
	comparer bst.Comparer[any, any]
	// values holds the indexed values of each key, for snapshots.
	values map[any][]any
}

func newPropertyIndex(c domain.Comparer) *PropertyIndex {
	bc := newBSTComparer(c)
	return &PropertyIndex{
		tree:     avl.NewBST(false, 8, bc),
		comparer: bc,
		values:   make(map[any][]any),
	}
}

// Index implements [domain.PropertyValueIndexer].
func (i *PropertyIndex) Index(ctx context.Context, value any, key any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.tree.Insert(value, key); err != nil {
		return err
	}
	i.values[mapKey(key)] = append(i.values[mapKey(key)], value)
	return nil
}

// Deindex implements [domain.PropertyValueIndexer].
func (i *PropertyIndex) Deindex(ctx context.Context, value any, key any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.tree.Delete(value, &key); err != nil {
		return err
	}
	vals := i.values[mapKey(key)]
	if n := slices.IndexFunc(vals, func(v any) bool {
		eq, _ := i.comparer.CompareValues(v, value)
		return eq
	}); n >= 0 {
		vals = slices.Delete(vals, n, n+1)
	}
	if len(vals) == 0 {
		delete(i.values, mapKey(key))
	} else {
		i.values[mapKey(key)] = vals
	}
	return nil
}

// Query implements [domain.PropertyValueIndexer].
func (i *PropertyIndex) Query(ctx context.Context, value any) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	found, err := i.tree.Search(value)
	if err != nil || found == nil {
		return nil, err
	}
	return slices.Clone(found.Values()), nil
}

// QueryRange implements [domain.RangeIndexer].
func (i *PropertyIndex) QueryRange(ctx context.Context, from, to any, includeFrom, includeTo bool) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var q bst.Query[any]
	if from != nil {
		q.GreaterThan = &bst.Bound[any]{Value: from, IncludeEqual: includeFrom}
	}
	if to != nil {
		q.LowerThan = &bst.Bound[any]{Value: to, IncludeEqual: includeTo}
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	var res []any
	for key, err := range i.tree.Query(q) {
		if err != nil {
			return nil, err
		}
		res = append(res, key)
	}
	return res, nil
}

// AssociationIndex maps owner keys to the keys of their associated entries.
type AssociationIndex struct {
	entity *mapping.Entity
	keys   *xsync.MapOf[any, []any]
}

func newAssociationIndex(entity *mapping.Entity) *AssociationIndex {
	return &AssociationIndex{entity: entity, keys: xsync.NewMapOf[any, []any]()}
}

// Query implements [domain.AssociationQueryExecutor].
func (a *AssociationIndex) Query(ctx context.Context, ownerKey any) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	keys, _ := a.keys.Load(mapKey(ownerKey))
	return slices.Clone(keys), nil
}

// DoesReturnKeys implements [domain.AssociationQueryExecutor].
func (a *AssociationIndex) DoesReturnKeys() bool { return true }

// IndexedEntity implements [domain.AssociationQueryExecutor].
func (a *AssociationIndex) IndexedEntity() *mapping.Entity { return a.entity }

// Index implements [domain.AssociationIndexer].
func (a *AssociationIndex) Index(_ context.Context, ownerKey any, keys []any) error {
	a.keys.Store(mapKey(ownerKey), slices.Clone(keys))
	return nil
}

// IndexOne implements [domain.AssociationIndexer].
func (a *AssociationIndex) IndexOne(_ context.Context, ownerKey any, key any) error {
	a.keys.Compute(mapKey(ownerKey), func(old []any, _ bool) ([]any, bool) {
		if slices.Contains(old, mapKey(key)) {
			return old, false
		}
		return append(slices.Clone(old), mapKey(key)), false
	})
	return nil
}

// Deindex implements [domain.AssociationIndexer].
func (a *AssociationIndex) Deindex(_ context.Context, ownerKey any) error {
	a.keys.Delete(mapKey(ownerKey))
	return nil
}
