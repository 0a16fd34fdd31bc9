// Package memory contains an in-process store keeping native entries in
// concurrent maps. Property indexes are ordered trees, so range criteria are
// answered without scanning. The whole content can be written to and read
// from a msgpack snapshot.
package memory

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/comparer"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/idgenerator"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/persister"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/mapping"
	"github.com/vinicius-lino-figueiredo/gedm/pkg/ctxsync"
)

var (
	_ persister.Store[data.Entry]          = (*Store)(nil)
	_ persister.BatchRetriever[data.Entry] = (*Store)(nil)
	_ persister.BatchDeleter               = (*Store)(nil)
	_ persister.Locker                     = (*Store)(nil)
	_ persister.EmbeddedStore[data.Entry]  = (*Store)(nil)
	_ persister.KeyScanner                 = (*Store)(nil)
)

type family = xsync.MapOf[any, data.Entry]

// Store implements [persister.Store] in memory. It is safe for concurrent
// use.
type Store struct {
	families   *xsync.MapOf[string, *family]
	sequences  *xsync.MapOf[string, int64]
	properties *xsync.MapOf[string, *PropertyIndex]
	assocs     *xsync.MapOf[string, *AssociationIndex]
	locks      *ctxsync.KeyedMutex[string]
	comparer   domain.Comparer
	ids        domain.IDGenerator
	logger     *zap.Logger
}

// NewStore returns an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		families:   xsync.NewMapOf[string, *family](),
		sequences:  xsync.NewMapOf[string, int64](),
		properties: xsync.NewMapOf[string, *PropertyIndex](),
		assocs:     xsync.NewMapOf[string, *AssociationIndex](),
		locks:      ctxsync.NewKeyedMutex[string](),
		comparer:   comparer.NewComparer(),
		ids:        idgenerator.NewIDGenerator(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// mapKey makes native keys usable as map keys.
func mapKey(key any) any {
	if b, ok := key.([]byte); ok {
		return string(b)
	}
	return key
}

func (s *Store) family(name string) *family {
	f, _ := s.families.LoadOrCompute(name, func() *family { return xsync.NewMapOf[any, data.Entry]() })
	return f
}

// CreateNewEntry implements [persister.Store].
func (s *Store) CreateNewEntry(string) data.Entry { return data.Entry{} }

// GetEntryValue implements [persister.Store].
func (s *Store) GetEntryValue(entry data.Entry, key string) any { return entry.Get(key) }

// SetEntryValue implements [persister.Store].
func (s *Store) SetEntryValue(entry data.Entry, key string, value any) { entry.Set(key, value) }

// CreateEmbeddedEntry implements [persister.EmbeddedStore].
func (s *Store) CreateEmbeddedEntry(*mapping.Entity) data.Entry { return data.Entry{} }

// SetEmbedded implements [persister.EmbeddedStore].
func (s *Store) SetEmbedded(entry data.Entry, key string, embedded data.Entry) {
	entry.Set(key, embedded)
}

// GetEmbedded implements [persister.EmbeddedStore].
func (s *Store) GetEmbedded(entry data.Entry, key string) (data.Entry, bool) {
	e, ok := entry.Get(key).(data.Entry)
	return e, ok
}

// RetrieveEntry implements [persister.Store]. The entry is a copy.
func (s *Store) RetrieveEntry(ctx context.Context, _ *mapping.Entity, family string, key any) (data.Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	e, ok := s.family(family).Load(mapKey(key))
	if !ok {
		return nil, false, nil
	}
	return e.Clone(), true, nil
}

// RetrieveEntries implements [persister.BatchRetriever].
func (s *Store) RetrieveEntries(ctx context.Context, _ *mapping.Entity, family string, keys []any) ([]data.Entry, []bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	f := s.family(family)
	entries := make([]data.Entry, len(keys))
	found := make([]bool, len(keys))
	for i, key := range keys {
		if e, ok := f.Load(mapKey(key)); ok {
			entries[i], found[i] = e.Clone(), true
		}
	}
	return entries, found, nil
}

// StoreEntry implements [persister.Store]. Entries without key get the next
// value of the family sequence.
func (s *Store) StoreEntry(ctx context.Context, entity *mapping.Entity, _ domain.EntityAccess, key any, entry data.Entry) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := entity.Family()
	if key == nil {
		key, _ = s.sequences.Compute(name, func(old int64, _ bool) (int64, bool) {
			return old + 1, false
		})
	} else {
		s.observe(name, key)
	}
	if _, loaded := s.family(name).LoadOrStore(mapKey(key), entry.Clone()); loaded {
		return nil, fmt.Errorf("%w: %s entry %v already exists", domain.ErrDataIntegrity, name, key)
	}
	s.logger.Debug("entry stored", zap.String("family", name), zap.Any("key", key))
	return key, nil
}

// observe keeps the family sequence past integer keys chosen elsewhere.
func (s *Store) observe(family string, key any) {
	k, ok := key.(int64)
	if !ok {
		return
	}
	s.sequences.Compute(family, func(old int64, _ bool) (int64, bool) {
		return max(old, k), false
	})
}

// UpdateEntry implements [persister.Store]. Missing entries are created.
func (s *Store) UpdateEntry(ctx context.Context, entity *mapping.Entity, _ domain.EntityAccess, key any, entry data.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := entity.Family()
	s.observe(name, key)
	var err error
	s.family(name).Compute(mapKey(key), func(old data.Entry, loaded bool) (data.Entry, bool) {
		if v := entity.Version(); v != nil && loaded {
			if !s.versionFollows(old.Get(v.Key()), entry.Get(v.Key())) {
				err = fmt.Errorf("%w: %s entry %v", domain.ErrOptimisticLocking, name, key)
				return old, false
			}
		}
		return entry.Clone(), false
	})
	return err
}

func (s *Store) versionFollows(prev, next any) bool {
	p, _ := version(prev)
	n, ok := version(next)
	return ok && n == p+1
}

func version(v any) (int64, bool) {
	switch t := data.Native(v).(type) {
	case int64:
		return t, true
	case uint64:
		return int64(t), true
	}
	return 0, false
}

// DeleteEntry implements [persister.Store].
func (s *Store) DeleteEntry(ctx context.Context, family string, key any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.family(family).Delete(mapKey(key))
	return nil
}

// DeleteEntries implements [persister.BatchDeleter].
func (s *Store) DeleteEntries(ctx context.Context, family string, keys []any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f := s.family(family)
	for _, key := range keys {
		f.Delete(mapKey(key))
	}
	return nil
}

// GenerateIdentifier implements [persister.Store]. Integer identifiers are
// left to [Store.StoreEntry]; others come from the identifier generator.
func (s *Store) GenerateIdentifier(ctx context.Context, entity *mapping.Entity, _ data.Entry) (any, error) {
	id := entity.Root().Identity()
	if id == nil {
		return nil, nil
	}
	typ := id.Type()
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	switch typ.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return nil, nil
	}
	return s.ids.GenerateID(ctx, typ)
}

// PropertyIndexer implements [persister.Store].
func (s *Store) PropertyIndexer(p mapping.Property) domain.PropertyValueIndexer {
	if !p.Mapping().Index {
		return nil
	}
	idx, _ := s.properties.LoadOrCompute(indexName(p), func() *PropertyIndex {
		return newPropertyIndex(s.comparer)
	})
	return idx
}

// AssociationIndexer implements [persister.Store].
func (s *Store) AssociationIndexer(_ data.Entry, p *mapping.OneToMany) domain.AssociationIndexer {
	idx, _ := s.assocs.Compute(indexName(p), func(old *AssociationIndex, loaded bool) (*AssociationIndex, bool) {
		if !loaded {
			return newAssociationIndex(p.AssociatedEntity()), false
		}
		if old.entity == nil {
			old.entity = p.AssociatedEntity()
		}
		return old, false
	})
	return idx
}

func indexName(p mapping.Property) string {
	return p.Owner().Family() + "." + p.Key()
}

// LockEntry implements [persister.Locker].
func (s *Store) LockEntry(ctx context.Context, entity *mapping.Entity, key any, timeout time.Duration) error {
	err := s.locks.Lock(ctx, lockName(entity, key), timeout)
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s entry %v", domain.ErrCannotAcquireLock, entity.Name(), key)
	}
	return err
}

// UnlockEntry implements [persister.Locker].
func (s *Store) UnlockEntry(_ context.Context, entity *mapping.Entity, key any) error {
	return s.locks.Unlock(lockName(entity, key))
}

func lockName(entity *mapping.Entity, key any) string {
	return fmt.Sprintf("%s:%v", entity.Family(), key)
}

// ScanKeys implements [persister.KeyScanner]. Keys are sorted.
func (s *Store) ScanKeys(ctx context.Context, _ *mapping.Entity, family string) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f := s.family(family)
	keys := make([]any, 0, f.Size())
	f.Range(func(k any, _ data.Entry) bool {
		keys = append(keys, k)
		return true
	})
	slices.SortFunc(keys, s.compare)
	return keys, nil
}

func (s *Store) compare(a, b any) int {
	c, err := s.comparer.Compare(a, b)
	if err != nil {
		return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
	return c
}

// Families returns the names of the families holding entries.
func (s *Store) Families() []string {
	var res []string
	s.families.Range(func(name string, f *family) bool {
		if f.Size() > 0 {
			res = append(res, name)
		}
		return true
	})
	slices.Sort(res)
	return res
}
