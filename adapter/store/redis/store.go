// Package redis contains a store keeping native entries in Redis. Each entry
// is a hash whose fields hold msgpack encoded values. Property indexes are
// sets named after the hash of the indexed value, plus a sorted set for
// numbers and times answering range criteria.
package redis

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/comparer"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/hasher"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/idgenerator"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/persister"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/mapping"
)

var (
	_ persister.Store[data.Entry]          = (*Store)(nil)
	_ persister.BatchRetriever[data.Entry] = (*Store)(nil)
	_ persister.BatchDeleter               = (*Store)(nil)
	_ persister.Locker                     = (*Store)(nil)
	_ persister.KeyScanner                 = (*Store)(nil)
)

// Store implements [persister.Store] over a Redis client.
type Store struct {
	client    redis.UniversalClient
	prefix    string
	rangeTTL  time.Duration
	lockTTL   time.Duration
	lockRetry time.Duration
	tokens    *xsync.MapOf[string, string]
	comparer  domain.Comparer
	hasher    domain.Hasher
	ids       domain.IDGenerator
	logger    *zap.Logger
}

// NewStore returns a store using client. Every key it writes starts with
// the configured prefix, "gedm" by default.
func NewStore(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client:    client,
		prefix:    "gedm",
		rangeTTL:  time.Minute,
		lockTTL:   30 * time.Second,
		lockRetry: 50 * time.Millisecond,
		tokens:    xsync.NewMapOf[string, string](),
		comparer:  comparer.NewComparer(),
		hasher:    hasher.NewHasher(),
		ids:       idgenerator.NewIDGenerator(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Client returns the underlying client.
func (s *Store) Client() redis.UniversalClient { return s.client }

func (s *Store) key(parts ...string) string {
	k := s.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func (s *Store) entryKey(family string, key any) string {
	return s.key(family, keyString(key))
}

func (s *Store) allKey(family string) string {
	return s.key(family, "all")
}

func keyString(key any) string {
	if b, ok := key.([]byte); ok {
		return string(b)
	}
	return fmt.Sprint(key)
}

// CreateNewEntry implements [persister.Store].
func (s *Store) CreateNewEntry(string) data.Entry { return data.Entry{} }

// GetEntryValue implements [persister.Store].
func (s *Store) GetEntryValue(entry data.Entry, key string) any { return entry.Get(key) }

// SetEntryValue implements [persister.Store].
func (s *Store) SetEntryValue(entry data.Entry, key string, value any) { entry.Set(key, value) }

// RetrieveEntry implements [persister.Store].
func (s *Store) RetrieveEntry(ctx context.Context, _ *mapping.Entity, family string, key any) (data.Entry, bool, error) {
	fields, err := s.client.HGetAll(ctx, s.entryKey(family, key)).Result()
	if err != nil {
		return nil, false, err
	}
	if len(fields) == 0 {
		return nil, false, nil
	}
	e, err := decodeEntry(fields)
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

// RetrieveEntries implements [persister.BatchRetriever]. The entries are
// read in one pipeline.
func (s *Store) RetrieveEntries(ctx context.Context, _ *mapping.Entity, family string, keys []any) ([]data.Entry, []bool, error) {
	cmds := make([]*redis.MapStringStringCmd, len(keys))
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, k := range keys {
			cmds[i] = pipe.HGetAll(ctx, s.entryKey(family, k))
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	entries := make([]data.Entry, len(keys))
	found := make([]bool, len(keys))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		if entries[i], err = decodeEntry(fields); err != nil {
			return nil, nil, err
		}
		found[i] = true
	}
	return entries, found, nil
}

// StoreEntry implements [persister.Store].
func (s *Store) StoreEntry(ctx context.Context, entity *mapping.Entity, _ domain.EntityAccess, key any, entry data.Entry) (any, error) {
	family := entity.Family()
	if key == nil {
		next, err := s.client.Incr(ctx, s.key(family, "next_id")).Result()
		if err != nil {
			return nil, err
		}
		key = next
	}
	fields, err := encodeEntry(entry)
	if err != nil {
		return nil, err
	}
	member, err := encode(key)
	if err != nil {
		return nil, err
	}
	ek := s.entryKey(family, key)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, ek).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %s entry %v already exists", domain.ErrDataIntegrity, family, key)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(fields) > 0 {
				pipe.HSet(ctx, ek, fields)
			}
			pipe.SAdd(ctx, s.allKey(family), member)
			return nil
		})
		return err
	}, ek)
	if errors.Is(err, redis.TxFailedErr) {
		return nil, fmt.Errorf("%w: %s entry %v was written concurrently", domain.ErrDataIntegrity, family, key)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Debug("entry stored", zap.String("family", family), zap.Any("key", key))
	return key, nil
}

// UpdateEntry implements [persister.Store]. Versioned entries are only
// written when the stored version precedes the new one.
func (s *Store) UpdateEntry(ctx context.Context, entity *mapping.Entity, _ domain.EntityAccess, key any, entry data.Entry) error {
	family := entity.Family()
	fields, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	member, err := encode(key)
	if err != nil {
		return err
	}
	ek := s.entryKey(family, key)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		if v := entity.Version(); v != nil {
			raw, err := tx.HGet(ctx, ek, v.Key()).Result()
			switch {
			case errors.Is(err, redis.Nil):
			case err != nil:
				return err
			default:
				prev, err := decode(raw)
				if err != nil {
					return err
				}
				if !versionFollows(prev, entry.Get(v.Key())) {
					return fmt.Errorf("%w: %s entry %v", domain.ErrOptimisticLocking, family, key)
				}
			}
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, ek)
			if len(fields) > 0 {
				pipe.HSet(ctx, ek, fields)
			}
			pipe.SAdd(ctx, s.allKey(family), member)
			return nil
		})
		return err
	}, ek)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: %s entry %v was written concurrently", domain.ErrOptimisticLocking, family, key)
	}
	return err
}

func versionFollows(prev, next any) bool {
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
	return s.DeleteEntries(ctx, family, []any{key})
}

// DeleteEntries implements [persister.BatchDeleter].
func (s *Store) DeleteEntries(ctx context.Context, family string, keys []any) error {
	if len(keys) == 0 {
		return nil
	}
	entryKeys := make([]string, len(keys))
	members := make([]any, len(keys))
	for i, k := range keys {
		entryKeys[i] = s.entryKey(family, k)
		m, err := encode(k)
		if err != nil {
			return err
		}
		members[i] = m
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, entryKeys...)
		pipe.SRem(ctx, s.allKey(family), members...)
		return nil
	})
	return err
}

// GenerateIdentifier implements [persister.Store]. Integer identifiers come
// from a counter per family.
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
		return s.client.Incr(ctx, s.key(entity.Family(), "next_id")).Result()
	}
	return s.ids.GenerateID(ctx, typ)
}

// ScanKeys implements [persister.KeyScanner].
func (s *Store) ScanKeys(ctx context.Context, _ *mapping.Entity, family string) ([]any, error) {
	members, err := s.client.SMembers(ctx, s.allKey(family)).Result()
	if err != nil {
		return nil, err
	}
	keys, err := decodeAll(members)
	if err != nil {
		return nil, err
	}
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

// PropertyIndexer implements [persister.Store].
func (s *Store) PropertyIndexer(p mapping.Property) domain.PropertyValueIndexer {
	if !p.Mapping().Index {
		return nil
	}
	return &PropertyIndex{store: s, root: s.key(p.Owner().Family(), p.Key())}
}

// AssociationIndexer implements [persister.Store].
func (s *Store) AssociationIndexer(_ data.Entry, p *mapping.OneToMany) domain.AssociationIndexer {
	return &AssociationIndex{
		store:  s,
		root:   s.key(p.Owner().Family(), p.Key()),
		entity: p.AssociatedEntity(),
	}
}
