package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/mapping"
)

var (
	_ domain.RangeIndexer       = (*PropertyIndex)(nil)
	_ domain.AssociationIndexer = (*AssociationIndex)(nil)
)

// PropertyIndex keeps, for each indexed value, a set of entry keys. Numbers
// and times are also scored in a sorted set.
type PropertyIndex struct {
	store *Store
	root  string
}

func (i *PropertyIndex) valueKey(value any) (string, error) {
	h, err := i.store.hasher.Hash(value)
	if err != nil {
		return "", err
	}
	return i.root + ":" + strconv.FormatUint(h, 16), nil
}

func (i *PropertyIndex) sortedKey() string { return i.root + ":sorted" }

// Index implements [domain.PropertyValueIndexer].
func (i *PropertyIndex) Index(ctx context.Context, value any, key any) error {
	if value == nil {
		return nil
	}
	vk, err := i.valueKey(value)
	if err != nil {
		return err
	}
	member, err := encode(key)
	if err != nil {
		return err
	}
	sc, scored := score(value)
	_, err = i.store.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, vk, member)
		if scored {
			pipe.ZAdd(ctx, i.sortedKey(), redis.Z{Score: sc, Member: member})
		}
		return nil
	})
	if err != nil || !scored {
		return err
	}
	return i.clearRanges(ctx)
}

// Deindex implements [domain.PropertyValueIndexer].
func (i *PropertyIndex) Deindex(ctx context.Context, value any, key any) error {
	if value == nil {
		return nil
	}
	vk, err := i.valueKey(value)
	if err != nil {
		return err
	}
	member, err := encode(key)
	if err != nil {
		return err
	}
	_, scored := score(value)
	_, err = i.store.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, vk, member)
		if scored {
			pipe.ZRem(ctx, i.sortedKey(), member)
		}
		return nil
	})
	if err != nil || !scored {
		return err
	}
	return i.clearRanges(ctx)
}

// Query implements [domain.PropertyValueIndexer].
func (i *PropertyIndex) Query(ctx context.Context, value any) ([]any, error) {
	vk, err := i.valueKey(value)
	if err != nil {
		return nil, err
	}
	members, err := i.store.client.SMembers(ctx, vk).Result()
	if err != nil {
		return nil, err
	}
	return decodeAll(members)
}

// QueryRange implements [domain.RangeIndexer]. Results are cached in a set
// expiring after the range cache TTL; any write to the index drops the
// cached ranges.
func (i *PropertyIndex) QueryRange(ctx context.Context, from, to any, includeFrom, includeTo bool) ([]any, error) {
	minScore, ok := bound(from, includeFrom, "-inf")
	if !ok {
		return nil, fmt.Errorf("%w: %T is not ordered by the index", domain.ErrUnsupportedQuery, from)
	}
	maxScore, ok := bound(to, includeTo, "+inf")
	if !ok {
		return nil, fmt.Errorf("%w: %T is not ordered by the index", domain.ErrUnsupportedQuery, to)
	}
	if i.store.rangeTTL <= 0 {
		members, err := i.store.client.ZRangeByScore(ctx, i.sortedKey(), &redis.ZRangeBy{Min: minScore, Max: maxScore}).Result()
		if err != nil {
			return nil, err
		}
		return decodeAll(members)
	}

	cacheKey := i.sortedKey() + "~" + minScore + "~" + maxScore
	members, err := i.store.client.SMembers(ctx, cacheKey).Result()
	if err != nil {
		return nil, err
	}
	if len(members) > 0 {
		return decodeAll(members)
	}
	members, err = i.store.client.ZRangeByScore(ctx, i.sortedKey(), &redis.ZRangeBy{Min: minScore, Max: maxScore}).Result()
	if err != nil {
		return nil, err
	}
	if len(members) > 0 {
		cached := make([]any, len(members))
		for n, m := range members {
			cached[n] = m
		}
		_, err = i.store.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SAdd(ctx, cacheKey, cached...)
			pipe.PExpire(ctx, cacheKey, i.store.rangeTTL)
			return nil
		})
		if err != nil {
			i.store.logger.Warn("caching range failed", zap.String("key", cacheKey), zap.Error(err))
		}
	}
	return decodeAll(members)
}

func (i *PropertyIndex) clearRanges(ctx context.Context) error {
	iter := i.store.client.Scan(ctx, 0, i.sortedKey()+"~*", 100).Iterator()
	var stale []string
	for iter.Next(ctx) {
		stale = append(stale, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}
	return i.store.client.Del(ctx, stale...).Err()
}

// AssociationIndex keeps the keys of the members of an association in a
// list per owner.
type AssociationIndex struct {
	store  *Store
	root   string
	entity *mapping.Entity
}

func (a *AssociationIndex) listKey(ownerKey any) string {
	return a.root + ":" + keyString(ownerKey)
}

// Query implements [domain.AssociationQueryExecutor].
func (a *AssociationIndex) Query(ctx context.Context, ownerKey any) ([]any, error) {
	members, err := a.store.client.LRange(ctx, a.listKey(ownerKey), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return decodeAll(members)
}

// DoesReturnKeys implements [domain.AssociationQueryExecutor].
func (a *AssociationIndex) DoesReturnKeys() bool { return true }

// IndexedEntity implements [domain.AssociationQueryExecutor].
func (a *AssociationIndex) IndexedEntity() *mapping.Entity { return a.entity }

// Index implements [domain.AssociationIndexer].
func (a *AssociationIndex) Index(ctx context.Context, ownerKey any, keys []any) error {
	members := make([]any, len(keys))
	for n, k := range keys {
		m, err := encode(k)
		if err != nil {
			return err
		}
		members[n] = m
	}
	lk := a.listKey(ownerKey)
	_, err := a.store.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, lk)
		if len(members) > 0 {
			pipe.RPush(ctx, lk, members...)
		}
		return nil
	})
	return err
}

// IndexOne implements [domain.AssociationIndexer].
func (a *AssociationIndex) IndexOne(ctx context.Context, ownerKey any, key any) error {
	member, err := encode(key)
	if err != nil {
		return err
	}
	lk := a.listKey(ownerKey)
	err = a.store.client.LPos(ctx, lk, member, redis.LPosArgs{}).Err()
	switch {
	case errors.Is(err, redis.Nil):
		return a.store.client.RPush(ctx, lk, member).Err()
	default:
		return err
	}
}

// Deindex implements [domain.AssociationIndexer].
func (a *AssociationIndex) Deindex(ctx context.Context, ownerKey any) error {
	return a.store.client.Del(ctx, a.listKey(ownerKey)).Err()
}
