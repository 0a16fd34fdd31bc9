package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/mapping"
)

// ErrNotLocked is returned when unlocking an entry this store did not lock.
var ErrNotLocked = errors.New("entry is not locked")

var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

func (s *Store) lockKey(entity *mapping.Entity, key any) string {
	return s.entryKey(entity.Family(), key) + ".lock"
}

// LockEntry implements [persister.Locker]. Locks expire after the lock TTL
// so a crashed holder cannot keep them forever.
func (s *Store) LockEntry(ctx context.Context, entity *mapping.Entity, key any, timeout time.Duration) error {
	lk := s.lockKey(entity, key)
	token := uuid.NewString()
	deadline := time.Now().Add(timeout)
	for {
		ok, err := s.client.SetNX(ctx, lk, token, s.lockTTL).Result()
		if err != nil {
			return err
		}
		if ok {
			s.tokens.Store(lk, token)
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s entry %v", domain.ErrCannotAcquireLock, entity.Name(), key)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(min(s.lockRetry, max(time.Until(deadline), time.Millisecond))):
		}
	}
}

// UnlockEntry implements [persister.Locker].
func (s *Store) UnlockEntry(ctx context.Context, entity *mapping.Entity, key any) error {
	lk := s.lockKey(entity, key)
	token, ok := s.tokens.LoadAndDelete(lk)
	if !ok {
		return ErrNotLocked
	}
	n, err := unlockScript.Run(ctx, s.client, []string{lk}, token).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotLocked
	}
	return nil
}
