// Package ctxsync contains locks that can be abandoned when a context is
// done.
package ctxsync

import (
	"context"
	"errors"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// ErrNotLocked is returned when unlocking a key that is not locked.
var ErrNotLocked = errors.New("ctxsync: unlock of unlocked key")

// NewMutex creates a new instance of Mutex.
func NewMutex() *Mutex {
	return &Mutex{
		unlock: make(chan struct{}, 1),
	}
}

// A Mutex is a mutual exclusion lock. Waiters give up when their context is
// done.
type Mutex struct {
	unlock chan struct{}
}

// Lock locks the mutex with a context.Background()
func (m *Mutex) Lock() {
	_ = m.LockWithContext(context.Background())
}

// LockWithContext locks until Unlock is called or context is cancelled
func (m *Mutex) LockWithContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case m.unlock <- struct{}{}:
		return nil
	}
}

// TryLock tries to lock m and reports whether it succeeded.
func (m *Mutex) TryLock() bool {
	select {
	case m.unlock <- struct{}{}:
		return true
	default:
		return false
	}
}

// Unlock unlocks m.
func (m *Mutex) Unlock() {
	if !m.tryUnlock() {
		panic("ctxsync: unlock of unlocked mutex")
	}
}

func (m *Mutex) tryUnlock() bool {
	select {
	case <-m.unlock:
		return true
	default:
		return false
	}
}

// KeyedMutex holds one [Mutex] per key.
type KeyedMutex[K comparable] struct {
	locks *xsync.MapOf[K, *Mutex]
}

// NewKeyedMutex returns an empty KeyedMutex.
func NewKeyedMutex[K comparable]() *KeyedMutex[K] {
	return &KeyedMutex[K]{locks: xsync.NewMapOf[K, *Mutex]()}
}

// Lock locks key, waiting at most timeout. A zero timeout only waits for
// ctx.
func (k *KeyedMutex[K]) Lock(ctx context.Context, key K, timeout time.Duration) error {
	m, _ := k.locks.LoadOrCompute(key, NewMutex)
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return m.LockWithContext(ctx)
}

// Unlock unlocks key.
func (k *KeyedMutex[K]) Unlock(key K) error {
	m, ok := k.locks.Load(key)
	if !ok || !m.tryUnlock() {
		return ErrNotLocked
	}
	return nil
}

// IsLocked reports whether key is currently locked.
func (k *KeyedMutex[K]) IsLocked(key K) bool {
	m, ok := k.locks.Load(key)
	return ok && len(m.unlock) > 0
}
