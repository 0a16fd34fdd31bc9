package redis

import (
	"time"

	"go.uber.org/zap"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// Option configures a [Store].
type Option func(*Store)

// WithPrefix sets the prefix of every key.
func WithPrefix(p string) Option {
	return func(s *Store) {
		s.prefix = p
	}
}

// WithRangeCacheTTL sets how long range query results are cached. Zero
// disables the cache.
func WithRangeCacheTTL(d time.Duration) Option {
	return func(s *Store) {
		s.rangeTTL = d
	}
}

// WithLockTTL sets the expiration of entry locks.
func WithLockTTL(d time.Duration) Option {
	return func(s *Store) {
		s.lockTTL = d
	}
}

// WithLockRetry sets the wait between attempts to acquire a lock.
func WithLockRetry(d time.Duration) Option {
	return func(s *Store) {
		s.lockRetry = d
	}
}

// WithComparer sets the comparer ordering scanned keys.
func WithComparer(c domain.Comparer) Option {
	return func(s *Store) {
		s.comparer = c
	}
}

// WithHasher sets the hasher naming the index sets.
func WithHasher(h domain.Hasher) Option {
	return func(s *Store) {
		s.hasher = h
	}
}

// WithIDGenerator sets the generator of non integer identifiers.
func WithIDGenerator(g domain.IDGenerator) Option {
	return func(s *Store) {
		s.ids = g
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}
