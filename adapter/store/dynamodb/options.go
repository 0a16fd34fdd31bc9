package dynamodb

import (
	"time"

	"go.uber.org/zap"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// Option configures a [Store].
type Option func(*Store)

// WithBreaker sets the consecutive failures opening the circuit breaker and
// how long it stays open. Zero failures disables the breaker.
func WithBreaker(failures uint32, timeout time.Duration) Option {
	return func(s *Store) {
		s.breakerFailures = failures
		s.breakerTimeout = timeout
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

// WithHasher sets the hasher partitioning property indexes.
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

// WithTimeGetter sets the clock stamping lock expirations.
func WithTimeGetter(t domain.TimeGetter) Option {
	return func(s *Store) {
		s.clock = t
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}
