package memory

import (
	"go.uber.org/zap"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// Option configures a [Store].
type Option func(*Store)

// WithComparer sets the comparer ordering property indexes.
func WithComparer(c domain.Comparer) Option {
	return func(s *Store) {
		s.comparer = c
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
