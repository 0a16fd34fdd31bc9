package interceptor

import "go.uber.org/zap"

// Option configures behavior through the functional options pattern.
type Option func(*Registry)

// WithLogger sets the logger used to report vetoed operations.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}
