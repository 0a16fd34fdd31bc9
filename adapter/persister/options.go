package persister

import (
	"go.uber.org/zap"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/proxy"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// Option configures a [Persister] through the functional options pattern.
type Option func(*options)

type options struct {
	interceptor domain.EntityInterceptor
	factory     *proxy.Factory
	decoder     domain.Decoder
	comparer    domain.Comparer
	logger      *zap.Logger
}

// WithInterceptor sets the interceptor consulted before writes.
func WithInterceptor(i domain.EntityInterceptor) Option {
	return func(o *options) {
		o.interceptor = i
	}
}

// WithFactory sets the factory creating lazy references.
func WithFactory(f *proxy.Factory) Option {
	return func(o *options) {
		o.factory = f
	}
}

// WithDecoder sets the decoder converting native values to field types.
func WithDecoder(d domain.Decoder) Option {
	return func(o *options) {
		o.decoder = d
	}
}

// WithComparer sets the comparer used to evaluate queries.
func WithComparer(c domain.Comparer) Option {
	return func(o *options) {
		o.comparer = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}
