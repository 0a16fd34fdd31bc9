package datastore

import (
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/interceptor"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/metrics"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/proxy"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/mapping"
)

// Option configures a [Datastore] through the functional options pattern.
type Option func(*Datastore)

// WithMappingContext sets the mapping context. Entities already registered
// in it are not given to the interceptor table.
func WithMappingContext(mc *mapping.Context) Option {
	return func(d *Datastore) {
		d.mc = mc
	}
}

// WithInterceptors sets the interceptor registration table.
func WithInterceptors(r *interceptor.Registry) Option {
	return func(d *Datastore) {
		d.interceptors = r
	}
}

// WithFactory sets the factory creating lazy references.
func WithFactory(f *proxy.Factory) Option {
	return func(d *Datastore) {
		d.factory = f
	}
}

// WithDecoder sets the decoder converting native values to field types.
func WithDecoder(dec domain.Decoder) Option {
	return func(d *Datastore) {
		d.decoder = dec
	}
}

// WithComparer sets the comparer used to evaluate queries.
func WithComparer(c domain.Comparer) Option {
	return func(d *Datastore) {
		d.comparer = c
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r *metrics.Recorder) Option {
	return func(d *Datastore) {
		d.recorder = r
	}
}

// WithTracer sets the tracer opening session spans.
func WithTracer(t trace.Tracer) Option {
	return func(d *Datastore) {
		d.tracer = t
	}
}

// WithValidator sets the validator used by [session.Session.Validate].
func WithValidator(v *validator.Validate) Option {
	return func(d *Datastore) {
		d.validate = v
	}
}

// WithFlushMode sets the flush mode of new sessions.
func WithFlushMode(m domain.FlushMode) Option {
	return func(d *Datastore) {
		d.flushMode = m
	}
}

// WithCloser sets the function releasing the store on [Datastore.Close].
func WithCloser(fn func() error) Option {
	return func(d *Datastore) {
		d.closer = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Datastore) {
		d.logger = l
	}
}
