package session

import (
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/metrics"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/proxy"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// Option configures a [Session].
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithTracer sets the tracer opening one span per operation. Defaults to
// the tracer of the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(s *Session) {
		s.tracer = t
	}
}

// WithRecorder sets the recorder of operation metrics.
func WithRecorder(r *metrics.Recorder) Option {
	return func(s *Session) {
		s.recorder = r
	}
}

// WithValidator sets the validator used by [Session.Validate].
func WithValidator(v *validator.Validate) Option {
	return func(s *Session) {
		s.validate = v
	}
}

// WithFlushMode sets the initial flush mode.
func WithFlushMode(m domain.FlushMode) Option {
	return func(s *Session) {
		s.flushMode.Store(uint32(m))
	}
}

// WithFactory sets the factory used to inspect lazy references.
func WithFactory(f *proxy.Factory) Option {
	return func(s *Session) {
		s.factory = f
	}
}
