// Package datastore ties a store to the mapping context, the interceptor
// table and the session options, and creates sessions over them.
package datastore

import (
	"errors"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/comparer"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/decoder"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/interceptor"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/metrics"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/persister"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/proxy"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/session"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/mapping"
)

var (
	// ErrInitialized is returned when registering entities after
	// [Datastore.Initialize].
	ErrInitialized = errors.New("datastore already initialized")
	// ErrNotInitialized is returned by [Datastore.Connect] before
	// [Datastore.Initialize].
	ErrNotInitialized = errors.New("datastore not initialized")
)

// Datastore creates sessions sharing one store and one mapping context.
type Datastore struct {
	mu           sync.Mutex
	initialized  bool
	entities     []*mapping.Entity
	mc           *mapping.Context
	provider     session.PersisterProvider
	interceptors *interceptor.Registry
	factory      *proxy.Factory
	decoder      domain.Decoder
	comparer     domain.Comparer
	recorder     *metrics.Recorder
	tracer       trace.Tracer
	validate     *validator.Validate
	flushMode    domain.FlushMode
	closer       func() error
	logger       *zap.Logger
}

// New returns a datastore persisting entities in store. Entity types must
// be registered with [Datastore.Register] before [Datastore.Initialize].
func New[E any](store persister.Store[E], opts ...Option) *Datastore {
	d := &Datastore{
		mc:        mapping.NewContext(),
		factory:   proxy.NewFactory(),
		decoder:   decoder.NewDecoder(),
		comparer:  comparer.NewComparer(),
		recorder:  metrics.NewRecorder(),
		tracer:    otel.Tracer("github.com/vinicius-lino-figueiredo/gedm"),
		validate:  validator.New(),
		flushMode: domain.FlushAuto,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.interceptors == nil {
		d.interceptors = interceptor.NewRegistry(interceptor.WithLogger(d.logger))
	}
	d.provider = session.ProviderFunc(func(s domain.Session, e *mapping.Entity) (domain.Persister, error) {
		return persister.New(store, e, s,
			persister.WithInterceptor(d.interceptors),
			persister.WithFactory(d.factory),
			persister.WithDecoder(d.decoder),
			persister.WithComparer(d.comparer),
			persister.WithLogger(d.logger),
		), nil
	})
	return d
}

// Register maps the types of samples.
func (d *Datastore) Register(samples ...any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.initialized {
		return ErrInitialized
	}
	for _, sample := range samples {
		e, err := d.mc.Register(sample)
		if err != nil {
			return err
		}
		d.entities = append(d.entities, e)
	}
	return nil
}

// Intercept registers i for the types of samples, or for every entity when
// no sample is given.
func (d *Datastore) Intercept(i domain.EntityInterceptor, samples ...any) error {
	return d.interceptors.Register(i, samples...)
}

// Initialize resolves the registered mappings, registers the hooks entity
// types implement themselves and seals the interceptor table. Calling it
// again has no effect.
func (d *Datastore) Initialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.initialized {
		return nil
	}
	if err := d.mc.Initialize(); err != nil {
		return err
	}
	for _, e := range d.entities {
		if err := d.interceptors.RegisterEntity(e); err != nil {
			return err
		}
	}
	d.interceptors.Seal()
	d.initialized = true
	d.logger.Info("datastore initialized", zap.Int("entities", len(d.entities)))
	return nil
}

// MappingContext returns the mapping context of the datastore.
func (d *Datastore) MappingContext() *mapping.Context { return d.mc }

// Recorder returns the metrics recorder shared by the sessions.
func (d *Datastore) Recorder() *metrics.Recorder { return d.recorder }

// Connect returns a new session. Sessions are not safe for concurrent use;
// each goroutine should connect its own.
func (d *Datastore) Connect(opts ...session.Option) (*session.Session, error) {
	d.mu.Lock()
	initialized := d.initialized
	d.mu.Unlock()
	if !initialized {
		return nil, ErrNotInitialized
	}
	base := []session.Option{
		session.WithFactory(d.factory),
		session.WithRecorder(d.recorder),
		session.WithTracer(d.tracer),
		session.WithValidator(d.validate),
		session.WithFlushMode(d.flushMode),
		session.WithLogger(d.logger),
	}
	return session.New(d.mc, d.provider, append(base, opts...)...), nil
}

// Close releases the resources of the underlying store.
func (d *Datastore) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer()
}
