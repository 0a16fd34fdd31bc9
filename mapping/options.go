package mapping

import (
	"reflect"

	"go.uber.org/zap"
)

// Option configures a [Context].
type Option func(*Context)

// WithLogger sets the logger used to report ignored mapping settings.
func WithLogger(l *zap.Logger) Option {
	return func(c *Context) {
		c.logger = l
	}
}

// EntityOption overrides the mapping read from struct tags.
type EntityOption func(*entityOptions)

type entityOptions struct {
	class      ClassMapping
	parent     reflect.Type
	properties map[string]PropertyMapping
	embedded   bool
}

// WithFamily sets the family name of the entity.
func WithFamily(f string) EntityOption {
	return func(o *entityOptions) {
		o.class.Family = f
	}
}

// WithKeyspace sets the keyspace of the entity.
func WithKeyspace(k string) EntityOption {
	return func(o *entityOptions) {
		o.class.Keyspace = k
	}
}

// WithDiscriminator sets the value identifying the entity in its hierarchy.
func WithDiscriminator(d string) EntityOption {
	return func(o *entityOptions) {
		o.class.Discriminator = d
	}
}

// WithParent makes the entity a child of the entity registered for the type
// of sample. The parent must be registered before [Context.Initialize].
func WithParent(sample any) EntityOption {
	return func(o *entityOptions) {
		o.parent = structType(sample)
	}
}

// WithProperty replaces the mapping of the named property.
func WithProperty(name string, m PropertyMapping) EntityOption {
	return func(o *entityOptions) {
		if o.properties == nil {
			o.properties = make(map[string]PropertyMapping)
		}
		o.properties[name] = m
	}
}

// AsEmbedded registers a type that is only stored inside other entities and
// therefore has no identifier.
func AsEmbedded() EntityOption {
	return func(o *entityOptions) {
		o.embedded = true
	}
}
