// Package idgenerator contains the default [domain.IDGenerator]
// implementation. String and UUID identifiers are random UUIDs; integer
// identifiers come from a per-type sequence.
package idgenerator

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"reflect"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

var uuidType = reflect.TypeFor[uuid.UUID]()

// IDGenerator implements [domain.IDGenerator].
type IDGenerator struct {
	reader    io.Reader
	sequences *xsync.MapOf[reflect.Type, int64]
}

// NewIDGenerator implements [domain.IDGenerator].
func NewIDGenerator(opts ...Option) domain.IDGenerator {
	i := IDGenerator{
		reader:    rand.Reader,
		sequences: xsync.NewMapOf[reflect.Type, int64](),
	}
	for _, opt := range opts {
		opt(&i)
	}
	return &i
}

// GenerateID implements [domain.IDGenerator]. The result has exactly the
// type typ.
func (i *IDGenerator) GenerateID(_ context.Context, typ reflect.Type) (any, error) {
	if typ == uuidType {
		return uuid.NewRandomFromReader(i.reader)
	}
	switch typ.Kind() {
	case reflect.String:
		id, err := uuid.NewRandomFromReader(i.reader)
		if err != nil {
			return nil, err
		}
		return reflect.ValueOf(id.String()).Convert(typ).Interface(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		next := i.Next(typ)
		return reflect.ValueOf(next).Convert(typ).Interface(), nil
	default:
		return nil, fmt.Errorf("cannot generate identifier of type %s", typ)
	}
}

// Next returns the next value of the sequence of typ, starting at 1.
func (i *IDGenerator) Next(typ reflect.Type) int64 {
	next, _ := i.sequences.Compute(typ, func(old int64, _ bool) (int64, bool) {
		return old + 1, false
	})
	return next
}

// Observe moves the sequence of typ past value, so identifiers assigned by
// the application are never generated again.
func (i *IDGenerator) Observe(typ reflect.Type, value int64) {
	i.sequences.Compute(typ, func(old int64, _ bool) (int64, bool) {
		return max(old, value), false
	})
}
