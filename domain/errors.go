package domain

import (
	"errors"
	"fmt"

	"github.com/vinicius-lino-figueiredo/gedm/mapping"
)

var (
	// ErrIllegalMapping is returned when the mapping of a type is broken.
	ErrIllegalMapping = mapping.ErrIllegalMapping
	// ErrUnknownIdentifier is returned when a type has no identifier.
	ErrUnknownIdentifier = mapping.ErrUnknownIdentifier
	// ErrDataIntegrity is returned when a required association is nil at
	// persist time. Nothing is written when it happens.
	ErrDataIntegrity = errors.New("data integrity violation")
	// ErrOptimisticLocking is returned by stores when a versioned update
	// finds a version other than the one it was based on.
	ErrOptimisticLocking = errors.New("optimistic locking failure")
	// ErrCannotAcquireLock is returned when a lock is not obtained before the
	// timeout elapses.
	ErrCannotAcquireLock = errors.New("cannot acquire lock")
	// ErrNotPersistent is returned when an operation receives a value whose
	// type was never mapped.
	ErrNotPersistent = errors.New("type is not persistent")
	// ErrNonPointer is returned when a pointer is required to modify the
	// target value.
	ErrNonPointer = errors.New("target is not a pointer")
	// ErrTargetNil is returned when a nil target is given.
	ErrTargetNil = errors.New("target is nil")
	// ErrUnsupportedQuery is returned when a store cannot evaluate a query,
	// for example when no criterion can use an index and the store cannot
	// list its keys.
	ErrUnsupportedQuery = errors.New("unsupported query")
)

// ErrDecode is returned by [Decoder.Decode] to wrap third party decoding
// errors.
type ErrDecode struct {
	Source any
	Target any
}

func (e ErrDecode) Error() string {
	return fmt.Sprintf("cannot decode %v into %T", e.Source, e.Target)
}

// ErrCannotCompare is returned by [Comparer.Compare] when two values have no
// defined order.
type ErrCannotCompare struct {
	A any
	B any
}

func (e ErrCannotCompare) Error() string {
	return fmt.Sprintf("cannot compare %T and %T", e.A, e.B)
}

// ErrElementType is returned when a loaded value does not fit a collection
// element or a field.
type ErrElementType struct {
	Expected string
	Value    any
}

func (e ErrElementType) Error() string {
	return fmt.Sprintf("expected %s, got %T", e.Expected, e.Value)
}
