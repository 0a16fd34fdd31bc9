package mapping

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrIllegalMapping is returned when a type cannot be mapped, such as
	// an inverse side that is not an association or an association whose
	// target type was never registered.
	ErrIllegalMapping = errors.New("illegal mapping")
	// ErrUnknownIdentifier is returned when a registered type has no
	// resolvable identifier field.
	ErrUnknownIdentifier = errors.New("unknown identifier")
	// ErrNotStruct is returned when registering something other than a
	// struct or a pointer to a struct.
	ErrNotStruct = errors.New("mapped type must be a struct")
	// ErrAlreadyInitialized is returned when registering types after
	// [Context.Initialize] was called.
	ErrAlreadyInitialized = errors.New("mapping context already initialized")
)

// ErrPropertyType is returned when a field type cannot be represented by any
// property kind.
type ErrPropertyType struct {
	Entity string
	Field  string
	Type   reflect.Type
}

func (e ErrPropertyType) Error() string {
	return fmt.Sprintf("cannot map field %s.%s of type %s", e.Entity, e.Field, e.Type)
}
