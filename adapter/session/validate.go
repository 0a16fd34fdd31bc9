package session

import (
	"bytes"
	"fmt"
	"reflect"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/entityaccess"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/mapping"
)

// Validate checks the `validate` tags of obj. Associated instances are
// validated too when their association cascades validation. Lazy members
// that were never loaded are skipped.
func (s *Session) Validate(obj any) error {
	return s.validateCascade(obj, make(map[any]struct{}))
}

func (s *Session) validateCascade(obj any, seen map[any]struct{}) error {
	obj = s.factory.Unwrap(obj)
	if obj == nil {
		return nil
	}
	if _, ok := seen[obj]; ok {
		return nil
	}
	seen[obj] = struct{}{}

	e := s.mc.EntityFor(obj)
	if e == nil {
		return fmt.Errorf("%w: %T", domain.ErrNotPersistent, obj)
	}
	assocs := make(map[string]struct{})
	for _, prop := range e.Associations() {
		assocs[prop.Name()] = struct{}{}
	}
	// associations are validated below, following their cascade rules
	err := s.validate.StructFiltered(obj, func(ns []byte) bool {
		parts := bytes.Split(ns, []byte("."))
		if len(parts) < 2 {
			return false
		}
		name, _, _ := bytes.Cut(parts[1], []byte("["))
		_, skip := assocs[string(name)]
		return skip
	})
	if err != nil {
		return err
	}

	rv := reflect.ValueOf(obj)
	if rv.Kind() != reflect.Pointer {
		return nil
	}
	for _, prop := range e.Associations() {
		a := mapping.AsAssociation(prop)
		field := entityaccess.FieldByIndex(rv.Elem(), prop.FieldIndex())
		for _, v := range s.associated(field) {
			if !a.DoesCascadeValidate(v) {
				continue
			}
			if err := s.validateCascade(v, seen); err != nil {
				return err
			}
		}
	}
	return nil
}

// associated lists the loaded instances held by an association field.
func (s *Session) associated(field reflect.Value) []any {
	if !field.IsValid() {
		return nil
	}
	if ref := s.factory.Reference(field); ref != nil {
		if !ref.IsResolved() || ref.Value() == nil {
			return nil
		}
		return []any{ref.Value()}
	}
	if s.factory.IsReferenceType(field.Type()) {
		return nil
	}
	if c := persistent(field); c != nil {
		if c.IsBound() && !c.IsInitialized() {
			return nil
		}
		return s.loaded(c.Elements())
	}
	switch field.Kind() {
	case reflect.Pointer:
		if field.IsNil() {
			return nil
		}
		return []any{field.Interface()}
	case reflect.Slice:
		items := make([]any, field.Len())
		for i := range items {
			items[i] = field.Index(i).Interface()
		}
		return s.loaded(items)
	}
	return nil
}

func (s *Session) loaded(items []any) []any {
	res := make([]any, 0, len(items))
	for _, item := range items {
		if v := s.factory.Unwrap(item); v != nil {
			res = append(res, v)
		}
	}
	return res
}
