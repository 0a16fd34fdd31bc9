// Package comparer contains the default [domain.Comparer] implementation.
//
// Native values are ordered by kind first: nil, numbers, strings, booleans,
// times, lists and entries. Values of the same kind are ordered naturally.
package comparer

import (
	"cmp"
	"math"
	"math/big"
	"slices"
	"time"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// Comparer implements domain.Comparer.
type Comparer struct{}

// NewComparer returns a new implementation of domain.Comparer.
func NewComparer() domain.Comparer {
	return &Comparer{}
}

// Comparable implements domain.Comparer. Only numbers, strings and times are
// comparable, and only to values of the same kind.
func (c *Comparer) Comparable(a, b any) bool {
	a, b = data.Native(a), data.Native(b)
	if _, ok := c.asNumber(a); ok {
		_, ok = c.asNumber(b)
		return ok
	}
	switch a.(type) {
	case string:
		_, ok := b.(string)
		return ok
	case time.Time:
		_, ok := b.(time.Time)
		return ok
	default:
		return false
	}
}

// Compare implements domain.Comparer.
func (c *Comparer) Compare(a any, b any) (int, error) {
	a, b = data.Native(a), data.Native(b)

	if comp, ok := c.checkNil(a, b); ok {
		return comp, nil
	}
	if comp, ok := c.checkNumbers(a, b); ok {
		return comp, nil
	}
	if comp, ok := check(a, b, cmp.Compare[string]); ok {
		return comp, nil
	}
	if comp, ok := check(a, b, c.compareBool); ok {
		return comp, nil
	}
	if comp, ok := check(a, b, time.Time.Compare); ok {
		return comp, nil
	}
	if comp, ok, err := checkErr(a, b, c.compareList); err != nil || ok {
		return comp, err
	}
	if comp, ok, err := checkErr(a, b, c.compareEntry); err != nil || ok {
		return comp, err
	}
	return 0, domain.ErrCannotCompare{A: a, B: b}
}

// check compares a and b with fn when both are T. If only one of them is T,
// that one is the smaller.
func check[T any](a, b any, fn func(T, T) int) (int, bool) {
	if a, ok := a.(T); ok {
		if b, ok := b.(T); ok {
			return fn(a, b), true
		}
		return -1, true
	}
	if _, ok := b.(T); ok {
		return 1, true
	}
	return 0, false
}

func checkErr[T any](a, b any, fn func(T, T) (int, error)) (int, bool, error) {
	if a, ok := a.(T); ok {
		if b, ok := b.(T); ok {
			comp, err := fn(a, b)
			return comp, true, err
		}
		return -1, true, nil
	}
	if _, ok := b.(T); ok {
		return 1, true, nil
	}
	return 0, false, nil
}

func (c *Comparer) checkNil(a, b any) (int, bool) {
	if a == nil {
		if b == nil {
			return 0, true
		}
		return -1, true
	}
	if b == nil {
		return 1, true
	}
	return 0, false
}

func (c *Comparer) checkNumbers(a, b any) (int, bool) {
	if a, ok := c.asNumber(a); ok {
		// big.Float compares int64, uint64 and float64 without precision
		// loss
		if b, ok := c.asNumber(b); ok {
			return a.Cmp(b), true
		}
		return -1, true
	}
	if _, ok := c.asNumber(b); ok {
		return 1, true
	}
	return 0, false
}

func (c *Comparer) compareBool(a, b bool) int {
	if a == b {
		return 0
	}
	if a {
		return 1
	}
	return -1
}

func (c *Comparer) compareList(a, b []any) (int, error) {
	for i := range min(len(a), len(b)) {
		comp, err := c.Compare(a[i], b[i])
		if err != nil {
			return 0, err
		}
		if comp != 0 {
			return comp, nil
		}
	}
	// common section was identical, longest one wins
	return cmp.Compare(len(a), len(b)), nil
}

func (c *Comparer) compareEntry(a, b data.Entry) (int, error) {
	aKeys := slices.Collect(a.Keys())
	bKeys := slices.Collect(b.Keys())

	for i := range min(len(aKeys), len(bKeys)) {
		comp, err := c.Compare(a.Get(aKeys[i]), b.Get(bKeys[i]))
		if err != nil {
			return 0, err
		}
		if comp != 0 {
			return comp, nil
		}
	}
	if comp := cmp.Compare(a.Len(), b.Len()); comp != 0 {
		return comp, nil
	}
	return slices.Compare(aKeys, bKeys), nil
}

func (c *Comparer) asNumber(v any) (*big.Float, bool) {
	r := big.NewFloat(0)
	switch n := v.(type) {
	case int64:
		r.SetInt64(n)
	case uint64:
		r.SetUint64(n)
	case float64:
		if math.IsNaN(n) {
			return nil, false
		}
		r.SetFloat64(n)
	default:
		return nil, false
	}
	return r, true
}
