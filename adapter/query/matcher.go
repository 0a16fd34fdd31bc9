package query

import (
	"fmt"
	"regexp"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/comparer"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// Matcher evaluates criteria trees against targets. Values that cannot be
// ordered against each other never match range criteria, and a property
// holding a list matches equality criteria when any element does.
type Matcher struct {
	comparer domain.Comparer
}

// NewMatcher returns a new Matcher.
func NewMatcher(opts ...MatcherOption) *Matcher {
	m := &Matcher{comparer: comparer.NewComparer()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Match reports whether t satisfies c.
func (m *Matcher) Match(c Criterion, t Target) (bool, error) {
	switch crit := c.(type) {
	case *Conjunction:
		for _, sub := range crit.criteria {
			ok, err := m.Match(sub, t)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case *Disjunction:
		for _, sub := range crit.criteria {
			ok, err := m.Match(sub, t)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	case *Negation:
		ok, err := m.Match(&Conjunction{junction: crit.junction}, t)
		return !ok && err == nil, err
	case *IdEquals:
		return m.equal(t.Identifier(), data.Native(crit.Value)), nil
	case *Equals:
		return m.eq(t.Value(crit.Property), data.Native(crit.Value)), nil
	case *NotEquals:
		return !m.eq(t.Value(crit.Property), data.Native(crit.Value)), nil
	case *In:
		v := t.Value(crit.Property)
		for _, item := range crit.Values {
			if m.eq(v, data.Native(item)) {
				return true, nil
			}
		}
		return false, nil
	case *IsNull:
		return t.Value(crit.Property) == nil, nil
	case *IsNotNull:
		return t.Value(crit.Property) != nil, nil
	case *GreaterThan:
		return m.order(t.Value(crit.Property), crit.Value, func(c int) bool { return c > 0 }), nil
	case *GreaterThanEquals:
		return m.order(t.Value(crit.Property), crit.Value, func(c int) bool { return c >= 0 }), nil
	case *LessThan:
		return m.order(t.Value(crit.Property), crit.Value, func(c int) bool { return c < 0 }), nil
	case *LessThanEquals:
		return m.order(t.Value(crit.Property), crit.Value, func(c int) bool { return c <= 0 }), nil
	case *Between:
		v := t.Value(crit.Property)
		return m.order(v, crit.From, func(c int) bool { return c >= 0 }) &&
			m.order(v, crit.To, func(c int) bool { return c <= 0 }), nil
	case *Like:
		return m.like(t.Value(crit.Property), crit.compiled)
	case *ILike:
		return m.like(t.Value(crit.Property), crit.compiled)
	case *RLike:
		return m.like(t.Value(crit.Property), crit.compiled)
	default:
		return false, fmt.Errorf("%w: criterion %T", domain.ErrUnsupportedQuery, c)
	}
}

func (m *Matcher) equal(a, b any) bool {
	c, err := m.comparer.Compare(a, b)
	return err == nil && c == 0
}

func (m *Matcher) eq(v, expected any) bool {
	if list, ok := v.([]any); ok {
		if _, isList := expected.([]any); !isList {
			for _, item := range list {
				if m.equal(item, expected) {
					return true
				}
			}
			return false
		}
	}
	return m.equal(v, expected)
}

func (m *Matcher) order(v, bound any, accept func(int) bool) bool {
	bound = data.Native(bound)
	if !m.comparer.Comparable(v, bound) {
		return false
	}
	c, err := m.comparer.Compare(v, bound)
	return err == nil && accept(c)
}

func (m *Matcher) like(v any, compiled func() (*regexp.Regexp, error)) (bool, error) {
	s, ok := v.(string)
	if !ok {
		return false, nil
	}
	re, err := compiled()
	if err != nil {
		return false, err
	}
	return re.MatchString(s), nil
}
