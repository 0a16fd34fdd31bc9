package comparer

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

type ComparerTestSuite struct {
	suite.Suite
	c *Comparer
}

func (s *ComparerTestSuite) SetupTest() {
	s.c = NewComparer().(*Comparer)
}

// nil should always be the smallest value.
func (s *ComparerTestSuite) TestNilIsSmallest() {
	otherStuff := [...]any{"string", "", -1, 0, uint(12), false,
		time.UnixMilli(12345), data.Entry{}, data.Entry{"hello": "world"},
		[]any{}, []any{"quite", 5},
	}
	for _, stuff := range otherStuff {
		comp, err := s.c.Compare(nil, stuff)
		s.NoError(err)
		s.Equal(-1, comp)
		comp, err = s.c.Compare(stuff, nil)
		s.NoError(err)
		s.Equal(1, comp)
	}
}

func (s *ComparerTestSuite) TestNumbers() {
	testCases := []struct {
		arg1 any
		arg2 any
		res  int
	}{
		{arg1: int64(-12), arg2: int16(0), res: -1},
		{arg1: uint8(0), arg2: int8(-3), res: 1},
		{arg1: 5.7, arg2: uint32(2), res: 1},
		{arg1: 5.7, arg2: float32(12.3), res: -1},
		{arg1: uint64(0), arg2: uint16(0), res: 0},
		{arg1: int32(5), arg2: 5, res: 0},
		{arg1: uint64(math.MaxUint64), arg2: int64(math.MaxInt64), res: 1},
	}
	for _, tc := range testCases {
		comp, err := s.c.Compare(tc.arg1, tc.arg2)
		s.NoError(err)
		s.Equal(tc.res, comp)
	}
}

// Kinds are ordered before values.
func (s *ComparerTestSuite) TestKindOrder() {
	ordered := []any{
		nil, 12, "a", false, time.UnixMilli(1), []any{}, data.Entry{},
	}
	for i := range ordered {
		for j := range ordered {
			comp, err := s.c.Compare(ordered[i], ordered[j])
			s.NoError(err)
			switch {
			case i < j:
				s.Equal(-1, comp)
			case i > j:
				s.Equal(1, comp)
			default:
				s.Equal(0, comp)
			}
		}
	}
}

func (s *ComparerTestSuite) TestSameKind() {
	testCases := []struct {
		name string
		a    any
		b    any
		res  int
	}{
		{name: "strings", a: "abc", b: "abd", res: -1},
		{name: "booleans", a: true, b: false, res: 1},
		{name: "times", a: time.UnixMilli(5), b: time.UnixMilli(5), res: 0},
		{name: "list prefix", a: []any{1, 2}, b: []any{1, 2, 3}, res: -1},
		{name: "list value", a: []string{"b"}, b: []any{"a", "z"}, res: 1},
		{name: "entry values", a: data.Entry{"a": 1}, b: map[string]any{"a": 2}, res: -1},
		{name: "entry length", a: data.Entry{"a": 1, "b": 1}, b: data.Entry{"a": 1}, res: 1},
		{name: "entry keys", a: data.Entry{"a": 1}, b: data.Entry{"b": 1}, res: -1},
	}
	for _, tc := range testCases {
		s.Run(tc.name, func() {
			comp, err := s.c.Compare(tc.a, tc.b)
			s.NoError(err)
			s.Equal(tc.res, comp)
		})
	}
}

func (s *ComparerTestSuite) TestCannotCompare() {
	type opaque struct{ a int }
	_, err := s.c.Compare(opaque{1}, opaque{2})
	s.ErrorAs(err, &domain.ErrCannotCompare{})

	_, err = s.c.Compare([]any{opaque{1}}, []any{opaque{2}})
	s.ErrorAs(err, &domain.ErrCannotCompare{})
}

func (s *ComparerTestSuite) TestComparable() {
	s.True(s.c.Comparable(1, 2.5))
	s.True(s.c.Comparable("a", "b"))
	s.True(s.c.Comparable(time.Now(), time.Now()))
	s.False(s.c.Comparable(1, "a"))
	s.False(s.c.Comparable(true, false))
	s.False(s.c.Comparable(nil, nil))
	s.False(s.c.Comparable([]any{}, []any{}))
}

func TestComparerTestSuite(t *testing.T) {
	suite.Run(t, new(ComparerTestSuite))
}
