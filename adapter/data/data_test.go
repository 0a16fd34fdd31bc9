package data

import (
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type DataTestSuite struct {
	suite.Suite
}

type status string

func (s *DataTestSuite) TestNativeScalars() {
	now := time.Now()
	testCases := []struct {
		name     string
		in       any
		expected any
	}{
		{name: "nil", in: nil, expected: nil},
		{name: "int", in: 3, expected: int64(3)},
		{name: "int8", in: int8(-3), expected: int64(-3)},
		{name: "uint16", in: uint16(7), expected: uint64(7)},
		{name: "float32", in: float32(1.5), expected: 1.5},
		{name: "named string", in: status("open"), expected: "open"},
		{name: "bool", in: true, expected: true},
		{name: "time", in: now, expected: now},
		{name: "bytes", in: []byte("ab"), expected: []byte("ab")},
		{name: "nil pointer", in: (*int)(nil), expected: nil},
	}
	for _, tc := range testCases {
		s.Run(tc.name, func() {
			s.Equal(tc.expected, Native(tc.in))
		})
	}
}

func (s *DataTestSuite) TestNativeContainers() {
	s.Equal([]any{int64(1), int64(2)}, Native([]int{1, 2}))
	s.Equal([]any{"a", "b"}, Native([2]status{"a", "b"}))
	s.Equal(Entry{"a": int64(1)}, Native(map[string]int32{"a": 1}))
	s.Nil(Native([]string(nil)))
}

func (s *DataTestSuite) TestEntry() {
	e := Entry{"b": 1, "a": []any{Entry{"x": 1}}}
	s.Equal([]string{"a", "b"}, slices.Collect(e.Keys()))
	s.True(e.Has("a"))
	s.False(e.Has("c"))

	c := e.Clone()
	c.Get("a").([]any)[0].(Entry).Set("x", 2)
	c.Unset("b")
	s.Equal(1, e.Get("a").([]any)[0].(Entry).Get("x"))
	s.Equal(2, e.Len())
	s.Equal(1, c.Len())
}

func (s *DataTestSuite) TestNativeTextMarshaler() {
	id := uuid.MustParse("5f1d8e0a-3c52-4a1e-9f3b-2d8f6f5b9a10")
	s.Equal("5f1d8e0a-3c52-4a1e-9f3b-2d8f6f5b9a10", Native(id))
	s.Equal([]any{int64(1), int64(2)}, Native([2]int{1, 2}))
}

func TestDataTestSuite(t *testing.T) {
	suite.Run(t, new(DataTestSuite))
}
