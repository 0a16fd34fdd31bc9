package query

import (
	"regexp"
	"strings"
	"sync"
)

// Criterion is a node of the criteria tree. The implementations are the
// junctions and the property criteria of this package.
type Criterion interface {
	criterion()
}

// PropertyCriterion is a criterion on the value of one property.
type PropertyCriterion interface {
	Criterion
	PropertyName() string
}

// Equals matches entries whose property equals Value. A managed entity or a
// lazy reference given as Value is replaced by its identifier when the
// criterion is added to a junction.
type Equals struct {
	Property string
	Value    any
}

// NotEquals matches entries whose property differs from Value.
type NotEquals struct {
	Property string
	Value    any
}

// GreaterThan matches entries whose property is greater than Value.
type GreaterThan struct {
	Property string
	Value    any
}

// GreaterThanEquals matches entries whose property is greater than or equal
// to Value.
type GreaterThanEquals struct {
	Property string
	Value    any
}

// LessThan matches entries whose property is less than Value.
type LessThan struct {
	Property string
	Value    any
}

// LessThanEquals matches entries whose property is less than or equal to
// Value.
type LessThanEquals struct {
	Property string
	Value    any
}

// Between matches entries whose property lies in [From, To].
type Between struct {
	Property string
	From     any
	To       any
}

// In matches entries whose property equals one of Values.
type In struct {
	Property string
	Values   []any
}

// IsNull matches entries without a value for the property.
type IsNull struct {
	Property string
}

// IsNotNull matches entries with a value for the property.
type IsNotNull struct {
	Property string
}

// IdEquals matches the entry with the given identifier.
type IdEquals struct {
	Value any
}

// Like matches string properties against a pattern where % matches any
// sequence and _ matches one character.
type Like struct {
	Property string
	Pattern  string
	re       func() (*regexp.Regexp, error)
}

// ILike is the case insensitive [Like].
type ILike struct {
	Property string
	Pattern  string
	re       func() (*regexp.Regexp, error)
}

// RLike matches string properties against a regular expression.
type RLike struct {
	Property string
	Pattern  string
	re       func() (*regexp.Regexp, error)
}

func (*Equals) criterion()            {}
func (*NotEquals) criterion()         {}
func (*GreaterThan) criterion()       {}
func (*GreaterThanEquals) criterion() {}
func (*LessThan) criterion()          {}
func (*LessThanEquals) criterion()    {}
func (*Between) criterion()           {}
func (*In) criterion()                {}
func (*IsNull) criterion()            {}
func (*IsNotNull) criterion()         {}
func (*IdEquals) criterion()          {}
func (*Like) criterion()              {}
func (*ILike) criterion()             {}
func (*RLike) criterion()             {}

// PropertyName implements [PropertyCriterion].
func (c *Equals) PropertyName() string            { return c.Property }
func (c *NotEquals) PropertyName() string         { return c.Property }
func (c *GreaterThan) PropertyName() string       { return c.Property }
func (c *GreaterThanEquals) PropertyName() string { return c.Property }
func (c *LessThan) PropertyName() string          { return c.Property }
func (c *LessThanEquals) PropertyName() string    { return c.Property }
func (c *Between) PropertyName() string           { return c.Property }
func (c *In) PropertyName() string                { return c.Property }
func (c *IsNull) PropertyName() string            { return c.Property }
func (c *IsNotNull) PropertyName() string         { return c.Property }
func (c *Like) PropertyName() string              { return c.Property }
func (c *ILike) PropertyName() string             { return c.Property }
func (c *RLike) PropertyName() string             { return c.Property }

// Eq returns an [Equals] criterion.
func Eq(property string, value any) *Equals {
	return &Equals{Property: property, Value: value}
}

// Ne returns a [NotEquals] criterion.
func Ne(property string, value any) *NotEquals {
	return &NotEquals{Property: property, Value: value}
}

// Gt returns a [GreaterThan] criterion.
func Gt(property string, value any) *GreaterThan {
	return &GreaterThan{Property: property, Value: value}
}

// Ge returns a [GreaterThanEquals] criterion.
func Ge(property string, value any) *GreaterThanEquals {
	return &GreaterThanEquals{Property: property, Value: value}
}

// Lt returns a [LessThan] criterion.
func Lt(property string, value any) *LessThan {
	return &LessThan{Property: property, Value: value}
}

// Le returns a [LessThanEquals] criterion.
func Le(property string, value any) *LessThanEquals {
	return &LessThanEquals{Property: property, Value: value}
}

// Range returns a [Between] criterion.
func Range(property string, from, to any) *Between {
	return &Between{Property: property, From: from, To: to}
}

// OneOf returns an [In] criterion.
func OneOf(property string, values ...any) *In {
	return &In{Property: property, Values: values}
}

// Null returns an [IsNull] criterion.
func Null(property string) *IsNull {
	return &IsNull{Property: property}
}

// NotNull returns an [IsNotNull] criterion.
func NotNull(property string) *IsNotNull {
	return &IsNotNull{Property: property}
}

// IdEq returns an [IdEquals] criterion.
func IdEq(value any) *IdEquals {
	return &IdEquals{Value: value}
}

// Matches returns a [Like] criterion.
func Matches(property, pattern string) *Like {
	return &Like{Property: property, Pattern: pattern, re: compileOnce(likeExpr(pattern, false))}
}

// IMatches returns an [ILike] criterion.
func IMatches(property, pattern string) *ILike {
	return &ILike{Property: property, Pattern: pattern, re: compileOnce(likeExpr(pattern, true))}
}

// RMatches returns an [RLike] criterion.
func RMatches(property, pattern string) *RLike {
	return &RLike{Property: property, Pattern: pattern, re: compileOnce(pattern)}
}

func compileOnce(expr string) func() (*regexp.Regexp, error) {
	return sync.OnceValues(func() (*regexp.Regexp, error) {
		return regexp.Compile(expr)
	})
}

// likeExpr converts a like pattern to an anchored regular expression.
func likeExpr(pattern string, insensitive bool) string {
	var b strings.Builder
	b.WriteString("(?s")
	if insensitive {
		b.WriteString("i")
	}
	b.WriteString(")^")
	start := 0
	for i, r := range pattern {
		if r != '%' && r != '_' {
			continue
		}
		b.WriteString(regexp.QuoteMeta(pattern[start:i]))
		if r == '%' {
			b.WriteString(".*")
		} else {
			b.WriteString(".")
		}
		start = i + 1
	}
	b.WriteString(regexp.QuoteMeta(pattern[start:]))
	b.WriteString("$")
	return b.String()
}

func (c *Like) compiled() (*regexp.Regexp, error) {
	if c.re == nil {
		c.re = compileOnce(likeExpr(c.Pattern, false))
	}
	return c.re()
}

func (c *ILike) compiled() (*regexp.Regexp, error) {
	if c.re == nil {
		c.re = compileOnce(likeExpr(c.Pattern, true))
	}
	return c.re()
}

func (c *RLike) compiled() (*regexp.Regexp, error) {
	if c.re == nil {
		c.re = compileOnce(c.Pattern)
	}
	return c.re()
}
