// Package query contains the store independent query model: a criteria tree
// of junctions and property criteria, projections, ordering and pagination.
//
// Store executors compile a [Query] into their native dialect. The
// [Matcher] and the [Reducer] evaluate the same model client side, for
// stores lacking native filtering, ordering or aggregation.
package query

import (
	"context"
	"reflect"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/entityaccess"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/mapping"
)

var referenceIface = reflect.TypeFor[domain.Reference]()

// Executor runs queries against a store.
type Executor interface {
	ExecuteQuery(ctx context.Context, q *Query) ([]any, error)
}

// Query is a query over one entity.
type Query struct {
	entity      *mapping.Entity
	executor    Executor
	session     domain.Session
	criteria    *Conjunction
	projections []Projection
	orders      []Order
	offset      int
	max         int
}

// New returns an empty query over entity, run by executor.
func New(entity *mapping.Entity, executor Executor, opts ...Option) *Query {
	q := &Query{
		entity:   entity,
		executor: executor,
		max:      -1,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.criteria = &Conjunction{junction: junction{norm: q.normalize}}
	return q
}

// normalize replaces managed entities and lazy references by their
// identifiers.
func (q *Query) normalize(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Struct && reflect.PointerTo(rv.Type()).Implements(referenceIface) {
		p := reflect.New(rv.Type())
		p.Elem().Set(rv)
		v = p.Interface()
	}
	if ref, ok := v.(domain.Reference); ok {
		if !ref.IsResolved() {
			return ref.Key()
		}
		if v = ref.Value(); v == nil {
			return nil
		}
	}
	mc := q.entity.Context()
	if mc == nil {
		return v
	}
	e := mc.EntityFor(v)
	if e == nil || e.IsEmbedded() {
		return v
	}
	access, err := entityaccess.NewEntityAccess(e, v)
	if err != nil {
		return v
	}
	return access.Identifier()
}

// Entity returns the queried entity.
func (q *Query) Entity() *mapping.Entity { return q.entity }

// Criteria returns the root conjunction.
func (q *Query) Criteria() *Conjunction { return q.criteria }

// Projections returns the projections in insertion order.
func (q *Query) Projections() []Projection { return q.projections }

// Orders returns the sort orders.
func (q *Query) Orders() []Order { return q.orders }

// Offset returns the index of the first result.
func (q *Query) Offset() int { return q.offset }

// Max returns the maximum number of results, or -1 when unlimited.
func (q *Query) Max() int { return q.max }

// Add appends criteria to the root conjunction.
func (q *Query) Add(cs ...Criterion) *Query {
	q.criteria.add(cs...)
	return q
}

// Eq adds an [Equals] criterion. A managed entity or a lazy reference is
// replaced by its identifier.
func (q *Query) Eq(property string, value any) *Query { return q.Add(Eq(property, value)) }

// IdEq adds an [IdEquals] criterion.
func (q *Query) IdEq(value any) *Query { return q.Add(IdEq(q.normalize(value))) }

// Ne adds a [NotEquals] criterion.
func (q *Query) Ne(property string, value any) *Query { return q.Add(Ne(property, value)) }

// Gt adds a [GreaterThan] criterion.
func (q *Query) Gt(property string, value any) *Query { return q.Add(Gt(property, value)) }

// Ge adds a [GreaterThanEquals] criterion.
func (q *Query) Ge(property string, value any) *Query { return q.Add(Ge(property, value)) }

// Lt adds a [LessThan] criterion.
func (q *Query) Lt(property string, value any) *Query { return q.Add(Lt(property, value)) }

// Le adds a [LessThanEquals] criterion.
func (q *Query) Le(property string, value any) *Query { return q.Add(Le(property, value)) }

// Between adds a [Between] criterion.
func (q *Query) Between(property string, from, to any) *Query {
	return q.Add(Range(property, from, to))
}

// Like adds a [Like] criterion.
func (q *Query) Like(property, pattern string) *Query { return q.Add(Matches(property, pattern)) }

// ILike adds an [ILike] criterion.
func (q *Query) ILike(property, pattern string) *Query { return q.Add(IMatches(property, pattern)) }

// RLike adds an [RLike] criterion.
func (q *Query) RLike(property, pattern string) *Query { return q.Add(RMatches(property, pattern)) }

// In adds an [In] criterion.
func (q *Query) In(property string, values ...any) *Query { return q.Add(OneOf(property, values...)) }

// IsNull adds an [IsNull] criterion.
func (q *Query) IsNull(property string) *Query { return q.Add(Null(property)) }

// IsNotNull adds an [IsNotNull] criterion.
func (q *Query) IsNotNull(property string) *Query { return q.Add(NotNull(property)) }

// AllEq adds an [Equals] criterion per map entry.
func (q *Query) AllEq(values map[string]any) *Query {
	for k, v := range values {
		q.Eq(k, v)
	}
	return q
}

// And adds a conjunction of cs.
func (q *Query) And(cs ...Criterion) *Query { return q.Add(And(cs...)) }

// Or adds a disjunction of cs.
func (q *Query) Or(cs ...Criterion) *Query { return q.Add(Or(cs...)) }

// Conjunction adds an empty conjunction and returns it.
func (q *Query) Conjunction() *Conjunction {
	j := &Conjunction{}
	q.Add(j)
	return j
}

// Disjunction adds an empty disjunction and returns it.
func (q *Query) Disjunction() *Disjunction {
	j := &Disjunction{}
	q.Add(j)
	return j
}

// Negation adds an empty negation and returns it.
func (q *Query) Negation() *Negation {
	j := &Negation{}
	q.Add(j)
	return j
}

// Project appends projections.
func (q *Query) Project(ps ...Projection) *Query {
	q.projections = append(q.projections, ps...)
	return q
}

// Order appends sort orders.
func (q *Query) Order(os ...Order) *Query {
	q.orders = append(q.orders, os...)
	return q
}

// MaxResults limits the number of results. A negative value removes the
// limit.
func (q *Query) MaxResults(n int) *Query {
	q.max = n
	return q
}

// FirstResult skips the first n results.
func (q *Query) FirstResult(n int) *Query {
	q.offset = n
	return q
}

// List runs the query. The session is flushed first when its flush mode is
// [domain.FlushAuto].
func (q *Query) List(ctx context.Context) ([]any, error) {
	if q.session != nil && q.session.FlushMode() == domain.FlushAuto {
		if err := q.session.Flush(ctx); err != nil {
			return nil, err
		}
	}
	return q.executor.ExecuteQuery(ctx, q)
}

// SingleResult runs the query and returns the first result, or nil.
func (q *Query) SingleResult(ctx context.Context) (any, error) {
	limit := q.max
	q.max = 1
	res, err := q.List(ctx)
	q.max = limit
	if err != nil || len(res) == 0 {
		return nil, err
	}
	return res[0], nil
}
