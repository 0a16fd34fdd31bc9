package query

import (
	"fmt"
	"slices"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/comparer"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// Reducer sorts, pages and projects materialized results. Stores without
// native ordering or aggregation use it to answer queries client side.
type Reducer struct {
	comparer domain.Comparer
}

// NewReducer returns a new Reducer.
func NewReducer(opts ...ReducerOption) *Reducer {
	r := &Reducer{comparer: comparer.NewComparer()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sort orders items in place. Ties keep their original order.
func Sort[T any](r *Reducer, items []T, target func(T) Target, orders []Order) error {
	if len(orders) == 0 {
		return nil
	}
	var err error
	slices.SortStableFunc(items, func(a, b T) int {
		if err != nil {
			return 0
		}
		ta, tb := target(a), target(b)
		for _, o := range orders {
			c, cErr := r.comparer.Compare(ta.Value(o.Property), tb.Value(o.Property))
			if cErr != nil {
				err = fmt.Errorf("sorting by %s: %w", o.Property, cErr)
				return 0
			}
			if o.Descending {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
	return err
}

// Page returns the window of items starting at offset with at most limit
// elements. A negative limit means no limit.
func Page[T any](items []T, offset, limit int) []T {
	offset = min(max(offset, 0), len(items))
	items = items[offset:]
	if limit >= 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// Reduce applies projections to targets. Without aggregates there is one
// row per target; with aggregates there is a single row. Rows of a single
// projection are plain values, other rows are []any.
func (r *Reducer) Reduce(targets []Target, projections []Projection) ([]any, error) {
	if len(projections) == 0 {
		return nil, nil
	}
	aggregated := slices.ContainsFunc(projections, func(p Projection) bool {
		_, ok := p.(Aggregate)
		return ok
	})
	if aggregated {
		row := make([]any, len(projections))
		for i, p := range projections {
			v, err := r.aggregate(targets, p)
			if err != nil {
				return nil, err
			}
			row[i] = v
		}
		return []any{rowValue(row)}, nil
	}

	distinct := slices.ContainsFunc(projections, func(p Projection) bool {
		_, ok := p.(DistinctProjection)
		return ok
	})
	res := make([]any, 0, len(targets))
	seen := make([]any, 0, len(targets))
	for _, t := range targets {
		row := make([]any, len(projections))
		for i, p := range projections {
			row[i] = project(t, p)
		}
		if distinct {
			if r.contains(seen, row) {
				continue
			}
			seen = append(seen, row)
		}
		res = append(res, rowValue(row))
	}
	return res, nil
}

func rowValue(row []any) any {
	if len(row) == 1 {
		return row[0]
	}
	return row
}

func project(t Target, p Projection) any {
	switch proj := p.(type) {
	case IdProjection:
		return t.Identifier()
	case PropertyProjection:
		return t.Value(proj.Property)
	case DistinctProjection:
		return t.Value(proj.Property)
	default:
		return nil
	}
}

func (r *Reducer) contains(seen []any, v any) bool {
	for _, s := range seen {
		if c, err := r.comparer.Compare(s, v); err == nil && c == 0 {
			return true
		}
	}
	return false
}

func (r *Reducer) aggregate(targets []Target, p Projection) (any, error) {
	switch proj := p.(type) {
	case CountProjection:
		return int64(len(targets)), nil
	case CountDistinctProjection:
		var seen []any
		for _, t := range targets {
			v := t.Value(proj.Property)
			if v != nil && !r.contains(seen, v) {
				seen = append(seen, v)
			}
		}
		return int64(len(seen)), nil
	case SumProjection:
		s, _ := sum(values(targets, proj.Property))
		return s, nil
	case AvgProjection:
		s, n := sum(values(targets, proj.Property))
		if n == 0 {
			return nil, nil
		}
		switch t := s.(type) {
		case int64:
			return float64(t) / float64(n), nil
		case uint64:
			return float64(t) / float64(n), nil
		default:
			return t.(float64) / float64(n), nil
		}
	case MinProjection:
		return r.extreme(values(targets, proj.Property), -1)
	case MaxProjection:
		return r.extreme(values(targets, proj.Property), 1)
	default:
		if len(targets) == 0 {
			return nil, nil
		}
		return project(targets[0], p), nil
	}
}

func values(targets []Target, property string) []any {
	res := make([]any, 0, len(targets))
	for _, t := range targets {
		if v := t.Value(property); v != nil {
			res = append(res, v)
		}
	}
	return res
}

// sum adds the numeric values. The result is an int64 while every value is
// a signed integer, an uint64 while every value is unsigned, and a float64
// otherwise. The count of numeric values is returned along.
func sum(vs []any) (any, int) {
	var (
		i64  int64
		u64  uint64
		f64  float64
		n    int
		kind = 0 // 0 signed, 1 unsigned, 2 float
	)
	for _, v := range vs {
		switch t := v.(type) {
		case int64:
			i64 += t
			f64 += float64(t)
			if kind == 1 {
				kind = 2
			}
		case uint64:
			u64 += t
			f64 += float64(t)
			if kind == 0 && n == 0 {
				kind = 1
			} else if kind == 0 {
				kind = 2
			}
		case float64:
			f64 += t
			kind = 2
		default:
			continue
		}
		n++
	}
	switch kind {
	case 0:
		return i64, n
	case 1:
		return u64, n
	default:
		return f64, n
	}
}

func (r *Reducer) extreme(vs []any, sign int) (any, error) {
	var res any
	for i, v := range vs {
		if i == 0 {
			res = v
			continue
		}
		c, err := r.comparer.Compare(v, res)
		if err != nil {
			return nil, err
		}
		if c*sign > 0 {
			res = v
		}
	}
	return res, nil
}
