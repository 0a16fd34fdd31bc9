package persister

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/query"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/mapping"
)

type candidate struct {
	obj    any
	target query.Target
}

// ExecuteQuery implements [query.Executor]. Candidates come from the first
// root criterion an index can answer, or from a scan of every key when the
// store implements [KeyScanner]. They are then loaded through the session
// and filtered, sorted, paginated and projected client side.
func (p *Persister[E]) ExecuteQuery(ctx context.Context, q *query.Query) ([]any, error) {
	keys, err := p.candidateKeys(ctx, q)
	if err != nil {
		return nil, err
	}
	objs, err := p.session.RetrieveAll(ctx, p.entity.Type(), keys)
	if err != nil {
		return nil, err
	}

	items := make([]candidate, 0, len(objs))
	for _, obj := range objs {
		if !isA(p.entity.Context().EntityFor(obj), q.Entity()) {
			continue
		}
		access, err := p.access(obj)
		if err != nil {
			return nil, err
		}
		t := query.ObjectTarget(access, p.factory)
		ok, err := p.matcher.Match(q.Criteria(), t)
		if err != nil {
			return nil, err
		}
		if ok {
			items = append(items, candidate{obj: obj, target: t})
		}
	}
	if err := query.Sort(p.reducer, items, func(c candidate) query.Target { return c.target }, q.Orders()); err != nil {
		return nil, err
	}

	if len(q.Projections()) == 0 {
		items = query.Page(items, q.Offset(), q.Max())
		res := make([]any, len(items))
		for i, c := range items {
			res[i] = c.obj
		}
		return res, nil
	}

	aggregated := false
	for _, pr := range q.Projections() {
		if _, ok := pr.(query.Aggregate); ok {
			aggregated = true
		}
	}
	if !aggregated {
		items = query.Page(items, q.Offset(), q.Max())
	}
	targets := make([]query.Target, len(items))
	for i, c := range items {
		targets[i] = c.target
	}
	res, err := p.reducer.Reduce(targets, q.Projections())
	if err != nil {
		return nil, err
	}
	if aggregated {
		res = query.Page(res, q.Offset(), q.Max())
	}
	return res, nil
}

// isA reports whether e is entity or one of its descendants.
func isA(e, entity *mapping.Entity) bool {
	for ; e != nil; e = e.Parent() {
		if e == entity {
			return true
		}
	}
	return false
}

func (p *Persister[E]) candidateKeys(ctx context.Context, q *query.Query) ([]any, error) {
	for _, c := range q.Criteria().Criteria() {
		keys, ok, err := p.indexedKeys(ctx, c)
		if err != nil {
			return nil, err
		}
		if ok {
			p.logger.Debug("query answered by index", zap.String("criterion", fmt.Sprintf("%T", c)), zap.Int("keys", len(keys)))
			return keys, nil
		}
	}
	ks, ok := p.store.(KeyScanner)
	if !ok {
		return nil, fmt.Errorf("%w: no index for query on %s", domain.ErrUnsupportedQuery, q.Entity().Name())
	}
	return ks.ScanKeys(ctx, p.entity, p.entity.Family())
}

// indexedKeys returns the keys matching c when an index can answer it.
func (p *Persister[E]) indexedKeys(ctx context.Context, c query.Criterion) ([]any, bool, error) {
	if id, ok := c.(*query.IdEquals); ok {
		if id.Value == nil {
			return nil, true, nil
		}
		return []any{data.Native(id.Value)}, true, nil
	}
	pc, ok := c.(query.PropertyCriterion)
	if !ok {
		return nil, false, nil
	}
	if id := p.entity.Identity(); id != nil && id.Name() == pc.PropertyName() {
		if eq, ok := c.(*query.Equals); ok {
			return []any{data.Native(eq.Value)}, true, nil
		}
	}
	prop := p.entity.Property(pc.PropertyName())
	if prop == nil {
		return nil, false, nil
	}
	idx := p.store.PropertyIndexer(prop)
	if idx == nil {
		return nil, false, nil
	}
	rng, ranged := idx.(domain.RangeIndexer)

	var keys []any
	var err error
	switch t := c.(type) {
	case *query.Equals:
		keys, err = idx.Query(ctx, data.Native(t.Value))
	case *query.In:
		keys, err = p.union(ctx, idx, t.Values)
	case *query.GreaterThan:
		if !ranged {
			return nil, false, nil
		}
		keys, err = rng.QueryRange(ctx, data.Native(t.Value), nil, false, false)
	case *query.GreaterThanEquals:
		if !ranged {
			return nil, false, nil
		}
		keys, err = rng.QueryRange(ctx, data.Native(t.Value), nil, true, false)
	case *query.LessThan:
		if !ranged {
			return nil, false, nil
		}
		keys, err = rng.QueryRange(ctx, nil, data.Native(t.Value), false, false)
	case *query.LessThanEquals:
		if !ranged {
			return nil, false, nil
		}
		keys, err = rng.QueryRange(ctx, nil, data.Native(t.Value), false, true)
	case *query.Between:
		if !ranged {
			return nil, false, nil
		}
		keys, err = rng.QueryRange(ctx, data.Native(t.From), data.Native(t.To), true, true)
	default:
		return nil, false, nil
	}
	if errors.Is(err, domain.ErrUnsupportedQuery) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return keys, true, nil
}

func (p *Persister[E]) union(ctx context.Context, idx domain.PropertyValueIndexer, values []any) ([]any, error) {
	var res []any
	for _, v := range values {
		keys, err := idx.Query(ctx, data.Native(v))
		if err != nil {
			return nil, err
		}
	next:
		for _, k := range keys {
			for _, seen := range res {
				if p.equal(seen, k) {
					continue next
				}
			}
			res = append(res, k)
		}
	}
	return res, nil
}
