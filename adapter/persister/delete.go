package persister

import (
	"context"
	"reflect"

	"go.uber.org/zap"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/mapping"
)

type deletion[E any] struct {
	ctx    context.Context
	access domain.EntityAccess
	key    any
	old    E
	hasOld bool
}

// Delete implements [domain.Persister]. A vetoed deletion returns nil
// without touching the store.
func (p *Persister[E]) Delete(ctx context.Context, obj any) error {
	d, err := p.prepareDelete(ctx, obj)
	if err != nil || d == nil {
		return err
	}
	if err := p.cascadeBefore(d); err != nil {
		return err
	}
	if err := p.store.DeleteEntry(d.ctx, d.access.Entity().Family(), d.key); err != nil {
		return err
	}
	return p.afterDelete(d)
}

// DeleteAll implements [domain.Persister]. Stores implementing
// [BatchDeleter] remove every entry in one call.
func (p *Persister[E]) DeleteAll(ctx context.Context, objs []any) error {
	bd, ok := p.store.(BatchDeleter)
	if !ok {
		for _, obj := range objs {
			if err := p.Delete(ctx, obj); err != nil {
				return err
			}
		}
		return nil
	}

	pending := make([]*deletion[E], 0, len(objs))
	keys := make([]any, 0, len(objs))
	for _, obj := range objs {
		d, err := p.prepareDelete(ctx, obj)
		if err != nil {
			return err
		}
		if d == nil {
			continue
		}
		if err := p.cascadeBefore(d); err != nil {
			return err
		}
		pending = append(pending, d)
		keys = append(keys, d.key)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := bd.DeleteEntries(ctx, p.entity.Family(), keys); err != nil {
		return err
	}
	for _, d := range pending {
		if err := p.afterDelete(d); err != nil {
			return err
		}
	}
	return nil
}

// prepareDelete returns nil when there is nothing to delete.
func (p *Persister[E]) prepareDelete(ctx context.Context, obj any) (*deletion[E], error) {
	obj, key := p.unwrap(obj)
	if obj == nil {
		if key == nil {
			return nil, nil
		}
		var err error
		if obj, err = p.Retrieve(ctx, key); err != nil || obj == nil {
			return nil, err
		}
	}
	access, err := p.access(obj)
	if err != nil {
		return nil, err
	}
	id := access.Identifier()
	if id == nil {
		return nil, nil
	}
	if !p.allowed(ctx, access, beforeDelete) {
		p.logger.Debug("delete vetoed", zap.Any("key", id))
		return nil, nil
	}
	ctx, busy := enter(ctx, obj)
	if busy {
		return nil, nil
	}
	d := &deletion[E]{ctx: ctx, access: access, key: nativeKey(id)}
	if p.hasIndexes(access.Entity()) {
		d.old, d.hasOld, err = p.store.RetrieveEntry(ctx, access.Entity(), access.Entity().Family(), d.key)
		if err != nil {
			return nil, err
		}
	}
	return d, nil
}

// cascadeBefore deletes the children holding the key of the owner. To-many
// members are only deleted from the owning side.
func (p *Persister[E]) cascadeBefore(d *deletion[E]) error {
	for _, prop := range d.access.Entity().Associations() {
		switch a := prop.(type) {
		case *mapping.OneToMany:
			if !a.IsOwningSide() || !a.DoesCascade(mapping.CascadeRemove) {
				continue
			}
			elems, err := p.toManyElements(d.ctx, d.access.Field(a.Name()))
			if err != nil {
				return err
			}
			for _, elem := range elems {
				if err := p.session.Delete(d.ctx, elem); err != nil {
					return err
				}
			}
		case *mapping.ToOne:
			if !a.ForeignKeyInChild() || !a.DoesCascade(mapping.CascadeRemove) {
				continue
			}
			if child := p.toOneTarget(d.access.Field(a.Name())); child != nil {
				if err := p.session.Delete(d.ctx, child); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// toManyElements returns the members of a to-many field, loading bound
// collections first.
func (p *Persister[E]) toManyElements(ctx context.Context, f reflect.Value) ([]any, error) {
	if pc := persistentCollection(f); pc != nil {
		if err := pc.Initialize(ctx); err != nil {
			return nil, err
		}
		return pc.Elements(), nil
	}
	if f.Kind() != reflect.Slice {
		return nil, nil
	}
	res := make([]any, 0, f.Len())
	for i := range f.Len() {
		res = append(res, f.Index(i).Interface())
	}
	return res, nil
}

// toOneTarget is like toOneValue but returns unresolved references
// themselves, so they can be loaded before being deleted.
func (p *Persister[E]) toOneTarget(f reflect.Value) any {
	if ref := p.factory.Reference(f); ref != nil && !ref.IsResolved() {
		if ref.Key() == nil {
			return nil
		}
		return ref
	}
	return p.toOneValue(f)
}

// afterDelete cleans the indexes of a deleted entry and deletes the owned
// to-one associations.
func (p *Persister[E]) afterDelete(d *deletion[E]) error {
	entity := d.access.Entity()
	if d.hasOld {
		for _, prop := range entity.Properties() {
			idx := p.store.PropertyIndexer(prop)
			if idx == nil {
				continue
			}
			for _, v := range indexValues(p.store.GetEntryValue(d.old, prop.Key())) {
				if err := idx.Deindex(d.ctx, v, d.key); err != nil {
					return err
				}
			}
		}
	}
	for _, prop := range entity.Associations() {
		switch a := prop.(type) {
		case *mapping.OneToMany:
			if idx := p.store.AssociationIndexer(d.old, a); idx != nil {
				if err := idx.Deindex(d.ctx, d.key); err != nil {
					return err
				}
			}
		case *mapping.ToOne:
			if a.ForeignKeyInChild() || a.IsManyToOne() || !a.DoesCascade(mapping.CascadeRemove) {
				continue
			}
			if child := p.toOneTarget(d.access.Field(a.Name())); child != nil {
				if err := p.session.Delete(d.ctx, child); err != nil {
					return err
				}
			}
		}
	}
	if p.session != nil {
		p.session.Detach(entity, d.key)
	}
	p.logger.Debug("entry deleted", zap.Any("key", d.key))
	return nil
}
