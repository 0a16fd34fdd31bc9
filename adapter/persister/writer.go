package persister

import (
	"context"
	"fmt"
	"reflect"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/collection"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/entityaccess"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/mapping"
)

type indexedValue struct {
	key     string
	value   any
	indexer domain.PropertyValueIndexer
}

type inverseIndex struct {
	indexer  domain.AssociationIndexer
	ownerKey any
}

// staged holds the work a write leaves for after the entry is stored.
type staged struct {
	indexed  []indexedValue
	inverse  []inverseIndex
	toMany   []*mapping.OneToMany
	children []*mapping.ToOne
}

// writer copies the properties of a struct value into an entry. Embedded
// values are written by nested writers sharing the staged work of the root.
type writer[E any] struct {
	*staged
	p      *Persister[E]
	ctx    context.Context
	access domain.EntityAccess
	value  reflect.Value
	entry  E
	insert bool
	prefix string
	root   bool
}

func newWriter[E any](ctx context.Context, p *Persister[E], access domain.EntityAccess, entry E, insert bool) *writer[E] {
	return &writer[E]{
		staged: &staged{},
		p:      p,
		ctx:    ctx,
		access: access,
		value:  reflect.ValueOf(access.Object()).Elem(),
		entry:  entry,
		insert: insert,
		root:   true,
	}
}

func (w *writer[E]) field(p mapping.Property) reflect.Value {
	return entityaccess.FieldByIndex(w.value, p.FieldIndex())
}

// set writes a non-nil value and stages it for the property index. Nil
// values are staged too, so that an update removes the previous one.
func (w *writer[E]) set(p mapping.Property, value any) {
	key := w.prefix + p.Key()
	if value != nil {
		w.p.store.SetEntryValue(w.entry, key, value)
	}
	if !w.root {
		return
	}
	if idx := w.p.store.PropertyIndexer(p); idx != nil {
		w.indexed = append(w.indexed, indexedValue{key: key, value: value, indexer: idx})
	}
}

func (w *writer[E]) VisitSimple(p *mapping.Simple) error {
	if w.root && p == w.access.Entity().Version() {
		return nil
	}
	w.set(p, data.Native(w.field(p).Interface()))
	return nil
}

func (w *writer[E]) VisitBasic(p *mapping.Basic) error {
	w.set(p, data.Native(w.field(p).Interface()))
	return nil
}

func (w *writer[E]) VisitTenantID(p *mapping.TenantID) error {
	w.set(p, data.Native(w.field(p).Interface()))
	return nil
}

func (w *writer[E]) VisitCustom(p *mapping.Custom) error {
	f := w.field(p)
	if f.Kind() == reflect.Pointer && f.IsNil() {
		w.set(p, nil)
		return nil
	}
	var ct mapping.CustomType
	if c, ok := f.Interface().(mapping.CustomType); ok {
		ct = c
	} else if f.CanAddr() {
		ct, _ = f.Addr().Interface().(mapping.CustomType)
	}
	if ct == nil {
		return nil
	}
	v, err := ct.MarshalNative()
	if err != nil {
		return fmt.Errorf("marshal %s.%s: %w", p.Owner().Name(), p.Name(), err)
	}
	w.set(p, data.Native(v))
	return nil
}

func (w *writer[E]) VisitEmbedded(p *mapping.Embedded) error {
	f := w.field(p)
	if f.Kind() == reflect.Pointer {
		if f.IsNil() {
			return nil
		}
		f = f.Elem()
	}
	nested := &writer[E]{
		staged: w.staged,
		p:      w.p,
		ctx:    w.ctx,
		access: w.access,
		value:  f,
		insert: w.insert,
	}
	es, ok := w.p.store.(EmbeddedStore[E])
	if ok {
		nested.entry = es.CreateEmbeddedEntry(p.Entity())
	} else {
		nested.entry = w.entry
		nested.prefix = w.prefix + p.Key() + "."
	}
	if id := p.Entity().Identity(); id != nil {
		v := data.Native(entityaccess.FieldByIndex(f, id.FieldIndex()).Interface())
		if v != nil {
			w.p.store.SetEntryValue(nested.entry, nested.prefix+id.Key(), v)
		}
	}
	for _, prop := range p.Entity().Properties() {
		if err := prop.Accept(nested); err != nil {
			return err
		}
	}
	if ok {
		es.SetEmbedded(w.entry, w.prefix+p.Key(), nested.entry)
	}
	return nil
}

func (w *writer[E]) VisitToOne(p *mapping.ToOne) error {
	if p.ForeignKeyInChild() {
		if w.root {
			w.children = append(w.children, p)
		}
		return nil
	}
	f := w.field(p)
	var child any
	if ref := w.p.factory.Reference(f); ref != nil {
		if !ref.IsResolved() {
			w.setKey(p, ref.Key())
			return nil
		}
		child = ref.Value()
	} else if !(f.Kind() == reflect.Pointer && f.IsNil()) {
		child = f.Interface()
	}
	if child == nil {
		w.set(p, nil)
		return nil
	}

	var id any
	if p.DoesCascade(mapping.CascadePersist) {
		if w.p.session == nil {
			return fmt.Errorf("cascade %s.%s: no session", p.Owner().Name(), p.Name())
		}
		var err error
		if id, err = w.p.session.Persist(w.ctx, child); err != nil {
			return err
		}
	} else {
		id = identifierOf(p.AssociatedEntity(), child)
	}
	w.setKey(p, id)
	return nil
}

func (w *writer[E]) setKey(p *mapping.ToOne, key any) {
	if key == nil {
		w.set(p, nil)
		return
	}
	key = data.Native(key)
	w.set(p, key)
	if !w.root || !w.insert || !p.IsManyToOne() || !p.IsBidirectional() {
		return
	}
	inv, ok := p.InverseSide().(*mapping.OneToMany)
	if !ok {
		return
	}
	var zero E
	if idx := w.p.store.AssociationIndexer(zero, inv); idx != nil {
		w.inverse = append(w.inverse, inverseIndex{indexer: idx, ownerKey: key})
	}
}

func (w *writer[E]) VisitOneToMany(p *mapping.OneToMany) error {
	if w.root {
		w.toMany = append(w.toMany, p)
	}
	return nil
}

// identifierOf returns the identifier of an instance of entity, or of one
// of its descendants.
func identifierOf(entity *mapping.Entity, obj any) any {
	if obj == nil {
		return nil
	}
	e := entity
	if mc := entity.Context(); mc != nil {
		if found := mc.EntityFor(obj); found != nil {
			e = found
		}
	}
	access, err := entityaccess.NewEntityAccess(e, obj)
	if err != nil {
		return nil
	}
	return access.Identifier()
}

// persistDeferred runs the work that needs the key of the owner: cascading
// to children holding the owner key and to to-many associations, whose
// index is replaced once per association.
func (p *Persister[E]) persistDeferred(ctx context.Context, w *writer[E], id any) error {
	key := nativeKey(id)
	for _, inv := range w.inverse {
		if err := inv.indexer.IndexOne(ctx, inv.ownerKey, key); err != nil {
			return err
		}
	}
	for _, prop := range w.children {
		if !prop.DoesCascade(mapping.CascadePersist) {
			continue
		}
		child := p.toOneValue(w.access.Field(prop.Name()))
		if child == nil {
			continue
		}
		if _, err := p.session.Persist(ctx, child); err != nil {
			return err
		}
	}
	for _, prop := range w.toMany {
		if err := p.persistToMany(ctx, w, prop, key); err != nil {
			return err
		}
	}
	return nil
}

// toOneValue returns the loaded value of a to-one field, or nil.
func (p *Persister[E]) toOneValue(f reflect.Value) any {
	if ref := p.factory.Reference(f); ref != nil {
		return ref.Value()
	}
	if f.Kind() == reflect.Pointer && f.IsNil() {
		return nil
	}
	return f.Interface()
}

// persistentCollection returns the persistent collection held in f, or nil.
func persistentCollection(f reflect.Value) collection.Persistent {
	if f.Kind() == reflect.Pointer {
		if f.IsNil() {
			return nil
		}
		pc, _ := f.Interface().(collection.Persistent)
		return pc
	}
	if !f.CanAddr() {
		return nil
	}
	pc, _ := f.Addr().Interface().(collection.Persistent)
	return pc
}

func (p *Persister[E]) persistToMany(ctx context.Context, w *writer[E], prop *mapping.OneToMany, ownerKey any) error {
	f := w.access.Field(prop.Name())
	var elems []any
	reindex := true
	if pc := persistentCollection(f); pc != nil {
		if !w.insert && pc.IsBound() {
			if !pc.IsInitialized() {
				return nil
			}
			reindex = pc.IsDirty()
		}
		elems = pc.Elements()
		defer pc.ResetDirty()
	} else if f.Kind() == reflect.Slice {
		elems = make([]any, f.Len())
		for i := range elems {
			elems[i] = f.Index(i).Interface()
		}
	}

	cascade := prop.DoesCascade(mapping.CascadePersist)
	keys := make([]any, 0, len(elems))
	for _, elem := range elems {
		obj, key := p.unwrap(elem)
		if obj == nil || isNilPointer(obj) {
			if key != nil {
				keys = append(keys, nativeKey(key))
			}
			continue
		}
		var id any
		if cascade {
			if p.session == nil {
				return fmt.Errorf("cascade %s.%s: no session", prop.Owner().Name(), prop.Name())
			}
			var err error
			if id, err = p.session.Persist(ctx, obj); err != nil {
				return err
			}
		} else {
			id = identifierOf(prop.AssociatedEntity(), obj)
		}
		if id != nil {
			keys = append(keys, nativeKey(id))
		}
	}

	if !reindex || (w.insert && len(keys) == 0) {
		return nil
	}
	idx := p.store.AssociationIndexer(w.entry, prop)
	if idx == nil {
		return nil
	}
	return idx.Index(ctx, ownerKey, keys)
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
