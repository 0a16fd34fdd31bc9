package persister

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/collection"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/proxy"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/query"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/mapping"
)

type address struct {
	ID     int64
	Street string
}

type pet struct {
	ID   int64
	Name string
}

type person struct {
	ID      int64
	Name    string  `gedm:",index"`
	Nick    *string `gedm:",index"`
	Version int     `gedm:",version"`
	Address proxy.Ref[*address]
	Pets    *collection.List[*pet]
}

type order struct {
	ID       int64
	Customer *person `gedm:",required"`
}

type place struct {
	City string
	Zip  string
}

type owner struct {
	ID      int64
	Name    string
	Where   place                  `gedm:",embedded"`
	Home    proxy.Ref[*address]    `gedm:",eager"`
	Pets    *collection.List[*pet] `gedm:",eager"`
	Friends []*pet
}

type animal struct {
	ID   int64
	Name string
}

type dog struct {
	animal
	Breed string
}

type book struct {
	ID    int64
	Title string
}

type shelf struct {
	ID    int64
	Kept  *collection.List[*book] `gedm:",cascade=remove"`
	Owned *collection.List[*book] `gedm:",owning,cascade=remove"`
}

// valueIndex is a property index kept in a map. String values can be
// queried by range.
type valueIndex struct {
	keys   map[any][]any
	ranges int
}

func (i *valueIndex) Index(_ context.Context, value any, key any) error {
	i.keys[value] = append(i.keys[value], key)
	return nil
}

func (i *valueIndex) Deindex(_ context.Context, value any, key any) error {
	i.keys[value] = slices.DeleteFunc(i.keys[value], func(k any) bool { return k == key })
	return nil
}

func (i *valueIndex) Query(_ context.Context, value any) ([]any, error) {
	return slices.Clone(i.keys[value]), nil
}

func (i *valueIndex) QueryRange(_ context.Context, from, to any, includeFrom, includeTo bool) ([]any, error) {
	i.ranges++
	var res []any
	for v, keys := range i.keys {
		str, ok := v.(string)
		if !ok {
			continue
		}
		if f, ok := from.(string); ok {
			if c := cmp.Compare(str, f); c < 0 || c == 0 && !includeFrom {
				continue
			}
		}
		if t, ok := to.(string); ok {
			if c := cmp.Compare(str, t); c > 0 || c == 0 && !includeTo {
				continue
			}
		}
		res = append(res, keys...)
	}
	slices.SortFunc(res, func(a, b any) int { return cmp.Compare(a.(int64), b.(int64)) })
	return res, nil
}

type associationIndexerMock struct{ mock.Mock }

func (a *associationIndexerMock) Query(ctx context.Context, ownerKey any) ([]any, error) {
	call := a.Called(ctx, ownerKey)
	res, _ := call.Get(0).([]any)
	return res, call.Error(1)
}

func (a *associationIndexerMock) DoesReturnKeys() bool { return a.Called().Bool(0) }

func (a *associationIndexerMock) IndexedEntity() *mapping.Entity {
	e, _ := a.Called().Get(0).(*mapping.Entity)
	return e
}

func (a *associationIndexerMock) Index(ctx context.Context, ownerKey any, keys []any) error {
	return a.Called(ctx, ownerKey, keys).Error(0)
}

func (a *associationIndexerMock) IndexOne(ctx context.Context, ownerKey any, key any) error {
	return a.Called(ctx, ownerKey, key).Error(0)
}

func (a *associationIndexerMock) Deindex(ctx context.Context, ownerKey any) error {
	return a.Called(ctx, ownerKey).Error(0)
}

// lockingStore adds entry locks to a fakeStore. Retrievals go through the
// mock.
type lockingStore struct {
	*fakeStore
	mock.Mock
}

func (l *lockingStore) LockEntry(_ context.Context, _ *mapping.Entity, key any, timeout time.Duration) error {
	return l.Called(key, timeout).Error(0)
}

func (l *lockingStore) UnlockEntry(_ context.Context, _ *mapping.Entity, key any) error {
	return l.Called(key).Error(0)
}

func (l *lockingStore) RetrieveEntry(_ context.Context, _ *mapping.Entity, _ string, key any) (data.Entry, bool, error) {
	call := l.Called(key)
	e, _ := call.Get(0).(data.Entry)
	return e, call.Bool(1), call.Error(2)
}

type interceptorMock struct{ mock.Mock }

func (i *interceptorMock) BeforeInsert(ctx context.Context, access domain.EntityAccess) bool {
	return i.Called(ctx, access).Bool(0)
}

func (i *interceptorMock) BeforeUpdate(ctx context.Context, access domain.EntityAccess) bool {
	return i.Called(ctx, access).Bool(0)
}

func (i *interceptorMock) BeforeDelete(ctx context.Context, access domain.EntityAccess) bool {
	return i.Called(ctx, access).Bool(0)
}

// fakeStore keeps entries in maps and counts the calls it receives.
type fakeStore struct {
	entries map[string]map[any]data.Entry
	seq     int64
	calls   map[string]int
	indexes map[string]*valueIndex
	assoc   map[string]domain.AssociationIndexer
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		entries: map[string]map[any]data.Entry{},
		calls:   map[string]int{},
		indexes: map[string]*valueIndex{},
		assoc:   map[string]domain.AssociationIndexer{},
	}
}

func (s *fakeStore) family(f string) map[any]data.Entry {
	if s.entries[f] == nil {
		s.entries[f] = map[any]data.Entry{}
	}
	return s.entries[f]
}

func (s *fakeStore) CreateNewEntry(string) data.Entry {
	s.calls["CreateNewEntry"]++
	return data.Entry{}
}

func (s *fakeStore) GetEntryValue(e data.Entry, key string) any { return e.Get(key) }

func (s *fakeStore) SetEntryValue(e data.Entry, key string, v any) { e.Set(key, v) }

func (s *fakeStore) RetrieveEntry(_ context.Context, _ *mapping.Entity, family string, key any) (data.Entry, bool, error) {
	e, ok := s.family(family)[key]
	if !ok {
		return nil, false, nil
	}
	return e.Clone(), true, nil
}

func (s *fakeStore) StoreEntry(_ context.Context, entity *mapping.Entity, _ domain.EntityAccess, key any, entry data.Entry) (any, error) {
	s.calls["StoreEntry"]++
	if key == nil {
		s.seq++
		key = s.seq
	}
	s.family(entity.Family())[key] = entry.Clone()
	return key, nil
}

func (s *fakeStore) UpdateEntry(_ context.Context, entity *mapping.Entity, _ domain.EntityAccess, key any, entry data.Entry) error {
	s.calls["UpdateEntry"]++
	entries := s.family(entity.Family())
	if v := entity.Version(); v != nil {
		next, _ := entry.Get(v.Key()).(int64)
		if prev, _ := entries[key].Get(v.Key()).(int64); prev != next-1 {
			return domain.ErrOptimisticLocking
		}
	}
	entries[key] = entry.Clone()
	return nil
}

func (s *fakeStore) DeleteEntry(_ context.Context, family string, key any) error {
	s.calls["DeleteEntry"]++
	delete(s.family(family), key)
	return nil
}

func (s *fakeStore) GenerateIdentifier(context.Context, *mapping.Entity, data.Entry) (any, error) {
	return nil, nil
}

func (s *fakeStore) PropertyIndexer(p mapping.Property) domain.PropertyValueIndexer {
	if !p.Mapping().Index {
		return nil
	}
	name := p.Owner().Name() + "." + p.Name()
	if s.indexes[name] == nil {
		s.indexes[name] = &valueIndex{keys: map[any][]any{}}
	}
	return s.indexes[name]
}

func (s *fakeStore) AssociationIndexer(_ data.Entry, p *mapping.OneToMany) domain.AssociationIndexer {
	return s.assoc[p.Name()]
}

func (s *fakeStore) ScanKeys(_ context.Context, _ *mapping.Entity, family string) ([]any, error) {
	s.calls["ScanKeys"]++
	keys := make([]any, 0, len(s.entries[family]))
	for k := range s.entries[family] {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b any) int { return int(a.(int64) - b.(int64)) })
	return keys, nil
}

// fakeSession routes every call to the persister of the root entity.
type fakeSession struct {
	mc         *mapping.Context
	persisters map[*mapping.Entity]*Persister[data.Entry]
	attached   map[string]any
}

func (s *fakeSession) id(entity *mapping.Entity, key any) string {
	return fmt.Sprintf("%s:%v", entity.Root().Name(), data.Native(key))
}

func (s *fakeSession) persisterOf(v any) (*Persister[data.Entry], error) {
	var e *mapping.Entity
	switch t := v.(type) {
	case *mapping.Entity:
		e = t
	case reflect.Type:
		e = s.mc.Entity(t)
	case mapping.ReferenceType:
		e = s.mc.Entity(t.ReferencedType())
	default:
		e = s.mc.EntityFor(v)
	}
	if e == nil {
		return nil, fmt.Errorf("%w: %T", domain.ErrNotPersistent, v)
	}
	return s.persisters[e.Root()], nil
}

func (s *fakeSession) Retrieve(ctx context.Context, typ reflect.Type, key any) (any, error) {
	p, err := s.persisterOf(typ)
	if err != nil {
		return nil, err
	}
	if obj, ok := s.attached[s.id(p.Entity(), key)]; ok {
		return obj, nil
	}
	return p.Retrieve(ctx, key)
}

func (s *fakeSession) RetrieveAll(ctx context.Context, typ reflect.Type, keys []any) ([]any, error) {
	var res []any
	for _, k := range keys {
		obj, err := s.Retrieve(ctx, typ, k)
		if err != nil {
			return nil, err
		}
		if obj != nil {
			res = append(res, obj)
		}
	}
	return res, nil
}

func (s *fakeSession) Persist(ctx context.Context, obj any) (any, error) {
	p, err := s.persisterOf(obj)
	if err != nil {
		return nil, err
	}
	return p.Persist(ctx, obj)
}

func (s *fakeSession) PersistAll(ctx context.Context, objs []any) ([]any, error) {
	var ids []any
	for _, obj := range objs {
		id, err := s.Persist(ctx, obj)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *fakeSession) Delete(ctx context.Context, obj any) error {
	p, err := s.persisterOf(obj)
	if err != nil {
		return err
	}
	return p.Delete(ctx, obj)
}

func (s *fakeSession) Persister(v any) (domain.Persister, error) {
	p, err := s.persisterOf(v)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *fakeSession) MappingContext() *mapping.Context   { return s.mc }
func (s *fakeSession) FlushMode() domain.FlushMode        { return domain.FlushCommit }
func (s *fakeSession) Flush(context.Context) error        { return nil }
func (s *fakeSession) Contains(obj any) bool              { return slices.Contains(s.values(), obj) }
func (s *fakeSession) Attach(e *mapping.Entity, k, o any) { s.attached[s.id(e, k)] = o }
func (s *fakeSession) Detach(e *mapping.Entity, k any)    { delete(s.attached, s.id(e, k)) }

func (s *fakeSession) values() []any {
	res := make([]any, 0, len(s.attached))
	for _, v := range s.attached {
		res = append(res, v)
	}
	return res
}

type PersisterTestSuite struct {
	suite.Suite
	ctx     context.Context
	mc      *mapping.Context
	store   *fakeStore
	session *fakeSession
	people  *Persister[data.Entry]
}

func (s *PersisterTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.mc = mapping.NewContext()
	for _, sample := range []any{address{}, pet{}, person{}, order{}, owner{}, book{}, shelf{}} {
		_, err := s.mc.Register(sample)
		s.Require().NoError(err)
	}
	_, err := s.mc.Register(animal{}, mapping.WithFamily("animals"))
	s.Require().NoError(err)
	_, err = s.mc.Register(dog{}, mapping.WithParent(animal{}), mapping.WithDiscriminator("Dog"))
	s.Require().NoError(err)
	s.Require().NoError(s.mc.Initialize())

	s.store = newFakeStore()
	s.session = &fakeSession{
		mc:         s.mc,
		persisters: map[*mapping.Entity]*Persister[data.Entry]{},
		attached:   map[string]any{},
	}
	for _, e := range s.mc.Entities() {
		if e.IsEmbedded() {
			continue
		}
		s.session.persisters[e] = New[data.Entry](s.store, e, s.session)
	}
	s.people = s.session.persisters[s.mc.Entity(reflect.TypeFor[person]())]
}

func (s *PersisterTestSuite) clear() {
	s.session.attached = map[string]any{}
}

func (s *PersisterTestSuite) TestRoundTrip() {
	p := &person{Name: "Ann"}
	id, err := s.people.Persist(s.ctx, p)
	s.Require().NoError(err)
	s.Equal(int64(1), id)
	s.Equal(int64(1), p.ID)
	s.Equal(data.Entry{"Name": "Ann", "Version": int64(0)}, s.store.entries["person"][int64(1)])

	s.clear()
	got, err := s.people.Retrieve(s.ctx, int64(1))
	s.Require().NoError(err)
	s.Equal(&person{ID: 1, Name: "Ann", Pets: got.(*person).Pets}, got)
	s.True(s.session.Contains(got))

	s.Run("missing", func() {
		got, err := s.people.Retrieve(s.ctx, int64(99))
		s.NoError(err)
		s.Nil(got)
	})

	s.Run("update increments version", func() {
		p.Name = "Bob"
		_, err := s.people.Persist(s.ctx, p)
		s.Require().NoError(err)
		s.Equal(1, p.Version)
		s.Equal(int64(1), s.store.entries["person"][int64(1)]["Version"])
	})
}

func (s *PersisterTestSuite) TestCascadeAndLazyLoading() {
	pets := new(associationIndexerMock)
	s.store.assoc["Pets"] = pets

	p := &person{
		Name:    "Ann",
		Address: proxy.To(&address{Street: "Main"}),
		Pets:    collection.NewList(&pet{Name: "Rex"}, &pet{Name: "Tom"}),
	}
	pets.On("Index", mock.Anything, int64(2), []any{int64(3), int64(4)}).Return(nil).Once()

	id, err := s.people.Persist(s.ctx, p)
	s.Require().NoError(err)
	s.Equal(int64(2), id)
	s.Equal(int64(1), s.store.entries["person"][int64(2)]["Address"])
	s.Len(s.store.entries["pet"], 2)
	s.False(p.Pets.IsDirty())

	s.clear()
	got, err := s.people.Retrieve(s.ctx, int64(2))
	s.Require().NoError(err)
	loaded := got.(*person)
	s.False(loaded.Address.IsResolved())
	s.Equal(int64(1), loaded.Address.Key())
	s.True(loaded.Pets.IsBound())
	s.False(loaded.Pets.IsInitialized())

	pets.On("Query", mock.Anything, int64(2)).Return([]any{int64(3), int64(4)}, nil).Once()
	pets.On("DoesReturnKeys").Return(true)
	s.Equal(2, loaded.Pets.Len())
	s.Equal("Tom", loaded.Pets.Get(1).Name)
	s.Equal(2, loaded.Pets.Len())

	addr, err := loaded.Address.Get(s.ctx)
	s.Require().NoError(err)
	s.Equal("Main", addr.Street)

	pets.AssertExpectations(s.T())
}

func (s *PersisterTestSuite) TestVeto() {
	i := new(interceptorMock)
	people := New[data.Entry](s.store, s.people.Entity(), s.session, WithInterceptor(i))

	s.Run("insert", func() {
		i.On("BeforeInsert", mock.Anything, mock.Anything).Return(false).Once()
		id, err := people.Persist(s.ctx, &person{Name: "Ann"})
		s.NoError(err)
		s.Nil(id)
		s.Zero(s.store.calls["CreateNewEntry"])
		s.Zero(s.store.calls["StoreEntry"])
	})

	s.Run("update", func() {
		p := &person{Name: "Ann"}
		_, err := s.people.Persist(s.ctx, p)
		s.Require().NoError(err)
		i.On("BeforeUpdate", mock.Anything, mock.Anything).Return(false).Once()
		p.Name = "Bob"
		id, err := people.Persist(s.ctx, p)
		s.NoError(err)
		s.Equal(p.ID, id)
		s.Zero(s.store.calls["UpdateEntry"])
		s.Equal("Ann", s.store.entries["person"][p.ID]["Name"])
	})

	s.Run("delete", func() {
		i.On("BeforeDelete", mock.Anything, mock.Anything).Return(false).Once()
		s.NoError(people.Delete(s.ctx, &person{ID: 1}))
		s.Zero(s.store.calls["DeleteEntry"])
	})

	i.AssertExpectations(s.T())
}

func (s *PersisterTestSuite) TestRequiredAssociation() {
	orders := s.session.persisters[s.mc.Entity(reflect.TypeFor[order]())]
	_, err := orders.Persist(s.ctx, &order{})
	s.ErrorIs(err, domain.ErrDataIntegrity)
	s.Zero(s.store.calls["CreateNewEntry"])

	id, err := orders.Persist(s.ctx, &order{Customer: &person{Name: "Ann"}})
	s.NoError(err)
	s.Equal(int64(1), s.store.entries["order"][id]["Customer"])
}

func (s *PersisterTestSuite) TestOptimisticLocking() {
	p := &person{Name: "Ann"}
	_, err := s.people.Persist(s.ctx, p)
	s.Require().NoError(err)

	s.store.entries["person"][p.ID]["Version"] = int64(5)
	p.Name = "Bob"
	_, err = s.people.Persist(s.ctx, p)
	s.ErrorIs(err, domain.ErrOptimisticLocking)
	s.Equal(0, p.Version)
}

func (s *PersisterTestSuite) TestIndexes() {
	p := &person{Name: "Ann"}
	_, err := s.people.Persist(s.ctx, p)
	s.Require().NoError(err)
	idx := s.store.indexes["person.Name"]
	s.Equal([]any{p.ID}, idx.keys["Ann"])

	p.Name = "Bob"
	_, err = s.people.Persist(s.ctx, p)
	s.Require().NoError(err)
	s.Empty(idx.keys["Ann"])
	s.Equal([]any{p.ID}, idx.keys["Bob"])

	s.NoError(s.people.Delete(s.ctx, p))
	s.Empty(idx.keys["Bob"])
	s.Empty(s.store.entries["person"])

	s.Run("cleared value", func() {
		nick := "Annie"
		p := &person{Name: "Ann", Nick: &nick}
		_, err := s.people.Persist(s.ctx, p)
		s.Require().NoError(err)
		nicks := s.store.indexes["person.Nick"]
		s.Equal([]any{p.ID}, nicks.keys["Annie"])

		p.Nick = nil
		_, err = s.people.Persist(s.ctx, p)
		s.Require().NoError(err)
		s.Empty(nicks.keys["Annie"])
		s.NotContains(s.store.entries["person"][p.ID], "Nick")

		s.NoError(s.people.Delete(s.ctx, p))
		for _, keys := range nicks.keys {
			s.Empty(keys)
		}
	})
}

func (s *PersisterTestSuite) TestRangeQuery() {
	for _, name := range []string{"Ann", "Bob", "Carl", "Dave"} {
		_, err := s.people.Persist(s.ctx, &person{Name: name})
		s.Require().NoError(err)
	}
	s.clear()
	idx := s.store.indexes["person.Name"]

	names := func(res []any) []string {
		var out []string
		for _, obj := range res {
			out = append(out, obj.(*person).Name)
		}
		return out
	}

	res, err := s.people.CreateQuery().Between("Name", "Bob", "Carl").List(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"Bob", "Carl"}, names(res))

	res, err = s.people.CreateQuery().Gt("Name", "Bob").List(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"Carl", "Dave"}, names(res))

	res, err = s.people.CreateQuery().Le("Name", "Bob").List(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"Ann", "Bob"}, names(res))

	s.Equal(3, idx.ranges)
	s.Zero(s.store.calls["ScanKeys"])
}

func (s *PersisterTestSuite) TestEagerHydration() {
	rex, err := s.session.Persist(s.ctx, &pet{Name: "Rex"})
	s.Require().NoError(err)
	tom, err := s.session.Persist(s.ctx, &pet{Name: "Tom"})
	s.Require().NoError(err)

	owners := s.session.persisters[s.mc.Entity(reflect.TypeFor[owner]())]
	id, err := owners.Persist(s.ctx, &owner{
		Name:  "Ann",
		Where: place{City: "Rome", Zip: "00100"},
		Home:  proxy.To(&address{Street: "Main"}),
	})
	s.Require().NoError(err)
	entry := s.store.entries["owner"][id]
	s.Equal("Rome", entry["Where.City"])
	s.Equal("00100", entry["Where.Zip"])

	pets := new(associationIndexerMock)
	friends := new(associationIndexerMock)
	s.store.assoc["Pets"] = pets
	s.store.assoc["Friends"] = friends
	pets.On("Query", mock.Anything, id).Return([]any{rex}, nil).Once()
	pets.On("DoesReturnKeys").Return(true)
	friends.On("Query", mock.Anything, id).Return([]any{tom}, nil).Once()
	friends.On("DoesReturnKeys").Return(true)

	s.clear()
	got, err := owners.Retrieve(s.ctx, id)
	s.Require().NoError(err)
	loaded := got.(*owner)
	pets.AssertExpectations(s.T())
	friends.AssertExpectations(s.T())

	s.Equal(place{City: "Rome", Zip: "00100"}, loaded.Where)

	s.True(loaded.Home.IsResolved())
	addr, err := loaded.Home.Get(s.ctx)
	s.Require().NoError(err)
	s.Equal("Main", addr.Street)

	s.True(loaded.Pets.IsInitialized())
	s.Require().Equal(1, loaded.Pets.Len())
	s.Equal("Rex", loaded.Pets.Get(0).Name)

	s.Require().Len(loaded.Friends, 1)
	s.Equal("Tom", loaded.Friends[0].Name)
	s.Equal(tom, loaded.Friends[0].ID)
}

func (s *PersisterTestSuite) TestSubtypeHydration() {
	animals := s.session.persisters[s.mc.Entity(reflect.TypeFor[animal]())]
	id, err := s.session.Persist(s.ctx, &dog{animal: animal{Name: "Rex"}, Breed: "Lab"})
	s.Require().NoError(err)
	s.Equal("Dog", s.store.entries["animals"][id][mapping.DiscriminatorKey])

	s.clear()
	got, err := animals.Retrieve(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(&dog{animal: animal{ID: id.(int64), Name: "Rex"}, Breed: "Lab"}, got)

	s.Run("parent instance", func() {
		id, err := animals.Persist(s.ctx, &animal{Name: "Tom"})
		s.Require().NoError(err)
		s.clear()
		got, err := animals.Retrieve(s.ctx, id)
		s.Require().NoError(err)
		s.IsType(&animal{}, got)
	})
}

func (s *PersisterTestSuite) TestCascadeRemoveOwningSide() {
	kept, err := s.session.Persist(s.ctx, &book{Title: "kept"})
	s.Require().NoError(err)
	owned, err := s.session.Persist(s.ctx, &book{Title: "owned"})
	s.Require().NoError(err)

	shelves := s.session.persisters[s.mc.Entity(reflect.TypeFor[shelf]())]
	sh := &shelf{
		Kept:  collection.NewList(&book{ID: kept.(int64), Title: "kept"}),
		Owned: collection.NewList(&book{ID: owned.(int64), Title: "owned"}),
	}
	_, err = shelves.Persist(s.ctx, sh)
	s.Require().NoError(err)

	s.NoError(shelves.Delete(s.ctx, sh))
	s.Empty(s.store.entries["shelf"])
	s.Contains(s.store.entries["book"], kept)
	s.NotContains(s.store.entries["book"], owned)
}

func (s *PersisterTestSuite) TestDelete() {
	pets := new(associationIndexerMock)
	s.store.assoc["Pets"] = pets
	p := &person{Name: "Ann"}
	_, err := s.people.Persist(s.ctx, p)
	s.Require().NoError(err)
	s.session.Attach(s.people.Entity(), p.ID, p)

	pets.On("Deindex", mock.Anything, p.ID).Return(nil).Once()
	s.NoError(s.people.Delete(s.ctx, p))
	s.Empty(s.store.entries["person"])
	s.False(s.session.Contains(p))
	pets.AssertExpectations(s.T())

	s.Run("not persisted", func() {
		s.NoError(s.people.Delete(s.ctx, &person{}))
		s.Equal(1, s.store.calls["DeleteEntry"])
	})
}

func (s *PersisterTestSuite) TestRefresh() {
	p := &person{Name: "Ann"}
	_, err := s.people.Persist(s.ctx, p)
	s.Require().NoError(err)
	s.store.entries["person"][p.ID]["Name"] = "Bob"

	s.NoError(s.people.Refresh(s.ctx, p))
	s.Equal("Bob", p.Name)

	s.ErrorIs(s.people.Refresh(s.ctx, &person{ID: 42}), domain.ErrNotPersistent)
}

func (s *PersisterTestSuite) TestQuery() {
	for _, name := range []string{"Ann", "Bob", "Alice"} {
		_, err := s.people.Persist(s.ctx, &person{Name: name})
		s.Require().NoError(err)
	}
	s.clear()

	s.Run("scan", func() {
		res, err := s.people.CreateQuery().Like("Name", "A%").Order(query.Desc("Name")).List(s.ctx)
		s.Require().NoError(err)
		s.Len(res, 2)
		s.Equal("Ann", res[0].(*person).Name)
		s.Equal("Alice", res[1].(*person).Name)
	})

	s.Run("index", func() {
		res, err := s.people.CreateQuery().Eq("Name", "Bob").List(s.ctx)
		s.Require().NoError(err)
		s.Len(res, 1)
		s.Equal(int64(2), res[0].(*person).ID)
	})

	s.Run("projections", func() {
		res, err := s.people.CreateQuery().Project(query.Count()).List(s.ctx)
		s.Require().NoError(err)
		s.Equal([]any{int64(3)}, res)

		res, err = s.people.CreateQuery().Project(query.Property("Name")).Order(query.Asc("Name")).MaxResults(2).List(s.ctx)
		s.Require().NoError(err)
		s.Equal([]any{"Alice", "Ann"}, res)
	})

	s.Run("single result", func() {
		res, err := s.people.CreateQuery().IdEq(int64(3)).SingleResult(s.ctx)
		s.Require().NoError(err)
		s.Equal("Alice", res.(*person).Name)
	})
}

func (s *PersisterTestSuite) TestLockWithoutSupport() {
	p := &person{Name: "Ann"}
	_, err := s.people.Persist(s.ctx, p)
	s.Require().NoError(err)
	got, err := s.people.Lock(s.ctx, p.ID, 0)
	s.NoError(err)
	s.Equal("Ann", got.(*person).Name)
	s.NoError(s.people.Unlock(s.ctx, got))
}

func (s *PersisterTestSuite) TestLock() {
	st := &lockingStore{fakeStore: s.store}
	people := New[data.Entry](st, s.people.Entity(), s.session)

	s.Run("retrieve failure releases lock", func() {
		failure := errors.New("connection reset")
		st.On("LockEntry", int64(7), time.Second).Return(nil).Once()
		st.On("RetrieveEntry", int64(7)).Return(nil, false, failure).Once()
		st.On("UnlockEntry", int64(7)).Return(nil).Once()

		got, err := people.Lock(s.ctx, int64(7), time.Second)
		s.ErrorIs(err, failure)
		s.Nil(got)
		st.AssertExpectations(s.T())
	})

	s.Run("lock failure", func() {
		st.On("LockEntry", int64(8), time.Second).Return(domain.ErrCannotAcquireLock).Once()

		_, err := people.Lock(s.ctx, int64(8), time.Second)
		s.ErrorIs(err, domain.ErrCannotAcquireLock)
		st.AssertNotCalled(s.T(), "RetrieveEntry", int64(8))
		st.AssertNotCalled(s.T(), "UnlockEntry", int64(8))
	})

	s.Run("held", func() {
		st.On("LockEntry", int64(9), time.Second).Return(nil).Once()
		st.On("RetrieveEntry", int64(9)).Return(data.Entry{"Name": "Ann"}, true, nil).Once()

		got, err := people.Lock(s.ctx, int64(9), time.Second)
		s.Require().NoError(err)
		s.Equal("Ann", got.(*person).Name)
		st.AssertNotCalled(s.T(), "UnlockEntry", int64(9))
	})
}

func (s *PersisterTestSuite) TestNotPersistent() {
	_, err := s.people.Persist(s.ctx, &pet{})
	s.ErrorIs(err, domain.ErrNotPersistent)
	_, err = s.people.Persist(s.ctx, "nope")
	s.True(errors.Is(err, domain.ErrNotPersistent))
}

func TestPersisterTestSuite(t *testing.T) {
	suite.Run(t, new(PersisterTestSuite))
}
