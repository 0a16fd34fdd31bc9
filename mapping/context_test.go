package mapping

import (
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type ref[T any] struct{ v T }

func (r *ref[T]) ReferencedType() reflect.Type { return reflect.TypeFor[T]() }

type list[T any] struct{ items []T }

func (l *list[T]) ElementType() reflect.Type      { return reflect.TypeFor[T]() }
func (l *list[T]) CollectionKind() CollectionKind { return CollectionList }

type money struct{ cents int64 }

func (m money) MarshalNative() (any, error) { return m.cents, nil }

func (m *money) UnmarshalNative(v any) error {
	m.cents = v.(int64)
	return nil
}

type address struct {
	ID     int64
	Street string `gedm:"street,index"`
}

type pet struct {
	ID    int64
	Name  string
	Owner *person `gedm:",belongsTo"`
}

type person struct {
	Key      string `gedm:"key,id"`
	Name     string `gedm:"name,index"`
	Born     time.Time
	Tags     []string
	Balance  money
	Address  ref[*address]   `gedm:"address_id,lazy"`
	Pets     *list[*pet]     `gedm:",lazy"`
	Location coordinates     `gedm:",embedded"`
	Tenant   string          `gedm:",tenant"`
	Version  int64           `gedm:",version"`
	Friends  []*ref[*person] `gedm:",mappedBy=Friends"`
	ignored  bool
	Skipped  string `gedm:"-"`
}

type coordinates struct {
	Lat, Lng float64
}

type ContextTestSuite struct {
	suite.Suite
	c *Context
}

func (s *ContextTestSuite) SetupTest() {
	s.c = NewContext()
}

func (s *ContextTestSuite) register(samples ...any) {
	for _, sample := range samples {
		_, err := s.c.Register(sample)
		s.Require().NoError(err)
	}
	s.Require().NoError(s.c.Initialize())
}

func (s *ContextTestSuite) TestPropertyKinds() {
	s.register(address{}, &pet{}, person{})

	e := s.c.EntityFor(&person{})
	s.Require().NotNil(e)
	s.Equal("Key", e.Identity().Name())
	s.Equal("key", e.Identity().Key())
	s.Equal("person", e.Family())

	kinds := map[string]string{}
	for _, p := range e.Properties() {
		kinds[p.Name()] = reflect.TypeOf(p).Elem().Name()
	}
	s.Equal(map[string]string{
		"Name":     "Simple",
		"Born":     "Simple",
		"Tags":     "Basic",
		"Balance":  "Custom",
		"Address":  "ToOne",
		"Pets":     "OneToMany",
		"Location": "Embedded",
		"Tenant":   "TenantID",
		"Version":  "Simple",
		"Friends":  "OneToMany",
	}, kinds)

	s.Equal("name", e.Property("Name").Key())
	s.True(e.Property("Name").Mapping().Index)
	s.Equal("address_id", e.Property("Address").Key())
	s.True(e.IsVersioned())
	s.Equal("Version", e.Version().Name())

	addr := e.Property("Address").(*ToOne)
	s.True(addr.IsReference())
	s.True(addr.IsLazy())
	s.Equal(s.c.EntityFor(address{}), addr.AssociatedEntity())

	pets := e.Property("Pets").(*OneToMany)
	s.Equal(CollectionList, pets.CollectionKind())
	s.True(pets.IsLazy())
	s.False(pets.ProxyEntities())

	friends := e.Property("Friends").(*OneToMany)
	s.Equal(CollectionSlice, friends.CollectionKind())
	s.True(friends.ProxyEntities())
	s.False(friends.IsLazy())
}

func (s *ContextTestSuite) TestUnknownIdentifier() {
	type noID struct{ Name string }
	_, err := s.c.Register(noID{})
	s.ErrorIs(err, ErrUnknownIdentifier)
}

func (s *ContextTestSuite) TestNotStruct() {
	_, err := s.c.Register(12)
	s.ErrorIs(err, ErrNotStruct)
}

func (s *ContextTestSuite) TestRegisterAfterInitialize() {
	s.register(address{})
	_, err := s.c.Register(pet{})
	s.ErrorIs(err, ErrAlreadyInitialized)
}

func (s *ContextTestSuite) TestUnmappedTarget() {
	_, err := s.c.Register(pet{})
	s.Require().NoError(err)
	s.ErrorIs(s.c.Initialize(), ErrIllegalMapping)
}

func (s *ContextTestSuite) TestInverseNotAssociation() {
	type child struct {
		ID   int64
		Name string
	}
	type parent struct {
		ID       int64
		Children []*child `gedm:",mappedBy=Name"`
	}
	_, err := s.c.Register(child{})
	s.Require().NoError(err)
	_, err = s.c.Register(parent{})
	s.Require().NoError(err)
	s.ErrorIs(s.c.Initialize(), ErrIllegalMapping)
}

func (s *ContextTestSuite) TestInverseInferred() {
	s.register(address{}, pet{}, person{})

	e := s.c.EntityFor(person{})
	pets := e.Property("Pets").(*OneToMany)
	owner := s.c.EntityFor(pet{}).Property("Owner").(*ToOne)

	s.True(pets.IsBidirectional())
	s.Equal("Owner", pets.ReferencedPropertyName())
	s.True(pets.IsOwningSide())
	s.True(owner.IsManyToOne())
	s.False(owner.IsOwningSide())
}

func (s *ContextTestSuite) TestHierarchy() {
	type animal struct {
		ID   int64
		Name string
	}
	type dog struct {
		animal
		Breed string
	}
	_, err := s.c.Register(animal{}, WithFamily("animals"))
	s.Require().NoError(err)
	_, err = s.c.Register(dog{}, WithParent(animal{}), WithDiscriminator("Dog"))
	s.Require().NoError(err)
	s.Require().NoError(s.c.Initialize())

	a, d := s.c.EntityFor(animal{}), s.c.EntityFor(dog{})
	s.Equal(a, d.Parent())
	s.Equal(a, d.Root())
	s.True(a.IsRoot())
	s.Equal("animals", d.Family())
	s.Equal("ID", d.Identity().Name())
	s.Equal([]int{0, 0}, d.Identity().FieldIndex())
	s.Equal(d, a.Descendant("Dog"))
	s.True(a.HasDiscriminator())
	s.Equal("animal", a.Discriminator())
}

func (s *ContextTestSuite) TestPropertyOverride() {
	_, err := s.c.Register(address{}, WithProperty("Street", PropertyMapping{Key: "st"}))
	s.Require().NoError(err)
	p := s.c.EntityFor(address{}).Property("Street")
	s.Equal("st", p.Key())
	s.False(p.Mapping().Index)
}

func (s *ContextTestSuite) TestIllegalVersion() {
	type versioned struct {
		ID      int64
		Version string `gedm:",version"`
	}
	_, err := s.c.Register(versioned{})
	s.ErrorIs(err, ErrIllegalMapping)
}

func (s *ContextTestSuite) TestUnsupportedField() {
	type withChan struct {
		ID int64
		C  chan int
	}
	_, err := s.c.Register(withChan{})
	var typErr ErrPropertyType
	s.ErrorAs(err, &typErr)
	s.Equal("C", typErr.Field)
}

func TestContextTestSuite(t *testing.T) {
	suite.Run(t, new(ContextTestSuite))
}

type CascadeTestSuite struct {
	suite.Suite
}

func (s *CascadeTestSuite) association(m PropertyMapping, toOne, owning, manyToOne, bidirectional bool) *Association {
	owner := &Entity{name: "owner"}
	a := newAssociation(property{name: "assoc", owner: owner, mapping: m}, nil, toOne, NewContext().logger)
	a.owning = owning
	a.manyToOne = manyToOne
	if bidirectional {
		a.inverse = &Simple{}
	}
	a.init()
	return &a
}

func (s *CascadeTestSuite) TestDefaultPrecedence() {
	testCases := []struct {
		name      string
		owning    bool
		toOne     bool
		manyToOne bool
		bidi      bool
		expected  []CascadeType
	}{
		{name: "owning side", owning: true, expected: []CascadeType{CascadeAll}},
		{name: "unowned bidirectional many-to-one", toOne: true, manyToOne: true, bidi: true, expected: nil},
		{name: "anything else", toOne: true, expected: []CascadeType{CascadePersist}},
	}
	for _, tc := range testCases {
		s.Run(tc.name, func() {
			a := s.association(PropertyMapping{}, tc.toOne, tc.owning, tc.manyToOne, tc.bidi)
			s.Equal(tc.expected, a.CascadeOperations())
		})
	}
}

func (s *CascadeTestSuite) TestExplicitString() {
	a := s.association(PropertyMapping{
		Cascade:     "save-update, delete ,bogus",
		CascadeList: []CascadeType{CascadeRefresh},
	}, false, true, false, false)
	s.Equal([]CascadeType{CascadePersist, CascadeRemove}, a.CascadeOperations())
	s.True(a.DoesCascade(CascadeRemove))
	s.False(a.DoesCascade(CascadeRefresh))
	s.False(a.IsOrphanRemoval())

	a = s.association(PropertyMapping{Cascade: "all-delete-orphan"}, false, false, false, false)
	s.True(a.DoesCascade(CascadeMerge))
	s.True(a.IsOrphanRemoval())
}

func (s *CascadeTestSuite) TestExplicitList() {
	a := s.association(PropertyMapping{CascadeList: []CascadeType{CascadeRefresh, CascadeMerge}}, false, true, false, false)
	s.Equal([]CascadeType{CascadeMerge, CascadeRefresh}, a.CascadeOperations())
	s.False(a.DoesCascade(CascadePersist))
}

func (s *CascadeTestSuite) TestConcurrentResolution() {
	a := s.association(PropertyMapping{}, true, false, false, false)

	const n = 64
	results := make([][]CascadeType, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_ = a.DoesCascade(CascadePersist)
			results[i] = a.CascadeOperations()
		}()
	}
	close(start)
	wg.Wait()

	for _, r := range results {
		s.Equal([]CascadeType{CascadePersist}, r)
	}
}

type dirtyObj struct{ changed bool }

func (d dirtyObj) HasChanged() bool { return d.changed }

func (s *CascadeTestSuite) TestCascadeValidate() {
	owned := s.association(PropertyMapping{CascadeValidate: "owned"}, false, true, false, false)
	s.True(owned.DoesCascadeValidate(nil))
	notOwned := s.association(PropertyMapping{CascadeValidate: "owned", Cascade: "all"}, false, false, false, false)
	s.False(notOwned.DoesCascadeValidate(nil))

	none := s.association(PropertyMapping{CascadeValidate: "none"}, false, true, false, false)
	s.False(none.DoesCascadeValidate(nil))

	dirty := s.association(PropertyMapping{CascadeValidate: "dirty"}, false, true, false, false)
	s.True(dirty.DoesCascadeValidate(dirtyObj{changed: true}))
	s.False(dirty.DoesCascadeValidate(dirtyObj{changed: false}))
	s.True(dirty.DoesCascadeValidate(struct{}{}))

	def := s.association(PropertyMapping{}, true, false, true, true)
	s.False(def.DoesCascadeValidate(nil))
	def = s.association(PropertyMapping{Cascade: "merge"}, true, false, true, true)
	s.True(def.DoesCascadeValidate(nil))
}

func TestCascadeTestSuite(t *testing.T) {
	suite.Run(t, new(CascadeTestSuite))
}
