package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/entityaccess"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/proxy"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/mapping"
)

type owner struct {
	ID   int64
	Name string
}

type pet struct {
	ID     int64
	Name   string
	Age    int
	Tags   []string
	Owner  *owner
	Keeper proxy.Ref[*owner]
}

type executorMock struct{ mock.Mock }

func (e *executorMock) ExecuteQuery(ctx context.Context, q *Query) ([]any, error) {
	call := e.Called(ctx, q)
	res, _ := call.Get(0).([]any)
	return res, call.Error(1)
}

type sessionMock struct {
	mock.Mock
	domain.Session
}

func (s *sessionMock) FlushMode() domain.FlushMode {
	return s.Called().Get(0).(domain.FlushMode)
}

func (s *sessionMock) Flush(ctx context.Context) error {
	return s.Called(ctx).Error(0)
}

type QueryTestSuite struct {
	suite.Suite
	ctx    context.Context
	mc     *mapping.Context
	pets   *mapping.Entity
	owners *mapping.Entity
}

func (s *QueryTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.mc = mapping.NewContext()
	var err error
	s.owners, err = s.mc.Register(owner{})
	s.Require().NoError(err)
	s.pets, err = s.mc.Register(pet{})
	s.Require().NoError(err)
	s.Require().NoError(s.mc.Initialize())
}

func (s *QueryTestSuite) target(p *pet) Target {
	access, err := entityaccess.NewEntityAccess(s.pets, p)
	s.Require().NoError(err)
	return ObjectTarget(access, nil)
}

func (s *QueryTestSuite) TestEqualsRewritesEntities() {
	o := &owner{ID: 7}
	q := New(s.pets, nil)

	q.Eq("Owner", o)
	s.Run("managed entity", func() {
		eq := q.Criteria().Criteria()[0].(*Equals)
		s.Equal(int64(7), eq.Value)
	})

	s.Run("lazy references", func() {
		var unresolved proxy.Ref[*owner]
		unresolved.Bind(int64(9), nil)
		q.Eq("Keeper", &unresolved).Eq("Keeper", proxy.To(o))
		crit := q.Criteria().Criteria()
		s.Equal(int64(9), crit[1].(*Equals).Value)
		s.Equal(int64(7), crit[2].(*Equals).Value)
	})

	s.Run("nested junctions", func() {
		q.Disjunction().Add(Eq("Owner", o), Ne("Owner", o))
		free := And(Eq("Owner", o))
		q.Add(Not(free))
		crit := q.Criteria().Criteria()
		or := crit[3].(*Disjunction).Criteria()
		s.Equal(int64(7), or[0].(*Equals).Value)
		s.Equal(int64(7), or[1].(*NotEquals).Value)
		s.Equal(int64(7), free.Criteria()[0].(*Equals).Value)
	})

	s.Run("plain values", func() {
		q.Eq("Name", "rex").IdEq(o)
		crit := q.Criteria().Criteria()
		s.Equal("rex", crit[5].(*Equals).Value)
		s.Equal(int64(7), crit[6].(*IdEquals).Value)
	})
}

func (s *QueryTestSuite) TestMatch() {
	m := NewMatcher()
	var keeper proxy.Ref[*owner]
	keeper.Bind(int64(3), nil)
	p := &pet{ID: 1, Name: "Rex", Age: 4, Tags: []string{"dog", "big"}, Owner: &owner{ID: 2}, Keeper: keeper}
	t := s.target(p)

	cases := []struct {
		name string
		crit Criterion
		want bool
	}{
		{"eq", Eq("Name", "Rex"), true},
		{"eq number", Eq("Age", 4.0), true},
		{"eq association", Eq("Owner", int64(2)), true},
		{"eq lazy association", Eq("Keeper", int64(3)), true},
		{"eq list element", Eq("Tags", "big"), true},
		{"ne", Ne("Name", "Rex"), false},
		{"id", IdEq(1), true},
		{"gt", Gt("Age", 3), true},
		{"ge", Ge("Age", 4), true},
		{"lt", Lt("Age", 4), false},
		{"le", Le("Age", 4), true},
		{"incomparable", Gt("Name", 3), false},
		{"between", Range("Age", 1, 4), true},
		{"in", OneOf("Name", "Max", "Rex"), true},
		{"null", Null("Name"), false},
		{"not null", NotNull("Owner"), true},
		{"like", Matches("Name", "R_%"), true},
		{"like is case sensitive", Matches("Name", "r%"), false},
		{"ilike", IMatches("Name", "r%"), true},
		{"like quotes meta", Matches("Name", "R.x"), false},
		{"rlike", RMatches("Name", "^R[a-z]+$"), true},
		{"or", Or(Eq("Name", "Max"), Eq("Age", 4)), true},
		{"empty or", Or(), false},
		{"and", And(Eq("Name", "Rex"), Eq("Age", 5)), false},
		{"not", Not(Eq("Name", "Max")), true},
	}
	for _, c := range cases {
		s.Run(c.name, func() {
			ok, err := m.Match(c.crit, t)
			s.NoError(err)
			s.Equal(c.want, ok)
		})
	}

	s.Run("invalid regexp", func() {
		_, err := m.Match(RMatches("Name", "("), t)
		s.Error(err)
	})
}

func (s *QueryTestSuite) TestEntryTarget() {
	m := NewMatcher()
	t := EntryTarget(s.pets, int64(1), data.Entry{"Name": "Rex", "Age": int64(4)})
	ok, err := m.Match(And(IdEq(1), Eq("Name", "Rex"), Ge("Age", 4)), t)
	s.NoError(err)
	s.True(ok)
	s.Equal("Owner", NativeKey(s.pets, "Owner"))
	s.Equal("unknown", NativeKey(s.pets, "unknown"))
}

func (s *QueryTestSuite) TestReduce() {
	r := NewReducer()
	pets := []*pet{
		{ID: 1, Name: "b", Age: 3},
		{ID: 2, Name: "a", Age: 5},
		{ID: 3, Name: "c", Age: 3},
	}
	targets := make([]Target, len(pets))
	for i, p := range pets {
		targets[i] = s.target(p)
	}
	id := func(t Target) Target { return t }

	s.Run("sort", func() {
		sorted := append([]Target(nil), targets...)
		s.NoError(Sort(r, sorted, id, []Order{Asc("Age"), Desc("Name")}))
		ids := make([]any, len(sorted))
		for i, t := range sorted {
			ids[i] = t.Identifier()
		}
		s.Equal([]any{int64(3), int64(1), int64(2)}, ids)
	})

	s.Run("page", func() {
		s.Equal([]int{2, 3}, Page([]int{1, 2, 3, 4}, 1, 2))
		s.Equal([]int{3, 4}, Page([]int{1, 2, 3, 4}, 2, -1))
		s.Empty(Page([]int{1, 2}, 5, 1))
	})

	s.Run("rows", func() {
		res, err := r.Reduce(targets, []Projection{Id()})
		s.NoError(err)
		s.Equal([]any{int64(1), int64(2), int64(3)}, res)

		res, err = r.Reduce(targets, []Projection{Distinct("Age")})
		s.NoError(err)
		s.Equal([]any{int64(3), int64(5)}, res)

		res, err = r.Reduce(targets, []Projection{Property("Name"), Property("Age")})
		s.NoError(err)
		s.Equal([]any{"b", int64(3)}, res[0])
	})

	s.Run("aggregates", func() {
		res, err := r.Reduce(targets, []Projection{
			Count(), CountDistinct("Age"), Sum("Age"), Min("Name"), Max("Age"), Avg("Age"),
		})
		s.NoError(err)
		s.Equal([]any{[]any{int64(3), int64(2), int64(11), "a", int64(5), 11.0 / 3}}, res)

		res, err = r.Reduce(nil, []Projection{Avg("Age")})
		s.NoError(err)
		s.Equal([]any{nil}, res)
	})
}

func (s *QueryTestSuite) TestList() {
	exec := new(executorMock)
	sess := new(sessionMock)
	q := New(s.pets, exec, WithSession(sess)).Eq("Name", "Rex").MaxResults(10)

	s.Run("flushes on auto", func() {
		sess.On("FlushMode").Return(domain.FlushAuto).Once()
		sess.On("Flush", s.ctx).Return(nil).Once()
		exec.On("ExecuteQuery", s.ctx, q).Return([]any{"a", "b"}, nil).Once()
		res, err := q.List(s.ctx)
		s.NoError(err)
		s.Len(res, 2)
	})

	s.Run("flush error", func() {
		sess.On("FlushMode").Return(domain.FlushAuto).Once()
		sess.On("Flush", s.ctx).Return(errors.New("boom")).Once()
		_, err := q.List(s.ctx)
		s.Error(err)
	})

	s.Run("single result on commit mode", func() {
		sess.On("FlushMode").Return(domain.FlushCommit).Once()
		exec.On("ExecuteQuery", s.ctx, q).Run(func(args mock.Arguments) {
			s.Equal(1, args.Get(1).(*Query).Max())
		}).Return([]any{"a"}, nil).Once()
		res, err := q.SingleResult(s.ctx)
		s.NoError(err)
		s.Equal("a", res)
		s.Equal(10, q.Max())
	})

	sess.AssertExpectations(s.T())
	exec.AssertExpectations(s.T())
}

func TestQueryTestSuite(t *testing.T) {
	suite.Run(t, new(QueryTestSuite))
}
