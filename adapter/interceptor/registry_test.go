package interceptor

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/mapping"
)

type account struct {
	ID     int64
	Closed bool
}

func (a *account) BeforeDelete(context.Context) bool { return a.Closed }

type invoice struct {
	ID int64
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

type accessMock struct {
	domain.EntityAccess
	obj    any
	entity *mapping.Entity
}

func (a accessMock) Object() any             { return a.obj }
func (a accessMock) Entity() *mapping.Entity { return a.entity }

type RegistryTestSuite struct {
	suite.Suite
	ctx      context.Context
	mc       *mapping.Context
	accounts *mapping.Entity
	invoices *mapping.Entity
}

func (s *RegistryTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.mc = mapping.NewContext()
	var err error
	s.accounts, err = s.mc.Register(account{})
	s.Require().NoError(err)
	s.invoices, err = s.mc.Register(invoice{})
	s.Require().NoError(err)
	s.Require().NoError(s.mc.Initialize())
}

func (s *RegistryTestSuite) TestTypedInterceptor() {
	r := NewRegistry()
	m := new(interceptorMock)
	s.NoError(r.Register(m, invoice{}))

	inv := accessMock{obj: &invoice{}, entity: s.invoices}
	m.On("BeforeInsert", s.ctx, inv).Return(false).Once()
	s.False(r.BeforeInsert(s.ctx, inv))

	acc := accessMock{obj: &account{}, entity: s.accounts}
	s.True(r.BeforeInsert(s.ctx, acc))
	m.AssertNumberOfCalls(s.T(), "BeforeInsert", 1)
}

func (s *RegistryTestSuite) TestOrderAndShortCircuit() {
	r := NewRegistry()
	global := new(interceptorMock)
	typed := new(interceptorMock)
	s.NoError(r.Register(typed, reflect.TypeFor[invoice]()))
	s.NoError(r.Register(global))

	s.Equal([]domain.EntityInterceptor{global, typed}, r.For(&invoice{}))

	inv := accessMock{obj: &invoice{}, entity: s.invoices}
	global.On("BeforeUpdate", s.ctx, inv).Return(false).Once()
	s.False(r.BeforeUpdate(s.ctx, inv))
	typed.AssertNotCalled(s.T(), "BeforeUpdate", mock.Anything, mock.Anything)

	global.On("BeforeDelete", s.ctx, inv).Return(true).Once()
	typed.On("BeforeDelete", s.ctx, inv).Return(true).Once()
	s.True(r.BeforeDelete(s.ctx, inv))
}

func (s *RegistryTestSuite) TestSelfHooks() {
	r := NewRegistry()
	s.NoError(r.RegisterEntity(s.accounts))
	s.NoError(r.RegisterEntity(s.invoices))
	s.Empty(r.For(&invoice{}))

	open := accessMock{obj: &account{}, entity: s.accounts}
	closed := accessMock{obj: &account{Closed: true}, entity: s.accounts}
	s.False(r.BeforeDelete(s.ctx, open))
	s.True(r.BeforeDelete(s.ctx, closed))
	s.True(r.BeforeInsert(s.ctx, open))
	s.True(r.BeforeUpdate(s.ctx, open))
}

func (s *RegistryTestSuite) TestSealed() {
	r := NewRegistry()
	r.Seal()
	s.ErrorIs(r.Register(new(interceptorMock)), ErrSealed)
}

func TestRegistryTestSuite(t *testing.T) {
	suite.Run(t, new(RegistryTestSuite))
}
