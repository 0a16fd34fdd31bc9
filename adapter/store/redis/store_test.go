package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/mapping"
)

type CodecTestSuite struct {
	suite.Suite
}

func (s *CodecTestSuite) TestEntryRoundTrip() {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	fields, err := encodeEntry(data.Entry{
		"Title":   "Dune",
		"Pages":   int64(412),
		"Printed": now,
		"Tags":    []any{"scifi", data.Entry{"Lang": "en"}},
		"Missing": nil,
	})
	s.Require().NoError(err)
	s.NotContains(fields, "Missing")

	raw := make(map[string]string, len(fields))
	for k, v := range fields {
		raw[k] = v.(string)
	}
	e, err := decodeEntry(raw)
	s.Require().NoError(err)
	s.Equal("Dune", e.Get("Title"))
	s.Equal(int64(412), e.Get("Pages"))
	s.True(now.Equal(e.Get("Printed").(time.Time)))
	s.Equal([]any{"scifi", data.Entry{"Lang": "en"}}, e.Get("Tags"))
}

func (s *CodecTestSuite) TestKeysEncodeNatively() {
	a, err := encode(int32(7))
	s.Require().NoError(err)
	b, err := encode(int64(7))
	s.Require().NoError(err)
	s.Equal(a, b)

	keys, err := decodeAll([]string{a})
	s.NoError(err)
	s.Equal([]any{int64(7)}, keys)

	_, err = decode("\xc1")
	s.Error(err)
}

func (s *CodecTestSuite) TestBounds() {
	b, ok := bound(nil, false, "-inf")
	s.True(ok)
	s.Equal("-inf", b)

	b, ok = bound(int64(10), true, "-inf")
	s.True(ok)
	s.Equal("10", b)

	b, ok = bound(2.5, false, "+inf")
	s.True(ok)
	s.Equal("(2.5", b)

	t := time.UnixMilli(1714557600000)
	b, ok = bound(t, true, "+inf")
	s.True(ok)
	s.Equal("1714557600000", b)

	_, ok = bound("abc", true, "+inf")
	s.False(ok)
}

func TestCodecTestSuite(t *testing.T) {
	suite.Run(t, new(CodecTestSuite))
}

type book struct {
	ID      int64
	Title   string `gedm:",index"`
	Pages   int    `gedm:",index"`
	Version int64  `gedm:",version"`
}

type shelf struct {
	ID    int64
	Books []*book
}

// RedisTestSuite runs against the server at GEDM_REDIS_ADDR.
type RedisTestSuite struct {
	suite.Suite
	ctx     context.Context
	client  redis.UniversalClient
	store   *Store
	books   *mapping.Entity
	shelves *mapping.Entity
}

func (s *RedisTestSuite) SetupSuite() {
	addr := os.Getenv("GEDM_REDIS_ADDR")
	if addr == "" {
		s.T().Skip("GEDM_REDIS_ADDR not set")
	}
	s.client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	mc := mapping.NewContext()
	var err error
	s.books, err = mc.Register(book{})
	s.Require().NoError(err)
	s.shelves, err = mc.Register(shelf{})
	s.Require().NoError(err)
	s.Require().NoError(mc.Initialize())
}

func (s *RedisTestSuite) TearDownSuite() {
	if s.client != nil {
		s.client.Close()
	}
}

func (s *RedisTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewStore(s.client, WithPrefix("gedm-test-"+uuid.NewString()))
}

func (s *RedisTestSuite) TearDownTest() {
	iter := s.client.Scan(s.ctx, 0, s.store.prefix+":*", 100).Iterator()
	var keys []string
	for iter.Next(s.ctx) {
		keys = append(keys, iter.Val())
	}
	if len(keys) > 0 {
		s.client.Del(s.ctx, keys...)
	}
}

func (s *RedisTestSuite) TestStoreAndRetrieve() {
	key, err := s.store.StoreEntry(s.ctx, s.books, nil, nil, data.Entry{"Title": "Dune"})
	s.NoError(err)
	s.Equal(int64(1), key)

	_, err = s.store.StoreEntry(s.ctx, s.books, nil, int64(1), data.Entry{})
	s.ErrorIs(err, domain.ErrDataIntegrity)

	e, found, err := s.store.RetrieveEntry(s.ctx, s.books, "book", int64(1))
	s.NoError(err)
	s.True(found)
	s.Equal("Dune", e.Get("Title"))

	entries, present, err := s.store.RetrieveEntries(s.ctx, s.books, "book", []any{int64(1), int64(9)})
	s.NoError(err)
	s.Equal([]bool{true, false}, present)
	s.Equal("Dune", entries[0].Get("Title"))

	keys, err := s.store.ScanKeys(s.ctx, s.books, "book")
	s.NoError(err)
	s.Equal([]any{int64(1)}, keys)

	s.NoError(s.store.DeleteEntry(s.ctx, "book", int64(1)))
	_, found, err = s.store.RetrieveEntry(s.ctx, s.books, "book", int64(1))
	s.NoError(err)
	s.False(found)
}

func (s *RedisTestSuite) TestUpdateVersions() {
	key, err := s.store.StoreEntry(s.ctx, s.books, nil, nil, data.Entry{"Version": int64(0)})
	s.Require().NoError(err)

	s.NoError(s.store.UpdateEntry(s.ctx, s.books, nil, key, data.Entry{"Version": int64(1)}))
	err = s.store.UpdateEntry(s.ctx, s.books, nil, key, data.Entry{"Version": int64(1)})
	s.ErrorIs(err, domain.ErrOptimisticLocking)
}

func (s *RedisTestSuite) TestPropertyIndex() {
	idx := s.store.PropertyIndexer(s.books.Property("Pages"))
	s.Require().NotNil(idx)
	for key, pages := range map[int64]int64{1: 100, 2: 250, 3: 250, 4: 400} {
		s.NoError(idx.Index(s.ctx, pages, key))
	}
	keys, err := idx.Query(s.ctx, int64(250))
	s.NoError(err)
	s.ElementsMatch([]any{int64(2), int64(3)}, keys)

	ranger := idx.(domain.RangeIndexer)
	keys, err = ranger.QueryRange(s.ctx, int64(100), int64(250), false, true)
	s.NoError(err)
	s.ElementsMatch([]any{int64(2), int64(3)}, keys)

	s.NoError(idx.Deindex(s.ctx, int64(250), int64(2)))
	keys, err = ranger.QueryRange(s.ctx, int64(100), int64(250), false, true)
	s.NoError(err)
	s.ElementsMatch([]any{int64(3)}, keys)

	_, err = ranger.QueryRange(s.ctx, "a", nil, true, false)
	s.ErrorIs(err, domain.ErrUnsupportedQuery)
}

func (s *RedisTestSuite) TestAssociationIndex() {
	idx := s.store.AssociationIndexer(nil, s.shelves.Property("Books").(*mapping.OneToMany))
	s.NoError(idx.Index(s.ctx, int64(1), []any{int64(3), int64(4)}))
	s.NoError(idx.IndexOne(s.ctx, int64(1), int64(4)))
	s.NoError(idx.IndexOne(s.ctx, int64(1), int64(5)))

	keys, err := idx.Query(s.ctx, int64(1))
	s.NoError(err)
	s.Equal([]any{int64(3), int64(4), int64(5)}, keys)

	s.NoError(idx.Deindex(s.ctx, int64(1)))
	keys, err = idx.Query(s.ctx, int64(1))
	s.NoError(err)
	s.Empty(keys)
}

func (s *RedisTestSuite) TestLocks() {
	s.NoError(s.store.LockEntry(s.ctx, s.books, int64(1), time.Second))
	err := s.store.LockEntry(s.ctx, s.books, int64(1), 20*time.Millisecond)
	s.ErrorIs(err, domain.ErrCannotAcquireLock)

	s.NoError(s.store.UnlockEntry(s.ctx, s.books, int64(1)))
	s.ErrorIs(s.store.UnlockEntry(s.ctx, s.books, int64(1)), ErrNotLocked)
}

func TestRedisTestSuite(t *testing.T) {
	suite.Run(t, new(RedisTestSuite))
}
