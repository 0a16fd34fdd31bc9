package memory

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/storage"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/mapping"
)

type book struct {
	ID      int64
	Title   string `gedm:",index"`
	Pages   int    `gedm:",index"`
	Version int64  `gedm:",version"`
}

type tag struct {
	Code string `gedm:",id"`
}

type MemoryTestSuite struct {
	suite.Suite
	ctx   context.Context
	store *Store
	books *mapping.Entity
	tags  *mapping.Entity
}

func (s *MemoryTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewStore()
	mc := mapping.NewContext()
	var err error
	s.books, err = mc.Register(book{})
	s.Require().NoError(err)
	s.tags, err = mc.Register(tag{})
	s.Require().NoError(err)
	s.Require().NoError(mc.Initialize())
}

func (s *MemoryTestSuite) TestStoreAndRetrieve() {
	key, err := s.store.StoreEntry(s.ctx, s.books, nil, nil, data.Entry{"Title": "Dune"})
	s.NoError(err)
	s.Equal(int64(1), key)

	key, err = s.store.StoreEntry(s.ctx, s.books, nil, nil, data.Entry{"Title": "Emma"})
	s.NoError(err)
	s.Equal(int64(2), key)

	e, found, err := s.store.RetrieveEntry(s.ctx, s.books, "book", int64(1))
	s.NoError(err)
	s.True(found)
	s.Equal("Dune", e.Get("Title"))

	e.Set("Title", "changed")
	e, _, _ = s.store.RetrieveEntry(s.ctx, s.books, "book", int64(1))
	s.Equal("Dune", e.Get("Title"))

	_, found, err = s.store.RetrieveEntry(s.ctx, s.books, "book", int64(3))
	s.NoError(err)
	s.False(found)

	entries, present, err := s.store.RetrieveEntries(s.ctx, s.books, "book", []any{int64(2), int64(9)})
	s.NoError(err)
	s.Equal([]bool{true, false}, present)
	s.Equal("Emma", entries[0].Get("Title"))
	s.Nil(entries[1])
}

func (s *MemoryTestSuite) TestExplicitKeys() {
	_, err := s.store.StoreEntry(s.ctx, s.books, nil, int64(10), data.Entry{})
	s.NoError(err)

	_, err = s.store.StoreEntry(s.ctx, s.books, nil, int64(10), data.Entry{})
	s.ErrorIs(err, domain.ErrDataIntegrity)

	key, err := s.store.StoreEntry(s.ctx, s.books, nil, nil, data.Entry{})
	s.NoError(err)
	s.Equal(int64(11), key)
}

func (s *MemoryTestSuite) TestGenerateIdentifier() {
	id, err := s.store.GenerateIdentifier(s.ctx, s.books, nil)
	s.NoError(err)
	s.Nil(id)

	id, err = s.store.GenerateIdentifier(s.ctx, s.tags, nil)
	s.NoError(err)
	s.IsType("", id)
	s.Len(id, 36)
}

func (s *MemoryTestSuite) TestUpdateVersions() {
	key, err := s.store.StoreEntry(s.ctx, s.books, nil, nil, data.Entry{"Version": int64(0)})
	s.Require().NoError(err)

	s.NoError(s.store.UpdateEntry(s.ctx, s.books, nil, key, data.Entry{"Version": int64(1)}))
	err = s.store.UpdateEntry(s.ctx, s.books, nil, key, data.Entry{"Version": int64(1)})
	s.ErrorIs(err, domain.ErrOptimisticLocking)
	s.NoError(s.store.UpdateEntry(s.ctx, s.books, nil, key, data.Entry{"Version": uint64(2)}))

	s.NoError(s.store.UpdateEntry(s.ctx, s.books, nil, int64(40), data.Entry{"Version": int64(0)}))
	key, err = s.store.StoreEntry(s.ctx, s.books, nil, nil, data.Entry{})
	s.NoError(err)
	s.Equal(int64(41), key)
}

func (s *MemoryTestSuite) TestDelete() {
	for range 3 {
		_, err := s.store.StoreEntry(s.ctx, s.books, nil, nil, data.Entry{})
		s.Require().NoError(err)
	}
	s.NoError(s.store.DeleteEntry(s.ctx, "book", int64(1)))
	s.NoError(s.store.DeleteEntries(s.ctx, "book", []any{int64(2), int64(7)}))

	keys, err := s.store.ScanKeys(s.ctx, s.books, "book")
	s.NoError(err)
	s.Equal([]any{int64(3)}, keys)
	s.Equal([]string{"book"}, s.store.Families())
}

func (s *MemoryTestSuite) TestScanKeysSorted() {
	for _, k := range []int64{5, 1, 3} {
		_, err := s.store.StoreEntry(s.ctx, s.books, nil, k, data.Entry{})
		s.Require().NoError(err)
	}
	keys, err := s.store.ScanKeys(s.ctx, s.books, "book")
	s.NoError(err)
	s.Equal([]any{int64(1), int64(3), int64(5)}, keys)
}

func (s *MemoryTestSuite) TestPropertyIndex() {
	s.Nil(s.store.PropertyIndexer(s.books.Property("Version")))

	idx := s.store.PropertyIndexer(s.books.Property("Pages"))
	s.Require().NotNil(idx)
	s.Same(idx, s.store.PropertyIndexer(s.books.Property("Pages")))

	for key, pages := range map[int64]int64{1: 100, 2: 250, 3: 250, 4: 400} {
		s.NoError(idx.Index(s.ctx, pages, key))
	}

	keys, err := idx.Query(s.ctx, int64(250))
	s.NoError(err)
	s.ElementsMatch([]any{int64(2), int64(3)}, keys)

	ranger, ok := idx.(domain.RangeIndexer)
	s.Require().True(ok)

	s.Run("closed", func() {
		keys, err := ranger.QueryRange(s.ctx, int64(100), int64(250), false, true)
		s.NoError(err)
		s.ElementsMatch([]any{int64(2), int64(3)}, keys)
	})
	s.Run("open start", func() {
		keys, err := ranger.QueryRange(s.ctx, nil, int64(250), false, false)
		s.NoError(err)
		s.ElementsMatch([]any{int64(1)}, keys)
	})
	s.Run("open end", func() {
		keys, err := ranger.QueryRange(s.ctx, int64(250), nil, true, false)
		s.NoError(err)
		s.ElementsMatch([]any{int64(2), int64(3), int64(4)}, keys)
	})

	s.NoError(idx.Deindex(s.ctx, int64(250), int64(2)))
	keys, err = idx.Query(s.ctx, int64(250))
	s.NoError(err)
	s.Equal([]any{int64(3)}, keys)
}

func (s *MemoryTestSuite) TestLocks() {
	s.NoError(s.store.LockEntry(s.ctx, s.books, int64(1), time.Second))

	err := s.store.LockEntry(s.ctx, s.books, int64(1), 10*time.Millisecond)
	s.ErrorIs(err, domain.ErrCannotAcquireLock)

	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	err = s.store.LockEntry(ctx, s.books, int64(1), time.Second)
	s.ErrorIs(err, context.Canceled)

	s.NoError(s.store.LockEntry(s.ctx, s.books, int64(2), time.Second))
	s.NoError(s.store.UnlockEntry(s.ctx, s.books, int64(1)))
	s.Error(s.store.UnlockEntry(s.ctx, s.books, int64(1)))
	s.NoError(s.store.LockEntry(s.ctx, s.books, int64(1), time.Second))
}

func (s *MemoryTestSuite) TestEmbedded() {
	parent := s.store.CreateNewEntry("book")
	child := s.store.CreateEmbeddedEntry(nil)
	s.store.SetEntryValue(child, "Lat", 1.5)
	s.store.SetEmbedded(parent, "Location", child)

	got, ok := s.store.GetEmbedded(parent, "Location")
	s.True(ok)
	s.Equal(1.5, s.store.GetEntryValue(got, "Lat"))

	_, ok = s.store.GetEmbedded(parent, "Missing")
	s.False(ok)
}

func (s *MemoryTestSuite) TestSnapshot() {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	_, err := s.store.StoreEntry(s.ctx, s.books, nil, nil, data.Entry{
		"Title":   "Dune",
		"Pages":   int64(412),
		"Printed": now,
		"Tags":    []any{"scifi", data.Entry{"Lang": "en"}},
	})
	s.Require().NoError(err)
	s.NoError(s.store.PropertyIndexer(s.books.Property("Pages")).Index(s.ctx, int64(412), int64(1)))

	var buf bytes.Buffer
	s.Require().NoError(s.store.Snapshot(s.ctx, &buf))

	restored := NewStore()
	s.Require().NoError(restored.Restore(s.ctx, &buf))

	e, found, err := restored.RetrieveEntry(s.ctx, s.books, "book", int64(1))
	s.NoError(err)
	s.True(found)
	s.Equal("Dune", e.Get("Title"))
	s.Equal(int64(412), e.Get("Pages"))
	s.True(now.Equal(e.Get("Printed").(time.Time)))
	s.Equal([]any{"scifi", data.Entry{"Lang": "en"}}, e.Get("Tags"))

	keys, err := restored.PropertyIndexer(s.books.Property("Pages")).Query(s.ctx, int64(412))
	s.NoError(err)
	s.Equal([]any{int64(1)}, keys)

	key, err := restored.StoreEntry(s.ctx, s.books, nil, nil, data.Entry{})
	s.NoError(err)
	s.Equal(int64(2), key)
}

func (s *MemoryTestSuite) TestSnapshotFile() {
	st := storage.NewStorage()
	name := filepath.Join(s.T().TempDir(), "data", "gedm.snapshot")

	loaded, err := s.store.LoadFile(s.ctx, st, name)
	s.NoError(err)
	s.False(loaded)

	_, err = s.store.StoreEntry(s.ctx, s.books, nil, nil, data.Entry{"Title": "Dune"})
	s.Require().NoError(err)
	s.Require().NoError(s.store.SaveFile(s.ctx, st, name))

	restored := NewStore()
	loaded, err = restored.LoadFile(s.ctx, st, name)
	s.NoError(err)
	s.True(loaded)
	e, found, err := restored.RetrieveEntry(s.ctx, s.books, "book", int64(1))
	s.NoError(err)
	s.True(found)
	s.Equal("Dune", e.Get("Title"))
}

func (s *MemoryTestSuite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	_, err := s.store.StoreEntry(ctx, s.books, nil, nil, data.Entry{})
	s.ErrorIs(err, context.Canceled)
	_, _, err = s.store.RetrieveEntry(ctx, s.books, "book", int64(1))
	s.ErrorIs(err, context.Canceled)
	s.ErrorIs(s.store.Snapshot(ctx, &bytes.Buffer{}), context.Canceled)
}

func TestMemoryTestSuite(t *testing.T) {
	suite.Run(t, new(MemoryTestSuite))
}
