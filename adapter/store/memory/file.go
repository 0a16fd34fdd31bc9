package memory

import (
	"context"
	"io"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/storage"
)

// SaveFile writes a snapshot of the store to filename. A crash during the
// write leaves the previous snapshot in place.
func (s *Store) SaveFile(ctx context.Context, st *storage.Storage, filename string) error {
	return st.CrashSafeWrite(ctx, filename, func(w io.Writer) error {
		return s.Snapshot(ctx, w)
	})
}

// LoadFile restores the store from the snapshot in filename. It reports
// false without changing the store when no snapshot exists.
func (s *Store) LoadFile(ctx context.Context, st *storage.Storage, filename string) (bool, error) {
	f, err := st.Open(filename)
	if err != nil {
		if exists, _ := st.Exists(filename); !exists {
			return false, nil
		}
		return false, err
	}
	defer f.Close()
	if err := s.Restore(ctx, f); err != nil {
		return false, err
	}
	return true, nil
}
