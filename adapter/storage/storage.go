// Package storage writes files so that a crash leaves either the previous
// or the new content in place, never a partial file.
//
// The content is first written to a temporary file next to the target,
// named after it with a "~" suffix, synced and then renamed over the target.
// [Storage.Open] recovers a target left only as its temporary file.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dolmen-go/contextio"
)

// Default file modes.
const (
	DefaultDirMode  os.FileMode = 0o755
	DefaultFileMode os.FileMode = 0o644
)

// ErrFlushToStorage is returned when a file or directory cannot be synced.
type ErrFlushToStorage struct {
	ErrorOnFsync error
	ErrorOnClose error
}

func (e ErrFlushToStorage) Error() string {
	err := e.ErrorOnFsync
	if err == nil {
		err = e.ErrorOnClose
	}
	return fmt.Sprintf("storage flush error: %v", err)
}

func (e ErrFlushToStorage) Unwrap() error {
	if e.ErrorOnFsync != nil {
		return e.ErrorOnFsync
	}
	return e.ErrorOnClose
}

// Storage writes and reads crash safe files.
type Storage struct {
	fs       fileSystem
	dirMode  os.FileMode
	fileMode os.FileMode
}

// NewStorage returns a storage using the real file system.
func NewStorage(opts ...Option) *Storage {
	s := &Storage{
		fs:       osFS{},
		dirMode:  DefaultDirMode,
		fileMode: DefaultFileMode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func tempName(filename string) string { return filename + "~" }

// CrashSafeWrite replaces the content of filename with what write produces.
// The writer stops accepting data once ctx is done.
func (s *Storage) CrashSafeWrite(ctx context.Context, filename string, write func(io.Writer) error) error {
	dir := filepath.Dir(filename)
	if err := ensureDir(s.fs, dir, s.dirMode); err != nil {
		return err
	}
	if err := s.flush(dir, true); err != nil {
		return err
	}

	temp := tempName(filename)
	f, err := s.fs.OpenFile(temp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, s.fileMode)
	if err != nil {
		return err
	}
	if err := write(contextio.NewWriter(ctx, f)); err != nil {
		f.Close()
		s.fs.Remove(temp)
		return err
	}
	if err := syncFile(f, false); err != nil {
		f.Close()
		return ErrFlushToStorage{ErrorOnFsync: err}
	}
	if err := f.Close(); err != nil {
		return ErrFlushToStorage{ErrorOnClose: err}
	}

	if err := s.fs.Rename(temp, filename); err != nil {
		return err
	}
	return s.flush(dir, true)
}

// Open opens filename for reading. A file only present as the temporary
// file of an interrupted write is recovered first. Missing files return an
// error satisfying os.IsNotExist.
func (s *Storage) Open(filename string) (io.ReadCloser, error) {
	if err := s.ensureIntegrity(filename); err != nil {
		return nil, err
	}
	return s.fs.OpenFile(filename, os.O_RDONLY, s.fileMode)
}

// Exists reports whether filename exists.
func (s *Storage) Exists(filename string) (bool, error) {
	_, err := s.fs.Stat(filename)
	if err == nil {
		return true, nil
	}
	if s.fs.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (s *Storage) ensureIntegrity(filename string) error {
	ok, err := s.Exists(filename)
	if err != nil || ok {
		return err
	}
	temp := tempName(filename)
	ok, err = s.Exists(temp)
	if err != nil || !ok {
		return err
	}
	return s.fs.Rename(temp, filename)
}

func (s *Storage) flush(name string, isDir bool) error {
	flags := os.O_RDWR
	if isDir {
		flags = os.O_RDONLY
	}
	f, err := s.fs.OpenFile(name, flags, s.fileMode)
	if err != nil {
		return ErrFlushToStorage{ErrorOnFsync: err}
	}
	if err := syncFile(f, isDir); err != nil {
		f.Close()
		return ErrFlushToStorage{ErrorOnFsync: err}
	}
	if err := f.Close(); err != nil {
		return ErrFlushToStorage{ErrorOnClose: err}
	}
	return nil
}
