//go:build windows

package storage

import (
	"os"
	"path/filepath"
)

// ensureDir creates dir unless it is a volume root, which MkdirAll rejects
// on windows.
func ensureDir(fs fileSystem, dir string, mode os.FileMode) error {
	if dir == filepath.VolumeName(dir)+string(os.PathSeparator) {
		return nil
	}
	return fs.MkdirAll(dir, mode)
}

// syncFile skips directories: windows cannot flush a directory handle.
func syncFile(f *os.File, isDir bool) error {
	if isDir {
		return nil
	}
	return f.Sync()
}
