//go:build !windows

package storage

import "os"

func ensureDir(fs fileSystem, dir string, mode os.FileMode) error {
	return fs.MkdirAll(dir, mode)
}

func syncFile(f *os.File, _ bool) error {
	return f.Sync()
}
