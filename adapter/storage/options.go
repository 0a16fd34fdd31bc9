package storage

import "os"

// Option configures a [Storage].
type Option func(*Storage)

// WithDirMode sets the mode of created directories.
func WithDirMode(m os.FileMode) Option {
	return func(s *Storage) {
		s.dirMode = m
	}
}

// WithFileMode sets the mode of written files.
func WithFileMode(m os.FileMode) Option {
	return func(s *Storage) {
		s.fileMode = m
	}
}
