package idgenerator

import "io"

// Option configures an [IDGenerator].
type Option func(*IDGenerator)

// WithReader sets the source of random bytes of string identifiers.
func WithReader(r io.Reader) Option {
	return func(g *IDGenerator) {
		g.reader = r
	}
}
