package metrics

import "github.com/VictoriaMetrics/metrics"

// Option configures a [Recorder].
type Option func(*Recorder)

// WithSet makes the recorder write to an existing set, for example one
// registered with metrics.RegisterSet.
func WithSet(s *metrics.Set) Option {
	return func(r *Recorder) {
		r.set = s
	}
}

// WithNamespace sets the prefix of metric names. Defaults to "gedm".
func WithNamespace(ns string) Option {
	return func(r *Recorder) {
		r.namespace = ns
	}
}
