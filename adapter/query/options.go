package query

import "github.com/vinicius-lino-figueiredo/gedm/domain"

// Option configures a [Query].
type Option func(*Query)

// WithSession sets the session flushed before the query runs.
func WithSession(s domain.Session) Option {
	return func(q *Query) {
		q.session = s
	}
}

// MatcherOption configures a [Matcher].
type MatcherOption func(*Matcher)

// WithMatcherComparer sets the comparer used by a [Matcher].
func WithMatcherComparer(c domain.Comparer) MatcherOption {
	return func(m *Matcher) {
		m.comparer = c
	}
}

// ReducerOption configures a [Reducer].
type ReducerOption func(*Reducer)

// WithReducerComparer sets the comparer used by a [Reducer].
func WithReducerComparer(c domain.Comparer) ReducerOption {
	return func(r *Reducer) {
		r.comparer = c
	}
}
