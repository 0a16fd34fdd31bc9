package session

import (
	"context"
	"errors"
)

// ErrTransactionDone is returned when a finished transaction is used again.
var ErrTransactionDone = errors.New("transaction already finished")

// Transaction groups the changes made through a session. Committing flushes
// them; rolling back forgets every attached instance, so later retrievals
// read the stored state.
type Transaction struct {
	s    *Session
	done bool
}

// Begin starts a transaction.
func (s *Session) Begin() *Transaction {
	return &Transaction{s: s}
}

// Commit flushes the session.
func (t *Transaction) Commit(ctx context.Context) error {
	if t.done {
		return ErrTransactionDone
	}
	t.done = true
	return t.s.Flush(ctx)
}

// Rollback clears the session.
func (t *Transaction) Rollback() error {
	if t.done {
		return ErrTransactionDone
	}
	t.done = true
	t.s.Clear()
	return nil
}

// Transaction runs fn in a transaction, committed when fn succeeds and
// rolled back otherwise.
func (s *Session) Transaction(ctx context.Context, fn func(ctx context.Context, s *Session) error) error {
	tx := s.Begin()
	if err := fn(ctx, s); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit(ctx)
}
