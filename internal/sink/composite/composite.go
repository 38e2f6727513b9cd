// Package composite fans records out to several sink stores.
package composite

import (
	"context"

	"github.com/umhmon/umh/internal/sink"
)

type Store struct {
	primary sink.Store
	others  []sink.Store
}

var _ sink.Store = (*Store)(nil)

func New(primary sink.Store, others ...sink.Store) *Store {
	return &Store{primary: primary, others: others}
}

// Append writes to every store and returns the first error.
func (s *Store) Append(ctx context.Context, rec sink.Record) error {
	var firstErr error
	if err := s.primary.Append(ctx, rec); err != nil && firstErr == nil {
		firstErr = err
	}
	for _, o := range s.others {
		if err := o.Append(ctx, rec); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Store) Close() error {
	var firstErr error
	if err := s.primary.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	for _, o := range s.others {
		if err := o.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
