package composite

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/umhmon/umh/internal/sink"
)

type fakeStore struct {
	appendErr error
	closeErr  error
	appended  int
	closed    bool
}

func (f *fakeStore) Append(context.Context, sink.Record) error {
	f.appended++
	return f.appendErr
}

func (f *fakeStore) Close() error {
	f.closed = true
	return f.closeErr
}

func TestAppendCollectsFirstError(t *testing.T) {
	primary := &fakeStore{appendErr: errors.New("primary")}
	secondary := &fakeStore{appendErr: errors.New("secondary")}
	s := New(primary, secondary)

	err := s.Append(context.Background(), sink.Record{API: "x"})
	assert.EqualError(t, err, "primary")
	assert.Equal(t, 1, primary.appended)
	assert.Equal(t, 1, secondary.appended)
}

func TestAppendSecondaryError(t *testing.T) {
	primary := &fakeStore{}
	secondary := &fakeStore{appendErr: errors.New("secondary")}
	err := New(primary, secondary).Append(context.Background(), sink.Record{})
	assert.EqualError(t, err, "secondary")
}

func TestCloseClosesAll(t *testing.T) {
	primary := &fakeStore{}
	a := &fakeStore{closeErr: errors.New("a")}
	b := &fakeStore{}
	err := New(primary, a, b).Close()
	assert.EqualError(t, err, "a")
	assert.True(t, primary.closed)
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}
