// Package jsonl appends records to a size-rotated newline-delimited JSON
// file under the results directory.
package jsonl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/umhmon/umh/internal/sink"
)

const (
	defaultMaxSizeMB  = 100
	defaultMaxBackups = 3
)

// ErrClosed is returned by Append after Close.
var ErrClosed = errors.New("jsonl store closed")

// Store writes one JSON object per record. When the next line would push
// the file past its size limit the file is moved to <path>.1 (older
// backups shift up, the oldest is dropped) and a fresh one is started.
type Store struct {
	path       string
	maxBytes   int64
	maxBackups int

	mu   sync.Mutex
	file *os.File
	size int64
}

var _ sink.Store = (*Store)(nil)

// PathFor returns the per-process log path under a results directory.
func PathFor(results string, pid uint32) string {
	return filepath.Join(results, "logs", fmt.Sprintf("%d.jsonl", pid))
}

func New(path string, maxSizeMB int, maxBackups int) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("jsonl path is empty")
	}
	if maxSizeMB <= 0 {
		maxSizeMB = defaultMaxSizeMB
	}
	if maxBackups <= 0 {
		maxBackups = defaultMaxBackups
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir log dir: %w", err)
	}

	s := &Store{
		path:       path,
		maxBytes:   int64(maxSizeMB) << 20,
		maxBackups: maxBackups,
	}
	if err := s.openLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Append(_ context.Context, rec sink.Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	b = append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return ErrClosed
	}
	if s.size > 0 && s.size+int64(len(b)) > s.maxBytes {
		if err := s.rotateLocked(); err != nil {
			return err
		}
	}
	n, err := s.file.Write(b)
	s.size += int64(n)
	if err != nil {
		return fmt.Errorf("write jsonl: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *Store) openLocked() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open jsonl: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat jsonl: %w", err)
	}
	s.file, s.size = f, st.Size()
	return nil
}

func (s *Store) rotateLocked() error {
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("close for rotate: %w", err)
	}
	s.file = nil
	s.shiftBackups()
	return s.openLocked()
}

func (s *Store) shiftBackups() {
	backup := func(i int) string { return fmt.Sprintf("%s.%d", s.path, i) }
	_ = os.Remove(backup(s.maxBackups))
	for i := s.maxBackups - 1; i >= 1; i-- {
		_ = os.Rename(backup(i), backup(i+1))
	}
	_ = os.Rename(s.path, backup(1))
}
