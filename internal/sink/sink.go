package sink

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// Sink receives records from interception bodies. It never fails from the
// caller's point of view.
type Sink interface {
	Log(ctx context.Context, rec Record)
}

// Store is a record backend.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Close() error
}

// Func adapts a function to Sink.
type Func func(ctx context.Context, rec Record)

func (f Func) Log(ctx context.Context, rec Record) { f(ctx, rec) }

// Nop discards every record.
type Nop struct{}

func (Nop) Log(context.Context, Record) {}

// Writer validates records and appends them to a Store. Malformed records
// and backend errors are logged and counted, never returned.
type Writer struct {
	store    Store
	logger   *slog.Logger
	rejected atomic.Int64
	failed   atomic.Int64
}

// NewWriter wraps store. A nil logger uses slog.Default().
func NewWriter(store Store, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{store: store, logger: logger}
}

func (w *Writer) Log(ctx context.Context, rec Record) {
	if err := Validate(rec.Signature, rec.Args); err != nil {
		w.rejected.Add(1)
		w.logger.Debug("sink: malformed record", "api", rec.API, "error", err)
		return
	}
	if err := w.store.Append(ctx, rec); err != nil {
		w.failed.Add(1)
		w.logger.Warn("sink: append failed", "api", rec.API, "error", err)
	}
}

// Rejected returns the number of records dropped by validation.
func (w *Writer) Rejected() int64 { return w.rejected.Load() }

// Failed returns the number of records the backend refused.
func (w *Writer) Failed() int64 { return w.failed.Load() }

// Close closes the backend.
func (w *Writer) Close() error { return w.store.Close() }

// SlogStore writes records as structured log lines. It is the fallback
// backend in standalone mode.
type SlogStore struct {
	Logger *slog.Logger
	Level  slog.Level
}

func (s SlogStore) Append(ctx context.Context, rec Record) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := make([]slog.Attr, 0, len(rec.Args)+4)
	attrs = append(attrs,
		slog.String("category", rec.Category),
		slog.Uint64("tid", uint64(rec.ThreadID)),
		slog.Bool("success", rec.Success),
		slog.String("return", Hex(rec.Return)),
	)
	args := make([]any, 0, len(rec.Args))
	for _, a := range rec.Args {
		args = append(args, slog.Any(a.Name, a.Value))
	}
	attrs = append(attrs, slog.Group("args", args...))
	logger.LogAttrs(ctx, s.Level, rec.API, attrs...)
	return nil
}

func (SlogStore) Close() error { return nil }

// Hex formats a return value the way records carry it.
func Hex(v uint64) string {
	return fmt.Sprintf("0x%x", v)
}
