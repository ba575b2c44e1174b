package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Closer flushes and stops a logging pipeline.
type Closer interface {
	Close()
}

// nopCloser is returned in synchronous mode.
type nopCloser struct{}

func (nopCloser) Close() {}

// asyncQueue is the shared fan-in point for every handler derived from
// one AsyncHandler via WithAttrs/WithGroup. Closing it stops the
// workers after the queued records have been written.
type asyncQueue struct {
	records chan queuedRecord
	workers sync.WaitGroup
	dropped atomic.Int64
}

type queuedRecord struct {
	sink slog.Handler
	rec  slog.Record
}

// AsyncHandler decouples log emission from the call hot path. Handle
// enqueues and returns immediately; a full queue drops the record
// instead of stalling usage accounting.
type AsyncHandler struct {
	sink  slog.Handler
	queue *asyncQueue
}

// NewAsyncHandler starts `workers` goroutines writing to sink through a
// queue of `depth` records.
func NewAsyncHandler(sink slog.Handler, depth, workers int) *AsyncHandler {
	q := &asyncQueue{records: make(chan queuedRecord, depth)}
	for range workers {
		q.workers.Add(1)
		go func() {
			defer q.workers.Done()
			for qr := range q.records {
				_ = qr.sink.Handle(context.Background(), qr.rec)
			}
		}()
	}
	return &AsyncHandler{sink: sink, queue: q}
}

func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.sink.Enabled(ctx, level)
}

func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	select {
	case h.queue.records <- queuedRecord{sink: h.sink, rec: rec}:
	default:
		h.queue.dropped.Add(1)
	}
	return nil
}

func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{sink: h.sink.WithAttrs(attrs), queue: h.queue}
}

func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{sink: h.sink.WithGroup(name), queue: h.queue}
}

// DroppedCount reports records discarded because the queue was full.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.queue.dropped.Load()
}

// Close stops accepting records and waits for the queue to drain.
func (h *AsyncHandler) Close() {
	close(h.queue.records)
	h.queue.workers.Wait()
}
