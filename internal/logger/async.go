package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Closer flushes and stops a handler on shutdown.
type Closer interface {
	Close()
}

// nopCloser is returned in synchronous mode.
type nopCloser struct{}

func (nopCloser) Close() {}

// AsyncHandler decouples log emission from log writing: Handle enqueues the
// record and returns immediately, background workers write it out. When the
// queue is full the record is dropped and counted, so a slow sink can stall
// log output but never a request.
type AsyncHandler struct {
	sink    slog.Handler
	queue   chan slog.Record
	workers *sync.WaitGroup
	drops   *atomic.Int64
}

// NewAsyncHandler starts workers draining a queue of the given capacity into
// sink.
func NewAsyncHandler(sink slog.Handler, capacity, workers int) *AsyncHandler {
	h := &AsyncHandler{
		sink:    sink,
		queue:   make(chan slog.Record, capacity),
		workers: &sync.WaitGroup{},
		drops:   &atomic.Int64{},
	}
	for range workers {
		h.workers.Add(1)
		go func() {
			defer h.workers.Done()
			for rec := range h.queue {
				_ = h.sink.Handle(context.Background(), rec)
			}
		}()
	}
	return h
}

// Enabled delegates to the sink so level filtering happens before enqueueing.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.sink.Enabled(ctx, level)
}

// Handle enqueues the record, dropping it when the queue is full.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	select {
	case h.queue <- rec:
	default:
		h.drops.Add(1)
	}
	return nil
}

// WithAttrs wraps the derived sink handler; queue, workers and the drop
// counter stay shared with the parent.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.derive(h.sink.WithAttrs(attrs))
}

// WithGroup wraps the derived sink handler, sharing state like WithAttrs.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return h.derive(h.sink.WithGroup(name))
}

func (h *AsyncHandler) derive(sink slog.Handler) *AsyncHandler {
	return &AsyncHandler{
		sink:    sink,
		queue:   h.queue,
		workers: h.workers,
		drops:   h.drops,
	}
}

// DroppedCount reports how many records were discarded on a full queue.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.drops.Load()
}

// Close stops accepting records and blocks until the workers have written
// everything still queued.
func (h *AsyncHandler) Close() {
	close(h.queue)
	h.workers.Wait()
}
