package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentdeck/agentdeck/internal/config"
)

func TestNew(t *testing.T) {
	cfg := config.Logging{Level: "debug", Service: "test-svc"}
	l, closer := New(cfg)
	defer closer.Close()
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestNewAsync(t *testing.T) {
	cfg := config.Logging{Level: "debug", Service: "test-svc", Async: true}
	l, closer := New(cfg)
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
	closer.Close()
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"unknown", "INFO"},
		{"", "INFO"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseLevel(tt.input).String()
			if got != tt.want {
				t.Errorf("parseLevel(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()

	if got := RequestID(ctx); got != "" {
		t.Errorf("expected empty request ID, got %q", got)
	}
	if got := OrgID(ctx); got != "" {
		t.Errorf("expected empty org ID, got %q", got)
	}

	ctx = WithRequestID(ctx, "req-123")
	ctx = WithOrgID(ctx, "org-9")
	if got := RequestID(ctx); got != "req-123" {
		t.Errorf("expected req-123, got %q", got)
	}
	if got := OrgID(ctx); got != "org-9" {
		t.Errorf("expected org-9, got %q", got)
	}
}

// recordingHandler collects slog.Records for test assertions.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	h.mu.Lock()
	h.records = append(h.records, rec)
	h.mu.Unlock()
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

func TestAsyncHandler_DeliversRecords(t *testing.T) {
	inner := &recordingHandler{}
	ah := NewAsyncHandler(inner, 100, 1)

	for range 10 {
		rec := slog.NewRecord(time.Now(), slog.LevelInfo, "hello", 0)
		if err := ah.Handle(context.Background(), rec); err != nil {
			t.Fatalf("Handle returned error: %v", err)
		}
	}
	ah.Close()

	if got := inner.count(); got != 10 {
		t.Fatalf("expected 10 records, got %d", got)
	}
	if ah.DroppedCount() != 0 {
		t.Fatalf("expected no drops, got %d", ah.DroppedCount())
	}
}

func TestAsyncHandler_DropsWhenFull(t *testing.T) {
	inner := &recordingHandler{}
	// No workers: nothing drains the queue, so overflow must drop.
	ah := &AsyncHandler{
		sink:    inner,
		queue:   make(chan slog.Record, 1),
		workers: &sync.WaitGroup{},
		drops:   &atomic.Int64{},
	}

	rec := slog.NewRecord(time.Now(), slog.LevelInfo, "x", 0)
	_ = ah.Handle(context.Background(), rec)
	_ = ah.Handle(context.Background(), rec)

	if got := ah.DroppedCount(); got != 1 {
		t.Fatalf("expected 1 dropped record, got %d", got)
	}
}
