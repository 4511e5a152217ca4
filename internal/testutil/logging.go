package testutil

import (
	"context"
	"log/slog"
	"sync"
)

// CapturingHandler records every log record so tests can assert on warnings.
type CapturingHandler struct {
	mu      *sync.Mutex
	records *[]slog.Record
	attrs   []slog.Attr
}

// NewCapturingHandler returns an empty capturing handler.
func NewCapturingHandler() *CapturingHandler {
	return &CapturingHandler{mu: &sync.Mutex{}, records: &[]slog.Record{}}
}

func (h *CapturingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *CapturingHandler) Handle(_ context.Context, r slog.Record) error {
	r = r.Clone()
	r.AddAttrs(h.attrs...)
	h.mu.Lock()
	*h.records = append(*h.records, r)
	h.mu.Unlock()
	return nil
}

func (h *CapturingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CapturingHandler{mu: h.mu, records: h.records, attrs: append(append([]slog.Attr(nil), h.attrs...), attrs...)}
}

func (h *CapturingHandler) WithGroup(string) slog.Handler { return h }

// Records returns the captured records at or above minLevel.
func (h *CapturingHandler) Records(minLevel slog.Level) []slog.Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []slog.Record
	for _, r := range *h.records {
		if r.Level >= minLevel {
			out = append(out, r.Clone())
		}
	}
	return out
}
