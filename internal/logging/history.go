package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// LogEntry is one record kept in the history.
type LogEntry struct {
	Seq        uint64         `json:"seq"`
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// LogCallback receives every entry once it has been stored.
type LogCallback func(entry LogEntry)

// RingBuffer holds the most recent entries and numbers them. Sequence
// numbers keep increasing after old entries are evicted.
type RingBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	next    int
	seq     uint64
}

// NewRingBuffer creates a buffer holding at most size entries.
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{entries: make([]LogEntry, 0, max(size, 1))}
}

// Write stores entry, assigning it the next sequence number, and returns the stored copy.
func (rb *RingBuffer) Write(entry LogEntry) LogEntry {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.seq++
	entry.Seq = rb.seq
	if len(rb.entries) < cap(rb.entries) {
		rb.entries = append(rb.entries, entry)
		return entry
	}
	rb.entries[rb.next] = entry
	rb.next = (rb.next + 1) % len(rb.entries)
	return entry
}

// ReadAll returns the stored entries, oldest first.
func (rb *RingBuffer) ReadAll() []LogEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if len(rb.entries) == 0 {
		return nil
	}
	out := make([]LogEntry, 0, len(rb.entries))
	out = append(out, rb.entries[rb.next:]...)
	return append(out, rb.entries[:rb.next]...)
}

// historyHandler feeds the registry's ring buffer and callback. Both are
// looked up per record, so loggers created before Initialize start
// recording as soon as it runs.
type historyHandler struct {
	scope
}

func newHistoryHandler(level slog.Leveler) *historyHandler {
	return &historyHandler{scope{level: level}}
}

func (h *historyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.enabled(level)
}

func (h *historyHandler) Handle(_ context.Context, r slog.Record) error {
	entry := LogEntry{
		Timestamp:  r.Time,
		Level:      levelName(r.Level),
		Module:     "app",
		Message:    r.Message,
		Attributes: make(map[string]any),
	}
	h.walk(r, func(path []string, v slog.Value) {
		if len(path) == 1 && path[0] == "module" {
			entry.Module = v.String()
			return
		}
		entry.Attributes[strings.Join(path, ".")] = attrValue(v)
	})

	std.mu.RLock()
	history, callback := std.history, std.callback
	std.mu.RUnlock()

	if history != nil {
		entry = history.Write(entry)
	}
	if callback != nil {
		callback(entry)
	}
	return nil
}

func (h *historyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &historyHandler{h.withAttrs(attrs)}
}

func (h *historyHandler) WithGroup(name string) slog.Handler {
	return &historyHandler{h.withGroup(name)}
}

// attrValue converts v to something that encodes cleanly as JSON.
func attrValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
	}
	return v.Any()
}

func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	}
	return "debug"
}
