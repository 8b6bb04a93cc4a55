package testutil

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

// LogRecord is one captured log entry, flattened for assertions.
type LogRecord struct {
	Time    time.Time
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// LogRecorder captures every record a test logger emits. Handlers derived
// through With or WithGroup record into the same buffer, so assertions on
// the recorder also see records logged through component-scoped loggers.
type LogRecorder struct {
	buf   *logBuffer
	attrs []slog.Attr
	group string
}

// logBuffer is the sink shared by a recorder and its derivatives.
type logBuffer struct {
	mu      sync.Mutex
	records []LogRecord
	tb      testing.TB
}

// NewTestLogger returns a logger wired to a fresh LogRecorder. Captured
// records are echoed to the test log so a failing run shows what the code
// under test reported.
func NewTestLogger(tb testing.TB) (*slog.Logger, *LogRecorder) {
	rec := &LogRecorder{buf: &logBuffer{tb: tb}}
	return slog.New(rec), rec
}

// Enabled reports true for every level; filtering belongs in assertions.
func (h *LogRecorder) Enabled(context.Context, slog.Level) bool { return true }

// Handle flattens the record into the shared buffer, folding in attributes
// bound earlier through With.
func (h *LogRecorder) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any, r.NumAttrs()+len(h.attrs))
	for _, a := range h.attrs {
		attrs[h.qualify(a.Key)] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[h.qualify(a.Key)] = a.Value.Any()
		return true
	})

	h.buf.mu.Lock()
	h.buf.records = append(h.buf.records, LogRecord{
		Time:    r.Time,
		Level:   r.Level,
		Message: r.Message,
		Attrs:   attrs,
	})
	tb := h.buf.tb
	h.buf.mu.Unlock()

	if tb != nil {
		tb.Logf("[%s] %s %v", r.Level, r.Message, attrs)
	}
	return nil
}

// WithAttrs returns a derivative handler recording into the same buffer
// with attrs bound to every subsequent record.
func (h *LogRecorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

// WithGroup returns a derivative that prefixes attribute keys with name,
// keeping grouped attributes distinguishable in assertions.
func (h *LogRecorder) WithGroup(name string) slog.Handler {
	clone := *h
	if clone.group == "" {
		clone.group = name
	} else {
		clone.group += "." + name
	}
	return &clone
}

func (h *LogRecorder) qualify(key string) string {
	if h.group == "" {
		return key
	}
	return h.group + "." + key
}

// GetRecords returns a copy of everything captured so far.
func (h *LogRecorder) GetRecords() []LogRecord {
	h.buf.mu.Lock()
	defer h.buf.mu.Unlock()

	records := make([]LogRecord, len(h.buf.records))
	copy(records, h.buf.records)
	return records
}

// GetRecordsByLevel returns the captured records at exactly level.
func (h *LogRecorder) GetRecordsByLevel(level slog.Level) []LogRecord {
	var filtered []LogRecord
	for _, r := range h.GetRecords() {
		if r.Level == level {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// ContainsMessage reports whether any captured message contains message.
func (h *LogRecorder) ContainsMessage(message string) bool {
	for _, r := range h.GetRecords() {
		if strings.Contains(r.Message, message) {
			return true
		}
	}
	return false
}

// ContainsAttr reports whether any captured record carries key with
// exactly value.
func (h *LogRecorder) ContainsAttr(key string, value any) bool {
	for _, r := range h.GetRecords() {
		if v, ok := r.Attrs[key]; ok && v == value {
			return true
		}
	}
	return false
}

// Clear drops everything captured so far.
func (h *LogRecorder) Clear() {
	h.buf.mu.Lock()
	defer h.buf.mu.Unlock()
	h.buf.records = h.buf.records[:0]
}

// Count returns the number of captured records.
func (h *LogRecorder) Count() int {
	h.buf.mu.Lock()
	defer h.buf.mu.Unlock()
	return len(h.buf.records)
}
