// Package logging provides leveled logging and an experiment event journal
// for labkit. It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - An EventLog of lifecycle events as JSONL (~/.labkit/events.jsonl)
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LevelTrace is a custom slog level below Debug. At this level every element
// placement and wire change is logged.
const LevelTrace = slog.LevelDebug - 4

// EventFile is the journal file name inside the labkit home directory.
const EventFile = "events.jsonl"

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "error", "warn", "info", "debug", "trace"
// (case-insensitive). Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "error":
		return slog.LevelError
	case "warn", "warning":
		return slog.LevelWarn
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// ValidLevel reports whether ParseLevel knows s.
func ValidLevel(s string) bool {
	switch strings.ToLower(s) {
	case "error", "warn", "warning", "info", "debug", "trace":
		return true
	}
	return false
}

// NewLogger creates a leveled slog.Logger writing text to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 4}))
}

// OrDiscard returns l, or Discard() when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}

// EventLog appends experiment lifecycle events to a JSONL journal.
// It is safe for concurrent use. A nil *EventLog is valid and records nothing.
type EventLog struct {
	mu  sync.Mutex
	w   io.Writer
	c   io.Closer
	now func() time.Time
}

// NewEventLog opens dir/events.jsonl for append. At info level and above it
// returns nil: the journal is only kept when debugging. It also returns nil
// if the file cannot be opened.
func NewEventLog(dir, level string) *EventLog {
	if ParseLevel(level) >= slog.LevelInfo {
		return nil
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(dir, EventFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}
	return &EventLog{w: f, c: f, now: time.Now}
}

// NewEventLogWriter journals to w; the caller keeps ownership of w.
func NewEventLogWriter(w io.Writer) *EventLog {
	return &EventLog{w: w, now: time.Now}
}

// Emit records one event. Fields are alternating key/value pairs as with
// slog; a trailing key without a value is recorded under "!BADKEY".
func (l *EventLog) Emit(event string, fields ...any) {
	if l == nil {
		return
	}
	entry := make(map[string]any, len(fields)/2+2)
	for i := 0; i < len(fields); i += 2 {
		if i+1 >= len(fields) {
			entry["!BADKEY"] = fields[i]
			break
		}
		entry[fmt.Sprint(fields[i])] = fields[i+1]
	}
	entry["event"] = event

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w == nil {
		return
	}
	entry["time"] = l.now().UTC().Format(time.RFC3339Nano)
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	_, _ = l.w.Write(append(data, '\n'))
}

// Close closes the journal file if the EventLog owns one. Later Emit calls
// are no-ops.
func (l *EventLog) Close() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.c != nil {
		_ = l.c.Close()
	}
	l.w, l.c = nil, nil
}
