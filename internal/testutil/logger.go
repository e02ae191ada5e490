// Package testutil provides test loggers that route slog output through the
// test log and keep the records for assertions.
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// NewTestLogger returns a Debug logger that writes to t.Log, so output only
// shows for failing tests or with -v.
func NewTestLogger(t testing.TB) *slog.Logger {
	t.Helper()
	logger, _ := NewLogRecorder(t)
	return logger
}

// LogRecorder is a slog.Handler keeping every record it handles.
type LogRecorder struct {
	t     testing.TB
	attrs []slog.Attr

	mu      *sync.Mutex
	records *[]slog.Record
}

// NewLogRecorder returns a Debug logger and the recorder behind it.
func NewLogRecorder(t testing.TB) (*slog.Logger, *LogRecorder) {
	t.Helper()
	r := &LogRecorder{t: t, mu: &sync.Mutex{}, records: &[]slog.Record{}}
	return slog.New(r), r
}

// Enabled reports true for every level.
func (r *LogRecorder) Enabled(context.Context, slog.Level) bool { return true }

// Handle stores the record and logs it to the test.
func (r *LogRecorder) Handle(_ context.Context, rec slog.Record) error {
	rec = rec.Clone()
	rec.AddAttrs(r.attrs...)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s", rec.Level, rec.Message)
	rec.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value)
		return true
	})
	r.t.Log(sb.String())

	r.mu.Lock()
	*r.records = append(*r.records, rec)
	r.mu.Unlock()
	return nil
}

// WithAttrs returns a handler sharing the records that adds attrs to each one.
func (r *LogRecorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *r
	next.attrs = append(append([]slog.Attr{}, r.attrs...), attrs...)
	return &next
}

// WithGroup is not needed by the code under test; groups are flattened.
func (r *LogRecorder) WithGroup(string) slog.Handler { return r }

// Messages returns the messages logged so far, in order.
func (r *LogRecorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(*r.records))
	for i, rec := range *r.records {
		out[i] = rec.Message
	}
	return out
}

// Attr returns the value of key on the first record logged with msg.
func (r *LogRecorder) Attr(msg, key string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range *r.records {
		if rec.Message != msg {
			continue
		}
		var val string
		var found bool
		rec.Attrs(func(a slog.Attr) bool {
			if a.Key == key {
				val, found = a.Value.String(), true
				return false
			}
			return true
		})
		return val, found
	}
	return "", false
}
