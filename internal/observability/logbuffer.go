package observability

import (
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

// LogRecord is an application log line retained for GET /logs.
type LogRecord struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Logger  string         `json:"logger,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// LogBuffer keeps the most recent log records in a fixed ring.
type LogBuffer struct {
	mu      sync.Mutex
	records []LogRecord
	next    int
	full    bool
}

// NewLogBuffer allocates a ring of the given capacity.
func NewLogBuffer(capacity int) *LogBuffer {
	if capacity <= 0 {
		capacity = 500
	}
	return &LogBuffer{records: make([]LogRecord, capacity)}
}

func (b *LogBuffer) append(rec LogRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records[b.next] = rec
	b.next = (b.next + 1) % len(b.records)
	if b.next == 0 {
		b.full = true
	}
}

// Recent returns up to limit records, newest first.
func (b *LogBuffer) Recent(limit int) []LogRecord {
	b.mu.Lock()
	defer b.mu.Unlock()

	size := b.next
	if b.full {
		size = len(b.records)
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	out := make([]LogRecord, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (b.next - 1 - i + len(b.records)) % len(b.records)
		out = append(out, b.records[idx])
	}
	return out
}

// Core returns a zapcore.Core writing into the buffer.
func (b *LogBuffer) Core(level zapcore.LevelEnabler) zapcore.Core {
	return &bufferCore{LevelEnabler: level, buffer: b}
}

type bufferCore struct {
	zapcore.LevelEnabler
	buffer *LogBuffer
	fields []zapcore.Field
}

func (c *bufferCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &bufferCore{LevelEnabler: c.LevelEnabler, buffer: c.buffer, fields: merged}
}

func (c *bufferCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *bufferCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	rec := LogRecord{
		Time:    entry.Time,
		Level:   entry.Level.String(),
		Message: entry.Message,
		Logger:  entry.LoggerName,
	}
	if len(enc.Fields) > 0 {
		rec.Fields = enc.Fields
	}
	c.buffer.append(rec)
	return nil
}

func (c *bufferCore) Sync() error {
	return nil
}
