// Copyright 2025 ChaosChain
//
// Structured logging for the workflow engine: a small Logger over an
// io.Writer, with context-merging child loggers, that emits one JSON
// record per line so
// that {timestamp, level, workflowId?, stepName?, ...context} records
// can be shipped to any log aggregator without a bespoke parser.

package logging

import (
	"encoding/json"
	"io"
	"os"
	"time"
)

// Field is a single piece of structured context attached to a log record.
type Field struct {
	Key   string
	Value interface{}
}

// F is shorthand for constructing a Field.
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Logger emits structured JSON log records to an underlying writer. Child
// loggers created with With inherit the parent's context by merge.
type Logger struct {
	out     io.Writer
	context map[string]interface{}
}

// New constructs a Logger writing to w.
func New(w io.Writer) *Logger {
	return &Logger{out: w, context: map[string]interface{}{}}
}

// NewDevelopment returns a Logger writing to stderr, for local development.
func NewDevelopment() *Logger {
	return New(os.Stderr)
}

// NewNop returns a Logger that discards every record.
func NewNop() *Logger {
	return New(io.Discard)
}

// With returns a child logger whose context merges fields into the
// parent's. The parent is unaffected.
func (l *Logger) With(fields ...Field) *Logger {
	merged := make(map[string]interface{}, len(l.context)+len(fields))
	for k, v := range l.context {
		merged[k] = v
	}
	for _, f := range fields {
		merged[f.Key] = f.Value
	}
	return &Logger{out: l.out, context: merged}
}

func (l *Logger) record(level, msg string, fields ...Field) {
	rec := make(map[string]interface{}, len(l.context)+len(fields)+3)
	for k, v := range l.context {
		rec[k] = v
	}
	for _, f := range fields {
		rec[f.Key] = f.Value
	}
	rec["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	rec["level"] = level
	rec["message"] = msg

	line, err := json.Marshal(serializeErrors(rec))
	if err != nil {
		// Last-resort fallback: never let a marshal failure swallow a log line.
		io.WriteString(l.out, `{"level":"error","message":"log marshal failed"}`+"\n")
		return
	}
	l.out.Write(append(line, '\n'))
}

// serializeErrors replaces any error values with {name, message, stack}
// records. Go has no retrievable stack for an arbitrary error, so "stack"
// is always an empty string.
func serializeErrors(rec map[string]interface{}) map[string]interface{} {
	for k, v := range rec {
		if err, ok := v.(error); ok {
			rec[k] = map[string]interface{}{
				"name":    "error",
				"message": err.Error(),
				"stack":   "",
			}
		}
	}
	return rec
}

func (l *Logger) Debug(msg string, fields ...Field) { l.record("debug", msg, fields...) }
func (l *Logger) Info(msg string, fields ...Field)  { l.record("info", msg, fields...) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.record("warn", msg, fields...) }
func (l *Logger) Error(msg string, fields ...Field) { l.record("error", msg, fields...) }
