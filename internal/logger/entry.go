package logger

import (
	"context"
	"time"
)

// Entry carries metric fields for a single log record.
// Example: logger.With(logger.Fields{logger.FieldCount: 3}).Info(ctx, "Imported")
type Entry struct {
	fields Fields
}

// With creates a new Entry with the given metric fields.
func With(fields Fields) *Entry {
	return &Entry{fields: fields}
}

// Recipient starts an Entry about one email address.
func Recipient(email string) *Entry {
	return With(Fields{FieldRecipient: email})
}

// With adds more fields to an existing Entry.
func (e *Entry) With(fields Fields) *Entry {
	merged := make(Fields, len(e.fields)+len(fields))
	for k, v := range e.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Entry{fields: merged}
}

// WithDuration adds a duration_ms field.
func (e *Entry) WithDuration(d time.Duration) *Entry {
	return e.With(Fields{FieldDurationMs: d.Milliseconds()})
}

// WithTally adds the send counters of a job.
func (e *Entry) WithTally(processed, sent, errors int) *Entry {
	return e.With(Fields{
		FieldCount:  processed,
		FieldSent:   sent,
		FieldErrors: errors,
	})
}

// Debug logs at Debug level with metric fields.
func (e *Entry) Debug(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).WithFields(e.fields).Debugf(format, args...)
}

// Info logs at Info level with metric fields.
func (e *Entry) Info(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).WithFields(e.fields).Infof(format, args...)
}

// Warn logs at Warn level with metric fields.
func (e *Entry) Warn(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).WithFields(e.fields).Warnf(format, args...)
}

// Error logs at Error level with metric fields.
func (e *Entry) Error(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).WithFields(e.fields).Errorf(format, args...)
}
