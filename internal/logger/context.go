package logger

import (
	"context"
	"sync"
)

type contextKey struct{}

var loggerKey = contextKey{}

// defaultLogger is used when no logger is found in context
var (
	defaultLogger   *Logger
	defaultLoggerMu sync.RWMutex
)

func init() {
	defaultLogger = New(nil)
}

// GetDefault returns the default logger (thread-safe).
func GetDefault() *Logger {
	defaultLoggerMu.RLock()
	defer defaultLoggerMu.RUnlock()
	return defaultLogger
}

// SetDefaultLogger sets the default logger used when no logger is found in context.
// Parameters:
//   - l: logger to set as default; nil is ignored.
// Returns: none.
func SetDefaultLogger(l *Logger) {
	if l != nil {
		defaultLoggerMu.Lock()
		defaultLogger = l
		defaultLoggerMu.Unlock()
	}
}

// WithContext returns a new context with the logger attached.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext extracts the logger from context.
// Parameters:
//   - ctx: context to inspect.
// Returns:
//   - *Logger: logger with injected fields or the default logger.
func FromContext(ctx context.Context) *Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey).(*Logger); ok {
			return l
		}
	}
	return GetDefault()
}

// WithField creates a new context with a single additional field.
func WithField(ctx context.Context, key string, value interface{}) context.Context {
	return FromContext(ctx).WithField(key, value).WithContext(ctx)
}

// WithFields creates a new context with additional fields added to the logger.
func WithFields(ctx context.Context, fields Fields) context.Context {
	return FromContext(ctx).WithFields(fields).WithContext(ctx)
}

// JobScope identifies the dispatch job a context belongs to.
type JobScope struct {
	JobID      string
	Source     string
	CampaignID string
}

// ForJob tags every record logged through ctx with the job identifiers.
// Empty scope fields are omitted.
func ForJob(ctx context.Context, scope JobScope) context.Context {
	fields := Fields{
		FieldJobID:     scope.JobID,
		FieldComponent: "dispatch",
	}
	if scope.Source != "" {
		fields[FieldSource] = scope.Source
	}
	if scope.CampaignID != "" {
		fields[FieldCampaignID] = scope.CampaignID
	}
	return WithFields(ctx, fields)
}

// ForRequest tags ctx with an HTTP request ID.
func ForRequest(ctx context.Context, requestID string) context.Context {
	return WithFields(ctx, Fields{
		FieldRequestID: requestID,
		FieldComponent: "api",
	})
}

// RequestID returns the request ID carried by ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := FromContext(ctx).Data[FieldRequestID].(string)
	return id
}
