package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context
type LogContext struct {
	TraceID   string    // OpenTelemetry trace ID
	SpanID    string    // OpenTelemetry span ID
	Component string    // Component name: store, cache, collector, upload, proxy, ts_proxy, status_hub
	PackageID string    // Platform package identifier, when applicable
	UploadID  string    // upload_record row id, when applicable
	StartTime time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for a given component.
func NewLogContext(component string) *LogContext {
	return &LogContext{
		Component: component,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		TraceID:   lc.TraceID,
		SpanID:    lc.SpanID,
		Component: lc.Component,
		PackageID: lc.PackageID,
		UploadID:  lc.UploadID,
		StartTime: lc.StartTime,
	}
}

// WithPackage returns a copy with the package id set
func (lc *LogContext) WithPackage(packageID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.PackageID = packageID
	}
	return clone
}

// WithUpload returns a copy with the upload id set
func (lc *LogContext) WithUpload(uploadID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.UploadID = uploadID
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
