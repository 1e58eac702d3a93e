package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context threaded through a
// connection's accept -> parse -> resolve -> filter-chain -> op -> close
// lifecycle.
type LogContext struct {
	TraceID   string    // OpenTelemetry trace ID
	SpanID    string    // OpenTelemetry span ID
	RequestID string    // dispatcher-assigned request id (uuid)
	Method    string    // request method / first URL-space segment
	URL       string    // request URL path
	Driver    string    // owning driver name (e.g. "nssock")
	ClientIP  string    // client IP address (without port)
	StartTime time.Time // for duration calculation
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

// NewLogContext creates a new LogContext for an accepted connection.
func NewLogContext(clientIP string) *LogContext {
	return &LogContext{
		ClientIP:  clientIP,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

// WithRequest returns a copy with the method/URL set, once the request line is parsed.
func (lc *LogContext) WithRequest(method, url string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Method = method
		clone.URL = url
	}
	return clone
}

// WithDriver returns a copy with the owning driver name set.
func (lc *LogContext) WithDriver(driver string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Driver = driver
	}
	return clone
}

// WithRequestID returns a copy with the dispatcher-assigned request id set.
func (lc *LogContext) WithRequestID(id string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.RequestID = id
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
