package logger

import (
	"log/slog"

	"github.com/dustin/go-humanize"
)

// ============================================================================
// Context field keys
// ============================================================================

const (
	KeyTraceID   = "trace_id"
	KeySpanID    = "span_id"
	KeyRequestID = "request_id"
	KeyMethod    = "method"
	KeyURL       = "url"
	KeyClientIP  = "client_ip"
	KeyDriver    = "driver"
)

// ============================================================================
// Typed slog.Attr helpers
//
// These wrap the common fields logged across the dispatch core (urlspace,
// reactor, driver, dispatch, writer, scheduler, cache) so call sites read as
// logger.Info("...", logger.URL(u), logger.Status(s)) instead of repeating
// untyped key strings.
// ============================================================================

// TraceID logs an OpenTelemetry trace id.
func TraceID(id string) slog.Attr { return slog.String(KeyTraceID, id) }

// SpanID logs an OpenTelemetry span id.
func SpanID(id string) slog.Attr { return slog.String(KeySpanID, id) }

// RequestID logs the dispatcher-assigned request id.
func RequestID(id string) slog.Attr { return slog.String(KeyRequestID, id) }

// Method logs the request method (first URL-space segment).
func Method(m string) slog.Attr { return slog.String(KeyMethod, m) }

// URL logs a request or registration URL path.
func URL(u string) slog.Attr { return slog.String(KeyURL, u) }

// Filter logs a URL-space channel's trailing-token filter (e.g. "*.html").
func Filter(f string) slog.Attr { return slog.String("filter", f) }

// JunctionID logs the allocated URL-space junction id.
func JunctionID(id int) slog.Attr { return slog.Int("junction_id", id) }

// Depth logs the trie descent depth reached during a lookup.
func Depth(d int) slog.Attr { return slog.Int("depth", d) }

// ClientIP logs the peer address (without port).
func ClientIP(addr string) slog.Attr { return slog.String(KeyClientIP, addr) }

// ClientPort logs the peer port.
func ClientPort(port int) slog.Attr { return slog.Int("client_port", port) }

// DriverName logs the owning driver's registered name.
func DriverName(name string) slog.Attr { return slog.String(KeyDriver, name) }

// SockFD logs a raw socket file descriptor, for accept/recv/send tracing.
func SockFD(fd int) slog.Attr { return slog.Int("sock_fd", fd) }

// TaskID logs a reactor task id.
func TaskID(id string) slog.Attr { return slog.String("task_id", id) }

// QueueName logs the owning task/writer queue name.
func QueueName(name string) slog.Attr { return slog.String("queue", name) }

// Event logs a reactor socket-state event (READ, WRITE, TIMEOUT, ...).
func Event(e string) slog.Attr { return slog.String("event", e) }

// Status logs an HTTP-style response status code.
func Status(code int) slog.Attr { return slog.Int("status", code) }

// BytesRead logs bytes received on a connection.
func BytesRead(n int) slog.Attr { return slog.Int("bytes_read", n) }

// BytesWritten logs bytes sent on a connection.
func BytesWritten(n int) slog.Attr { return slog.Int("bytes_written", n) }

// DurationMs logs an elapsed duration in milliseconds.
func DurationMs(ms float64) slog.Attr { return slog.Float64("duration_ms", ms) }

// Err logs an error value under the conventional "error" key.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// CacheName logs a named cache instance.
func CacheName(name string) slog.Attr { return slog.String("cache", name) }

// CacheHit logs whether a cache lookup hit.
func CacheHit(hit bool) slog.Attr { return slog.Bool("cache_hit", hit) }

// CacheSize logs the current byte size of a cache.
func CacheSize(size uint64) slog.Attr { return slog.Uint64("cache_size", size) }

// Evicted logs the number of entries evicted in a single pass.
func Evicted(n int) slog.Attr { return slog.Int("evicted", n) }

// TransactionEpoch logs a cache transaction epoch id.
func TransactionEpoch(epoch uint64) slog.Attr { return slog.Uint64("epoch", epoch) }

// ScheduleID logs a scheduler job id.
func ScheduleID(id int) slog.Attr { return slog.Int("schedule_id", id) }

// ChunkBytes logs a chunk/writer byte count, formatted for readability.
func ChunkBytes(n int) slog.Attr { return slog.String("chunk_bytes", humanize.Bytes(uint64(n))) }
