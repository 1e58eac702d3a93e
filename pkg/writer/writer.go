// Package writer implements the two response-delivery paths: a synchronous
// inline writer for small responses, and a queued async writer for
// large/streamed ones, with chunked-transfer encoding and backpressure.
package writer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/navispace/navid/pkg/chunk"
	"github.com/navispace/navid/pkg/driver"
)

// ErrQueueFull is returned by Stream.WriteChunk when the stream's queue has
// reached maxQueued bytes and the caller must apply backpressure.
var ErrQueueFull = errors.New("writer: stream queue full")

// connFlags mirrors the connection bit flags, tracked per
// Stream so the dispatcher can observe whether a response went via the
// inline path or the writer queue, and where it is in header/body framing.
type connFlags uint32

const (
	FlagSentViaWriter connFlags = 1 << iota
	FlagChunked
	FlagSentLastChunk
	FlagHeadersSent
	FlagStreaming
)

// Stream is one connection's outbound body: a Chunk queue plus the flags
// tracking header/chunk framing state. Not safe for concurrent use from
// more than one writer goroutine at a time; the async writer serializes
// draining per Stream via its own per-stream mutex.
type Stream struct {
	sock *driver.Sock

	mu         sync.Mutex
	queue      chunk.Queue
	flags      connFlags
	maxQueued  int
	chunked    bool
}

// NewStream creates a Stream bound to sock. If chunked is true, WriteChunk
// wraps each write in HTTP/1.1 chunked-transfer framing. maxQueued bounds
// how many unsent bytes may sit in the stream's queue before WriteChunk
// starts returning ErrQueueFull (0 = unbounded).
func NewStream(sock *driver.Sock, chunked bool, maxQueued int) *Stream {
	s := &Stream{sock: sock, chunked: chunked, maxQueued: maxQueued}
	if chunked {
		s.flags |= FlagChunked
	}
	return s
}

// Flags returns the stream's current connection bit flags.
func (s *Stream) Flags() connFlags {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags
}

// WriteInline sends data synchronously on the calling goroutine via the
// driver's Send, for small responses that don't need the async writer
// queue.
func (s *Stream) WriteInline(data []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload := data
	if s.chunked {
		payload = encodeChunk(data)
	}
	n, err := s.sock.Send(payload)
	if err != nil {
		return n, err
	}
	s.flags |= FlagHeadersSent
	return len(data), nil
}

// WriteChunk enqueues data for the async writer to drain later, applying
// backpressure once the queue holds maxQueued unsent bytes.
func (s *Stream) WriteChunk(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxQueued > 0 && s.queue.Unread()+len(data) > s.maxQueued {
		return ErrQueueFull
	}

	payload := data
	if s.chunked {
		payload = encodeChunk(data)
	}
	c := chunk.Alloc(len(payload))
	c.Write(payload)
	s.queue.Enqueue(c)
	s.flags |= FlagSentViaWriter
	return nil
}

// drain writes as much of the stream's queued bytes as the socket accepts
// in one pass, trimming sent bytes off the queue. Returns the number of
// bytes written and whether the queue is now empty.
func (s *Stream) drain() (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.queue.Peek()
	if c == nil {
		return 0, true, nil
	}
	n, err := s.sock.Send(c.Bytes())
	if n > 0 {
		s.queue.Trim(n)
	}
	return n, s.queue.Empty(), err
}

// CloseChunked writes the terminating zero-length chunk ("0\r\n\r\n") and
// sets FlagSentLastChunk, per the Open Question decision recorded in
// DESIGN.md: the flag is set after the write succeeds, before the
// connection is closed.
func (s *Stream) CloseChunked() error {
	s.mu.Lock()
	chunked := s.chunked
	s.mu.Unlock()
	if !chunked {
		return nil
	}

	_, err := s.sock.Send([]byte("0\r\n\r\n"))
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.flags |= FlagSentLastChunk
	s.mu.Unlock()
	return nil
}

// encodeChunk wraps data in one HTTP/1.1 chunk: "<hex-size>\r\n<data>\r\n".
func encodeChunk(data []byte) []byte {
	if len(data) == 0 {
		return nil
	}
	head := fmt.Sprintf("%x\r\n", len(data))
	out := make([]byte, 0, len(head)+len(data)+2)
	out = append(out, head...)
	out = append(out, data...)
	out = append(out, '\r', '\n')
	return out
}
