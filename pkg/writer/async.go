package writer

import (
	"sync"
	"time"
)

// AsyncWriter is the background writer queue: a bounded pool of worker
// goroutines that drain Streams enqueued by the dispatcher, giving large
// or streamed responses flow-controlled delivery off the connection's own
// goroutine. It has a bounded job channel, a fixed worker count, and a
// timeout-bounded Stop.
type AsyncWriter struct {
	jobs    chan *Stream
	wg      sync.WaitGroup
	stopped chan struct{}
}

// NewAsyncWriter creates an AsyncWriter with workers goroutines draining a
// queue of depth queueDepth.
func NewAsyncWriter(workers, queueDepth int) *AsyncWriter {
	if workers < 1 {
		workers = 1
	}
	w := &AsyncWriter{
		jobs:    make(chan *Stream, queueDepth),
		stopped: make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		w.wg.Add(1)
		go w.worker()
	}
	return w
}

func (w *AsyncWriter) worker() {
	defer w.wg.Done()
	for {
		select {
		case s, ok := <-w.jobs:
			if !ok {
				return
			}
			w.drainFully(s)
		case <-w.stopped:
			return
		}
	}
}

// drainFully repeatedly drains s until its queue empties or a send fails.
// A non-empty queue that isn't done yet (e.g. the producer is still
// writing) is re-enqueued so other streams get a turn.
func (w *AsyncWriter) drainFully(s *Stream) {
	for {
		n, empty, err := s.drain()
		if err != nil {
			return
		}
		if empty {
			return
		}
		if n == 0 {
			// Socket buffer is full; give this stream another turn later
			// instead of busy-looping the worker on it.
			w.Enqueue(s)
			return
		}
	}
}

// Enqueue submits s for draining. Returns false (non-blocking drop) if the
// job queue is full; callers that get false fall back to an inline write
// or retry.
func (w *AsyncWriter) Enqueue(s *Stream) bool {
	select {
	case w.jobs <- s:
		return true
	default:
		return false
	}
}

// Stop signals every worker to exit and waits up to timeout for them to
// return. A worker finishes the stream it is draining at that moment;
// streams still waiting in the job queue are not drained. Returns true if
// all workers stopped within timeout.
func (w *AsyncWriter) Stop(timeout time.Duration) bool {
	close(w.stopped)
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
