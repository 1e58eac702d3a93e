// Package reactor implements the task queue / event queue abstraction: a
// cooperative scheduler that runs state-machine callbacks for sockets with
// deadlines, delivering exactly one terminal event per task.
//
// Each task's Body runs on its own goroutine (leaning on Go's netpoller
// instead of hand-rolling select/poll), and a second goroutine per task
// enforces the timeout and delivers the terminal event. A Queue has no
// reactor goroutine and no wakeup pipe of its own: a callback runs on the
// goroutine that raised the event (Spawn's caller for EventInit, the
// caller of Report for progress events, the task's supervising goroutine
// for the terminal event), so callbacks for different tasks of one queue
// can run concurrently.
package reactor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// unforced is the sentinel atomic value meaning "no terminal event has
// been forced on this task yet".
const unforced int32 = -1

// Event is one outcome delivered to a task's callback.
type Event int

const (
	EventInit Event = iota
	EventRead
	EventWrite
	EventException
	EventTimeout
	EventAgain
	EventDone
	EventCancel
	EventExit
)

func (e Event) String() string {
	switch e {
	case EventInit:
		return "INIT"
	case EventRead:
		return "READ"
	case EventWrite:
		return "WRITE"
	case EventException:
		return "EXCEPTION"
	case EventTimeout:
		return "TIMEOUT"
	case EventAgain:
		return "AGAIN"
	case EventDone:
		return "DONE"
	case EventCancel:
		return "CANCEL"
	case EventExit:
		return "EXIT"
	default:
		return "UNKNOWN"
	}
}

// State is a task's lifecycle state.
type State int

const (
	StateInit State = iota
	StateRunning
	StateCompleted
	StateCanceled
	StateTimedOut
	StateFree
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateRunning:
		return "RUNNING"
	case StateCompleted:
		return "COMPLETED"
	case StateCanceled:
		return "CANCELED"
	case StateTimedOut:
		return "TIMED_OUT"
	case StateFree:
		return "FREE"
	default:
		return "UNKNOWN"
	}
}

// Callback is invoked by the queue's reactor loop for every event a task
// experiences, starting with EventInit and ending with exactly one of
// EventDone, EventTimeout, EventCancel or EventExit.
type Callback func(t *Task, ev Event)

// Body is the task's blocking unit of work, run on its own goroutine. It
// should periodically call t.Report to surface progress events (READ,
// WRITE, AGAIN) and must return the terminal event it ended on.
type Body func(t *Task) Event

// Task is one scheduled unit of work: a socket, a user callback, a state
// and a deadline.
type Task struct {
	ID       string
	q        *Queue
	cb       Callback
	deadline time.Time

	mu       sync.Mutex
	state    State
	canceled chan struct{}
	done     chan struct{}
	forced   atomic.Int32 // holds unforced, or the Event forcing early termination
}

// requestTermination records ev as the task's forced terminal event (first
// writer wins) and closes Canceled() so the task's Body observes it.
func (t *Task) requestTermination(ev Event) {
	if t.forced.CompareAndSwap(unforced, int32(ev)) {
		close(t.canceled)
	}
}

// State returns the task's current lifecycle state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Canceled returns a channel closed once Cancel has been requested for
// this task, for the task's Body to select on cooperatively.
func (t *Task) Canceled() <-chan struct{} {
	return t.canceled
}

// Done returns a channel closed once the task has reached a terminal
// state.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Report delivers a non-terminal progress event (READ, WRITE, AGAIN) to
// the task's callback on the calling goroutine, if the task is still live.
func (t *Task) Report(ev Event) {
	t.q.reportLocked(t, ev)
}

func (t *Task) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// Queue tracks its live tasks under one bookkeeping mutex. Callbacks are
// invoked outside that mutex, so events for different tasks of the same
// queue can be delivered concurrently.
type Queue struct {
	Name string

	mu      sync.Mutex
	tasks   map[string]*Task
	closed  bool
	wg      sync.WaitGroup
}

// NewQueue creates an empty, running task queue.
func NewQueue(name string) *Queue {
	return &Queue{Name: name, tasks: make(map[string]*Task)}
}

// Spawn creates and starts a task: cb.EventInit fires synchronously, body
// then runs on its own goroutine, and timeout (0 = none) bounds how long
// the task may run before it is force-timed-out.
func (q *Queue) Spawn(cb Callback, timeout time.Duration, body Body) *Task {
	t := &Task{
		q:        q,
		cb:       cb,
		state:    StateInit,
		canceled: make(chan struct{}),
		done:     make(chan struct{}),
	}
	t.forced.Store(unforced)
	t.ID = uuid.NewString()
	if timeout > 0 {
		t.deadline = time.Now().Add(timeout)
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		close(t.canceled)
		close(t.done)
		return t
	}
	q.tasks[t.ID] = t
	q.mu.Unlock()

	t.cb(t, EventInit)
	t.setState(StateRunning)

	q.wg.Add(1)
	go q.run(t, timeout, body)

	return t
}

func (q *Queue) run(t *Task, timeout time.Duration, body Body) {
	defer q.wg.Done()

	resultCh := make(chan Event, 1)
	go func() {
		resultCh <- body(t)
	}()

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	var final Event
	select {
	case ev := <-resultCh:
		final = ev
	case <-timeoutCh:
		t.requestTermination(EventTimeout)
		// body is expected to observe Canceled() and return promptly;
		// wait for it so the task's goroutine doesn't leak.
		<-resultCh
	}

	// A Cancel/Shutdown/Timeout forces the terminal event regardless of
	// what Body itself returned, since Body may just return EventDone
	// once it notices cancellation rather than echoing the reason.
	if f := Event(t.forced.Load()); f != Event(unforced) {
		final = f
	}

	q.finish(t, final)
}

// finish removes t from the queue's live set (under the bookkeeping
// mutex), then transitions t to its terminal state and delivers the
// terminal event.
func (q *Queue) finish(t *Task, ev Event) {
	q.mu.Lock()
	delete(q.tasks, t.ID)
	q.mu.Unlock()

	switch ev {
	case EventTimeout:
		t.setState(StateTimedOut)
	case EventCancel:
		t.setState(StateCanceled)
	default:
		t.setState(StateCompleted)
	}

	t.cb(t, ev)
	close(t.done)
}

// reportLocked delivers a non-terminal event for t if t is still live. Only
// the liveness check holds the queue mutex; the callback runs after it is
// released.
func (q *Queue) reportLocked(t *Task, ev Event) {
	q.mu.Lock()
	_, live := q.tasks[t.ID]
	q.mu.Unlock()
	if !live {
		return
	}
	t.cb(t, ev)
}

// Cancel marks t for cancellation: its Canceled() channel closes, and the
// task is expected to observe it and return promptly from its Body.
func (q *Queue) Cancel(id string) bool {
	q.mu.Lock()
	t, ok := q.tasks[id]
	q.mu.Unlock()
	if !ok {
		return false
	}
	t.requestTermination(EventCancel)
	return true
}

// Wait blocks until t reaches a terminal state, or timeout elapses (0 =
// forever). Reports whether the task finished within the timeout.
func Wait(t *Task, timeout time.Duration) bool {
	if timeout <= 0 {
		<-t.Done()
		return true
	}
	select {
	case <-t.Done():
		return true
	case <-time.After(timeout):
		return false
	}
}

// Len returns the number of live tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Shutdown delivers EventExit to every live task and blocks until all of
// their Body goroutines have returned (queue shutdown delivers an exit
// event to every live task before returning). Exit requests fan out
// concurrently across tasks instead of one at a time, since a task whose
// Body is slow to observe cancellation shouldn't delay notifying the rest.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	q.closed = true
	live := make([]*Task, 0, len(q.tasks))
	for _, t := range q.tasks {
		live = append(live, t)
	}
	q.mu.Unlock()

	var g errgroup.Group
	for _, t := range live {
		t := t
		g.Go(func() error {
			t.requestTermination(EventExit)
			return nil
		})
	}
	_ = g.Wait()

	q.wg.Wait()
}
