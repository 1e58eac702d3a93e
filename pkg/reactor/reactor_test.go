package reactor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTaskProgressionReachesDone checks every live task eventually
// receives one of DONE, TIMEOUT, CANCEL or EXIT.
func TestTaskProgressionReachesDone(t *testing.T) {
	q := NewQueue("q")
	var events []Event
	var mu sync.Mutex

	task := q.Spawn(func(tk *Task, ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}, 0, func(tk *Task) Event {
		return EventDone
	})

	require.True(t, Wait(task, time.Second))
	assert.Equal(t, StateCompleted, task.State())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)
	assert.Equal(t, EventInit, events[0])
	assert.Equal(t, EventDone, events[1])
}

func TestTaskTimesOutWhenDeadlineElapses(t *testing.T) {
	q := NewQueue("q")
	task := q.Spawn(func(tk *Task, ev Event) {}, 20*time.Millisecond, func(tk *Task) Event {
		<-tk.Canceled()
		return EventDone // body doesn't bother reporting the reason
	})

	require.True(t, Wait(task, time.Second))
	assert.Equal(t, StateTimedOut, task.State())
}

func TestCancelDeliversCancelEvent(t *testing.T) {
	q := NewQueue("q")
	var final Event
	task := q.Spawn(func(tk *Task, ev Event) {
		if ev != EventInit {
			final = ev
		}
	}, 0, func(tk *Task) Event {
		<-tk.Canceled()
		return EventDone
	})

	ok := q.Cancel(task.ID)
	require.True(t, ok)
	require.True(t, Wait(task, time.Second))

	assert.Equal(t, EventCancel, final)
	assert.Equal(t, StateCanceled, task.State())
}

func TestReportDeliversProgressEvents(t *testing.T) {
	q := NewQueue("q")
	var seen []Event
	var mu sync.Mutex

	started := make(chan struct{})
	proceed := make(chan struct{})

	task := q.Spawn(func(tk *Task, ev Event) {
		mu.Lock()
		seen = append(seen, ev)
		mu.Unlock()
	}, 0, func(tk *Task) Event {
		close(started)
		<-proceed
		tk.Report(EventRead)
		return EventDone
	})

	<-started
	close(proceed)
	require.True(t, Wait(task, time.Second))

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, seen, EventRead)
	assert.Contains(t, seen, EventDone)
}

func TestShutdownDeliversExitToLiveTasks(t *testing.T) {
	q := NewQueue("q")
	var final Event
	var mu sync.Mutex

	q.Spawn(func(tk *Task, ev Event) {
		if ev != EventInit {
			mu.Lock()
			final = ev
			mu.Unlock()
		}
	}, 0, func(tk *Task) Event {
		<-tk.Canceled()
		return EventDone
	})

	q.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, EventExit, final)
}

func TestQueueLenTracksLiveTasks(t *testing.T) {
	q := NewQueue("q")
	assert.Equal(t, 0, q.Len())

	release := make(chan struct{})
	task := q.Spawn(func(tk *Task, ev Event) {}, 0, func(tk *Task) Event {
		<-release
		return EventDone
	})
	assert.Equal(t, 1, q.Len())

	close(release)
	require.True(t, Wait(task, time.Second))
	assert.Equal(t, 0, q.Len())
}
