// Package scheduler implements periodic and one-shot timed callbacks
// (rollers, cache cleanup sweeps, ...), backed by a single scheduler
// goroutine maintaining a min-heap ordered by next-fire time.
package scheduler

import (
	"container/heap"
	"sort"
	"sync"
	"time"
)

// Flag is a bitset of scheduling behaviors for a periodic job.
type Flag uint32

const (
	// FlagThread runs each firing on its own detached goroutine instead of
	// blocking the scheduler loop.
	FlagThread Flag = 1 << iota
	// FlagOnce cancels the job after its first firing.
	FlagOnce
	// FlagDaily fires once per day at a fixed hour:minute.
	FlagDaily
	// FlagWeekly fires once per week at a fixed weekday/hour:minute.
	FlagWeekly
	// FlagPaused suspends firing until Resume clears it.
	FlagPaused
	// FlagRunning marks a job whose Proc is currently executing
	// (non-FlagThread jobs only; the scheduler loop is single-threaded).
	FlagRunning
)

// Proc is a scheduled callback.
type Proc func()

// CleanupProc runs once when a job is unscheduled.
type CleanupProc func()

// job is one scheduled entry: its next fire time, interval, and flags.
type job struct {
	id       int
	proc     Proc
	cleanup  CleanupProc
	interval time.Duration // 0 for one-shot After jobs
	next     time.Time
	flags    Flag
	weekday  time.Weekday // for FlagWeekly
	hour     int          // for FlagDaily/FlagWeekly
	minute   int
	index    int // heap index, maintained by container/heap
}

// jobHeap is a min-heap of *job ordered by next fire time.
type jobHeap []*job

func (h jobHeap) Len() int            { return len(h) }
func (h jobHeap) Less(i, j int) bool  { return h[i].next.Before(h[j].next) }
func (h jobHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index, h[j].index = i, j }
func (h *jobHeap) Push(x any)         { j := x.(*job); j.index = len(*h); *h = append(*h, j) }
func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	j.index = -1
	*h = old[:n-1]
	return j
}

// Scheduler owns one goroutine that fires due jobs in next-fire-time
// order.
type Scheduler struct {
	mu      sync.Mutex
	heap    jobHeap
	byID    map[int]*job
	nextID  int
	wake    chan struct{}
	stop    chan struct{}
	stopped chan struct{}
	now     func() time.Time // overridable for tests
}

// New creates and starts a Scheduler.
func New() *Scheduler {
	s := &Scheduler{
		byID:    make(map[int]*job),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
		now:     time.Now,
	}
	heap.Init(&s.heap)
	go s.loop()
	return s
}

// After schedules proc to run once after interval elapses, returning its
// job id.
func (s *Scheduler) After(interval time.Duration, proc Proc) int {
	return s.add(&job{proc: proc, interval: 0, next: s.now().Add(interval)})
}

// ScheduleProcEx schedules proc to run every interval, starting at
// now+interval, honoring flags (FlagThread, FlagOnce, FlagPaused).
func (s *Scheduler) ScheduleProcEx(proc Proc, flags Flag, interval time.Duration, cleanup CleanupProc) int {
	j := &job{proc: proc, cleanup: cleanup, interval: interval, flags: flags}
	if flags&FlagPaused != 0 {
		j.next = time.Time{} // not armed until Resume
	} else {
		j.next = s.now().Add(interval)
	}
	return s.add(j)
}

// ScheduleDaily schedules proc to run once per day at hour:minute.
func (s *Scheduler) ScheduleDaily(proc Proc, flags Flag, hour, minute int, cleanup CleanupProc) int {
	j := &job{proc: proc, cleanup: cleanup, flags: flags | FlagDaily, hour: hour, minute: minute}
	j.next = nextDaily(s.now(), hour, minute)
	return s.add(j)
}

// ScheduleWeekly schedules proc to run once per week on weekday at
// hour:minute.
func (s *Scheduler) ScheduleWeekly(proc Proc, flags Flag, weekday time.Weekday, hour, minute int, cleanup CleanupProc) int {
	j := &job{proc: proc, cleanup: cleanup, flags: flags | FlagWeekly, weekday: weekday, hour: hour, minute: minute}
	j.next = nextWeekly(s.now(), weekday, hour, minute)
	return s.add(j)
}

func (s *Scheduler) add(j *job) int {
	s.mu.Lock()
	s.nextID++
	j.id = s.nextID
	s.byID[j.id] = j
	if !j.next.IsZero() {
		heap.Push(&s.heap, j)
	}
	s.mu.Unlock()
	s.nudge()
	return j.id
}

// JobInfo is a read-only snapshot of one scheduled job, for admin
// introspection.
type JobInfo struct {
	ID       int
	Next     time.Time
	Interval time.Duration
	Paused   bool
	Running  bool
}

// Jobs returns a snapshot of every currently scheduled job, ordered by id.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobInfo, 0, len(s.byID))
	for id, j := range s.byID {
		out = append(out, JobInfo{
			ID:       id,
			Next:     j.next,
			Interval: j.interval,
			Paused:   j.flags&FlagPaused != 0,
			Running:  j.flags&FlagRunning != 0,
		})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

// Cancel permanently removes a job, running its cleanup proc if any.
func (s *Scheduler) Cancel(id int) bool {
	s.mu.Lock()
	j, ok := s.byID[id]
	if ok {
		delete(s.byID, id)
		if j.index >= 0 && j.index < len(s.heap) && s.heap[j.index] == j {
			heap.Remove(&s.heap, j.index)
		}
	}
	s.mu.Unlock()
	if ok && j.cleanup != nil {
		j.cleanup()
	}
	return ok
}

// Pause sets FlagPaused on a job, preventing further firing until Resume.
func (s *Scheduler) Pause(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.byID[id]
	if !ok {
		return false
	}
	j.flags |= FlagPaused
	if j.index >= 0 && j.index < len(s.heap) && s.heap[j.index] == j {
		heap.Remove(&s.heap, j.index)
	}
	return true
}

// Resume clears FlagPaused and re-arms the job's next fire time.
func (s *Scheduler) Resume(id int) bool {
	s.mu.Lock()
	j, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	j.flags &^= FlagPaused
	j.next = s.nextFireFrom(j, s.now())
	heap.Push(&s.heap, j)
	s.mu.Unlock()
	s.nudge()
	return true
}

func (s *Scheduler) nudge() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Stop halts the scheduler goroutine; queued jobs never fire again.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.stopped
}

func (s *Scheduler) loop() {
	defer close(s.stopped)
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		s.mu.Lock()
		var wait time.Duration
		if s.heap.Len() == 0 {
			wait = time.Hour
		} else {
			wait = time.Until(s.heap[0].next)
			if wait < 0 {
				wait = 0
			}
		}
		s.mu.Unlock()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-s.stop:
			return
		case <-s.wake:
			continue
		case <-timer.C:
			s.fireDue()
		}
	}
}

// fireDue pops and runs every job whose next fire time has arrived,
// rescheduling periodic jobs and dropping one-shot/FlagOnce jobs.
func (s *Scheduler) fireDue() {
	now := s.now()
	for {
		s.mu.Lock()
		if s.heap.Len() == 0 || s.heap[0].next.After(now) {
			s.mu.Unlock()
			return
		}
		j := heap.Pop(&s.heap).(*job)
		s.mu.Unlock()

		if j.flags&FlagThread != 0 {
			go j.proc()
		} else {
			s.mu.Lock()
			j.flags |= FlagRunning
			s.mu.Unlock()

			j.proc()

			s.mu.Lock()
			j.flags &^= FlagRunning
			s.mu.Unlock()
		}

		s.requeue(j, now)
	}
}

func (s *Scheduler) requeue(j *job, firedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, live := s.byID[j.id]; !live {
		return // canceled during its own firing
	}
	if j.interval == 0 && j.flags&(FlagDaily|FlagWeekly) == 0 {
		delete(s.byID, j.id) // one-shot After job
		return
	}
	if j.flags&FlagOnce != 0 {
		delete(s.byID, j.id)
		if j.cleanup != nil {
			j.cleanup()
		}
		return
	}
	if j.flags&FlagPaused != 0 {
		return // paused during its own firing; Resume re-arms it
	}
	j.next = s.nextFireFrom(j, firedAt)
	heap.Push(&s.heap, j)
}

// nextFireFrom computes a job's next fire time, relative to from.
func (s *Scheduler) nextFireFrom(j *job, from time.Time) time.Time {
	switch {
	case j.flags&FlagDaily != 0:
		return nextDaily(from, j.hour, j.minute)
	case j.flags&FlagWeekly != 0:
		return nextWeekly(from, j.weekday, j.hour, j.minute)
	default:
		return from.Add(j.interval)
	}
}

func nextDaily(from time.Time, hour, minute int) time.Time {
	next := time.Date(from.Year(), from.Month(), from.Day(), hour, minute, 0, 0, from.Location())
	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func nextWeekly(from time.Time, weekday time.Weekday, hour, minute int) time.Time {
	next := nextDaily(from, hour, minute)
	for next.Weekday() != weekday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
