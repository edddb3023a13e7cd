// Package timer provides cancellable delayed and periodic tasks on top of a
// mockable clock. Components own the tasks they create and cancel them on
// teardown, so no callback can mutate state after its owner has shut down.
package timer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	taskPending int32 = iota
	taskRunning
	taskDone
	taskCancelled
)

// Task is a handle to a scheduled callback.
type Task struct {
	state    atomic.Int32
	periodic bool
	stop     func()
	sched    *Scheduler
}

// Cancel prevents the task from running (again). It reports whether the task
// was still pending. Cancel is safe to call more than once and on nil.
func (t *Task) Cancel() bool {
	if t == nil {
		return false
	}
	for {
		cur := t.state.Load()
		if cur == taskDone || cur == taskCancelled || (cur == taskRunning && !t.periodic) {
			return false
		}
		if t.state.CompareAndSwap(cur, taskCancelled) {
			if t.stop != nil {
				t.stop()
			}
			t.sched.forget(t)
			return true
		}
	}
}

// Pending reports whether the task may still run.
func (t *Task) Pending() bool {
	if t == nil {
		return false
	}
	s := t.state.Load()
	return s == taskPending || (t.periodic && s == taskRunning)
}

// Scheduler creates tasks against a clock and tracks them so Close can
// cancel everything at once.
type Scheduler struct {
	clock clock.Clock

	mu     sync.Mutex
	tasks  map[*Task]struct{}
	closed bool
}

// New creates a scheduler. A nil clock means the wall clock.
func New(c clock.Clock) *Scheduler {
	if c == nil {
		c = clock.New()
	}
	return &Scheduler{clock: c, tasks: make(map[*Task]struct{})}
}

// Clock returns the underlying clock.
func (s *Scheduler) Clock() clock.Clock { return s.clock }

// Now returns the scheduler's current time.
func (s *Scheduler) Now() time.Time { return s.clock.Now() }

// Sleep blocks for d on the scheduler's clock.
func (s *Scheduler) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	s.clock.Sleep(d)
}

// After runs fn once after d unless the task is cancelled first.
func (s *Scheduler) After(d time.Duration, fn func()) *Task {
	t := &Task{sched: s}
	if !s.track(t) {
		t.state.Store(taskCancelled)
		return t
	}
	timer := s.clock.AfterFunc(d, func() {
		if !t.state.CompareAndSwap(taskPending, taskRunning) {
			return
		}
		s.forget(t)
		fn()
		t.state.CompareAndSwap(taskRunning, taskDone)
	})
	t.stop = func() { timer.Stop() }
	return t
}

// Every runs fn every d until the task is cancelled. Ticks that arrive while
// fn is still running are skipped.
func (s *Scheduler) Every(d time.Duration, fn func()) *Task {
	t := &Task{sched: s, periodic: true}
	if !s.track(t) {
		t.state.Store(taskCancelled)
		return t
	}
	ticker := s.clock.Ticker(d)
	done := make(chan struct{})
	var once sync.Once
	t.stop = func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
	go func() {
		for {
			select {
			case <-ticker.C:
				if !t.state.CompareAndSwap(taskPending, taskRunning) {
					return
				}
				fn()
				if !t.state.CompareAndSwap(taskRunning, taskPending) {
					return
				}
			case <-done:
				return
			}
		}
	}()
	return t
}

// Close cancels every outstanding task. Tasks created afterwards never run.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	tasks := make([]*Task, 0, len(s.tasks))
	for t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	for _, t := range tasks {
		t.Cancel()
	}
}

// Outstanding returns the number of tasks that have not fired or been cancelled.
func (s *Scheduler) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *Scheduler) track(t *Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.tasks[t] = struct{}{}
	return true
}

func (s *Scheduler) forget(t *Task) {
	s.mu.Lock()
	delete(s.tasks, t)
	s.mu.Unlock()
}
