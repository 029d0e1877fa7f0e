// Package executor provides the worker abstraction the rx package needs
// for timed and asynchronous-boundary operators: a single-threaded, FIFO
// task runner obtained from a named executor service.
//
// Grounded on the teacher's gtorHandler run loop (handler.go) — a single
// goroutine draining a buffered channel — generalized from actor message
// dispatch to arbitrary task execution, with delayed and periodic
// scheduling added since the teacher's handler never needed them.
package executor

import "time"

// Disposable is a handle to cancel a scheduled task or tear down a worker.
type Disposable interface {
	Dispose()
}

type disposeFunc func()

func (f disposeFunc) Dispose() { f() }

// Task is a unit of work run on a Worker.
type Task func()

// Worker is a single-threaded, FIFO task executor. Tasks scheduled on the
// same Worker never run concurrently with one another and run in the
// order they were scheduled.
type Worker interface {
	// Schedule runs task as soon as the worker is free.
	Schedule(task Task) Disposable
	// ScheduleDelayed runs task after delay has elapsed.
	ScheduleDelayed(task Task, delay time.Duration) Disposable
	// SchedulePeriodic runs task after initial, then every period until disposed.
	SchedulePeriodic(task Task, initial, period time.Duration) Disposable
	// Dispose cancels all pending tasks. Tasks already running finish.
	Dispose()
	// Disposed reports whether Dispose has been called.
	Disposed() bool
}

// Executor supplies Workers. Implementations decide how many underlying
// goroutines back the workers they hand out.
type Executor interface {
	Worker() Worker
}
